package exchange

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"net/url"
	"strconv"
	"time"

	"flushbot/internal/controllers"

	"github.com/adshao/go-binance/v2/common"
	"github.com/pkg/errors"
)

// Kind tells the retry policy and the strategy what to do with a failure.
type Kind int

const (
	KindFatal Kind = iota
	KindTransient
	KindRateLimited
	KindDuplicateOrder
	KindInvalidOrder
	KindNotFound
	KindImmediateTrigger
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindRateLimited:
		return "rate_limited"
	case KindDuplicateOrder:
		return "duplicate_order"
	case KindInvalidOrder:
		return "invalid_order"
	case KindNotFound:
		return "not_found"
	case KindImmediateTrigger:
		return "immediate_trigger"
	default:
		return "fatal"
	}
}

var (
	ErrConfiguration   = errors.New("configuration error")
	ErrNoPosition      = errors.New("no position")
	ErrUnknownExchange = errors.New("unknown exchange")
	ErrNoPrice         = errors.New("no price in order book")
)

// Error is an exchange failure translated into the common taxonomy.
type Error struct {
	Kind       Kind
	Exchange   string
	Code       string
	Msg        string
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: code %s: %s", e.Exchange, e.Kind, e.Code, e.Msg)
}

// KindOf classifies any error returned by an adapter. Transport failures are
// transient, a cancelled context is fatal.
func KindOf(err error) Kind {
	if err == nil {
		return KindFatal
	}

	var exErr *Error
	if errors.As(err, &exErr) {
		return exErr.Kind
	}

	if errors.Is(err, context.Canceled) {
		return KindFatal
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransient
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return KindTransient
	}

	return KindFatal
}

func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// CodeOf returns the exchange error code, or "" for other errors.
func CodeOf(err error) string {
	var exErr *Error
	if errors.As(err, &exErr) {
		return exErr.Code
	}
	return ""
}

func retryAfterOf(err error) time.Duration {
	var exErr *Error
	if errors.As(err, &exErr) {
		return exErr.RetryAfter
	}
	return 0
}

func newError(exchange string, kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Exchange: exchange, Code: code, Msg: msg}
}

var binanceKinds = map[int64]Kind{
	-1003: KindRateLimited,
	-1015: KindRateLimited,
	-2022: KindDuplicateOrder,
	-4015: KindDuplicateOrder,
	-2013: KindNotFound,
	-2011: KindNotFound,
	-2021: KindImmediateTrigger,
	-1001: KindTransient,
	-1007: KindTransient,
}

// binanceError translates go-binance errors. Anything that is not an API
// error is left to KindOf.
func binanceError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *common.APIError
	if !errors.As(err, &apiErr) {
		return err
	}

	kind, ok := binanceKinds[apiErr.Code]
	if !ok {
		kind = KindFatal
	}

	return newError("BINANCE", kind, strconv.FormatInt(apiErr.Code, 10), apiErr.Message)
}

var okxKinds = map[string]Kind{
	"50011": KindRateLimited,
	"50061": KindRateLimited,
	"51016": KindDuplicateOrder,
	"51603": KindNotFound,
	"51400": KindNotFound,
	"51001": KindNotFound,
	"50001": KindTransient,
	"50004": KindTransient,
	"50013": KindTransient,
}

func okxError(code, msg string) *Error {
	kind, ok := okxKinds[code]
	if !ok {
		kind = KindFatal
	}
	return newError("OKX", kind, code, msg)
}

var bybitKinds = map[int]Kind{
	10006:  KindRateLimited,
	10018:  KindRateLimited,
	30089:  KindDuplicateOrder,
	1141:   KindDuplicateOrder,
	110072: KindDuplicateOrder,
	110001: KindNotFound,
	10016:  KindTransient,
}

func bybitError(code int, msg string) *Error {
	kind, ok := bybitKinds[code]
	if !ok {
		kind = KindFatal
	}
	return newError("BYBIT", kind, strconv.Itoa(code), msg)
}

// bybitIPBan is the 403 Bybit answers once an IP exceeds its request budget.
// Waiting a random 5 to 60 seconds spreads the restart of every engine.
func bybitIPBan(body string) *Error {
	e := newError("BYBIT", KindRateLimited, "403", body)
	e.RetryAfter = time.Duration(5+rand.Intn(56)) * time.Second
	return e
}

var gateKinds = map[string]Kind{
	"TOO_MANY_REQUESTS":   KindRateLimited,
	"ORDER_NOT_FOUND":     KindNotFound,
	"POSITION_NOT_FOUND":  KindNotFound,
	"SERVER_ERROR":        KindTransient,
	"INTERNAL":            KindTransient,
	"ORDER_POC_IMMEDIATE": KindInvalidOrder,
}

func gateError(label, msg string) *Error {
	kind, ok := gateKinds[label]
	if !ok {
		kind = KindFatal
	}
	return newError("GATE", kind, label, msg)
}

var mexcKinds = map[int]Kind{
	510:  KindRateLimited,
	2042: KindDuplicateOrder,
	2008: KindTransient,
	2009: KindNotFound,
	2040: KindNotFound,
}

func mexcError(code int, msg string) *Error {
	kind, ok := mexcKinds[code]
	if !ok {
		kind = KindFatal
	}
	return newError("MEXC", kind, strconv.Itoa(code), msg)
}

var phemexKinds = map[int]Kind{
	11085: KindDuplicateOrder,
	11011: KindInvalidOrder,
	10002: KindNotFound,
	10500: KindTransient,
}

func phemexError(code int, msg string) *Error {
	kind, ok := phemexKinds[code]
	if !ok {
		kind = KindFatal
	}
	return newError("PHEMEX", kind, strconv.Itoa(code), msg)
}

var phemexRetryHeaders = []string{
	"X-RateLimit-Retry-After-OTHER",
	"X-RateLimit-Retry-After-SPOTORDER",
	"X-RateLimit-Retry-After-CONTRACT",
	"X-RateLimit-Retry-After",
}

// phemexRateLimit reads the first retry-after header Phemex sent, in seconds.
func phemexRateLimit(statusErr *controllers.StatusError) *Error {
	e := newError("PHEMEX", KindRateLimited, "429", string(statusErr.Body))
	for _, h := range phemexRetryHeaders {
		v := statusErr.Header.Get(h)
		if v == "" {
			continue
		}
		if secs, err := strconv.Atoi(v); err == nil {
			e.RetryAfter = time.Duration(secs) * time.Second
			break
		}
	}
	return e
}

var bingxKinds = map[int]Kind{
	80012:  KindRateLimited,
	80014:  KindInvalidOrder,
	101414: KindTransient,
	80016:  KindNotFound,
	109414: KindTransient,
}

func bingxError(code int, msg string) *Error {
	kind, ok := bingxKinds[code]
	if !ok {
		kind = KindFatal
	}
	return newError("BINGX", kind, strconv.Itoa(code), msg)
}
