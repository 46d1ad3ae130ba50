package exchange

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"

	"flushbot/internal/controllers"

	"github.com/adshao/go-binance/v2/common"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"exchange error", newError("OKX", KindNotFound, "51603", "order does not exist"), KindNotFound},
		{"wrapped exchange error", errors.Wrap(newError("OKX", KindDuplicateOrder, "51016", "dup"), "place"), KindDuplicateOrder},
		{"cancelled", context.Canceled, KindFatal},
		{"deadline", errors.Wrap(context.DeadlineExceeded, "get"), KindTransient},
		{"url error", &url.Error{Op: "Get", URL: "https://api.bybit.com", Err: errors.New("eof")}, KindTransient},
		{"plain", errors.New("boom"), KindFatal},
		{"nil", nil, KindFatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestBinanceError(t *testing.T) {
	tests := []struct {
		code int64
		want Kind
	}{
		{-1003, KindRateLimited},
		{-2022, KindDuplicateOrder},
		{-4015, KindDuplicateOrder},
		{-2013, KindNotFound},
		{-2021, KindImmediateTrigger},
		{-2019, KindFatal},
	}

	for _, tt := range tests {
		err := binanceError(&common.APIError{Code: tt.code, Message: "msg"})
		assert.Equal(t, tt.want, KindOf(err), tt.code)
	}

	plain := errors.New("eof")
	assert.Equal(t, plain, binanceError(plain))
	assert.NoError(t, binanceError(nil))
}

func TestExchangeCodeTables(t *testing.T) {
	assert.Equal(t, KindRateLimited, okxError("50011", "").Kind)
	assert.Equal(t, KindDuplicateOrder, okxError("51016", "").Kind)
	assert.Equal(t, KindFatal, okxError("51008", "").Kind)

	assert.Equal(t, KindDuplicateOrder, bybitError(30089, "").Kind)
	assert.Equal(t, KindNotFound, bybitError(110001, "").Kind)

	assert.Equal(t, KindRateLimited, gateError("TOO_MANY_REQUESTS", "").Kind)
	assert.Equal(t, KindNotFound, gateError("ORDER_NOT_FOUND", "").Kind)

	assert.Equal(t, KindTransient, mexcError(2008, "").Kind)
	assert.Equal(t, KindDuplicateOrder, mexcError(2042, "").Kind)

	assert.Equal(t, KindInvalidOrder, phemexError(11011, "").Kind)
	assert.Equal(t, KindInvalidOrder, bingxError(80014, "").Kind)
	assert.Equal(t, KindTransient, bingxError(101414, "").Kind)

	assert.Equal(t, "51016", CodeOf(errors.Wrap(okxError("51016", ""), "x")))
	assert.Empty(t, CodeOf(errors.New("x")))
}

func TestBybitIPBan(t *testing.T) {
	for i := 0; i < 20; i++ {
		e := bybitIPBan("forbidden")
		assert.Equal(t, KindRateLimited, e.Kind)
		assert.GreaterOrEqual(t, e.RetryAfter, 5*time.Second)
		assert.LessOrEqual(t, e.RetryAfter, 60*time.Second)
	}
}

func TestPhemexRateLimit(t *testing.T) {
	t.Run("retry after header", func(t *testing.T) {
		h := http.Header{}
		h.Set("X-RateLimit-Retry-After-CONTRACT", "7")

		e := phemexRateLimit(&controllers.StatusError{StatusCode: 429, Header: h})
		assert.Equal(t, KindRateLimited, e.Kind)
		assert.Equal(t, 7*time.Second, e.RetryAfter)
	})

	t.Run("no header", func(t *testing.T) {
		e := phemexRateLimit(&controllers.StatusError{StatusCode: 429, Header: http.Header{}})
		assert.Zero(t, e.RetryAfter)
	})
}
