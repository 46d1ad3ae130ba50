package exchange

import (
	"net/http"
	"strings"
	"sync"

	"flushbot/internal/controllers"
	"flushbot/internal/normalizer"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// PaperBalance is the starting USDT balance of a paper exchange.
var PaperBalance = decimal.NewFromInt(10_000)

// Registry builds one adapter per exchange name and shares it between every
// engine trading on that exchange.
type Registry struct {
	httpClient *http.Client
	logger     *logrus.Logger
	creds      map[string]Credentials
	okxPosMode string
	paper      bool

	mu       sync.Mutex
	adapters map[string]Exchange
}

func NewRegistry(
	httpClient *http.Client,
	logger *logrus.Logger,
	creds map[string]Credentials,
	okxPosMode string,
	paper bool,
) *Registry {
	return &Registry{
		httpClient: httpClient,
		logger:     logger,
		creds:      creds,
		okxPosMode: okxPosMode,
		paper:      paper,
		adapters:   map[string]Exchange{},
	}
}

// Build returns the adapter for name, creating it on first use. In paper
// mode the live adapter only serves market data.
func (r *Registry) Build(name string) (Exchange, error) {
	name = strings.ToUpper(strings.TrimSpace(name))

	r.mu.Lock()
	defer r.mu.Unlock()

	if ex, ok := r.adapters[name]; ok {
		return ex, nil
	}

	ex, err := r.build(name)
	if err != nil {
		return nil, err
	}

	if r.paper {
		paper := NewPaper(name, PaperBalance, normalizer.Precision{})
		paper.Source = ex
		ex = paper
	}

	r.adapters[name] = ex
	r.logger.
		WithField("exchange", name).
		WithField("paper", r.paper).
		Info("exchange adapter ready")

	return ex, nil
}

func (r *Registry) build(name string) (Exchange, error) {
	creds := r.creds[name]
	client := controllers.NewClientController(r.httpClient, r.logger)
	crypto := controllers.NewCryptoController(creds.APISecret)

	switch name {
	case normalizer.Binance:
		return NewBinance(creds, r.httpClient, r.logger), nil
	case normalizer.Bybit:
		return NewBybit(client, crypto, creds, r.logger), nil
	case normalizer.OKX:
		return NewOKX(client, crypto, creds, r.okxPosMode, r.logger), nil
	case normalizer.Gate:
		return NewGate(client, crypto, creds, r.logger), nil
	case normalizer.MEXC:
		return NewMEXC(client, crypto, creds, r.logger), nil
	case normalizer.Phemex:
		return NewPhemex(client, crypto, creds, r.logger), nil
	case normalizer.BingX:
		return NewBingX(client, crypto, creds, r.logger), nil
	}

	return nil, errors.Wrap(ErrUnknownExchange, name)
}

// Names lists the exchanges with credentials configured.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.creds))
	for name := range r.creds {
		out = append(out, name)
	}
	return out
}
