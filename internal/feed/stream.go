package feed

import (
	"context"
	"time"

	"flushbot/internal/exchange"
	"flushbot/models"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const defaultPollInterval = 5 * time.Second

// Sink receives normalized stream events. Feed implements it.
type Sink interface {
	OnCandle(c models.Candle)
	OnOrder(o models.Order)
	OnPosition(p models.Position)
	OnBalance(b decimal.Decimal)
}

// Stream pushes events for one symbol into a sink until ctx is done.
type Stream interface {
	Run(ctx context.Context, sink Sink) error
}

// NewStream picks the socket decoder of the exchange behind trader, falling
// back to polling REST for exchanges without one.
func NewStream(trader *exchange.Trader, symbol, interval string, logger *logrus.Logger) Stream {
	switch ex := trader.Exchange().(type) {
	case *exchange.Binance:
		return NewBinanceStream(ex, symbol, interval, logger)
	case *exchange.Bybit:
		return NewBybitStream(ex, symbol, interval, logger)
	case *exchange.OKX:
		return NewOKXStream(ex, symbol, interval, logger)
	default:
		return NewPollingStream(trader, symbol, interval, defaultPollInterval, logger)
	}
}

// PollingStream refreshes the cache from REST on a ticker.
type PollingStream struct {
	trader   *exchange.Trader
	symbol   string
	interval string
	every    time.Duration
	logger   *logrus.Logger
}

func NewPollingStream(trader *exchange.Trader, symbol, interval string, every time.Duration, logger *logrus.Logger) *PollingStream {
	return &PollingStream{
		trader:   trader,
		symbol:   symbol,
		interval: interval,
		every:    every,
		logger:   logger,
	}
}

func (p *PollingStream) Run(ctx context.Context, sink Sink) error {
	ticker := time.NewTicker(p.every)
	defer ticker.Stop()

	for {
		p.poll(ctx, sink)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *PollingStream) poll(ctx context.Context, sink Sink) {
	log := p.logger.
		WithField("exchange", p.trader.Name()).
		WithField("symbol", p.symbol)

	if candles, err := p.trader.GetKlines(ctx, exchange.KlineQuery{Symbol: p.symbol, Interval: p.interval, Limit: 2}); err != nil {
		log.WithError(err).Debug("poll klines")
	} else {
		for _, c := range candles {
			sink.OnCandle(c)
		}
	}

	if pos, err := p.trader.GetPosition(ctx, p.symbol); err != nil {
		log.WithError(err).Debug("poll position")
	} else {
		sink.OnPosition(pos)
	}

	if orders, err := p.trader.GetOpenOrders(ctx, p.symbol); err != nil {
		log.WithError(err).Debug("poll open orders")
	} else {
		for _, o := range orders {
			sink.OnOrder(o)
		}
	}

	if balance, err := p.trader.GetBalance(ctx); err != nil {
		log.WithError(err).Debug("poll balance")
	} else {
		sink.OnBalance(balance)
	}
}
