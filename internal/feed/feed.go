package feed

import (
	"context"
	"sync"
	"time"

	"flushbot/internal/exchange"
	"flushbot/internal/normalizer"
	"flushbot/models"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	// TerminalOrderTTL is how long filled and expired orders stay cached.
	TerminalOrderTTL = 5 * time.Minute

	restartDelay = time.Second
)

type cachedOrder struct {
	order      models.Order
	terminalAt time.Time
}

// Feed caches socket state for one symbol. Every *APIFirst read asks REST
// first and answers from the cache only when REST fails.
type Feed struct {
	trader   *exchange.Trader
	stream   Stream
	logger   *logrus.Logger
	symbol   string
	interval string
	period   time.Duration
	limit    int
	now      func() time.Time

	mu          sync.RWMutex
	candles     models.Candles
	position    *models.Position
	orders      map[string]cachedOrder
	balance     *decimal.Decimal
	resubscribe chan struct{}

	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a feed keeping the last limit candles of interval.
func New(trader *exchange.Trader, stream Stream, symbol, interval string, limit int, logger *logrus.Logger) (*Feed, error) {
	period, err := normalizer.IntervalDuration(interval)
	if err != nil {
		return nil, err
	}

	return &Feed{
		trader:      trader,
		stream:      stream,
		logger:      logger,
		symbol:      symbol,
		interval:    interval,
		period:      period,
		limit:       limit,
		now:         time.Now,
		orders:      map[string]cachedOrder{},
		resubscribe: make(chan struct{}, 1),
	}, nil
}

func (f *Feed) log() *logrus.Entry {
	return f.logger.
		WithField("exchange", f.trader.Name()).
		WithField("symbol", f.symbol)
}

// Start loads the candle window and runs the stream in the background until
// Stop or ctx is done.
func (f *Feed) Start(ctx context.Context) error {
	if _, err := f.trader.Precision(ctx, f.symbol); err != nil {
		return errors.Wrap(err, "feed precision")
	}
	if err := f.load(ctx); err != nil {
		f.log().WithError(err).Warn("initial candle window")
	}

	ctx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	f.done = make(chan struct{})

	go f.run(ctx)

	return nil
}

func (f *Feed) run(ctx context.Context) {
	defer close(f.done)

	for {
		sctx, scancel := context.WithCancel(ctx)
		errc := make(chan error, 1)
		go func() { errc <- f.stream.Run(sctx, f) }()

		select {
		case <-ctx.Done():
			scancel()
			<-errc
			return
		case <-f.resubscribe:
			scancel()
			<-errc
			f.log().Info("feed resubscribed")
		case err := <-errc:
			scancel()
			if ctx.Err() != nil {
				return
			}
			f.log().WithError(err).Warn("feed stream stopped")
			if exchange.Sleep(ctx, restartDelay) != nil {
				return
			}
		}
	}
}

// Stop ends the stream and waits for it.
func (f *Feed) Stop() {
	if f.cancel == nil {
		return
	}
	f.cancel()
	<-f.done
}

func (f *Feed) OnCandle(c models.Candle) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.candles = f.candles.Upsert(c, f.limit)
}

func (f *Feed) OnOrder(o models.Order) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.storeOrder(o)
}

func (f *Feed) storeOrder(o models.Order) {
	switch {
	case o.Status == models.OrderStatusCancelled:
		delete(f.orders, o.OrderID)
	case o.IsTerminal():
		f.orders[o.OrderID] = cachedOrder{order: o, terminalAt: f.now()}
	default:
		f.orders[o.OrderID] = cachedOrder{order: o}
	}
}

func (f *Feed) OnPosition(p models.Position) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.position = &p
}

func (f *Feed) OnBalance(b decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.balance = &b
}

// Candles returns a copy of the cached window.
func (f *Feed) Candles() models.Candles {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make(models.Candles, len(f.candles))
	copy(out, f.candles)
	return out
}

// WindowValid reports whether the cached window is current and sequential.
func (f *Feed) WindowValid() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return len(f.candles) > 0 &&
		f.candles.IsSequential() &&
		f.candles.IsCurrent(f.now(), f.period)
}

// Rebuild reloads the window from REST and resubscribes the stream.
func (f *Feed) Rebuild(ctx context.Context) error {
	if err := f.load(ctx); err != nil {
		return err
	}

	select {
	case f.resubscribe <- struct{}{}:
	default:
	}

	return nil
}

func (f *Feed) load(ctx context.Context) error {
	candles, err := f.trader.GetKlines(ctx, exchange.KlineQuery{
		Symbol:   f.symbol,
		Interval: f.interval,
		Limit:    f.limit,
	})
	if err != nil {
		return err
	}

	f.setWindow(candles)

	return nil
}

// setWindow caches a private copy of the newest candles, the stream
// rewrites the last bar in place.
func (f *Feed) setWindow(candles models.Candles) {
	tail := candles.Tail(f.limit)
	window := make(models.Candles, len(tail))
	copy(window, tail)

	f.mu.Lock()
	f.candles = window
	f.mu.Unlock()
}

// GetCandlesticksAPIFirst returns the newest limit candles.
func (f *Feed) GetCandlesticksAPIFirst(ctx context.Context, limit int) (models.Candles, error) {
	candles, err := f.trader.GetKlines(ctx, exchange.KlineQuery{
		Symbol:   f.symbol,
		Interval: f.interval,
		Limit:    limit,
	})
	if err == nil {
		if limit >= f.limit {
			f.setWindow(candles)
		}
		return candles, nil
	}

	f.log().WithError(err).Warn("klines from api failed, using stream cache")

	if !f.WindowValid() {
		if rerr := f.Rebuild(ctx); rerr != nil {
			return nil, errors.Wrap(err, "klines")
		}
	}

	cached := f.Candles()
	if len(cached) < limit {
		return nil, errors.Wrapf(err, "klines: %d cached of %d", len(cached), limit)
	}

	return cached.Tail(limit), nil
}

func (f *Feed) GetPositionAPIFirst(ctx context.Context) (models.Position, error) {
	pos, err := f.trader.GetPosition(ctx, f.symbol)
	if err == nil {
		f.OnPosition(pos)
		return pos, nil
	}

	f.mu.RLock()
	cached := f.position
	f.mu.RUnlock()

	if cached == nil {
		return models.Position{}, errors.Wrap(err, "position")
	}

	f.log().WithError(err).Warn("position from api failed, using stream cache")
	return *cached, nil
}

// GetOrderAPIFirst returns nil, nil when neither REST nor the cache know the
// order.
func (f *Feed) GetOrderAPIFirst(ctx context.Context, orderID string) (*models.Order, error) {
	o, err := f.trader.GetOrder(ctx, f.symbol, exchange.OrderRef{OrderID: orderID})
	if err == nil && o != nil {
		f.OnOrder(*o)
		return o, nil
	}

	cached, ok := f.cachedOrder(orderID)
	if ok {
		if err != nil {
			f.log().WithError(err).Warn("order from api failed, using stream cache")
		}
		return &cached, nil
	}

	if err != nil {
		return nil, errors.Wrapf(err, "order %s", orderID)
	}
	return nil, nil
}

func (f *Feed) cachedOrder(orderID string) (models.Order, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.evictOrders()

	c, ok := f.orders[orderID]
	return c.order, ok
}

func (f *Feed) evictOrders() {
	now := f.now()
	for id, c := range f.orders {
		if !c.terminalAt.IsZero() && now.Sub(c.terminalAt) > TerminalOrderTTL {
			delete(f.orders, id)
		}
	}
}

// GetWalletBalanceAPIFirst is the account balance with unrealised pnl from
// REST, or the last known balance when REST fails.
func (f *Feed) GetWalletBalanceAPIFirst(ctx context.Context) (decimal.Decimal, error) {
	b, err := f.trader.GetTotalBalance(ctx)
	if err == nil {
		f.OnBalance(b)
		return b, nil
	}

	f.mu.RLock()
	cached := f.balance
	f.mu.RUnlock()

	if cached == nil {
		return decimal.Zero, errors.Wrap(err, "balance")
	}

	f.log().WithError(err).Warn("balance from api failed, using stream cache")
	return *cached, nil
}

// GetLatestPriceAPIFirst is the close of the newest 1m bar, or of the cached
// window when REST fails.
func (f *Feed) GetLatestPriceAPIFirst(ctx context.Context) (decimal.Decimal, error) {
	candles, err := f.trader.GetKlines(ctx, exchange.KlineQuery{
		Symbol:   f.symbol,
		Interval: "1m",
		Limit:    1,
	})
	if err == nil {
		if last, ok := candles.Last(); ok {
			return last.Close, nil
		}
		err = exchange.ErrNoPrice
	}

	f.mu.RLock()
	last, ok := f.candles.Last()
	f.mu.RUnlock()

	if !ok {
		return decimal.Zero, errors.Wrap(err, "latest price")
	}

	f.log().WithError(err).Warn("price from api failed, using stream cache")
	return last.Close, nil
}

func (f *Feed) Symbol() string {
	return f.symbol
}

func (f *Feed) Interval() string {
	return f.interval
}
