package exchange

import (
	"context"
	"strconv"
	"strings"
	"time"

	"flushbot/internal/normalizer"
	"flushbot/internal/rounding"
	"flushbot/models"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	// VolumeShareLimit caps a volume sized position at this share of the last
	// 24h USD volume.
	volumeShareLimit = "0.004"

	closeBestPriceDepth    = 50
	closeBestPriceInterval = time.Second
	bidAskMaxAttempts      = 50
	maxKlinesPerRequest    = 1000
)

// Client order id length limits. Longer ids get a uuid based suffix.
var clientIDLimits = map[string]int{
	normalizer.Binance: 36,
	normalizer.Bybit:   36,
	normalizer.OKX:     32,
	normalizer.Gate:    26,
	normalizer.MEXC:    32,
	normalizer.Phemex:  40,
	normalizer.BingX:   40,
}

// Trader runs every exchange call through the retry policy and adds the
// order sizing, stop loss, closing and volume helpers the strategy uses.
type Trader struct {
	ex     Exchange
	policy *RetryPolicy
	logger *logrus.Logger
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
}

func NewTrader(ex Exchange, policy *RetryPolicy, logger *logrus.Logger) *Trader {
	if policy == nil {
		policy = NewRetryPolicy(DefaultTries, logger)
	}
	if r, ok := ex.(Rotator); ok && policy.Rotate == nil {
		policy.Rotate = r.Rotate
	}

	return &Trader{
		ex:     ex,
		policy: policy,
		logger: logger,
		now:    time.Now,
		sleep:  Sleep,
	}
}

func (t *Trader) Name() string {
	return t.ex.Name()
}

func (t *Trader) Exchange() Exchange {
	return t.ex
}

func (t *Trader) log(symbol string) *logrus.Entry {
	return t.logger.
		WithField("exchange", t.ex.Name()).
		WithField("symbol", symbol)
}

func (t *Trader) Precision(ctx context.Context, symbol string) (normalizer.Precision, error) {
	return Call(ctx, t.policy, "precision", func(ctx context.Context) (normalizer.Precision, error) {
		return t.ex.Precision(ctx, symbol)
	})
}

func (t *Trader) GetPosition(ctx context.Context, symbol string) (models.Position, error) {
	return Call(ctx, t.policy, "get_position", func(ctx context.Context) (models.Position, error) {
		return t.ex.GetPosition(ctx, symbol)
	})
}

func (t *Trader) GetPositions(ctx context.Context) ([]models.Position, error) {
	return Call(ctx, t.policy, "get_positions", t.ex.GetPositions)
}

// GetOrder returns nil when the exchange does not know the order.
func (t *Trader) GetOrder(ctx context.Context, symbol string, ref OrderRef) (*models.Order, error) {
	order, err := Call(ctx, t.policy, "get_order", func(ctx context.Context) (*models.Order, error) {
		return t.ex.GetOrder(ctx, symbol, ref)
	})
	if IsKind(err, KindNotFound) {
		return nil, nil
	}
	return order, err
}

func (t *Trader) GetOpenOrders(ctx context.Context, symbol string) ([]models.Order, error) {
	return Call(ctx, t.policy, "get_open_orders", func(ctx context.Context) ([]models.Order, error) {
		return t.ex.GetOpenOrders(ctx, symbol)
	})
}

// CancelOrder treats an order that is already gone as cancelled.
func (t *Trader) CancelOrder(ctx context.Context, symbol string, ref OrderRef) error {
	err := t.policy.Do(ctx, "cancel_order", func(ctx context.Context) error {
		return t.ex.CancelOrder(ctx, symbol, ref)
	})
	if IsKind(err, KindNotFound) {
		t.log(symbol).WithField("order", ref.String()).Debug("order already gone")
		return nil
	}
	if err != nil {
		return err
	}

	t.log(symbol).WithField("order", ref.String()).Info("order cancelled")
	return nil
}

func (t *Trader) CancelAllOrders(ctx context.Context, symbol string) error {
	err := t.policy.Do(ctx, "cancel_all_orders", func(ctx context.Context) error {
		return t.ex.CancelAllOrders(ctx, symbol)
	})
	if err != nil {
		return err
	}

	t.log(symbol).Info("all orders cancelled")
	return nil
}

// GetKlines also serves 2m bars, built from pairs of 1m bars aligned to even
// minutes.
func (t *Trader) GetKlines(ctx context.Context, q KlineQuery) (models.Candles, error) {
	if q.Interval != "2m" {
		return Call(ctx, t.policy, "get_klines", func(ctx context.Context) (models.Candles, error) {
			return t.ex.GetKlines(ctx, q)
		})
	}

	limit := q.Limit
	inner := q
	inner.Interval = "1m"
	if limit > 0 {
		inner.Limit = limit*2 + 1
	}

	candles, err := Call(ctx, t.policy, "get_klines", func(ctx context.Context) (models.Candles, error) {
		return t.ex.GetKlines(ctx, inner)
	})
	if err != nil {
		return nil, err
	}

	for len(candles) > 0 && (candles[0].OpenTime/time.Minute.Milliseconds())%2 != 0 {
		candles = candles[1:]
	}
	grouped := candles.Group(2)
	if limit > 0 {
		grouped = grouped.Tail(limit)
	}
	return grouped, nil
}

func (t *Trader) GetBookTicker(ctx context.Context, symbol string) (models.BookTicker, error) {
	return Call(ctx, t.policy, "get_book_ticker", func(ctx context.Context) (models.BookTicker, error) {
		return t.ex.GetBookTicker(ctx, symbol)
	})
}

func (t *Trader) GetOrderBook(ctx context.Context, symbol string, limit int) (models.OrderBook, error) {
	return Call(ctx, t.policy, "get_order_book", func(ctx context.Context) (models.OrderBook, error) {
		return t.ex.GetOrderBook(ctx, symbol, limit)
	})
}

func (t *Trader) GetBalance(ctx context.Context) (decimal.Decimal, error) {
	return Call(ctx, t.policy, "get_balance", t.ex.GetBalance)
}

func (t *Trader) GetTotalBalance(ctx context.Context) (decimal.Decimal, error) {
	return Call(ctx, t.policy, "get_total_balance", t.ex.GetTotalBalance)
}

func (t *Trader) ChangeLeverage(ctx context.Context, symbol string, leverage int) error {
	err := t.policy.Do(ctx, "change_leverage", func(ctx context.Context) error {
		return t.ex.ChangeLeverage(ctx, symbol, leverage)
	})
	if err != nil {
		return err
	}

	t.log(symbol).WithField("leverage", leverage).Info("leverage changed")
	return nil
}

// PlaceOrder submits req as one retried call. A duplicate client id means an
// earlier attempt was accepted, so that order is looked up and returned. An
// invalid order returns nil, nil. A stop loss that would trigger at once
// closes the position at market instead.
func (t *Trader) PlaceOrder(ctx context.Context, req OrderRequest) (*models.Order, error) {
	order, err := Call(ctx, t.policy, "place_order", func(ctx context.Context) (*models.Order, error) {
		order, err := t.ex.PlaceOrder(ctx, req)
		if IsKind(err, KindDuplicateOrder) {
			t.log(req.Symbol).
				WithField("client_order_id", req.ClientOrderID).
				Warn("duplicate order, recovering accepted order")
			return t.recoverDuplicate(ctx, req)
		}
		return order, err
	})

	switch {
	case err == nil:
	case IsKind(err, KindInvalidOrder):
		t.log(req.Symbol).
			WithField("side", req.Side).
			WithField("type", req.Type).
			WithError(err).
			Warn("order rejected, skipping")
		return nil, nil
	case IsKind(err, KindImmediateTrigger) && req.IsStopLoss():
		t.log(req.Symbol).
			WithField("stop", req.StopPrice.String()).
			Error("stop loss would trigger immediately, closing at market")
		return t.MarketClose(ctx, req.Symbol)
	default:
		return nil, errors.Wrapf(err, "place %s %s %s", req.Symbol, req.Side, req.Type)
	}

	if order != nil {
		t.log(req.Symbol).
			WithField("side", req.Side).
			WithField("type", req.Type).
			WithField("price", req.Price.String()).
			WithField("stop", req.StopPrice.String()).
			WithField("qty", req.Quantity.String()).
			WithField("reduce_only", req.ReduceOnly).
			WithField("order_id", order.OrderID).
			Info("order placed")
	}
	return order, nil
}

// recoverDuplicate finds the accepted twin of req among the open orders: a
// limit order by side, or a reduce only stop market by side.
func (t *Trader) recoverDuplicate(ctx context.Context, req OrderRequest) (*models.Order, error) {
	open, err := t.ex.GetOpenOrders(ctx, req.Symbol)
	if err != nil {
		return nil, err
	}

	for i := range open {
		o := open[i]
		if o.Side != req.Side {
			continue
		}
		if req.IsStopLoss() {
			if o.Type == models.OrderTypeStopMarket && o.ReduceOnly {
				return &o, nil
			}
			continue
		}
		if o.Type == models.OrderTypeLimit {
			return &o, nil
		}
	}
	return nil, nil
}

// ClientOrderID builds prefix+symbol+unix nanos, falling back to a uuid
// suffix where the exchange limits id length.
func (t *Trader) ClientOrderID(prefix, symbol string) string {
	id := prefix + symbol + strconv.FormatInt(t.now().UnixNano(), 10)

	limit, ok := clientIDLimits[t.ex.Name()]
	if !ok || len(id) <= limit {
		return id
	}

	short := strings.ReplaceAll(uuid.NewString(), "-", "")
	id = prefix + short
	if len(id) > limit {
		id = id[:limit]
	}
	return id
}

// LimitOrderRequest sizes a limit order by exactly one of Quantity,
// BalancePercent or FixedBalance.
type LimitOrderRequest struct {
	Symbol string
	Side   models.Side
	Price  decimal.Decimal

	Quantity       decimal.Decimal
	BalancePercent decimal.Decimal
	FixedBalance   decimal.Decimal

	ReduceOnly bool
	PostOnly   bool
	// AtTouch places post only orders at the bid (BUY) or ask (SELL)
	// until one rests, ignoring Price.
	AtTouch bool
	// StopPrice turns the order into a stop limit triggered at StopPrice.
	StopPrice decimal.Decimal

	// AbsoluteMaxUsdPosSize caps the order notional, zero means unlimited.
	AbsoluteMaxUsdPosSize decimal.Decimal
	// VolumeBasedPosSize caps a balance sized order at a share of the last
	// 24h USD volume.
	VolumeBasedPosSize bool
	// Balance avoids a balance request when the caller already has it.
	Balance decimal.Decimal
}

func (r LimitOrderRequest) sizings() int {
	n := 0
	for _, v := range []decimal.Decimal{r.Quantity, r.BalancePercent, r.FixedBalance} {
		if !v.IsZero() {
			n++
		}
	}
	return n
}

func (t *Trader) PlaceLimitOrder(ctx context.Context, req LimitOrderRequest) (*models.Order, error) {
	if req.sizings() != 1 {
		return nil, errors.Wrap(ErrConfiguration, "exactly one of quantity, balance percent or fixed balance is required")
	}

	prec, err := t.Precision(ctx, req.Symbol)
	if err != nil {
		return nil, err
	}

	if req.AtTouch {
		return t.placeAtTouch(ctx, req, prec)
	}

	price := rounding.RoundUp(req.Price, prec.TickSize)
	if req.Side == models.SideBuy {
		price = rounding.RoundDown(req.Price, prec.TickSize)
	}

	qty, err := t.size(ctx, req, price, prec)
	if err != nil {
		return nil, err
	}
	if !qty.IsPositive() {
		t.log(req.Symbol).
			WithField("side", req.Side).
			WithField("price", price.String()).
			Warn("order quantity rounds to zero, skipping")
		return nil, nil
	}

	order := OrderRequest{
		Symbol:        req.Symbol,
		Side:          req.Side,
		Type:          models.OrderTypeLimit,
		Price:         price,
		Quantity:      qty,
		ReduceOnly:    req.ReduceOnly,
		PostOnly:      req.PostOnly,
		ClientOrderID: t.ClientOrderID(string(req.Side), req.Symbol),
	}
	if req.StopPrice.IsPositive() {
		order.Type = models.OrderTypeStop
		order.PostOnly = false
		order.StopPrice = rounding.RoundUp(req.StopPrice, prec.TickSize)
		if req.Side == models.SideSell {
			order.StopPrice = rounding.RoundDown(req.StopPrice, prec.TickSize)
		}
	}

	return t.PlaceOrder(ctx, order)
}

func (t *Trader) size(ctx context.Context, req LimitOrderRequest, price decimal.Decimal, prec normalizer.Precision) (decimal.Decimal, error) {
	if !price.IsPositive() {
		return decimal.Zero, errors.Wrapf(ErrConfiguration, "price %s", price)
	}
	absMax := req.AbsoluteMaxUsdPosSize

	switch {
	case !req.Quantity.IsZero():
		qty := req.Quantity
		if absMax.IsPositive() && qty.Mul(price).GreaterThan(absMax) {
			return rounding.RoundDown(absMax.Div(price), prec.StepSize), nil
		}
		return rounding.RoundNearest(qty, prec.StepSize), nil

	case !req.BalancePercent.IsZero():
		balance := req.Balance
		if balance.IsZero() {
			var err error
			if balance, err = t.GetBalance(ctx); err != nil {
				return decimal.Zero, err
			}
		}

		notional := balance.Mul(req.BalancePercent)
		if absMax.IsPositive() {
			notional = decimal.Min(notional, absMax)
		}
		if req.VolumeBasedPosSize {
			volCap, err := t.VolumeBasedMaxPosSize(ctx, req.Symbol)
			if err != nil {
				return decimal.Zero, err
			}
			notional = decimal.Min(notional, volCap)
		}
		return rounding.RoundDown(notional.Div(price), prec.StepSize), nil

	default:
		notional := req.FixedBalance
		if absMax.IsPositive() {
			notional = decimal.Min(notional, absMax)
		}
		return rounding.RoundDown(notional.Div(price), prec.StepSize), nil
	}
}

// placeAtTouch keeps placing post only orders at the touch while they are
// rejected for crossing the book.
func (t *Trader) placeAtTouch(ctx context.Context, req LimitOrderRequest, prec normalizer.Precision) (*models.Order, error) {
	for attempt := 1; attempt <= bidAskMaxAttempts; attempt++ {
		ticker, err := t.GetBookTicker(ctx, req.Symbol)
		if err != nil {
			return nil, err
		}

		price := ticker.AskPrice
		if req.Side == models.SideBuy {
			price = ticker.BidPrice
		}

		qty, err := t.size(ctx, req, price, prec)
		if err != nil {
			return nil, err
		}
		if !qty.IsPositive() {
			return nil, nil
		}

		order, err := t.PlaceOrder(ctx, OrderRequest{
			Symbol:        req.Symbol,
			Side:          req.Side,
			Type:          models.OrderTypeLimit,
			Price:         price,
			Quantity:      qty,
			ReduceOnly:    req.ReduceOnly,
			PostOnly:      true,
			ClientOrderID: t.ClientOrderID(string(req.Side), req.Symbol),
		})
		if err != nil || order == nil {
			return order, err
		}

		// Post only rejections may show up on the next read only.
		if order.Status == models.OrderStatusNew {
			if fresh, err := t.GetOrder(ctx, req.Symbol, RefOf(order)); err == nil && fresh != nil {
				order = fresh
			}
		}
		if order.Status != models.OrderStatusExpired && order.Status != models.OrderStatusCancelled {
			return order, nil
		}

		t.log(req.Symbol).
			WithField("attempt", attempt).
			WithField("price", price.String()).
			Debug("post only order at touch rejected, retrying")
	}

	return nil, errors.Errorf("%s: no post only order rested after %d attempts", req.Symbol, bidAskMaxAttempts)
}

// PlaceStopMarket places a reduce only stop market for the position side the
// order closes: SELL stops protect longs, BUY stops protect shorts.
func (t *Trader) PlaceStopMarket(ctx context.Context, symbol string, side models.Side, stop, qty decimal.Decimal) (*models.Order, error) {
	prec, err := t.Precision(ctx, symbol)
	if err != nil {
		return nil, err
	}

	prefix := "LongStopLoss"
	stopPrice := rounding.RoundUp(stop, prec.TickSize)
	if side == models.SideBuy {
		prefix = "ShortStopLoss"
		stopPrice = rounding.RoundDown(stop, prec.TickSize)
	}

	return t.PlaceOrder(ctx, OrderRequest{
		Symbol:        symbol,
		Side:          side,
		Type:          models.OrderTypeStopMarket,
		StopPrice:     stopPrice,
		Quantity:      qty,
		ReduceOnly:    true,
		ClientOrderID: t.ClientOrderID(prefix, symbol),
	})
}

// MarketClose closes the whole position with a reduce only market order. It
// returns nil when already flat.
func (t *Trader) MarketClose(ctx context.Context, symbol string) (*models.Order, error) {
	pos, err := t.GetPosition(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if pos.IsFlat() {
		return nil, nil
	}

	t.log(symbol).
		WithField("qty", pos.PositionAmt.String()).
		Info("closing position at market")

	return t.PlaceOrder(ctx, OrderRequest{
		Symbol:        symbol,
		Side:          pos.Side().Opposite(),
		Type:          models.OrderTypeMarket,
		Quantity:      pos.Size(),
		ReduceOnly:    true,
		ClientOrderID: t.ClientOrderID("Close", symbol),
	})
}

// CloseBestPrice chases the best bid or ask holding at least minValue with a
// reduce only post only order until the position is flat. The last placed
// order is returned.
func (t *Trader) CloseBestPrice(ctx context.Context, symbol string, minValue decimal.Decimal) (*models.Order, error) {
	var (
		last      *models.Order
		lastPrice decimal.Decimal
	)

	for {
		pos, err := t.GetPosition(ctx, symbol)
		if err != nil {
			return last, err
		}
		if pos.IsFlat() {
			t.log(symbol).Info("position closed at best price")
			return last, nil
		}

		book, err := t.GetOrderBook(ctx, symbol, closeBestPriceDepth)
		if err != nil {
			return last, err
		}

		var (
			price decimal.Decimal
			ok    bool
		)
		if pos.IsLong() {
			price, ok = book.AskAtValue(minValue)
		} else {
			price, ok = book.BidAtValue(minValue)
		}
		if !ok {
			return last, errors.Wrapf(ErrNoPrice, "%s close at best price", symbol)
		}

		if !price.Equal(lastPrice) {
			if err := t.CancelAllOrders(ctx, symbol); err != nil {
				return last, err
			}
			order, err := t.PlaceOrder(ctx, OrderRequest{
				Symbol:        symbol,
				Side:          pos.Side().Opposite(),
				Type:          models.OrderTypeLimit,
				Price:         price,
				Quantity:      pos.Size(),
				ReduceOnly:    true,
				PostOnly:      true,
				ClientOrderID: t.ClientOrderID("Close", symbol),
			})
			if err != nil {
				return last, err
			}
			if order != nil {
				last = order
			}
			lastPrice = price
		}

		if err := t.sleep(ctx, closeBestPriceInterval); err != nil {
			return last, err
		}
	}
}

func (t *Trader) OpenOrdersBySide(ctx context.Context, symbol string, side models.Side) ([]models.Order, error) {
	open, err := t.GetOpenOrders(ctx, symbol)
	if err != nil {
		return nil, err
	}

	var out []models.Order
	for _, o := range open {
		if o.Side == side {
			out = append(out, o)
		}
	}
	return out, nil
}

// CancelOpenBuyOrders cancels every open buy order of symbol.
func (t *Trader) CancelOpenBuyOrders(ctx context.Context, symbol string) error {
	return t.cancelSide(ctx, symbol, models.SideBuy)
}

func (t *Trader) CancelOpenSellOrders(ctx context.Context, symbol string) error {
	return t.cancelSide(ctx, symbol, models.SideSell)
}

func (t *Trader) cancelSide(ctx context.Context, symbol string, side models.Side) error {
	open, err := t.OpenOrdersBySide(ctx, symbol, side)
	if err != nil {
		return err
	}
	for i := range open {
		if err := t.CancelOrder(ctx, symbol, RefOf(&open[i])); err != nil {
			return err
		}
	}
	return nil
}

// Last24hUsdVolume sums the USD volume of the last 24 hourly bars.
func (t *Trader) Last24hUsdVolume(ctx context.Context, symbol string) (decimal.Decimal, error) {
	candles, err := t.GetKlines(ctx, KlineQuery{Symbol: symbol, Interval: "1h", Limit: 24})
	if err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for _, c := range candles {
		total = total.Add(c.USDVolume())
	}
	return total, nil
}

// AverageDailyVolume averages the USD volume of the last days completed
// daily bars.
func (t *Trader) AverageDailyVolume(ctx context.Context, symbol string, days int) (decimal.Decimal, error) {
	if days <= 0 {
		return decimal.Zero, errors.Wrapf(ErrConfiguration, "average daily volume over %d days", days)
	}

	candles, err := t.GetKlines(ctx, KlineQuery{Symbol: symbol, Interval: "1d", Limit: days + 1})
	if err != nil {
		return decimal.Zero, err
	}
	if len(candles) > 0 {
		candles = candles[:len(candles)-1]
	}
	if len(candles) == 0 {
		return decimal.Zero, nil
	}

	total := decimal.Zero
	for _, c := range candles {
		total = total.Add(c.USDVolume())
	}
	return total.Div(decimal.NewFromInt(int64(len(candles)))), nil
}

// AbnormalVolume reports whether the last 24h USD volume exceeds the daily
// average of the previous days by more than multiplier.
func (t *Trader) AbnormalVolume(ctx context.Context, symbol string, multiplier decimal.Decimal, days int) (bool, error) {
	last, err := t.Last24hUsdVolume(ctx, symbol)
	if err != nil {
		return false, err
	}
	avg, err := t.AverageDailyVolume(ctx, symbol, days)
	if err != nil {
		return false, err
	}

	abnormal := avg.IsPositive() && last.GreaterThan(avg.Mul(multiplier))
	if abnormal {
		t.log(symbol).
			WithField("last_24h", last.StringFixed(0)).
			WithField("daily_avg", avg.StringFixed(0)).
			Warn("abnormal volume")
	}
	return abnormal, nil
}

func (t *Trader) VolumeBasedMaxPosSize(ctx context.Context, symbol string) (decimal.Decimal, error) {
	vol, err := t.Last24hUsdVolume(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}
	return vol.Mul(decimal.RequireFromString(volumeShareLimit)), nil
}

// MaxUnrealisedLossPct is the worst adverse excursion in percent of a
// position opened at entry on start, from 1m bars up to now.
func (t *Trader) MaxUnrealisedLossPct(ctx context.Context, symbol string, side models.Side, entry decimal.Decimal, start time.Time) (decimal.Decimal, error) {
	if !entry.IsPositive() {
		return decimal.Zero, nil
	}

	end := t.now().Add(models.CandleCurrentTolerance)
	minutes := int(end.Sub(start)/time.Minute) + 1
	if minutes > maxKlinesPerRequest {
		minutes = maxKlinesPerRequest
	}

	candles, err := t.GetKlines(ctx, KlineQuery{
		Symbol:   symbol,
		Interval: "1m",
		Limit:    minutes,
		Start:    start,
		End:      end,
	})
	if err != nil {
		return decimal.Zero, err
	}
	if len(candles) == 0 {
		return decimal.Zero, nil
	}

	hundred := decimal.NewFromInt(100)
	one := decimal.NewFromInt(1)

	if side == models.SideBuy {
		lowest := candles.Lowest(len(candles))
		if lowest.GreaterThanOrEqual(entry) {
			return decimal.Zero, nil
		}
		return one.Sub(lowest.Div(entry)).Mul(hundred), nil
	}

	highest := candles.Highest(len(candles))
	if highest.LessThanOrEqual(entry) {
		return decimal.Zero, nil
	}
	return highest.Div(entry).Sub(one).Mul(hundred), nil
}
