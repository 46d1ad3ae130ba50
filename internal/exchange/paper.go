package exchange

import (
	"context"
	"sync"
	"time"

	"flushbot/internal/normalizer"
	"flushbot/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Paper is an in-memory exchange for dry runs and tests. Market orders fill
// at the book, limit orders fill when SetPrice crosses them and stop orders
// trigger the same way. Prices and candles come from the caller or from a
// live Exchange set as Source.
type Paper struct {
	// Source, when set, answers the market data calls.
	Source Exchange

	mu        sync.Mutex
	name      string
	precision normalizer.Precision
	balance   decimal.Decimal
	leverage  map[string]int
	prices    map[string]decimal.Decimal
	candles   map[string]models.Candles
	positions map[string]models.Position
	orders    map[string]*models.Order
	now       func() time.Time
}

func NewPaper(name string, balance decimal.Decimal, precision normalizer.Precision) *Paper {
	return &Paper{
		name:      name,
		precision: precision,
		balance:   balance,
		leverage:  map[string]int{},
		prices:    map[string]decimal.Decimal{},
		candles:   map[string]models.Candles{},
		positions: map[string]models.Position{},
		orders:    map[string]*models.Order{},
		now:       time.Now,
	}
}

func (p *Paper) Name() string {
	return p.name
}

func (p *Paper) Precision(ctx context.Context, symbol string) (normalizer.Precision, error) {
	if p.Source != nil {
		return p.Source.Precision(ctx, symbol)
	}
	prec := p.precision
	prec.Symbol = symbol
	return prec, nil
}

// SetPrice moves the last price and fills every order it crosses.
func (p *Paper) SetPrice(symbol string, price decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.prices[symbol] = price
	p.match(symbol, price)
}

func (p *Paper) SetCandles(symbol string, candles models.Candles) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.candles[symbol] = candles
	if last, ok := candles.Last(); ok {
		p.prices[symbol] = last.Close
	}
}

func (p *Paper) SetPosition(pos models.Position) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.positions[pos.Symbol] = pos
}

func (p *Paper) price(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if p.Source != nil {
		t, err := p.Source.GetBookTicker(ctx, symbol)
		if err != nil {
			return decimal.Zero, err
		}
		return t.BidPrice.Add(t.AskPrice).Div(decimal.NewFromInt(2)), nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	price, ok := p.prices[symbol]
	if !ok {
		return decimal.Zero, ErrNoPrice
	}
	return price, nil
}

// match fills resting orders crossed by price. Callers hold mu.
func (p *Paper) match(symbol string, price decimal.Decimal) {
	for _, o := range p.orders {
		if o.Symbol != symbol || o.IsTerminal() {
			continue
		}

		switch o.Type {
		case models.OrderTypeLimit:
			if (o.Side == models.SideBuy && price.LessThanOrEqual(o.Price)) ||
				(o.Side == models.SideSell && price.GreaterThanOrEqual(o.Price)) {
				p.fill(o, o.Price)
			}
		case models.OrderTypeStop, models.OrderTypeStopMarket:
			if (o.Side == models.SideBuy && price.GreaterThanOrEqual(o.StopPrice)) ||
				(o.Side == models.SideSell && price.LessThanOrEqual(o.StopPrice)) {
				p.fill(o, o.StopPrice)
			}
		}
	}
}

// fill executes the order at price and applies it to the position. A reduce
// only order is cut to the position size. Callers hold mu.
func (p *Paper) fill(o *models.Order, price decimal.Decimal) {
	pos, ok := p.positions[o.Symbol]
	if !ok {
		pos = models.ZeroPosition(o.Symbol)
	}

	qty := o.Remaining()
	if o.ReduceOnly {
		if pos.IsFlat() || pos.Side() == o.Side {
			o.Status = models.OrderStatusExpired
			o.UpdateTime = p.now()
			return
		}
		qty = decimal.Min(qty, pos.Size())
	}

	signed := qty
	if o.Side == models.SideSell {
		signed = qty.Neg()
	}

	amt := pos.PositionAmt.Add(signed)
	switch {
	case amt.IsZero():
		p.balance = p.balance.Add(realised(pos, price, pos.Size()))
		pos = models.ZeroPosition(o.Symbol)
	case pos.IsFlat() || pos.Side() == o.Side:
		notional := pos.EntryPrice.Mul(pos.Size()).Add(price.Mul(qty))
		pos.EntryPrice = notional.Div(amt.Abs())
		pos.PositionAmt = amt
	default:
		closed := decimal.Min(qty, pos.Size())
		p.balance = p.balance.Add(realised(pos, price, closed))
		if amt.Sign() != pos.PositionAmt.Sign() {
			pos.EntryPrice = price
		}
		pos.PositionAmt = amt
	}
	p.positions[o.Symbol] = pos

	prevQty := o.ExecutedQty
	o.ExecutedQty = o.ExecutedQty.Add(qty)
	if o.ExecutedQty.IsPositive() {
		o.AvgPrice = o.AvgPrice.Mul(prevQty).Add(price.Mul(qty)).Div(o.ExecutedQty)
	}
	o.Status = models.OrderStatusFilled
	o.UpdateTime = p.now()
}

func realised(pos models.Position, price, qty decimal.Decimal) decimal.Decimal {
	diff := price.Sub(pos.EntryPrice)
	if pos.IsShort() {
		diff = diff.Neg()
	}
	return diff.Mul(qty)
}

func (p *Paper) GetPosition(_ context.Context, symbol string) (models.Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pos, ok := p.positions[symbol]
	if !ok {
		return models.ZeroPosition(symbol), nil
	}
	return pos, nil
}

func (p *Paper) GetPositions(_ context.Context) ([]models.Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []models.Position
	for _, pos := range p.positions {
		if !pos.IsFlat() {
			out = append(out, pos)
		}
	}
	return out, nil
}

func (p *Paper) PlaceOrder(ctx context.Context, req OrderRequest) (*models.Order, error) {
	if !req.Quantity.IsPositive() {
		return nil, newError(p.name, KindInvalidOrder, "qty", "quantity must be positive")
	}

	price, err := p.price(ctx, req.Symbol)
	if err != nil && req.Type == models.OrderTypeMarket {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if req.ClientOrderID != "" {
		for _, o := range p.orders {
			if o.ClientOrderID == req.ClientOrderID {
				return nil, newError(p.name, KindDuplicateOrder, "dup", "duplicate client order id")
			}
		}
	}

	order := accepted(req, uuid.NewString(), p.now())
	p.orders[order.OrderID] = order

	if price.IsZero() {
		return copyOrder(order), nil
	}

	switch req.Type {
	case models.OrderTypeMarket:
		p.fill(order, price)
	case models.OrderTypeLimit:
		// Resting at the last price is allowed, only a limit through it crosses.
		crosses := (req.Side == models.SideBuy && price.LessThan(req.Price)) ||
			(req.Side == models.SideSell && price.GreaterThan(req.Price))
		if crosses && req.PostOnly {
			order.Status = models.OrderStatusExpired
		} else if crosses {
			p.fill(order, req.Price)
		}
	case models.OrderTypeStop, models.OrderTypeStopMarket:
		triggered := (req.Side == models.SideBuy && price.GreaterThanOrEqual(req.StopPrice)) ||
			(req.Side == models.SideSell && price.LessThanOrEqual(req.StopPrice))
		if triggered {
			delete(p.orders, order.OrderID)
			return nil, newError(p.name, KindImmediateTrigger, "trigger", "order would immediately trigger")
		}
	}

	return copyOrder(order), nil
}

func copyOrder(o *models.Order) *models.Order {
	c := *o
	return &c
}

func (p *Paper) find(ref OrderRef) *models.Order {
	if ref.OrderID != "" {
		return p.orders[ref.OrderID]
	}
	for _, o := range p.orders {
		if o.ClientOrderID == ref.ClientOrderID {
			return o
		}
	}
	return nil
}

func (p *Paper) GetOrder(_ context.Context, _ string, ref OrderRef) (*models.Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	o := p.find(ref)
	if o == nil {
		return nil, nil
	}
	return copyOrder(o), nil
}

func (p *Paper) GetOpenOrders(_ context.Context, symbol string) ([]models.Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []models.Order
	for _, o := range p.orders {
		if o.Symbol == symbol && !o.IsTerminal() {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (p *Paper) CancelOrder(_ context.Context, _ string, ref OrderRef) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	o := p.find(ref)
	if o == nil || o.IsTerminal() {
		return newError(p.name, KindNotFound, "missing", "unknown order "+ref.String())
	}
	o.Status = models.OrderStatusCancelled
	o.UpdateTime = p.now()
	return nil
}

func (p *Paper) CancelAllOrders(_ context.Context, symbol string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, o := range p.orders {
		if o.Symbol == symbol && !o.IsTerminal() {
			o.Status = models.OrderStatusCancelled
			o.UpdateTime = p.now()
		}
	}
	return nil
}

func (p *Paper) GetKlines(ctx context.Context, q KlineQuery) (models.Candles, error) {
	if p.Source != nil {
		return p.Source.GetKlines(ctx, q)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	candles := p.candles[q.Symbol]
	var out models.Candles
	for _, c := range candles {
		if !q.Start.IsZero() && c.OpenTime < q.Start.UnixMilli() {
			continue
		}
		if !q.End.IsZero() && c.OpenTime > q.End.UnixMilli() {
			continue
		}
		out = append(out, c)
	}
	if q.Limit > 0 {
		out = out.Tail(q.Limit)
	}
	return out, nil
}

func (p *Paper) GetBookTicker(ctx context.Context, symbol string) (models.BookTicker, error) {
	if p.Source != nil {
		return p.Source.GetBookTicker(ctx, symbol)
	}

	price, err := p.price(ctx, symbol)
	if err != nil {
		return models.BookTicker{}, err
	}
	return models.BookTicker{Symbol: symbol, BidPrice: price, AskPrice: price}, nil
}

func (p *Paper) GetOrderBook(ctx context.Context, symbol string, limit int) (models.OrderBook, error) {
	if p.Source != nil {
		return p.Source.GetOrderBook(ctx, symbol, limit)
	}

	price, err := p.price(ctx, symbol)
	if err != nil {
		return models.OrderBook{}, err
	}
	depth := decimal.NewFromInt(1_000_000)
	return models.OrderBook{
		Symbol: symbol,
		Bids:   []models.BookLevel{{Price: price, Qty: depth}},
		Asks:   []models.BookLevel{{Price: price, Qty: depth}},
	}, nil
}

func (p *Paper) GetBalance(_ context.Context) (decimal.Decimal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.balance, nil
}

// GetTotalBalance adds the unrealised pnl at the last known prices.
func (p *Paper) GetTotalBalance(_ context.Context) (decimal.Decimal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	total := p.balance
	for symbol, pos := range p.positions {
		if price, ok := p.prices[symbol]; ok && !pos.IsFlat() {
			total = total.Add(realised(pos, price, pos.Size()))
		}
	}
	return total, nil
}

func (p *Paper) ChangeLeverage(_ context.Context, symbol string, leverage int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.leverage[symbol] = leverage
	return nil
}
