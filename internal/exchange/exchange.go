package exchange

import (
	"context"
	"time"

	"flushbot/internal/normalizer"
	"flushbot/models"

	"github.com/shopspring/decimal"
)

//go:generate mockery --case=snake --name=Exchange

// Exchange is one futures venue. Symbols are in the venue's own notation
// (BTCUSDT, BTC-USDT-SWAP, BTC_USDT). Quantities are in base units; adapters
// trading in contracts convert on the way in and out.
type Exchange interface {
	Name() string
	Precision(ctx context.Context, symbol string) (normalizer.Precision, error)

	// GetPosition returns the zero position when flat.
	GetPosition(ctx context.Context, symbol string) (models.Position, error)
	// GetPositions returns only non flat positions.
	GetPositions(ctx context.Context) ([]models.Position, error)

	PlaceOrder(ctx context.Context, req OrderRequest) (*models.Order, error)
	// GetOrder returns nil, nil when the order does not exist.
	GetOrder(ctx context.Context, symbol string, ref OrderRef) (*models.Order, error)
	GetOpenOrders(ctx context.Context, symbol string) ([]models.Order, error)
	CancelOrder(ctx context.Context, symbol string, ref OrderRef) error
	CancelAllOrders(ctx context.Context, symbol string) error

	GetKlines(ctx context.Context, q KlineQuery) (models.Candles, error)
	GetBookTicker(ctx context.Context, symbol string) (models.BookTicker, error)
	GetOrderBook(ctx context.Context, symbol string, limit int) (models.OrderBook, error)

	// GetBalance is the available USDT margin, GetTotalBalance the wallet
	// balance including unrealised pnl.
	GetBalance(ctx context.Context) (decimal.Decimal, error)
	GetTotalBalance(ctx context.Context) (decimal.Decimal, error)

	ChangeLeverage(ctx context.Context, symbol string, leverage int) error
}

// Rotator is implemented by adapters with alternate base URLs.
type Rotator interface {
	Rotate()
}

type OrderRequest struct {
	Symbol        string
	Side          models.Side
	Type          models.OrderType
	Price         decimal.Decimal
	StopPrice     decimal.Decimal
	Quantity      decimal.Decimal
	ReduceOnly    bool
	PostOnly      bool
	ClientOrderID string
}

func (r OrderRequest) IsStopLoss() bool {
	return r.ReduceOnly && r.Type == models.OrderTypeStopMarket
}

// OrderRef identifies an order by exchange id or client id. OrderID wins
// when both are set.
type OrderRef struct {
	OrderID       string
	ClientOrderID string
}

func RefOf(o *models.Order) OrderRef {
	return OrderRef{OrderID: o.OrderID, ClientOrderID: o.ClientOrderID}
}

func (r OrderRef) String() string {
	if r.OrderID != "" {
		return r.OrderID
	}
	return r.ClientOrderID
}

// KlineQuery asks for Limit candles ending at End (or now). Start and End
// are optional.
type KlineQuery struct {
	Symbol   string
	Interval string
	Limit    int
	Start    time.Time
	End      time.Time
}

type Credentials struct {
	APIKey     string
	APISecret  string
	Passphrase string
	URLs       []string
}

func bookTickerFromBook(symbol string, book models.OrderBook) (models.BookTicker, error) {
	if len(book.Bids) == 0 || len(book.Asks) == 0 {
		return models.BookTicker{}, ErrNoPrice
	}
	return models.BookTicker{
		Symbol:   symbol,
		BidPrice: book.Bids[0].Price,
		BidQty:   book.Bids[0].Qty,
		AskPrice: book.Asks[0].Price,
		AskQty:   book.Asks[0].Qty,
	}, nil
}

// accepted is the order as submitted, for exchanges that acknowledge a new
// order with its id only.
func accepted(req OrderRequest, orderID string, now time.Time) *models.Order {
	return &models.Order{
		OrderID:       orderID,
		ClientOrderID: req.ClientOrderID,
		Symbol:        req.Symbol,
		Price:         req.Price,
		StopPrice:     req.StopPrice,
		Side:          req.Side,
		Type:          req.Type,
		Status:        models.OrderStatusNew,
		ReduceOnly:    req.ReduceOnly,
		OrigQty:       req.Quantity,
		ExecutedQty:   decimal.Zero,
		AvgPrice:      decimal.Zero,
		UpdateTime:    now,
	}
}
