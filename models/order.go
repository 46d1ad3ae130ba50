package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

type OrderType string

const (
	OrderTypeMarket     OrderType = "MARKET"
	OrderTypeLimit      OrderType = "LIMIT"
	OrderTypeStop       OrderType = "STOP"
	OrderTypeStopMarket OrderType = "STOP_MARKET"
)

type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "NEW"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCancelled       OrderStatus = "CANCELLED"
	OrderStatusExpired         OrderStatus = "EXPIRED"
)

// Order is the exchange independent view of a futures order.
type Order struct {
	ClientOrderID string          `json:"clientOrderId"`
	OrderID       string          `json:"orderId"`
	Symbol        string          `json:"symbol"`
	Price         decimal.Decimal `json:"price"`
	StopPrice     decimal.Decimal `json:"stopPrice"`
	Side          Side            `json:"side"`
	Type          OrderType       `json:"type"`
	Status        OrderStatus     `json:"status"`
	ReduceOnly    bool            `json:"reduceOnly"`
	OrigQty       decimal.Decimal `json:"origQty"`
	AvgPrice      decimal.Decimal `json:"avgPrice"`
	ExecutedQty   decimal.Decimal `json:"executedQty"`
	UpdateTime    time.Time       `json:"updateTime"`
}

func (o *Order) Remaining() decimal.Decimal {
	return o.OrigQty.Sub(o.ExecutedQty)
}

func (o *Order) IsTerminal() bool {
	switch o.Status {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusExpired:
		return true
	default:
		return false
	}
}

func (o *Order) IsFilled() bool {
	return o.Status == OrderStatusFilled
}

func (o *Order) IsPartiallyFilled() bool {
	return o.Status == OrderStatusPartiallyFilled
}

func (o *Order) IsFilledAny() bool {
	return o.IsFilled() || o.IsPartiallyFilled()
}

// IsStopLoss reports a reduce only stop market order.
func (o *Order) IsStopLoss() bool {
	return o.ReduceOnly && o.Type == OrderTypeStopMarket
}

// Reconcile upgrades NEW to PARTIALLY_FILLED when some quantity already executed.
func (o *Order) Reconcile() {
	if o.Status == OrderStatusNew && o.ExecutedQty.IsPositive() && o.ExecutedQty.LessThan(o.OrigQty) {
		o.Status = OrderStatusPartiallyFilled
	}
}

func (o *Order) Validate() error {
	if o.ExecutedQty.IsNegative() || o.ExecutedQty.GreaterThan(o.OrigQty) {
		return fmt.Errorf("order %s: executed %s outside [0, %s]", o.OrderID, o.ExecutedQty, o.OrigQty)
	}

	// Cancelled and expired orders may keep a partial execution.
	partial := o.ExecutedQty.IsPositive() && o.ExecutedQty.LessThan(o.OrigQty)
	if (o.Status == OrderStatusPartiallyFilled && !partial) || (o.Status == OrderStatusNew && !o.ExecutedQty.IsZero()) {
		return fmt.Errorf("order %s: status %s with executed %s of %s", o.OrderID, o.Status, o.ExecutedQty, o.OrigQty)
	}

	if o.Status == OrderStatusFilled && !o.ExecutedQty.Equal(o.OrigQty) {
		return fmt.Errorf("order %s: FILLED with executed %s of %s", o.OrderID, o.ExecutedQty, o.OrigQty)
	}

	return nil
}

func (o *Order) String() string {
	return fmt.Sprintf("%s %s %s %s price %s qty %s/%s reduceOnly %t id %s",
		o.Symbol,
		o.Side,
		o.Type,
		o.Status,
		o.Price,
		o.ExecutedQty,
		o.OrigQty,
		o.ReduceOnly,
		o.OrderID,
	)
}
