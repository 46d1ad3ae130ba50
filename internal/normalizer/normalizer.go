package normalizer

import (
	"flushbot/models"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Binance = "BINANCE"
	OKX     = "OKX"
	Bybit   = "BYBIT"
	Gate    = "GATE"
	MEXC    = "MEXC"
	Phemex  = "PHEMEX"
	BingX   = "BINGX"
)

// Precision describes how a symbol is quoted on an exchange. ContractSize is
// the base quantity of one contract; exchanges that trade in base units use 1.
type Precision struct {
	Symbol       string
	TickSize     decimal.Decimal
	StepSize     decimal.Decimal
	ContractSize decimal.Decimal
}

func (p Precision) contracts() decimal.Decimal {
	if p.ContractSize.IsZero() {
		return decimal.NewFromInt(1)
	}
	return p.ContractSize
}

// ToBase converts an exchange quantity (contracts) to base units.
func (p Precision) ToBase(qty decimal.Decimal) decimal.Decimal {
	return qty.Mul(p.contracts())
}

// ToContracts converts base units to whole contracts, rounding down.
func (p Precision) ToContracts(qty decimal.Decimal) decimal.Decimal {
	return qty.Div(p.contracts()).Floor()
}

// PrecisionLookup resolves the precision of a symbol already known to the
// caller. It never performs I/O.
type PrecisionLookup func(symbol string) (Precision, bool)

// Static is a PrecisionLookup over a fixed map.
func Static(m map[string]Precision) PrecisionLookup {
	return func(symbol string) (Precision, bool) {
		p, ok := m[symbol]
		return p, ok
	}
}

type UnmappedStatusError struct {
	Exchange string
	Field    string
	Value    string
}

func (e *UnmappedStatusError) Error() string {
	return fmt.Sprintf("%s: unmapped %s %q", e.Exchange, e.Field, e.Value)
}

func unmapped(exchange, field string, value interface{}) error {
	return &UnmappedStatusError{Exchange: exchange, Field: field, Value: fmt.Sprint(value)}
}

// UnknownSymbolError is returned when the lookup has no precision for a symbol.
type UnknownSymbolError struct {
	Exchange string
	Symbol   string
}

func (e *UnknownSymbolError) Error() string {
	return fmt.Sprintf("%s: no precision for %s", e.Exchange, e.Symbol)
}

func lookup(exchange string, precisions PrecisionLookup, symbol string) (Precision, error) {
	if precisions == nil {
		return Precision{Symbol: symbol}, nil
	}
	p, ok := precisions(symbol)
	if !ok {
		return Precision{}, &UnknownSymbolError{Exchange: exchange, Symbol: symbol}
	}
	return p, nil
}

func finish(o *models.Order) *models.Order {
	o.OrigQty = o.OrigQty.Abs()
	o.ExecutedQty = o.ExecutedQty.Abs()
	o.Reconcile()
	live := o.Status == models.OrderStatusNew || o.Status == models.OrderStatusPartiallyFilled
	if live && o.OrigQty.IsPositive() && o.ExecutedQty.Equal(o.OrigQty) {
		o.Status = models.OrderStatusFilled
	}
	// Triggered conditional orders report FILLED without an execution of their own.
	if o.Status == models.OrderStatusFilled {
		o.ExecutedQty = o.OrigQty
	}
	return o
}

func dec(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func millis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
