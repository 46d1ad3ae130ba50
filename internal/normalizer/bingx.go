package normalizer

import (
	"flushbot/internal/rounding"
	"flushbot/models"
	"strings"

	"github.com/shopspring/decimal"
)

var bingxStatuses = map[string]models.OrderStatus{
	"PENDING":         models.OrderStatusNew,
	"NEW":             models.OrderStatusNew,
	"PARTIALLYFILLED": models.OrderStatusPartiallyFilled,
	"FILLED":          models.OrderStatusFilled,
	"CANCELLED":       models.OrderStatusCancelled,
	"CANCELED":        models.OrderStatusCancelled,
	"FAILED":          models.OrderStatusExpired,
	"EXPIRED":         models.OrderStatusExpired,
}

var bingxTypes = map[string]models.OrderType{
	"LIMIT":              models.OrderTypeLimit,
	"MARKET":             models.OrderTypeMarket,
	"STOP":               models.OrderTypeStop,
	"TAKE_PROFIT":        models.OrderTypeStop,
	"STOP_MARKET":        models.OrderTypeStopMarket,
	"TAKE_PROFIT_MARKET": models.OrderTypeStopMarket,
	"TRIGGER_LIMIT":      models.OrderTypeStop,
	"TRIGGER_MARKET":     models.OrderTypeStopMarket,
}

// BingXOrder is an order of the swap v2 API.
type BingXOrder struct {
	OrderID       decimal.Decimal `json:"orderId"`
	ClientOrderID string          `json:"clientOrderId"`
	Symbol        string          `json:"symbol"`
	Side          string          `json:"side"`
	PositionSide  string          `json:"positionSide"`
	Type          string          `json:"type"`
	Status        string          `json:"status"`
	Price         decimal.Decimal `json:"price"`
	StopPrice     decimal.Decimal `json:"stopPrice"`
	OrigQty       decimal.Decimal `json:"origQty"`
	ExecutedQty   decimal.Decimal `json:"executedQty"`
	AvgPrice      decimal.Decimal `json:"avgPrice"`
	ReduceOnly    bool            `json:"reduceOnly"`
	UpdateTime    int64           `json:"updateTime"`
}

type BingXPosition struct {
	Symbol           string          `json:"symbol"`
	PositionSide     string          `json:"positionSide"`
	PositionAmt      decimal.Decimal `json:"positionAmt"`
	AvgPrice         decimal.Decimal `json:"avgPrice"`
	UnrealizedProfit decimal.Decimal `json:"unrealizedProfit"`
}

type BingXCandle struct {
	Open   decimal.Decimal `json:"open"`
	Close  decimal.Decimal `json:"close"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Volume decimal.Decimal `json:"volume"`
	Time   int64           `json:"time"`
}

func bingxStatusKey(s string) string {
	return strings.ReplaceAll(strings.ToUpper(s), "_", "")
}

// BingXOrderToModel: in one-way mode positionSide is BOTH and the reduce-only
// flag is echoed; in hedge mode a BUY on SHORT or SELL on LONG closes.
func BingXOrderToModel(o *BingXOrder, symbol string) (*models.Order, error) {
	if o == nil {
		return nil, nil
	}

	status, ok := bingxStatuses[bingxStatusKey(o.Status)]
	if !ok {
		return nil, unmapped(BingX, "status", o.Status)
	}

	ordType, ok := bingxTypes[strings.ToUpper(o.Type)]
	if !ok {
		return nil, unmapped(BingX, "type", o.Type)
	}

	side, err := lowerSide(BingX, o.Side)
	if err != nil {
		return nil, err
	}

	if o.Symbol != "" {
		symbol = o.Symbol
	}

	reduceOnly := o.ReduceOnly
	switch strings.ToUpper(o.PositionSide) {
	case "LONG":
		reduceOnly = side == models.SideSell
	case "SHORT":
		reduceOnly = side == models.SideBuy
	}

	return finish(&models.Order{
		ClientOrderID: o.ClientOrderID,
		OrderID:       o.OrderID.String(),
		Symbol:        symbol,
		Price:         o.Price,
		StopPrice:     o.StopPrice,
		Side:          side,
		Type:          ordType,
		Status:        status,
		ReduceOnly:    reduceOnly,
		OrigQty:       o.OrigQty,
		AvgPrice:      o.AvgPrice,
		ExecutedQty:   o.ExecutedQty,
		UpdateTime:    millis(o.UpdateTime),
	}), nil
}

func BingXPositionToModel(rows []BingXPosition, symbol string, precisions PrecisionLookup) (models.Position, error) {
	for _, row := range rows {
		if row.Symbol != symbol || row.PositionAmt.IsZero() {
			continue
		}

		p, err := lookup(BingX, precisions, row.Symbol)
		if err != nil {
			return models.Position{}, err
		}

		amt := rounding.RoundNearest(row.PositionAmt.Abs(), p.StepSize)
		switch strings.ToUpper(row.PositionSide) {
		case "LONG":
		case "SHORT":
			amt = amt.Neg()
		case "BOTH":
			if row.PositionAmt.IsNegative() {
				amt = amt.Neg()
			}
		default:
			return models.Position{}, unmapped(BingX, "positionSide", row.PositionSide)
		}

		entry := rounding.RoundNearest(row.AvgPrice, p.TickSize)

		return models.Position{
			Symbol:           row.Symbol,
			EntryPrice:       entry,
			PositionAmt:      amt,
			UnRealizedProfit: row.UnrealizedProfit,
		}, nil
	}

	return models.ZeroPosition(symbol), nil
}

func BingXCandleToModel(c BingXCandle, interval string) (models.Candle, error) {
	d, err := IntervalDuration(interval)
	if err != nil {
		return models.Candle{}, err
	}

	return models.Candle{
		OpenTime:  c.Time,
		Open:      c.Open,
		High:      c.High,
		Low:       c.Low,
		Close:     c.Close,
		Volume:    c.Volume,
		CloseTime: c.Time + d.Milliseconds() - 1,
	}, nil
}
