package normalizer

import (
	"flushbot/internal/rounding"
	"flushbot/models"
	"strconv"

	"github.com/shopspring/decimal"
)

var bybitStatuses = map[string]models.OrderStatus{
	"Created":                 models.OrderStatusNew,
	"New":                     models.OrderStatusNew,
	"Untriggered":             models.OrderStatusNew,
	"PendingCancel":           models.OrderStatusNew,
	"PartiallyFilled":         models.OrderStatusPartiallyFilled,
	"Filled":                  models.OrderStatusFilled,
	"Triggered":               models.OrderStatusFilled,
	"Cancelled":               models.OrderStatusCancelled,
	"Deactivated":             models.OrderStatusCancelled,
	"PartiallyFilledCanceled": models.OrderStatusCancelled,
	"Rejected":                models.OrderStatusExpired,
}

// BybitOrder is an order of the v5 API (REST and private stream share it).
type BybitOrder struct {
	OrderID       string `json:"orderId"`
	OrderLinkID   string `json:"orderLinkId"`
	Symbol        string `json:"symbol"`
	Price         string `json:"price"`
	Qty           string `json:"qty"`
	Side          string `json:"side"`
	OrderType     string `json:"orderType"`
	OrderStatus   string `json:"orderStatus"`
	ReduceOnly    bool   `json:"reduceOnly"`
	CumExecQty    string `json:"cumExecQty"`
	CumExecValue  string `json:"cumExecValue"`
	TriggerPrice  string `json:"triggerPrice"`
	StopOrderType string `json:"stopOrderType"`
	UpdatedTime   string `json:"updatedTime"`
}

type BybitPosition struct {
	Symbol        string `json:"symbol"`
	Side          string `json:"side"`
	Size          string `json:"size"`
	AvgPrice      string `json:"avgPrice"`
	UnrealisedPnl string `json:"unrealisedPnl"`
}

func BybitOrderToModel(o *BybitOrder, precisions PrecisionLookup) (*models.Order, error) {
	if o == nil {
		return nil, nil
	}

	status, ok := bybitStatuses[o.OrderStatus]
	if !ok {
		return nil, unmapped(Bybit, "orderStatus", o.OrderStatus)
	}

	side, err := lowerSide(Bybit, o.Side)
	if err != nil {
		return nil, err
	}

	trigger := dec(o.TriggerPrice)
	var ordType models.OrderType
	switch o.OrderType {
	case "Market":
		ordType = models.OrderTypeMarket
		if trigger.IsPositive() {
			ordType = models.OrderTypeStopMarket
		}
	case "Limit":
		ordType = models.OrderTypeLimit
		if trigger.IsPositive() {
			ordType = models.OrderTypeStop
		}
	default:
		return nil, unmapped(Bybit, "orderType", o.OrderType)
	}

	p, err := lookup(Bybit, precisions, o.Symbol)
	if err != nil {
		return nil, err
	}

	executed := dec(o.CumExecQty)
	avg := decimal.Zero
	if executed.IsPositive() {
		avg = rounding.RoundNearest(dec(o.CumExecValue).Div(executed), p.TickSize)
	}

	out := &models.Order{
		ClientOrderID: o.OrderLinkID,
		OrderID:       o.OrderID,
		Symbol:        o.Symbol,
		Price:         dec(o.Price),
		StopPrice:     trigger,
		Side:          side,
		Type:          ordType,
		Status:        status,
		ReduceOnly:    o.ReduceOnly,
		OrigQty:       dec(o.Qty),
		AvgPrice:      avg,
		ExecutedQty:   executed,
	}
	if ms, err := strconv.ParseInt(o.UpdatedTime, 10, 64); err == nil {
		out.UpdateTime = millis(ms)
	}

	return finish(out), nil
}

// BybitPositionToModel treats an empty or zero size row as flat.
func BybitPositionToModel(rows []BybitPosition, symbol string) (models.Position, error) {
	for _, row := range rows {
		size := dec(row.Size)
		if row.Symbol != symbol || size.IsZero() {
			continue
		}

		amt := size.Abs()
		switch row.Side {
		case "Buy":
		case "Sell":
			amt = amt.Neg()
		default:
			return models.Position{}, unmapped(Bybit, "position side", row.Side)
		}

		return models.Position{
			Symbol:           row.Symbol,
			EntryPrice:       dec(row.AvgPrice),
			PositionAmt:      amt,
			UnRealizedProfit: dec(row.UnrealisedPnl),
		}, nil
	}

	return models.ZeroPosition(symbol), nil
}

// BybitCandle parses one [start, open, high, low, close, volume, turnover] row.
func BybitCandle(row []string, interval string) (models.Candle, error) {
	if len(row) < 6 {
		return models.Candle{}, unmapped(Bybit, "kline", len(row))
	}

	d, err := IntervalDuration(interval)
	if err != nil {
		return models.Candle{}, err
	}

	open, err := strconv.ParseInt(row[0], 10, 64)
	if err != nil {
		return models.Candle{}, unmapped(Bybit, "kline start", row[0])
	}

	c := models.Candle{
		OpenTime:  open,
		Open:      dec(row[1]),
		High:      dec(row[2]),
		Low:       dec(row[3]),
		Close:     dec(row[4]),
		Volume:    dec(row[5]),
		CloseTime: open + d.Milliseconds() - 1,
	}
	if len(row) > 6 {
		c.VolumeUSD = dec(row[6])
	}

	return c, nil
}
