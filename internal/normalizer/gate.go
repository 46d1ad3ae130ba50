package normalizer

import (
	"flushbot/models"

	"github.com/shopspring/decimal"
)

var gateFinishedAs = map[string]models.OrderStatus{
	"filled":           models.OrderStatusFilled,
	"cancelled":        models.OrderStatusCancelled,
	"ioc":              models.OrderStatusExpired,
	"reduce_only":      models.OrderStatusExpired,
	"position_closed":  models.OrderStatusExpired,
	"stp":              models.OrderStatusExpired,
	"liquidated":       models.OrderStatusExpired,
	"auto_deleveraged": models.OrderStatusExpired,
	"reduce_out":       models.OrderStatusExpired,
}

var gateTriggerFinishedAs = map[string]models.OrderStatus{
	"succeeded": models.OrderStatusFilled,
	"cancelled": models.OrderStatusCancelled,
	"failed":    models.OrderStatusExpired,
	"expired":   models.OrderStatusExpired,
}

// GateOrder is a futures order of the v4 usdt settle API. Size is signed:
// positive buys, negative sells.
type GateOrder struct {
	ID           int64   `json:"id"`
	Contract     string  `json:"contract"`
	Size         int64   `json:"size"`
	Left         int64   `json:"left"`
	Price        string  `json:"price"`
	FillPrice    string  `json:"fill_price"`
	Status       string  `json:"status"`
	FinishAs     string  `json:"finish_as"`
	Text         string  `json:"text"`
	IsReduceOnly bool    `json:"is_reduce_only"`
	UpdateTime   float64 `json:"update_time"`
}

type GateTriggerOrder struct {
	ID      int64 `json:"id"`
	Initial struct {
		Contract     string `json:"contract"`
		Size         int64  `json:"size"`
		Price        string `json:"price"`
		IsReduceOnly bool   `json:"is_reduce_only"`
	} `json:"initial"`
	Trigger struct {
		Price string `json:"price"`
	} `json:"trigger"`
	Status   string `json:"status"`
	FinishAs string `json:"finish_as"`
}

type GatePosition struct {
	Contract      string `json:"contract"`
	Size          int64  `json:"size"`
	EntryPrice    string `json:"entry_price"`
	UnrealisedPnl string `json:"unrealised_pnl"`
}

type GateCandle struct {
	T   float64 `json:"t"`
	V   int64   `json:"v"`
	C   string  `json:"c"`
	H   string  `json:"h"`
	L   string  `json:"l"`
	O   string  `json:"o"`
	Sum string  `json:"sum"`
}

func gateSide(size int64) models.Side {
	if size > 0 {
		return models.SideBuy
	}
	return models.SideSell
}

func GateOrderToModel(o *GateOrder, precisions PrecisionLookup) (*models.Order, error) {
	if o == nil {
		return nil, nil
	}

	p, err := lookup(Gate, precisions, o.Contract)
	if err != nil {
		return nil, err
	}

	size := abs64(o.Size)
	left := abs64(o.Left)

	var status models.OrderStatus
	switch o.Status {
	case "open":
		status = models.OrderStatusNew
		if left > 0 && left < size {
			status = models.OrderStatusPartiallyFilled
		}
	case "finished":
		s, ok := gateFinishedAs[o.FinishAs]
		if !ok {
			return nil, unmapped(Gate, "finish_as", o.FinishAs)
		}
		status = s
	default:
		return nil, unmapped(Gate, "status", o.Status)
	}

	price := dec(o.Price)
	ordType := models.OrderTypeLimit
	if price.IsZero() {
		ordType = models.OrderTypeMarket
	}

	return finish(&models.Order{
		ClientOrderID: o.Text,
		OrderID:       formatID(o.ID),
		Symbol:        o.Contract,
		Price:         price,
		Side:          gateSide(o.Size),
		Type:          ordType,
		Status:        status,
		ReduceOnly:    o.IsReduceOnly,
		OrigQty:       p.ToBase(decimal.NewFromInt(size)),
		AvgPrice:      dec(o.FillPrice),
		ExecutedQty:   p.ToBase(decimal.NewFromInt(size - left)),
		UpdateTime:    millis(int64(o.UpdateTime * 1000)),
	}), nil
}

func GateTriggerOrderToModel(o *GateTriggerOrder, precisions PrecisionLookup) (*models.Order, error) {
	if o == nil {
		return nil, nil
	}

	p, err := lookup(Gate, precisions, o.Initial.Contract)
	if err != nil {
		return nil, err
	}

	var status models.OrderStatus
	switch o.Status {
	case "open":
		status = models.OrderStatusNew
	case "finished":
		s, ok := gateTriggerFinishedAs[o.FinishAs]
		if !ok {
			return nil, unmapped(Gate, "finish_as", o.FinishAs)
		}
		status = s
	case "inactive", "invalid":
		status = models.OrderStatusExpired
	default:
		return nil, unmapped(Gate, "status", o.Status)
	}

	price := dec(o.Initial.Price)
	ordType := models.OrderTypeStop
	if price.IsZero() {
		ordType = models.OrderTypeStopMarket
	}

	id := formatID(o.ID)

	return finish(&models.Order{
		ClientOrderID: id,
		OrderID:       id,
		Symbol:        o.Initial.Contract,
		Price:         price,
		StopPrice:     dec(o.Trigger.Price),
		Side:          gateSide(o.Initial.Size),
		Type:          ordType,
		Status:        status,
		ReduceOnly:    o.Initial.IsReduceOnly,
		OrigQty:       p.ToBase(decimal.NewFromInt(abs64(o.Initial.Size))),
	}), nil
}

func GatePositionToModel(row *GatePosition, symbol string, precisions PrecisionLookup) (models.Position, error) {
	if row == nil || row.Size == 0 {
		return models.ZeroPosition(symbol), nil
	}

	p, err := lookup(Gate, precisions, row.Contract)
	if err != nil {
		return models.Position{}, err
	}

	return models.Position{
		Symbol:           row.Contract,
		EntryPrice:       dec(row.EntryPrice),
		PositionAmt:      p.ToBase(decimal.NewFromInt(row.Size)),
		UnRealizedProfit: dec(row.UnrealisedPnl),
	}, nil
}

func GateCandleToModel(c GateCandle, interval string, precision Precision) (models.Candle, error) {
	d, err := IntervalDuration(interval)
	if err != nil {
		return models.Candle{}, err
	}

	open := int64(c.T * 1000)

	return models.Candle{
		OpenTime:  open,
		Open:      dec(c.O),
		High:      dec(c.H),
		Low:       dec(c.L),
		Close:     dec(c.C),
		Volume:    precision.ToBase(decimal.NewFromInt(c.V)),
		CloseTime: open + d.Milliseconds() - 1,
		VolumeUSD: dec(c.Sum),
	}, nil
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// GateText prefixes a client order id the way Gate requires.
func GateText(clientOrderID string) string {
	if len(clientOrderID) > 28 {
		clientOrderID = clientOrderID[len(clientOrderID)-28:]
	}
	return "t-" + clientOrderID
}
