package normalizer

import (
	"flushbot/models"

	"github.com/shopspring/decimal"
)

// PhemexPriceScale converts scaled Ep prices of the legacy contract API.
var PhemexPriceScale = decimal.RequireFromString("0.0001")

var phemexStatuses = map[string]models.OrderStatus{
	"New":             models.OrderStatusNew,
	"Untriggered":     models.OrderStatusNew,
	"Created":         models.OrderStatusNew,
	"PartiallyFilled": models.OrderStatusPartiallyFilled,
	"Filled":          models.OrderStatusFilled,
	"Triggered":       models.OrderStatusFilled,
	"Canceled":        models.OrderStatusCancelled,
	"Rejected":        models.OrderStatusExpired,
}

var phemexTypes = map[string]models.OrderType{
	"Market":          models.OrderTypeMarket,
	"MarketByValue":   models.OrderTypeMarket,
	"Limit":           models.OrderTypeLimit,
	"LimitIfTouched":  models.OrderTypeStop,
	"StopLimit":       models.OrderTypeStop,
	"Stop":            models.OrderTypeStopMarket,
	"MarketIfTouched": models.OrderTypeStopMarket,
}

// PhemexOrder covers the USDT-M (Rp/Rq) and legacy (Ep) order shapes.
type PhemexOrder struct {
	OrderID    string           `json:"orderID"`
	OrderIDAlt string           `json:"orderId"`
	ClOrdID    string           `json:"clOrdID"`
	ClOrdIDAlt string           `json:"clOrdId"`
	Symbol     string           `json:"symbol"`
	Side       string           `json:"side"`
	OrdType    string           `json:"ordType"`
	OrderType  string           `json:"orderType"`
	OrdStatus  string           `json:"ordStatus"`
	ReduceOnly *bool            `json:"reduceOnly"`
	ExecInst   string           `json:"execInst"`
	PriceRp    *decimal.Decimal `json:"priceRp"`
	PriceEp    *decimal.Decimal `json:"priceEp"`
	StopPxRp   decimal.Decimal  `json:"stopPxRp"`
	OrderQtyRq decimal.Decimal  `json:"orderQtyRq"`
	CumQtyRq   decimal.Decimal  `json:"cumQtyRq"`
	AvgPriceRp decimal.Decimal  `json:"avgPriceRp"`
	UpdatedAt  int64            `json:"actionTimeNs"`
}

type PhemexPosition struct {
	Symbol        string          `json:"symbol"`
	Side          string          `json:"side"`
	PosSide       string          `json:"posSide"`
	SizeRq        decimal.Decimal `json:"sizeRq"`
	AvgEntryPrice decimal.Decimal `json:"avgEntryPriceRp"`
	MarkPriceRp   decimal.Decimal `json:"markPriceRp"`
}

func PhemexOrderToModel(o *PhemexOrder) (*models.Order, error) {
	if o == nil {
		return nil, nil
	}

	status, ok := phemexStatuses[o.OrdStatus]
	if !ok {
		return nil, unmapped(Phemex, "ordStatus", o.OrdStatus)
	}

	rawType := o.OrderType
	if rawType == "" {
		rawType = o.OrdType
	}
	ordType, ok := phemexTypes[rawType]
	if !ok {
		return nil, unmapped(Phemex, "ordType", rawType)
	}

	side, err := lowerSide(Phemex, o.Side)
	if err != nil {
		return nil, err
	}

	var price decimal.Decimal
	switch {
	case o.PriceRp != nil:
		price = *o.PriceRp
	case o.PriceEp != nil:
		price = o.PriceEp.Mul(PhemexPriceScale)
	}

	reduceOnly := o.ExecInst == "ReduceOnly" || o.ExecInst == "CloseOnTrigger"
	if o.ReduceOnly != nil {
		reduceOnly = *o.ReduceOnly
	}

	id := o.OrderID
	if id == "" {
		id = o.OrderIDAlt
	}
	clID := o.ClOrdID
	if clID == "" {
		clID = o.ClOrdIDAlt
	}

	out := &models.Order{
		ClientOrderID: clID,
		OrderID:       id,
		Symbol:        o.Symbol,
		Price:         price,
		StopPrice:     o.StopPxRp,
		Side:          side,
		Type:          ordType,
		Status:        status,
		ReduceOnly:    reduceOnly,
		OrigQty:       o.OrderQtyRq,
		AvgPrice:      o.AvgPriceRp,
		ExecutedQty:   o.CumQtyRq,
	}
	if o.UpdatedAt > 0 {
		out.UpdateTime = millis(o.UpdatedAt / 1e6)
	}

	return finish(out), nil
}

// PhemexPositionToModel derives unrealised profit from the mark price since
// the position row does not carry it.
func PhemexPositionToModel(rows []PhemexPosition, symbol string) (models.Position, error) {
	for _, row := range rows {
		if row.Symbol != symbol || row.SizeRq.IsZero() {
			continue
		}

		size := row.SizeRq.Abs()
		var amt, upl decimal.Decimal
		switch row.Side {
		case "Buy":
			amt = size
			upl = size.Mul(row.MarkPriceRp.Sub(row.AvgEntryPrice))
		case "Sell":
			amt = size.Neg()
			upl = size.Mul(row.AvgEntryPrice.Sub(row.MarkPriceRp))
		default:
			return models.Position{}, unmapped(Phemex, "position side", row.Side)
		}

		return models.Position{
			Symbol:           row.Symbol,
			EntryPrice:       row.AvgEntryPrice,
			PositionAmt:      amt,
			UnRealizedProfit: upl,
		}, nil
	}

	return models.ZeroPosition(symbol), nil
}

// PhemexCandle parses one kline row:
// [timestamp, interval, lastClose, open, high, low, close, volume, turnover].
func PhemexCandle(row []decimal.Decimal, interval string) (models.Candle, error) {
	if len(row) < 9 {
		return models.Candle{}, unmapped(Phemex, "kline", len(row))
	}

	d, err := IntervalDuration(interval)
	if err != nil {
		return models.Candle{}, err
	}

	open := row[0].IntPart() * 1000

	return models.Candle{
		OpenTime:  open,
		Open:      row[3],
		High:      row[4],
		Low:       row[5],
		Close:     row[6],
		Volume:    row[7],
		CloseTime: open + d.Milliseconds() - 1,
		VolumeUSD: row[8],
	}, nil
}
