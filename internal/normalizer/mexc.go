package normalizer

import (
	"flushbot/models"

	"github.com/shopspring/decimal"
)

// MEXC contract side codes.
const (
	MEXCOpenLong   = 1
	MEXCCloseShort = 2
	MEXCOpenShort  = 3
	MEXCCloseLong  = 4
)

var mexcStates = map[int]models.OrderStatus{
	1: models.OrderStatusNew,
	2: models.OrderStatusNew,
	3: models.OrderStatusFilled,
	4: models.OrderStatusCancelled,
	5: models.OrderStatusExpired,
}

var mexcOrderTypes = map[int]models.OrderType{
	1: models.OrderTypeLimit,
	2: models.OrderTypeLimit,
	3: models.OrderTypeLimit,
	4: models.OrderTypeLimit,
	5: models.OrderTypeMarket,
	6: models.OrderTypeMarket,
}

type MEXCOrder struct {
	OrderID      string          `json:"orderId"`
	Symbol       string          `json:"symbol"`
	Price        decimal.Decimal `json:"price"`
	Vol          decimal.Decimal `json:"vol"`
	Side         int             `json:"side"`
	OrderType    int             `json:"orderType"`
	DealAvgPrice decimal.Decimal `json:"dealAvgPrice"`
	DealVol      decimal.Decimal `json:"dealVol"`
	State        int             `json:"state"`
	ExternalOid  string          `json:"externalOid"`
	UpdateTime   int64           `json:"updateTime"`
}

// MEXCStopOrder is a plan order used for stop losses.
type MEXCStopOrder struct {
	ID           string          `json:"id"`
	Symbol       string          `json:"symbol"`
	TriggerPrice decimal.Decimal `json:"triggerPrice"`
	Price        decimal.Decimal `json:"price"`
	Vol          decimal.Decimal `json:"vol"`
	Side         int             `json:"side"`
	State        int             `json:"state"`
	UpdateTime   int64           `json:"updateTime"`
}

type MEXCPosition struct {
	Symbol       string          `json:"symbol"`
	PositionType int             `json:"positionType"`
	HoldVol      decimal.Decimal `json:"holdVol"`
	HoldAvgPrice decimal.Decimal `json:"holdAvgPrice"`
}

// MEXCKlines is the column oriented kline response.
type MEXCKlines struct {
	Time   []int64           `json:"time"`
	Open   []decimal.Decimal `json:"open"`
	Close  []decimal.Decimal `json:"close"`
	High   []decimal.Decimal `json:"high"`
	Low    []decimal.Decimal `json:"low"`
	Vol    []decimal.Decimal `json:"vol"`
	Amount []decimal.Decimal `json:"amount"`
}

func mexcSide(code int) (models.Side, bool, error) {
	switch code {
	case MEXCOpenLong:
		return models.SideBuy, false, nil
	case MEXCCloseShort:
		return models.SideBuy, true, nil
	case MEXCOpenShort:
		return models.SideSell, false, nil
	case MEXCCloseLong:
		return models.SideSell, true, nil
	default:
		return "", false, unmapped(MEXC, "side", code)
	}
}

// MEXCSideCode is the inverse of the side mapping.
func MEXCSideCode(side models.Side, reduceOnly bool) int {
	switch {
	case side == models.SideBuy && !reduceOnly:
		return MEXCOpenLong
	case side == models.SideBuy:
		return MEXCCloseShort
	case !reduceOnly:
		return MEXCOpenShort
	default:
		return MEXCCloseLong
	}
}

func MEXCOrderToModel(o *MEXCOrder, precisions PrecisionLookup) (*models.Order, error) {
	if o == nil {
		return nil, nil
	}

	side, reduceOnly, err := mexcSide(o.Side)
	if err != nil {
		return nil, err
	}

	status, ok := mexcStates[o.State]
	if !ok {
		return nil, unmapped(MEXC, "state", o.State)
	}

	ordType, ok := mexcOrderTypes[o.OrderType]
	if !ok {
		return nil, unmapped(MEXC, "orderType", o.OrderType)
	}

	p, err := lookup(MEXC, precisions, o.Symbol)
	if err != nil {
		return nil, err
	}

	out := &models.Order{
		ClientOrderID: o.ExternalOid,
		OrderID:       o.OrderID,
		Symbol:        o.Symbol,
		Price:         o.Price,
		Side:          side,
		Type:          ordType,
		Status:        status,
		ReduceOnly:    reduceOnly,
		OrigQty:       p.ToBase(o.Vol).Abs(),
		AvgPrice:      o.DealAvgPrice,
		ExecutedQty:   p.ToBase(o.DealVol).Abs(),
		UpdateTime:    millis(o.UpdateTime),
	}
	if out.ExecutedQty.IsPositive() && out.ExecutedQty.LessThan(out.OrigQty) && status == models.OrderStatusNew {
		out.Status = models.OrderStatusPartiallyFilled
	}

	return finish(out), nil
}

// MEXCStopOrderToModel maps plan order states 1 untriggered, 2 cancelled,
// 3 executed, 4 invalid, 5 failed.
func MEXCStopOrderToModel(o *MEXCStopOrder, precisions PrecisionLookup) (*models.Order, error) {
	if o == nil {
		return nil, nil
	}

	side, reduceOnly, err := mexcSide(o.Side)
	if err != nil {
		return nil, err
	}

	var status models.OrderStatus
	switch o.State {
	case 1:
		status = models.OrderStatusNew
	case 2:
		status = models.OrderStatusCancelled
	case 3:
		status = models.OrderStatusFilled
	case 4, 5:
		status = models.OrderStatusExpired
	default:
		return nil, unmapped(MEXC, "plan state", o.State)
	}

	p, err := lookup(MEXC, precisions, o.Symbol)
	if err != nil {
		return nil, err
	}

	ordType := models.OrderTypeStop
	if o.Price.IsZero() {
		ordType = models.OrderTypeStopMarket
	}

	return finish(&models.Order{
		ClientOrderID: o.ID,
		OrderID:       o.ID,
		Symbol:        o.Symbol,
		Price:         o.Price,
		StopPrice:     o.TriggerPrice,
		Side:          side,
		Type:          ordType,
		Status:        status,
		ReduceOnly:    reduceOnly,
		OrigQty:       p.ToBase(o.Vol).Abs(),
		UpdateTime:    millis(o.UpdateTime),
	}), nil
}

// MEXCPositionToModel: positionType 1 long, 2 short. MEXC does not report
// unrealised profit.
func MEXCPositionToModel(rows []MEXCPosition, symbol string, precisions PrecisionLookup) (models.Position, error) {
	for _, row := range rows {
		if row.Symbol != symbol || row.HoldVol.IsZero() {
			continue
		}

		p, err := lookup(MEXC, precisions, row.Symbol)
		if err != nil {
			return models.Position{}, err
		}

		amt := p.ToBase(row.HoldVol).Abs()
		switch row.PositionType {
		case 1:
		case 2:
			amt = amt.Neg()
		default:
			return models.Position{}, unmapped(MEXC, "positionType", row.PositionType)
		}

		return models.Position{
			Symbol:           row.Symbol,
			EntryPrice:       row.HoldAvgPrice,
			PositionAmt:      amt,
			UnRealizedProfit: decimal.Zero,
		}, nil
	}

	return models.ZeroPosition(symbol), nil
}

func MEXCKlinesToModel(k MEXCKlines, interval string, precision Precision) (models.Candles, error) {
	d, err := IntervalDuration(interval)
	if err != nil {
		return nil, err
	}

	n := len(k.Time)
	if len(k.Open) != n || len(k.High) != n || len(k.Low) != n || len(k.Close) != n || len(k.Vol) != n {
		return nil, unmapped(MEXC, "kline columns", n)
	}

	out := make(models.Candles, 0, n)
	for i := 0; i < n; i++ {
		open := k.Time[i] * 1000
		c := models.Candle{
			OpenTime:  open,
			Open:      k.Open[i],
			High:      k.High[i],
			Low:       k.Low[i],
			Close:     k.Close[i],
			Volume:    precision.ToBase(k.Vol[i]),
			CloseTime: open + d.Milliseconds() - 1,
		}
		if i < len(k.Amount) {
			c.VolumeUSD = k.Amount[i]
		}
		out = append(out, c)
	}

	return out, nil
}
