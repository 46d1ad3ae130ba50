package normalizer

import (
	"flushbot/models"
	"strconv"
	"strings"
)

const (
	OKXPosModeNet       = "net"
	OKXPosModeLongShort = "long/short"
)

var okxStatuses = map[string]models.OrderStatus{
	"live":             models.OrderStatusNew,
	"partially_filled": models.OrderStatusPartiallyFilled,
	"filled":           models.OrderStatusFilled,
	"effective":        models.OrderStatusFilled,
	"canceled":         models.OrderStatusCancelled,
	"cancelled":        models.OrderStatusCancelled,
	"mmp_canceled":     models.OrderStatusExpired,
	"order_failed":     models.OrderStatusExpired,
}

// OKXOrder covers both regular and algo orders of the v5 trade API.
type OKXOrder struct {
	InstID     string `json:"instId"`
	OrdID      string `json:"ordId"`
	ClOrdID    string `json:"clOrdId"`
	AlgoID     string `json:"algoId"`
	Px         string `json:"px"`
	Sz         string `json:"sz"`
	OrdType    string `json:"ordType"`
	Side       string `json:"side"`
	PosSide    string `json:"posSide"`
	State      string `json:"state"`
	AccFillSz  string `json:"accFillSz"`
	AvgPx      string `json:"avgPx"`
	ReduceOnly string `json:"reduceOnly"`
	UTime      string `json:"uTime"`

	OrdPx       string `json:"ordPx"`
	ActualSz    string `json:"actualSz"`
	ActualPx    string `json:"actualPx"`
	SlOrdPx     string `json:"slOrdPx"`
	SlTriggerPx string `json:"slTriggerPx"`
	TpOrdPx     string `json:"tpOrdPx"`
}

// OKXPosition is a row of /api/v5/account/positions.
type OKXPosition struct {
	InstID  string `json:"instId"`
	Pos     string `json:"pos"`
	PosSide string `json:"posSide"`
	AvgPx   string `json:"avgPx"`
	Upl     string `json:"upl"`
}

// OKXOrderContext carries the account position mode and the reduce-only
// orders placed by this process in net mode, where OKX does not echo the flag.
type OKXOrderContext struct {
	PosMode    string
	ReduceOnly func(orderID string) bool
}

func OKXOrderToModel(o *OKXOrder, precisions PrecisionLookup, ctx OKXOrderContext) (*models.Order, error) {
	if o == nil {
		return nil, nil
	}

	status, ok := okxStatuses[o.State]
	if !ok {
		return nil, unmapped(OKX, "state", o.State)
	}

	side, err := lowerSide(OKX, o.Side)
	if err != nil {
		return nil, err
	}

	p, err := lookup(OKX, precisions, o.InstID)
	if err != nil {
		return nil, err
	}

	out := &models.Order{
		Symbol:  o.InstID,
		Side:    side,
		Status:  status,
		OrigQty: p.ToBase(dec(o.Sz)),
	}

	if o.AlgoID != "" {
		out.OrderID = o.AlgoID
		out.Price = dec(o.OrdPx)
		out.StopPrice = dec(o.SlTriggerPx)
		out.ExecutedQty = p.ToBase(dec(o.ActualSz))
		out.AvgPrice = dec(o.ActualPx)
		out.Type = models.OrderTypeStop
		if o.SlOrdPx == "-1" || o.TpOrdPx == "-1" {
			out.Type = models.OrderTypeStopMarket
		}
	} else {
		out.OrderID = o.OrdID
		out.ClientOrderID = o.ClOrdID
		out.Price = dec(o.Px)
		out.ExecutedQty = p.ToBase(dec(o.AccFillSz))
		out.AvgPrice = dec(o.AvgPx)
		switch o.OrdType {
		case "market":
			out.Type = models.OrderTypeMarket
		case "limit", "post_only", "fok", "ioc", "optimal_limit_ioc":
			out.Type = models.OrderTypeLimit
		default:
			return nil, unmapped(OKX, "ordType", o.OrdType)
		}
	}

	if ctx.PosMode == OKXPosModeLongShort {
		opening := (o.Side == "buy" && o.PosSide == "long") || (o.Side == "sell" && o.PosSide == "short")
		out.ReduceOnly = !opening
	} else {
		out.ReduceOnly = o.ReduceOnly == "true" || (ctx.ReduceOnly != nil && ctx.ReduceOnly(out.OrderID))
	}

	if ms, err := strconv.ParseInt(o.UTime, 10, 64); err == nil {
		out.UpdateTime = millis(ms)
	}

	return finish(out), nil
}

// OKXPositionToModel picks the first row with an average price, since OKX
// returns empty rows for instruments without a position.
func OKXPositionToModel(rows []OKXPosition, symbol string, precisions PrecisionLookup) (models.Position, error) {
	var row *OKXPosition
	for i := range rows {
		if rows[i].AvgPx != "" {
			row = &rows[i]
			break
		}
	}
	if row == nil {
		return models.ZeroPosition(symbol), nil
	}

	p, err := lookup(OKX, precisions, row.InstID)
	if err != nil {
		return models.Position{}, err
	}

	amt := p.ToBase(dec(row.Pos))
	if row.PosSide == "short" {
		amt = amt.Abs().Neg()
	}
	if amt.IsZero() {
		return models.ZeroPosition(row.InstID), nil
	}

	return models.Position{
		Symbol:           row.InstID,
		EntryPrice:       dec(row.AvgPx),
		PositionAmt:      amt,
		UnRealizedProfit: dec(row.Upl),
	}, nil
}

// OKXCandle parses one [ts, o, h, l, c, vol, volCcy, volCcyQuote, confirm] row.
func OKXCandle(row []string, interval string) (models.Candle, error) {
	if len(row) < 6 {
		return models.Candle{}, unmapped(OKX, "candle", strings.Join(row, ","))
	}

	d, err := IntervalDuration(interval)
	if err != nil {
		return models.Candle{}, err
	}

	open, err := strconv.ParseInt(row[0], 10, 64)
	if err != nil {
		return models.Candle{}, unmapped(OKX, "candle time", row[0])
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
	if len(row) > 7 {
		c.VolumeUSD = dec(row[7])
	}

	return c, nil
}

func lowerSide(exchange, s string) (models.Side, error) {
	switch strings.ToLower(s) {
	case "buy", "bid":
		return models.SideBuy, nil
	case "sell", "ask":
		return models.SideSell, nil
	default:
		return "", unmapped(exchange, "side", s)
	}
}
