package normalizer

import (
	"flushbot/models"

	"github.com/adshao/go-binance/v2/futures"
)

var binanceStatuses = map[futures.OrderStatusType]models.OrderStatus{
	futures.OrderStatusTypeNew:             models.OrderStatusNew,
	futures.OrderStatusTypePartiallyFilled: models.OrderStatusPartiallyFilled,
	futures.OrderStatusTypeFilled:          models.OrderStatusFilled,
	futures.OrderStatusTypeCanceled:        models.OrderStatusCancelled,
	futures.OrderStatusTypeRejected:        models.OrderStatusExpired,
	futures.OrderStatusTypeExpired:         models.OrderStatusExpired,
	"NEW_INSURANCE":                        models.OrderStatusFilled,
	"NEW_ADL":                              models.OrderStatusFilled,
}

var binanceTypes = map[futures.OrderType]models.OrderType{
	futures.OrderTypeMarket:             models.OrderTypeMarket,
	futures.OrderTypeLimit:              models.OrderTypeLimit,
	futures.OrderTypeStop:               models.OrderTypeStop,
	futures.OrderTypeStopMarket:         models.OrderTypeStopMarket,
	futures.OrderTypeTakeProfit:         models.OrderTypeStop,
	futures.OrderTypeTakeProfitMarket:   models.OrderTypeStopMarket,
	futures.OrderTypeTrailingStopMarket: models.OrderTypeStopMarket,
	"LIQUIDATION":                       models.OrderTypeMarket,
}

func BinanceOrder(o *futures.Order) (*models.Order, error) {
	if o == nil {
		return nil, nil
	}

	status, ok := binanceStatuses[o.Status]
	if !ok {
		return nil, unmapped(Binance, "status", o.Status)
	}

	ordType, ok := binanceTypes[o.Type]
	if !ok {
		return nil, unmapped(Binance, "type", o.Type)
	}

	side, err := binanceSide(string(o.Side))
	if err != nil {
		return nil, err
	}

	return finish(&models.Order{
		ClientOrderID: o.ClientOrderID,
		OrderID:       formatID(o.OrderID),
		Symbol:        o.Symbol,
		Price:         dec(o.Price),
		StopPrice:     dec(o.StopPrice),
		Side:          side,
		Type:          ordType,
		Status:        status,
		ReduceOnly:    o.ReduceOnly || o.ClosePosition,
		OrigQty:       dec(o.OrigQuantity),
		AvgPrice:      dec(o.AvgPrice),
		ExecutedQty:   dec(o.ExecutedQuantity),
		UpdateTime:    millis(o.UpdateTime),
	}), nil
}

// BinanceOrderUpdate is the "o" object of an ORDER_TRADE_UPDATE user data event.
// encoding/json matches keys case insensitively, so the keys that differ only
// in case from a mapped one are declared too.
type BinanceOrderUpdate struct {
	Symbol        string `json:"s"`
	ClientOrderID string `json:"c"`
	Side          string `json:"S"`
	Type          string `json:"o"`
	OrigQty       string `json:"q"`
	Price         string `json:"p"`
	AvgPrice      string `json:"ap"`
	StopPrice     string `json:"sp"`
	Status        string `json:"X"`
	OrderID       int64  `json:"i"`
	ExecutedQty   string `json:"z"`
	TradeTime     int64  `json:"T"`
	ReduceOnly    bool   `json:"R"`
	ClosePosition bool   `json:"cp"`

	ExecutionType   string `json:"x"`
	LastQty         string `json:"l"`
	LastPrice       string `json:"L"`
	TradeID         int64  `json:"t"`
	ActivationPrice string `json:"AP"`
}

func BinanceOrderFromUpdate(u BinanceOrderUpdate) (*models.Order, error) {
	return BinanceOrder(&futures.Order{
		Symbol:           u.Symbol,
		OrderID:          u.OrderID,
		ClientOrderID:    u.ClientOrderID,
		Price:            u.Price,
		ReduceOnly:       u.ReduceOnly,
		OrigQuantity:     u.OrigQty,
		ExecutedQuantity: u.ExecutedQty,
		Status:           futures.OrderStatusType(u.Status),
		Type:             futures.OrderType(u.Type),
		Side:             futures.SideType(u.Side),
		StopPrice:        u.StopPrice,
		UpdateTime:       u.TradeTime,
		AvgPrice:         u.AvgPrice,
		ClosePosition:    u.ClosePosition,
	})
}

func BinancePosition(p *futures.PositionRisk) models.Position {
	if p == nil {
		return models.Position{}
	}

	out := models.Position{
		Symbol:           p.Symbol,
		EntryPrice:       dec(p.EntryPrice),
		PositionAmt:      dec(p.PositionAmt),
		UnRealizedProfit: dec(p.UnRealizedProfit),
	}
	if out.PositionAmt.IsZero() {
		return models.ZeroPosition(p.Symbol)
	}

	return out
}

func BinanceKline(k *futures.Kline) models.Candle {
	return models.Candle{
		OpenTime:  k.OpenTime,
		Open:      dec(k.Open),
		High:      dec(k.High),
		Low:       dec(k.Low),
		Close:     dec(k.Close),
		Volume:    dec(k.Volume),
		CloseTime: k.CloseTime,
		VolumeUSD: dec(k.QuoteAssetVolume),
	}
}

func binanceSide(s string) (models.Side, error) {
	switch s {
	case "BUY":
		return models.SideBuy, nil
	case "SELL":
		return models.SideSell, nil
	default:
		return "", unmapped(Binance, "side", s)
	}
}
