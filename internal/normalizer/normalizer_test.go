package normalizer_test

import (
	"encoding/json"
	"flushbot/internal/normalizer"
	"flushbot/models"
	"testing"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

var precisions = normalizer.Static(map[string]normalizer.Precision{
	"BTC-USDT-SWAP": {Symbol: "BTC-USDT-SWAP", TickSize: d("0.1"), StepSize: d("1"), ContractSize: d("0.01")},
	"BTC_USDT":      {Symbol: "BTC_USDT", TickSize: d("0.1"), StepSize: d("1"), ContractSize: d("0.0001")},
	"BTCUSDT":       {Symbol: "BTCUSDT", TickSize: d("0.1"), StepSize: d("0.001"), ContractSize: d("1")},
	"BTC-USDT":      {Symbol: "BTC-USDT", TickSize: d("0.1"), StepSize: d("0.0001")},
})

func TestBinanceOrder(t *testing.T) {
	t.Run("canceled spelling", func(t *testing.T) {
		o, err := normalizer.BinanceOrder(&futures.Order{
			Symbol:           "BTCUSDT",
			OrderID:          42,
			Status:           futures.OrderStatusTypeCanceled,
			Type:             futures.OrderTypeLimit,
			Side:             futures.SideTypeBuy,
			Price:            "100.5",
			OrigQuantity:     "0.010",
			ExecutedQuantity: "0",
		})
		require.NoError(t, err)
		assert.Equal(t, models.OrderStatusCancelled, o.Status)
		assert.Equal(t, "42", o.OrderID)
		assert.NoError(t, o.Validate())
	})

	t.Run("partial execution upgrades NEW", func(t *testing.T) {
		o, err := normalizer.BinanceOrder(&futures.Order{
			Symbol:           "BTCUSDT",
			Status:           futures.OrderStatusTypeNew,
			Type:             futures.OrderTypeLimit,
			Side:             futures.SideTypeSell,
			OrigQuantity:     "1",
			ExecutedQuantity: "0.4",
		})
		require.NoError(t, err)
		assert.Equal(t, models.OrderStatusPartiallyFilled, o.Status)
		assert.NoError(t, o.Validate())
	})

	t.Run("unknown status", func(t *testing.T) {
		_, err := normalizer.BinanceOrder(&futures.Order{Status: "WEIRD", Type: futures.OrderTypeLimit, Side: futures.SideTypeBuy})
		var unmapped *normalizer.UnmappedStatusError
		require.ErrorAs(t, err, &unmapped)
		assert.Equal(t, "status", unmapped.Field)
	})

	t.Run("flat position is zero", func(t *testing.T) {
		p := normalizer.BinancePosition(&futures.PositionRisk{Symbol: "BTCUSDT", PositionAmt: "0.000", EntryPrice: "0.0"})
		assert.True(t, p.IsFlat())
		assert.True(t, p.EntryPrice.IsZero())
		assert.Equal(t, "BTCUSDT", p.Symbol)
	})
}

func TestOKXOrder(t *testing.T) {
	t.Run("contracts to base", func(t *testing.T) {
		o, err := normalizer.OKXOrderToModel(&normalizer.OKXOrder{
			InstID:    "BTC-USDT-SWAP",
			OrdID:     "1",
			ClOrdID:   "BUYBTC1",
			Px:        "30000",
			Sz:        "10",
			OrdType:   "post_only",
			Side:      "buy",
			State:     "partially_filled",
			AccFillSz: "4",
			AvgPx:     "30000",
		}, precisions, normalizer.OKXOrderContext{PosMode: normalizer.OKXPosModeNet})
		require.NoError(t, err)
		assert.True(t, d("0.1").Equal(o.OrigQty))
		assert.True(t, d("0.04").Equal(o.ExecutedQty))
		assert.Equal(t, models.OrderStatusPartiallyFilled, o.Status)
		assert.Equal(t, models.OrderTypeLimit, o.Type)
		assert.False(t, o.ReduceOnly)
	})

	t.Run("reduce only from shared map", func(t *testing.T) {
		o, err := normalizer.OKXOrderToModel(&normalizer.OKXOrder{
			InstID: "BTC-USDT-SWAP", OrdID: "7", Sz: "1", OrdType: "limit", Side: "sell", State: "live",
		}, precisions, normalizer.OKXOrderContext{
			PosMode:    normalizer.OKXPosModeNet,
			ReduceOnly: func(id string) bool { return id == "7" },
		})
		require.NoError(t, err)
		assert.True(t, o.ReduceOnly)
		assert.Equal(t, models.OrderStatusNew, o.Status)
	})

	t.Run("long short mode", func(t *testing.T) {
		o, err := normalizer.OKXOrderToModel(&normalizer.OKXOrder{
			InstID: "BTC-USDT-SWAP", OrdID: "8", Sz: "1", OrdType: "limit", Side: "sell", PosSide: "long", State: "live",
		}, precisions, normalizer.OKXOrderContext{PosMode: normalizer.OKXPosModeLongShort})
		require.NoError(t, err)
		assert.True(t, o.ReduceOnly)
	})

	t.Run("algo stop market", func(t *testing.T) {
		o, err := normalizer.OKXOrderToModel(&normalizer.OKXOrder{
			InstID: "BTC-USDT-SWAP", AlgoID: "a1", Sz: "2", Side: "sell", State: "effective",
			SlOrdPx: "-1", SlTriggerPx: "29000",
		}, precisions, normalizer.OKXOrderContext{})
		require.NoError(t, err)
		assert.Equal(t, models.OrderTypeStopMarket, o.Type)
		assert.Equal(t, models.OrderStatusFilled, o.Status)
		assert.Equal(t, "a1", o.OrderID)
		assert.NoError(t, o.Validate())
	})

	t.Run("unknown state", func(t *testing.T) {
		_, err := normalizer.OKXOrderToModel(&normalizer.OKXOrder{
			InstID: "BTC-USDT-SWAP", State: "mystery", Side: "buy", OrdType: "limit",
		}, precisions, normalizer.OKXOrderContext{})
		assert.Error(t, err)
	})

	t.Run("short position sign", func(t *testing.T) {
		p, err := normalizer.OKXPositionToModel([]normalizer.OKXPosition{
			{InstID: "BTC-USDT-SWAP", Pos: "", AvgPx: ""},
			{InstID: "BTC-USDT-SWAP", Pos: "5", PosSide: "short", AvgPx: "30000", Upl: "-1.5"},
		}, "BTC-USDT-SWAP", precisions)
		require.NoError(t, err)
		assert.True(t, d("-0.05").Equal(p.PositionAmt))
		assert.True(t, p.IsShort())
	})

	t.Run("no position rows", func(t *testing.T) {
		p, err := normalizer.OKXPositionToModel(nil, "BTC-USDT-SWAP", precisions)
		require.NoError(t, err)
		assert.True(t, p.IsFlat())
	})
}

func TestGateOrder(t *testing.T) {
	tests := []struct {
		name   string
		order  normalizer.GateOrder
		status models.OrderStatus
		side   models.Side
	}{
		{
			name:   "open untouched",
			order:  normalizer.GateOrder{Contract: "BTC_USDT", Size: 100, Left: 100, Price: "30000", Status: "open"},
			status: models.OrderStatusNew,
			side:   models.SideBuy,
		},
		{
			name:   "open partial",
			order:  normalizer.GateOrder{Contract: "BTC_USDT", Size: -100, Left: -40, Price: "30000", Status: "open"},
			status: models.OrderStatusPartiallyFilled,
			side:   models.SideSell,
		},
		{
			name:   "finished filled",
			order:  normalizer.GateOrder{Contract: "BTC_USDT", Size: 100, Left: 0, Price: "30000", Status: "finished", FinishAs: "filled"},
			status: models.OrderStatusFilled,
			side:   models.SideBuy,
		},
		{
			name:   "finished ioc",
			order:  normalizer.GateOrder{Contract: "BTC_USDT", Size: 100, Left: 100, Price: "30000", Status: "finished", FinishAs: "ioc"},
			status: models.OrderStatusExpired,
			side:   models.SideBuy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, err := normalizer.GateOrderToModel(&tt.order, precisions)
			require.NoError(t, err)
			assert.Equal(t, tt.status, o.Status)
			assert.Equal(t, tt.side, o.Side)
			assert.NoError(t, o.Validate())
		})
	}

	t.Run("zero price is market", func(t *testing.T) {
		o, err := normalizer.GateOrderToModel(&normalizer.GateOrder{Contract: "BTC_USDT", Size: 1, Left: 1, Price: "0", Status: "open"}, precisions)
		require.NoError(t, err)
		assert.Equal(t, models.OrderTypeMarket, o.Type)
		assert.True(t, d("0.0001").Equal(o.OrigQty))
	})

	t.Run("unknown finish", func(t *testing.T) {
		_, err := normalizer.GateOrderToModel(&normalizer.GateOrder{Contract: "BTC_USDT", Status: "finished", FinishAs: "nope"}, precisions)
		assert.Error(t, err)
	})

	t.Run("unknown contract", func(t *testing.T) {
		_, err := normalizer.GateOrderToModel(&normalizer.GateOrder{Contract: "ETH_USDT", Status: "open"}, precisions)
		var unknown *normalizer.UnknownSymbolError
		assert.ErrorAs(t, err, &unknown)
	})
}

func TestMEXCOrder(t *testing.T) {
	for code, want := range map[int]struct {
		side       models.Side
		reduceOnly bool
	}{
		1: {models.SideBuy, false},
		2: {models.SideBuy, true},
		3: {models.SideSell, false},
		4: {models.SideSell, true},
	} {
		o, err := normalizer.MEXCOrderToModel(&normalizer.MEXCOrder{
			OrderID: "1", Symbol: "BTC_USDT", Vol: d("10"), Side: code, OrderType: 1, State: 2,
		}, precisions)
		require.NoError(t, err)
		assert.Equal(t, want.side, o.Side)
		assert.Equal(t, want.reduceOnly, o.ReduceOnly)
		assert.Equal(t, code, normalizer.MEXCSideCode(o.Side, o.ReduceOnly))
	}

	t.Run("partial deal volume", func(t *testing.T) {
		o, err := normalizer.MEXCOrderToModel(&normalizer.MEXCOrder{
			OrderID: "1", Symbol: "BTC_USDT", Vol: d("10"), DealVol: d("3"), Side: 1, OrderType: 2, State: 2,
		}, precisions)
		require.NoError(t, err)
		assert.Equal(t, models.OrderStatusPartiallyFilled, o.Status)
		assert.True(t, d("0.0003").Equal(o.ExecutedQty))
	})

	t.Run("unknown side", func(t *testing.T) {
		_, err := normalizer.MEXCOrderToModel(&normalizer.MEXCOrder{Symbol: "BTC_USDT", Side: 9, OrderType: 1, State: 1}, precisions)
		assert.Error(t, err)
	})

	t.Run("decodes numeric payload", func(t *testing.T) {
		var o normalizer.MEXCOrder
		require.NoError(t, json.Unmarshal([]byte(`{"orderId":"9","symbol":"BTC_USDT","price":30000.5,"vol":2,"side":3,"orderType":5,"dealAvgPrice":30001,"dealVol":2,"state":3}`), &o))
		m, err := normalizer.MEXCOrderToModel(&o, precisions)
		require.NoError(t, err)
		assert.Equal(t, models.OrderTypeMarket, m.Type)
		assert.Equal(t, models.OrderStatusFilled, m.Status)
	})
}

func TestBybitOrder(t *testing.T) {
	t.Run("avg price rounded to tick", func(t *testing.T) {
		o, err := normalizer.BybitOrderToModel(&normalizer.BybitOrder{
			OrderID: "b1", Symbol: "BTCUSDT", Qty: "0.003", Side: "Buy", OrderType: "Limit",
			OrderStatus: "PartiallyFilled", CumExecQty: "0.002", CumExecValue: "60.0333",
		}, precisions)
		require.NoError(t, err)
		assert.True(t, d("30016.6").Equal(o.AvgPrice), o.AvgPrice.String())
		assert.Equal(t, models.OrderStatusPartiallyFilled, o.Status)
	})

	t.Run("triggered stop", func(t *testing.T) {
		o, err := normalizer.BybitOrderToModel(&normalizer.BybitOrder{
			OrderID: "b2", Symbol: "BTCUSDT", Qty: "0.003", Side: "Sell", OrderType: "Market",
			OrderStatus: "Triggered", TriggerPrice: "29000", ReduceOnly: true, CumExecQty: "0",
		}, precisions)
		require.NoError(t, err)
		assert.Equal(t, models.OrderTypeStopMarket, o.Type)
		assert.True(t, o.IsStopLoss())
		assert.NoError(t, o.Validate())
	})

	t.Run("rejected expires", func(t *testing.T) {
		o, err := normalizer.BybitOrderToModel(&normalizer.BybitOrder{
			Symbol: "BTCUSDT", Side: "Buy", OrderType: "Limit", OrderStatus: "Rejected", Qty: "1", CumExecQty: "0",
		}, precisions)
		require.NoError(t, err)
		assert.Equal(t, models.OrderStatusExpired, o.Status)
	})

	t.Run("sell position negative", func(t *testing.T) {
		p, err := normalizer.BybitPositionToModel([]normalizer.BybitPosition{
			{Symbol: "BTCUSDT", Side: "Sell", Size: "0.5", AvgPrice: "30000"},
		}, "BTCUSDT")
		require.NoError(t, err)
		assert.True(t, d("-0.5").Equal(p.PositionAmt))
	})
}

func TestPhemexOrder(t *testing.T) {
	price := d("30000.5")
	o, err := normalizer.PhemexOrderToModel(&normalizer.PhemexOrder{
		OrderID: "p1", Symbol: "BTCUSDT", Side: "Sell", OrdType: "Stop", OrdStatus: "Untriggered",
		PriceRp: &price, OrderQtyRq: d("0.01"), ExecInst: "ReduceOnly",
	})
	require.NoError(t, err)
	assert.Equal(t, models.OrderTypeStopMarket, o.Type)
	assert.Equal(t, models.OrderStatusNew, o.Status)
	assert.True(t, o.ReduceOnly)

	t.Run("scaled price fallback", func(t *testing.T) {
		ep := d("300005000")
		o, err := normalizer.PhemexOrderToModel(&normalizer.PhemexOrder{
			OrderID: "p2", Symbol: "BTCUSD", Side: "Buy", OrderType: "Limit", OrdStatus: "New", PriceEp: &ep,
		})
		require.NoError(t, err)
		assert.True(t, d("30000.5").Equal(o.Price))
	})

	t.Run("unknown status", func(t *testing.T) {
		_, err := normalizer.PhemexOrderToModel(&normalizer.PhemexOrder{OrdStatus: "Weird", OrdType: "Limit", Side: "Buy"})
		assert.Error(t, err)
	})
}

func TestBingXOrder(t *testing.T) {
	for raw, want := range map[string]models.OrderStatus{
		"Pending":          models.OrderStatusNew,
		"NEW":              models.OrderStatusNew,
		"PARTIALLY_FILLED": models.OrderStatusPartiallyFilled,
		"Cancelled":        models.OrderStatusCancelled,
		"CANCELED":         models.OrderStatusCancelled,
		"Failed":           models.OrderStatusExpired,
	} {
		exec := decimal.Zero
		if want == models.OrderStatusPartiallyFilled {
			exec = d("0.5")
		}
		o, err := normalizer.BingXOrderToModel(&normalizer.BingXOrder{
			Symbol: "BTC-USDT", Side: "bid", Type: "LIMIT", Status: raw, OrigQty: d("1"), ExecutedQty: exec,
		}, "")
		require.NoError(t, err, raw)
		assert.Equal(t, want, o.Status, raw)
		assert.Equal(t, models.SideBuy, o.Side)
	}

	t.Run("hedge mode close", func(t *testing.T) {
		o, err := normalizer.BingXOrderToModel(&normalizer.BingXOrder{
			Side: "BUY", PositionSide: "SHORT", Type: "LIMIT", Status: "NEW", OrigQty: d("1"),
		}, "BTC-USDT")
		require.NoError(t, err)
		assert.True(t, o.ReduceOnly)
		assert.Equal(t, "BTC-USDT", o.Symbol)
	})
}

func TestExchangeInterval(t *testing.T) {
	tests := []struct {
		exchange, interval, want string
	}{
		{normalizer.Bybit, "1h", "60"},
		{normalizer.Bybit, "1d", "D"},
		{normalizer.MEXC, "5m", "Min5"},
		{normalizer.OKX, "1h", "1H"},
		{normalizer.OKX, "1d", "1Dutc"},
		{normalizer.Phemex, "5m", "300"},
		{normalizer.BingX, "15m", "15m"},
	}
	for _, tt := range tests {
		t.Run(tt.exchange+tt.interval, func(t *testing.T) {
			got, err := normalizer.ExchangeInterval(tt.exchange, tt.interval)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := normalizer.ExchangeInterval(normalizer.Gate, "3m")
	assert.Error(t, err)
}
