package exchange_test

import (
	"context"
	"io/ioutil"
	"testing"
	"time"

	"flushbot/internal/exchange"
	"flushbot/internal/exchange/mocks"
	"flushbot/internal/normalizer"
	"flushbot/models"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(ioutil.Discard)
	return logger
}

var btcPrecision = normalizer.Precision{TickSize: d("0.1"), StepSize: d("0.001")}

func newPaperTrader(t *testing.T) (*exchange.Trader, *exchange.Paper) {
	t.Helper()

	paper := exchange.NewPaper(normalizer.Binance, d("1000"), btcPrecision)
	paper.SetPrice("BTCUSDT", d("100"))

	policy := exchange.NewRetryPolicy(3, quietLogger())
	policy.Sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }

	return exchange.NewTrader(paper, policy, quietLogger()), paper
}

func TestPlaceLimitOrder(t *testing.T) {
	ctx := context.Background()

	t.Run("needs exactly one sizing", func(t *testing.T) {
		trader, _ := newPaperTrader(t)

		_, err := trader.PlaceLimitOrder(ctx, exchange.LimitOrderRequest{
			Symbol: "BTCUSDT", Side: models.SideBuy, Price: d("90"),
		})
		assert.ErrorIs(t, err, exchange.ErrConfiguration)

		_, err = trader.PlaceLimitOrder(ctx, exchange.LimitOrderRequest{
			Symbol: "BTCUSDT", Side: models.SideBuy, Price: d("90"),
			Quantity: d("1"), FixedBalance: d("100"),
		})
		assert.ErrorIs(t, err, exchange.ErrConfiguration)
	})

	t.Run("directional price rounding", func(t *testing.T) {
		trader, _ := newPaperTrader(t)

		buy, err := trader.PlaceLimitOrder(ctx, exchange.LimitOrderRequest{
			Symbol: "BTCUSDT", Side: models.SideBuy, Price: d("90.76"), Quantity: d("1"),
		})
		require.NoError(t, err)
		assert.Equal(t, "90.7", buy.Price.String())

		sell, err := trader.PlaceLimitOrder(ctx, exchange.LimitOrderRequest{
			Symbol: "BTCUSDT", Side: models.SideSell, Price: d("110.71"), Quantity: d("1"),
		})
		require.NoError(t, err)
		assert.Equal(t, "110.8", sell.Price.String())
	})

	t.Run("balance percent sizing rounds down and honours the cap", func(t *testing.T) {
		trader, _ := newPaperTrader(t)

		order, err := trader.PlaceLimitOrder(ctx, exchange.LimitOrderRequest{
			Symbol: "BTCUSDT", Side: models.SideBuy, Price: d("90"),
			BalancePercent: d("0.5"),
		})
		require.NoError(t, err)
		// 1000 * 0.5 / 90 = 5.5555..
		assert.Equal(t, "5.555", order.OrigQty.String())

		capped, err := trader.PlaceLimitOrder(ctx, exchange.LimitOrderRequest{
			Symbol: "BTCUSDT", Side: models.SideBuy, Price: d("90"),
			BalancePercent: d("0.5"), AbsoluteMaxUsdPosSize: d("180"),
		})
		require.NoError(t, err)
		assert.Equal(t, "2", capped.OrigQty.String())
	})

	t.Run("explicit quantity is capped by notional", func(t *testing.T) {
		trader, _ := newPaperTrader(t)

		order, err := trader.PlaceLimitOrder(ctx, exchange.LimitOrderRequest{
			Symbol: "BTCUSDT", Side: models.SideBuy, Price: d("90"),
			Quantity: d("10"), AbsoluteMaxUsdPosSize: d("450"),
		})
		require.NoError(t, err)
		assert.Equal(t, "5", order.OrigQty.String())
	})

	t.Run("capped quantity rounds down under the cap", func(t *testing.T) {
		trader, _ := newPaperTrader(t)

		order, err := trader.PlaceLimitOrder(ctx, exchange.LimitOrderRequest{
			Symbol: "BTCUSDT", Side: models.SideBuy, Price: d("60"),
			Quantity: d("10"), AbsoluteMaxUsdPosSize: d("100"),
		})
		require.NoError(t, err)
		// 100 / 60 = 1.6666
		assert.Equal(t, "1.666", order.OrigQty.String())
		assert.True(t, order.OrigQty.Mul(order.Price).LessThanOrEqual(d("100")))
	})

	t.Run("fixed balance", func(t *testing.T) {
		trader, _ := newPaperTrader(t)

		order, err := trader.PlaceLimitOrder(ctx, exchange.LimitOrderRequest{
			Symbol: "BTCUSDT", Side: models.SideSell, Price: d("110"),
			FixedBalance: d("100"),
		})
		require.NoError(t, err)
		assert.Equal(t, "0.909", order.OrigQty.String())
		assert.False(t, order.ReduceOnly)
		assert.Contains(t, order.ClientOrderID, "SELLBTCUSDT")
	})

	t.Run("limit at market fills, post only expires", func(t *testing.T) {
		trader, paper := newPaperTrader(t)

		order, err := trader.PlaceLimitOrder(ctx, exchange.LimitOrderRequest{
			Symbol: "BTCUSDT", Side: models.SideBuy, Price: d("105"), Quantity: d("1"), PostOnly: true,
		})
		require.NoError(t, err)
		assert.Equal(t, models.OrderStatusExpired, order.Status)

		order, err = trader.PlaceLimitOrder(ctx, exchange.LimitOrderRequest{
			Symbol: "BTCUSDT", Side: models.SideBuy, Price: d("105"), Quantity: d("1"),
		})
		require.NoError(t, err)
		assert.True(t, order.IsFilled())

		pos, err := paper.GetPosition(ctx, "BTCUSDT")
		require.NoError(t, err)
		assert.True(t, pos.IsLong())
	})
}

func TestStopLossAndClose(t *testing.T) {
	ctx := context.Background()

	t.Run("long stop loss rounds up and triggers", func(t *testing.T) {
		trader, paper := newPaperTrader(t)
		paper.SetPosition(models.Position{Symbol: "BTCUSDT", EntryPrice: d("100"), PositionAmt: d("2")})

		stop, err := trader.PlaceStopMarket(ctx, "BTCUSDT", models.SideSell, d("97.01"), d("2"))
		require.NoError(t, err)
		assert.Equal(t, "97.1", stop.StopPrice.String())
		assert.True(t, stop.IsStopLoss())
		assert.Contains(t, stop.ClientOrderID, "LongStopLoss")

		paper.SetPrice("BTCUSDT", d("97"))

		filled, err := trader.GetOrder(ctx, "BTCUSDT", exchange.RefOf(stop))
		require.NoError(t, err)
		assert.True(t, filled.IsFilled())

		pos, err := trader.GetPosition(ctx, "BTCUSDT")
		require.NoError(t, err)
		assert.True(t, pos.IsFlat())
	})

	t.Run("stop that would trigger closes at market", func(t *testing.T) {
		trader, paper := newPaperTrader(t)
		paper.SetPosition(models.Position{Symbol: "BTCUSDT", EntryPrice: d("120"), PositionAmt: d("1")})

		order, err := trader.PlaceStopMarket(ctx, "BTCUSDT", models.SideSell, d("110"), d("1"))
		require.NoError(t, err)
		require.NotNil(t, order)
		assert.Equal(t, models.OrderTypeMarket, order.Type)

		pos, err := trader.GetPosition(ctx, "BTCUSDT")
		require.NoError(t, err)
		assert.True(t, pos.IsFlat())
	})

	t.Run("market close when flat", func(t *testing.T) {
		trader, _ := newPaperTrader(t)

		order, err := trader.MarketClose(ctx, "BTCUSDT")
		assert.NoError(t, err)
		assert.Nil(t, order)
	})

	t.Run("close best price on a short", func(t *testing.T) {
		trader, paper := newPaperTrader(t)
		paper.SetPosition(models.Position{Symbol: "BTCUSDT", EntryPrice: d("90"), PositionAmt: d("-1")})

		// A post only buy at the touch rests; the next price tick fills it.
		go func() {
			time.Sleep(10 * time.Millisecond)
			paper.SetPrice("BTCUSDT", d("99"))
		}()

		order, err := trader.CloseBestPrice(ctx, "BTCUSDT", d("10"))
		require.NoError(t, err)
		require.NotNil(t, order)
		assert.Equal(t, models.SideBuy, order.Side)
		assert.True(t, order.ReduceOnly)
	})
}

func TestDuplicateOrderRecovery(t *testing.T) {
	ctx := context.Background()

	ex := mocks.NewExchange(t)
	ex.On("Name").Return(normalizer.OKX).Maybe()

	accepted := models.Order{
		OrderID: "42", Symbol: "BTC-USDT-SWAP", Side: models.SideBuy,
		Type: models.OrderTypeLimit, Status: models.OrderStatusNew,
		OrigQty: d("1"), ExecutedQty: decimal.Zero,
	}
	stop := models.Order{
		OrderID: "43", Symbol: "BTC-USDT-SWAP", Side: models.SideBuy,
		Type: models.OrderTypeStopMarket, Status: models.OrderStatusNew, ReduceOnly: true,
		OrigQty: d("1"), ExecutedQty: decimal.Zero,
	}

	ex.On("PlaceOrder", mock.Anything, mock.AnythingOfType("exchange.OrderRequest")).
		Return(nil, &exchange.Error{Kind: exchange.KindDuplicateOrder, Exchange: normalizer.OKX, Code: "51016"})
	ex.On("GetOpenOrders", mock.Anything, "BTC-USDT-SWAP").
		Return([]models.Order{stop, accepted}, nil)

	trader := exchange.NewTrader(ex, exchange.NewRetryPolicy(3, quietLogger()), quietLogger())

	t.Run("limit", func(t *testing.T) {
		order, err := trader.PlaceOrder(ctx, exchange.OrderRequest{
			Symbol: "BTC-USDT-SWAP", Side: models.SideBuy, Type: models.OrderTypeLimit,
			Price: d("100"), Quantity: d("1"), ClientOrderID: "x",
		})
		require.NoError(t, err)
		assert.Equal(t, "42", order.OrderID)
	})

	t.Run("stop loss", func(t *testing.T) {
		order, err := trader.PlaceOrder(ctx, exchange.OrderRequest{
			Symbol: "BTC-USDT-SWAP", Side: models.SideBuy, Type: models.OrderTypeStopMarket,
			StopPrice: d("110"), Quantity: d("1"), ReduceOnly: true, ClientOrderID: "y",
		})
		require.NoError(t, err)
		assert.Equal(t, "43", order.OrderID)
	})
}

func TestInvalidOrderIsSkipped(t *testing.T) {
	ex := mocks.NewExchange(t)
	ex.On("Name").Return(normalizer.BingX).Maybe()
	ex.On("PlaceOrder", mock.Anything, mock.Anything).
		Return(nil, &exchange.Error{Kind: exchange.KindInvalidOrder, Exchange: normalizer.BingX, Code: "80014"}).
		Once()

	trader := exchange.NewTrader(ex, nil, quietLogger())

	order, err := trader.PlaceOrder(context.Background(), exchange.OrderRequest{
		Symbol: "BTC-USDT", Side: models.SideSell, Type: models.OrderTypeLimit,
		Price: d("100"), Quantity: d("1"), ReduceOnly: true,
	})
	assert.NoError(t, err)
	assert.Nil(t, order)
}

func minuteCandles(start time.Time, closes ...string) models.Candles {
	out := make(models.Candles, 0, len(closes))
	for i, c := range closes {
		open := start.Add(time.Duration(i) * time.Minute).UnixMilli()
		out = append(out, models.Candle{
			OpenTime: open, Open: d(c), High: d(c), Low: d(c), Close: d(c),
			Volume: d("1"), VolumeUSD: d(c), CloseTime: open + time.Minute.Milliseconds() - 1,
		})
	}
	return out
}

func TestKlineHelpers(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2023, 7, 1, 0, 1, 0, 0, time.UTC)

	t.Run("2m bars are grouped from aligned 1m bars", func(t *testing.T) {
		trader, paper := newPaperTrader(t)
		paper.SetCandles("BTCUSDT", minuteCandles(start, "1", "2", "3", "4", "5", "6"))

		candles, err := trader.GetKlines(ctx, exchange.KlineQuery{Symbol: "BTCUSDT", Interval: "2m", Limit: 2})
		require.NoError(t, err)
		require.Len(t, candles, 2)
		assert.Equal(t, start.Add(time.Minute).UnixMilli(), candles[0].OpenTime)
		assert.Equal(t, "3", candles[0].Close.String())
		assert.Equal(t, "5", candles[1].Close.String())
		assert.Equal(t, "4", candles[1].Low.String())
	})

	t.Run("max unrealised loss", func(t *testing.T) {
		trader, paper := newPaperTrader(t)
		now := time.Now().Truncate(time.Minute)
		paper.SetCandles("BTCUSDT", minuteCandles(now.Add(-3*time.Minute), "100", "95", "104", "101"))

		long, err := trader.MaxUnrealisedLossPct(ctx, "BTCUSDT", models.SideBuy, d("100"), now.Add(-3*time.Minute))
		require.NoError(t, err)
		assert.Equal(t, "5", long.String())

		short, err := trader.MaxUnrealisedLossPct(ctx, "BTCUSDT", models.SideSell, d("100"), now.Add(-3*time.Minute))
		require.NoError(t, err)
		assert.Equal(t, "4", short.String())

		none, err := trader.MaxUnrealisedLossPct(ctx, "BTCUSDT", models.SideBuy, d("90"), now.Add(-3*time.Minute))
		require.NoError(t, err)
		assert.True(t, none.IsZero())
	})

	t.Run("abnormal volume", func(t *testing.T) {
		ex := mocks.NewExchange(t)
		ex.On("Name").Return(normalizer.Bybit).Maybe()

		hourly := make(models.Candles, 24)
		for i := range hourly {
			hourly[i] = models.Candle{VolumeUSD: d("1000")}
		}
		daily := models.Candles{
			{VolumeUSD: d("4000")}, {VolumeUSD: d("4000")}, {VolumeUSD: d("4000")}, {VolumeUSD: d("999999")},
		}
		ex.On("GetKlines", mock.Anything, exchange.KlineQuery{Symbol: "BTCUSDT", Interval: "1h", Limit: 24}).Return(hourly, nil)
		ex.On("GetKlines", mock.Anything, exchange.KlineQuery{Symbol: "BTCUSDT", Interval: "1d", Limit: 4}).Return(daily, nil)

		trader := exchange.NewTrader(ex, nil, quietLogger())

		avg, err := trader.AverageDailyVolume(ctx, "BTCUSDT", 3)
		require.NoError(t, err)
		assert.Equal(t, "4000", avg.String())

		abnormal, err := trader.AbnormalVolume(ctx, "BTCUSDT", d("5"), 3)
		require.NoError(t, err)
		assert.True(t, abnormal)

		abnormal, err = trader.AbnormalVolume(ctx, "BTCUSDT", d("6"), 3)
		require.NoError(t, err)
		assert.False(t, abnormal)
	})
}

func TestClientOrderID(t *testing.T) {
	gate := exchange.NewTrader(exchange.NewPaper(normalizer.Gate, d("0"), btcPrecision), nil, quietLogger())
	id := gate.ClientOrderID("ShortStopLoss", "BTC_USDT")
	assert.LessOrEqual(t, len(id), 26)
	assert.Contains(t, id, "ShortStopLoss")

	binance := exchange.NewTrader(exchange.NewPaper(normalizer.Binance, d("0"), btcPrecision), nil, quietLogger())
	assert.Contains(t, binance.ClientOrderID("BUY", "BTCUSDT"), "BUYBTCUSDT")
}

func TestCancelOpenOrdersBySide(t *testing.T) {
	ctx := context.Background()
	trader, _ := newPaperTrader(t)

	for _, req := range []exchange.LimitOrderRequest{
		{Symbol: "BTCUSDT", Side: models.SideBuy, Price: d("90"), Quantity: d("1")},
		{Symbol: "BTCUSDT", Side: models.SideBuy, Price: d("80"), Quantity: d("1")},
		{Symbol: "BTCUSDT", Side: models.SideSell, Price: d("110"), Quantity: d("1")},
	} {
		_, err := trader.PlaceLimitOrder(ctx, req)
		require.NoError(t, err)
	}

	require.NoError(t, trader.CancelOpenBuyOrders(ctx, "BTCUSDT"))

	open, err := trader.GetOpenOrders(ctx, "BTCUSDT")
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, models.SideSell, open[0].Side)

	require.NoError(t, trader.CancelOpenSellOrders(ctx, "BTCUSDT"))

	open, err = trader.GetOpenOrders(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Empty(t, open)
}
