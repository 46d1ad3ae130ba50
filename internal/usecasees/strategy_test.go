package usecasees

import (
	"context"
	"database/sql"
	"io/ioutil"
	"sync"
	"testing"
	"time"

	ctrlmocks "flushbot/internal/controllers/mocks"
	"flushbot/internal/exchange"
	"flushbot/internal/feed"
	"flushbot/internal/normalizer"
	"flushbot/internal/repository/mocks"
	"flushbot/internal/usecasees/structs"
	"flushbot/models"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testSymbol = "BTCUSDT"

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(ioutil.Discard)
	return logger
}

// minuteCandles builds 1m bars from closes, high and low equal to the close.
func minuteCandles(volume string, closes ...string) models.Candles {
	out := make(models.Candles, 0, len(closes))
	for i, c := range closes {
		open := t0.Add(time.Duration(i) * time.Minute)
		out = append(out, models.Candle{
			OpenTime:  open.UnixMilli(),
			Open:      d(c),
			High:      d(c),
			Low:       d(c),
			Close:     d(c),
			Volume:    d("1"),
			VolumeUSD: d(volume),
			CloseTime: open.Add(time.Minute).UnixMilli() - 1,
		})
	}
	return out
}

func flatCloses(n int, price string) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = price
	}
	return out
}

func nullInt(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: true}
}

// tickPrice keeps printing price for a while so an order CloseBestPrice
// rests at the touch gets matched.
func tickPrice(paper *exchange.Paper, price string) {
	go func() {
		for i := 0; i < 400; i++ {
			time.Sleep(5 * time.Millisecond)
			paper.SetPrice(testSymbol, d(price))
		}
	}()
}

type testEngine struct {
	*strategyUseCase
	paper    *exchange.Paper
	wallets  *mocks.WalletRepo
	trades   *mocks.TradeRepo
	settings *mocks.SettingsRepo
}

func testSettings() *models.Settings {
	return &models.Settings{
		Name:                   "btc",
		Exchange:               normalizer.Binance,
		Interval:               "1m",
		Symbol:                 testSymbol,
		FlushPercent:           d("10"),
		SqueezePercent:         d("10"),
		NumberOfFlushBars:      3,
		ExitLookbackBars:       3,
		StopLossPercentageLong: d("5"),
		Quantity:               d("1"),
	}
}

func quietConfig() StrategyConfig {
	cfg := DefaultStrategyConfig()
	cfg.AbnormalVolumeMultiplier = decimal.Zero
	cfg.VolatilityLimit = decimal.Zero
	cfg.RangeLimitDays = 0
	cfg.EnvFile = ""
	return cfg
}

func newTestPaper(candles models.Candles) *exchange.Paper {
	paper := exchange.NewPaper(normalizer.Binance, d("1000"), normalizer.Precision{TickSize: d("0.1"), StepSize: d("0.001")})
	paper.SetCandles(testSymbol, candles)
	return paper
}

func newTestEngine(t *testing.T, settings *models.Settings, cfg StrategyConfig, candles models.Candles) *testEngine {
	t.Helper()

	paper := newTestPaper(candles)
	return buildTestEngine(t, settings, cfg, candles, paper, paper)
}

// scriptedExchange is the paper exchange with failures switched on by the
// test.
type scriptedExchange struct {
	*exchange.Paper

	mu          sync.Mutex
	rejectSells bool
	partialID   string
}

func (s *scriptedExchange) PlaceOrder(ctx context.Context, req exchange.OrderRequest) (*models.Order, error) {
	s.mu.Lock()
	reject := s.rejectSells && req.Side == models.SideSell && !req.ReduceOnly
	s.mu.Unlock()

	if reject {
		return nil, errors.New("sell entry rejected")
	}
	return s.Paper.PlaceOrder(ctx, req)
}

// GetOrder reports the order partialID as half filled at its price.
func (s *scriptedExchange) GetOrder(ctx context.Context, symbol string, ref exchange.OrderRef) (*models.Order, error) {
	o, err := s.Paper.GetOrder(ctx, symbol, ref)
	if err != nil || o == nil {
		return o, err
	}

	s.mu.Lock()
	partial := s.partialID != "" && o.OrderID == s.partialID
	s.mu.Unlock()

	if partial {
		o.Status = models.OrderStatusPartiallyFilled
		o.ExecutedQty = o.OrigQty.Div(decimal.NewFromInt(2))
		o.AvgPrice = o.Price
	}
	return o, nil
}

func (s *scriptedExchange) rejectSellEntries() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectSells = true
}

func (s *scriptedExchange) fillPartially(orderID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.partialID = orderID
}

func newScriptedEngine(t *testing.T, settings *models.Settings, cfg StrategyConfig, candles models.Candles) (*testEngine, *scriptedExchange) {
	t.Helper()

	ex := &scriptedExchange{Paper: newTestPaper(candles)}
	return buildTestEngine(t, settings, cfg, candles, ex, ex.Paper), ex
}

func buildTestEngine(t *testing.T, settings *models.Settings, cfg StrategyConfig, candles models.Candles, ex exchange.Exchange, paper *exchange.Paper) *testEngine {
	t.Helper()

	logger := quietLogger()

	policy := exchange.NewRetryPolicy(1, logger)
	policy.Sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	trader := exchange.NewTrader(ex, policy, logger)

	f, err := feed.New(trader, nil, testSymbol, settings.Interval, settings.CandleLimit(), logger)
	require.NoError(t, err)

	wallets := mocks.NewWalletRepo(t)
	wallets.On("GetBySetting", mock.Anything, mock.Anything).Return(nil, nil).Maybe()
	wallets.On("Insert", mock.Anything, mock.Anything).Return(int64(1), nil).Maybe()
	wallets.On("Update", mock.Anything, int64(1), mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	wallets.On("SetLastTradeID", mock.Anything, int64(1), mock.Anything).Return(nil).Maybe()
	wallets.On("ClearLastTradeID", mock.Anything, mock.Anything).Return(nil).Maybe()

	trades := mocks.NewTradeRepo(t)
	trades.On("OpenTrade", mock.Anything, mock.Anything).Return(int64(7), nil).Maybe()
	trades.On("UpdateEntry", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	trades.On("CloseTrade", mock.Anything, int64(7), mock.Anything, mock.Anything, mock.Anything).
		Return(models.ExitUpdate{Closed: true}, nil).Maybe()
	trades.On("GetByID", mock.Anything, int64(7)).Return(&models.Trade{ID: 7}, nil).Maybe()
	trades.On("SetCloseStats", mock.Anything, int64(7), mock.Anything, mock.Anything).Return(nil).Maybe()
	trades.On("LogFailedEntry", mock.Anything, testSymbol, mock.Anything).Return(nil).Maybe()

	settingsRepo := mocks.NewSettingsRepo(t)

	notifier := &ctrlmocks.Notifier{}
	notifier.On("Notify", mock.Anything, mock.Anything).Maybe()

	u, err := NewStrategyUseCase("btc", settings, cfg, trader, f, wallets, trades, settingsRepo, notifier,
		NewMetrics(prometheus.NewRegistry()), logger)
	require.NoError(t, err)

	// the newest bar is still forming
	last, _ := candles.Last()
	u.now = func() time.Time { return time.UnixMilli(last.OpenTime).Add(30 * time.Second) }

	return &testEngine{strategyUseCase: u, paper: paper, wallets: wallets, trades: trades, settings: settingsRepo}
}

func (e *testEngine) controls(c models.Controls) {
	e.settings.On("Controls", mock.Anything, "btc").Return(c, true, nil).Maybe()
}

func (e *testEngine) openOrders(t *testing.T) []models.Order {
	t.Helper()
	open, err := e.trader.GetOpenOrders(context.Background(), testSymbol)
	require.NoError(t, err)
	return open
}

func TestStrategy_Entries(t *testing.T) {
	ctx := context.Background()

	t.Run("flush entry under the highest high", func(t *testing.T) {
		e := newTestEngine(t, testSettings(), quietConfig(), minuteCandles("1000", "100", "100", "100", "100", "100"))
		e.controls(models.Controls{})
		require.NoError(t, e.Init(ctx))

		require.NoError(t, e.SetOrders(ctx))

		state := e.State()
		require.NotNil(t, state.CurrentBuyOrder)
		assert.Nil(t, state.CurrentSellOrder)
		assert.Equal(t, "90", state.CurrentBuyOrder.Price.String())
		assert.Equal(t, "1", state.CurrentBuyOrder.OrigQty.String())
		assert.Len(t, e.openOrders(t), 1)
		assert.Equal(t, structs.PhaseEntryPending, e.Status().Phase)
	})

	t.Run("unchanged entry is kept", func(t *testing.T) {
		e := newTestEngine(t, testSettings(), quietConfig(), minuteCandles("1000", "100", "100", "100", "100", "100"))
		e.controls(models.Controls{})
		require.NoError(t, e.Init(ctx))

		require.NoError(t, e.SetOrders(ctx))
		first := e.State().CurrentBuyOrder.OrderID

		require.NoError(t, e.SetOrders(ctx))
		assert.Equal(t, first, e.State().CurrentBuyOrder.OrderID)
		assert.Len(t, e.openOrders(t), 1)
	})

	t.Run("moved entry is replaced", func(t *testing.T) {
		e := newTestEngine(t, testSettings(), quietConfig(), minuteCandles("1000", "100", "100", "100", "100", "100"))
		e.controls(models.Controls{})
		require.NoError(t, e.Init(ctx))
		require.NoError(t, e.SetOrders(ctx))
		first := e.State().CurrentBuyOrder.OrderID

		e.paper.SetCandles(testSymbol, minuteCandles("1000", "100", "100", "100", "110", "110"))
		require.NoError(t, e.SetOrders(ctx))

		state := e.State()
		require.NotNil(t, state.CurrentBuyOrder)
		assert.NotEqual(t, first, state.CurrentBuyOrder.OrderID)
		assert.Equal(t, "99", state.CurrentBuyOrder.Price.String())
		assert.Len(t, e.openOrders(t), 1)
	})

	t.Run("shorts add a squeeze entry", func(t *testing.T) {
		settings := testSettings()
		settings.Shorts = true
		settings.ShortsPositionMultiplier = d("2")
		settings.Quantity = decimal.Zero
		settings.FixedBalance = d("100")

		e := newTestEngine(t, settings, quietConfig(), minuteCandles("1000", "100", "100", "100", "100", "100"))
		e.controls(models.Controls{})
		require.NoError(t, e.Init(ctx))
		require.NoError(t, e.SetOrders(ctx))

		state := e.State()
		require.NotNil(t, state.CurrentBuyOrder)
		require.NotNil(t, state.CurrentSellOrder)
		assert.Equal(t, "110", state.CurrentSellOrder.Price.String())
		// 100 * 2 / 110
		assert.Equal(t, "1.818", state.CurrentSellOrder.OrigQty.String())
		assert.Equal(t, "1.111", state.CurrentBuyOrder.OrigQty.String())
	})

	t.Run("avoid market entries skips a buy the price is already under", func(t *testing.T) {
		settings := testSettings()
		settings.AvoidMarketEntries = true

		e := newTestEngine(t, settings, quietConfig(), minuteCandles("1000", "100", "100", "100", "85", "85"))
		e.controls(models.Controls{})
		require.NoError(t, e.Init(ctx))
		require.NoError(t, e.SetOrders(ctx))

		assert.Nil(t, e.State().CurrentBuyOrder)
		assert.Empty(t, e.openOrders(t))
	})

	t.Run("wait skips the bar", func(t *testing.T) {
		e := newTestEngine(t, testSettings(), quietConfig(), minuteCandles("1000", "100", "100", "100", "100", "100"))
		e.controls(models.Controls{Wait: true})
		require.NoError(t, e.Init(ctx))

		require.NoError(t, e.SetOrders(ctx))
		assert.Empty(t, e.openOrders(t))
	})

	t.Run("unrealised drawdown pauses entries", func(t *testing.T) {
		cfg := quietConfig()
		cfg.UnrealisedPnlDrawdown = d("2")

		e := newTestEngine(t, testSettings(), cfg, minuteCandles("1000", "100", "100", "100", "100", "100"))
		e.controls(models.Controls{})
		e.paper.SetPrice("ETHUSDT", d("50"))
		e.paper.SetPosition(models.Position{
			Symbol:           "ETHUSDT",
			EntryPrice:       d("100"),
			PositionAmt:      d("1"),
			UnRealizedProfit: d("-50"),
		})
		require.NoError(t, e.Init(ctx))

		require.NoError(t, e.SetOrders(ctx))
		assert.Empty(t, e.openOrders(t))
		assert.False(t, e.Stopped())
	})
}

func TestStrategy_Lifecycle(t *testing.T) {
	ctx := context.Background()

	t.Run("entry fill places exit, exit fill compounds the wallet", func(t *testing.T) {
		e := newTestEngine(t, testSettings(), quietConfig(), minuteCandles("1000", "100", "100", "100", "100", "100"))
		e.controls(models.Controls{})
		require.NoError(t, e.Init(ctx))
		require.NoError(t, e.SetOrders(ctx))

		e.paper.SetPrice(testSymbol, d("90"))
		require.NoError(t, e.SetOrders(ctx))

		state := e.State()
		assert.Equal(t, "90", state.EntryPrice.String())
		assert.Equal(t, int64(7), state.TradeID)
		require.NotNil(t, state.CurrentSellOrder)
		assert.True(t, state.CurrentSellOrder.ReduceOnly)
		assert.Equal(t, "100", state.CurrentSellOrder.Price.String())
		require.NotNil(t, state.StopLossOrder)
		assert.Equal(t, "85.5", state.StopLossOrder.StopPrice.String())
		assert.Equal(t, structs.PhaseExitPending, e.Status().Phase)
		e.wallets.AssertCalled(t, "SetLastTradeID", mock.Anything, int64(1), int64(7))

		e.paper.SetPrice(testSymbol, d("100"))
		require.NoError(t, e.RegularCheck(ctx))

		state = e.State()
		assert.Equal(t, int64(0), state.TradeID)
		assert.True(t, state.EntryPrice.IsZero())
		assert.Equal(t, "111.11", e.ledger.State().Wallet.StringFixed(2))
		e.trades.AssertCalled(t, "CloseTrade", mock.Anything, int64(7), mock.Anything, mock.Anything, mock.Anything)
		e.wallets.AssertCalled(t, "ClearLastTradeID", mock.Anything, int64(7))
		// the stop loss went with the exit
		assert.Empty(t, e.openOrders(t))
	})

	t.Run("stop loss over the single trade limit stops the engine", func(t *testing.T) {
		settings := testSettings()
		settings.MaxSingleTradeLossPercentage = d("5")

		e := newTestEngine(t, settings, quietConfig(), minuteCandles("1000", "100", "100", "100", "100", "100"))
		e.controls(models.Controls{})
		require.NoError(t, e.Init(ctx))
		require.NoError(t, e.SetOrders(ctx))
		e.paper.SetPrice(testSymbol, d("90"))
		require.NoError(t, e.SetOrders(ctx))

		e.paper.SetPrice(testSymbol, d("85"))
		err := e.RegularCheck(ctx)
		require.Error(t, err)

		var rb *RiskBreachError
		require.True(t, errors.As(err, &rb))
		assert.Equal(t, "max_single_trade_loss", rb.Check)
		assert.True(t, e.Stopped())
		assert.Equal(t, "95.00", e.ledger.State().Wallet.StringFixed(2))
		assert.Empty(t, e.openOrders(t))

		// stopped engines do nothing
		assert.Equal(t, err, e.SetOrders(ctx))
		assert.True(t, e.Status().Stopped)
	})

	t.Run("stop loss termination", func(t *testing.T) {
		settings := testSettings()
		settings.StopLossTermination = true

		e := newTestEngine(t, settings, quietConfig(), minuteCandles("1000", "100", "100", "100", "100", "100"))
		e.controls(models.Controls{})
		require.NoError(t, e.Init(ctx))
		require.NoError(t, e.SetOrders(ctx))
		e.paper.SetPrice(testSymbol, d("90"))
		require.NoError(t, e.SetOrders(ctx))

		e.paper.SetPrice(testSymbol, d("85"))
		err := e.RegularCheck(ctx)
		assert.ErrorIs(t, err, ErrEngineStopped)
		assert.True(t, e.Stopped())
	})

	t.Run("soft stop loss closes after n closes beyond it", func(t *testing.T) {
		settings := testSettings()
		settings.StopLossPercentageLong = decimal.Zero
		settings.SoftSLPercentage = d("5")
		settings.SoftSLN = 2

		e := newTestEngine(t, settings, quietConfig(), minuteCandles("1000", "100", "100", "100", "100", "100"))
		e.controls(models.Controls{})
		require.NoError(t, e.Init(ctx))
		require.NoError(t, e.SetOrders(ctx))
		e.paper.SetPrice(testSymbol, d("90"))
		require.NoError(t, e.SetOrders(ctx))
		require.Nil(t, e.State().StopLossOrder)

		e.paper.SetCandles(testSymbol, minuteCandles("1000", "100", "100", "100", "85", "84", "84"))
		tickPrice(e.paper, "84")
		require.NoError(t, e.SetOrders(ctx))

		pos, err := e.trader.GetPosition(ctx, testSymbol)
		require.NoError(t, err)
		assert.True(t, pos.IsFlat())
		assert.False(t, e.Stopped())
		// closed at 84 from 90
		assert.Equal(t, "93.33", e.ledger.State().Wallet.StringFixed(2))
	})
}

func TestStrategy_RiskStops(t *testing.T) {
	ctx := context.Background()

	t.Run("abnormal volume stops a flat engine", func(t *testing.T) {
		cfg := quietConfig()
		cfg.AbnormalVolumeMultiplier = d("5")
		cfg.AbnormalVolumeDays = 7

		// every bar serves as hourly and daily bar on the paper exchange
		e := newTestEngine(t, testSettings(), cfg, minuteCandles("1000", flatCloses(30, "100")...))
		e.controls(models.Controls{})
		require.NoError(t, e.Init(ctx))

		err := e.SetOrders(ctx)
		var rb *RiskBreachError
		require.True(t, errors.As(err, &rb))
		assert.Equal(t, "abnormal_volume", rb.Check)
		assert.True(t, e.Stopped())
	})

	t.Run("ignoring abnormal volume", func(t *testing.T) {
		cfg := quietConfig()
		cfg.AbnormalVolumeMultiplier = d("5")
		cfg.AbnormalVolumeDays = 7

		e := newTestEngine(t, testSettings(), cfg, minuteCandles("1000", flatCloses(30, "100")...))
		e.controls(models.Controls{IgnoreAbnormalVolume: true})
		require.NoError(t, e.Init(ctx))

		require.NoError(t, e.SetOrders(ctx))
		assert.NotNil(t, e.State().CurrentBuyOrder)
	})

	t.Run("volatility stops a flat engine", func(t *testing.T) {
		cfg := quietConfig()
		cfg.VolatilityLimit = d("25")

		e := newTestEngine(t, testSettings(), cfg, minuteCandles("1000", "100", "70", "100", "100", "100"))
		e.controls(models.Controls{})
		require.NoError(t, e.Init(ctx))

		err := e.SetOrders(ctx)
		var rb *RiskBreachError
		require.True(t, errors.As(err, &rb))
		assert.Equal(t, "volatility", rb.Check)
	})

	t.Run("close only without position stops", func(t *testing.T) {
		e := newTestEngine(t, testSettings(), quietConfig(), minuteCandles("1000", "100", "100", "100", "100", "100"))
		e.controls(models.Controls{CloseOnly: true})
		require.NoError(t, e.Init(ctx))

		err := e.SetOrders(ctx)
		assert.ErrorIs(t, err, ErrEngineStopped)
		assert.True(t, e.Stopped())
	})

	t.Run("unlisted strategy winds down", func(t *testing.T) {
		e := newTestEngine(t, testSettings(), quietConfig(), minuteCandles("1000", "100", "100", "100", "100", "100"))
		e.settings.On("Controls", mock.Anything, "btc").Return(models.Controls{}, false, nil)
		require.NoError(t, e.Init(ctx))

		assert.ErrorIs(t, e.SetOrders(ctx), ErrEngineStopped)
	})

	t.Run("force close flattens the position", func(t *testing.T) {
		e := newTestEngine(t, testSettings(), quietConfig(), minuteCandles("1000", "100", "100", "100", "100", "100"))
		e.paper.SetPosition(models.Position{Symbol: testSymbol, EntryPrice: d("95"), PositionAmt: d("2")})
		e.controls(models.Controls{ForceClose: true})
		require.NoError(t, e.Init(ctx))

		tickPrice(e.paper, "100")

		assert.ErrorIs(t, e.SetOrders(ctx), ErrEngineStopped)

		pos, err := e.trader.GetPosition(ctx, testSymbol)
		require.NoError(t, err)
		assert.True(t, pos.IsFlat())
	})

	t.Run("breached wallet stops on start", func(t *testing.T) {
		e := newTestEngine(t, testSettings(), quietConfig(), minuteCandles("1000", "100", "100", "100", "100", "100"))
		e.wallets.ExpectedCalls = nil
		e.wallets.On("GetBySetting", mock.Anything, mock.Anything).Return([]models.InternalWallet{{
			ID:                        3,
			StartTime:                 time.Now().Add(-time.Hour).Format(models.DateTimeLayout),
			InternalWallet:            d("40"),
			InternalWalletMaxDrawdown: d("50"),
		}}, nil)

		err := e.Init(ctx)
		var rb *RiskBreachError
		require.True(t, errors.As(err, &rb))
		assert.Equal(t, "max_drawdown", rb.Check)
	})

	t.Run("min balance", func(t *testing.T) {
		settings := testSettings()
		settings.MinBalance = d("5000")

		e := newTestEngine(t, settings, quietConfig(), minuteCandles("1000", "100", "100", "100", "100", "100"))
		e.controls(models.Controls{})
		require.NoError(t, e.Init(ctx))

		err := e.SetOrders(ctx)
		var rb *RiskBreachError
		require.True(t, errors.As(err, &rb))
		assert.Equal(t, "min_balance", rb.Check)
	})
}

func TestStrategy_Recovery(t *testing.T) {
	ctx := context.Background()

	t.Run("resumes the trade of an open position", func(t *testing.T) {
		e := newTestEngine(t, testSettings(), quietConfig(), minuteCandles("1000", "100", "100", "100", "100", "100"))
		e.paper.SetPosition(models.Position{Symbol: testSymbol, EntryPrice: d("95"), PositionAmt: d("1")})
		e.wallets.ExpectedCalls = nil
		e.wallets.On("GetBySetting", mock.Anything, mock.Anything).Return([]models.InternalWallet{{
			ID:                        1,
			StartTime:                 time.Now().Add(-time.Hour).Format(models.DateTimeLayout),
			InternalWallet:            d("120"),
			InternalWalletMaxDrawdown: d("60"),
			LastTradeID:               nullInt(7),
		}}, nil)

		require.NoError(t, e.Init(ctx))

		state := e.State()
		assert.Equal(t, int64(7), state.TradeID)
		assert.Equal(t, "95", state.EntryPrice.String())
		assert.Equal(t, structs.PhaseInPosition, e.Status().Phase)
		assert.Equal(t, "120.00", e.Status().Wallet)
	})
}

func TestStrategy_Exits(t *testing.T) {
	ctx := context.Background()

	for name, tc := range map[string]struct {
		closes     []string
		amt        string
		takeProfit string
		lookback   int
		avoid      bool
		side       models.Side
		want       string
	}{
		"lookback high under the take profit": {
			closes: []string{"100", "103", "101", "100", "100"}, amt: "1", takeProfit: "5", lookback: 3,
			side: models.SideSell, want: "103",
		},
		"take profit under the lookback high rounds up": {
			closes: []string{"100", "103", "101", "100", "100"}, amt: "1", takeProfit: "2.04", lookback: 3,
			side: models.SideSell, want: "102.1",
		},
		"take profit alone": {
			closes: []string{"100", "103", "101", "100", "100"}, amt: "1", takeProfit: "5", lookback: 0,
			side: models.SideSell, want: "105",
		},
		"short exits at the lookback low": {
			closes: []string{"100", "97", "99", "100", "100"}, amt: "-1", takeProfit: "5", lookback: 3,
			side: models.SideBuy, want: "97",
		},
		"short take profit rounds down": {
			closes: []string{"100", "97", "99", "100", "100"}, amt: "-1", takeProfit: "2.04", lookback: 3,
			side: models.SideBuy, want: "97.9",
		},
		"passed take profit exits at the touch": {
			closes: []string{"100", "103", "101", "104", "104"}, amt: "1", takeProfit: "2", lookback: 3, avoid: true,
			side: models.SideSell, want: "104",
		},
	} {
		t.Run(name, func(t *testing.T) {
			settings := testSettings()
			settings.TakeProfitPercentage = d(tc.takeProfit)
			settings.ExitLookbackBars = tc.lookback
			settings.AvoidMarketEntries = tc.avoid

			e := newTestEngine(t, settings, quietConfig(), minuteCandles("1000", tc.closes...))
			e.paper.SetPosition(models.Position{Symbol: testSymbol, EntryPrice: d("100"), PositionAmt: d(tc.amt)})
			e.controls(models.Controls{})
			require.NoError(t, e.Init(ctx))

			require.NoError(t, e.SetOrders(ctx))

			exit := e.trackedOrder(tc.side)
			require.NotNil(t, exit)
			assert.True(t, exit.ReduceOnly)
			assert.Equal(t, tc.want, exit.Price.String())
			assert.Equal(t, tc.avoid, e.State().ExceededProfitStillInPosition)
			if tc.avoid {
				assert.Nil(t, e.State().StopLossOrder)
			}
		})
	}
}

func TestStrategy_RangeLimit(t *testing.T) {
	ctx := context.Background()

	cfg := quietConfig()
	cfg.RangeLimitDays = 2

	// every bar serves as a daily bar on the paper exchange
	for name, tc := range map[string]struct {
		closes  []string
		reverse bool
		wantBuy bool
	}{
		"entry under the daily range is skipped": {closes: []string{"100", "100", "100", "100", "100"}},
		"entry inside the daily range":           {closes: []string{"100", "100", "100", "85", "100"}, wantBuy: true},
		"reverse mode ignores the range":         {closes: []string{"100", "100", "100", "100", "100"}, reverse: true, wantBuy: true},
	} {
		t.Run(name, func(t *testing.T) {
			settings := testSettings()
			settings.ReverseMode = tc.reverse
			// breakout entries need the squeeze side
			settings.Shorts = tc.reverse
			settings.ShortsPositionMultiplier = d("1")

			e := newTestEngine(t, settings, cfg, minuteCandles("1000", tc.closes...))
			e.controls(models.Controls{})
			require.NoError(t, e.Init(ctx))

			require.NoError(t, e.SetOrders(ctx))

			assert.Equal(t, tc.wantBuy, e.State().CurrentBuyOrder != nil)
			assert.False(t, e.Stopped())
		})
	}
}

func TestStrategy_ReverseMode(t *testing.T) {
	ctx := context.Background()

	settings := testSettings()
	settings.ReverseMode = true
	settings.Shorts = true
	settings.ShortsPositionMultiplier = d("1")
	settings.ExitLookbackBars = 0
	settings.TakeProfitPercentage = d("5")

	e := newTestEngine(t, settings, quietConfig(), minuteCandles("1000", "100", "100", "100", "100", "100"))
	e.controls(models.Controls{})
	require.NoError(t, e.Init(ctx))

	require.NoError(t, e.SetOrders(ctx))

	// breakout entries: buy stop over the low, sell stop under the high
	state := e.State()
	require.NotNil(t, state.CurrentBuyOrder)
	require.NotNil(t, state.CurrentSellOrder)
	assert.Equal(t, models.OrderTypeStop, state.CurrentBuyOrder.Type)
	assert.Equal(t, "110", state.CurrentBuyOrder.StopPrice.String())
	assert.Equal(t, models.OrderTypeStop, state.CurrentSellOrder.Type)
	assert.Equal(t, "90", state.CurrentSellOrder.StopPrice.String())

	e.paper.SetPrice(testSymbol, d("110"))
	require.NoError(t, e.SetOrders(ctx))

	state = e.State()
	assert.Equal(t, "110", state.EntryPrice.String())
	require.NotNil(t, state.CurrentSellOrder)
	assert.True(t, state.CurrentSellOrder.ReduceOnly)
	assert.Equal(t, "115.5", state.CurrentSellOrder.Price.String())
	require.NotNil(t, state.StopLossOrder)
	assert.Equal(t, "104.5", state.StopLossOrder.StopPrice.String())

	e.paper.SetPrice(testSymbol, d("115.5"))
	require.NoError(t, e.RegularCheck(ctx))

	pos, err := e.trader.GetPosition(ctx, testSymbol)
	require.NoError(t, err)
	assert.True(t, pos.IsFlat())
	assert.Equal(t, "105.00", e.ledger.State().Wallet.StringFixed(2))
	assert.Empty(t, e.openOrders(t))
}
