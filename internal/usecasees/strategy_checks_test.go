package usecasees

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"flushbot/internal/normalizer"
	"flushbot/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStrategy_MaxPositions(t *testing.T) {
	ctx := context.Background()

	settings := func() *models.Settings {
		s := testSettings()
		s.MaxNumOfPositions = 1
		return s
	}

	t.Run("entry is capped to the room left", func(t *testing.T) {
		e := newTestEngine(t, settings(), quietConfig(), minuteCandles("1000", "100", "100", "100", "100", "100"))
		e.paper.SetPosition(models.Position{Symbol: "ETHUSDT", EntryPrice: d("100"), PositionAmt: d("9.95")})
		e.controls(models.Controls{})
		require.NoError(t, e.Init(ctx))

		require.NoError(t, e.SetOrders(ctx))

		// 5 USD left under the limit, 5 / 90 rounded down
		require.NotNil(t, e.State().CurrentBuyOrder)
		assert.Equal(t, "0.055", e.State().CurrentBuyOrder.OrigQty.String())
	})

	t.Run("entries are cancelled once other positions fill the limit", func(t *testing.T) {
		e := newTestEngine(t, settings(), quietConfig(), minuteCandles("1000", "100", "100", "100", "100", "100"))
		e.controls(models.Controls{})
		require.NoError(t, e.Init(ctx))
		require.NoError(t, e.SetOrders(ctx))
		require.Len(t, e.openOrders(t), 1)

		e.paper.SetPosition(models.Position{Symbol: "ETHUSDT", EntryPrice: d("100"), PositionAmt: d("9.95")})
		require.NoError(t, e.RegularCheck(ctx))

		assert.Empty(t, e.openOrders(t))
		assert.Nil(t, e.State().CurrentBuyOrder)
		assert.False(t, e.State().ClosePositionOnly)
		assert.False(t, e.Stopped())
	})

	t.Run("a whole wallet over the limit closes at market", func(t *testing.T) {
		e := newTestEngine(t, settings(), quietConfig(), minuteCandles("1000", "100", "100", "100", "100", "100"))
		e.paper.SetPosition(models.Position{Symbol: testSymbol, EntryPrice: d("100"), PositionAmt: d("1")})
		e.paper.SetPosition(models.Position{Symbol: "ETHUSDT", EntryPrice: d("100"), PositionAmt: d("20")})
		e.controls(models.Controls{})
		require.NoError(t, e.Init(ctx))

		require.NoError(t, e.RegularCheck(ctx))

		pos, err := e.trader.GetPosition(ctx, testSymbol)
		require.NoError(t, err)
		assert.True(t, pos.IsFlat())
		assert.True(t, e.State().ClosePositionOnly)

		other, err := e.trader.GetPosition(ctx, "ETHUSDT")
		require.NoError(t, err)
		assert.Equal(t, "20", other.PositionAmt.String())
	})
}

func writeBand(t *testing.T, path, lower, upper string) {
	t.Helper()
	body := fmt.Sprintf("%s=%s\n%s=%s\n", envBTCLowerBound, lower, envBTCUpperBound, upper)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
}

func TestStrategy_BTCBand(t *testing.T) {
	ctx := context.Background()

	for name, tc := range map[string]struct {
		price        string
		lower, upper string
		wantClose    bool
	}{
		"inside the band":            {price: "25000", lower: "20000", upper: "30000"},
		"price over the band":        {price: "35000", lower: "20000", upper: "30000", wantClose: true},
		"price under the band":       {price: "15000", lower: "20000", upper: "30000", wantClose: true},
		"band moved over the price":  {price: "25000", lower: "26000", upper: "30000", wantClose: true},
		"unreadable band is ignored": {price: "35000", lower: "low", upper: "30000"},
	} {
		t.Run(name, func(t *testing.T) {
			cfg := quietConfig()
			cfg.EnvFile = filepath.Join(t.TempDir(), ".env")
			cfg.BTCSymbols = map[string]string{normalizer.Binance: "BTCBAND"}
			writeBand(t, cfg.EnvFile, "20000", "30000")

			e := newTestEngine(t, testSettings(), cfg, minuteCandles("1000", "100", "100", "100", "100", "100"))
			e.paper.SetPrice("BTCBAND", d("25000"))
			e.controls(models.Controls{})
			require.NoError(t, e.Init(ctx))
			require.NoError(t, e.SetOrders(ctx))

			require.NoError(t, e.RegularCheck(ctx))
			require.Len(t, e.openOrders(t), 1)

			e.paper.SetPrice("BTCBAND", d(tc.price))
			writeBand(t, cfg.EnvFile, tc.lower, tc.upper)
			require.NoError(t, e.RegularCheck(ctx))

			assert.Equal(t, tc.wantClose, e.State().ClosePositionOnly)
			if !tc.wantClose {
				assert.Len(t, e.openOrders(t), 1)
				return
			}

			assert.Empty(t, e.openOrders(t))
			assert.Nil(t, e.State().CurrentBuyOrder)

			// close only without a position winds the engine down
			assert.ErrorIs(t, e.SetOrders(ctx), ErrEngineStopped)
			assert.True(t, e.Stopped())
		})
	}
}

func TestStrategy_RecalcOnFill(t *testing.T) {
	ctx := context.Background()

	for name, recalc := range map[string]bool{
		"exit waits for the next bar": false,
		"exit is placed on the fill":  true,
	} {
		t.Run(name, func(t *testing.T) {
			settings := testSettings()
			settings.RecalcOnFill = recalc

			e := newTestEngine(t, settings, quietConfig(), minuteCandles("1000", "100", "100", "100", "100", "100"))
			e.controls(models.Controls{})
			require.NoError(t, e.Init(ctx))
			require.NoError(t, e.SetOrders(ctx))

			e.paper.SetPrice(testSymbol, d("90"))
			require.NoError(t, e.RegularCheck(ctx))

			state := e.State()
			assert.Equal(t, "90", state.EntryPrice.String())
			if !recalc {
				assert.Nil(t, state.CurrentSellOrder)
				assert.Nil(t, state.StopLossOrder)
				assert.Empty(t, e.openOrders(t))
				return
			}

			require.NotNil(t, state.CurrentSellOrder)
			assert.True(t, state.CurrentSellOrder.ReduceOnly)
			assert.Equal(t, "100", state.CurrentSellOrder.Price.String())
			require.NotNil(t, state.StopLossOrder)
			assert.Equal(t, "85.5", state.StopLossOrder.StopPrice.String())
		})
	}
}

func TestStrategy_FailedRecalcCancelsEntries(t *testing.T) {
	ctx := context.Background()

	settings := testSettings()
	settings.RecalcOnFill = true
	settings.Shorts = true
	settings.ShortsPositionMultiplier = d("1")

	e, ex := newScriptedEngine(t, settings, quietConfig(), minuteCandles("1000", "100", "100", "100", "100", "100"))
	e.controls(models.Controls{})
	require.NoError(t, e.Init(ctx))
	require.NoError(t, e.SetOrders(ctx))
	require.Len(t, e.openOrders(t), 2)

	e.paper.SetPrice(testSymbol, d("90"))
	require.NoError(t, e.RegularCheck(ctx))
	require.NotNil(t, e.State().CurrentSellOrder)
	require.True(t, e.State().CurrentSellOrder.ReduceOnly)

	// the exit fills, the new buy entry goes in and the sell entry fails
	ex.rejectSellEntries()
	e.paper.SetPrice(testSymbol, d("100"))
	require.Error(t, e.RegularCheck(ctx))

	assert.Empty(t, e.openOrders(t))
	assert.Nil(t, e.State().CurrentBuyOrder)
	assert.Equal(t, "111.11", e.ledger.State().Wallet.StringFixed(2))
	assert.False(t, e.Stopped())
}

func TestStrategy_PartialExit(t *testing.T) {
	ctx := context.Background()

	for name, closeRest := range map[string]bool{
		"partial exit is kept":        false,
		"partial exit closes the rest": true,
	} {
		t.Run(name, func(t *testing.T) {
			settings := testSettings()
			settings.ClosePartialFills = closeRest

			e, ex := newScriptedEngine(t, settings, quietConfig(), minuteCandles("1000", "100", "100", "100", "100", "100"))
			e.controls(models.Controls{})
			require.NoError(t, e.Init(ctx))
			require.NoError(t, e.SetOrders(ctx))

			e.paper.SetPrice(testSymbol, d("90"))
			require.NoError(t, e.SetOrders(ctx))
			exit := e.State().CurrentSellOrder
			require.NotNil(t, exit)

			ex.fillPartially(exit.OrderID)
			if closeRest {
				tickPrice(e.paper, "95")
			}
			require.NoError(t, e.RegularCheck(ctx))

			pos, err := e.trader.GetPosition(ctx, testSymbol)
			require.NoError(t, err)

			if !closeRest {
				assert.True(t, pos.IsLong())
				assert.Len(t, e.openOrders(t), 2)
				assert.Equal(t, "100.00", e.ledger.State().Wallet.StringFixed(2))

				// the same fill is not handled twice
				require.NoError(t, e.RegularCheck(ctx))
				assert.Len(t, e.openOrders(t), 2)
				return
			}

			assert.True(t, pos.IsFlat())
			assert.Nil(t, e.State().CurrentSellOrder)
			assert.Nil(t, e.State().StopLossOrder)
			// booked at the exit price of 100 from 90
			assert.Equal(t, "111.11", e.ledger.State().Wallet.StringFixed(2))
		})
	}
}
