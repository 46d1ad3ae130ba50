package models

import (
	"database/sql"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func minuteBars(start int64, highs ...string) Candles {
	out := make(Candles, 0, len(highs))
	for i, h := range highs {
		open := start + int64(i)*60_000
		out = append(out, Candle{
			OpenTime:  open,
			CloseTime: open + 59_999,
			High:      d(h),
			Low:       d(h).Sub(d("10")),
			Close:     d(h).Sub(d("5")),
			Volume:    d("1"),
		})
	}
	return out
}

func TestCandles(t *testing.T) {
	bars := minuteBars(1_700_000_040_000, "100", "120", "110", "90")

	t.Run("extremes over the newest bars", func(t *testing.T) {
		assert.Equal(t, "120", bars.Highest(3).String())
		assert.Equal(t, "110", bars.Highest(2).String())
		assert.Equal(t, "80", bars.Lowest(4).String())
		assert.Equal(t, "80", bars.Lowest(1).String())
		assert.True(t, bars.Highest(0).IsZero())
	})

	t.Run("sequence", func(t *testing.T) {
		assert.True(t, bars.IsSequential())

		gap := append(Candles{}, bars...)
		gap[2].OpenTime += 60_000
		assert.False(t, gap.IsSequential())
	})

	t.Run("current", func(t *testing.T) {
		last, _ := bars.Last()
		open := time.UnixMilli(last.OpenTime)

		assert.True(t, bars.IsCurrent(open.Add(30*time.Second), time.Minute))
		assert.True(t, bars.IsCurrent(open.Add(time.Minute+4*time.Second), time.Minute))
		assert.False(t, bars.IsCurrent(open.Add(time.Minute+6*time.Second), time.Minute))
		assert.False(t, Candles{}.IsCurrent(open, time.Minute))
	})

	t.Run("closed drops the forming bar", func(t *testing.T) {
		last, _ := bars.Last()
		open := time.UnixMilli(last.OpenTime)

		closed := bars.Closed(open.Add(10*time.Second), time.Minute)
		require.Len(t, closed, 3)
		assert.Equal(t, bars[2].OpenTime, closed[2].OpenTime)

		closed = bars.Closed(open.Add(61*time.Second), time.Minute)
		require.Len(t, closed, 3)
		assert.Equal(t, bars[1].OpenTime, closed[0].OpenTime)
	})

	t.Run("upsert", func(t *testing.T) {
		window := append(Candles{}, bars...)
		last, _ := window.Last()
		last.Close = d("1")

		window = window.Upsert(last, 4)
		require.Len(t, window, 4)
		assert.Equal(t, "1", window[3].Close.String())

		next := minuteBars(last.CloseTime+1, "95")[0]
		window = window.Upsert(next, 4)
		require.Len(t, window, 4)
		assert.Equal(t, next.OpenTime, window[3].OpenTime)
		assert.Equal(t, bars[1].OpenTime, window[0].OpenTime)
	})

	t.Run("group", func(t *testing.T) {
		grouped := bars.Group(2)
		require.Len(t, grouped, 2)
		assert.Equal(t, "120", grouped[0].High.String())
		assert.Equal(t, bars[1].CloseTime, grouped[0].CloseTime)
		assert.Equal(t, "2", grouped[1].Volume.String())
		assert.Len(t, bars.Group(3), 1)
	})
}

func TestOrderValidate(t *testing.T) {
	cases := []struct {
		name  string
		order Order
		ok    bool
	}{
		{"new", Order{Status: OrderStatusNew, OrigQty: d("1"), ExecutedQty: d("0")}, true},
		{"partial", Order{Status: OrderStatusPartiallyFilled, OrigQty: d("1"), ExecutedQty: d("0.5")}, true},
		{"filled", Order{Status: OrderStatusFilled, OrigQty: d("1"), ExecutedQty: d("1")}, true},
		{"cancelled after a partial fill", Order{Status: OrderStatusCancelled, OrigQty: d("1"), ExecutedQty: d("0.2")}, true},
		{"overfilled", Order{Status: OrderStatusFilled, OrigQty: d("1"), ExecutedQty: d("1.1")}, false},
		{"partial without execution", Order{Status: OrderStatusPartiallyFilled, OrigQty: d("1"), ExecutedQty: d("0")}, false},
		{"filled short", Order{Status: OrderStatusFilled, OrigQty: d("1"), ExecutedQty: d("0.9")}, false},
		{"new with execution", Order{Status: OrderStatusNew, OrigQty: d("1"), ExecutedQty: d("0.1")}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.order.Validate()
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}

	t.Run("reconcile", func(t *testing.T) {
		o := Order{Status: OrderStatusNew, OrigQty: d("1"), ExecutedQty: d("0.3")}
		o.Reconcile()
		assert.Equal(t, OrderStatusPartiallyFilled, o.Status)
		assert.Equal(t, "0.7", o.Remaining().String())
	})
}

func TestApplyExit(t *testing.T) {
	short := &Trade{
		PositionSide:      sql.NullString{String: PositionSideShort, Valid: true},
		PositionSize:      decimal.NewNullDecimal(d("-2")),
		PositionSizeUSDT:  decimal.NewNullDecimal(d("200")),
		AverageEntryPrice: decimal.NewNullDecimal(d("100")),
	}

	t.Run("short closed in one order", func(t *testing.T) {
		out, err := short.ApplyExit(&Order{OrigQty: d("2"), ExecutedQty: d("2"), AvgPrice: d("95")}, d("0.01"))
		require.NoError(t, err)

		assert.True(t, out.Closed)
		assert.Equal(t, "10", out.RawPnl.String())
		assert.Equal(t, "5", out.RawPnlPercentage.String())
	})

	t.Run("partial exit stays open", func(t *testing.T) {
		out, err := short.ApplyExit(&Order{OrigQty: d("2"), ExecutedQty: d("0.5"), AvgPrice: d("95")}, d("0.01"))
		require.NoError(t, err)

		assert.False(t, out.Closed)
		assert.Equal(t, "0.5", out.ExitAmount.String())
		assert.True(t, out.RawPnl.IsZero())
	})

	t.Run("remainder averaged with the previous exit", func(t *testing.T) {
		tr := *short
		tr.ExitAmount = decimal.NewNullDecimal(d("0.5"))
		tr.AverageExitPrice = decimal.NewNullDecimal(d("95"))

		out, err := tr.ApplyExit(&Order{OrigQty: d("1.5"), ExecutedQty: d("1.5"), AvgPrice: d("99")}, d("0.01"))
		require.NoError(t, err)

		assert.True(t, out.Closed)
		assert.Equal(t, "98", out.AverageExitPrice.String())
		assert.Equal(t, "4", out.RawPnl.String())
	})

	t.Run("too small", func(t *testing.T) {
		_, err := short.ApplyExit(&Order{OrigQty: d("1"), ExecutedQty: d("1"), AvgPrice: d("99")}, d("0.01"))
		assert.ErrorIs(t, err, ErrExitMismatch)
	})
}
