package rounding_test

import (
	"flushbot/internal/rounding"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestDirectional(t *testing.T) {
	tick := d("0.1")

	t.Run("down", func(t *testing.T) {
		assert.True(t, d("1.7").Equal(rounding.RoundDown(d("1.76"), tick)))
	})

	t.Run("up", func(t *testing.T) {
		assert.True(t, d("1.8").Equal(rounding.RoundUp(d("1.76"), tick)))
		assert.True(t, d("1.7").Equal(rounding.RoundUp(d("1.7"), tick)))
	})

	t.Run("nearest", func(t *testing.T) {
		assert.True(t, d("1.8").Equal(rounding.RoundNearest(d("1.76"), tick)))
		assert.True(t, d("1.7").Equal(rounding.RoundNearest(d("1.74"), tick)))
	})

	t.Run("nearest half to even", func(t *testing.T) {
		assert.True(t, d("2").Equal(rounding.RoundNearest(d("2.5"), d("1"))))
		assert.True(t, d("4").Equal(rounding.RoundNearest(d("3.5"), d("1"))))
	})

	t.Run("coarse step", func(t *testing.T) {
		assert.True(t, d("105").Equal(rounding.RoundUp(d("104.01"), d("5"))))
		assert.True(t, d("100").Equal(rounding.RoundDown(d("104.99"), d("5"))))
	})

	t.Run("zero step", func(t *testing.T) {
		assert.True(t, d("1.234").Equal(rounding.RoundDown(d("1.234"), decimal.Zero)))
	})
}

func TestPlaces(t *testing.T) {
	for step, want := range map[string]int{
		"1":      0,
		"0.1":    1,
		"0.010":  2,
		"0.0005": 4,
		"10":     0,
	} {
		assert.Equal(t, want, rounding.Places(d(step)), step)
	}
}

func TestPercentageRoundTrip(t *testing.T) {
	for _, x := range []string{"1.8", "0", "25", "0.35", "100"} {
		in := d(x)
		pct := rounding.InputToPercentage(in)
		assert.True(t, in.Equal(rounding.PercentageToInput(pct)), x)
	}

	assert.True(t, d("0.018").Equal(rounding.InputToPercentage(d("1.8"))))
}
