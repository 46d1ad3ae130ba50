package rounding

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// RoundDown rounds x down to a multiple of step. A zero step returns x.
func RoundDown(x, step decimal.Decimal) decimal.Decimal {
	if step.IsZero() {
		return x
	}
	return x.Div(step).Floor().Mul(step).Truncate(int32(Places(step)))
}

func RoundUp(x, step decimal.Decimal) decimal.Decimal {
	if step.IsZero() {
		return x
	}
	return x.Div(step).Ceil().Mul(step).Truncate(int32(Places(step)))
}

// RoundNearest rounds half to even, so 2.5 steps become 2 and 3.5 become 4.
func RoundNearest(x, step decimal.Decimal) decimal.Decimal {
	if step.IsZero() {
		return x
	}
	return x.Div(step).RoundBank(0).Mul(step).Truncate(int32(Places(step)))
}

// Places is the number of decimal places of a tick or step size.
// Trailing zeros do not count: 0.010 has two places.
func Places(step decimal.Decimal) int {
	s := step.String()
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			return len(s) - i - 1
		}
	}
	return 0
}

// InputToPercentage converts an operator value like 1.8 (percent) to 0.018.
func InputToPercentage(x decimal.Decimal) decimal.Decimal {
	return x.Div(hundred)
}

func PercentageToInput(x decimal.Decimal) decimal.Decimal {
	return x.Mul(hundred)
}
