package models

import "github.com/shopspring/decimal"

type Position struct {
	Symbol           string          `json:"symbol"`
	EntryPrice       decimal.Decimal `json:"entryPrice"`
	PositionAmt      decimal.Decimal `json:"positionAmt"`
	UnRealizedProfit decimal.Decimal `json:"unRealizedProfit"`
}

func ZeroPosition(symbol string) Position {
	return Position{
		Symbol:           symbol,
		EntryPrice:       decimal.Zero,
		PositionAmt:      decimal.Zero,
		UnRealizedProfit: decimal.Zero,
	}
}

func (p Position) Size() decimal.Decimal {
	return p.PositionAmt.Abs()
}

func (p Position) IsFlat() bool {
	return p.PositionAmt.IsZero()
}

func (p Position) IsLong() bool {
	return p.PositionAmt.IsPositive()
}

func (p Position) IsShort() bool {
	return p.PositionAmt.IsNegative()
}

// Notional is the absolute position value at entry price.
func (p Position) Notional() decimal.Decimal {
	return p.EntryPrice.Mul(p.PositionAmt).Abs()
}

// Side returns the side of the order that opened the position.
func (p Position) Side() Side {
	if p.IsShort() {
		return SideSell
	}
	return SideBuy
}
