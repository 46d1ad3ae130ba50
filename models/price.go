package models

import (
	"flushbot/internal/rounding"

	"github.com/shopspring/decimal"
)

type BookTicker struct {
	Symbol   string          `json:"symbol"`
	BidPrice decimal.Decimal `json:"bidPrice"`
	BidQty   decimal.Decimal `json:"bidQty"`
	AskPrice decimal.Decimal `json:"askPrice"`
	AskQty   decimal.Decimal `json:"askQty"`
}

type BookLevel struct {
	Price decimal.Decimal `json:"price"`
	Qty   decimal.Decimal `json:"qty"`
}

type OrderBook struct {
	Symbol string      `json:"symbol"`
	Bids   []BookLevel `json:"bids"`
	Asks   []BookLevel `json:"asks"`
}

// BidAtValue returns the first bid price at which the cumulative quote value
// exceeds minValue.
func (b OrderBook) BidAtValue(minValue decimal.Decimal) (decimal.Decimal, bool) {
	return levelAtValue(b.Bids, minValue)
}

func (b OrderBook) AskAtValue(minValue decimal.Decimal) (decimal.Decimal, bool) {
	return levelAtValue(b.Asks, minValue)
}

func levelAtValue(levels []BookLevel, minValue decimal.Decimal) (decimal.Decimal, bool) {
	total := decimal.Zero
	for _, l := range levels {
		total = total.Add(l.Price.Mul(l.Qty))
		if total.GreaterThan(minValue) {
			return l.Price, true
		}
	}

	return decimal.Zero, false
}

// MarketCloseEstimate walks the book to price closing pos at market now. ok
// is false when pos is flat or the book is too thin to absorb it.
func (b OrderBook) MarketCloseEstimate(pos Position, tick decimal.Decimal) (MarketCloseEstimate, bool) {
	if pos.IsFlat() {
		return MarketCloseEstimate{}, false
	}

	levels := b.Bids
	if pos.IsShort() {
		levels = b.Asks
	}

	left := pos.Size()
	total := decimal.Zero
	for i, l := range levels {
		take := decimal.Min(left, l.Qty)
		total = total.Add(take.Mul(l.Price))
		left = left.Sub(take)
		if !left.IsPositive() {
			avg := rounding.RoundNearest(total.Div(pos.Size()), tick)
			slippage := decimal.Zero
			if i > 0 {
				slippage = rounding.RoundNearest(levels[0].Price.Sub(l.Price).Abs(), tick)
			}

			pnl := total.Sub(pos.Notional())
			if pos.IsShort() {
				pnl = pnl.Neg()
			}
			return MarketCloseEstimate{AvgPrice: avg, Pnl: pnl.Round(3), Slippage: slippage}, true
		}
	}

	return MarketCloseEstimate{}, false
}
