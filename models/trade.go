package models

import (
	"database/sql"

	"flushbot/internal/rounding"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

const (
	PositionSideLong    = "LONG"
	PositionSideShort   = "SHORT"
	PositionSideUnknown = "UNKNOWN"
)

// Trade is one row of the trades table, covering a position from entry to exit.
type Trade struct {
	ID                               int64               `db:"id"`
	Symbol                           sql.NullString      `db:"symbol"`
	Setting                          sql.NullString      `db:"setting"`
	EntryTime                        sql.NullString      `db:"entry_time"`
	PositionSide                     sql.NullString      `db:"position_side"`
	EntryOrderAmount                 decimal.NullDecimal `db:"entry_order_amount"`
	PositionSize                     decimal.NullDecimal `db:"position_size"`
	PositionSizeUSDT                 decimal.NullDecimal `db:"position_size_usdt"`
	AverageEntryPrice                decimal.NullDecimal `db:"average_entry_price"`
	ExitTime                         sql.NullString      `db:"exit_time"`
	ExitAmount                       decimal.NullDecimal `db:"exit_amount"`
	AverageExitPrice                 decimal.NullDecimal `db:"average_exit_price"`
	RawPnl                           decimal.NullDecimal `db:"raw_pnl"`
	RawPnlPercentage                 decimal.NullDecimal `db:"raw_pnl_percentage"`
	FeeBNB                           decimal.NullDecimal `db:"fee_BNB"`
	FeeUSDT                          decimal.NullDecimal `db:"fee_USDT"`
	FundingFees                      decimal.NullDecimal `db:"funding_fees"`
	PnlPercentageWithFees            decimal.NullDecimal `db:"pnl_percentage_with_fees"`
	PnlWithFees                      decimal.NullDecimal `db:"pnl_with_fees"`
	AtBidAskPostOnlyEntry            sql.NullString      `db:"at_bid_ask_post_only_entry"`
	IfMarketOpenAvgPrice             decimal.NullDecimal `db:"if_market_open_avg_price"`
	IfMarketOpenSlippage             decimal.NullDecimal `db:"if_market_open_slippage"`
	IfFailedEntryMissedGainPct       decimal.NullDecimal `db:"if_failed_entry_missed_gain_percentage"`
	AtBidAskPostOnlyExitCount        sql.NullInt64       `db:"at_bid_ask_post_only_exit_count"`
	AtBidAskPostOnlyExitFailedCount  sql.NullInt64       `db:"at_bid_ask_post_only_exit_failed_count"`
	IfMarketCloseAvgPrice            decimal.NullDecimal `db:"if_market_close_avg_price"`
	IfMarketClosePnl                 decimal.NullDecimal `db:"if_market_close_pnl"`
	IfMarketClosePnlPercentage       decimal.NullDecimal `db:"if_market_close_pnl_percentage"`
	IfMarketCloseSlippage            decimal.NullDecimal `db:"if_market_close_slippage"`
	IfMarketCloseFees                decimal.NullDecimal `db:"if_market_close_fees"`
	MaxUnrealisedLoss                decimal.NullDecimal `db:"max_unrealised_loss"`
	WalletBalance                    decimal.NullDecimal `db:"wallet_balance"`
}

func (t *Trade) IsLong() bool {
	return t.PositionSide.String == PositionSideLong
}

// PositionSideOf maps an order side to the side of the position it opens.
func PositionSideOf(side Side) string {
	if side == SideSell {
		return PositionSideShort
	}
	return PositionSideLong
}

// ExitUpdate is the exit side of a trade after one more exit order.
type ExitUpdate struct {
	ExitAmount       decimal.Decimal
	AverageExitPrice decimal.Decimal
	// Closed is set once the whole position has been exited.
	Closed bool
	RawPnl           decimal.Decimal
	RawPnlPercentage decimal.Decimal
}

var ErrExitMismatch = errors.New("exit order does not add up with the logged position")

// ApplyExit folds a (possibly partial) exit order into the trade. An exit may
// be spread over several orders, the last of which can be partially filled.
// Average prices are rounded to tick.
func (t *Trade) ApplyExit(exit *Order, tick decimal.Decimal) (ExitUpdate, error) {
	initial := t.PositionSize.Decimal.Abs()
	prevAmount := t.ExitAmount.Decimal
	prevPrice := t.AverageExitPrice.Decimal

	var out ExitUpdate
	unfilled := exit.OrigQty.Sub(exit.ExecutedQty)

	switch {
	case exit.OrigQty.Equal(initial):
		out.ExitAmount = exit.ExecutedQty
		out.AverageExitPrice = exit.AvgPrice
	case exit.OrigQty.Add(prevAmount).GreaterThanOrEqual(initial):
		out.ExitAmount = initial.Sub(unfilled)
		filled := out.ExitAmount.Sub(prevAmount)
		if out.ExitAmount.IsZero() {
			return out, ErrExitMismatch
		}
		avg := prevAmount.Mul(prevPrice).Add(filled.Mul(exit.AvgPrice)).Div(out.ExitAmount)
		out.AverageExitPrice = rounding.RoundNearest(avg, tick)
	default:
		return out, ErrExitMismatch
	}

	if !out.ExitAmount.Abs().Equal(initial) {
		return out, nil
	}

	out.Closed = true

	entry := t.AverageEntryPrice.Decimal
	entryUSDT := t.PositionSizeUSDT.Decimal
	exitUSDT := out.ExitAmount.Mul(out.AverageExitPrice)

	if entry.IsZero() {
		return out, nil
	}

	if t.IsLong() {
		out.RawPnl = exitUSDT.Sub(entryUSDT)
		out.RawPnlPercentage = out.AverageExitPrice.Div(entry).Sub(one).Mul(hundred).Round(3)
	} else {
		out.RawPnl = entryUSDT.Sub(exitUSDT)
		out.RawPnlPercentage = one.Sub(out.AverageExitPrice.Div(entry)).Mul(hundred).Round(3)
	}

	return out, nil
}

// MarketCloseEstimate is what closing at market would have yielded when a
// post-only exit was first attempted.
type MarketCloseEstimate struct {
	AvgPrice decimal.Decimal
	Pnl      decimal.Decimal
	Slippage decimal.Decimal
}
