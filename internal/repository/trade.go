package repository

import (
	"context"
	"database/sql"
	"time"

	"flushbot/models"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

var ErrTradeNotFound = errors.New("trade not found")

const insertTrade = `INSERT INTO trades (
	symbol, setting, entry_time, position_side, entry_order_amount, position_size,
	position_size_usdt, average_entry_price, exit_time, exit_amount, average_exit_price,
	raw_pnl, raw_pnl_percentage, "fee_BNB", "fee_USDT", funding_fees,
	pnl_percentage_with_fees, pnl_with_fees, at_bid_ask_post_only_entry,
	if_market_open_avg_price, if_market_open_slippage, if_failed_entry_missed_gain_percentage,
	at_bid_ask_post_only_exit_count, at_bid_ask_post_only_exit_failed_count,
	if_market_close_avg_price, if_market_close_pnl, if_market_close_pnl_percentage,
	if_market_close_slippage, if_market_close_fees, max_unrealised_loss, wallet_balance
) VALUES (
	:symbol, :setting, :entry_time, :position_side, :entry_order_amount, :position_size,
	:position_size_usdt, :average_entry_price, :exit_time, :exit_amount, :average_exit_price,
	:raw_pnl, :raw_pnl_percentage, :fee_BNB, :fee_USDT, :funding_fees,
	:pnl_percentage_with_fees, :pnl_with_fees, :at_bid_ask_post_only_entry,
	:if_market_open_avg_price, :if_market_open_slippage, :if_failed_entry_missed_gain_percentage,
	:at_bid_ask_post_only_exit_count, :at_bid_ask_post_only_exit_failed_count,
	:if_market_close_avg_price, :if_market_close_pnl, :if_market_close_pnl_percentage,
	:if_market_close_slippage, :if_market_close_fees, :max_unrealised_loss, :wallet_balance
) RETURNING id`

// TradeRepository is the trade journal on sqlite or postgres. Every value is
// stored as text.
type TradeRepository struct {
	conn *sqlx.DB
}

func NewTradeRepository(conn *sqlx.DB) *TradeRepository {
	return &TradeRepository{
		conn: conn,
	}
}

func (r *TradeRepository) OpenTrade(ctx context.Context, t *models.Trade) (int64, error) {
	rows, err := sqlx.NamedQueryContext(ctx, r.conn, insertTrade, t)
	if err != nil {
		return 0, errors.Wrap(err, "insert trade")
	}

	return returnedID(rows)
}

func (r *TradeRepository) GetByID(ctx context.Context, id int64) (*models.Trade, error) {
	return getTrade(ctx, r.conn, id)
}

func getTrade(ctx context.Context, q sqlx.ExtContext, id int64) (*models.Trade, error) {
	var t models.Trade
	if err := sqlx.GetContext(ctx, q, &t, q.Rebind("SELECT * FROM trades WHERE id = ?"), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(ErrTradeNotFound, "trade %d", id)
		}
		return nil, errors.Wrapf(err, "trade %d", id)
	}

	return &t, nil
}

func (r *TradeRepository) UpdateEntry(ctx context.Context, id int64, pos models.Position, at time.Time) error {
	_, err := r.conn.ExecContext(ctx, r.conn.Rebind(`UPDATE trades
		SET entry_time = ?, average_entry_price = ?, position_size = ?, position_size_usdt = ?
		WHERE id = ?`),
		at.Format(models.DateTimeLayout),
		pos.EntryPrice.String(),
		pos.PositionAmt.String(),
		pos.Notional().String(),
		id,
	)

	return errors.Wrapf(err, "update entry of trade %d", id)
}

func (r *TradeRepository) CloseTrade(
	ctx context.Context,
	id int64,
	exit *models.Order,
	tick decimal.Decimal,
	at time.Time,
) (models.ExitUpdate, error) {
	var out models.ExitUpdate

	err := r.inTx(ctx, func(tx *sqlx.Tx) error {
		t, err := getTrade(ctx, tx, id)
		if err != nil {
			return err
		}

		out, err = t.ApplyExit(exit, tick)
		if err != nil {
			return errors.Wrapf(err, "trade %d", id)
		}

		if !out.Closed {
			_, err = tx.ExecContext(ctx, tx.Rebind(`UPDATE trades
				SET exit_time = ?, exit_amount = ?, average_exit_price = ?
				WHERE id = ?`),
				at.Format(models.DateTimeLayout), out.ExitAmount.String(), out.AverageExitPrice.String(), id)
			return errors.Wrapf(err, "update exit of trade %d", id)
		}

		_, err = tx.ExecContext(ctx, tx.Rebind(`UPDATE trades
			SET exit_time = ?, exit_amount = ?, average_exit_price = ?, raw_pnl = ?, raw_pnl_percentage = ?
			WHERE id = ?`),
			at.Format(models.DateTimeLayout),
			out.ExitAmount.String(),
			out.AverageExitPrice.String(),
			out.RawPnl.String(),
			out.RawPnlPercentage.String(),
			id,
		)
		return errors.Wrapf(err, "close trade %d", id)
	})

	return out, err
}

func (r *TradeRepository) SetCloseStats(ctx context.Context, id int64, maxUnrealisedLoss, walletBalance decimal.Decimal) error {
	_, err := r.conn.ExecContext(ctx, r.conn.Rebind("UPDATE trades SET max_unrealised_loss = ?, wallet_balance = ? WHERE id = ?"),
		maxUnrealisedLoss.String(), walletBalance.String(), id)

	return errors.Wrapf(err, "close stats of trade %d", id)
}

// IncPostOnlyExitCount counts a post-only exit attempt. The first attempt
// also records what a market close would have given at that moment.
func (r *TradeRepository) IncPostOnlyExitCount(ctx context.Context, id int64, estimate models.MarketCloseEstimate) error {
	return r.inTx(ctx, func(tx *sqlx.Tx) error {
		t, err := getTrade(ctx, tx, id)
		if err != nil {
			return err
		}

		if t.AtBidAskPostOnlyExitCount.Valid && t.AtBidAskPostOnlyExitCount.Int64 > 0 {
			_, err = tx.ExecContext(ctx, tx.Rebind("UPDATE trades SET at_bid_ask_post_only_exit_count = ? WHERE id = ?"),
				t.AtBidAskPostOnlyExitCount.Int64+1, id)
			return errors.Wrapf(err, "post only exit count of trade %d", id)
		}

		_, err = tx.ExecContext(ctx, tx.Rebind(`UPDATE trades
			SET at_bid_ask_post_only_exit_count = 1,
				at_bid_ask_post_only_exit_failed_count = 0,
				if_market_close_avg_price = ?,
				if_market_close_pnl = ?,
				if_market_close_slippage = ?
			WHERE id = ?`),
			estimate.AvgPrice.String(), estimate.Pnl.String(), estimate.Slippage.String(), id)
		return errors.Wrapf(err, "post only exit count of trade %d", id)
	})
}

func (r *TradeRepository) IncPostOnlyExitFailedCount(ctx context.Context, id int64) error {
	_, err := r.conn.ExecContext(ctx, r.conn.Rebind(`UPDATE trades
		SET at_bid_ask_post_only_exit_failed_count = COALESCE(at_bid_ask_post_only_exit_failed_count, 0) + 1
		WHERE id = ?`), id)

	return errors.Wrapf(err, "post only exit failed count of trade %d", id)
}

// LogFailedEntry writes a placeholder row for a trade that could not be
// journaled.
func (r *TradeRepository) LogFailedEntry(ctx context.Context, symbol string, at time.Time) error {
	_, err := r.conn.ExecContext(ctx, r.conn.Rebind("INSERT INTO trades (symbol, position_side, exit_time) VALUES (?, ?, ?)"),
		symbol, models.PositionSideUnknown, at.Format(models.DateTimeLayout))

	return errors.Wrapf(err, "failed entry of %s", symbol)
}

func (r *TradeRepository) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := r.conn.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin")
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	return errors.Wrap(tx.Commit(), "commit")
}
