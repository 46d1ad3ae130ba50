package sqlite

import (
	"context"

	"flushbot/internal/repository"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS trades(
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    symbol TEXT,
    setting TEXT,
    entry_time TEXT,
    position_side TEXT,
    entry_order_amount TEXT,
    position_size TEXT,
    position_size_usdt TEXT,
    average_entry_price TEXT,
    exit_time TEXT,
    exit_amount TEXT,
    average_exit_price TEXT,
    raw_pnl TEXT,
    raw_pnl_percentage TEXT,
    fee_BNB TEXT,
    fee_USDT TEXT,
    funding_fees TEXT,
    pnl_percentage_with_fees TEXT,
    pnl_with_fees TEXT,
    at_bid_ask_post_only_entry TEXT,
    if_market_open_avg_price TEXT,
    if_market_open_slippage TEXT,
    if_failed_entry_missed_gain_percentage TEXT,
    at_bid_ask_post_only_exit_count INTEGER,
    at_bid_ask_post_only_exit_failed_count INTEGER,
    if_market_close_avg_price TEXT,
    if_market_close_pnl TEXT,
    if_market_close_pnl_percentage TEXT,
    if_market_close_slippage TEXT,
    if_market_close_fees TEXT,
    max_unrealised_loss TEXT,
    wallet_balance TEXT
);

CREATE TABLE IF NOT EXISTS internal_wallets(
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    start_time TEXT,
    setting TEXT,
    internal_wallet TEXT,
    internal_wallet_max_drawdown TEXT,
    last_trade_id INTEGER,
    last_update_time TEXT
);
`

// Connect opens the trade log database file. ":memory:" gives a private in
// memory database.
func Connect(path string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, errors.Wrapf(err, "sqlite %s", path)
	}

	// one writer, and one shared in memory database
	db.SetMaxOpenConns(1)

	return db, nil
}

func Migrate(ctx context.Context, conn *sqlx.DB) error {
	_, err := conn.ExecContext(ctx, schema)
	return errors.Wrap(err, "sqlite migrate")
}

func NewWalletRepository(conn *sqlx.DB) repository.WalletRepo {
	return repository.NewWalletRepository(conn)
}

func NewTradeRepository(conn *sqlx.DB) repository.TradeRepo {
	return repository.NewTradeRepository(conn)
}
