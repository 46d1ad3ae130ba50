package models

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

// DateTimeLayout is the text layout of every time column in the trade log.
const DateTimeLayout = "02/01/2006 15:04:05"

// InternalWallet is a row of internal_wallets: the compounding equity of one
// strategy configuration and the value under which it stops trading.
type InternalWallet struct {
	ID                        int64           `db:"id"`
	StartTime                 string          `db:"start_time"`
	Setting                   string          `db:"setting"`
	InternalWallet            decimal.Decimal `db:"internal_wallet"`
	InternalWalletMaxDrawdown decimal.Decimal `db:"internal_wallet_max_drawdown"`
	LastTradeID               sql.NullInt64   `db:"last_trade_id"`
	LastUpdateTime            string          `db:"last_update_time"`
}

func (w *InternalWallet) Started() (time.Time, error) {
	return time.ParseInLocation(DateTimeLayout, w.StartTime, time.Local)
}
