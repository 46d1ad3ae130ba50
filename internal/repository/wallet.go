package repository

import (
	"context"
	"time"

	"flushbot/models"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// WalletRepository works on sqlite and postgres alike: queries are written
// with ? and rebound for the driver.
type WalletRepository struct {
	conn *sqlx.DB
}

func NewWalletRepository(conn *sqlx.DB) *WalletRepository {
	return &WalletRepository{
		conn: conn,
	}
}

func (r *WalletRepository) GetBySetting(ctx context.Context, setting string) ([]models.InternalWallet, error) {
	var out []models.InternalWallet
	if err := r.conn.SelectContext(ctx, &out, r.conn.Rebind("SELECT * FROM internal_wallets WHERE setting = ? ORDER BY id"), setting); err != nil {
		return nil, errors.Wrapf(err, "internal wallets of %s", setting)
	}

	return out, nil
}

func (r *WalletRepository) Insert(ctx context.Context, w *models.InternalWallet) (int64, error) {
	rows, err := sqlx.NamedQueryContext(ctx, r.conn, `INSERT INTO internal_wallets
		(start_time, setting, internal_wallet, internal_wallet_max_drawdown, last_trade_id, last_update_time)
		VALUES (:start_time, :setting, :internal_wallet, :internal_wallet_max_drawdown, :last_trade_id, :last_update_time)
		RETURNING id`, w)
	if err != nil {
		return 0, errors.Wrap(err, "insert internal wallet")
	}

	return returnedID(rows)
}

func (r *WalletRepository) Update(ctx context.Context, id int64, wallet, floor decimal.Decimal, at time.Time) error {
	_, err := r.conn.ExecContext(ctx, r.conn.Rebind(`UPDATE internal_wallets
		SET internal_wallet = ?, internal_wallet_max_drawdown = ?, last_update_time = ?
		WHERE id = ?`),
		wallet.Round(2).String(), floor.Round(2).String(), at.Format(models.DateTimeLayout), id)

	return errors.Wrapf(err, "update internal wallet %d", id)
}

func (r *WalletRepository) SetLastTradeID(ctx context.Context, id, tradeID int64) error {
	_, err := r.conn.ExecContext(ctx, r.conn.Rebind("UPDATE internal_wallets SET last_trade_id = ? WHERE id = ?"), tradeID, id)

	return errors.Wrapf(err, "set last trade id of wallet %d", id)
}

func (r *WalletRepository) ClearLastTradeID(ctx context.Context, tradeID int64) error {
	_, err := r.conn.ExecContext(ctx, r.conn.Rebind("UPDATE internal_wallets SET last_trade_id = NULL WHERE last_trade_id = ?"), tradeID)

	return errors.Wrapf(err, "clear last trade id %d", tradeID)
}

func returnedID(rows *sqlx.Rows) (int64, error) {
	defer rows.Close()

	var id int64
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return 0, errors.Wrap(err, "returning id")
		}
		return 0, errors.New("insert returned no id")
	}
	if err := rows.Scan(&id); err != nil {
		return 0, errors.Wrap(err, "returning id")
	}

	return id, nil
}
