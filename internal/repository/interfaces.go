package repository

import (
	"context"
	"time"

	"flushbot/models"

	"github.com/shopspring/decimal"
)

//go:generate mockery --case=snake --name=WalletRepo
//go:generate mockery --case=snake --name=TradeRepo

// WalletRepo stores internal_wallets rows.
type WalletRepo interface {
	// GetBySetting returns every row of the setting, oldest start first.
	GetBySetting(ctx context.Context, setting string) ([]models.InternalWallet, error)
	Insert(ctx context.Context, w *models.InternalWallet) (int64, error)
	Update(ctx context.Context, id int64, wallet, floor decimal.Decimal, at time.Time) error
	SetLastTradeID(ctx context.Context, id, tradeID int64) error
	// ClearLastTradeID nulls last_trade_id on the rows pointing at tradeID.
	ClearLastTradeID(ctx context.Context, tradeID int64) error
}

// TradeRepo is the trade journal.
type TradeRepo interface {
	OpenTrade(ctx context.Context, t *models.Trade) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.Trade, error)
	UpdateEntry(ctx context.Context, id int64, pos models.Position, at time.Time) error
	// CloseTrade folds one exit order into the trade. The returned update
	// tells whether the position is now fully exited.
	CloseTrade(ctx context.Context, id int64, exit *models.Order, tick decimal.Decimal, at time.Time) (models.ExitUpdate, error)
	SetCloseStats(ctx context.Context, id int64, maxUnrealisedLoss, walletBalance decimal.Decimal) error
	IncPostOnlyExitCount(ctx context.Context, id int64, estimate models.MarketCloseEstimate) error
	IncPostOnlyExitFailedCount(ctx context.Context, id int64) error
	LogFailedEntry(ctx context.Context, symbol string, at time.Time) error
}

//go:generate mockery --case=snake --name=SettingsRepo

// SettingsRepo is where strategy configurations and their live control flags
// come from.
type SettingsRepo interface {
	// List returns the enabled strategies.
	List(ctx context.Context) ([]models.SettingsEntry, error)
	Load(ctx context.Context, name string) (*models.Settings, error)
	// Controls returns the current control flags of name. ok is false when
	// name is no longer enabled.
	Controls(ctx context.Context, name string) (c models.Controls, ok bool, err error)
}
