package usecasees

import (
	"context"
	"time"

	"flushbot/internal/repository"
	"flushbot/models"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// LedgerRetention is how long an internal wallet keeps compounding before a
// configuration starts over from a fresh wallet.
const LedgerRetention = 30 * 24 * time.Hour

var (
	ledgerStartWallet = decimal.NewFromInt(100)
	one               = decimal.NewFromInt(1)
	hundred           = decimal.NewFromInt(100)
)

// LedgerState is the internal wallet of one configuration.
type LedgerState struct {
	ID          int64
	StartTime   time.Time
	Wallet      decimal.Decimal
	Floor       decimal.Decimal
	LastTradeID int64
}

// Ledger tracks the internal wallet of one strategy configuration: a virtual
// balance compounding with every closed trade and the floor under which the
// strategy must stop.
type Ledger struct {
	repo        repository.WalletRepo
	setting     string
	maxDrawdown decimal.Decimal
	logger      *logrus.Logger
	now         func() time.Time

	state *LedgerState
}

// NewLedger keys the wallet by setting. maxDrawdown is a fraction in (0, 1].
func NewLedger(repo repository.WalletRepo, setting string, maxDrawdown decimal.Decimal, logger *logrus.Logger) *Ledger {
	return &Ledger{
		repo:        repo,
		setting:     setting,
		maxDrawdown: maxDrawdown,
		logger:      logger,
		now:         time.Now,
	}
}

// Load returns the newest wallet of the setting started within the
// retention window, or nil.
func (l *Ledger) Load(ctx context.Context) (*LedgerState, error) {
	rows, err := l.repo.GetBySetting(ctx, l.setting)
	if err != nil {
		return nil, err
	}

	var newest *LedgerState
	for i := range rows {
		started, err := rows[i].Started()
		if err != nil {
			l.logger.
				WithField("setting", l.setting).
				WithField("start_time", rows[i].StartTime).
				WithError(err).
				Warn("unreadable internal wallet start time")
			continue
		}
		if newest != nil && started.Before(newest.StartTime) {
			continue
		}
		newest = &LedgerState{
			ID:          rows[i].ID,
			StartTime:   started,
			Wallet:      rows[i].InternalWallet,
			Floor:       rows[i].InternalWalletMaxDrawdown,
			LastTradeID: rows[i].LastTradeID.Int64,
		}
	}

	if newest == nil || !newest.StartTime.Add(LedgerRetention).After(l.now()) {
		return nil, nil
	}

	l.state = newest
	return newest, nil
}

// Init loads the current wallet or starts a fresh one at 100.
func (l *Ledger) Init(ctx context.Context) (*LedgerState, error) {
	state, err := l.Load(ctx)
	if err != nil || state != nil {
		return state, err
	}

	now := l.now()
	floor := ledgerStartWallet.Mul(one.Sub(l.maxDrawdown))
	row := &models.InternalWallet{
		StartTime:                 now.Format(models.DateTimeLayout),
		Setting:                   l.setting,
		InternalWallet:            ledgerStartWallet,
		InternalWalletMaxDrawdown: floor.Round(2),
		LastUpdateTime:            now.Format(models.DateTimeLayout),
	}

	id, err := l.repo.Insert(ctx, row)
	if err != nil {
		return nil, err
	}

	// the stored time has second precision
	started, _ := row.Started()
	l.state = &LedgerState{
		ID:        id,
		StartTime: started,
		Wallet:    ledgerStartWallet,
		Floor:     floor,
	}

	l.logger.
		WithField("setting", l.setting).
		WithField("floor", floor.StringFixed(2)).
		Info("new internal wallet")

	return l.state, nil
}

func (l *Ledger) loaded() (*LedgerState, error) {
	if l.state == nil {
		return nil, errors.Errorf("internal wallet of %s is not loaded", l.setting)
	}
	return l.state, nil
}

// State returns a copy of the wallet, the zero value before Init.
func (l *Ledger) State() LedgerState {
	if l.state == nil {
		return LedgerState{}
	}
	return *l.state
}

// RecordStopLoss charges a stop loss of pct (a fraction). The floor stays.
func (l *Ledger) RecordStopLoss(ctx context.Context, pct decimal.Decimal) error {
	s, err := l.loaded()
	if err != nil {
		return err
	}

	s.Wallet = s.Wallet.Mul(one.Sub(pct))
	return l.persist(ctx, s)
}

// RecordRealizedPnl compounds pct (a fraction, negative for losses) and
// ratchets the floor up with new wallet highs.
func (l *Ledger) RecordRealizedPnl(ctx context.Context, pct decimal.Decimal) error {
	s, err := l.loaded()
	if err != nil {
		return err
	}

	s.Wallet = s.Wallet.Mul(one.Add(pct))
	s.Floor = decimal.Max(s.Floor, s.Wallet.Mul(one.Sub(l.maxDrawdown)))
	return l.persist(ctx, s)
}

func (l *Ledger) persist(ctx context.Context, s *LedgerState) error {
	l.logger.
		WithField("setting", l.setting).
		WithField("wallet", s.Wallet.StringFixed(2)).
		WithField("floor", s.Floor.StringFixed(2)).
		Info("internal wallet updated")

	return l.repo.Update(ctx, s.ID, s.Wallet, s.Floor, l.now())
}

// Breached reports whether the wallet fell under its floor.
func (l *Ledger) Breached() bool {
	return l.state != nil && l.state.Wallet.LessThan(l.state.Floor)
}

func (l *Ledger) SetLastTradeID(ctx context.Context, tradeID int64) error {
	s, err := l.loaded()
	if err != nil {
		return err
	}
	if err := l.repo.SetLastTradeID(ctx, s.ID, tradeID); err != nil {
		return err
	}

	s.LastTradeID = tradeID
	return nil
}

// ClearLastTradeID detaches tradeID from every wallet pointing at it.
func (l *Ledger) ClearLastTradeID(ctx context.Context, tradeID int64) error {
	if tradeID == 0 {
		return nil
	}
	if err := l.repo.ClearLastTradeID(ctx, tradeID); err != nil {
		return err
	}

	if l.state != nil && l.state.LastTradeID == tradeID {
		l.state.LastTradeID = 0
	}
	return nil
}
