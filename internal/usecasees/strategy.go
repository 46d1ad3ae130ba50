package usecasees

import (
	"context"
	"fmt"
	"sync"
	"time"

	"flushbot/internal/controllers"
	"flushbot/internal/exchange"
	"flushbot/internal/feed"
	"flushbot/internal/normalizer"
	"flushbot/internal/repository"
	"flushbot/internal/usecasees/structs"
	"flushbot/models"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var ErrEngineStopped = errors.New("engine stopped")

// RiskBreachError stops an engine. Check is a short name of the limit that
// was hit.
type RiskBreachError struct {
	Check  string
	Reason string
}

func (e *RiskBreachError) Error() string {
	return fmt.Sprintf("risk breach (%s): %s", e.Check, e.Reason)
}

func breach(check, format string, args ...interface{}) error {
	return &RiskBreachError{Check: check, Reason: fmt.Sprintf(format, args...)}
}

// Leverage set on startup when flat without open orders. Phemex 0 means cross.
var DefaultLeverage = map[string]int{
	normalizer.OKX:    16,
	normalizer.BingX:  20,
	normalizer.Bybit:  100,
	normalizer.Phemex: 0,
}

var DefaultBTCSymbols = map[string]string{
	normalizer.Binance: "BTCUSDT",
	normalizer.Bybit:   "BTCUSDT",
	normalizer.OKX:     "BTC-USDT-SWAP",
	normalizer.Gate:    "BTC_USDT",
	normalizer.MEXC:    "BTC_USDT",
	normalizer.Phemex:  "BTCUSDT",
	normalizer.BingX:   "BTC-USDT",
}

// StrategyConfig holds the process wide thresholds of the engines.
type StrategyConfig struct {
	CloseBestPriceMinValue decimal.Decimal
	// UnrealisedPnlDrawdown is in percent, zero disables it. Entries pause
	// while equity is this far under the wallet balance.
	UnrealisedPnlDrawdown           decimal.Decimal
	UnrealisedPnlDrawdownByExchange map[string]decimal.Decimal

	AbnormalVolumeMultiplier decimal.Decimal
	AbnormalVolumeDays       int
	// VolatilityLimit is the largest range in percent of the last hour.
	VolatilityLimit decimal.Decimal
	RangeLimitDays  int

	Leverage   map[string]int
	BTCSymbols map[string]string
	// EnvFile is read on every regular check for the BTC price band.
	EnvFile string

	// CloseOnly puts every engine in close only mode.
	CloseOnly bool

	TradesChannel string
	AlertsChannel string
}

func DefaultStrategyConfig() StrategyConfig {
	return StrategyConfig{
		CloseBestPriceMinValue:   decimal.Zero,
		AbnormalVolumeMultiplier: decimal.NewFromInt(5),
		AbnormalVolumeDays:       7,
		VolatilityLimit:          decimal.NewFromInt(25),
		RangeLimitDays:           21,
		Leverage:                 DefaultLeverage,
		BTCSymbols:               DefaultBTCSymbols,
		EnvFile:                  ".env",
	}
}

func (c StrategyConfig) drawdownFor(ex string) decimal.Decimal {
	if d, ok := c.UnrealisedPnlDrawdownByExchange[ex]; ok {
		return d
	}
	return c.UnrealisedPnlDrawdown
}

// StrategyState is what the engine remembers between ticks.
type StrategyState struct {
	CurrentBuyOrder  *models.Order
	CurrentSellOrder *models.Order
	StopLossOrder    *models.Order

	EntryPrice      decimal.Decimal
	FullPositionQty decimal.Decimal

	ExceededProfitStillInPosition bool
	AtBidAskPostOnlyEntryAttempt  bool
	ClosePositionOnly             bool

	TradeID int64
}

type partialFill struct {
	orderID  string
	executed decimal.Decimal
}

// strategyUseCase runs the flush/squeeze strategy of one settings entry.
// SetOrders and RegularCheck must not run concurrently, the scheduler
// serializes them.
type strategyUseCase struct {
	name     string
	settings *models.Settings
	fr       models.Fractions
	cfg      StrategyConfig

	trader       *exchange.Trader
	feed         *feed.Feed
	ledger       *Ledger
	tradeRepo    repository.TradeRepo
	settingsRepo repository.SettingsRepo
	notifier     controllers.Notifier
	metrics      *Metrics
	logger       *logrus.Logger
	now          func() time.Time

	prec   normalizer.Precision
	period time.Duration

	state       StrategyState
	controls    models.Controls
	latched     bool
	lastPartial partialFill
	position    models.Position

	stopped    bool
	stopReason error

	statusMu sync.RWMutex
	status   structs.EngineStatus
}

func NewStrategyUseCase(
	name string,
	settings *models.Settings,
	cfg StrategyConfig,
	trader *exchange.Trader,
	feed *feed.Feed,
	walletRepo repository.WalletRepo,
	tradeRepo repository.TradeRepo,
	settingsRepo repository.SettingsRepo,
	notifier controllers.Notifier,
	metrics *Metrics,
	logger *logrus.Logger,
) (*strategyUseCase, error) {
	if err := settings.Normalize(); err != nil {
		return nil, err
	}

	period, err := normalizer.IntervalDuration(settings.Interval)
	if err != nil {
		return nil, err
	}

	fr := settings.Fractions()

	return &strategyUseCase{
		name:         name,
		settings:     settings,
		fr:           fr,
		cfg:          cfg,
		trader:       trader,
		feed:         feed,
		ledger:       NewLedger(walletRepo, settings.String(), fr.MaxDrawdown, logger),
		tradeRepo:    tradeRepo,
		settingsRepo: settingsRepo,
		notifier:     notifier,
		metrics:      metrics,
		logger:       logger,
		now:          time.Now,
		period:       period,
		position:     models.ZeroPosition(settings.Symbol),
	}, nil
}

// FeedWindow is the number of candles a feed keeps for settings.
func FeedWindow(settings *models.Settings) (int, error) {
	period, err := normalizer.IntervalDuration(settings.Interval)
	if err != nil {
		return 0, err
	}

	n := settings.CandleLimit()
	if v := volatilityCandles(period) + 1; v > n {
		n = v
	}
	return n, nil
}

func (u *strategyUseCase) Name() string {
	return u.name
}

func (u *strategyUseCase) Interval() string {
	return u.settings.Interval
}

func (u *strategyUseCase) Blocking() bool {
	return u.settings.Blocking
}

func (u *strategyUseCase) State() StrategyState {
	return u.state
}

func (u *strategyUseCase) log() *logrus.Entry {
	return u.logger.
		WithField("exchange", u.settings.Exchange).
		WithField("symbol", u.settings.Symbol)
}

func (u *strategyUseCase) notify(channel, format string, args ...interface{}) {
	if u.notifier == nil {
		return
	}
	u.notifier.Notify(fmt.Sprintf("%s %s: ", u.settings.Exchange, u.settings.Symbol)+fmt.Sprintf(format, args...), channel)
}

// Init recovers the engine from the exchange and the ledger. It returns the
// stop reason when the strategy must not run.
func (u *strategyUseCase) Init(ctx context.Context) error {
	prec, err := u.trader.Precision(ctx, u.settings.Symbol)
	if err != nil {
		return errors.Wrap(err, "precision")
	}
	u.prec = prec

	wallet, err := u.ledger.Init(ctx)
	if err != nil {
		return errors.Wrap(err, "internal wallet")
	}
	u.metrics.Wallet(u.settings.Exchange, u.settings.Symbol, u.settings.String(), wallet.Wallet, wallet.Floor)

	open, err := u.trader.GetOpenOrders(ctx, u.settings.Symbol)
	if err != nil {
		return errors.Wrap(err, "open orders")
	}
	for i := range open {
		o := open[i]
		switch {
		case o.IsStopLoss():
			u.state.StopLossOrder = &o
		case o.Side == models.SideBuy && u.state.CurrentBuyOrder == nil:
			u.state.CurrentBuyOrder = &o
		case o.Side == models.SideSell && u.state.CurrentSellOrder == nil:
			u.state.CurrentSellOrder = &o
		}
	}

	pos, err := u.feed.GetPositionAPIFirst(ctx)
	if err != nil {
		return errors.Wrap(err, "position")
	}
	u.position = pos

	if !pos.IsFlat() {
		u.state.EntryPrice = pos.EntryPrice
		u.state.FullPositionQty = pos.Size()
		u.state.TradeID = wallet.LastTradeID
	}

	if pos.IsFlat() && len(open) == 0 {
		u.bootstrapLeverage(ctx)
	}

	u.state.ClosePositionOnly = u.closeOnly()

	u.log().
		WithField("name", u.name).
		WithField("setting", u.settings.String()).
		WithField("wallet", wallet.Wallet.StringFixed(2)).
		WithField("floor", wallet.Floor.StringFixed(2)).
		WithField("position", pos.PositionAmt.String()).
		WithField("open_orders", len(open)).
		WithField("shorts", u.settings.Shorts).
		WithField("post_only", u.settings.PostOnly).
		WithField("reverse", u.settings.ReverseMode).
		WithField("close_only", u.state.ClosePositionOnly).
		Info("strategy started")

	if u.ledger.Breached() {
		return u.Stop(ctx, breach("max_drawdown", "internal wallet %s under floor %s",
			wallet.Wallet.StringFixed(2), wallet.Floor.StringFixed(2)))
	}
	if u.state.ClosePositionOnly && pos.IsFlat() {
		return u.Stop(ctx, errors.Wrap(ErrEngineStopped, "close only without position"))
	}

	u.publish()
	return nil
}

func (u *strategyUseCase) bootstrapLeverage(ctx context.Context) {
	leverage, ok := u.cfg.Leverage[u.settings.Exchange]
	if !ok {
		return
	}

	if err := u.trader.ChangeLeverage(ctx, u.settings.Symbol, leverage); err != nil {
		u.log().
			WithField("leverage", leverage).
			WithError(err).
			Warn("leverage not changed")
	}
}

func (u *strategyUseCase) closeOnly() bool {
	return u.settings.ClosePositionOnly || u.cfg.CloseOnly || u.controls.CloseOnly || u.latched
}

// latchCloseOnly keeps the engine in close only mode until it stops.
func (u *strategyUseCase) latchCloseOnly(format string, args ...interface{}) {
	if !u.latched {
		u.log().Warn("close only: " + fmt.Sprintf(format, args...))
		u.notify(u.cfg.AlertsChannel, "close only: "+format, args...)
	}
	u.latched = true
	u.state.ClosePositionOnly = true
}

func (u *strategyUseCase) cancelAllOrders(ctx context.Context) error {
	err := u.trader.CancelAllOrders(ctx, u.settings.Symbol)
	u.state.CurrentBuyOrder = nil
	u.state.CurrentSellOrder = nil
	u.state.StopLossOrder = nil
	return err
}

// cancelEntries cancels the resting orders side by side while flat and
// drops the tracked ones.
func (u *strategyUseCase) cancelEntries(ctx context.Context) error {
	symbol := u.settings.Symbol

	if err := u.trader.CancelOpenBuyOrders(ctx, symbol); err != nil {
		return err
	}
	u.state.CurrentBuyOrder = nil

	if err := u.trader.CancelOpenSellOrders(ctx, symbol); err != nil {
		return err
	}
	u.state.CurrentSellOrder = nil
	u.state.StopLossOrder = nil

	return nil
}

// Stop cancels every order, closes the position at the best price and
// marks the engine stopped. It returns reason.
func (u *strategyUseCase) Stop(ctx context.Context, reason error) error {
	if u.stopped {
		return u.stopReason
	}

	log := u.log().WithField("reason", reason.Error())

	if err := u.cancelAllOrders(ctx); err != nil {
		log.WithError(err).Error("cancel orders on stop")
	}
	if _, err := u.trader.CloseBestPrice(ctx, u.settings.Symbol, u.cfg.CloseBestPriceMinValue); err != nil {
		log.WithError(err).Error("close position on stop")
	}

	u.stopped = true
	u.stopReason = reason

	var rb *RiskBreachError
	if errors.As(reason, &rb) {
		u.metrics.RiskBreach(u.settings.Exchange, u.settings.Symbol, rb.Check)
	}
	u.metrics.Stopped(u.settings.Exchange, u.settings.Symbol, u.settings.String())

	log.Warn("strategy stopped")
	u.notify(u.cfg.AlertsChannel, "stopped: %s", reason)

	u.publish()
	return reason
}

func (u *strategyUseCase) Stopped() bool {
	return u.stopped
}

func (u *strategyUseCase) Status() structs.EngineStatus {
	u.statusMu.RLock()
	defer u.statusMu.RUnlock()

	return u.status
}

func (u *strategyUseCase) phase() structs.Phase {
	if u.position.IsFlat() {
		if u.state.CurrentBuyOrder != nil || u.state.CurrentSellOrder != nil {
			return structs.PhaseEntryPending
		}
		return structs.PhaseFlat
	}

	exit := u.state.CurrentSellOrder
	if u.position.IsShort() {
		exit = u.state.CurrentBuyOrder
	}
	if exit != nil && exit.ReduceOnly {
		return structs.PhaseExitPending
	}
	return structs.PhaseInPosition
}

func orderString(o *models.Order) string {
	if o == nil {
		return ""
	}
	return o.String()
}

func (u *strategyUseCase) publish() {
	wallet := u.ledger.State()

	status := structs.EngineStatus{
		Name:       u.name,
		Setting:    u.settings.String(),
		Exchange:   u.settings.Exchange,
		Symbol:     u.settings.Symbol,
		Interval:   u.settings.Interval,
		Phase:      u.phase(),
		CloseOnly:  u.state.ClosePositionOnly,
		Stopped:    u.stopped,
		Position:   u.position.PositionAmt.String(),
		EntryPrice: u.state.EntryPrice.String(),
		BuyOrder:   orderString(u.state.CurrentBuyOrder),
		SellOrder:  orderString(u.state.CurrentSellOrder),
		StopLoss:   orderString(u.state.StopLossOrder),
		Wallet:     wallet.Wallet.StringFixed(2),
		Floor:      wallet.Floor.StringFixed(2),
		TradeID:    u.state.TradeID,
		UpdatedAt:  u.now(),
	}
	if u.stopReason != nil {
		status.StopReason = u.stopReason.Error()
	}

	u.statusMu.Lock()
	u.status = status
	u.statusMu.Unlock()
}
