package usecasees

import (
	"context"

	"flushbot/internal/exchange"
	"flushbot/internal/rounding"
	"flushbot/models"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

const (
	envBTCLowerBound = "BTC_PRICE_LOWER_BOUND"
	envBTCUpperBound = "BTC_PRICE_UPPER_BOUND"
)

var (
	sizeSlack      = decimal.RequireFromString("0.99")
	potentialSlack = decimal.RequireFromString("0.98")
	two            = decimal.NewFromInt(2)
)

// CheckFilled refreshes the tracked orders and books every fill into the
// trade journal and the internal wallet. It reports whether anything filled.
func (u *strategyUseCase) CheckFilled(ctx context.Context) (bool, error) {
	slFilled, err := u.checkStopLoss(ctx)
	if err != nil || u.stopped {
		return slFilled, err
	}

	buyFilled, err := u.checkSide(ctx, models.SideBuy)
	if err != nil || u.stopped {
		return slFilled || buyFilled, err
	}

	sellFilled, err := u.checkSide(ctx, models.SideSell)
	return slFilled || buyFilled || sellFilled, err
}

func (u *strategyUseCase) refresh(ctx context.Context, tracked *models.Order) (*models.Order, error) {
	o, err := u.feed.GetOrderAPIFirst(ctx, tracked.OrderID)
	if err != nil {
		return nil, err
	}
	if o == nil {
		u.log().WithField("order", tracked.OrderID).Warn("tracked order unknown to the exchange")
	}
	return o, nil
}

func (u *strategyUseCase) checkStopLoss(ctx context.Context) (bool, error) {
	tracked := u.state.StopLossOrder
	if tracked == nil {
		return false, nil
	}

	o, err := u.refresh(ctx, tracked)
	if err != nil {
		return false, err
	}
	if o == nil || (o.IsTerminal() && !o.IsFilled()) {
		u.state.StopLossOrder = nil
		return false, nil
	}
	if !o.IsFilled() {
		u.state.StopLossOrder = o
		return false, nil
	}

	u.state.StopLossOrder = nil
	s := u.settings

	u.journalExit(ctx, o)

	// a buy stop closes a short
	pct := u.fr.StopLossLong
	if o.Side == models.SideBuy {
		pct = u.fr.StopLossShort
	}
	if err := u.ledger.RecordStopLoss(ctx, pct); err != nil {
		u.log().WithError(err).Error("book stop loss")
	}
	wallet := u.ledger.State()
	u.metrics.Wallet(s.Exchange, s.Symbol, s.String(), wallet.Wallet, wallet.Floor)
	u.metrics.StopLossFilled(s.Exchange, s.Symbol)

	u.log().
		WithField("price", o.AvgPrice.String()).
		WithField("wallet", wallet.Wallet.StringFixed(2)).
		Warn("stop loss filled")
	u.notify(u.cfg.TradesChannel, "stop loss filled at %s, internal wallet %s", o.AvgPrice, wallet.Wallet.StringFixed(2))

	u.resetPosition()
	if err := u.cancelAllOrders(ctx); err != nil {
		u.log().WithError(err).Error("cancel orders after stop loss")
	}

	switch {
	case u.ledger.Breached():
		return true, u.Stop(ctx, breach("max_drawdown", "internal wallet %s under floor %s",
			wallet.Wallet.StringFixed(2), wallet.Floor.StringFixed(2)))
	case u.fr.MaxSingleTradeLoss.IsPositive() && u.fr.MaxSingleTradeLoss.LessThanOrEqual(pct):
		return true, u.Stop(ctx, breach("max_single_trade_loss", "stop loss of %s%%", pct.Mul(hundred)))
	case s.StopLossTermination:
		return true, u.Stop(ctx, errors.Wrap(ErrEngineStopped, "stop loss filled"))
	}

	return true, nil
}

func (u *strategyUseCase) resetPosition() {
	u.state.EntryPrice = decimal.Zero
	u.state.FullPositionQty = decimal.Zero
	u.state.ExceededProfitStillInPosition = false
}

func (u *strategyUseCase) checkSide(ctx context.Context, side models.Side) (bool, error) {
	tracked := u.trackedOrder(side)
	if tracked == nil {
		return false, nil
	}

	o, err := u.refresh(ctx, tracked)
	if err != nil {
		return false, err
	}
	if o == nil {
		u.setEntryOrder(side, nil)
		return false, nil
	}
	u.setEntryOrder(side, o)

	switch {
	case o.IsFilled():
		u.setEntryOrder(side, nil)
		if o.ReduceOnly {
			return true, u.onExitFilled(ctx, o)
		}
		u.onEntryFilled(ctx, o)
		return true, u.cancelTracked(ctx, side.Opposite())

	case o.IsPartiallyFilled():
		seen := partialFill{orderID: o.OrderID, executed: o.ExecutedQty}
		if u.lastPartial.orderID == seen.orderID && u.lastPartial.executed.Equal(seen.executed) {
			return false, nil
		}
		u.lastPartial = seen

		if o.ReduceOnly {
			return false, u.onExitPartial(ctx, o)
		}
		u.onEntryPartial(ctx, o)
		return false, u.cancelTracked(ctx, side.Opposite())

	case o.IsTerminal():
		u.log().WithField("order", o.String()).Info("order gone without a fill")
		u.setEntryOrder(side, nil)
	}

	return false, nil
}

// cancelTracked cancels the tracked entry order of side, if any.
func (u *strategyUseCase) cancelTracked(ctx context.Context, side models.Side) error {
	o := u.trackedOrder(side)
	if o == nil || o.ReduceOnly {
		return nil
	}

	u.setEntryOrder(side, nil)
	return u.trader.CancelOrder(ctx, u.settings.Symbol, exchange.RefOf(o))
}

func (u *strategyUseCase) onEntryFilled(ctx context.Context, o *models.Order) {
	s := u.settings
	u.state.EntryPrice = o.AvgPrice

	u.journalEntry(ctx, o)
	u.state.AtBidAskPostOnlyEntryAttempt = false

	u.metrics.OrderFilled(s.Exchange, s.Symbol, "entry")
	u.log().
		WithField("side", o.Side).
		WithField("qty", o.ExecutedQty.String()).
		WithField("price", o.AvgPrice.String()).
		Info("entry filled")
	u.notify(u.cfg.TradesChannel, "%s entry filled, %s at %s", o.Side, o.ExecutedQty, o.AvgPrice)
}

func (u *strategyUseCase) onEntryPartial(ctx context.Context, o *models.Order) {
	u.state.EntryPrice = o.AvgPrice
	u.journalEntry(ctx, o)

	u.log().
		WithField("side", o.Side).
		WithField("qty", o.ExecutedQty.String()).
		WithField("of", o.OrigQty.String()).
		Info("entry partially filled")
}

// exitPnl is the return of a position exited by o, as a fraction.
func (u *strategyUseCase) exitPnl(o *models.Order) decimal.Decimal {
	entry := u.state.EntryPrice
	if o.Side == models.SideSell {
		return o.AvgPrice.Div(entry).Sub(one)
	}
	return entry.Sub(o.AvgPrice).Div(entry)
}

func (u *strategyUseCase) onExitFilled(ctx context.Context, o *models.Order) error {
	s := u.settings

	u.journalExit(ctx, o)
	u.metrics.OrderFilled(s.Exchange, s.Symbol, "exit")

	if err := u.cancelAllOrders(ctx); err != nil {
		u.log().WithError(err).Error("cancel orders after exit")
	}

	if !u.state.EntryPrice.IsPositive() {
		u.log().WithField("price", o.AvgPrice.String()).Warn("exit filled without an entry price, wallet not updated")
		u.resetPosition()
		return nil
	}

	pnl := u.exitPnl(o)
	u.resetPosition()
	return u.bookPnl(ctx, pnl, o.AvgPrice)
}

// bookPnl compounds a closed trade into the internal wallet and applies the
// drawdown and single trade loss limits.
func (u *strategyUseCase) bookPnl(ctx context.Context, pnl, price decimal.Decimal) error {
	s := u.settings

	if err := u.ledger.RecordRealizedPnl(ctx, pnl); err != nil {
		u.log().WithError(err).Error("book realized pnl")
	}
	wallet := u.ledger.State()
	u.metrics.Wallet(s.Exchange, s.Symbol, s.String(), wallet.Wallet, wallet.Floor)

	u.log().
		WithField("price", price.String()).
		WithField("pnl_pct", pnl.Mul(hundred).StringFixed(3)).
		WithField("wallet", wallet.Wallet.StringFixed(2)).
		Info("position closed")
	u.notify(u.cfg.TradesChannel, "closed at %s, pnl %s%%, internal wallet %s",
		price, pnl.Mul(hundred).StringFixed(2), wallet.Wallet.StringFixed(2))

	if u.ledger.Breached() {
		return u.Stop(ctx, breach("max_drawdown", "internal wallet %s under floor %s",
			wallet.Wallet.StringFixed(2), wallet.Floor.StringFixed(2)))
	}
	if maxLoss := u.fr.MaxSingleTradeLoss; maxLoss.IsPositive() && pnl.LessThan(maxLoss.Neg()) {
		return u.Stop(ctx, breach("max_single_trade_loss", "trade lost %s%%", pnl.Neg().Mul(hundred).StringFixed(2)))
	}

	return nil
}

func (u *strategyUseCase) onExitPartial(ctx context.Context, o *models.Order) error {
	u.journalExit(ctx, o)

	u.log().
		WithField("qty", o.ExecutedQty.String()).
		WithField("of", o.OrigQty.String()).
		Info("exit partially filled")

	if !u.settings.ClosePartialFills {
		return nil
	}

	if err := u.cancelAllOrders(ctx); err != nil {
		return err
	}
	closing, err := u.closeBestPrice(ctx)
	if err != nil {
		return err
	}
	if closing != nil {
		u.journalExit(ctx, closing)
	}

	if !u.state.EntryPrice.IsPositive() {
		u.resetPosition()
		return nil
	}

	pnl := u.exitPnl(o)
	u.resetPosition()
	return u.bookPnl(ctx, pnl, o.AvgPrice)
}

// closeBestPrice flattens the position and returns the last closing order
// as filled.
func (u *strategyUseCase) closeBestPrice(ctx context.Context) (*models.Order, error) {
	closing, err := u.trader.CloseBestPrice(ctx, u.settings.Symbol, u.cfg.CloseBestPriceMinValue)
	if err != nil || closing == nil {
		return closing, err
	}

	fresh, err := u.feed.GetOrderAPIFirst(ctx, closing.OrderID)
	if err != nil || fresh == nil {
		return closing, nil
	}
	return fresh, nil
}

// SoftStopLossCheck closes the position at the best price once the last
// softSLN closed bars all closed beyond the soft stop.
func (u *strategyUseCase) SoftStopLossCheck(ctx context.Context, pos models.Position) (bool, error) {
	soft := u.fr.SoftSL
	n := u.settings.SoftSLN
	if !soft.IsPositive() || !soft.LessThan(one) || n <= 0 || pos.IsFlat() {
		return false, nil
	}

	candles, err := u.feed.GetCandlesticksAPIFirst(ctx, n+1)
	if err != nil {
		return false, err
	}
	closed := candles.Closed(u.now(), u.period).Tail(n)
	if len(closed) < n {
		return false, nil
	}

	entry := u.state.EntryPrice
	if entry.IsZero() {
		entry = pos.EntryPrice
	}

	var threshold decimal.Decimal
	if pos.IsLong() {
		threshold = rounding.RoundNearest(entry.Mul(one.Sub(soft)), u.prec.TickSize)
	} else {
		threshold = rounding.RoundNearest(entry.Mul(one.Add(soft)), u.prec.TickSize)
	}

	for _, c := range closed {
		if pos.IsLong() && !c.Close.LessThan(threshold) {
			return false, nil
		}
		if pos.IsShort() && !c.Close.GreaterThan(threshold) {
			return false, nil
		}
	}

	u.log().
		WithField("threshold", threshold.String()).
		WithField("bars", n).
		Warn("soft stop loss hit")

	if err := u.cancelAllOrders(ctx); err != nil {
		return false, err
	}
	closing, err := u.closeBestPrice(ctx)
	if err != nil {
		return false, err
	}

	pnl := soft.Neg()
	price := threshold
	if closing != nil {
		u.journalExit(ctx, closing)
		if closing.AvgPrice.IsPositive() && entry.IsPositive() {
			u.state.EntryPrice = entry
			pnl = u.exitPnl(closing)
			price = closing.AvgPrice
		}
	}
	u.resetPosition()

	if err := u.bookPnl(ctx, pnl, price); err != nil || u.stopped {
		return true, err
	}

	if u.settings.StopLossTermination {
		return true, u.Stop(ctx, errors.Wrap(ErrEngineStopped, "soft stop loss hit"))
	}
	if maxLoss := u.fr.MaxSingleTradeLoss; maxLoss.IsPositive() && maxLoss.LessThanOrEqual(soft) {
		return true, u.Stop(ctx, breach("max_single_trade_loss", "soft stop loss of %s%%", soft.Mul(hundred)))
	}

	return true, nil
}

// RegularCheck runs between bars: it books fills, keeps the total position
// size under its limit and watches the BTC price band.
func (u *strategyUseCase) RegularCheck(ctx context.Context) error {
	if u.stopped {
		return u.stopReason
	}
	defer u.publish()

	err := u.regularCheck(ctx)
	if err != nil && !u.stopped {
		u.log().WithError(err).Error("regular check")
	}
	return err
}

func (u *strategyUseCase) regularCheck(ctx context.Context) error {
	filled, err := u.CheckFilled(ctx)
	if err != nil || u.stopped {
		return err
	}

	if u.settings.RecalcOnFill && (filled || !u.hasTrackedOrders()) {
		pos, err := u.feed.GetPositionAPIFirst(ctx)
		if err != nil {
			return err
		}
		if filled || !pos.IsFlat() {
			u.log().Info("recalculating orders")
			if err := u.refreshOrders(ctx); err != nil || u.stopped {
				return err
			}
		}
	}

	if u.settings.MaxNumOfPositions > 0 {
		positions, err := u.trader.GetPositions(ctx)
		if err != nil {
			return err
		}
		pos, err := u.feed.GetPositionAPIFirst(ctx)
		if err != nil {
			return err
		}
		u.position = pos

		equity, err := u.feed.GetWalletBalanceAPIFirst(ctx)
		if err != nil {
			return err
		}

		ok, err := u.maxPositionsCheck(ctx, positions, pos, walletBalance(equity, positions))
		if err != nil {
			return err
		}
		if !ok && pos.IsFlat() && u.hasTrackedOrders() {
			u.log().Info("max positions size reached, cancelling entries")
			if err := u.cancelEntries(ctx); err != nil {
				return err
			}
		}
	}

	return u.btcBand(ctx)
}

func (u *strategyUseCase) hasTrackedOrders() bool {
	return u.state.CurrentBuyOrder != nil || u.state.CurrentSellOrder != nil || u.state.StopLossOrder != nil
}

func orderNotional(o *models.Order) decimal.Decimal {
	if o == nil || o.ReduceOnly {
		return decimal.Zero
	}
	return o.Price.Mul(o.Remaining())
}

// maxPositionsCheck reports whether new entries still fit under the total
// position size limit of MaxNumOfPositions wallets.
func (u *strategyUseCase) maxPositionsCheck(ctx context.Context, positions []models.Position, pos models.Position, wallet decimal.Decimal) (bool, error) {
	if u.settings.MaxNumOfPositions <= 0 {
		return true, nil
	}

	maxPositions := decimal.NewFromInt(int64(u.settings.MaxNumOfPositions))
	limit := wallet.Mul(maxPositions)
	sum := positionsNotional(positions)

	if sum.Mul(sizeSlack).GreaterThan(limit) && !u.state.ClosePositionOnly {
		u.latchCloseOnly("positions of %s over the %s limit", sum.StringFixed(2), limit.StringFixed(2))
	}

	if !pos.IsFlat() && sum.GreaterThan(wallet.Mul(maxPositions.Add(one))) {
		u.log().
			WithField("positions", sum.StringFixed(2)).
			WithField("wallet", wallet.StringFixed(2)).
			Warn("positions a whole wallet over the limit, closing at market")
		if err := u.cancelAllOrders(ctx); err != nil {
			return false, err
		}
		if _, err := u.trader.MarketClose(ctx, u.settings.Symbol); err != nil {
			return false, err
		}
		return false, nil
	}

	if !pos.IsFlat() {
		pending := u.trackedOrder(pos.Side())
		if pending != nil && !pending.ReduceOnly {
			after := sum.Sub(pos.Notional()).Add(orderNotional(pending).Mul(sizeSlack))
			if after.GreaterThan(limit) {
				u.log().
					WithField("after", after.StringFixed(2)).
					WithField("limit", limit.StringFixed(2)).
					Info("pending entry would pass the positions limit, cancelling it")
				if err := u.cancelTracked(ctx, pos.Side()); err != nil {
					return false, err
				}
			}
		}
		return true, nil
	}

	potential := decimal.Max(orderNotional(u.state.CurrentBuyOrder), orderNotional(u.state.CurrentSellOrder)).Mul(potentialSlack)
	return potential.Add(sum).LessThan(limit), nil
}

// btcBand puts the engine in close only mode while BTC trades outside the
// band from the env file. The file is read on every call so the band can be
// moved without a restart.
func (u *strategyUseCase) btcBand(ctx context.Context) error {
	if u.state.ClosePositionOnly || u.cfg.EnvFile == "" {
		return nil
	}

	env, err := godotenv.Read(u.cfg.EnvFile)
	if err != nil {
		u.log().WithError(err).Debug("btc price band not read")
		return nil
	}

	lower, lerr := decimal.NewFromString(env[envBTCLowerBound])
	upper, uerr := decimal.NewFromString(env[envBTCUpperBound])
	if lerr != nil || uerr != nil || !lower.IsPositive() || !upper.IsPositive() {
		return nil
	}

	symbol, ok := u.cfg.BTCSymbols[u.settings.Exchange]
	if !ok {
		return nil
	}

	ticker, err := u.trader.GetBookTicker(ctx, symbol)
	if err != nil {
		return errors.Wrap(err, "btc price")
	}
	price := ticker.BidPrice.Add(ticker.AskPrice).Div(two)

	if price.GreaterThanOrEqual(lower) && price.LessThanOrEqual(upper) {
		return nil
	}

	u.latchCloseOnly("BTC at %s outside %s-%s", price.StringFixed(2), lower, upper)
	if u.position.IsFlat() {
		return u.cancelEntries(ctx)
	}
	return nil
}
