package usecasees

import (
	"context"
	"time"

	"flushbot/internal/exchange"
	"flushbot/internal/rounding"
	"flushbot/models"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

var (
	gapUp   = decimal.RequireFromString("1.05")
	gapDown = decimal.RequireFromString("0.95")
)

// SetOrders runs once per bar: it reads the live controls, applies the risk
// checks and places or refreshes the entry or exit orders.
func (u *strategyUseCase) SetOrders(ctx context.Context) error {
	if u.stopped {
		return u.stopReason
	}
	defer u.publish()

	return u.refreshOrders(ctx)
}

// refreshOrders runs setOrders and, when it fails without a position,
// cancels whatever it left on the book.
func (u *strategyUseCase) refreshOrders(ctx context.Context) error {
	err := u.setOrders(ctx)
	if err == nil || u.stopped {
		return err
	}

	u.log().WithError(err).Error("set orders")

	// orders left from a failed tick are stale without a position
	pos, perr := u.feed.GetPositionAPIFirst(ctx)
	if perr == nil && pos.IsFlat() {
		if cerr := u.cancelAllOrders(ctx); cerr != nil {
			u.log().WithError(cerr).Error("cancel stale orders")
		}
	}

	return err
}

func (u *strategyUseCase) setOrders(ctx context.Context) error {
	symbol := u.settings.Symbol

	if err := u.readControls(ctx); err != nil {
		u.log().WithError(err).Warn("controls not refreshed")
	}
	if u.controls.ForceClose {
		return u.Stop(ctx, errors.Wrap(ErrEngineStopped, "force close requested"))
	}
	if u.controls.Wait {
		u.log().Info("waiting")
		return nil
	}
	u.state.ClosePositionOnly = u.closeOnly()

	if _, err := u.CheckFilled(ctx); err != nil || u.stopped {
		return err
	}

	positions, err := u.trader.GetPositions(ctx)
	if err != nil {
		return err
	}
	pos, err := u.feed.GetPositionAPIFirst(ctx)
	if err != nil {
		return err
	}
	u.position = pos

	if u.state.ClosePositionOnly && pos.IsFlat() {
		return u.Stop(ctx, errors.Wrap(ErrEngineStopped, "close only without position"))
	}

	equity, err := u.feed.GetWalletBalanceAPIFirst(ctx)
	if err != nil {
		return err
	}
	wallet := walletBalance(equity, positions)

	maxSizeRemaining := decimal.Zero
	if u.settings.MaxNumOfPositions > 0 {
		ok, err := u.maxPositionsCheck(ctx, positions, pos, wallet)
		if err != nil {
			return err
		}
		if !ok {
			u.log().Info("max positions size reached, skipping orders")
			return u.cancelAllOrders(ctx)
		}
		maxSizeRemaining = wallet.Mul(decimal.NewFromInt(int64(u.settings.MaxNumOfPositions))).Sub(positionsNotional(positions))
	}

	if dd := u.cfg.drawdownFor(u.settings.Exchange); pos.IsFlat() && dd.IsPositive() {
		if equity.LessThan(wallet.Mul(one.Sub(dd.Div(hundred)))) {
			u.log().
				WithField("equity", equity.StringFixed(2)).
				WithField("wallet", wallet.StringFixed(2)).
				Warn("unrealised pnl drawdown reached, skipping orders")
			u.notify(u.cfg.AlertsChannel, "skipping orders, unrealised pnl drawdown reached")
			return u.cancelAllOrders(ctx)
		}
	}

	if !u.settings.IgnoreAbnormalVolume && !u.controls.IgnoreAbnormalVolume &&
		u.cfg.AbnormalVolumeMultiplier.IsPositive() && !u.state.ClosePositionOnly {
		abnormal, err := u.trader.AbnormalVolume(ctx, symbol, u.cfg.AbnormalVolumeMultiplier, u.cfg.AbnormalVolumeDays)
		if err != nil {
			return err
		}
		if abnormal {
			if pos.IsFlat() {
				return u.Stop(ctx, breach("abnormal_volume", "24h volume over %s times the %d day average",
					u.cfg.AbnormalVolumeMultiplier, u.cfg.AbnormalVolumeDays))
			}
			u.latchCloseOnly("abnormal volume with an open position")
		}
	}

	volCount := volatilityCandles(u.period)
	limit := u.settings.NumberOfFlushBars
	for _, n := range []int{u.settings.ExitLookbackBars, volCount} {
		if n > limit {
			limit = n
		}
	}

	candles, err := u.feed.GetCandlesticksAPIFirst(ctx, limit+1)
	if err != nil {
		return err
	}
	if len(candles) < 2 {
		return errors.Errorf("%s: %d candles", symbol, len(candles))
	}

	if change := rangePercent(candles.Tail(volCount)); u.cfg.VolatilityLimit.IsPositive() && change.GreaterThan(u.cfg.VolatilityLimit) {
		if pos.IsFlat() {
			return u.Stop(ctx, breach("volatility", "%s%% range in the last hour", change.StringFixed(2)))
		}
		if !u.state.ClosePositionOnly {
			u.latchCloseOnly("volatility %s%% with an open position", change.StringFixed(2))
		}
	}

	candles = candles.Closed(u.now(), u.period)

	if u.state.ExceededProfitStillInPosition {
		u.log().Warn("did not manage to exit position")
		u.state.ExceededProfitStillInPosition = false
		u.journalPostOnlyExitFailed(ctx)
	}

	if pos.IsFlat() {
		return u.placeEntries(ctx, candles, wallet, maxSizeRemaining)
	}
	return u.placeExit(ctx, pos, candles)
}

func (u *strategyUseCase) readControls(ctx context.Context) error {
	if u.settingsRepo == nil {
		return nil
	}

	controls, ok, err := u.settingsRepo.Controls(ctx, u.name)
	if err != nil {
		return err
	}
	if !ok {
		// no longer listed: wind down
		controls = models.Controls{CloseOnly: true}
	}
	u.controls = controls
	return nil
}

// volatilityCandles is the number of bars covering one hour, at least one.
func volatilityCandles(period time.Duration) int {
	n := int(time.Hour / period)
	if n < 1 {
		return 1
	}
	return n
}

// rangePercent is (highest-lowest)/lowest in percent.
func rangePercent(candles models.Candles) decimal.Decimal {
	low := candles.Lowest(len(candles))
	if !low.IsPositive() {
		return decimal.Zero
	}
	return candles.Highest(len(candles)).Sub(low).Div(low).Mul(hundred)
}

// walletBalance is equity without the unrealised pnl of positions.
func walletBalance(equity decimal.Decimal, positions []models.Position) decimal.Decimal {
	for _, p := range positions {
		equity = equity.Sub(p.UnRealizedProfit)
	}
	return equity
}

func positionsNotional(positions []models.Position) decimal.Decimal {
	sum := decimal.Zero
	for _, p := range positions {
		sum = sum.Add(p.Notional())
	}
	return sum
}

// limitPrice is the price PlaceLimitOrder sends for side.
func (u *strategyUseCase) limitPrice(side models.Side, price decimal.Decimal) decimal.Decimal {
	if side == models.SideBuy {
		return rounding.RoundDown(price, u.prec.TickSize)
	}
	return rounding.RoundUp(price, u.prec.TickSize)
}

type entryTarget struct {
	side  models.Side
	price decimal.Decimal
}

func (u *strategyUseCase) placeEntries(ctx context.Context, candles models.Candles, wallet, maxSizeRemaining decimal.Decimal) error {
	s := u.settings
	u.state.FullPositionQty = decimal.Zero

	if u.state.TradeID != 0 {
		u.abandonTrade(ctx)
	}

	last, ok := candles.Last()
	if !ok {
		return errors.Errorf("%s: no closed candle", s.Symbol)
	}
	price := last.Close

	highest, lowest := price, price
	if n := s.NumberOfFlushBars; n > 0 {
		highest = candles.Highest(n)
		lowest = candles.Lowest(n)
	}

	flushEntry := highest.Mul(one.Sub(u.fr.Flush))
	squeezeEntry := lowest.Mul(one.Add(u.fr.Squeeze))
	if s.ReverseMode {
		flushEntry, squeezeEntry = squeezeEntry, flushEntry
	}

	buyOK, sellOK := true, s.Shorts

	if u.cfg.RangeLimitDays > 0 && !s.ReverseMode {
		daily, err := u.trader.GetKlines(ctx, exchange.KlineQuery{Symbol: s.Symbol, Interval: "1d", Limit: u.cfg.RangeLimitDays})
		if err != nil {
			return err
		}
		upper := decimal.Max(daily.Highest(len(daily)), highest)
		lower := decimal.Min(daily.Lowest(len(daily)), lowest)
		if len(daily) == 0 {
			upper, lower = highest, lowest
		}

		if flushEntry.LessThan(lower) || price.LessThan(lower) {
			u.log().
				WithField("entry", decimal.Min(flushEntry, price).String()).
				WithField("range_low", lower.String()).
				Info("buy entry under the range limit, skipping")
			buyOK = false
		}
		if sellOK && (squeezeEntry.GreaterThan(upper) || price.GreaterThan(upper)) {
			u.log().
				WithField("entry", decimal.Max(squeezeEntry, price).String()).
				WithField("range_high", upper.String()).
				Info("sell entry over the range limit, skipping")
			sellOK = false
		}
	}

	if s.ReverseMode {
		ticker, err := u.trader.GetBookTicker(ctx, s.Symbol)
		if err != nil {
			return err
		}
		if ticker.AskPrice.GreaterThan(flushEntry.Mul(gapUp)) {
			u.log().
				WithField("entry", flushEntry.String()).
				WithField("ask", ticker.AskPrice.String()).
				Warn("price gapped up, buying at the ask")
			flushEntry = ticker.AskPrice
		}
		if ticker.BidPrice.LessThan(squeezeEntry.Mul(gapDown)) {
			u.log().
				WithField("entry", squeezeEntry.String()).
				WithField("bid", ticker.BidPrice.String()).
				Warn("price gapped down, selling at the bid")
			squeezeEntry = ticker.BidPrice
		}
	}

	if sellOK && !s.ReverseMode && flushEntry.GreaterThan(squeezeEntry) {
		u.log().
			WithField("buy", flushEntry.String()).
			WithField("sell", squeezeEntry.String()).
			Warn("buy entry over sell entry")
		if flushEntry.GreaterThan(price) && price.GreaterThan(squeezeEntry) {
			u.log().WithField("price", price.String()).Warn("price between entries, skipping sell")
			sellOK = false
		}
	}

	marketSafe := s.ReverseMode || s.PostOnly || !s.AvoidMarketEntries
	if buyOK && !marketSafe && price.LessThan(flushEntry) {
		u.log().
			WithField("price", price.String()).
			WithField("entry", flushEntry.String()).
			Info("price under buy entry, skipping")
		buyOK = false
	}
	if sellOK && !marketSafe && price.GreaterThan(squeezeEntry) {
		u.log().
			WithField("price", price.String()).
			WithField("entry", squeezeEntry.String()).
			Info("price over sell entry, skipping")
		sellOK = false
	}

	var targets []entryTarget
	if buyOK {
		targets = append(targets, entryTarget{side: models.SideBuy, price: flushEntry})
	}
	if sellOK {
		targets = append(targets, entryTarget{side: models.SideSell, price: squeezeEntry})
	}

	kept, cancelled, err := u.reconcileEntries(ctx, targets)
	if err != nil {
		return err
	}

	if cancelled {
		pos, err := u.feed.GetPositionAPIFirst(ctx)
		if err != nil {
			return err
		}
		if !pos.IsFlat() {
			u.log().Warn("position opened while cancelling orders")
			u.position = pos
			u.journalEntry(ctx, nil)
			return u.placeExit(ctx, pos, candles)
		}
	}

	if s.MinBalance.IsPositive() && wallet.LessThan(s.MinBalance) {
		return u.Stop(ctx, breach("min_balance", "balance %s under %s", wallet.StringFixed(2), s.MinBalance))
	}

	for _, t := range targets {
		if kept[t.side] {
			u.log().WithField("side", t.side).Debug("entry order doesn't need updating")
			continue
		}

		order, err := u.placeEntry(ctx, t, wallet, maxSizeRemaining)
		if err != nil {
			return err
		}
		u.setEntryOrder(t.side, order)
	}

	if u.state.CurrentBuyOrder == nil && u.state.CurrentSellOrder == nil {
		u.state.AtBidAskPostOnlyEntryAttempt = false
	}

	return nil
}

func (u *strategyUseCase) setEntryOrder(side models.Side, o *models.Order) {
	if side == models.SideBuy {
		u.state.CurrentBuyOrder = o
		return
	}
	u.state.CurrentSellOrder = o
}

func (u *strategyUseCase) trackedOrder(side models.Side) *models.Order {
	if side == models.SideBuy {
		return u.state.CurrentBuyOrder
	}
	return u.state.CurrentSellOrder
}

// reconcileEntries keeps the tracked entry order of a side while its price
// still matches the target and cancels every other open order.
func (u *strategyUseCase) reconcileEntries(ctx context.Context, targets []entryTarget) (map[models.Side]bool, bool, error) {
	symbol := u.settings.Symbol

	open, err := u.trader.GetOpenOrders(ctx, symbol)
	if err != nil {
		return nil, false, err
	}

	want := map[models.Side]decimal.Decimal{}
	for _, t := range targets {
		want[t.side] = u.limitPrice(t.side, t.price)
	}

	kept := map[models.Side]bool{}
	cancelled := false
	for i := range open {
		o := open[i]

		tracked := u.trackedOrder(o.Side)
		target, wanted := want[o.Side]
		keep := wanted && !kept[o.Side] && !o.ReduceOnly &&
			tracked != nil && tracked.OrderID == o.OrderID &&
			o.Price.Equal(target) && !o.IsPartiallyFilled()
		if keep {
			kept[o.Side] = true
			continue
		}

		if err := u.trader.CancelOrder(ctx, symbol, exchange.RefOf(&o)); err != nil {
			return nil, false, err
		}
		cancelled = true
	}

	for _, side := range []models.Side{models.SideBuy, models.SideSell} {
		if !kept[side] {
			u.setEntryOrder(side, nil)
		}
	}
	if !kept[models.SideBuy] && !kept[models.SideSell] {
		u.state.StopLossOrder = nil
	}

	return kept, cancelled, nil
}

func (u *strategyUseCase) placeEntry(ctx context.Context, t entryTarget, wallet, maxSizeRemaining decimal.Decimal) (*models.Order, error) {
	s := u.settings

	req := exchange.LimitOrderRequest{
		Symbol:                s.Symbol,
		Side:                  t.side,
		Price:                 t.price,
		Quantity:              s.Quantity,
		FixedBalance:          s.FixedBalance,
		BalancePercent:        u.fr.BalancePercent,
		PostOnly:              s.PostOnly,
		VolumeBasedPosSize:    s.VolumeBasedPosSize,
		Balance:               wallet,
		AbsoluteMaxUsdPosSize: maxSizeRemaining,
	}
	if t.side == models.SideSell {
		req.FixedBalance = req.FixedBalance.Mul(s.ShortsPositionMultiplier)
		req.BalancePercent = req.BalancePercent.Mul(s.ShortsPositionMultiplier)
	}
	if s.ReverseMode {
		req.StopPrice = t.price
	}

	order, err := u.trader.PlaceLimitOrder(ctx, req)
	if exchange.IsKind(err, exchange.KindImmediateTrigger) {
		u.log().
			WithField("side", t.side).
			WithField("stop", t.price.String()).
			Warn("entry stop already triggered, skipping")
		return nil, nil
	}
	if err != nil || order == nil {
		return nil, err
	}

	u.metrics.OrderPlaced(s.Exchange, s.Symbol, t.side, "entry")
	if s.PostOnly {
		u.state.AtBidAskPostOnlyEntryAttempt = true
	}

	u.log().
		WithField("side", t.side).
		WithField("price", order.Price.String()).
		WithField("qty", order.OrigQty.String()).
		Info("entry order placed")

	return order, nil
}

// placeExit keeps one reduce only take profit (and a stop loss when
// configured) in line with the position.
func (u *strategyUseCase) placeExit(ctx context.Context, pos models.Position, candles models.Candles) error {
	s := u.settings
	symbol := s.Symbol

	if pos.Size().GreaterThan(u.state.FullPositionQty) {
		u.state.FullPositionQty = pos.Size()
	}
	if u.state.EntryPrice.IsZero() {
		u.state.EntryPrice = pos.EntryPrice
	}

	closed, err := u.SoftStopLossCheck(ctx, pos)
	if err != nil || closed {
		return err
	}

	entry := pos.EntryPrice
	exitSide := pos.Side().Opposite()
	nExit := s.ExitLookbackBars

	var limit, stop decimal.Decimal
	if pos.IsLong() {
		limit = candles.Highest(nExit)
		if u.fr.TakeProfit.IsPositive() {
			tp := rounding.RoundUp(entry.Mul(one.Add(u.fr.TakeProfit)), u.prec.TickSize)
			if nExit == 0 || tp.LessThan(limit) {
				limit = tp
			}
		}
		if u.fr.StopLossLong.IsPositive() {
			stop = entry.Mul(one.Sub(u.fr.StopLossLong))
		}
	} else {
		limit = candles.Lowest(nExit)
		if u.fr.TakeProfit.IsPositive() {
			tp := rounding.RoundDown(entry.Mul(one.Sub(u.fr.TakeProfit)), u.prec.TickSize)
			if nExit == 0 || tp.GreaterThan(limit) {
				limit = tp
			}
		}
		if u.fr.StopLossShort.IsPositive() {
			stop = entry.Mul(one.Add(u.fr.StopLossShort))
		}
	}
	if !limit.IsPositive() {
		return errors.Wrapf(exchange.ErrConfiguration, "%s: no exit price, set exitLookbackBars or takeProfitPercentage", symbol)
	}

	open, err := u.trader.GetOpenOrders(ctx, symbol)
	if err != nil {
		return err
	}

	var current, stopLoss *models.Order
	for i := range open {
		o := open[i]
		if o.Side != exitSide {
			continue
		}
		switch {
		case o.Type == models.OrderTypeLimit && current == nil:
			current = &o
		case o.IsStopLoss() && stopLoss == nil:
			stopLoss = &o
		}
	}
	u.setEntryOrder(exitSide, current)
	if stopLoss != nil {
		u.state.StopLossOrder = stopLoss
	}

	target := u.limitPrice(exitSide, limit)
	upToDate := current != nil &&
		current.Price.Equal(target) &&
		current.Remaining().Equal(pos.Size()) &&
		(stop.IsZero() || (stopLoss != nil && stopLoss.Remaining().Equal(pos.Size())))
	if upToDate {
		u.log().WithField("limit", target.String()).Debug("exit doesn't need updating")
		return nil
	}

	if err := u.cancelAllOrders(ctx); err != nil {
		return err
	}

	price, err := u.feed.GetLatestPriceAPIFirst(ctx)
	if err != nil {
		u.log().WithError(err).Warn("latest price, using the last close")
		price = candles[len(candles)-1].Close
	}
	beyond := price.GreaterThanOrEqual(limit)
	if pos.IsShort() {
		beyond = price.LessThanOrEqual(limit)
	}

	if !s.AvoidMarketEntries || !beyond {
		order, err := u.trader.PlaceLimitOrder(ctx, exchange.LimitOrderRequest{
			Symbol:     symbol,
			Side:       exitSide,
			Price:      limit,
			Quantity:   pos.Size(),
			ReduceOnly: true,
		})
		if err != nil {
			return err
		}
		u.setEntryOrder(exitSide, order)
		if order != nil {
			u.metrics.OrderPlaced(s.Exchange, symbol, exitSide, "exit")
		}

		if stop.IsPositive() {
			sl, err := u.trader.PlaceStopMarket(ctx, symbol, exitSide, stop, pos.Size())
			if err != nil {
				return err
			}
			u.state.StopLossOrder = sl
			if sl != nil {
				u.metrics.OrderPlaced(s.Exchange, symbol, exitSide, "stop_loss")
			}
		}
		return nil
	}

	u.log().
		WithField("limit", limit.String()).
		WithField("price", price.String()).
		Info("take profit exceeded, exiting at the touch")

	u.journalPostOnlyExit(ctx, pos)

	order, err := u.trader.PlaceLimitOrder(ctx, exchange.LimitOrderRequest{
		Symbol:     symbol,
		Side:       exitSide,
		Quantity:   pos.Size(),
		ReduceOnly: true,
		AtTouch:    true,
	})
	if err != nil {
		return err
	}
	u.setEntryOrder(exitSide, order)
	if order != nil {
		u.metrics.OrderPlaced(s.Exchange, symbol, exitSide, "exit")
	}
	u.state.ExceededProfitStillInPosition = true

	return nil
}
