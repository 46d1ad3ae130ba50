package usecasees

import (
	"context"
	"database/sql"
	"time"

	"flushbot/models"

	"github.com/shopspring/decimal"
)

const (
	postOnlyEntry = "TRUE"
	estimateDepth = 100
)

// journalEntry logs an entry into the trades table. A partially filled
// order opens the trade from the order itself, later fills update it from
// the position. Journal errors are logged, trading goes on.
func (u *strategyUseCase) journalEntry(ctx context.Context, order *models.Order) {
	if u.tradeRepo == nil {
		return
	}
	log := u.log()
	now := u.now()

	if u.state.TradeID != 0 && (order == nil || !order.IsPartiallyFilled()) {
		pos, err := u.feed.GetPositionAPIFirst(ctx)
		if err != nil {
			log.WithError(err).Error("journal entry: position")
			return
		}
		if err := u.tradeRepo.UpdateEntry(ctx, u.state.TradeID, pos, now); err != nil {
			log.WithError(err).WithField("trade_id", u.state.TradeID).Error("journal entry update")
		}
		return
	}
	if u.state.TradeID != 0 {
		return
	}

	var side models.Side
	var amount, price decimal.Decimal
	if order != nil && order.IsPartiallyFilled() {
		side, amount, price = order.Side, order.ExecutedQty, order.AvgPrice
	} else {
		pos, err := u.feed.GetPositionAPIFirst(ctx)
		if err != nil {
			log.WithError(err).Error("journal entry: position")
			return
		}
		if pos.IsFlat() {
			return
		}
		side, amount, price = pos.Side(), pos.Size(), pos.EntryPrice
	}

	trade := &models.Trade{
		Symbol:            sql.NullString{String: u.settings.Symbol, Valid: true},
		Setting:           sql.NullString{String: u.settings.String(), Valid: true},
		EntryTime:         sql.NullString{String: now.Format(models.DateTimeLayout), Valid: true},
		PositionSide:      sql.NullString{String: models.PositionSideOf(side), Valid: true},
		EntryOrderAmount:  decimal.NewNullDecimal(amount),
		PositionSize:      decimal.NewNullDecimal(amount),
		PositionSizeUSDT:  decimal.NewNullDecimal(amount.Mul(price)),
		AverageEntryPrice: decimal.NewNullDecimal(price),
	}
	if order != nil {
		trade.EntryOrderAmount = decimal.NewNullDecimal(order.OrigQty)
	}

	if u.state.AtBidAskPostOnlyEntryAttempt {
		trade.AtBidAskPostOnlyEntry = sql.NullString{String: postOnlyEntry, Valid: true}
		if est, ok := u.marketOpenEstimate(ctx, side, amount); ok {
			trade.IfMarketOpenAvgPrice = decimal.NewNullDecimal(est.AvgPrice)
			trade.IfMarketOpenSlippage = decimal.NewNullDecimal(est.Slippage)
		}
	}

	id, err := u.tradeRepo.OpenTrade(ctx, trade)
	if err != nil {
		log.WithError(err).Error("journal entry")
		return
	}
	u.state.TradeID = id

	if err := u.ledger.SetLastTradeID(ctx, id); err != nil {
		log.WithError(err).WithField("trade_id", id).Error("link trade to internal wallet")
	}

	log.WithField("trade_id", id).
		WithField("side", side).
		WithField("amount", amount.String()).
		WithField("price", price.String()).
		Info("trade opened")
}

// marketOpenEstimate prices opening amount on side at market now. Opening a
// long walks the asks, which is what closing a short of the same size does.
func (u *strategyUseCase) marketOpenEstimate(ctx context.Context, side models.Side, amount decimal.Decimal) (models.MarketCloseEstimate, bool) {
	book, err := u.trader.GetOrderBook(ctx, u.settings.Symbol, estimateDepth)
	if err != nil {
		u.log().WithError(err).Warn("order book for market open estimate")
		return models.MarketCloseEstimate{}, false
	}

	synthetic := models.ZeroPosition(u.settings.Symbol)
	synthetic.PositionAmt = amount
	if side == models.SideBuy {
		synthetic.PositionAmt = amount.Neg()
	}
	return book.MarketCloseEstimate(synthetic, u.prec.TickSize)
}

// journalExit folds an exit order into the open trade and closes it once
// the position is fully exited.
func (u *strategyUseCase) journalExit(ctx context.Context, order *models.Order) {
	if u.tradeRepo == nil {
		return
	}
	log := u.log()
	now := u.now()

	if u.state.TradeID == 0 {
		log.Warn("exit without a logged trade")
		if err := u.tradeRepo.LogFailedEntry(ctx, u.settings.Symbol, now); err != nil {
			log.WithError(err).Error("log failed entry")
		}
		return
	}

	id := u.state.TradeID
	update, err := u.tradeRepo.CloseTrade(ctx, id, order, u.prec.TickSize, now)
	if err != nil {
		log.WithError(err).WithField("trade_id", id).Error("journal exit")
		return
	}
	if !update.Closed {
		return
	}

	u.closeStats(ctx, id)

	if err := u.ledger.ClearLastTradeID(ctx, id); err != nil {
		log.WithError(err).WithField("trade_id", id).Error("unlink trade from internal wallet")
	}
	u.state.TradeID = 0

	log.WithField("trade_id", id).
		WithField("exit_price", update.AverageExitPrice.String()).
		WithField("pnl_pct", update.RawPnlPercentage.String()).
		Info("trade closed")
}

func (u *strategyUseCase) closeStats(ctx context.Context, id int64) {
	log := u.log().WithField("trade_id", id)

	trade, err := u.tradeRepo.GetByID(ctx, id)
	if err != nil {
		log.WithError(err).Error("read closed trade")
		return
	}

	maxLoss := decimal.Zero
	if start, err := time.ParseInLocation(models.DateTimeLayout, trade.EntryTime.String, time.Local); err == nil {
		side := models.SideBuy
		if !trade.IsLong() {
			side = models.SideSell
		}
		maxLoss, err = u.trader.MaxUnrealisedLossPct(ctx, u.settings.Symbol, side, trade.AverageEntryPrice.Decimal, start)
		if err != nil {
			log.WithError(err).Warn("max unrealised loss")
		}
	}

	balance, err := u.feed.GetWalletBalanceAPIFirst(ctx)
	if err != nil {
		log.WithError(err).Warn("wallet balance for closed trade")
	}

	if err := u.tradeRepo.SetCloseStats(ctx, id, maxLoss.Round(3), balance); err != nil {
		log.WithError(err).Error("trade close stats")
	}
}

// journalPostOnlyExit records an at touch exit attempt with what a market
// close would yield now.
func (u *strategyUseCase) journalPostOnlyExit(ctx context.Context, pos models.Position) {
	if u.tradeRepo == nil || u.state.TradeID == 0 {
		return
	}

	var est models.MarketCloseEstimate
	book, err := u.trader.GetOrderBook(ctx, u.settings.Symbol, estimateDepth)
	if err == nil {
		est, _ = book.MarketCloseEstimate(pos, u.prec.TickSize)
	} else {
		u.log().WithError(err).Warn("order book for market close estimate")
	}

	if err := u.tradeRepo.IncPostOnlyExitCount(ctx, u.state.TradeID, est); err != nil {
		u.log().WithError(err).WithField("trade_id", u.state.TradeID).Error("journal post only exit")
	}
}

func (u *strategyUseCase) journalPostOnlyExitFailed(ctx context.Context) {
	if u.tradeRepo == nil || u.state.TradeID == 0 {
		return
	}
	if err := u.tradeRepo.IncPostOnlyExitFailedCount(ctx, u.state.TradeID); err != nil {
		u.log().WithError(err).WithField("trade_id", u.state.TradeID).Error("journal failed post only exit")
	}
}

// abandonTrade forgets a trade left open while the position is already flat.
func (u *strategyUseCase) abandonTrade(ctx context.Context) {
	id := u.state.TradeID
	u.log().WithField("trade_id", id).Warn("flat with an open trade, unlinking it")

	if err := u.ledger.ClearLastTradeID(ctx, id); err != nil {
		u.log().WithError(err).WithField("trade_id", id).Error("unlink trade from internal wallet")
	}
	u.state.TradeID = 0
}
