package feed

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"flushbot/internal/exchange"
	"flushbot/internal/normalizer"
	"flushbot/models"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	binanceStreamURL       = "wss://fstream.binance.com/ws/"
	binanceListenKeyRenew  = 30 * time.Minute
	binanceListenKeyExpiry = "listenKeyExpired"
)

// BinanceStream follows the kline stream and the user data stream of one
// symbol.
type BinanceStream struct {
	ex       *exchange.Binance
	symbol   string
	interval string
	baseURL  string
	logger   *logrus.Logger
}

func NewBinanceStream(ex *exchange.Binance, symbol, interval string, logger *logrus.Logger) *BinanceStream {
	return &BinanceStream{
		ex:       ex,
		symbol:   symbol,
		interval: interval,
		baseURL:  binanceStreamURL,
		logger:   logger,
	}
}

type binanceEvent struct {
	Event     string          `json:"e"`
	EventTime int64           `json:"E"`
	Kline json.RawMessage `json:"k"`
	Order json.RawMessage `json:"o"`
	// ACCOUNT_UPDATE payload
	Account *binanceAccountUpdate `json:"a"`
}

type binanceKline struct {
	OpenTime    int64  `json:"t"`
	CloseTime   int64  `json:"T"`
	Open        string `json:"o"`
	Close       string `json:"c"`
	High        string `json:"h"`
	Low         string `json:"l"`
	Volume      string `json:"v"`
	QuoteVolume string `json:"q"`

	LastTradeID   int64  `json:"L"`
	TakerVolume   string `json:"V"`
	TakerQuoteVol string `json:"Q"`
	Ignore        string `json:"B"`
}

type binanceAccountUpdate struct {
	Balances []struct {
		Asset         string `json:"a"`
		WalletBalance string `json:"wb"`
		CrossWallet   string `json:"cw"`
	} `json:"B"`
	Positions []struct {
		Symbol        string `json:"s"`
		Amount        string `json:"pa"`
		EntryPrice    string `json:"ep"`
		UnrealisedPnl string `json:"up"`
	} `json:"P"`
}

func (s *BinanceStream) Run(ctx context.Context, sink Sink) error {
	g, gctx := errgroup.WithContext(ctx)

	// 2m has no native stream, the feed rebuilds it from REST
	if interval, err := normalizer.ExchangeInterval(normalizer.Binance, s.interval); err == nil {
		market := NewConn("binance-kline", s.baseURL+strings.ToLower(s.symbol)+"@kline_"+interval, s.logger)
		market.OnMessage = func(_ context.Context, _ *Conn, msg []byte) error {
			return s.handle(msg, sink)
		}
		g.Go(func() error { return market.Run(gctx) })
	}

	g.Go(func() error { return s.runUserData(gctx, sink) })

	return g.Wait()
}

// runUserData keeps a listen key alive and reconnects with a fresh key when
// it expires.
func (s *BinanceStream) runUserData(ctx context.Context, sink Sink) error {
	for {
		key, err := s.ex.Client().NewStartUserStreamService().Do(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.WithError(err).Warn("binance listen key")
			if err := exchange.Sleep(ctx, defaultMinBackoff*5); err != nil {
				return err
			}
			continue
		}

		sctx, cancel := context.WithCancel(ctx)
		user := NewConn("binance-user", s.baseURL+key, s.logger)
		user.OnMessage = func(_ context.Context, _ *Conn, msg []byte) error {
			if err := s.handle(msg, sink); err != nil {
				if errors.Is(err, errListenKeyExpired) {
					cancel()
					return nil
				}
				return err
			}
			return nil
		}

		go s.keepAlive(sctx, key)
		err = user.Run(sctx)
		cancel()

		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.WithError(err).Info("binance user stream restarting")
	}
}

func (s *BinanceStream) keepAlive(ctx context.Context, key string) {
	ticker := time.NewTicker(binanceListenKeyRenew)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.ex.Client().NewKeepaliveUserStreamService().ListenKey(key).Do(ctx); err != nil {
				s.logger.WithError(err).Warn("binance listen key keepalive")
			}
		}
	}
}

var errListenKeyExpired = errors.New("binance listen key expired")

func (s *BinanceStream) handle(msg []byte, sink Sink) error {
	var ev binanceEvent
	if err := json.Unmarshal(msg, &ev); err != nil {
		return errors.Wrap(err, "binance event")
	}

	switch ev.Event {
	case "kline":
		var k binanceKline
		if err := json.Unmarshal(ev.Kline, &k); err != nil {
			return errors.Wrap(err, "binance kline")
		}
		sink.OnCandle(models.Candle{
			OpenTime:  k.OpenTime,
			Open:      num(k.Open),
			High:      num(k.High),
			Low:       num(k.Low),
			Close:     num(k.Close),
			Volume:    num(k.Volume),
			CloseTime: k.CloseTime,
			VolumeUSD: num(k.QuoteVolume),
		})

	case "ORDER_TRADE_UPDATE":
		var u normalizer.BinanceOrderUpdate
		if err := json.Unmarshal(ev.Order, &u); err != nil {
			return errors.Wrap(err, "binance order update")
		}
		if u.Symbol != s.symbol {
			return nil
		}
		o, err := normalizer.BinanceOrderFromUpdate(u)
		if err != nil {
			s.logger.WithError(err).Warn("binance order update")
			return nil
		}
		sink.OnOrder(*o)

	case "ACCOUNT_UPDATE":
		if ev.Account == nil {
			return nil
		}
		for _, b := range ev.Account.Balances {
			if b.Asset == "USDT" {
				sink.OnBalance(num(b.CrossWallet))
			}
		}
		for _, p := range ev.Account.Positions {
			if p.Symbol != s.symbol {
				continue
			}
			amt := num(p.Amount)
			if amt.IsZero() {
				sink.OnPosition(models.ZeroPosition(s.symbol))
				continue
			}
			sink.OnPosition(models.Position{
				Symbol:           p.Symbol,
				EntryPrice:       num(p.EntryPrice),
				PositionAmt:      amt,
				UnRealizedProfit: num(p.UnrealisedPnl),
			})
		}

	case binanceListenKeyExpiry:
		return errListenKeyExpired
	}

	return nil
}

// num parses an exchange decimal, empty or malformed values read as zero.
func num(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
