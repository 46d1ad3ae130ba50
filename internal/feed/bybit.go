package feed

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"flushbot/internal/exchange"
	"flushbot/internal/normalizer"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	bybitPublicURL  = "wss://stream.bybit.com/v5/public/linear"
	bybitPrivateURL = "wss://stream.bybit.com/v5/private"
	bybitAuthTTL    = 10 * time.Second
)

var bybitPing = []byte(`{"op":"ping"}`)

// BybitStream follows the v5 kline topic and the private order, position and
// wallet topics.
type BybitStream struct {
	ex         *exchange.Bybit
	symbol     string
	interval   string
	publicURL  string
	privateURL string
	logger     *logrus.Logger
}

func NewBybitStream(ex *exchange.Bybit, symbol, interval string, logger *logrus.Logger) *BybitStream {
	return &BybitStream{
		ex:         ex,
		symbol:     symbol,
		interval:   interval,
		publicURL:  bybitPublicURL,
		privateURL: bybitPrivateURL,
		logger:     logger,
	}
}

type bybitOp struct {
	Op   string        `json:"op"`
	Args []interface{} `json:"args"`
}

type bybitMessage struct {
	Op      string          `json:"op"`
	Success *bool           `json:"success"`
	RetMsg  string          `json:"ret_msg"`
	Topic   string          `json:"topic"`
	Data    json.RawMessage `json:"data"`
}

type bybitKline struct {
	Start    int64  `json:"start"`
	End      int64  `json:"end"`
	Open     string `json:"open"`
	Close    string `json:"close"`
	High     string `json:"high"`
	Low      string `json:"low"`
	Volume   string `json:"volume"`
	Turnover string `json:"turnover"`
}

type bybitStreamPosition struct {
	Symbol        string `json:"symbol"`
	Side          string `json:"side"`
	Size          string `json:"size"`
	EntryPrice    string `json:"entryPrice"`
	UnrealisedPnl string `json:"unrealisedPnl"`
}

type bybitStreamWallet struct {
	TotalAvailableBalance string `json:"totalAvailableBalance"`
}

func (s *BybitStream) Run(ctx context.Context, sink Sink) error {
	g, gctx := errgroup.WithContext(ctx)

	if interval, err := normalizer.ExchangeInterval(normalizer.Bybit, s.interval); err == nil {
		topic := "kline." + interval + "." + s.symbol
		public := NewConn("bybit-public", s.publicURL, s.logger)
		public.Ping = bybitPing
		public.OnConnect = func(_ context.Context, c *Conn) error {
			return c.Send(bybitOp{Op: "subscribe", Args: []interface{}{topic}})
		}
		public.OnMessage = func(_ context.Context, _ *Conn, msg []byte) error {
			return s.handle(msg, sink)
		}
		g.Go(func() error { return public.Run(gctx) })
	}

	private := NewConn("bybit-private", s.privateURL, s.logger)
	private.Ping = bybitPing
	private.OnConnect = func(_ context.Context, c *Conn) error {
		expires := time.Now().Add(bybitAuthTTL).UnixMilli()
		key, sign := s.ex.StreamAuth(expires)
		return c.Send(bybitOp{Op: "auth", Args: []interface{}{key, expires, sign}})
	}
	private.OnMessage = func(_ context.Context, c *Conn, msg []byte) error {
		var m bybitMessage
		if err := json.Unmarshal(msg, &m); err != nil {
			return errors.Wrap(err, "bybit message")
		}
		if m.Op == "auth" {
			if m.Success == nil || !*m.Success {
				return errors.Errorf("bybit stream auth: %s", m.RetMsg)
			}
			return c.Send(bybitOp{Op: "subscribe", Args: []interface{}{"order", "position", "wallet"}})
		}
		return s.handle(msg, sink)
	}
	g.Go(func() error { return private.Run(gctx) })

	return g.Wait()
}

func (s *BybitStream) handle(msg []byte, sink Sink) error {
	var m bybitMessage
	if err := json.Unmarshal(msg, &m); err != nil {
		return errors.Wrap(err, "bybit message")
	}

	switch {
	case strings.HasPrefix(m.Topic, "kline."):
		var rows []bybitKline
		if err := json.Unmarshal(m.Data, &rows); err != nil {
			return errors.Wrap(err, "bybit kline")
		}
		for _, k := range rows {
			candle, err := normalizer.BybitCandle([]string{
				strconv.FormatInt(k.Start, 10), k.Open, k.High, k.Low, k.Close, k.Volume, k.Turnover,
			}, s.interval)
			if err != nil {
				return err
			}
			sink.OnCandle(candle)
		}

	case m.Topic == "order":
		var rows []normalizer.BybitOrder
		if err := json.Unmarshal(m.Data, &rows); err != nil {
			return errors.Wrap(err, "bybit order")
		}
		for i := range rows {
			if rows[i].Symbol != s.symbol {
				continue
			}
			o, err := normalizer.BybitOrderToModel(&rows[i], s.ex.PrecisionLookup())
			if err != nil {
				s.logger.WithError(err).Warn("bybit order update")
				continue
			}
			sink.OnOrder(*o)
		}

	case m.Topic == "position":
		var rows []bybitStreamPosition
		if err := json.Unmarshal(m.Data, &rows); err != nil {
			return errors.Wrap(err, "bybit position")
		}
		for _, row := range rows {
			if row.Symbol != s.symbol {
				continue
			}
			pos, err := normalizer.BybitPositionToModel([]normalizer.BybitPosition{{
				Symbol:        row.Symbol,
				Side:          row.Side,
				Size:          row.Size,
				AvgPrice:      row.EntryPrice,
				UnrealisedPnl: row.UnrealisedPnl,
			}}, s.symbol)
			if err != nil {
				s.logger.WithError(err).Warn("bybit position update")
				continue
			}
			sink.OnPosition(pos)
		}

	case m.Topic == "wallet":
		var rows []bybitStreamWallet
		if err := json.Unmarshal(m.Data, &rows); err != nil {
			return errors.Wrap(err, "bybit wallet")
		}
		for _, w := range rows {
			if w.TotalAvailableBalance != "" {
				sink.OnBalance(num(w.TotalAvailableBalance))
			}
		}
	}

	return nil
}

var _ Stream = (*BybitStream)(nil)
