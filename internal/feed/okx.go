package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"strconv"
	"time"

	"flushbot/internal/exchange"
	"flushbot/internal/normalizer"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	okxBusinessURL = "wss://ws.okx.com:8443/ws/v5/business"
	okxPrivateURL  = "wss://ws.okx.com:8443/ws/v5/private"
	okxPingEvery   = 25 * time.Second
)

var (
	okxPing = []byte("ping")
	okxPong = []byte("pong")
)

// OKXStream follows the candle channel and the private orders, positions and
// account channels.
type OKXStream struct {
	ex          *exchange.OKX
	symbol      string
	interval    string
	businessURL string
	privateURL  string
	logger      *logrus.Logger
}

func NewOKXStream(ex *exchange.OKX, symbol, interval string, logger *logrus.Logger) *OKXStream {
	return &OKXStream{
		ex:          ex,
		symbol:      symbol,
		interval:    interval,
		businessURL: okxBusinessURL,
		privateURL:  okxPrivateURL,
		logger:      logger,
	}
}

type okxOp struct {
	Op   string              `json:"op"`
	Args []map[string]string `json:"args"`
}

type okxMessage struct {
	Event string `json:"event"`
	Code  string `json:"code"`
	Msg   string `json:"msg"`
	Arg   struct {
		Channel string `json:"channel"`
		InstID  string `json:"instId"`
	} `json:"arg"`
	Data json.RawMessage `json:"data"`
}

type okxAccount struct {
	Details []struct {
		Ccy      string `json:"ccy"`
		AvailBal string `json:"availBal"`
	} `json:"details"`
}

func (s *OKXStream) newConn(name, url string) *Conn {
	c := NewConn(name, url, s.logger)
	c.Ping = okxPing
	c.PingInterval = okxPingEvery
	return c
}

func (s *OKXStream) Run(ctx context.Context, sink Sink) error {
	g, gctx := errgroup.WithContext(ctx)

	if interval, err := normalizer.ExchangeInterval(normalizer.OKX, s.interval); err == nil {
		channel := "candle" + interval
		business := s.newConn("okx-business", s.businessURL)
		business.OnConnect = func(_ context.Context, c *Conn) error {
			return c.Send(okxOp{Op: "subscribe", Args: []map[string]string{{"channel": channel, "instId": s.symbol}}})
		}
		business.OnMessage = func(_ context.Context, _ *Conn, msg []byte) error {
			return s.handle(msg, sink)
		}
		g.Go(func() error { return business.Run(gctx) })
	}

	private := s.newConn("okx-private", s.privateURL)
	private.OnConnect = func(_ context.Context, c *Conn) error {
		ts := strconv.FormatInt(time.Now().Unix(), 10)
		key, passphrase, sign := s.ex.StreamLogin(ts)
		return c.Send(okxOp{Op: "login", Args: []map[string]string{{
			"apiKey":     key,
			"passphrase": passphrase,
			"timestamp":  ts,
			"sign":       sign,
		}}})
	}
	private.OnMessage = func(_ context.Context, c *Conn, msg []byte) error {
		if bytes.Equal(msg, okxPong) {
			return nil
		}

		var m okxMessage
		if err := json.Unmarshal(msg, &m); err != nil {
			return errors.Wrap(err, "okx message")
		}
		if m.Event == "login" {
			if m.Code != "0" {
				return errors.Errorf("okx stream login: %s %s", m.Code, m.Msg)
			}
			return c.Send(okxOp{Op: "subscribe", Args: []map[string]string{
				{"channel": "orders", "instType": "SWAP", "instId": s.symbol},
				{"channel": "positions", "instType": "SWAP", "instId": s.symbol},
				{"channel": "account", "ccy": "USDT"},
			}})
		}

		return s.handle(msg, sink)
	}
	g.Go(func() error { return private.Run(gctx) })

	return g.Wait()
}

func (s *OKXStream) handle(msg []byte, sink Sink) error {
	if bytes.Equal(msg, okxPong) {
		return nil
	}

	var m okxMessage
	if err := json.Unmarshal(msg, &m); err != nil {
		return errors.Wrap(err, "okx message")
	}

	if m.Event == "error" {
		return errors.Errorf("okx stream: %s %s", m.Code, m.Msg)
	}
	if len(m.Data) == 0 {
		return nil
	}

	switch m.Arg.Channel {
	case "orders":
		var rows []normalizer.OKXOrder
		if err := json.Unmarshal(m.Data, &rows); err != nil {
			return errors.Wrap(err, "okx orders")
		}
		for i := range rows {
			o, err := normalizer.OKXOrderToModel(&rows[i], s.ex.PrecisionLookup(), s.ex.OrderContext())
			if err != nil {
				s.logger.WithError(err).Warn("okx order update")
				continue
			}
			sink.OnOrder(*o)
		}

	case "positions":
		var rows []normalizer.OKXPosition
		if err := json.Unmarshal(m.Data, &rows); err != nil {
			return errors.Wrap(err, "okx positions")
		}
		pos, err := normalizer.OKXPositionToModel(rows, s.symbol, s.ex.PrecisionLookup())
		if err != nil {
			s.logger.WithError(err).Warn("okx position update")
			return nil
		}
		sink.OnPosition(pos)

	case "account":
		var rows []okxAccount
		if err := json.Unmarshal(m.Data, &rows); err != nil {
			return errors.Wrap(err, "okx account")
		}
		for _, a := range rows {
			for _, d := range a.Details {
				if d.Ccy == "USDT" {
					sink.OnBalance(num(d.AvailBal))
				}
			}
		}

	default:
		if m.Arg.InstID != s.symbol {
			return nil
		}
		var rows [][]string
		if err := json.Unmarshal(m.Data, &rows); err != nil {
			return errors.Wrap(err, "okx candle")
		}
		for _, row := range rows {
			c, err := normalizer.OKXCandle(row, s.interval)
			if err != nil {
				return err
			}
			sink.OnCandle(c)
		}
	}

	return nil
}
