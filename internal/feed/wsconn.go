package feed

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	defaultReadTimeout  = 60 * time.Second
	defaultWriteTimeout = 10 * time.Second
	defaultPingInterval = 20 * time.Second
	defaultMinBackoff   = time.Second
	defaultMaxBackoff   = time.Minute

	// a session that survived this long resets the backoff
	stableSession = time.Minute
)

var ErrConnClosed = errors.New("websocket connection closed")

// Conn is a websocket that keeps reconnecting until its context is done.
// OnConnect runs after every dial (login, subscriptions) and OnMessage for
// every text frame. Both may call Send.
type Conn struct {
	Name string
	URL  string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PingInterval time.Duration
	MinBackoff   time.Duration
	MaxBackoff   time.Duration

	// Ping is sent as a text frame when set, a control ping otherwise.
	Ping []byte

	OnConnect func(ctx context.Context, c *Conn) error
	OnMessage func(ctx context.Context, c *Conn, msg []byte) error

	Dialer *websocket.Dialer
	Logger *logrus.Logger

	mu   sync.Mutex
	conn *websocket.Conn
}

func NewConn(name, url string, logger *logrus.Logger) *Conn {
	return &Conn{
		Name:         name,
		URL:          url,
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
		PingInterval: defaultPingInterval,
		MinBackoff:   defaultMinBackoff,
		MaxBackoff:   defaultMaxBackoff,
		Dialer:       websocket.DefaultDialer,
		Logger:       logger,
	}
}

func (c *Conn) log() *logrus.Entry {
	return c.Logger.WithField("stream", c.Name)
}

// Run dials and serves sessions until ctx is done.
func (c *Conn) Run(ctx context.Context) error {
	attempt := 0
	for {
		started := time.Now()
		err := c.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if time.Since(started) > stableSession {
			attempt = 0
		}
		wait := backoff(attempt, c.MinBackoff, c.MaxBackoff)
		attempt++

		c.log().WithError(err).WithField("wait", wait).Warn("websocket disconnected, reconnecting")

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// backoff doubles from min up to max and adds up to 50% jitter.
func backoff(attempt int, min, max time.Duration) time.Duration {
	d := min
	for i := 0; i < attempt && d < max; i++ {
		d *= 2
	}
	if d > max {
		d = max
	}

	return d + time.Duration(rand.Int63n(int64(d)/2+1))
}

func (c *Conn) session(ctx context.Context) error {
	conn, _, err := c.Dialer.DialContext(ctx, c.URL, nil)
	if err != nil {
		return errors.Wrapf(err, "dial %s", c.Name)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	sctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		conn.Close()
	}()

	c.log().Info("websocket connected")

	conn.SetReadLimit(5 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(c.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.ReadTimeout))
	})

	if c.OnConnect != nil {
		if err := c.OnConnect(sctx, c); err != nil {
			return errors.Wrapf(err, "%s on connect", c.Name)
		}
	}

	go c.pingPump(sctx, conn)

	// closing the socket unblocks ReadMessage when ctx ends
	go func() {
		<-sctx.Done()
		conn.Close()
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errors.Wrapf(err, "read %s", c.Name)
		}
		_ = conn.SetReadDeadline(time.Now().Add(c.ReadTimeout))

		if c.OnMessage == nil {
			continue
		}
		if err := c.OnMessage(sctx, c, msg); err != nil {
			return errors.Wrapf(err, "%s message", c.Name)
		}
	}
}

func (c *Conn) pingPump(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(c.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var err error
			if c.Ping != nil {
				err = c.write(conn, websocket.TextMessage, c.Ping)
			} else {
				err = c.write(conn, websocket.PingMessage, nil)
			}
			if err != nil {
				c.log().WithError(err).Warn("websocket ping failed")
				conn.Close()
				return
			}
		}
	}
}

func (c *Conn) write(conn *websocket.Conn, messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_ = conn.SetWriteDeadline(time.Now().Add(c.WriteTimeout))
	return conn.WriteMessage(messageType, data)
}

// Send writes v as JSON on the current session.
func (c *Conn) Send(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "%s encode", c.Name)
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return ErrConnClosed
	}

	return c.write(conn, websocket.TextMessage, data)
}
