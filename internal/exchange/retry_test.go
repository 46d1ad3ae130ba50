package exchange

import (
	"context"
	"io/ioutil"
	"net"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sleepRecorder struct {
	waits []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.waits = append(s.waits, d)
	return ctx.Err()
}

func newTestPolicy(tries int) (*RetryPolicy, *sleepRecorder, *int) {
	logger := logrus.New()
	logger.SetOutput(ioutil.Discard)

	rec := &sleepRecorder{}
	rotations := 0

	p := NewRetryPolicy(tries, logger)
	p.Sleep = rec.sleep
	p.Rotate = func() { rotations++ }

	return p, rec, &rotations
}

func TestRetryPolicy(t *testing.T) {
	ctx := context.Background()

	t.Run("transient errors use up tries and rotate", func(t *testing.T) {
		p, rec, rotations := newTestPolicy(3)

		calls := 0
		err := p.Do(ctx, "op", func(ctx context.Context) error {
			calls++
			return &net.OpError{Op: "dial", Err: errors.New("connection refused")}
		})

		require.Error(t, err)
		assert.Equal(t, 3, calls)
		assert.Equal(t, 2, *rotations)
		assert.Equal(t, []time.Duration{defaultBackoff, defaultBackoff}, rec.waits)
	})

	t.Run("transient then success", func(t *testing.T) {
		p, _, _ := newTestPolicy(3)

		calls := 0
		res, err := Call(ctx, p, "op", func(ctx context.Context) (int, error) {
			calls++
			if calls == 1 {
				return 0, newError("BYBIT", KindTransient, "10016", "server error")
			}
			return 42, nil
		})

		require.NoError(t, err)
		assert.Equal(t, 42, res)
		assert.Equal(t, 2, calls)
	})

	t.Run("rate limits do not count against tries", func(t *testing.T) {
		p, rec, rotations := newTestPolicy(2)

		calls := 0
		err := p.Do(ctx, "op", func(ctx context.Context) error {
			calls++
			if calls <= 5 {
				e := newError("PHEMEX", KindRateLimited, "429", "slow down")
				if calls == 1 {
					e.RetryAfter = 3 * time.Second
				}
				return e
			}
			return nil
		})

		require.NoError(t, err)
		assert.Equal(t, 6, calls)
		assert.Zero(t, *rotations)
		require.Len(t, rec.waits, 5)
		assert.Equal(t, 3*time.Second, rec.waits[0])
		assert.Equal(t, defaultRateLimitWait, rec.waits[1])
	})

	t.Run("other kinds return at once", func(t *testing.T) {
		for _, kind := range []Kind{KindFatal, KindDuplicateOrder, KindInvalidOrder, KindNotFound, KindImmediateTrigger} {
			p, rec, _ := newTestPolicy(3)

			calls := 0
			err := p.Do(ctx, "op", func(ctx context.Context) error {
				calls++
				return newError("BINANCE", kind, "x", "y")
			})

			assert.Equal(t, kind, KindOf(err), kind.String())
			assert.Equal(t, 1, calls, kind.String())
			assert.Empty(t, rec.waits, kind.String())
		}
	})

	t.Run("cancelled context stops the loop", func(t *testing.T) {
		p, _, _ := newTestPolicy(3)

		cctx, cancel := context.WithCancel(ctx)
		calls := 0
		err := p.Do(cctx, "op", func(ctx context.Context) error {
			calls++
			cancel()
			return newError("BYBIT", KindRateLimited, "10006", "too many visits")
		})

		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	})

	t.Run("on retry hook", func(t *testing.T) {
		p, _, _ := newTestPolicy(2)

		var kinds []Kind
		p.OnRetry = func(op string, kind Kind) {
			assert.Equal(t, "place_order", op)
			kinds = append(kinds, kind)
		}

		calls := 0
		_ = p.Do(ctx, "place_order", func(ctx context.Context) error {
			calls++
			if calls == 1 {
				return newError("OKX", KindRateLimited, "50011", "rate limit")
			}
			return newError("OKX", KindTransient, "50001", "unavailable")
		})

		assert.Equal(t, []Kind{KindRateLimited, KindTransient}, kinds)
	})
}

func TestSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := Sleep(ctx, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)

	assert.NoError(t, Sleep(context.Background(), time.Millisecond))
}
