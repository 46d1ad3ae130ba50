package exchange

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	DefaultTries         = 3
	defaultBackoff       = 100 * time.Millisecond
	defaultRateLimitWait = 100 * time.Millisecond
)

// RetryPolicy runs exchange calls. Transient failures are retried up to Tries
// times, rotating the base URL between attempts. Rate limits sleep and retry
// without using up an attempt, so a rate limited call only ends with ctx.
// Every other kind is returned to the caller at once.
type RetryPolicy struct {
	Tries   int
	Backoff time.Duration
	Sleep   func(ctx context.Context, d time.Duration) error
	Rotate  func()
	Logger  *logrus.Logger

	// OnRetry is called before every retry, for metrics.
	OnRetry func(op string, kind Kind)
}

func NewRetryPolicy(tries int, logger *logrus.Logger) *RetryPolicy {
	return &RetryPolicy{
		Tries:   tries,
		Backoff: defaultBackoff,
		Logger:  logger,
	}
}

func (p *RetryPolicy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	_, err := Call(ctx, p, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

func Call[T any](ctx context.Context, p *RetryPolicy, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	tries := p.Tries
	if tries <= 0 {
		tries = DefaultTries
	}

	var zero T
	attempt := 0
	for {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		res, err := fn(ctx)
		if err == nil {
			return res, nil
		}

		kind := KindOf(err)
		switch kind {
		case KindRateLimited:
			wait := retryAfterOf(err)
			if wait <= 0 {
				wait = defaultRateLimitWait
			}
			p.log().
				WithField("op", op).
				WithField("wait", wait.String()).
				Warn("rate limited")
			p.retrying(op, kind)
			if err := p.sleep(ctx, wait); err != nil {
				return zero, err
			}

		case KindTransient:
			attempt++
			if attempt >= tries {
				p.log().
					WithField("op", op).
					WithField("tries", attempt).
					WithError(err).
					Error("giving up")
				return zero, err
			}
			if p.Rotate != nil {
				p.Rotate()
			}
			p.retrying(op, kind)
			if err := p.sleep(ctx, p.backoff()); err != nil {
				return zero, err
			}

		default:
			return zero, err
		}
	}
}

func (p *RetryPolicy) retrying(op string, kind Kind) {
	if p.OnRetry != nil {
		p.OnRetry(op, kind)
	}
}

func (p *RetryPolicy) backoff() time.Duration {
	if p.Backoff <= 0 {
		return defaultBackoff
	}
	return p.Backoff
}

func (p *RetryPolicy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	return Sleep(ctx, d)
}

func (p *RetryPolicy) log() *logrus.Logger {
	if p.Logger == nil {
		return logrus.StandardLogger()
	}
	return p.Logger
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
