package usecasees

import (
	"context"
	"sync"
	"testing"
	"time"

	"flushbot/internal/usecasees/structs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEngine struct {
	name     string
	interval string
	blocking bool

	mu      sync.Mutex
	checks  int
	stopAt  int
	stopped bool
}

func (f *fakeEngine) Name() string     { return f.name }
func (f *fakeEngine) Interval() string { return f.interval }
func (f *fakeEngine) Blocking() bool   { return f.blocking }

func (f *fakeEngine) SetOrders(context.Context) error { return nil }

func (f *fakeEngine) RegularCheck(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.checks++
	if f.stopAt > 0 && f.checks >= f.stopAt {
		f.stopped = true
	}
	return nil
}

func (f *fakeEngine) Stopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

func (f *fakeEngine) Status() structs.EngineStatus {
	f.mu.Lock()
	defer f.mu.Unlock()

	s := structs.EngineStatus{Name: f.name, Interval: f.interval, Stopped: f.stopped}
	if f.stopped {
		s.StopReason = "done"
	}
	return s
}

func TestBarSpec(t *testing.T) {
	for interval, want := range map[string]string{
		"1m":  "1 */1 * * * *",
		"5m":  "1 */5 * * * *",
		"15m": "1 */15 * * * *",
		"1h":  "1 0 * * * *",
		"4h":  "1 0 */4 * * *",
		"1d":  "1 0 0 * * *",
	} {
		t.Run(interval, func(t *testing.T) {
			got, err := BarSpec(interval)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}

	t.Run("unknown interval", func(t *testing.T) {
		_, err := BarSpec("7x")
		assert.Error(t, err)
	})
}

func (f *fakeEngine) checkCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.checks
}

func TestNewScheduler_UTC(t *testing.T) {
	s := NewScheduler(0, quietLogger())
	assert.Equal(t, time.UTC, s.cron.Location())
	assert.Equal(t, DefaultCheckEvery, s.checkEvery)
}

func TestScheduler_CheckJob(t *testing.T) {
	ctx := context.Background()

	t.Run("busy engine skips the check", func(t *testing.T) {
		s := NewScheduler(time.Second, quietLogger())
		e := &fakeEngine{name: "x", interval: "1m"}
		item := &scheduled{engine: e}

		item.mu.Lock()
		s.checkJob(ctx, item)()
		item.mu.Unlock()

		assert.Equal(t, 0, e.checkCount())
	})

	t.Run("blocking engine waits for the bar", func(t *testing.T) {
		s := NewScheduler(time.Second, quietLogger())
		e := &fakeEngine{name: "x", interval: "1m", blocking: true}
		item := &scheduled{engine: e}

		item.mu.Lock()
		done := make(chan struct{})
		go func() {
			s.checkJob(ctx, item)()
			close(done)
		}()

		time.Sleep(20 * time.Millisecond)
		assert.Equal(t, 0, e.checkCount())
		item.mu.Unlock()

		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("check never ran")
		}
		assert.Equal(t, 1, e.checkCount())
	})

	t.Run("idle engine runs the check", func(t *testing.T) {
		s := NewScheduler(time.Second, quietLogger())
		e := &fakeEngine{name: "x", interval: "1m"}

		s.checkJob(ctx, &scheduled{engine: e})()
		assert.Equal(t, 1, e.checkCount())
	})
}

func TestScheduler_Add(t *testing.T) {
	s := NewScheduler(time.Second, quietLogger())

	assert.Error(t, s.Add(context.Background(), &fakeEngine{name: "bad", interval: "7x"}))
	require.NoError(t, s.Add(context.Background(), &fakeEngine{name: "b", interval: "1m"}))
	require.NoError(t, s.Add(context.Background(), &fakeEngine{name: "a", interval: "1h"}))

	statuses := s.Statuses()
	require.Len(t, statuses, 2)
	assert.Equal(t, "a", statuses[0].Name)
	assert.Equal(t, "b", statuses[1].Name)
}

func TestScheduler_Run(t *testing.T) {
	t.Run("returns without engines", func(t *testing.T) {
		s := NewScheduler(0, quietLogger())
		s.Run(context.Background())
	})

	t.Run("returns once every engine stopped", func(t *testing.T) {
		s := NewScheduler(time.Second, quietLogger())
		e := &fakeEngine{name: "x", interval: "1d", stopAt: 1}
		require.NoError(t, s.Add(context.Background(), e))

		done := make(chan struct{})
		go func() {
			s.Run(context.Background())
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("scheduler did not stop")
		}
		assert.True(t, s.Statuses()[0].Stopped)
	})

	t.Run("returns on cancel", func(t *testing.T) {
		s := NewScheduler(time.Second, quietLogger())
		require.NoError(t, s.Add(context.Background(), &fakeEngine{name: "x", interval: "1d"}))

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		done := make(chan struct{})
		go func() {
			s.Run(ctx)
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("scheduler ignored cancel")
		}
	})
}
