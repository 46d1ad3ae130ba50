package usecasees

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"flushbot/internal/normalizer"
	"flushbot/internal/usecasees/structs"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const DefaultCheckEvery = 5 * time.Second

// Engine is one running strategy as seen by the scheduler.
type Engine interface {
	Name() string
	Interval() string
	SetOrders(ctx context.Context) error
	RegularCheck(ctx context.Context) error
	Stopped() bool
	// Blocking engines queue a regular check behind a running bar instead
	// of skipping it.
	Blocking() bool
	Status() structs.EngineStatus
}

type scheduled struct {
	engine Engine
	// mu keeps SetOrders and RegularCheck of one engine apart
	mu      sync.Mutex
	entries []cron.EntryID
	retired bool
}

// Scheduler runs SetOrders one second after every bar close and
// RegularCheck in between, for every engine.
type Scheduler struct {
	cron       *cron.Cron
	checkEvery time.Duration
	logger     *logrus.Logger

	mu      sync.Mutex
	engines []*scheduled
	running int
	done    chan struct{}
}

func NewScheduler(checkEvery time.Duration, logger *logrus.Logger) *Scheduler {
	if checkEvery <= 0 {
		checkEvery = DefaultCheckEvery
	}

	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.Recover(cron.PrintfLogger(logger))),
		),
		checkEvery: checkEvery,
		logger:     logger,
		done:       make(chan struct{}),
	}
}

// BarSpec is the cron spec firing one second after every close of interval.
func BarSpec(interval string) (string, error) {
	d, err := normalizer.IntervalDuration(interval)
	if err != nil {
		return "", err
	}

	switch {
	case d < time.Hour && time.Hour%d == 0:
		return fmt.Sprintf("1 */%d * * * *", int(d/time.Minute)), nil
	case d == time.Hour:
		return "1 0 * * * *", nil
	case d < 24*time.Hour && (24*time.Hour)%d == 0:
		return fmt.Sprintf("1 0 */%d * * *", int(d/time.Hour)), nil
	case d == 24*time.Hour:
		return "1 0 0 * * *", nil
	}

	return "", errors.Errorf("no schedule for interval %s", interval)
}

// Add schedules e. Engines must be added before Run.
func (s *Scheduler) Add(ctx context.Context, e Engine) error {
	spec, err := BarSpec(e.Interval())
	if err != nil {
		return err
	}

	item := &scheduled{engine: e}

	barID, err := s.cron.AddFunc(spec, s.job(ctx, item, "set orders", true, e.SetOrders))
	if err != nil {
		return errors.Wrapf(err, "schedule %s", e.Name())
	}
	checkID, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.checkEvery), s.checkJob(ctx, item))
	if err != nil {
		s.cron.Remove(barID)
		return errors.Wrapf(err, "schedule %s", e.Name())
	}
	item.entries = []cron.EntryID{barID, checkID}

	s.mu.Lock()
	s.engines = append(s.engines, item)
	s.running++
	s.mu.Unlock()

	s.logger.
		WithField("engine", e.Name()).
		WithField("spec", spec).
		Info("engine scheduled")

	return nil
}

func (s *Scheduler) checkJob(ctx context.Context, item *scheduled) func() {
	return s.job(ctx, item, "regular check", item.engine.Blocking(), item.engine.RegularCheck)
}

// job wraps fn so that a bar run waits for a running check while a check
// is skipped when the engine is busy, unless the engine is blocking.
func (s *Scheduler) job(ctx context.Context, item *scheduled, what string, wait bool, fn func(context.Context) error) func() {
	return func() {
		if wait {
			item.mu.Lock()
		} else if !item.mu.TryLock() {
			return
		}
		defer item.mu.Unlock()

		if item.engine.Stopped() {
			s.retire(item)
			return
		}

		if err := fn(ctx); err != nil {
			s.logger.
				WithField("engine", item.engine.Name()).
				WithError(err).
				Debug(what + " failed")
		}

		if item.engine.Stopped() {
			s.retire(item)
		}
	}
}

func (s *Scheduler) retire(item *scheduled) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if item.retired {
		return
	}
	item.retired = true

	for _, id := range item.entries {
		s.cron.Remove(id)
	}
	s.running--

	s.logger.
		WithField("engine", item.engine.Name()).
		WithField("reason", item.engine.Status().StopReason).
		Warn("engine retired")

	if s.running == 0 {
		close(s.done)
	}
}

// Run blocks until ctx is done or every engine has stopped.
func (s *Scheduler) Run(ctx context.Context) {
	s.mu.Lock()
	empty := s.running == 0
	s.mu.Unlock()
	if empty {
		s.logger.Warn("no engines to run")
		return
	}

	s.cron.Start()

	select {
	case <-ctx.Done():
		s.logger.Info("scheduler stopping")
	case <-s.done:
		s.logger.Info("all engines stopped")
	}

	<-s.cron.Stop().Done()
}

// Statuses lists the engines by name.
func (s *Scheduler) Statuses() []structs.EngineStatus {
	s.mu.Lock()
	out := make([]structs.EngineStatus, 0, len(s.engines))
	for _, item := range s.engines {
		out = append(out, item.engine.Status())
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
