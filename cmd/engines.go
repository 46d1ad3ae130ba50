package main

import (
	"context"
	"path/filepath"
	"strings"

	"flushbot/internal/controllers"
	"flushbot/internal/exchange"
	"flushbot/internal/feed"
	"flushbot/internal/repository"
	"flushbot/internal/repository/argfile"
	mongoRepo "flushbot/internal/repository/mongo"
	"flushbot/internal/usecasees"
	"flushbot/models"

	"github.com/pkg/errors"
)

type namedSettings struct {
	name     string
	settings *models.Settings
}

// loadSettings returns the strategies to run and the repository their
// control flags are read from. A nil repository means fixed settings.
func (a *App) loadSettings(ctx context.Context, argsFiles, arglist string) ([]namedSettings, repository.SettingsRepo, error) {
	if argsFiles != "" {
		var out []namedSettings
		for _, path := range strings.Split(argsFiles, ",") {
			path = strings.TrimSpace(path)
			if path == "" {
				continue
			}
			s, err := argfile.NewStore(filepath.Dir(path), "").Load(ctx, filepath.Base(path))
			if err != nil {
				return nil, nil, err
			}
			out = append(out, namedSettings{name: filepath.Base(path), settings: s})
		}
		return out, nil, nil
	}

	var repo repository.SettingsRepo
	switch a.Config.SettingsSource {
	case sourceMongo:
		repo = mongoRepo.NewSettingsRepository(a.Mongo)
	case sourceArgfile:
		repo = argfile.NewStore(filepath.Dir(arglist), arglist)
	default:
		return nil, nil, errors.Errorf("unknown SETTINGS_SOURCE %q", a.Config.SettingsSource)
	}

	entries, err := repo.List(ctx)
	if err != nil {
		return nil, nil, err
	}

	out := make([]namedSettings, 0, len(entries))
	for _, e := range entries {
		s, err := repo.Load(ctx, e.Name)
		if err != nil {
			a.LogRus.WithField("settings", e.Name).WithError(err).Error("settings skipped")
			continue
		}
		out = append(out, namedSettings{name: e.Name, settings: s})
	}

	return out, repo, nil
}

type engineDeps struct {
	registry     *exchange.Registry
	walletRepo   repository.WalletRepo
	tradeRepo    repository.TradeRepo
	settingsRepo repository.SettingsRepo
	notifier     controllers.Notifier
	metrics      *usecasees.Metrics

	traders map[string]*exchange.Trader
	feeds   []*feed.Feed
}

func (d *engineDeps) trader(a *App, name string) (*exchange.Trader, error) {
	name = strings.ToUpper(name)
	if t, ok := d.traders[name]; ok {
		return t, nil
	}

	ex, err := d.registry.Build(name)
	if err != nil {
		return nil, err
	}

	policy := exchange.NewRetryPolicy(a.Config.Tries, a.LogRus)
	policy.OnRetry = d.metrics.Retry

	t := exchange.NewTrader(ex, policy, a.LogRus)
	d.traders[name] = t

	return t, nil
}

// startEngines builds, starts and schedules one engine per settings entry.
// Entries that fail or stop on start are logged and skipped.
func (a *App) startEngines(ctx context.Context, scheduler *usecasees.Scheduler, entries []namedSettings, d *engineDeps) {
	for _, e := range entries {
		log := a.LogRus.
			WithField("settings", e.name).
			WithField("exchange", e.settings.Exchange).
			WithField("symbol", e.settings.Symbol)

		if err := a.startEngine(ctx, scheduler, e, d); err != nil {
			if errors.Is(err, usecasees.ErrEngineStopped) {
				log.WithError(err).Warn("engine not started")
				continue
			}
			log.WithError(err).Error("engine not started")
		}
	}
}

func (a *App) startEngine(ctx context.Context, scheduler *usecasees.Scheduler, e namedSettings, d *engineDeps) error {
	trader, err := d.trader(a, e.settings.Exchange)
	if err != nil {
		return err
	}

	window, err := usecasees.FeedWindow(e.settings)
	if err != nil {
		return err
	}

	stream := feed.NewStream(trader, e.settings.Symbol, e.settings.Interval, a.LogRus)
	f, err := feed.New(trader, stream, e.settings.Symbol, e.settings.Interval, window, a.LogRus)
	if err != nil {
		return err
	}

	engine, err := usecasees.NewStrategyUseCase(
		e.name,
		e.settings,
		a.Config.Strategy,
		trader,
		f,
		d.walletRepo,
		d.tradeRepo,
		d.settingsRepo,
		d.notifier,
		d.metrics,
		a.LogRus,
	)
	if err != nil {
		return err
	}

	if err := f.Start(ctx); err != nil {
		return err
	}

	if err := engine.Init(ctx); err != nil {
		f.Stop()
		if engine.Stopped() {
			return errors.Wrap(usecasees.ErrEngineStopped, err.Error())
		}
		return err
	}

	if err := scheduler.Add(ctx, engine); err != nil {
		f.Stop()
		return err
	}
	d.feeds = append(d.feeds, f)

	return nil
}
