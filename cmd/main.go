package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"flushbot/internal/controllers"
	"flushbot/internal/exchange"
	"flushbot/internal/usecasees"

	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	var app App
	var confFileName, dbFileName, arglist, argsFiles string
	var paper, migrate bool

	flag.StringVar(&confFileName, "config", ".env", "env file")
	flag.StringVar(&dbFileName, "db", "./store.db", "sqlite trade log")
	flag.StringVar(&arglist, "arglist", "arglist.txt", "arglist file enabling args files")
	flag.StringVar(&argsFiles, "args", "", "comma separated args files to run instead of the arglist")
	flag.BoolVar(&paper, "paper", false, "trade against a simulated exchange")
	flag.BoolVar(&migrate, "migrate", false, "create the postgres tables")
	flag.Parse()

	app.Name = appName
	app.initLogRus()

	if err := app.loadConfig(confFileName); err != nil {
		app.LogRus.WithError(err).Fatal("config")
	}
	app.initLogRus()

	if err := app.initLoki(); err != nil {
		app.LogRus.WithError(err).Error("loki")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.InitDB(ctx, dbFileName, migrate); err != nil {
		app.LogRus.WithError(err).Fatal("db")
	}
	defer app.DB.Close()

	if app.Config.SettingsSource == sourceMongo && argsFiles == "" {
		if err := app.initMongo(ctx); err != nil {
			app.LogRus.WithError(err).Fatal("mongo")
		}
		defer app.Mongo.Disconnect(context.Background())
	}

	app.initHTTPClient()

	if err := app.initTgBot(); err != nil {
		app.LogRus.WithError(err).Fatal("telegram")
	}

	var tgmController *controllers.TgmController
	if app.TGM != nil {
		tgmController = controllers.NewTgmController(app.TGM, app.Config.TelegramChatID)
	}

	notifier := app.initNotifier(tgmController)
	defer notifier.Close()

	entries, settingsRepo, err := app.loadSettings(ctx, argsFiles, arglist)
	if err != nil {
		app.LogRus.WithError(err).Fatal("settings")
	}

	walletRepo, tradeRepo := app.repositories()
	deps := &engineDeps{
		registry: exchange.NewRegistry(
			app.HTTPClient,
			app.LogRus,
			app.Config.Exchanges,
			app.Config.OKXPosMode,
			paper,
		),
		walletRepo:   walletRepo,
		tradeRepo:    tradeRepo,
		settingsRepo: settingsRepo,
		notifier:     notifier,
		metrics:      usecasees.NewMetrics(prometheus.DefaultRegisterer),
		traders:      map[string]*exchange.Trader{},
	}

	scheduler := usecasees.NewScheduler(app.Config.CheckEvery, app.LogRus)
	app.initHTTPServer(scheduler)

	if tgmController != nil {
		tgmUseCase := usecasees.NewTgmUseCase(scheduler, tgmController, app.Config.Timezone, app.LogRus)
		go tgmUseCase.CommandProcessor(ctx)
	}

	app.startEngines(ctx, scheduler, entries, deps)

	app.LogRus.
		WithField("engines", len(scheduler.Statuses())).
		WithField("paper", paper).
		Info("flushbot started")

	scheduler.Run(ctx)

	for _, f := range deps.feeds {
		f.Stop()
	}
	if err := app.Fiber.Shutdown(); err != nil {
		app.LogRus.WithError(err).Error("http shutdown")
	}
	if app.PromTail != nil {
		app.PromTail.Close()
	}
}
