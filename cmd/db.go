package main

import (
	"context"

	"flushbot/internal/repository"
	"flushbot/internal/repository/postgres"
	"flushbot/internal/repository/sqlite"

	"github.com/pkg/errors"
)

// InitDB opens the trade log: sqlite at dbFileName unless DB_DRIVER is
// postgres. The schema is created when migrate is set or on sqlite.
func (a *App) InitDB(ctx context.Context, dbFileName string, migrate bool) error {
	var err error

	switch a.Config.DBDriver {
	case driverPostgres:
		if a.DB, err = postgres.Connect(postgres.Config{
			Host:     a.Config.DB.Host,
			Port:     a.Config.DB.Port,
			User:     a.Config.DB.User,
			Password: a.Config.DB.Password,
			DBName:   a.Config.DB.DBName,
			SSLMode:  a.Config.DB.SSLMode,
		}); err != nil {
			return err
		}
		if migrate {
			return postgres.Migrate(ctx, a.DB)
		}

	case driverSqlite:
		if a.DB, err = sqlite.Connect(dbFileName); err != nil {
			return err
		}
		return sqlite.Migrate(ctx, a.DB)

	default:
		return errors.Errorf("unknown DB_DRIVER %q", a.Config.DBDriver)
	}

	return nil
}

func (a *App) repositories() (repository.WalletRepo, repository.TradeRepo) {
	if a.Config.DBDriver == driverPostgres {
		return postgres.NewWalletRepository(a.DB), postgres.NewTradeRepository(a.DB)
	}

	return sqlite.NewWalletRepository(a.DB), sqlite.NewTradeRepository(a.DB)
}
