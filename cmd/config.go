package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"flushbot/internal/exchange"
	"flushbot/internal/normalizer"
	"flushbot/internal/usecasees"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

const (
	sourceArgfile = "argfile"
	sourceMongo   = "mongo"

	driverSqlite   = "sqlite"
	driverPostgres = "postgres"
)

type Config struct {
	LogLevel    string
	LokiURL     string
	HTTPAddr    string
	HTTPTimeout time.Duration
	Timezone    string

	TelegramApiToken    string
	TelegramChatID      int64
	DiscordWebhookURL   string
	DiscordErrorChannel string

	DBDriver       string
	DB             *DB
	SettingsSource string
	Mongo          *Mongo

	Exchanges  map[string]exchange.Credentials
	OKXPosMode string
	Tries      int
	CheckEvery time.Duration

	Strategy usecasees.StrategyConfig
}

type DB struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type Mongo struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

var ErrEnvNotFound = errors.New("err env not found")

var exchangeNames = []string{
	normalizer.Binance,
	normalizer.Bybit,
	normalizer.OKX,
	normalizer.Gate,
	normalizer.MEXC,
	normalizer.Phemex,
	normalizer.BingX,
}

func (a *App) loadConfig(confFileName string) error {
	var cfg Config
	var err error

	if err = godotenv.Load(confFileName); err != nil {
		return errors.Wrapf(err, "load %s", confFileName)
	}

	cfg.LogLevel = cfg.get("LOG_LEVEL", "INFO")
	cfg.LokiURL = cfg.get("LOKI_URL", "")
	cfg.HTTPAddr = cfg.get("HTTP_ADDR", ":8080")
	cfg.Timezone = cfg.get("TIMEZONE", "UTC")
	if cfg.HTTPTimeout, err = time.ParseDuration(cfg.get("HTTP_TIMEOUT", "5s")); err != nil {
		return errors.Wrap(err, "HTTP_TIMEOUT")
	}

	if cfg.TelegramApiToken = cfg.get("TELEGRAM_API_TOKEN", ""); cfg.TelegramApiToken != "" {
		chatID, err := cfg.set("TELEGRAM_CHAT_ID")
		if err != nil {
			return err
		}
		if cfg.TelegramChatID, err = strconv.ParseInt(chatID, 10, 64); err != nil {
			return errors.Wrap(err, "TELEGRAM_CHAT_ID")
		}
	}
	cfg.DiscordWebhookURL = cfg.get("DISCORD_WEBHOOK_URL", "")
	cfg.DiscordErrorChannel = cfg.get("DISCORD_ERROR_CHANNEL", "")

	cfg.DBDriver = strings.ToLower(cfg.get("DB_DRIVER", driverSqlite))
	if cfg.DBDriver == driverPostgres {
		if cfg.DB, err = cfg.loadDB(); err != nil {
			return err
		}
	}

	cfg.SettingsSource = strings.ToLower(cfg.get("SETTINGS_SOURCE", sourceArgfile))
	if cfg.SettingsSource == sourceMongo {
		if cfg.Mongo, err = cfg.loadMongo(); err != nil {
			return err
		}
	}

	cfg.Exchanges = cfg.loadExchanges()
	cfg.OKXPosMode = cfg.get("OKX_POS_MODE", "")
	if cfg.Tries, err = cfg.getInt("TRIES", exchange.DefaultTries); err != nil {
		return err
	}
	if cfg.CheckEvery, err = time.ParseDuration(cfg.get("CHECK_EVERY", usecasees.DefaultCheckEvery.String())); err != nil {
		return errors.Wrap(err, "CHECK_EVERY")
	}

	if cfg.Strategy, err = cfg.loadStrategy(confFileName); err != nil {
		return err
	}

	a.Config = &cfg

	return nil
}

func (c *Config) loadDB() (*DB, error) {
	var db DB
	var err error

	if db.Host, err = c.set("PG_HOST"); err != nil {
		return nil, err
	}
	db.Port = c.get("PG_PORT", "5432")
	if db.User, err = c.set("PG_USER"); err != nil {
		return nil, err
	}
	if db.Password, err = c.set("PG_PASSWORD"); err != nil {
		return nil, err
	}
	if db.DBName, err = c.set("PG_DBNAME"); err != nil {
		return nil, err
	}
	db.SSLMode = c.get("PG_SSL_MODE", "disable")

	return &db, nil
}

func (c *Config) loadMongo() (*Mongo, error) {
	var m Mongo
	var err error

	if m.Host, err = c.set("MONGO_HOST"); err != nil {
		return nil, err
	}
	m.Port = c.get("MONGO_PORT", "27017")
	m.User = c.get("MONGO_USER", "")
	m.Password = c.get("MONGO_PASSWORD", "")
	m.DBName = c.get("MONGO_DBNAME", "admin")

	return &m, nil
}

func (m *Mongo) DSN() string {
	return fmt.Sprintf("mongodb://%s:%s", m.Host, m.Port)
}

// loadExchanges reads <EXCHANGE>_API_KEY, _API_SECRET and _URLS for every
// exchange that has a key.
func (c *Config) loadExchanges() map[string]exchange.Credentials {
	out := map[string]exchange.Credentials{}

	for _, name := range exchangeNames {
		key := c.get(name+"_API_KEY", "")
		if key == "" {
			continue
		}

		creds := exchange.Credentials{
			APIKey:    key,
			APISecret: c.get(name+"_API_SECRET", ""),
		}
		for _, u := range strings.Split(c.get(name+"_URLS", ""), ",") {
			if u = strings.TrimSpace(u); u != "" {
				creds.URLs = append(creds.URLs, u)
			}
		}
		if name == normalizer.OKX {
			creds.Passphrase = c.get("OKX_PASSPHRASE", "")
		}

		out[name] = creds
	}

	return out
}

func (c *Config) loadStrategy(envFile string) (usecasees.StrategyConfig, error) {
	s := usecasees.DefaultStrategyConfig()
	s.EnvFile = envFile
	s.AlertsChannel = "errors"
	s.TradesChannel = "trades"
	s.CloseOnly = c.get("CLOSE_ONLY", "") == "true"

	var err error
	if s.UnrealisedPnlDrawdown, err = c.getDecimal("UNREALISED_PNL_DRAWDOWN_TO_STOP_NEW_ORDERS", decimal.Zero); err != nil {
		return s, err
	}
	s.UnrealisedPnlDrawdownByExchange = map[string]decimal.Decimal{}
	for _, name := range exchangeNames {
		key := "UNREALISED_PNL_DRAWDOWN_TO_STOP_NEW_ORDERS_" + name
		if c.get(key, "") == "" {
			continue
		}
		if s.UnrealisedPnlDrawdownByExchange[name], err = c.getDecimal(key, decimal.Zero); err != nil {
			return s, err
		}
	}

	if s.CloseBestPriceMinValue, err = c.getDecimal("CLOSE_BEST_PRICE_MIN_VALUE", s.CloseBestPriceMinValue); err != nil {
		return s, err
	}
	if s.AbnormalVolumeMultiplier, err = c.getDecimal("ABNORMAL_VOLUME_SPIKE_MULTIPLIER_THRESHOLD", s.AbnormalVolumeMultiplier); err != nil {
		return s, err
	}
	if s.AbnormalVolumeDays, err = c.getInt("ABNORMAL_VOLUME_SPIKE_AVERAGE_NUMBER_OF_DAYS", s.AbnormalVolumeDays); err != nil {
		return s, err
	}
	if s.VolatilityLimit, err = c.getDecimal("VOLATILITY_LIMIT", s.VolatilityLimit); err != nil {
		return s, err
	}
	if s.RangeLimitDays, err = c.getInt("RANGE_LIMIT_DAYS", s.RangeLimitDays); err != nil {
		return s, err
	}

	return s, nil
}

func (c *Config) set(key string) (string, error) {
	if os.Getenv(key) == "" {
		return "", errors.Wrap(ErrEnvNotFound, key)
	}

	return os.Getenv(key), nil
}

func (c *Config) get(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return def
}

func (c *Config) getInt(key string, def int) (int, error) {
	v := c.get(key, "")
	if v == "" {
		return def, nil
	}

	n, err := strconv.Atoi(v)
	return n, errors.Wrap(err, key)
}

func (c *Config) getDecimal(key string, def decimal.Decimal) (decimal.Decimal, error) {
	v := c.get(key, "")
	if v == "" {
		return def, nil
	}

	d, err := decimal.NewFromString(v)
	return d, errors.Wrap(err, key)
}
