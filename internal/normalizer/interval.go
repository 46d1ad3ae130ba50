package normalizer

import (
	"strconv"
	"time"
)

var intervalDurations = map[string]time.Duration{
	"1m":  time.Minute,
	"2m":  2 * time.Minute,
	"3m":  3 * time.Minute,
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"30m": 30 * time.Minute,
	"1h":  time.Hour,
	"4h":  4 * time.Hour,
	"1d":  24 * time.Hour,
}

var exchangeIntervals = map[string]map[string]string{
	Bybit: {
		"1m": "1", "3m": "3", "5m": "5", "15m": "15", "30m": "30",
		"1h": "60", "4h": "240", "1d": "D",
	},
	MEXC: {
		"1m": "Min1", "3m": "Min3", "5m": "Min5", "15m": "Min15", "30m": "Min30",
		"1h": "Min60", "4h": "Hour4", "1d": "Day1",
	},
	OKX: {
		"1m": "1m", "3m": "3m", "5m": "5m", "15m": "15m", "30m": "30m",
		"1h": "1H", "4h": "4H", "1d": "1Dutc",
	},
	BingX: {
		"1m": "1m", "3m": "3m", "5m": "5m", "15m": "15m", "30m": "30m",
		"1h": "1h", "4h": "4h", "1d": "1d",
	},
	Gate: {
		"1m": "1m", "5m": "5m", "15m": "15m", "30m": "30m",
		"1h": "1h", "4h": "4h", "1d": "1d",
	},
	Binance: {
		"1m": "1m", "3m": "3m", "5m": "5m", "15m": "15m", "30m": "30m",
		"1h": "1h", "4h": "4h", "1d": "1d",
	},
}

// IntervalDuration parses a canonical interval such as "5m" or "1h".
func IntervalDuration(interval string) (time.Duration, error) {
	d, ok := intervalDurations[interval]
	if !ok {
		return 0, unmapped("CANONICAL", "interval", interval)
	}
	return d, nil
}

// ExchangeInterval translates a canonical interval to the value the exchange
// expects in kline requests. Phemex takes the resolution in seconds.
func ExchangeInterval(exchange, interval string) (string, error) {
	if exchange == Phemex {
		d, err := IntervalDuration(interval)
		if err != nil {
			return "", unmapped(exchange, "interval", interval)
		}
		return strconv.Itoa(int(d.Seconds())), nil
	}

	m, ok := exchangeIntervals[exchange]
	if !ok {
		return "", unmapped(exchange, "interval", interval)
	}

	v, ok := m[interval]
	if !ok {
		return "", unmapped(exchange, "interval", interval)
	}

	return v, nil
}
