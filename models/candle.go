package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CandleCurrentTolerance covers round trip and delivery delay of a new bar.
const CandleCurrentTolerance = 5 * time.Second

type Candle struct {
	OpenTime  int64           `json:"openTime"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    decimal.Decimal `json:"volume"`
	CloseTime int64           `json:"closeTime"`
	VolumeUSD decimal.Decimal `json:"volumeUsd"`
}

// USDVolume falls back to volume times the bar midpoint when the exchange
// does not report quote volume.
func (c Candle) USDVolume() decimal.Decimal {
	if !c.VolumeUSD.IsZero() {
		return c.VolumeUSD
	}
	return c.Volume.Mul(c.High.Add(c.Low).Div(decimal.NewFromInt(2)))
}

// Candles are ordered oldest to newest.
type Candles []Candle

func (cs Candles) Last() (Candle, bool) {
	if len(cs) == 0 {
		return Candle{}, false
	}
	return cs[len(cs)-1], true
}

// Tail returns the newest n candles.
func (cs Candles) Tail(n int) Candles {
	if n <= 0 {
		return Candles{}
	}
	if n >= len(cs) {
		return cs
	}
	return cs[len(cs)-n:]
}

func (cs Candles) Highest(n int) decimal.Decimal {
	tail := cs.Tail(n)
	if len(tail) == 0 {
		return decimal.Zero
	}

	out := tail[0].High
	for _, c := range tail[1:] {
		out = decimal.Max(out, c.High)
	}

	return out
}

func (cs Candles) Lowest(n int) decimal.Decimal {
	tail := cs.Tail(n)
	if len(tail) == 0 {
		return decimal.Zero
	}

	out := tail[0].Low
	for _, c := range tail[1:] {
		out = decimal.Min(out, c.Low)
	}

	return out
}

// IsSequential reports whether every bar starts one millisecond after the
// previous one closed.
func (cs Candles) IsSequential() bool {
	for i := 1; i < len(cs); i++ {
		if cs[i-1].CloseTime+1 != cs[i].OpenTime {
			return false
		}
	}

	return true
}

// IsCurrent reports whether the newest bar is still open (or only just
// closed) at now.
func (cs Candles) IsCurrent(now time.Time, interval time.Duration) bool {
	last, ok := cs.Last()
	if !ok {
		return false
	}

	closeTime := last.OpenTime + interval.Milliseconds() - 1

	return now.UnixMilli() <= closeTime+CandleCurrentTolerance.Milliseconds()
}

// Closed drops the bar that is still forming at now, or the oldest bar when
// the newest one already closed, so the window size stays constant.
func (cs Candles) Closed(now time.Time, interval time.Duration) Candles {
	last, ok := cs.Last()
	if !ok {
		return cs
	}

	if time.UnixMilli(last.OpenTime).Add(interval).After(now) {
		return cs[:len(cs)-1]
	}

	return cs[1:]
}

// Upsert replaces the newest bar when it shares a close time with c and
// appends otherwise, keeping at most limit bars.
func (cs Candles) Upsert(c Candle, limit int) Candles {
	if last, ok := cs.Last(); ok && last.CloseTime == c.CloseTime {
		cs = cs[:len(cs)-1]
	}

	cs = append(cs, c)
	if limit > 0 && len(cs) > limit {
		cs = cs[len(cs)-limit:]
	}

	return cs
}

// Group merges every x consecutive bars into one, dropping a trailing
// incomplete group.
func (cs Candles) Group(x int) Candles {
	if x <= 1 {
		return cs
	}

	out := make(Candles, 0, len(cs)/x)
	for i := 0; i+x <= len(cs); i += x {
		part := cs[i : i+x]
		merged := Candle{
			OpenTime:  part[0].OpenTime,
			Open:      part[0].Open,
			High:      part.Highest(x),
			Low:       part.Lowest(x),
			Close:     part[x-1].Close,
			CloseTime: part[x-1].CloseTime,
		}
		for _, c := range part {
			merged.Volume = merged.Volume.Add(c.Volume)
			merged.VolumeUSD = merged.VolumeUSD.Add(c.VolumeUSD)
		}
		out = append(out, merged)
	}

	return out
}
