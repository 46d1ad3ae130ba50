package models

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

var ErrInvalidSettings = errors.New("invalid strategy settings")

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// Settings is one strategy configuration. Percentages keep the operator form
// (1.8 means 1.8%).
type Settings struct {
	Name string `bson:"name" json:"name"`

	Exchange                     string          `bson:"exchange" json:"exchange"`
	Interval                     string          `bson:"interval" json:"interval"`
	Symbol                       string          `bson:"symbol" json:"symbol"`
	FlushPercent                 decimal.Decimal `bson:"flush_percent" json:"flushPercent"`
	SqueezePercent               decimal.Decimal `bson:"squeeze_percent" json:"squeezePercent"`
	NumberOfFlushBars            int             `bson:"number_of_flush_bars" json:"numberOfFlushBars"`
	ExitLookbackBars             int             `bson:"exit_lookback_bars" json:"exitLookbackBars"`
	StopLossPercentageLong       decimal.Decimal `bson:"stop_loss_percentage_long" json:"stopLossPercentageLong"`
	StopLossPercentageShort      decimal.Decimal `bson:"stop_loss_percentage_short" json:"stopLossPercentageShort"`
	SoftSLPercentage             decimal.Decimal `bson:"soft_sl_percentage" json:"softSLPercentage"`
	SoftSLN                      int             `bson:"soft_sl_n" json:"softSLN"`
	TakeProfitPercentage         decimal.Decimal `bson:"take_profit_percentage" json:"takeProfitPercentage"`
	Quantity                     decimal.Decimal `bson:"quantity" json:"quantity"`
	FixedBalance                 decimal.Decimal `bson:"fixed_balance" json:"fixedBalance"`
	BalancePercent               decimal.Decimal `bson:"balance_percent" json:"balancePercent"`
	MinBalance                   decimal.Decimal `bson:"min_balance" json:"minBalance"`
	MaxDrawdownPercentage        decimal.Decimal `bson:"max_drawdown_percentage" json:"maxDrawdownPercentage"`
	MaxSingleTradeLossPercentage decimal.Decimal `bson:"max_single_trade_loss_percentage" json:"maxSingleTradeLossPercentage"`
	MaxNumOfPositions            int             `bson:"max_num_of_positions" json:"maxNumOfPositions"`
	ShortsPositionMultiplier     decimal.Decimal `bson:"shorts_position_multiplier" json:"shortsPositionMultiplier"`

	Blocking             bool `bson:"blocking" json:"blocking"`
	StopLossTermination  bool `bson:"stop_loss_termination" json:"stopLossTermination"`
	Shorts               bool `bson:"shorts" json:"shorts"`
	RecalcOnFill         bool `bson:"recalc_on_fill" json:"recalcOnFill"`
	PostOnly             bool `bson:"post_only" json:"postOnly"`
	ClosePartialFills    bool `bson:"close_partial_fills" json:"closePartialFills"`
	AvoidMarketEntries   bool `bson:"avoid_market_entries" json:"avoidMarketEntries"`
	ClosePositionOnly    bool `bson:"close_position_only" json:"closePositionOnly"`
	VolumeBasedPosSize   bool `bson:"volume_based_pos_size" json:"volumeBasedPosSize"`
	IgnoreAbnormalVolume bool `bson:"ignore_abnormal_volume" json:"ignoreAbnormalVolume"`
	ReverseMode          bool `bson:"reverse_mode" json:"reverseMode"`
}

// String is the key of the strategy's internal wallet.
func (s *Settings) String() string {
	return strings.Join([]string{
		s.Exchange,
		s.Symbol,
		s.Interval,
		s.FlushPercent.String(),
		s.SqueezePercent.String(),
		fmt.Sprint(s.NumberOfFlushBars),
		fmt.Sprint(s.ExitLookbackBars),
		s.StopLossPercentageLong.String(),
		s.StopLossPercentageShort.String(),
		s.SoftSLPercentage.String(),
		fmt.Sprint(s.SoftSLN),
		s.TakeProfitPercentage.String(),
	}, " ")
}

// Normalize checks the configuration and resolves flags that exclude each
// other.
func (s *Settings) Normalize() error {
	sizings := 0
	for _, v := range []decimal.Decimal{s.Quantity, s.FixedBalance, s.BalancePercent} {
		if v.IsPositive() {
			sizings++
		}
	}
	if sizings != 1 {
		return errors.Wrapf(ErrInvalidSettings, "%s: specify exactly one of quantity, balancePercent or fixedBalance", s.Name)
	}

	if s.Shorts && !s.SqueezePercent.IsPositive() {
		return errors.Wrapf(ErrInvalidSettings, "%s: squeezePercent is required with shorts", s.Name)
	}
	if !s.Shorts {
		s.SqueezePercent = decimal.Zero
	}

	if s.SoftSLPercentage.IsPositive() && s.SoftSLN <= 0 {
		return errors.Wrapf(ErrInvalidSettings, "%s: softSLN is required with a soft stop loss", s.Name)
	}

	if s.Exchange == "" || s.Symbol == "" || s.Interval == "" {
		return errors.Wrapf(ErrInvalidSettings, "%s: exchange, interval and symbol are required", s.Name)
	}

	// post only orders are cancelled when they would cross, at touch entries
	// would move them instead
	if s.PostOnly {
		s.AvoidMarketEntries = false
	}

	if s.ShortsPositionMultiplier.IsZero() {
		s.ShortsPositionMultiplier = one
	}

	return nil
}

// Fractions are the settings percentages as fractions (0.018 for 1.8%).
type Fractions struct {
	Flush              decimal.Decimal
	Squeeze            decimal.Decimal
	StopLossLong       decimal.Decimal
	StopLossShort      decimal.Decimal
	SoftSL             decimal.Decimal
	TakeProfit         decimal.Decimal
	BalancePercent     decimal.Decimal
	MaxDrawdown        decimal.Decimal
	MaxSingleTradeLoss decimal.Decimal
}

func (s *Settings) Fractions() Fractions {
	maxDD := one
	if s.MaxDrawdownPercentage.IsPositive() {
		maxDD = decimal.Min(s.MaxDrawdownPercentage.Div(hundred), one)
	}

	return Fractions{
		Flush:              s.FlushPercent.Div(hundred),
		Squeeze:            s.SqueezePercent.Div(hundred),
		StopLossLong:       s.StopLossPercentageLong.Div(hundred),
		StopLossShort:      s.StopLossPercentageShort.Div(hundred),
		SoftSL:             s.SoftSLPercentage.Div(hundred),
		TakeProfit:         s.TakeProfitPercentage.Div(hundred),
		BalancePercent:     s.BalancePercent.Div(hundred),
		MaxDrawdown:        maxDD,
		MaxSingleTradeLoss: s.MaxSingleTradeLossPercentage.Div(hundred),
	}
}

// CandleLimit is the window a strategy needs: every lookback plus the bar
// still forming.
func (s *Settings) CandleLimit() int {
	n := s.NumberOfFlushBars
	for _, v := range []int{s.ExitLookbackBars, s.SoftSLN} {
		if v > n {
			n = v
		}
	}
	return n + 1
}

// Controls are the flags that can change while a strategy runs.
type Controls struct {
	CloseOnly            bool `bson:"close_only" json:"closeOnly"`
	IgnoreAbnormalVolume bool `bson:"ignore_abnormal_volume" json:"ignoreAbnormalVolume"`
	// ForceClose closes the position at the best price and stops.
	ForceClose bool `bson:"force_close" json:"forceClose"`
	// Wait skips the next bar.
	Wait bool `bson:"wait" json:"wait"`
}

// ControlsFromFlags reads arglist style flags such as "-x -n".
func ControlsFromFlags(flags []string) Controls {
	var c Controls
	for _, f := range flags {
		switch f {
		case "-x":
			c.CloseOnly = true
		case "-n":
			c.IgnoreAbnormalVolume = true
		case "-f":
			c.ForceClose = true
		case "-w":
			c.Wait = true
		}
	}
	return c
}

// SettingsEntry is one enabled strategy.
type SettingsEntry struct {
	Name     string
	Controls Controls
}
