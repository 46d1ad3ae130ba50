package usecasees

import (
	"flushbot/internal/exchange"
	"flushbot/internal/usecasees/structs"
	"flushbot/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
)

// Metrics are the engine counters and gauges. A nil *Metrics records nothing.
type Metrics struct {
	Counters map[structs.MetricConst]*prometheus.CounterVec
	Gauges   map[structs.MetricConst]*prometheus.GaugeVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	m := &Metrics{
		Counters: map[structs.MetricConst]*prometheus.CounterVec{},
		Gauges:   map[structs.MetricConst]*prometheus.GaugeVec{},
	}

	counter := func(name structs.MetricConst, help string, labels ...string) {
		m.Counters[name] = factory.NewCounterVec(prometheus.CounterOpts{
			Name: name.ToString(),
			Help: help,
		}, labels)
	}
	gauge := func(name structs.MetricConst, help string, labels ...string) {
		m.Gauges[name] = factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: name.ToString(),
			Help: help,
		}, labels)
	}

	counter(structs.MetricOrderPlaced, "Orders placed by the engines.", "exchange", "symbol", "side", "purpose")
	counter(structs.MetricOrderFilled, "Entry and exit orders filled.", "exchange", "symbol", "purpose")
	counter(structs.MetricStopLossFilled, "Stop loss orders filled.", "exchange", "symbol")
	counter(structs.MetricRiskBreach, "Risk checks that stopped an engine.", "exchange", "symbol", "check")
	counter(structs.MetricExchangeRetry, "Exchange calls retried.", "op", "kind")

	gauge(structs.MetricInternalWallet, "Internal wallet of a strategy.", "exchange", "symbol", "setting")
	gauge(structs.MetricInternalWalletFloor, "Internal wallet floor of a strategy.", "exchange", "symbol", "setting")
	gauge(structs.MetricEngineStopped, "1 when the engine stopped.", "exchange", "symbol", "setting")

	return m
}

func (m *Metrics) OrderPlaced(ex, symbol string, side models.Side, purpose string) {
	if m == nil {
		return
	}
	m.Counters[structs.MetricOrderPlaced].WithLabelValues(ex, symbol, string(side), purpose).Inc()
}

func (m *Metrics) OrderFilled(ex, symbol, purpose string) {
	if m == nil {
		return
	}
	m.Counters[structs.MetricOrderFilled].WithLabelValues(ex, symbol, purpose).Inc()
}

func (m *Metrics) StopLossFilled(ex, symbol string) {
	if m == nil {
		return
	}
	m.Counters[structs.MetricStopLossFilled].WithLabelValues(ex, symbol).Inc()
}

func (m *Metrics) RiskBreach(ex, symbol, check string) {
	if m == nil {
		return
	}
	m.Counters[structs.MetricRiskBreach].WithLabelValues(ex, symbol, check).Inc()
}

// Retry matches exchange.RetryPolicy.OnRetry.
func (m *Metrics) Retry(op string, kind exchange.Kind) {
	if m == nil {
		return
	}
	m.Counters[structs.MetricExchangeRetry].WithLabelValues(op, kind.String()).Inc()
}

func (m *Metrics) Wallet(ex, symbol, setting string, wallet, floor decimal.Decimal) {
	if m == nil {
		return
	}
	w, _ := wallet.Float64()
	f, _ := floor.Float64()
	m.Gauges[structs.MetricInternalWallet].WithLabelValues(ex, symbol, setting).Set(w)
	m.Gauges[structs.MetricInternalWalletFloor].WithLabelValues(ex, symbol, setting).Set(f)
}

func (m *Metrics) Stopped(ex, symbol, setting string) {
	if m == nil {
		return
	}
	m.Gauges[structs.MetricEngineStopped].WithLabelValues(ex, symbol, setting).Set(1)
}
