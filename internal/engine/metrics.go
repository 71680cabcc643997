package engine

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the engine's Prometheus instruments on a private registry
// so tests can run engines side by side.
type Metrics struct {
	registry *prometheus.Registry

	TicksTotal      prometheus.Counter
	TickErrors      prometheus.Counter
	TradesTotal     *prometheus.CounterVec
	SignalsTotal    *prometheus.CounterVec
	BlockedTotal    *prometheus.CounterVec
	Equity          prometheus.Gauge
	Capital         prometheus.Gauge
	OpenRisk        prometheus.Gauge
	PositionOpen    prometheus.Gauge
	RegimeState     *prometheus.GaugeVec
	SnapshotRefresh prometheus.Counter
}

// NewMetrics creates and registers the engine metric set.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_ticks_total",
			Help: "Ticks processed by the trading loop.",
		}),
		TickErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_tick_errors_total",
			Help: "Ticks that failed and were retried.",
		}),
		TradesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_trades_total",
			Help: "Trade actions executed, by action and reason.",
		}, []string{"action", "reason"}),
		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_signals_total",
			Help: "Signals produced, by strategy.",
		}, []string{"strategy"}),
		BlockedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_admission_blocked_total",
			Help: "Entries blocked by admission control, by admission rule.",
		}, []string{"rule"}),
		Equity: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "engine_equity_dollars",
			Help: "Mark-to-market equity.",
		}),
		Capital: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "engine_capital_dollars",
			Help: "Realized capital.",
		}),
		OpenRisk: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "engine_open_risk_dollars",
			Help: "Defined risk of the open options structure.",
		}),
		PositionOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "engine_position_open",
			Help: "1 while a position is open.",
		}),
		RegimeState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "engine_regime_state",
			Help: "1 for the active market regime.",
		}, []string{"regime"}),
		SnapshotRefresh: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_snapshot_refreshes_total",
			Help: "Market snapshot refreshes.",
		}),
	}

	m.registry.MustRegister(
		m.TicksTotal, m.TickErrors, m.TradesTotal, m.SignalsTotal,
		m.BlockedTotal, m.Equity, m.Capital, m.OpenRisk, m.PositionOpen,
		m.RegimeState, m.SnapshotRefresh,
	)
	return m
}

// SetRegime flips the regime gauge to the given state.
func (m *Metrics) SetRegime(current string) {
	for _, r := range []string{"trending_up", "trending_down", "range_bound", "volatile"} {
		v := 0.0
		if r == current {
			v = 1.0
		}
		m.RegimeState.WithLabelValues(r).Set(v)
	}
}

// Handler serves the registry for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
