// Package metrics holds the engine's Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	reg *prometheus.Registry

	commands   *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	trades     *prometheus.CounterVec
	resting    *prometheus.GaugeVec
	walSeq     prometheus.Gauge
	outbox     *prometheus.GaugeVec
	deliveries *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scalex",
			Name:      "commands_total",
			Help:      "Commands executed, by kind and outcome.",
		}, []string{"kind", "result"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "scalex",
			Name:      "command_duration_seconds",
			Help:      "Time spent executing a command, log append included.",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 2, 14),
		}, []string{"kind"}),
		trades: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scalex",
			Name:      "trades_total",
			Help:      "Fills executed, by pool.",
		}, []string{"pool"}),
		resting: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "scalex",
			Name:      "resting_orders",
			Help:      "Orders resting on the book, by pool.",
		}, []string{"pool"}),
		walSeq: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "scalex",
			Name:      "wal_last_seq",
			Help:      "Highest command sequence in the log.",
		}),
		outbox: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "scalex",
			Name:      "outbox_entries",
			Help:      "Outbox entries by state.",
		}, []string{"state"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scalex",
			Name:      "deliveries_total",
			Help:      "Event deliveries by sink and outcome.",
		}, []string{"sink", "result"}),
	}
	m.reg.MustRegister(m.commands, m.latency, m.trades, m.resting, m.walSeq, m.outbox, m.deliveries,
		collectors.NewGoCollector())
	return m
}

func (m *Metrics) Command(kind string, err error, took time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.commands.WithLabelValues(kind, result).Inc()
	m.latency.WithLabelValues(kind).Observe(took.Seconds())
}

func (m *Metrics) Trades(pool string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.trades.WithLabelValues(pool).Add(float64(n))
}

func (m *Metrics) Resting(pool string, n int) {
	if m == nil {
		return
	}
	m.resting.WithLabelValues(pool).Set(float64(n))
}

func (m *Metrics) WALSeq(seq uint64) {
	if m == nil {
		return
	}
	m.walSeq.Set(float64(seq))
}

func (m *Metrics) Outbox(state string, n int) {
	if m == nil {
		return
	}
	m.outbox.WithLabelValues(state).Set(float64(n))
}

func (m *Metrics) Delivery(sink string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.deliveries.WithLabelValues(sink, result).Inc()
}

// Registry exposes the collectors, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}
