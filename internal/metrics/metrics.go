// Package metrics exposes engine counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups every collector on a private registry so tests and
// multiple engines never collide on the default one. All methods accept a
// nil receiver.
type Metrics struct {
	reg *prometheus.Registry

	scans          *prometheus.CounterVec
	scanDuration   prometheus.Histogram
	triggers       *prometheus.CounterVec
	lockRetentions prometheus.Counter
	fires          *prometheus.CounterVec
	actions        *prometheus.CounterVec
	flushFailures  prometheus.Counter
	resets         prometheus.Counter
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,

		scans: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sniper_scans_total",
			Help: "Scan cycles by result (complete, stale, error)",
		}, []string{"result"}),

		scanDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "sniper_scan_duration_seconds",
			Help:    "Time from scan start to publish",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms to ~1s
		}),

		triggers: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sniper_triggers_total",
			Help: "Scan triggers by source and scheduler action",
		}, []string{"source", "action"}),

		lockRetentions: f.NewCounter(prometheus.CounterOpts{
			Name: "sniper_lock_retentions_total",
			Help: "Classifications held by the hysteresis lock against the computed value",
		}),

		fires: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sniper_autotrigger_episodes_total",
			Help: "Auto-trigger episodes by outcome (fire, locked, purchased)",
		}, []string{"outcome"}),

		actions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sniper_actions_total",
			Help: "Executor results (ok, fail)",
		}, []string{"result"}),

		flushFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "sniper_stats_flush_failures_total",
			Help: "Failed stats persistence attempts",
		}),

		resets: f.NewCounter(prometheus.CounterOpts{
			Name: "sniper_resets_total",
			Help: "Full engine resets",
		}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

func (m *Metrics) ScanCompleted(seconds float64) {
	if m == nil {
		return
	}
	m.scans.WithLabelValues("complete").Inc()
	m.scanDuration.Observe(seconds)
}

func (m *Metrics) ScanStale() {
	if m == nil {
		return
	}
	m.scans.WithLabelValues("stale").Inc()
}

func (m *Metrics) ScanFailed() {
	if m == nil {
		return
	}
	m.scans.WithLabelValues("error").Inc()
}

func (m *Metrics) Trigger(source, action string) {
	if m == nil {
		return
	}
	m.triggers.WithLabelValues(source, action).Inc()
}

func (m *Metrics) LockRetained() {
	if m == nil {
		return
	}
	m.lockRetentions.Inc()
}

// Episode counts an auto-trigger episode; outcome is "fire" or a skip
// reason.
func (m *Metrics) Episode(outcome string) {
	if m == nil {
		return
	}
	m.fires.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Action(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "fail"
	}
	m.actions.WithLabelValues(result).Inc()
}

func (m *Metrics) FlushFailed() {
	if m == nil {
		return
	}
	m.flushFailures.Inc()
}

func (m *Metrics) Reset() {
	if m == nil {
		return
	}
	m.resets.Inc()
}
