package entitlement

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// EngineMetrics manages Prometheus instrumentation for reconciliation activity.
type EngineMetrics struct {
	reconcilePasses  *prometheus.CounterVec
	backendErrors    *prometheus.CounterVec
	cacheResults     *prometheus.CounterVec
	listenerRestarts prometheus.Counter
	txnsDiscarded    prometheus.Counter
	hasAccess        prometheus.Gauge
}

var (
	engineMetricsInstance *EngineMetrics
	engineMetricsOnce     sync.Once
)

// Metrics returns the process-wide engine metrics, registering them on first use.
func Metrics() *EngineMetrics {
	engineMetricsOnce.Do(func() {
		engineMetricsInstance = newEngineMetrics(prometheus.DefaultRegisterer)
	})
	return engineMetricsInstance
}

func newEngineMetrics(reg prometheus.Registerer) *EngineMetrics {
	m := &EngineMetrics{
		reconcilePasses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gofit",
				Subsystem: "entitlement",
				Name:      "reconcile_passes_total",
				Help:      "Reconciliation passes by resulting status.",
			},
			[]string{"status", "source"},
		),
		backendErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gofit",
				Subsystem: "entitlement",
				Name:      "backend_errors_total",
				Help:      "Backend call failures by error type.",
			},
			[]string{"type"},
		),
		cacheResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gofit",
				Subsystem: "entitlement",
				Name:      "status_cache_results_total",
				Help:      "Status cache lookups by result.",
			},
			[]string{"result"},
		),
		listenerRestarts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "gofit",
				Subsystem: "entitlement",
				Name:      "listener_restarts_total",
				Help:      "Transaction listener stream restarts.",
			},
		),
		txnsDiscarded: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "gofit",
				Subsystem: "entitlement",
				Name:      "transactions_discarded_total",
				Help:      "Store transactions discarded as unverified.",
			},
		),
		hasAccess: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "gofit",
				Subsystem: "entitlement",
				Name:      "has_access",
				Help:      "Whether the current reconciled entitlement grants access.",
			},
		),
	}

	reg.MustRegister(
		m.reconcilePasses,
		m.backendErrors,
		m.cacheResults,
		m.listenerRestarts,
		m.txnsDiscarded,
		m.hasAccess,
	)
	return m
}

// RecordPass records a completed reconciliation pass.
func (m *EngineMetrics) RecordPass(ent ReconciledEntitlement) {
	if m == nil {
		return
	}
	m.reconcilePasses.WithLabelValues(string(ent.Status), string(ent.Source)).Inc()
	if ent.HasAccess {
		m.hasAccess.Set(1)
	} else {
		m.hasAccess.Set(0)
	}
}

// RecordBackendError records a failed backend call.
func (m *EngineMetrics) RecordBackendError(errType string) {
	if m == nil {
		return
	}
	m.backendErrors.WithLabelValues(errType).Inc()
}

// RecordCacheResult records a status cache hit or miss.
func (m *EngineMetrics) RecordCacheResult(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheResults.WithLabelValues("hit").Inc()
	} else {
		m.cacheResults.WithLabelValues("miss").Inc()
	}
}

// RecordListenerRestart records a transaction stream restart.
func (m *EngineMetrics) RecordListenerRestart() {
	if m == nil {
		return
	}
	m.listenerRestarts.Inc()
}

// RecordDiscardedTransaction records an unverified transaction discard.
func (m *EngineMetrics) RecordDiscardedTransaction() {
	if m == nil {
		return
	}
	m.txnsDiscarded.Inc()
}
