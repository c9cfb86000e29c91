// Package metrics exposes Prometheus instruments for the generate and
// precheck flows.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/christy136/AutoFlowAI/pkg/models"
)

const namespace = "autoflow"

// Metrics groups every instrument. All methods are safe on a nil receiver.
type Metrics struct {
	operations   *prometheus.CounterVec
	opDuration   *prometheus.HistogramVec
	llmRequests  *prometheus.CounterVec
	llmLatency   *prometheus.HistogramVec
	checkItems   *prometheus.CounterVec
	autofix      *prometheus.CounterVec
	deployments  *prometheus.CounterVec
	auditEvents  *prometheus.CounterVec
	artifactsOut prometheus.Counter
}

// New registers the instruments with reg. A nil reg uses the default
// registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		operations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Completed operations by name and final status.",
		}, []string{"operation", "status"}),
		opDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Operation latency.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"operation"}),
		llmRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "requests_total",
			Help:      "Text-generation requests by outcome.",
		}, []string{"outcome"}),
		llmLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "latency_seconds",
			Help:      "Text-generation latency.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 9),
		}, []string{"outcome"}),
		checkItems: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "precheck",
			Name:      "items_total",
			Help:      "Reconciled prerequisite items by status.",
		}, []string{"status"}),
		autofix: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "precheck",
			Name:      "autofix_actions_total",
			Help:      "Auto-fix attempts by item and status.",
		}, []string{"item", "status"}),
		deployments: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "deploy",
			Name:      "results_total",
			Help:      "Deployment results by status.",
		}, []string{"status"}),
		auditEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "events_total",
			Help:      "Classified failures by type.",
		}, []string{"type"}),
		artifactsOut: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifacts_saved_total",
			Help:      "Pipeline artifacts written to the output directory.",
		}),
	}
}

func (m *Metrics) Operation(name string, status models.OperationStatus, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(name, string(status)).Inc()
	m.opDuration.WithLabelValues(name).Observe(elapsed.Seconds())
}

func (m *Metrics) LLM(err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.llmRequests.WithLabelValues(outcome).Inc()
	m.llmLatency.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

func (m *Metrics) Report(r *models.PrerequisiteReport) {
	if m == nil || r == nil {
		return
	}
	for _, it := range r.Items {
		m.checkItems.WithLabelValues(string(it.Status)).Inc()
	}
}

func (m *Metrics) AutoFix(actions []models.AutoFixAction) {
	if m == nil {
		return
	}
	for _, a := range actions {
		m.autofix.WithLabelValues(a.Item, string(a.Status)).Inc()
	}
}

func (m *Metrics) Deploy(r *models.DeployResult) {
	if m == nil || r == nil {
		return
	}
	m.deployments.WithLabelValues(string(r.Status)).Inc()
}

func (m *Metrics) Audit(ev models.AuditEvent) {
	if m == nil {
		return
	}
	m.auditEvents.WithLabelValues(ev.Type).Inc()
}

func (m *Metrics) ArtifactSaved() {
	if m == nil {
		return
	}
	m.artifactsOut.Inc()
}
