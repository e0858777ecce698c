// Package metrics exposes Prometheus instrumentation for the audit engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Trace outcome labels.
const (
	OutcomeOK          = "ok"
	OutcomeBroken      = "broken"
	OutcomeUnreachable = "unreachable"
	OutcomeLoop        = "redirect_loop"
)

// Metrics holds the engine's Prometheus collectors.
type Metrics struct {
	TracesTotal      *prometheus.CounterVec
	TraceDuration    prometheus.Histogram
	AuditRunsTotal   *prometheus.CounterVec
	AuditRunDuration prometheus.Histogram
	OpenIssues       *prometheus.GaugeVec
	Opportunities    prometheus.Counter
}

// New registers the collectors with reg and returns them.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		TracesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "linkhealth_traces_total",
			Help: "Redirect traces performed, by outcome.",
		}, []string{"outcome"}),
		TraceDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "linkhealth_trace_duration_seconds",
			Help:    "Wall time of one full redirect trace.",
			Buckets: prometheus.DefBuckets,
		}),
		AuditRunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "linkhealth_audit_runs_total",
			Help: "Audit runs finished, by type and terminal status.",
		}, []string{"type", "status"}),
		AuditRunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "linkhealth_audit_run_duration_seconds",
			Help:    "Wall time of one audit run.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		OpenIssues: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "linkhealth_open_issues",
			Help: "Open issues after the latest audit, by severity.",
		}, []string{"severity"}),
		Opportunities: factory.NewCounter(prometheus.CounterOpts{
			Name: "linkhealth_opportunities_found_total",
			Help: "Commission opportunities surfaced by audits.",
		}),
	}
}

// TraceOutcome maps trace flags to the outcome label.
func TraceOutcome(unreachable, loop bool, finalStatus int) string {
	switch {
	case unreachable:
		return OutcomeUnreachable
	case loop:
		return OutcomeLoop
	case finalStatus >= 400:
		return OutcomeBroken
	default:
		return OutcomeOK
	}
}
