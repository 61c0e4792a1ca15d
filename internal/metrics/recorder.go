package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Lowy-zhangtian/-audit-tool/internal/rules"
)

const namespace = "auditreview"

// Recorder collects pipeline metrics on its own registry
type Recorder struct {
	registry *prometheus.Registry

	ruleEvaluations   *prometheus.CounterVec
	narratives        *prometheus.CounterVec
	narrativeDuration prometheus.Histogram
	reports           *prometheus.CounterVec
	runs              *prometheus.CounterVec
	runDuration       prometheus.Histogram
	warnings          prometheus.Counter
}

// NewRecorder creates a recorder with all collectors registered
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		ruleEvaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rule_evaluations_total",
			Help:      "Rule evaluations by rule and outcome (pass, fail, error).",
		}, []string{"rule", "outcome"}),
		narratives: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "narratives_total",
			Help:      "Model narratives by status (ok, failed).",
		}, []string{"status"}),
		narrativeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "narrative_duration_seconds",
			Help:      "Latency of model calls.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}),
		reports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_total",
			Help:      "Reviewed reports by compliance status.",
		}, []string{"status"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Pipeline runs by status (complete, partial, failed).",
		}, []string{"status"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of pipeline runs.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 4, 8),
		}),
		warnings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "integration_warnings_total",
			Help:      "Non-fatal integration warnings (merge key mismatches).",
		}),
	}

	r.registry.MustRegister(
		r.ruleEvaluations,
		r.narratives,
		r.narrativeDuration,
		r.reports,
		r.runs,
		r.runDuration,
		r.warnings,
	)
	return r
}

// Registry exposes the underlying registry
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveRule implements rules.Observer
func (r *Recorder) ObserveRule(rule string, outcome rules.Outcome) {
	r.ruleEvaluations.WithLabelValues(rule, string(outcome)).Inc()
}

// ObserveNarrative implements analysis.Observer
func (r *Recorder) ObserveNarrative(d time.Duration, failed bool) {
	status := "ok"
	if failed {
		status = "failed"
	}
	r.narratives.WithLabelValues(status).Inc()
	r.narrativeDuration.Observe(d.Seconds())
}

// ObserveReport counts one reviewed report
func (r *Recorder) ObserveReport(status string) {
	r.reports.WithLabelValues(status).Inc()
}

// ObserveWarnings counts integration warnings
func (r *Recorder) ObserveWarnings(n int) {
	r.warnings.Add(float64(n))
}

// ObserveRun records a finished run
func (r *Recorder) ObserveRun(status string, d time.Duration) {
	r.runs.WithLabelValues(status).Inc()
	r.runDuration.Observe(d.Seconds())
}

// WriteTextfile writes all metrics in Prometheus text format, for the
// node_exporter textfile collector
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
