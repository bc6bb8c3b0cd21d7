// Package metrics provides the Prometheus implementation of
// ports.MetricsCollector used by the orchestrator.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ahrav/go-sqm/internal/ports"
)

const namespace = "sqm"

// PrometheusMetrics implements the MetricsCollector interface using
// Prometheus. Metrics live on a private registry so that a batch run can
// write them to a node-exporter textfile when it finishes.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	toolDuration    *prometheus.HistogramVec
	toolInvocations *prometheus.CounterVec
	toolMaxRSS      *prometheus.HistogramVec
	stepDuration    *prometheus.HistogramVec
	mergeSimilarity *prometheus.HistogramVec

	operationLatency *prometheus.HistogramVec
	events           *prometheus.CounterVec
	observations     *prometheus.HistogramVec
	state            *prometheus.GaugeVec
}

// NewPrometheusMetrics creates a collector with its own registry.
func NewPrometheusMetrics() *PrometheusMetrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &PrometheusMetrics{
		registry: reg,

		// External tool metrics.
		toolDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "tool_duration_seconds",
				Help:      "Wall-clock time of external tool invocations.",
				// One second up to roughly three days.
				Buckets: prometheus.ExponentialBuckets(1, 4, 10),
			},
			[]string{"tool", "step", "status"},
		),
		toolInvocations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tool_invocations_total",
				Help:      "Total number of external tool invocations by outcome.",
			},
			[]string{"tool", "step", "status"},
		),
		toolMaxRSS: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "tool_max_rss_kilobytes",
				Help:      "Peak resident set size of external tool invocations.",
				// 1 MiB up to 256 GiB.
				Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
			},
			[]string{"tool", "step"},
		),

		// Pipeline metrics.
		stepDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "step_duration_seconds",
				Help:      "Wall-clock time of pipeline steps, including every invocation they fan out to.",
				Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
			},
			[]string{"step", "name", "status"},
		),
		mergeSimilarity: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "merge_similarity",
				Help:      "Similarity of the pairs chosen by sequential merging.",
				Buckets:   prometheus.LinearBuckets(0, 10, 11),
			},
			[]string{"unit"},
		),

		// General metrics for everything else.
		operationLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Execution time of internal operations.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation", "unit"},
		),
		events: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_total",
				Help:      "Total number of orchestration events by kind and status.",
			},
			[]string{"event", "status"},
		),
		observations: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "observations",
				Help:      "Distribution of miscellaneous observed values.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"metric", "unit"},
		),
		state: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "state",
				Help:      "Current state values such as the last completed step.",
			},
			[]string{"metric", "project"},
		),
	}
}

// Registry returns the registry holding every metric.
func (pm *PrometheusMetrics) Registry() *prometheus.Registry { return pm.registry }

// WriteTextfile writes the current metric values to path in the text
// exposition format, atomically replacing any previous file.
func (pm *PrometheusMetrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, pm.registry); err != nil {
		return fmt.Errorf("write metrics to %s: %w", path, err)
	}
	return nil
}

// label returns labels[key], or "unknown" when absent or empty.
func label(labels map[string]string, key string) string {
	if v, ok := labels[key]; ok && v != "" {
		return v
	}
	return "unknown"
}

// RecordLatency implements the MetricsCollector interface. Step durations
// get a dedicated histogram; everything else lands in the operation
// histogram.
func (pm *PrometheusMetrics) RecordLatency(operation string, duration time.Duration, labels map[string]string) {
	if operation == "step" {
		pm.stepDuration.WithLabelValues(label(labels, "step"), label(labels, "name"), label(labels, "status")).
			Observe(duration.Seconds())
		return
	}
	pm.operationLatency.WithLabelValues(operation, label(labels, "unit")).Observe(duration.Seconds())
}

// RecordCounter implements the MetricsCollector interface by incrementing
// Prometheus counters.
func (pm *PrometheusMetrics) RecordCounter(metric string, value float64, labels map[string]string) {
	switch metric {
	case "tool_invocations_total":
		pm.toolInvocations.WithLabelValues(label(labels, "tool"), label(labels, "step"), label(labels, "status")).
			Add(value)
	default:
		pm.events.WithLabelValues(metric, label(labels, "status")).Add(value)
	}
}

// RecordGauge implements the MetricsCollector interface by setting
// Prometheus gauge values.
func (pm *PrometheusMetrics) RecordGauge(metric string, value float64, labels map[string]string) {
	pm.state.WithLabelValues(metric, label(labels, "project")).Set(value)
}

// RecordHistogram implements the MetricsCollector interface by recording
// values in the histogram matching metric.
func (pm *PrometheusMetrics) RecordHistogram(metric string, value float64, labels map[string]string) {
	switch metric {
	case "tool_duration_seconds":
		pm.toolDuration.WithLabelValues(label(labels, "tool"), label(labels, "step"), label(labels, "status")).
			Observe(value)
	case "tool_max_rss_kilobytes":
		pm.toolMaxRSS.WithLabelValues(label(labels, "tool"), label(labels, "step")).Observe(value)
	case "merge_similarity":
		pm.mergeSimilarity.WithLabelValues(label(labels, "unit")).Observe(value)
	default:
		pm.observations.WithLabelValues(metric, label(labels, "unit")).Observe(value)
	}
}

// Compile-time verification that PrometheusMetrics implements MetricsCollector.
var _ ports.MetricsCollector = (*PrometheusMetrics)(nil)
