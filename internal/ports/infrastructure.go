package ports

import "time"

// MetricsCollector defines the interface for collecting operational metrics.
// Implementations should integrate with observability platforms like
// Prometheus or OpenTelemetry.
type MetricsCollector interface {
	// RecordLatency records the execution time of an operation.
	// The labels map provides additional context for the metric.
	RecordLatency(operation string, duration time.Duration, labels map[string]string)

	// RecordCounter increments a counter metric.
	// This is useful for tracking events like tool runs, skips and failures.
	RecordCounter(metric string, value float64, labels map[string]string)

	// RecordGauge sets the current value of a gauge metric.
	// This is useful for tracking values like the highest completed step.
	RecordGauge(metric string, value float64, labels map[string]string)

	// RecordHistogram records a value in a histogram.
	// This is useful for tracking distributions like peak memory or
	// similarity scores.
	RecordHistogram(metric string, value float64, labels map[string]string)
}

// NopMetrics discards every observation.
type NopMetrics struct{}

// RecordLatency implements MetricsCollector.
func (NopMetrics) RecordLatency(string, time.Duration, map[string]string) {}

// RecordCounter implements MetricsCollector.
func (NopMetrics) RecordCounter(string, float64, map[string]string) {}

// RecordGauge implements MetricsCollector.
func (NopMetrics) RecordGauge(string, float64, map[string]string) {}

// RecordHistogram implements MetricsCollector.
func (NopMetrics) RecordHistogram(string, float64, map[string]string) {}

var _ MetricsCollector = NopMetrics{}
