package testutils

import (
	"sync"
	"time"

	"github.com/ahrav/go-sqm/internal/ports"
)

// MetricObservation is one recorded call on a MockMetricsCollector.
type MetricObservation struct {
	Kind   string // latency, counter, gauge or histogram
	Name   string
	Value  float64
	Labels map[string]string
}

// MockMetricsCollector records every observation for later assertions.
// It is safe for concurrent use.
type MockMetricsCollector struct {
	mu           sync.Mutex
	observations []MetricObservation
}

var _ ports.MetricsCollector = (*MockMetricsCollector)(nil)

// NewMockMetricsCollector creates an empty collector.
func NewMockMetricsCollector() *MockMetricsCollector {
	return &MockMetricsCollector{}
}

func (m *MockMetricsCollector) record(kind, name string, value float64, labels map[string]string) {
	copied := make(map[string]string, len(labels))
	for k, v := range labels {
		copied[k] = v
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observations = append(m.observations, MetricObservation{Kind: kind, Name: name, Value: value, Labels: copied})
}

// RecordLatency implements ports.MetricsCollector.
func (m *MockMetricsCollector) RecordLatency(operation string, duration time.Duration, labels map[string]string) {
	m.record("latency", operation, duration.Seconds(), labels)
}

// RecordCounter implements ports.MetricsCollector.
func (m *MockMetricsCollector) RecordCounter(metric string, value float64, labels map[string]string) {
	m.record("counter", metric, value, labels)
}

// RecordGauge implements ports.MetricsCollector.
func (m *MockMetricsCollector) RecordGauge(metric string, value float64, labels map[string]string) {
	m.record("gauge", metric, value, labels)
}

// RecordHistogram implements ports.MetricsCollector.
func (m *MockMetricsCollector) RecordHistogram(metric string, value float64, labels map[string]string) {
	m.record("histogram", metric, value, labels)
}

// Observations returns the observations with the given name, in order.
func (m *MockMetricsCollector) Observations(name string) []MetricObservation {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []MetricObservation
	for _, o := range m.observations {
		if o.Name == name {
			out = append(out, o)
		}
	}
	return out
}

// Sum adds up the values recorded under name.
func (m *MockMetricsCollector) Sum(name string) float64 {
	total := 0.0
	for _, o := range m.Observations(name) {
		total += o.Value
	}
	return total
}
