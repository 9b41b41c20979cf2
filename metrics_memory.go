package asyncmqtt

import (
	"slices"
	"strings"
	"sync"
	"time"
)

// MemoryMetrics keeps metrics in memory. Useful in tests and for exposing
// a snapshot through an application's own endpoint.
type MemoryMetrics struct {
	mu      sync.Mutex
	metrics map[string]*memoryMetric
}

// NewMemoryMetrics creates an empty MemoryMetrics.
func NewMemoryMetrics() *MemoryMetrics {
	return &MemoryMetrics{metrics: make(map[string]*memoryMetric)}
}

// metricKey renders name{k=v,...} with labels sorted.
func metricKey(name string, labels MetricLabels) string {
	if len(labels) == 0 {
		return name
	}

	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var sb strings.Builder
	sb.WriteString(name)
	sb.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(labels[k])
	}
	sb.WriteByte('}')

	return sb.String()
}

func (m *MemoryMetrics) get(name string, labels MetricLabels) *memoryMetric {
	key := metricKey(name, labels)

	m.mu.Lock()
	defer m.mu.Unlock()

	if v, ok := m.metrics[key]; ok {
		return v
	}

	v := &memoryMetric{}
	m.metrics[key] = v
	return v
}

// Counter returns the counter for name and labels, creating it if needed.
func (m *MemoryMetrics) Counter(name string, labels MetricLabels) Counter {
	return m.get(name, labels)
}

// Gauge returns the gauge for name and labels, creating it if needed.
func (m *MemoryMetrics) Gauge(name string, labels MetricLabels) Gauge {
	return m.get(name, labels)
}

// Histogram returns the histogram for name and labels, creating it if needed.
func (m *MemoryMetrics) Histogram(name string, labels MetricLabels) Histogram {
	return m.get(name, labels)
}

// Snapshot returns the current value of every counter and gauge, keyed by
// name{labels}. Histograms report their sum.
func (m *MemoryMetrics) Snapshot() map[string]float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]float64, len(m.metrics))
	for k, v := range m.metrics {
		out[k] = v.Value()
	}
	return out
}

// memoryMetric serves as counter, gauge and histogram.
type memoryMetric struct {
	mu    sync.Mutex
	value float64
	count uint64
}

func (v *memoryMetric) Inc() { v.Add(1) }

func (v *memoryMetric) Add(delta float64) {
	v.mu.Lock()
	v.value += delta
	v.count++
	v.mu.Unlock()
}

func (v *memoryMetric) Set(value float64) {
	v.mu.Lock()
	v.value = value
	v.mu.Unlock()
}

func (v *memoryMetric) Value() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.value
}

func (v *memoryMetric) ObserveDuration(d time.Duration) {
	v.Add(d.Seconds())
}

func (v *memoryMetric) Count() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.count
}

func (v *memoryMetric) Sum() float64 {
	return v.Value()
}
