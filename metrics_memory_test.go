package asyncmqtt

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetricKey(t *testing.T) {
	assert.Equal(t, "m", metricKey("m", nil))
	assert.Equal(t, "m{qos=1}", metricKey("m", MetricLabels{"qos": "1"}))
	assert.Equal(t, "m{a=1,b=2,c=3}", metricKey("m", MetricLabels{"c": "3", "a": "1", "b": "2"}))
}

func TestMemoryMetrics(t *testing.T) {
	t.Run("counter", func(t *testing.T) {
		m := NewMemoryMetrics()

		c := m.Counter("sent", MetricLabels{LabelPacketType: "PUBLISH"})
		c.Inc()
		c.Add(2)

		assert.Equal(t, float64(3), m.Counter("sent", MetricLabels{LabelPacketType: "PUBLISH"}).Value())
		assert.Equal(t, float64(0), m.Counter("sent", MetricLabels{LabelPacketType: "PUBACK"}).Value())
	})

	t.Run("gauge", func(t *testing.T) {
		m := NewMemoryMetrics()

		g := m.Gauge("connected", nil)
		g.Set(1)
		g.Set(0)

		assert.Equal(t, float64(0), g.Value())
	})

	t.Run("histogram", func(t *testing.T) {
		m := NewMemoryMetrics()

		h := m.Histogram("latency", nil)
		h.ObserveDuration(500 * time.Millisecond)
		h.ObserveDuration(time.Second)

		assert.Equal(t, uint64(2), h.Count())
		assert.InDelta(t, 1.5, h.Sum(), 1e-9)
	})

	t.Run("snapshot", func(t *testing.T) {
		m := NewMemoryMetrics()
		m.Counter("a", MetricLabels{"qos": "0"}).Inc()
		m.Gauge("b", nil).Set(7)

		assert.Equal(t, map[string]float64{"a{qos=0}": 1, "b": 7}, m.Snapshot())
	})

	t.Run("concurrent updates", func(t *testing.T) {
		m := NewMemoryMetrics()

		var wg sync.WaitGroup
		for range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for range 100 {
					m.Counter("n", nil).Inc()
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, float64(1000), m.Counter("n", nil).Value())
	})
}

func TestNoOpMetrics(t *testing.T) {
	var m Metrics = NoOpMetrics{}

	m.Counter("a", nil).Inc()
	m.Gauge("b", nil).Set(1)
	m.Histogram("c", nil).ObserveDuration(time.Second)

	assert.Equal(t, float64(0), m.Counter("a", nil).Value())
	assert.Equal(t, uint64(0), m.Histogram("c", nil).Count())
}
