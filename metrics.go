package asyncmqtt

import (
	"strconv"
	"time"
)

// MetricLabels represents key-value pairs for metric labels.
type MetricLabels map[string]string

// Metrics is the sink for client metrics.
type Metrics interface {
	// Counter returns a counter metric.
	Counter(name string, labels MetricLabels) Counter

	// Gauge returns a gauge metric.
	Gauge(name string, labels MetricLabels) Gauge

	// Histogram returns a histogram metric.
	Histogram(name string, labels MetricLabels) Histogram
}

// Counter is a monotonically increasing counter.
type Counter interface {
	Inc()
	Add(delta float64)
	Value() float64
}

// Gauge is a metric that can go up and down.
type Gauge interface {
	Set(value float64)
	Value() float64
}

// Histogram tracks the distribution of values.
type Histogram interface {
	// ObserveDuration records a duration in seconds.
	ObserveDuration(d time.Duration)
	Count() uint64
	Sum() float64
}

// NoOpMetrics discards everything.
type NoOpMetrics struct{}

// Counter returns a no-op counter.
func (NoOpMetrics) Counter(_ string, _ MetricLabels) Counter { return noOpMetric{} }

// Gauge returns a no-op gauge.
func (NoOpMetrics) Gauge(_ string, _ MetricLabels) Gauge { return noOpMetric{} }

// Histogram returns a no-op histogram.
func (NoOpMetrics) Histogram(_ string, _ MetricLabels) Histogram { return noOpMetric{} }

type noOpMetric struct{}

func (noOpMetric) Inc()                            {}
func (noOpMetric) Add(_ float64)                   {}
func (noOpMetric) Set(_ float64)                   {}
func (noOpMetric) Value() float64                  { return 0 }
func (noOpMetric) ObserveDuration(_ time.Duration) {}
func (noOpMetric) Count() uint64                   { return 0 }
func (noOpMetric) Sum() float64                    { return 0 }

// Client metric names.
const (
	MetricConnected            = "mqtt_client_connected"
	MetricConnectLatency       = "mqtt_client_connect_latency_seconds"
	MetricPacketsSent          = "mqtt_client_packets_sent_total"
	MetricPacketsReceived      = "mqtt_client_packets_received_total"
	MetricBytesReceived        = "mqtt_client_bytes_received_total"
	MetricMessagesDelivered    = "mqtt_client_messages_delivered_total"
	MetricDuplicatesSuppressed = "mqtt_client_duplicates_suppressed_total"
	MetricSendsRefused         = "mqtt_client_sends_refused_total"
	MetricKeepAliveTimeouts    = "mqtt_client_keepalive_timeouts_total"
	MetricProtocolErrors       = "mqtt_client_protocol_errors_total"
)

// Metric labels.
const (
	LabelPacketType = "packet_type"
	LabelQoS        = "qos"
)

// clientMetrics names the measurements the client takes.
type clientMetrics struct {
	metrics Metrics
}

func (m clientMetrics) connected(up bool) {
	v := 0.0
	if up {
		v = 1
	}
	m.metrics.Gauge(MetricConnected, nil).Set(v)
}

func (m clientMetrics) connectLatency(d time.Duration) {
	m.metrics.Histogram(MetricConnectLatency, nil).ObserveDuration(d)
}

func (m clientMetrics) packetSent(packetType PacketType, n int) {
	m.metrics.Counter(MetricPacketsSent, MetricLabels{LabelPacketType: packetType.String()}).Add(float64(n))
}

func (m clientMetrics) packetReceived(packetType PacketType) {
	m.metrics.Counter(MetricPacketsReceived, MetricLabels{LabelPacketType: packetType.String()}).Inc()
}

func (m clientMetrics) bytesReceived(n int) {
	m.metrics.Counter(MetricBytesReceived, nil).Add(float64(n))
}

func (m clientMetrics) messageDelivered(qos byte) {
	m.metrics.Counter(MetricMessagesDelivered, MetricLabels{LabelQoS: strconv.Itoa(int(qos))}).Inc()
}

func (m clientMetrics) duplicateSuppressed() {
	m.metrics.Counter(MetricDuplicatesSuppressed, nil).Inc()
}

func (m clientMetrics) sendRefused() {
	m.metrics.Counter(MetricSendsRefused, nil).Inc()
}

func (m clientMetrics) keepAliveTimeout() {
	m.metrics.Counter(MetricKeepAliveTimeouts, nil).Inc()
}

func (m clientMetrics) protocolError() {
	m.metrics.Counter(MetricProtocolErrors, nil).Inc()
}
