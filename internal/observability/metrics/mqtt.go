package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MQTT failure reasons.
const (
	MQTTReasonConnect = "connect"
	MQTTReasonPublish = "publish"
	MQTTReasonLost    = "connection_lost"
)

// MQTTMetrics tracks the broker connection of the sighting publisher. All
// methods are safe on a nil receiver so the client can run without metrics.
type MQTTMetrics struct {
	Connected         prometheus.Gauge
	MessagesDelivered *prometheus.CounterVec // by topic
	Failures          *prometheus.CounterVec // by reason
	Reconnects        prometheus.Counter
	PayloadBytes      prometheus.Histogram
	PublishLatency    prometheus.Histogram
}

// NewMQTTMetrics creates the publisher metrics and registers them.
func NewMQTTMetrics(registry *prometheus.Registry) (*MQTTMetrics, error) {
	m := &MQTTMetrics{
		Connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fieldlog_mqtt_connected",
			Help: "1 while the sighting publisher holds a broker connection",
		}),
		MessagesDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fieldlog_mqtt_messages_delivered_total",
			Help: "Sightings acknowledged by the broker",
		}, []string{"topic"}),
		Failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fieldlog_mqtt_failures_total",
			Help: "Broker connection and publish failures",
		}, []string{"reason"}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fieldlog_mqtt_reconnects_total",
			Help: "Automatic reconnection attempts",
		}),
		PayloadBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fieldlog_mqtt_payload_bytes",
			Help:    "Size of published sighting payloads",
			Buckets: prometheus.ExponentialBuckets(128, 2, 8),
		}),
		PublishLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fieldlog_mqtt_publish_seconds",
			Help:    "Time from publish to broker acknowledgement",
			Buckets: prometheus.ExponentialBuckets(0.002, 2, 10),
		}),
	}

	for _, c := range []prometheus.Collector{m.Connected, m.MessagesDelivered, m.Failures, m.Reconnects, m.PayloadBytes, m.PublishLatency} {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register MQTT metrics: %w", err)
		}
	}
	return m, nil
}

// SetConnected updates the connection gauge.
func (m *MQTTMetrics) SetConnected(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.Connected.Set(1)
	} else {
		m.Connected.Set(0)
	}
}

// Delivered records one acknowledged publish of size bytes on topic.
func (m *MQTTMetrics) Delivered(topic string, size int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.MessagesDelivered.WithLabelValues(topic).Inc()
	m.PayloadBytes.Observe(float64(size))
	m.PublishLatency.Observe(elapsed.Seconds())
}

func (m *MQTTMetrics) Failed(reason string) {
	if m == nil {
		return
	}
	m.Failures.WithLabelValues(reason).Inc()
}

func (m *MQTTMetrics) Reconnecting() {
	if m == nil {
		return
	}
	m.Reconnects.Inc()
}
