package opc

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors updated by connections.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	connections  prometheus.Gauge
	framesRead   *prometheus.CounterVec
	framesWrite  *prometheus.CounterVec
	bytesRead    prometheus.Counter
	bytesWritten prometheus.Counter
	truncated    prometheus.Counter
}

// NewMetrics creates the collectors and registers them with registerer.
// If registerer is nil, the metrics are created but not registered.
func NewMetrics(registerer prometheus.Registerer, namespace, subsystem string) *Metrics {
	if registerer != nil {
		registerer = prometheus.WrapRegistererWith(
			prometheus.Labels{"component": "opc"},
			registerer,
		)
	}

	m := Metrics{
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "connections",
			Help:      "Number of open OPC connections",
		}),
		framesRead: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "frames_decoded_total",
			Help:      "Number of frames decoded, by payload kind",
		}, []string{"kind"}),
		framesWrite: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "frames_encoded_total",
			Help:      "Number of frames encoded, by payload kind",
		}, []string{"kind"}),
		bytesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "read_bytes_total",
			Help:      "Number of bytes received",
		}),
		bytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "written_bytes_total",
			Help:      "Number of bytes sent",
		}),
		truncated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "payloads_truncated_total",
			Help:      "Number of payloads cut to the maximum frame length on encode",
		}),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.connections,
			m.framesRead,
			m.framesWrite,
			m.bytesRead,
			m.bytesWritten,
			m.truncated,
		)
	}

	return &m
}

// kind returns the metric label for a payload.
func kind(p Payload) string {
	switch p.(type) {
	case nil, Pixels:
		return "pixels"
	case SystemExclusive:
		return "sysex"
	default:
		return "other"
	}
}

func (m *Metrics) connOpened() {
	if m != nil {
		m.connections.Inc()
	}
}

func (m *Metrics) connClosed() {
	if m != nil {
		m.connections.Dec()
	}
}

func (m *Metrics) read(n int) {
	if m != nil {
		m.bytesRead.Add(float64(n))
	}
}

func (m *Metrics) decoded(msg Message) {
	if m != nil {
		m.framesRead.WithLabelValues(kind(msg.Payload)).Inc()
	}
}

func (m *Metrics) encoded(msg Message) {
	if m == nil {
		return
	}
	m.framesWrite.WithLabelValues(kind(msg.Payload)).Inc()
	if msg.Length() > MaxPayloadLen {
		m.truncated.Inc()
	}
}

func (m *Metrics) written(n int) {
	if m != nil {
		m.bytesWritten.Add(float64(n))
	}
}
