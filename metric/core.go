package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains all engine-level metrics (not component-specific)
type Metrics struct {
	// Telemetry ingestion metrics
	TelemetryReceived prometheus.Counter
	TelemetryParsed   prometheus.Counter
	TelemetryDropped  *prometheus.CounterVec
	StreamPoints      *prometheus.GaugeVec

	// Script execution metrics
	ScriptRuns     *prometheus.CounterVec
	ScriptDuration *prometheus.HistogramVec

	// Process supervision metrics
	ProcessesSupervised prometheus.Gauge

	// Error and transport metrics
	ErrorsTotal   *prometheus.CounterVec
	NATSConnected prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all engine metrics
func NewMetrics() *Metrics {
	return &Metrics{
		TelemetryReceived: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "connect",
				Subsystem: "telemetry",
				Name:      "received_total",
				Help:      "Total number of telemetry messages received from the wire",
			},
		),

		TelemetryParsed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "connect",
				Subsystem: "telemetry",
				Name:      "parsed_total",
				Help:      "Total number of telemetry messages successfully parsed",
			},
		),

		TelemetryDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "connect",
				Subsystem: "telemetry",
				Name:      "dropped_total",
				Help:      "Total number of telemetry messages dropped",
			},
			[]string{"reason"},
		),

		StreamPoints: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "connect",
				Subsystem: "stream",
				Name:      "points",
				Help:      "Current number of buffered points per stream",
			},
			[]string{"stream_id"},
		),

		ScriptRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "connect",
				Subsystem: "script",
				Name:      "runs_total",
				Help:      "Total number of discrete script runs",
			},
			[]string{"script", "status"},
		),

		ScriptDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "connect",
				Subsystem: "script",
				Name:      "duration_seconds",
				Help:      "Discrete script run duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"script"},
		),

		ProcessesSupervised: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "connect",
				Subsystem: "process",
				Name:      "supervised",
				Help:      "Current number of supervised streaming worker processes",
			},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "connect",
				Subsystem: "errors",
				Name:      "total",
				Help:      "Total number of errors",
			},
			[]string{"component", "type"},
		),

		NATSConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "connect",
				Subsystem: "nats",
				Name:      "connected",
				Help:      "NATS connection status (0=disconnected, 1=connected)",
			},
		),
	}
}

// RecordTelemetryReceived increments the received message counter
func (c *Metrics) RecordTelemetryReceived() {
	c.TelemetryReceived.Inc()
}

// RecordTelemetryParsed increments the parsed message counter
func (c *Metrics) RecordTelemetryParsed() {
	c.TelemetryParsed.Inc()
}

// RecordTelemetryDropped increments the dropped message counter for a reason
func (c *Metrics) RecordTelemetryDropped(reason string) {
	c.TelemetryDropped.WithLabelValues(reason).Inc()
}

// RecordStreamPoints updates the buffered point count for a stream
func (c *Metrics) RecordStreamPoints(streamID string, points int) {
	c.StreamPoints.WithLabelValues(streamID).Set(float64(points))
}

// RecordScriptRun increments the script run counter
func (c *Metrics) RecordScriptRun(script, status string) {
	c.ScriptRuns.WithLabelValues(script, status).Inc()
}

// RecordScriptDuration records a discrete script run duration
func (c *Metrics) RecordScriptDuration(script string, duration time.Duration) {
	c.ScriptDuration.WithLabelValues(script).Observe(duration.Seconds())
}

// RecordProcessesSupervised updates the supervised process gauge
func (c *Metrics) RecordProcessesSupervised(count int) {
	c.ProcessesSupervised.Set(float64(count))
}

// RecordError increments the error counter
func (c *Metrics) RecordError(component, errorType string) {
	c.ErrorsTotal.WithLabelValues(component, errorType).Inc()
}

// RecordNATSStatus updates NATS connection status
func (c *Metrics) RecordNATSStatus(connected bool) {
	value := 0.0
	if connected {
		value = 1.0
	}
	c.NATSConnected.Set(value)
}
