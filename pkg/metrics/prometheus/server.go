// Package prometheus implements metrics.ServerMetrics on Prometheus.
package prometheus

import (
	"time"

	"github.com/marmos91/ftpplus/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// serverMetrics is the Prometheus implementation of metrics.ServerMetrics.
type serverMetrics struct {
	requestsTotal          *prometheus.CounterVec
	requestDuration        *prometheus.HistogramVec
	bytesTransferred       *prometheus.CounterVec
	scansTotal             *prometheus.CounterVec
	activeConnections      prometheus.Gauge
	connectionsAccepted    prometheus.Counter
	connectionsClosed      prometheus.Counter
	connectionsForceClosed prometheus.Counter
	connectionsRejected    *prometheus.CounterVec
}

// NewServerMetrics registers the FTPPlus collectors on reg.
//
// A nil reg falls back to the process-wide registry, and to a no-op
// implementation when metrics are not enabled.
func NewServerMetrics(reg prometheus.Registerer) metrics.ServerMetrics {
	if reg == nil {
		if !metrics.IsEnabled() {
			return metrics.NewNoopServerMetrics()
		}
		reg = metrics.GetRegistry()
	}

	f := promauto.With(reg)

	return &serverMetrics{
		requestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ftpplus_requests_total",
				Help: "Total number of requests by command, status, and error kind",
			},
			[]string{"command", "status", "kind"},
		),
		requestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "ftpplus_request_duration_milliseconds",
				Help: "Duration of requests in milliseconds",
				Buckets: []float64{
					1,     // 1ms
					10,    // 10ms
					100,   // 100ms
					1000,  // 1s
					10000, // 10s
				},
			},
			[]string{"command"},
		),
		bytesTransferred: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ftpplus_bytes_transferred_total",
				Help: "Total file payload bytes by direction",
			},
			[]string{"direction"},
		),
		scansTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ftpplus_scans_total",
				Help: "Total number of upload scans by scanner and verdict",
			},
			[]string{"scanner", "verdict"},
		),
		activeConnections: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "ftpplus_active_connections",
				Help: "Current number of open client connections",
			},
		),
		connectionsAccepted: f.NewCounter(
			prometheus.CounterOpts{
				Name: "ftpplus_connections_accepted_total",
				Help: "Total number of client connections accepted",
			},
		),
		connectionsClosed: f.NewCounter(
			prometheus.CounterOpts{
				Name: "ftpplus_connections_closed_total",
				Help: "Total number of client connections closed",
			},
		),
		connectionsForceClosed: f.NewCounter(
			prometheus.CounterOpts{
				Name: "ftpplus_connections_force_closed_total",
				Help: "Total number of connections force-closed during shutdown timeout",
			},
		),
		connectionsRejected: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ftpplus_connections_rejected_total",
				Help: "Total number of connections refused before serving, by reason",
			},
			[]string{"reason"},
		),
	}
}

func (m *serverMetrics) RecordRequest(command, status, kind string, duration time.Duration) {
	m.requestsTotal.WithLabelValues(command, status, kind).Inc()
	m.requestDuration.WithLabelValues(command).Observe(duration.Seconds() * 1000)
}

func (m *serverMetrics) RecordBytes(direction string, n int) {
	m.bytesTransferred.WithLabelValues(direction).Add(float64(n))
}

func (m *serverMetrics) RecordScan(scanner, verdict string) {
	m.scansTotal.WithLabelValues(scanner, verdict).Inc()
}

func (m *serverMetrics) SetActiveConnections(count int32) {
	m.activeConnections.Set(float64(count))
}

func (m *serverMetrics) RecordConnectionAccepted() {
	m.connectionsAccepted.Inc()
}

func (m *serverMetrics) RecordConnectionClosed() {
	m.connectionsClosed.Inc()
}

func (m *serverMetrics) RecordConnectionForceClosed() {
	m.connectionsForceClosed.Inc()
}

func (m *serverMetrics) RecordConnectionRejected(reason string) {
	m.connectionsRejected.WithLabelValues(reason).Inc()
}
