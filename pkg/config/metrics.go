package config

import (
	"github.com/marmos91/ftpplus/pkg/metrics"
	promMetrics "github.com/marmos91/ftpplus/pkg/metrics/prometheus"
)

// MetricsResult contains the metrics components created from configuration.
type MetricsResult struct {
	// Server is the HTTP server exposing Prometheus metrics (nil if disabled)
	Server *metrics.Server

	// ServerMetrics is the request/connection collector (never nil, noop if disabled)
	ServerMetrics metrics.ServerMetrics
}

// InitializeMetrics creates the metrics components.
//
// If metrics are enabled the global Prometheus registry is initialized and
// Prometheus-backed collectors are returned along with the HTTP server.
// Otherwise the server is nil and the collectors are no-ops.
func InitializeMetrics(cfg *Config) *MetricsResult {
	if !cfg.Metrics.Enabled {
		return &MetricsResult{
			ServerMetrics: metrics.NewNoopServerMetrics(),
		}
	}

	metrics.InitRegistry()

	return &MetricsResult{
		Server:        metrics.NewServer(metrics.ServerConfig{Port: cfg.Metrics.Port}),
		ServerMetrics: promMetrics.NewServerMetrics(nil),
	}
}
