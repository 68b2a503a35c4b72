package metrics

import "time"

// Request outcome labels.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Transfer direction labels.
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

// ServerMetrics provides observability for the FTPPlus server.
//
// This interface is optional: components given nil fall back to the no-op
// implementation.
//
// Example usage:
//
//	metrics.InitRegistry()
//	m := prometheus.NewServerMetrics(metrics.GetRegistry())
//	d := dispatch.New(engine, validator, scanner, m)
type ServerMetrics interface {
	// RecordRequest records a completed request.
	//
	// Parameters:
	//   - command: Command name ("list", "upload", ...) or "invalid"
	//   - status: StatusOK or StatusError
	//   - kind: ftperr kind name for errors, "" on success
	//   - duration: Time from decode to encoded response
	RecordRequest(command, status, kind string, duration time.Duration)

	// RecordBytes counts file payload bytes. Direction is DirectionIn for
	// uploads and DirectionOut for downloads.
	RecordBytes(direction string, n int)

	// RecordScan counts a scanner verdict ("clean", "suspicious", "unavailable").
	RecordScan(scanner, verdict string)

	// SetActiveConnections sets the number of open connections.
	SetActiveConnections(count int32)

	// RecordConnectionAccepted counts an accepted connection.
	RecordConnectionAccepted()

	// RecordConnectionClosed counts a closed connection.
	RecordConnectionClosed()

	// RecordConnectionForceClosed counts a connection closed by the shutdown
	// timeout.
	RecordConnectionForceClosed()

	// RecordConnectionRejected counts a connection refused before serving,
	// e.g. by the rate limiter.
	RecordConnectionRejected(reason string)
}

// NewNoopServerMetrics returns a ServerMetrics that discards everything.
func NewNoopServerMetrics() ServerMetrics {
	return noopServerMetrics{}
}

// OrNoop returns m, or the no-op implementation if m is nil.
func OrNoop(m ServerMetrics) ServerMetrics {
	if m == nil {
		return noopServerMetrics{}
	}
	return m
}

type noopServerMetrics struct{}

func (noopServerMetrics) RecordRequest(command, status, kind string, duration time.Duration) {}
func (noopServerMetrics) RecordBytes(direction string, n int)                                {}
func (noopServerMetrics) RecordScan(scanner, verdict string)                                 {}
func (noopServerMetrics) SetActiveConnections(count int32)                                   {}
func (noopServerMetrics) RecordConnectionAccepted()                                          {}
func (noopServerMetrics) RecordConnectionClosed()                                            {}
func (noopServerMetrics) RecordConnectionForceClosed()                                       {}
func (noopServerMetrics) RecordConnectionRejected(reason string)                             {}
