package adapter

import (
	"context"
)

// Adapter represents a transport-specific server adapter that can be managed by
// the FTPPlus server.
//
// Each adapter accepts client connections over one transport and hands the
// decoded frames to the shared dispatcher. Adapters never touch storage
// directly.
//
// Lifecycle:
//  1. Creation: Adapter is created with transport-specific configuration and
//     the shared FrameHandler
//  2. Startup: Serve() starts the listener and blocks until shutdown
//  3. Shutdown: Stop() initiates graceful shutdown with timeout
//
// Thread safety:
// Implementations must be safe for concurrent use. Stop() may be called
// concurrently with Serve().
type Adapter interface {
	// Serve starts the server and blocks until the context is cancelled
	// or an unrecoverable error occurs.
	//
	// When the context is cancelled, Serve must initiate graceful shutdown:
	//   - Stop accepting new connections
	//   - Wait for active exchanges to complete (with timeout)
	//   - Clean up resources
	//
	// If Serve returns before context cancellation, the server treats it as
	// a fatal error and stops all other adapters.
	Serve(ctx context.Context) error

	// Stop initiates graceful shutdown. It must be idempotent, safe to call
	// concurrently with Serve(), and respect the context deadline.
	Stop(ctx context.Context) error

	// Protocol returns the human-readable transport name for logging and metrics.
	Protocol() string

	// Port returns the port the adapter is listening on, or the configured
	// port before Serve() binds.
	Port() int
}

// FrameHandler turns one request frame into one response frame.
//
// *dispatch.Dispatcher implements it. Implementations must never fail:
// every input, however malformed, yields a response body.
type FrameHandler interface {
	HandleFrame(ctx context.Context, clientAddr string, frame []byte) []byte
}
