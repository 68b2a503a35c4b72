package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/ftpplus/internal/logger"
	"github.com/marmos91/ftpplus/pkg/adapter"
	"github.com/marmos91/ftpplus/pkg/metrics"
)

// DefaultStopTimeout bounds the Stop() call issued to each adapter on shutdown.
const DefaultStopTimeout = 30 * time.Second

// Server manages the lifecycle of the transport adapters that share one
// Runtime.
//
// Lifecycle:
//  1. Creation: New() with the Runtime
//  2. Registration: AddAdapter() for each transport
//  3. Startup: Serve() starts all adapters (and the metrics server, if any)
//  4. Shutdown: context cancellation or an adapter failure stops everything
//     and closes the Runtime
//
// Example usage:
//
//	srv := server.New(rt, 30*time.Second)
//	_ = srv.AddAdapter(tcpAdapter)
//
//	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer cancel()
//
//	if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
//	    log.Fatal(err)
//	}
type Server struct {
	runtime       *Runtime
	adapters      []adapter.Adapter
	metricsServer *metrics.Server
	stopTimeout   time.Duration

	mu     sync.Mutex
	served bool
}

// ErrAlreadyServed is returned by a second call to Serve.
var ErrAlreadyServed = errors.New("server: Serve has already been called")

// New creates a Server around rt. A stopTimeout <= 0 selects
// DefaultStopTimeout.
//
// Panics if rt is nil (indicates programmer error).
func New(rt *Runtime, stopTimeout time.Duration) *Server {
	if rt == nil {
		panic("runtime cannot be nil")
	}
	if stopTimeout <= 0 {
		stopTimeout = DefaultStopTimeout
	}
	return &Server{
		runtime:     rt,
		adapters:    make([]adapter.Adapter, 0, 2),
		stopTimeout: stopTimeout,
	}
}

// AddAdapter registers a transport adapter. Duplicate protocols and port
// conflicts are rejected. Must be called before Serve.
func (s *Server) AddAdapter(a adapter.Adapter) error {
	if a == nil {
		return errors.New("adapter cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.served {
		return errors.New("cannot add adapter after Serve() has been called")
	}

	protocol := a.Protocol()
	port := a.Port()

	for _, existing := range s.adapters {
		if existing.Protocol() == protocol {
			return fmt.Errorf("adapter for protocol %s already registered", protocol)
		}
		if port != 0 && existing.Port() == port {
			return fmt.Errorf("port %d already in use by %s adapter", port, existing.Protocol())
		}
	}

	s.adapters = append(s.adapters, a)
	logger.Info("Registered %s adapter on port %d", protocol, port)
	return nil
}

// SetMetricsServer attaches the Prometheus HTTP server. It is started with
// the adapters and stopped with them.
func (s *Server) SetMetricsServer(ms *metrics.Server) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metricsServer = ms
}

// Serve starts all adapters and blocks until ctx is cancelled or an adapter
// fails. The Runtime is closed before Serve returns.
//
// Returns:
//   - ctx.Err() if shutdown was triggered by the context
//   - the failing adapter's error otherwise
//   - ErrAlreadyServed on a second call
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	if s.served {
		s.mu.Unlock()
		return ErrAlreadyServed
	}
	s.served = true
	adapters := make([]adapter.Adapter, len(s.adapters))
	copy(adapters, s.adapters)
	metricsServer := s.metricsServer
	s.mu.Unlock()

	defer func() {
		if err := s.runtime.Close(); err != nil {
			logger.Error("Error closing storage: %v", err)
		}
	}()

	if len(adapters) == 0 {
		return errors.New("no adapters registered; call AddAdapter() before Serve()")
	}

	logger.Info("Starting FTPPlus server with %d adapter(s)", len(adapters))

	errChan := make(chan adapterError, len(adapters)+1)
	var wg sync.WaitGroup

	for _, a := range adapters {
		wg.Add(1)
		go func(a adapter.Adapter) {
			defer wg.Done()

			protocol := a.Protocol()
			if err := a.Serve(ctx); err != nil {
				if !errors.Is(err, context.Canceled) && ctx.Err() == nil {
					errChan <- adapterError{protocol: protocol, err: err}
					return
				}
				logger.Debug("%s adapter stopped: %v", protocol, err)
				return
			}
			logger.Info("%s adapter stopped", protocol)
		}(a)
	}

	metricsCtx, stopMetrics := context.WithCancel(ctx)
	defer stopMetrics()
	if metricsServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := metricsServer.Start(metricsCtx); err != nil && metricsCtx.Err() == nil {
				errChan <- adapterError{protocol: "metrics", err: err}
			}
		}()
	}

	var shutdownErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received (reason: %v)", ctx.Err())
		shutdownErr = ctx.Err()

	case failed := <-errChan:
		logger.Error("%s failed: %v, shutting down", failed.protocol, failed.err)
		shutdownErr = fmt.Errorf("%s adapter error: %w", failed.protocol, failed.err)
	}

	s.stopAll(adapters)
	stopMetrics()

	wg.Wait()
	logger.Info("FTPPlus server stopped")

	return shutdownErr
}

type adapterError struct {
	protocol string
	err      error
}

// stopAll stops adapters in reverse registration order.
func (s *Server) stopAll(adapters []adapter.Adapter) {
	ctx, cancel := context.WithTimeout(context.Background(), s.stopTimeout)
	defer cancel()

	for i := len(adapters) - 1; i >= 0; i-- {
		a := adapters[i]
		if err := a.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Error stopping %s adapter: %v", a.Protocol(), err)
		}
	}
}

// Adapters returns a copy of the registered adapters.
func (s *Server) Adapters() []adapter.Adapter {
	s.mu.Lock()
	defer s.mu.Unlock()

	adapters := make([]adapter.Adapter, len(s.adapters))
	copy(adapters, s.adapters)
	return adapters
}
