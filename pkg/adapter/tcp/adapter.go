// Package tcp serves the FTPPlus line protocol over TCP.
//
// Every accepted connection carries exactly one request frame and one
// response frame, after which the server closes it.
package tcp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/ftpplus/internal/logger"
	"github.com/marmos91/ftpplus/internal/ratelimiter"
	"github.com/marmos91/ftpplus/pkg/adapter"
	"github.com/marmos91/ftpplus/pkg/metrics"
)

// DefaultPort is the port FTPPlus servers listen on unless configured.
const DefaultPort = 5000

// DefaultMaxFrameSize bounds a request frame. It leaves room for the base64
// encoding of a 100 MiB upload plus the JSON envelope.
const DefaultMaxFrameSize int64 = 160 << 20

// Adapter implements adapter.Adapter for the TCP transport.
//
// Architecture:
// Adapter owns the listener and the connection lifecycle. Each accepted
// connection is handled by a Connection in its own goroutine, which reads one
// frame, passes it to the FrameHandler and writes the response back.
//
// Shutdown flow:
//  1. Context cancelled or Stop() called
//  2. Listener closed (no new connections)
//  3. shutdownCtx cancelled (signals in-flight requests to abort)
//  4. Wait for active connections to complete (up to ShutdownTimeout)
//  5. Force-close any remaining connections after timeout
//
// Thread safety:
// All methods are safe for concurrent use.
type Adapter struct {
	config  Config
	handler adapter.FrameHandler
	metrics metrics.ServerMetrics

	listenerMu sync.Mutex
	listener   net.Listener
	boundPort  atomic.Int32
	ready      chan struct{}

	// limiter throttles new connections per client host; nil when disabled
	limiter *ratelimiter.KeyedLimiter

	activeConns  sync.WaitGroup
	connCount    atomic.Int32
	shutdownOnce sync.Once
	shutdown     chan struct{}

	// connSemaphore bounds concurrent connections; nil means unlimited
	connSemaphore chan struct{}

	shutdownCtx    context.Context
	cancelRequests context.CancelFunc

	// activeConnections maps connection ID to net.Conn for forced closure
	activeConnections sync.Map
}

// Config holds the TCP adapter settings.
//
// Default values (applied by New if zero):
//   - Host: 0.0.0.0
//   - ReadTimeout: 30s
//   - WriteTimeout: 30s
//   - ShutdownTimeout: 30s
//   - MaxFrameSize: 160 MiB
//   - MetricsLogInterval: 5m
//
// A Port of 0 binds an ephemeral port; pkg/config fills in DefaultPort for
// configured servers.
type Config struct {
	// Enabled controls whether the TCP adapter is started.
	Enabled bool `mapstructure:"enabled"`

	// Host is the address to bind.
	Host string `mapstructure:"host"`

	// Port is the TCP port to listen on.
	Port int `mapstructure:"port" validate:"min=0,max=65535"`

	// MaxConnections limits concurrent connections. 0 means unlimited.
	// When reached, accepting pauses until a connection closes.
	MaxConnections int `mapstructure:"max_connections" validate:"min=0"`

	// ReadTimeout bounds the time to receive a complete request frame.
	ReadTimeout time.Duration `mapstructure:"read_timeout" validate:"min=0"`

	// WriteTimeout bounds the time to send the response frame.
	WriteTimeout time.Duration `mapstructure:"write_timeout" validate:"min=0"`

	// ShutdownTimeout is how long Serve waits for in-flight exchanges on
	// shutdown before force-closing them.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"min=0"`

	// MaxFrameSize bounds one request frame in bytes.
	MaxFrameSize int64 `mapstructure:"max_frame_size" validate:"min=0"`

	// RateLimit throttles new connections per client host.
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`

	// MetricsLogInterval is the interval between connection-count log lines.
	// Negative disables them.
	MetricsLogInterval time.Duration `mapstructure:"metrics_log_interval"`
}

// RateLimitConfig configures per-host connection throttling. A zero
// RequestsPerSecond disables it.
type RateLimitConfig struct {
	RequestsPerSecond uint `mapstructure:"requests_per_second"`
	Burst             uint `mapstructure:"burst"`
}

func (c *Config) applyDefaults() {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 30 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
	if c.MaxFrameSize == 0 {
		c.MaxFrameSize = DefaultMaxFrameSize
	}
	if c.MetricsLogInterval == 0 {
		c.MetricsLogInterval = 5 * time.Minute
	}
	if c.RateLimit.RequestsPerSecond > 0 && c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = c.RateLimit.RequestsPerSecond
	}
}

func (c *Config) validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be 0-65535", c.Port)
	}
	if c.MaxConnections < 0 {
		return fmt.Errorf("invalid MaxConnections %d: must be >= 0", c.MaxConnections)
	}
	if c.ReadTimeout < 0 || c.WriteTimeout < 0 {
		return fmt.Errorf("invalid timeouts read=%v write=%v: must be >= 0", c.ReadTimeout, c.WriteTimeout)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid ShutdownTimeout %v: must be > 0", c.ShutdownTimeout)
	}
	if c.MaxFrameSize < 0 {
		return fmt.Errorf("invalid MaxFrameSize %d: must be >= 0", c.MaxFrameSize)
	}
	return nil
}

// New creates a stopped Adapter. Zero config values are replaced with
// defaults; an invalid config is reported as an error.
func New(config Config, handler adapter.FrameHandler, m metrics.ServerMetrics) (*Adapter, error) {
	config.applyDefaults()
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid TCP config: %w", err)
	}
	if handler == nil {
		return nil, errors.New("invalid TCP config: frame handler is required")
	}

	var connSemaphore chan struct{}
	if config.MaxConnections > 0 {
		connSemaphore = make(chan struct{}, config.MaxConnections)
		logger.Debug("TCP connection limit: %d", config.MaxConnections)
	} else {
		logger.Debug("TCP connection limit: unlimited")
	}

	var limiter *ratelimiter.KeyedLimiter
	if config.RateLimit.RequestsPerSecond > 0 {
		limiter = ratelimiter.NewKeyed(config.RateLimit.RequestsPerSecond, config.RateLimit.Burst, 0)
	}

	shutdownCtx, cancelRequests := context.WithCancel(context.Background())

	a := &Adapter{
		config:         config,
		handler:        handler,
		metrics:        metrics.OrNoop(m),
		ready:          make(chan struct{}),
		limiter:        limiter,
		shutdown:       make(chan struct{}),
		connSemaphore:  connSemaphore,
		shutdownCtx:    shutdownCtx,
		cancelRequests: cancelRequests,
	}
	a.boundPort.Store(int32(config.Port))
	return a, nil
}

// Serve listens on the configured address and handles connections until ctx
// is cancelled or Stop is called.
func (a *Adapter) Serve(ctx context.Context) error {
	addr := net.JoinHostPort(a.config.Host, strconv.Itoa(a.config.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to create TCP listener on %s: %w", addr, err)
	}

	a.listenerMu.Lock()
	a.listener = listener
	a.listenerMu.Unlock()
	select {
	case <-a.shutdown:
		// Stop ran before the listener existed.
		_ = listener.Close()
	default:
	}

	if tcpAddr, ok := listener.Addr().(*net.TCPAddr); ok {
		a.boundPort.Store(int32(tcpAddr.Port))
	}
	close(a.ready)

	logger.Info("FTPPlus server listening on %s", listener.Addr())
	logger.Debug("TCP config: max_connections=%d read_timeout=%v write_timeout=%v max_frame_size=%d",
		a.config.MaxConnections, a.config.ReadTimeout, a.config.WriteTimeout, a.config.MaxFrameSize)

	go func() {
		select {
		case <-ctx.Done():
			logger.Info("TCP shutdown signal received: %v", ctx.Err())
			a.initiateShutdown()
		case <-a.shutdown:
		}
	}()

	if a.config.MetricsLogInterval > 0 {
		go a.logMetrics(ctx)
	}

	for {
		if a.connSemaphore != nil {
			select {
			case a.connSemaphore <- struct{}{}:
			case <-a.shutdown:
				return a.gracefulShutdown()
			}
		}

		tcpConn, err := listener.Accept()
		if err != nil {
			a.releaseSlot()

			select {
			case <-a.shutdown:
				return a.gracefulShutdown()
			default:
				logger.Debug("Error accepting TCP connection: %v", err)
				continue
			}
		}

		if !a.admit(tcpConn) {
			a.releaseSlot()
			continue
		}

		a.track(tcpConn)
	}
}

// admit applies the per-host rate limit. Rejected connections are closed
// without a response.
func (a *Adapter) admit(conn net.Conn) bool {
	if a.limiter == nil {
		return true
	}

	host := conn.RemoteAddr().String()
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if a.limiter.Allow(host) {
		return true
	}

	logger.Warn("Rate limit exceeded for %s, dropping connection", host)
	a.metrics.RecordConnectionRejected("rate_limited")
	_ = conn.Close()
	return false
}

func (a *Adapter) track(tcpConn net.Conn) {
	a.activeConns.Add(1)
	current := a.connCount.Add(1)

	id := uuid.NewString()
	a.activeConnections.Store(id, tcpConn)

	a.metrics.RecordConnectionAccepted()
	a.metrics.SetActiveConnections(current)
	logger.Debug("[%s] Connection accepted from %s (active: %d)", id, tcpConn.RemoteAddr(), current)

	conn := newConnection(a, id, tcpConn)
	go func() {
		defer func() {
			a.activeConnections.Delete(id)
			a.activeConns.Done()
			current := a.connCount.Add(-1)
			a.releaseSlot()

			a.metrics.RecordConnectionClosed()
			a.metrics.SetActiveConnections(current)
			logger.Debug("[%s] Connection closed (active: %d)", id, current)
		}()

		conn.Serve(a.shutdownCtx)
	}()
}

func (a *Adapter) releaseSlot() {
	if a.connSemaphore != nil {
		<-a.connSemaphore
	}
}

// initiateShutdown closes the listener and cancels in-flight requests.
// Safe to call more than once.
func (a *Adapter) initiateShutdown() {
	a.shutdownOnce.Do(func() {
		logger.Debug("TCP shutdown initiated")

		close(a.shutdown)

		a.listenerMu.Lock()
		if a.listener != nil {
			if err := a.listener.Close(); err != nil {
				logger.Debug("Error closing TCP listener: %v", err)
			}
		}
		a.listenerMu.Unlock()

		a.cancelRequests()
	})
}

// gracefulShutdown waits for active connections up to ShutdownTimeout and
// force-closes whatever is left.
func (a *Adapter) gracefulShutdown() error {
	logger.Info("TCP graceful shutdown: waiting for %d active connection(s) (timeout: %v)",
		a.connCount.Load(), a.config.ShutdownTimeout)

	select {
	case <-a.drained():
		logger.Info("TCP graceful shutdown complete: all connections closed")
		return nil

	case <-time.After(a.config.ShutdownTimeout):
		remaining := a.connCount.Load()
		logger.Warn("TCP shutdown timeout exceeded: %d connection(s) still active after %v, forcing closure",
			remaining, a.config.ShutdownTimeout)

		a.forceCloseConnections()

		return fmt.Errorf("TCP shutdown timeout: %d connections force-closed", remaining)
	}
}

func (a *Adapter) drained() <-chan struct{} {
	done := make(chan struct{})
	go func() {
		a.activeConns.Wait()
		close(done)
	}()
	return done
}

func (a *Adapter) forceCloseConnections() {
	closed := 0
	a.activeConnections.Range(func(key, value any) bool {
		id := key.(string)
		conn := value.(net.Conn)

		if err := conn.Close(); err != nil {
			logger.Debug("[%s] Error force-closing connection: %v", id, err)
		} else {
			closed++
			a.metrics.RecordConnectionForceClosed()
		}
		return true
	})

	if closed > 0 {
		logger.Info("Force-closed %d connection(s)", closed)
	}
}

// Stop initiates shutdown and waits for active connections until ctx is
// done.
func (a *Adapter) Stop(ctx context.Context) error {
	a.initiateShutdown()

	if ctx == nil {
		return a.gracefulShutdown()
	}

	select {
	case <-a.drained():
		return nil
	case <-ctx.Done():
		remaining := a.connCount.Load()
		logger.Warn("TCP shutdown context cancelled: %d connection(s) still active: %v", remaining, ctx.Err())
		a.forceCloseConnections()
		return ctx.Err()
	}
}

func (a *Adapter) logMetrics(ctx context.Context) {
	ticker := time.NewTicker(a.config.MetricsLogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-a.shutdown:
			return
		case <-ticker.C:
			if a.limiter != nil {
				logger.Info("TCP metrics: active_connections=%d rate_limited_hosts=%d", a.connCount.Load(), a.limiter.Len())
			} else {
				logger.Info("TCP metrics: active_connections=%d", a.connCount.Load())
			}
		}
	}
}

// Ready is closed once the listener is bound.
func (a *Adapter) Ready() <-chan struct{} {
	return a.ready
}

// ActiveConnections returns the number of connections being served.
func (a *Adapter) ActiveConnections() int32 {
	return a.connCount.Load()
}

// Port returns the bound port once Serve is listening, the configured port
// before that.
func (a *Adapter) Port() int {
	return int(a.boundPort.Load())
}

// Protocol returns "TCP".
func (a *Adapter) Protocol() string {
	return "TCP"
}
