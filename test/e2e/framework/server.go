// Package framework starts complete FTPPlus servers for end-to-end tests.
package framework

import (
	"context"
	"fmt"
	"net"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/marmos91/ftpplus/internal/logger"
	"github.com/marmos91/ftpplus/pkg/adapter/tcp"
	"github.com/marmos91/ftpplus/pkg/client"
	"github.com/marmos91/ftpplus/pkg/config"
	"github.com/marmos91/ftpplus/pkg/server"
)

// StoreType represents the blob backend to run the server on
type StoreType string

const (
	StoreTypeMemory     StoreType = "memory"
	StoreTypeFilesystem StoreType = "filesystem"
	StoreTypeBolt       StoreType = "bolt"
	StoreTypeBadger     StoreType = "badger"
)

// AllLocalStores lists the backends that need no external service.
var AllLocalStores = []StoreType{StoreTypeMemory, StoreTypeFilesystem, StoreTypeBolt, StoreTypeBadger}

// TestServerConfig holds configuration for the test server.
type TestServerConfig struct {
	Store StoreType

	// DataDir holds on-disk state. Reusing it across servers simulates a
	// restart. Empty uses a fresh t.TempDir().
	DataDir string

	// KeyFile persists the encryption key. Empty runs with an ephemeral key.
	KeyFile string

	MaxFileSize  int64
	MaxBulkFiles int

	LogLevel       string
	StartupTimeout time.Duration
}

// TestServer wraps a fully wired FTPPlus server
type TestServer struct {
	t       testing.TB
	config  TestServerConfig
	cfg     *config.Config
	server  *server.Server
	adapter *tcp.Adapter
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	mu      sync.Mutex
}

// NewTestServer creates a new test server instance
func NewTestServer(t testing.TB, cfg TestServerConfig) *TestServer {
	t.Helper()

	if cfg.Store == "" {
		cfg.Store = StoreTypeMemory
	}
	if cfg.DataDir == "" {
		cfg.DataDir = t.TempDir()
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "ERROR" // Keep tests quiet by default
	}
	if cfg.StartupTimeout == 0 {
		cfg.StartupTimeout = 10 * time.Second
	}

	return &TestServer{t: t, config: cfg}
}

// Config builds the application configuration the server runs with.
func (ts *TestServer) Config() *config.Config {
	cfg := config.GetDefaultConfig()
	cfg.Logging.Level = ts.config.LogLevel
	cfg.Scanner.Type = "none"
	cfg.Encryption.KeyFile = ts.config.KeyFile
	cfg.Adapters.TCP.Host = "127.0.0.1"
	cfg.Adapters.TCP.Port = 0
	cfg.Adapters.TCP.MetricsLogInterval = -1
	cfg.Server.ShutdownTimeout = 5 * time.Second

	if ts.config.MaxFileSize > 0 {
		cfg.Limits.MaxFileSize = ts.config.MaxFileSize
	}
	if ts.config.MaxBulkFiles > 0 {
		cfg.Limits.MaxBulkFiles = ts.config.MaxBulkFiles
	}

	cfg.Storage.Type = string(ts.config.Store)
	switch ts.config.Store {
	case StoreTypeFilesystem:
		cfg.Storage.Filesystem = map[string]any{"path": ts.StorageRoot(), "no_sync": true}
	case StoreTypeBolt:
		cfg.Storage.Bolt = map[string]any{"db_path": filepath.Join(ts.config.DataDir, "ftpplus.db")}
	case StoreTypeBadger:
		cfg.Storage.Badger = map[string]any{"db_path": filepath.Join(ts.config.DataDir, "badger")}
	}
	return cfg
}

// StorageRoot is the filesystem backend root.
func (ts *TestServer) StorageRoot() string {
	return filepath.Join(ts.config.DataDir, "Armazenamento")
}

// Start builds the server through the configuration factories and waits
// until it accepts connections.
func (ts *TestServer) Start() error {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.started {
		return fmt.Errorf("server already started")
	}
	ts.t.Helper()

	ts.cfg = ts.Config()
	if err := config.Validate(ts.cfg); err != nil {
		return fmt.Errorf("invalid test config: %w", err)
	}
	logger.SetLevel(ts.cfg.Logging.Level)

	ctx, cancel := context.WithCancel(context.Background())

	srv, err := config.BuildServer(ctx, ts.cfg)
	if err != nil {
		cancel()
		return err
	}
	ts.server = srv
	ts.cancel = cancel
	ts.adapter = srv.Adapters()[0].(*tcp.Adapter)

	ts.wg.Add(1)
	go func() {
		defer ts.wg.Done()
		if err := srv.Serve(ctx); err != nil {
			ts.t.Logf("Server error: %v", err)
		}
	}()

	select {
	case <-ts.adapter.Ready():
	case <-time.After(ts.config.StartupTimeout):
		cancel()
		ts.wg.Wait()
		return fmt.Errorf("timeout waiting for server to start")
	}

	ts.started = true
	ts.t.Logf("Server started on %s with %s storage", ts.Address(), ts.config.Store)
	return nil
}

// Stop stops the server and waits for the storage backend to close.
func (ts *TestServer) Stop() error {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if !ts.started {
		return nil
	}
	ts.t.Helper()

	ts.cancel()

	done := make(chan struct{})
	go func() {
		ts.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		return fmt.Errorf("server stop timeout")
	}

	ts.started = false
	return nil
}

// Address returns host:port of the running server
func (ts *TestServer) Address() string {
	return net.JoinHostPort("127.0.0.1", strconv.Itoa(ts.adapter.Port()))
}

// NewClient returns a client for this server that saves downloads under a
// fresh temporary directory.
func (ts *TestServer) NewClient(t testing.TB) *client.Client {
	t.Helper()
	c, err := client.New(client.Config{
		Address:     ts.Address(),
		RetryDelay:  10 * time.Millisecond,
		DialTimeout: time.Second,
		IOTimeout:   10 * time.Second,
		DownloadDir: filepath.Join(t.TempDir(), "baixados"),
		Validator:   config.CreateValidator(&ts.cfg.Limits),
	})
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	return c
}

// StartTestServer creates, starts and registers cleanup for a server.
func StartTestServer(t testing.TB, cfg TestServerConfig) *TestServer {
	t.Helper()
	ts := NewTestServer(t, cfg)
	if err := ts.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	t.Cleanup(func() {
		if err := ts.Stop(); err != nil {
			t.Logf("Warning: %v", err)
		}
	})
	return ts
}
