package server

import (
	"errors"

	"github.com/marmos91/ftpplus/pkg/dispatch"
	"github.com/marmos91/ftpplus/pkg/metrics"
	"github.com/marmos91/ftpplus/pkg/scanner"
	"github.com/marmos91/ftpplus/pkg/seal"
	"github.com/marmos91/ftpplus/pkg/store"
	"github.com/marmos91/ftpplus/pkg/validation"
)

// Runtime bundles the process-wide state built once at start-up: the
// storage engine with its key, and the dispatcher every adapter shares.
type Runtime struct {
	Engine     *store.Engine
	Dispatcher *dispatch.Dispatcher
	Metrics    metrics.ServerMetrics
}

// RuntimeConfig groups the dependencies of a Runtime.
type RuntimeConfig struct {
	Blobs     store.BlobStore
	Sealer    *seal.Sealer
	Validator *validation.Validator
	Scanner   scanner.Scanner
	Metrics   metrics.ServerMetrics
	Store     store.Config
}

// NewRuntime wires the storage engine and dispatcher.
func NewRuntime(cfg RuntimeConfig) (*Runtime, error) {
	if cfg.Blobs == nil {
		return nil, errors.New("runtime: blob store is required")
	}
	if cfg.Sealer == nil {
		return nil, errors.New("runtime: sealer is required")
	}
	if cfg.Validator == nil {
		cfg.Validator = validation.New(0, nil)
	}

	m := metrics.OrNoop(cfg.Metrics)
	engine := store.NewEngine(cfg.Blobs, cfg.Sealer, cfg.Store)

	return &Runtime{
		Engine:     engine,
		Dispatcher: dispatch.New(engine, cfg.Validator, cfg.Scanner, m),
		Metrics:    m,
	}, nil
}

// Close releases the storage backend.
func (r *Runtime) Close() error {
	return r.Engine.Close()
}
