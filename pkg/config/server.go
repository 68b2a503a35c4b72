package config

import (
	"context"

	"github.com/marmos91/ftpplus/pkg/server"
)

// BuildServer wires storage, encryption, scanning, metrics and transport
// from cfg into a Server ready to Serve.
//
// On failure every resource opened so far is released.
func BuildServer(ctx context.Context, cfg *Config) (*server.Server, error) {
	blobs, err := CreateBlobStore(ctx, &cfg.Storage)
	if err != nil {
		return nil, err
	}

	sealer, err := CreateSealer(&cfg.Encryption)
	if err != nil {
		_ = blobs.Close()
		return nil, err
	}

	sc, err := CreateScanner(&cfg.Scanner)
	if err != nil {
		_ = blobs.Close()
		return nil, err
	}

	m := InitializeMetrics(cfg)

	rt, err := server.NewRuntime(server.RuntimeConfig{
		Blobs:     blobs,
		Sealer:    sealer,
		Validator: CreateValidator(&cfg.Limits),
		Scanner:   sc,
		Metrics:   m.ServerMetrics,
		Store:     StoreConfig(&cfg.Limits),
	})
	if err != nil {
		_ = blobs.Close()
		return nil, err
	}

	adapters, err := CreateAdapters(cfg, rt.Dispatcher, m.ServerMetrics)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}

	srv := server.New(rt, cfg.Server.ShutdownTimeout)
	for _, a := range adapters {
		if err := srv.AddAdapter(a); err != nil {
			_ = rt.Close()
			return nil, err
		}
	}
	if m.Server != nil {
		srv.SetMetricsServer(m.Server)
	}

	return srv, nil
}
