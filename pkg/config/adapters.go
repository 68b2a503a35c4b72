package config

import (
	"fmt"

	"github.com/marmos91/ftpplus/pkg/adapter"
	"github.com/marmos91/ftpplus/pkg/adapter/tcp"
	"github.com/marmos91/ftpplus/pkg/metrics"
)

// CreateAdapters creates all enabled transport adapters.
//
// Parameters:
//   - cfg: The complete configuration
//   - handler: The frame handler every adapter serves (the dispatcher)
//   - m: Optional metrics collector (nil = no metrics)
func CreateAdapters(cfg *Config, handler adapter.FrameHandler, m metrics.ServerMetrics) ([]adapter.Adapter, error) {
	var adapters []adapter.Adapter

	if cfg.Adapters.TCP.Enabled {
		a, err := tcp.New(cfg.Adapters.TCP, handler, m)
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, a)
	}

	if len(adapters) == 0 {
		return nil, fmt.Errorf("no adapters enabled in configuration")
	}

	return adapters, nil
}
