package config

import (
	"strings"
	"time"

	"github.com/marmos91/ftpplus/pkg/adapter/tcp"
	"github.com/marmos91/ftpplus/pkg/scanner"
	"github.com/marmos91/ftpplus/pkg/store"
	"github.com/marmos91/ftpplus/pkg/validation"
	"github.com/spf13/viper"
)

// DefaultStoragePath is the filesystem backend root used when none is set.
const DefaultStoragePath = "FTPPLUS/Armazenamento"

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Default Strategy:
//   - Zero values (0, "", nil) are replaced with defaults
//   - Explicit values are preserved
//   - Backend-specific defaults are handled by the backends
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyStorageDefaults(&cfg.Storage)
	applyLimitsDefaults(&cfg.Limits)
	applyScannerDefaults(&cfg.Scanner)
	applyTCPDefaults(&cfg.Adapters.TCP)
	applyMetricsDefaults(&cfg.Metrics)
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

func applyStorageDefaults(cfg *StorageConfig) {
	if cfg.Type == "" {
		cfg.Type = "filesystem"
	}

	if cfg.Filesystem == nil {
		cfg.Filesystem = make(map[string]any)
	}
	if cfg.Memory == nil {
		cfg.Memory = make(map[string]any)
	}
	if cfg.Badger == nil {
		cfg.Badger = make(map[string]any)
	}
	if cfg.Bolt == nil {
		cfg.Bolt = make(map[string]any)
	}
	if cfg.S3 == nil {
		cfg.S3 = make(map[string]any)
	}

	if _, ok := cfg.Filesystem["path"]; !ok {
		cfg.Filesystem["path"] = DefaultStoragePath
	}
	if _, ok := cfg.Badger["db_path"]; !ok {
		cfg.Badger["db_path"] = "FTPPLUS/badger"
	}
	if _, ok := cfg.Bolt["db_path"]; !ok {
		cfg.Bolt["db_path"] = "FTPPLUS/ftpplus.db"
	}
}

func applyLimitsDefaults(cfg *LimitsConfig) {
	if cfg.MaxFileSize == 0 {
		cfg.MaxFileSize = validation.DefaultMaxFileSize
	}
	if len(cfg.AllowedExtensions) == 0 {
		cfg.AllowedExtensions = append([]string(nil), validation.DefaultAllowedExtensions...)
	}
	if cfg.MaxBulkFiles == 0 {
		cfg.MaxBulkFiles = store.DefaultMaxBulkFiles
	}
}

func applyScannerDefaults(cfg *ScannerConfig) {
	if cfg.Type == "" {
		cfg.Type = "auto"
	}
	cfg.Type = strings.ToLower(cfg.Type)

	if cfg.Timeout == 0 {
		cfg.Timeout = scanner.DefaultTimeout
	}
}

// applyTCPDefaults fills the TCP adapter defaults. Enabled is handled by
// registerDefaults so that an explicit false survives.
func applyTCPDefaults(cfg *tcp.Config) {
	if cfg.Host == "" {
		cfg.Host = "0.0.0.0"
	}
	if cfg.Port == 0 {
		cfg.Port = tcp.DefaultPort
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 30 * time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.MaxFrameSize == 0 {
		cfg.MaxFrameSize = tcp.DefaultMaxFrameSize
	}
	if cfg.MetricsLogInterval == 0 {
		cfg.MetricsLogInterval = 5 * time.Minute
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Port == 0 {
		cfg.Port = 9090
	}
}

// registerDefaults seeds viper with the scalar defaults. Besides filling
// gaps, this is what lets FTPPLUS_* variables override keys absent from the
// config file.
func registerDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "INFO")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("storage.type", "filesystem")
	v.SetDefault("limits.max_file_size", validation.DefaultMaxFileSize)
	v.SetDefault("limits.max_bulk_files", store.DefaultMaxBulkFiles)
	v.SetDefault("encryption.key_file", "")
	v.SetDefault("scanner.type", "auto")
	v.SetDefault("scanner.clamd_address", "")
	v.SetDefault("adapters.tcp.enabled", true)
	v.SetDefault("adapters.tcp.host", "0.0.0.0")
	v.SetDefault("adapters.tcp.port", tcp.DefaultPort)
	v.SetDefault("adapters.tcp.max_connections", 0)
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.port", 9090)
}

// GetDefaultConfig returns a Config with all defaults applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
func GetDefaultConfig() *Config {
	cfg := &Config{
		Adapters: AdaptersConfig{
			TCP: tcp.Config{Enabled: true},
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
