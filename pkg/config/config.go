package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/marmos91/ftpplus/pkg/adapter/tcp"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. FTPPLUS_LOGGING_LEVEL.
const EnvPrefix = "FTPPLUS"

// Config represents the complete FTPPlus server configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (FTPPLUS_*)
//  2. Configuration file (YAML or TOML)
//  3. Default values
//
// Store Configuration Pattern:
// Each blob backend defines its own configuration type. The Storage section
// carries one option map per backend and only the map matching Type is
// decoded, by the factory.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging"`

	// Server contains server-wide settings
	Server ServerConfig `mapstructure:"server"`

	// Storage selects the blob backend and its options
	Storage StorageConfig `mapstructure:"storage"`

	// Limits bounds what clients may upload and download
	Limits LimitsConfig `mapstructure:"limits"`

	// Encryption configures the at-rest key
	Encryption EncryptionConfig `mapstructure:"encryption"`

	// Scanner selects the malware scanner
	Scanner ScannerConfig `mapstructure:"scanner"`

	// Adapters contains transport adapter configurations
	Adapters AdaptersConfig `mapstructure:"adapters"`

	// Metrics configures the Prometheus endpoint
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required"`
}

// ServerConfig contains server-wide settings.
type ServerConfig struct {
	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0"`
}

// StorageConfig specifies the blob backend.
type StorageConfig struct {
	// Type specifies which backend to use
	// Valid values: filesystem, memory, badger, bolt, s3
	Type string `mapstructure:"type" validate:"required,oneof=filesystem memory badger bolt s3"`

	// Filesystem options, used when Type = "filesystem" (see fs.Config)
	Filesystem map[string]any `mapstructure:"filesystem"`

	// Memory options, used when Type = "memory"
	Memory map[string]any `mapstructure:"memory"`

	// Badger options, used when Type = "badger" (see badger.Config)
	Badger map[string]any `mapstructure:"badger"`

	// Bolt options, used when Type = "bolt" (see bolt.Config)
	Bolt map[string]any `mapstructure:"bolt"`

	// S3 options, used when Type = "s3"
	S3 map[string]any `mapstructure:"s3"`
}

// LimitsConfig bounds uploads and bulk downloads.
type LimitsConfig struct {
	// MaxFileSize is the largest accepted upload in bytes
	MaxFileSize int64 `mapstructure:"max_file_size" validate:"gt=0"`

	// AllowedExtensions lists accepted file extensions, without the dot
	AllowedExtensions []string `mapstructure:"allowed_extensions" validate:"min=1,dive,required"`

	// MaxBulkFiles is the namespace size at which download_all is refused
	MaxBulkFiles int `mapstructure:"max_bulk_files" validate:"gt=0"`
}

// EncryptionConfig configures the at-rest encryption key.
type EncryptionConfig struct {
	// KeyFile persists the master key across restarts. When empty the key
	// is generated at start-up and lives only for the process lifetime:
	// files written by a previous run become unreadable.
	KeyFile string `mapstructure:"key_file"`
}

// ScannerConfig selects the malware scanner.
type ScannerConfig struct {
	// Type selects the scanner
	// Valid values: auto (platform command-line scanner), clamd, exec, none
	Type string `mapstructure:"type" validate:"required,oneof=auto clamd exec none"`

	// ClamdAddress is the clamd socket, e.g. tcp://127.0.0.1:3310 or
	// unix:///var/run/clamav/clamd.ctl. Required when Type = "clamd".
	ClamdAddress string `mapstructure:"clamd_address"`

	// Path is the scanner binary. Required when Type = "exec".
	Path string `mapstructure:"path"`

	// Args are passed before the payload path when Type = "exec".
	Args []string `mapstructure:"args"`

	// Timeout bounds one scan
	Timeout time.Duration `mapstructure:"timeout" validate:"min=0"`
}

// AdaptersConfig contains all transport adapter configurations.
type AdaptersConfig struct {
	// TCP uses the tcp.Config type directly to avoid duplication.
	TCP tcp.Config `mapstructure:"tcp"`
}

// MetricsConfig configures the Prometheus HTTP endpoint.
type MetricsConfig struct {
	// Enabled starts the /metrics server
	Enabled bool `mapstructure:"enabled"`

	// Port is the HTTP port of the metrics server
	Port int `mapstructure:"port" validate:"min=0,max=65535"`
}

// Load loads configuration from file, environment, and defaults.
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if err := readConfigFile(v, configPath); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Example: FTPPLUS_ADAPTERS_TCP_PORT=6000
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only resolves keys viper already knows about, so the
	// scalar keys are registered up front to make env-only overrides work.
	registerDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default location: $XDG_CONFIG_HOME/ftpplus/config.{yaml,toml}
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper, configPath string) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		// An explicit path that does not exist is treated like a missing
		// default file.
		if configPath != "" && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	return nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "ftpplus")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "ftpplus")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// ConfigExists checks if a config file exists at the default location.
func ConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}
