package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/marmos91/ftpplus/internal/logger"
	"github.com/marmos91/ftpplus/pkg/config"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: $XDG_CONFIG_HOME/ftpplus/config.yaml)")
	port := flag.Int("port", 0, "Override adapters.tcp.port")
	logLevel := flag.String("log-level", "", "Override logging.level (DEBUG, INFO, WARN, ERROR)")
	storagePath := flag.String("storage-path", "", "Override storage.filesystem.path")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if *port != 0 {
		cfg.Adapters.TCP.Port = *port
	}
	if *logLevel != "" {
		cfg.Logging.Level = strings.ToUpper(*logLevel)
	}
	if *storagePath != "" {
		cfg.Storage.Type = "filesystem"
		cfg.Storage.Filesystem = map[string]any{"path": *storagePath}
	}
	if err := config.Validate(cfg); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger.SetLevel(cfg.Logging.Level)
	logger.SetFormat(cfg.Logging.Format)
	if err := logger.SetOutput(cfg.Logging.Output); err != nil {
		log.Fatalf("Failed to open log output: %v", err)
	}

	fmt.Println("FTPPlus - Encrypted File Storage Server")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv, err := config.BuildServer(ctx, cfg)
	if err != nil {
		logger.Error("Startup failed: %v", err)
		os.Exit(1)
	}

	logger.Info("Server configuration:")
	logger.Info("  Listen: %s:%d", cfg.Adapters.TCP.Host, cfg.Adapters.TCP.Port)
	logger.Info("  Storage: %s", cfg.Storage.Type)
	logger.Info("  Max file size: %s", humanize.IBytes(uint64(cfg.Limits.MaxFileSize)))
	logger.Info("  Allowed extensions: %s", strings.Join(cfg.Limits.AllowedExtensions, ", "))
	logger.Info("  Scanner: %s", cfg.Scanner.Type)
	if cfg.Adapters.TCP.MaxConnections > 0 {
		logger.Info("  Max connections: %d", cfg.Adapters.TCP.MaxConnections)
	} else {
		logger.Info("  Max connections: unlimited")
	}
	if cfg.Metrics.Enabled {
		logger.Info("  Metrics: http://0.0.0.0:%d/metrics", cfg.Metrics.Port)
	}

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- srv.Serve(ctx)
	}()

	logger.Info("Server is running. Press Ctrl+C to stop.")

	if err := <-serverDone; err != nil {
		logger.Error("Server error: %v", err)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}
