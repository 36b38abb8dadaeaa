package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/zgpcy/aws-limits-exporter/internal/aws"
	"github.com/zgpcy/aws-limits-exporter/internal/collector"
	"github.com/zgpcy/aws-limits-exporter/internal/config"
	"github.com/zgpcy/aws-limits-exporter/internal/limits"
	"github.com/zgpcy/aws-limits-exporter/internal/logger"
	"github.com/zgpcy/aws-limits-exporter/internal/metrics"
	"github.com/zgpcy/aws-limits-exporter/internal/server"
	"github.com/zgpcy/aws-limits-exporter/internal/version"
)

const (
	// DefaultShutdownTimeout is the maximum time to wait for graceful shutdown
	DefaultShutdownTimeout = 30 * time.Second
)

var configPath = flag.String("config", "config.yaml", "Path to configuration file")

func main() {
	flag.Parse()

	// Load configuration first (need log level from config)
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logger
	logger := logger.New(cfg.LogLevel)
	logger.Info("AWS Limits Exporter starting",
		"version", version.Version,
		"config_path", *configPath)

	logger.Info("Configuration loaded successfully",
		"regions", cfg.Regions,
		"services", cfg.Services,
		"overrides", len(cfg.Overrides),
		"refresh_interval_seconds", cfg.RefreshInterval,
		"http_port", cfg.HTTPPort,
		"api_timeout_seconds", cfg.APITimeout)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Metrics registry shared by the collector and the exposition handler
	promReg := prometheus.NewRegistry()
	reg := metrics.NewRegistry(promReg)

	// Register Go runtime metrics (memory, goroutines, GC stats)
	if err := promReg.Register(prometheus.NewGoCollector()); err != nil {
		logger.Warn("Failed to register Go collector", "error", err)
	}

	// Register process metrics (CPU, memory, file descriptors)
	if err := promReg.Register(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{})); err != nil {
		logger.Warn("Failed to register process collector", "error", err)
	}

	// One AWS-backed checker per configured region
	factory := func(region string) (limits.Checker, error) {
		return aws.NewChecker(ctx, cfg, region, logger)
	}

	logger.Info("Creating region collector")
	coll, err := collector.New(cfg.Regions, factory, cfg.Overrides, reg, logger)
	if err != nil {
		logger.Error("Failed to create collector", "error", err)
		os.Exit(1)
	}
	logger.Info("Collector created", "regions", coll.RegionCount())

	// Start background polling
	logger.Info("Starting poll loop", "interval", cfg.GetRefreshInterval().String())
	coll.Start(ctx, cfg.GetRefreshInterval())

	// Create and start HTTP server
	logger.Info("Creating HTTP server", "port", cfg.HTTPPort)
	srv := server.NewServer(cfg, coll, promReg, logger)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- srv.Start()
	}()

	// Wait for interrupt signal or server error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("Server error", "error", err)
		os.Exit(1)

	case sig := <-shutdown:
		logger.Info("Received shutdown signal, starting graceful shutdown", "signal", sig.String())

		// Cancel the poll loop
		cancel()

		// Shutdown server with timeout
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Error during server shutdown", "error", err)
			os.Exit(1)
		}

		logger.Info("Server stopped gracefully")
	}
}
