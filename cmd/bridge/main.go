// Package main is the entry point for the OPC UA bridge. It loads the
// process and device configuration, wires the Connection Manager,
// Browser, Request Engine and supervisor transport together, and
// manages the application lifecycle.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/orangescada/opcua/internal/browse"
	"github.com/orangescada/opcua/internal/config"
	"github.com/orangescada/opcua/internal/configview"
	"github.com/orangescada/opcua/internal/engine"
	"github.com/orangescada/opcua/internal/health"
	"github.com/orangescada/opcua/internal/metrics"
	opcuaconn "github.com/orangescada/opcua/internal/opcua"
	"github.com/orangescada/opcua/internal/supervisor"
	"github.com/orangescada/opcua/pkg/logging"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	serviceName    = "opcua-bridge"
	serviceVersion = "1.0.0"
)

func main() {
	configPath := flag.String("config", "", "path to the process configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}

	logger := logging.New(serviceName, serviceVersion, cfg.Logging.Level, cfg.Logging.Format)
	logger.Info().Msg("starting OPC UA bridge")

	store, err := configview.Load(cfg.Device.Path)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load device configuration")
	}
	logger.Info().Int("devices", len(store.AllDeviceUIDs())).Msg("device configuration loaded")
	store.SetSaveHandler(func() {
		if err := store.Save(); err != nil {
			logger.Error().Err(err).Msg("failed to persist device configuration")
		}
	})

	metricsRegistry := metrics.NewRegistry()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	manager := opcuaconn.NewManager(logger, metricsRegistry)

	browser := browse.NewBrowser(manager, store, logger, func(f browse.ProgressFrame) {
		if f.Done {
			metricsRegistry.IncBrowses()
		}
	})

	supervisorServer := supervisor.NewServer(supervisor.Config{
		ListenAddress: cfg.Supervisor.ListenAddress,
		TLSEnabled:    cfg.Supervisor.TLSEnabled,
		TLSCertFile:   cfg.Supervisor.TLSCertFile,
		TLSKeyFile:    cfg.Supervisor.TLSKeyFile,
		BatchWindow:   cfg.Supervisor.BatchWindow,
	}, nil, logger)

	eng := engine.New(store, manager, browser, supervisorServer.BatchSink(), logger)
	supervisorServer.SetEngine(eng)

	go func() {
		if err := supervisorServer.ListenAndServe(ctx); err != nil {
			logger.Fatal().Err(err).Msg("supervisor listener failed")
		}
	}()

	healthChecker := health.NewChecker(manager, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", healthChecker.HealthHandler)
	mux.HandleFunc("/health/live", healthChecker.LiveHandler)
	mux.HandleFunc("/health/ready", healthChecker.ReadyHandler)
	mux.Handle("/metrics", promhttp.Handler())

	httpServer := &http.Server{
		Addr:         cfg.Metrics.ListenAddress,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("address", cfg.Metrics.ListenAddress).Msg("starting metrics/health server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("metrics/health server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutdown signal received, initiating graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("error shutting down metrics/health server")
	}

	logger.Info().Msg("OPC UA bridge shutdown complete")
}
