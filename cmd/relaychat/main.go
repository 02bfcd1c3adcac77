package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"RelayChat/internal/api"
	"RelayChat/internal/cache"
	"RelayChat/internal/chat"
	"RelayChat/internal/config"
	"RelayChat/internal/provider"
	"RelayChat/internal/session"
	"RelayChat/internal/telemetry"
)

func main() {
	var (
		configPath   string
		addr         string
		providerName string
		debug        bool
	)
	flag.StringVar(&configPath, "config", "", "Path to YAML config file")
	flag.StringVar(&addr, "addr", "", "Listen address (overrides config)")
	flag.StringVar(&providerName, "provider", "", "Initial provider (overrides config)")
	flag.BoolVar(&debug, "debug", false, "Enable debug logging")
	flag.Parse()

	if err := run(configPath, addr, providerName, debug); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, addr, providerName string, debug bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Addr = addr
	}
	if providerName != "" {
		cfg.DefaultProvider = providerName
	}
	if debug {
		cfg.Debug = true
	}

	logger, err := telemetry.InitLogger(cfg.Debug)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	ctx := context.Background()
	_, _, telemetryCleanup, err := telemetry.InitTelemetry(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer telemetryCleanup()

	var store session.Store
	switch cfg.StoreBacking {
	case config.StoreSQLite:
		sqliteStore, err := session.OpenSQLiteStore(cfg.StoreDSN, logger)
		if err != nil {
			return fmt.Errorf("failed to open session store: %w", err)
		}
		defer sqliteStore.Close()
		store = sqliteStore
	default:
		store = session.NewMemoryStore()
	}
	logger.Info("session store ready", "backing", cfg.StoreBacking)

	registry := provider.NewRegistry(logger)
	provider.RegisterDefaults(registry, cfg.Providers, logger)

	if !registry.SwitchActive(cfg.DefaultProvider) {
		// The server still comes up; chat calls report the missing
		// provider until a switch succeeds.
		logger.Warn("could not initialize default provider", "provider", cfg.DefaultProvider)
	}

	opts := chat.Options{ContextWindow: cfg.ContextWindow, Logger: logger}
	if cfg.CacheEnabled {
		opts.Cache = cache.New(time.Duration(cfg.CacheTTLSeconds) * time.Second)
	}
	orchestrator := chat.New(registry, store, opts)

	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      api.NewServer(orchestrator, registry, logger).Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute, // streamed completions can run long
	}

	shutdownCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", cfg.Addr, "provider", cfg.DefaultProvider)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-shutdownCtx.Done():
		logger.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown failed: %w", err)
		}
	}
	return nil
}
