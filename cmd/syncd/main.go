package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/barlive/barsync/internal/api"
	"github.com/barlive/barsync/internal/config"
	"github.com/barlive/barsync/internal/connection"
	"github.com/barlive/barsync/internal/database"
	"github.com/barlive/barsync/internal/events"
	"github.com/barlive/barsync/internal/fallback"
	"github.com/barlive/barsync/internal/grouping"
	"github.com/barlive/barsync/internal/metrics"
	"github.com/barlive/barsync/internal/store"
	"github.com/barlive/barsync/internal/version"
	"github.com/barlive/barsync/internal/writer"
)

func main() {
	configPath := flag.String("config", "configs/syncd.local.yaml", "path to config file")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting syncd",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"api_url", cfg.API.BaseURL,
		"push_url", cfg.Push.URL,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Core wiring
	promReg := prometheus.NewRegistry()
	m := metrics.New(promReg)
	registry := events.NewRegistry(logger)
	st := store.New(logger)

	apiClient := api.NewClient(
		cfg.API.BaseURL,
		cfg.API.Token,
		api.WithLogger(logger),
		api.WithTimeout(cfg.API.Timeout),
		api.WithRetries(cfg.API.MaxRetries, time.Second),
	)

	manager := connection.NewManager(pushClientConfig(cfg.Push), registry, logger)

	// Price history needs a database; everything else runs without one.
	var priceWriter *writer.PriceLogWriter
	if cfg.PriceLog.Enabled {
		logger.Info("connecting to database",
			"host", cfg.Database.Host,
			"port", cfg.Database.Port,
			"database", cfg.Database.Name,
		)
		pool, err := database.Connect(ctx, cfg.Database)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		priceWriter = writer.NewPriceLogWriter(writer.WriterConfig{
			BatchSize:     cfg.PriceLog.BatchSize,
			FlushInterval: cfg.PriceLog.FlushInterval,
		}, registry, pool, logger)

		if err := priceWriter.Start(ctx); err != nil {
			logger.Error("failed to start price log writer", "error", err)
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			priceWriter.Stop(shutdownCtx)
		}()
	}

	scheduler := fallback.New(fallback.Config{
		PushURL:       cfg.Push.URL,
		Branches:      cfg.Sync.Branches,
		ProbeInterval: cfg.Sync.ProbeInterval,
		PollInterval:  cfg.Sync.PollInterval,
		FetchTimeout:  cfg.Sync.FetchTimeout,
	}, apiClient, manager, registry, st, m, logger)

	// Health and metrics server
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler: createHTTPHandler(cfg, manager, st, promReg),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting health server", "port", cfg.Metrics.Port)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	// Start the sync session
	if err := scheduler.Start(ctx); err != nil {
		if !errors.Is(err, fallback.ErrDegraded) {
			logger.Error("failed to start sync session", "error", err)
			os.Exit(1)
		}
		logger.Warn("running degraded until the push channel recovers", "error", err)
	}

	logger.Info("syncd running",
		"instance_id", cfg.Instance.ID,
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Metrics.Port),
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := scheduler.Stop(shutdownCtx); err != nil {
		logger.Warn("sync session shutdown incomplete", "error", err)
	}

	if err := g.Wait(); err != nil {
		logger.Warn("http server shutdown", "error", err)
	}

	logger.Info("syncd stopped")
}

// pushClientConfig maps the YAML push section onto the transport config.
func pushClientConfig(p config.PushConfig) connection.ClientConfig {
	return connection.ClientConfig{
		URL:                p.URL,
		Token:              p.Token,
		HandshakeTimeout:   p.HandshakeTimeout,
		PingInterval:       p.PingInterval,
		PongTimeout:        p.PongTimeout,
		WriteTimeout:       p.WriteTimeout,
		ReconnectBaseDelay: p.ReconnectBaseDelay,
		ReconnectMaxDelay:  p.ReconnectMaxDelay,
		BufferSize:         p.BufferSize,
	}
}

// createHTTPHandler serves /health, a small debug view, and the metrics path.
func createHTTPHandler(cfg *config.SyncdConfig, manager *connection.Manager, st *store.Store, promReg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		health := struct {
			Status     string         `json:"status"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]any),
		}

		if manager.IsLive() {
			health.Components["push_channel"] = "live"
		} else {
			health.Status = "degraded"
			health.Components["push_channel"] = map[string]string{
				"status": "down",
				"state":  manager.State().String(),
			}
		}
		health.Components["snapshot"] = map[string]any{
			"orders": st.Len(),
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(health)
	})

	mux.HandleFunc("/debug/groups", func(w http.ResponseWriter, r *http.Request) {
		window := cfg.Grouping.SessionWindow
		groups := grouping.GroupWithin(st.Orders(), window)

		// Limit to first 100 for debugging
		limit := 100
		showing := groups
		if len(showing) > limit {
			showing = showing[:limit]
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"count":   len(groups),
			"showing": len(showing),
			"groups":  showing,
		})
	})

	mux.Handle(cfg.Metrics.Path, promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))

	return mux
}
