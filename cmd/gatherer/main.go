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

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/iqoption-data/internal/config"
	"github.com/rickgao/iqoption-data/internal/connection"
	"github.com/rickgao/iqoption-data/internal/correlation"
	"github.com/rickgao/iqoption-data/internal/database"
	"github.com/rickgao/iqoption-data/internal/iqoption"
	"github.com/rickgao/iqoption-data/internal/metrics"
	"github.com/rickgao/iqoption-data/internal/model"
	"github.com/rickgao/iqoption-data/internal/queue"
	"github.com/rickgao/iqoption-data/internal/version"
	"github.com/rickgao/iqoption-data/internal/writer"
)

func main() {
	configPath := flag.String("config", "configs/gatherer.example.yaml", "path to config file")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting gatherer",
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
		"ws_url", cfg.API.WSURL,
		"actives", cfg.Candles.Actives,
		"size", cfg.Candles.Size,
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

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("gatherer failed", "error", err)
		os.Exit(1)
	}
	logger.Info("gatherer stopped")
}

func run(ctx context.Context, cfg *config.GathererConfig, logger *slog.Logger) error {
	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	engineMetrics, err := metrics.NewEngine(reg)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	// Connect to database
	logger.Info("connecting to database",
		"host", cfg.Database.Timescale.Host,
		"port", cfg.Database.Timescale.Port,
		"database", cfg.Database.Timescale.Name,
	)

	pool, err := database.Connect(ctx, cfg.Database.Timescale)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	if err := database.EnsureSchema(ctx, pool); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	logger.Info("database connected")

	// Writer
	candles := queue.NewGrowableBuffer[model.Candle](cfg.Writers.BufferSize)
	candleWriter := writer.NewCandleWriter(writer.WriterConfig{
		BatchSize:     cfg.Writers.BatchSize,
		FlushInterval: cfg.Writers.FlushInterval,
	}, candles, pool, logger)

	if err := metrics.RegisterWriter(reg, "candles", func() metrics.WriterCounts {
		s := candleWriter.Stats()
		return metrics.WriterCounts{Inserts: s.Inserts, Updates: s.Updates, Errors: s.Errors, Flushes: s.Flushes}
	}); err != nil {
		return fmt.Errorf("register writer metrics: %w", err)
	}

	if err := candleWriter.Start(ctx); err != nil {
		return fmt.Errorf("start writer: %w", err)
	}
	defer func() {
		candles.Close()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := candleWriter.Stop(shutdownCtx); err != nil {
			logger.Error("final flush failed", "error", err)
		}
	}()

	// Websocket client
	client := correlation.New(
		connection.NewWSTransport(transportConfig(cfg), logger),
		correlation.Config{
			RequestTimeout:         cfg.Connection.RequestTimeout,
			SubscriptionBufferSize: cfg.Connection.SubscriptionBuffer,
		},
		correlation.WithLogger(logger),
		correlation.WithMetrics(engineMetrics),
	)

	// Start health server early so we can monitor the backfill
	healthServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler: createHealthHandler(pool, client, candleWriter, reg, cfg.Metrics.Path),
	}

	go func() {
		logger.Info("starting health server", "port", cfg.Metrics.Port)
		if err := healthServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("health server error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		healthServer.Shutdown(shutdownCtx)
	}()

	if err := client.SubscribeRaw(ctx); err != nil {
		return err
	}
	defer client.Close()

	if err := iqoption.WaitReady(ctx, client, cfg.API.ReadyEvent, cfg.API.ReadyTimeout); err != nil {
		return err
	}

	logger.Info("gatherer running",
		"instance_id", cfg.Instance.ID,
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Metrics.Port),
	)

	g, gctx := errgroup.WithContext(ctx)

	// Live streams are opened before the backfill so no candle falls between them.
	if cfg.Candles.Live {
		for _, activeID := range cfg.Candles.Actives {
			stream, err := iqoption.SubscribeCandles(gctx, client, activeID, cfg.Candles.Size)
			if err != nil {
				return err
			}
			g.Go(func() error {
				return pumpCandles(gctx, stream, candles, logger)
			})
		}
	}

	g.Go(func() error {
		return backfill(gctx, client, cfg.Candles, candles, logger)
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		err = nil
	}

	logger.Info("shutting down...", "client", client.Stats().Dispatcher)
	return err
}

// backfill fetches history for every configured active into out.
func backfill(ctx context.Context, client iqoption.Client, cfg config.CandlesConfig, out *queue.GrowableBuffer[model.Candle], logger *slog.Logger) error {
	reqs := make([]iqoption.CandlesRequest, len(cfg.Actives))
	for i, activeID := range cfg.Actives {
		reqs[i] = iqoption.CandlesRequest{ActiveID: activeID, Size: cfg.Size, Count: cfg.Count}
	}

	start := time.Now()
	results, err := iqoption.FetchCandles(ctx, client, reqs, cfg.Concurrency)
	if err != nil {
		return fmt.Errorf("backfill: %w", err)
	}

	total := 0
	for i, batch := range results {
		if len(batch) == 0 {
			logger.Warn("no history", "active_id", reqs[i].ActiveID)
		}
		for _, c := range batch {
			out.Send(c)
		}
		total += len(batch)
	}

	logger.Info("backfill complete",
		"actives", len(reqs),
		"candles", total,
		"duration", time.Since(start),
	)
	return nil
}

// pumpCandles forwards live candles from stream into out until ctx ends or
// the connection is lost.
func pumpCandles(ctx context.Context, stream *iqoption.CandleStream, out *queue.GrowableBuffer[model.Candle], logger *slog.Logger) error {
	for {
		c, err := stream.Next(ctx)
		switch {
		case err == nil:
			out.Send(c)
		case errors.Is(err, correlation.ErrSubscriptionClosed):
			return fmt.Errorf("candle stream active %d: %w", stream.ActiveID, err)
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			logger.Warn("bad candle update", "active_id", stream.ActiveID, "error", err)
		}
	}
}

func transportConfig(cfg *config.GathererConfig) connection.Config {
	header := http.Header{}
	header.Set("Origin", cfg.API.Origin)
	header.Set("User-Agent", cfg.API.UserAgent)

	return connection.Config{
		URL:              cfg.API.WSURL,
		Header:           header,
		HandshakeTimeout: cfg.Connection.HandshakeTimeout,
		PingInterval:     cfg.Connection.PingInterval,
		PingTimeout:      cfg.Connection.PingTimeout,
		WriteTimeout:     cfg.Connection.WriteTimeout,
		ReadLimit:        cfg.Connection.ReadLimit,
	}
}

// createHealthHandler creates the HTTP handler for health checks and metrics.
func createHealthHandler(pool *pgxpool.Pool, client *correlation.Client, w *writer.CandleWriter, reg *prometheus.Registry, metricsPath string) http.Handler {
	mux := http.NewServeMux()

	mux.Handle(metricsPath, metrics.Handler(reg))

	mux.HandleFunc("/health", func(rw http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string         `json:"status"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]any),
		}

		// Check database
		if err := pool.Ping(ctx); err != nil {
			health.Status = "unhealthy"
			health.Components["timescaledb"] = map[string]string{
				"status": "disconnected",
				"error":  err.Error(),
			}
		} else {
			health.Components["timescaledb"] = "connected"
		}

		// Check websocket client
		stats := client.Stats()
		health.Components["websocket"] = map[string]any{
			"state":         stats.State.String(),
			"pending":       stats.Pending,
			"waiting":       stats.Waiting,
			"subscriptions": stats.Subscriptions,
		}
		if stats.State != correlation.StateConnected {
			health.Status = "degraded"
		}

		health.Components["candle_writer"] = w.Stats()

		// Set response
		rw.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			rw.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(rw).Encode(health)
	})

	return mux
}
