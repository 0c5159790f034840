// streamtest connects to the IQ Option websocket and prints candles to the console.
// Usage: go run ./cmd/streamtest --config configs/gatherer.example.yaml
//
// No database is needed; only the api, connection and candles sections of
// the config are read.
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

	"github.com/rickgao/iqoption-data/internal/config"
	"github.com/rickgao/iqoption-data/internal/connection"
	"github.com/rickgao/iqoption-data/internal/correlation"
	"github.com/rickgao/iqoption-data/internal/iqoption"
	"github.com/rickgao/iqoption-data/internal/model"
)

func main() {
	configPath := flag.String("config", "configs/gatherer.example.yaml", "path to config file")
	verbose := flag.Bool("verbose", false, "print full candle JSON")
	flag.Parse()

	// Setup logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	// Load config
	cfg, err := config.LoadWithDefaults(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.ValidateStream(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	header := http.Header{}
	header.Set("Origin", cfg.API.Origin)
	header.Set("User-Agent", cfg.API.UserAgent)

	transport := connection.NewWSTransport(connection.Config{
		URL:              cfg.API.WSURL,
		Header:           header,
		HandshakeTimeout: cfg.Connection.HandshakeTimeout,
		PingInterval:     cfg.Connection.PingInterval,
		PingTimeout:      cfg.Connection.PingTimeout,
		WriteTimeout:     cfg.Connection.WriteTimeout,
		ReadLimit:        cfg.Connection.ReadLimit,
	}, logger)

	client := correlation.New(transport, correlation.Config{
		RequestTimeout:         cfg.Connection.RequestTimeout,
		SubscriptionBufferSize: cfg.Connection.SubscriptionBuffer,
	}, correlation.WithLogger(logger))

	logger.Info("connecting", "url", cfg.API.WSURL)
	if err := client.SubscribeRaw(ctx); err != nil {
		logger.Error("failed to connect", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	if err := iqoption.WaitReady(ctx, client, cfg.API.ReadyEvent, cfg.API.ReadyTimeout); err != nil {
		logger.Error("session not ready", "error", err)
		os.Exit(1)
	}

	// Stats printer
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats := client.Stats()
				ts := transport.Stats()
				logger.Info("stats",
					"state", stats.State,
					"pending", stats.Pending,
					"subscriptions", stats.Subscriptions,
					"frames_in", ts.FramesIn,
					"frames_out", ts.FramesOut,
					"resolved", stats.Dispatcher.Resolved,
					"delivered", stats.Dispatcher.Delivered,
					"dropped", stats.Dispatcher.Dropped,
					"decode_errors", stats.Dispatcher.DecodeErrors,
				)
			}
		}
	}()

	// History
	reqs := make([]iqoption.CandlesRequest, len(cfg.Candles.Actives))
	for i, activeID := range cfg.Candles.Actives {
		reqs[i] = iqoption.CandlesRequest{ActiveID: activeID, Size: cfg.Candles.Size, Count: cfg.Candles.Count}
	}

	results, err := iqoption.FetchCandles(ctx, client, reqs, cfg.Candles.Concurrency)
	if err != nil {
		logger.Error("failed to fetch candles", "error", err)
		os.Exit(1)
	}
	for i, candles := range results {
		fmt.Printf("[HISTORY] active=%d candles=%d\n", reqs[i].ActiveID, len(candles))
		for _, c := range candles {
			printCandle("HISTORY", c, *verbose)
		}
	}

	if !cfg.Candles.Live {
		return
	}

	// Live
	for _, activeID := range cfg.Candles.Actives {
		stream, err := iqoption.SubscribeCandles(ctx, client, activeID, cfg.Candles.Size)
		if err != nil {
			logger.Error("failed to subscribe", "active_id", activeID, "error", err)
			os.Exit(1)
		}
		go printStream(ctx, stream, *verbose, logger)
	}

	logger.Info("streaming started - press Ctrl+C to stop")

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")
}

func printStream(ctx context.Context, stream *iqoption.CandleStream, verbose bool, logger *slog.Logger) {
	for {
		c, err := stream.Next(ctx)
		if err != nil {
			if errors.Is(err, correlation.ErrSubscriptionClosed) || ctx.Err() != nil {
				return
			}
			logger.Warn("bad candle update", "active_id", stream.ActiveID, "error", err)
			continue
		}
		printCandle("LIVE", c, verbose)
	}
}

func printCandle(tag string, c model.Candle, verbose bool) {
	if verbose {
		data, _ := json.MarshalIndent(c, "", "  ")
		fmt.Printf("[%s] %s\n", tag, data)
		return
	}
	fmt.Printf("[%s] active=%d size=%d from=%s open=%s close=%s min=%s max=%s vol=%s\n",
		tag, c.ActiveID, c.Size, time.UnixMicro(c.FromTS).UTC().Format(time.RFC3339),
		c.Open, c.Close, c.Min, c.Max, c.Volume)
}
