package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/web3-frozen/yield-snapshot/internal/collector"
	"github.com/web3-frozen/yield-snapshot/internal/config"
	"github.com/web3-frozen/yield-snapshot/internal/metrics"
	"github.com/web3-frozen/yield-snapshot/internal/pool"
	"github.com/web3-frozen/yield-snapshot/internal/snapshot"
	"github.com/web3-frozen/yield-snapshot/internal/sources"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.Load()
	// stdout carries only the snapshot path.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fetcher := sources.NewDefiLlama(logger,
		sources.WithURL(cfg.YieldsURL),
		sources.WithTimeout(cfg.FetchTimeout),
		sources.WithRetryPolicy(sources.RetryPolicy{
			MaxAttempts: cfg.MaxAttempts,
			Backoff:     sources.LinearBackoff(cfg.BackoffStep),
		}),
	)
	writer := snapshot.NewWriter(cfg.DataDir, snapshot.DefaultSource)
	filter := pool.Filter{Chains: cfg.Chains, TopN: cfg.TopN}

	c := collector.New(fetcher, writer, filter, logger)
	path, err := c.Run(ctx)
	pushMetrics(cfg, logger)
	if err != nil {
		logger.Error("snapshot failed", "error", err)
		return 1
	}

	fmt.Println(path)
	return 0
}

func pushMetrics(cfg config.Config, logger *slog.Logger) {
	if cfg.PushgatewayURL == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := metrics.Push(ctx, metrics.PushConfig{
		URL:      cfg.PushgatewayURL,
		Job:      cfg.PushgatewayJob,
		User:     cfg.PushgatewayUser,
		Password: cfg.PushgatewayPass,
	})
	if err != nil {
		logger.Warn("metrics push failed", "error", err)
	}
}
