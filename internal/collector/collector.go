package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/web3-frozen/yield-snapshot/internal/metrics"
	"github.com/web3-frozen/yield-snapshot/internal/pool"
)

// PoolFetcher returns the raw pool records of one upstream source.
type PoolFetcher interface {
	Name() string
	FetchPools(ctx context.Context) ([]json.RawMessage, error)
}

// SnapshotWriter persists ranked rows and returns where they were written.
type SnapshotWriter interface {
	Write(rows []pool.Row, f pool.Filter) (string, error)
}

// Collector runs fetch, normalize and write once per call.
type Collector struct {
	fetcher PoolFetcher
	writer  SnapshotWriter
	filter  pool.Filter
	logger  *slog.Logger
}

func New(fetcher PoolFetcher, writer SnapshotWriter, filter pool.Filter, logger *slog.Logger) *Collector {
	return &Collector{
		fetcher: fetcher,
		writer:  writer,
		filter:  filter,
		logger:  logger,
	}
}

// Run fetches the pools, ranks them and writes one snapshot. It returns the
// snapshot path. Nothing is written when the fetch fails.
func (c *Collector) Run(ctx context.Context) (string, error) {
	path, err := c.run(ctx)
	if err != nil {
		metrics.RunsTotal.WithLabelValues("error").Inc()
		return "", err
	}
	metrics.RunsTotal.WithLabelValues("ok").Inc()
	metrics.LastSuccess.Set(float64(time.Now().Unix()))
	return path, nil
}

func (c *Collector) run(ctx context.Context) (string, error) {
	start := time.Now()
	raws, err := c.fetcher.FetchPools(ctx)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", c.fetcher.Name(), err)
	}
	c.logger.Info("fetched pools", "source", c.fetcher.Name(), "count", len(raws), "duration", time.Since(start).String())

	res := pool.Normalize(raws, c.filter)
	counts := res.SkipCounts()
	for reason, n := range counts {
		metrics.RecordsSkippedTotal.WithLabelValues(string(reason)).Add(float64(n))
	}
	for _, s := range res.Skipped {
		if s.Reason == pool.SkipMalformed {
			c.logger.Debug("skipped malformed pool", "index", s.Index, "detail", s.Detail)
		}
	}
	c.logger.Info("normalized pools",
		"kept", len(res.Rows),
		"skipped_chain", counts[pool.SkipChainNotAllowed],
		"skipped_malformed", counts[pool.SkipMalformed],
		"top_n", c.filter.TopN,
	)

	path, err := c.writer.Write(res.Rows, c.filter)
	if err != nil {
		return "", err
	}
	metrics.RowsWritten.Set(float64(len(res.Rows)))
	c.logger.Info("snapshot written", "path", path, "rows", len(res.Rows))
	return path, nil
}
