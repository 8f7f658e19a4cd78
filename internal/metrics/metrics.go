package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Registry holds every collector of a run. A batch job has no scrape
// endpoint, so the registry is pushed to a Pushgateway instead.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

// ── Fetch metrics ──────────────────────────────────────────────────────

var (
	FetchAttemptsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "yield_snapshot",
		Subsystem: "fetch",
		Name:      "attempts_total",
		Help:      "Total number of fetch attempts per source and outcome.",
	}, []string{"source", "status"})

	FetchDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "yield_snapshot",
		Subsystem: "fetch",
		Name:      "duration_seconds",
		Help:      "Duration of a fetch including retries, in seconds.",
		Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60, 90},
	}, []string{"source"})
)

// ── Snapshot metrics ───────────────────────────────────────────────────

var (
	RecordsSkippedTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "yield_snapshot",
		Subsystem: "normalize",
		Name:      "records_skipped_total",
		Help:      "Raw pool records dropped during normalization, by reason.",
	}, []string{"reason"})

	RowsWritten = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "yield_snapshot",
		Subsystem: "snapshot",
		Name:      "rows",
		Help:      "Number of rows in the last written snapshot.",
	})

	LastSuccess = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "yield_snapshot",
		Subsystem: "snapshot",
		Name:      "last_success_timestamp",
		Help:      "Unix timestamp of the last successfully written snapshot.",
	})

	RunsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "yield_snapshot",
		Subsystem: "run",
		Name:      "total",
		Help:      "Collector runs by outcome.",
	}, []string{"status"})
)

// PushConfig addresses a Prometheus Pushgateway.
type PushConfig struct {
	URL      string
	Job      string
	User     string
	Password string
}

// Push sends the registry to the Pushgateway, replacing the job's metrics.
func Push(ctx context.Context, cfg PushConfig) error {
	p := push.New(cfg.URL, cfg.Job).Gatherer(Registry)
	if cfg.User != "" || cfg.Password != "" {
		p = p.BasicAuth(cfg.User, cfg.Password)
	}
	if err := p.PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
