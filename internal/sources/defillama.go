package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/web3-frozen/yield-snapshot/internal/metrics"
)

const (
	yieldsAPI      = "https://yields.llama.fi/pools"
	requestTimeout = 25 * time.Second
)

// ErrUnexpectedShape means the response was neither {"data": [...]} nor a
// bare array. It is never retried.
var ErrUnexpectedShape = errors.New("unexpected API response shape")

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("defillama API status: %d", e.StatusCode)
}

// DefiLlama fetches the pool list from the DefiLlama Yields API.
type DefiLlama struct {
	client  *http.Client
	baseURL string
	retry   RetryPolicy
	logger  *slog.Logger
}

// Option customises a DefiLlama client.
type Option func(*DefiLlama)

// WithURL overrides the pools endpoint.
func WithURL(url string) Option {
	return func(d *DefiLlama) { d.baseURL = url }
}

// WithTimeout sets the per-attempt request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(d *DefiLlama) { d.client = &http.Client{Timeout: timeout} }
}

// WithHTTPClient replaces the HTTP client, e.g. with an httptest client.
func WithHTTPClient(c *http.Client) Option {
	return func(d *DefiLlama) { d.client = c }
}

// WithRetryPolicy replaces DefaultRetryPolicy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(d *DefiLlama) { d.retry = p }
}

func NewDefiLlama(logger *slog.Logger, opts ...Option) *DefiLlama {
	d := &DefiLlama{
		client:  &http.Client{Timeout: requestTimeout},
		baseURL: yieldsAPI,
		retry:   DefaultRetryPolicy(),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *DefiLlama) Name() string { return "defillama" }

// FetchPools returns the raw pool records. Transport errors and non-2xx
// responses are retried according to the retry policy; a malformed body
// fails immediately with ErrUnexpectedShape.
func (d *DefiLlama) FetchPools(ctx context.Context) ([]json.RawMessage, error) {
	start := time.Now()
	defer func() {
		metrics.FetchDuration.WithLabelValues(d.Name()).Observe(time.Since(start).Seconds())
	}()

	attempts := 0
	var pools []json.RawMessage
	op := func() error {
		attempts++
		var err error
		pools, err = d.fetchOnce(ctx)
		switch {
		case err == nil:
			metrics.FetchAttemptsTotal.WithLabelValues(d.Name(), "ok").Inc()
			return nil
		case errors.Is(err, ErrUnexpectedShape):
			metrics.FetchAttemptsTotal.WithLabelValues(d.Name(), "bad_shape").Inc()
			return backoff.Permanent(err)
		default:
			metrics.FetchAttemptsTotal.WithLabelValues(d.Name(), "error").Inc()
			return err
		}
	}
	notify := func(err error, wait time.Duration) {
		d.logger.Warn("defillama fetch failed, retrying",
			"attempt", attempts, "max_attempts", d.retry.MaxAttempts, "backoff", wait.String(), "error", err)
	}

	bo := backoff.WithContext(&policyBackOff{policy: d.retry}, ctx)
	if err := backoff.RetryNotify(op, bo, notify); err != nil {
		if errors.Is(err, ErrUnexpectedShape) {
			return nil, err
		}
		return nil, fmt.Errorf("fetch pools failed after %d attempts: %w", attempts, err)
	}
	return pools, nil
}

func (d *DefiLlama) fetchOnce(ctx context.Context) ([]json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("build request: %w", err))
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("defillama API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read defillama body: %w", err)
	}
	return decodePools(body)
}

// decodePools accepts {"data": [...]} or a bare array.
func decodePools(body []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrUnexpectedShape)
	}

	switch trimmed[0] {
	case '[':
		var pools []json.RawMessage
		if err := json.Unmarshal(trimmed, &pools); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnexpectedShape, err)
		}
		return pools, nil
	case '{':
		var envelope struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(trimmed, &envelope); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnexpectedShape, err)
		}
		data := bytes.TrimSpace(envelope.Data)
		if len(data) == 0 || data[0] != '[' {
			return nil, fmt.Errorf("%w: missing data array", ErrUnexpectedShape)
		}
		var pools []json.RawMessage
		if err := json.Unmarshal(data, &pools); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnexpectedShape, err)
		}
		return pools, nil
	default:
		return nil, fmt.Errorf("%w: top-level %q", ErrUnexpectedShape, trimmed[0])
	}
}
