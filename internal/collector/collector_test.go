package collector

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/web3-frozen/yield-snapshot/internal/pool"
	"github.com/web3-frozen/yield-snapshot/internal/snapshot"
	"github.com/web3-frozen/yield-snapshot/internal/sources"
)

type stubFetcher struct {
	raws []json.RawMessage
	err  error
}

func (s stubFetcher) Name() string { return "stub" }

func (s stubFetcher) FetchPools(context.Context) ([]json.RawMessage, error) {
	return s.raws, s.err
}

func countFiles(t *testing.T, dir string) int {
	t.Helper()
	n := 0
	err := filepath.WalkDir(dir, func(_ string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			n++
		}
		return nil
	})
	require.NoError(t, err)
	return n
}

func TestRunWritesSnapshot(t *testing.T) {
	dir := t.TempDir()
	raws := []json.RawMessage{
		json.RawMessage(`{"chain":"Ethereum","tvlUsd":100,"pool":"eth","project":"lido"}`),
		json.RawMessage(`{"chain":"Solana","tvlUsd":999,"pool":"sol"}`),
		json.RawMessage(`{"chain":"Base","tvlUsd":500,"pool":"base"}`),
		json.RawMessage(`"garbage"`),
	}
	f := pool.Filter{Chains: []string{"Ethereum", "Base"}, TopN: 50}
	c := New(stubFetcher{raws: raws}, snapshot.NewWriter(dir, snapshot.DefaultSource), f, slog.Default())

	path, err := c.Run(context.Background())
	require.NoError(t, err)

	snap, err := snapshot.Read(path)
	require.NoError(t, err)
	require.Len(t, snap.Rows, 2)
	assert.Equal(t, "base", *snap.Rows[0].Pool)
	assert.Equal(t, "eth", *snap.Rows[1].Pool)
	assert.Equal(t, []string{"Base", "Ethereum"}, snap.Filters.Chains)
	assert.Equal(t, 50, snap.Filters.TopN)
}

func TestRunFetchErrorWritesNothing(t *testing.T) {
	dir := t.TempDir()
	boom := errors.New("boom")
	c := New(stubFetcher{err: boom}, snapshot.NewWriter(dir, snapshot.DefaultSource), pool.Filter{TopN: 50}, slog.Default())

	_, err := c.Run(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Zero(t, countFiles(t, dir))
}

func TestRunAgainstFailingAPI(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	dir := t.TempDir()
	fetcher := sources.NewDefiLlama(slog.Default(),
		sources.WithHTTPClient(srv.Client()),
		sources.WithURL(srv.URL),
		sources.WithRetryPolicy(sources.RetryPolicy{MaxAttempts: 3, Backoff: sources.NoBackoff}),
	)
	c := New(fetcher, snapshot.NewWriter(dir, snapshot.DefaultSource), pool.Filter{TopN: 50}, slog.Default())

	_, err := c.Run(context.Background())
	require.Error(t, err)
	assert.EqualValues(t, 3, hits.Load())
	assert.Zero(t, countFiles(t, dir))
}

func TestRunBareArrayMatchesEnvelope(t *testing.T) {
	pools := `[{"chain":"Ethereum","tvlUsd":1,"pool":"a"},{"chain":"Arbitrum","tvlUsd":2,"pool":"b"}]`
	bodies := []string{pools, `{"status":"success","data":` + pools + `}`}

	var results [][]pool.Row
	for _, body := range bodies {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(body))
		}))
		fetcher := sources.NewDefiLlama(slog.Default(), sources.WithHTTPClient(srv.Client()), sources.WithURL(srv.URL))
		c := New(fetcher, snapshot.NewWriter(t.TempDir(), snapshot.DefaultSource),
			pool.Filter{Chains: []string{"Ethereum", "Arbitrum"}, TopN: 50}, slog.Default())

		path, err := c.Run(context.Background())
		srv.Close()
		require.NoError(t, err)

		snap, err := snapshot.Read(path)
		require.NoError(t, err)
		results = append(results, snap.Rows)
	}

	require.Len(t, results[0], 2)
	assert.Equal(t, results[0], results[1])
}

type failingWriter struct{}

func (failingWriter) Write([]pool.Row, pool.Filter) (string, error) {
	return "", errors.New("disk full")
}

func TestRunWriteError(t *testing.T) {
	raws := []json.RawMessage{json.RawMessage(`{"chain":"Ethereum","tvlUsd":1}`)}
	c := New(stubFetcher{raws: raws}, failingWriter{}, pool.Filter{TopN: 50}, slog.Default())

	_, err := c.Run(context.Background())
	require.EqualError(t, err, "disk full")
}
