package snapshot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/web3-frozen/yield-snapshot/internal/pool"
)

// DefaultSource labels snapshots built from the DefiLlama Yields API.
const DefaultSource = "DefiLlama Yields"

const (
	tsLayout   = "2006-01-02T15:04:05-07:00"
	dirLayout  = "2006-01-02"
	fileLayout = "150405"
)

// Filters records the filter configuration a snapshot was built with.
// Chains is null when every chain was allowed.
type Filters struct {
	Chains []string `json:"chains"`
	TopN   int      `json:"top_n"`
}

// Snapshot is one archived capture of ranked pool rows.
type Snapshot struct {
	TS      string     `json:"ts"`
	Source  string     `json:"source"`
	Filters Filters    `json:"filters"`
	Rows    []pool.Row `json:"rows"`
}

// Writer stores snapshots as data/<YYYY-MM-DD>/<HHMMSS>.json.
type Writer struct {
	dir    string
	source string
	now    func() time.Time
}

func NewWriter(dir, source string) *Writer {
	return &Writer{dir: dir, source: source, now: time.Now}
}

// Write serialises rows with their filter metadata and returns the file path.
// A second write within the same second replaces the first.
func (w *Writer) Write(rows []pool.Row, f pool.Filter) (string, error) {
	ts := w.now().UTC()
	if rows == nil {
		rows = []pool.Row{}
	}
	snap := Snapshot{
		TS:     ts.Format(tsLayout),
		Source: w.source,
		Filters: Filters{
			Chains: f.SortedChains(),
			TopN:   f.TopN,
		},
		Rows: rows,
	}

	dir := filepath.Join(w.dir, ts.Format(dirLayout))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}

	path := filepath.Join(dir, ts.Format(fileLayout)+".json")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	return path, nil
}

// Read parses a snapshot file written by Writer.
func Read(path string) (*Snapshot, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", path, err)
	}
	return &snap, nil
}
