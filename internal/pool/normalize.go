package pool

import (
	"cmp"
	"encoding/json"
	"slices"
)

// Filter selects and caps the pools kept in a snapshot.
type Filter struct {
	// Chains is the allow-list. Empty keeps every chain.
	Chains []string
	// TopN caps the number of rows. Zero or negative disables the cap.
	TopN int
}

// SortedChains returns the allow-list sorted and deduplicated, or nil when empty.
func (f Filter) SortedChains() []string {
	if len(f.Chains) == 0 {
		return nil
	}
	out := slices.Clone(f.Chains)
	slices.Sort(out)
	return slices.Compact(out)
}

func (f Filter) allowSet() map[string]struct{} {
	if len(f.Chains) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(f.Chains))
	for _, c := range f.Chains {
		set[c] = struct{}{}
	}
	return set
}

// SkipReason says why a raw record did not make it into the rows.
type SkipReason string

const (
	SkipChainNotAllowed SkipReason = "chain_not_allowed"
	SkipMalformed       SkipReason = "malformed"
)

// Skip describes one dropped raw record.
type Skip struct {
	Index  int
	Reason SkipReason
	Detail string
}

// Result is the outcome of Normalize.
type Result struct {
	Rows    []Row
	Skipped []Skip
}

// SkipCounts aggregates skipped records by reason.
func (r Result) SkipCounts() map[SkipReason]int {
	counts := make(map[SkipReason]int)
	for _, s := range r.Skipped {
		counts[s.Reason]++
	}
	return counts
}

// Normalize projects raw pools to rows, drops pools outside the allow-list,
// ranks the rest by TVL descending and truncates to f.TopN.
//
// Pools with equal TVL keep their input order. Malformed records are
// reported in Result.Skipped and never fail the batch.
func Normalize(raws []json.RawMessage, f Filter) Result {
	allowed := f.allowSet()
	res := Result{Rows: make([]Row, 0, len(raws))}

	for i, raw := range raws {
		row, err := parseRow(raw)
		if err != nil {
			res.Skipped = append(res.Skipped, Skip{Index: i, Reason: SkipMalformed, Detail: err.Error()})
			continue
		}
		if allowed != nil {
			if _, ok := allowed[row.ChainName()]; !ok || row.Chain == nil {
				res.Skipped = append(res.Skipped, Skip{Index: i, Reason: SkipChainNotAllowed, Detail: row.ChainName()})
				continue
			}
		}
		res.Rows = append(res.Rows, row)
	}

	slices.SortStableFunc(res.Rows, func(a, b Row) int {
		return cmp.Compare(b.RankTVL(), a.RankTVL())
	})

	if f.TopN > 0 && len(res.Rows) > f.TopN {
		res.Rows = res.Rows[:f.TopN]
	}
	return res
}
