package pool

import (
	"encoding/json"
	"fmt"
)

// Row is the fixed-shape projection of a DefiLlama pool stored in a snapshot.
// Nil fields are written as JSON null.
type Row struct {
	Project   *string  `json:"project"`
	Chain     *string  `json:"chain"`
	Symbol    *string  `json:"symbol"`
	APY       *float64 `json:"apy"`
	APYBase   *float64 `json:"apyBase"`
	APYReward *float64 `json:"apyReward"`
	TVLUsd    *float64 `json:"tvlUsd"`
	Pool      *string  `json:"pool"`
	URL       *string  `json:"url"`
	ILRisk    *string  `json:"ilRisk"`
}

// RankTVL is the value used for ranking; missing TVL counts as zero.
func (r Row) RankTVL() float64 {
	if r.TVLUsd == nil {
		return 0
	}
	return *r.TVLUsd
}

// ChainName returns the chain or "" when absent.
func (r Row) ChainName() string {
	if r.Chain == nil {
		return ""
	}
	return *r.Chain
}

// record is a raw upstream pool with values left undecoded.
type record map[string]json.RawMessage

func parseRow(raw json.RawMessage) (Row, error) {
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Row{}, fmt.Errorf("decode record: %w", err)
	}
	// JSON null unmarshals into a nil map without error.
	if rec == nil {
		return Row{}, fmt.Errorf("record is null")
	}

	var (
		row Row
		err error
	)
	fields := []struct {
		key string
		str **string
		num **float64
	}{
		{key: "project", str: &row.Project},
		{key: "chain", str: &row.Chain},
		{key: "symbol", str: &row.Symbol},
		{key: "apy", num: &row.APY},
		{key: "apyBase", num: &row.APYBase},
		{key: "apyReward", num: &row.APYReward},
		{key: "tvlUsd", num: &row.TVLUsd},
		{key: "pool", str: &row.Pool},
		{key: "url", str: &row.URL},
		{key: "ilRisk", str: &row.ILRisk},
	}
	for _, f := range fields {
		if f.str != nil {
			*f.str, err = rec.str(f.key)
		} else {
			*f.num, err = rec.num(f.key)
		}
		if err != nil {
			return Row{}, err
		}
	}

	if row.URL == nil || *row.URL == "" {
		if row.URL, err = rec.str("urlPool"); err != nil {
			return Row{}, err
		}
	}
	return row, nil
}

func (r record) str(key string) (*string, error) {
	v, ok := r[key]
	if !ok || isNull(v) {
		return nil, nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return nil, fmt.Errorf("field %q: want string, got %s", key, v)
	}
	return &s, nil
}

func (r record) num(key string) (*float64, error) {
	v, ok := r[key]
	if !ok || isNull(v) {
		return nil, nil
	}
	var f float64
	if err := json.Unmarshal(v, &f); err != nil {
		return nil, fmt.Errorf("field %q: want number, got %s", key, v)
	}
	return &f, nil
}

func isNull(v json.RawMessage) bool {
	return string(v) == "null"
}
