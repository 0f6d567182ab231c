package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/stat/combin"
)

// ConditionalTable holds P(child | parents) over bin indices.
//
// A root table has no parents and a single distribution. Otherwise Distributions
// holds one vector per parent combination, indexed by the row-major linear index of
// the parent bin-index tuple (last parent varies fastest). Every combination of the
// Cartesian product is present.
type ConditionalTable struct {
	ParentCardinalities []int
	ChildCardinality    int
	Distributions       [][]float64
}

// NewRootTable wraps a marginal distribution.
func NewRootTable(distribution []float64) *ConditionalTable {
	return &ConditionalTable{
		ChildCardinality: len(distribution),
		Distributions:    [][]float64{distribution},
	}
}

// IsRoot reports whether the table is unconditioned.
func (ct *ConditionalTable) IsRoot() bool {
	return len(ct.ParentCardinalities) == 0
}

// NumParentCombinations returns the size of the parent Cartesian product.
func (ct *ConditionalTable) NumParentCombinations() int {
	n := 1
	for _, c := range ct.ParentCardinalities {
		n *= c
	}
	return n
}

// Index returns the linear index of a parent tuple, or false when any
// component falls outside its cardinality.
func (ct *ConditionalTable) Index(parentValues []int) (int, bool) {
	if len(parentValues) != len(ct.ParentCardinalities) {
		return 0, false
	}
	for i, v := range parentValues {
		if v < 0 || v >= ct.ParentCardinalities[i] {
			return 0, false
		}
	}
	return combin.IdxFor(parentValues, ct.ParentCardinalities), true
}

// Lookup returns the child distribution for a parent tuple.
func (ct *ConditionalTable) Lookup(parentValues []int) ([]float64, bool) {
	if ct.IsRoot() {
		if len(parentValues) != 0 || len(ct.Distributions) == 0 {
			return nil, false
		}
		return ct.Distributions[0], true
	}
	idx, ok := ct.Index(parentValues)
	if !ok || idx >= len(ct.Distributions) {
		return nil, false
	}
	return ct.Distributions[idx], true
}

// Root returns the marginal of a root table.
func (ct *ConditionalTable) Root() []float64 {
	if len(ct.Distributions) == 0 {
		return nil
	}
	return ct.Distributions[0]
}

// parentKey renders a parent tuple as "[0, 1]".
func parentKey(sub []int) string {
	parts := make([]string, len(sub))
	for i, v := range sub {
		parts[i] = strconv.Itoa(v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// MarshalJSON writes a root table as a flat vector and a conditional table as an
// object keyed by the parent tuple.
func (ct ConditionalTable) MarshalJSON() ([]byte, error) {
	if ct.IsRoot() {
		return json.Marshal(ct.Root())
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	sub := make([]int, len(ct.ParentCardinalities))
	for idx, dist := range ct.Distributions {
		combin.SubFor(sub, idx, ct.ParentCardinalities)
		key, err := json.Marshal(parentKey(sub))
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(dist)
		if err != nil {
			return nil, err
		}
		if idx > 0 {
			buf.WriteByte(',')
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads either form written by MarshalJSON. Parent cardinalities are
// recovered from the largest index seen in each key position.
func (ct *ConditionalTable) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var dist []float64
		if err := json.Unmarshal(trimmed, &dist); err != nil {
			return err
		}
		*ct = *NewRootTable(dist)
		return nil
	}

	var raw map[string][]float64
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return err
	}
	if len(raw) == 0 {
		return fmt.Errorf("conditional table has no entries")
	}

	type entry struct {
		sub  []int
		dist []float64
	}
	entries := make([]entry, 0, len(raw))
	var dims []int
	childCard := -1
	for key, dist := range raw {
		var sub []int
		if err := json.Unmarshal([]byte(key), &sub); err != nil {
			return fmt.Errorf("conditional table key %q: %w", key, err)
		}
		if len(sub) == 0 {
			return fmt.Errorf("conditional table key %q has no parents", key)
		}
		if dims == nil {
			dims = make([]int, len(sub))
		}
		if len(sub) != len(dims) {
			return fmt.Errorf("conditional table key %q has %d parents, expected %d", key, len(sub), len(dims))
		}
		for i, v := range sub {
			if v < 0 {
				return fmt.Errorf("conditional table key %q has a negative index", key)
			}
			if v+1 > dims[i] {
				dims[i] = v + 1
			}
		}
		if childCard >= 0 && len(dist) != childCard {
			return fmt.Errorf("conditional table key %q has %d probabilities, expected %d", key, len(dist), childCard)
		}
		childCard = len(dist)
		entries = append(entries, entry{sub: sub, dist: dist})
	}

	table := ConditionalTable{
		ParentCardinalities: dims,
		ChildCardinality:    childCard,
	}
	table.Distributions = make([][]float64, table.NumParentCombinations())
	if len(entries) != len(table.Distributions) {
		return fmt.Errorf("conditional table has %d entries, expected the full product of %d", len(entries), len(table.Distributions))
	}
	for _, e := range entries {
		idx := combin.IdxFor(e.sub, dims)
		if table.Distributions[idx] != nil {
			return fmt.Errorf("conditional table has duplicate entries for %s", parentKey(e.sub))
		}
		table.Distributions[idx] = e.dist
	}

	*ct = table
	return nil
}
