// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package compare ranks backends by mean latency and computes pairwise
// speedup ratios.
//
// Iteration order is the order of the entries passed to Compare, which the
// harness fills in backend registration order. That order breaks ties
// when two backends report the same mean, so identical statistics always
// produce the same result.
package compare

import (
	"sort"

	"github.com/AleutianAI/jsonbench/services/bench/stats"
)

// DefaultSignificanceLevel is the alpha used for per-pair t-tests.
const DefaultSignificanceLevel = 0.05

// Entry is one backend's input to a comparison.
type Entry struct {
	// Name identifies the backend.
	Name string

	// Stats is the backend's statistics snapshot.
	Stats stats.Statistics

	// Samples are the raw latencies, used for significance testing.
	// May be nil; pairs then report no significance data.
	Samples []float64
}

// Pair compares two backends, A registered before B.
type Pair struct {
	A string `json:"a"`
	B string `json:"b"`

	// Ratio is mean(B) / mean(A): how many times faster A is than B.
	// Values below 1 mean A is slower.
	Ratio float64 `json:"ratio"`

	// Tested is true when both sides had at least two samples.
	Tested bool `json:"tested"`

	PValue      float64 `json:"p_value,omitempty"`
	Significant bool    `json:"significant"`
	EffectSize  float64 `json:"effect_size,omitempty"`

	// EffectCategory is Cohen's category of EffectSize.
	EffectCategory string `json:"effect_category,omitempty"`
}

// Faster returns the name of the faster backend of the pair, or "" on a tie.
func (p Pair) Faster() string {
	switch {
	case p.Ratio > 1:
		return p.A
	case p.Ratio < 1:
		return p.B
	default:
		return ""
	}
}

// Result is the comparison across all backends of a run.
//
// Thread Safety: Safe for concurrent read access after creation.
type Result struct {
	// Pairs holds every unordered pair of backends with a valid mean.
	// Empty when fewer than two backends produced a mean.
	Pairs []Pair `json:"pairs"`

	// Fastest is the backend with the minimal mean. Empty when no
	// backend produced a mean.
	Fastest string `json:"fastest,omitempty"`

	// Ranking lists backends with a valid mean, fastest first.
	Ranking []string `json:"ranking"`

	// Excluded lists backends without samples, in input order.
	Excluded []string `json:"excluded,omitempty"`
}

// Compare computes the comparison for a run.
//
// Description:
//
//	Backends without a mean are excluded. For every pair (A, B) of the
//	remaining backends, with A earlier in entries than B, the ratio
//	mean(B)/mean(A) is computed. The fastest backend has the minimal
//	mean; ties go to the earliest entry. With fewer than two valid
//	backends no pairs are produced. Compare never fails.
//
// Inputs:
//   - entries: Backends in registration order.
//
// Outputs:
//   - Result: The comparison. Pure function of entries.
//
// Example:
//
//	res := compare.Compare([]compare.Entry{
//	    {Name: "a", Stats: stats.Calculate(aSamples)},
//	    {Name: "b", Stats: stats.Calculate(bSamples)},
//	})
//	fmt.Println(res.Fastest)
func Compare(entries []Entry) Result {
	res := Result{
		Pairs:   []Pair{},
		Ranking: []string{},
	}

	valid := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if !e.Stats.HasMean() {
			res.Excluded = append(res.Excluded, e.Name)
			continue
		}
		valid = append(valid, e)
	}

	if len(valid) == 0 {
		return res
	}

	fastest := valid[0]
	for _, e := range valid[1:] {
		if e.Stats.Mean < fastest.Stats.Mean {
			fastest = e
		}
	}
	res.Fastest = fastest.Name

	ranked := make([]Entry, len(valid))
	copy(ranked, valid)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Stats.Mean < ranked[j].Stats.Mean
	})
	for _, e := range ranked {
		res.Ranking = append(res.Ranking, e.Name)
	}

	for i := 0; i < len(valid); i++ {
		for j := i + 1; j < len(valid); j++ {
			res.Pairs = append(res.Pairs, comparePair(valid[i], valid[j]))
		}
	}

	return res
}

// Ratio returns the pair comparing a and b in that orientation.
func (r Result) Ratio(a, b string) (float64, bool) {
	for _, p := range r.Pairs {
		if p.A == a && p.B == b {
			return p.Ratio, true
		}
		if p.A == b && p.B == a && p.Ratio != 0 {
			return 1 / p.Ratio, true
		}
	}
	return 0, false
}

func comparePair(a, b Entry) Pair {
	p := Pair{A: a.Name, B: b.Name}
	if a.Stats.Mean > 0 {
		p.Ratio = b.Stats.Mean / a.Stats.Mean
	}

	if len(a.Samples) >= 2 && len(b.Samples) >= 2 {
		_, pValue := stats.WelchTTest(a.Samples, b.Samples)
		d := stats.CohensD(a.Samples, b.Samples)
		p.Tested = true
		p.PValue = pValue
		p.Significant = pValue < DefaultSignificanceLevel
		p.EffectSize = d
		p.EffectCategory = stats.CategorizeEffectSize(d).String()
	}
	return p
}
