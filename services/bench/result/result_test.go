// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package result

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/AleutianAI/jsonbench/services/bench/stats"
)

func sampleRun() *Run {
	return &Run{
		ID:         "r1",
		StartedAt:  time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		FinishedAt: time.Date(2025, 1, 1, 0, 1, 30, 0, time.UTC),
		Backends: []BackendResult{
			{Name: "sonic", Stats: stats.Calculate([]float64{1, 2}), Samples: []float64{1, 2}},
			{Name: "cpp:custom", Unavailable: "executable not found"},
			{Name: "goja", Stats: stats.Calculate([]float64{5}), Samples: []float64{5}},
		},
	}
}

func TestRun_Entries(t *testing.T) {
	r := sampleRun()

	entries := r.Entries()
	assert.Len(t, entries, 2)
	assert.Equal(t, "sonic", entries[0].Name)
	assert.Equal(t, "goja", entries[1].Name)
	assert.Equal(t, []string{"cpp:custom"}, r.Unavailable())
}

func TestRun_Backend(t *testing.T) {
	r := sampleRun()

	b, ok := r.Backend("goja")
	assert.True(t, ok)
	assert.True(t, b.Available())

	_, ok = r.Backend("missing")
	assert.False(t, ok)
}

func TestRun_WithoutSamples(t *testing.T) {
	r := sampleRun()
	r.Backends[0].RawSamples = []float64{1, 2, 40}
	trimmed := r.WithoutSamples()

	for _, b := range trimmed.Backends {
		assert.Nil(t, b.Samples)
		assert.Nil(t, b.RawSamples)
	}
	// Original untouched
	assert.Equal(t, []float64{1, 2}, r.Backends[0].Samples)
	assert.Equal(t, 90*time.Second, r.Elapsed())
}
