// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package history

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/jsonbench/services/bench/result"
	"github.com/AleutianAI/jsonbench/services/bench/stats"
)

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func makeRun(i int, fingerprint string) *result.Run {
	return &result.Run{
		ID:         fmt.Sprintf("run-%02d", i),
		StartedAt:  base.Add(time.Duration(i) * time.Minute),
		FinishedAt: base.Add(time.Duration(i)*time.Minute + 30*time.Second),
		Corpus:     result.CorpusInfo{Dir: "corpus", Files: 2, Fingerprint: fingerprint},
		Backends: []result.BackendResult{
			{Name: "sonic", Stats: stats.Calculate([]float64{1, 2}), Samples: []float64{1, 2}},
		},
	}
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_SaveGet(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	run := makeRun(1, "fp-a")
	require.NoError(t, s.Save(ctx, run))

	got, err := s.Get(ctx, "run-01")
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, []float64{1, 2}, got.Backends[0].Samples)
	assert.True(t, run.StartedAt.Equal(got.StartedAt))

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_SaveInvalid(t *testing.T) {
	s := openTestStore(t)

	assert.ErrorIs(t, s.Save(context.Background(), nil), ErrInvalidRun)
	assert.ErrorIs(t, s.Save(context.Background(), &result.Run{StartedAt: base}), ErrInvalidRun)
	assert.ErrorIs(t, s.Save(context.Background(), &result.Run{ID: "x"}), ErrInvalidRun)
}

func TestStore_List(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	// Insert out of order; listing is by start time
	for _, i := range []int{2, 0, 3, 1} {
		require.NoError(t, s.Save(ctx, makeRun(i, "fp-a")))
	}

	runs, err := s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 4)
	assert.Equal(t, "run-03", runs[0].ID)
	assert.Equal(t, "run-00", runs[3].ID)
	assert.Nil(t, runs[0].Backends[0].Samples)

	runs, err = s.List(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
	assert.Equal(t, "run-02", runs[1].ID)
}

func TestStore_Latest(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.Save(ctx, makeRun(1, "fp-a")))
	require.NoError(t, s.Save(ctx, makeRun(2, "fp-b")))
	require.NoError(t, s.Save(ctx, makeRun(3, "fp-a")))

	got, err := s.Latest(ctx, "fp-a", "")
	require.NoError(t, err)
	assert.Equal(t, "run-03", got.ID)

	got, err = s.Latest(ctx, "fp-a", "run-03")
	require.NoError(t, err)
	assert.Equal(t, "run-01", got.ID)

	_, err = s.Latest(ctx, "fp-a", "run-01")
	require.NoError(t, err)

	_, err = s.Latest(ctx, "fp-c", "")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Latest(ctx, "", "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_Prune(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Save(ctx, makeRun(i, "fp-a")))
	}

	deleted, err := s.Prune(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, deleted)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = s.Get(ctx, "run-00")
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := s.Latest(ctx, "fp-a", "run-04")
	require.NoError(t, err)
	assert.Equal(t, "run-03", got.ID)
}

func TestStore_MaxRuns(t *testing.T) {
	ctx := context.Background()
	cfg := InMemoryConfig()
	cfg.MaxRuns = 3
	s, err := Open(cfg)
	require.NoError(t, err)
	defer s.Close()

	for i := 0; i < 6; i++ {
		require.NoError(t, s.Save(ctx, makeRun(i, "fp-a")))
	}

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestStore_Persistent(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	cfg := DefaultConfig(dir)
	cfg.GCInterval = 0
	s, err := Open(cfg)
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, makeRun(7, "fp-a")))
	require.NoError(t, s.Close())

	s2, err := Open(cfg)
	require.NoError(t, err)
	defer s2.Close()

	got, err := s2.Get(ctx, "run-07")
	require.NoError(t, err)
	assert.Equal(t, "fp-a", got.Corpus.Fingerprint)
}

func TestStore_CancelledContext(t *testing.T) {
	s := openTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, s.Save(ctx, makeRun(1, "fp")), context.Canceled)
	_, err := s.List(ctx, 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)
}

func TestIDFromRunKey(t *testing.T) {
	run := makeRun(4, "fp")
	assert.Equal(t, "run-04", idFromRunKey(runKey(run)))
	assert.Equal(t, "", idFromRunKey([]byte("run/")))
}
