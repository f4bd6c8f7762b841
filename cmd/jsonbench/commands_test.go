// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/jsonbench/cmd/jsonbench/config"
	"github.com/AleutianAI/jsonbench/pkg/ux"
	"github.com/AleutianAI/jsonbench/services/bench/backend"
	"github.com/AleutianAI/jsonbench/services/bench/compare"
	"github.com/AleutianAI/jsonbench/services/bench/result"
)

// withPersonality sets the UX level for one test.
func withPersonality(t *testing.T, level ux.PersonalityLevel) {
	t.Helper()
	prev := ux.GetPersonality()
	ux.SetPersonalityLevel(level)
	t.Cleanup(func() { ux.SetPersonality(prev) })
}

func newFlagCommand(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	runFlags = runFlagValues{}
	cmd := &cobra.Command{Use: "run"}
	registerRunFlags(cmd)
	require.NoError(t, cmd.ParseFlags(args))
	return cmd
}

// -----------------------------------------------------------------------------
// Flags
// -----------------------------------------------------------------------------

func TestApplyRunFlags_OnlyChangedFlagsOverride(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Output.JSON = "from-file.json"
	cfg.Sampling.Warmup = 3

	cmd := newFlagCommand(t, "--iterations", "25", "--backend", "sonic,goccy")
	applyRunFlags(cmd, &cfg)

	assert.Equal(t, "iterations", cfg.Sampling.Mode)
	assert.Equal(t, 25, cfg.Sampling.Iterations)
	assert.Equal(t, []string{"sonic", "goccy"}, cfg.Backends.Select)
	assert.Equal(t, "from-file.json", cfg.Output.JSON)
	assert.Equal(t, 3, cfg.Sampling.Warmup)
}

func TestApplyRunFlags_Duration(t *testing.T) {
	cfg := config.DefaultConfig()

	cmd := newFlagCommand(t, "--duration", "1.5")
	applyRunFlags(cmd, &cfg)

	assert.Equal(t, "duration", cfg.Sampling.Mode)
	assert.Equal(t, 1500*time.Millisecond, cfg.Sampling.Duration)
}

func TestApplyRunFlags_Externals(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Backends.External = []config.ExternalBackend{{Name: "cpp", Exec: "/opt/Cpp23Json"}}

	cmd := newFlagCommand(t,
		"--exec", "./parser",
		"--exec-selector", "custom,nlohmann",
		"--exec-scope", "file",
	)
	applyRunFlags(cmd, &cfg)

	require.Len(t, cfg.Backends.External, 2)
	added := cfg.Backends.External[1]
	assert.Equal(t, "./parser", added.Exec)
	assert.Equal(t, []string{"custom", "nlohmann"}, added.Selectors)
	assert.Equal(t, "file", added.Scope)
	require.NoError(t, cfg.Validate())
}

func TestApplyRunFlags_Outputs(t *testing.T) {
	cfg := config.DefaultConfig()

	cmd := newFlagCommand(t,
		"--chart", "c.png",
		"--chart-html", "c.html",
		"--json", "r.json",
		"--metrics-file", "m.prom",
		"--history", "hist",
		"--fail-on-regression",
		"--remove-outliers",
		"--verify",
		"--trial-timeout", "2s",
		"--warmup", "1",
		"-v",
	)
	applyRunFlags(cmd, &cfg)

	assert.Equal(t, "c.png", cfg.Output.Chart)
	assert.Equal(t, "c.html", cfg.Output.ChartHTML)
	assert.Equal(t, "r.json", cfg.Output.JSON)
	assert.Equal(t, "m.prom", cfg.Output.MetricsFile)
	assert.Equal(t, "hist", cfg.History.Dir)
	assert.True(t, cfg.Regression.Enabled)
	assert.True(t, cfg.Sampling.RemoveOutliers)
	assert.True(t, cfg.Sampling.Verify)
	assert.Equal(t, 2*time.Second, cfg.Sampling.TrialTimeout)
	assert.Equal(t, 1, cfg.Sampling.Warmup)
	assert.True(t, cfg.Output.Verbose)
}

func TestResolveCorpus(t *testing.T) {
	cmd := &cobra.Command{Use: "run"}
	cfg := config.DefaultConfig()

	_, err := resolveCorpus(cmd, nil, cfg)
	assert.Equal(t, ExitUsage, ExitCodeFor(err))

	cfg.Corpus = "from-config"
	dir, err := resolveCorpus(cmd, nil, cfg)
	require.NoError(t, err)
	assert.Equal(t, "from-config", dir)

	dir, err = resolveCorpus(cmd, []string{"from-arg"}, cfg)
	require.NoError(t, err)
	assert.Equal(t, "from-arg", dir)
}

// -----------------------------------------------------------------------------
// History table
// -----------------------------------------------------------------------------

func sampleRuns() []*result.Run {
	started := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return []*result.Run{
		{
			ID:         "run-b",
			StartedAt:  started.Add(time.Hour),
			Corpus:     result.CorpusInfo{Dir: "testdata"},
			Backends:   []result.BackendResult{{Name: "sonic"}, {Name: "stdlib"}},
			Comparison: compare.Result{Fastest: "sonic"},
			Provenance: result.Provenance{GitRevision: "0123456789abcdef", GitDirty: true},
		},
		{
			ID:        "run-a",
			StartedAt: started,
			Corpus:    result.CorpusInfo{Dir: "testdata"},
			Backends:  []result.BackendResult{{Name: "stdlib", Unavailable: "missing"}},
		},
	}
}

func TestWriteRunTable_Machine(t *testing.T) {
	withPersonality(t, ux.PersonalityMachine)

	var buf bytes.Buffer
	require.NoError(t, writeRunTable(&buf, sampleRuns()))

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)
	assert.Contains(t, string(lines[0]), "run-b\t")
	assert.Contains(t, string(lines[0]), "\t2\tsonic\t01234567+dirty")
	assert.Contains(t, string(lines[1]), "\t1\t-\t-")
}

func TestWriteRunTable_Styled(t *testing.T) {
	withPersonality(t, ux.PersonalityStandard)

	var buf bytes.Buffer
	require.NoError(t, writeRunTable(&buf, sampleRuns()))

	out := buf.String()
	assert.Contains(t, out, "Fastest")
	assert.Contains(t, out, "run-a")
	assert.Contains(t, out, "run-b")
}

func TestShortRevision(t *testing.T) {
	assert.Equal(t, "-", shortRevision(result.Provenance{}))
	assert.Equal(t, "abc", shortRevision(result.Provenance{GitRevision: "abc"}))
	assert.Equal(t, "01234567", shortRevision(result.Provenance{GitRevision: "0123456789"}))
}

// -----------------------------------------------------------------------------
// Backends listing
// -----------------------------------------------------------------------------

type brokenBackend struct{}

func (brokenBackend) Name() string         { return "cpp:custom" }
func (brokenBackend) Kind() backend.Kind   { return backend.KindExternal }
func (brokenBackend) Scope() backend.Scope { return backend.ScopeCorpus }
func (brokenBackend) Probe(context.Context) error {
	return fmt.Errorf("%w: not found", backend.ErrBackendUnavailable)
}
func (brokenBackend) Measure(context.Context, string) ([]float64, error) {
	return nil, errors.New("unreachable")
}

func testRegistry(t *testing.T) *backend.Registry {
	t.Helper()
	reg := backend.NewRegistry()
	reg.MustRegister(backend.NewInProcess(backend.Decoder{
		Name:   "stdlib",
		Decode: func(data []byte) (any, error) { var v any; return v, json.Unmarshal(data, &v) },
	}))
	reg.MustRegister(brokenBackend{})
	return reg
}

func TestPrintBackends_Machine(t *testing.T) {
	withPersonality(t, ux.PersonalityMachine)

	var buf bytes.Buffer
	require.NoError(t, printBackends(context.Background(), &buf, testRegistry(t)))

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)
	assert.Equal(t, "stdlib\tin-process\tfile\tok", string(lines[0]))
	assert.Contains(t, string(lines[1]), "cpp:custom\texternal\tcorpus\tunavailable: ")
}

func TestPrintBackends_Tree(t *testing.T) {
	withPersonality(t, ux.PersonalityStandard)

	var buf bytes.Buffer
	require.NoError(t, printBackends(context.Background(), &buf, testRegistry(t)))

	out := buf.String()
	assert.Contains(t, out, "backends (2)")
	assert.Contains(t, out, "stdlib")
	assert.Contains(t, out, "cpp:custom")
	assert.Contains(t, out, "not found")
}

// -----------------------------------------------------------------------------
// Watch
// -----------------------------------------------------------------------------

func TestRelevant(t *testing.T) {
	assert.True(t, relevant(fsnotify.Event{Name: "a.json", Op: fsnotify.Write}))
	assert.True(t, relevant(fsnotify.Event{Name: "A.JSON", Op: fsnotify.Create}))
	assert.True(t, relevant(fsnotify.Event{Name: "a.json", Op: fsnotify.Remove}))
	assert.False(t, relevant(fsnotify.Event{Name: "a.json", Op: fsnotify.Chmod}))
	assert.False(t, relevant(fsnotify.Event{Name: "chart.png", Op: fsnotify.Write}))
}

func TestWatchCorpus_RerunsOnChange(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var runs atomic.Int32
	trigger := func() error {
		runs.Add(1)
		return nil
	}

	done := make(chan error, 1)
	go func() {
		done <- watchCorpus(ctx, dir, 20*time.Millisecond, slog.New(slog.NewTextHandler(io.Discard, nil)), trigger)
	}()

	require.Eventually(t, func() bool { return runs.Load() == 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.json"), []byte(`{}`), 0o644))

	require.Eventually(t, func() bool { return runs.Load() >= 2 }, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestWatchCorpus_BurstRerunsOnceWithinDebounce(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	const debounce = 300 * time.Millisecond
	var runs atomic.Int32
	rerun := make(chan time.Time, 10)
	trigger := func() error {
		if runs.Add(1) > 1 {
			rerun <- time.Now()
		}
		return nil
	}

	done := make(chan error, 1)
	go func() {
		done <- watchCorpus(ctx, dir, debounce, slog.New(slog.NewTextHandler(io.Discard, nil)), trigger)
	}()
	require.Eventually(t, func() bool { return runs.Load() == 1 }, 2*time.Second, 5*time.Millisecond)

	start := time.Now()
	for i := 0; i < 10; i++ {
		name := filepath.Join(dir, fmt.Sprintf("f%d.json", i))
		require.NoError(t, os.WriteFile(name, []byte(`{"i":1}`), 0o644))
	}

	select {
	case at := <-rerun:
		assert.Less(t, at.Sub(start), 3*debounce)
	case <-time.After(5 * time.Second):
		t.Fatal("no rerun after burst")
	}

	cancel()
	require.NoError(t, <-done)
	assert.LessOrEqual(t, runs.Load(), int32(3))
}

func TestWatchCorpus_MissingDir(t *testing.T) {
	err := watchCorpus(context.Background(), filepath.Join(t.TempDir(), "nope"), time.Second,
		slog.New(slog.NewTextHandler(io.Discard, nil)), func() error { return nil })

	assert.Equal(t, ExitCorpusUnavailable, ExitCodeFor(err))
}

func TestWatchCorpus_TriggerErrorStops(t *testing.T) {
	boom := errors.New("corpus gone")
	err := watchCorpus(context.Background(), t.TempDir(), time.Second,
		slog.New(slog.NewTextHandler(io.Discard, nil)), func() error { return boom })

	assert.ErrorIs(t, err, boom)
}
