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
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/jsonbench/cmd/jsonbench/config"
	"github.com/AleutianAI/jsonbench/pkg/logging"
	"github.com/AleutianAI/jsonbench/pkg/ux"
	"github.com/AleutianAI/jsonbench/services/bench/backend"
)

// testApp returns an app running two iterations with logging silenced.
func testApp(t *testing.T) *app {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Sampling.Mode = "iterations"
	cfg.Sampling.Iterations = 2

	logger := logging.New(logging.Config{Quiet: true})
	t.Cleanup(func() { _ = logger.Close() })
	return &app{cfg: cfg, logger: logger}
}

func writeTestCorpus(t *testing.T, n int) string {
	t.Helper()
	dir := t.TempDir()
	for i := 0; i < n; i++ {
		path := filepath.Join(dir, fmt.Sprintf("doc%d.json", i))
		require.NoError(t, os.WriteFile(path, []byte(`{"id":1,"tags":["a","b"]}`), 0o644))
	}
	return dir
}

func stdlibBackend() backend.Backend {
	return backend.NewInProcess(backend.BuiltinDecoders()[0])
}

// failingExternal is a decoder executable that exits 1 on every file.
func failingExternal(t *testing.T) backend.Backend {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported on windows")
	}
	path := filepath.Join(t.TempDir(), "crash.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\necho \"segfault in $1\" >&2\nexit 1\n"), 0o755))

	b, err := backend.NewExternal(backend.ExternalConfig{
		Name:  "crash",
		Path:  path,
		Scope: backend.ScopeFile,
	})
	require.NoError(t, err)
	return b
}

func TestBenchmarkOnce_MissingCorpus(t *testing.T) {
	withPersonality(t, ux.PersonalityMachine)

	var out bytes.Buffer
	missing := filepath.Join(t.TempDir(), "no-such-corpus")
	run, err := benchmarkOnce(context.Background(), testApp(t), missing, []backend.Backend{stdlibBackend()}, &out)

	assert.Nil(t, run)
	assert.Equal(t, ExitCorpusUnavailable, ExitCodeFor(err))
	assert.Zero(t, out.Len())
}

func TestBenchmarkOnce_AlwaysFailingExternal(t *testing.T) {
	withPersonality(t, ux.PersonalityMachine)

	a := testApp(t)
	a.cfg.Output.JSON = filepath.Join(t.TempDir(), "run.json")

	var out bytes.Buffer
	backends := []backend.Backend{stdlibBackend(), failingExternal(t)}
	run, err := benchmarkOnce(context.Background(), a, writeTestCorpus(t, 3), backends, &out)

	assert.Equal(t, ExitBackendUnavailable, ExitCodeFor(err))
	require.NotNil(t, run)

	healthy, ok := run.Backend(backend.DecoderStdlib)
	require.True(t, ok)
	assert.Equal(t, 6, healthy.Stats.Count)

	crashed, ok := run.Backend("crash")
	require.True(t, ok)
	assert.Zero(t, crashed.Stats.Count)
	assert.Equal(t, 6, crashed.Summary.Failed)
	assert.Equal(t, []string{"crash"}, run.Comparison.Excluded)
	assert.Equal(t, backend.DecoderStdlib, run.Comparison.Fastest)

	report := out.String()
	assert.Contains(t, report, "backend=encoding-json count=6")
	assert.Contains(t, report, "backend=crash count=0 status=no_samples")
	assert.Contains(t, report, "fastest=encoding-json")

	// Outputs are still written for a partially failed run
	assert.FileExists(t, a.cfg.Output.JSON)
}

func TestBenchmarkOnce_AllHealthy(t *testing.T) {
	withPersonality(t, ux.PersonalityMachine)

	var out bytes.Buffer
	run, err := benchmarkOnce(context.Background(), testApp(t), writeTestCorpus(t, 2), []backend.Backend{stdlibBackend()}, &out)

	require.NoError(t, err)
	assert.Equal(t, ExitOK, ExitCodeFor(err))
	assert.Equal(t, 4, run.Backends[0].Stats.Count)
	assert.Contains(t, out.String(), "backend=encoding-json count=4")
}
