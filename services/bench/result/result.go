// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package result defines the record of one benchmark run.
//
// A Run is produced once by the harness and then only read: by the console
// and JSON reporters, the chart renderers, telemetry, the history store and
// the HTTP API.
package result

import (
	"time"

	"github.com/AleutianAI/jsonbench/services/bench/backend"
	"github.com/AleutianAI/jsonbench/services/bench/compare"
	"github.com/AleutianAI/jsonbench/services/bench/sampling"
	"github.com/AleutianAI/jsonbench/services/bench/stats"
)

// BackendResult is the outcome for one backend.
type BackendResult struct {
	Name  string `json:"name"`
	Kind  string `json:"kind"`
	Scope string `json:"scope"`

	// Unavailable holds the probe error when the backend could never run.
	// Such backends have no samples and were not sampled.
	Unavailable string `json:"unavailable,omitempty"`

	Stats   stats.Statistics `json:"stats"`
	Summary sampling.Summary `json:"summary"`

	// Samples is the series Stats was computed from, in milliseconds, so
	// Stats.Count == len(Samples). Omitted from stored history when
	// trimmed.
	Samples []float64 `json:"samples,omitempty"`

	// RawSamples is the full series before outlier removal. Set only when
	// removal dropped at least one sample.
	RawSamples []float64 `json:"raw_samples,omitempty"`
}

// Available reports whether the backend passed its probe.
func (b BackendResult) Available() bool {
	return b.Unavailable == ""
}

// CorpusInfo identifies the corpus a run used.
type CorpusInfo struct {
	Dir         string `json:"dir"`
	Files       int    `json:"files"`
	Bytes       int64  `json:"bytes"`
	Fingerprint string `json:"fingerprint"`
}

// Provenance records where the run happened.
type Provenance struct {
	GitRevision string `json:"git_revision,omitempty"`
	GitBranch   string `json:"git_branch,omitempty"`
	GitDirty    bool   `json:"git_dirty,omitempty"`
	GoVersion   string `json:"go_version"`
	OS          string `json:"os"`
	Arch        string `json:"arch"`
	Hostname    string `json:"hostname,omitempty"`
}

// Settings records how sampling was configured.
type Settings struct {
	Mode           string        `json:"mode"`
	Iterations     int           `json:"iterations,omitempty"`
	Duration       time.Duration `json:"duration_ns,omitempty"`
	WarmupPasses   int           `json:"warmup_passes,omitempty"`
	TrialTimeout   time.Duration `json:"trial_timeout_ns,omitempty"`
	RemoveOutliers bool          `json:"remove_outliers,omitempty"`
}

// Run is the complete record of one benchmark run.
type Run struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Corpus     CorpusInfo `json:"corpus"`
	Settings   Settings   `json:"settings"`
	Provenance Provenance `json:"provenance"`

	// Backends are in registration order.
	Backends []BackendResult `json:"backends"`

	Comparison compare.Result `json:"comparison"`

	// Mismatches lists decoder disagreements found by verification.
	Mismatches []backend.Mismatch `json:"mismatches,omitempty"`
}

// Backend returns the named backend result.
func (r *Run) Backend(name string) (BackendResult, bool) {
	for _, b := range r.Backends {
		if b.Name == name {
			return b, true
		}
	}
	return BackendResult{}, false
}

// Entries returns comparison inputs in registration order, skipping
// unavailable backends.
func (r *Run) Entries() []compare.Entry {
	entries := make([]compare.Entry, 0, len(r.Backends))
	for _, b := range r.Backends {
		if !b.Available() {
			continue
		}
		entries = append(entries, compare.Entry{Name: b.Name, Stats: b.Stats, Samples: b.Samples})
	}
	return entries
}

// Unavailable returns the names of backends that failed their probe.
func (r *Run) Unavailable() []string {
	var names []string
	for _, b := range r.Backends {
		if !b.Available() {
			names = append(names, b.Name)
		}
	}
	return names
}

// WithoutSamples returns a copy with raw series dropped, for compact
// storage and listings.
func (r *Run) WithoutSamples() *Run {
	cp := *r
	cp.Backends = make([]BackendResult, len(r.Backends))
	for i, b := range r.Backends {
		b.Samples = nil
		b.RawSamples = nil
		cp.Backends[i] = b
	}
	return &cp
}

// Elapsed returns the wall time of the run.
func (r *Run) Elapsed() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
