// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package sampling repeats trials over a corpus to build a sample series.
//
// A pass is one trial per corpus file for file-scoped backends, or one
// trial over the whole corpus for corpus-scoped backends. Stop conditions
// (iteration count, time budget, context cancellation) are only checked
// between passes, so every pass that starts also finishes.
package sampling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/AleutianAI/jsonbench/services/bench/backend"
	"github.com/AleutianAI/jsonbench/services/bench/corpus"
	"github.com/AleutianAI/jsonbench/services/bench/trial"
)

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// Mode selects the stop condition.
type Mode int

const (
	// ModeDuration repeats passes until the time budget is used up.
	ModeDuration Mode = iota

	// ModeIterations runs a fixed number of passes.
	ModeIterations
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeDuration:
		return "duration"
	case ModeIterations:
		return "iterations"
	default:
		return "unknown"
	}
}

// DefaultDuration is the time budget per backend in duration mode.
const DefaultDuration = 90 * time.Second

// Config configures a Loop.
type Config struct {
	// Mode selects the stop condition.
	// Default: ModeDuration
	Mode Mode

	// Iterations is the number of passes in ModeIterations.
	Iterations int

	// Duration is the budget per backend in ModeDuration. The budget is
	// compared against elapsed time only after each pass.
	// Default: 90s
	Duration time.Duration

	// WarmupPasses run before measurement and are discarded.
	// Default: 0
	WarmupPasses int

	// Trial configures the per-trial runner.
	Trial trial.Config

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns duration mode with a 90 second budget.
func DefaultConfig() *Config {
	return &Config{
		Mode:       ModeDuration,
		Iterations: 1,
		Duration:   DefaultDuration,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeIterations:
		if c.Iterations <= 0 {
			return errors.New("iterations must be positive")
		}
	case ModeDuration:
		if c.Duration <= 0 {
			return errors.New("duration must be positive")
		}
	default:
		return fmt.Errorf("unknown sampling mode %d", int(c.Mode))
	}
	if c.WarmupPasses < 0 {
		return errors.New("warmup passes must be non-negative")
	}
	if c.Trial.Timeout < 0 {
		return errors.New("trial timeout must be non-negative")
	}
	return nil
}

// -----------------------------------------------------------------------------
// Results
// -----------------------------------------------------------------------------

// Series is the ordered sample series of one backend, in milliseconds.
type Series []float64

// Summary describes how a series was collected.
type Summary struct {
	Backend string `json:"backend"`

	// Passes counts completed measurement passes, excluding warmup.
	Passes int `json:"passes"`

	// Trials counts measurement trials of every outcome.
	Trials int `json:"trials"`

	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	TimedOut  int `json:"timed_out"`

	// Discarded counts zero or negative samples dropped by the runner.
	Discarded int `json:"discarded"`

	// WallTime covers measurement passes only.
	WallTime time.Duration `json:"wall_time_ns"`

	// Cancelled is true if the context stopped the loop early.
	Cancelled bool `json:"cancelled,omitempty"`

	// LastError is the most recent trial error, if any.
	LastError string `json:"last_error,omitempty"`
}

// Progress is reported after every measurement trial.
type Progress struct {
	Backend string
	Pass    int
	Trial   int
	Samples int
	Elapsed time.Duration
}

// ProgressFunc receives progress updates. It runs on the sampling goroutine
// and must return quickly.
type ProgressFunc func(Progress)

// -----------------------------------------------------------------------------
// Loop
// -----------------------------------------------------------------------------

// Option configures a Loop.
type Option func(*Loop)

// WithClock replaces the wall clock used for the duration budget.
func WithClock(now func() time.Time) Option {
	return func(l *Loop) {
		l.now = now
	}
}

// WithProgress registers a progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(l *Loop) {
		l.progress = fn
	}
}

// WithRunner replaces the trial runner built from Config.Trial.
func WithRunner(r *trial.Runner) Option {
	return func(l *Loop) {
		l.runner = r
	}
}

// Loop drives repeated passes of one backend over a corpus.
//
// Thread Safety: A Loop may be reused sequentially. Run is not safe for
// concurrent use when a progress callback holds state.
type Loop struct {
	cfg      Config
	runner   *trial.Runner
	now      func() time.Time
	progress ProgressFunc
	logger   *slog.Logger
}

// NewLoop creates a Loop.
//
// Inputs:
//   - cfg: Configuration, validated here. Nil selects DefaultConfig().
//   - opts: Optional overrides.
//
// Outputs:
//   - *Loop: The loop.
//   - error: Non-nil if cfg is invalid.
func NewLoop(cfg *Config, opts ...Option) (*Loop, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("sampling config: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	l := &Loop{
		cfg:    *cfg,
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.runner == nil {
		tc := cfg.Trial
		if tc.Logger == nil {
			tc.Logger = logger
		}
		l.runner = trial.NewRunner(tc)
	}
	return l, nil
}

// Run collects the sample series of b over c.
//
// Description:
//
//	Runs the warmup passes, then measurement passes until the stop
//	condition holds. In ModeIterations exactly Iterations passes run. In
//	ModeDuration passes repeat until the elapsed time reaches Duration;
//	at least one pass always completes, even if it alone exceeds the
//	budget. Cancelling ctx stops the loop at the next pass boundary,
//	including the one before the first pass; the trial in flight is not
//	interrupted.
//
//	Trials never run concurrently. Failed trials are counted in the
//	Summary and contribute no sample.
//
// Inputs:
//   - ctx: Cancellation, honored between passes.
//   - b: The backend to measure.
//   - c: The corpus. Must not be nil.
//
// Outputs:
//   - Series: Samples in collection order. Never mutated after return.
//   - Summary: Counters for the run.
func (l *Loop) Run(ctx context.Context, b backend.Backend, c *corpus.Corpus) (Series, Summary) {
	targets := targetsFor(b, c)
	summary := Summary{Backend: b.Name()}

	// In-flight trials are never cut short by the caller.
	trialCtx := context.WithoutCancel(ctx)

	for w := 0; w < l.cfg.WarmupPasses; w++ {
		if ctx.Err() != nil {
			summary.Cancelled = true
			return Series{}, summary
		}
		for _, target := range targets {
			l.runner.Run(trialCtx, b, target)
		}
	}

	series := make(Series, 0, len(targets))
	start := l.now()

	for {
		if ctx.Err() != nil {
			summary.Cancelled = true
			break
		}

		for _, target := range targets {
			res := l.runner.Run(trialCtx, b, target)
			summary.Trials++
			summary.Discarded += res.Discarded

			switch res.Outcome {
			case trial.Succeeded:
				summary.Succeeded++
				series = append(series, res.Samples...)
			case trial.TimedOut:
				summary.TimedOut++
				summary.LastError = res.Err.Error()
			default:
				summary.Failed++
				summary.LastError = res.Err.Error()
			}

			if l.progress != nil {
				l.progress(Progress{
					Backend: b.Name(),
					Pass:    summary.Passes + 1,
					Trial:   summary.Trials,
					Samples: len(series),
					Elapsed: l.now().Sub(start),
				})
			}
		}
		summary.Passes++

		if l.done(summary.Passes, l.now().Sub(start)) {
			break
		}
	}

	summary.WallTime = l.now().Sub(start)

	l.logger.Debug("sampling finished",
		slog.String("backend", b.Name()),
		slog.String("mode", l.cfg.Mode.String()),
		slog.Int("passes", summary.Passes),
		slog.Int("trials", summary.Trials),
		slog.Int("samples", len(series)),
		slog.Int("failed", summary.Failed),
		slog.Int("timed_out", summary.TimedOut),
	)

	return series, summary
}

func (l *Loop) done(passes int, elapsed time.Duration) bool {
	if l.cfg.Mode == ModeIterations {
		return passes >= l.cfg.Iterations
	}
	return elapsed >= l.cfg.Duration
}

// targetsFor returns the Measure targets of one pass.
func targetsFor(b backend.Backend, c *corpus.Corpus) []string {
	if b.Scope() == backend.ScopeCorpus {
		return []string{c.Dir}
	}
	return c.Paths()
}
