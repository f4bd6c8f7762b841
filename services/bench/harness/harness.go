// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package harness runs one complete benchmark: load the corpus, probe and
// sample every selected backend in order, aggregate and compare.
//
// There is exactly one harness. The CLI, watch mode and tests all build an
// Options value and call Run; nothing here reads flags or globals.
package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/jsonbench/services/bench/backend"
	"github.com/AleutianAI/jsonbench/services/bench/compare"
	"github.com/AleutianAI/jsonbench/services/bench/corpus"
	"github.com/AleutianAI/jsonbench/services/bench/result"
	"github.com/AleutianAI/jsonbench/services/bench/sampling"
	"github.com/AleutianAI/jsonbench/services/bench/stats"
)

// DefaultOutlierThreshold is the IQR multiplier used when outlier removal
// is enabled without an explicit threshold.
const DefaultOutlierThreshold = 1.5

// -----------------------------------------------------------------------------
// Options
// -----------------------------------------------------------------------------

// Options configures a run.
type Options struct {
	// CorpusDir is the directory of .json files. Required.
	CorpusDir string

	// Backends are measured in this order. Required.
	Backends []backend.Backend

	// Sampling configures every backend's loop. Nil selects
	// sampling.DefaultConfig().
	Sampling *sampling.Config

	// RemoveOutliers drops IQR outliers before statistics are computed.
	// Raw samples are kept in the result either way.
	RemoveOutliers bool

	// OutlierThreshold is the IQR multiplier.
	// Default: 1.5
	OutlierThreshold float64

	// Verify checks decoder agreement before sampling.
	Verify bool

	// ProvenanceDir is searched upward for a git repository. Empty skips
	// git provenance; runtime details are always recorded.
	ProvenanceDir string

	// Observer receives progress. May be nil.
	Observer Observer

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Validate checks the options.
func (o *Options) Validate() error {
	if o.CorpusDir == "" {
		return errors.New("corpus directory is required")
	}
	if len(o.Backends) == 0 {
		return errors.New("at least one backend is required")
	}
	if o.OutlierThreshold < 0 {
		return errors.New("outlier threshold must be non-negative")
	}
	if o.Sampling != nil {
		if err := o.Sampling.Validate(); err != nil {
			return fmt.Errorf("sampling: %w", err)
		}
	}
	return nil
}

// Observer is told about each backend as it is sampled. Calls arrive on
// the harness goroutine in order.
type Observer interface {
	// BackendStarted fires before sampling. trialsPerPass is the number of
	// trials in one pass over the corpus.
	BackendStarted(name string, trialsPerPass int)

	// Progress fires after every measurement trial.
	Progress(p sampling.Progress)

	// BackendFinished fires after statistics are computed, or right after
	// a failed probe.
	BackendFinished(res result.BackendResult)
}

// -----------------------------------------------------------------------------
// Harness
// -----------------------------------------------------------------------------

// Option configures a Harness.
type Option func(*Harness)

// WithClock replaces the wall clock for run timestamps and the sampling
// budget.
func WithClock(now func() time.Time) Option {
	return func(h *Harness) {
		h.now = now
	}
}

// WithIDGenerator replaces the run ID source.
func WithIDGenerator(fn func() string) Option {
	return func(h *Harness) {
		h.newID = fn
	}
}

// Harness executes benchmark runs.
//
// Thread Safety: Run must not be called concurrently; trials are strictly
// sequential and a second run would contaminate the first's timings.
type Harness struct {
	opts   Options
	cfg    sampling.Config
	now    func() time.Time
	newID  func() string
	logger *slog.Logger
}

// New creates a Harness.
//
// Outputs:
//   - *Harness: Ready to Run.
//   - error: Non-nil if opts are invalid.
func New(opts Options, hopts ...Option) (*Harness, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("harness options: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.OutlierThreshold == 0 {
		opts.OutlierThreshold = DefaultOutlierThreshold
	}

	cfg := sampling.DefaultConfig()
	if opts.Sampling != nil {
		cfg = opts.Sampling
	}

	h := &Harness{
		opts:   opts,
		cfg:    *cfg,
		now:    time.Now,
		newID:  uuid.NewString,
		logger: logger,
	}
	if h.cfg.Logger == nil {
		h.cfg.Logger = logger
	}
	for _, opt := range hopts {
		opt(h)
	}
	return h, nil
}

// Run executes one benchmark.
//
// Description:
//
//	Loads the corpus (fatal on ErrCorpusUnavailable, before any backend
//	runs), fingerprints it, then handles each backend in order: probe,
//	sample, aggregate. A backend whose probe fails is recorded as
//	unavailable and skipped; the others still run. Finally all backends
//	with samples are compared.
//
//	Cancelling ctx stops sampling at the next pass boundary. Backends not
//	yet started are omitted and the partial run is returned along with
//	the context error.
//
// Outputs:
//   - *result.Run: The run. Nil only when the corpus could not be loaded
//     or fingerprinted, or verification could not read a file.
//   - error: Wraps corpus.ErrCorpusUnavailable for a bad corpus.
func (h *Harness) Run(ctx context.Context) (*result.Run, error) {
	ctx, span := otel.Tracer("harness").Start(ctx, "harness.Run",
		trace.WithAttributes(
			attribute.String("corpus.dir", h.opts.CorpusDir),
			attribute.Int("backends", len(h.opts.Backends)),
			attribute.String("mode", h.cfg.Mode.String()),
		),
	)
	defer span.End()

	c, err := corpus.Load(h.opts.CorpusDir)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "corpus unavailable")
		return nil, err
	}

	fingerprint, err := c.Fingerprint(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("fingerprint corpus: %w", err)
	}

	run := &result.Run{
		ID:        h.newID(),
		StartedAt: h.now(),
		Corpus: result.CorpusInfo{
			Dir:         c.Dir,
			Files:       c.Len(),
			Bytes:       c.TotalBytes(),
			Fingerprint: fingerprint,
		},
		Settings:   h.settings(),
		Provenance: CollectProvenance(h.opts.ProvenanceDir, h.logger),
	}
	span.SetAttributes(attribute.String("run.id", run.ID))

	h.logger.Info("benchmark run started",
		slog.String("run_id", run.ID),
		slog.String("corpus", c.Dir),
		slog.Int("files", c.Len()),
		slog.String("mode", h.cfg.Mode.String()),
	)

	available := h.probe(ctx, run)

	if h.opts.Verify && len(available) > 0 {
		mismatches := backend.Verify(available, c.Paths())
		for _, m := range mismatches {
			h.logger.Warn("decoder disagrees with reference",
				slog.String("backend", m.Backend),
				slog.String("file", m.File),
				slog.String("reason", m.Reason),
			)
		}
		run.Mismatches = mismatches
	}

	loop, err := h.newLoop()
	if err != nil {
		return nil, err
	}

	var runErr error
	started := make(map[string]bool, len(available))
	for i := range run.Backends {
		res := &run.Backends[i]
		if !res.Available() {
			continue
		}
		if err := ctx.Err(); err != nil {
			runErr = fmt.Errorf("run cancelled before %s: %w", res.Name, err)
			break
		}
		started[res.Name] = true
		h.sample(ctx, loop, available[indexOf(available, res.Name)], c, res)
	}

	if runErr != nil {
		run.Backends = trimUnstarted(run.Backends, started)
	}

	run.Comparison = compare.Compare(run.Entries())
	run.FinishedAt = h.now()

	if run.Comparison.Fastest != "" {
		span.SetAttributes(attribute.String("fastest", run.Comparison.Fastest))
	}
	h.logger.Info("benchmark run finished",
		slog.String("run_id", run.ID),
		slog.String("fastest", run.Comparison.Fastest),
		slog.Duration("elapsed", run.Elapsed()),
	)

	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, "cancelled")
	}
	return run, runErr
}

// probe records every backend in order and returns those that can run.
func (h *Harness) probe(ctx context.Context, run *result.Run) []backend.Backend {
	available := make([]backend.Backend, 0, len(h.opts.Backends))
	for _, b := range h.opts.Backends {
		res := result.BackendResult{
			Name:    b.Name(),
			Kind:    b.Kind().String(),
			Scope:   b.Scope().String(),
			Summary: sampling.Summary{Backend: b.Name()},
		}
		if err := b.Probe(ctx); err != nil {
			res.Unavailable = err.Error()
			res.Stats = stats.Calculate(nil)
			h.logger.Error("backend unavailable",
				slog.String("backend", b.Name()),
				slog.String("error", err.Error()),
			)
			if h.opts.Observer != nil {
				h.opts.Observer.BackendFinished(res)
			}
		} else {
			available = append(available, b)
		}
		run.Backends = append(run.Backends, res)
	}
	return available
}

func (h *Harness) newLoop() (*sampling.Loop, error) {
	opts := []sampling.Option{sampling.WithClock(h.now)}
	if h.opts.Observer != nil {
		opts = append(opts, sampling.WithProgress(h.opts.Observer.Progress))
	}
	return sampling.NewLoop(&h.cfg, opts...)
}

// sample fills res from one backend's sampling loop.
func (h *Harness) sample(ctx context.Context, loop *sampling.Loop, b backend.Backend, c *corpus.Corpus, res *result.BackendResult) {
	ctx, span := otel.Tracer("harness").Start(ctx, "harness.sample",
		trace.WithAttributes(attribute.String("backend", b.Name())),
	)
	defer span.End()

	if h.opts.Observer != nil {
		perPass := c.Len()
		if b.Scope() == backend.ScopeCorpus {
			perPass = 1
		}
		h.opts.Observer.BackendStarted(b.Name(), perPass)
	}

	series, summary := loop.Run(ctx, b, c)

	input := append([]float64(nil), series...)
	if h.opts.RemoveOutliers {
		if kept := stats.RemoveOutliers(input, h.opts.OutlierThreshold); len(kept) < len(input) {
			res.RawSamples = input
			input = append([]float64(nil), kept...)
		}
	}

	// Stats, Samples and the comparison's significance tests all see
	// the same series
	res.Samples = input
	res.Summary = summary
	res.Stats = stats.Calculate(input)

	span.SetAttributes(
		attribute.Int("samples", res.Stats.Count),
		attribute.Int("trials", summary.Trials),
		attribute.Int("trials.failed", summary.Failed),
	)
	if res.Stats.Count == 0 {
		span.SetStatus(codes.Error, "no samples")
		h.logger.Warn("backend produced no samples",
			slog.String("backend", b.Name()),
			slog.Int("trials", summary.Trials),
			slog.String("last_error", summary.LastError),
		)
	}

	if h.opts.Observer != nil {
		h.opts.Observer.BackendFinished(*res)
	}
}

func (h *Harness) settings() result.Settings {
	s := result.Settings{
		Mode:           h.cfg.Mode.String(),
		WarmupPasses:   h.cfg.WarmupPasses,
		TrialTimeout:   h.cfg.Trial.Timeout,
		RemoveOutliers: h.opts.RemoveOutliers,
	}
	if h.cfg.Mode == sampling.ModeIterations {
		s.Iterations = h.cfg.Iterations
	} else {
		s.Duration = h.cfg.Duration
	}
	return s
}

func indexOf(bs []backend.Backend, name string) int {
	for i, b := range bs {
		if b.Name() == name {
			return i
		}
	}
	return -1
}

// trimUnstarted drops available backends that never ran after a
// cancellation. Unavailable backends are kept; their probe result stands.
func trimUnstarted(backends []result.BackendResult, started map[string]bool) []result.BackendResult {
	kept := backends[:0]
	for _, b := range backends {
		if b.Available() && !started[b.Name] {
			continue
		}
		kept = append(kept, b)
	}
	return kept
}

// -----------------------------------------------------------------------------
// Outcome classification
// -----------------------------------------------------------------------------

// Unusable returns backends that were totally unavailable: the probe
// failed, or every measurement trial failed. A cancelled backend with no
// trials is not counted.
func Unusable(run *result.Run) []string {
	if run == nil {
		return nil
	}
	var names []string
	for _, b := range run.Backends {
		switch {
		case !b.Available():
			names = append(names, b.Name)
		case b.Summary.Trials > 0 && b.Summary.Succeeded == 0:
			names = append(names, b.Name)
		}
	}
	return names
}

// Classify returns an error wrapping backend.ErrBackendUnavailable when
// any backend was totally unavailable. The rest of the run is still valid
// and should be reported first.
func Classify(run *result.Run) error {
	names := Unusable(run)
	if len(names) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", backend.ErrBackendUnavailable, strings.Join(names, ", "))
}
