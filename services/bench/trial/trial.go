// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package trial performs a single timed backend invocation.
package trial

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/AleutianAI/jsonbench/services/bench/backend"
)

// ErrTimeout indicates a trial exceeded its per-trial timeout.
var ErrTimeout = errors.New("trial timed out")

// Outcome classifies how a trial ended.
type Outcome int

const (
	Succeeded Outcome = iota
	Failed
	TimedOut
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case TimedOut:
		return "timeout"
	default:
		return "unknown"
	}
}

// Result is the outcome of one trial.
type Result struct {
	// Samples holds the positive latencies in milliseconds. Empty unless
	// Outcome is Succeeded.
	Samples []float64

	// Outcome classifies the trial.
	Outcome Outcome

	// Err is the cause when Outcome is not Succeeded.
	Err error

	// Discarded counts samples dropped for being zero or negative.
	Discarded int

	// Elapsed is the wall time of the whole invocation, including process
	// startup for external backends.
	Elapsed time.Duration
}

// Config configures a Runner.
type Config struct {
	// Timeout bounds a single trial. Zero disables the bound.
	Timeout time.Duration

	// Logger receives trial failures at debug level. Defaults to slog.Default().
	Logger *slog.Logger
}

// Runner executes trials.
//
// Description:
//
//	Run never returns an error and never panics: every failure mode of
//	the backend, including a panic inside an in-process decoder, becomes
//	a Failed or TimedOut result. A failed trial contributes no sample.
//
// Thread Safety: Safe for concurrent use; holds no mutable state.
type Runner struct {
	timeout time.Duration
	logger  *slog.Logger
}

// NewRunner creates a Runner.
func NewRunner(cfg Config) *Runner {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{timeout: cfg.Timeout, logger: logger}
}

// Run invokes b exactly once against target.
//
// Inputs:
//   - ctx: Parent context. A cancelled parent fails the trial.
//   - b: The backend.
//   - target: A corpus file, or the corpus directory for corpus-scoped
//     backends.
//
// Outputs:
//   - Result: Always populated.
func (r *Runner) Run(ctx context.Context, b backend.Backend, target string) Result {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	samples, err := r.measure(ctx, b, target)
	elapsed := time.Since(start)

	if err != nil {
		res := Result{Outcome: Failed, Err: err, Elapsed: elapsed}
		if r.timeout > 0 && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			res.Outcome = TimedOut
			res.Err = fmt.Errorf("%w after %s: %v", ErrTimeout, r.timeout, err)
		}
		r.logger.Debug("trial did not succeed",
			slog.String("backend", b.Name()),
			slog.String("target", target),
			slog.String("outcome", res.Outcome.String()),
			slog.String("error", res.Err.Error()),
		)
		return res
	}

	res := Result{Outcome: Succeeded, Elapsed: elapsed}
	res.Samples = make([]float64, 0, len(samples))
	for _, s := range samples {
		if s > 0 {
			res.Samples = append(res.Samples, s)
		} else {
			res.Discarded++
		}
	}
	return res
}

// measure calls b.Measure and converts a panic into an error.
func (r *Runner) measure(ctx context.Context, b backend.Backend, target string) (samples []float64, err error) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("backend panicked",
				slog.String("backend", b.Name()),
				slog.Any("panic", p),
				slog.String("stack", string(debug.Stack())),
			)
			samples = nil
			err = fmt.Errorf("%w: %s panicked: %v", backend.ErrTrialFailed, b.Name(), p)
		}
	}()
	return b.Measure(ctx, target)
}
