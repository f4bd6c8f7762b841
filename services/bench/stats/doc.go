// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package stats computes descriptive statistics over latency sample series.
//
// # Overview
//
// A sample series is a flat []float64 of parse latencies in milliseconds,
// as produced by the sampling loop for one backend. Calculate turns a
// series into an immutable Statistics snapshot. It is a pure function:
// the same series always yields the same snapshot and the input slice is
// never modified.
//
// # Degenerate Series
//
//	┌───────┬──────────────────────────┬──────────────────────────┐
//	│ count │ mean / median / min / max│ standard deviation       │
//	├───────┼──────────────────────────┼──────────────────────────┤
//	│   0   │ ErrNoSamples             │ ErrNoSamples             │
//	│   1   │ the single value         │ ErrInsufficientSamples   │
//	│  ≥2   │ computed                 │ sample std-dev (n-1)     │
//	└───────┴──────────────────────────┴──────────────────────────┘
//
// Calculate never fails. The Availability field and the *Value accessors
// carry the "not available" signal so reporters can print N/A instead of
// a fabricated number.
//
// # Inference
//
// The package also provides the two-sample helpers used when comparing
// backends: Welch's t-test, Cohen's d and confidence intervals.
//
// # Thread Safety
//
// All functions are stateless and safe for concurrent use.
package stats
