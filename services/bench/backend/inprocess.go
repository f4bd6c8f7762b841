// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package backend

import (
	"context"
	"fmt"
	"os"
	"time"
)

// DecodeFunc fully decodes data and returns the decoded tree.
//
// Decoders that only validate return a nil tree.
type DecodeFunc func(data []byte) (any, error)

// Decoder describes one in-process JSON decoder.
type Decoder struct {
	// Name is the backend name, for example "sonic".
	Name string

	// Library is the import path of the implementation.
	Library string

	// Decode performs the decode being timed.
	Decode DecodeFunc

	// Validates is true when Decode checks syntax without building a tree.
	// Such decoders are skipped by Verify.
	Validates bool
}

// InProcess times a Decoder inside the harness process.
//
// Description:
//
//	Each Measure reads the target file and then times one Decode call
//	with the monotonic clock. Only the decode is timed; the read is not,
//	so file system caching does not skew the comparison between decoders.
//
// Thread Safety: Not safe for concurrent use. Some decoders (goja) hold
// per-instance state.
type InProcess struct {
	decoder Decoder
	now     func() time.Time
}

// NewInProcess wraps decoder as a file-scoped Backend.
func NewInProcess(decoder Decoder) *InProcess {
	return &InProcess{decoder: decoder, now: time.Now}
}

// Name implements Backend.
func (p *InProcess) Name() string { return p.decoder.Name }

// Kind implements Backend.
func (p *InProcess) Kind() Kind { return KindInProcess }

// Scope implements Backend.
func (p *InProcess) Scope() Scope { return ScopeFile }

// Decoder returns the wrapped decoder.
func (p *InProcess) Decoder() Decoder { return p.decoder }

// Probe implements Backend. In-process decoders are always available.
func (p *InProcess) Probe(_ context.Context) error {
	if p.decoder.Decode == nil {
		return fmt.Errorf("%w: %s has no decode function", ErrBackendUnavailable, p.decoder.Name)
	}
	return nil
}

// Measure implements Backend.
//
// Outputs:
//   - []float64: Exactly one sample, the decode time in milliseconds.
//   - error: Wraps ErrTrialFailed if the file cannot be read or the
//     decoder rejects it.
func (p *InProcess) Measure(_ context.Context, target string) ([]float64, error) {
	data, err := os.ReadFile(target)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrTrialFailed, target, err)
	}

	start := p.now()
	_, err = p.decoder.Decode(data)
	elapsed := p.now().Sub(start)

	if err != nil {
		return nil, fmt.Errorf("%w: %s: decode %s: %v", ErrTrialFailed, p.decoder.Name, target, err)
	}

	return []float64{durationMillis(elapsed)}, nil
}

func durationMillis(d time.Duration) float64 {
	return float64(d.Nanoseconds()) / float64(time.Millisecond)
}
