// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package backend defines the decoders under measurement.
//
// A Backend is either in-process (a Go JSON decoder timed around a single
// decode call) or external (an executable that decodes and reports its own
// per-file timings on stdout). Both produce latency samples in
// milliseconds; callers never need to know which kind they hold.
package backend

import (
	"context"
	"errors"
	"fmt"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrTrialFailed indicates a single invocation did not produce samples:
	// the decoder rejected the input, the process exited non-zero, or the
	// target could not be read.
	ErrTrialFailed = errors.New("trial failed")

	// ErrMalformedOutputLine indicates an external backend printed a line
	// that does not match "<label>: <number>".
	ErrMalformedOutputLine = errors.New("malformed output line")

	// ErrBackendUnavailable indicates a backend can never run, for example
	// because its executable is missing.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrDuplicateBackend indicates a name is already registered.
	ErrDuplicateBackend = errors.New("backend already registered")

	// ErrUnknownBackend indicates a lookup for an unregistered name.
	ErrUnknownBackend = errors.New("unknown backend")
)

// -----------------------------------------------------------------------------
// Kind and Scope
// -----------------------------------------------------------------------------

// Kind distinguishes in-process decoders from external executables.
type Kind int

const (
	KindInProcess Kind = iota
	KindExternal
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindInProcess:
		return "in-process"
	case KindExternal:
		return "external"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Scope defines what one invocation covers.
type Scope int

const (
	// ScopeFile means Measure receives one corpus file per call.
	ScopeFile Scope = iota

	// ScopeCorpus means Measure receives the corpus directory and covers
	// every file in a single call.
	ScopeCorpus
)

// String returns the scope name as used in configuration.
func (s Scope) String() string {
	switch s {
	case ScopeFile:
		return "file"
	case ScopeCorpus:
		return "corpus"
	default:
		return fmt.Sprintf("scope(%d)", int(s))
	}
}

// ParseScope parses "file" or "corpus".
func ParseScope(s string) (Scope, error) {
	switch s {
	case "file":
		return ScopeFile, nil
	case "corpus", "":
		return ScopeCorpus, nil
	default:
		return 0, fmt.Errorf("invalid scope %q: must be file or corpus", s)
	}
}

// -----------------------------------------------------------------------------
// Backend
// -----------------------------------------------------------------------------

// Backend is a decoder that can be timed.
//
// Thread Safety: Implementations need not be safe for concurrent use;
// trials are always run sequentially.
type Backend interface {
	// Name is unique within a Registry.
	Name() string

	// Kind reports how the backend is invoked.
	Kind() Kind

	// Scope reports whether Measure takes a file or the corpus directory.
	Scope() Scope

	// Probe reports ErrBackendUnavailable if the backend can never run.
	Probe(ctx context.Context) error

	// Measure performs exactly one invocation against target and returns
	// the latencies it observed, in milliseconds.
	//
	// An error means no sample from this invocation should be trusted.
	Measure(ctx context.Context, target string) ([]float64, error)
}
