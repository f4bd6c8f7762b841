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
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// maxStderrInError bounds how much child stderr is quoted in an error.
const maxStderrInError = 512

// ExternalConfig configures an External backend.
type ExternalConfig struct {
	// Name overrides the backend name. Defaults to the executable base
	// name, suffixed with ":<selector>" when a selector is set.
	Name string

	// Path is the executable, absolute or resolved through PATH.
	Path string

	// Selector is passed as the first argument when non-empty, choosing
	// a decoder inside a multi-decoder executable.
	Selector string

	// Scope selects whether the executable receives a file or the corpus
	// directory. The zero value is ScopeFile; configuration built from
	// the CLI or jsonbench.yaml goes through ParseScope, where an empty
	// scope means ScopeCorpus.
	Scope Scope

	// Env holds extra KEY=VALUE pairs appended to the inherited environment.
	Env []string

	// Logger receives malformed line warnings. Defaults to slog.Default().
	Logger *slog.Logger
}

// External runs a decoder executable and parses the timings it prints.
//
// Description:
//
//	Each Measure runs "<path> [selector] <target>" once, waits for it to
//	exit, and parses stdout with ParseOutput. Every valid line becomes a
//	sample, so a corpus-scoped invocation yields one sample per file the
//	executable reports. Malformed lines among valid ones are skipped and
//	logged.
//
// Thread Safety: Safe for concurrent use; holds no mutable state.
type External struct {
	name     string
	path     string
	selector string
	scope    Scope
	env      []string
	logger   *slog.Logger
}

// NewExternal creates an External backend.
//
// Outputs:
//   - *External: The backend. Never nil when error is nil.
//   - error: Non-nil if Path is empty.
func NewExternal(cfg ExternalConfig) (*External, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("external backend: path is required")
	}

	name := cfg.Name
	if name == "" {
		name = filepath.Base(cfg.Path)
		if cfg.Selector != "" {
			name += ":" + cfg.Selector
		}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &External{
		name:     name,
		path:     cfg.Path,
		selector: cfg.Selector,
		scope:    cfg.Scope,
		env:      cfg.Env,
		logger:   logger.With(slog.String("backend", name)),
	}, nil
}

// Name implements Backend.
func (e *External) Name() string { return e.name }

// Kind implements Backend.
func (e *External) Kind() Kind { return KindExternal }

// Scope implements Backend.
func (e *External) Scope() Scope { return e.scope }

// Path returns the configured executable.
func (e *External) Path() string { return e.path }

// Selector returns the configured selector, possibly empty.
func (e *External) Selector() string { return e.selector }

// Probe implements Backend by resolving the executable.
func (e *External) Probe(_ context.Context) error {
	if _, err := exec.LookPath(e.path); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrBackendUnavailable, e.name, err)
	}
	return nil
}

// Measure implements Backend.
//
// Outputs:
//   - []float64: One sample per valid output line, in output order.
//   - error: ctx.Err() if the context ended the process, ErrTrialFailed
//     on launch failure or non-zero exit, *MalformedLineError or
//     ErrMalformedOutputLine if no line was valid.
func (e *External) Measure(ctx context.Context, target string) ([]float64, error) {
	args := make([]string, 0, 2)
	if e.selector != "" {
		args = append(args, e.selector)
	}
	args = append(args, target)

	cmd := exec.CommandContext(ctx, e.path, args...)
	cmd.WaitDelay = time.Second
	if len(e.env) > 0 {
		cmd.Env = append(cmd.Environ(), e.env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("%s: %w", e.name, ctxErr)
	}
	if runErr != nil {
		return nil, fmt.Errorf("%w: %s: %v%s", ErrTrialFailed, e.name, runErr, stderrSuffix(stderr.Bytes()))
	}

	measurements, malformed := ParseOutput(stdout.Bytes())
	for _, err := range malformed {
		e.logger.Warn("skipping malformed output line", slog.String("error", err.Error()))
	}

	if len(measurements) == 0 {
		if len(malformed) > 0 {
			return nil, malformed[0]
		}
		return nil, fmt.Errorf("%w: %s produced no timing lines", ErrMalformedOutputLine, e.name)
	}

	samples := make([]float64, len(measurements))
	for i, m := range measurements {
		samples[i] = m.Value
	}
	return samples, nil
}

func stderrSuffix(b []byte) string {
	s := strings.TrimSpace(string(b))
	if s == "" {
		return ""
	}
	if len(s) > maxStderrInError {
		s = s[:maxStderrInError] + "..."
	}
	return ": " + s
}
