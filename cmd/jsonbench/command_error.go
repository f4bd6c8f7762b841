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
	"errors"
	"fmt"

	"github.com/AleutianAI/jsonbench/cmd/jsonbench/config"
	"github.com/AleutianAI/jsonbench/services/bench/backend"
	"github.com/AleutianAI/jsonbench/services/bench/corpus"
	"github.com/AleutianAI/jsonbench/services/bench/regression"
)

// Process exit codes.
const (
	ExitOK                 = 0
	ExitUsage              = 1
	ExitCorpusUnavailable  = 2
	ExitBackendUnavailable = 3
	ExitRegression         = 4
)

// CommandError wraps a command failure with the exit code it maps to.
//
// # Description
//
// Commands return a CommandError for expected failure modes so main can
// print one clear line and exit with a distinguishable status instead of
// a stack trace.
//
// # Example
//
//	err := NewCommandError("run", ExitCorpusUnavailable, loadErr)
//	fmt.Println(err.Error()) // "run (exit 2): corpus unavailable: ..."
//
//	var cmdErr *CommandError
//	if errors.As(err, &cmdErr) {
//	    os.Exit(cmdErr.ExitCode)
//	}
type CommandError struct {
	// Command is the subcommand that failed.
	Command string

	// ExitCode is the process exit status.
	ExitCode int

	// Wrapped is the underlying error.
	Wrapped error
}

// Error returns a formatted error message.
func (e *CommandError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("%s (exit %d): %v", e.Command, e.ExitCode, e.Wrapped)
	}
	return fmt.Sprintf("%s (exit %d)", e.Command, e.ExitCode)
}

// Unwrap returns the underlying error.
func (e *CommandError) Unwrap() error {
	return e.Wrapped
}

// NewCommandError creates a CommandError.
func NewCommandError(cmd string, exitCode int, wrapped error) *CommandError {
	return &CommandError{
		Command:  cmd,
		ExitCode: exitCode,
		Wrapped:  wrapped,
	}
}

// WrapCommandError classifies err by its sentinel and wraps it. An
// existing CommandError is returned as-is.
//
// # Inputs
//
//   - err: Error to wrap. Nil returns nil.
//   - cmd: Command name for context.
func WrapCommandError(err error, cmd string) error {
	if err == nil {
		return nil
	}
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr
	}
	return NewCommandError(cmd, classify(err), err)
}

// ExitCodeFor returns the process status for err.
func ExitCodeFor(err error) int {
	if err == nil {
		return ExitOK
	}
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.ExitCode
	}
	return classify(err)
}

func classify(err error) int {
	switch {
	case errors.Is(err, corpus.ErrCorpusUnavailable):
		return ExitCorpusUnavailable
	case errors.Is(err, backend.ErrBackendUnavailable):
		return ExitBackendUnavailable
	case errors.Is(err, regression.ErrGateFailed):
		return ExitRegression
	case errors.Is(err, config.ErrInvalidConfig), errors.Is(err, backend.ErrUnknownBackend):
		return ExitUsage
	default:
		return ExitUsage
	}
}
