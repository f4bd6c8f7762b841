// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/AleutianAI/jsonbench/services/bench/result"
)

// JSONReporter writes the full run record as JSON.
type JSONReporter struct {
	out            io.Writer
	pretty         bool
	includeSamples bool
}

// NewJSONReporter creates a JSON reporter. pretty indents the output.
// Raw samples are included by default.
func NewJSONReporter(out io.Writer, pretty bool) *JSONReporter {
	return &JSONReporter{out: out, pretty: pretty, includeSamples: true}
}

// WithoutSamples drops raw series from the output.
func (r *JSONReporter) WithoutSamples() *JSONReporter {
	r.includeSamples = false
	return r
}

// Report implements Reporter.
func (r *JSONReporter) Report(run *result.Run) error {
	if run == nil {
		return errors.New("nil run")
	}
	if !r.includeSamples {
		run = run.WithoutSamples()
	}

	enc := json.NewEncoder(r.out)
	if r.pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(run); err != nil {
		return fmt.Errorf("encode run: %w", err)
	}
	return nil
}

// WriteJSONFile writes run to path atomically through a temp file.
func WriteJSONFile(path string, run *result.Run) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".jsonbench-*.json")
	if err != nil {
		return fmt.Errorf("create temp report: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := NewJSONReporter(tmp, true).Report(run); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp report: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("write report %s: %w", path, err)
	}
	return nil
}
