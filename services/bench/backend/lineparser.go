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
	"bufio"
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// lineSeparator splits the label from the value.
const lineSeparator = ": "

// MalformedLineError describes a rejected output line.
type MalformedLineError struct {
	// Line is the offending line, without the trailing newline.
	Line string

	// Reason says which rule the line broke.
	Reason string
}

// Error implements error.
func (e *MalformedLineError) Error() string {
	return fmt.Sprintf("%s: %s: %q", ErrMalformedOutputLine, e.Reason, e.Line)
}

// Unwrap allows errors.Is(err, ErrMalformedOutputLine).
func (e *MalformedLineError) Unwrap() error {
	return ErrMalformedOutputLine
}

// Measurement is one parsed output line.
type Measurement struct {
	Label string
	Value float64
}

// ParseLine parses a single "<label>: <number>" line.
//
// Description:
//
//	The label is everything before the last ": " and must be non-empty,
//	so labels may themselves contain the separator. The value must be a
//	finite number that is not negative. Surrounding whitespace is ignored.
//
// Inputs:
//   - line: One line of backend output.
//
// Outputs:
//   - Measurement: The label and value.
//   - error: *MalformedLineError wrapping ErrMalformedOutputLine.
func ParseLine(line string) (Measurement, error) {
	trimmed := strings.TrimSpace(line)

	idx := strings.LastIndex(trimmed, lineSeparator)
	if idx < 0 {
		return Measurement{}, &MalformedLineError{Line: line, Reason: "missing separator"}
	}

	label := strings.TrimSpace(trimmed[:idx])
	if label == "" {
		return Measurement{}, &MalformedLineError{Line: line, Reason: "empty label"}
	}

	raw := strings.TrimSpace(trimmed[idx+len(lineSeparator):])
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return Measurement{}, &MalformedLineError{Line: line, Reason: "value is not a number"}
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return Measurement{}, &MalformedLineError{Line: line, Reason: "value is not finite"}
	}
	if value < 0 {
		return Measurement{}, &MalformedLineError{Line: line, Reason: "value is negative"}
	}

	return Measurement{Label: label, Value: value}, nil
}

// ParseOutput parses every non-empty line of out.
//
// Outputs:
//   - []Measurement: Valid lines in output order.
//   - []error: One *MalformedLineError per rejected line.
func ParseOutput(out []byte) ([]Measurement, []error) {
	var (
		measurements []Measurement
		malformed    []error
	)

	scanner := bufio.NewScanner(bytes.NewReader(out))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		m, err := ParseLine(line)
		if err != nil {
			malformed = append(malformed, err)
			continue
		}
		measurements = append(measurements, m)
	}
	if err := scanner.Err(); err != nil {
		malformed = append(malformed, &MalformedLineError{Line: "", Reason: err.Error()})
	}

	return measurements, malformed
}
