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
	"encoding/json"
	"os"

	"github.com/nsf/jsondiff"
)

// Mismatch records a decoder that disagreed with the reference on a file.
type Mismatch struct {
	Backend string `json:"backend"`
	File    string `json:"file"`

	// Reason is either a decode error or "output differs".
	Reason string `json:"reason"`

	// Diff is a human readable difference, empty for decode errors.
	Diff string `json:"diff,omitempty"`
}

// exporter is implemented by VM values that convert to Go values.
type exporter interface {
	Export() any
}

// Verify checks that every tree-building in-process backend decodes each
// file to the same document as the reference decoder.
//
// Description:
//
//	The reference is encoding-json. Files the reference itself rejects are
//	skipped. A file that cannot be read is recorded as a mismatch against
//	the reference and the remaining files are still checked. Validating decoders and external backends are not checked.
//	Trees are re-encoded with encoding/json and compared with jsondiff,
//	numbers by value.
//
// Inputs:
//   - backends: Backends to check. Non in-process entries are ignored.
//   - files: Corpus file paths.
//
// Outputs:
//   - []Mismatch: Every disagreement and unreadable file, in file then
//     backend order.
func Verify(backends []Backend, files []string) []Mismatch {
	reference := BuiltinDecoders()[0]

	var mismatches []Mismatch
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			mismatches = append(mismatches, Mismatch{
				Backend: reference.Name,
				File:    path,
				Reason:  "read: " + err.Error(),
			})
			continue
		}

		want, err := canonical(reference, data)
		if err != nil {
			continue
		}

		for _, b := range backends {
			ip, ok := b.(*InProcess)
			if !ok || ip.decoder.Validates || ip.Name() == reference.Name {
				continue
			}

			got, err := canonical(ip.decoder, data)
			if err != nil {
				mismatches = append(mismatches, Mismatch{
					Backend: ip.Name(),
					File:    path,
					Reason:  err.Error(),
				})
				continue
			}

			diff, explanation := jsondiff.Compare(want, got, diffOptions())
			if diff != jsondiff.FullMatch {
				mismatches = append(mismatches, Mismatch{
					Backend: ip.Name(),
					File:    path,
					Reason:  "output differs: " + diff.String(),
					Diff:    explanation,
				})
			}
		}
	}

	return mismatches
}

func canonical(d Decoder, data []byte) ([]byte, error) {
	v, err := d.Decode(data)
	if err != nil {
		return nil, err
	}
	if e, ok := v.(exporter); ok {
		v = e.Export()
	}
	return json.Marshal(v)
}

func diffOptions() *jsondiff.Options {
	opts := jsondiff.DefaultConsoleOptions()
	opts.SkipMatches = true
	opts.CompareNumbers = func(a, b json.Number) bool {
		fa, errA := a.Float64()
		fb, errB := b.Float64()
		if errA != nil || errB != nil {
			return a == b
		}
		return fa == fb
	}
	return &opts
}
