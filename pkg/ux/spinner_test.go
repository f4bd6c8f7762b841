// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"errors"
	"strings"
	"testing"
	"time"
)

// =============================================================================
// Spinner Tests
// =============================================================================

func TestNewSpinner_Defaults(t *testing.T) {
	spin := NewSpinner("Sampling")
	if spin.message != "Sampling" {
		t.Errorf("expected message 'Sampling', got %q", spin.message)
	}
	if spin.spinType != SpinnerDots {
		t.Errorf("expected SpinnerDots, got %v", spin.spinType)
	}
	if spin.WithType(SpinnerCircle).spinType != SpinnerCircle {
		t.Error("WithType should set the type and return the spinner")
	}
}

func TestSpinner_MachineMode(t *testing.T) {
	_, errOut := capture(t, PersonalityMachine, func() {
		spin := NewSpinner("Sampling sonic")
		spin.Start()
		spin.Start() // no-op
		spin.Stop()
		spin.Stop() // no-op
	})
	if errOut != "PROGRESS: Sampling sonic\n" {
		t.Errorf("expected single progress line, got %q", errOut)
	}
}

func TestSpinner_StartStop_FullMode(t *testing.T) {
	_, errOut := capture(t, PersonalityFull, func() {
		spin := NewSpinner("Sampling")
		spin.Start()
		time.Sleep(3 * spinnerInterval)
		spin.UpdateMessage("Sampling goja")
		time.Sleep(2 * spinnerInterval)
		spin.Stop()
	})
	if !strings.Contains(errOut, "Sampling") {
		t.Errorf("expected animation frames on stderr, got %q", errOut)
	}
	if !strings.HasSuffix(errOut, "\r\033[K") {
		t.Errorf("expected line clear on stop, got %q", errOut)
	}
}

func TestWithSpinner(t *testing.T) {
	out, _ := capture(t, PersonalityMachine, func() {
		if err := WithSpinner("Fingerprint corpus", func() error { return nil }); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})
	if !strings.Contains(out, "OK: Fingerprint corpus") {
		t.Errorf("expected success line, got %q", out)
	}

	wantErr := errors.New("boom")
	_, errOut := capture(t, PersonalityMachine, func() {
		if err := WithSpinner("Fingerprint corpus", func() error { return wantErr }); !errors.Is(err, wantErr) {
			t.Errorf("expected wrapped error, got %v", err)
		}
	})
	if !strings.Contains(errOut, "ERROR: Fingerprint corpus: boom") {
		t.Errorf("expected error line, got %q", errOut)
	}
}

// =============================================================================
// ProgressSpinner Tests
// =============================================================================

func TestProgressSpinner_KnownTotal(t *testing.T) {
	p := NewProgressSpinner("sonic", 12, "trials")
	p.Increment()
	p.Increment()
	if p.Current() != 2 {
		t.Errorf("expected 2, got %d", p.Current())
	}
	if got := p.Message(); got != "sonic [2/12]" {
		t.Errorf("got %q", got)
	}
}

func TestProgressSpinner_UnknownTotal(t *testing.T) {
	p := NewProgressSpinner("sonic", 0, "trials")
	p.SetProgress(40)
	if got := p.Message(); got != "sonic [40 trials]" {
		t.Errorf("got %q", got)
	}
}

func TestSpinnerFrames_Exist(t *testing.T) {
	for _, st := range []SpinnerType{SpinnerDots, SpinnerLine, SpinnerCircle} {
		if len(spinnerFrames[st]) == 0 {
			t.Errorf("no frames for spinner type %d", st)
		}
	}
}
