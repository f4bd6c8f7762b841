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
	"sync"
	"testing"
)

func TestSetPersonality_AndGet(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonality(Personality{Level: PersonalityMinimal, ShowSpinner: false})

	got := GetPersonality()
	if got.Level != PersonalityMinimal {
		t.Errorf("expected minimal, got %v", got.Level)
	}
	if got.ShowSpinner {
		t.Error("expected spinner disabled")
	}
	if ShouldShowProgress() {
		t.Error("progress should follow ShowSpinner")
	}
}

func TestSetPersonalityLevel(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	tests := []struct {
		level       PersonalityLevel
		wantColors  bool
		wantSpinner bool
	}{
		{PersonalityFull, true, true},
		{PersonalityStandard, true, true},
		{PersonalityMinimal, true, true},
		{PersonalityMachine, false, false},
	}
	for _, tt := range tests {
		SetPersonalityLevel(tt.level)
		if got := ShouldShowColors(); got != tt.wantColors {
			t.Errorf("%s: ShouldShowColors = %v", tt.level, got)
		}
		if got := ShouldShowProgress(); got != tt.wantSpinner {
			t.Errorf("%s: ShouldShowProgress = %v", tt.level, got)
		}
	}
}

func TestParsePersonalityLevel(t *testing.T) {
	tests := map[string]PersonalityLevel{
		"full":     PersonalityFull,
		"F":        PersonalityFull,
		"std":      PersonalityStandard,
		"minimal":  PersonalityMinimal,
		" quiet ":  PersonalityMachine,
		"machine":  PersonalityMachine,
		"whatever": PersonalityStandard,
		"":         PersonalityStandard,
	}
	for in, want := range tests {
		if got := ParsePersonalityLevel(in); got != want {
			t.Errorf("ParsePersonalityLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestInitPersonality_FlagWins(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	t.Setenv(EnvPersonality, "full")
	InitPersonality("minimal")

	if got := GetPersonality().Level; got != PersonalityMinimal {
		t.Errorf("expected minimal, got %v", got)
	}
}

func TestInitPersonality_WithEnvVar(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	t.Setenv(EnvPersonality, "machine")
	InitPersonality("")

	if got := GetPersonality().Level; got != PersonalityMachine {
		t.Errorf("expected machine, got %v", got)
	}
}

func TestInitPersonality_NoTerminal(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	t.Setenv(EnvPersonality, "")
	InitPersonality("")

	// go test does not attach stdout to a terminal
	if !isTerminal() && GetPersonality().Level != PersonalityMachine {
		t.Errorf("expected machine mode without a terminal, got %v", GetPersonality().Level)
	}
}

func TestIsInteractive_MachineMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMachine)
	if IsInteractive() {
		t.Error("machine mode is never interactive")
	}
}

func TestDefaultPersonality(t *testing.T) {
	p := DefaultPersonality()
	if p.Level != PersonalityFull || !p.ShowSpinner {
		t.Errorf("unexpected default: %+v", p)
	}
}

func TestPersonality_ConcurrentAccess(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			SetPersonalityLevel(PersonalityMinimal)
		}()
		go func() {
			defer wg.Done()
			_ = GetPersonality()
		}()
	}
	wg.Wait()
}
