// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package stats

import (
	"errors"
	"math"
	"math/rand"
	"reflect"
	"testing"
)

const epsilon = 1e-9

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) < epsilon
}

// -----------------------------------------------------------------------------
// Calculate Tests
// -----------------------------------------------------------------------------

func TestCalculate_Empty(t *testing.T) {
	s := Calculate(nil)

	if s.Count != 0 {
		t.Errorf("expected count 0, got %d", s.Count)
	}
	if s.Availability != NoSamples {
		t.Errorf("expected NoSamples, got %v", s.Availability)
	}
	if s.HasMean() {
		t.Error("empty series should not have a mean")
	}

	accessors := map[string]func() (float64, error){
		"mean":   s.MeanValue,
		"median": s.MedianValue,
		"min":    s.MinValue,
		"max":    s.MaxValue,
		"stddev": s.StdDevValue,
	}
	for name, fn := range accessors {
		if _, err := fn(); !errors.Is(err, ErrNoSamples) {
			t.Errorf("%s: expected ErrNoSamples, got %v", name, err)
		}
	}
}

func TestCalculate_SingleSample(t *testing.T) {
	s := Calculate([]float64{2.5})

	if s.Count != 1 {
		t.Errorf("expected count 1, got %d", s.Count)
	}
	if s.Availability != CentralOnly {
		t.Errorf("expected CentralOnly, got %v", s.Availability)
	}
	for name, v := range map[string]float64{
		"mean": s.Mean, "median": s.Median, "min": s.Min, "max": s.Max,
	} {
		if v != 2.5 {
			t.Errorf("%s: expected 2.5, got %v", name, v)
		}
	}

	if _, err := s.StdDevValue(); !errors.Is(err, ErrInsufficientSamples) {
		t.Errorf("expected ErrInsufficientSamples, got %v", err)
	}
	if s.StdDev != 0 || s.Variance != 0 {
		t.Error("dispersion must not be computed for a single sample")
	}
}

func TestCalculate_Basic(t *testing.T) {
	samples := []float64{4, 1, 3, 2}
	s := Calculate(samples)

	if s.Availability != Complete {
		t.Fatalf("expected Complete, got %v", s.Availability)
	}
	if s.Min != 1 || s.Max != 4 {
		t.Errorf("expected min 1 max 4, got %v %v", s.Min, s.Max)
	}
	if !approxEqual(s.Mean, 2.5) {
		t.Errorf("expected mean 2.5, got %v", s.Mean)
	}
	// Even count: average of the two middle elements
	if !approxEqual(s.Median, 2.5) {
		t.Errorf("expected median 2.5, got %v", s.Median)
	}
	// Sample variance of 1..4 is 5/3
	if !approxEqual(s.Variance, 5.0/3.0) {
		t.Errorf("expected variance 5/3, got %v", s.Variance)
	}
	if !approxEqual(s.StdDev, math.Sqrt(5.0/3.0)) {
		t.Errorf("expected stddev sqrt(5/3), got %v", s.StdDev)
	}
	if s.CILow >= s.Mean || s.CIHigh <= s.Mean {
		t.Errorf("confidence interval [%v, %v] should bracket mean %v", s.CILow, s.CIHigh, s.Mean)
	}

	// Input must not be reordered
	if !reflect.DeepEqual(samples, []float64{4, 1, 3, 2}) {
		t.Errorf("input was modified: %v", samples)
	}
}

func TestCalculate_OddMedian(t *testing.T) {
	s := Calculate([]float64{9, 1, 5})
	if s.Median != 5 {
		t.Errorf("expected median 5, got %v", s.Median)
	}
}

func TestCalculate_Ordering(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 200; trial++ {
		n := 2 + rng.Intn(50)
		samples := make([]float64, n)
		for i := range samples {
			samples[i] = rng.ExpFloat64() * 3
		}

		s := Calculate(samples)
		if !(s.Min <= s.Median && s.Median <= s.Max) {
			t.Fatalf("median out of range: %+v", s)
		}
		if !(s.Min <= s.Mean+epsilon && s.Mean <= s.Max+epsilon) {
			t.Fatalf("mean out of range: %+v", s)
		}
		if !(s.P90 <= s.P95 && s.P95 <= s.P99 && s.P99 <= s.Max) {
			t.Fatalf("percentiles not monotonic: %+v", s)
		}
	}
}

func TestCalculate_Idempotent(t *testing.T) {
	samples := []float64{0.7, 1.9, 0.4, 3.3, 1.1}
	first := Calculate(samples)
	second := Calculate(samples)

	if first != second {
		t.Errorf("statistics differ between runs:\n%+v\n%+v", first, second)
	}
}

func TestAvailability_String(t *testing.T) {
	tests := []struct {
		a    Availability
		want string
	}{
		{NoSamples, "no_samples"},
		{CentralOnly, "insufficient_samples"},
		{Complete, "complete"},
		{Availability(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.a.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", tt.a, got, tt.want)
		}
	}
}

// -----------------------------------------------------------------------------
// Outlier Tests
// -----------------------------------------------------------------------------

func TestRemoveOutliers(t *testing.T) {
	t.Run("removes spike", func(t *testing.T) {
		samples := []float64{10, 11, 10, 12, 11, 10, 1000}
		filtered := RemoveOutliers(samples, 1.5)
		if len(filtered) != 6 {
			t.Fatalf("expected 6 samples, got %d", len(filtered))
		}
		for _, v := range filtered {
			if v == 1000 {
				t.Error("outlier should have been removed")
			}
		}
	})

	t.Run("small series unchanged", func(t *testing.T) {
		samples := []float64{1, 100, 1000}
		if got := RemoveOutliers(samples, 1.5); len(got) != 3 {
			t.Errorf("expected unchanged series, got %v", got)
		}
	})
}

// -----------------------------------------------------------------------------
// Inference Tests
// -----------------------------------------------------------------------------

func TestWelchTTest(t *testing.T) {
	t.Run("clear difference", func(t *testing.T) {
		fast := []float64{1.0, 1.1, 0.9, 1.05, 0.95, 1.0, 1.02, 0.98}
		slow := []float64{4.0, 4.1, 3.9, 4.05, 3.95, 4.0, 4.02, 3.98}
		tStat, p := WelchTTest(fast, slow)
		if tStat >= 0 {
			t.Errorf("expected negative t for faster first set, got %v", tStat)
		}
		if p >= 0.05 {
			t.Errorf("expected significant p-value, got %v", p)
		}
	})

	t.Run("insufficient samples", func(t *testing.T) {
		_, p := WelchTTest([]float64{1}, []float64{2, 3})
		if p != 1 {
			t.Errorf("expected p=1, got %v", p)
		}
	})
}

func TestCohensD(t *testing.T) {
	fast := []float64{1, 2, 3}
	slow := []float64{11, 12, 13}
	d := CohensD(fast, slow)
	if d >= 0 {
		t.Errorf("expected negative d, got %v", d)
	}
	if CategorizeEffectSize(d) != EffectLarge {
		t.Errorf("expected large effect, got %v", CategorizeEffectSize(d))
	}
	if CohensD([]float64{1}, slow) != 0 {
		t.Error("expected 0 for single-sample input")
	}
}

func TestCategorizeEffectSize(t *testing.T) {
	tests := []struct {
		d    float64
		want EffectSizeCategory
	}{
		{0.1, EffectNegligible},
		{-0.3, EffectSmall},
		{0.6, EffectMedium},
		{-0.9, EffectLarge},
	}
	for _, tt := range tests {
		if got := CategorizeEffectSize(tt.d); got != tt.want {
			t.Errorf("CategorizeEffectSize(%v) = %v, want %v", tt.d, got, tt.want)
		}
	}
}

func TestConfidenceInterval(t *testing.T) {
	lo, hi := ConfidenceInterval([]float64{3}, 0.95)
	if lo != 3 || hi != 3 {
		t.Errorf("single sample interval = [%v, %v], want [3, 3]", lo, hi)
	}

	lo, hi = ConfidenceInterval(nil, 0.95)
	if lo != 0 || hi != 0 {
		t.Errorf("empty interval = [%v, %v], want [0, 0]", lo, hi)
	}

	samples := []float64{1, 2, 3, 4, 5}
	lo95, hi95 := ConfidenceInterval(samples, 0.95)
	lo99, hi99 := ConfidenceInterval(samples, 0.99)
	if !(lo99 < lo95 && hi99 > hi95) {
		t.Errorf("99%% interval [%v, %v] should contain 95%% interval [%v, %v]", lo99, hi99, lo95, hi95)
	}
}

func TestAvailability_TextRoundTrip(t *testing.T) {
	for _, a := range []Availability{NoSamples, CentralOnly, Complete} {
		text, err := a.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText(%v): %v", a, err)
		}
		var back Availability
		if err := back.UnmarshalText(text); err != nil || back != a {
			t.Errorf("round trip of %v gave %v, %v", a, back, err)
		}
	}

	var a Availability
	if err := a.UnmarshalText([]byte("bogus")); err == nil {
		t.Error("expected error for unknown name")
	}
}
