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
	"fmt"
	"math"
	"sort"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrNoSamples indicates that the series is empty.
	ErrNoSamples = errors.New("no samples collected")

	// ErrInsufficientSamples indicates that a statistic needs more samples
	// than the series holds (standard deviation needs at least two).
	ErrInsufficientSamples = errors.New("insufficient samples")
)

// -----------------------------------------------------------------------------
// Availability
// -----------------------------------------------------------------------------

// Availability describes which statistics a snapshot could compute.
type Availability int

const (
	// NoSamples means the series was empty; nothing is available.
	NoSamples Availability = iota

	// CentralOnly means exactly one sample: mean, median, min, max and
	// percentiles equal that sample; dispersion is not available.
	CentralOnly

	// Complete means every statistic was computed.
	Complete
)

// String returns the string representation of the availability.
func (a Availability) String() string {
	switch a {
	case NoSamples:
		return "no_samples"
	case CentralOnly:
		return "insufficient_samples"
	case Complete:
		return "complete"
	default:
		return "unknown"
	}
}

// MarshalText encodes the availability by name.
func (a Availability) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText decodes a name produced by MarshalText.
func (a *Availability) UnmarshalText(text []byte) error {
	switch string(text) {
	case "no_samples":
		*a = NoSamples
	case "insufficient_samples":
		*a = CentralOnly
	case "complete":
		*a = Complete
	default:
		return fmt.Errorf("unknown availability %q", text)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Statistics
// -----------------------------------------------------------------------------

// Statistics is an immutable snapshot of a latency series.
//
// Description:
//
//	All latency fields are in milliseconds. Fields that Availability
//	marks as unavailable are left at zero and must not be rendered as
//	numbers; use the *Value accessors to get the structured signal.
//
// Thread Safety: Safe for concurrent read access after creation.
type Statistics struct {
	// Count is the number of samples in the source series.
	Count int `json:"count"`

	// Availability tells which fields below were computed.
	Availability Availability `json:"availability"`

	Mean   float64 `json:"mean_ms"`
	Median float64 `json:"median_ms"`
	Min    float64 `json:"min_ms"`
	Max    float64 `json:"max_ms"`

	// StdDev is the sample standard deviation (n-1 denominator).
	StdDev float64 `json:"stddev_ms"`

	// Variance is StdDev squared.
	Variance float64 `json:"variance"`

	P90 float64 `json:"p90_ms"`
	P95 float64 `json:"p95_ms"`
	P99 float64 `json:"p99_ms"`

	// CILow and CIHigh bound the 95% confidence interval of the mean.
	CILow  float64 `json:"ci95_low_ms"`
	CIHigh float64 `json:"ci95_high_ms"`
}

// Calculate computes the statistics snapshot for a series.
//
// Description:
//
//	Computes count, mean, median, min, max, percentiles (linear
//	interpolation) and, for two or more samples, the sample standard
//	deviation, variance and 95% confidence interval. The input is
//	copied before sorting; the caller's slice is never modified.
//
// Inputs:
//   - samples: Latencies in milliseconds. May be empty.
//
// Outputs:
//   - Statistics: The snapshot. Never panics, even for empty input.
//
// Thread Safety: This function is stateless and safe for concurrent use.
//
// Example:
//
//	s := stats.Calculate([]float64{1.2, 0.9, 1.4})
//	if sd, err := s.StdDevValue(); err == nil {
//	    fmt.Printf("stddev %.3f ms\n", sd)
//	}
func Calculate(samples []float64) Statistics {
	s := Statistics{Count: len(samples)}
	if len(samples) == 0 {
		s.Availability = NoSamples
		return s
	}

	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)

	s.Min = sorted[0]
	s.Max = sorted[len(sorted)-1]
	s.Median = median(sorted)
	s.Mean = Mean(samples)
	s.P90 = percentile(sorted, 0.90)
	s.P95 = percentile(sorted, 0.95)
	s.P99 = percentile(sorted, 0.99)

	if len(samples) < 2 {
		s.Availability = CentralOnly
		return s
	}

	s.Variance = SampleVariance(samples, s.Mean)
	s.StdDev = math.Sqrt(s.Variance)
	s.CILow, s.CIHigh = ConfidenceInterval(samples, 0.95)
	s.Availability = Complete
	return s
}

// MeanValue returns the mean or ErrNoSamples.
func (s Statistics) MeanValue() (float64, error) {
	if s.Availability == NoSamples {
		return 0, ErrNoSamples
	}
	return s.Mean, nil
}

// MedianValue returns the median or ErrNoSamples.
func (s Statistics) MedianValue() (float64, error) {
	if s.Availability == NoSamples {
		return 0, ErrNoSamples
	}
	return s.Median, nil
}

// MinValue returns the minimum or ErrNoSamples.
func (s Statistics) MinValue() (float64, error) {
	if s.Availability == NoSamples {
		return 0, ErrNoSamples
	}
	return s.Min, nil
}

// MaxValue returns the maximum or ErrNoSamples.
func (s Statistics) MaxValue() (float64, error) {
	if s.Availability == NoSamples {
		return 0, ErrNoSamples
	}
	return s.Max, nil
}

// StdDevValue returns the sample standard deviation.
//
// Outputs:
//   - float64: The standard deviation when Availability is Complete.
//   - error: ErrNoSamples for an empty series, ErrInsufficientSamples for
//     a single-sample series.
func (s Statistics) StdDevValue() (float64, error) {
	switch s.Availability {
	case NoSamples:
		return 0, ErrNoSamples
	case CentralOnly:
		return 0, ErrInsufficientSamples
	default:
		return s.StdDev, nil
	}
}

// HasMean reports whether the snapshot carries a usable mean.
func (s Statistics) HasMean() bool {
	return s.Availability != NoSamples
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

// Mean returns the arithmetic mean of samples, or 0 for an empty slice.
func Mean(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, v := range samples {
		sum += v
	}
	return sum / float64(len(samples))
}

// SampleVariance returns the variance with an n-1 denominator.
// Returns 0 for fewer than two samples.
func SampleVariance(samples []float64, mean float64) float64 {
	if len(samples) < 2 {
		return 0
	}
	var sumSquaredDiff float64
	for _, v := range samples {
		diff := v - mean
		sumSquaredDiff += diff * diff
	}
	return sumSquaredDiff / float64(len(samples)-1)
}

// median expects sorted input.
func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// percentile calculates the p-th percentile of sorted samples using linear interpolation.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}

	index := p * float64(len(sorted)-1)
	lower := int(math.Floor(index))
	upper := int(math.Ceil(index))

	if lower == upper {
		return sorted[lower]
	}

	fraction := index - float64(lower)
	return sorted[lower]*(1-fraction) + sorted[upper]*fraction
}

// RemoveOutliers removes outliers using the IQR method.
//
// Description:
//
//	Values outside [Q1 - threshold*IQR, Q3 + threshold*IQR] are removed.
//	If removal would drop more than half of the samples, the original
//	series is returned unchanged. Order of the kept samples is preserved.
//
// Inputs:
//   - samples: Latency samples. Series with fewer than 4 samples are
//     returned unchanged.
//   - threshold: IQR multiplier (1.5 for mild outliers, 3.0 for extreme).
//
// Outputs:
//   - []float64: A new slice with outliers removed, or samples itself.
//
// Thread Safety: This function is stateless and safe for concurrent use.
func RemoveOutliers(samples []float64, threshold float64) []float64 {
	if len(samples) < 4 {
		return samples
	}

	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)

	q1 := percentile(sorted, 0.25)
	q3 := percentile(sorted, 0.75)
	iqr := q3 - q1

	lowerBound := q1 - threshold*iqr
	upperBound := q3 + threshold*iqr

	filtered := make([]float64, 0, len(samples))
	for _, v := range samples {
		if v >= lowerBound && v <= upperBound {
			filtered = append(filtered, v)
		}
	}

	// Don't remove too many samples
	if len(filtered) < len(samples)/2 {
		return samples
	}

	return filtered
}
