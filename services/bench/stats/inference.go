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

import "math"

// EffectSizeCategory categorizes effect sizes using Cohen's conventions.
//
// Cohen's d thresholds: negligible (<0.2), small (0.2-0.5), medium (0.5-0.8),
// large (≥0.8).
type EffectSizeCategory int

const (
	// EffectNegligible indicates Cohen's d < 0.2
	EffectNegligible EffectSizeCategory = iota
	// EffectSmall indicates Cohen's d between 0.2 and 0.5
	EffectSmall
	// EffectMedium indicates Cohen's d between 0.5 and 0.8
	EffectMedium
	// EffectLarge indicates Cohen's d >= 0.8
	EffectLarge
)

// String returns the string representation of the effect size category.
func (e EffectSizeCategory) String() string {
	switch e {
	case EffectNegligible:
		return "negligible"
	case EffectSmall:
		return "small"
	case EffectMedium:
		return "medium"
	case EffectLarge:
		return "large"
	default:
		return "unknown"
	}
}

// CategorizeEffectSize returns the category for a given Cohen's d value.
// Uses the absolute value of d, so direction doesn't affect category.
func CategorizeEffectSize(d float64) EffectSizeCategory {
	absD := math.Abs(d)
	switch {
	case absD < 0.2:
		return EffectNegligible
	case absD < 0.5:
		return EffectSmall
	case absD < 0.8:
		return EffectMedium
	default:
		return EffectLarge
	}
}

// CohensD calculates Cohen's d effect size between two sample sets.
//
// Description:
//
//	Uses the pooled sample standard deviation for the denominator.
//	Positive d indicates samples1 > samples2 (samples1 is slower).
//
// Outputs:
//   - float64: Cohen's d. Returns 0 if either set has fewer than two
//     samples or the pooled standard deviation is 0.
func CohensD(samples1, samples2 []float64) float64 {
	if len(samples1) < 2 || len(samples2) < 2 {
		return 0
	}

	mean1 := Mean(samples1)
	mean2 := Mean(samples2)
	var1 := SampleVariance(samples1, mean1)
	var2 := SampleVariance(samples2, mean2)

	n1 := float64(len(samples1))
	n2 := float64(len(samples2))
	pooledVar := ((n1-1)*var1 + (n2-1)*var2) / (n1 + n2 - 2)
	pooledStdDev := math.Sqrt(pooledVar)

	if pooledStdDev == 0 {
		return 0
	}
	return (mean1 - mean2) / pooledStdDev
}

// WelchTTest performs Welch's t-test for two sample sets.
//
// Description:
//
//	Welch's t-test does not assume equal variances or sample sizes.
//
// Outputs:
//   - tStatistic: Negative if samples1 has the lower mean.
//   - pValue: Approximate two-tailed p-value. Returns 1 if either set has
//     fewer than two samples or both have zero variance.
//
// Limitations:
//   - Uses the normal approximation for df >= 30 and a rough correction
//     below that.
func WelchTTest(samples1, samples2 []float64) (tStatistic float64, pValue float64) {
	if len(samples1) < 2 || len(samples2) < 2 {
		return 0, 1
	}

	mean1 := Mean(samples1)
	mean2 := Mean(samples2)
	var1 := SampleVariance(samples1, mean1)
	var2 := SampleVariance(samples2, mean2)

	n1 := float64(len(samples1))
	n2 := float64(len(samples2))

	se := math.Sqrt(var1/n1 + var2/n2)
	if se == 0 {
		return 0, 1
	}

	tStatistic = (mean1 - mean2) / se

	// Welch-Satterthwaite degrees of freedom
	num := math.Pow(var1/n1+var2/n2, 2)
	denom := math.Pow(var1/n1, 2)/(n1-1) + math.Pow(var2/n2, 2)/(n2-1)
	if denom == 0 {
		return tStatistic, 1
	}
	df := num / denom

	if df >= 30 || df <= 2 {
		pValue = 2 * normalCDF(-math.Abs(tStatistic))
	} else {
		pValue = 2 * normalCDF(-math.Abs(tStatistic)*math.Sqrt((df-2)/df))
	}
	return tStatistic, pValue
}

func normalCDF(x float64) float64 {
	return 0.5 * (1 + math.Erf(x/math.Sqrt(2)))
}

// ConfidenceInterval calculates a symmetric confidence interval for the mean.
//
// Description:
//
//	Uses t-distribution critical values for n < 30 and z-scores above.
//	Supported levels: 0.90, 0.95, 0.99.
//
// Outputs:
//   - lower, upper: Interval bounds in the unit of the samples. For a
//     single sample both bounds equal it; for none both are 0.
func ConfidenceInterval(samples []float64, confidenceLevel float64) (lower, upper float64) {
	if len(samples) < 2 {
		if len(samples) == 1 {
			return samples[0], samples[0]
		}
		return 0, 0
	}

	mean := Mean(samples)
	variance := SampleVariance(samples, mean)
	stdErr := math.Sqrt(variance / float64(len(samples)))

	margin := tCriticalValue(len(samples)-1, confidenceLevel) * stdErr
	return mean - margin, mean + margin
}

// tCriticalValue returns the two-tailed t-distribution critical value.
func tCriticalValue(df int, confidenceLevel float64) float64 {
	t90 := []float64{6.314, 2.920, 2.353, 2.132, 2.015, 1.943, 1.895, 1.860, 1.833, 1.812,
		1.796, 1.782, 1.771, 1.761, 1.753, 1.746, 1.740, 1.734, 1.729, 1.725,
		1.721, 1.717, 1.714, 1.711, 1.708, 1.706, 1.703, 1.701, 1.699, 1.697}
	t95 := []float64{12.706, 4.303, 3.182, 2.776, 2.571, 2.447, 2.365, 2.306, 2.262, 2.228,
		2.201, 2.179, 2.160, 2.145, 2.131, 2.120, 2.110, 2.101, 2.093, 2.086,
		2.080, 2.074, 2.069, 2.064, 2.060, 2.056, 2.052, 2.048, 2.045, 2.042}
	t99 := []float64{63.657, 9.925, 5.841, 4.604, 4.032, 3.707, 3.499, 3.355, 3.250, 3.169,
		3.106, 3.055, 3.012, 2.977, 2.947, 2.921, 2.898, 2.878, 2.861, 2.845,
		2.831, 2.819, 2.807, 2.797, 2.787, 2.779, 2.771, 2.763, 2.756, 2.750}

	var table []float64
	var z float64
	switch {
	case confidenceLevel >= 0.99:
		table, z = t99, 2.576
	case confidenceLevel >= 0.95:
		table, z = t95, 1.96
	default:
		table, z = t90, 1.645
	}

	if df < 1 {
		df = 1
	}
	if df > len(table) {
		return z
	}
	return table[df-1]
}
