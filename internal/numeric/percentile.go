// Package numeric holds the order statistics whose exact definition matters
// for calibrated QA thresholds.
package numeric

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// Percentile returns the p-th percentile (0..100) of values using linear
// interpolation between closest ranks, i.e. rank = p/100*(n-1). This is the
// estimator the phantom calibration constants were derived with; gonum's
// stat.Quantile only offers the empirical and CDF-interpolated variants.
// The input is not modified. NaN is returned for an empty input.
func Percentile(values []float64, p float64) float64 {
	n := len(values)
	if n == 0 {
		return math.NaN()
	}
	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[n-1]
	}
	rank := p / 100 * float64(n-1)
	lo := int(math.Floor(rank))
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

// Median is Percentile(values, 50): the mean of the two middle values for an
// even count.
func Median(values []float64) float64 {
	return Percentile(values, 50)
}

// MedianInt returns the median of integer indices as a float.
func MedianInt(values []int) float64 {
	f := make([]float64, len(values))
	for i, v := range values {
		f[i] = float64(v)
	}
	return Median(f)
}

// Span returns the value span max-min of values, or 0 when empty.
func Span(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return floats.Max(values) - floats.Min(values)
}
