package numeric

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPercentileMatchesClosestRankInterpolation(t *testing.T) {
	values := []float64{4, 1, 3, 2}

	assert.InDelta(t, 1.0, Percentile(values, 0), 1e-12)
	assert.InDelta(t, 4.0, Percentile(values, 100), 1e-12)
	assert.InDelta(t, 2.5, Percentile(values, 50), 1e-12)
	// rank 0.05*3 = 0.15 -> 1 + 0.15*(2-1)
	assert.InDelta(t, 1.15, Percentile(values, 5), 1e-12)
	// rank 0.95*3 = 2.85 -> 3 + 0.85*(4-3)
	assert.InDelta(t, 3.85, Percentile(values, 95), 1e-12)

	// input order untouched
	assert.Equal(t, []float64{4, 1, 3, 2}, values)
}

func TestMedian(t *testing.T) {
	assert.Equal(t, 2.0, Median([]float64{3, 1, 2}))
	assert.Equal(t, 2.5, MedianInt([]int{1, 2, 3, 4}))
	assert.True(t, math.IsNaN(Median(nil)))
}

func TestSpan(t *testing.T) {
	assert.Equal(t, 6.0, Span([]float64{-1, 5, 2}))
	assert.Equal(t, 0.0, Span(nil))
}
