// Package stats holds the small numeric helpers shared by the analytics packages.
package stats

import (
	"math"
	"slices"

	"github.com/samber/lo"
)

// Mean returns the arithmetic mean, or 0 for no values.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return lo.Sum(values) / float64(len(values))
}

// StdDev returns the population standard deviation, or 0 for fewer than two values.
func StdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := Mean(values)
	variance := lo.SumBy(values, func(v float64) float64 {
		return (v - mean) * (v - mean)
	}) / float64(len(values))
	return math.Sqrt(variance)
}

// Sorted returns an ascending copy of values.
func Sorted(values []float64) []float64 {
	out := slices.Clone(values)
	slices.Sort(out)
	return out
}

// Percentile picks sorted[int(n*p)], clamped to the last element. sorted must be ascending and non-empty.
func Percentile(sorted []float64, p float64) float64 {
	idx := int(float64(len(sorted)) * p)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	if idx < 0 {
		idx = 0
	}
	return sorted[idx]
}

// Pearson returns the linear correlation coefficient of x and y.
// It is 0 when the series differ in length, have fewer than three points, or either is constant.
func Pearson(x, y []float64) float64 {
	n := len(x)
	if n != len(y) || n < 3 {
		return 0
	}
	meanX, meanY := Mean(x), Mean(y)
	var num, sumX2, sumY2 float64
	for i := range x {
		dx, dy := x[i]-meanX, y[i]-meanY
		num += dx * dy
		sumX2 += dx * dx
		sumY2 += dy * dy
	}
	den := math.Sqrt(sumX2 * sumY2)
	if den == 0 {
		return 0
	}
	return num / den
}

// PercentChange returns (current-previous)/previous*100, or 0 when previous is 0.
func PercentChange(current, previous float64) float64 {
	if previous == 0 {
		return 0
	}
	return (current - previous) / previous * 100
}
