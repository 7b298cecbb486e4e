package analytics

import (
	"errors"
	"fmt"
	"math"

	"traffic-analytics/internal/models"
)

var (
	ErrInsufficientData = errors.New("insufficient data for density estimation")
	// ErrDegenerateSample wraps ErrInsufficientData: a zero-variance sample
	// has no usable kernel bandwidth.
	ErrDegenerateSample = fmt.Errorf("%w: zero variance sample", ErrInsufficientData)
)

// ScottBandwidth returns Scott's rule for a one-dimensional Gaussian kernel:
// the sample standard deviation scaled by n^(-1/5).
func ScottBandwidth(values []float64) float64 {
	return sampleStd(values) * math.Pow(float64(len(values)), -0.2)
}

// Estimate fits a Gaussian kernel density estimate to values and samples it
// at len(values) evenly spaced points from min to max inclusive. The density
// is not normalized over the grid.
func Estimate(values []float64) (models.Distribution, error) {
	n := len(values)
	if n < 2 {
		return models.Distribution{}, fmt.Errorf("%w: got %d samples, need at least 2", ErrInsufficientData, n)
	}

	h := ScottBandwidth(values)
	if h == 0 || math.IsNaN(h) || math.IsInf(h, 0) {
		return models.Distribution{}, ErrDegenerateSample
	}

	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}

	grid := make([]float64, n)
	step := (hi - lo) / float64(n-1)
	for i := range grid {
		grid[i] = lo + float64(i)*step
	}
	grid[n-1] = hi

	norm := 1 / (float64(n) * h * math.Sqrt(2*math.Pi))
	density := make([]float64, n)
	for i, x := range grid {
		var sum float64
		for _, v := range values {
			u := (x - v) / h
			sum += math.Exp(-0.5 * u * u)
		}
		density[i] = sum * norm
	}

	return models.Distribution{Grid: grid, Density: density}, nil
}
