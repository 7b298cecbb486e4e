package analytics

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"traffic-analytics/internal/models"
)

const (
	DefaultAlphabetSize = 5
	MaxAlphabetSize     = 26
)

var (
	ErrZeroMass        = errors.New("density has no positive finite mass")
	ErrInvalidAlphabet = errors.New("invalid alphabet size")
	ErrShapeMismatch   = errors.New("grid and density lengths differ")
)

func validAlphabet(size int) error {
	if size < 2 || size > MaxAlphabetSize {
		return fmt.Errorf("%w: %d (want 2..%d)", ErrInvalidAlphabet, size, MaxAlphabetSize)
	}
	return nil
}

// Renormalize divides every density sample by the total so the samples sum
// to 1. On an equal-width grid this is a proxy for the probability mass of
// each grid cell, not a numeric integral of the density.
func Renormalize(density []float64) ([]float64, error) {
	var total float64
	for _, d := range density {
		total += d
	}
	if !(total > 0) || math.IsInf(total, 0) {
		return nil, ErrZeroMass
	}

	p := make([]float64, len(density))
	for i, d := range density {
		p[i] = d / total
	}
	return p, nil
}

// Boundaries returns up to alphabetSize-1 ascending cut points that split
// the distribution into regions of roughly equal probability mass. The
// region above the last cut point runs to the end of the grid. A density
// without usable mass yields no cut points; a short result is a coarser
// but valid discretization.
func Boundaries(d models.Distribution, alphabetSize int) ([]float64, error) {
	if err := validAlphabet(alphabetSize); err != nil {
		return nil, err
	}
	if len(d.Grid) != len(d.Density) {
		return nil, fmt.Errorf("%w: %d grid points, %d density samples", ErrShapeMismatch, len(d.Grid), len(d.Density))
	}

	p, err := Renormalize(d.Density)
	if err != nil {
		return []float64{}, nil
	}

	boundaries := make([]float64, 0, alphabetSize-1)
	target := 1 / float64(alphabetSize)
	var s float64
	for i, mass := range p {
		s += mass
		if s < target {
			continue
		}
		if n := len(boundaries); n > 0 && d.Grid[i] <= boundaries[n-1] {
			continue
		}
		boundaries = append(boundaries, d.Grid[i])
		if len(boundaries) == alphabetSize-1 {
			break
		}
		target = float64(len(boundaries)+1) / float64(alphabetSize)
	}
	return boundaries, nil
}

// Symbolize maps each value to a letter by region: 'a' for values at or
// below the first cut point, 'b' up to the second, and so on.
func Symbolize(values, boundaries []float64) string {
	var sb strings.Builder
	sb.Grow(len(values))
	for _, v := range values {
		region := sort.SearchFloat64s(boundaries, v)
		sb.WriteByte(byte('a' + region))
	}
	return sb.String()
}
