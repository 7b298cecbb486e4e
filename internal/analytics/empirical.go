package analytics

import (
	"fmt"

	"github.com/influxdata/tdigest"
)

const digestCompression = 1000

// EmpiricalBoundaries computes the equal-mass cut points from the sample
// quantiles of values instead of a density estimate. Repeated quantiles are
// collapsed so the result stays strictly ascending.
func EmpiricalBoundaries(values []float64, alphabetSize int) ([]float64, error) {
	if err := validAlphabet(alphabetSize); err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: empty sample", ErrInsufficientData)
	}

	td := tdigest.NewWithCompression(digestCompression)
	for _, v := range values {
		td.Add(v, 1)
	}

	boundaries := make([]float64, 0, alphabetSize-1)
	for k := 1; k < alphabetSize; k++ {
		q := td.Quantile(float64(k) / float64(alphabetSize))
		if n := len(boundaries); n > 0 && q <= boundaries[n-1] {
			continue
		}
		boundaries = append(boundaries, q)
	}
	return boundaries, nil
}
