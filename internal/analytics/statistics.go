package analytics

import (
	"math"
	"time"

	"traffic-analytics/internal/models"
)

// Windower is the read side of a sensor stream the analytics need.
type Windower interface {
	Window(column string, start, end time.Time) ([]float64, error)
}

// Statistics summarizes values. An empty slice yields the zero record, so
// "no data" and "all zeros" look the same to a caller that ignores the
// window length. Std is the sample deviation and is 0 for a single value.
func Statistics(values []float64) models.Statistics {
	if len(values) == 0 {
		return models.Statistics{}
	}

	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}

	return models.Statistics{
		Mean: mean(values),
		Std:  sampleStd(values),
		Min:  lo,
		Max:  hi,
	}
}

func WindowStatistics(w Windower, column string, start, end time.Time) (models.Statistics, error) {
	values, err := w.Window(column, start, end)
	if err != nil {
		return models.Statistics{}, err
	}
	return Statistics(values), nil
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func sampleStd(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}

	m := mean(values)
	var variance float64
	for _, v := range values {
		diff := v - m
		variance += diff * diff
	}

	return math.Sqrt(variance / float64(len(values)-1))
}
