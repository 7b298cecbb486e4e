package stream

import (
	"fmt"
	"sort"
	"time"

	"traffic-analytics/internal/models"
)

// span returns the index positions [lo, hi) with start <= ts < end.
// Callers hold at least a read lock.
func (s *Stream) span(start, end time.Time) (int, int) {
	if !start.Before(end) {
		return 0, 0
	}
	lo := sort.Search(len(s.index), func(i int) bool { return !s.index[i].Before(start) })
	hi := sort.Search(len(s.index), func(i int) bool { return !s.index[i].Before(end) })
	return lo, hi
}

// Window returns the values of column in the half-open interval
// [start, end), in timestamp order. An interval with no timestamps yields an
// empty slice.
func (s *Stream) Window(column string, start, end time.Time) ([]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	values, ok := s.columns[column]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFeature, column)
	}
	lo, hi := s.span(start, end)
	out := make([]float64, hi-lo)
	copy(out, values[lo:hi])
	return out, nil
}

// PointAtOrAfter returns the first reading at or after instant.
func (s *Stream) PointAtOrAfter(instant time.Time) (models.Reading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := sort.Search(len(s.index), func(i int) bool { return !s.index[i].Before(instant) })
	if i == len(s.index) {
		return models.Reading{}, fmt.Errorf("%w: no reading at or after %s", ErrNotFound, instant.Format(time.RFC3339))
	}
	return s.readingAt(i, s.names), nil
}

// Frame returns the readings in [start, end) restricted to columns, or to
// every feature column when none are given. Use Window for a single column
// as plain values.
func (s *Stream) Frame(start, end time.Time, columns ...string) ([]models.Reading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(columns) == 0 {
		columns = s.names
	}
	for _, c := range columns {
		if _, ok := s.columns[c]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownFeature, c)
		}
	}

	lo, hi := s.span(start, end)
	frame := make([]models.Reading, 0, hi-lo)
	for i := lo; i < hi; i++ {
		frame = append(frame, s.readingAt(i, columns))
	}
	return frame, nil
}

// FeatureNames returns the stored numeric columns in ingestion order.
// Excluded and text columns are never stored.
func (s *Stream) FeatureNames() []string {
	return append([]string(nil), s.names...)
}

func (s *Stream) readingAt(i int, columns []string) models.Reading {
	values := make(map[string]float64, len(columns))
	for _, c := range columns {
		values[c] = s.columns[c][i]
	}
	return models.Reading{Timestamp: s.index[i], Values: values}
}
