package stream

import (
	"fmt"
	"log"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"traffic-analytics/internal/models"
)

const (
	DefaultFrequency = 5 * time.Minute

	// maxGridPoints bounds a single reindex so a mistyped range cannot
	// allocate an unbounded grid.
	maxGridPoints = 10_000_000
)

type GapFillPolicy int

const (
	// BackwardPropagate fills a gap with the nearest later known value.
	BackwardPropagate GapFillPolicy = iota
	// ForwardPropagate fills a gap with the nearest earlier known value.
	ForwardPropagate
)

func (p GapFillPolicy) String() string {
	switch p {
	case BackwardPropagate:
		return "backward"
	case ForwardPropagate:
		return "forward"
	default:
		return "unknown"
	}
}

func ParseGapFillPolicy(s string) (GapFillPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "backward", "bfill", "":
		return BackwardPropagate, nil
	case "forward", "ffill":
		return ForwardPropagate, nil
	default:
		return BackwardPropagate, fmt.Errorf("unknown gap fill policy %q", s)
	}
}

// DefaultExcluded lists the identifier, status and report metadata columns
// found in the traffic exports. Matching is exact and case-sensitive.
func DefaultExcluded() []string {
	return []string{
		TimestampColumn,
		"rain",
		"status",
		"avgMeasuredTime",
		"extID",
		"medianMeasuredTime",
		"_id",
		"REPORT_ID",
	}
}

type Options struct {
	Frequency time.Duration
	GapFill   GapFillPolicy
	// Excluded columns are neither parsed nor stored. nil selects
	// DefaultExcluded; an empty non-nil slice excludes nothing.
	Excluded []string
}

// Stream owns one sensor's normalized time series. The index is strictly
// increasing, evenly spaced at the stream frequency, and every feature
// column has a value at every index position.
type Stream struct {
	mu         sync.RWMutex
	frequency  time.Duration
	policy     GapFillPolicy
	names      []string
	index      []time.Time
	columns    map[string][]float64
	report     Report
	generation uint64
}

// Report counts what the most recent normalization removed.
type Report struct {
	Duplicates int `json:"duplicates"`
	OffGrid    int `json:"off_grid"`
	Trimmed    int `json:"trimmed"`
}

type row struct {
	ts     time.Time
	values []float64
}

// New parses rows against schema and normalizes them onto the grid spanning
// the first and last surviving timestamps.
func New(schema Schema, rows []models.RawRow, opts Options) (*Stream, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	if opts.Frequency < 0 {
		return nil, fmt.Errorf("%w: negative frequency %s", ErrMalformedInput, opts.Frequency)
	}
	if opts.Frequency == 0 {
		opts.Frequency = DefaultFrequency
	}
	if opts.Excluded == nil {
		opts.Excluded = DefaultExcluded()
	}

	excluded := make(map[string]struct{}, len(opts.Excluded))
	for _, name := range opts.Excluded {
		excluded[name] = struct{}{}
	}
	names := schema.features(excluded)

	parsed := make([]row, 0, len(rows))
	for i, raw := range rows {
		cell, ok := raw[TimestampColumn]
		if !ok {
			return nil, fmt.Errorf("%w: row %d has no %s column", ErrMalformedInput, i, TimestampColumn)
		}
		ts, err := ParseTimestamp(cell)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}

		values := make([]float64, 0, len(names))
		for _, f := range schema.Fields {
			cell, ok := raw[f.Name]
			if !ok {
				return nil, fmt.Errorf("%w: row %d has no %q column", ErrMalformedInput, i, f.Name)
			}
			if _, skip := excluded[f.Name]; skip || f.Kind != Numeric {
				continue
			}
			v, present, err := parseCell(f.Name, cell)
			if err != nil {
				return nil, fmt.Errorf("row %d: %w", i, err)
			}
			if !present {
				v = math.NaN()
			}
			values = append(values, v)
		}
		parsed = append(parsed, row{ts: ts, values: values})
	}

	parsed, duplicates := dropDuplicates(parsed)
	if len(parsed) == 0 {
		return nil, fmt.Errorf("%w: no readings with a unique timestamp", ErrMalformedInput)
	}
	sortRows(parsed)

	s := &Stream{
		frequency: opts.Frequency,
		policy:    opts.GapFill,
		names:     names,
	}

	index, columns, report, err := s.reindex(parsed, parsed[0].ts, parsed[len(parsed)-1].ts, opts.Frequency)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	report.Duplicates = duplicates
	s.index = index
	s.columns = columns
	s.report = report
	return s, nil
}

// TimeRange returns the first and last timestamps of the index.
func (s *Stream) TimeRange() (time.Time, time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index[0], s.index[len(s.index)-1]
}

func (s *Stream) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.index)
}

func (s *Stream) Frequency() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frequency
}

func (s *Stream) GapFill() GapFillPolicy {
	return s.policy
}

// Generation counts the successful resamples of the stream. Anything
// derived from its values can be keyed on it.
func (s *Stream) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// LastReport describes the most recent successful normalization.
func (s *Stream) LastReport() Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.report
}

// Resample rebuilds the index onto the grid [start, end] at frequency.
// Duplicate timestamps are dropped (every instance), grid points without a
// reading are filled by the stream's gap fill policy and points the policy
// cannot reach are trimmed. On error the stream is left unchanged.
func (s *Stream) Resample(start, end time.Time, frequency time.Duration) error {
	if frequency <= 0 {
		return fmt.Errorf("%w: frequency must be positive, got %s", ErrInvalidGrid, frequency)
	}
	if end.Before(start) {
		return fmt.Errorf("%w: end %s before start %s", ErrInvalidGrid, end.Format(time.RFC3339), start.Format(time.RFC3339))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current := make([]row, len(s.index))
	for i, ts := range s.index {
		values := make([]float64, len(s.names))
		for j, name := range s.names {
			values[j] = s.columns[name][i]
		}
		current[i] = row{ts: ts, values: values}
	}
	current, duplicates := dropDuplicates(current)
	sortRows(current)

	index, columns, report, err := s.reindex(current, start, end, frequency)
	if err != nil {
		return err
	}
	report.Duplicates = duplicates
	s.index = index
	s.columns = columns
	s.frequency = frequency
	s.report = report
	s.generation++
	return nil
}

// reindex places sorted rows onto the grid, fills gaps and trims what the
// policy cannot fill.
func (s *Stream) reindex(rows []row, start, end time.Time, frequency time.Duration) ([]time.Time, map[string][]float64, Report, error) {
	var report Report
	n := int64(end.Sub(start)/frequency) + 1
	if n > maxGridPoints {
		return nil, nil, report, fmt.Errorf("%w: %d grid points exceed limit %d", ErrInvalidGrid, n, maxGridPoints)
	}

	index := make([]time.Time, n)
	columns := make(map[string][]float64, len(s.names))
	for _, name := range s.names {
		columns[name] = make([]float64, n)
	}

	matched, p := 0, 0
	for i := range index {
		ts := start.Add(time.Duration(i) * frequency)
		index[i] = ts
		for p < len(rows) && rows[p].ts.Before(ts) {
			p++
		}
		hit := p < len(rows) && rows[p].ts.Equal(ts)
		if hit {
			matched++
		}
		for j, name := range s.names {
			if hit {
				columns[name][i] = rows[p].values[j]
			} else {
				columns[name][i] = math.NaN()
			}
		}
	}
	report.OffGrid = len(rows) - matched
	if report.OffGrid > 0 {
		log.Printf("Reindex dropped %d readings outside the %s grid", report.OffGrid, frequency)
	}

	for _, name := range s.names {
		fill(columns[name], s.policy)
	}

	lo, hi := filledSpan(columns, len(index))
	if lo > hi {
		return nil, nil, report, fmt.Errorf("%w: no grid point between %s and %s could be filled",
			ErrInvalidGrid, start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	report.Trimmed = len(index) - (hi - lo + 1)
	if report.Trimmed > 0 {
		log.Printf("Trimmed %d unfillable grid points (%s fill)", report.Trimmed, s.policy)
	}

	index = index[lo : hi+1]
	for name, values := range columns {
		columns[name] = values[lo : hi+1]
	}
	return index, columns, report, nil
}

func fill(values []float64, policy GapFillPolicy) {
	next := math.NaN()
	switch policy {
	case ForwardPropagate:
		for i := range values {
			if math.IsNaN(values[i]) {
				values[i] = next
			} else {
				next = values[i]
			}
		}
	default:
		for i := len(values) - 1; i >= 0; i-- {
			if math.IsNaN(values[i]) {
				values[i] = next
			} else {
				next = values[i]
			}
		}
	}
}

// filledSpan returns the first and last positions at which every column is
// defined. After a one-directional fill the undefined positions sit only at
// one edge, so everything between lo and hi is defined.
func filledSpan(columns map[string][]float64, n int) (int, int) {
	defined := func(i int) bool {
		for _, values := range columns {
			if math.IsNaN(values[i]) {
				return false
			}
		}
		return true
	}

	lo, hi := 0, n-1
	for lo < n && !defined(lo) {
		lo++
	}
	for hi >= lo && !defined(hi) {
		hi--
	}
	return lo, hi
}

// dropDuplicates removes every row whose timestamp occurs more than once.
func dropDuplicates(rows []row) ([]row, int) {
	counts := make(map[int64]int, len(rows))
	for _, r := range rows {
		counts[r.ts.UnixNano()]++
	}

	kept := rows[:0:0]
	dropped := 0
	for _, r := range rows {
		if counts[r.ts.UnixNano()] > 1 {
			dropped++
			continue
		}
		kept = append(kept, r)
	}
	if dropped > 0 {
		log.Printf("Dropped %d rows sharing a duplicated timestamp", dropped)
	}
	return kept, dropped
}

func sortRows(rows []row) {
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].ts.Before(rows[j].ts)
	})
}
