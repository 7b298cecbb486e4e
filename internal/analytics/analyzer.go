package analytics

import (
	"errors"
	"sync"
	"time"

	"traffic-analytics/internal/models"
)

const noDistribution = "no distribution available"

// Analyzer runs window analyses and keeps running counters about them.
type Analyzer struct {
	alphabetSize int
	stats        models.AnalyticsStats
	mu           sync.RWMutex
}

func NewAnalyzer(alphabetSize int) *Analyzer {
	if alphabetSize == 0 {
		alphabetSize = DefaultAlphabetSize
	}
	return &Analyzer{
		alphabetSize: alphabetSize,
		stats: models.AnalyticsStats{
			AlphabetSize: alphabetSize,
		},
	}
}

func (a *Analyzer) AlphabetSize() int {
	return a.alphabetSize
}

// Analyze computes statistics, the density estimate, its cut points and the
// symbol string for column over [start, end). alphabetSize 0 selects the
// analyzer's default. Windows too small or too flat for a density estimate
// still return their statistics, with Distribution nil and a Note.
func (a *Analyzer) Analyze(w Windower, column string, start, end time.Time, alphabetSize int) (models.WindowAnalysis, error) {
	if alphabetSize == 0 {
		alphabetSize = a.alphabetSize
	}
	if err := validAlphabet(alphabetSize); err != nil {
		return models.WindowAnalysis{}, err
	}

	values, err := w.Window(column, start, end)
	if err != nil {
		return models.WindowAnalysis{}, err
	}

	result := models.WindowAnalysis{
		Column:       column,
		Start:        start,
		End:          end,
		Count:        len(values),
		Statistics:   Statistics(values),
		AlphabetSize: alphabetSize,
		Boundaries:   []float64{},
	}

	dist, err := Estimate(values)
	switch {
	case errors.Is(err, ErrInsufficientData):
		result.Note = noDistribution
	case err != nil:
		return models.WindowAnalysis{}, err
	default:
		boundaries, err := Boundaries(dist, alphabetSize)
		if err != nil {
			return models.WindowAnalysis{}, err
		}
		result.Distribution = &dist
		result.Boundaries = boundaries
		result.Symbols = Symbolize(values, boundaries)
	}

	if len(values) > 0 {
		if empirical, err := EmpiricalBoundaries(values, alphabetSize); err == nil {
			result.EmpiricalBoundaries = empirical
		}
	}

	a.record(result)
	return result, nil
}

func (a *Analyzer) record(result models.WindowAnalysis) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.stats.TotalWindows++
	a.stats.LastAnalysisTime = time.Now()
	switch {
	case result.Distribution != nil:
		a.stats.TotalDistributions++
	case result.Count == 0:
		a.stats.EmptyWindows++
		a.stats.InsufficientWindows++
	default:
		a.stats.InsufficientWindows++
	}
}

func (a *Analyzer) GetCurrentStats() models.AnalyticsStats {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.stats
}
