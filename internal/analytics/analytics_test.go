package analytics

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"testing"
	"time"

	"traffic-analytics/internal/models"
)

func uniform(lo, hi float64, n int) []float64 {
	values := make([]float64, n)
	for i := range values {
		values[i] = lo + (hi-lo)*float64(i)/float64(n-1)
	}
	return values
}

func TestStatisticsEmptyWindow(t *testing.T) {
	if got := Statistics(nil); got != (models.Statistics{}) {
		t.Errorf("empty statistics=%+v, want all zero", got)
	}
}

func TestStatisticsSample(t *testing.T) {
	got := Statistics([]float64{2, 4, 4, 4, 5, 5, 7, 9})

	if got.Mean != 5 || got.Min != 2 || got.Max != 9 {
		t.Errorf("mean/min/max=%v/%v/%v, want 5/2/9", got.Mean, got.Min, got.Max)
	}
	if want := math.Sqrt(32.0 / 7.0); math.Abs(got.Std-want) > 1e-12 {
		t.Errorf("std=%v, want sample std %v", got.Std, want)
	}

	single := Statistics([]float64{42})
	if single.Std != 0 || single.Mean != 42 {
		t.Errorf("single=%+v, want mean 42 std 0", single)
	}
}

func TestEstimateRequiresTwoSamples(t *testing.T) {
	for _, values := range [][]float64{nil, {3}} {
		if _, err := Estimate(values); !errors.Is(err, ErrInsufficientData) {
			t.Errorf("Estimate(%v) err=%v, want ErrInsufficientData", values, err)
		}
	}
}

func TestEstimateConstantSample(t *testing.T) {
	values := []float64{1, 1, 1, 1, 1, 1, 1, 1, 1, 1}
	_, err := Estimate(values)
	if !errors.Is(err, ErrDegenerateSample) || !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("err=%v, want ErrDegenerateSample wrapping ErrInsufficientData", err)
	}
}

func TestEstimateShape(t *testing.T) {
	values := []float64{12, 3, 7, 7, 9, 15, 4, 8}
	d, err := Estimate(values)
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}

	if len(d.Grid) != len(values) || len(d.Density) != len(values) {
		t.Fatalf("len grid=%d density=%d, want %d", len(d.Grid), len(d.Density), len(values))
	}
	if d.Grid[0] != 3 || d.Grid[len(d.Grid)-1] != 15 {
		t.Errorf("grid spans [%v, %v], want [3, 15]", d.Grid[0], d.Grid[len(d.Grid)-1])
	}
	for i := range d.Grid {
		if i > 0 && d.Grid[i] <= d.Grid[i-1] {
			t.Errorf("grid[%d]=%v not above grid[%d]=%v", i, d.Grid[i], i-1, d.Grid[i-1])
		}
		if !(d.Density[i] > 0) {
			t.Errorf("density[%d]=%v, want positive", i, d.Density[i])
		}
	}
}

func TestScottBandwidth(t *testing.T) {
	values := uniform(0, 100, 101)
	want := sampleStd(values) * math.Pow(101, -0.2)
	if got := ScottBandwidth(values); math.Abs(got-want) > 1e-12 {
		t.Errorf("bandwidth=%v, want %v", got, want)
	}
}

// TestRenormalizeScaleInvariant checks the renormalized mass sums to 1 and
// does not depend on the scale of the raw estimate.
func TestRenormalizeScaleInvariant(t *testing.T) {
	d, err := Estimate([]float64{1, 2, 2, 3, 5, 8, 13})
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}

	p, err := Renormalize(d.Density)
	if err != nil {
		t.Fatalf("Renormalize: %v", err)
	}
	var sum float64
	for _, v := range p {
		sum += v
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Errorf("sum=%v, want 1", sum)
	}

	scaled := make([]float64, len(d.Density))
	for i, v := range d.Density {
		scaled[i] = v * 1000
	}
	q, _ := Renormalize(scaled)
	for i := range p {
		if math.Abs(p[i]-q[i]) > 1e-12 {
			t.Errorf("p[%d]=%v, scaled=%v", i, p[i], q[i])
		}
	}

	if _, err := Renormalize([]float64{0, 0, 0}); !errors.Is(err, ErrZeroMass) {
		t.Errorf("zero density err=%v, want ErrZeroMass", err)
	}
}

func TestBoundariesUniform(t *testing.T) {
	d, err := Estimate(uniform(0, 100, 101))
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}

	b, err := Boundaries(d, 5)
	if err != nil {
		t.Fatalf("Boundaries: %v", err)
	}
	want := []float64{20, 40, 60, 80}
	if len(b) != len(want) {
		t.Fatalf("boundaries=%v, want 4 near %v", b, want)
	}
	// Kernel smoothing leaks mass past both edges, pulling the outer cut
	// points a couple of grid steps inward.
	for i := range want {
		if math.Abs(b[i]-want[i]) > 3 {
			t.Errorf("boundary %d=%v, want %v±3", i, b[i], want[i])
		}
	}
}

func TestBoundariesDegenerateDensity(t *testing.T) {
	flat := models.Distribution{Grid: []float64{1, 2, 3}, Density: []float64{0, 0, 0}}
	b, err := Boundaries(flat, 5)
	if err != nil || len(b) != 0 {
		t.Errorf("zero mass: boundaries=%v err=%v, want none", b, err)
	}

	spike := models.Distribution{Grid: []float64{1, 2, 3, 4, 5}, Density: []float64{0, 0, 1, 0, 0}}
	b, err = Boundaries(spike, 5)
	if err != nil {
		t.Fatalf("spike: %v", err)
	}
	if want := []float64{3, 4, 5}; fmt.Sprint(b) != fmt.Sprint(want) {
		t.Errorf("spike boundaries=%v, want %v", b, want)
	}

	repeated := models.Distribution{Grid: []float64{1, 1, 1, 1, 1}, Density: []float64{1, 1, 1, 1, 1}}
	b, err = Boundaries(repeated, 5)
	if err != nil {
		t.Fatalf("repeated grid: %v", err)
	}
	if len(b) != 1 || b[0] != 1 {
		t.Errorf("repeated grid boundaries=%v, want [1]", b)
	}
}

func TestBoundariesRejectsBadInput(t *testing.T) {
	d := models.Distribution{Grid: []float64{1, 2}, Density: []float64{1, 1}}
	for _, size := range []int{0, 1, 27} {
		if _, err := Boundaries(d, size); !errors.Is(err, ErrInvalidAlphabet) {
			t.Errorf("size %d err=%v, want ErrInvalidAlphabet", size, err)
		}
	}

	bad := models.Distribution{Grid: []float64{1, 2, 3}, Density: []float64{1, 1}}
	if _, err := Boundaries(bad, 5); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("err=%v, want ErrShapeMismatch", err)
	}
}

func TestBoundariesAscendingWithinGrid(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 20; trial++ {
		n := 2 + rng.Intn(200)
		values := make([]float64, n)
		for i := range values {
			values[i] = rng.ExpFloat64() * 30
		}
		d, err := Estimate(values)
		if err != nil {
			t.Fatalf("trial %d: Estimate: %v", trial, err)
		}

		for _, size := range []int{2, 3, 5, 8} {
			b, err := Boundaries(d, size)
			if err != nil {
				t.Fatalf("trial %d size %d: %v", trial, size, err)
			}
			if len(b) > size-1 {
				t.Errorf("trial %d size %d: %d boundaries", trial, size, len(b))
			}
			for i := range b {
				if i > 0 && b[i] <= b[i-1] {
					t.Errorf("trial %d size %d: %v not strictly ascending", trial, size, b)
				}
				if b[i] < d.Grid[0] || b[i] > d.Grid[len(d.Grid)-1] {
					t.Errorf("trial %d size %d: boundary %v outside grid", trial, size, b[i])
				}
			}
		}
	}
}

func TestSymbolize(t *testing.T) {
	got := Symbolize([]float64{1, 2, 3, 4, 5}, []float64{2, 4})
	if got != "aabbc" {
		t.Errorf("symbols=%q, want %q", got, "aabbc")
	}
	if got := Symbolize([]float64{7, 8}, nil); got != "aa" {
		t.Errorf("no boundaries symbols=%q, want %q", got, "aa")
	}
}

func TestEmpiricalBoundaries(t *testing.T) {
	b, err := EmpiricalBoundaries(uniform(1, 100, 100), 4)
	if err != nil {
		t.Fatalf("EmpiricalBoundaries: %v", err)
	}
	want := []float64{25, 50, 75}
	if len(b) != len(want) {
		t.Fatalf("boundaries=%v, want near %v", b, want)
	}
	for i := range want {
		if math.Abs(b[i]-want[i]) > 2 {
			t.Errorf("boundary %d=%v, want %v±2", i, b[i], want[i])
		}
	}

	constant, err := EmpiricalBoundaries([]float64{3, 3, 3, 3}, 5)
	if err != nil || len(constant) != 1 {
		t.Errorf("constant sample: %v, %v; want one boundary", constant, err)
	}

	if _, err := EmpiricalBoundaries(nil, 5); !errors.Is(err, ErrInsufficientData) {
		t.Errorf("empty err=%v, want ErrInsufficientData", err)
	}
}

type sliceWindower map[string][]float64

func (w sliceWindower) Window(column string, start, end time.Time) ([]float64, error) {
	values, ok := w[column]
	if !ok {
		return nil, fmt.Errorf("unknown column %q", column)
	}
	if !start.Before(end) {
		return []float64{}, nil
	}
	return values, nil
}

func TestAnalyzer(t *testing.T) {
	a := NewAnalyzer(0)
	if a.AlphabetSize() != DefaultAlphabetSize {
		t.Fatalf("alphabet=%d, want %d", a.AlphabetSize(), DefaultAlphabetSize)
	}

	w := sliceWindower{
		"avgSpeed":     uniform(0, 100, 101),
		"vehicleCount": {4, 4, 4},
	}
	start := time.Date(2014, 8, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(5 * time.Hour)

	res, err := a.Analyze(w, "avgSpeed", start, end, 0)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if res.Distribution == nil || len(res.Boundaries) != 4 {
		t.Fatalf("distribution=%v boundaries=%v, want a distribution and 4 boundaries", res.Distribution != nil, res.Boundaries)
	}
	if len(res.Symbols) != res.Count || res.Count != 101 {
		t.Errorf("symbols len=%d count=%d, want 101", len(res.Symbols), res.Count)
	}
	if len(res.EmpiricalBoundaries) != 4 {
		t.Errorf("empirical=%v, want 4", res.EmpiricalBoundaries)
	}

	flat, err := a.Analyze(w, "vehicleCount", start, end, 3)
	if err != nil {
		t.Fatalf("Analyze flat: %v", err)
	}
	if flat.Distribution != nil || flat.Note != noDistribution || flat.Statistics.Mean != 4 {
		t.Errorf("flat=%+v, want statistics only with note", flat)
	}

	empty, err := a.Analyze(w, "avgSpeed", end, start, 0)
	if err != nil {
		t.Fatalf("Analyze empty: %v", err)
	}
	if empty.Count != 0 || empty.Statistics != (models.Statistics{}) || len(empty.Boundaries) != 0 {
		t.Errorf("empty=%+v, want zero statistics and no boundaries", empty)
	}

	if _, err := a.Analyze(w, "rain", start, end, 0); err == nil {
		t.Error("unknown column: expected error")
	}
	if _, err := a.Analyze(w, "avgSpeed", start, end, 1); !errors.Is(err, ErrInvalidAlphabet) {
		t.Errorf("alphabet 1 err=%v, want ErrInvalidAlphabet", err)
	}

	stats := a.GetCurrentStats()
	if stats.TotalWindows != 3 || stats.TotalDistributions != 1 || stats.InsufficientWindows != 2 || stats.EmptyWindows != 1 {
		t.Errorf("stats=%+v", stats)
	}
}
