package models

import "time"

// RawRow is one ingested row keyed by column name, before any parsing.
type RawRow map[string]string

type Reading struct {
	Timestamp time.Time          `json:"timestamp"`
	Values    map[string]float64 `json:"values"`
}

type Statistics struct {
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
}

// Distribution is a density estimate sampled on an ascending grid.
// Grid and Density always have the same length.
type Distribution struct {
	Grid    []float64 `json:"grid"`
	Density []float64 `json:"density"`
}

type WindowAnalysis struct {
	SensorID            string        `json:"sensor_id,omitempty"`
	Column              string        `json:"column"`
	Start               time.Time     `json:"start"`
	End                 time.Time     `json:"end"`
	Count               int           `json:"count"`
	Statistics          Statistics    `json:"statistics"`
	Distribution        *Distribution `json:"distribution,omitempty"`
	AlphabetSize        int           `json:"alphabet_size"`
	Boundaries          []float64     `json:"boundaries"`
	EmpiricalBoundaries []float64     `json:"empirical_boundaries,omitempty"`
	Symbols             string        `json:"symbols,omitempty"`
	Note                string        `json:"note,omitempty"`
}

type AnalyticsStats struct {
	TotalWindows        int64     `json:"total_windows"`
	TotalDistributions  int64     `json:"total_distributions"`
	InsufficientWindows int64     `json:"insufficient_windows"`
	EmptyWindows        int64     `json:"empty_windows"`
	LastAnalysisTime    time.Time `json:"last_analysis_time,omitempty"`
	AlphabetSize        int       `json:"alphabet_size"`
}

type StreamInfo struct {
	SensorID  string    `json:"sensor_id"`
	UploadID  string    `json:"upload_id,omitempty"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Length    int       `json:"length"`
	Frequency string    `json:"frequency"`
	GapFill   string    `json:"gap_fill"`
	Features  []string  `json:"features"`
}
