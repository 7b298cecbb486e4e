package stream

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// TimestampColumn is the one column every row set must carry.
const TimestampColumn = "TIMESTAMP"

var (
	ErrMalformedInput = errors.New("malformed input")
	ErrNotFound       = errors.New("not found")
	ErrUnknownFeature = errors.New("unknown feature")
	ErrInvalidGrid    = errors.New("invalid resample grid")
)

type Kind int

const (
	Numeric Kind = iota
	Text
)

func (k Kind) String() string {
	switch k {
	case Numeric:
		return "numeric"
	case Text:
		return "text"
	default:
		return "unknown"
	}
}

type Field struct {
	Name string
	Kind Kind
}

// Schema declares the feature columns of a row set, in ingestion order.
// The timestamp column is implicit.
type Schema struct {
	Fields []Field
}

func (s Schema) Validate() error {
	seen := make(map[string]struct{}, len(s.Fields))
	for _, f := range s.Fields {
		if f.Name == "" {
			return fmt.Errorf("%w: empty field name in schema", ErrMalformedInput)
		}
		if f.Name == TimestampColumn {
			return fmt.Errorf("%w: %s must not be declared as a feature", ErrMalformedInput, TimestampColumn)
		}
		if _, ok := seen[f.Name]; ok {
			return fmt.Errorf("%w: field %q declared twice", ErrMalformedInput, f.Name)
		}
		seen[f.Name] = struct{}{}
	}
	return nil
}

// features returns the numeric fields that are not excluded.
func (s Schema) features(excluded map[string]struct{}) []string {
	var names []string
	for _, f := range s.Fields {
		if _, skip := excluded[f.Name]; skip {
			continue
		}
		if f.Kind == Numeric {
			names = append(names, f.Name)
		}
	}
	return names
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02T15",
	"2006-01-02",
}

// ParseTimestamp accepts RFC3339 and the zone-less layouts found in sensor
// exports. Zone-less values are read as UTC.
func ParseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: cannot parse timestamp %q", ErrMalformedInput, value)
}

func parseCell(field, value string) (float64, bool, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, false, fmt.Errorf("%w: field %q: %q is not numeric", ErrMalformedInput, field, value)
	}
	if math.IsNaN(v) {
		return 0, false, nil
	}
	return v, true, nil
}
