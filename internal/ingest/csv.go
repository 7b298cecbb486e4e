package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"traffic-analytics/internal/models"
	"traffic-analytics/internal/stream"
)

// ReadCSV reads a sensor export with a header line. Every row must have
// as many cells as the header.
func ReadCSV(r io.Reader) ([]string, []models.RawRow, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, fmt.Errorf("%w: empty csv", stream.ErrMalformedInput)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("%w: read header: %v", stream.ErrMalformedInput, err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	hasTimestamp := false
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
		if header[i] == stream.TimestampColumn {
			hasTimestamp = true
		}
	}
	if !hasTimestamp {
		return nil, nil, fmt.Errorf("%w: header has no %s column", stream.ErrMalformedInput, stream.TimestampColumn)
	}

	var rows []models.RawRow
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", stream.ErrMalformedInput, err)
		}

		row := make(models.RawRow, len(header))
		for i, name := range header {
			row[name] = record[i]
		}
		rows = append(rows, row)
	}

	return header, rows, nil
}

// InferSchema declares every non-timestamp column in header order. A
// column is numeric when it has at least one non-empty cell and each of its
// non-empty cells parses as a float. A column with no values at all is text.
func InferSchema(header []string, rows []models.RawRow) stream.Schema {
	var schema stream.Schema
	for _, name := range header {
		if name == stream.TimestampColumn {
			continue
		}

		kind := stream.Text
		for _, row := range rows {
			cell := strings.TrimSpace(row[name])
			if cell == "" {
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				kind = stream.Text
				break
			}
			if !math.IsNaN(v) {
				kind = stream.Numeric
			}
		}
		schema.Fields = append(schema.Fields, stream.Field{Name: name, Kind: kind})
	}
	return schema
}

// Load reads a CSV export and builds a normalized stream from it.
func Load(r io.Reader, opts stream.Options) (*stream.Stream, error) {
	header, rows, err := ReadCSV(r)
	if err != nil {
		return nil, err
	}
	return stream.New(InferSchema(header, rows), rows, opts)
}
