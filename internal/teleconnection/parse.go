package teleconnection

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ParseSeries turns one provider payload into a ForecastSeries.
//
// The first row carries the forecast hours, every following row one ensemble
// member. The leading column of every row is a label and is dropped. Member
// rows are averaged per hour; a single member row is returned unchanged.
// Hours keep the provider's column order.
func ParseSeries(payload []byte) (ForecastSeries, error) {
	if !utf8.Valid(payload) {
		return ForecastSeries{}, &DecodeError{Offset: invalidUTF8Offset(payload)}
	}
	payload = bytes.TrimPrefix(payload, utf8BOM)

	rows, err := readTable(payload)
	if err != nil {
		return ForecastSeries{}, err
	}
	if len(rows) == 0 {
		return ForecastSeries{}, &SchemaError{Row: -1, Column: -1, Reason: "payload is empty"}
	}

	hours, err := parseHours(rows[0])
	if err != nil {
		return ForecastSeries{}, err
	}

	members := rows[1:]
	if len(members) == 0 {
		return ForecastSeries{}, &SchemaError{Row: -1, Column: -1, Reason: "payload has no member rows"}
	}

	sums := make([]float64, len(hours))
	for i, rec := range members {
		row := i + 1
		if got := len(rec) - 1; got != len(hours) {
			return ForecastSeries{}, &SchemaError{
				Row:    row,
				Column: -1,
				Reason: "row has " + strconv.Itoa(got) + " values, expected " + strconv.Itoa(len(hours)),
			}
		}
		for j, cell := range rec[1:] {
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
				return ForecastSeries{}, &SchemaError{Row: row, Column: j + 1, Reason: "value " + strconv.Quote(cell) + " is not a number"}
			}
			sums[j] += v
		}
	}

	values := sums
	if n := float64(len(members)); n > 1 {
		for j := range values {
			values[j] /= n
		}
	}

	return ForecastSeries{Hours: hours, Values: values}, nil
}

func readTable(payload []byte) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(payload))
	// Ragged rows are reported as schema errors below rather than by the reader.
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	var rows [][]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				return nil, &SchemaError{Row: pe.StartLine - 1, Column: -1, Reason: pe.Err.Error()}
			}
			return nil, &SchemaError{Row: len(rows), Column: -1, Reason: err.Error()}
		}
		for i := range rec {
			rec[i] = strings.TrimSpace(rec[i])
		}
		rows = append(rows, rec)
	}
	return rows, nil
}

func parseHours(rec []string) ([]int, error) {
	if len(rec) < 2 {
		return nil, &SchemaError{Row: 0, Column: -1, Reason: "hour row has no hour columns"}
	}
	hours := make([]int, 0, len(rec)-1)
	for j, cell := range rec[1:] {
		h, err := strconv.Atoi(cell)
		if err != nil {
			return nil, &SchemaError{Row: 0, Column: j + 1, Reason: "hour " + strconv.Quote(cell) + " is not an integer"}
		}
		hours = append(hours, h)
	}
	return hours, nil
}

func invalidUTF8Offset(b []byte) int {
	for i := 0; i < len(b); {
		r, size := utf8.DecodeRune(b[i:])
		if r == utf8.RuneError && size <= 1 {
			return i
		}
		i += size
	}
	return len(b)
}
