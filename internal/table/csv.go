package table

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// nullTokens are read as null in addition to the empty string.
var nullTokens = map[string]bool{
	"":     true,
	"NA":   true,
	"N/A":  true,
	"NaN":  true,
	"nan":  true,
	"null": true,
	"NULL": true,
	"None": true,
}

// ReadCSV reads a header row followed by records and infers column kinds.
func ReadCSV(r io.Reader) (*Frame, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("csv has no header row")
	}
	header := records[0]
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	return FromRecords(header, records[1:])
}

// ReadCSVFile opens path and reads it with ReadCSV.
func ReadCSVFile(path string) (*Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ReadCSV(file)
}

// FromRecords builds a frame from a header and string records, inferring kinds.
// Short records are padded with nulls; long records are an error.
func FromRecords(header []string, records [][]string) (*Frame, error) {
	names := dedupeHeader(header)
	cells := make([][]string, len(records))
	for i, rec := range records {
		if len(rec) > len(names) {
			return nil, fmt.Errorf("record %d has %d fields, header has %d", i+1, len(rec), len(names))
		}
		padded := make([]string, len(names))
		copy(padded, rec)
		cells[i] = padded
	}

	columns := make([]Column, len(names))
	for c, name := range names {
		columns[c] = Column{Name: name, Kind: inferKind(cells, c)}
	}
	f, err := New(columns...)
	if err != nil {
		return nil, err
	}
	for _, rec := range cells {
		row := make([]any, len(columns))
		for c, raw := range rec {
			if nullTokens[strings.TrimSpace(raw)] {
				continue
			}
			v, ok := Convert(raw, columns[c].Kind)
			if !ok {
				v = raw
			}
			row[c] = v
		}
		if err := f.AppendRow(row...); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func inferKind(cells [][]string, c int) Kind {
	isInt, isFloat, isBool, isTime := true, true, true, true
	seen := false
	for _, rec := range cells {
		raw := strings.TrimSpace(rec[c])
		if nullTokens[raw] {
			continue
		}
		seen = true
		if isInt {
			if _, err := strconv.ParseInt(raw, 10, 64); err != nil {
				isInt = false
			}
		}
		if isFloat {
			if _, err := strconv.ParseFloat(raw, 64); err != nil {
				isFloat = false
			}
		}
		if isBool {
			switch strings.ToLower(raw) {
			case "true", "false":
			default:
				isBool = false
			}
		}
		if isTime {
			if _, ok := ParseTime(raw); !ok {
				isTime = false
			}
		}
	}
	switch {
	case !seen:
		return String
	case isInt:
		return Int
	case isFloat:
		return Float
	case isBool:
		return Bool
	case isTime:
		return Time
	default:
		return String
	}
}

func dedupeHeader(header []string) []string {
	names := make([]string, len(header))
	used := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.TrimSpace(h)
		if name == "" {
			name = fmt.Sprintf("column_%d", i+1)
		}
		if n := used[name]; n > 0 {
			used[name] = n + 1
			name = fmt.Sprintf("%s.%d", name, n)
		} else {
			used[name] = 1
		}
		names[i] = name
	}
	return names
}

// WriteCSV writes a header row and one record per row. Nulls become "".
func WriteCSV(w io.Writer, f *Frame) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(f.Columns()); err != nil {
		return err
	}
	record := make([]string, f.Width())
	for _, row := range f.rows {
		for c, v := range row {
			record[c] = ToString(v)
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCSVFile writes f to path, creating parent directories.
func WriteCSVFile(path string, f *Frame) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteCSV(file, f); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
