// Package ingest loads datasets and rules documents from disk and writes
// cleaned datasets back.
package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"cleansynth/internal/logging"
	"cleansynth/internal/table"
)

// Format is a supported file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatText Format = "text"
)

// DetectFormat picks a format from the file extension.
func DetectFormat(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV
	case ".xlsx", ".xlsm":
		return FormatXLSX
	default:
		return FormatText
	}
}

// LoadDataset reads a .csv file or the first sheet of an .xlsx workbook.
func LoadDataset(path string) (*table.Frame, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("dataset not found: %w", err)
	}

	var (
		f   *table.Frame
		err error
	)
	switch DetectFormat(path) {
	case FormatCSV:
		f, err = table.ReadCSVFile(path)
	case FormatXLSX:
		f, err = readWorkbookDataset(path)
	default:
		return nil, fmt.Errorf("unsupported dataset format: %s", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}
	logging.Ingest("loaded %s: %d rows x %d columns", filepath.Base(path), f.Len(), f.Width())
	return f, nil
}

func readWorkbookDataset(path string) (*table.Frame, error) {
	wb, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer wb.Close()

	sheets := wb.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook %s has no sheets", path)
	}
	rows, err := wb.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("sheet %s is empty", sheets[0])
	}
	logging.IngestDebug("sheet %s: %d rows", sheets[0], len(rows))

	header := rows[0]
	records := make([][]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		// GetRows trims trailing empty cells.
		rec := make([]string, len(header))
		copy(rec, row)
		records = append(records, rec)
	}
	return table.FromRecords(header, records)
}

// LoadRules reads a rules document. Text files are returned verbatim.
// Workbooks are flattened: every data row becomes one block of
// "header: value" pairs joined with " | ", blocks separated by blank lines.
func LoadRules(path string) (string, error) {
	if DetectFormat(path) != FormatXLSX {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to read rules: %w", err)
		}
		return string(data), nil
	}

	wb, err := excelize.OpenFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to open rules workbook: %w", err)
	}
	defer wb.Close()

	var blocks []string
	for _, sheet := range wb.GetSheetList() {
		rows, err := wb.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("failed to read sheet %s: %w", sheet, err)
		}
		blocks = append(blocks, flattenRows(rows)...)
	}
	logging.Ingest("loaded %d rule rows from %s", len(blocks), filepath.Base(path))
	return strings.Join(blocks, "\n\n"), nil
}

func flattenRows(rows [][]string) []string {
	if len(rows) < 2 {
		return nil
	}
	header := rows[0]
	var out []string
	for _, row := range rows[1:] {
		var parts []string
		for i, cell := range row {
			cell = strings.TrimSpace(cell)
			if cell == "" {
				continue
			}
			if i < len(header) && strings.TrimSpace(header[i]) != "" {
				cell = strings.TrimSpace(header[i]) + ": " + cell
			}
			parts = append(parts, cell)
		}
		if len(parts) > 0 {
			out = append(out, strings.Join(parts, " | "))
		}
	}
	return out
}

// SaveDataset writes f as CSV, or as a single-sheet workbook for .xlsx paths.
func SaveDataset(path string, f *table.Frame) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if DetectFormat(path) != FormatXLSX {
		return table.WriteCSVFile(path, f)
	}

	wb := excelize.NewFile()
	defer wb.Close()
	sheet := wb.GetSheetName(0)

	header := make([]any, 0, f.Width())
	for _, c := range f.Columns() {
		header = append(header, c)
	}
	if err := wb.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for i := 0; i < f.Len(); i++ {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := make([]any, 0, f.Width())
		for _, c := range f.Columns() {
			row = append(row, cellValue(f.Get(i, c)))
		}
		if err := wb.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i, err)
		}
	}
	if err := wb.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}

func cellValue(v any) any {
	switch x := v.(type) {
	case nil:
		return ""
	case int64, float64, bool, string:
		return x
	default:
		return table.ToString(v)
	}
}
