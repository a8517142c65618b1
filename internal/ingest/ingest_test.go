package ingest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"cleansynth/internal/table"
)

func writeWorkbook(t *testing.T, path string, sheets map[string][][]any, order []string) {
	t.Helper()
	wb := excelize.NewFile()
	defer wb.Close()
	for i, name := range order {
		if i == 0 {
			require.NoError(t, wb.SetSheetName(wb.GetSheetName(0), name))
		} else {
			_, err := wb.NewSheet(name)
			require.NoError(t, err)
		}
		for r, row := range sheets[name] {
			cell, err := excelize.CoordinatesToCellName(1, r+1)
			require.NoError(t, err)
			row := row
			require.NoError(t, wb.SetSheetRow(name, cell, &row))
		}
	}
	require.NoError(t, wb.SaveAs(path))
}

func TestDetectFormat(t *testing.T) {
	assert.Equal(t, FormatCSV, DetectFormat("data/input.CSV"))
	assert.Equal(t, FormatXLSX, DetectFormat("rules.xlsx"))
	assert.Equal(t, FormatText, DetectFormat("rules.toon"))
}

func TestLoadDataset_CSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "input.csv")
	require.NoError(t, os.WriteFile(path, []byte("id,age\n1,25\n2,\n"), 0644))

	f, err := LoadDataset(path)
	require.NoError(t, err)
	assert.Equal(t, 2, f.Len())
	assert.Equal(t, table.Int, f.Kind("age"))
	assert.True(t, f.IsNull(1, "age"))
}

func TestLoadDataset_XLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "input.xlsx")
	writeWorkbook(t, path, map[string][][]any{
		"People": {
			{"id", "name", "age"},
			{1, "Ann", 25},
			{2, "Bob"},
		},
	}, []string{"People"})

	f, err := LoadDataset(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name", "age"}, f.Columns())
	assert.Equal(t, 2, f.Len())
	assert.Equal(t, table.Int, f.Kind("id"))
	assert.Equal(t, "Ann", f.Get(0, "name"))
	assert.True(t, f.IsNull(1, "age"))
}

func TestLoadDataset_Missing(t *testing.T) {
	_, err := LoadDataset(filepath.Join(t.TempDir(), "nope.csv"))
	assert.Error(t, err)
}

func TestLoadRules_Text(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.toon")
	doc := "Age must be positive.\n\nEmails need an @.\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))

	got, err := LoadRules(path)
	require.NoError(t, err)
	assert.Equal(t, doc, got)
}

func TestLoadRules_Workbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.xlsx")
	writeWorkbook(t, path, map[string][][]any{
		"Cleaning": {
			{"Column", "Rule"},
			{"age", "Negative ages become null"},
			{"", "Trim all names"},
		},
		"Notes": {
			{"Note"},
			{"Collected in 2023"},
		},
	}, []string{"Cleaning", "Notes"})

	got, err := LoadRules(path)
	require.NoError(t, err)
	assert.Equal(t, "Column: age | Rule: Negative ages become null\n\nRule: Trim all names\n\nNote: Collected in 2023", got)
}

func TestSaveDataset_RoundTrip(t *testing.T) {
	f := table.MustNew(table.Column{Name: "id", Kind: table.Int}, table.Column{Name: "age", Kind: table.Float})
	require.NoError(t, f.AppendRow(1, 25.5))
	require.NoError(t, f.AppendRow(2, nil))

	for _, name := range []string{"out.csv", "out.xlsx"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", name)
			require.NoError(t, SaveDataset(path, f))

			back, err := LoadDataset(path)
			require.NoError(t, err)
			assert.Equal(t, f.Columns(), back.Columns())
			assert.Equal(t, 25.5, back.Get(0, "age"))
			assert.True(t, back.IsNull(1, "age"))
		})
	}
}
