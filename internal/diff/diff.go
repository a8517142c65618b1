// Package diff measures what a transform did to a dataset, and how one
// candidate transform differs from the one before it.
package diff

import (
	"fmt"

	"cleansynth/internal/table"
)

// ChangeDiff is the structural and cell-level delta between two frames.
type ChangeDiff struct {
	RowsBefore    int            `json:"rows_before"`
	RowsAfter     int            `json:"rows_after"`
	RowDelta      int            `json:"row_delta"`
	ColumnsBefore int            `json:"columns_before"`
	ColumnsAfter  int            `json:"columns_after"`
	ChangedCells  int            `json:"changed_cells"`
	NullsBefore   map[string]int `json:"nulls_before"`
	NullsAfter    map[string]int `json:"nulls_after"`
}

// Summary is the subset of a ChangeDiff kept in the history.
type Summary struct {
	RowDelta     int `json:"row_delta"`
	ChangedCells int `json:"changed_cells"`
}

// Compute compares before and after. Changed cells are counted only where a
// column name and a row key exist in both frames.
func Compute(before, after *table.Frame) ChangeDiff {
	d := ChangeDiff{
		RowsBefore:    before.Len(),
		RowsAfter:     after.Len(),
		RowDelta:      after.Len() - before.Len(),
		ColumnsBefore: before.Width(),
		ColumnsAfter:  after.Width(),
		NullsBefore:   nullCounts(before),
		NullsAfter:    nullCounts(after),
	}

	var shared []string
	for _, col := range before.Columns() {
		if after.HasColumn(col) {
			shared = append(shared, col)
		}
	}
	if len(shared) == 0 {
		return d
	}

	afterPos := make(map[int]int, after.Len())
	for i, key := range after.Keys() {
		afterPos[key] = i
	}
	for i, key := range before.Keys() {
		j, ok := afterPos[key]
		if !ok {
			continue
		}
		for _, col := range shared {
			if !table.Equal(before.Get(i, col), after.Get(j, col)) {
				d.ChangedCells++
			}
		}
	}
	return d
}

// HasChanges reports whether rows were added/removed or any shared cell changed.
func (d ChangeDiff) HasChanges() bool {
	return d.RowDelta != 0 || d.ChangedCells != 0
}

// Summary returns the history subset.
func (d ChangeDiff) Summary() Summary {
	return Summary{RowDelta: d.RowDelta, ChangedCells: d.ChangedCells}
}

// String renders a one-line description for logs.
func (d ChangeDiff) String() string {
	return fmt.Sprintf("rows %d->%d (delta %+d), columns %d->%d, changed cells %d",
		d.RowsBefore, d.RowsAfter, d.RowDelta, d.ColumnsBefore, d.ColumnsAfter, d.ChangedCells)
}

func nullCounts(f *table.Frame) map[string]int {
	out := make(map[string]int, f.Width())
	for _, col := range f.Columns() {
		out[col] = f.CountNulls(col)
	}
	return out
}
