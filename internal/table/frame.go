// Package table implements the in-memory dataset that rules are applied to.
//
// A Frame is an ordered set of rows over named, typed columns. Every row
// carries a stable key assigned when the row is first appended; keys survive
// row deletion and copying, which lets two frames be aligned row-for-row.
// Null cells are stored as nil.
//
// Frame is also the type generated transforms receive, so its method set is
// written to be convenient from interpreted code: accessors panic with a
// *KeyError on unknown columns and out-of-range rows, the same way a map
// lookup in a dynamic language would raise.
package table

import (
	"fmt"
	"sort"
)

// Kind is the declared type of a column.
type Kind int

const (
	String Kind = iota
	Int
	Float
	Bool
	Time
)

func (k Kind) String() string {
	switch k {
	case String:
		return "string"
	case Int:
		return "int64"
	case Float:
		return "float64"
	case Bool:
		return "bool"
	case Time:
		return "datetime"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// IsNumeric reports whether values of this kind are summarized with numeric stats.
func (k Kind) IsNumeric() bool {
	return k == Int || k == Float
}

// Column describes one column.
type Column struct {
	Name string
	Kind Kind
}

// KeyError is raised (via panic) by accessors given an unknown column or row.
type KeyError struct {
	Key string
}

func (e *KeyError) Error() string {
	return fmt.Sprintf("missing key: %s", e.Key)
}

// Frame is a mutable, ordered table.
type Frame struct {
	columns []Column
	index   map[string]int
	rows    [][]any
	keys    []int
	nextKey int
}

// New creates an empty frame with the given columns.
func New(columns ...Column) (*Frame, error) {
	f := &Frame{index: make(map[string]int, len(columns))}
	for _, c := range columns {
		if c.Name == "" {
			return nil, fmt.Errorf("column name must not be empty")
		}
		if _, dup := f.index[c.Name]; dup {
			return nil, fmt.Errorf("duplicate column %q", c.Name)
		}
		f.index[c.Name] = len(f.columns)
		f.columns = append(f.columns, c)
	}
	return f, nil
}

// MustNew is New for static column sets; it panics on error.
func MustNew(columns ...Column) *Frame {
	f, err := New(columns...)
	if err != nil {
		panic(err)
	}
	return f
}

// AppendRow appends a row with one value per column, assigning it the next key.
func (f *Frame) AppendRow(values ...any) error {
	if len(values) != len(f.columns) {
		return fmt.Errorf("row has %d values, frame has %d columns", len(values), len(f.columns))
	}
	row := make([]any, len(values))
	for i, v := range values {
		row[i] = normalize(v)
	}
	f.rows = append(f.rows, row)
	f.keys = append(f.keys, f.nextKey)
	f.nextKey++
	return nil
}

// Len returns the number of rows.
func (f *Frame) Len() int { return len(f.rows) }

// Width returns the number of columns.
func (f *Frame) Width() int { return len(f.columns) }

// Columns returns the column names in order.
func (f *Frame) Columns() []string {
	names := make([]string, len(f.columns))
	for i, c := range f.columns {
		names[i] = c.Name
	}
	return names
}

// Schema returns a copy of the column descriptors.
func (f *Frame) Schema() []Column {
	return append([]Column(nil), f.columns...)
}

// HasColumn reports whether the named column exists.
func (f *Frame) HasColumn(name string) bool {
	_, ok := f.index[name]
	return ok
}

// Kind returns the declared kind of a column.
func (f *Frame) Kind(col string) Kind {
	return f.columns[f.mustCol(col)].Kind
}

// Key returns the stable key of the row at position i.
func (f *Frame) Key(i int) int {
	f.mustRow(i)
	return f.keys[i]
}

// Keys returns all row keys in row order.
func (f *Frame) Keys() []int {
	return append([]int(nil), f.keys...)
}

// Get returns the cell at row i, column col. Nil means null.
func (f *Frame) Get(i int, col string) any {
	c := f.mustCol(col)
	f.mustRow(i)
	return f.rows[i][c]
}

// Set stores v at row i, column col. Passing nil makes the cell null.
func (f *Frame) Set(i int, col string, v any) {
	c := f.mustCol(col)
	f.mustRow(i)
	f.rows[i][c] = normalize(v)
}

// IsNull reports whether the cell at row i, column col is null.
func (f *Frame) IsNull(i int, col string) bool {
	return IsNull(f.Get(i, col))
}

// SetNull makes the cell at row i, column col null.
func (f *Frame) SetNull(i int, col string) {
	f.Set(i, col, nil)
}

// Float returns the cell as a float64 if it is numeric or a numeric string.
func (f *Frame) Float(i int, col string) (float64, bool) {
	return ToFloat(f.Get(i, col))
}

// Str returns the cell formatted as a string; null is "".
func (f *Frame) Str(i int, col string) string {
	return ToString(f.Get(i, col))
}

// Values returns a copy of one column's cells in row order.
func (f *Frame) Values(col string) []any {
	c := f.mustCol(col)
	out := make([]any, len(f.rows))
	for i, row := range f.rows {
		out[i] = row[c]
	}
	return out
}

// Row returns the row at position i as a column-name map.
func (f *Frame) Row(i int) map[string]any {
	f.mustRow(i)
	out := make(map[string]any, len(f.columns))
	for c, col := range f.columns {
		out[col.Name] = f.rows[i][c]
	}
	return out
}

// Apply replaces every cell of col with fn(cell).
func (f *Frame) Apply(col string, fn func(v any) any) {
	c := f.mustCol(col)
	for _, row := range f.rows {
		row[c] = normalize(fn(row[c]))
	}
}

// CountNulls returns the number of null cells in col.
func (f *Frame) CountNulls(col string) int {
	c := f.mustCol(col)
	n := 0
	for _, row := range f.rows {
		if IsNull(row[c]) {
			n++
		}
	}
	return n
}

// Unique returns the distinct non-null values of col in first-seen order.
func (f *Frame) Unique(col string) []any {
	c := f.mustCol(col)
	seen := make(map[string]bool)
	var out []any
	for _, row := range f.rows {
		v := row[c]
		if IsNull(v) {
			continue
		}
		k := hashKey(v)
		if !seen[k] {
			seen[k] = true
			out = append(out, v)
		}
	}
	return out
}

// AddColumn appends a new column whose cells are all null.
func (f *Frame) AddColumn(name string, kind Kind) error {
	if name == "" {
		return fmt.Errorf("column name must not be empty")
	}
	if f.HasColumn(name) {
		return fmt.Errorf("column %q already exists", name)
	}
	f.index[name] = len(f.columns)
	f.columns = append(f.columns, Column{Name: name, Kind: kind})
	for i := range f.rows {
		f.rows[i] = append(f.rows[i], nil)
	}
	return nil
}

// DropColumn removes a column.
func (f *Frame) DropColumn(name string) error {
	c, ok := f.index[name]
	if !ok {
		return &KeyError{Key: name}
	}
	f.columns = append(f.columns[:c], f.columns[c+1:]...)
	for i, row := range f.rows {
		f.rows[i] = append(row[:c], row[c+1:]...)
	}
	f.reindex()
	return nil
}

// RenameColumn renames a column in place.
func (f *Frame) RenameColumn(from, to string) error {
	c, ok := f.index[from]
	if !ok {
		return &KeyError{Key: from}
	}
	if from == to {
		return nil
	}
	if f.HasColumn(to) {
		return fmt.Errorf("column %q already exists", to)
	}
	f.columns[c].Name = to
	f.reindex()
	return nil
}

// Cast converts every cell of col to kind. Cells that cannot be converted
// become null; the number of such cells is returned.
func (f *Frame) Cast(col string, kind Kind) int {
	c := f.mustCol(col)
	lost := 0
	for _, row := range f.rows {
		if IsNull(row[c]) {
			continue
		}
		v, ok := Convert(row[c], kind)
		if !ok {
			lost++
		}
		row[c] = v
	}
	f.columns[c].Kind = kind
	return lost
}

// DropRows removes every row for which drop returns true and returns the count
// removed. drop receives the row position in the frame before removal.
func (f *Frame) DropRows(drop func(i int) bool) int {
	keepRows := f.rows[:0:0]
	keepKeys := f.keys[:0:0]
	for i := range f.rows {
		if drop(i) {
			continue
		}
		keepRows = append(keepRows, f.rows[i])
		keepKeys = append(keepKeys, f.keys[i])
	}
	removed := len(f.rows) - len(keepRows)
	f.rows, f.keys = keepRows, keepKeys
	return removed
}

// DropNulls removes rows with a null in any of cols (all columns when none given).
func (f *Frame) DropNulls(cols ...string) int {
	idx := f.colPositions(cols)
	return f.DropRows(func(i int) bool {
		for _, c := range idx {
			if IsNull(f.rows[i][c]) {
				return true
			}
		}
		return false
	})
}

// DropDuplicates keeps the first row of every group of rows equal on cols
// (all columns when none given) and returns the count removed.
func (f *Frame) DropDuplicates(cols ...string) int {
	idx := f.colPositions(cols)
	seen := make(map[string]bool, len(f.rows))
	return f.DropRows(func(i int) bool {
		k := ""
		for _, c := range idx {
			k += hashKey(f.rows[i][c]) + "\x1f"
		}
		if seen[k] {
			return true
		}
		seen[k] = true
		return false
	})
}

// SortBy stably orders rows by col. Nulls sort last.
func (f *Frame) SortBy(col string, ascending bool) {
	c := f.mustCol(col)
	order := make([]int, len(f.rows))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		va, vb := f.rows[order[a]][c], f.rows[order[b]][c]
		if IsNull(va) || IsNull(vb) {
			return !IsNull(va) && IsNull(vb)
		}
		if ascending {
			return Less(va, vb)
		}
		return Less(vb, va)
	})
	rows := make([][]any, len(order))
	keys := make([]int, len(order))
	for i, o := range order {
		rows[i] = f.rows[o]
		keys[i] = f.keys[o]
	}
	f.rows, f.keys = rows, keys
}

// Copy returns a deep copy sharing no mutable state with f.
func (f *Frame) Copy() *Frame {
	out := &Frame{
		columns: append([]Column(nil), f.columns...),
		index:   make(map[string]int, len(f.index)),
		rows:    make([][]any, len(f.rows)),
		keys:    append([]int(nil), f.keys...),
		nextKey: f.nextKey,
	}
	for k, v := range f.index {
		out.index[k] = v
	}
	for i, row := range f.rows {
		out.rows[i] = append([]any(nil), row...)
	}
	return out
}

// Position returns the row position holding key, or -1.
func (f *Frame) Position(key int) int {
	for i, k := range f.keys {
		if k == key {
			return i
		}
	}
	return -1
}

func (f *Frame) reindex() {
	f.index = make(map[string]int, len(f.columns))
	for i, c := range f.columns {
		f.index[c.Name] = i
	}
}

func (f *Frame) mustCol(name string) int {
	c, ok := f.index[name]
	if !ok {
		panic(&KeyError{Key: name})
	}
	return c
}

func (f *Frame) mustRow(i int) {
	if i < 0 || i >= len(f.rows) {
		panic(&KeyError{Key: fmt.Sprintf("row %d", i)})
	}
}

func (f *Frame) colPositions(cols []string) []int {
	if len(cols) == 0 {
		idx := make([]int, len(f.columns))
		for i := range idx {
			idx[i] = i
		}
		return idx
	}
	idx := make([]int, len(cols))
	for i, name := range cols {
		idx[i] = f.mustCol(name)
	}
	return idx
}
