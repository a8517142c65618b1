package table

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func people(t *testing.T) *Frame {
	t.Helper()
	f := MustNew(Column{Name: "id", Kind: Int}, Column{Name: "age", Kind: Int}, Column{Name: "city", Kind: String})
	require.NoError(t, f.AppendRow(1, 25, "Oslo"))
	require.NoError(t, f.AppendRow(2, -3, "Lima"))
	require.NoError(t, f.AppendRow(3, 40, nil))
	return f
}

func TestNewRejectsBadColumns(t *testing.T) {
	_, err := New(Column{Name: "a"}, Column{Name: "a"})
	assert.Error(t, err)
	_, err = New(Column{Name: ""})
	assert.Error(t, err)
}

func TestAppendRowNormalizesNumbers(t *testing.T) {
	f := people(t)
	assert.Equal(t, int64(25), f.Get(0, "age"))
	assert.Nil(t, f.Get(2, "city"))
	assert.Error(t, f.AppendRow(1, 2))
}

func TestAccessorsPanicWithKeyError(t *testing.T) {
	f := people(t)

	assert.PanicsWithError(t, "missing key: salary", func() { f.Get(0, "salary") })
	assert.PanicsWithError(t, "missing key: row 9", func() { f.Set(9, "age", 1) })
}

func TestCopyIsDeep(t *testing.T) {
	f := people(t)
	c := f.Copy()

	c.Set(0, "age", 99)
	require.NoError(t, c.AddColumn("flag", Bool))
	c.DropRows(func(i int) bool { return i == 1 })

	assert.Equal(t, int64(25), f.Get(0, "age"))
	assert.Equal(t, 3, f.Width())
	assert.Equal(t, 3, f.Len())
	assert.Equal(t, []int{0, 2}, c.Keys())
}

func TestDropRowsKeepsKeys(t *testing.T) {
	f := people(t)
	removed := f.DropRows(func(i int) bool {
		v, _ := f.Float(i, "age")
		return v < 0
	})

	assert.Equal(t, 1, removed)
	assert.Equal(t, []int{0, 2}, f.Keys())
	assert.Equal(t, 1, f.Position(2))
	assert.Equal(t, -1, f.Position(1))
}

func TestColumnOperations(t *testing.T) {
	f := people(t)

	require.NoError(t, f.AddColumn("score", Float))
	assert.Equal(t, 3, f.CountNulls("score"))
	assert.Error(t, f.AddColumn("score", Float))

	require.NoError(t, f.RenameColumn("city", "town"))
	assert.True(t, f.HasColumn("town"))
	assert.False(t, f.HasColumn("city"))
	assert.Error(t, f.RenameColumn("town", "age"))

	require.NoError(t, f.DropColumn("id"))
	assert.Equal(t, []string{"age", "town", "score"}, f.Columns())
	assert.Equal(t, "Lima", f.Get(1, "town"))

	var ke *KeyError
	assert.ErrorAs(t, f.DropColumn("id"), &ke)
}

func TestApplyAndCast(t *testing.T) {
	f := people(t)
	f.Apply("city", func(v any) any {
		if IsNull(v) {
			return "unknown"
		}
		return strings.ToUpper(v.(string))
	})
	assert.Equal(t, []any{"OSLO", "LIMA", "unknown"}, f.Values("city"))

	g := MustNew(Column{Name: "n", Kind: String})
	require.NoError(t, g.AppendRow("1"))
	require.NoError(t, g.AppendRow("x"))
	require.NoError(t, g.AppendRow(nil))
	lost := g.Cast("n", Int)
	assert.Equal(t, 1, lost)
	assert.Equal(t, Int, g.Kind("n"))
	assert.Equal(t, []any{int64(1), nil, nil}, g.Values("n"))
}

func TestDropDuplicatesAndNulls(t *testing.T) {
	f := MustNew(Column{Name: "a", Kind: Int}, Column{Name: "b", Kind: String})
	require.NoError(t, f.AppendRow(1, "x"))
	require.NoError(t, f.AppendRow(1.0, "x"))
	require.NoError(t, f.AppendRow(2, nil))
	require.NoError(t, f.AppendRow(1, "y"))

	assert.Equal(t, 1, f.DropDuplicates())
	assert.Equal(t, 1, f.DropNulls("b"))
	assert.Equal(t, []int{0, 3}, f.Keys())
	assert.Equal(t, 1, f.DropDuplicates("a"))
}

func TestDropDuplicates_LargeIntegers(t *testing.T) {
	f := MustNew(Column{Name: "id", Kind: Int})
	require.NoError(t, f.AppendRow(int64(9007199254740992)))
	require.NoError(t, f.AppendRow(int64(9007199254740993)))
	require.NoError(t, f.AppendRow(int64(9007199254740993)))

	assert.Equal(t, 1, f.DropDuplicates())
	assert.Equal(t, []any{int64(9007199254740992), int64(9007199254740993)}, f.Values("id"))
}

func TestSortBy(t *testing.T) {
	f := people(t)
	require.NoError(t, f.AppendRow(4, nil, "Rome"))
	f.SortBy("age", true)
	assert.Equal(t, []any{int64(-3), int64(25), int64(40), nil}, f.Values("age"))
	assert.Equal(t, []int{1, 0, 2, 3}, f.Keys())
}

func TestUnique(t *testing.T) {
	f := MustNew(Column{Name: "v", Kind: Float})
	for _, v := range []any{1, 1.0, 2.5, nil, 2.5} {
		require.NoError(t, f.AppendRow(v))
	}
	assert.Equal(t, []any{int64(1), 2.5}, f.Unique("v"))

	ids := MustNew(Column{Name: "id", Kind: Int})
	require.NoError(t, ids.AppendRow(int64(9007199254740992)))
	require.NoError(t, ids.AppendRow(int64(9007199254740993)))
	assert.Len(t, ids.Unique("id"), 2)
}

func TestEqual(t *testing.T) {
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		a, b any
		want bool
	}{
		{"both null", nil, nil, true},
		{"null vs value", nil, 0, false},
		{"int vs float", 25, 25.0, true},
		{"different numbers", 25, 26, false},
		{"string vs number", "25", 25, false},
		{"same time", day, day.In(time.FixedZone("x", 3600)), true},
		{"bools", true, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Equal(tt.a, tt.b))
		})
	}
}

func TestParseTime(t *testing.T) {
	for _, s := range []string{"2024-03-01", "2024/03/01", "03/01/2024", "2024-03-01T00:00:00Z", "Mar 1, 2024"} {
		got, ok := ParseTime(s)
		require.True(t, ok, s)
		assert.Equal(t, 2024, got.Year(), s)
	}
	_, ok := ParseTime("yesterday")
	assert.False(t, ok)
}

func TestReadCSVInfersKinds(t *testing.T) {
	in := "\ufeffid,price,active,joined,name,empty\n" +
		"1,9.5,true,2024-01-02,Ann,\n" +
		"2,NA,false,2024-02-03,Bob,\n" +
		"3,10,true,,\"Cruz, Jr\",\n"

	f, err := ReadCSV(strings.NewReader(in))
	require.NoError(t, err)

	kinds := map[string]Kind{}
	for _, c := range f.Schema() {
		kinds[c.Name] = c.Kind
	}
	want := map[string]Kind{"id": Int, "price": Float, "active": Bool, "joined": Time, "name": String, "empty": String}
	if diff := cmp.Diff(want, kinds); diff != "" {
		t.Errorf("kinds mismatch (-want +got):\n%s", diff)
	}
	assert.Nil(t, f.Get(1, "price"))
	assert.Equal(t, "Cruz, Jr", f.Get(2, "name"))
	assert.Equal(t, 3, f.CountNulls("empty"))
}

func TestReadCSVDuplicateHeaders(t *testing.T) {
	f, err := ReadCSV(strings.NewReader("a,a,\n1,2,3\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "a.1", "column_3"}, f.Columns())
}

func TestWriteCSVRoundTrip(t *testing.T) {
	f := people(t)
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, f))
	assert.Equal(t, "id,age,city\n1,25,Oslo\n2,-3,Lima\n3,40,\n", buf.String())

	back, err := ReadCSV(&buf)
	require.NoError(t, err)
	for i := 0; i < f.Len(); i++ {
		for _, col := range f.Columns() {
			assert.True(t, Equal(f.Get(i, col), back.Get(i, col)), "row %d col %s", i, col)
		}
	}
}
