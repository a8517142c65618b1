package sandbox

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cleansynth/internal/table"
)

func people(t *testing.T) *table.Frame {
	t.Helper()
	f := table.MustNew(table.Column{Name: "id", Kind: table.Int}, table.Column{Name: "age", Kind: table.Int})
	require.NoError(t, f.AppendRow(1, 25))
	require.NoError(t, f.AppendRow(2, -3))
	require.NoError(t, f.AppendRow(3, 40))
	return f
}

const nullNegativeAges = `
func ApplyRule(df *table.Frame) (*table.Frame, []string) {
	var issues []string
	for i := 0; i < df.Len(); i++ {
		v, ok := df.Float(i, "age")
		if ok && v < 0 {
			df.SetNull(i, "age")
			issues = append(issues, "nulled negative age for id "+strconv.Itoa(i+1))
		}
	}
	return df, issues
}
`

func TestApply_TransformWithIssues(t *testing.T) {
	in := people(t)
	res, err := New().Apply(context.Background(), nullNegativeAges, in)
	require.NoError(t, err)

	assert.Equal(t, []any{int64(25), nil, int64(40)}, res.Frame.Values("age"))
	assert.Equal(t, []string{"nulled negative age for id 2"}, res.Issues)
	assert.Equal(t, int64(-3), in.Get(1, "age"), "input must not be modified")
}

func TestApply_BareFrameReturnNormalized(t *testing.T) {
	src := `func ApplyRule(df *table.Frame) *table.Frame {
	df.Apply("age", func(v any) any {
		if n, ok := table.ToFloat(v); ok {
			return math.Abs(n)
		}
		return v
	})
	return df
}`
	res, err := New().Apply(context.Background(), src, people(t))
	require.NoError(t, err)
	assert.Nil(t, res.Issues)
	assert.Equal(t, 3.0, res.Frame.Get(1, "age"))
}

func TestApply_PackageClauseAndHelpers(t *testing.T) {
	src := `package transform

const column = "label"

func label(id int64) string { return strings.ToUpper(fmt.Sprintf("p-%d", id)) }

func ApplyRule(df *table.Frame) (*table.Frame, []string) {
	if err := df.AddColumn(column, table.String); err != nil {
		return df, []string{err.Error()}
	}
	for i := 0; i < df.Len(); i++ {
		id, _ := table.ToInt(df.Get(i, "id"))
		df.Set(i, column, label(id))
	}
	return df, nil
}`
	res, err := New().Apply(context.Background(), src, people(t))
	require.NoError(t, err)
	assert.Equal(t, []any{"P-1", "P-2", "P-3"}, res.Frame.Values("label"))
}

func TestApply_DropRowsWithClosure(t *testing.T) {
	src := `func ApplyRule(df *table.Frame) (*table.Frame, []string) {
	n := df.DropRows(func(i int) bool {
		v, _ := df.Float(i, "age")
		return v < 0
	})
	return df, []string{"dropped " + strconv.Itoa(n)}
}`
	res, err := New().Apply(context.Background(), src, people(t))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Frame.Len())
	assert.Equal(t, []int{0, 2}, res.Frame.Keys())
	assert.Equal(t, []string{"dropped 1"}, res.Issues)
}

func TestApply_MissingEntryPoint(t *testing.T) {
	_, err := New().Apply(context.Background(), `func Transform(df *table.Frame) *table.Frame { return df }`, people(t))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEntryPointNotDefined))
	assert.Contains(t, err.Error(), "entry point not defined")
}

func TestApply_CustomEntryPoint(t *testing.T) {
	s := New(WithEntryPoint("Clean"))
	assert.Equal(t, "Clean", s.EntryPoint())
	_, err := s.Apply(context.Background(), `func Clean(df *table.Frame) *table.Frame { return df }`, people(t))
	assert.NoError(t, err)
}

func TestApply_WrongSignature(t *testing.T) {
	_, err := New().Apply(context.Background(), `func ApplyRule(n int) int { return n }`, people(t))

	var execErr *ExecutionError
	require.True(t, errors.As(err, &execErr), "got %v", err)
	assert.Equal(t, ClassType, execErr.Class)
}

func TestApply_MissingColumnIsMissingKey(t *testing.T) {
	src := `func ApplyRule(df *table.Frame) *table.Frame {
	df.Set(0, "salary", 10)
	return df
}`
	_, err := New().Apply(context.Background(), src, people(t))

	var execErr *ExecutionError
	require.True(t, errors.As(err, &execErr), "got %v", err)
	assert.Equal(t, ClassMissingKey, execErr.Class)
	assert.Contains(t, execErr.Message, "salary")
}

func TestApply_NilFrame(t *testing.T) {
	_, err := New().Apply(context.Background(), `func ApplyRule(df *table.Frame) *table.Frame { return nil }`, people(t))

	var execErr *ExecutionError
	require.True(t, errors.As(err, &execErr))
	assert.Equal(t, ClassNil, execErr.Class)
}

func TestApply_LoadErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"syntax", `func ApplyRule(df *table.Frame *table.Frame { return df }`},
		{"undefined name", `func ApplyRule(df *table.Frame) *table.Frame { return missingHelper(df) }`},
		{"unbound package", `func ApplyRule(df *table.Frame) *table.Frame { os.Exit(1); return df }`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New().Apply(context.Background(), tt.src, people(t))
			var execErr *ExecutionError
			require.True(t, errors.As(err, &execErr), "got %v", err)
		})
	}
}

func TestBindings(t *testing.T) {
	b := Bindings()
	assert.Equal(t, TablePath, b[0])
	assert.Contains(t, b, "strings")
	assert.NotContains(t, b, "os")

	syms := symbols()
	_, ok := syms["os/os"]
	assert.False(t, ok)
	_, ok = syms["cleansynth/table/table"]
	assert.True(t, ok)
}

func TestClassifyMessage(t *testing.T) {
	tests := map[string]ErrorClass{
		"1:28: undefined: foo":                      ClassName,
		"undefined selector Bogus":                  ClassAttribute,
		"cannot use x (type int) as type string":    ClassType,
		"1:1: expected declaration, found 'IDENT'":  ClassSyntax,
		"missing key: price":                        ClassMissingKey,
		"runtime error: index out of range [3]":     ClassIndex,
		"something odd happened":                    ClassRuntime,
	}
	for msg, want := range tests {
		assert.Equal(t, want, classifyMessage(msg), msg)
	}
}
