package guard

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestChecker(t *testing.T) {
	checker := NewChecker()

	tests := []struct {
		name        string
		code        string
		shouldPass  bool
		violation   ViolationType
		descContain string
	}{
		{
			name: "sanctioned-only transform",
			code: `func ApplyRule(df *table.Frame) (*table.Frame, []string) {
	var issues []string
	for i := 0; i < df.Len(); i++ {
		if v, ok := df.Float(i, "age"); ok && v < 0 {
			df.SetNull(i, "age")
			issues = append(issues, strings.TrimSpace(" negative age "))
		}
	}
	return df, issues
}`,
			shouldPass: true,
		},
		{
			name: "package clause and helpers",
			code: `package main

const limit = 120

func clamp(v float64) float64 { return math.Min(v, limit) }

func ApplyRule(df *table.Frame) *table.Frame {
	for _, key := range df.Keys() {
		_ = key
	}
	return df
}`,
			shouldPass: true,
		},
		{
			name:        "dynamic evaluation",
			code:        `func ApplyRule(df *table.Frame) *table.Frame { eval("1+1"); return df }`,
			violation:   ViolationForbiddenCall,
			descContain: "eval",
		},
		{
			name:        "interpreter eval via selector",
			code:        `func ApplyRule(df *table.Frame) *table.Frame { i.Eval("x"); return df }`,
			violation:   ViolationForbiddenCall,
			descContain: "i.Eval",
		},
		{
			name: "import",
			code: `package main
import "os"
func ApplyRule(df *table.Frame) *table.Frame { return df }`,
			violation:   ViolationImport,
			descContain: `"os"`,
		},
		{
			name:        "global var",
			code:        "var counter int\nfunc ApplyRule(df *table.Frame) *table.Frame { return df }",
			violation:   ViolationGlobal,
			descContain: "package-level",
		},
		{
			name:        "defer",
			code:        `func ApplyRule(df *table.Frame) *table.Frame { defer df.Len(); return df }`,
			violation:   ViolationResourceScope,
			descContain: "defer",
		},
		{
			name:        "recover",
			code:        `func ApplyRule(df *table.Frame) *table.Frame { if r := recover(); r != nil { return df }; return df }`,
			violation:   ViolationExceptionHandling,
			descContain: "recover",
		},
		{
			name:        "panic",
			code:        `func ApplyRule(df *table.Frame) *table.Frame { panic("no") }`,
			violation:   ViolationExceptionHandling,
			descContain: "panic",
		},
		{
			name:        "infinite loop",
			code:        `func ApplyRule(df *table.Frame) *table.Frame { for { break }; return df }`,
			violation:   ViolationIndefiniteLoop,
			descContain: "without a condition",
		},
		{
			name:        "while loop",
			code:        `func ApplyRule(df *table.Frame) *table.Frame { i := 0; for i < 3 { i++ }; return df }`,
			violation:   ViolationIndefiniteLoop,
			descContain: "condition-only",
		},
		{
			name:        "goto",
			code:        "func ApplyRule(df *table.Frame) *table.Frame {\nagain:\n\tgoto again\n}",
			violation:   ViolationIndefiniteLoop,
			descContain: "goto",
		},
		{
			name:        "goroutine",
			code:        `func ApplyRule(df *table.Frame) *table.Frame { go df.Len(); return df }`,
			violation:   ViolationConcurrency,
			descContain: "goroutines",
		},
		{
			name:        "filesystem open",
			code:        `func ApplyRule(df *table.Frame) *table.Frame { f.Open("/etc/passwd"); return df }`,
			violation:   ViolationForbiddenCall,
			descContain: "filesystem",
		},
		{
			name:        "process execution",
			code:        `func ApplyRule(df *table.Frame) *table.Frame { cmd.Command("ls"); return df }`,
			violation:   ViolationForbiddenCall,
			descContain: "dynamic execution",
		},
		{
			name:        "capability package selector",
			code:        `func ApplyRule(df *table.Frame) *table.Frame { _ = os.Getenv("HOME"); return df }`,
			violation:   ViolationForbiddenCall,
			descContain: "os.Getenv",
		},
		{
			name:        "syntax error",
			code:        `func ApplyRule(df *table.Frame *table.Frame { return df }`,
			violation:   ViolationSyntax,
			descContain: "failed to parse",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := checker.Check(tt.code)
			if tt.shouldPass {
				assert.True(t, report.Safe, "violations: %+v", report.Violations)
				assert.NoError(t, report.Err())
				return
			}
			require.False(t, report.Safe, "expected unsafe")
			found := false
			for _, v := range report.Violations {
				if v.Type == tt.violation && strings.Contains(v.Description, tt.descContain) {
					found = true
				}
			}
			assert.True(t, found, "expected %v containing %q, got %+v", tt.violation, tt.descContain, report.Violations)
		})
	}
}

func TestValidationErrorMessage(t *testing.T) {
	err := Validate("func ApplyRule(df *table.Frame) *table.Frame {\n\tdefer df.Len()\n\tpanic(1)\n}")
	require.Error(t, err)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Len(t, verr.Violations, 2)
	assert.Equal(t, "unsafe code (line 2): defer is not allowed (and 1 more)", err.Error())
}

func TestLineNumbersIgnoreInjectedClause(t *testing.T) {
	report := NewChecker().Check("func ApplyRule(df *table.Frame) *table.Frame {\n\treturn df\n}\nvar x = 1\n")
	require.Len(t, report.Violations, 1)
	assert.Equal(t, 4, report.Violations[0].Line)
	assert.Equal(t, "Global", report.Violations[0].Name)
}

func TestCountsNodesAndCalls(t *testing.T) {
	report := NewChecker().Check(`func ApplyRule(df *table.Frame) *table.Frame { df.Len(); df.Width(); return df }`)
	assert.True(t, report.Safe)
	assert.Equal(t, 2, report.CallsChecked)
	assert.Greater(t, report.NodesChecked, 0)
}

func TestStripPackageClause(t *testing.T) {
	src := "package transform\n\nfunc ApplyRule() {}\n"
	got := StripPackageClause(src)
	assert.Equal(t, strings.Repeat(" ", len("package transform"))+"\n\nfunc ApplyRule() {}\n", got)
	assert.False(t, HasPackageClause(got))

	bare := "func ApplyRule() {}"
	assert.Equal(t, bare, StripPackageClause(bare))
}
