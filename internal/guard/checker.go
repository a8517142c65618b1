// Package guard statically vets generated transforms before they are run.
//
// The check is purely syntactic: it walks the parsed AST and rejects a fixed
// set of constructs and callee names. It never executes or type-checks code.
package guard

import (
	"bytes"
	"fmt"
	"go/ast"
	"go/parser"
	"go/printer"
	"go/token"
	"strings"

	"cleansynth/internal/logging"
)

// ViolationType categorizes violations.
type ViolationType int

const (
	ViolationSyntax ViolationType = iota
	ViolationImport
	ViolationGlobal
	ViolationResourceScope
	ViolationExceptionHandling
	ViolationIndefiniteLoop
	ViolationConcurrency
	ViolationForbiddenCall
)

func (v ViolationType) String() string {
	switch v {
	case ViolationSyntax:
		return "SyntaxError"
	case ViolationImport:
		return "Import"
	case ViolationGlobal:
		return "Global"
	case ViolationResourceScope:
		return "Defer"
	case ViolationExceptionHandling:
		return "PanicRecover"
	case ViolationIndefiniteLoop:
		return "IndefiniteLoop"
	case ViolationConcurrency:
		return "Concurrency"
	case ViolationForbiddenCall:
		return "Call"
	default:
		return "Unknown"
	}
}

// Violation describes a single rejected construct.
type Violation struct {
	Type        ViolationType
	Line        int
	Name        string // node kind or callee name
	Description string
}

// Report contains the results of a check.
type Report struct {
	Safe         bool
	Violations   []Violation
	NodesChecked int
	CallsChecked int
}

// ValidationError is returned by Report.Err for unsafe code.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	if len(e.Violations) == 0 {
		return "unsafe code"
	}
	first := e.Violations[0]
	msg := fmt.Sprintf("unsafe code: %s", first.Description)
	if first.Line > 0 {
		msg = fmt.Sprintf("unsafe code (line %d): %s", first.Line, first.Description)
	}
	if n := len(e.Violations) - 1; n > 0 {
		msg += fmt.Sprintf(" (and %d more)", n)
	}
	return msg
}

// Err returns nil for safe code and a *ValidationError otherwise.
func (r *Report) Err() error {
	if r.Safe {
		return nil
	}
	return &ValidationError{Violations: r.Violations}
}

// denied callee names, matched against bare identifiers and selector names.
var deniedCalls = map[string]string{
	// dynamic evaluation
	"eval":            "dynamic evaluation",
	"Eval":            "dynamic evaluation",
	"EvalPath":        "dynamic evaluation",
	"EvalWithContext": "dynamic evaluation",
	// dynamic execution
	"exec":           "dynamic execution",
	"Exec":           "dynamic execution",
	"Command":        "dynamic execution",
	"CommandContext": "dynamic execution",
	"StartProcess":   "dynamic execution",
	"Syscall":        "dynamic execution",
	// filesystem
	"open":      "filesystem access",
	"Open":      "filesystem access",
	"OpenFile":  "filesystem access",
	"Create":    "filesystem access",
	"ReadFile":  "filesystem access",
	"WriteFile": "filesystem access",
	"ReadDir":   "filesystem access",
	"Remove":    "filesystem access",
	"RemoveAll": "filesystem access",
	"Mkdir":     "filesystem access",
	"MkdirAll":  "filesystem access",
	// dynamic module import
	"__import__": "dynamic import",
	"Import":     "dynamic import",
	"Lookup":     "dynamic import",
}

// deniedPackages may not be referenced through a selector at all.
var deniedPackages = map[string]bool{
	"os":      true,
	"exec":    true,
	"syscall": true,
	"unsafe":  true,
	"reflect": true,
	"runtime": true,
	"plugin":  true,
	"net":     true,
	"http":    true,
	"interp":  true,
	"ioutil":  true,
	"io":      true,
}

// Checker validates generated transform source.
type Checker struct {
	deniedCalls    map[string]string
	deniedPackages map[string]bool
}

// NewChecker returns a checker with the default denylist.
func NewChecker() *Checker {
	return &Checker{deniedCalls: deniedCalls, deniedPackages: deniedPackages}
}

// Check parses and walks code. Source without a package clause is accepted.
func (c *Checker) Check(code string) *Report {
	report := &Report{Safe: true}

	fset := token.NewFileSet()
	src, lineOffset := withPackageClause(code)
	file, err := parser.ParseFile(fset, "transform.go", src, parser.SkipObjectResolution)
	if err != nil {
		report.add(Violation{
			Type:        ViolationSyntax,
			Name:        ViolationSyntax.String(),
			Description: fmt.Sprintf("failed to parse code: %v", err),
		})
		return report
	}

	w := &walker{checker: c, fset: fset, report: report, lineOffset: lineOffset}
	for _, imp := range file.Imports {
		w.flag(imp.Pos(), ViolationImport, "Import", fmt.Sprintf("import of %s is not allowed", imp.Path.Value))
	}
	for _, decl := range file.Decls {
		if gen, ok := decl.(*ast.GenDecl); ok && gen.Tok == token.VAR {
			w.flag(gen.Pos(), ViolationGlobal, "Global", "package-level var declarations are not allowed")
		}
	}
	ast.Walk(w, file)

	logging.GuardDebug("checked %d nodes, %d calls: safe=%v violations=%d",
		report.NodesChecked, report.CallsChecked, report.Safe, len(report.Violations))
	return report
}

// Validate is Check(code).Err() with the default checker.
func Validate(code string) error {
	return NewChecker().Check(code).Err()
}

func (r *Report) add(v Violation) {
	r.Safe = false
	r.Violations = append(r.Violations, v)
}

type walker struct {
	checker    *Checker
	fset       *token.FileSet
	report     *Report
	lineOffset int
}

func (w *walker) Visit(node ast.Node) ast.Visitor {
	if node == nil {
		return nil
	}
	w.report.NodesChecked++

	switch n := node.(type) {
	case *ast.DeferStmt:
		w.flag(n.Pos(), ViolationResourceScope, "Defer", "defer is not allowed")
	case *ast.GoStmt:
		w.flag(n.Pos(), ViolationConcurrency, "Go", "goroutines are not allowed")
	case *ast.SelectStmt:
		w.flag(n.Pos(), ViolationConcurrency, "Select", "select is not allowed")
	case *ast.BranchStmt:
		if n.Tok == token.GOTO {
			w.flag(n.Pos(), ViolationIndefiniteLoop, "Goto", "goto is not allowed")
		}
	case *ast.ForStmt:
		switch {
		case n.Cond == nil:
			w.flag(n.Pos(), ViolationIndefiniteLoop, "For", "loops without a condition are not allowed")
		case n.Init == nil && n.Post == nil:
			w.flag(n.Pos(), ViolationIndefiniteLoop, "While", "condition-only loops are not allowed; use range or a counted loop")
		}
	case *ast.CallExpr:
		w.report.CallsChecked++
		w.checkCall(n)
	case *ast.SelectorExpr:
		if pkg, ok := n.X.(*ast.Ident); ok && w.checker.deniedPackages[pkg.Name] {
			name := pkg.Name + "." + n.Sel.Name
			w.flag(n.Pos(), ViolationForbiddenCall, name, fmt.Sprintf("access to %s is not allowed", name))
		}
	}
	return w
}

func (w *walker) checkCall(call *ast.CallExpr) {
	var name string
	switch fn := call.Fun.(type) {
	case *ast.Ident:
		name = fn.Name
		if name == "panic" || name == "recover" {
			w.flag(call.Pos(), ViolationExceptionHandling, name, fmt.Sprintf("%s is not allowed; report problems in the issues list", name))
			return
		}
	case *ast.SelectorExpr:
		name = fn.Sel.Name
	default:
		return
	}
	if reason, denied := w.checker.deniedCalls[name]; denied {
		w.flag(call.Pos(), ViolationForbiddenCall, name,
			fmt.Sprintf("call to %s is not allowed (%s)", w.exprToString(call.Fun), reason))
	}
}

func (w *walker) flag(pos token.Pos, typ ViolationType, name, desc string) {
	line := w.fset.Position(pos).Line - w.lineOffset
	if line < 0 {
		line = 0
	}
	w.report.add(Violation{Type: typ, Line: line, Name: name, Description: desc})
}

func (w *walker) exprToString(expr ast.Expr) string {
	var buf bytes.Buffer
	_ = printer.Fprint(&buf, w.fset, expr)
	return buf.String()
}

// withPackageClause prepends a package clause when code has none, returning
// the number of lines added.
func withPackageClause(code string) (string, int) {
	if HasPackageClause(code) {
		return code, 0
	}
	return "package transform\n" + code, 1
}

// HasPackageClause reports whether code starts with a package clause.
func HasPackageClause(code string) bool {
	_, err := parser.ParseFile(token.NewFileSet(), "", code, parser.PackageClauseOnly)
	return err == nil
}

// StripPackageClause blanks out a leading package clause, keeping line numbers.
func StripPackageClause(code string) string {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "", code, parser.PackageClauseOnly)
	if err != nil {
		return code
	}
	start := fset.Position(file.Package).Offset
	end := fset.Position(file.Name.End()).Offset
	if start < 0 || end > len(code) || start >= end {
		return code
	}
	return code[:start] + strings.Repeat(" ", end-start) + code[end:]
}
