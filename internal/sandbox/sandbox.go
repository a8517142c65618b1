// Package sandbox runs a candidate transform against a private copy of the
// working dataset inside a yaegi interpreter.
//
// Each call gets a fresh interpreter whose only resolvable packages are the
// table package and a short list of pure standard packages. Those are
// imported by the sandbox before the candidate is loaded, so candidates are
// written without import declarations.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"
	"runtime"
	"strings"

	"github.com/traefik/yaegi/interp"

	"cleansynth/internal/guard"
	"cleansynth/internal/logging"
	"cleansynth/internal/table"
)

// DefaultEntryPoint is the function a transform must define.
const DefaultEntryPoint = "ApplyRule"

// ErrEntryPointNotDefined is returned when the candidate has no callable entry point.
var ErrEntryPointNotDefined = errors.New("entry point not defined")

// ErrorClass buckets execution failures for feedback to the generator.
type ErrorClass string

const (
	ClassSyntax     ErrorClass = "syntax"
	ClassName       ErrorClass = "name"
	ClassType       ErrorClass = "type"
	ClassMissingKey ErrorClass = "missing key"
	ClassAttribute  ErrorClass = "attribute"
	ClassIndex      ErrorClass = "index"
	ClassNil        ErrorClass = "nil"
	ClassRuntime    ErrorClass = "runtime"
	ClassCancelled  ErrorClass = "cancelled"
)

// ExecutionError describes why a transform could not be loaded or run.
type ExecutionError struct {
	Class   ErrorClass
	Message string
	Err     error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s error: %s", e.Class, e.Message)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// Result is the output of a successful execution.
type Result struct {
	Frame  *table.Frame
	Issues []string
}

var (
	frameType  = reflect.TypeOf((*table.Frame)(nil))
	issuesType = reflect.TypeOf([]string(nil))
)

// Sandbox executes transforms.
type Sandbox struct {
	entryPoint string
	symbols    interp.Exports
	imports    []string
}

// Option configures a Sandbox.
type Option func(*Sandbox)

// WithEntryPoint overrides the function name looked up after loading.
func WithEntryPoint(name string) Option {
	return func(s *Sandbox) {
		if name != "" {
			s.entryPoint = name
		}
	}
}

// New creates a sandbox with the default bindings.
func New(opts ...Option) *Sandbox {
	s := &Sandbox{
		entryPoint: DefaultEntryPoint,
		symbols:    symbols(),
		imports:    Bindings(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EntryPoint returns the function name transforms must define.
func (s *Sandbox) EntryPoint() string { return s.entryPoint }

// Apply loads source, then calls its entry point with a copy of input.
// input is never modified.
func (s *Sandbox) Apply(ctx context.Context, source string, input *table.Frame) (Result, error) {
	timer := logging.StartTimer(logging.CategorySandbox, "Apply")
	defer timer.Stop()

	fn, err := s.load(ctx, source)
	if err != nil {
		return Result{}, err
	}
	if err := checkSignature(fn.Type()); err != nil {
		return Result{}, err
	}

	type outcome struct {
		res Result
		err error
	}
	done := make(chan outcome, 1)
	working := input.Copy()

	go func() {
		var out outcome
		defer func() {
			if r := recover(); r != nil {
				out = outcome{err: fromPanic(r)}
			}
			done <- out
		}()
		out.res, out.err = call(fn, working)
	}()

	select {
	case out := <-done:
		if out.err == nil {
			logging.SandboxDebug("%s returned %d rows, %d issues", s.entryPoint, out.res.Frame.Len(), len(out.res.Issues))
		}
		return out.res, out.err
	case <-ctx.Done():
		return Result{}, &ExecutionError{Class: ClassCancelled, Message: "execution cancelled", Err: ctx.Err()}
	}
}

func (s *Sandbox) load(ctx context.Context, source string) (reflect.Value, error) {
	i := interp.New(interp.Options{Stdout: io.Discard, Stderr: io.Discard})
	if err := i.Use(s.symbols); err != nil {
		return reflect.Value{}, fmt.Errorf("failed to load bindings: %w", err)
	}
	for _, pkg := range s.imports {
		if _, err := i.EvalWithContext(ctx, fmt.Sprintf("import %q", pkg)); err != nil {
			return reflect.Value{}, fmt.Errorf("failed to import %s: %w", pkg, err)
		}
	}

	if _, err := i.EvalWithContext(ctx, guard.StripPackageClause(source)); err != nil {
		return reflect.Value{}, fromEvalError(err)
	}

	fn, err := i.EvalWithContext(ctx, s.entryPoint)
	if err != nil || !fn.IsValid() || fn.Kind() != reflect.Func {
		logging.SandboxDebug("entry point %s lookup failed: %v", s.entryPoint, err)
		return reflect.Value{}, &ExecutionError{
			Class:   ClassName,
			Message: fmt.Sprintf("%s: %s", ErrEntryPointNotDefined, s.entryPoint),
			Err:     ErrEntryPointNotDefined,
		}
	}
	return fn, nil
}

func checkSignature(t reflect.Type) error {
	ok := t.NumIn() == 1 && t.In(0) == frameType && !t.IsVariadic()
	switch {
	case !ok:
	case t.NumOut() == 1 && t.Out(0) == frameType:
		return nil
	case t.NumOut() == 2 && t.Out(0) == frameType && t.Out(1) == issuesType:
		return nil
	}
	return &ExecutionError{
		Class:   ClassType,
		Message: fmt.Sprintf("entry point has signature %s, want func(*table.Frame) (*table.Frame, []string)", t),
	}
}

func call(fn reflect.Value, working *table.Frame) (Result, error) {
	out := fn.Call([]reflect.Value{reflect.ValueOf(working)})

	frame, _ := out[0].Interface().(*table.Frame)
	if frame == nil {
		return Result{}, &ExecutionError{Class: ClassNil, Message: "transform returned a nil frame"}
	}
	var issues []string
	if len(out) == 2 {
		issues, _ = out[1].Interface().([]string)
	}
	return Result{Frame: frame, Issues: issues}, nil
}

func fromPanic(r any) error {
	switch v := r.(type) {
	case interp.Panic:
		return fromPanic(v.Value)
	case *table.KeyError:
		return &ExecutionError{Class: ClassMissingKey, Message: v.Error(), Err: v}
	case runtime.Error:
		msg := v.Error()
		class := ClassRuntime
		switch {
		case strings.Contains(msg, "nil pointer"), strings.Contains(msg, "nil map"):
			class = ClassNil
		case strings.Contains(msg, "index out of range"), strings.Contains(msg, "slice bounds"):
			class = ClassIndex
		case strings.Contains(msg, "interface conversion"):
			class = ClassType
		}
		return &ExecutionError{Class: class, Message: msg, Err: v}
	case error:
		return &ExecutionError{Class: classifyMessage(v.Error()), Message: v.Error(), Err: v}
	default:
		msg := fmt.Sprint(v)
		return &ExecutionError{Class: classifyMessage(msg), Message: msg}
	}
}

func fromEvalError(err error) error {
	var p interp.Panic
	if errors.As(err, &p) {
		return fromPanic(p.Value)
	}
	msg := err.Error()
	return &ExecutionError{Class: classifyMessage(msg), Message: msg, Err: err}
}

func classifyMessage(msg string) ErrorClass {
	switch {
	case strings.Contains(msg, "missing key"):
		return ClassMissingKey
	case strings.Contains(msg, "undefined selector"), strings.Contains(msg, "has no field or method"):
		return ClassAttribute
	case strings.Contains(msg, "undefined"):
		return ClassName
	case strings.Contains(msg, "cannot use"), strings.Contains(msg, "mismatched types"),
		strings.Contains(msg, "invalid operation"), strings.Contains(msg, "interface conversion"),
		strings.Contains(msg, "cannot convert"):
		return ClassType
	case strings.Contains(msg, "expected"), strings.Contains(msg, "syntax"), strings.Contains(msg, "illegal"):
		return ClassSyntax
	case strings.Contains(msg, "index out of range"):
		return ClassIndex
	case strings.Contains(msg, "nil pointer"):
		return ClassNil
	default:
		return ClassRuntime
	}
}
