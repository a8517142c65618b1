// Package synthesis turns one rule into an executed transform through a
// bounded generate, validate, verify and execute loop.
package synthesis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cleansynth/internal/diff"
	"cleansynth/internal/digest"
	"cleansynth/internal/guard"
	"cleansynth/internal/llm"
	"cleansynth/internal/logging"
	"cleansynth/internal/sandbox"
	"cleansynth/internal/table"
	"cleansynth/internal/types"
)

// DefaultMaxAttempts bounds the attempts per rule.
const DefaultMaxAttempts = 3

// Stage identifies where in the loop an attempt is.
type Stage int

const (
	StageGenerating Stage = iota
	StageValidating
	StageVerifying
	StageExecuting
	StageCommitted
	StageRetrying
	StageFailed
)

func (s Stage) String() string {
	switch s {
	case StageGenerating:
		return "generating"
	case StageValidating:
		return "validating"
	case StageVerifying:
		return "verifying"
	case StageExecuting:
		return "executing"
	case StageCommitted:
		return "committed"
	case StageRetrying:
		return "retrying"
	case StageFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// FailureKind tags an attempt-local failure.
type FailureKind string

const (
	FailureCollaborator FailureKind = "collaborator"
	FailureValidation   FailureKind = "validation"
	FailureVerification FailureKind = "verification"
	FailureExecution    FailureKind = "execution"
)

// AttemptError is the single shape of every attempt-local failure. Reason is
// what gets fed back to the generator.
type AttemptError struct {
	Attempt int
	Stage   Stage
	Kind    FailureKind
	Reason  string
	Err     error
}

func (e *AttemptError) Error() string {
	return fmt.Sprintf("attempt %d %s failed: %s", e.Attempt, e.Kind, e.Reason)
}

func (e *AttemptError) Unwrap() error { return e.Err }

// ExhaustionError is returned when every attempt failed.
type ExhaustionError struct {
	Rule     types.Rule
	Attempts int
	Last     *AttemptError
}

func (e *ExhaustionError) Error() string {
	return fmt.Sprintf("%s: no committed transform after %d attempts: %s", e.Rule, e.Attempts, e.Last.Reason)
}

func (e *ExhaustionError) Unwrap() error { return e.Last }

// Outcome is a committed attempt.
type Outcome struct {
	Result   sandbox.Result
	Source   string
	Attempts int
}

// AttemptRecord describes one finished attempt.
type AttemptRecord struct {
	Rule     types.Rule
	Attempt  int
	Stage    Stage // stage reached; StageCommitted on success
	Kind     FailureKind
	Reason   string
	Source   string
	Delta    diff.SourceDelta // against the previous attempt's source
	Duration time.Duration
}

// AttemptRecorder receives every attempt. Errors are logged and ignored.
type AttemptRecorder interface {
	RecordAttempt(ctx context.Context, rec AttemptRecord) error
}

// Executor runs candidate source against a frame.
type Executor interface {
	Apply(ctx context.Context, source string, input *table.Frame) (sandbox.Result, error)
}

// Validator checks candidate source before it runs.
type Validator interface {
	Check(code string) *guard.Report
}

// Loop drives synthesis for one rule at a time.
type Loop struct {
	generator   types.Generator
	verifier    types.Verifier
	validator   Validator
	executor    Executor
	recorder    AttemptRecorder
	maxAttempts int
}

// Option configures a Loop.
type Option func(*Loop)

// WithMaxAttempts overrides DefaultMaxAttempts.
func WithMaxAttempts(n int) Option {
	return func(l *Loop) {
		if n > 0 {
			l.maxAttempts = n
		}
	}
}

// WithRecorder reports each attempt to r.
func WithRecorder(r AttemptRecorder) Option {
	return func(l *Loop) { l.recorder = r }
}

// WithValidator replaces the default guard.Checker.
func WithValidator(v Validator) Option {
	return func(l *Loop) { l.validator = v }
}

// NewLoop creates a loop.
func NewLoop(gen types.Generator, ver types.Verifier, exec Executor, opts ...Option) *Loop {
	l := &Loop{
		generator:   gen,
		verifier:    ver,
		validator:   guard.NewChecker(),
		executor:    exec,
		maxAttempts: DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// MaxAttempts returns the attempt bound.
func (l *Loop) MaxAttempts() int { return l.maxAttempts }

// Run synthesizes and executes a transform for rule against a private copy
// of committed. committed is never modified. Attempt-local failures are fed
// back to the next attempt; terminal collaborator errors end the loop at once.
func (l *Loop) Run(ctx context.Context, rule types.Rule, dg *digest.Digest, committed *table.Frame) (*Outcome, error) {
	var (
		lastErr    *AttemptError
		prevSource string
	)
	for attempt := 1; attempt <= l.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		start := time.Now()
		feedback := ""
		if lastErr != nil {
			feedback = lastErr.Reason
		}

		source, res, aerr, fatal := l.attempt(ctx, attempt, rule, dg, feedback, committed)
		rec := AttemptRecord{
			Rule:     rule,
			Attempt:  attempt,
			Stage:    StageCommitted,
			Source:   source,
			Delta:    diff.CompareSource(prevSource, source),
			Duration: time.Since(start),
		}
		switch {
		case fatal != nil:
			rec.Stage, rec.Kind, rec.Reason = StageFailed, FailureCollaborator, fatal.Error()
		case aerr != nil:
			rec.Stage, rec.Kind, rec.Reason = aerr.Stage, aerr.Kind, aerr.Reason
		}
		l.record(ctx, rec)
		if source != "" {
			prevSource = source
		}

		if fatal != nil {
			logging.SynthesisWarn("%s attempt %d: terminal collaborator error: %v", rule, attempt, fatal)
			return nil, fatal
		}
		if aerr == nil {
			logging.Synthesis("%s committed on attempt %d/%d", rule, attempt, l.maxAttempts)
			return &Outcome{Result: res, Source: source, Attempts: attempt}, nil
		}

		lastErr = aerr
		if aerr.Kind == FailureValidation {
			logging.Audit().SafetyBlock(rule.Index, attempt, violationCount(aerr.Err), aerr.Reason)
		} else {
			logging.Audit().AttemptFailed(rule.Index, attempt, aerr.Stage.String(), string(aerr.Kind), aerr.Reason)
		}
		if attempt < l.maxAttempts {
			logging.SynthesisWarn("%s attempt %d/%d failed at %s, retrying: %s", rule, attempt, l.maxAttempts, aerr.Stage, aerr.Reason)
		} else {
			logging.SynthesisWarn("%s attempt %d/%d failed at %s: %s", rule, attempt, l.maxAttempts, aerr.Stage, aerr.Reason)
		}
	}
	return nil, &ExhaustionError{Rule: rule, Attempts: l.maxAttempts, Last: lastErr}
}

// attempt runs one cycle. It returns either a result, an attempt-local
// failure, or a fatal error.
func (l *Loop) attempt(ctx context.Context, n int, rule types.Rule, dg *digest.Digest, feedback string, committed *table.Frame) (string, sandbox.Result, *AttemptError, error) {
	fail := func(stage Stage, kind FailureKind, reason string, err error) *AttemptError {
		return &AttemptError{Attempt: n, Stage: stage, Kind: kind, Reason: reason, Err: err}
	}

	source, err := l.generator.Synthesize(ctx, rule, dg, feedback)
	if err != nil {
		aerr, fatal := collaboratorFailure(err, fail(StageGenerating, FailureCollaborator, err.Error(), err))
		return "", sandbox.Result{}, aerr, fatal
	}

	report := l.validator.Check(source)
	if !report.Safe {
		verr := report.Err()
		return source, sandbox.Result{}, fail(StageValidating, FailureValidation, verr.Error(), verr), nil
	}
	logging.SynthesisDebug("%s attempt %d: validation passed (%d nodes)", rule, n, report.NodesChecked)

	verdict, err := l.verifier.Verify(ctx, source, rule)
	if err != nil {
		aerr, fatal := collaboratorFailure(err, fail(StageVerifying, FailureCollaborator, err.Error(), err))
		return source, sandbox.Result{}, aerr, fatal
	}
	if !verdict.Approved {
		reason := fmt.Sprintf("code rejected by verifier: %s", verdict.Reason)
		return source, sandbox.Result{}, fail(StageVerifying, FailureVerification, reason, errors.New(reason)), nil
	}

	res, err := l.executor.Apply(ctx, source, committed)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return source, sandbox.Result{}, nil, ctxErr
		}
		return source, sandbox.Result{}, fail(StageExecuting, FailureExecution, err.Error(), err), nil
	}
	for _, issue := range res.Issues {
		logging.SynthesisDebug("%s issue: %s", rule, issue)
	}
	return source, res, nil, nil
}

// collaboratorFailure splits collaborator errors into attempt-local and fatal.
func collaboratorFailure(err error, local *AttemptError) (*AttemptError, error) {
	if llm.IsTransient(err) || llm.IsUnparsable(err) {
		return local, nil
	}
	return nil, err
}

func (l *Loop) record(ctx context.Context, rec AttemptRecord) {
	if l.recorder == nil {
		return
	}
	if err := l.recorder.RecordAttempt(ctx, rec); err != nil {
		logging.SynthesisWarn("failed to record %s attempt %d: %v", rec.Rule, rec.Attempt, err)
	}
}

func violationCount(err error) int {
	var verr *guard.ValidationError
	if errors.As(err, &verr) {
		return len(verr.Violations)
	}
	return 0
}
