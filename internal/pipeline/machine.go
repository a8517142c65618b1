// Package pipeline applies an ordered list of rules to a dataset, one rule at
// a time, keeping an append-only history of what each rule did.
package pipeline

import (
	"context"
	"fmt"

	"cleansynth/internal/diff"
	"cleansynth/internal/digest"
	"cleansynth/internal/logging"
	"cleansynth/internal/synthesis"
	"cleansynth/internal/table"
	"cleansynth/internal/types"
)

// Synthesizer produces a committed transform result for one rule.
type Synthesizer interface {
	Run(ctx context.Context, rule types.Rule, dg *digest.Digest, committed *table.Frame) (*synthesis.Outcome, error)
}

// Machine is the rule-application state machine.
type Machine struct {
	interpreter types.Interpreter
	synthesizer Synthesizer
	auditor     types.Auditor
	profiler    *digest.Profiler
	sink        Sink
	fileName    string
}

// Option configures a Machine.
type Option func(*Machine)

// WithSink publishes every history append to s.
func WithSink(s Sink) Option {
	return func(m *Machine) { m.sink = s }
}

// WithProfiler overrides the digest profiler.
func WithProfiler(p *digest.Profiler) Option {
	return func(m *Machine) {
		if p != nil {
			m.profiler = p
		}
	}
}

// WithFileName sets the dataset name shown in digests.
func WithFileName(name string) Option {
	return func(m *Machine) { m.fileName = name }
}

// NewMachine creates a machine.
func NewMachine(interpreter types.Interpreter, synthesizer Synthesizer, auditor types.Auditor, opts ...Option) *Machine {
	m := &Machine{
		interpreter: interpreter,
		synthesizer: synthesizer,
		auditor:     auditor,
		profiler:    digest.NewProfiler(digest.DefaultSampleRows),
		fileName:    "dataset",
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run processes rules[state.Cursor:] in order. On error the state is left as
// of the last committed rule and the error names the failing rule.
func (m *Machine) Run(ctx context.Context, state *State, rules []types.Rule) error {
	if state.Completed() {
		logging.PipelineDebug("run already completed, nothing to do")
		return nil
	}
	if err := state.CheckInvariants(len(rules)); err != nil {
		return fmt.Errorf("invalid pipeline state: %w", err)
	}

	timer := logging.StartTimer(logging.CategoryPipeline, "Run")
	defer timer.StopWithInfo()

	dg, err := m.profiler.Profile(ctx, state.Dataset, m.fileName)
	if err != nil {
		return fmt.Errorf("failed to profile dataset: %w", err)
	}

	logging.Pipeline("processing %d rules starting at %d (%d rows)", len(rules), state.Cursor, state.Dataset.Len())
	for state.Cursor < len(rules) {
		if err := ctx.Err(); err != nil {
			return err
		}
		rule := rules[state.Cursor]

		next, err := m.step(ctx, state, rule, dg)
		if err != nil {
			logging.PipelineError("halting at %s: %v", rule, err)
			logging.Audit().RunHalted(rule.Index, err)
			return fmt.Errorf("%s: %w", rule, err)
		}
		dg = next
	}

	entry := &CompletionEntry{Rows: state.Dataset.Len(), Note: NoteCompleted}
	state.History = append(state.History, entry)
	m.publish(ctx, Event{Entry: entry, Dataset: state.Dataset})
	logging.Pipeline("%s (%d rows)", NoteCompleted, state.Dataset.Len())
	logging.Audit().RunComplete(len(rules), timer.Elapsed().Milliseconds())
	return nil
}

// step applies one rule and advances the cursor. It returns the digest to
// use for the next rule.
func (m *Machine) step(ctx context.Context, state *State, rule types.Rule, dg *digest.Digest) (*digest.Digest, error) {
	intent, err := m.interpreter.Classify(ctx, rule)
	if err != nil {
		return nil, err
	}

	if !intent.RequiresExecution {
		logging.Pipeline("%s is informational, skipping: %s", rule, intent.Reason)
		logging.Audit().RuleSkipped(rule.Index, intent.Reason)
		entry := &RuleEntry{
			RuleIndex: state.Cursor,
			Rows:      state.Dataset.Len(),
			Note:      NoteSkipped,
			Skipped:   true,
		}
		state.History = append(state.History, entry)
		state.Cursor++
		m.publish(ctx, Event{Rule: &rule, Entry: entry, Dataset: state.Dataset})
		return dg, nil
	}

	outcome, err := m.synthesizer.Run(ctx, rule, dg, state.Dataset)
	if err != nil {
		return nil, err
	}
	after := outcome.Result.Frame

	change := diff.Compute(state.Dataset, after)
	entry := &RuleEntry{
		RuleIndex: state.Cursor,
		Rows:      after.Len(),
		Note:      NoteNoChanges,
		Issues:    outcome.Result.Issues,
		Attempts:  outcome.Attempts,
	}
	if change.HasChanges() {
		logging.PipelineDebug("%s changed data: %s", rule, change)
		verdict, err := m.auditor.Audit(ctx, change, rule)
		if err != nil {
			return nil, err
		}
		summary := change.Summary()
		entry.Diff = &summary
		entry.Audit = &verdict
		entry.Note = verdict.Summary
		if !verdict.Approve {
			logging.PipelineWarn("%s: auditor rejected the change: %s", rule, verdict.Summary)
		}
	}
	for _, issue := range entry.Issues {
		logging.Pipeline("%s issue: %s", rule, issue)
	}

	next, err := m.profiler.Profile(ctx, after, m.fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to profile dataset: %w", err)
	}

	state.Dataset = after
	state.History = append(state.History, entry)
	state.Cursor++
	m.publish(ctx, Event{Rule: &rule, Entry: entry, Dataset: after, Diff: &change, Source: outcome.Source})
	logging.Pipeline("%s committed after %d attempt(s): %s", rule, outcome.Attempts, entry.Note)
	var approved *bool
	if entry.Audit != nil {
		approved = &entry.Audit.Approve
	}
	logging.Audit().RuleCommitted(rule.Index, outcome.Attempts, change.RowDelta, change.ChangedCells, approved)
	return next, nil
}

func (m *Machine) publish(ctx context.Context, ev Event) {
	if m.sink == nil {
		return
	}
	if err := m.sink.Record(ctx, ev); err != nil {
		logging.PipelineWarn("sink failed: %v", err)
	}
}
