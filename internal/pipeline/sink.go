package pipeline

import (
	"context"
	"errors"

	"cleansynth/internal/diff"
	"cleansynth/internal/table"
	"cleansynth/internal/types"
)

// Event is published after every history append.
type Event struct {
	// Rule is nil for the completion entry.
	Rule    *types.Rule
	Entry   HistoryEntry
	Dataset *table.Frame
	// Diff and Source are set only for executed rules.
	Diff   *diff.ChangeDiff
	Source string
}

// Executed reports whether the event follows a committed transform.
func (e Event) Executed() bool {
	re, ok := e.Entry.(*RuleEntry)
	return ok && !re.Skipped
}

// Sink receives pipeline events. Failures are logged by the machine and
// never stop the run.
type Sink interface {
	Record(ctx context.Context, ev Event) error
}

// MultiSink fans an event out to every sink.
type MultiSink []Sink

// Record implements Sink.
func (m MultiSink) Record(ctx context.Context, ev Event) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Record(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
