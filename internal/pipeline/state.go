package pipeline

import (
	"encoding/json"
	"fmt"

	"cleansynth/internal/diff"
	"cleansynth/internal/table"
	"cleansynth/internal/types"
)

// Notes written by the machine itself.
const (
	NoteSkipped   = "Informational rule - skipped execution"
	NoteNoChanges = "Validation rule executed with no data changes."
	NoteCompleted = "Pipeline completed. All rules processed."
)

// EntryKind discriminates history entries.
type EntryKind string

const (
	KindRule       EntryKind = "rule"
	KindCompletion EntryKind = "completion"
)

// HistoryEntry is either a *RuleEntry or a *CompletionEntry.
type HistoryEntry interface {
	Kind() EntryKind
	RowCount() int
	Text() string
	historyEntry()
}

// RuleEntry records the outcome of one rule. RuleIndex is the zero-based
// position of the rule in the run.
type RuleEntry struct {
	RuleIndex int                 `json:"rule_index"`
	Rows      int                 `json:"rows"`
	Note      string              `json:"note"`
	Skipped   bool                `json:"skipped,omitempty"`
	Diff      *diff.Summary       `json:"diff,omitempty"`
	Audit     *types.AuditVerdict `json:"audit,omitempty"`
	Issues    []string            `json:"issues,omitempty"`
	Attempts  int                 `json:"attempts,omitempty"`
}

func (e *RuleEntry) Kind() EntryKind { return KindRule }
func (e *RuleEntry) RowCount() int   { return e.Rows }
func (e *RuleEntry) Text() string    { return e.Note }
func (e *RuleEntry) historyEntry()   {}

// CompletionEntry terminates a finished run.
type CompletionEntry struct {
	Rows int    `json:"rows"`
	Note string `json:"note"`
}

func (e *CompletionEntry) Kind() EntryKind { return KindCompletion }
func (e *CompletionEntry) RowCount() int   { return e.Rows }
func (e *CompletionEntry) Text() string    { return e.Note }
func (e *CompletionEntry) historyEntry()   {}

// DecodeEntry decodes a JSON history entry. Entries with a rule_index are
// rule entries; the rest are completion entries.
func DecodeEntry(data []byte) (HistoryEntry, error) {
	var probe struct {
		RuleIndex *int `json:"rule_index"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("failed to decode history entry: %w", err)
	}
	if probe.RuleIndex == nil {
		var e CompletionEntry
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("failed to decode completion entry: %w", err)
		}
		return &e, nil
	}
	var e RuleEntry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to decode rule entry: %w", err)
	}
	return &e, nil
}

// State is the pipeline's committed dataset, rule cursor and history. Only
// the Machine mutates it, and only at rule boundaries.
type State struct {
	Dataset *table.Frame
	Cursor  int
	History []HistoryEntry
}

// NewState starts a run over df.
func NewState(df *table.Frame) *State {
	return &State{Dataset: df}
}

// Completed reports whether the terminal entry has been appended.
func (s *State) Completed() bool {
	if len(s.History) == 0 {
		return false
	}
	_, ok := s.History[len(s.History)-1].(*CompletionEntry)
	return ok
}

// RuleEntries returns the per-rule entries in order.
func (s *State) RuleEntries() []*RuleEntry {
	out := make([]*RuleEntry, 0, len(s.History))
	for _, e := range s.History {
		if re, ok := e.(*RuleEntry); ok {
			out = append(out, re)
		}
	}
	return out
}

// CheckInvariants verifies the state against a run of ruleCount rules.
func (s *State) CheckInvariants(ruleCount int) error {
	if s.Dataset == nil {
		return fmt.Errorf("state has no dataset")
	}
	if s.Cursor < 0 || s.Cursor > ruleCount {
		return fmt.Errorf("cursor %d out of range [0, %d]", s.Cursor, ruleCount)
	}

	want := s.Cursor
	if s.Completed() {
		if s.Cursor != ruleCount {
			return fmt.Errorf("completion entry before all %d rules ran (cursor %d)", ruleCount, s.Cursor)
		}
		want++
	}
	if len(s.History) != want {
		return fmt.Errorf("history has %d entries, want %d for cursor %d", len(s.History), want, s.Cursor)
	}

	for i, e := range s.History {
		switch entry := e.(type) {
		case *RuleEntry:
			if entry.RuleIndex != i {
				return fmt.Errorf("history entry %d has rule index %d", i, entry.RuleIndex)
			}
			if entry.Skipped && (entry.Diff != nil || entry.Audit != nil) {
				return fmt.Errorf("skipped rule %d carries a diff or audit", entry.RuleIndex)
			}
		case *CompletionEntry:
			if i != len(s.History)-1 {
				return fmt.Errorf("completion entry at position %d is not last", i)
			}
		default:
			return fmt.Errorf("unknown history entry %T at position %d", e, i)
		}
	}
	return nil
}
