// Package report persists what a run did: a dataset snapshot after every
// executed rule, a plain-text log per history entry, the results document,
// and a console summary.
package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"cleansynth/internal/logging"
	"cleansynth/internal/pipeline"
	"cleansynth/internal/table"
)

// Directory names under the output root.
const (
	StepDir = "step_csv"
	LogDir  = "logs"
)

const timestampLayout = "20060102_150405"

// Writer is a pipeline.Sink writing step snapshots and entry logs.
type Writer struct {
	dir      string
	stepCSV  bool
	ruleLogs bool
	now      func() time.Time

	mu       sync.Mutex
	lastRule int
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithClock overrides time.Now for file timestamps.
func WithClock(now func() time.Time) WriterOption {
	return func(w *Writer) { w.now = now }
}

// NewWriter creates a writer rooted at dir.
func NewWriter(dir string, stepCSV, ruleLogs bool, opts ...WriterOption) *Writer {
	w := &Writer{dir: dir, stepCSV: stepCSV, ruleLogs: ruleLogs, now: time.Now, lastRule: -1}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

var _ pipeline.Sink = (*Writer)(nil)

// Record implements pipeline.Sink.
func (w *Writer) Record(ctx context.Context, ev pipeline.Event) error {
	n := w.entryNumber(ev.Entry)
	ts := w.now().Format(timestampLayout)

	g, _ := errgroup.WithContext(ctx)
	if w.stepCSV && ev.Executed() {
		path := filepath.Join(w.dir, StepDir, fmt.Sprintf("output_after_rule_%d_%s.csv", n, ts))
		g.Go(func() error {
			return writeStep(path, ev.Dataset)
		})
	}
	if w.ruleLogs {
		path := filepath.Join(w.dir, LogDir, fmt.Sprintf("rule_%d_%s.txt", n, ts))
		g.Go(func() error {
			return writeEntryLog(path, n, ev.Entry)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	logging.ReportDebug("recorded entry %d (%s)", n, ev.Entry.Kind())
	return nil
}

// entryNumber is the one-based number used in file names. The completion
// entry takes the number after the last rule.
func (w *Writer) entryNumber(e pipeline.HistoryEntry) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	if re, ok := e.(*pipeline.RuleEntry); ok {
		w.lastRule = re.RuleIndex
		return re.RuleIndex + 1
	}
	return w.lastRule + 2
}

func writeStep(path string, f *table.Frame) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create step directory: %w", err)
	}
	if err := table.WriteCSVFile(path, f); err != nil {
		return fmt.Errorf("failed to write step snapshot: %w", err)
	}
	return nil
}

func writeEntryLog(path string, n int, e pipeline.HistoryEntry) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(FormatEntryLog(n, e)), 0644); err != nil {
		return fmt.Errorf("failed to write entry log: %w", err)
	}
	return nil
}

// FormatEntryLog renders the plain-text log for one history entry.
func FormatEntryLog(n int, e pipeline.HistoryEntry) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Rule Index: %d\n", n)
	fmt.Fprintf(&sb, "Rows: %d\n", e.RowCount())
	fmt.Fprintf(&sb, "Note: %s\n\n", e.Text())

	re, ok := e.(*pipeline.RuleEntry)
	if !ok {
		return sb.String()
	}
	if re.Diff != nil {
		sb.WriteString("Diff:\n")
		fmt.Fprintf(&sb, "  row_delta: %d\n", re.Diff.RowDelta)
		fmt.Fprintf(&sb, "  changed_cells: %d\n", re.Diff.ChangedCells)
	}
	if re.Audit != nil {
		sb.WriteString("\nAudit:\n")
		fmt.Fprintf(&sb, "  approve: %t\n", re.Audit.Approve)
		fmt.Fprintf(&sb, "  summary: %s\n", re.Audit.Summary)
	}
	if len(re.Issues) > 0 {
		sb.WriteString("\nIssues:\n")
		for _, issue := range re.Issues {
			fmt.Fprintf(&sb, "  - %s\n", issue)
		}
	}
	return sb.String()
}
