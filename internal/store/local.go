// Package store keeps a SQLite ledger of pipeline runs: one row per run,
// every committed history entry, and every synthesis attempt.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"cleansynth/internal/logging"
	"cleansynth/internal/pipeline"
	"cleansynth/internal/synthesis"
)

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
)

var (
	ErrRunNotFound  = errors.New("run not found")
	ErrAmbiguousRun = errors.New("run id prefix is ambiguous")
)

// RunInfo describes the inputs of a run.
type RunInfo struct {
	Dataset   string
	RulesPath string
	Model     string
	RuleCount int
}

// Run is a ledger row.
type Run struct {
	ID string
	RunInfo
	Status     RunStatus
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time // zero while running
}

// Attempt is one recorded synthesis attempt.
type Attempt struct {
	RuleIndex    int
	Attempt      int
	Stage        string
	Kind         string
	Reason       string
	Source       string
	LinesAdded   int
	LinesRemoved int
	Delta        string
	Duration     time.Duration
}

// Ledger is the SQLite-backed run store.
type Ledger struct {
	db     *sql.DB
	mu     sync.Mutex
	dbPath string
}

// Open opens (creating if needed) the ledger database at path.
func Open(path string) (*Ledger, error) {
	timer := logging.StartTimer(logging.CategoryStore, "Open")
	defer timer.Stop()

	logging.Store("Opening run ledger at %s", path)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		logging.StoreError("Failed to create directory %s: %v", dir, err)
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		logging.StoreError("Failed to open database at %s: %v", path, err)
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			logging.StoreDebug("%s failed: %v", pragma, err)
		}
	}

	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Ledger{db: db, dbPath: path}, nil
}

// Path returns the database file path.
func (l *Ledger) Path() string { return l.dbPath }

// Close closes the database.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.db == nil {
		return nil
	}
	err := l.db.Close()
	l.db = nil
	return err
}

// StartRun inserts a running row and returns a recorder bound to it.
func (l *Ledger) StartRun(ctx context.Context, info RunInfo) (*RunRecorder, error) {
	id := uuid.NewString()
	l.mu.Lock()
	defer l.mu.Unlock()

	_, err := l.db.ExecContext(ctx,
		`INSERT INTO runs (id, dataset, rules_path, model, rule_count, status, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, info.Dataset, info.RulesPath, info.Model, info.RuleCount, StatusRunning, formatTime(nowUTC()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start run: %w", err)
	}
	logging.Store("Started run %s (%d rules)", id, info.RuleCount)
	return &RunRecorder{ledger: l, id: id}, nil
}

func (l *Ledger) finishRun(ctx context.Context, id string, runErr error) error {
	status, msg := StatusCompleted, ""
	if runErr != nil {
		status, msg = StatusFailed, runErr.Error()
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	res, err := l.db.ExecContext(ctx,
		"UPDATE runs SET status = ?, error = ?, finished_at = ? WHERE id = ?",
		status, msg, formatTime(nowUTC()), id,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	logging.Store("Run %s %s", id, status)
	return nil
}

const runColumns = "id, dataset, rules_path, model, rule_count, status, error, started_at, finished_at"

// ListRuns returns the most recent runs first. limit <= 0 returns all.
func (l *Ledger) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := "SELECT " + runColumns + " FROM runs ORDER BY started_at DESC, rowid DESC"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRun resolves a full run id or a unique prefix of one.
func (l *Ledger) GetRun(ctx context.Context, idOrPrefix string) (*Run, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rows, err := l.db.QueryContext(ctx,
		"SELECT "+runColumns+" FROM runs WHERE id = ? OR id LIKE ? LIMIT 2",
		idOrPrefix, idOrPrefix+"%",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load run: %w", err)
	}
	defer rows.Close()

	var found []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		if r.ID == idOrPrefix {
			return &r, nil
		}
		found = append(found, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	switch len(found) {
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, idOrPrefix)
	case 1:
		return &found[0], nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrAmbiguousRun, idOrPrefix)
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(s rowScanner) (Run, error) {
	var r Run
	var status, started, finished string
	if err := s.Scan(&r.ID, &r.Dataset, &r.RulesPath, &r.Model, &r.RuleCount,
		&status, &r.Error, &started, &finished); err != nil {
		return Run{}, fmt.Errorf("failed to scan run: %w", err)
	}
	r.Status = RunStatus(status)
	r.StartedAt = parseTime(started)
	r.FinishedAt = parseTime(finished)
	return r, nil
}

// LoadHistory returns the history entries recorded for a run, in order.
func (l *Ledger) LoadHistory(ctx context.Context, runID string) ([]pipeline.HistoryEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rows, err := l.db.QueryContext(ctx,
		"SELECT payload FROM history WHERE run_id = ? ORDER BY position", runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	defer rows.Close()

	var history []pipeline.HistoryEntry
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		e, err := pipeline.DecodeEntry([]byte(payload))
		if err != nil {
			return nil, err
		}
		history = append(history, e)
	}
	return history, rows.Err()
}

// LoadSources returns the committed transform source per rule index.
func (l *Ledger) LoadSources(ctx context.Context, runID string) (map[int]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rows, err := l.db.QueryContext(ctx,
		"SELECT rule_index, source FROM history WHERE run_id = ? AND source != '' ORDER BY position", runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load sources: %w", err)
	}
	defer rows.Close()

	out := make(map[int]string)
	for rows.Next() {
		var idx int
		var src string
		if err := rows.Scan(&idx, &src); err != nil {
			return nil, fmt.Errorf("failed to scan source: %w", err)
		}
		out[idx] = src
	}
	return out, rows.Err()
}

// LoadAttempts returns every attempt recorded for a run.
func (l *Ledger) LoadAttempts(ctx context.Context, runID string) ([]Attempt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rows, err := l.db.QueryContext(ctx,
		`SELECT rule_index, attempt, stage, kind, reason, source, lines_added, lines_removed, delta, duration_ms
		 FROM attempts WHERE run_id = ? ORDER BY rule_index, attempt, id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load attempts: %w", err)
	}
	defer rows.Close()

	var out []Attempt
	for rows.Next() {
		var a Attempt
		var ms int64
		if err := rows.Scan(&a.RuleIndex, &a.Attempt, &a.Stage, &a.Kind, &a.Reason, &a.Source,
			&a.LinesAdded, &a.LinesRemoved, &a.Delta, &ms); err != nil {
			return nil, fmt.Errorf("failed to scan attempt: %w", err)
		}
		a.Duration = time.Duration(ms) * time.Millisecond
		out = append(out, a)
	}
	return out, rows.Err()
}

// RunRecorder writes the events of one run. It is a pipeline.Sink and a
// synthesis.AttemptRecorder.
type RunRecorder struct {
	ledger *Ledger
	id     string
}

var (
	_ pipeline.Sink             = (*RunRecorder)(nil)
	_ synthesis.AttemptRecorder = (*RunRecorder)(nil)
)

// ID returns the run id.
func (r *RunRecorder) ID() string { return r.id }

// Record appends a history entry.
func (r *RunRecorder) Record(ctx context.Context, ev pipeline.Event) error {
	payload, err := json.Marshal(ev.Entry)
	if err != nil {
		return fmt.Errorf("failed to encode history entry: %w", err)
	}
	var ruleIndex sql.NullInt64
	if re, ok := ev.Entry.(*pipeline.RuleEntry); ok {
		ruleIndex = sql.NullInt64{Int64: int64(re.RuleIndex), Valid: true}
	}

	l := r.ledger
	l.mu.Lock()
	defer l.mu.Unlock()
	_, err = l.db.ExecContext(ctx,
		`INSERT INTO history (run_id, position, kind, rule_index, row_count, note, payload, source)
		 VALUES (?, (SELECT COUNT(*) FROM history WHERE run_id = ?), ?, ?, ?, ?, ?, ?)`,
		r.id, r.id, string(ev.Entry.Kind()), ruleIndex, ev.Entry.RowCount(), ev.Entry.Text(), string(payload), ev.Source,
	)
	if err != nil {
		return fmt.Errorf("failed to record history entry: %w", err)
	}
	logging.StoreDebug("Run %s: recorded %s entry", r.id, ev.Entry.Kind())
	return nil
}

// RecordAttempt appends a synthesis attempt.
func (r *RunRecorder) RecordAttempt(ctx context.Context, rec synthesis.AttemptRecord) error {
	l := r.ledger
	l.mu.Lock()
	defer l.mu.Unlock()
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO attempts (run_id, rule_index, attempt, stage, kind, reason, source,
		 lines_added, lines_removed, delta, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.id, rec.Rule.Index-1, rec.Attempt, rec.Stage.String(), string(rec.Kind), rec.Reason, rec.Source,
		rec.Delta.Added, rec.Delta.Removed, rec.Delta.Text, rec.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to record attempt: %w", err)
	}
	return nil
}

// Finish marks the run completed, or failed when runErr is non-nil.
func (r *RunRecorder) Finish(ctx context.Context, runErr error) error {
	return r.ledger.finishRun(ctx, r.id, runErr)
}

var nowUTC = func() time.Time { return time.Now().UTC() }

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		logging.StoreDebug("Unparsable timestamp %q: %v", s, err)
		return time.Time{}
	}
	return t
}
