package logging

import (
	"sync"

	"go.uber.org/zap"
)

// =============================================================================
// AUDIT EVENT TYPES
// =============================================================================

// AuditEventType names a lifecycle event in the audit trail.
type AuditEventType string

const (
	// Run lifecycle
	AuditRunStart    AuditEventType = "run_start"
	AuditRunComplete AuditEventType = "run_complete"
	AuditRunHalted   AuditEventType = "run_halted"

	// Rule outcomes
	AuditRuleSkipped   AuditEventType = "rule_skipped"
	AuditRuleCommitted AuditEventType = "rule_committed"

	// Synthesis attempts
	AuditAttemptFailed AuditEventType = "attempt_failed"
	AuditSafetyBlock   AuditEventType = "safety_block"
)

// AuditEvent is one structured audit record. Rule is one-based; zero means
// the event is not about a single rule.
type AuditEvent struct {
	EventType  AuditEventType
	Rule       int
	Attempt    int
	Success    bool
	DurationMs int64
	Error      string
	Message    string
	Fields     map[string]any
}

// =============================================================================
// AUDIT LOGGER
// =============================================================================

var (
	auditMu    sync.RWMutex
	auditRunID string
)

// AuditLogger writes audit events to the audit category, correlated by run id.
type AuditLogger struct {
	runID string
}

// SetAuditRun sets the run id attached by Audit().
func SetAuditRun(runID string) {
	auditMu.Lock()
	defer auditMu.Unlock()
	auditRunID = runID
}

// Audit returns an audit logger for the current run.
func Audit() *AuditLogger {
	auditMu.RLock()
	defer auditMu.RUnlock()
	return &AuditLogger{runID: auditRunID}
}

// AuditWithRun returns an audit logger scoped to runID.
func AuditWithRun(runID string) *AuditLogger {
	return &AuditLogger{runID: runID}
}

// Log writes an audit event. Failed events are logged at warn level.
func (a *AuditLogger) Log(event AuditEvent) {
	kv := []any{zap.String("event", string(event.EventType)), zap.Bool("success", event.Success)}
	if a.runID != "" {
		kv = append(kv, zap.String("run", a.runID))
	}
	if event.Rule > 0 {
		kv = append(kv, zap.Int("rule", event.Rule))
	}
	if event.Attempt > 0 {
		kv = append(kv, zap.Int("attempt", event.Attempt))
	}
	if event.DurationMs > 0 {
		kv = append(kv, zap.Int64("dur_ms", event.DurationMs))
	}
	if event.Error != "" {
		kv = append(kv, zap.String("error", event.Error))
	}
	for k, v := range event.Fields {
		kv = append(kv, zap.Any(k, v))
	}

	msg := event.Message
	if msg == "" {
		msg = string(event.EventType)
	}
	sugar := Get(CategoryAudit).sugar
	if event.Success {
		sugar.Infow(msg, kv...)
	} else {
		sugar.Warnw(msg, kv...)
	}
}

// =============================================================================
// CONVENIENCE METHODS
// =============================================================================

// RunStart records the start of a run.
func (a *AuditLogger) RunStart(dataset string, rules int) {
	a.Log(AuditEvent{
		EventType: AuditRunStart,
		Success:   true,
		Message:   "run started",
		Fields:    map[string]any{"dataset": dataset, "rules": rules},
	})
}

// RunComplete records a run that processed every rule.
func (a *AuditLogger) RunComplete(rules int, durationMs int64) {
	a.Log(AuditEvent{
		EventType:  AuditRunComplete,
		Success:    true,
		DurationMs: durationMs,
		Message:    "run completed",
		Fields:     map[string]any{"rules": rules},
	})
}

// RunHalted records a run that stopped at rule.
func (a *AuditLogger) RunHalted(rule int, err error) {
	a.Log(AuditEvent{
		EventType: AuditRunHalted,
		Rule:      rule,
		Error:     err.Error(),
		Message:   "run halted",
	})
}

// RuleSkipped records an informational rule.
func (a *AuditLogger) RuleSkipped(rule int, reason string) {
	a.Log(AuditEvent{
		EventType: AuditRuleSkipped,
		Rule:      rule,
		Success:   true,
		Message:   "rule skipped",
		Fields:    map[string]any{"reason": reason},
	})
}

// RuleCommitted records a committed rule. approved is nil when the change
// was empty and no audit was requested.
func (a *AuditLogger) RuleCommitted(rule, attempts, rowDelta, changedCells int, approved *bool) {
	fields := map[string]any{"attempts": attempts, "row_delta": rowDelta, "changed_cells": changedCells}
	if approved != nil {
		fields["approved"] = *approved
	}
	a.Log(AuditEvent{
		EventType: AuditRuleCommitted,
		Rule:      rule,
		Success:   approved == nil || *approved,
		Message:   "rule committed",
		Fields:    fields,
	})
}

// AttemptFailed records an attempt-local synthesis failure.
func (a *AuditLogger) AttemptFailed(rule, attempt int, stage, kind, reason string) {
	a.Log(AuditEvent{
		EventType: AuditAttemptFailed,
		Rule:      rule,
		Attempt:   attempt,
		Error:     reason,
		Message:   "attempt failed",
		Fields:    map[string]any{"stage": stage, "kind": kind},
	})
}

// SafetyBlock records a candidate rejected by static validation.
func (a *AuditLogger) SafetyBlock(rule, attempt, violations int, reason string) {
	a.Log(AuditEvent{
		EventType: AuditSafetyBlock,
		Rule:      rule,
		Attempt:   attempt,
		Error:     reason,
		Message:   "candidate blocked",
		Fields:    map[string]any{"violations": violations},
	})
}
