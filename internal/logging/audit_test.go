package logging

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestAudit_RuleCommitted(t *testing.T) {
	logs := observe(t, zapcore.DebugLevel, nil)
	SetAuditRun("run-1")
	t.Cleanup(func() { SetAuditRun("") })

	approved := true
	Audit().RuleCommitted(2, 1, 0, 3, &approved)

	entries := logs.AllUntimed()
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, "audit", e.LoggerName)
	assert.Equal(t, zapcore.InfoLevel, e.Level)
	assert.Equal(t, "rule committed", e.Message)

	fields := e.ContextMap()
	assert.Equal(t, "rule_committed", fields["event"])
	assert.Equal(t, "run-1", fields["run"])
	assert.EqualValues(t, 2, fields["rule"])
	assert.EqualValues(t, 3, fields["changed_cells"])
	assert.Equal(t, true, fields["approved"])
}

func TestAudit_FailuresWarn(t *testing.T) {
	logs := observe(t, zapcore.DebugLevel, nil)
	a := AuditWithRun("run-2")

	rejected := false
	a.RuleCommitted(1, 2, -1, 0, &rejected)
	a.AttemptFailed(1, 1, "verifying", "verification", "code rejected by verifier: no check")
	a.SafetyBlock(1, 2, 1, "import of \"os\" is not allowed")
	a.RunHalted(1, errors.New("boom"))

	entries := logs.AllUntimed()
	require.Len(t, entries, 4)
	for _, e := range entries {
		assert.Equal(t, zapcore.WarnLevel, e.Level, e.Message)
	}
	assert.Equal(t, "verifying", entries[1].ContextMap()["stage"])
	assert.EqualValues(t, 2, entries[2].ContextMap()["attempt"])
	assert.Equal(t, "boom", entries[3].ContextMap()["error"])
}

func TestAudit_NoRunOrRuleFields(t *testing.T) {
	logs := observe(t, zapcore.DebugLevel, nil)

	AuditWithRun("").RunComplete(4, 1200)

	fields := logs.AllUntimed()[0].ContextMap()
	assert.NotContains(t, fields, "run")
	assert.NotContains(t, fields, "rule")
	assert.EqualValues(t, 1200, fields["dur_ms"])
}

func TestAudit_CategoryDisabled(t *testing.T) {
	logs := observe(t, zapcore.DebugLevel, map[string]bool{"audit": false})
	Audit().RuleSkipped(1, "informational")
	assert.Equal(t, 0, logs.Len())
}

func BenchmarkAuditLog(b *testing.B) {
	core, _ := observer.New(zapcore.InfoLevel)
	SetBase(zap.New(core), nil)
	defer SetBase(nil, nil)

	a := AuditWithRun("bench")
	approved := true
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		a.RuleCommitted(1, 1, 0, i, &approved)
	}
}
