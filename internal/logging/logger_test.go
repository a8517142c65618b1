package logging

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observe(t *testing.T, level zapcore.Level, enabled map[string]bool) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(level)
	SetBase(zap.New(core), enabled)
	t.Cleanup(func() { SetBase(nil, nil) })
	return logs
}

func TestCategoryLoggersAreNamed(t *testing.T) {
	logs := observe(t, zapcore.DebugLevel, nil)

	Pipeline("rule %d committed", 3)
	SynthesisWarn("attempt %d failed", 1)
	StoreDebug("ledger open")

	entries := logs.AllUntimed()
	require.Len(t, entries, 3)
	assert.Equal(t, "pipeline", entries[0].LoggerName)
	assert.Equal(t, "rule 3 committed", entries[0].Message)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, "synthesis", entries[1].LoggerName)
	assert.Equal(t, "store", entries[2].LoggerName)
}

func TestDisabledCategoryIsSilent(t *testing.T) {
	logs := observe(t, zapcore.DebugLevel, map[string]bool{"llm": false, "pipeline": true})

	LLM("should not appear")
	Pipeline("should appear")

	entries := logs.AllUntimed()
	require.Len(t, entries, 1)
	assert.Equal(t, "should appear", entries[0].Message)
	assert.False(t, IsCategoryEnabled(CategoryLLM))
	assert.True(t, IsCategoryEnabled(CategoryDigest), "unlisted categories stay enabled")
}

func TestLevelFiltering(t *testing.T) {
	logs := observe(t, zapcore.InfoLevel, nil)

	PipelineDebug("hidden")
	Pipeline("shown")

	assert.Equal(t, 1, logs.Len())
}

func TestWithAddsFields(t *testing.T) {
	logs := observe(t, zapcore.DebugLevel, nil)

	Get(CategorySandbox).With("rule", 2).Warn("panic recovered")

	entries := logs.AllUntimed()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(2), entries[0].ContextMap()["rule"])
}

func TestTimerThreshold(t *testing.T) {
	logs := observe(t, zapcore.DebugLevel, nil)

	timer := StartTimer(CategoryDigest, "profile")
	time.Sleep(2 * time.Millisecond)
	elapsed := timer.StopWithThreshold(time.Nanosecond)

	assert.Greater(t, elapsed, time.Duration(0))
	entries := logs.FilterLevelExact(zapcore.WarnLevel).AllUntimed()
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Message, "profile took")
}

func TestInitializeWritesFile(t *testing.T) {
	t.Cleanup(func() { SetBase(nil, nil) })
	path := filepath.Join(t.TempDir(), "logs", "cleansynth.log")

	logger, err := Initialize(Config{Level: "debug", Format: "json", File: path})
	require.NoError(t, err)
	Pipeline("hello file")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello file")
	assert.Contains(t, string(data), `"logger":"pipeline"`)
}

func TestInitializeRejectsBadLevel(t *testing.T) {
	_, err := Initialize(Config{Level: "chatty"})
	assert.Error(t, err)
}
