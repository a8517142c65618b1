package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"cleansynth/internal/config"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

func noSleep(r *RetryingClient) *RetryingClient {
	r.sleep = func(context.Context, time.Duration) error { return nil }
	r.jitter = func() time.Duration { return 0 }
	return r
}

func TestRetryingClient_RetriesTransient(t *testing.T) {
	failures := 2
	mock := &MockClient{CompleteWithSystemFunc: func(ctx context.Context, sys, user string) (string, error) {
		if failures > 0 {
			failures--
			return "", &CollaboratorError{Kind: KindTransient, Op: "test", StatusCode: 429, Err: errors.New("slow down")}
		}
		return "ok", nil
	}}
	var waits []time.Duration
	r := noSleep(NewRetryingClient(mock, RetryConfig{MaxRetries: 7, BaseBackoff: time.Second}))
	r.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}

	out, err := r.CompleteWithSystem(context.Background(), "sys", "user")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 3, mock.Calls())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, waits)
}

func TestRetryingClient_TerminalNotRetried(t *testing.T) {
	mock := &MockClient{CompleteWithSystemFunc: func(ctx context.Context, sys, user string) (string, error) {
		return "", &CollaboratorError{Kind: KindTerminal, Op: "test", StatusCode: 401, Err: errors.New("bad key")}
	}}
	r := noSleep(NewRetryingClient(mock, RetryConfig{MaxRetries: 7}))

	_, err := r.Complete(context.Background(), "hi")
	require.Error(t, err)
	assert.True(t, IsTerminal(err))
	assert.Equal(t, 1, mock.Calls())
}

func TestRetryingClient_GivesUp(t *testing.T) {
	mock := &MockClient{CompleteWithSystemFunc: func(ctx context.Context, sys, user string) (string, error) {
		return "", &CollaboratorError{Kind: KindTransient, Op: "test", Err: errors.New("503")}
	}}
	r := noSleep(NewRetryingClient(mock, RetryConfig{MaxRetries: 3}))

	_, err := r.Complete(context.Background(), "hi")
	assert.True(t, IsTransient(err))
	assert.Equal(t, 4, mock.Calls())
}

func TestRetryingClient_Backoff(t *testing.T) {
	r := NewRetryingClient(&MockClient{}, RetryConfig{BaseBackoff: 500 * time.Millisecond})
	assert.Equal(t, 500*time.Millisecond, r.Backoff(0))
	assert.Equal(t, 4*time.Second, r.Backoff(3))
}

func TestRetryingClient_CancelledWhileWaiting(t *testing.T) {
	mock := &MockClient{CompleteWithSystemFunc: func(ctx context.Context, sys, user string) (string, error) {
		return "", &CollaboratorError{Kind: KindTransient, Op: "test", Err: errors.New("busy")}
	}}
	r := NewRetryingClient(mock, RetryConfig{MaxRetries: 2, BaseBackoff: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	r.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return sleepContext(ctx, d)
	}

	_, err := r.Complete(ctx, "hi")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 1, mock.Calls())
}

func TestKindForStatus(t *testing.T) {
	assert.Equal(t, KindTransient, kindForStatus(429))
	assert.Equal(t, KindTransient, kindForStatus(503))
	assert.Equal(t, KindTransient, kindForStatus(408))
	assert.Equal(t, KindTerminal, kindForStatus(400))
	assert.Equal(t, KindTerminal, kindForStatus(403))
}

func TestAskJSON(t *testing.T) {
	tests := []struct {
		name    string
		reply   string
		wantErr bool
		want    bool
	}{
		{"plain", `{"approved": true}`, false, true},
		{"fenced", "```json\n{\"approved\": true}\n```", false, true},
		{"prose around", "Sure! {\"approved\": false} hope that helps", false, false},
		{"no object", "I cannot answer that", true, false},
		{"broken", `{"approved": tru}`, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &MockClient{CompleteWithSystemFunc: func(ctx context.Context, sys, user string) (string, error) {
				return tt.reply, nil
			}}
			var out struct {
				Approved bool `json:"approved"`
			}
			err := AskJSON(context.Background(), mock, "verify", "sys", "user", &out)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, IsUnparsable(err))
				assert.True(t, errors.Is(err, ErrUnparsable))
				raw, ok := RawResponse(err)
				assert.True(t, ok)
				assert.Equal(t, tt.reply, raw)
				assert.Contains(t, err.Error(), "collaborator returned unparsable structured response")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.Approved)
		})
	}
}

func TestExtractCode(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"go fence", "Here:\n```go\nfunc ApplyRule() {}\n```\nDone", "func ApplyRule() {}"},
		{"bare fence", "```\nx := 1\n```", "x := 1"},
		{"unterminated", "```go\nfunc f() {}\n", "func f() {}"},
		{"no fence", "  func f() {}  ", "func f() {}"},
		{"capitalised tag", "```Go\nfunc f() {}\n```", "func f() {}"},
		{"other tag", "```text\nfunc f() {}\n```", "func f() {}"},
		{"code on fence line", "```go func f() {}\n```", "func f() {}"},
		{"tag with trailing space", "Sure:\n```go \nfunc f() {}\n```\n", "func f() {}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractCode(tt.in))
		})
	}
}

func TestCollaboratorError_Message(t *testing.T) {
	err := &CollaboratorError{Kind: KindTransient, Op: "openai", StatusCode: 503, Err: errors.New("unavailable")}
	assert.Equal(t, "openai: transient error (status 503): unavailable", err.Error())
	assert.False(t, IsUnparsable(err))
	_, ok := RawResponse(err)
	assert.False(t, ok)
}

func TestNewFromConfig_RequiresCredentials(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.LLM.Provider = "openai"
	cfg.LLM.APIKey = ""
	_, err := NewFromConfig(context.Background(), cfg)
	assert.Error(t, err)

	cfg.LLM.APIKey = "sk-test"
	client, err := NewFromConfig(context.Background(), cfg)
	require.NoError(t, err)
	_, ok := client.(*RetryingClient)
	assert.True(t, ok)
}
