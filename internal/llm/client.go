// Package llm is the text-generation backend shared by every collaborator.
//
// Providers implement Client. RetryingClient wraps any Client with pacing and
// exponential backoff for transient failures. AskJSON decodes strict-JSON
// replies and reports unparsable ones with the raw text attached.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Client is the minimal completion contract.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// ErrorKind classifies collaborator failures.
type ErrorKind int

const (
	// KindTerminal failures are not worth retrying (auth, bad request, blocked output).
	KindTerminal ErrorKind = iota
	// KindTransient failures are rate limits, server errors and network trouble.
	KindTransient
	// KindUnparsable means a structured reply could not be decoded.
	KindUnparsable
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindUnparsable:
		return "unparsable"
	default:
		return "terminal"
	}
}

// ErrUnparsable is matched by errors.Is for KindUnparsable errors.
var ErrUnparsable = errors.New("collaborator returned unparsable structured response")

// CollaboratorError is the single error type surfaced by this package.
type CollaboratorError struct {
	Kind       ErrorKind
	Op         string // provider or collaborator operation
	StatusCode int    // HTTP status when known
	Raw        string // raw reply text for KindUnparsable
	Err        error
}

func (e *CollaboratorError) Error() string {
	if e.Kind == KindUnparsable {
		if e.Err != nil {
			return fmt.Sprintf("%s: %s: %v", e.Op, ErrUnparsable, e.Err)
		}
		return fmt.Sprintf("%s: %s", e.Op, ErrUnparsable)
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s error (status %d): %v", e.Op, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s error: %v", e.Op, e.Kind, e.Err)
}

func (e *CollaboratorError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrUnparsable) work for unparsable replies.
func (e *CollaboratorError) Is(target error) bool {
	return target == ErrUnparsable && e.Kind == KindUnparsable
}

// IsTransient reports whether err is worth retrying after a backoff.
func IsTransient(err error) bool {
	var ce *CollaboratorError
	return errors.As(err, &ce) && ce.Kind == KindTransient
}

// IsUnparsable reports whether err is an unparsable structured reply.
func IsUnparsable(err error) bool {
	return errors.Is(err, ErrUnparsable)
}

// IsTerminal reports whether err is a collaborator failure that retrying
// cannot fix.
func IsTerminal(err error) bool {
	var ce *CollaboratorError
	return errors.As(err, &ce) && ce.Kind == KindTerminal
}

// RawResponse returns the raw reply attached to an unparsable error.
func RawResponse(err error) (string, bool) {
	var ce *CollaboratorError
	if errors.As(err, &ce) && ce.Kind == KindUnparsable {
		return ce.Raw, true
	}
	return "", false
}

// kindForStatus maps an HTTP status to a failure kind.
func kindForStatus(code int) ErrorKind {
	switch {
	case code == http.StatusTooManyRequests, code == http.StatusRequestTimeout, code >= 500:
		return KindTransient
	default:
		return KindTerminal
	}
}

// classifyTransport wraps errors that carry no status.
func classifyTransport(op string, err error) *CollaboratorError {
	kind := KindTransient
	if errors.Is(err, context.Canceled) {
		kind = KindTerminal
	}
	return &CollaboratorError{Kind: kind, Op: op, Err: err}
}
