package types

import (
	"context"

	"cleansynth/internal/diff"
	"cleansynth/internal/digest"
)

// Segmenter splits a rules document into ordered rules.
type Segmenter interface {
	Segment(ctx context.Context, document string) ([]Rule, error)
}

// Interpreter decides whether a rule requires execution.
type Interpreter interface {
	Classify(ctx context.Context, rule Rule) (IntentVerdict, error)
}

// Generator produces candidate transform source for a rule. feedback is the
// previous attempt's failure reason, empty on the first attempt.
type Generator interface {
	Synthesize(ctx context.Context, rule Rule, dg *digest.Digest, feedback string) (string, error)
}

// Verifier reviews candidate source against the rule before execution.
type Verifier interface {
	Verify(ctx context.Context, source string, rule Rule) (VerificationVerdict, error)
}

// Auditor reviews an applied change.
type Auditor interface {
	Audit(ctx context.Context, d diff.ChangeDiff, rule Rule) (AuditVerdict, error)
}
