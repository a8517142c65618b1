package agents

import (
	"context"
	"encoding/json"
	"fmt"

	"cleansynth/internal/diff"
	"cleansynth/internal/llm"
	"cleansynth/internal/types"
)

// Verifier reviews candidate source before it runs.
type Verifier struct {
	client llm.Client
}

// NewVerifier creates a verifier.
func NewVerifier(client llm.Client) *Verifier {
	return &Verifier{client: client}
}

var _ types.Verifier = (*Verifier)(nil)

// Verify asks whether source implements rule.
func (v *Verifier) Verify(ctx context.Context, source string, rule types.Rule) (types.VerificationVerdict, error) {
	var verdict types.VerificationVerdict
	if err := llm.AskJSON(ctx, v.client, "verify", verifierSystemPrompt, buildVerifierPrompt(rule.Text, source), &verdict); err != nil {
		return types.VerificationVerdict{}, fmt.Errorf("failed to verify %s: %w", rule, err)
	}
	return verdict, nil
}

// Auditor reviews applied changes.
type Auditor struct {
	client llm.Client
}

// NewAuditor creates an auditor.
func NewAuditor(client llm.Client) *Auditor {
	return &Auditor{client: client}
}

var _ types.Auditor = (*Auditor)(nil)

// Audit asks for a judgement of d as an application of rule.
func (a *Auditor) Audit(ctx context.Context, d diff.ChangeDiff, rule types.Rule) (types.AuditVerdict, error) {
	body, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return types.AuditVerdict{}, fmt.Errorf("failed to encode diff: %w", err)
	}
	var verdict types.AuditVerdict
	if err := llm.AskJSON(ctx, a.client, "audit", auditorSystemPrompt, buildAuditorPrompt(rule.Text, string(body)), &verdict); err != nil {
		return types.AuditVerdict{}, fmt.Errorf("failed to audit %s: %w", rule, err)
	}
	return verdict, nil
}
