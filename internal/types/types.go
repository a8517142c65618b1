// Package types holds the verdict shapes and collaborator contracts shared by
// the synthesis loop and the pipeline.
package types

import "fmt"

// Rule is one human-written instruction, kept verbatim.
type Rule struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

func (r Rule) String() string {
	return fmt.Sprintf("rule %d", r.Index)
}

// IntentVerdict says whether a rule needs executable logic.
type IntentVerdict struct {
	RequiresExecution bool   `json:"requires_execution"`
	Reason            string `json:"reason"`
}

// VerificationVerdict is the reviewer's judgement of a candidate transform.
type VerificationVerdict struct {
	Approved bool   `json:"approved"`
	Reason   string `json:"reason"`
}

// AuditVerdict is the reviewer's judgement of an applied change.
type AuditVerdict struct {
	Approve bool   `json:"approve"`
	Summary string `json:"summary"`
}
