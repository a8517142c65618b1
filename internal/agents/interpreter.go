package agents

import (
	"context"
	"errors"
	"fmt"

	"cleansynth/internal/llm"
	"cleansynth/internal/logging"
	"cleansynth/internal/types"
)

// ErrMissingRequiresExecution is returned when the interpreter's reply has no
// requires_execution field.
var ErrMissingRequiresExecution = errors.New("interpreter did not return requires_execution")

// Interpreter classifies rules as executable or informational.
type Interpreter struct {
	client llm.Client
}

// NewInterpreter creates an interpreter.
func NewInterpreter(client llm.Client) *Interpreter {
	return &Interpreter{client: client}
}

var _ types.Interpreter = (*Interpreter)(nil)

type intentResponse struct {
	RequiresExecution *bool  `json:"requires_execution"`
	Reason            string `json:"reason"`
}

// Classify asks whether rule needs executable logic.
func (in *Interpreter) Classify(ctx context.Context, rule types.Rule) (types.IntentVerdict, error) {
	var resp intentResponse
	if err := llm.AskJSON(ctx, in.client, "classify", interpreterSystemPrompt, "RULE (verbatim):\n"+rule.Text, &resp); err != nil {
		return types.IntentVerdict{}, fmt.Errorf("failed to classify %s: %w", rule, err)
	}
	if resp.RequiresExecution == nil {
		return types.IntentVerdict{}, fmt.Errorf("%s: %w", rule, ErrMissingRequiresExecution)
	}
	logging.PipelineDebug("%s requires_execution=%t: %s", rule, *resp.RequiresExecution, resp.Reason)
	return types.IntentVerdict{RequiresExecution: *resp.RequiresExecution, Reason: resp.Reason}, nil
}
