package agents

import (
	"context"
	"fmt"
	"strings"

	"cleansynth/internal/digest"
	"cleansynth/internal/llm"
	"cleansynth/internal/logging"
	"cleansynth/internal/sandbox"
	"cleansynth/internal/types"
)

// Generator asks the model for transform source.
type Generator struct {
	client       llm.Client
	systemPrompt string
}

// NewGenerator creates a generator for transforms with the given entry point.
func NewGenerator(client llm.Client, entryPoint string) *Generator {
	if entryPoint == "" {
		entryPoint = sandbox.DefaultEntryPoint
	}
	bindings := strings.Join(append([]string{"table"}, sandbox.Bindings()[1:]...), ", ")
	return &Generator{
		client:       client,
		systemPrompt: fmt.Sprintf(generatorSystemPrompt, bindings, entryPoint),
	}
}

var _ types.Generator = (*Generator)(nil)

// Synthesize returns candidate source with markdown fences removed.
func (g *Generator) Synthesize(ctx context.Context, rule types.Rule, dg *digest.Digest, feedback string) (string, error) {
	digestYAML := ""
	if dg != nil {
		y, err := dg.YAML()
		if err != nil {
			return "", fmt.Errorf("failed to render digest: %w", err)
		}
		digestYAML = y
	}

	raw, err := g.client.CompleteWithSystem(ctx, g.systemPrompt, buildGeneratorPrompt(rule.Text, digestYAML, feedback))
	if err != nil {
		return "", fmt.Errorf("failed to generate transform for %s: %w", rule, err)
	}
	code := llm.ExtractCode(raw)
	logging.SynthesisDebug("%s: generated %d bytes of source", rule, len(code))
	return code, nil
}
