// Package agents shapes requests to the language model for each collaborator
// role and decodes their replies into verdict types.
package agents

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"cleansynth/internal/llm"
	"cleansynth/internal/logging"
	"cleansynth/internal/types"
)

// Split modes.
const (
	SplitLLM       = "llm"
	SplitParagraph = "paragraph"
)

// Segmenter splits a rules document into ordered rule blocks.
type Segmenter struct {
	client llm.Client
	mode   string
}

// NewSegmenter creates a segmenter. A nil client forces paragraph mode.
func NewSegmenter(client llm.Client, mode string) *Segmenter {
	if client == nil || mode != SplitLLM {
		mode = SplitParagraph
	}
	return &Segmenter{client: client, mode: mode}
}

var _ types.Segmenter = (*Segmenter)(nil)

type splitResponse struct {
	Rules []string `json:"rules"`
}

// Segment returns the rules of document in order. Concatenating the rule
// texts reproduces the document up to whitespace, and no rule is empty.
// Replies that fail that check fall back to the blank-line split.
func (s *Segmenter) Segment(ctx context.Context, document string) ([]types.Rule, error) {
	if strings.TrimSpace(document) == "" {
		return nil, nil
	}
	if s.mode == SplitParagraph {
		return toRules(SplitParagraphs(document)), nil
	}

	var resp splitResponse
	if err := llm.AskJSON(ctx, s.client, "segment", splitterSystemPrompt, "DOCUMENT:\n"+document, &resp); err != nil {
		if llm.IsUnparsable(err) {
			logging.PipelineWarn("rule splitter reply unparsable, using paragraph split: %v", err)
			return toRules(SplitParagraphs(document)), nil
		}
		return nil, fmt.Errorf("failed to split rules: %w", err)
	}

	if err := CheckSegments(document, resp.Rules); err != nil {
		logging.PipelineWarn("rule splitter reply rejected, using paragraph split: %v", err)
		return toRules(SplitParagraphs(document)), nil
	}
	logging.Pipeline("split rules document into %d rules", len(resp.Rules))
	return toRules(resp.Rules), nil
}

// SplitParagraphs splits text on blank lines and trims each block.
func SplitParagraphs(text string) []string {
	var (
		blocks  []string
		current []string
	)
	flush := func() {
		if block := strings.TrimSpace(strings.Join(current, "\n")); block != "" {
			blocks = append(blocks, block)
		}
		current = current[:0]
	}
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		current = append(current, line)
	}
	flush()
	return blocks
}

// CheckSegments reports whether blocks reconstruct document up to whitespace
// with no empty block.
func CheckSegments(document string, blocks []string) error {
	if len(blocks) == 0 {
		return fmt.Errorf("no rule blocks returned")
	}
	var joined strings.Builder
	for i, b := range blocks {
		if strings.TrimSpace(b) == "" {
			return fmt.Errorf("rule block %d is empty", i+1)
		}
		joined.WriteString(stripSpace(b))
	}
	if joined.String() != stripSpace(document) {
		return fmt.Errorf("rule blocks do not reproduce the document")
	}
	return nil
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

func toRules(blocks []string) []types.Rule {
	rules := make([]types.Rule, 0, len(blocks))
	for i, b := range blocks {
		rules = append(rules, types.Rule{Index: i + 1, Text: strings.TrimSpace(b)})
	}
	return rules
}
