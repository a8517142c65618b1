package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"cleansynth/internal/logging"
	"cleansynth/internal/pipeline"
	"cleansynth/internal/types"
)

// Results is the results document consumed by the web front end.
type Results struct {
	Rules   []string                `json:"rules"`
	History []pipeline.HistoryEntry `json:"history"`
	Summary Summary                 `json:"summary"`
}

// Summary describes the run as a whole.
type Summary struct {
	TotalRules  int       `json:"total_rules"`
	ProcessedAt time.Time `json:"processed_at"`
}

// NewResults assembles the document.
func NewResults(rules []types.Rule, history []pipeline.HistoryEntry, processedAt time.Time) *Results {
	texts := make([]string, len(rules))
	for i, r := range rules {
		texts[i] = r.Text
	}
	if history == nil {
		history = []pipeline.HistoryEntry{}
	}
	return &Results{
		Rules:   texts,
		History: history,
		Summary: Summary{TotalRules: len(rules), ProcessedAt: processedAt},
	}
}

// UnmarshalJSON decodes history entries into their concrete types.
func (r *Results) UnmarshalJSON(data []byte) error {
	var raw struct {
		Rules   []string          `json:"rules"`
		History []json.RawMessage `json:"history"`
		Summary Summary           `json:"summary"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.Rules, r.Summary = raw.Rules, raw.Summary
	r.History = make([]pipeline.HistoryEntry, 0, len(raw.History))
	for _, msg := range raw.History {
		e, err := pipeline.DecodeEntry(msg)
		if err != nil {
			return err
		}
		r.History = append(r.History, e)
	}
	return nil
}

// WriteResults writes r as indented JSON.
func WriteResults(path string, r *Results) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create results directory: %w", err)
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write results: %w", err)
	}
	logging.Report("wrote %s (%d history entries)", path, len(r.History))
	return nil
}

// ReadResults loads a results document.
func ReadResults(path string) (*Results, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read results: %w", err)
	}
	var r Results
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to decode results: %w", err)
	}
	return &r, nil
}
