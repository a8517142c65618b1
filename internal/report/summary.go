package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"cleansynth/internal/pipeline"
	"cleansynth/internal/types"
)

var (
	colorSuccess = lipgloss.Color("#8BC34A")
	colorDanger  = lipgloss.Color("#e53935")
	colorMuted   = lipgloss.Color("#6b7280")
	colorTitle   = lipgloss.Color("#2196F3")
)

// Styles used by the console summary.
type Styles struct {
	Title    lipgloss.Style
	Rule     lipgloss.Style
	Muted    lipgloss.Style
	Approved lipgloss.Style
	Rejected lipgloss.Style
	Box      lipgloss.Style
}

// DefaultStyles returns the summary styles.
func DefaultStyles() Styles {
	return Styles{
		Title: lipgloss.NewStyle().
			Foreground(colorTitle).
			Bold(true),
		Rule: lipgloss.NewStyle().
			Bold(true),
		Muted: lipgloss.NewStyle().
			Foreground(colorMuted),
		Approved: lipgloss.NewStyle().
			Foreground(colorSuccess).
			Bold(true),
		Rejected: lipgloss.NewStyle().
			Foreground(colorDanger).
			Bold(true),
		Box: lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderTop(true).
			BorderBottom(true).
			Padding(0, 1),
	}
}

const previewLen = 100

// RenderSummary renders the audit summary for history.
func RenderSummary(s Styles, history []pipeline.HistoryEntry, rules []types.Rule) string {
	var sb strings.Builder
	sb.WriteString(s.Title.Render("PIPELINE AUDIT SUMMARY REPORT"))
	sb.WriteString("\n")

	for _, e := range history {
		re, ok := e.(*pipeline.RuleEntry)
		if !ok {
			continue
		}
		text := "N/A"
		if re.RuleIndex < len(rules) {
			text = preview(rules[re.RuleIndex].Text)
		}
		sb.WriteString("\n")
		sb.WriteString(s.Rule.Render(fmt.Sprintf("Rule #%d: %s", re.RuleIndex+1, text)))
		sb.WriteString("\n")
		fmt.Fprintf(&sb, "  - Note: %s\n", re.Note)

		if re.Audit == nil {
			sb.WriteString(s.Muted.Render("  - No data changes were made in this step."))
			sb.WriteString("\n")
			continue
		}
		rowDelta, cells := 0, 0
		if re.Diff != nil {
			rowDelta, cells = re.Diff.RowDelta, re.Diff.ChangedCells
		}
		fmt.Fprintf(&sb, "  - Changes: %d rows, %d cells\n", rowDelta, cells)
		verdict := s.Approved.Render("[APPROVED]")
		if !re.Audit.Approve {
			verdict = s.Rejected.Render("[!!! REJECTED !!!]")
		}
		fmt.Fprintf(&sb, "  - Auditor Verdict: %s\n", verdict)
	}

	sb.WriteString("\n")
	sb.WriteString(s.Muted.Render("Review the report above to decide if the final output is acceptable."))
	return s.Box.Render(sb.String())
}

// PrintSummary writes the summary followed by a newline.
func PrintSummary(w io.Writer, history []pipeline.HistoryEntry, rules []types.Rule) error {
	_, err := fmt.Fprintln(w, RenderSummary(DefaultStyles(), history, rules))
	return err
}

func preview(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= previewLen {
		return s
	}
	return s[:previewLen] + "..."
}
