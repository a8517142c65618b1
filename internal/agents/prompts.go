package agents

import (
	"fmt"
	"strings"
)

// interpreterSystemPrompt asks whether a rule needs executable logic.
const interpreterSystemPrompt = `You are analyzing a human-written data rule.

Question:
Does this rule require executable logic to inspect, validate, log, or transform data?

IMPORTANT:
- Even if no data is modified, checking conditions counts as execution
- Logging or flagging issues counts as execution
- Reply false ONLY if the rule is purely informational

Reply STRICT JSON:
{ "requires_execution": true/false, "reason": "short explanation" }`

// generatorSystemPrompt describes the transform contract. %s is the entry point.
const generatorSystemPrompt = `You write Go code that implements a human-written data rule against a table.

CRITICAL RULES:
- Do NOT write import statements. These packages are already imported and are the only ones available: %s.
- You MUST define: func %s(df *table.Frame) (*table.Frame, []string)
- The function must return the modified frame and a list of issues, like ` + "`return df, issues`" + `.
- Keep the code simple and direct. Do not write complex or overly-clever code.
- Helper constants, maps and functions go at the top level, outside the entry point. Do NOT declare top-level variables.
- Do NOT use defer, panic, recover, goroutines, select, goto, or loops without a bound.
- Do NOT touch files, processes, the network, or reflection.
- When parsing dates, use table.ParseTime(s), which returns (time.Time, bool).
- Do NOT invent reference data or make assumptions beyond the rule.
- Do NOT return "no action required" or code that only reports.

TABLE API (rows are addressed by position i, 0 <= i < df.Len()):
- df.Len(), df.Columns(), df.HasColumn(col), df.Kind(col)
- df.Get(i, col) any, df.Set(i, col, v), df.IsNull(i, col), df.SetNull(i, col)
- df.Float(i, col) (float64, bool), df.Str(i, col) string, df.Values(col) []any
- df.Apply(col, func(v any) any), df.AddColumn(name, kind) error, df.DropColumn(name) error
- df.RenameColumn(from, to) error, df.Cast(col, kind) int
- df.DropRows(func(i int) bool) int, df.DropNulls(cols...) int, df.DropDuplicates(cols...) int
- df.SortBy(col, ascending), df.CountNulls(col), df.Unique(col)
- kinds: table.String, table.Int, table.Float, table.Bool, table.Time
- helpers: table.IsNull(v), table.ToFloat(v), table.ToInt(v), table.ToBool(v), table.ToString(v), table.ToTime(v)
- accessing a column that does not exist panics with a missing key error

Reply with a single fenced go code block.`

// verifierSystemPrompt asks whether a candidate implements its rule.
const verifierSystemPrompt = `You review Go code written to implement a human-written data rule.

TASK:
- Does the code actually implement the rule?
- If the rule requires checks or validation, does the code perform them?
- "no action required" is an invalid response here.

Reply ONLY JSON:
{"approved": true/false, "reason": "string"}`

// auditorSystemPrompt asks for a judgement of an applied change.
const auditorSystemPrompt = `You audit a change that was applied to a dataset to enforce a human-written data rule.
You are given the rule and a summary of the change: row counts, column counts, changed cells and null counts per column.

Judge whether the change is consistent with the rule.

Reply ONLY JSON:
{"approve": true/false, "summary": "string"}`

// splitterSystemPrompt asks for a rules document split into blocks.
const splitterSystemPrompt = `You are given a document containing multiple human-written data cleaning and validation rules.

TASK:
Split the document into individual executable rule blocks.

Rules:
- Preserve original wording
- Do NOT rewrite or summarize
- Each block should represent ONE logical instruction
- Notes or comments that belong to a rule should stay with it

Output STRICT JSON:
{ "rules": ["rule block 1", "rule block 2", "..."] }`

// feedbackNote is appended to the generation request after a failed attempt.
const feedbackNote = "NOTE: Previous attempt failed due to: %s"

func buildGeneratorPrompt(rule, digestYAML, feedback string) string {
	var sb strings.Builder
	sb.WriteString("RULE (verbatim):\n")
	sb.WriteString(rule)
	sb.WriteString("\n\nDATASET METADATA:\n")
	sb.WriteString(digestYAML)
	if feedback != "" {
		sb.WriteString("\n\n")
		sb.WriteString(fmt.Sprintf(feedbackNote, feedback))
	}
	return sb.String()
}

func buildVerifierPrompt(rule, source string) string {
	return fmt.Sprintf("RULE:\n%s\n\nCODE:\n```go\n%s\n```", rule, source)
}

func buildAuditorPrompt(rule, diffJSON string) string {
	return fmt.Sprintf("RULE:\n%s\n\nDIFF:\n%s", rule, diffJSON)
}
