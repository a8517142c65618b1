package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"cleansynth/internal/pipeline"
	"cleansynth/internal/report"
	"cleansynth/internal/store"
)

var (
	historyLimit int
	showAttempts bool
)

// historyCmd lists recorded runs
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List runs recorded in the ledger",
	Long: `List runs recorded in the SQLite ledger, most recent first.

Subcommands:
  show   - Print the history of one run`,
	Args: cobra.NoArgs,
	RunE: runHistoryList,
}

// historyShowCmd prints one run
var historyShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Print the history of one run (a unique id prefix is enough)",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	ledger, err := store.Open(cfg.Store.DatabasePath)
	if err != nil {
		return err
	}
	defer ledger.Close()

	runs, err := ledger.ListRuns(commandContext(cmd), historyLimit)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded.")
		return nil
	}
	for _, r := range runs {
		fmt.Fprintf(out, "%s  %-9s  %s  %d rules  %s <- %s\n",
			r.ID[:8], r.Status, r.StartedAt.Local().Format(time.DateTime), r.RuleCount, r.Dataset, r.RulesPath)
	}
	return nil
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	ledger, err := store.Open(cfg.Store.DatabasePath)
	if err != nil {
		return err
	}
	defer ledger.Close()

	ctx := commandContext(cmd)
	run, err := ledger.GetRun(ctx, args[0])
	if err != nil {
		return err
	}
	history, err := ledger.LoadHistory(ctx, run.ID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run %s (%s)\n", run.ID, run.Status)
	fmt.Fprintf(out, "Dataset: %s\nRules: %s (%d)\nModel: %s\n", run.Dataset, run.RulesPath, run.RuleCount, run.Model)
	if run.Error != "" {
		fmt.Fprintf(out, "Error: %s\n", run.Error)
	}
	fmt.Fprintln(out)

	lastRule := -1
	for _, e := range history {
		n := lastRule + 2
		if re, ok := e.(*pipeline.RuleEntry); ok {
			lastRule = re.RuleIndex
			n = re.RuleIndex + 1
		}
		fmt.Fprint(out, report.FormatEntryLog(n, e))
		fmt.Fprintln(out, strings.Repeat("-", 40))
	}

	if !showAttempts {
		return nil
	}
	attempts, err := ledger.LoadAttempts(ctx, run.ID)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\nAttempts (%d):\n", len(attempts))
	for _, a := range attempts {
		line := fmt.Sprintf("  rule %d attempt %d: %s", a.RuleIndex+1, a.Attempt, a.Stage)
		if a.Kind != "" {
			line += fmt.Sprintf(" [%s] %s", a.Kind, a.Reason)
		}
		if a.LinesAdded+a.LinesRemoved > 0 {
			line += fmt.Sprintf(" (+%d/-%d lines)", a.LinesAdded, a.LinesRemoved)
		}
		fmt.Fprintln(out, line)
	}
	return nil
}
