package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"cleansynth/internal/diff"
	"cleansynth/internal/digest"
	"cleansynth/internal/guard"
	"cleansynth/internal/ingest"
	"cleansynth/internal/sandbox"
)

var (
	applyOut     string
	skipCheck    bool
	digestSample int
)

// checkCmd statically validates a transform
var checkCmd = &cobra.Command{
	Use:   "check <transform.go>",
	Short: "Statically validate a transform",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheck,
}

// applyCmd runs a transform against a dataset outside the pipeline
var applyCmd = &cobra.Command{
	Use:   "apply <transform.go> <dataset>",
	Short: "Run a transform against a dataset and report the change",
	Args:  cobra.ExactArgs(2),
	RunE:  runApply,
}

// digestCmd prints the dataset digest sent to the generator
var digestCmd = &cobra.Command{
	Use:   "digest <dataset>",
	Short: "Print the dataset digest as YAML",
	Args:  cobra.ExactArgs(1),
	RunE:  runDigest,
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func runCheck(cmd *cobra.Command, args []string) error {
	code, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read transform: %w", err)
	}

	report := guard.NewChecker().Check(string(code))
	out := cmd.OutOrStdout()
	if report.Safe {
		fmt.Fprintf(out, "OK: %s (%d nodes, %d calls checked)\n", args[0], report.NodesChecked, report.CallsChecked)
		return nil
	}
	fmt.Fprintf(out, "UNSAFE: %s\n", args[0])
	for _, v := range report.Violations {
		fmt.Fprintf(out, "  line %d: [%s] %s\n", v.Line, v.Type, v.Description)
	}
	return report.Err()
}

func runApply(cmd *cobra.Command, args []string) error {
	code, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read transform: %w", err)
	}
	df, err := ingest.LoadDataset(args[1])
	if err != nil {
		return err
	}

	if !skipCheck {
		if err := guard.Validate(string(code)); err != nil {
			return err
		}
	}

	sb := sandbox.New(sandbox.WithEntryPoint(cfg.Pipeline.EntryPoint))
	res, err := sb.Apply(commandContext(cmd), string(code), df)
	if err != nil {
		return err
	}

	d := diff.Compute(df, res.Frame)
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Rows: %d -> %d (delta %d)\n", d.RowsBefore, d.RowsAfter, d.RowDelta)
	fmt.Fprintf(out, "Columns: %d -> %d\n", d.ColumnsBefore, d.ColumnsAfter)
	fmt.Fprintf(out, "Changed cells: %d\n", d.ChangedCells)
	for _, issue := range res.Issues {
		fmt.Fprintf(out, "  - %s\n", issue)
	}

	if applyOut != "" {
		if err := ingest.SaveDataset(applyOut, res.Frame); err != nil {
			return err
		}
		fmt.Fprintf(out, "Wrote %s\n", applyOut)
	}
	return nil
}

func runDigest(cmd *cobra.Command, args []string) error {
	df, err := ingest.LoadDataset(args[0])
	if err != nil {
		return err
	}
	sample := cfg.Pipeline.SampleRows
	if digestSample > 0 {
		sample = digestSample
	}

	dg, err := digest.NewProfiler(sample).Profile(commandContext(cmd), df, args[0])
	if err != nil {
		return err
	}
	text, err := dg.YAML()
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), text)
	return nil
}
