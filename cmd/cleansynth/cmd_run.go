package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"cleansynth/internal/agents"
	"cleansynth/internal/config"
	"cleansynth/internal/digest"
	"cleansynth/internal/ingest"
	"cleansynth/internal/llm"
	"cleansynth/internal/logging"
	"cleansynth/internal/pipeline"
	"cleansynth/internal/report"
	"cleansynth/internal/sandbox"
	"cleansynth/internal/store"
	"cleansynth/internal/synthesis"
	"cleansynth/internal/types"
)

var (
	outputDir string
	splitMode string
	noLedger  bool

	// newLLMClient is swapped out in tests.
	newLLMClient = llm.NewFromConfig
)

// runCmd applies a rules document to a dataset
var runCmd = &cobra.Command{
	Use:   "run <dataset> <rules>",
	Short: "Apply a rules document to a dataset",
	Long: `Segment the rules document, then apply every rule to the dataset in order.

The dataset may be .csv or .xlsx (first sheet). The rules document may be
plain text or an .xlsx workbook. Results, the cleaned dataset, per-rule logs
and step snapshots are written under the output directory. When a rule cannot
be applied the run stops, but everything committed so far is still written.`,
	Args: cobra.ExactArgs(2),
	RunE: runPipeline,
}

func runPipeline(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	datasetPath, rulesPath := args[0], args[1]
	if outputDir != "" {
		cfg.Output.Dir = outputDir
	}
	if splitMode != "" {
		cfg.Pipeline.SplitMode = splitMode
	}

	df, err := ingest.LoadDataset(datasetPath)
	if err != nil {
		return err
	}
	doc, err := ingest.LoadRules(rulesPath)
	if err != nil {
		return err
	}

	client, err := newLLMClient(ctx, cfg)
	if err != nil {
		return err
	}

	rules, err := agents.NewSegmenter(client, cfg.Pipeline.SplitMode).Segment(ctx, doc)
	if err != nil {
		return fmt.Errorf("failed to segment rules: %w", err)
	}
	logging.Pipeline("segmented %s into %d rules", rulesPath, len(rules))

	sinks := pipeline.MultiSink{
		report.NewWriter(cfg.Output.Dir, cfg.Output.StepCSV, cfg.Output.RuleLogs),
	}
	loopOpts := []synthesis.Option{synthesis.WithMaxAttempts(cfg.Pipeline.MaxAttempts)}

	var recorder *store.RunRecorder
	if cfg.Store.Enabled && !noLedger {
		ledger, err := store.Open(cfg.Store.DatabasePath)
		if err != nil {
			return err
		}
		defer ledger.Close()

		recorder, err = ledger.StartRun(ctx, store.RunInfo{
			Dataset:   datasetPath,
			RulesPath: rulesPath,
			Model:     cfg.LLM.Model,
			RuleCount: len(rules),
		})
		if err != nil {
			return err
		}
		sinks = append(sinks, recorder)
		loopOpts = append(loopOpts, synthesis.WithRecorder(recorder))
		logging.SetAuditRun(recorder.ID())
		defer logging.SetAuditRun("")
	}
	logging.Audit().RunStart(datasetPath, len(rules))

	machine := newMachine(client, cfg, filepath.Base(datasetPath), sinks, loopOpts)
	state := pipeline.NewState(df)
	runErr := machine.Run(ctx, state, rules)

	// The committed prefix is persisted whether or not the run finished.
	finishCtx := context.WithoutCancel(ctx)
	err = errors.Join(runErr, writeOutputs(cmd, cfg, rules, state))
	if recorder != nil {
		if ferr := recorder.Finish(finishCtx, runErr); ferr != nil {
			logging.StoreError("failed to finish run %s: %v", recorder.ID(), ferr)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Run id: %s\n", recorder.ID())
	}
	return err
}

func newMachine(client llm.Client, c *config.Config, fileName string, sink pipeline.Sink, loopOpts []synthesis.Option) *pipeline.Machine {
	sb := sandbox.New(sandbox.WithEntryPoint(c.Pipeline.EntryPoint))
	loop := synthesis.NewLoop(
		agents.NewGenerator(client, sb.EntryPoint()),
		agents.NewVerifier(client),
		sb,
		loopOpts...,
	)
	return pipeline.NewMachine(
		agents.NewInterpreter(client),
		loop,
		agents.NewAuditor(client),
		pipeline.WithSink(sink),
		pipeline.WithProfiler(digest.NewProfiler(c.Pipeline.SampleRows)),
		pipeline.WithFileName(fileName),
	)
}

func writeOutputs(cmd *cobra.Command, c *config.Config, rules []types.Rule, state *pipeline.State) error {
	resultsPath := filepath.Join(c.Output.Dir, c.Output.ResultsFile)
	if err := report.WriteResults(resultsPath, report.NewResults(rules, state.History, time.Now())); err != nil {
		return err
	}
	cleanedPath := filepath.Join(c.Output.Dir, c.Output.CleanedFile)
	if err := ingest.SaveDataset(cleanedPath, state.Dataset); err != nil {
		return err
	}
	if c.Output.PrintSummary {
		if err := report.PrintSummary(cmd.OutOrStdout(), state.History, rules); err != nil {
			return err
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Results: %s\nCleaned dataset: %s\n", resultsPath, cleanedPath)
	return nil
}
