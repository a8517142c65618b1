// Package main implements the cleansynth CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"cleansynth/internal/config"
	"cleansynth/internal/logging"
)

var (
	// Global flags
	configPath string
	verbose    bool

	// Resolved in PersistentPreRunE
	cfg *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "cleansynth",
	Short: "Apply natural-language cleaning rules to a dataset",
	Long: `cleansynth applies a document of human-written data cleaning rules to a
tabular dataset, one rule at a time.

For every rule that needs executable logic, a transform is synthesized,
statically validated, reviewed, run in an interpreter against a copy of the
dataset, and audited before it is committed. Every step is recorded.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if verbose {
			loaded.Logging.Level = "debug"
		}
		if err := loaded.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		if _, err := logging.Initialize(loaded.Logging); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		cfg = loaded
		logging.BootDebug("config loaded from %q (provider=%s model=%s)", configPath, cfg.LLM.Provider, cfg.LLM.Model)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "cleansynth.yaml", "Config file (missing file uses defaults)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	runCmd.Flags().StringVarP(&outputDir, "output", "o", "", "Output directory (overrides output.dir)")
	runCmd.Flags().StringVar(&splitMode, "split", "", "Rule segmentation: llm or paragraph (overrides pipeline.split_mode)")
	runCmd.Flags().BoolVar(&noLedger, "no-ledger", false, "Do not record the run in the SQLite ledger")

	applyCmd.Flags().StringVarP(&applyOut, "out", "o", "", "Write the transformed dataset to this path (.csv or .xlsx)")
	applyCmd.Flags().BoolVar(&skipCheck, "skip-check", false, "Run the transform without static validation")

	digestCmd.Flags().IntVar(&digestSample, "sample-rows", 0, "Sample rows to include (overrides pipeline.sample_rows)")

	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of runs to list (0 = all)")
	historyShowCmd.Flags().BoolVar(&showAttempts, "attempts", false, "Also list every synthesis attempt")
	historyCmd.AddCommand(historyShowCmd)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(digestCmd)
	rootCmd.AddCommand(historyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
