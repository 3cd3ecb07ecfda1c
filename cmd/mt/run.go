package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/daviddao/mailtriage/internal/app"
	"github.com/daviddao/mailtriage/internal/config"
	"github.com/daviddao/mailtriage/internal/display"
	"github.com/daviddao/mailtriage/internal/types"
)

var (
	runWindow      time.Duration
	runDryRun      bool
	runConcurrency int
	runMaxResults  int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Triage unread messages once",
	Long: `List unread inbox messages newer than the window, classify each one and
apply the category label. A message that cannot be classified is labeled Other.`,
	Example: `  mt run
  mt run --window 24h --dry-run
  mt run --concurrency 4 --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		applyRunFlags(cmd)
		if err := config.Validate(cfg); err != nil {
			return err
		}

		summary, err := runOnce(cmd)
		if err != nil {
			return err
		}

		if jsonOutput {
			return writeJSON(cmd, summary)
		}
		if !quietFlag {
			display.Summary(cmd.OutOrStdout(), summary)
		}
		return nil
	},
}

// applyRunFlags lets explicitly set flags override the loaded config.
func applyRunFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("window") {
		cfg.Run.Window = runWindow
	}
	if flags.Changed("dry-run") {
		cfg.Run.DryRun = runDryRun
	}
	if flags.Changed("concurrency") {
		cfg.Run.Concurrency = runConcurrency
	}
	if flags.Changed("max") {
		cfg.Run.MaxResults = runMaxResults
	}
}

func runOnce(cmd *cobra.Command) (*types.RunSummary, error) {
	ctx := cmd.Context()
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	defer a.Close()

	summary, err := a.Runner.Run(ctx, cfg.Run.Window)
	if err != nil {
		return summary, fmt.Errorf("triage run: %w", err)
	}
	return summary, nil
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().DurationVar(&runWindow, "window", time.Hour, "Only consider messages newer than this")
	cmd.Flags().BoolVar(&runDryRun, "dry-run", false, "Classify without applying labels")
	cmd.Flags().IntVarP(&runConcurrency, "concurrency", "c", 1, "Messages processed in parallel")
	cmd.Flags().IntVarP(&runMaxResults, "max", "n", 100, "Maximum messages per run")
}

func init() {
	addRunFlags(runCmd)
	rootCmd.AddCommand(runCmd)
}
