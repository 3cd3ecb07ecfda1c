package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/daviddao/mailtriage/internal/app"
	"github.com/daviddao/mailtriage/internal/display"
	"github.com/daviddao/mailtriage/internal/triage"
	"github.com/daviddao/mailtriage/internal/types"
)

var labelsCmd = &cobra.Command{
	Use:   "labels",
	Short: "Create every category label the mailbox is missing",
	Long: `Make sure each of the 16 category labels, plus Other, exists in the mailbox.
Gmail labels are created visible; IMAP backends get one folder per label.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		mailbox, err := app.OpenMailbox(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer mailbox.Close()

		// Labels never need the model.
		runner := triage.New(mailbox, nil, triage.Options{}, logger)
		statuses, ensureErr := runner.EnsureLabels(ctx)

		if jsonOutput {
			if err := writeJSON(cmd, statuses); err != nil {
				return err
			}
			return ensureErr
		}

		if !quietFlag {
			w := cmd.OutOrStdout()
			for _, st := range statuses {
				if st.Error != "" {
					fmt.Fprintf(w, "  %s %s  %s\n", display.ErrStyle.Render("✗"), st.Name, display.ErrStyle.Render(st.Error))
					continue
				}
				fmt.Fprintf(w, "  %s %s\n", display.CategoryDot(types.Category(st.Name)), display.Muted.Render(st.Name+"  "+st.ID))
			}
		}
		if ensureErr != nil {
			return fmt.Errorf("ensure labels: %w", ensureErr)
		}
		if !quietFlag {
			display.SuccessMsg(cmd.OutOrStdout(), "%d labels ready for %s", len(statuses), mailbox.Account())
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(labelsCmd)
}
