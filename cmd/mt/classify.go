package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/daviddao/mailtriage/internal/app"
	"github.com/daviddao/mailtriage/internal/display"
	"github.com/daviddao/mailtriage/internal/normalize"
)

var (
	classifyMessageID string
	classifyApply     bool
)

type classifyOutput struct {
	MessageID  string `json:"message_id,omitempty"`
	Subject    string `json:"subject,omitempty"`
	Category   string `json:"category"`
	Reason     string `json:"reason"`
	Completion string `json:"completion,omitempty"`
	Labeled    bool   `json:"labeled,omitempty"`
}

var classifyCmd = &cobra.Command{
	Use:   "classify [TEXT]",
	Short: "Classify text or a single message",
	Long: `Classify the given text (or stdin when no argument is given) and print the
category. With --message, fetch that message from the mailbox and classify its
canonical text instead; --apply also labels it.`,
	Example: `  mt classify "Subject: Standup\n\nTeam meeting at 3pm"
  echo "Your invoice is attached" | mt classify
  mt classify --message 18c1234567890abc --apply`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if classifyApply && classifyMessageID == "" {
			return errors.New("--apply requires --message")
		}

		classifier, err := app.NewClassifier(ctx, cfg, logger)
		if err != nil {
			return err
		}

		out := classifyOutput{}
		var text string
		var mailbox app.Mailbox
		if classifyMessageID != "" {
			mailbox, err = app.OpenMailbox(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer mailbox.Close()

			msg, err := mailbox.GetMessage(ctx, classifyMessageID)
			if err != nil {
				return err
			}
			out.MessageID = classifyMessageID
			out.Subject = normalize.Subject(msg.Headers)
			text = normalize.Normalize(msg)
		} else {
			text, err = readText(cmd, args)
			if err != nil {
				return err
			}
		}

		decision := classifier.Decide(ctx, text)
		out.Category = string(decision.Category)
		out.Reason = string(decision.Reason)
		out.Completion = decision.Completion

		if classifyApply {
			if err := mailbox.ApplyLabel(ctx, classifyMessageID, out.Category); err != nil {
				return err
			}
			out.Labeled = true
		}

		if jsonOutput {
			return writeJSON(cmd, out)
		}
		w := cmd.OutOrStdout()
		if quietFlag {
			fmt.Fprintln(w, out.Category)
			return nil
		}
		fmt.Fprintf(w, "%s  %s\n", display.CategoryBadge(decision.Category), display.Dim.Render("("+out.Reason+")"))
		if out.Labeled {
			display.SuccessMsg(w, "Labeled %s", out.MessageID)
		}
		return nil
	},
}

func readText(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 {
		return strings.ReplaceAll(args[0], `\n`, "\n"), nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", errors.New("no text to classify: pass TEXT or pipe it on stdin")
	}
	return string(data), nil
}

func init() {
	classifyCmd.Flags().StringVarP(&classifyMessageID, "message", "m", "", "Classify this message id from the mailbox")
	classifyCmd.Flags().BoolVar(&classifyApply, "apply", false, "Apply the category label to --message")
	rootCmd.AddCommand(classifyCmd)
}
