package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/daviddao/mailtriage/internal/app"
	"github.com/daviddao/mailtriage/internal/auth"
	"github.com/daviddao/mailtriage/internal/credential"
	"github.com/daviddao/mailtriage/internal/display"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage mailbox credentials",
}

var authStoreCmd = &cobra.Command{
	Use:   "store [FILE]",
	Short: "Store a Gmail authorized-user JSON document in the system keyring",
	Long: `Validate an authorized-user document (token, refresh_token, token_uri,
client_id, client_secret) and store it in the system keyring. Reads stdin when
FILE is omitted. Set mailbox.use_keyring: true to use it.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var data []byte
		var err error
		if len(args) == 1 {
			data, err = os.ReadFile(args[0])
		} else {
			data, err = io.ReadAll(cmd.InOrStdin())
		}
		if err != nil {
			return fmt.Errorf("read credentials: %w", err)
		}

		if _, err := auth.ParseAuthorizedUser(data); err != nil {
			return err
		}
		if err := credential.Set(credential.GmailKey, string(data)); err != nil {
			return err
		}
		if !quietFlag {
			display.SuccessMsg(cmd.OutOrStdout(), "Stored Gmail credentials in the keyring")
		}
		return nil
	},
}

var authDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Remove stored Gmail credentials from the keyring",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := credential.Delete(credential.GmailKey); err != nil {
			return err
		}
		if !quietFlag {
			display.SuccessMsg(cmd.OutOrStdout(), "Removed Gmail credentials")
		}
		return nil
	},
}

type authCheckOutput struct {
	Backend string `json:"backend"`
	Account string `json:"account"`
	Label   string `json:"label"`
}

var authCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Connect to the configured mailbox and print the account",
	RunE: func(cmd *cobra.Command, args []string) error {
		mailbox, err := app.OpenMailbox(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer mailbox.Close()

		return writeAuthCheck(cmd, cfg.Mailbox.Backend, mailbox.Account())
	},
}

func writeAuthCheck(cmd *cobra.Command, backend, account string) error {
	out := authCheckOutput{Backend: backend, Account: account, Label: display.AccountLabel(account)}
	if jsonOutput {
		return writeJSON(cmd, out)
	}
	if !quietFlag {
		display.SuccessMsg(cmd.OutOrStdout(), "Connected to %s as %s %s",
			out.Backend, out.Account, display.Muted.Render("["+out.Label+"]"))
	}
	return nil
}

func init() {
	authCmd.AddCommand(authStoreCmd)
	authCmd.AddCommand(authDeleteCmd)
	authCmd.AddCommand(authCheckCmd)
	rootCmd.AddCommand(authCmd)
}
