package main

import (
	"fmt"
	"log/slog"

	"github.com/Veraticus/billfinder/internal/cli"
	"github.com/Veraticus/billfinder/internal/common"
	"github.com/Veraticus/billfinder/internal/gmail"
	"github.com/Veraticus/billfinder/internal/simplefin"
	"github.com/spf13/cobra"
)

func authCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authenticate with external services",
		Long:  `Authenticate with external services like Gmail and SimpleFIN.`,
	}

	cmd.AddCommand(authGmailCmd())
	cmd.AddCommand(authSimpleFINCmd())

	return cmd
}

func authGmailCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gmail <account>",
		Short: "Authorize read-only access to a Gmail account",
		Long: `Authorize billfinder to read a Gmail account.

This command will:
1. Start a local web server for the OAuth callback
2. Print a Google consent URL to open in your browser
3. Save the resulting token for future discovery runs

Run it once per mailbox you want to scan.`,
		Args: cobra.ExactArgs(1),
		RunE: runAuthGmail,
	}
}

func runAuthGmail(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	account := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Gmail.Validate(); err != nil {
		return fmt.Errorf("%w: %w", common.ErrMissingConfig, err)
	}

	slog.Info("Starting Gmail authorization", "account", account, "token_dir", cfg.Gmail.TokenDir)

	if _, err := gmail.AuthenticateInteractive(ctx, cfg.Gmail, account); err != nil {
		return fmt.Errorf("gmail authorization failed: %w", err)
	}

	cmd.Println(cli.FormatSuccess(fmt.Sprintf("Authorized %s. Token saved to %s", account, cfg.Gmail.TokenFile(account))))
	return nil
}

func authSimpleFINCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "simplefin <setup-token>",
		Short: "Claim a SimpleFIN Bridge setup token",
		Long: `Exchange a SimpleFIN Bridge setup token for a bank token.

Setup tokens can only be claimed once. The printed token contains the
access credentials; add it to bank.tokens in the config file.`,
		Args: cobra.ExactArgs(1),
		RunE: runAuthSimpleFIN,
	}
}

func runAuthSimpleFIN(cmd *cobra.Command, args []string) error {
	token, err := simplefin.NewClient().Claim(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("simplefin claim failed: %w", err)
	}

	cmd.Println(cli.FormatSuccess("Claimed SimpleFIN access. Add this token to bank.tokens:"))
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
