package main

import (
	"github.com/Veraticus/billfinder/internal/cli"
	"github.com/Veraticus/billfinder/internal/source"
	"github.com/spf13/cobra"
)

func accountsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "List the bank accounts behind each configured token",
		RunE:  runAccounts,
	}

	cmd.Flags().StringSlice("token", nil, "Bank tokens to inspect (overrides config)")

	return cmd
}

func runAccounts(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	tokens := cfg.Bank.Tokens
	if cmd.Flags().Changed("token") {
		tokens, _ = cmd.Flags().GetStringSlice("token")
	}
	if len(tokens) == 0 {
		cmd.Println(cli.FormatInfo("No bank tokens configured. Add bank.tokens to the config file or pass --token."))
		return nil
	}
	if err := cfg.ValidateSources(nil, tokens); err != nil {
		return err
	}

	bank, err := newBankProvider(cfg, tokens)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, token := range tokens {
		label := source.Redact(token)
		accounts, err := bank.ListAccounts(ctx, token)
		if err != nil {
			cmd.PrintErrln(cli.FormatError(label + ": " + err.Error()))
			continue
		}
		if err := cli.RenderAccounts(out, label, accounts); err != nil {
			return err
		}
	}
	return nil
}
