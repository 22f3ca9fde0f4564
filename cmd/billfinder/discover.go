package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/billfinder/internal/cli"
	"github.com/Veraticus/billfinder/internal/common"
	"github.com/Veraticus/billfinder/internal/config"
	"github.com/Veraticus/billfinder/internal/discovery"
	"github.com/Veraticus/billfinder/internal/model"
	"github.com/Veraticus/billfinder/internal/storage"
	"github.com/Veraticus/billfinder/internal/tui"
	"github.com/Veraticus/billfinder/internal/tui/themes"
	"github.com/spf13/cobra"
)

type discoverOptions struct {
	theme    string
	accounts []string
	tokens   []string
	workers  int
	timeout  time.Duration
	jsonOut  bool
	useTUI   bool
	save     bool
}

func discoverCmd() *cobra.Command {
	opts := &discoverOptions{}

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Find recurring bills across email and bank sources",
		Long: `Scan the configured email accounts and bank tokens for bills.

Email accounts are Gmail addresses authorized with 'billfinder auth gmail'.
Bank tokens are Plaid access tokens, or ofx:<path> for statement files
exported from your bank.

Examples:
  billfinder discover
  billfinder discover --token ofx:~/statements --json
  billfinder discover --email me@gmail.com --tui --save`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDiscover(cmd, opts)
		},
	}

	cmd.Flags().StringSliceVar(&opts.accounts, "email", nil, "Email accounts to scan (overrides config)")
	cmd.Flags().StringSliceVar(&opts.tokens, "token", nil, "Bank tokens to scan (overrides config)")
	cmd.Flags().IntVar(&opts.workers, "workers", 0, "Sources fetched in parallel (default from config)")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "Stop the run after this long and keep partial results")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "Print the result as JSON")
	cmd.Flags().BoolVar(&opts.useTUI, "tui", false, "Show the interactive progress view")
	cmd.Flags().BoolVar(&opts.save, "save", false, "Save the run to the history database")
	cmd.Flags().StringVar(&opts.theme, "theme", "default", "Progress view theme (default, catppuccin)")

	cmd.MarkFlagsMutuallyExclusive("json", "tui")

	return cmd
}

func runDiscover(cmd *cobra.Command, opts *discoverOptions) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyDiscoverOverrides(cmd, cfg, opts)

	accounts, tokens := cfg.Email.Accounts, cfg.Bank.Tokens
	if len(accounts) == 0 && len(tokens) == 0 {
		return common.NewUserError(
			"no sources to scan: pass --email or --token, or list email.accounts and bank.tokens in the config file",
			common.ErrNoSources)
	}
	if err := cfg.ValidateSources(accounts, tokens); err != nil {
		return err
	}

	p, err := newPipeline(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := p.Close(); err != nil {
			slog.Warn("Failed to close extraction cache", "error", err)
		}
	}()

	email, err := newEmailProvider(cfg, accounts)
	if err != nil {
		return err
	}
	bank, err := newBankProvider(cfg, tokens)
	if err != nil {
		return err
	}

	engine := p.engine(email, bank)
	req := discovery.Request{EmailAccounts: accounts, BankTokens: tokens}

	if cfg.Discovery.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Discovery.Timeout)
		defer cancel()
	}

	slog.Info("Starting discovery",
		"email_accounts", len(accounts),
		"bank_tokens", len(tokens),
		"workers", cfg.Discovery.Workers)

	result, runErr := execute(ctx, cmd, engine, req, opts)
	if result == nil {
		return runErr
	}

	if opts.save {
		// The run may have been interrupted; the save must not be.
		if err := saveRun(context.WithoutCancel(ctx), cfg.Database.Path, result); err != nil {
			return err
		}
	}

	if err := printResult(cmd, result, opts.jsonOut); err != nil {
		return err
	}
	return runErr
}

func applyDiscoverOverrides(cmd *cobra.Command, cfg *config.Config, opts *discoverOptions) {
	if cmd.Flags().Changed("email") {
		cfg.Email.Accounts = opts.accounts
	}
	if cmd.Flags().Changed("token") {
		cfg.Bank.Tokens = opts.tokens
	}
	if opts.workers > 0 {
		cfg.Discovery.Workers = opts.workers
	}
	if cmd.Flags().Changed("timeout") {
		cfg.Discovery.Timeout = opts.timeout
	}
}

// execute runs the engine behind the selected progress display.
func execute(ctx context.Context, cmd *cobra.Command, engine *discovery.Engine, req discovery.Request, opts *discoverOptions) (*model.DiscoveryResult, error) {
	if opts.useTUI {
		return tui.Run(ctx, func(ctx context.Context, progress chan<- model.ProgressEvent) (*model.DiscoveryResult, error) {
			return engine.Discover(ctx, req, progress)
		}, themes.ByName(opts.theme))
	}

	interrupts := cli.NewInterruptHandler(cmd.ErrOrStderr())
	ctx = interrupts.HandleInterrupts(ctx, true)

	if opts.jsonOut {
		return engine.Discover(ctx, req, nil)
	}

	events := make(chan model.ProgressEvent)
	renderer := cli.NewProgressRenderer(cmd.ErrOrStderr())
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		renderer.Drain(events)
	}()

	result, err := engine.Discover(ctx, req, events)
	<-drained
	return result, err
}

func saveRun(ctx context.Context, path string, result *model.DiscoveryResult) error {
	store, err := storage.Open(ctx, path)
	if err != nil {
		return fmt.Errorf("failed to open history database: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Warn("Failed to close history database", "error", err)
		}
	}()

	if err := store.SaveRun(ctx, result); err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	slog.Info("Saved discovery run", "run_id", result.RunID, "bills", len(result.Bills))
	return nil
}

func printResult(cmd *cobra.Command, result *model.DiscoveryResult, asJSON bool) error {
	out := cmd.OutOrStdout()

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return fmt.Errorf("failed to encode result: %w", err)
		}
		return nil
	}

	if err := cli.RenderBills(out, result.Bills); err != nil {
		return err
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, cli.FormatSummary(result))
	return nil
}
