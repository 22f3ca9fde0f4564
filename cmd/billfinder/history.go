package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Veraticus/billfinder/internal/cli"
	"github.com/Veraticus/billfinder/internal/model"
	"github.com/Veraticus/billfinder/internal/storage"
	"github.com/spf13/cobra"
)

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show saved discovery runs",
		Long: `Show discovery runs saved with 'billfinder discover --save'.

Without arguments the most recent runs are listed. Pass a run ID, or
--latest, to show the bills of one run. Pass --bill with a canonical key
(for example netflix:16) to follow one bill across runs.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistory,
	}

	cmd.Flags().Int("limit", storage.DefaultListLimit, "Number of runs to list")
	cmd.Flags().Bool("latest", false, "Show the bills of the most recent run")
	cmd.Flags().String("bill", "", "Show every saved sighting of a bill's canonical key")

	return cmd
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	limit, _ := cmd.Flags().GetInt("limit")
	latest, _ := cmd.Flags().GetBool("latest")
	billKey, _ := cmd.Flags().GetString("bill")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := storage.Open(ctx, cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open history database: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Warn("Failed to close history database", "error", err)
		}
	}()

	out := cmd.OutOrStdout()

	switch {
	case billKey != "":
		sightings, err := store.BillHistory(ctx, billKey)
		if err != nil {
			return err
		}
		return cli.RenderSightings(out, billKey, sightings)

	case len(args) == 1 || latest:
		load := store.GetLatestRun
		if len(args) == 1 {
			load = func(ctx context.Context) (*model.DiscoveryResult, error) {
				return store.GetRun(ctx, args[0])
			}
		}
		result, err := load(ctx)
		if err != nil {
			return fmt.Errorf("failed to load run: %w", err)
		}
		fmt.Fprintln(out, cli.FormatTitle("Run "+result.RunID))
		if err := cli.RenderBills(out, result.Bills); err != nil {
			return err
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, cli.FormatSummary(result))
		return nil

	default:
		runs, err := store.ListRuns(ctx, limit)
		if err != nil {
			return err
		}
		return cli.RenderRuns(out, runs)
	}
}
