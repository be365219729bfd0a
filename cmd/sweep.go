package cmd

import (
	"context"
	"fmt"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-registry/internal/config"
	"github.com/kozaktomas/face-registry/internal/database"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Recompute match evidence for the whole corpus",
	Long: `Re-run the match scan for every active record in an embedding space.

A sweep heals the ledger after out-of-band database edits or threshold
changes; day-to-day enrollment keeps evidence consistent on its own.`,
	RunE: runSweep,
}

func init() {
	rootCmd.AddCommand(sweepCmd)

	sweepCmd.Flags().String("space", database.SpacePrimary, "Embedding space to sweep (primary or secondary)")
}

func runSweep(cmd *cobra.Command, args []string) error {
	space := mustGetString(cmd, "space")

	cfg := config.Load()
	store, _, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	ctx := context.Background()
	engine := newEngine(ctx, cfg, store)

	total, err := store.CountCandidates(ctx, space, "")
	if err != nil {
		return fmt.Errorf("failed to count candidates: %w", err)
	}
	if total == 0 {
		fmt.Println("Nothing to sweep, the corpus is empty.")
		return nil
	}

	bar := progressbar.NewOptions(total,
		progressbar.OptionSetDescription("Sweeping corpus"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("records"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	done, err := engine.Sweep(ctx, space, func(done, total int) {
		_ = bar.Set(done)
	})
	fmt.Println()
	if err != nil {
		return fmt.Errorf("sweep failed after %d records: %w", done, err)
	}

	fmt.Printf("Swept %d records in the %s space\n", done, space)
	return nil
}
