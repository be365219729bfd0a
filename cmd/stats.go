package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-registry/internal/config"
	"github.com/kozaktomas/face-registry/internal/database"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show registry and corpus statistics",
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)

	statsCmd.Flags().Bool("json", false, "Output as JSON")
}

func runStats(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")

	cfg := config.Load()
	store, _, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	ctx := context.Background()

	unidentified, err := store.CountRecords(ctx, database.RegistryUnidentified)
	if err != nil {
		return fmt.Errorf("failed to count unidentified records: %w", err)
	}
	known, err := store.CountRecords(ctx, database.RegistryKnown)
	if err != nil {
		return fmt.Errorf("failed to count known identities: %w", err)
	}
	primary, err := store.CountCandidates(ctx, database.SpacePrimary, "")
	if err != nil {
		return fmt.Errorf("failed to count primary candidates: %w", err)
	}
	fast, err := store.CountCandidates(ctx, database.SpaceSecondary, "")
	if err != nil {
		return fmt.Errorf("failed to count fast candidates: %w", err)
	}

	if jsonOutput {
		return printJSON(map[string]int{
			"unidentified":       unidentified,
			"known":              known,
			"primary_candidates": primary,
			"fast_candidates":    fast,
		})
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Unidentified persons:\t%d\n", unidentified)
	fmt.Fprintf(w, "Known identities:\t%d\n", known)
	fmt.Fprintf(w, "Primary embeddings:\t%d\n", primary)
	fmt.Fprintf(w, "Fast embeddings:\t%d\n", fast)
	return w.Flush()
}
