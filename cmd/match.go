package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-registry/internal/config"
	"github.com/kozaktomas/face-registry/internal/database"
	"github.com/kozaktomas/face-registry/internal/recognizer"
)

var matchCmd = &cobra.Command{
	Use:   "match <image-file | record-code>",
	Short: "Identify a face against the corpus",
	Long: `Match a face against every record in the corpus without enrolling it.

The argument is either an image file, which is run through the
recognition pipeline first, or an existing record code (UP-... / KI-...),
whose stored embedding is probed directly.

Examples:
  # Identify a face from an image
  face-registry match sighting.jpg

  # Re-probe an existing record without touching the ledger
  face-registry match UP-000042

  # Probe the fast 128-dim space instead
  face-registry match sighting.jpg --space secondary`,
	Args: cobra.ExactArgs(1),
	RunE: runMatch,
}

func init() {
	rootCmd.AddCommand(matchCmd)

	matchCmd.Flags().String("space", database.SpacePrimary, "Embedding space to probe (primary or secondary)")
	matchCmd.Flags().Bool("json", false, "Output as JSON")
}

// isRecordCode reports whether the argument looks like a registry code
// rather than a file path.
func isRecordCode(arg string) bool {
	return strings.HasPrefix(arg, "UP-") || strings.HasPrefix(arg, "KI-")
}

func runMatch(cmd *cobra.Command, args []string) error {
	space := mustGetString(cmd, "space")
	jsonOutput := mustGetBool(cmd, "json")

	cfg := config.Load()
	store, _, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	ctx := context.Background()
	engine := newEngine(ctx, cfg, store)

	var embedding []float32
	if isRecordCode(args[0]) {
		record, err := store.GetRecord(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to load record %s: %w", args[0], err)
		}
		embedding = record.EmbeddingIn(space)
		if len(embedding) == 0 {
			return fmt.Errorf("record %s carries no %s embedding", record.Code, space)
		}
	} else {
		image, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read image: %w", err)
		}

		result, err := newPipeline(cfg).Run(ctx, image)
		if err != nil {
			if errors.Is(err, recognizer.ErrNoFace) {
				return errors.New("no face detected in the image")
			}
			return fmt.Errorf("recognition failed: %w", err)
		}
		embedding = result.Observation.Embedding
		if space == database.SpaceSecondary {
			if result.FastEmbedding == nil {
				return errors.New("fast embedding unavailable for the secondary space")
			}
			embedding = result.FastEmbedding
		}
	}

	report, err := engine.Probe(ctx, space, embedding)
	if err != nil {
		return fmt.Errorf("match failed: %w", err)
	}

	if jsonOutput {
		return printJSON(report)
	}
	printReport(report)
	return nil
}
