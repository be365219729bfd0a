package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-registry/internal/config"
	"github.com/kozaktomas/face-registry/internal/database"
	"github.com/kozaktomas/face-registry/internal/facematch"
	"github.com/kozaktomas/face-registry/internal/recognizer"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <image-file>",
	Short: "Enroll a face image into the registry",
	Long: `Run the recognition pipeline on an image and register the resulting
embeddings. The duplicate gate refuses faces already present in the
corpus.

Examples:
  # Enroll an unidentified face
  face-registry enroll sighting.jpg

  # Enroll a known identity
  face-registry enroll portrait.jpg --known --name "Jan Novák"`,
	Args: cobra.ExactArgs(1),
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().Bool("known", false, "Enroll into the known-identity registry")
	enrollCmd.Flags().String("name", "", "Display name (required with --known)")
	enrollCmd.Flags().Bool("json", false, "Output as JSON")
}

func runEnroll(cmd *cobra.Command, args []string) error {
	known := mustGetBool(cmd, "known")
	name := mustGetString(cmd, "name")
	jsonOutput := mustGetBool(cmd, "json")

	if known && name == "" {
		return errors.New("--name is required with --known")
	}

	image, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read image: %w", err)
	}

	cfg := config.Load()
	store, _, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	ctx := context.Background()
	engine := newEngine(ctx, cfg, store)
	pipeline := newPipeline(cfg)

	result, err := pipeline.Run(ctx, image)
	if err != nil {
		if errors.Is(err, recognizer.ErrNoFace) {
			return errors.New("no face detected in the image")
		}
		return fmt.Errorf("recognition failed: %w", err)
	}
	for _, warning := range result.Warnings {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", warning)
	}

	registry := database.RegistryUnidentified
	if known {
		registry = database.RegistryKnown
	}
	record := &database.IdentityRecord{
		Registry:      registry,
		Name:          name,
		Embedding:     result.Observation.Embedding,
		EmbeddingFast: result.FastEmbedding,
		BBox:          result.Observation.BBox,
		DetScore:      result.Observation.Confidence,
	}

	report, err := engine.Register(ctx, record)
	if err != nil {
		var dup *facematch.DuplicateError
		if errors.As(err, &dup) {
			return fmt.Errorf("duplicate of %s (similarity %.3f, distance %.3f)",
				dup.Decision.ExistingCode, dup.Decision.Similarity, dup.Decision.Distance)
		}
		return fmt.Errorf("registration failed: %w", err)
	}

	if jsonOutput {
		return printJSON(map[string]any{"record": record, "report": report})
	}

	fmt.Printf("Enrolled %s (%s)\n", record.Code, record.Registry)
	printReport(report)
	return nil
}

// printJSON writes any value as indented JSON to stdout.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printReport renders a match report as human-readable lines.
func printReport(report *facematch.Report) {
	if len(report.Matches) == 0 {
		fmt.Println("No matches in the corpus")
		return
	}

	fmt.Printf("Matches: %d\n", len(report.Matches))
	for _, m := range report.Matches {
		fmt.Printf("  %-10s %-12s %-6s distance %.4f\n", m.Code, m.Registry, m.Strength, m.Distance)
	}
	for registry, summary := range report.PerRegistry {
		if summary.Best != nil {
			fmt.Printf("Best %s match: %s (distance %.4f)\n", registry, summary.Best.Code, summary.Best.Distance)
		}
	}
	for _, warning := range report.Warnings {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", warning)
	}
}
