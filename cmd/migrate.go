package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-registry/internal/config"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	Long: `Run schema migrations against the configured PostgreSQL database.
With --vector-indexes, additionally build the approximate vector indexes.
Those are worth creating only once the corpus holds enough embeddings
for table scans to hurt.`,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)

	migrateCmd.Flags().Bool("vector-indexes", false, "Also create ivfflat vector indexes")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	_, pool, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	ctx := context.Background()
	if err := pool.Migrate(ctx); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	fmt.Println("Schema is up to date")

	if mustGetBool(cmd, "vector-indexes") {
		if err := pool.CreateVectorIndexes(ctx); err != nil {
			return fmt.Errorf("creating vector indexes: %w", err)
		}
		fmt.Println("Vector indexes created")
	}

	return nil
}
