package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-registry/internal/config"
	"github.com/kozaktomas/face-registry/internal/facematch"
	"github.com/kozaktomas/face-registry/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	Long: `Start the Face Registry web server.
The server exposes enrollment, identification, record management and
corpus sweep endpoints over a JSON API.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	host := mustGetString(cmd, "host")
	if envHost := os.Getenv("WEB_HOST"); envHost != "" {
		host = envHost
	}

	fmt.Printf("Connecting to PostgreSQL database...\n")
	store, pool, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	ctx := context.Background()
	if err := pool.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	fmt.Printf("Preparing HNSW index for the duplicate gate...\n")
	index := buildIndex(ctx, store, cfg.Database.HNSWIndexPath)

	engine := facematch.NewEngine(store, index, cfg.Spaces)
	pipeline := newPipeline(cfg)

	server := web.NewServer(cfg, host, store, index, engine, pipeline)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}

		if err := index.Save(cfg.Database.HNSWIndexPath); err != nil {
			fmt.Printf("Error saving HNSW index: %v\n", err)
		}
	}()

	fmt.Printf("Starting Face Registry API on http://%s:%d\n", host, cfg.Web.Port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
