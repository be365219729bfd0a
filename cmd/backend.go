package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/face-registry/internal/config"
	"github.com/kozaktomas/face-registry/internal/database"
	"github.com/kozaktomas/face-registry/internal/database/postgres"
	"github.com/kozaktomas/face-registry/internal/enroll"
	"github.com/kozaktomas/face-registry/internal/facematch"
	"github.com/kozaktomas/face-registry/internal/recognizer"
)

// openStore connects to PostgreSQL and returns the store, the underlying
// pool and a cleanup closure.
func openStore(cfg *config.Config) (*postgres.Store, *postgres.Pool, func(), error) {
	if cfg.Database.URL == "" {
		return nil, nil, nil, errors.New("DATABASE_URL environment variable is required")
	}

	pool, err := postgres.NewPool(&cfg.Database)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	return postgres.NewStore(pool), pool, func() { pool.Close() }, nil
}

// buildIndex prepares the in-memory HNSW index, restoring a persisted
// copy from indexPath when one exists and rebuilding from the store
// otherwise. Failure degrades to exhaustive store scans, never to an error.
func buildIndex(ctx context.Context, store database.Store, indexPath string) *database.HNSWIndex {
	index := database.NewHNSWIndex()

	if indexPath != "" {
		if err := index.Load(indexPath); err != nil {
			fmt.Printf("Warning: failed to load HNSW index from %s: %v\n", indexPath, err)
		} else if index.Ready() {
			fmt.Printf("HNSW index loaded from %s (%d embeddings)\n", indexPath, index.Count())
			return index
		}
	}

	var candidates []database.Candidate
	err := store.ScanCandidates(ctx, database.SpacePrimary, "", database.ScanBatchSize, func(batch []database.Candidate) error {
		candidates = append(candidates, batch...)
		return nil
	})
	if err != nil {
		fmt.Printf("Warning: failed to load candidates for the HNSW index: %v\n", err)
		fmt.Printf("Duplicate gate will use PostgreSQL scans (slower)\n")
		return index
	}

	if err := index.Build(candidates); err != nil {
		fmt.Printf("Warning: failed to build HNSW index: %v\n", err)
		return index
	}

	fmt.Printf("HNSW index built with %d embeddings\n", index.Count())
	return index
}

// newPipeline wires the recognition providers from config.
func newPipeline(cfg *config.Config) *enroll.Pipeline {
	handle := recognizer.NewHandle(func() (recognizer.Provider, error) {
		return recognizer.NewInsightProvider(cfg.Recognizer.URL, cfg.Recognizer.Timeout), nil
	})
	fast := recognizer.NewFastFaceProvider(cfg.FastFace.URL, cfg.FastFace.Timeout)
	return enroll.NewPipeline(handle, fast)
}

// newEngine assembles the matching engine over a freshly built index.
func newEngine(ctx context.Context, cfg *config.Config, store database.Store) *facematch.Engine {
	index := buildIndex(ctx, store, cfg.Database.HNSWIndexPath)
	return facematch.NewEngine(store, index, cfg.Spaces)
}
