package postgres

import (
	"context"
	"fmt"

	"github.com/kozaktomas/face-registry/internal/database"
)

// Migrate creates the schema: the records table holding both registries,
// the match edge ledger and the per-registry code sequences.
func (p *Pool) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	createRecords := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS records (
			code            VARCHAR(16) PRIMARY KEY,
			registry        VARCHAR(16) NOT NULL,
			name            VARCHAR(255) NOT NULL DEFAULT '',
			normalized_name VARCHAR(255) NOT NULL DEFAULT '',
			embedding       vector(%d),
			embedding_fast  vector(%d),
			status          VARCHAR(16) NOT NULL DEFAULT 'active',
			resolved_into   VARCHAR(16) NOT NULL DEFAULT '',
			bbox            DOUBLE PRECISION[],
			det_score       DOUBLE PRECISION NOT NULL DEFAULT 0,
			created_at      TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)
	`, database.PrimaryDim, database.SecondaryDim)

	if _, err := p.db.ExecContext(ctx, createRecords); err != nil {
		return fmt.Errorf("failed to create records table: %w", err)
	}

	createEdges := `
		CREATE TABLE IF NOT EXISTS match_edges (
			source_code     VARCHAR(16) NOT NULL REFERENCES records(code) ON DELETE CASCADE,
			target_code     VARCHAR(16) NOT NULL REFERENCES records(code) ON DELETE CASCADE,
			target_registry VARCHAR(16) NOT NULL,
			distance        DOUBLE PRECISION NOT NULL,
			strict          BOOLEAN NOT NULL,
			weak            BOOLEAN NOT NULL,
			computed_at     TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			PRIMARY KEY (source_code, target_code)
		)
	`
	if _, err := p.db.ExecContext(ctx, createEdges); err != nil {
		return fmt.Errorf("failed to create match_edges table: %w", err)
	}

	for _, stmt := range []string{
		"CREATE SEQUENCE IF NOT EXISTS up_code_seq",
		"CREATE SEQUENCE IF NOT EXISTS ki_code_seq",
		"CREATE INDEX IF NOT EXISTS records_registry_idx ON records(registry)",
		"CREATE INDEX IF NOT EXISTS records_normalized_name_idx ON records(normalized_name)",
		"CREATE INDEX IF NOT EXISTS match_edges_target_idx ON match_edges(target_code)",
	} {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration statement failed: %w", err)
		}
	}

	return nil
}

// CreateVectorIndexes creates the IVFFlat indexes for similarity search.
// Should be called once the table carries some data; on an empty table
// the index centroids are meaningless.
func (p *Pool) CreateVectorIndexes(ctx context.Context) error {
	for _, stmt := range []string{
		`CREATE INDEX IF NOT EXISTS records_embedding_idx
		 ON records USING ivfflat (embedding vector_l2_ops) WITH (lists = 100)`,
		`CREATE INDEX IF NOT EXISTS records_embedding_fast_idx
		 ON records USING ivfflat (embedding_fast vector_cosine_ops) WITH (lists = 100)`,
	} {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create vector index: %w", err)
		}
	}
	return nil
}
