package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kozaktomas/face-registry/internal/database"
)

// EdgeRepository handles database operations for the match edge ledger.
type EdgeRepository struct {
	pool *Pool
}

// NewEdgeRepository creates a new edge repository.
func NewEdgeRepository(pool *Pool) *EdgeRepository {
	return &EdgeRepository{pool: pool}
}

// UpsertEdge inserts the edge or overwrites the existing edge for the
// same ordered (source, target) pair. The primary key on the pair makes
// the write last-writer-wins and duplicate-free.
func (r *EdgeRepository) UpsertEdge(ctx context.Context, edge database.MatchEdge) error {
	computedAt := edge.ComputedAt
	if computedAt.IsZero() {
		computedAt = time.Now()
	}

	_, err := r.pool.db.ExecContext(ctx, `
		INSERT INTO match_edges (source_code, target_code, target_registry, distance, strict, weak, computed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (source_code, target_code) DO UPDATE SET
			target_registry = EXCLUDED.target_registry,
			distance = EXCLUDED.distance,
			strict = EXCLUDED.strict,
			weak = EXCLUDED.weak,
			computed_at = EXCLUDED.computed_at
	`,
		edge.SourceCode,
		edge.TargetCode,
		string(edge.TargetRegistry),
		edge.Distance,
		edge.Strict,
		edge.Weak,
		computedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert edge %s->%s: %w", edge.SourceCode, edge.TargetCode, err)
	}
	return nil
}

// EdgesFrom returns all edges whose source is the given record, ordered
// by ascending distance.
func (r *EdgeRepository) EdgesFrom(ctx context.Context, code string) ([]database.MatchEdge, error) {
	return r.query(ctx, "source_code", code)
}

// EdgesTo returns all edges whose target is the given record, ordered by
// ascending distance.
func (r *EdgeRepository) EdgesTo(ctx context.Context, code string) ([]database.MatchEdge, error) {
	return r.query(ctx, "target_code", code)
}

func (r *EdgeRepository) query(ctx context.Context, column, code string) ([]database.MatchEdge, error) {
	rows, err := r.pool.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT source_code, target_code, target_registry, distance, strict, weak, computed_at
		FROM match_edges
		WHERE %s = $1
		ORDER BY distance
	`, column), code)
	if err != nil {
		return nil, fmt.Errorf("query edges: %w", err)
	}
	defer rows.Close()

	return collectEdges(rows)
}

// DeleteEdgesFor removes every edge where the record appears as source
// or target.
func (r *EdgeRepository) DeleteEdgesFor(ctx context.Context, code string) error {
	_, err := r.pool.db.ExecContext(ctx,
		"DELETE FROM match_edges WHERE source_code = $1 OR target_code = $1", code)
	if err != nil {
		return fmt.Errorf("delete edges for %s: %w", code, err)
	}
	return nil
}

func collectEdges(rows *sql.Rows) ([]database.MatchEdge, error) {
	var out []database.MatchEdge
	for rows.Next() {
		var e database.MatchEdge
		var registry string
		if err := rows.Scan(&e.SourceCode, &e.TargetCode, &registry, &e.Distance, &e.Strict, &e.Weak, &e.ComputedAt); err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		e.TargetRegistry = database.Registry(registry)
		out = append(out, e)
	}
	return out, rows.Err()
}
