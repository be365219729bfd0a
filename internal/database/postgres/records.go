package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/kozaktomas/face-registry/internal/database"
	"github.com/kozaktomas/face-registry/internal/facematch"
)

// RecordRepository handles database operations for identity records.
type RecordRepository struct {
	pool *Pool
}

// NewRecordRepository creates a new record repository.
func NewRecordRepository(pool *Pool) *RecordRepository {
	return &RecordRepository{pool: pool}
}

const recordColumns = `code, registry, name, embedding::text, embedding_fast::text,
	status, resolved_into, bbox, det_score, created_at`

// CreateRecord inserts a new record and assigns its sequential code from
// the registry's sequence.
func (r *RecordRepository) CreateRecord(ctx context.Context, record *database.IdentityRecord) error {
	seq, prefix := "up_code_seq", "UP"
	if record.Registry == database.RegistryKnown {
		seq, prefix = "ki_code_seq", "KI"
	}

	tx, err := r.pool.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var n int64
	if err := tx.QueryRowContext(ctx, fmt.Sprintf("SELECT nextval('%s')", seq)).Scan(&n); err != nil {
		return fmt.Errorf("next code: %w", err)
	}
	record.Code = fmt.Sprintf("%s-%06d", prefix, n)
	if record.Status == "" {
		record.Status = database.StatusActive
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO records (code, registry, name, normalized_name, embedding, embedding_fast, status, bbox, det_score)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		record.Code,
		string(record.Registry),
		record.Name,
		facematch.NormalizePersonName(record.Name),
		vectorParam(record.Embedding),
		vectorParam(record.EmbeddingFast),
		string(record.Status),
		pq.Array(record.BBox),
		record.DetScore,
	)
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}

	if err := tx.QueryRowContext(ctx, "SELECT created_at FROM records WHERE code = $1", record.Code).Scan(&record.CreatedAt); err != nil {
		return fmt.Errorf("read created_at: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// GetRecord retrieves a record by code from either registry.
func (r *RecordRepository) GetRecord(ctx context.Context, code string) (*database.IdentityRecord, error) {
	row := r.pool.db.QueryRowContext(ctx,
		"SELECT "+recordColumns+" FROM records WHERE code = $1", code)

	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	return rec, nil
}

// ListRecords returns records newest first. An empty registry lists both
// registries.
func (r *RecordRepository) ListRecords(ctx context.Context, registry database.Registry) ([]database.IdentityRecord, error) {
	query := "SELECT " + recordColumns + " FROM records"
	args := []any{}
	if registry != "" {
		query += " WHERE registry = $1"
		args = append(args, string(registry))
	}
	query += " ORDER BY created_at DESC, code DESC"

	rows, err := r.pool.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	return collectRecords(rows)
}

// FindKnownByName looks up known-identity records by normalized name.
func (r *RecordRepository) FindKnownByName(ctx context.Context, name string) ([]database.IdentityRecord, error) {
	rows, err := r.pool.db.QueryContext(ctx,
		"SELECT "+recordColumns+" FROM records WHERE registry = $1 AND normalized_name = $2",
		string(database.RegistryKnown), facematch.NormalizePersonName(name))
	if err != nil {
		return nil, fmt.Errorf("find by name: %w", err)
	}
	defer rows.Close()

	return collectRecords(rows)
}

// CountRecords returns the number of records in a registry.
func (r *RecordRepository) CountRecords(ctx context.Context, registry database.Registry) (int, error) {
	var count int
	err := r.pool.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM records WHERE registry = $1", string(registry)).Scan(&count)
	return count, err
}

// ArchiveRecord marks a record archived and cascades its edges away.
func (r *RecordRepository) ArchiveRecord(ctx context.Context, code string) error {
	return r.setStatus(ctx, code, database.StatusArchived, "")
}

// ResolveRecord marks a record merged into another and cascades its edges away.
func (r *RecordRepository) ResolveRecord(ctx context.Context, code, intoCode string) error {
	if _, err := r.GetRecord(ctx, intoCode); err != nil {
		return err
	}
	return r.setStatus(ctx, code, database.StatusResolved, intoCode)
}

// setStatus updates a record's lifecycle state and removes its edges in
// one transaction; an archived or resolved record must never linger in
// anyone's match list.
func (r *RecordRepository) setStatus(ctx context.Context, code string, status database.RecordStatus, resolvedInto string) error {
	tx, err := r.pool.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"UPDATE records SET status = $1, resolved_into = $2 WHERE code = $3",
		string(status), resolvedInto, code)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return database.ErrNotFound
	}

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM match_edges WHERE source_code = $1 OR target_code = $1", code); err != nil {
		return fmt.Errorf("delete edges: %w", err)
	}

	return tx.Commit()
}

// DeleteRecord removes a record; edges cascade via the foreign keys.
func (r *RecordRepository) DeleteRecord(ctx context.Context, code string) error {
	res, err := r.pool.db.ExecContext(ctx, "DELETE FROM records WHERE code = $1", code)
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return database.ErrNotFound
	}
	return nil
}

// ScanCandidates streams matchable records carrying an embedding in the
// space, in batches, via keyset pagination on code.
func (r *RecordRepository) ScanCandidates(ctx context.Context, space, excludeCode string, batchSize int, fn func([]database.Candidate) error) error {
	column, err := spaceColumn(space)
	if err != nil {
		return err
	}
	if batchSize <= 0 {
		batchSize = database.ScanBatchSize
	}

	after := ""
	for {
		batch, err := r.candidateBatch(ctx, column, excludeCode, after, batchSize)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}
		if err := fn(batch); err != nil {
			return err
		}
		if len(batch) < batchSize {
			return nil
		}
		after = batch[len(batch)-1].Code
	}
}

func (r *RecordRepository) candidateBatch(ctx context.Context, column, excludeCode, after string, limit int) ([]database.Candidate, error) {
	query := fmt.Sprintf(`
		SELECT code, registry, %s
		FROM records
		WHERE %s IS NOT NULL AND status = $1 AND code != $2 AND code > $3
		ORDER BY code
		LIMIT $4
	`, column, column)

	rows, err := r.pool.db.QueryContext(ctx, query, string(database.StatusActive), excludeCode, after, limit)
	if err != nil {
		return nil, fmt.Errorf("scan candidates: %w", err)
	}
	defer rows.Close()

	var out []database.Candidate
	for rows.Next() {
		var c database.Candidate
		var registry string
		var vec pgvector.Vector
		if err := rows.Scan(&c.Code, &registry, &vec); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		c.Registry = database.Registry(registry)
		c.Embedding = vec.Slice()
		out = append(out, c)
	}
	return out, rows.Err()
}

// CountCandidates returns the number of candidates a scan would yield.
func (r *RecordRepository) CountCandidates(ctx context.Context, space, excludeCode string) (int, error) {
	column, err := spaceColumn(space)
	if err != nil {
		return 0, err
	}
	var count int
	err = r.pool.db.QueryRowContext(ctx, fmt.Sprintf(
		"SELECT COUNT(*) FROM records WHERE %s IS NOT NULL AND status = $1 AND code != $2", column),
		string(database.StatusActive), excludeCode).Scan(&count)
	return count, err
}

func spaceColumn(space string) (string, error) {
	switch space {
	case database.SpacePrimary:
		return "embedding", nil
	case database.SpaceSecondary:
		return "embedding_fast", nil
	}
	return "", database.ErrUnknownSpace
}

// vectorParam converts an embedding to an insert parameter, preserving
// NULL for absent embeddings.
func vectorParam(embedding []float32) any {
	if len(embedding) == 0 {
		return nil
	}
	return pgvector.NewVector(embedding)
}

// scanRecord reads one record row. Embedding columns arrive as text so
// NULL stays distinguishable from an empty vector.
func scanRecord(row *sql.Row) (*database.IdentityRecord, error) {
	var rec database.IdentityRecord
	var registry, status string
	var emb, fast sql.NullString
	var bbox pq.Float64Array

	err := row.Scan(&rec.Code, &registry, &rec.Name, &emb, &fast, &status, &rec.ResolvedInto, &bbox, &rec.DetScore, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	rec.Registry = database.Registry(registry)
	rec.Status = database.RecordStatus(status)
	rec.BBox = bbox
	if rec.Embedding, err = parseVectorText(emb); err != nil {
		return nil, err
	}
	if rec.EmbeddingFast, err = parseVectorText(fast); err != nil {
		return nil, err
	}
	return &rec, nil
}

func collectRecords(rows *sql.Rows) ([]database.IdentityRecord, error) {
	var out []database.IdentityRecord
	for rows.Next() {
		var rec database.IdentityRecord
		var registry, status string
		var emb, fast sql.NullString
		var bbox pq.Float64Array

		err := rows.Scan(&rec.Code, &registry, &rec.Name, &emb, &fast, &status, &rec.ResolvedInto, &bbox, &rec.DetScore, &rec.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec.Registry = database.Registry(registry)
		rec.Status = database.RecordStatus(status)
		rec.BBox = bbox
		if rec.Embedding, err = parseVectorText(emb); err != nil {
			return nil, err
		}
		if rec.EmbeddingFast, err = parseVectorText(fast); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// parseVectorText parses pgvector's text form "[1,2,3]" into a slice.
func parseVectorText(s sql.NullString) ([]float32, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	trimmed := strings.Trim(s.String, "[]")
	if trimmed == "" {
		return nil, nil
	}
	parts := strings.Split(trimmed, ",")
	out := make([]float32, len(parts))
	for i, part := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 32)
		if err != nil {
			return nil, fmt.Errorf("parse vector component %q: %w", part, err)
		}
		out[i] = float32(f)
	}
	return out, nil
}
