//go:build integration

package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kozaktomas/face-registry/internal/config"
	"github.com/kozaktomas/face-registry/internal/database"
)

func setupTestContainer(t *testing.T) (*Pool, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
		return nil, func() {}
	}
	if container == nil {
		t.Skip("Docker not available, skipping integration test")
		return nil, func() {}
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	dbURL := fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())

	cfg := &config.DatabaseConfig{
		URL:          dbURL,
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	}

	pool, err := NewPool(cfg)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to create pool: %v", err)
	}

	if err := pool.Migrate(ctx); err != nil {
		pool.Close()
		container.Terminate(ctx)
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		pool.Close()
		container.Terminate(ctx)
	}

	return pool, cleanup
}

func primaryVec(vals ...float32) []float32 {
	v := make([]float32, database.PrimaryDim)
	copy(v, vals)
	return v
}

func TestRecordRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	store := NewStore(pool)

	rec := &database.IdentityRecord{
		Registry:  database.RegistryUnidentified,
		Embedding: primaryVec(1),
		BBox:      []float64{10, 20, 110, 140},
		DetScore:  0.93,
	}
	if err := store.CreateRecord(ctx, rec); err != nil {
		t.Fatalf("CreateRecord failed: %v", err)
	}
	if rec.Code != "UP-000001" {
		t.Errorf("first unidentified code = %s, want UP-000001", rec.Code)
	}

	known := &database.IdentityRecord{
		Registry:  database.RegistryKnown,
		Name:      "Jan Novák",
		Embedding: primaryVec(0, 1),
	}
	if err := store.CreateRecord(ctx, known); err != nil {
		t.Fatalf("CreateRecord known failed: %v", err)
	}
	if known.Code != "KI-000001" {
		t.Errorf("first known code = %s, want KI-000001", known.Code)
	}

	got, err := store.GetRecord(ctx, rec.Code)
	if err != nil {
		t.Fatalf("GetRecord failed: %v", err)
	}
	if len(got.Embedding) != database.PrimaryDim || got.Embedding[0] != 1 {
		t.Errorf("round-tripped embedding corrupted: len %d", len(got.Embedding))
	}
	if got.EmbeddingFast != nil {
		t.Errorf("absent secondary embedding should come back nil, got len %d", len(got.EmbeddingFast))
	}
	if got.Status != database.StatusActive {
		t.Errorf("Status = %s, want active", got.Status)
	}

	// Diacritics-insensitive lookup.
	found, err := store.FindKnownByName(ctx, "jan-novak")
	if err != nil {
		t.Fatalf("FindKnownByName failed: %v", err)
	}
	if len(found) != 1 || found[0].Code != known.Code {
		t.Errorf("FindKnownByName = %+v, want [%s]", found, known.Code)
	}

	if _, err := store.GetRecord(ctx, "UP-999999"); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("GetRecord of missing code = %v, want ErrNotFound", err)
	}

	// Empty registry lists both registries, a named one filters.
	all, err := store.ListRecords(ctx, "")
	if err != nil {
		t.Fatalf("ListRecords failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("unfiltered ListRecords returned %d records, want 2", len(all))
	}
	onlyKnown, err := store.ListRecords(ctx, database.RegistryKnown)
	if err != nil {
		t.Fatalf("ListRecords failed: %v", err)
	}
	if len(onlyKnown) != 1 || onlyKnown[0].Code != known.Code {
		t.Errorf("known ListRecords = %+v, want [%s]", onlyKnown, known.Code)
	}
}

func TestCandidateScanAndStatusExclusion(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	store := NewStore(pool)

	codes := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		rec := &database.IdentityRecord{
			Registry:  database.RegistryUnidentified,
			Embedding: primaryVec(float32(i+1), 1),
		}
		if err := store.CreateRecord(ctx, rec); err != nil {
			t.Fatalf("CreateRecord failed: %v", err)
		}
		codes = append(codes, rec.Code)
	}
	// No primary embedding: must not appear in primary-space scans.
	noEmb := &database.IdentityRecord{Registry: database.RegistryUnidentified}
	if err := store.CreateRecord(ctx, noEmb); err != nil {
		t.Fatalf("CreateRecord failed: %v", err)
	}

	if err := store.ArchiveRecord(ctx, codes[2]); err != nil {
		t.Fatalf("ArchiveRecord failed: %v", err)
	}

	var seen []string
	err := store.ScanCandidates(ctx, database.SpacePrimary, codes[0], 2, func(batch []database.Candidate) error {
		for _, c := range batch {
			seen = append(seen, c.Code)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("ScanCandidates failed: %v", err)
	}
	if len(seen) != 1 || seen[0] != codes[1] {
		t.Errorf("scan saw %v, want only %s (exclusion, archive and missing embedding all filtered)", seen, codes[1])
	}

	count, err := store.CountCandidates(ctx, database.SpacePrimary, "")
	if err != nil {
		t.Fatalf("CountCandidates failed: %v", err)
	}
	if count != 2 {
		t.Errorf("CountCandidates = %d, want 2", count)
	}
}

func TestEdgeLedger(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	store := NewStore(pool)

	a := &database.IdentityRecord{Registry: database.RegistryUnidentified, Embedding: primaryVec(1)}
	b := &database.IdentityRecord{Registry: database.RegistryKnown, Embedding: primaryVec(0.8, 0.6)}
	for _, rec := range []*database.IdentityRecord{a, b} {
		if err := store.CreateRecord(ctx, rec); err != nil {
			t.Fatalf("CreateRecord failed: %v", err)
		}
	}

	edge := database.MatchEdge{
		SourceCode:     a.Code,
		TargetCode:     b.Code,
		TargetRegistry: b.Registry,
		Distance:       0.63,
		Strict:         true,
		Weak:           true,
	}
	if err := store.UpsertEdge(ctx, edge); err != nil {
		t.Fatalf("UpsertEdge failed: %v", err)
	}

	// Second upsert for the same pair overwrites in place.
	edge.Distance = 0.99
	edge.Strict = false
	if err := store.UpsertEdge(ctx, edge); err != nil {
		t.Fatalf("second UpsertEdge failed: %v", err)
	}

	from, err := store.EdgesFrom(ctx, a.Code)
	if err != nil {
		t.Fatalf("EdgesFrom failed: %v", err)
	}
	if len(from) != 1 {
		t.Fatalf("EdgesFrom returned %d edges, want 1 (upsert must not duplicate)", len(from))
	}
	if from[0].Distance != 0.99 || from[0].Strict {
		t.Errorf("edge not overwritten: %+v", from[0])
	}

	to, err := store.EdgesTo(ctx, b.Code)
	if err != nil {
		t.Fatalf("EdgesTo failed: %v", err)
	}
	if len(to) != 1 || to[0].SourceCode != a.Code {
		t.Errorf("EdgesTo = %+v, want one edge from %s", to, a.Code)
	}

	// Deleting the record cascades the edge away.
	if err := store.DeleteRecord(ctx, b.Code); err != nil {
		t.Fatalf("DeleteRecord failed: %v", err)
	}
	from, err = store.EdgesFrom(ctx, a.Code)
	if err != nil {
		t.Fatalf("EdgesFrom after delete failed: %v", err)
	}
	if len(from) != 0 {
		t.Errorf("edges survived endpoint deletion: %+v", from)
	}
}
