// Package mock provides an in-memory implementation of the database
// interfaces for testing.
package mock

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kozaktomas/face-registry/internal/database"
	"github.com/kozaktomas/face-registry/internal/facematch"
)

type edgeKey struct {
	source string
	target string
}

// Store is an in-memory implementation of database.Store.
type Store struct {
	mu      sync.RWMutex
	records map[string]*database.IdentityRecord
	edges   map[edgeKey]database.MatchEdge
	nextUP  int
	nextKI  int

	// Error injection
	ScanError   error
	CreateError error
	UpsertError error
}

// NewStore creates a new empty in-memory store.
func NewStore() *Store {
	return &Store{
		records: make(map[string]*database.IdentityRecord),
		edges:   make(map[edgeKey]database.MatchEdge),
	}
}

// AddRecord inserts a record directly, bypassing code assignment.
// Test helper for seeding a corpus with fixed codes.
func (s *Store) AddRecord(rec database.IdentityRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.Status == "" {
		rec.Status = database.StatusActive
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	s.records[rec.Code] = &rec
}

// EdgeCount returns the number of stored edges. Test helper.
func (s *Store) EdgeCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.edges)
}

// ScanCandidates streams matchable records carrying an embedding in the
// given space, in batches.
func (s *Store) ScanCandidates(ctx context.Context, space, excludeCode string, batchSize int, fn func([]database.Candidate) error) error {
	if s.ScanError != nil {
		return s.ScanError
	}
	if database.SpaceDim(space) == 0 {
		return database.ErrUnknownSpace
	}
	if batchSize <= 0 {
		batchSize = database.ScanBatchSize
	}

	candidates := s.candidates(space, excludeCode)

	for start := 0; start < len(candidates); start += batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+batchSize, len(candidates))
		if err := fn(candidates[start:end]); err != nil {
			return err
		}
	}
	return nil
}

// CountCandidates returns the number of candidates a scan would yield.
func (s *Store) CountCandidates(ctx context.Context, space, excludeCode string) (int, error) {
	if database.SpaceDim(space) == 0 {
		return 0, database.ErrUnknownSpace
	}
	return len(s.candidates(space, excludeCode)), nil
}

func (s *Store) candidates(space, excludeCode string) []database.Candidate {
	s.mu.RLock()
	defer s.mu.RUnlock()

	codes := make([]string, 0, len(s.records))
	for code := range s.records {
		codes = append(codes, code)
	}
	sort.Strings(codes) // deterministic scan order for tests

	var out []database.Candidate
	for _, code := range codes {
		rec := s.records[code]
		if code == excludeCode || !rec.Matchable() {
			continue
		}
		emb := rec.EmbeddingIn(space)
		if len(emb) == 0 {
			continue
		}
		out = append(out, database.Candidate{Code: code, Registry: rec.Registry, Embedding: emb})
	}
	return out
}

// GetRecord retrieves a record by code.
func (s *Store) GetRecord(ctx context.Context, code string) (*database.IdentityRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[code]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

// ListRecords returns records newest first. An empty registry lists both
// registries.
func (s *Store) ListRecords(ctx context.Context, registry database.Registry) ([]database.IdentityRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []database.IdentityRecord
	for _, rec := range s.records {
		if registry == "" || rec.Registry == registry {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Code > out[j].Code
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// FindKnownByName looks up known-identity records by normalized name.
func (s *Store) FindKnownByName(ctx context.Context, name string) ([]database.IdentityRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	want := facematch.NormalizePersonName(name)
	var out []database.IdentityRecord
	for _, rec := range s.records {
		if rec.Registry != database.RegistryKnown {
			continue
		}
		if facematch.NormalizePersonName(rec.Name) == want {
			out = append(out, *rec)
		}
	}
	return out, nil
}

// CountRecords returns the number of records in a registry.
func (s *Store) CountRecords(ctx context.Context, registry database.Registry) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, rec := range s.records {
		if rec.Registry == registry {
			count++
		}
	}
	return count, nil
}

// CreateRecord inserts a new record and assigns its sequential code.
func (s *Store) CreateRecord(ctx context.Context, record *database.IdentityRecord) error {
	if s.CreateError != nil {
		return s.CreateError
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if record.Registry == database.RegistryKnown {
		s.nextKI++
		record.Code = fmt.Sprintf("KI-%06d", s.nextKI)
	} else {
		s.nextUP++
		record.Code = fmt.Sprintf("UP-%06d", s.nextUP)
	}
	if record.Status == "" {
		record.Status = database.StatusActive
	}
	record.CreatedAt = time.Now()

	cp := *record
	s.records[record.Code] = &cp
	return nil
}

// ArchiveRecord marks a record archived and removes its edges.
func (s *Store) ArchiveRecord(ctx context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[code]
	if !ok {
		return database.ErrNotFound
	}
	rec.Status = database.StatusArchived
	s.deleteEdgesLocked(code)
	return nil
}

// ResolveRecord marks a record as merged into another and removes its edges.
func (s *Store) ResolveRecord(ctx context.Context, code, intoCode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[code]
	if !ok {
		return database.ErrNotFound
	}
	if _, ok := s.records[intoCode]; !ok {
		return database.ErrNotFound
	}
	rec.Status = database.StatusResolved
	rec.ResolvedInto = intoCode
	s.deleteEdgesLocked(code)
	return nil
}

// DeleteRecord removes a record and its edges.
func (s *Store) DeleteRecord(ctx context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[code]; !ok {
		return database.ErrNotFound
	}
	delete(s.records, code)
	s.deleteEdgesLocked(code)
	return nil
}

// UpsertEdge inserts or overwrites the edge for the ordered pair.
func (s *Store) UpsertEdge(ctx context.Context, edge database.MatchEdge) error {
	if s.UpsertError != nil {
		return s.UpsertError
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if edge.ComputedAt.IsZero() {
		edge.ComputedAt = time.Now()
	}
	s.edges[edgeKey{edge.SourceCode, edge.TargetCode}] = edge
	return nil
}

// EdgesFrom returns edges with the given source, by ascending distance.
func (s *Store) EdgesFrom(ctx context.Context, code string) ([]database.MatchEdge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []database.MatchEdge
	for k, e := range s.edges {
		if k.source == code {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	return out, nil
}

// EdgesTo returns edges with the given target, by ascending distance.
func (s *Store) EdgesTo(ctx context.Context, code string) ([]database.MatchEdge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []database.MatchEdge
	for k, e := range s.edges {
		if k.target == code {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	return out, nil
}

// DeleteEdgesFor removes every edge touching the record.
func (s *Store) DeleteEdgesFor(ctx context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteEdgesLocked(code)
	return nil
}

func (s *Store) deleteEdgesLocked(code string) {
	for k := range s.edges {
		if k.source == code || k.target == code {
			delete(s.edges, k)
		}
	}
}
