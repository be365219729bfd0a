package database

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a record or edge does not exist.
var ErrNotFound = errors.New("record not found")

// ErrUnknownSpace is returned when an operation names an embedding space
// that is not declared.
var ErrUnknownSpace = errors.New("unknown embedding space")

// CorpusReader enumerates match candidates for an embedding space across
// both registries. Implementations must exclude archived and resolved
// records, records without an embedding in the space, and the optional
// exclude code (the record being compared or edited).
type CorpusReader interface {
	// ScanCandidates streams candidates in batches of at most batchSize.
	// The callback is invoked once per batch; returning an error aborts
	// the scan and propagates the error.
	ScanCandidates(ctx context.Context, space, excludeCode string, batchSize int, fn func([]Candidate) error) error

	// CountCandidates returns the number of candidates a scan would yield.
	CountCandidates(ctx context.Context, space, excludeCode string) (int, error)
}

// RecordReader provides read access to identity records in both registries.
type RecordReader interface {
	// GetRecord retrieves a record by code from either registry.
	GetRecord(ctx context.Context, code string) (*IdentityRecord, error)

	// ListRecords returns records newest first. An empty registry
	// lists both registries.
	ListRecords(ctx context.Context, registry Registry) ([]IdentityRecord, error)

	// FindKnownByName looks up known-identity records by normalized name.
	FindKnownByName(ctx context.Context, name string) ([]IdentityRecord, error)

	// CountRecords returns the number of records per registry.
	CountRecords(ctx context.Context, registry Registry) (int, error)
}

// RecordWriter provides write access to identity records.
type RecordWriter interface {
	RecordReader

	// CreateRecord inserts a new record and assigns its sequential code.
	// The record's Code field is populated on return.
	CreateRecord(ctx context.Context, record *IdentityRecord) error

	// ArchiveRecord marks a record archived and cascades its edges away.
	ArchiveRecord(ctx context.Context, code string) error

	// ResolveRecord marks a record as merged into another record and
	// cascades its edges away.
	ResolveRecord(ctx context.Context, code, intoCode string) error

	// DeleteRecord removes a record and cascades its edges away.
	DeleteRecord(ctx context.Context, code string) error
}

// EdgeLedger is the idempotent store of pairwise match evidence.
type EdgeLedger interface {
	// UpsertEdge inserts the edge or overwrites the existing edge for the
	// same ordered (source, target) pair. Last writer wins per pair.
	UpsertEdge(ctx context.Context, edge MatchEdge) error

	// EdgesFrom returns all edges whose source is the given record,
	// ordered by ascending distance.
	EdgesFrom(ctx context.Context, code string) ([]MatchEdge, error)

	// EdgesTo returns all edges whose target is the given record,
	// ordered by ascending distance.
	EdgesTo(ctx context.Context, code string) ([]MatchEdge, error)

	// DeleteEdgesFor removes every edge where the record appears as
	// source or target.
	DeleteEdgesFor(ctx context.Context, code string) error
}

// Store combines the full matching-engine storage contract.
type Store interface {
	CorpusReader
	RecordWriter
	EdgeLedger
}
