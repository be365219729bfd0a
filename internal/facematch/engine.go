package facematch

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/kozaktomas/face-registry/internal/database"
	"github.com/kozaktomas/face-registry/internal/vecmath"
)

// Engine orchestrates matching: it scans the corpus for a record's
// embedding, classifies every comparison, records edges in both directions
// and produces the caller-facing report.
//
// Edges are refreshed for the new pair bidirectionally rather than by
// recomputing every peer's entire match set; the two are equivalent for
// symmetry as long as stored embeddings are immutable. The sweep command
// covers the case where embeddings were edited out of band.
type Engine struct {
	store  database.Store
	index  *database.HNSWIndex // optional, kept in sync on registration
	spaces Spaces
	gate   *DuplicateGate
}

// NewEngine creates a matching engine over the given store. index may be
// nil to disable HNSW acceleration.
func NewEngine(store database.Store, index *database.HNSWIndex, spaces Spaces) *Engine {
	return &Engine{
		store:  store,
		index:  index,
		spaces: spaces,
		gate:   NewDuplicateGate(store, index, spaces),
	}
}

// Gate returns the engine's duplicate gate.
func (e *Engine) Gate() *DuplicateGate {
	return e.gate
}

// Spaces returns the engine's space configuration.
func (e *Engine) Spaces() Spaces {
	return e.spaces
}

// MatchRecord scans all other matchable records sharing the space,
// classifies each comparison and upserts an edge in both directions for
// every result at or above Weak. Per-candidate anomalies (zero-norm or
// mismatched stored embeddings) are collected as warnings, never aborting
// the scan. The operation is idempotent: re-running it against an
// unchanged corpus rewrites the same edges in place.
func (e *Engine) MatchRecord(ctx context.Context, record *database.IdentityRecord, space string) (*Report, error) {
	cfg, err := e.spaces.Get(space)
	if err != nil {
		return nil, err
	}
	embedding := record.EmbeddingIn(space)
	if err := cfg.CheckDim(embedding); err != nil {
		return nil, err
	}

	report := &Report{
		SourceCode:  record.Code,
		Space:       space,
		PerRegistry: make(map[database.Registry]RegistrySummary),
	}

	now := time.Now()
	err = e.store.ScanCandidates(ctx, space, record.Code, database.ScanBatchSize, func(batch []database.Candidate) error {
		for i := range batch {
			c := &batch[i]
			if vecmath.IsZero(c.Embedding) {
				report.Warnings = append(report.Warnings, fmt.Sprintf("candidate %s: zero-norm embedding, skipped", c.Code))
				continue
			}

			score, err := cfg.Score(embedding, c.Embedding)
			if err != nil {
				// Stored embedding violates the space dimension invariant.
				report.Warnings = append(report.Warnings, fmt.Sprintf("candidate %s: %v, skipped", c.Code, err))
				continue
			}

			strength := cfg.Classify(score)
			if strength == NoMatch {
				continue
			}

			match := Match{
				Code:     c.Code,
				Registry: c.Registry,
				Distance: score,
				Strength: strength,
				Strict:   strength == Strict,
				Weak:     true,
			}

			if err := e.upsertPair(ctx, record, c, match, now); err != nil {
				return err
			}

			report.Matches = append(report.Matches, match)
			summarize(report.PerRegistry, match)
			if match.Strict {
				report.Duplicate = true
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("match scan for %s: %w", record.Code, err)
	}

	return report, nil
}

// upsertPair writes the forward and reverse edges for one match so that
// both endpoints' match lists discover each other immediately.
func (e *Engine) upsertPair(ctx context.Context, record *database.IdentityRecord, c *database.Candidate, match Match, now time.Time) error {
	forward := database.MatchEdge{
		SourceCode:     record.Code,
		TargetCode:     c.Code,
		TargetRegistry: c.Registry,
		Distance:       match.Distance,
		Strict:         match.Strict,
		Weak:           true,
		ComputedAt:     now,
	}
	if err := e.store.UpsertEdge(ctx, forward); err != nil {
		return fmt.Errorf("upsert edge %s->%s: %w", record.Code, c.Code, err)
	}

	reverse := database.MatchEdge{
		SourceCode:     c.Code,
		TargetCode:     record.Code,
		TargetRegistry: record.Registry,
		Distance:       match.Distance,
		Strict:         match.Strict,
		Weak:           true,
		ComputedAt:     now,
	}
	if err := e.store.UpsertEdge(ctx, reverse); err != nil {
		return fmt.Errorf("upsert edge %s->%s: %w", c.Code, record.Code, err)
	}
	return nil
}

func summarize(perRegistry map[database.Registry]RegistrySummary, match Match) {
	summary := perRegistry[match.Registry]
	summary.Count++
	if summary.Best == nil || match.Distance < summary.Best.Distance {
		m := match
		summary.Best = &m
	}
	perRegistry[match.Registry] = summary
}

// Probe classifies an embedding against the corpus without persisting
// anything. It serves identification queries where the caller only wants
// to know who a face resembles.
func (e *Engine) Probe(ctx context.Context, space string, embedding []float32) (*Report, error) {
	cfg, err := e.spaces.Get(space)
	if err != nil {
		return nil, err
	}
	if err := cfg.CheckDim(embedding); err != nil {
		return nil, err
	}

	report := &Report{
		Space:       space,
		PerRegistry: make(map[database.Registry]RegistrySummary),
	}

	err = e.store.ScanCandidates(ctx, space, "", database.ScanBatchSize, func(batch []database.Candidate) error {
		for i := range batch {
			c := &batch[i]
			if vecmath.IsZero(c.Embedding) {
				report.Warnings = append(report.Warnings, fmt.Sprintf("candidate %s: zero-norm embedding, skipped", c.Code))
				continue
			}

			score, err := cfg.Score(embedding, c.Embedding)
			if err != nil {
				report.Warnings = append(report.Warnings, fmt.Sprintf("candidate %s: %v, skipped", c.Code, err))
				continue
			}

			strength := cfg.Classify(score)
			if strength == NoMatch {
				continue
			}

			match := Match{
				Code:     c.Code,
				Registry: c.Registry,
				Distance: score,
				Strength: strength,
				Strict:   strength == Strict,
				Weak:     true,
			}
			report.Matches = append(report.Matches, match)
			summarize(report.PerRegistry, match)
			if match.Strict {
				report.Duplicate = true
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("probe scan: %w", err)
	}

	return report, nil
}

// Register runs the full enrollment unit: duplicate gate, record creation,
// index update and the match sweep across every space the record carries
// an embedding in. The gate's per-space lock is held across check and
// insert so two concurrent registrations of the same face cannot both
// pass within this process.
//
// The primary-space report is returned; secondary-space matches are merged
// into it. When the gate blocks, a *DuplicateError carrying the decision
// is returned and nothing is persisted.
//
// Record creation and the match sweep are two separate store units: a
// sweep failure after the record committed leaves the record without
// edges. The sweep is retryable through a recompute of the record or a
// full corpus sweep, both of which overwrite edges idempotently.
func (e *Engine) Register(ctx context.Context, record *database.IdentityRecord) (*Report, error) {
	cfg, err := e.spaces.Get(database.SpacePrimary)
	if err != nil {
		return nil, err
	}
	if err := cfg.CheckDim(record.Embedding); err != nil {
		return nil, err
	}

	unlock := e.gate.Lock(database.SpacePrimary)
	defer unlock()

	decision, err := e.gate.Check(ctx, database.SpacePrimary, record.Embedding, "")
	if err != nil {
		return nil, err
	}
	if decision.Duplicate {
		return nil, &DuplicateError{Decision: *decision}
	}

	if err := e.store.CreateRecord(ctx, record); err != nil {
		return nil, fmt.Errorf("create record: %w", err)
	}

	if e.index != nil && e.index.Ready() {
		if err := e.index.Add(database.Candidate{Code: record.Code, Registry: record.Registry, Embedding: record.Embedding}); err != nil {
			// Index is an accelerator only; the store remains authoritative.
			log.Printf("failed to index %s: %v", record.Code, err)
		}
	}

	report, err := e.MatchRecord(ctx, record, database.SpacePrimary)
	if err != nil {
		return nil, err
	}

	if len(record.EmbeddingFast) > 0 {
		fast, err := e.MatchRecord(ctx, record, database.SpaceSecondary)
		if err != nil {
			report.Warnings = append(report.Warnings, fmt.Sprintf("secondary space match failed: %v", err))
		} else {
			mergeReports(report, fast)
		}
	}

	return report, nil
}

// mergeReports folds the secondary-space report into the primary report.
// Edges for the same pair in different spaces stay separate matches.
func mergeReports(dst, src *Report) {
	dst.Matches = append(dst.Matches, src.Matches...)
	dst.Warnings = append(dst.Warnings, src.Warnings...)
	if src.Duplicate {
		dst.Duplicate = true
	}
	for _, m := range src.Matches {
		summarize(dst.PerRegistry, m)
	}
}

// Sweep recomputes match evidence for every matchable record carrying an
// embedding in the space. It exists to heal the ledger after out-of-band
// edits; normal registration keeps evidence symmetric on its own. The
// progress callback, if non-nil, is invoked after each record.
func (e *Engine) Sweep(ctx context.Context, space string, progress func(done, total int)) (int, error) {
	cfg, err := e.spaces.Get(space)
	if err != nil {
		return 0, err
	}

	total, err := e.store.CountCandidates(ctx, space, "")
	if err != nil {
		return 0, fmt.Errorf("count candidates: %w", err)
	}

	done := 0
	err = e.store.ScanCandidates(ctx, space, "", database.ScanBatchSize, func(batch []database.Candidate) error {
		for i := range batch {
			c := &batch[i]
			rec, err := e.store.GetRecord(ctx, c.Code)
			if err != nil {
				return fmt.Errorf("load record %s: %w", c.Code, err)
			}
			if _, err := e.MatchRecord(ctx, rec, cfg.Name); err != nil {
				return err
			}
			done++
			if progress != nil {
				progress(done, total)
			}
		}
		return nil
	})
	if err != nil {
		return done, err
	}
	return done, nil
}
