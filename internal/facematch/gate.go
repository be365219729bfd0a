package facematch

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/kozaktomas/face-registry/internal/database"
	"github.com/kozaktomas/face-registry/internal/vecmath"
)

// gateSearchLimit is the number of approximate neighbors requested from
// the HNSW index when it is available. The gate only needs the single
// best match, so a small pool is enough.
const gateSearchLimit = 32

// DuplicateGate decides, before an operator commits a brand-new record,
// whether an existing record is close enough to be the same person.
//
// The decision is advisory: it is evaluated at request time and two
// concurrent enrollments can still both pass it. The per-space lock below
// serializes gate-check-and-insert within this process, but multi-process
// deployments still race. Callers must not rely on the gate as a hard
// uniqueness guarantee.
type DuplicateGate struct {
	corpus database.CorpusReader
	index  *database.HNSWIndex // optional accelerator, may be nil
	spaces Spaces

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewDuplicateGate creates a gate over the given corpus. index may be nil,
// in which case every check runs an exhaustive scan.
func NewDuplicateGate(corpus database.CorpusReader, index *database.HNSWIndex, spaces Spaces) *DuplicateGate {
	return &DuplicateGate{
		corpus: corpus,
		index:  index,
		spaces: spaces,
		locks:  make(map[string]*sync.Mutex),
	}
}

// Lock acquires the serializing lock for a space and returns the unlock
// function. Hold it across the whole gate-check-and-insert sequence.
func (g *DuplicateGate) Lock(space string) func() {
	g.mu.Lock()
	l, ok := g.locks[space]
	if !ok {
		l = &sync.Mutex{}
		g.locks[space] = l
	}
	g.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// Check scans the corpus for the record closest to the candidate embedding
// and decides whether it should block creation. excludeCode removes one
// record from consideration (re-verifying an existing record during edit).
//
// A candidate is flagged as duplicate when its cosine similarity reaches
// the space's duplicate minimum OR its distance falls below the space's
// duplicate maximum; either signal alone is enough.
func (g *DuplicateGate) Check(ctx context.Context, space string, embedding []float32, excludeCode string) (*GateDecision, error) {
	cfg, err := g.spaces.Get(space)
	if err != nil {
		return nil, err
	}
	if err := cfg.CheckDim(embedding); err != nil {
		return nil, err
	}

	best, err := g.bestMatch(ctx, cfg, embedding, excludeCode)
	if err != nil {
		return nil, fmt.Errorf("duplicate gate scan: %w", err)
	}
	if best == nil || best.bySimilarity == nil {
		return &GateDecision{}, nil
	}

	// Report the most similar candidate unless only the distance
	// criterion fires, then report its winner instead.
	pick := best.bySimilarity
	if pick.similarity < cfg.DuplicateMinSimilarity && best.byDistance.distance <= cfg.DuplicateMaxDistance {
		pick = best.byDistance
	}

	decision := &GateDecision{
		Similarity: pick.similarity,
		Distance:   pick.distance,
	}
	if pick.similarity >= cfg.DuplicateMinSimilarity || pick.distance <= cfg.DuplicateMaxDistance {
		decision.Duplicate = true
		decision.ExistingCode = pick.code
		decision.Registry = pick.registry
	}
	return decision, nil
}

type bestCandidate struct {
	code       string
	registry   database.Registry
	similarity float64
	distance   float64
}

// closestPair keeps the running winner per criterion. Similarity and
// distance rank candidates identically only for normalized embeddings,
// so neither winner may stand in for the other.
type closestPair struct {
	bySimilarity *bestCandidate
	byDistance   *bestCandidate
}

// bestMatch finds the single closest candidate, preferring the HNSW index
// when it is built and falling back to an exhaustive batched scan.
// Exact similarity and distance are always recomputed; the index only narrows
// the candidate set.
func (g *DuplicateGate) bestMatch(ctx context.Context, cfg SpaceConfig, embedding []float32, excludeCode string) (*closestPair, error) {
	if g.index != nil && g.index.Ready() && cfg.Name == database.SpacePrimary {
		candidates, err := g.index.Search(embedding, gateSearchLimit, excludeCode)
		if err == nil {
			return g.scanBatch(cfg, embedding, candidates, nil), nil
		}
		log.Printf("hnsw gate search failed, falling back to full scan: %v", err)
	}

	var best *closestPair
	err := g.corpus.ScanCandidates(ctx, cfg.Name, excludeCode, database.ScanBatchSize, func(batch []database.Candidate) error {
		best = g.scanBatch(cfg, embedding, batch, best)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return best, nil
}

// scanBatch folds one candidate batch into the running winners.
// Candidates with unusable embeddings are skipped, never fatal.
func (g *DuplicateGate) scanBatch(cfg SpaceConfig, embedding []float32, batch []database.Candidate, best *closestPair) *closestPair {
	for i := range batch {
		c := &batch[i]
		if len(c.Embedding) == 0 || vecmath.IsZero(c.Embedding) {
			continue
		}
		sim, err := vecmath.CosineSimilarity(embedding, c.Embedding)
		if err != nil {
			log.Printf("skipping candidate %s: %v", c.Code, err)
			continue
		}
		dist, err := vecmath.L2Distance(embedding, c.Embedding)
		if err != nil {
			continue
		}
		cand := &bestCandidate{code: c.Code, registry: c.Registry, similarity: sim, distance: dist}
		if best == nil {
			best = &closestPair{bySimilarity: cand, byDistance: cand}
			continue
		}
		if sim > best.bySimilarity.similarity || (sim == best.bySimilarity.similarity && dist < best.bySimilarity.distance) {
			best.bySimilarity = cand
		}
		if dist < best.byDistance.distance || (dist == best.byDistance.distance && sim > best.byDistance.similarity) {
			best.byDistance = cand
		}
	}
	return best
}
