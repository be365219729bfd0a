package database

import (
	"time"
)

// Registry identifies which of the two record collections a record lives in.
type Registry string

const (
	// RegistryUnidentified holds records for persons that have not been named yet.
	RegistryUnidentified Registry = "unidentified"

	// RegistryKnown holds named identity records.
	RegistryKnown Registry = "known"
)

// RecordStatus is the lifecycle state of an identity record.
type RecordStatus string

const (
	StatusActive   RecordStatus = "active"
	StatusResolved RecordStatus = "resolved" // merged into another record
	StatusArchived RecordStatus = "archived"
)

// IdentityRecord represents one registry entry: either an unidentified-person
// record or a known-identity record. A record carries at most one embedding
// per space; a stored embedding never changes dimension.
type IdentityRecord struct {
	Code          string       `json:"code"` // human-readable sequential code, e.g. "UP-000042"
	Registry      Registry     `json:"registry"`
	Name          string       `json:"name,omitempty"`           // known registry only, empty for unidentified
	Embedding     []float32    `json:"embedding,omitempty"`      // primary space (512-dim), nil if not computed
	EmbeddingFast []float32    `json:"embedding_fast,omitempty"` // secondary space (128-dim), nil if not computed
	Status        RecordStatus `json:"status"`
	ResolvedInto  string       `json:"resolved_into,omitempty"` // code of the record this one was merged into
	BBox          []float64    `json:"bbox,omitempty"`          // [x1, y1, x2, y2] detection box from enrollment
	DetScore      float64      `json:"det_score,omitempty"`     // detection confidence from enrollment
	CreatedAt     time.Time    `json:"created_at"`
}

// Matchable reports whether the record may appear as a match candidate.
// Archived and resolved records are permanently excluded from matching.
func (r *IdentityRecord) Matchable() bool {
	return r.Status == StatusActive
}

// EmbeddingIn returns the record's embedding in the named space, or nil.
func (r *IdentityRecord) EmbeddingIn(space string) []float32 {
	switch space {
	case SpacePrimary:
		return r.Embedding
	case SpaceSecondary:
		return r.EmbeddingFast
	}
	return nil
}

// MatchEdge is directed evidence that two records possibly represent the
// same person. At most one edge exists per ordered (source, target) pair;
// recomputation overwrites the edge in place.
type MatchEdge struct {
	SourceCode     string    `json:"source_code"`
	TargetCode     string    `json:"target_code"`
	TargetRegistry Registry  `json:"target_registry"`
	Distance       float64   `json:"distance"`
	Strict         bool      `json:"strict"` // within the inner threshold band (implies Weak)
	Weak           bool      `json:"weak"`   // within the outer threshold band
	ComputedAt     time.Time `json:"computed_at"`
}

// Candidate is one comparison target produced by a corpus scan:
// a matchable record carrying an embedding in the scanned space.
type Candidate struct {
	Code      string
	Registry  Registry
	Embedding []float32
}
