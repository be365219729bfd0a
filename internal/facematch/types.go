// Package facematch implements the identity matching engine: threshold
// classification, the pre-insert duplicate gate, and the orchestrator that
// keeps pairwise match evidence consistent as records are added.
package facematch

import (
	"errors"

	"github.com/kozaktomas/face-registry/internal/database"
)

// ErrNoSignal is returned when a query embedding has zero norm and
// therefore carries no usable identity signal.
var ErrNoSignal = errors.New("zero-norm embedding carries no signal")

// Strength classifies how close two embeddings are.
type Strength int

const (
	// NoMatch means the comparison fell outside the outer band; no edge
	// is recorded for it.
	NoMatch Strength = iota

	// Weak means a possible match that needs human review.
	Weak

	// Strict means very-high-confidence same-person evidence.
	// Strict implies Weak.
	Strict
)

func (s Strength) String() string {
	switch s {
	case Strict:
		return "strict"
	case Weak:
		return "weak"
	}
	return "no_match"
}

// Match is one recorded comparison result at or above Weak.
type Match struct {
	Code     string            `json:"code"`
	Registry database.Registry `json:"registry"`
	Distance float64           `json:"distance"`
	Strength Strength          `json:"-"`
	Strict   bool              `json:"strict"`
	Weak     bool              `json:"weak"`
}

// RegistrySummary aggregates matches within one registry.
type RegistrySummary struct {
	Count int    `json:"count"`
	Best  *Match `json:"best,omitempty"` // lowest distance
}

// Report is the outcome of matching one record against the corpus.
type Report struct {
	SourceCode  string                                `json:"source_code"`
	Space       string                                `json:"space"`
	Duplicate   bool                                  `json:"duplicate"` // true if any Strict match was found
	Matches     []Match                               `json:"all_matches"`
	PerRegistry map[database.Registry]RegistrySummary `json:"best_match_per_registry"`
	Warnings    []string                              `json:"warnings,omitempty"`
}

// GateDecision is the duplicate gate's verdict for a candidate embedding.
type GateDecision struct {
	Duplicate    bool              `json:"duplicate"`
	ExistingCode string            `json:"existing_code,omitempty"`
	Registry     database.Registry `json:"registry,omitempty"`
	Similarity   float64           `json:"similarity"`
	Distance     float64           `json:"distance"`
}

// DuplicateError is returned when the gate blocks a registration.
type DuplicateError struct {
	Decision GateDecision
}

func (e *DuplicateError) Error() string {
	return "duplicate of existing record " + e.Decision.ExistingCode
}
