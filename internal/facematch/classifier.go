package facematch

import (
	"fmt"

	"github.com/kozaktomas/face-registry/internal/database"
	"github.com/kozaktomas/face-registry/internal/vecmath"
)

// SpaceMode selects how comparisons in a space are scored and classified.
type SpaceMode string

const (
	// ModeDistance classifies raw L2 distance against a strict and a weak
	// band (strict_max < weak_max).
	ModeDistance SpaceMode = "distance"

	// ModeSimilarity classifies cosine similarity against a single minimum;
	// no separate strict band is exposed in this mode.
	ModeSimilarity SpaceMode = "similarity"
)

// SpaceConfig holds one embedding space's dimension and threshold bands.
type SpaceConfig struct {
	Name string    `yaml:"name"`
	Dim  int       `yaml:"dim"`
	Mode SpaceMode `yaml:"mode"`

	// Distance mode bands (L2).
	StrictMax float64 `yaml:"strict_max"`
	WeakMax   float64 `yaml:"weak_max"`

	// Similarity mode band (cosine).
	MinSimilarity float64 `yaml:"min_similarity"`

	// Duplicate gate bounds. Either signal alone flags a duplicate.
	DuplicateMinSimilarity float64 `yaml:"duplicate_min_similarity"`
	DuplicateMaxDistance   float64 `yaml:"duplicate_max_distance"`
}

// Validate checks the config is internally consistent.
func (c *SpaceConfig) Validate() error {
	if c.Dim <= 0 {
		return fmt.Errorf("space %q: dimension must be positive", c.Name)
	}
	switch c.Mode {
	case ModeDistance:
		if c.StrictMax >= c.WeakMax {
			return fmt.Errorf("space %q: strict_max %.3f must be below weak_max %.3f", c.Name, c.StrictMax, c.WeakMax)
		}
	case ModeSimilarity:
		if c.MinSimilarity <= -1 || c.MinSimilarity > 1 {
			return fmt.Errorf("space %q: min_similarity %.3f out of range", c.Name, c.MinSimilarity)
		}
	default:
		return fmt.Errorf("space %q: unknown mode %q", c.Name, c.Mode)
	}
	return nil
}

// CheckDim validates a query embedding against the space's declared
// dimension. Zero-norm embeddings are rejected as carrying no signal.
func (c *SpaceConfig) CheckDim(embedding []float32) error {
	if len(embedding) != c.Dim {
		return &vecmath.DimensionMismatchError{Want: c.Dim, Got: len(embedding)}
	}
	if vecmath.IsZero(embedding) {
		return ErrNoSignal
	}
	return nil
}

// Score computes the comparison score between two embeddings per the
// space's mode: L2 distance in distance mode, cosine distance
// (1 - similarity) in similarity mode.
func (c *SpaceConfig) Score(a, b []float32) (float64, error) {
	if c.Mode == ModeSimilarity {
		return vecmath.CosineDistance(a, b)
	}
	return vecmath.L2Distance(a, b)
}

// Classify maps a score from Score to a match strength.
func (c *SpaceConfig) Classify(score float64) Strength {
	if c.Mode == ModeSimilarity {
		if 1-score >= c.MinSimilarity {
			return Weak
		}
		return NoMatch
	}
	if score < c.StrictMax {
		return Strict
	}
	if score < c.WeakMax {
		return Weak
	}
	return NoMatch
}

// Spaces maps space names to their configs.
type Spaces map[string]SpaceConfig

// Get returns the config for a space name.
func (s Spaces) Get(name string) (SpaceConfig, error) {
	cfg, ok := s[name]
	if !ok {
		return SpaceConfig{}, fmt.Errorf("%w: %q", database.ErrUnknownSpace, name)
	}
	return cfg, nil
}

// DefaultSpaces returns the built-in two-space configuration: the 512-dim
// primary space classified by L2 distance and the 128-dim secondary space
// classified by cosine similarity.
func DefaultSpaces() Spaces {
	return Spaces{
		database.SpacePrimary: {
			Name:                   database.SpacePrimary,
			Dim:                    database.PrimaryDim,
			Mode:                   ModeDistance,
			StrictMax:              0.90,
			WeakMax:                1.20,
			DuplicateMinSimilarity: 0.35,
			DuplicateMaxDistance:   1.30,
		},
		database.SpaceSecondary: {
			Name:                   database.SpaceSecondary,
			Dim:                    database.SecondaryDim,
			Mode:                   ModeSimilarity,
			MinSimilarity:          0.35,
			DuplicateMinSimilarity: 0.35,
			DuplicateMaxDistance:   0.65,
		},
	}
}
