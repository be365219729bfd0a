package database

// Embedding space names. The two spaces use incompatible models and are
// never compared against each other.
const (
	// SpacePrimary is the high-fidelity 512-dim face embedding space.
	SpacePrimary = "primary"

	// SpaceSecondary is the fast/local 128-dim face embedding space.
	SpaceSecondary = "secondary"
)

// Fixed embedding dimensions per space.
const (
	PrimaryDim   = 512
	SecondaryDim = 128
)

// SpaceDim returns the declared dimension for a space, or 0 if unknown.
func SpaceDim(space string) int {
	switch space {
	case SpacePrimary:
		return PrimaryDim
	case SpaceSecondary:
		return SecondaryDim
	}
	return 0
}

// ScanBatchSize is the number of candidates loaded per chunk during a
// corpus scan. The scan runs on every insert, so chunked loading keeps
// memory bounded as the registries grow.
const ScanBatchSize = 500

// HNSW index parameters for 512-dim face embeddings.
const (
	// HNSWMaxNeighbors (M) is the maximum number of neighbors per node.
	// Higher values improve recall but increase memory and build time.
	HNSWMaxNeighbors = 16

	// HNSWEfSearch is the search candidate pool size.
	HNSWEfSearch = 100

	// HNSWSearchMultiplier is the factor to request more candidates from
	// HNSW to ensure enough remain after distance filtering.
	HNSWSearchMultiplier = 3
)
