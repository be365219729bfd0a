package database

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/coder/hnsw"

	"github.com/kozaktomas/face-registry/internal/vecmath"
)

// registrySuffix names the sidecar file holding the code to registry map
// next to the exported graph.
const registrySuffix = ".registry"

// HNSWIndex wraps an in-memory HNSW graph over primary-space embeddings,
// keyed by record code. It accelerates the duplicate gate's best-match
// lookup; the exhaustive corpus scan remains the correctness baseline and
// the fallback when the index is not built.
type HNSWIndex struct {
	graph    *hnsw.Graph[string]
	registry map[string]Registry // code -> registry tag
	mu       sync.RWMutex
}

// NewHNSWIndex creates a new empty HNSW index.
func NewHNSWIndex() *HNSWIndex {
	return &HNSWIndex{
		registry: make(map[string]Registry),
	}
}

// Build replaces the index contents with the given candidates.
func (h *HNSWIndex) Build(candidates []Candidate) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(candidates) == 0 {
		h.graph = nil
		h.registry = make(map[string]Registry)
		return nil
	}

	g := hnsw.NewGraph[string]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors) // standard HNSW formula
	g.Distance = hnsw.CosineDistance

	h.registry = make(map[string]Registry, len(candidates))
	for i := range candidates {
		c := &candidates[i]
		if len(c.Embedding) == 0 || vecmath.IsZero(c.Embedding) {
			continue
		}
		g.Add(hnsw.MakeNode(c.Code, c.Embedding))
		h.registry[c.Code] = c.Registry
	}

	h.graph = g
	return nil
}

// Add inserts or replaces a single record in the index.
func (h *HNSWIndex) Add(c Candidate) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(c.Embedding) == 0 || vecmath.IsZero(c.Embedding) {
		return nil
	}
	if h.graph == nil {
		h.graph = hnsw.NewGraph[string]()
		h.graph.M = HNSWMaxNeighbors
		h.graph.Ml = 1.0 / float64(HNSWMaxNeighbors)
		h.graph.Distance = hnsw.CosineDistance
	}
	h.graph.Add(hnsw.MakeNode(c.Code, c.Embedding))
	h.registry[c.Code] = c.Registry
	return nil
}

// Remove deletes a record from the index. The graph node stays behind
// (HNSW has no true deletion) but Search filters it out via the registry
// map, so it never surfaces in results.
func (h *HNSWIndex) Remove(code string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.registry, code)
}

// Save persists the graph and registry map to disk. An empty path is a
// no-op; an empty index removes stale files instead.
func (h *HNSWIndex) Save(path string) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if path == "" {
		return nil
	}
	if h.graph == nil {
		_ = os.Remove(path)
		_ = os.Remove(path + registrySuffix)
		return nil
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating index file: %w", err)
	}
	defer f.Close()

	if err := h.graph.Export(f); err != nil {
		return fmt.Errorf("exporting graph: %w", err)
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(h.registry); err != nil {
		return fmt.Errorf("encoding registry map: %w", err)
	}
	if err := os.WriteFile(path+registrySuffix, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("writing registry map: %w", err)
	}
	return nil
}

// Load restores a previously saved index. A missing index file is not an
// error; the index stays empty and the caller rebuilds from the store.
func (h *HNSWIndex) Load(path string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	saved, err := hnsw.LoadSavedGraph[string](path)
	if err != nil {
		return fmt.Errorf("loading saved graph: %w", err)
	}

	data, err := os.ReadFile(path + registrySuffix)
	if err != nil {
		return fmt.Errorf("reading registry map: %w", err)
	}
	registry := make(map[string]Registry)
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&registry); err != nil {
		return fmt.Errorf("decoding registry map: %w", err)
	}

	h.graph = saved.Graph
	h.registry = registry
	return nil
}

// Ready reports whether the index has been built.
func (h *HNSWIndex) Ready() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.graph != nil
}

// Count returns the number of indexed records.
func (h *HNSWIndex) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.registry)
}

// Search finds the k approximate nearest neighbors of the query embedding,
// excluding excludeCode. Returned candidates carry their stored embeddings
// so callers can recompute exact distances.
func (h *HNSWIndex) Search(query []float32, k int, excludeCode string) ([]Candidate, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph == nil {
		return nil, errors.New("index not initialized")
	}

	// Request extra neighbors so exclusion and filtering leave enough.
	neighbors := h.graph.Search(query, k*HNSWSearchMultiplier)

	out := make([]Candidate, 0, k)
	for _, n := range neighbors {
		if n.Key == excludeCode {
			continue
		}
		reg, ok := h.registry[n.Key]
		if !ok {
			continue
		}
		out = append(out, Candidate{Code: n.Key, Registry: reg, Embedding: n.Value})
		if len(out) == k {
			break
		}
	}
	return out, nil
}
