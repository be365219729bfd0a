package handlers

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/kozaktomas/face-registry/internal/database"
)

const statsCacheTTL = 1 * time.Minute

// statsCache holds cached stats with expiry
type statsCache struct {
	mu        sync.RWMutex
	data      *StatsResponse
	expiresAt time.Time
}

func (c *statsCache) get() (*StatsResponse, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.data == nil || time.Now().After(c.expiresAt) {
		return nil, false
	}
	return c.data, true
}

func (c *statsCache) set(data *StatsResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = data
	c.expiresAt = time.Now().Add(statsCacheTTL)
}

func (c *statsCache) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = nil
}

// StatsHandler handles statistics endpoints
type StatsHandler struct {
	store database.Store
	index *database.HNSWIndex
	cache statsCache
}

// NewStatsHandler creates a new stats handler
func NewStatsHandler(store database.Store, index *database.HNSWIndex) *StatsHandler {
	return &StatsHandler{store: store, index: index}
}

// InvalidateCache clears the cached stats so the next request fetches fresh data
func (h *StatsHandler) InvalidateCache() {
	h.cache.invalidate()
}

// StatsResponse represents the statistics response
type StatsResponse struct {
	Unidentified      int  `json:"unidentified"`
	Known             int  `json:"known"`
	PrimaryCandidates int  `json:"primary_candidates"`
	FastCandidates    int  `json:"fast_candidates"`
	IndexReady        bool `json:"index_ready"`
	IndexedEmbeddings int  `json:"indexed_embeddings"`
}

// Get returns statistics about both registries and the vector index
func (h *StatsHandler) Get(w http.ResponseWriter, r *http.Request) {
	if cached, ok := h.cache.get(); ok {
		respondJSON(w, http.StatusOK, cached)
		return
	}

	ctx := r.Context()

	unidentified, err := h.store.CountRecords(ctx, database.RegistryUnidentified)
	if err != nil {
		log.Printf("counting unidentified records: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to collect stats")
		return
	}
	known, err := h.store.CountRecords(ctx, database.RegistryKnown)
	if err != nil {
		log.Printf("counting known records: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to collect stats")
		return
	}
	primary, err := h.store.CountCandidates(ctx, database.SpacePrimary, "")
	if err != nil {
		log.Printf("counting primary candidates: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to collect stats")
		return
	}
	fast, err := h.store.CountCandidates(ctx, database.SpaceSecondary, "")
	if err != nil {
		log.Printf("counting fast candidates: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to collect stats")
		return
	}

	stats := &StatsResponse{
		Unidentified: unidentified, Known: known,
		PrimaryCandidates: primary, FastCandidates: fast,
	}
	if h.index != nil {
		stats.IndexReady = h.index.Ready()
		stats.IndexedEmbeddings = h.index.Count()
	}

	h.cache.set(stats)
	respondJSON(w, http.StatusOK, stats)
}
