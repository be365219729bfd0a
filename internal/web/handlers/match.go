package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/face-registry/internal/database"
	"github.com/kozaktomas/face-registry/internal/enroll"
	"github.com/kozaktomas/face-registry/internal/facematch"
	"github.com/kozaktomas/face-registry/internal/recognizer"
	"github.com/kozaktomas/face-registry/internal/vecmath"
)

// MatchHandler handles match and identification endpoints.
type MatchHandler struct {
	store    database.Store
	engine   *facematch.Engine
	pipeline *enroll.Pipeline
}

// NewMatchHandler creates a new match handler.
func NewMatchHandler(store database.Store, engine *facematch.Engine, pipeline *enroll.Pipeline) *MatchHandler {
	return &MatchHandler{store: store, engine: engine, pipeline: pipeline}
}

// ProbeRequest is the body of an identification probe. Exactly one of
// Image or Embedding must be set.
type ProbeRequest struct {
	Image     string    `json:"image,omitempty"` // base64-encoded image bytes
	Embedding []float32 `json:"embedding,omitempty"`
	Space     string    `json:"space,omitempty"` // defaults to primary
}

// Probe identifies a face against the corpus without enrolling it.
func (h *MatchHandler) Probe(w http.ResponseWriter, r *http.Request) {
	var req ProbeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	space := req.Space
	if space == "" {
		space = database.SpacePrimary
	}

	embedding := req.Embedding
	if len(embedding) == 0 {
		if req.Image == "" {
			respondError(w, http.StatusBadRequest, "image or embedding is required")
			return
		}
		image, err := base64.StdEncoding.DecodeString(req.Image)
		if err != nil || len(image) == 0 {
			respondError(w, http.StatusBadRequest, "image must be base64-encoded")
			return
		}
		result, err := h.pipeline.Run(r.Context(), image)
		if err != nil {
			if errors.Is(err, recognizer.ErrNoFace) {
				respondError(w, http.StatusUnprocessableEntity, "no face detected")
				return
			}
			log.Printf("probe pipeline: %v", err)
			respondError(w, http.StatusBadGateway, "recognition provider failed")
			return
		}
		embedding = result.Observation.Embedding
		if space == database.SpaceSecondary {
			if result.FastEmbedding == nil {
				respondError(w, http.StatusBadGateway, "fast embedding unavailable")
				return
			}
			embedding = result.FastEmbedding
		}
	}

	report, err := h.engine.Probe(r.Context(), space, embedding)
	if err != nil {
		h.respondMatchError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, report)
}

// Recompute re-runs the match scan for one stored record and persists the
// refreshed edges. Space defaults to primary, "all" covers every space the
// record has an embedding in.
func (h *MatchHandler) Recompute(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	space := r.URL.Query().Get("space")
	if space == "" {
		space = database.SpacePrimary
	}

	record, err := h.store.GetRecord(r.Context(), code)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, "record not found")
			return
		}
		log.Printf("getting record %s: %v", sanitizeForLog(code), err)
		respondError(w, http.StatusInternalServerError, "failed to get record")
		return
	}
	if !record.Matchable() {
		respondError(w, http.StatusConflict, "record is not active")
		return
	}

	spaces := []string{space}
	if space == "all" {
		spaces = spaces[:0]
		if len(record.Embedding) > 0 {
			spaces = append(spaces, database.SpacePrimary)
		}
		if len(record.EmbeddingFast) > 0 {
			spaces = append(spaces, database.SpaceSecondary)
		}
	}

	var combined *facematch.Report
	for _, s := range spaces {
		report, err := h.engine.MatchRecord(r.Context(), record, s)
		if err != nil {
			h.respondMatchError(w, err)
			return
		}
		if combined == nil {
			combined = report
		} else {
			mergeInto(combined, report)
		}
	}
	if combined == nil {
		respondError(w, http.StatusConflict, "record carries no embedding")
		return
	}

	respondJSON(w, http.StatusOK, combined)
}

func mergeInto(dst, src *facematch.Report) {
	dst.Matches = append(dst.Matches, src.Matches...)
	dst.Warnings = append(dst.Warnings, src.Warnings...)
	if src.Duplicate {
		dst.Duplicate = true
	}
	for registry, summary := range src.PerRegistry {
		existing := dst.PerRegistry[registry]
		existing.Count += summary.Count
		if existing.Best == nil || (summary.Best != nil && summary.Best.Distance < existing.Best.Distance) {
			existing.Best = summary.Best
		}
		dst.PerRegistry[registry] = existing
	}
}

// CheckDuplicate runs the duplicate gate for an embedding without
// registering it.
func (h *MatchHandler) CheckDuplicate(w http.ResponseWriter, r *http.Request) {
	var req ProbeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if len(req.Embedding) == 0 {
		respondError(w, http.StatusBadRequest, "embedding is required")
		return
	}

	space := req.Space
	if space == "" {
		space = database.SpacePrimary
	}

	decision, err := h.engine.Gate().Check(r.Context(), space, req.Embedding, "")
	if err != nil {
		h.respondMatchError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, decision)
}

func (h *MatchHandler) respondMatchError(w http.ResponseWriter, err error) {
	var dimErr *vecmath.DimensionMismatchError
	switch {
	case errors.As(err, &dimErr):
		respondError(w, http.StatusBadRequest, dimErr.Error())
	case errors.Is(err, facematch.ErrNoSignal):
		respondError(w, http.StatusBadRequest, "embedding carries no signal")
	case errors.Is(err, database.ErrUnknownSpace):
		respondError(w, http.StatusBadRequest, "unknown embedding space")
	default:
		log.Printf("match: %v", err)
		respondError(w, http.StatusInternalServerError, "match failed")
	}
}
