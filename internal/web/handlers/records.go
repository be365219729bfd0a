package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/face-registry/internal/database"
)

// RecordsHandler handles identity record endpoints.
type RecordsHandler struct {
	store database.Store
	index *database.HNSWIndex
}

// NewRecordsHandler creates a new records handler.
func NewRecordsHandler(store database.Store, index *database.HNSWIndex) *RecordsHandler {
	return &RecordsHandler{store: store, index: index}
}

// List returns all records, optionally filtered by registry.
func (h *RecordsHandler) List(w http.ResponseWriter, r *http.Request) {
	registry := database.Registry(r.URL.Query().Get("registry"))
	if registry != "" && registry != database.RegistryUnidentified && registry != database.RegistryKnown {
		respondError(w, http.StatusBadRequest, "unknown registry")
		return
	}

	records, err := h.store.ListRecords(r.Context(), registry)
	if err != nil {
		log.Printf("listing records: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to list records")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"records": records,
		"count":   len(records),
	})
}

// Get returns a single record by code.
func (h *RecordsHandler) Get(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

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

	respondJSON(w, http.StatusOK, record)
}

// FindByName looks up known identities by display name. The lookup is
// diacritics and case insensitive.
func (h *RecordsHandler) FindByName(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}

	records, err := h.store.FindKnownByName(r.Context(), name)
	if err != nil {
		log.Printf("finding identity by name: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to search identities")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"records": records,
		"count":   len(records),
	})
}

// Archive marks a record archived. Archived records stop participating in
// matching and their ledger entries are removed.
func (h *RecordsHandler) Archive(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	if err := h.store.ArchiveRecord(r.Context(), code); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, "record not found")
			return
		}
		log.Printf("archiving record %s: %v", sanitizeForLog(code), err)
		respondError(w, http.StatusInternalServerError, "failed to archive record")
		return
	}
	h.index.Remove(code)

	respondJSON(w, http.StatusOK, map[string]string{"code": code, "status": string(database.StatusArchived)})
}

// ResolveRequest is the body of a resolve call.
type ResolveRequest struct {
	Into string `json:"into"`
}

// Resolve marks an unidentified record as resolved into a known identity.
func (h *RecordsHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	var req ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.Into == "" {
		respondError(w, http.StatusBadRequest, "into is required")
		return
	}

	target, err := h.store.GetRecord(r.Context(), req.Into)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusBadRequest, "target record not found")
			return
		}
		log.Printf("resolving record %s: %v", sanitizeForLog(code), err)
		respondError(w, http.StatusInternalServerError, "failed to resolve record")
		return
	}
	if target.Registry != database.RegistryKnown {
		respondError(w, http.StatusBadRequest, "target must be a known identity")
		return
	}

	if err := h.store.ResolveRecord(r.Context(), code, req.Into); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, "record not found")
			return
		}
		log.Printf("resolving record %s: %v", sanitizeForLog(code), err)
		respondError(w, http.StatusInternalServerError, "failed to resolve record")
		return
	}
	h.index.Remove(code)

	respondJSON(w, http.StatusOK, map[string]string{
		"code":   code,
		"status": string(database.StatusResolved),
		"into":   req.Into,
	})
}

// Delete removes a record and its ledger entries.
func (h *RecordsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	if err := h.store.DeleteRecord(r.Context(), code); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, "record not found")
			return
		}
		log.Printf("deleting record %s: %v", sanitizeForLog(code), err)
		respondError(w, http.StatusInternalServerError, "failed to delete record")
		return
	}
	h.index.Remove(code)

	respondJSON(w, http.StatusOK, map[string]string{"code": code, "deleted": "true"})
}

// Matches returns the ledger entries originating from a record.
func (h *RecordsHandler) Matches(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	if _, err := h.store.GetRecord(r.Context(), code); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, "record not found")
			return
		}
		log.Printf("getting record %s: %v", sanitizeForLog(code), err)
		respondError(w, http.StatusInternalServerError, "failed to get record")
		return
	}

	edges, err := h.store.EdgesFrom(r.Context(), code)
	if err != nil {
		log.Printf("listing edges for %s: %v", sanitizeForLog(code), err)
		respondError(w, http.StatusInternalServerError, "failed to list matches")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"source": code,
		"edges":  edges,
		"count":  len(edges),
	})
}

// MatchedBy returns the ledger entries pointing at a record.
func (h *RecordsHandler) MatchedBy(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	if _, err := h.store.GetRecord(r.Context(), code); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, "record not found")
			return
		}
		log.Printf("getting record %s: %v", sanitizeForLog(code), err)
		respondError(w, http.StatusInternalServerError, "failed to get record")
		return
	}

	edges, err := h.store.EdgesTo(r.Context(), code)
	if err != nil {
		log.Printf("listing reverse edges for %s: %v", sanitizeForLog(code), err)
		respondError(w, http.StatusInternalServerError, "failed to list matches")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"target": code,
		"edges":  edges,
		"count":  len(edges),
	})
}
