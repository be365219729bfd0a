package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/kozaktomas/face-registry/internal/database"
	"github.com/kozaktomas/face-registry/internal/enroll"
	"github.com/kozaktomas/face-registry/internal/facematch"
	"github.com/kozaktomas/face-registry/internal/recognizer"
	"github.com/kozaktomas/face-registry/internal/vecmath"
)

// EnrollHandler handles enrollment endpoints.
type EnrollHandler struct {
	pipeline *enroll.Pipeline
	engine   *facematch.Engine
}

// NewEnrollHandler creates a new enrollment handler.
func NewEnrollHandler(pipeline *enroll.Pipeline, engine *facematch.Engine) *EnrollHandler {
	return &EnrollHandler{pipeline: pipeline, engine: engine}
}

// EnrollRequest is the body of an image enrollment call.
type EnrollRequest struct {
	Image    string `json:"image"` // base64-encoded image bytes
	Registry string `json:"registry"`
	Name     string `json:"name,omitempty"`
}

// EnrollResponse reports the created record and its first match run.
type EnrollResponse struct {
	Record   *database.IdentityRecord `json:"record"`
	Report   *facematch.Report        `json:"report"`
	Warnings []string                 `json:"warnings,omitempty"`
}

// parseRegistry validates the registry field of a request.
func parseRegistry(s string) (database.Registry, bool) {
	switch database.Registry(s) {
	case database.RegistryUnidentified, database.RegistryKnown:
		return database.Registry(s), true
	}
	return "", false
}

// maxUploadSize bounds multipart enrollment uploads (16 MB).
const maxUploadSize = 16 << 20

// readEnrollInput accepts either a JSON body with a base64 image or a
// multipart form with an "image" file field.
func readEnrollInput(r *http.Request) (image []byte, registry, name, errMsg string) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxUploadSize); err != nil {
			return nil, "", "", "failed to parse multipart form"
		}
		file, _, err := r.FormFile("image")
		if err != nil {
			return nil, "", "", "image file is required"
		}
		defer file.Close()
		image, err = io.ReadAll(file)
		if err != nil {
			return nil, "", "", "failed to read image file"
		}
		return image, r.FormValue("registry"), r.FormValue("name"), ""
	}

	var req EnrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, "", "", errInvalidRequestBody
	}
	image, err := base64.StdEncoding.DecodeString(req.Image)
	if err != nil || len(image) == 0 {
		return nil, "", "", "image must be base64-encoded"
	}
	return image, req.Registry, req.Name, ""
}

// Enroll runs the recognition pipeline on an uploaded image and registers
// the resulting embeddings.
func (h *EnrollHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	image, rawRegistry, name, errMsg := readEnrollInput(r)
	if errMsg != "" {
		respondError(w, http.StatusBadRequest, errMsg)
		return
	}

	registry, ok := parseRegistry(rawRegistry)
	if !ok {
		respondError(w, http.StatusBadRequest, "registry must be unidentified or known")
		return
	}
	if registry == database.RegistryKnown && name == "" {
		respondError(w, http.StatusBadRequest, "name is required for known identities")
		return
	}

	result, err := h.pipeline.Run(r.Context(), image)
	if err != nil {
		if errors.Is(err, recognizer.ErrNoFace) {
			respondError(w, http.StatusUnprocessableEntity, "no face detected")
			return
		}
		var dimErr *vecmath.DimensionMismatchError
		if errors.As(err, &dimErr) {
			respondError(w, http.StatusBadGateway, "recognizer returned "+dimErr.Error())
			return
		}
		log.Printf("enrollment pipeline: %v", err)
		respondError(w, http.StatusBadGateway, "recognition provider failed")
		return
	}

	record := &database.IdentityRecord{
		Registry:      registry,
		Name:          name,
		Embedding:     result.Observation.Embedding,
		EmbeddingFast: result.FastEmbedding,
		BBox:          result.Observation.BBox,
		DetScore:      result.Observation.Confidence,
	}

	h.register(w, r, record, result.Warnings)
}

// RegisterRequest is the body of a direct embedding registration call.
// It bypasses the recognition pipeline for callers that already hold
// embeddings.
type RegisterRequest struct {
	Registry      string    `json:"registry"`
	Name          string    `json:"name,omitempty"`
	Embedding     []float32 `json:"embedding"`
	EmbeddingFast []float32 `json:"embedding_fast,omitempty"`
}

// Register creates a record from precomputed embeddings.
func (h *EnrollHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	registry, ok := parseRegistry(req.Registry)
	if !ok {
		respondError(w, http.StatusBadRequest, "registry must be unidentified or known")
		return
	}
	if registry == database.RegistryKnown && req.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required for known identities")
		return
	}

	record := &database.IdentityRecord{
		Registry:      registry,
		Name:          req.Name,
		Embedding:     req.Embedding,
		EmbeddingFast: req.EmbeddingFast,
	}

	h.register(w, r, record, nil)
}

func (h *EnrollHandler) register(w http.ResponseWriter, r *http.Request, record *database.IdentityRecord, warnings []string) {
	report, err := h.engine.Register(r.Context(), record)
	if err != nil {
		var dup *facematch.DuplicateError
		if errors.As(err, &dup) {
			respondJSON(w, http.StatusConflict, map[string]any{
				"error":    "duplicate of existing record",
				"decision": dup.Decision,
			})
			return
		}
		var dimErr *vecmath.DimensionMismatchError
		if errors.As(err, &dimErr) {
			respondError(w, http.StatusBadRequest, dimErr.Error())
			return
		}
		if errors.Is(err, facematch.ErrNoSignal) {
			respondError(w, http.StatusBadRequest, "embedding carries no signal")
			return
		}
		log.Printf("registering record: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to register record")
		return
	}

	respondJSON(w, http.StatusCreated, EnrollResponse{
		Record:   record,
		Report:   report,
		Warnings: warnings,
	})
}
