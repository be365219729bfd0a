package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kozaktomas/face-registry/internal/database"
	"github.com/kozaktomas/face-registry/internal/facematch"
)

// SweepHandler handles corpus sweep endpoints. Sweeps run in the
// background and are polled by job ID.
type SweepHandler struct {
	engine     *facematch.Engine
	jobManager *JobManager
}

// NewSweepHandler creates a new sweep handler.
func NewSweepHandler(engine *facematch.Engine, jm *JobManager) *SweepHandler {
	return &SweepHandler{engine: engine, jobManager: jm}
}

// SweepStartRequest is the body of a sweep start call.
type SweepStartRequest struct {
	Space string `json:"space,omitempty"` // defaults to primary
}

// Start launches a background sweep over the corpus.
func (h *SweepHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req SweepStartRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, errInvalidRequestBody)
			return
		}
	}

	space := req.Space
	if space == "" {
		space = database.SpacePrimary
	}
	if _, err := h.engine.Spaces().Get(space); err != nil {
		respondError(w, http.StatusBadRequest, "unknown embedding space")
		return
	}

	jobID := uuid.New().String()
	job := h.jobManager.CreateJob(jobID, space)

	// Request context dies with the handler; the sweep outlives it.
	go h.runSweep(context.Background(), job)

	respondJSON(w, http.StatusAccepted, map[string]string{
		"job_id": jobID,
		"space":  space,
		"status": string(JobStatusPending),
	})
}

func (h *SweepHandler) runSweep(ctx context.Context, job *SweepJob) {
	job.Start()
	_, err := h.engine.Sweep(ctx, job.Space, job.SetProgress)
	job.Finish(err)
}

// Status returns the state of a sweep job.
func (h *SweepHandler) Status(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")

	job := h.jobManager.GetJob(jobID)
	if job == nil {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}

	snapshot := job.Snapshot()
	respondJSON(w, http.StatusOK, &snapshot)
}

// List returns all sweep jobs.
func (h *SweepHandler) List(w http.ResponseWriter, r *http.Request) {
	jobs := h.jobManager.ListJobs()
	respondJSON(w, http.StatusOK, map[string]any{
		"jobs":  jobs,
		"count": len(jobs),
	})
}
