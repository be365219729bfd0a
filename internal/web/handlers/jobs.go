package handlers

import (
	"sync"
	"time"
)

// JobStatus represents the status of an async job.
type JobStatus string

// JobStatus constants define the lifecycle states of an async job.
const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// SweepJob represents an async corpus sweep. Serialize it through
// Snapshot, never directly.
type SweepJob struct {
	ID          string
	Space       string
	Status      JobStatus
	Processed   int
	Total       int
	Error       string
	StartedAt   time.Time
	CompletedAt *time.Time

	mu sync.RWMutex
}

// JobView is a point-in-time copy of a job's state for serialization.
type JobView struct {
	ID          string     `json:"id"`
	Space       string     `json:"space"`
	Status      JobStatus  `json:"status"`
	Processed   int        `json:"processed"`
	Total       int        `json:"total"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// SetProgress updates the job's progress counters.
func (j *SweepJob) SetProgress(done, total int) {
	j.mu.Lock()
	j.Processed = done
	j.Total = total
	j.mu.Unlock()
}

// Start marks the job running.
func (j *SweepJob) Start() {
	j.mu.Lock()
	j.Status = JobStatusRunning
	j.mu.Unlock()
}

// Finish marks the job completed, or failed when err is non-nil.
func (j *SweepJob) Finish(err error) {
	now := time.Now()
	j.mu.Lock()
	j.CompletedAt = &now
	if err != nil {
		j.Status = JobStatusFailed
		j.Error = err.Error()
	} else {
		j.Status = JobStatusCompleted
	}
	j.mu.Unlock()
}

// Snapshot returns a copy safe to serialize while the job runs.
func (j *SweepJob) Snapshot() JobView {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return JobView{
		ID:          j.ID,
		Space:       j.Space,
		Status:      j.Status,
		Processed:   j.Processed,
		Total:       j.Total,
		Error:       j.Error,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
	}
}

// JobManager manages async jobs.
type JobManager struct {
	jobs map[string]*SweepJob
	mu   sync.RWMutex
}

// NewJobManager creates a new job manager.
func NewJobManager() *JobManager {
	return &JobManager{
		jobs: make(map[string]*SweepJob),
	}
}

// CreateJob creates a new sweep job in the pending state.
func (m *JobManager) CreateJob(id, space string) *SweepJob {
	job := &SweepJob{
		ID:        id,
		Space:     space,
		Status:    JobStatusPending,
		StartedAt: time.Now(),
	}

	m.mu.Lock()
	m.jobs[id] = job
	m.mu.Unlock()

	return job
}

// GetJob retrieves a job by ID.
func (m *JobManager) GetJob(id string) *SweepJob {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.jobs[id]
}

// DeleteJob removes a job.
func (m *JobManager) DeleteJob(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jobs, id)
}

// ListJobs returns point-in-time views of all jobs.
func (m *JobManager) ListJobs() []JobView {
	m.mu.RLock()
	defer m.mu.RUnlock()
	jobs := make([]JobView, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, job.Snapshot())
	}
	return jobs
}
