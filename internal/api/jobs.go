package api

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openagreements/redline/core/compare"
	"github.com/openagreements/redline/internal/logging"
)

// JobStatus represents the current state of a job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Job represents an asynchronous comparison job. The output package is held
// in memory until the job is fetched or the store evicts it.
type Job struct {
	ID          string         `json:"id"`
	Status      JobStatus      `json:"status"`
	Progress    int            `json:"progress"`
	Stats       *compare.Stats `json:"stats,omitempty"`
	ModeUsed    string         `json:"mode_used,omitempty"`
	Error       string         `json:"error,omitempty"`
	CreatedAt   string         `json:"created_at"`
	UpdatedAt   string         `json:"updated_at"`
	CompletedAt string         `json:"completed_at,omitempty"`

	output []byte
}

// JobStore manages comparison jobs in memory.
type JobStore struct {
	jobs map[string]*Job
	mu   sync.RWMutex
}

// NewJobStore creates a new job store.
func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]*Job)}
}

// Create registers a new pending job.
func (s *JobStore) Create() *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC().Format(time.RFC3339)
	job := &Job{
		ID:        uuid.NewString(),
		Status:    JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.jobs[job.ID] = job
	return job
}

// Get retrieves a job by ID.
func (s *JobStore) Get(id string) (*Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	return job, ok
}

// update mutates a job under the store lock.
func (s *JobStore) update(id string, fn func(*Job)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return
	}
	fn(job)
	job.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	if job.Status == JobStatusCompleted || job.Status == JobStatusFailed {
		job.CompletedAt = job.UpdatedAt
	}
}

// handleJobs creates an asynchronous comparison job from the same multipart
// form the synchronous endpoint accepts.
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	req, err := s.parseCompareRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}

	job := s.jobs.Create()
	go s.runJob(job.ID, req)
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) runJob(id string, req *compareRequest) {
	s.jobs.update(id, func(j *Job) {
		j.Status = JobStatusRunning
		j.Progress = 10
	})
	s.hub.BroadcastProgress("compare", "classifying", id, 10)

	start := time.Now()
	res, err := runCompare(req)
	if err != nil {
		s.jobs.update(id, func(j *Job) {
			j.Status = JobStatusFailed
			j.Error = err.Error()
		})
		s.hub.BroadcastError("compare", id, err.Error())
		logging.Error("comparison job failed", "job_id", id, "error", err)
		return
	}

	s.jobs.update(id, func(j *Job) {
		j.Status = JobStatusCompleted
		j.Progress = 100
		j.Stats = &res.Stats
		j.ModeUsed = string(res.ModeUsed)
		j.output = res.Output
	})
	s.hub.BroadcastComplete("compare", id, map[string]any{
		"stats":       res.Stats,
		"mode_used":   res.ModeUsed,
		"duration_ms": time.Since(start).Milliseconds(),
	})
}

// handleJobByID serves job status at /api/v1/jobs/{id} and the result
// package at /api/v1/jobs/{id}/result.
func (s *Server) handleJobByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/jobs/")
	id, tail, _ := strings.Cut(rest, "/")
	job, ok := s.jobs.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "job not found: %s", id)
		return
	}

	switch tail {
	case "":
		writeJSON(w, http.StatusOK, job)
	case "result":
		if job.Status != JobStatusCompleted {
			writeError(w, http.StatusConflict, "job not completed: %s", job.Status)
			return
		}
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.wordprocessingml.document")
		w.Header().Set("Content-Disposition", `attachment; filename="redline.docx"`)
		w.WriteHeader(http.StatusOK)
		w.Write(job.output)
	default:
		writeError(w, http.StatusNotFound, "unknown job resource: %s", tail)
	}
}
