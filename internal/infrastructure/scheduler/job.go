package scheduler

import (
	"time"

	"github.com/google/uuid"

	"github.com/mobilsoft/edire/internal/domain/integration"
)

// JobStatus represents the status of one source run
type JobStatus string

const (
	JobStatusPending JobStatus = "PENDING"
	JobStatusRunning JobStatus = "RUNNING"
	JobStatusSuccess JobStatus = "SUCCESS"
	// JobStatusPartial means the run finished but some documents failed
	JobStatusPartial JobStatus = "PARTIAL"
	JobStatusFailed  JobStatus = "FAILED"
	// JobStatusSkipped means another run held the source
	JobStatusSkipped JobStatus = "SKIPPED"
)

// Job is one operation run against one source within a tick
type Job struct {
	ID          uuid.UUID            `json:"id"`
	Operation   string               `json:"operation"`
	SourceID    string               `json:"source_id"`
	Status      JobStatus            `json:"status"`
	Error       string               `json:"error,omitempty"`
	Counters    integration.Counters `json:"counters,omitempty"`
	StartedAt   *time.Time           `json:"started_at,omitempty"`
	CompletedAt *time.Time           `json:"completed_at,omitempty"`
}

// NewJob creates a pending job
func NewJob(operation, sourceID string) *Job {
	return &Job{
		ID:        uuid.New(),
		Operation: operation,
		SourceID:  sourceID,
		Status:    JobStatusPending,
	}
}

// Start marks the job as running
func (j *Job) Start(now time.Time) {
	j.Status = JobStatusRunning
	j.StartedAt = &now
	j.Error = ""
}

// Complete records the counters of a finished run
func (j *Job) Complete(now time.Time, counters integration.Counters) {
	j.Counters = counters
	j.CompletedAt = &now
	if counters["failed"] > 0 {
		j.Status = JobStatusPartial
		return
	}
	j.Status = JobStatusSuccess
}

// Fail marks the job as failed
func (j *Job) Fail(now time.Time, err error) {
	j.Status = JobStatusFailed
	j.CompletedAt = &now
	j.Error = err.Error()
}

// Skip marks the job as skipped
func (j *Job) Skip(now time.Time, reason string) {
	j.Status = JobStatusSkipped
	j.CompletedAt = &now
	j.Error = reason
}

// Duration returns how long the job ran, zero until it completes
func (j *Job) Duration() time.Duration {
	if j.StartedAt == nil || j.CompletedAt == nil {
		return 0
	}
	return j.CompletedAt.Sub(*j.StartedAt)
}
