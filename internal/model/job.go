package model

import "time"

// JobStatus is the lifecycle state of a queued pipeline job.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

// JobKind identifies which stage handler a job dispatches to.
type JobKind string

const (
	JobKindExtractDocument JobKind = "extract_document"
	JobKindRenderSpread    JobKind = "render_spread"
	JobKindBuildSnapshot   JobKind = "build_snapshot"
)

// Job is a generic lease-scheduled unit of work. Status transitions are owned
// exclusively by the scheduler; handlers must be idempotent because a lease
// can be retried after partial execution.
type Job struct {
	ID          string         `json:"id"`
	TenantID    string         `json:"tenant_id"`
	CaseID      string         `json:"case_id"`
	Kind        JobKind        `json:"kind"`
	Status      JobStatus      `json:"status"`
	Attempt     int            `json:"attempt"`
	MaxAttempts int            `json:"max_attempts"`
	LeaseOwner  string         `json:"lease_owner,omitempty"`
	LeasedUntil *time.Time     `json:"leased_until,omitempty"`
	NextRunAt   time.Time      `json:"next_run_at"`
	Error       string         `json:"error,omitempty"`
	Metadata    map[string]any `json:"kind_metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Terminal reports whether the job has reached a final state.
func (j *Job) Terminal() bool {
	return j.Status == JobStatusSucceeded || j.Status == JobStatusFailed
}
