package domain

import "time"

// JobStatus represents the lifecycle state of a queued job.
// Transitions are strictly pending -> processing -> {completed|failed|cancelled};
// cancellation is only legal while the job is still pending.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// Job represents a unit of background work owned by the scheduler.
// Workers have exclusive write access to their own job while it runs;
// once terminal the row is immutable.
type Job struct {
	ID           string     `gorm:"type:text;primaryKey" json:"id"`
	Kind         string     `gorm:"not null;index" json:"kind"`
	Status       JobStatus  `gorm:"default:pending;index" json:"status"`
	Priority     int        `gorm:"default:0" json:"priority"`
	Parameters   string     `gorm:"type:text" json:"parameters,omitempty"`
	Progress     float64    `gorm:"default:0" json:"progress"`
	Result       string     `gorm:"type:text" json:"result,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// TableName returns the database table name for Job.
func (Job) TableName() string {
	return "load_jobs"
}

// JobView is the read-only representation returned by the status surface.
type JobView struct {
	ID           string     `json:"id"`
	Kind         string     `json:"kind"`
	Status       JobStatus  `json:"status"`
	Priority     int        `json:"priority"`
	Progress     float64    `json:"progress"`
	Result       string     `json:"result,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// View converts a Job row into its external representation.
func (j *Job) View() *JobView {
	return &JobView{
		ID:           j.ID,
		Kind:         j.Kind,
		Status:       j.Status,
		Priority:     j.Priority,
		Progress:     j.Progress,
		Result:       j.Result,
		ErrorMessage: j.ErrorMessage,
		CreatedAt:    j.CreatedAt,
		StartedAt:    j.StartedAt,
		CompletedAt:  j.CompletedAt,
	}
}
