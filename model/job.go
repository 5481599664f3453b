package model

import (
	"time"

	"github.com/lambrk/compressor/internal/clock"
)

// JobState represents the lifecycle of a compression run.
type JobState string

const (
	JobStateCreated   JobState = "created"
	JobStateRunning   JobState = "running"
	JobStateCompleted JobState = "completed"
	JobStateFailed    JobState = "failed"
	JobStateCancelled JobState = "cancelled"
)

// IsTerminal reports whether no further transition is possible.
func (s JobState) IsTerminal() bool {
	return s == JobStateCompleted || s == JobStateFailed || s == JobStateCancelled
}

// Job is one end-to-end compression run over an input folder. The job record
// is owned by the scheduler loop for the duration of the run; reporters and
// the control surface only ever see clones.
type Job struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	InputURL  string `json:"inputURL"`
	OutputURL string `json:"outputURL"`

	State JobState `json:"state"`
	Error string   `json:"error,omitempty"`

	TotalVideos     int `json:"totalVideos"`
	ProcessedVideos int `json:"processedVideos"`
	FailedVideos    int `json:"failedVideos"`
	TotalTasks      int `json:"totalTasks"`
	CompletedTasks  int `json:"completedTasks"`
	FailedTasks     int `json:"failedTasks"`

	MinWorkers       int  `json:"minWorkers"`
	MaxWorkers       int  `json:"maxWorkers"`
	HighQualityAudio bool `json:"highQualityAudio,omitempty"`
	FailFast         bool `json:"failFast,omitempty"`

	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// SetState applies a lifecycle transition, stamping started/completed times.
// Transitions out of a terminal state are ignored.
func (j *Job) SetState(state JobState) bool {
	if j.State.IsTerminal() {
		return false
	}
	j.State = state
	now := clock.Now()
	switch state {
	case JobStateRunning:
		j.StartedAt = &now
	case JobStateCompleted, JobStateFailed, JobStateCancelled:
		j.CompletedAt = &now
	}
	return true
}

// Clone returns a copy safe to hand outside the scheduler loop.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	clone := *j
	if j.StartedAt != nil {
		at := *j.StartedAt
		clone.StartedAt = &at
	}
	if j.CompletedAt != nil {
		at := *j.CompletedAt
		clone.CompletedAt = &at
	}
	return &clone
}

// NewJob creates a job record in the created state.
func NewJob(id, name, inputURL, outputURL string) *Job {
	return &Job{
		ID:        id,
		Name:      name,
		InputURL:  inputURL,
		OutputURL: outputURL,
		State:     JobStateCreated,
		CreatedAt: clock.Now(),
	}
}
