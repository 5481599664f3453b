// Package event defines the state-change events emitted during a
// compression run and the bounded, non-blocking reporter handoff. State
// transitions are never dropped; resource samples may be when the reporter
// cannot keep up.
package event

import (
	"time"

	"github.com/lambrk/compressor/internal/clock"
	"github.com/lambrk/compressor/model"
)

// Type identifies the kind of state change an event carries.
type Type string

const (
	TypeJobCreated             Type = "jobCreated"
	TypeJobStateChanged        Type = "jobStateChanged"
	TypeVideoStateChanged      Type = "videoStateChanged"
	TypeTaskStateChanged       Type = "taskStateChanged"
	TypeResourceSampleRecorded Type = "resourceSampleRecorded"
)

// Event carries a full snapshot of the affected entity; consumers never see
// live scheduler state.
type Event struct {
	Type      Type      `json:"type"`
	JobID     string    `json:"jobId"`
	CreatedAt time.Time `json:"createdAt"`

	Job    *model.Job            `json:"job,omitempty"`
	Video  *model.Video          `json:"video,omitempty"`
	Task   *model.Task           `json:"task,omitempty"`
	Sample *model.ResourceSample `json:"sample,omitempty"`
}

// NewJobEvent builds a job-scoped event with a snapshot of the job.
func NewJobEvent(eventType Type, job *model.Job) *Event {
	return &Event{
		Type:      eventType,
		JobID:     job.ID,
		CreatedAt: clock.Now(),
		Job:       job.Clone(),
	}
}

// NewVideoEvent builds a video transition event.
func NewVideoEvent(video *model.Video) *Event {
	return &Event{
		Type:      TypeVideoStateChanged,
		JobID:     video.JobID,
		CreatedAt: clock.Now(),
		Video:     video.Clone(),
	}
}

// NewTaskEvent builds a task transition event.
func NewTaskEvent(task *model.Task) *Event {
	return &Event{
		Type:      TypeTaskStateChanged,
		JobID:     task.JobID,
		CreatedAt: clock.Now(),
		Task:      task.Clone(),
	}
}

// NewSampleEvent builds a resource sample event.
func NewSampleEvent(jobID string, sample model.ResourceSample) *Event {
	return &Event{
		Type:      TypeResourceSampleRecorded,
		JobID:     jobID,
		CreatedAt: clock.Now(),
		Sample:    &sample,
	}
}

// IsTransition reports whether the event is a state transition which must
// never be dropped, as opposed to a droppable metrics sample.
func (e *Event) IsTransition() bool {
	return e.Type != TypeResourceSampleRecorded
}
