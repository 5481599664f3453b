package model

import (
	"time"

	"github.com/lambrk/compressor/internal/clock"
)

// TaskState represents the current state of a task.
type TaskState string

const (
	TaskStatePending   TaskState = "pending"
	TaskStateRunning   TaskState = "running"
	TaskStateCompleted TaskState = "completed"
	TaskStateFailed    TaskState = "failed"
)

// IsTerminal reports whether no further transition is possible.
func (t TaskState) IsTerminal() bool {
	return t == TaskStateCompleted || t == TaskStateFailed
}

// Task is the scheduling atom: one video encoded at one quality profile.
type Task struct {
	ID      string `json:"id"`
	JobID   string `json:"jobId"`
	VideoID string `json:"videoId"`

	InputURL  string `json:"inputURL"`
	OutputURL string `json:"outputURL"`

	// Resolution is the resolved, orientation-adjusted target.
	Resolution       string       `json:"resolution"`
	Bitrate          string       `json:"bitrate"`
	HDR              *HDRMetadata `json:"hdr,omitempty"`
	HighQualityAudio bool         `json:"highQualityAudio,omitempty"`

	State  TaskState `json:"state"`
	SlotID int       `json:"slotId"`

	OutputSize       int64   `json:"outputSize,omitempty"`
	CompressionRatio float64 `json:"compressionRatio,omitempty"`
	Error            string  `json:"error,omitempty"`

	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// Start admits the task into a worker slot. It is a no-op once the task has
// reached a terminal state.
func (t *Task) Start(slotID int) bool {
	if t.State != TaskStatePending {
		return false
	}
	now := clock.Now()
	t.StartedAt = &now
	t.SlotID = slotID
	t.State = TaskStateRunning
	return true
}

// Complete marks the task completed and records the output artefact size
// and the achieved compression ratio.
func (t *Task) Complete(outputSize, inputSize int64) bool {
	if t.State != TaskStateRunning {
		return false
	}
	now := clock.Now()
	t.CompletedAt = &now
	t.OutputSize = outputSize
	if inputSize > 0 && outputSize > 0 {
		t.CompressionRatio = float64(inputSize) / float64(outputSize)
	}
	t.State = TaskStateCompleted
	return true
}

// Fail marks the task failed with a reason. Terminal states are sticky.
func (t *Task) Fail(reason string) bool {
	if t.State.IsTerminal() {
		return false
	}
	now := clock.Now()
	t.CompletedAt = &now
	t.Error = reason
	t.State = TaskStateFailed
	return true
}

// Clone returns a copy safe to hand outside the scheduler loop.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	clone := *t
	if t.HDR != nil {
		hdr := *t.HDR
		clone.HDR = &hdr
	}
	if t.StartedAt != nil {
		at := *t.StartedAt
		clone.StartedAt = &at
	}
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		clone.CompletedAt = &at
	}
	return &clone
}
