package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/lambrk/compressor/internal/clock"
)

func TestProfile_TargetResolution(t *testing.T) {
	profile := Profile{Bitrate: "2000k", Resolution: "1920x1080"}

	// Landscape sources take the profile resolution as-is.
	resolution, err := profile.TargetResolution(3840, 2160)
	assert.Nil(t, err)
	assert.Equal(t, "1920x1080", resolution)

	// Portrait sources hold the height and rescale the width.
	resolution, err = profile.TargetResolution(1080, 1920)
	assert.Nil(t, err)
	assert.Equal(t, "608x1080", resolution)

	// An odd scaled width gets rounded up to the next even value.
	resolution, err = profile.TargetResolution(1081, 1920)
	assert.Nil(t, err)
	assert.Equal(t, "608x1080", resolution)

	_, err = profile.TargetResolution(0, 0)
	assert.Nil(t, err)

	broken := Profile{Resolution: "fullhd"}
	_, err = broken.TargetResolution(1920, 1080)
	assert.NotNil(t, err)
}

func TestDefaultProfiles(t *testing.T) {
	ladder := DefaultLandscapeProfiles()
	assert.Equal(t, 8, len(ladder))
	assert.Equal(t, "150k", ladder[0].Bitrate)
	assert.Equal(t, "256x144", ladder[0].Resolution)
	top := ladder[len(ladder)-1]
	assert.Equal(t, "3840x2160", top.Resolution)
	if assert.NotNil(t, top.HDR) {
		assert.Equal(t, "bt2020", top.HDR.ColorPrimaries)
		assert.Equal(t, "smpte2084", top.HDR.TransferCharacteristics)
	}
	for _, rung := range ladder[:len(ladder)-1] {
		assert.Nil(t, rung.HDR)
	}
}

func TestTask_Transitions(t *testing.T) {
	frozen := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	clock.NowFunc = func() time.Time { return frozen }
	defer func() { clock.NowFunc = time.Now }()

	task := &Task{ID: "t1", State: TaskStatePending}
	assert.True(t, task.Start(3))
	assert.Equal(t, TaskStateRunning, task.State)
	assert.Equal(t, 3, task.SlotID)
	assert.Equal(t, frozen, *task.StartedAt)

	// Pending-only guard.
	assert.False(t, task.Start(4))

	assert.True(t, task.Complete(2500, 10000))
	assert.Equal(t, TaskStateCompleted, task.State)
	assert.Equal(t, 4.0, task.CompressionRatio)

	// Terminal states are sticky.
	assert.False(t, task.Fail("late failure"))
	assert.False(t, task.Complete(1, 1))
	assert.Equal(t, TaskStateCompleted, task.State)
}

func TestTask_FailFromPending(t *testing.T) {
	task := &Task{ID: "t1", State: TaskStatePending}
	assert.True(t, task.Fail("aborted"))
	assert.Equal(t, TaskStateFailed, task.State)
	assert.Equal(t, "aborted", task.Error)
	assert.NotNil(t, task.CompletedAt)
}

func TestTask_CloneIsIndependent(t *testing.T) {
	task := &Task{ID: "t1", State: TaskStatePending, HDR: &HDRMetadata{ColorPrimaries: "bt2020"}}
	task.Start(1)
	clone := task.Clone()
	clone.State = TaskStateFailed
	clone.HDR.ColorPrimaries = "bt709"
	*clone.StartedAt = time.Time{}

	assert.Equal(t, TaskStateRunning, task.State)
	assert.Equal(t, "bt2020", task.HDR.ColorPrimaries)
	assert.False(t, task.StartedAt.IsZero())
}

func TestJob_SetState(t *testing.T) {
	job := NewJob("j1", "test", "file:///in", "file:///out")
	assert.Equal(t, JobStateCreated, job.State)
	assert.Nil(t, job.StartedAt)

	assert.True(t, job.SetState(JobStateRunning))
	assert.NotNil(t, job.StartedAt)

	assert.True(t, job.SetState(JobStateCancelled))
	assert.NotNil(t, job.CompletedAt)

	// No way out of a terminal state.
	assert.False(t, job.SetState(JobStateRunning))
	assert.False(t, job.SetState(JobStateCompleted))
	assert.Equal(t, JobStateCancelled, job.State)
}

func TestVideo_Portrait(t *testing.T) {
	assert.False(t, (&Video{Width: 1920, Height: 1080}).Portrait())
	assert.True(t, (&Video{Width: 1080, Height: 1920}).Portrait())
	assert.False(t, (&Video{Width: 1080, Height: 1080}).Portrait())
}
