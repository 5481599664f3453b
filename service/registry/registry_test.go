package registry

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lambrk/compressor/internal/idgen"
	"github.com/lambrk/compressor/model"
)

var testLadder = []model.Profile{
	{Bitrate: "500k", Resolution: "854x480"},
	{Bitrate: "2000k", Resolution: "1920x1080"},
}

func testVideos() []*model.Video {
	return []*model.Video{
		{Filename: "alpha.mp4", URL: "mem://localhost/in/alpha.mp4", Width: 1920, Height: 1080, Size: 10000, State: model.VideoStatePending},
		{Filename: "beta.mov", URL: "mem://localhost/in/beta.mov", Width: 1920, Height: 1080, Size: 8000, State: model.VideoStatePending},
		{Filename: "tall.mp4", URL: "mem://localhost/in/tall.mp4", Width: 1080, Height: 1920, Size: 6000, State: model.VideoStatePending},
	}
}

func newTestRegistry(t *testing.T, failFast bool) *Registry {
	job := model.NewJob(idgen.New(), "test", "mem://localhost/in", "mem://localhost/out")
	job.FailFast = failFast
	aRegistry, err := New(job, testVideos(), testLadder, testLadder)
	assert.Nil(t, err)
	return aRegistry
}

func TestRegistry_TaskDerivation(t *testing.T) {
	aRegistry := newTestRegistry(t, false)
	job := aRegistry.Job()
	assert.Equal(t, 3, job.TotalVideos)
	assert.Equal(t, 6, job.TotalTasks)
	assert.Equal(t, 6, aRegistry.Pending())

	// Tasks come out in creation order: alpha's ladder first.
	first := aRegistry.Admit(1)
	assert.Equal(t, "mem://localhost/in/alpha.mp4", first.InputURL)
	assert.Equal(t, "854x480", first.Resolution)
	assert.Equal(t, "500k", first.Bitrate)
	assert.True(t, strings.HasSuffix(first.OutputURL, "alpha_854x480.mp4"))
	assert.True(t, strings.HasPrefix(first.OutputURL, "mem://localhost/out/"))
	assert.Equal(t, model.TaskStateRunning, first.State)
	assert.Equal(t, 1, aRegistry.Running())

	second := aRegistry.Admit(2)
	assert.Equal(t, first.VideoID, second.VideoID)
	assert.Equal(t, "1920x1080", second.Resolution)

	// Each video gets its own 12-hex output folder under the job output.
	video := aRegistry.Video(first.VideoID)
	folder := strings.TrimPrefix(video.OutputURL, "mem://localhost/out/")
	assert.Equal(t, 12, len(folder))
}

func TestRegistry_PortraitRescale(t *testing.T) {
	aRegistry := newTestRegistry(t, false)
	var resolutions []string
	for {
		task := aRegistry.Admit(1)
		if task == nil {
			break
		}
		if strings.Contains(task.InputURL, "tall") {
			resolutions = append(resolutions, task.Resolution)
		}
	}
	// 1080x1920 source: width scales to preserve aspect, rounded up to even.
	assert.EqualValues(t, []string{"270x480", "608x1080"}, resolutions)
}

func TestRegistry_FailureIsolation(t *testing.T) {
	aRegistry := newTestRegistry(t, false)
	var admitted []*model.Task
	for {
		task := aRegistry.Admit(1)
		if task == nil {
			break
		}
		admitted = append(admitted, task)
	}
	assert.Equal(t, 6, len(admitted))

	// Fail one of beta's renditions, complete everything else.
	for i, task := range admitted {
		if i == 2 {
			video := aRegistry.FailTask(task.ID, "encoder exited with code 1")
			assert.Nil(t, video)
			continue
		}
		aRegistry.CompleteTask(task.ID, 1000)
	}
	assert.True(t, aRegistry.Finished())
	assert.Equal(t, model.JobStateCompleted, aRegistry.Outcome())

	job := aRegistry.Job()
	assert.Equal(t, 5, job.CompletedTasks)
	assert.Equal(t, 1, job.FailedTasks)
	assert.Equal(t, 2, job.ProcessedVideos)
	assert.Equal(t, 1, job.FailedVideos)
}

func TestRegistry_AllTasksFailed(t *testing.T) {
	aRegistry := newTestRegistry(t, false)
	for {
		task := aRegistry.Admit(1)
		if task == nil {
			break
		}
		aRegistry.FailTask(task.ID, "encoder exited with code 1")
	}
	assert.True(t, aRegistry.Finished())
	assert.Equal(t, model.JobStateFailed, aRegistry.Outcome())
	assert.Equal(t, 3, aRegistry.Job().FailedVideos)
}

func TestRegistry_StopReportsAbortedTransitions(t *testing.T) {
	aRegistry := newTestRegistry(t, true)
	task := aRegistry.Admit(1)
	aRegistry.FailTask(task.ID, "encoder exited with code 1")

	aborted, settled := aRegistry.Stop()
	assert.Equal(t, 5, len(aborted))
	assert.Equal(t, 3, len(settled))
	for _, abortedTask := range aborted {
		assert.Equal(t, model.TaskStateFailed, abortedTask.State)
	}

	assert.Equal(t, 0, aRegistry.Pending())
	assert.Nil(t, aRegistry.Admit(2))
	assert.True(t, aRegistry.Finished())
	job := aRegistry.Job()
	assert.Equal(t, 6, job.FailedTasks)
	assert.Equal(t, 3, job.FailedVideos)
	assert.Equal(t, model.JobStateFailed, aRegistry.Outcome())

	// Stop is idempotent.
	aborted, settled = aRegistry.Stop()
	assert.Nil(t, aborted)
	assert.Nil(t, settled)
}

func TestRegistry_FailFastOutcome(t *testing.T) {
	aRegistry := newTestRegistry(t, true)
	first := aRegistry.Admit(1)
	aRegistry.CompleteTask(first.ID, 1000)
	second := aRegistry.Admit(1)
	aRegistry.FailTask(second.ID, "encoder exited with code 1")
	aRegistry.Stop()
	assert.True(t, aRegistry.Finished())
	// A fail-fast job ends Failed even with earlier successes.
	assert.Equal(t, model.JobStateFailed, aRegistry.Outcome())
}

func TestRegistry_StopFailsPendingOnly(t *testing.T) {
	aRegistry := newTestRegistry(t, false)
	running := aRegistry.Admit(1)
	aRegistry.Stop()

	assert.Equal(t, 0, aRegistry.Pending())
	assert.Equal(t, model.TaskStateRunning, running.State)
	assert.False(t, aRegistry.Finished())

	aRegistry.CompleteTask(running.ID, 500)
	assert.True(t, aRegistry.Finished())
	assert.Equal(t, model.JobStateCompleted, aRegistry.Outcome())
}

func TestRegistry_CompressionRatio(t *testing.T) {
	aRegistry := newTestRegistry(t, false)
	task := aRegistry.Admit(1)
	aRegistry.CompleteTask(task.ID, 2500)
	assert.Equal(t, 4.0, task.CompressionRatio)
	assert.Equal(t, int64(2500), task.OutputSize)
}
