// Package registry owns the in-memory job graph: the job record, its videos
// and the per-rendition tasks derived from the quality ladder. The registry
// is mutated exclusively by the scheduler loop, so it carries no locks;
// anything handed outside the loop is a clone.
package registry

import (
	"fmt"
	"path"
	"strings"

	"github.com/viant/afs/url"

	"github.com/lambrk/compressor/internal/idgen"
	"github.com/lambrk/compressor/model"
)

// cancelledReason marks tasks pre-empted by job cancellation or fail-fast.
const cancelledReason = "aborted before execution"

// Registry tracks one job's tasks from creation to the terminal state.
type Registry struct {
	job    *model.Job
	videos map[string]*model.Video
	tasks  map[string]*model.Task

	// videoTasks maps a video to its task IDs for aggregation.
	videoTasks map[string][]string

	// ready holds pending task IDs in creation order.
	ready []string

	running int
	stopped bool
}

// New derives the task graph for the supplied videos. Landscape and portrait
// sources get their respective ladders, with each rung's resolution resolved
// against the source dimensions. Every video is assigned its own output
// folder under the job output URL.
func New(job *model.Job, videos []*model.Video, landscape, portrait []model.Profile) (*Registry, error) {
	registry := &Registry{
		job:        job,
		videos:     make(map[string]*model.Video, len(videos)),
		tasks:      make(map[string]*model.Task),
		videoTasks: make(map[string][]string, len(videos)),
	}
	for _, video := range videos {
		if video.ID == "" {
			video.ID = idgen.New()
		}
		video.JobID = job.ID
		video.OutputURL = url.Join(job.OutputURL, idgen.NewHex(12))
		registry.videos[video.ID] = video

		profiles := landscape
		if video.Portrait() {
			profiles = portrait
		}
		base := strings.TrimSuffix(video.Filename, path.Ext(video.Filename))
		for _, profile := range profiles {
			resolution, err := profile.TargetResolution(video.Width, video.Height)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve profile for %s: %w", video.Filename, err)
			}
			task := &model.Task{
				ID:               idgen.New(),
				JobID:            job.ID,
				VideoID:          video.ID,
				InputURL:         video.URL,
				OutputURL:        url.Join(video.OutputURL, fmt.Sprintf("%s_%s.mp4", base, resolution)),
				Resolution:       resolution,
				Bitrate:          profile.Bitrate,
				HDR:              profile.HDR,
				HighQualityAudio: job.HighQualityAudio,
				State:            model.TaskStatePending,
				CreatedAt:        job.CreatedAt,
			}
			registry.tasks[task.ID] = task
			registry.videoTasks[video.ID] = append(registry.videoTasks[video.ID], task.ID)
			registry.ready = append(registry.ready, task.ID)
		}
	}
	job.TotalVideos = len(videos)
	job.TotalTasks = len(registry.tasks)
	return registry, nil
}

// Job returns the live job record; callers outside the loop must Clone it.
func (r *Registry) Job() *model.Job {
	return r.job
}

// Task looks up a task by ID.
func (r *Registry) Task(id string) *model.Task {
	return r.tasks[id]
}

// Video looks up a video by ID.
func (r *Registry) Video(id string) *model.Video {
	return r.videos[id]
}

// Pending returns how many tasks await admission.
func (r *Registry) Pending() int {
	if r.stopped {
		return 0
	}
	return len(r.ready)
}

// Running returns how many tasks occupy worker slots.
func (r *Registry) Running() int {
	return r.running
}

// Peek returns the next pending task without admitting it, so the caller
// can secure a worker slot first.
func (r *Registry) Peek() *model.Task {
	if r.stopped || len(r.ready) == 0 {
		return nil
	}
	return r.tasks[r.ready[0]]
}

// Admit pops the next pending task, transitions it to running in the given
// slot and returns it. It returns nil once the queue is empty or the job has
// stopped admitting.
func (r *Registry) Admit(slotID int) *model.Task {
	if r.stopped || len(r.ready) == 0 {
		return nil
	}
	task := r.tasks[r.ready[0]]
	r.ready = r.ready[1:]
	if !task.Start(slotID) {
		return nil
	}
	r.running++
	return task
}

// CompleteTask marks a running task completed and rolls the outcome up into
// its video and the job. It returns the task's video when the video just
// reached a terminal state, nil otherwise.
func (r *Registry) CompleteTask(taskID string, outputSize int64) *model.Video {
	task := r.tasks[taskID]
	if task == nil {
		return nil
	}
	video := r.videos[task.VideoID]
	var inputSize int64
	if video != nil {
		inputSize = video.Size
	}
	if !task.Complete(outputSize, inputSize) {
		return nil
	}
	r.running--
	r.job.CompletedTasks++
	return r.settleVideo(video)
}

// FailTask marks a task failed and rolls the outcome up. It returns the
// task's video when the video just reached a terminal state.
func (r *Registry) FailTask(taskID, reason string) *model.Video {
	task := r.tasks[taskID]
	if task == nil {
		return nil
	}
	wasRunning := task.State == model.TaskStateRunning
	if !task.Fail(reason) {
		return nil
	}
	if wasRunning {
		r.running--
	}
	r.job.FailedTasks++
	return r.settleVideo(r.videos[task.VideoID])
}

// Stop aborts admission and fails every still-pending task, returning the
// aborted tasks and the videos that reached a terminal state as a result so
// the caller can report the transitions. Running tasks are left to finish
// or be cancelled by the pool. Subsequent calls are no-ops.
func (r *Registry) Stop() (aborted []*model.Task, settled []*model.Video) {
	if r.stopped {
		return nil, nil
	}
	r.stopped = true
	ready := r.ready
	r.ready = nil
	for _, taskID := range ready {
		task := r.tasks[taskID]
		if !task.Fail(cancelledReason) {
			continue
		}
		r.job.FailedTasks++
		aborted = append(aborted, task)
		if video := r.settleVideo(r.videos[task.VideoID]); video != nil {
			settled = append(settled, video)
		}
	}
	return aborted, settled
}

// settleVideo recomputes the video state once all its tasks are terminal.
func (r *Registry) settleVideo(video *model.Video) *model.Video {
	if video == nil || video.State != model.VideoStatePending {
		return nil
	}
	failed := 0
	for _, taskID := range r.videoTasks[video.ID] {
		task := r.tasks[taskID]
		if !task.State.IsTerminal() {
			return nil
		}
		if task.State == model.TaskStateFailed {
			failed++
		}
	}
	if failed > 0 {
		video.State = model.VideoStateFailed
		r.job.FailedVideos++
	} else {
		video.State = model.VideoStateCompleted
		r.job.ProcessedVideos++
	}
	return video
}

// Finished reports whether every task has reached a terminal state.
func (r *Registry) Finished() bool {
	return r.job.CompletedTasks+r.job.FailedTasks >= r.job.TotalTasks
}

// Outcome returns the terminal job state once Finished: Completed when at
// least one rendition succeeded or the job was empty, Failed when every
// task failed or a failure aborted a fail-fast job.
func (r *Registry) Outcome() model.JobState {
	if r.job.TotalTasks > 0 && r.job.CompletedTasks == 0 {
		return model.JobStateFailed
	}
	if r.job.FailFast && r.job.FailedTasks > 0 {
		return model.JobStateFailed
	}
	return model.JobStateCompleted
}
