// Package scheduler drives one compression run: a single-goroutine control
// loop that samples host resources, lets the scaling policy move the worker
// pool, admits pending tasks and applies completions. All job, video and
// task mutation happens on this goroutine, so the registry needs no locks.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/lambrk/compressor/internal/clock"
	"github.com/lambrk/compressor/model"
	"github.com/lambrk/compressor/policy"
	"github.com/lambrk/compressor/progress"
	"github.com/lambrk/compressor/service/dao"
	"github.com/lambrk/compressor/service/encoder"
	"github.com/lambrk/compressor/service/event"
	"github.com/lambrk/compressor/service/pool"
	"github.com/lambrk/compressor/service/registry"
	"github.com/lambrk/compressor/service/sampler"
	"github.com/lambrk/compressor/tracing"
)

const (
	// DefaultSampleInterval paces the control loop.
	DefaultSampleInterval = time.Second
	// DefaultCancelGracePeriod is how long running encodes get to finish
	// after cancellation before they are forcibly terminated.
	DefaultCancelGracePeriod = 30 * time.Second
)

// Scheduler owns the lifecycle of one job from running to a terminal state.
type Scheduler struct {
	registry *registry.Registry
	pool     *pool.Pool
	policy   *policy.Policy
	sampler  sampler.Sampler
	events   *event.Service
	jobs     dao.Service[string, model.Job]
	tracker  *progress.Progress

	sampleInterval time.Duration
	gracePeriod    time.Duration
	taskTimeout    time.Duration

	workers int

	cancelOnce sync.Once
	cancelCh   chan struct{}
	done       chan struct{}

	// cancel bookkeeping, touched only by the loop goroutine
	cancelled      bool
	abortDeadline  time.Time
	abortRequested bool
}

// Option customises a scheduler.
type Option func(*Scheduler)

// WithSampleInterval overrides the control-loop tick.
func WithSampleInterval(interval time.Duration) Option {
	return func(s *Scheduler) {
		if interval > 0 {
			s.sampleInterval = interval
		}
	}
}

// WithCancelGracePeriod overrides how long running encodes survive a Stop.
func WithCancelGracePeriod(grace time.Duration) Option {
	return func(s *Scheduler) {
		if grace >= 0 {
			s.gracePeriod = grace
		}
	}
}

// WithTaskTimeout sets the per-encode timeout; zero disables it.
func WithTaskTimeout(timeout time.Duration) Option {
	return func(s *Scheduler) { s.taskTimeout = timeout }
}

// WithTracker attaches a progress tracker updated on every transition.
func WithTracker(tracker *progress.Progress) Option {
	return func(s *Scheduler) { s.tracker = tracker }
}

// New assembles a scheduler for the supplied job graph.
func New(aRegistry *registry.Registry, aPool *pool.Pool, aPolicy *policy.Policy, aSampler sampler.Sampler, events *event.Service, jobs dao.Service[string, model.Job], options ...Option) *Scheduler {
	result := &Scheduler{
		registry:       aRegistry,
		pool:           aPool,
		policy:         aPolicy,
		sampler:        aSampler,
		events:         events,
		jobs:           jobs,
		sampleInterval: DefaultSampleInterval,
		gracePeriod:    DefaultCancelGracePeriod,
		workers:        aPool.Capacity(),
		cancelCh:       make(chan struct{}),
		done:           make(chan struct{}),
	}
	for _, option := range options {
		option(result)
	}
	return result
}

// Done is closed once the job has reached a terminal state.
func (s *Scheduler) Done() <-chan struct{} {
	return s.done
}

// Stop requests cancellation: no further admissions, running encodes get
// the grace period, then the pool aborts them. Safe to call any number of
// times from any goroutine.
func (s *Scheduler) Stop() {
	s.cancelOnce.Do(func() { close(s.cancelCh) })
}

// Run executes the control loop until the job is terminal. It must be
// called exactly once, typically on its own goroutine.
func (s *Scheduler) Run(ctx context.Context) {
	defer close(s.done)
	job := s.registry.Job()
	ctx, span := tracing.StartSpan(ctx, "scheduler.run", "internal")
	span.WithAttributes(map[string]string{"jobId": job.ID, "jobName": job.Name})
	defer tracing.EndSpan(span, nil)

	if job.SetState(model.JobStateRunning) {
		s.publishJob(ctx, job)
		s.persist(ctx, job)
	}
	s.tracker.Update(progress.Delta{
		TotalVideos:  job.TotalVideos,
		TotalTasks:   job.TotalTasks,
		PendingTasks: s.registry.Pending(),
	})

	ticker := time.NewTicker(s.sampleInterval)
	defer ticker.Stop()
	cancelCh := s.cancelCh
	for {
		select {
		case <-ctx.Done():
			s.shutdown(job)
			return
		case <-cancelCh:
			s.beginCancel(ctx, job)
			// The channel stays closed; a nil channel keeps the select on
			// the ticker from then on.
			cancelCh = nil
		case <-ticker.C:
		}
		if s.tick(ctx, job) {
			return
		}
	}
}

// tick runs one control-loop iteration and reports whether the job reached
// a terminal state.
func (s *Scheduler) tick(ctx context.Context, job *model.Job) bool {
	sample, err := s.sampler.Sample(ctx)
	if err != nil {
		// Treated as resource pressure: the policy falls back to minimum
		// concurrency on a nil sample.
		log.Printf("scheduler: job %v: %v", job.ID, err)
		sample = nil
	}
	if sample != nil {
		sample.ActiveWorkers = s.pool.Active()
		sample.PendingTasks = s.registry.Pending()
	}

	target := s.policy.Target(sample, s.workers, job.MinWorkers, job.MaxWorkers)
	if target != s.workers {
		log.Printf("scheduler: job %v: scaling workers %v -> %v (cpu=%.1f%% mem=%.1f%%)",
			job.ID, s.workers, target, cpuOf(sample), memOf(sample))
		s.workers = target
		s.pool.Resize(target)
	}

	changed := s.applyCompletions(ctx, job)
	if s.cancelled {
		if s.pool.Active() > 0 && !s.abortRequested && clock.Now().After(s.abortDeadline) {
			log.Printf("scheduler: job %v: grace period elapsed, terminating %v running task(s)", job.ID, s.pool.Active())
			s.pool.Abort()
			s.abortRequested = true
		}
	} else {
		changed = s.admit(ctx) || changed
	}
	if changed {
		s.persist(ctx, job)
	}
	if sample != nil {
		s.events.Publish(ctx, event.NewSampleEvent(job.ID, *sample))
	}
	if s.registry.Finished() && s.pool.Active() == 0 {
		s.finish(ctx, job)
		return true
	}
	return false
}

// applyCompletions drains the pool and applies every task outcome.
func (s *Scheduler) applyCompletions(ctx context.Context, job *model.Job) bool {
	completions := s.pool.PollCompletions()
	for _, completion := range completions {
		task := s.registry.Task(completion.TaskID)
		if task == nil || task.State != model.TaskStateRunning {
			continue
		}
		var video *model.Video
		failed := true
		switch {
		case completion.Err != nil:
			video = s.registry.FailTask(task.ID, completion.Err.Error())
		case completion.Result.Failed():
			video = s.registry.FailTask(task.ID, failureReason(completion.Result))
		default:
			video = s.registry.CompleteTask(task.ID, completion.Result.OutputSize)
			failed = false
		}
		if failed {
			s.tracker.Update(progress.Delta{RunningTasks: -1, ActiveWorkers: -1, FailedTasks: 1})
		} else {
			s.tracker.Update(progress.Delta{RunningTasks: -1, ActiveWorkers: -1, CompletedTasks: 1})
		}
		s.events.Publish(ctx, event.NewTaskEvent(task))
		s.publishVideo(ctx, video)
		if failed && job.FailFast {
			log.Printf("scheduler: job %v: task %v failed, aborting remaining tasks", job.ID, task.ID)
			s.stopAdmissions(ctx)
		}
	}
	return len(completions) > 0
}

// publishVideo reports a video transition and its counter delta.
func (s *Scheduler) publishVideo(ctx context.Context, video *model.Video) {
	if video == nil {
		return
	}
	s.events.Publish(ctx, event.NewVideoEvent(video))
	if video.State == model.VideoStateCompleted {
		s.tracker.Update(progress.Delta{ProcessedVideos: 1})
	} else {
		s.tracker.Update(progress.Delta{FailedVideos: 1})
	}
}

// stopAdmissions aborts the pending backlog and reports every transition
// that caused.
func (s *Scheduler) stopAdmissions(ctx context.Context) {
	aborted, settled := s.registry.Stop()
	if len(aborted) > 0 {
		s.tracker.Update(progress.Delta{PendingTasks: -len(aborted), FailedTasks: len(aborted)})
	}
	for _, task := range aborted {
		s.events.Publish(ctx, event.NewTaskEvent(task))
	}
	for _, video := range settled {
		s.publishVideo(ctx, video)
	}
}

// admit fills free worker slots with pending tasks in creation order.
func (s *Scheduler) admit(ctx context.Context) bool {
	admitted := false
	for {
		task := s.registry.Peek()
		if task == nil {
			break
		}
		slotID, err := s.pool.TryAdmit(ctx, task, s.taskTimeout)
		if err != nil {
			if !errors.Is(err, pool.ErrPoolFull) {
				log.Printf("scheduler: job %v: admission failed: %v", task.JobID, err)
			}
			break
		}
		s.registry.Admit(slotID)
		s.tracker.Update(progress.Delta{PendingTasks: -1, RunningTasks: 1, ActiveWorkers: 1})
		s.events.Publish(ctx, event.NewTaskEvent(task))
		admitted = true
	}
	return admitted
}

// beginCancel moves the job to cancelled, aborts pending tasks and starts
// the grace-period clock for the running ones.
func (s *Scheduler) beginCancel(ctx context.Context, job *model.Job) {
	if s.cancelled {
		return
	}
	s.cancelled = true
	s.abortDeadline = clock.Now().Add(s.gracePeriod)
	s.stopAdmissions(ctx)
	if job.SetState(model.JobStateCancelled) {
		log.Printf("scheduler: job %v: cancelled, draining %v running task(s)", job.ID, s.pool.Active())
		s.publishJob(ctx, job)
	}
	s.persist(ctx, job)
	if s.gracePeriod == 0 && s.pool.Active() > 0 {
		s.pool.Abort()
		s.abortRequested = true
	}
}

// shutdown handles an external context cancellation: everything terminates
// immediately and the job is recorded as cancelled on a best-effort basis.
func (s *Scheduler) shutdown(job *model.Job) {
	s.registry.Stop()
	s.pool.Abort()
	background := context.Background()
	if job.SetState(model.JobStateCancelled) {
		s.publishJob(background, job)
	}
	s.persist(background, job)
}

// finish stamps the terminal state and emits the final snapshot.
func (s *Scheduler) finish(ctx context.Context, job *model.Job) {
	if job.SetState(s.registry.Outcome()) {
		s.publishJob(ctx, job)
	}
	s.persist(ctx, job)
	log.Printf("scheduler: job %v: %v (%v/%v tasks completed, %v failed)",
		job.ID, job.State, job.CompletedTasks, job.TotalTasks, job.FailedTasks)
}

func (s *Scheduler) publishJob(ctx context.Context, job *model.Job) {
	s.events.Publish(ctx, event.NewJobEvent(event.TypeJobStateChanged, job))
}

func (s *Scheduler) persist(ctx context.Context, job *model.Job) {
	if s.jobs == nil {
		return
	}
	if err := s.jobs.Save(ctx, job.Clone()); err != nil {
		log.Printf("scheduler: job %v: failed to persist snapshot: %v", job.ID, err)
	}
}

// failureReason summarises a failed encoder result for the task record.
func failureReason(result *encoder.Result) string {
	if result == nil {
		return "encoder returned no result"
	}
	if result.OutputMissing && result.ExitCode == 0 {
		return "encoder produced no output artefact"
	}
	reason := fmt.Sprintf("encoder exited with code %v", result.ExitCode)
	if stderr := strings.TrimSpace(result.Stderr); stderr != "" {
		if len(stderr) > 512 {
			stderr = stderr[len(stderr)-512:]
		}
		reason += ": " + stderr
	}
	return reason
}

func cpuOf(sample *model.ResourceSample) float64 {
	if sample == nil {
		return 0
	}
	return sample.CPUPercent
}

func memOf(sample *model.ResourceSample) float64 {
	if sample == nil {
		return 0
	}
	return sample.MemoryPercent
}
