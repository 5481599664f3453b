package compressor

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/lambrk/compressor/internal/idgen"
	"github.com/lambrk/compressor/model"
	"github.com/lambrk/compressor/policy"
	"github.com/lambrk/compressor/progress"
	"github.com/lambrk/compressor/service/dao"
	jobmemory "github.com/lambrk/compressor/service/dao/job/memory"
	"github.com/lambrk/compressor/service/discovery"
	"github.com/lambrk/compressor/service/encoder"
	"github.com/lambrk/compressor/service/event"
	"github.com/lambrk/compressor/service/messaging"
	queuememory "github.com/lambrk/compressor/service/messaging/memory"
	"github.com/lambrk/compressor/service/pool"
	"github.com/lambrk/compressor/service/registry"
	"github.com/lambrk/compressor/service/sampler"
	"github.com/lambrk/compressor/service/scheduler"
	"github.com/lambrk/compressor/tracing"
)

// Service is the compression engine control surface.
type Service struct {
	config    *Config
	sampler   sampler.Sampler
	encoder   encoder.Service
	discovery discovery.Service
	jobs      dao.Service[string, model.Job]
	queue     messaging.Queue[event.Event]
	events    *event.Service
	reporter  event.Handler

	landscape []model.Profile
	portrait  []model.Profile

	mux  sync.Mutex
	runs map[string]*run

	listenCtx    context.Context
	listenCancel context.CancelFunc
}

// run is one live job with its scheduler and progress tracker.
type run struct {
	scheduler *scheduler.Scheduler
	tracker   *progress.Progress
}

// New creates a compression service; options override the defaults wired by
// ensureBaseSetup.
func New(options ...Option) *Service {
	result := &Service{
		config:    DefaultConfig(),
		landscape: model.DefaultLandscapeProfiles(),
		portrait:  model.DefaultPortraitProfiles(),
		runs:      make(map[string]*run),
	}
	for _, option := range options {
		option(result)
	}
	result.ensureBaseSetup()
	return result
}

// ensureBaseSetup fills collaborators left unset by options.
func (s *Service) ensureBaseSetup() {
	if s.sampler == nil {
		s.sampler = sampler.New()
	}
	if s.encoder == nil {
		s.encoder = encoder.New(encoder.DefaultConfig())
	}
	if s.discovery == nil {
		s.discovery = discovery.New(s.encoder)
	}
	if s.jobs == nil {
		s.jobs = jobmemory.New()
	}
	if s.queue == nil {
		s.queue = queuememory.NewQueue[event.Event](queuememory.Config{QueueBuffer: s.config.EventBuffer})
	}
	s.events = event.New(s.queue)
	s.listenCtx, s.listenCancel = context.WithCancel(context.Background())
	reporter := s.reporter
	if reporter == nil {
		// The queue still needs a consumer; without one transitions pile up
		// in the overflow list for the life of the process.
		reporter = func(*event.Event) {}
	}
	s.events.Listen(s.listenCtx, reporter)
}

// StartJob validates the request, discovers the input videos and launches
// the job's scheduler. Discovery or validation failures are fatal: the job
// never enters running. The returned id addresses StopJob and
// GetJobSnapshot.
func (s *Service) StartJob(ctx context.Context, jobConfig *JobConfig) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "service.startJob", "internal")
	var err error
	defer func() { tracing.EndSpan(span, err) }()

	if err = jobConfig.Validate(); err != nil {
		return "", err
	}
	minWorkers, maxWorkers := s.workerBounds(jobConfig)

	videos, err := s.discovery.Discover(ctx, jobConfig.InputURL)
	if err != nil {
		err = fmt.Errorf("discovery failed: %w", err)
		return "", err
	}

	name := jobConfig.Name
	if name == "" {
		name = jobConfig.InputURL
	}
	job := model.NewJob(idgen.New(), name, jobConfig.InputURL, jobConfig.OutputURL)
	job.MinWorkers = minWorkers
	job.MaxWorkers = maxWorkers
	job.FailFast = jobConfig.FailFast || s.config.FailFast
	job.HighQualityAudio = jobConfig.HighQualityAudio || s.config.HighQualityAudio
	span.WithAttributes(map[string]string{"jobId": job.ID})

	aRegistry, err := registry.New(job, videos, s.landscape, s.portrait)
	if err != nil {
		return "", err
	}
	if err = s.jobs.Save(ctx, job.Clone()); err != nil {
		err = fmt.Errorf("failed to persist job %v: %w", job.ID, err)
		return "", err
	}
	s.events.Publish(ctx, event.NewJobEvent(event.TypeJobCreated, job))

	tracker := &progress.Progress{JobID: job.ID, JobName: job.Name, StartedAt: job.CreatedAt}
	aPool := pool.New(s.encoder, minWorkers)
	aScheduler := scheduler.New(aRegistry, aPool, policy.New(s.config.Thresholds), s.sampler, s.events, s.jobs,
		scheduler.WithSampleInterval(s.config.SampleInterval),
		scheduler.WithCancelGracePeriod(s.config.CancelGracePeriod),
		scheduler.WithTaskTimeout(s.config.PerTaskTimeout),
		scheduler.WithTracker(tracker))

	s.mux.Lock()
	s.runs[job.ID] = &run{scheduler: aScheduler, tracker: tracker}
	s.mux.Unlock()

	log.Printf("service: job %v started: %v video(s), %v task(s), workers %v..%v",
		job.ID, job.TotalVideos, job.TotalTasks, minWorkers, maxWorkers)
	go func() {
		aScheduler.Run(context.Background())
		s.mux.Lock()
		delete(s.runs, job.ID)
		s.mux.Unlock()
	}()
	return job.ID, nil
}

func (s *Service) workerBounds(jobConfig *JobConfig) (int, int) {
	minWorkers := jobConfig.MinWorkers
	if minWorkers == 0 {
		minWorkers = s.config.MinWorkers
	}
	maxWorkers := jobConfig.MaxWorkers
	if maxWorkers == 0 {
		maxWorkers = s.config.MaxWorkers
	}
	if maxWorkers < minWorkers {
		maxWorkers = minWorkers
	}
	return minWorkers, maxWorkers
}

// StopJob cancels a running job: no new admissions, running encodes get the
// grace period, then forced termination. Stopping an already finished job
// is a no-op; an unknown id returns dao.ErrNotFound.
func (s *Service) StopJob(ctx context.Context, jobID string) error {
	s.mux.Lock()
	active, ok := s.runs[jobID]
	s.mux.Unlock()
	if ok {
		active.scheduler.Stop()
		return nil
	}
	if _, err := s.jobs.Load(ctx, jobID); err != nil {
		return err
	}
	return nil
}

// GetJobSnapshot returns the last persisted snapshot of a job: consistent,
// isolated from live scheduler state.
func (s *Service) GetJobSnapshot(ctx context.Context, jobID string) (*model.Job, error) {
	return s.jobs.Load(ctx, jobID)
}

// ListJobs returns job snapshots, optionally filtered (e.g. by the "State"
// parameter).
func (s *Service) ListJobs(ctx context.Context, parameters ...*dao.Parameter) ([]*model.Job, error) {
	return s.jobs.List(ctx, parameters...)
}

// JobProgress returns the live counter snapshot of a running job; finished
// jobs report ok=false and the DAO snapshot is authoritative.
func (s *Service) JobProgress(jobID string) (progress.Progress, bool) {
	s.mux.Lock()
	active, ok := s.runs[jobID]
	s.mux.Unlock()
	if !ok {
		return progress.Progress{}, false
	}
	return active.tracker.Snapshot(), true
}

// WaitJob blocks until the job reaches a terminal state or ctx expires.
// Unknown or already finished jobs return immediately.
func (s *Service) WaitJob(ctx context.Context, jobID string) error {
	s.mux.Lock()
	active, ok := s.runs[jobID]
	s.mux.Unlock()
	if !ok {
		return nil
	}
	select {
	case <-active.scheduler.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops every running job, waits for them to settle and tears the
// reporter down.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mux.Lock()
	active := make([]*run, 0, len(s.runs))
	for _, aRun := range s.runs {
		active = append(active, aRun)
	}
	s.mux.Unlock()
	for _, aRun := range active {
		aRun.scheduler.Stop()
	}
	for _, aRun := range active {
		select {
		case <-aRun.scheduler.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.events.Stop()
	s.listenCancel()
	if closer, ok := s.encoder.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
