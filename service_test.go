package compressor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/lambrk/compressor/model"
	"github.com/lambrk/compressor/service/dao"
	"github.com/lambrk/compressor/service/encoder"
	"github.com/lambrk/compressor/service/event"
)

type fakeDiscovery struct {
	videos []*model.Video
	err    error
}

func (f *fakeDiscovery) Discover(ctx context.Context, inputURL string) ([]*model.Video, error) {
	if f.err != nil {
		return nil, f.err
	}
	result := make([]*model.Video, 0, len(f.videos))
	for _, video := range f.videos {
		result = append(result, video.Clone())
	}
	return result, nil
}

type fakeEncoder struct {
	encode func(ctx context.Context, invocation *encoder.Invocation) (*encoder.Result, error)
}

func (f *fakeEncoder) Encode(ctx context.Context, invocation *encoder.Invocation) (*encoder.Result, error) {
	return f.encode(ctx, invocation)
}

func (f *fakeEncoder) Probe(ctx context.Context, URL string) (*encoder.Metadata, error) {
	return &encoder.Metadata{Width: 1920, Height: 1080, Duration: 10}, nil
}

type fakeSampler struct{}

func (f *fakeSampler) Sample(ctx context.Context) (*model.ResourceSample, error) {
	return &model.ResourceSample{CPUPercent: 20, MemoryPercent: 30, SampledAt: time.Now()}, nil
}

func quickEncoder() *fakeEncoder {
	return &fakeEncoder{encode: func(ctx context.Context, _ *encoder.Invocation) (*encoder.Result, error) {
		return &encoder.Result{OutputSize: 1000}, nil
	}}
}

func twoVideos() *fakeDiscovery {
	return &fakeDiscovery{videos: []*model.Video{
		{Filename: "alpha.mp4", URL: "mem://localhost/in/alpha.mp4", Width: 1920, Height: 1080, Size: 10000, State: model.VideoStatePending},
		{Filename: "beta.mp4", URL: "mem://localhost/in/beta.mp4", Width: 1080, Height: 1920, Size: 8000, State: model.VideoStatePending},
	}}
}

var testLadder = []model.Profile{
	{Bitrate: "500k", Resolution: "854x480"},
	{Bitrate: "2000k", Resolution: "1920x1080"},
}

func fastConfig() *Config {
	config := DefaultConfig()
	config.SampleInterval = time.Millisecond
	config.CancelGracePeriod = 10 * time.Millisecond
	return config
}

func TestService_StartJobRunsToCompletion(t *testing.T) {
	var mu sync.Mutex
	var types []event.Type
	srv := New(
		WithConfig(fastConfig()),
		WithSampler(&fakeSampler{}),
		WithEncoder(quickEncoder()),
		WithDiscovery(twoVideos()),
		WithProfiles(testLadder, testLadder),
		WithReporter(func(e *event.Event) {
			mu.Lock()
			types = append(types, e.Type)
			mu.Unlock()
		}))

	jobID, err := srv.StartJob(context.Background(), &JobConfig{
		Name:      "nightly",
		InputURL:  "mem://localhost/in",
		OutputURL: "mem://localhost/out",
	})
	assert.Nil(t, err)
	assert.Nil(t, srv.WaitJob(context.Background(), jobID))

	job, err := srv.GetJobSnapshot(context.Background(), jobID)
	assert.Nil(t, err)
	assert.Equal(t, model.JobStateCompleted, job.State)
	assert.Equal(t, "nightly", job.Name)
	assert.Equal(t, 2, job.TotalVideos)
	assert.Equal(t, 4, job.TotalTasks)
	assert.Equal(t, 4, job.CompletedTasks)
	assert.Equal(t, 2, job.ProcessedVideos)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		created := false
		for _, aType := range types {
			if aType == event.TypeJobCreated {
				created = true
			}
		}
		return created
	}, time.Second, time.Millisecond)
	assert.Nil(t, srv.Shutdown(context.Background()))
}

func TestService_NoReporterDrainsEvents(t *testing.T) {
	config := fastConfig()
	config.EventBuffer = 1
	srv := New(
		WithConfig(config),
		WithSampler(&fakeSampler{}),
		WithEncoder(quickEncoder()),
		WithDiscovery(twoVideos()),
		WithProfiles(testLadder, testLadder))

	jobID, err := srv.StartJob(context.Background(), &JobConfig{
		InputURL:  "mem://localhost/in",
		OutputURL: "mem://localhost/out",
	})
	assert.Nil(t, err)
	assert.Nil(t, srv.WaitJob(context.Background(), jobID))

	job, err := srv.GetJobSnapshot(context.Background(), jobID)
	assert.Nil(t, err)
	assert.Equal(t, model.JobStateCompleted, job.State)

	// Transitions drain even with nobody reporting on them.
	assert.Eventually(t, func() bool {
		return srv.events.Backlog() == 0
	}, time.Second, time.Millisecond)
	assert.Nil(t, srv.Shutdown(context.Background()))
}

func TestService_StopJobCancels(t *testing.T) {
	release := make(chan struct{})
	blocking := &fakeEncoder{encode: func(ctx context.Context, _ *encoder.Invocation) (*encoder.Result, error) {
		select {
		case <-release:
			return &encoder.Result{OutputSize: 1000}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}}
	srv := New(
		WithConfig(fastConfig()),
		WithSampler(&fakeSampler{}),
		WithEncoder(blocking),
		WithDiscovery(twoVideos()),
		WithProfiles(testLadder, testLadder))
	defer close(release)

	jobID, err := srv.StartJob(context.Background(), &JobConfig{
		InputURL:  "mem://localhost/in",
		OutputURL: "mem://localhost/out",
	})
	assert.Nil(t, err)

	assert.Eventually(t, func() bool {
		snapshot, ok := srv.JobProgress(jobID)
		return ok && snapshot.RunningTasks > 0
	}, time.Second, time.Millisecond)

	assert.Nil(t, srv.StopJob(context.Background(), jobID))
	assert.Nil(t, srv.WaitJob(context.Background(), jobID))

	job, err := srv.GetJobSnapshot(context.Background(), jobID)
	assert.Nil(t, err)
	assert.Equal(t, model.JobStateCancelled, job.State)
	assert.Equal(t, 0, job.CompletedTasks)
	assert.Nil(t, srv.Shutdown(context.Background()))
}

func TestService_DiscoveryFailureIsFatal(t *testing.T) {
	srv := New(
		WithConfig(fastConfig()),
		WithSampler(&fakeSampler{}),
		WithEncoder(quickEncoder()),
		WithDiscovery(&fakeDiscovery{err: fmt.Errorf("permission denied")}))

	_, err := srv.StartJob(context.Background(), &JobConfig{
		InputURL:  "mem://localhost/in",
		OutputURL: "mem://localhost/out",
	})
	assert.NotNil(t, err)
	assert.Contains(t, err.Error(), "discovery failed")

	jobs, err := srv.ListJobs(context.Background())
	assert.Nil(t, err)
	assert.Equal(t, 0, len(jobs))
}

func TestService_ValidatesJobConfig(t *testing.T) {
	srv := New(
		WithConfig(fastConfig()),
		WithSampler(&fakeSampler{}),
		WithEncoder(quickEncoder()),
		WithDiscovery(twoVideos()))

	_, err := srv.StartJob(context.Background(), &JobConfig{OutputURL: "mem://localhost/out"})
	assert.NotNil(t, err)
	_, err = srv.StartJob(context.Background(), &JobConfig{InputURL: "mem://localhost/in"})
	assert.NotNil(t, err)
	_, err = srv.StartJob(context.Background(), &JobConfig{
		InputURL: "mem://localhost/in", OutputURL: "mem://localhost/out",
		MinWorkers: 4, MaxWorkers: 2,
	})
	assert.NotNil(t, err)
}

func TestService_StopUnknownJob(t *testing.T) {
	srv := New(
		WithConfig(fastConfig()),
		WithSampler(&fakeSampler{}),
		WithEncoder(quickEncoder()),
		WithDiscovery(twoVideos()))
	err := srv.StopJob(context.Background(), "no-such-job")
	assert.True(t, errors.Is(err, dao.ErrNotFound))
}

func TestService_ListJobsFiltersByState(t *testing.T) {
	srv := New(
		WithConfig(fastConfig()),
		WithSampler(&fakeSampler{}),
		WithEncoder(quickEncoder()),
		WithDiscovery(twoVideos()),
		WithProfiles(testLadder, testLadder))

	jobID, err := srv.StartJob(context.Background(), &JobConfig{
		InputURL:  "mem://localhost/in",
		OutputURL: "mem://localhost/out",
	})
	assert.Nil(t, err)
	assert.Nil(t, srv.WaitJob(context.Background(), jobID))

	completed, err := srv.ListJobs(context.Background(), dao.NewParameter("State", string(model.JobStateCompleted)))
	assert.Nil(t, err)
	assert.Equal(t, 1, len(completed))
	cancelled, err := srv.ListJobs(context.Background(), dao.NewParameter("State", string(model.JobStateCancelled)))
	assert.Nil(t, err)
	assert.Equal(t, 0, len(cancelled))
	assert.Nil(t, srv.Shutdown(context.Background()))
}
