package event

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/lambrk/compressor/model"
	"github.com/lambrk/compressor/service/messaging/memory"
)

func newBoundedService(buffer int) *Service {
	config := memory.DefaultConfig()
	config.QueueBuffer = buffer
	return New(memory.NewQueue[Event](config))
}

func TestPublishDropsSamplesUnderPressure(t *testing.T) {
	svc := newBoundedService(2)
	ctx := context.Background()

	job := model.NewJob("j1", "test", "in", "out")
	for i := 0; i < 5; i++ {
		svc.Publish(ctx, NewSampleEvent(job.ID, model.ResourceSample{CPUPercent: float64(i)}))
	}
	assert.Equal(t, 3, svc.DroppedSamples())
}

func TestPublishNeverDropsTransitions(t *testing.T) {
	svc := newBoundedService(1)
	ctx := context.Background()

	job := model.NewJob("j1", "test", "in", "out")
	task := &model.Task{ID: "t1", JobID: job.ID, State: model.TaskStatePending}

	svc.Publish(ctx, NewJobEvent(TypeJobCreated, job))
	for i := 0; i < 4; i++ {
		svc.Publish(ctx, NewTaskEvent(task))
	}

	var mu sync.Mutex
	var received []Type
	listenCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	svc.Listen(listenCtx, func(event *Event) {
		mu.Lock()
		received = append(received, event.Type)
		mu.Unlock()
	})

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 5
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, TypeJobCreated, received[0])
	for _, eventType := range received[1:] {
		assert.Equal(t, TypeTaskStateChanged, eventType)
	}
	assert.Equal(t, 0, svc.DroppedSamples())
}

func TestPublishPreservesTransitionOrder(t *testing.T) {
	svc := newBoundedService(1)
	ctx := context.Background()

	video := &model.Video{ID: "v1", JobID: "j1"}
	states := []model.VideoState{model.VideoStatePending, model.VideoStateCompleted}
	for _, state := range states {
		video.State = state
		svc.Publish(ctx, NewVideoEvent(video))
	}

	var mu sync.Mutex
	var seen []model.VideoState
	listenCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	svc.Listen(listenCtx, func(event *Event) {
		mu.Lock()
		seen = append(seen, event.Video.State)
		mu.Unlock()
	})

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 2
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, states, seen)
}
