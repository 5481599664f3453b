package progress

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProgress_Update(t *testing.T) {
	tracker := &Progress{}
	tracker.Update(Delta{TotalVideos: 2, TotalTasks: 4, PendingTasks: 4})
	tracker.Update(Delta{PendingTasks: -1, RunningTasks: 1, ActiveWorkers: 1})
	tracker.Update(Delta{RunningTasks: -1, ActiveWorkers: -1, CompletedTasks: 1})

	snapshot := tracker.Snapshot()
	assert.Equal(t, 2, snapshot.TotalVideos)
	assert.Equal(t, 4, snapshot.TotalTasks)
	assert.Equal(t, 3, snapshot.PendingTasks)
	assert.Equal(t, 0, snapshot.RunningTasks)
	assert.Equal(t, 1, snapshot.CompletedTasks)
	assert.Equal(t, 0, snapshot.ActiveWorkers)
}

func TestProgress_OnChange(t *testing.T) {
	tracker := &Progress{}
	var mu sync.Mutex
	var seen []int
	tracker.OnChange(func(snapshot Progress) {
		mu.Lock()
		seen = append(seen, snapshot.CompletedTasks)
		mu.Unlock()
	})
	tracker.Update(Delta{CompletedTasks: 1})
	tracker.Update(Delta{CompletedTasks: 1})

	mu.Lock()
	defer mu.Unlock()
	assert.EqualValues(t, []int{1, 2}, seen)
}

func TestProgress_NilSafe(t *testing.T) {
	var tracker *Progress
	tracker.Update(Delta{CompletedTasks: 1})
	assert.Equal(t, 0, tracker.Snapshot().CompletedTasks)
}

func TestProgress_ContextCarried(t *testing.T) {
	ctx, tracker := WithNewTracker(context.Background(), "j1", "nightly", nil)
	fromCtx, ok := FromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, tracker, fromCtx)

	UpdateCtx(ctx, Delta{RunningTasks: 1})
	assert.Equal(t, 1, tracker.Snapshot().RunningTasks)

	_, ok = FromContext(context.Background())
	assert.False(t, ok)
}
