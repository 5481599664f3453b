package progress

import (
	"context"
	"sync"
	"time"
)

// Delta represents an incremental counter change emitted by the scheduler or
// the worker pool. The fields are signed and therefore can be either
// positive (increment) or negative (decrement).
type Delta struct {
	TotalVideos     int
	ProcessedVideos int
	FailedVideos    int
	TotalTasks      int
	CompletedTasks  int
	FailedTasks     int
	RunningTasks    int
	PendingTasks    int
	ActiveWorkers   int
}

// Progress keeps aggregated counters for one compression job. It is safe
// for concurrent use.
type Progress struct {
	// Identification - informative only, filled when the job starts.
	JobID     string
	JobName   string
	StartedAt time.Time

	// Counters - modified via Update().
	TotalVideos     int
	ProcessedVideos int
	FailedVideos    int
	TotalTasks      int
	CompletedTasks  int
	FailedTasks     int
	RunningTasks    int
	PendingTasks    int
	ActiveWorkers   int

	sync.Mutex
	onChange func(Progress)
}

// Update applies the supplied delta to the tracker. It is safe to call from
// multiple goroutines. If an onChange callback has been registered it will
// be invoked with a copy of the updated tracker outside the critical section
// so that the callback can perform slow operations (e.g. JSON encoding, I/O)
// without blocking scheduler internals.
func (p *Progress) Update(d Delta) {
	if p == nil {
		return
	}

	p.Lock()

	p.TotalVideos += d.TotalVideos
	p.ProcessedVideos += d.ProcessedVideos
	p.FailedVideos += d.FailedVideos
	p.TotalTasks += d.TotalTasks
	p.CompletedTasks += d.CompletedTasks
	p.FailedTasks += d.FailedTasks
	p.RunningTasks += d.RunningTasks
	p.PendingTasks += d.PendingTasks
	p.ActiveWorkers += d.ActiveWorkers

	snapshot := *p
	cb := p.onChange

	p.Unlock()

	if cb != nil {
		cb(snapshot)
	}
}

// Snapshot returns a copy of the tracker suitable for read-only inspection.
func (p *Progress) Snapshot() Progress {
	if p == nil {
		return Progress{}
	}
	p.Lock()
	defer p.Unlock()
	return *p
}

// OnChange registers a callback that is invoked after every successful
// Update. Passing nil disables the callback. Only one callback can be
// active; subsequent calls overwrite the previous value.
func (p *Progress) OnChange(cb func(Progress)) {
	if p == nil {
		return
	}
	p.Lock()
	p.onChange = cb
	p.Unlock()
}

type trackerKeyT struct{}

var trackerKey trackerKeyT

// WithNewTracker creates a new Progress tracker, embeds it in a derived
// context and returns both. The caller may optionally pass an onChange
// callback that will be invoked after every counter update.
func WithNewTracker(ctx context.Context, jobID, jobName string, onChange func(Progress)) (context.Context, *Progress) {
	if ctx == nil {
		ctx = context.Background()
	}
	tr := &Progress{
		JobID:     jobID,
		JobName:   jobName,
		StartedAt: time.Now(),
		onChange:  onChange,
	}
	return context.WithValue(ctx, trackerKey, tr), tr
}

// FromContext extracts the Progress tracker from ctx. The second return
// value is false when the context carries no tracker.
func FromContext(ctx context.Context) (*Progress, bool) {
	if ctx == nil {
		return nil, false
	}
	tr, ok := ctx.Value(trackerKey).(*Progress)
	return tr, ok
}

// UpdateCtx is a helper that looks up the tracker in ctx (if any) and
// applies the supplied delta.
func UpdateCtx(ctx context.Context, d Delta) {
	if tr, ok := FromContext(ctx); ok {
		tr.Update(d)
	}
}
