// Package pool bounds concurrent encoder invocations. Capacity moves with
// the scaling policy: growing takes effect on the next admission, shrinking
// never terminates a running encode, slots above capacity drain as their
// tasks finish.
package pool

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/lambrk/compressor/model"
	"github.com/lambrk/compressor/service/encoder"
)

// ErrPoolFull is returned by TryAdmit when every slot is occupied.
var ErrPoolFull = errors.New("pool: all worker slots busy")

// Completion is the outcome of one finished slot, drained via
// PollCompletions.
type Completion struct {
	TaskID string
	SlotID int
	Result *encoder.Result
	Err    error
}

// Pool runs admitted tasks on the configured encoder, at most capacity at a
// time. All methods are safe for concurrent use, though the engine drives
// admission and polling from a single goroutine.
type Pool struct {
	encoder encoder.Service

	mux         sync.Mutex
	capacity    int
	active      int
	nextSlot    int
	cancels     map[string]context.CancelFunc
	completions []*Completion
}

// New creates a pool with the supplied initial capacity.
func New(service encoder.Service, capacity int) *Pool {
	if capacity < 1 {
		capacity = 1
	}
	return &Pool{
		encoder:  service,
		capacity: capacity,
		cancels:  make(map[string]context.CancelFunc),
	}
}

// Capacity returns the current admission limit.
func (p *Pool) Capacity() int {
	p.mux.Lock()
	defer p.mux.Unlock()
	return p.capacity
}

// Active returns the number of occupied slots, including slots above
// capacity that are still draining.
func (p *Pool) Active() int {
	p.mux.Lock()
	defer p.mux.Unlock()
	return p.active
}

// Draining returns how many running encodes exceed the current capacity.
func (p *Pool) Draining() int {
	p.mux.Lock()
	defer p.mux.Unlock()
	if p.active <= p.capacity {
		return 0
	}
	return p.active - p.capacity
}

// Resize updates the admission limit. Growing frees slots immediately;
// shrinking only stops new admissions and lets excess slots drain.
func (p *Pool) Resize(capacity int) {
	if capacity < 1 {
		capacity = 1
	}
	p.mux.Lock()
	defer p.mux.Unlock()
	p.capacity = capacity
}

// TryAdmit starts the task's encode in a freshly assigned slot. It returns
// ErrPoolFull when no slot is free; the caller retries on a later tick. The
// supplied task is mutated by the caller, not the pool; the pool only reads
// the fields that describe the invocation.
func (p *Pool) TryAdmit(ctx context.Context, task *model.Task, timeout time.Duration) (int, error) {
	p.mux.Lock()
	if p.active >= p.capacity {
		p.mux.Unlock()
		return 0, ErrPoolFull
	}
	p.active++
	p.nextSlot++
	slotID := p.nextSlot
	runCtx, cancel := context.WithCancel(ctx)
	p.cancels[task.ID] = cancel
	p.mux.Unlock()

	invocation := &encoder.Invocation{
		InputURL:         task.InputURL,
		OutputURL:        task.OutputURL,
		Resolution:       task.Resolution,
		Bitrate:          task.Bitrate,
		HDR:              task.HDR,
		HighQualityAudio: task.HighQualityAudio,
		Timeout:          timeout,
	}
	go p.run(runCtx, task.ID, slotID, invocation)
	return slotID, nil
}

func (p *Pool) run(ctx context.Context, taskID string, slotID int, invocation *encoder.Invocation) {
	result, err := p.encoder.Encode(ctx, invocation)
	p.mux.Lock()
	defer p.mux.Unlock()
	if cancel, ok := p.cancels[taskID]; ok {
		cancel()
		delete(p.cancels, taskID)
	}
	p.active--
	p.completions = append(p.completions, &Completion{
		TaskID: taskID,
		SlotID: slotID,
		Result: result,
		Err:    err,
	})
}

// PollCompletions drains and returns the completions accumulated since the
// previous call. A completion is delivered exactly once; polling again
// without new activity returns nil.
func (p *Pool) PollCompletions() []*Completion {
	p.mux.Lock()
	defer p.mux.Unlock()
	completions := p.completions
	p.completions = nil
	return completions
}

// Abort cancels every in-flight encode. Their completions still surface
// through PollCompletions once the underlying processes exit.
func (p *Pool) Abort() {
	p.mux.Lock()
	defer p.mux.Unlock()
	for taskID, cancel := range p.cancels {
		cancel()
		delete(p.cancels, taskID)
	}
}
