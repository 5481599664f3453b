package event

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/lambrk/compressor/service/messaging"
)

// Handler receives events in publish order. A slow handler delays delivery
// but never the scheduler; delivery failures are logged, not propagated.
type Handler func(event *Event)

// Service fans events from the scheduler to a handler through a bounded
// queue. Transitions that do not fit the buffer are parked in an overflow
// list and flushed before newer events, preserving order without ever
// blocking the publisher. Sample events are simply dropped when the buffer
// is full.
type Service struct {
	queue messaging.Queue[Event]

	mu             sync.Mutex
	overflow       []*Event
	droppedSamples int

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New creates an event service on top of the supplied queue.
func New(queue messaging.Queue[Event]) *Service {
	return &Service{
		queue:  queue,
		stopCh: make(chan struct{}),
	}
}

// Publish hands an event to the reporter without blocking. State
// transitions are buffered in-order even when the queue is full; sample
// events are dropped instead.
func (s *Service) Publish(ctx context.Context, event *Event) {
	if event == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	// Older parked transitions go first to preserve ordering.
	s.flushLocked(ctx)

	if len(s.overflow) == 0 {
		ok, err := s.queue.TryPublish(ctx, event)
		if err != nil {
			log.Printf("event: failed to publish %v event: %v", event.Type, err)
			return
		}
		if ok {
			return
		}
	}
	if !event.IsTransition() {
		s.droppedSamples++
		return
	}
	s.overflow = append(s.overflow, event)
}

func (s *Service) flushLocked(ctx context.Context) {
	for len(s.overflow) > 0 {
		ok, err := s.queue.TryPublish(ctx, s.overflow[0])
		if err != nil || !ok {
			return
		}
		s.overflow = s.overflow[1:]
	}
}

// Backlog returns how many transitions are parked awaiting queue space.
func (s *Service) Backlog() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.overflow)
}

// DroppedSamples returns how many sample events were discarded under
// backpressure.
func (s *Service) DroppedSamples() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.droppedSamples
}

// Listen consumes the queue and invokes handler for every event until ctx
// is cancelled or Stop is called. It runs on its own goroutine.
func (s *Service) Listen(ctx context.Context, handler Handler) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			default:
			}
			// Give parked transitions a chance to enter the queue even when
			// the publisher has gone quiet.
			s.mu.Lock()
			s.flushLocked(ctx)
			s.mu.Unlock()

			message, err := s.queue.Consume(ctx)
			if err != nil {
				return
			}
			if message == nil {
				// Polling transport (fs queue) with nothing pending.
				time.Sleep(20 * time.Millisecond)
				continue
			}
			handler(message.T())
			if err := message.Ack(); err != nil {
				log.Printf("event: ack failed: %v", err)
			}
		}
	}()
}

// Stop terminates the listener goroutine.
func (s *Service) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}
