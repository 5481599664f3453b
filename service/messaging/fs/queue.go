// Package fs implements a filesystem-backed messaging queue used to journal
// reporter events durably. Messages are JSON documents moved between
// pending/, processing/, completed/ and failed/ directories; storage goes
// through viant/afs so the base location may use any registered scheme.
package fs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/storage"
	"github.com/viant/afs/url"

	"github.com/lambrk/compressor/service/messaging"
)

// MessageState represents the state of a message in the filesystem queue.
type MessageState string

const (
	MessageStatePending    MessageState = "pending"
	MessageStateProcessing MessageState = "processing"
	MessageStateCompleted  MessageState = "completed"
	MessageStateFailed     MessageState = "failed"
)

// Config holds configuration for the filesystem queue.
type Config struct {
	BaseURL    string
	MaxRetries int
}

// DefaultConfig returns a default queue configuration rooted under /tmp.
func DefaultConfig() Config {
	return Config{
		BaseURL:    "/tmp/compressor/queue",
		MaxRetries: 3,
	}
}

// Message implements messaging.Message for the filesystem queue.
type Message[T any] struct {
	ID        string       `json:"id"`
	Data      T            `json:"data"`
	State     MessageState `json:"state"`
	Error     string       `json:"error,omitempty"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
	Retries   int          `json:"retries"`

	queue     *Queue[T]
	name      string
	processed bool
	mu        sync.Mutex
}

// T returns the message payload.
func (m *Message[T]) T() *T {
	return &m.Data
}

// Ack moves the message to the completed directory.
func (m *Message[T]) Ack() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.processed {
		return fmt.Errorf("message already processed")
	}
	m.processed = true
	m.State = MessageStateCompleted
	m.UpdatedAt = time.Now()
	return m.queue.move(context.Background(), m, m.queue.completedURL)
}

// Nack moves the message to the failed directory; failed messages are
// redelivered ahead of pending ones until MaxRetries is exceeded.
func (m *Message[T]) Nack(err error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.processed {
		return fmt.Errorf("message already processed")
	}
	m.processed = true
	m.State = MessageStateFailed
	if err != nil {
		m.Error = err.Error()
	}
	m.Retries++
	m.UpdatedAt = time.Now()
	return m.queue.move(context.Background(), m, m.queue.failedURL)
}

// Queue implements a filesystem-based messaging.Queue.
type Queue[T any] struct {
	fs            afs.Service
	config        Config
	pendingURL    string
	processingURL string
	completedURL  string
	failedURL     string
	dlqURL        string
	mu            sync.Mutex
}

// NewQueue creates a filesystem queue rooted at config.BaseURL.
func NewQueue[T any](fs afs.Service, config Config) (*Queue[T], error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}
	q := &Queue[T]{
		fs:            fs,
		config:        config,
		pendingURL:    url.Join(config.BaseURL, "pending"),
		processingURL: url.Join(config.BaseURL, "processing"),
		completedURL:  url.Join(config.BaseURL, "completed"),
		failedURL:     url.Join(config.BaseURL, "failed"),
		dlqURL:        url.Join(config.BaseURL, "dlq"),
	}
	ctx := context.Background()
	for _, dir := range []string{q.pendingURL, q.processingURL, q.completedURL, q.failedURL, q.dlqURL} {
		if exists, _ := fs.Exists(ctx, dir); !exists {
			if err := fs.Create(ctx, dir, file.DefaultDirOsMode, true); err != nil {
				return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
			}
		}
	}
	return q, nil
}

// Publish adds a new message to the pending directory.
func (q *Queue[T]) Publish(ctx context.Context, t *T) error {
	message := &Message[T]{
		ID:        uuid.New().String(),
		Data:      *t,
		State:     MessageStatePending,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	message.name = fmt.Sprintf("%d-%s.json", message.CreatedAt.UnixNano(), message.ID)
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return q.fs.Upload(ctx, url.Join(q.pendingURL, message.name), file.DefaultFileOsMode, bytes.NewReader(data))
}

// TryPublish always accepts: durability is the backpressure valve here.
func (q *Queue[T]) TryPublish(ctx context.Context, t *T) (bool, error) {
	if err := q.Publish(ctx, t); err != nil {
		return false, err
	}
	return true, nil
}

// Consume retrieves the oldest message, preferring failed messages eligible
// for retry. It returns (nil, nil) when the queue is empty.
func (q *Queue[T]) Consume(ctx context.Context) (messaging.Message[T], error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if message, err := q.takeFrom(ctx, q.failedURL, true); message != nil || err != nil {
		return orNil(message), err
	}
	message, err := q.takeFrom(ctx, q.pendingURL, false)
	return orNil(message), err
}

// orNil avoids returning a typed nil inside the messaging.Message interface.
func orNil[T any](m *Message[T]) messaging.Message[T] {
	if m == nil {
		return nil
	}
	return m
}

// takeFrom claims the oldest JSON document in dir and moves it into the
// processing directory.
func (q *Queue[T]) takeFrom(ctx context.Context, dir string, retrying bool) (*Message[T], error) {
	objects, err := q.fs.List(ctx, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	var oldest storage.Object
	for _, object := range objects {
		if object.IsDir() || !strings.HasSuffix(object.Name(), ".json") {
			continue
		}
		if oldest == nil || object.Name() < oldest.Name() {
			oldest = object
		}
	}
	if oldest == nil {
		return nil, nil
	}

	data, err := q.fs.DownloadWithURL(ctx, oldest.URL())
	if err != nil {
		return nil, fmt.Errorf("failed to read message %s: %w", oldest.URL(), err)
	}
	message := &Message[T]{}
	if err := json.Unmarshal(data, message); err != nil {
		// Park unreadable documents in the DLQ.
		_ = q.fs.Move(ctx, oldest.URL(), url.Join(q.dlqURL, "invalid-"+oldest.Name()))
		return nil, fmt.Errorf("failed to unmarshal message %s: %w", oldest.URL(), err)
	}
	if retrying && message.Retries > q.config.MaxRetries {
		if err := q.fs.Move(ctx, oldest.URL(), url.Join(q.dlqURL, oldest.Name())); err != nil {
			return nil, fmt.Errorf("failed to move message to dlq: %w", err)
		}
		return nil, nil
	}

	message.State = MessageStateProcessing
	message.UpdatedAt = time.Now()
	message.queue = q
	message.name = oldest.Name()
	updated, err := json.Marshal(message)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}
	if err := q.fs.Upload(ctx, url.Join(q.processingURL, message.name), file.DefaultFileOsMode, bytes.NewReader(updated)); err != nil {
		return nil, fmt.Errorf("failed to move message to processing: %w", err)
	}
	if err := q.fs.Delete(ctx, oldest.URL()); err != nil {
		return nil, fmt.Errorf("failed to remove claimed message: %w", err)
	}
	return message, nil
}

// move re-serialises the message into destDir and removes it from the
// processing directory.
func (q *Queue[T]) move(ctx context.Context, m *Message[T], destDir string) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	if err := q.fs.Upload(ctx, url.Join(destDir, m.name), file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to store message: %w", err)
	}
	return q.fs.Delete(ctx, url.Join(q.processingURL, m.name))
}

// ensure Queue implements messaging.Queue interface
var _ messaging.Queue[any] = (*Queue[any])(nil)
