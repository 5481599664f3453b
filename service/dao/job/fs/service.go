// Package fs provides a filesystem-backed job store so that finished runs
// survive process restarts and can be inspected as plain JSON documents.
// Storage goes through viant/afs, so the base location may be a local path,
// mem://, s3:// or any other registered scheme.
package fs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sync"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"

	"github.com/lambrk/compressor/model"
	"github.com/lambrk/compressor/service/dao"
)

// Service implements a filesystem-based job storage.
type Service struct {
	baseURL string
	fs      afs.Service
	mu      sync.RWMutex
}

// Ensure Service implements dao.Service.
var _ dao.Service[string, model.Job] = (*Service)(nil)

// Save persists a job as a JSON document under the base URL.
func (s *Service) Save(ctx context.Context, job *model.Job) error {
	if job == nil {
		return dao.ErrNilEntity
	}
	if job.ID == "" {
		return dao.ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	URL := s.jobURL(job.ID)
	if err = s.fs.Upload(ctx, URL, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to save job to %s: %w", URL, err)
	}
	return nil
}

// Load retrieves a job document.
func (s *Service) Load(ctx context.Context, id string) (*model.Job, error) {
	if id == "" {
		return nil, dao.ErrInvalidID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	URL := s.jobURL(id)
	exists, err := s.fs.Exists(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("failed to check job %s: %w", id, err)
	}
	if !exists {
		return nil, dao.ErrNotFound
	}
	data, err := s.fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("failed to read job %s: %w", id, err)
	}
	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job %s: %w", id, err)
	}
	return &job, nil
}

// Delete removes a job document.
func (s *Service) Delete(ctx context.Context, id string) error {
	if id == "" {
		return dao.ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	URL := s.jobURL(id)
	exists, err := s.fs.Exists(ctx, URL)
	if err != nil {
		return fmt.Errorf("failed to check job %s: %w", id, err)
	}
	if !exists {
		return dao.ErrNotFound
	}
	return s.fs.Delete(ctx, URL)
}

// List returns all stored jobs, optionally narrowed by a "State" parameter.
func (s *Service) List(ctx context.Context, parameters ...*dao.Parameter) ([]*model.Job, error) {
	states := map[string]bool{}
	for _, parameter := range parameters {
		if parameter == nil || parameter.Name != "State" {
			continue
		}
		switch value := parameter.Value.(type) {
		case string:
			states[value] = true
		case []string:
			for _, state := range value {
				states[state] = true
			}
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	objects, err := s.fs.List(ctx, s.baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs at %s: %w", s.baseURL, err)
	}
	var out []*model.Job
	for _, object := range objects {
		if object.IsDir() || path.Ext(object.Name()) != ".json" {
			continue
		}
		data, err := s.fs.DownloadWithURL(ctx, object.URL())
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", object.URL(), err)
		}
		job := &model.Job{}
		if err := json.Unmarshal(data, job); err != nil {
			continue // skip foreign documents
		}
		if len(states) > 0 && !states[string(job.State)] {
			continue
		}
		out = append(out, job)
	}
	return out, nil
}

func (s *Service) jobURL(id string) string {
	return url.Join(s.baseURL, id+".json")
}

// New creates a job store rooted at baseURL.
func New(baseURL string) *Service {
	return &Service{baseURL: baseURL, fs: afs.New()}
}
