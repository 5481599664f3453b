// Package memory provides an in-memory job store. All operations are
// thread-safe and return copies of the underlying records to prevent data
// races when callers mutate the returned instances.
package memory

import (
	"context"
	"sync"

	"github.com/lambrk/compressor/model"
	"github.com/lambrk/compressor/service/dao"
)

// Service implements an in-memory job storage keeping insertion order for
// listings.
type Service struct {
	jobs  map[string]*model.Job
	order []string
	mux   sync.RWMutex
}

// Compile-time check that Service implements the generic DAO interface.
var _ dao.Service[string, model.Job] = (*Service)(nil)

// Save persists (a clone of) the supplied job.
func (s *Service) Save(_ context.Context, job *model.Job) error {
	if job == nil {
		return dao.ErrNilEntity
	}
	if job.ID == "" {
		return dao.ErrInvalidID
	}

	s.mux.Lock()
	defer s.mux.Unlock()

	if _, ok := s.jobs[job.ID]; !ok {
		s.order = append(s.order, job.ID)
	}
	s.jobs[job.ID] = job.Clone()
	return nil
}

// Load retrieves a copy of the job or dao.ErrNotFound.
func (s *Service) Load(_ context.Context, id string) (*model.Job, error) {
	if id == "" {
		return nil, dao.ErrInvalidID
	}

	s.mux.RLock()
	job, ok := s.jobs[id]
	s.mux.RUnlock()

	if !ok {
		return nil, dao.ErrNotFound
	}
	return job.Clone(), nil
}

// Delete removes a job record.
func (s *Service) Delete(_ context.Context, id string) error {
	if id == "" {
		return dao.ErrInvalidID
	}

	s.mux.Lock()
	defer s.mux.Unlock()

	if _, ok := s.jobs[id]; !ok {
		return dao.ErrNotFound
	}
	delete(s.jobs, id)
	for i, jobID := range s.order {
		if jobID == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// List returns copies of stored jobs in insertion order. A "State"
// parameter narrows the result to jobs in any of the given states.
func (s *Service) List(_ context.Context, parameters ...*dao.Parameter) ([]*model.Job, error) {
	states := stateFilter(parameters)

	s.mux.RLock()
	defer s.mux.RUnlock()

	out := make([]*model.Job, 0, len(s.order))
	for _, id := range s.order {
		job := s.jobs[id]
		if len(states) > 0 && !states[string(job.State)] {
			continue
		}
		out = append(out, job.Clone())
	}
	return out, nil
}

func stateFilter(parameters []*dao.Parameter) map[string]bool {
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
	return states
}

// New constructor.
func New() *Service {
	return &Service{jobs: map[string]*model.Job{}}
}
