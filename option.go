package compressor

import (
	"github.com/lambrk/compressor/model"
	"github.com/lambrk/compressor/service/dao"
	"github.com/lambrk/compressor/service/discovery"
	"github.com/lambrk/compressor/service/encoder"
	"github.com/lambrk/compressor/service/event"
	"github.com/lambrk/compressor/service/messaging"
	"github.com/lambrk/compressor/service/sampler"
)

// Option represents a service option.
type Option func(*Service)

// WithConfig sets the service configuration.
func WithConfig(config *Config) Option {
	return func(s *Service) {
		if config != nil {
			s.config = config
		}
	}
}

// WithSampler overrides the host resource sampler.
func WithSampler(aSampler sampler.Sampler) Option {
	return func(s *Service) { s.sampler = aSampler }
}

// WithEncoder overrides the encoder collaborator.
func WithEncoder(anEncoder encoder.Service) Option {
	return func(s *Service) { s.encoder = anEncoder }
}

// WithDiscovery overrides the input discovery collaborator.
func WithDiscovery(aDiscovery discovery.Service) Option {
	return func(s *Service) { s.discovery = aDiscovery }
}

// WithJobDAO sets the job snapshot store (memory by default; the fs store
// persists snapshots across restarts).
func WithJobDAO(jobs dao.Service[string, model.Job]) Option {
	return func(s *Service) { s.jobs = jobs }
}

// WithEventQueue sets the transport behind the reporter handoff.
func WithEventQueue(queue messaging.Queue[event.Event]) Option {
	return func(s *Service) { s.queue = queue }
}

// WithReporter registers the handler receiving job, video, task and
// resource-sample events.
func WithReporter(reporter event.Handler) Option {
	return func(s *Service) { s.reporter = reporter }
}

// WithProfiles overrides the built-in quality ladders.
func WithProfiles(landscape, portrait []model.Profile) Option {
	return func(s *Service) {
		if len(landscape) > 0 {
			s.landscape = landscape
		}
		if len(portrait) > 0 {
			s.portrait = portrait
		}
	}
}
