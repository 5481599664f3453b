// Package sampler reads instantaneous host CPU and memory utilisation via
// gopsutil. The scheduler calls Sample on every control-loop tick, so the
// read must stay cheap: CPU utilisation is measured since the previous call
// rather than over a blocking interval.
package sampler

import (
	"context"
	"errors"
	"fmt"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/lambrk/compressor/internal/clock"
	"github.com/lambrk/compressor/model"
)

// ErrUnavailable signals that the host metrics interface could not be read.
// The scheduler falls back to minimum concurrency when it sees this.
var ErrUnavailable = errors.New("sampler: host metrics unavailable")

// Sampler produces resource samples.
type Sampler interface {
	Sample(ctx context.Context) (*model.ResourceSample, error)
}

// Service is the gopsutil-backed sampler.
type Service struct{}

var _ Sampler = (*Service)(nil)

// New creates a host sampler. The first Sample call primes the CPU counter
// so that subsequent calls return utilisation since the previous call.
func New() *Service {
	// interval=0 establishes the baseline for the next delta read.
	_, _ = cpu.Percent(0, false)
	return &Service{}
}

// Sample reads current CPU and memory utilisation. Occupancy counters
// (active workers, pending tasks) are filled in by the scheduler.
func (s *Service) Sample(ctx context.Context) (*model.ResourceSample, error) {
	cpuPercents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return nil, fmt.Errorf("%w: cpu: %v", ErrUnavailable, err)
	}
	if len(cpuPercents) == 0 {
		return nil, fmt.Errorf("%w: cpu: empty reading", ErrUnavailable)
	}
	virtualMemory, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: memory: %v", ErrUnavailable, err)
	}
	return &model.ResourceSample{
		CPUPercent:    cpuPercents[0],
		MemoryPercent: virtualMemory.UsedPercent,
		SampledAt:     clock.Now(),
	}, nil
}
