package policy

import (
	"runtime"

	"github.com/lambrk/compressor/model"
)

// Thresholds holds the utilisation watermarks driving scale decisions, in
// percent.
type Thresholds struct {
	CPUHigh    float64 `json:"cpuHigh" yaml:"cpuHigh"`
	MemoryHigh float64 `json:"memoryHigh" yaml:"memoryHigh"`
	CPULow     float64 `json:"cpuLow" yaml:"cpuLow"`
	MemoryLow  float64 `json:"memoryLow" yaml:"memoryLow"`
}

// DefaultThresholds returns the stock 80/60 watermarks.
func DefaultThresholds() Thresholds {
	return Thresholds{CPUHigh: 80, MemoryHigh: 80, CPULow: 60, MemoryLow: 60}
}

// Policy decides the target worker count for a resource sample. HostCores
// acts as a hard ceiling regardless of the configured maximum.
type Policy struct {
	Thresholds Thresholds
	HostCores  int
}

// New returns a policy with the given thresholds capped at the host core
// count.
func New(thresholds Thresholds) *Policy {
	return &Policy{Thresholds: thresholds, HostCores: runtime.NumCPU()}
}

// Target computes the next worker count from the current one. The result
// moves at most one step per call and always stays within
// [minWorkers, min(maxWorkers, HostCores)].
func (p *Policy) Target(sample *model.ResourceSample, current, minWorkers, maxWorkers int) int {
	if minWorkers < 1 {
		minWorkers = 1
	}
	ceiling := maxWorkers
	if p.HostCores > 0 && ceiling > p.HostCores {
		ceiling = p.HostCores
	}
	if ceiling < minWorkers {
		ceiling = minWorkers
	}
	target := clamp(current, minWorkers, ceiling)

	t := p.Thresholds
	switch {
	case sample == nil:
		// No reading - assume pressure and stay conservative.
		target = minWorkers
	case sample.CPUPercent >= t.CPUHigh || sample.MemoryPercent >= t.MemoryHigh:
		target--
	case sample.CPUPercent < t.CPULow && sample.MemoryPercent < t.MemoryLow:
		target++
	}
	return clamp(target, minWorkers, ceiling)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
