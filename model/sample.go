package model

import "time"

// ResourceSample is a point-in-time reading of host utilisation together
// with scheduler occupancy counters. Samples are never mutated after
// creation; they flow from the sampler through the scaling policy to the
// reporter as values.
type ResourceSample struct {
	CPUPercent    float64   `json:"cpuPercent"`
	MemoryPercent float64   `json:"memoryPercent"`
	ActiveWorkers int       `json:"activeWorkers"`
	PendingTasks  int       `json:"pendingTasks"`
	SampledAt     time.Time `json:"sampledAt"`
}
