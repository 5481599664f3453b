// Package progress provides a lightweight tracker that keeps aggregated
// counters (videos processed, tasks completed, failed, ...) for a single
// compression run. The tracker lives in the job context - every component
// that receives the context can atomically update the counters via the
// Delta helper without requiring a global registry.
package progress
