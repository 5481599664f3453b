package compressor

import (
	"context"
	"fmt"
	"time"

	"github.com/viant/afs"
	"gopkg.in/yaml.v3"

	"github.com/lambrk/compressor/policy"
)

// Config carries service-wide defaults. Every job inherits these unless its
// JobConfig overrides them.
type Config struct {
	// MinWorkers is the concurrency floor the pool never goes below.
	MinWorkers int `json:"minWorkers" yaml:"minWorkers"`
	// MaxWorkers is the requested ceiling; the host core count still caps it.
	MaxWorkers int `json:"maxWorkers" yaml:"maxWorkers"`

	// Thresholds are the utilisation watermarks driving scale decisions.
	Thresholds policy.Thresholds `json:"thresholds" yaml:"thresholds"`

	// FailFast aborts a job's remaining tasks on the first task failure.
	FailFast bool `json:"failFast" yaml:"failFast"`
	// HighQualityAudio selects the eac3 audio codec over aac.
	HighQualityAudio bool `json:"highQualityAudio" yaml:"highQualityAudio"`

	// PerTaskTimeout bounds one encode invocation; zero disables it.
	PerTaskTimeout time.Duration `json:"perTaskTimeout" yaml:"perTaskTimeout"`
	// SampleInterval paces the scheduler control loop.
	SampleInterval time.Duration `json:"sampleInterval" yaml:"sampleInterval"`
	// CancelGracePeriod is how long running encodes get to finish after
	// StopJob before forced termination.
	CancelGracePeriod time.Duration `json:"cancelGracePeriod" yaml:"cancelGracePeriod"`

	// EventBuffer sizes the reporter queue.
	EventBuffer int `json:"eventBuffer" yaml:"eventBuffer"`
}

// DefaultConfig returns the stock service configuration.
func DefaultConfig() *Config {
	return &Config{
		MinWorkers:        1,
		MaxWorkers:        4,
		Thresholds:        policy.DefaultThresholds(),
		PerTaskTimeout:    0,
		SampleInterval:    time.Second,
		CancelGracePeriod: 30 * time.Second,
		EventBuffer:       256,
	}
}

// Validate checks configuration consistency.
func (c *Config) Validate() error {
	if c.MinWorkers < 1 {
		return fmt.Errorf("minWorkers has to be at least 1, had: %v", c.MinWorkers)
	}
	if c.MaxWorkers < c.MinWorkers {
		return fmt.Errorf("maxWorkers (%v) has to be >= minWorkers (%v)", c.MaxWorkers, c.MinWorkers)
	}
	t := c.Thresholds
	for _, watermark := range []struct {
		name  string
		value float64
	}{
		{"cpuHigh", t.CPUHigh}, {"memoryHigh", t.MemoryHigh},
		{"cpuLow", t.CPULow}, {"memoryLow", t.MemoryLow},
	} {
		if watermark.value <= 0 || watermark.value > 100 {
			return fmt.Errorf("threshold %v out of range (0, 100]: %v", watermark.name, watermark.value)
		}
	}
	if t.CPULow >= t.CPUHigh || t.MemoryLow >= t.MemoryHigh {
		return fmt.Errorf("low watermarks have to sit below high watermarks")
	}
	if c.SampleInterval <= 0 {
		return fmt.Errorf("sampleInterval has to be positive, had: %v", c.SampleInterval)
	}
	if c.CancelGracePeriod < 0 {
		return fmt.Errorf("cancelGracePeriod cannot be negative, had: %v", c.CancelGracePeriod)
	}
	return nil
}

// LoadConfig reads a YAML service configuration from the supplied URL
// (file path or any afs-supported scheme); unset fields keep their defaults.
func LoadConfig(ctx context.Context, URL string) (*Config, error) {
	fs := afs.New()
	data, err := fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("failed to load config %s: %w", URL, err)
	}
	result := DefaultConfig()
	if err := yaml.Unmarshal(data, result); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", URL, err)
	}
	if err := result.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", URL, err)
	}
	return result, nil
}

// JobConfig describes one compression run. Zero-valued limits inherit the
// service configuration.
type JobConfig struct {
	Name      string `json:"name" yaml:"name"`
	InputURL  string `json:"inputURL" yaml:"inputURL"`
	OutputURL string `json:"outputURL" yaml:"outputURL"`

	MinWorkers       int  `json:"minWorkers,omitempty" yaml:"minWorkers,omitempty"`
	MaxWorkers       int  `json:"maxWorkers,omitempty" yaml:"maxWorkers,omitempty"`
	FailFast         bool `json:"failFast,omitempty" yaml:"failFast,omitempty"`
	HighQualityAudio bool `json:"highQualityAudio,omitempty" yaml:"highQualityAudio,omitempty"`
}

// Validate checks the job request.
func (c *JobConfig) Validate() error {
	if c == nil {
		return fmt.Errorf("job config was nil")
	}
	if c.InputURL == "" {
		return fmt.Errorf("inputURL was empty")
	}
	if c.OutputURL == "" {
		return fmt.Errorf("outputURL was empty")
	}
	if c.MinWorkers < 0 || c.MaxWorkers < 0 {
		return fmt.Errorf("worker limits cannot be negative")
	}
	if c.MaxWorkers > 0 && c.MinWorkers > c.MaxWorkers {
		return fmt.Errorf("minWorkers (%v) exceeds maxWorkers (%v)", c.MinWorkers, c.MaxWorkers)
	}
	return nil
}
