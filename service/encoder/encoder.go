// Package encoder invokes ffmpeg/ffprobe through a viant/gosh command
// runner. The engine only depends on the narrow Service contract; the
// default implementation runs on the local host and can target remote hosts
// over ssh the same way, with credentials resolved through viant/scy.
package encoder

import (
	"context"
	"errors"
	"time"

	"github.com/lambrk/compressor/model"
)

// ErrTimeout is returned when an encode exceeds its per-task timeout and was
// forcibly terminated.
var ErrTimeout = errors.New("encoder: invocation timed out")

// Host identifies where encoder commands run. The zero value targets the
// local host.
type Host struct {
	// URL of the target host, e.g. "ssh://build-box:22"; empty or
	// "bash://localhost/" runs locally.
	URL string `json:"url,omitempty" yaml:"url,omitempty"`
	// Credentials is a scy secret resource used for ssh hosts.
	Credentials string `json:"credentials,omitempty" yaml:"credentials,omitempty"`
}

// Invocation describes one encode: a source file rendered at one quality
// rung.
type Invocation struct {
	InputURL         string
	OutputURL        string
	Resolution       string
	Bitrate          string
	HDR              *model.HDRMetadata
	HighQualityAudio bool
	Timeout          time.Duration
}

// Metadata is the probed description of a source file.
type Metadata struct {
	Width    int
	Height   int
	Duration float64
	Size     int64
}

// Result captures the outcome of an encode invocation. A non-zero exit code
// or a missing output artefact means the task failed; neither is an error
// at this layer.
type Result struct {
	ExitCode      int
	Stderr        string
	OutputSize    int64
	OutputMissing bool
}

// Failed reports whether the invocation produced a usable artefact.
func (r *Result) Failed() bool {
	return r == nil || r.ExitCode != 0 || r.OutputMissing
}

// Service is the external encoder collaborator boundary.
type Service interface {
	// Encode runs one invocation to completion. Cancelling ctx terminates
	// the underlying process.
	Encode(ctx context.Context, invocation *Invocation) (*Result, error)

	// Probe extracts dimensions and duration from a source file.
	Probe(ctx context.Context, URL string) (*Metadata, error)
}
