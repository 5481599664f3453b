// Package discovery enumerates the source videos of a job. The default
// implementation lists the input folder through viant/afs and probes each
// candidate via the encoder collaborator; the engine consumes the result
// once at job creation and never re-scans.
package discovery

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/viant/afs"

	"github.com/lambrk/compressor/model"
	"github.com/lambrk/compressor/service/encoder"
)

// Prober extracts source metadata; satisfied by encoder.Runner.
type Prober interface {
	Probe(ctx context.Context, URL string) (*encoder.Metadata, error)
}

// Service supplies the initial list of videos for a job.
type Service interface {
	Discover(ctx context.Context, inputURL string) ([]*model.Video, error)
}

// DefaultExtensions are the source containers considered for compression.
var DefaultExtensions = []string{".mp4", ".mov"}

// FS discovers videos by listing a folder URL.
type FS struct {
	fs         afs.Service
	prober     Prober
	extensions map[string]bool
}

var _ Service = (*FS)(nil)

// New creates a folder-listing discovery service.
func New(prober Prober, extensions ...string) *FS {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	allowed := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		allowed[strings.ToLower(ext)] = true
	}
	return &FS{fs: afs.New(), prober: prober, extensions: allowed}
}

// Discover lists inputURL and probes every matching file. A folder that
// cannot be listed is fatal; a file that cannot be probed is skipped with
// the problem recorded on the returned error only if nothing was found.
func (s *FS) Discover(ctx context.Context, inputURL string) ([]*model.Video, error) {
	objects, err := s.fs.List(ctx, inputURL)
	if err != nil {
		return nil, fmt.Errorf("failed to list input folder %s: %w", inputURL, err)
	}
	var videos []*model.Video
	var probeErr error
	for _, object := range objects {
		if object.IsDir() || !s.extensions[strings.ToLower(path.Ext(object.Name()))] {
			continue
		}
		metadata, err := s.prober.Probe(ctx, object.URL())
		if err != nil {
			probeErr = err
			continue
		}
		videos = append(videos, &model.Video{
			Filename: object.Name(),
			URL:      object.URL(),
			Width:    metadata.Width,
			Height:   metadata.Height,
			Duration: metadata.Duration,
			Size:     object.Size(),
			State:    model.VideoStatePending,
		})
	}
	if len(videos) == 0 && probeErr != nil {
		return nil, fmt.Errorf("failed to probe inputs in %s: %w", inputURL, probeErr)
	}
	return videos, nil
}
