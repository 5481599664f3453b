package model

// VideoState aggregates the states of the video's tasks.
type VideoState string

const (
	VideoStatePending   VideoState = "pending"
	VideoStateCompleted VideoState = "completed"
	VideoStateFailed    VideoState = "failed"
)

// Video is one discovered source file within a job. A video owns one task
// per quality profile applicable to its orientation.
type Video struct {
	ID       string `json:"id"`
	JobID    string `json:"jobId"`
	Filename string `json:"filename"`
	URL      string `json:"url"`

	Width    int     `json:"width"`
	Height   int     `json:"height"`
	Duration float64 `json:"duration"`
	Size     int64   `json:"size"`

	State VideoState `json:"state"`

	// OutputURL is the per-video output directory renditions are written to.
	OutputURL string `json:"outputURL"`
}

// Portrait reports whether the source is taller than wide.
func (v *Video) Portrait() bool {
	return v.Height > v.Width
}

// Clone returns a copy safe to hand outside the scheduler loop.
func (v *Video) Clone() *Video {
	if v == nil {
		return nil
	}
	clone := *v
	return &clone
}
