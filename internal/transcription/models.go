package transcription

import (
	"context"
	"strings"
	"time"
)

// Status represents the lifecycle state of model initialization
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusLoading    Status = "loading"
	StatusLoaded     Status = "loaded"
	StatusFailed     Status = "failed"
)

// Model is an opaque handle to a loaded transcription model. The handle is
// read-mostly: it is installed once by the Loader and used concurrently by
// any number of requests without mutation.
type Model interface {
	// Transcribe runs the model against an audio file on disk and returns
	// the fully drained, ordered segment sequence.
	Transcribe(ctx context.Context, path string) (*Result, error)
	// Close releases model resources at shutdown.
	Close() error
}

// Segment is a timed span of recognized speech; offsets are relative to
// the start of the audio
type Segment struct {
	Start time.Duration
	End   time.Duration
	Text  string
}

// Result holds the output of one transcription: the ordered segments the
// model produced and the detected language code
type Result struct {
	Segments []Segment
	Language string
}

// Text concatenates segment text in order with no separator and trims
// surrounding whitespace. An empty segment sequence yields an empty string.
func (r *Result) Text() string {
	var b strings.Builder
	for _, segment := range r.Segments {
		b.WriteString(segment.Text)
	}
	return strings.TrimSpace(b.String())
}

// Snapshot is a point-in-time view of the loader state, cheap to produce
// and safe to serialize. ModelLoaded is true iff a handle is installed,
// which coincides with Status == StatusLoaded.
type Snapshot struct {
	Status      Status
	ModelLoaded bool
	LastError   string
}
