package capture

import (
	"codeberg.org/mutker/capturectl/internal/media"
	"codeberg.org/mutker/capturectl/internal/telemetry"
)

// TargetKind distinguishes displays from windows.
type TargetKind string

const (
	TargetDisplay TargetKind = "display"
	TargetWindow  TargetKind = "window"
)

// Target describes one capturable display or window.
type Target struct {
	ID       uint64
	Kind     TargetKind
	Title    string
	AppName  string
	Width    int
	Height   int
	OnScreen bool
}

// FrameHandler receives video samples with the source-defined completeness
// status. Called from the source's delivery goroutine; implementations must
// stay cheap and never block.
type FrameHandler func(sample media.VideoSample, status telemetry.FrameStatus)

// AudioHandler receives PCM buffers on the audio device's own clock.
type AudioHandler func(buf media.AudioBuffer)

// OpenRequest selects a target and delivery parameters for a stream.
type OpenRequest struct {
	Target     Target
	FrameRate  int
	Microphone bool
}

// Provider abstracts the OS capture surface: target enumeration and stream
// setup. Open returns coded errors (permission_denied, no_source_available)
// that surface synchronously to the caller.
type Provider interface {
	Targets() ([]Target, error)
	Open(req OpenRequest) (Stream, error)
}

// Stream is one opened capture stream. Start wires the push-based delivery
// callbacks; Stop tears the stream down and stops all deliveries.
type Stream interface {
	Start(onFrame FrameHandler, onAudio AudioHandler) error
	Stop()
}
