package media

import (
	"context"

	"codeberg.org/mutker/capturectl/internal/errors"
)

const (
	// ErrSinkNotReady is returned by TrackWriter.Append when the sink queue
	// is full. Callers classify it as backpressure; they must never block.
	ErrSinkNotReady = errors.ErrorCode("media_sink_not_ready")

	// ErrSinkClosed is returned when appending after finish or cancel.
	ErrSinkClosed = errors.ErrorCode("media_sink_closed")

	ErrSinkWrite = errors.ErrorCode("media_sink_write_failed")
)

// TrackWriter appends samples for one configured media track.
type TrackWriter interface {
	// Ready reports without blocking whether the track can accept another
	// sample right now.
	Ready() bool

	// Append enqueues one sample. PTS is expressed in the track's own
	// timescale, zero-based. Returns an ErrSinkNotReady-coded error instead
	// of blocking when the queue is full.
	Append(pts int64, payload []byte) error
}

// Sink accepts lazily configured tracks and flushes them into a container
// file. Implementations drain appended samples on their own serialized
// consumer; Append paths never touch the file directly.
type Sink interface {
	// AddVideoTrack configures the video track from the first sample's pixel
	// geometry. Timescale is microseconds.
	AddVideoTrack(width, height int) (TrackWriter, error)

	// AddAudioTrack configures the audio track from the first buffer's
	// format. Timescale is the audio sample rate.
	AddAudioTrack(sampleRate, channels int) (TrackWriter, error)

	// Finish drains outstanding samples and flushes the container to disk.
	// It is asynchronous with respect to appends; the context bounds the
	// drain.
	Finish(ctx context.Context) error

	// Cancel discards the output. Safe to call at any point; appends after
	// cancel fail with ErrSinkClosed.
	Cancel()

	// Location returns where the container is (being) written.
	Location() string
}
