// Package recorder owns the media container writer: an append/finish state
// machine that classifies every sample handoff instead of ever blocking the
// delivery path.
package recorder

import (
	"context"
	"sync"

	"codeberg.org/mutker/capturectl/internal/errors"
	"codeberg.org/mutker/capturectl/internal/logger"
	"codeberg.org/mutker/capturectl/internal/media"
	"codeberg.org/mutker/capturectl/internal/telemetry"
)

// State is the writer lifecycle state.
type State int

const (
	StateUnconfigured State = iota
	StateWriting
	StateFinishing
	StateCompleted
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateUnconfigured:
		return "unconfigured"
	case StateWriting:
		return "writing"
	case StateFinishing:
		return "finishing"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Writer drives one recording segment into a media.Sink. Tracks are
// configured lazily from the first sample of each type. All methods are safe
// for concurrent use; state is single-owner behind the mutex.
type Writer struct {
	mu   sync.Mutex
	sink media.Sink

	state State
	video media.TrackWriter
	audio media.TrackWriter

	videoBasePTS float64
	videoBaseSet bool

	audioBaseTime float64
	audioBaseSet  bool
	audioRate     int

	isFinishing bool
	location    string
	failure     error
}

// New creates a writer over the given sink.
func New(sink media.Sink) *Writer {
	return &Writer{sink: sink}
}

// State returns the current lifecycle state.
func (w *Writer) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// VideoBaseSet reports whether the first video frame has anchored the
// timeline yet. Audio delivered before this point must be held back.
func (w *Writer) VideoBaseSet() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.videoBaseSet
}

// Err returns the failure that moved the writer to a failed or cancelled
// state, if any.
func (w *Writer) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.failure
}

// AppendVideo hands one video frame to the sink. The first call configures
// the video track from the sample's pixel geometry, transitions the writer
// to writing and records the sample's timestamp as the session's video base;
// every later timestamp (video and audio alike) is expressed relative to it.
// A full sink classifies as backpressure, never as a wait. A write failure
// cancels the writer: a broken video track cannot produce a usable segment.
func (w *Writer) AppendVideo(sample media.VideoSample) telemetry.WriterOutcome {
	errFactory := errors.New()

	w.mu.Lock()
	defer w.mu.Unlock()

	switch w.state {
	case StateUnconfigured:
		track, err := w.sink.AddVideoTrack(sample.Width, sample.Height)
		if err != nil {
			w.state = StateFailed
			w.failure = errFactory.Wrap(errors.ErrWriterConfigurationFailed, err)
			return telemetry.WriterFailed
		}
		w.video = track
		w.state = StateWriting
		w.videoBasePTS = sample.PTS
		w.videoBaseSet = true
	case StateWriting:
	default:
		return telemetry.WriterDroppedState
	}

	if !w.video.Ready() {
		return telemetry.WriterDroppedBackpressure
	}

	pts := int64((sample.PTS - w.videoBasePTS) * media.VideoTimescale)
	if err := w.video.Append(pts, sample.Data); err != nil {
		if errors.CodeOf(err) == media.ErrSinkNotReady {
			return telemetry.WriterDroppedBackpressure
		}
		w.failVideoLocked(err)
		return telemetry.WriterFailed
	}

	return telemetry.WriterAppended
}

// AppendAudio hands one audio buffer to the sink. It is a no-op until the
// video base timestamp exists; the returned bool reports whether an outcome
// was produced at all. Audio timestamps rebase against the first accepted
// audio buffer's own clock, not the video clock, since the two clocks are
// independent. Audio failures never fail the session.
func (w *Writer) AppendAudio(buf media.AudioBuffer) (telemetry.WriterOutcome, bool) {
	errFactory := errors.New()

	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.videoBaseSet {
		return telemetry.WriterDroppedState, false
	}
	if w.state != StateWriting {
		return telemetry.WriterDroppedState, true
	}

	if w.audio == nil {
		track, err := w.sink.AddAudioTrack(buf.SampleRate, buf.Channels)
		if err != nil {
			logger.Debug().Err(errFactory.Wrap(errors.ErrWriterConfigurationFailed, err)).
				Msg("audio track configuration failed")
			return telemetry.WriterFailed, true
		}
		w.audio = track
		w.audioRate = buf.SampleRate
	}

	if !w.audio.Ready() {
		return telemetry.WriterDroppedBackpressure, true
	}

	if !w.audioBaseSet {
		w.audioBaseTime = buf.Time
		w.audioBaseSet = true
	}

	pts := int64((buf.Time - w.audioBaseTime) * float64(w.audioRate))
	if err := w.audio.Append(pts, buf.PayloadBytes()); err != nil {
		if errors.CodeOf(err) == media.ErrSinkNotReady {
			return telemetry.WriterDroppedBackpressure, true
		}
		return telemetry.WriterFailed, true
	}

	return telemetry.WriterAppended, true
}

// Finish marks both tracks finished and flushes the sink. It is idempotent:
// concurrent or repeated calls observe the same terminal outcome without
// additional side effects. Returns the output location on success.
func (w *Writer) Finish(ctx context.Context) (string, error) {
	errFactory := errors.New()

	w.mu.Lock()
	if w.isFinishing || w.state == StateCompleted || w.state == StateFailed || w.state == StateCancelled {
		location, failure := w.location, w.failure
		w.mu.Unlock()
		return location, failure
	}
	w.isFinishing = true
	w.state = StateFinishing
	w.mu.Unlock()

	err := w.sink.Finish(ctx)

	w.mu.Lock()
	defer w.mu.Unlock()

	if err != nil {
		w.state = StateFailed
		w.failure = errFactory.Wrap(errors.ErrWriterFailed, err)
		return "", w.failure
	}

	w.state = StateCompleted
	w.location = w.sink.Location()

	return w.location, nil
}

// Cancel discards the segment. Safe to call in any state; terminal states
// are left untouched.
func (w *Writer) Cancel() {
	w.mu.Lock()
	if w.state == StateCompleted || w.state == StateFailed || w.state == StateCancelled {
		w.mu.Unlock()
		return
	}
	w.state = StateCancelled
	if w.failure == nil {
		w.failure = errors.New().New(errors.ErrWriterCancelled)
	}
	w.mu.Unlock()

	w.sink.Cancel()
}

// failVideoLocked moves the writer to cancelled after a video append
// failure. Queued audio is discarded with the sink rather than drained.
func (w *Writer) failVideoLocked(err error) {
	w.failure = errors.New().Wrap(errors.ErrWriterFailed, err)
	w.state = StateCancelled
	go w.sink.Cancel() // sink cancel waits on its drain; never on the delivery path
}
