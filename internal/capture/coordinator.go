// Package capture coordinates the real-time capture pipeline: it owns the
// capture session lifecycle, routes frame and audio delivery into the media
// writer and telemetry store, and assembles the polled status payload.
package capture

import (
	"context"
	"path/filepath"
	"sync"

	"codeberg.org/mutker/capturectl/internal/errors"
	"codeberg.org/mutker/capturectl/internal/health"
	"codeberg.org/mutker/capturectl/internal/logger"
	"codeberg.org/mutker/capturectl/internal/media"
	"codeberg.org/mutker/capturectl/internal/recorder"
	"codeberg.org/mutker/capturectl/internal/telemetry"
	"github.com/google/uuid"
)

const defaultQueueDepth = 256

// supportedFrameRates is the fixed set of accepted capture rates. Anything
// else fails with invalid_parameter rather than silently clamping.
var supportedFrameRates = map[int]struct{}{
	24: {},
	30: {},
	60: {},
}

// Config holds coordinator construction parameters.
type Config struct {
	OutputDir  string
	QueueDepth int
}

// Coordinator wires one capture session. Delivery callbacks, recording
// lifecycle and status reads each go through their own serialized owner:
// stateMu guards the presentation fields, recMu is the recording context
// that exclusively owns the session and writer, and the telemetry store
// serializes its own counters.
type Coordinator struct {
	provider Provider
	clock    *Clock
	counters *telemetry.Counters
	cfg      Config

	stateMu          sync.Mutex
	running          bool
	frameRate        int
	expectedInterval float64
	stream           Stream
	duration         RunningDuration
	recordingURL     string
	lastError        string

	recMu     sync.Mutex
	recording *recordingSession
}

// recordingSession exists from a successful StartRecording until the
// matching StopRecording completes. At most one is live per capture session.
type recordingSession struct {
	writer *recorder.Writer
}

// New creates a coordinator over the given capture provider.
func New(provider Provider, cfg Config) *Coordinator {
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = defaultQueueDepth
	}

	return &Coordinator{
		provider: provider,
		clock:    NewClock(),
		counters: telemetry.NewCounters(),
		cfg:      cfg,
	}
}

// StartCapture opens a stream against the target and starts frame/audio
// delivery. Telemetry is reset only at session boundaries, never between
// recording segments, so drop rates stay comparable across segments within
// the session. Starting while already running restarts capture against the
// new target.
func (c *Coordinator) StartCapture(ctx context.Context, target Target, micEnabled bool, frameRate int) error {
	errFactory := errors.New()

	if _, ok := supportedFrameRates[frameRate]; !ok {
		return errFactory.WithData(errors.ErrInvalidParameter, frameRate)
	}

	c.stateMu.Lock()
	alreadyRunning := c.running
	c.stateMu.Unlock()
	if alreadyRunning {
		if err := c.StopCapture(ctx); err != nil {
			return err
		}
	}

	stream, err := c.provider.Open(OpenRequest{
		Target:     target,
		FrameRate:  frameRate,
		Microphone: micEnabled,
	})
	if err != nil {
		return err
	}

	if err := stream.Start(c.OnVideoFrame, c.OnAudioBuffer); err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	c.counters.Reset()

	c.stateMu.Lock()
	c.running = true
	c.frameRate = frameRate
	c.expectedInterval = 1 / float64(frameRate)
	c.stream = stream
	c.duration.Reset()
	c.lastError = ""
	c.recordingURL = ""
	c.stateMu.Unlock()

	logger.Info().
		Str("target", string(target.Kind)).
		Uint64("target_id", target.ID).
		Int("framerate", frameRate).
		Bool("microphone", micEnabled).
		Msg("Capture started")

	return nil
}

// StopCapture stops any active recording first, then tears down the stream
// and resets telemetry. Safe to call when already stopped.
func (c *Coordinator) StopCapture(ctx context.Context) error {
	c.stateMu.Lock()
	if !c.running {
		c.stateMu.Unlock()
		return nil
	}
	stream := c.stream
	c.stateMu.Unlock()

	// Cascading stop: never leave a writer open against a torn-down source.
	// A finish failure is already captured as lastError.
	if err := c.StopRecording(ctx); err != nil {
		logger.Warn().Err(err).Msg("recording stop during capture teardown failed")
	}

	stream.Stop()
	c.counters.Reset()

	c.stateMu.Lock()
	c.running = false
	c.stream = nil
	c.duration.Reset()
	c.stateMu.Unlock()

	logger.Info().Msg("Capture stopped")

	return nil
}

// StartRecording creates a recording session with a fresh container writer.
// Idempotent while recording: the existing session is kept and the current
// status returned.
func (c *Coordinator) StartRecording() (Status, error) {
	errFactory := errors.New()

	c.stateMu.Lock()
	running := c.running
	c.stateMu.Unlock()
	if !running {
		return Status{}, errFactory.New(errors.ErrNotRunning)
	}

	c.recMu.Lock()
	if c.recording != nil {
		c.recMu.Unlock()
		logger.Debug().Msg("Recording already active; keeping existing session")
		return c.StatusSnapshot(), nil
	}

	location := filepath.Join(c.cfg.OutputDir, "capture-"+uuid.NewString()+".cseg")
	sink, err := media.NewSegmentSink(location, c.cfg.QueueDepth)
	if err != nil {
		c.recMu.Unlock()
		return Status{}, errFactory.Wrap(errors.ErrWriterConfigurationFailed, err)
	}
	c.recording = &recordingSession{writer: recorder.New(sink)}
	c.recMu.Unlock()

	c.stateMu.Lock()
	c.recordingURL = location
	c.duration.Start(c.clock)
	c.stateMu.Unlock()

	logger.Info().Str("location", location).Msg("Recording started")

	return c.StatusSnapshot(), nil
}

// StopRecording drives the writer to finishing and waits for the flush to
// complete, so the segment is on disk (or the failure captured) before the
// call returns. The session is cleared regardless of the writer outcome.
func (c *Coordinator) StopRecording(ctx context.Context) error {
	c.recMu.Lock()
	if c.recording == nil {
		c.recMu.Unlock()
		return nil
	}
	writer := c.recording.writer
	c.recording = nil
	c.recMu.Unlock()

	c.stateMu.Lock()
	c.duration.Stop(c.clock)
	c.stateMu.Unlock()

	location, err := writer.Finish(ctx)

	c.stateMu.Lock()
	if err != nil {
		c.lastError = err.Error()
	} else {
		c.recordingURL = location
	}
	c.stateMu.Unlock()

	if err != nil {
		logger.ErrorWithCode(errors.New().Wrap(errors.ErrWriterFailed, err)).Msg("Recording finish failed")
		return err
	}

	logger.Info().Str("location", location).Msg("Recording stopped")

	return nil
}

// OnVideoFrame routes one delivered frame: its status always reaches
// telemetry, and complete frames are forwarded to the writer while a
// recording is active. Never blocks the delivery goroutine.
func (c *Coordinator) OnVideoFrame(sample media.VideoSample, status telemetry.FrameStatus) {
	c.stateMu.Lock()
	running := c.running
	interval := c.expectedInterval
	c.stateMu.Unlock()
	if !running {
		return
	}

	c.counters.RecordFrame(status, sample.PTS, interval)
	if !status.IsComplete() {
		return
	}

	c.recMu.Lock()
	rec := c.recording
	if rec == nil {
		c.recMu.Unlock()
		return
	}
	outcome := rec.writer.AppendVideo(sample)
	c.recMu.Unlock()

	c.counters.RecordWriterOutcome(outcome)

	if outcome == telemetry.WriterFailed {
		failure := rec.writer.Err()
		c.stateMu.Lock()
		if failure != nil {
			c.lastError = failure.Error()
		}
		c.stateMu.Unlock()
	}
}

// OnAudioBuffer routes one audio buffer. The loudness level always reaches
// telemetry; the buffer only reaches the writer while recording and after
// the first video frame has anchored the timeline. Audio preceding that
// anchor is intentionally dropped, not buffered.
func (c *Coordinator) OnAudioBuffer(buf media.AudioBuffer) {
	c.stateMu.Lock()
	running := c.running
	c.stateMu.Unlock()
	if !running {
		return
	}

	c.counters.RecordAudioLevel(rmsDbfs(buf.PCM))

	c.recMu.Lock()
	rec := c.recording
	if rec == nil || !rec.writer.VideoBaseSet() {
		c.recMu.Unlock()
		return
	}
	outcome, recorded := rec.writer.AppendAudio(buf)
	c.recMu.Unlock()

	if recorded {
		c.counters.RecordWriterOutcome(outcome)
	}
}

// TelemetrySnapshot returns the raw counter snapshot, used by the periodic
// persistence loop.
func (c *Coordinator) TelemetrySnapshot() telemetry.Snapshot {
	return c.counters.Snapshot()
}

// StatusSnapshot samples the current state with no side effects.
func (c *Coordinator) StatusSnapshot() Status {
	c.recMu.Lock()
	isRecording := c.recording != nil
	c.recMu.Unlock()

	snapshot := c.counters.Snapshot()

	c.stateMu.Lock()
	running := c.running
	durationSeconds := c.duration.Current(c.clock)
	recordingURL := c.recordingURL
	lastError := c.lastError
	c.stateMu.Unlock()

	assessment := health.Evaluate(health.Input{
		Snapshot:    snapshot,
		LastError:   lastError,
		IsRecording: isRecording,
	})

	status := Status{
		IsRunning:                running,
		IsRecording:              isRecording,
		RecordingDurationSeconds: durationSeconds,
		Telemetry: TelemetryStatus{
			TotalFrames:               snapshot.TotalFrames,
			DroppedFrames:             snapshot.DroppedFrames,
			DroppedFramePercent:       snapshot.DroppedFramePercent,
			SourceDroppedFrames:       snapshot.SourceDroppedFrames,
			SourceDroppedFramePercent: snapshot.SourceDroppedFramePercent,
			WriterDroppedFrames:       snapshot.WriterDroppedFrames,
			WriterBackpressureDrops:   snapshot.WriterBackpressureDrops,
			WriterDroppedFramePercent: snapshot.WriterDroppedFramePercent,
			AchievedFps:               snapshot.AchievedFps,
			Health:                    assessment.State,
		},
	}

	if recordingURL != "" {
		status.RecordingURL = &recordingURL
	}
	if lastError != "" {
		status.LastError = &lastError
	}
	if snapshot.HasAudioLevel {
		level := snapshot.AudioLevelDbfs
		status.Telemetry.AudioLevelDbfs = &level
	}
	if assessment.Reason != "" {
		reason := assessment.Reason
		status.Telemetry.HealthReason = &reason
	}

	return status
}
