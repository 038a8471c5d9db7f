package recorder_test

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"codeberg.org/mutker/capturectl/internal/errors"
	"codeberg.org/mutker/capturectl/internal/media"
	"codeberg.org/mutker/capturectl/internal/recorder"
	"codeberg.org/mutker/capturectl/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type appendedSample struct {
	pts     int64
	payload []byte
}

type fakeTrack struct {
	mu        sync.Mutex
	notReady  bool
	appendErr error
	appended  []appendedSample
}

func (t *fakeTrack) Ready() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.notReady
}

func (t *fakeTrack) Append(pts int64, payload []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.appendErr != nil {
		return t.appendErr
	}
	t.appended = append(t.appended, appendedSample{pts: pts, payload: payload})
	return nil
}

func (t *fakeTrack) samples() []appendedSample {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]appendedSample(nil), t.appended...)
}

type fakeSink struct {
	video *fakeTrack
	audio *fakeTrack

	videoTrackErr error
	audioTrackErr error
	finishErr     error

	mu            sync.Mutex
	videoWidth    int
	videoHeight   int
	audioRate     int
	audioChannels int
	finishCalls   int

	cancelOnce sync.Once
	cancelled  chan struct{}
}

func newFakeSink() *fakeSink {
	return &fakeSink{
		video:     &fakeTrack{},
		audio:     &fakeTrack{},
		cancelled: make(chan struct{}),
	}
}

func (s *fakeSink) AddVideoTrack(width, height int) (media.TrackWriter, error) {
	if s.videoTrackErr != nil {
		return nil, s.videoTrackErr
	}
	s.mu.Lock()
	s.videoWidth, s.videoHeight = width, height
	s.mu.Unlock()
	return s.video, nil
}

func (s *fakeSink) AddAudioTrack(sampleRate, channels int) (media.TrackWriter, error) {
	if s.audioTrackErr != nil {
		return nil, s.audioTrackErr
	}
	s.mu.Lock()
	s.audioRate, s.audioChannels = sampleRate, channels
	s.mu.Unlock()
	return s.audio, nil
}

func (s *fakeSink) Finish(_ context.Context) error {
	s.mu.Lock()
	s.finishCalls++
	s.mu.Unlock()
	return s.finishErr
}

func (s *fakeSink) Cancel() {
	s.cancelOnce.Do(func() {
		close(s.cancelled)
	})
}

func (s *fakeSink) Location() string {
	return "/tmp/fake.cseg"
}

func videoSample(pts float64) media.VideoSample {
	return media.VideoSample{Width: 1920, Height: 1080, PTS: pts, Data: []byte{0x01}}
}

func audioBuffer(at float64) media.AudioBuffer {
	return media.AudioBuffer{SampleRate: 48000, Channels: 1, Time: at, PCM: []int16{100, -100}}
}

func TestAppendVideoConfiguresAndAnchors(t *testing.T) {
	sink := newFakeSink()
	w := recorder.New(sink)

	assert.Equal(t, recorder.StateUnconfigured, w.State(), "Expected a fresh writer to be unconfigured")
	assert.False(t, w.VideoBaseSet(), "Expected no video base before the first frame")

	outcome := w.AppendVideo(videoSample(12.5))
	assert.Equal(t, telemetry.WriterAppended, outcome, "Expected first frame appended")
	assert.Equal(t, recorder.StateWriting, w.State(), "Expected writer in writing state")
	assert.True(t, w.VideoBaseSet(), "Expected first frame to anchor the timeline")
	assert.Equal(t, 1920, sink.videoWidth, "Expected track configured from the sample geometry")
	assert.Equal(t, 1080, sink.videoHeight)

	outcome = w.AppendVideo(videoSample(13.0))
	assert.Equal(t, telemetry.WriterAppended, outcome)

	samples := sink.video.samples()
	require.Len(t, samples, 2)
	assert.Equal(t, int64(0), samples[0].pts, "Expected the anchor frame at pts zero")
	assert.Equal(t, int64(500_000), samples[1].pts, "Expected pts in microseconds relative to the anchor")
}

func TestAppendVideoConfigurationFailure(t *testing.T) {
	sink := newFakeSink()
	sink.videoTrackErr = stderrors.New("no codec")
	w := recorder.New(sink)

	outcome := w.AppendVideo(videoSample(0))
	assert.Equal(t, telemetry.WriterFailed, outcome, "Expected configuration failure to classify as failed")
	assert.Equal(t, recorder.StateFailed, w.State(), "Expected writer in failed state")
	assert.Equal(t, errors.ErrWriterConfigurationFailed, errors.CodeOf(w.Err()), "Expected a configuration error code")
}

func TestAppendVideoBackpressure(t *testing.T) {
	sink := newFakeSink()
	w := recorder.New(sink)
	require.Equal(t, telemetry.WriterAppended, w.AppendVideo(videoSample(0)))

	sink.video.mu.Lock()
	sink.video.notReady = true
	sink.video.mu.Unlock()

	outcome := w.AppendVideo(videoSample(0.1))
	assert.Equal(t, telemetry.WriterDroppedBackpressure, outcome, "Expected a full queue to classify as backpressure")
	assert.Equal(t, recorder.StateWriting, w.State(), "Expected backpressure to leave the writer writing")
	assert.NoError(t, w.Err(), "Expected no failure recorded for backpressure")
}

func TestAppendVideoNotReadyErrorIsBackpressure(t *testing.T) {
	sink := newFakeSink()
	w := recorder.New(sink)
	require.Equal(t, telemetry.WriterAppended, w.AppendVideo(videoSample(0)))

	sink.video.mu.Lock()
	sink.video.appendErr = errors.New().New(media.ErrSinkNotReady)
	sink.video.mu.Unlock()

	outcome := w.AppendVideo(videoSample(0.1))
	assert.Equal(t, telemetry.WriterDroppedBackpressure, outcome, "Expected a not-ready append error to classify as backpressure")
	assert.Equal(t, recorder.StateWriting, w.State())
}

func TestAppendVideoFailureCancelsWriter(t *testing.T) {
	sink := newFakeSink()
	w := recorder.New(sink)
	require.Equal(t, telemetry.WriterAppended, w.AppendVideo(videoSample(0)))

	sink.video.mu.Lock()
	sink.video.appendErr = stderrors.New("disk gone")
	sink.video.mu.Unlock()

	outcome := w.AppendVideo(videoSample(0.1))
	assert.Equal(t, telemetry.WriterFailed, outcome, "Expected a video write failure to classify as failed")
	assert.Equal(t, recorder.StateCancelled, w.State(), "Expected a broken video track to cancel the writer")
	assert.Equal(t, errors.ErrWriterFailed, errors.CodeOf(w.Err()))

	select {
	case <-sink.cancelled:
	case <-time.After(time.Second):
		t.Fatal("Expected the sink to be cancelled")
	}
}

func TestAppendAudioHeldBackUntilVideoBase(t *testing.T) {
	sink := newFakeSink()
	w := recorder.New(sink)

	outcome, recorded := w.AppendAudio(audioBuffer(5.0))
	assert.False(t, recorded, "Expected no outcome before the video base exists")
	assert.Equal(t, telemetry.WriterDroppedState, outcome)
	assert.Empty(t, sink.audio.samples(), "Expected nothing forwarded to the audio track")
}

func TestAppendAudioRebasesOnOwnClock(t *testing.T) {
	sink := newFakeSink()
	w := recorder.New(sink)
	require.Equal(t, telemetry.WriterAppended, w.AppendVideo(videoSample(100.0)))

	// Audio clock values are unrelated to the video pts; the first accepted
	// buffer anchors the audio timeline at zero.
	outcome, recorded := w.AppendAudio(audioBuffer(10.0))
	require.True(t, recorded)
	assert.Equal(t, telemetry.WriterAppended, outcome)
	assert.Equal(t, 48000, sink.audioRate, "Expected track configured from the buffer format")
	assert.Equal(t, 1, sink.audioChannels)

	outcome, recorded = w.AppendAudio(audioBuffer(10.5))
	require.True(t, recorded)
	assert.Equal(t, telemetry.WriterAppended, outcome)

	samples := sink.audio.samples()
	require.Len(t, samples, 2)
	assert.Equal(t, int64(0), samples[0].pts, "Expected the first buffer at pts zero")
	assert.Equal(t, int64(24000), samples[1].pts, "Expected pts in sample-rate ticks on the audio clock")
}

func TestAppendAudioConfigurationFailureKeepsSession(t *testing.T) {
	sink := newFakeSink()
	sink.audioTrackErr = stderrors.New("no audio device")
	w := recorder.New(sink)
	require.Equal(t, telemetry.WriterAppended, w.AppendVideo(videoSample(0)))

	outcome, recorded := w.AppendAudio(audioBuffer(1.0))
	require.True(t, recorded)
	assert.Equal(t, telemetry.WriterFailed, outcome, "Expected the audio failure reported")
	assert.Equal(t, recorder.StateWriting, w.State(), "Expected an audio failure to leave the session writing")

	// Video keeps flowing.
	assert.Equal(t, telemetry.WriterAppended, w.AppendVideo(videoSample(0.1)))
}

func TestFinishIsIdempotent(t *testing.T) {
	sink := newFakeSink()
	w := recorder.New(sink)
	require.Equal(t, telemetry.WriterAppended, w.AppendVideo(videoSample(0)))

	location, err := w.Finish(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/tmp/fake.cseg", location, "Expected the sink location on success")
	assert.Equal(t, recorder.StateCompleted, w.State())

	again, err := w.Finish(context.Background())
	require.NoError(t, err, "Expected a repeated finish to observe the same outcome")
	assert.Equal(t, location, again)
	assert.Equal(t, 1, sink.finishCalls, "Expected the sink finished exactly once")
}

func TestFinishFailure(t *testing.T) {
	sink := newFakeSink()
	sink.finishErr = stderrors.New("flush failed")
	w := recorder.New(sink)
	require.Equal(t, telemetry.WriterAppended, w.AppendVideo(videoSample(0)))

	_, err := w.Finish(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.ErrWriterFailed, errors.CodeOf(err))
	assert.Equal(t, recorder.StateFailed, w.State())

	// The failure is sticky.
	_, err = w.Finish(context.Background())
	assert.Error(t, err, "Expected a repeated finish to return the stored failure")
	assert.Equal(t, 1, sink.finishCalls)
}

func TestFinishAfterCancelReturnsFailure(t *testing.T) {
	sink := newFakeSink()
	w := recorder.New(sink)
	require.Equal(t, telemetry.WriterAppended, w.AppendVideo(videoSample(0)))

	w.Cancel()
	assert.Equal(t, recorder.StateCancelled, w.State())
	assert.Equal(t, errors.ErrWriterCancelled, errors.CodeOf(w.Err()))

	_, err := w.Finish(context.Background())
	assert.Error(t, err, "Expected finish after cancel to report the cancellation")
	assert.Equal(t, 0, sink.finishCalls, "Expected no sink finish after cancel")
}

func TestAppendAfterFinishDropsOnState(t *testing.T) {
	sink := newFakeSink()
	w := recorder.New(sink)
	require.Equal(t, telemetry.WriterAppended, w.AppendVideo(videoSample(0)))

	_, err := w.Finish(context.Background())
	require.NoError(t, err)

	assert.Equal(t, telemetry.WriterDroppedState, w.AppendVideo(videoSample(1.0)), "Expected post-finish video dropped on state")

	outcome, recorded := w.AppendAudio(audioBuffer(1.0))
	require.True(t, recorded, "Expected an outcome once the video base exists")
	assert.Equal(t, telemetry.WriterDroppedState, outcome, "Expected post-finish audio dropped on state")
}
