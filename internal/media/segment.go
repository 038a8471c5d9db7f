package media

import (
	"bufio"
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"sync"

	"codeberg.org/mutker/capturectl/internal/errors"
	"codeberg.org/mutker/capturectl/internal/logger"
)

// Segment container layout: a 4-byte magic followed by length-delimited
// records. Each record is [kind u8][track u8][pts i64][len u32][payload].
// Track header records carry the track configuration as their payload.
const (
	segmentMagic = "CSG1"

	recordVideoTrack byte = 0x01
	recordAudioTrack byte = 0x02
	recordSample     byte = 0x10

	trackVideo byte = 1
	trackAudio byte = 2

	// VideoTimescale is the video track timescale in ticks per second.
	VideoTimescale = 1_000_000

	defaultDirPerm = 0o755
)

type segmentRecord struct {
	kind    byte
	track   byte
	pts     int64
	payload []byte
}

// SegmentSink writes media samples into a single segment file. All file I/O
// happens on one drain goroutine; append paths only enqueue and never block.
type SegmentSink struct {
	path  string
	file  *os.File
	buf   *bufio.Writer
	queue chan segmentRecord
	done  chan struct{}

	mu        sync.Mutex
	closed    bool
	cancelled bool
	hasVideo  bool
	hasAudio  bool

	errMu    sync.Mutex
	writeErr error
}

// NewSegmentSink creates the segment file and starts the drain goroutine.
// queueDepth bounds how many samples may be in flight before appends are
// classified as backpressure.
func NewSegmentSink(path string, queueDepth int) (*SegmentSink, error) {
	errFactory := errors.New()

	if queueDepth <= 0 {
		return nil, errFactory.WithData(errors.ErrInvalidArgument, "queue depth must be positive")
	}

	if err := os.MkdirAll(filepath.Dir(path), defaultDirPerm); err != nil {
		return nil, errFactory.Wrap(ErrSinkWrite, err)
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, errFactory.Wrap(ErrSinkWrite, err)
	}

	buf := bufio.NewWriter(file)
	if _, err := buf.WriteString(segmentMagic); err != nil {
		file.Close()
		return nil, errFactory.Wrap(ErrSinkWrite, err)
	}

	s := &SegmentSink{
		path:  path,
		file:  file,
		buf:   buf,
		queue: make(chan segmentRecord, queueDepth),
		done:  make(chan struct{}),
	}
	go s.drain()

	return s, nil
}

// AddVideoTrack configures the video track. Timescale is microseconds.
func (s *SegmentSink) AddVideoTrack(width, height int) (TrackWriter, error) {
	errFactory := errors.New()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hasVideo {
		return nil, errFactory.WithData(errors.ErrInvalidArgument, "video track already configured")
	}

	header := make([]byte, 8)
	binary.LittleEndian.PutUint32(header[0:4], uint32(width))
	binary.LittleEndian.PutUint32(header[4:8], uint32(height))
	if err := s.enqueueLocked(segmentRecord{kind: recordVideoTrack, track: trackVideo, payload: header}); err != nil {
		return nil, err
	}
	s.hasVideo = true

	return &segmentTrack{sink: s, track: trackVideo}, nil
}

// AddAudioTrack configures the audio track. Timescale is the sample rate.
func (s *SegmentSink) AddAudioTrack(sampleRate, channels int) (TrackWriter, error) {
	errFactory := errors.New()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hasAudio {
		return nil, errFactory.WithData(errors.ErrInvalidArgument, "audio track already configured")
	}

	header := make([]byte, 8)
	binary.LittleEndian.PutUint32(header[0:4], uint32(sampleRate))
	binary.LittleEndian.PutUint32(header[4:8], uint32(channels))
	if err := s.enqueueLocked(segmentRecord{kind: recordAudioTrack, track: trackAudio, payload: header}); err != nil {
		return nil, err
	}
	s.hasAudio = true

	return &segmentTrack{sink: s, track: trackAudio}, nil
}

// Finish drains outstanding records and flushes the file. Appends enqueued
// after Finish fail with ErrSinkClosed.
func (s *SegmentSink) Finish(ctx context.Context) error {
	errFactory := errors.New()

	s.mu.Lock()
	if s.cancelled {
		s.mu.Unlock()
		return errFactory.New(ErrSinkClosed)
	}
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()

	select {
	case <-s.done:
	case <-ctx.Done():
		return errFactory.Wrap(ErrSinkWrite, ctx.Err())
	}

	if err := s.err(); err != nil {
		return err
	}

	return nil
}

// Cancel stops the drain and removes the partial segment file.
func (s *SegmentSink) Cancel() {
	s.mu.Lock()
	if s.cancelled {
		s.mu.Unlock()
		return
	}
	s.cancelled = true
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()

	<-s.done

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		logger.Warn().Err(err).Str("path", s.path).Msg("failed to remove cancelled segment")
	}
}

// Location returns the segment file path.
func (s *SegmentSink) Location() string {
	return s.path
}

// enqueueLocked performs a non-blocking enqueue. Callers hold s.mu, which
// also guards against sends racing a channel close.
func (s *SegmentSink) enqueueLocked(rec segmentRecord) error {
	errFactory := errors.New()

	if s.closed || s.cancelled {
		return errFactory.New(ErrSinkClosed)
	}
	if err := s.err(); err != nil {
		return err
	}

	select {
	case s.queue <- rec:
		return nil
	default:
		return errFactory.New(ErrSinkNotReady)
	}
}

func (s *SegmentSink) drain() {
	defer close(s.done)

	for rec := range s.queue {
		if s.err() != nil {
			continue // discard after first failure, keep senders unblocked
		}
		if err := s.writeRecord(rec); err != nil {
			s.setErr(err)
		}
	}

	if s.err() == nil {
		if err := s.buf.Flush(); err != nil {
			s.setErr(err)
		} else if err := s.file.Sync(); err != nil {
			s.setErr(err)
		}
	}
	if err := s.file.Close(); err != nil && s.err() == nil {
		s.setErr(err)
	}
}

func (s *SegmentSink) writeRecord(rec segmentRecord) error {
	var header [14]byte
	header[0] = rec.kind
	header[1] = rec.track
	binary.LittleEndian.PutUint64(header[2:10], uint64(rec.pts))
	binary.LittleEndian.PutUint32(header[10:14], uint32(len(rec.payload)))

	if _, err := s.buf.Write(header[:]); err != nil {
		return err
	}
	if _, err := s.buf.Write(rec.payload); err != nil {
		return err
	}

	return nil
}

func (s *SegmentSink) err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.writeErr
}

func (s *SegmentSink) setErr(err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.writeErr == nil {
		s.writeErr = errors.New().Wrap(ErrSinkWrite, err)
	}
}

type segmentTrack struct {
	sink  *SegmentSink
	track byte
}

func (t *segmentTrack) Ready() bool {
	s := t.sink

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.cancelled || s.err() != nil {
		return false
	}

	return len(s.queue) < cap(s.queue)
}

func (t *segmentTrack) Append(pts int64, payload []byte) error {
	s := t.sink

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.enqueueLocked(segmentRecord{kind: recordSample, track: t.track, pts: pts, payload: payload})
}
