package telemetry

import (
	"context"
	"time"
)

// FrameStatus is the source-defined completeness classification attached to a
// delivered frame.
type FrameStatus int

const (
	FrameComplete FrameStatus = iota
	FrameIdle
	FrameBlank
	FrameSuspended
)

// IsComplete reports whether the frame carried displayable content.
func (s FrameStatus) IsComplete() bool {
	return s == FrameComplete
}

// WriterOutcome classifies the result of handing a sample to the media writer.
type WriterOutcome int

const (
	WriterAppended WriterOutcome = iota
	WriterDroppedBackpressure
	WriterDroppedState
	WriterFailed
)

func (o WriterOutcome) String() string {
	switch o {
	case WriterAppended:
		return "appended"
	case WriterDroppedBackpressure:
		return "dropped_backpressure"
	case WriterDroppedState:
		return "dropped_writer_state"
	case WriterFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Store defines the core counter store interface. All methods are safe for
// concurrent use; reads and writes are serialized internally.
type Store interface {
	RecordFrame(status FrameStatus, pts, expectedInterval float64)
	RecordWriterOutcome(outcome WriterOutcome)
	RecordAudioLevel(levelDbfs float64)
	Snapshot() Snapshot
	Reset()
}

// Snapshot is a consistent view of the counters plus derived rates.
type Snapshot struct {
	TotalFrames               uint64
	CompleteFrames            uint64
	DroppedFrames             uint64
	DroppedFramePercent       float64
	SourceDroppedFrames       uint64
	SourceDroppedFramePercent float64
	WriterDroppedFrames       uint64
	WriterBackpressureDrops   uint64
	WriterFailedDrops         uint64
	WriterDroppedFramePercent float64
	AchievedFps               float64
	AudioLevelDbfs            float64
	HasAudioLevel             bool
}

// Repository persists periodic telemetry snapshots for post-session analysis.
type Repository interface {
	Store(ctx context.Context, at time.Time, snapshot *Snapshot, healthState, healthReason string) error
	Close() error
}
