package telemetry

import (
	"math"
	"sync"
)

const (
	// audioSmoothingAlpha is the EWMA coefficient for microphone level smoothing.
	audioSmoothingAlpha = 0.18

	// timingJitterGuard keeps ordinary frame-pacing jitter from being counted
	// as drops: a gap only counts once it exceeds 1.5x the expected interval.
	timingJitterGuard = 1.5
)

// Counters accumulates frame, drop and audio level telemetry for one capture
// session. Counters are monotonic within a session; Reset is called only at
// capture session boundaries so drop rates stay comparable across multiple
// recording segments.
type Counters struct {
	mu sync.Mutex

	completeFrames          uint64
	sourceStatusDrops       uint64
	sourceTimingDrops       uint64
	writerBackpressureDrops uint64
	writerFailedDrops       uint64

	firstCompletePTS float64
	lastCompletePTS  float64
	haveCompletePTS  bool

	audioLevelDbfs float64
	haveAudioLevel bool
}

// NewCounters returns an empty counter store.
func NewCounters() *Counters {
	return &Counters{}
}

// EstimateMissedFrames estimates how many frames fell into a timestamp gap of
// gap seconds at the given expected interval. Gaps within the jitter guard are
// not counted.
func EstimateMissedFrames(gap, expectedInterval float64) uint64 {
	if expectedInterval <= 0 || gap <= timingJitterGuard*expectedInterval {
		return 0
	}

	missed := math.Floor(gap/expectedInterval) - 1
	if missed < 0 {
		return 0
	}

	return uint64(missed)
}

// RecordFrame classifies one delivered frame. Incomplete frames count as
// source status drops; complete frames advance the PTS span and may reveal
// timing drops when the gap to the previous complete frame is too wide.
func (c *Counters) RecordFrame(status FrameStatus, pts, expectedInterval float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !status.IsComplete() {
		c.sourceStatusDrops++
		return
	}

	c.completeFrames++

	if c.haveCompletePTS {
		c.sourceTimingDrops += EstimateMissedFrames(pts-c.lastCompletePTS, expectedInterval)
	} else {
		c.firstCompletePTS = pts
		c.haveCompletePTS = true
	}
	c.lastCompletePTS = pts
}

// RecordWriterOutcome counts writer-side drops. Appended outcomes need no
// accounting, and state drops are excluded: they fire during expected
// startup and teardown windows and would inflate the drop rate.
func (c *Counters) RecordWriterOutcome(outcome WriterOutcome) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch outcome {
	case WriterDroppedBackpressure:
		c.writerBackpressureDrops++
	case WriterFailed:
		c.writerFailedDrops++
	case WriterAppended, WriterDroppedState:
	}
}

// RecordAudioLevel folds one instantaneous loudness reading into the smoothed
// level. The first sample seeds the smoothed value directly.
func (c *Counters) RecordAudioLevel(levelDbfs float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.haveAudioLevel {
		c.audioLevelDbfs = levelDbfs
		c.haveAudioLevel = true
		return
	}

	c.audioLevelDbfs += (levelDbfs - c.audioLevelDbfs) * audioSmoothingAlpha
}

// Snapshot returns a consistent view of the counters with derived rates.
func (c *Counters) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	sourceDrops := c.sourceStatusDrops + c.sourceTimingDrops
	writerDrops := c.writerBackpressureDrops + c.writerFailedDrops
	totalFrames := c.completeFrames + sourceDrops

	snapshot := Snapshot{
		TotalFrames:             totalFrames,
		CompleteFrames:          c.completeFrames,
		DroppedFrames:           sourceDrops + writerDrops,
		SourceDroppedFrames:     sourceDrops,
		WriterDroppedFrames:     writerDrops,
		WriterBackpressureDrops: c.writerBackpressureDrops,
		WriterFailedDrops:       c.writerFailedDrops,
		AudioLevelDbfs:          c.audioLevelDbfs,
		HasAudioLevel:           c.haveAudioLevel,
	}

	if totalFrames > 0 {
		snapshot.DroppedFramePercent = percent(snapshot.DroppedFrames, totalFrames)
		snapshot.SourceDroppedFramePercent = percent(sourceDrops, totalFrames)
		snapshot.WriterDroppedFramePercent = percent(writerDrops, totalFrames)
	}

	if c.completeFrames > 1 {
		span := c.lastCompletePTS - c.firstCompletePTS
		if span > 0 {
			snapshot.AchievedFps = float64(c.completeFrames-1) / span
		}
	}

	return snapshot
}

// Reset zeroes all counters. Called at capture session boundaries only,
// never mid-session.
func (c *Counters) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.completeFrames = 0
	c.sourceStatusDrops = 0
	c.sourceTimingDrops = 0
	c.writerBackpressureDrops = 0
	c.writerFailedDrops = 0
	c.firstCompletePTS = 0
	c.lastCompletePTS = 0
	c.haveCompletePTS = false
	c.audioLevelDbfs = 0
	c.haveAudioLevel = false
}

func percent(part, total uint64) float64 {
	return float64(part) / float64(total) * 100
}
