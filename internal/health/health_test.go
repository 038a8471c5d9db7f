package health_test

import (
	"testing"

	"codeberg.org/mutker/capturectl/internal/health"
	"codeberg.org/mutker/capturectl/internal/telemetry"
	"github.com/stretchr/testify/assert"
)

// snapshotWithDrops builds a snapshot of total frames with the given overall
// drop percentage already derived.
func snapshotWithDrops(totalFrames uint64, droppedPercent float64) telemetry.Snapshot {
	return telemetry.Snapshot{
		TotalFrames:         totalFrames,
		DroppedFramePercent: droppedPercent,
	}
}

func TestEvaluateGoodByDefault(t *testing.T) {
	verdict := health.Evaluate(health.Input{})
	assert.Equal(t, health.StateGood, verdict.State, "Expected good with no signals")
	assert.Empty(t, verdict.Reason, "Expected no reason when good")
}

func TestEvaluateEngineErrorWinsOverEverything(t *testing.T) {
	verdict := health.Evaluate(health.Input{
		Snapshot:    snapshotWithDrops(1000, 50),
		LastError:   "writer failed",
		IsRecording: true,
	})
	assert.Equal(t, health.StateCritical, verdict.State, "Expected critical on engine error")
	assert.Equal(t, health.ReasonEngineError, verdict.Reason, "Expected engine error to outrank drop rate")
}

func TestEvaluateDropRateThresholds(t *testing.T) {
	cases := []struct {
		name           string
		droppedPercent float64
		state          health.State
		reason         string
	}{
		{"below warning", 0.99, health.StateGood, ""},
		{"warning boundary", 1.0, health.StateWarning, health.ReasonElevatedDroppedFrameRate},
		{"between thresholds", 3.0, health.StateWarning, health.ReasonElevatedDroppedFrameRate},
		{"critical boundary", 5.0, health.StateCritical, health.ReasonHighDroppedFrameRate},
		{"above critical", 12.0, health.StateCritical, health.ReasonHighDroppedFrameRate},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			verdict := health.Evaluate(health.Input{
				Snapshot:    snapshotWithDrops(90, tc.droppedPercent),
				IsRecording: true,
			})
			assert.Equal(t, tc.state, verdict.State)
			assert.Equal(t, tc.reason, verdict.Reason)
		})
	}
}

func TestEvaluateDropRateNeedsSampleWindow(t *testing.T) {
	// 89 frames is below the sample window, so even a terrible rate stays good.
	verdict := health.Evaluate(health.Input{
		Snapshot:    snapshotWithDrops(89, 50),
		IsRecording: true,
	})
	assert.Equal(t, health.StateGood, verdict.State, "Expected drop rate ignored below the sample window")
}

func TestEvaluateDropRateNeedsRecording(t *testing.T) {
	verdict := health.Evaluate(health.Input{
		Snapshot:    snapshotWithDrops(1000, 50),
		IsRecording: false,
	})
	assert.Equal(t, health.StateGood, verdict.State, "Expected drop rate ignored while not recording")
}

func TestEvaluateUsesWorstDropRate(t *testing.T) {
	// The writer-only rate crosses the critical threshold even though the
	// overall rate does not.
	verdict := health.Evaluate(health.Input{
		Snapshot: telemetry.Snapshot{
			TotalFrames:               500,
			DroppedFramePercent:       0.5,
			SourceDroppedFramePercent: 0.2,
			WriterDroppedFramePercent: 6.0,
		},
		IsRecording: true,
	})
	assert.Equal(t, health.StateCritical, verdict.State, "Expected the worst per-origin rate to drive the verdict")
	assert.Equal(t, health.ReasonHighDroppedFrameRate, verdict.Reason)
}

func TestEvaluateLowMicrophoneLevel(t *testing.T) {
	verdict := health.Evaluate(health.Input{
		Snapshot: telemetry.Snapshot{
			TotalFrames:    200,
			AudioLevelDbfs: -50,
			HasAudioLevel:  true,
		},
		IsRecording: true,
	})
	assert.Equal(t, health.StateWarning, verdict.State, "Expected warning for a quiet microphone")
	assert.Equal(t, health.ReasonLowMicrophoneLevel, verdict.Reason)
}

func TestEvaluateMicrophoneLevelBoundary(t *testing.T) {
	verdict := health.Evaluate(health.Input{
		Snapshot: telemetry.Snapshot{
			TotalFrames:    200,
			AudioLevelDbfs: -45,
			HasAudioLevel:  true,
		},
		IsRecording: true,
	})
	assert.Equal(t, health.StateGood, verdict.State, "Expected -45 dBFS exactly to stay good")
}

func TestEvaluateMissingAudioLevelStaysGood(t *testing.T) {
	verdict := health.Evaluate(health.Input{
		Snapshot:    telemetry.Snapshot{TotalFrames: 200},
		IsRecording: true,
	})
	assert.Equal(t, health.StateGood, verdict.State, "Expected no microphone warning without a level")
}

func TestEvaluateDropRateOutranksMicrophone(t *testing.T) {
	verdict := health.Evaluate(health.Input{
		Snapshot: telemetry.Snapshot{
			TotalFrames:         200,
			DroppedFramePercent: 2.0,
			AudioLevelDbfs:      -60,
			HasAudioLevel:       true,
		},
		IsRecording: true,
	})
	assert.Equal(t, health.StateWarning, verdict.State)
	assert.Equal(t, health.ReasonElevatedDroppedFrameRate, verdict.Reason, "Expected drop rate to outrank the microphone warning")
}
