// Package health derives a capture well-being verdict from a telemetry
// snapshot. Assessments are computed on every status query and never stored.
package health

import (
	"codeberg.org/mutker/capturectl/internal/telemetry"
)

// State is the overall health verdict.
type State string

const (
	StateGood     State = "good"
	StateWarning  State = "warning"
	StateCritical State = "critical"
)

// Reason identifiers serialized into the status payload.
const (
	ReasonEngineError              = "engine_error"
	ReasonHighDroppedFrameRate     = "high_dropped_frame_rate"
	ReasonElevatedDroppedFrameRate = "elevated_dropped_frame_rate"
	ReasonLowMicrophoneLevel       = "low_microphone_level"
)

const (
	// minSampleFrames suppresses start-up noise: drop rates are not judged
	// until this many frames have been observed.
	minSampleFrames = 90

	criticalDropPercent = 5.0
	warningDropPercent  = 1.0
	lowMicrophoneDbfs   = -45.0
)

// Assessment is the derived verdict. Reason is empty when State is good.
type Assessment struct {
	State  State
	Reason string
}

// Input carries everything the evaluator needs for one verdict.
type Input struct {
	Snapshot    telemetry.Snapshot
	LastError   string
	IsRecording bool
}

// Evaluate maps a telemetry snapshot plus context to a health verdict.
// Rules apply in strict priority order; the first match wins.
func Evaluate(in Input) Assessment {
	if in.LastError != "" {
		return Assessment{State: StateCritical, Reason: ReasonEngineError}
	}

	if in.IsRecording && in.Snapshot.TotalFrames >= minSampleFrames {
		dropped := maxPercent(
			in.Snapshot.DroppedFramePercent,
			in.Snapshot.SourceDroppedFramePercent,
			in.Snapshot.WriterDroppedFramePercent,
		)
		if dropped >= criticalDropPercent {
			return Assessment{State: StateCritical, Reason: ReasonHighDroppedFrameRate}
		}
		if dropped >= warningDropPercent {
			return Assessment{State: StateWarning, Reason: ReasonElevatedDroppedFrameRate}
		}
	}

	// A missing audio level never triggers the microphone warning.
	if in.IsRecording && in.Snapshot.HasAudioLevel && in.Snapshot.AudioLevelDbfs < lowMicrophoneDbfs {
		return Assessment{State: StateWarning, Reason: ReasonLowMicrophoneLevel}
	}

	return Assessment{State: StateGood}
}

func maxPercent(values ...float64) float64 {
	result := values[0]
	for _, v := range values[1:] {
		if v > result {
			result = v
		}
	}
	return result
}
