package capture

import "codeberg.org/mutker/capturectl/internal/health"

// Status is the UI-observable capture state, polled at a fixed cadence by
// the surrounding RPC layer. Field names are part of the wire contract.
type Status struct {
	IsRunning                bool            `json:"isRunning"`
	IsRecording              bool            `json:"isRecording"`
	RecordingDurationSeconds float64         `json:"recordingDurationSeconds"`
	RecordingURL             *string         `json:"recordingURL"`
	LastError                *string         `json:"lastError"`
	Telemetry                TelemetryStatus `json:"telemetry"`
}

// TelemetryStatus is the telemetry section of the status payload.
type TelemetryStatus struct {
	TotalFrames               uint64       `json:"totalFrames"`
	DroppedFrames             uint64       `json:"droppedFrames"`
	DroppedFramePercent       float64      `json:"droppedFramePercent"`
	SourceDroppedFrames       uint64       `json:"sourceDroppedFrames"`
	SourceDroppedFramePercent float64      `json:"sourceDroppedFramePercent"`
	WriterDroppedFrames       uint64       `json:"writerDroppedFrames"`
	WriterBackpressureDrops   uint64       `json:"writerBackpressureDrops"`
	WriterDroppedFramePercent float64      `json:"writerDroppedFramePercent"`
	AchievedFps               float64      `json:"achievedFps"`
	AudioLevelDbfs            *float64     `json:"audioLevelDbfs"`
	Health                    health.State `json:"health"`
	HealthReason              *string      `json:"healthReason"`
}
