package capture

import "math"

const (
	pcm16FullScale = 32768.0

	// silenceFloorDbfs bounds the loudness of an all-zero buffer so the
	// telemetry smoothing never has to fold in negative infinity.
	silenceFloorDbfs = -96.0
)

// rmsDbfs computes the RMS loudness of a PCM16 buffer in dBFS, where 0 is
// full scale and quieter signals are more negative.
func rmsDbfs(pcm []int16) float64 {
	if len(pcm) == 0 {
		return silenceFloorDbfs
	}

	var sum float64
	for _, s := range pcm {
		v := float64(s)
		sum += v * v
	}

	rms := math.Sqrt(sum / float64(len(pcm)))
	if rms <= 0 {
		return silenceFloorDbfs
	}

	level := 20 * math.Log10(rms/pcm16FullScale)
	if level < silenceFloorDbfs {
		return silenceFloorDbfs
	}

	return level
}
