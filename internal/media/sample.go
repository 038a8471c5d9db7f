// Package media defines the sample value types and the container sink
// boundary the recording pipeline writes into. The pipeline core carries no
// OS capture or codec dependencies; payloads travel as opaque bytes with
// just enough geometry and clock metadata to configure tracks lazily.
package media

import "encoding/binary"

// VideoSample is one video frame as delivered by the frame source.
// PTS is in seconds on the source clock.
type VideoSample struct {
	Width  int
	Height int
	PTS    float64
	Data   []byte
}

// AudioBuffer is one PCM buffer as delivered by the audio source.
// Time is in seconds on the audio device clock, which is independent of the
// video clock.
type AudioBuffer struct {
	SampleRate int
	Channels   int
	Time       float64
	PCM        []int16
}

// PayloadBytes serializes the PCM data as little-endian bytes for the sink.
func (b AudioBuffer) PayloadBytes() []byte {
	out := make([]byte, len(b.PCM)*2)
	for i, s := range b.PCM {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}
