package audio

import "time"

const (
	SampleRate    = 44100
	Channels      = 2
	BitDepth      = 16
	TickDuration  = 20 * time.Millisecond
	BufferFrames  = 882                     // frames per channel per 20ms tick
	BufferSamples = BufferFrames * Channels // interleaved samples per tick buffer
	BufferBytes   = BufferSamples * 2       // bytes per tick buffer (int16 = 2 bytes)
)

// FullScale is the clip ceiling of the float mix bus. Samples are clamped to
// [-FullScale, FullScale] before conversion to int16.
const FullScale = 1.0

// Clamp limits a mixed sample to the valid float range.
func Clamp(s float32) float32 {
	if s > FullScale {
		return FullScale
	}
	if s < -FullScale {
		return -FullScale
	}
	return s
}

// Silence returns a zeroed interleaved stereo buffer of one tick.
func Silence() []float32 {
	return make([]float32, BufferSamples)
}
