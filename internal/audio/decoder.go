package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"os/exec"
)

// DecodeFile runs FFmpeg to decode an audio file to raw float32 PCM.
// Returns interleaved stereo samples at the engine sample rate. Decoding is
// the only place the core touches source files; everything downstream works
// on in-memory buffers.
func DecodeFile(path string) ([]float32, error) {
	cmd := exec.Command("ffmpeg",
		"-i", path,
		"-f", "f32le",
		"-acodec", "pcm_f32le",
		"-ar", fmt.Sprint(SampleRate),
		"-ac", fmt.Sprint(Channels),
		"-loglevel", "error",
		"pipe:1",
	)

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg decode %s: %w", path, err)
	}

	// Ensure 4-byte alignment for float32
	out = out[:len(out)-len(out)%4]

	samples := make([]float32, len(out)/4)
	for i := range samples {
		bits := binary.LittleEndian.Uint32(out[i*4 : i*4+4])
		samples[i] = math.Float32frombits(bits)
	}

	return samples, nil
}

// SamplesToPCM16 converts float samples in [-1,1] to packed little-endian
// signed 16-bit bytes, clamping out-of-range values.
func SamplesToPCM16(samples []float32) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(Float32ToInt16(s)))
	}
	return buf
}

// Float32ToInt16 converts one float sample to int16 with clipping.
func Float32ToInt16(s float32) int16 {
	v := float64(Clamp(s)) * 32767.0
	if v > 32767 {
		v = 32767
	} else if v < -32768 {
		v = -32768
	}
	return int16(v)
}

// Int16ToFloat32 converts one int16 sample to the float mix range.
func Int16ToFloat32(s int16) float32 {
	return float32(s) / 32768.0
}
