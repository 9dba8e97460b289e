package audio

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// --- Constants ---

func TestConstants(t *testing.T) {
	// 44.1kHz * 20ms = 882 frames per tick
	if got := SampleRate * int(TickDuration/time.Millisecond) / 1000; got != BufferFrames {
		t.Errorf("BufferFrames mismatch: want %d, got %d", got, BufferFrames)
	}
	if BufferSamples != BufferFrames*Channels {
		t.Errorf("BufferSamples = %d, want %d", BufferSamples, BufferFrames*Channels)
	}
	if BufferBytes != BufferSamples*2 {
		t.Errorf("BufferBytes = %d, want %d", BufferBytes, BufferSamples*2)
	}
}

// --- Clamp ---

func TestClamp(t *testing.T) {
	tests := []struct {
		in   float32
		want float32
	}{
		{0, 0},
		{0.5, 0.5},
		{1, 1},
		{1.5, 1},
		{-1, -1},
		{-2, -1},
	}
	for _, tt := range tests {
		if got := Clamp(tt.in); got != tt.want {
			t.Errorf("Clamp(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

// --- Sample conversion ---

func TestFloat32ToInt16(t *testing.T) {
	tests := []struct {
		in   float32
		want int16
	}{
		{0, 0},
		{1, 32767},
		{-1, -32767},
		{2, 32767},  // clipped
		{-2, -32767}, // clipped
	}
	for _, tt := range tests {
		if got := Float32ToInt16(tt.in); got != tt.want {
			t.Errorf("Float32ToInt16(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestSamplesToPCM16LittleEndian(t *testing.T) {
	buf := SamplesToPCM16([]float32{0, 1})
	if len(buf) != 4 {
		t.Fatalf("length = %d, want 4", len(buf))
	}
	if buf[0] != 0 || buf[1] != 0 {
		t.Errorf("zero sample encoded as [%02x %02x], want [00 00]", buf[0], buf[1])
	}
	// 32767 = 0x7FFF -> bytes [0xFF, 0x7F]
	if buf[2] != 0xFF || buf[3] != 0x7F {
		t.Errorf("full-scale sample encoded as [%02x %02x], want [ff 7f]", buf[2], buf[3])
	}
}

func TestSampleRoundTrip(t *testing.T) {
	original := []float32{0, 0.25, -0.25, 0.99, -0.99}
	buf := SamplesToPCM16(original)
	for i, want := range original {
		got := Int16ToFloat32(int16(binary.LittleEndian.Uint16(buf[i*2:])))
		if diff := got - want; diff > 0.001 || diff < -0.001 {
			t.Errorf("round-trip sample[%d]: got %v, want %v", i, got, want)
		}
	}
}

// --- WAV container ---

func TestStreamHeaderLayout(t *testing.T) {
	h := StreamHeader()
	if len(h) != 44 {
		t.Fatalf("header length = %d, want 44", len(h))
	}
	if string(h[0:4]) != "RIFF" {
		t.Errorf("bytes 0-3 = %q, want RIFF", h[0:4])
	}
	if string(h[8:12]) != "WAVE" {
		t.Errorf("bytes 8-11 = %q, want WAVE", h[8:12])
	}
	if string(h[12:16]) != "fmt " {
		t.Errorf("bytes 12-15 = %q, want 'fmt '", h[12:16])
	}
	if string(h[36:40]) != "data" {
		t.Errorf("bytes 36-39 = %q, want data", h[36:40])
	}

	le := binary.LittleEndian
	if got := le.Uint32(h[16:20]); got != 16 {
		t.Errorf("fmt chunk size = %d, want 16", got)
	}
	if got := le.Uint16(h[20:22]); got != 1 {
		t.Errorf("format code = %d, want 1 (PCM)", got)
	}
	if got := le.Uint16(h[22:24]); got != Channels {
		t.Errorf("channels = %d, want %d", got, Channels)
	}
	if got := le.Uint32(h[24:28]); got != SampleRate {
		t.Errorf("sample rate = %d, want %d", got, SampleRate)
	}
	if got := le.Uint32(h[28:32]); got != SampleRate*Channels*BitDepth/8 {
		t.Errorf("byte rate = %d, want %d", got, SampleRate*Channels*BitDepth/8)
	}
	if got := le.Uint16(h[32:34]); got != Channels*BitDepth/8 {
		t.Errorf("block align = %d, want %d", got, Channels*BitDepth/8)
	}
	if got := le.Uint16(h[34:36]); got != BitDepth {
		t.Errorf("bits per sample = %d, want %d", got, BitDepth)
	}

	// open-ended stream: both sizes carry the sentinel
	if got := le.Uint32(h[4:8]); got != 0xFFFFFFFF {
		t.Errorf("RIFF size = %#x, want sentinel", got)
	}
	if got := le.Uint32(h[40:44]); got != 0xFFFFFFFF {
		t.Errorf("data size = %#x, want sentinel", got)
	}
}

func TestWriteWAVFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")

	// one second of silence
	samples := make([]float32, SampleRate*Channels)
	if err := WriteWAVFile(path, samples); err != nil {
		t.Fatalf("WriteWAVFile: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(data) < 44 {
		t.Fatalf("file too short: %d bytes", len(data))
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		t.Errorf("missing RIFF/WAVE markers: %q %q", data[0:4], data[8:12])
	}

	// PCM payload should be one second of 16-bit stereo
	wantPayload := SampleRate * Channels * 2
	if len(data) < wantPayload {
		t.Errorf("file size %d smaller than expected payload %d", len(data), wantPayload)
	}
}
