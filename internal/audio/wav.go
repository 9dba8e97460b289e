package audio

import (
	"encoding/binary"
	"fmt"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// streamSentinel marks open-ended RIFF/data sizes for live streams where the
// final length is unknowable up front.
const streamSentinel = 0xFFFFFFFF

// StreamHeader builds a canonical 44-byte WAV header for an open-ended PCM16
// stream: RIFF and data sizes carry the sentinel value.
func StreamHeader() []byte {
	return waveHeader(streamSentinel, streamSentinel)
}

func waveHeader(riffSize, dataSize uint32) []byte {
	h := make([]byte, 0, 44)
	le := binary.LittleEndian

	h = append(h, 'R', 'I', 'F', 'F')
	h = le.AppendUint32(h, riffSize)
	h = append(h, 'W', 'A', 'V', 'E')

	h = append(h, 'f', 'm', 't', ' ')
	h = le.AppendUint32(h, 16)
	h = le.AppendUint16(h, 1) // PCM
	h = le.AppendUint16(h, Channels)
	h = le.AppendUint32(h, SampleRate)
	h = le.AppendUint32(h, SampleRate*Channels*BitDepth/8) // byte rate
	h = le.AppendUint16(h, Channels*BitDepth/8)            // block align
	h = le.AppendUint16(h, BitDepth)

	h = append(h, 'd', 'a', 't', 'a')
	h = le.AppendUint32(h, dataSize)
	return h
}

// WriteWAVFile writes interleaved float stereo samples to path as a
// finalized PCM16 WAV file.
func WriteWAVFile(path string, samples []float32) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, SampleRate, BitDepth, Channels, 1)

	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: Channels, SampleRate: SampleRate},
		SourceBitDepth: BitDepth,
		Data:           make([]int, len(samples)),
	}
	for i, s := range samples {
		buf.Data[i] = int(Float32ToInt16(s))
	}

	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("write wav %s: %w", path, err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finalize wav %s: %w", path, err)
	}
	return nil
}

// WAVWriter streams PCM16 frames into a WAV file incrementally. Used by the
// master-bus recorder where the final length is only known at stop time.
type WAVWriter struct {
	f   *os.File
	enc *wav.Encoder
}

// NewWAVWriter opens path for incremental WAV writing.
func NewWAVWriter(path string) (*WAVWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	return &WAVWriter{
		f:   f,
		enc: wav.NewEncoder(f, SampleRate, BitDepth, Channels, 1),
	}, nil
}

// WriteFrame appends one interleaved float buffer.
func (w *WAVWriter) WriteFrame(samples []float32) error {
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: Channels, SampleRate: SampleRate},
		SourceBitDepth: BitDepth,
		Data:           make([]int, len(samples)),
	}
	for i, s := range samples {
		buf.Data[i] = int(Float32ToInt16(s))
	}
	return w.enc.Write(buf)
}

// Close finalizes the RIFF sizes and closes the file.
func (w *WAVWriter) Close() error {
	if err := w.enc.Close(); err != nil {
		w.f.Close()
		return err
	}
	return w.f.Close()
}
