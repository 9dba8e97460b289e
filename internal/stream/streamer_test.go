package stream

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/deckwave/deckwave/internal/audio"
)

func newTestStreamer() (*Streamer, *Broadcaster) {
	b := NewBroadcaster()
	return NewStreamer(b, zerolog.Nop()), b
}

func TestStreamWAVHeaderFirst(t *testing.T) {
	s, _ := newTestStreamer()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := s.StreamWAV(ctx)

	header := <-out
	if !bytes.Equal(header, audio.StreamHeader()) {
		t.Fatal("first chunk is not the canonical stream header")
	}
	if len(header) != 44 {
		t.Errorf("header length = %d, want 44", len(header))
	}
}

func TestStreamWAVSynthesizesSilenceWhenIdle(t *testing.T) {
	// never started: there is no queue, so only silence can follow the header
	s, _ := newTestStreamer()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := s.StreamWAV(ctx)

	<-out // header
	select {
	case chunk := <-out:
		if len(chunk) != audio.BufferBytes {
			t.Fatalf("silence chunk = %d bytes, want %d", len(chunk), audio.BufferBytes)
		}
		for i, v := range chunk {
			if v != 0 {
				t.Fatalf("silence chunk byte %d = %d", i, v)
			}
		}
	case <-time.After(time.Second):
		t.Fatal("no silence chunk within 1s")
	}
}

func TestStreamerDeliversMixedAudio(t *testing.T) {
	s, b := newTestStreamer()
	s.StartStreaming()
	s.StartStreaming() // idempotent
	defer s.StopStreaming()

	if !s.Info().Streaming {
		t.Fatal("Info().Streaming = false after start")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	source := make(chan []float32, 4)
	go b.Run(ctx, source)

	buf := audio.Silence()
	for i := range buf {
		buf[i] = 0.5
	}
	want := audio.SamplesToPCM16(buf)
	source <- buf

	out := s.StreamWAV(ctx)
	<-out // header

	// underruns may interleave silence before the real chunk arrives
	deadline := time.After(2 * time.Second)
	for {
		select {
		case chunk := <-out:
			if bytes.Equal(chunk, want) {
				return
			}
		case <-deadline:
			t.Fatal("mixed chunk never delivered")
		}
	}
}

func TestStreamWAVAttachesToLateStart(t *testing.T) {
	s, b := newTestStreamer()

	// listener connects while the streamer is still idle
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := s.StreamWAV(ctx)
	<-out // header

	s.StartStreaming()
	defer s.StopStreaming()

	source := make(chan []float32, 4)
	go b.Run(ctx, source)

	buf := audio.Silence()
	for i := range buf {
		buf[i] = 0.25
	}
	want := audio.SamplesToPCM16(buf)

	// silence chunks may interleave while the reader picks up the queue
	deadline := time.After(2 * time.Second)
	for {
		select {
		case source <- buf:
		default:
		}
		select {
		case chunk := <-out:
			if bytes.Equal(chunk, want) {
				return
			}
		case <-deadline:
			t.Fatal("listener never attached to the live queue")
		}
	}
}

func TestStreamerQueueBounded(t *testing.T) {
	s, b := newTestStreamer()
	s.StartStreaming()
	defer s.StopStreaming()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	source := make(chan []float32)
	go b.Run(ctx, source)

	// no consumer on the queue: overfill it and let the producer drop
	for i := 0; i < queueCap+20; i++ {
		select {
		case source <- audio.Silence():
		case <-time.After(time.Second):
			t.Fatal("source send stalled")
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.Info().QueueDepth >= queueCap {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if depth := s.Info().QueueDepth; depth > queueCap {
		t.Errorf("queue depth = %d, exceeds cap %d", depth, queueCap)
	}
}

func TestStopStreaming(t *testing.T) {
	s, b := newTestStreamer()
	s.StartStreaming()
	if b.ListenerCount() != 1 {
		t.Fatalf("ListenerCount = %d after start, want 1", b.ListenerCount())
	}

	s.StopStreaming()
	s.StopStreaming() // no-op

	if s.Info().Streaming {
		t.Error("Info().Streaming = true after stop")
	}

	// the producer unsubscribes itself once cancelled
	deadline := time.Now().Add(time.Second)
	for b.ListenerCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if b.ListenerCount() != 0 {
		t.Error("producer listener still subscribed after stop")
	}
}

func TestInfoFormat(t *testing.T) {
	s, _ := newTestStreamer()
	info := s.Info()
	if info.Streaming {
		t.Error("fresh streamer reports streaming")
	}
	if info.SampleRate != audio.SampleRate || info.Channels != audio.Channels || info.BitDepth != audio.BitDepth {
		t.Errorf("format = %d/%d/%d", info.SampleRate, info.Channels, info.BitDepth)
	}
}
