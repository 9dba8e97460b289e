package stream

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/deckwave/deckwave/internal/audio"
)

// queueCap bounds the packed-chunk queue between the producer and the
// consuming transport. This queue is the single backpressure point: when
// the consumer lags, the oldest chunk is dropped.
const queueCap = 50

// underrunTimeout is how long StreamWAV waits for a chunk before
// synthesizing silence, preserving continuous real-time delivery.
const underrunTimeout = 60 * time.Millisecond

// Streamer wraps the live engine output into a backpressure-aware WAV byte
// stream.
type Streamer struct {
	broadcaster *Broadcaster
	log         zerolog.Logger

	mu        sync.Mutex
	streaming bool
	cancel    context.CancelFunc
	queue     chan []byte
}

// NewStreamer creates a streamer over the master-bus broadcaster.
func NewStreamer(b *Broadcaster, logger zerolog.Logger) *Streamer {
	return &Streamer{
		broadcaster: b,
		log:         logger.With().Str("component", "streamer").Logger(),
	}
}

// StartStreaming launches the background producer converting mixed buffers
// into packed PCM16 chunks. Starting an already-streaming streamer is a
// no-op.
func (s *Streamer) StartStreaming() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.streaming {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.queue = make(chan []byte, queueCap)
	s.streaming = true

	listener := s.broadcaster.Subscribe()
	go s.produce(ctx, listener, s.queue)
	s.log.Info().Msg("streaming started")
}

// StopStreaming cancels the producer. Queued chunks are discarded; the
// stream is ephemeral.
func (s *Streamer) StopStreaming() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.streaming {
		return
	}
	s.cancel()
	s.streaming = false
	s.queue = nil
	s.log.Info().Msg("streaming stopped")
}

func (s *Streamer) produce(ctx context.Context, l *Listener, queue chan []byte) {
	defer s.broadcaster.Unsubscribe(l)
	for {
		select {
		case <-ctx.Done():
			return
		case buf, ok := <-l.C:
			if !ok {
				return
			}
			chunk := audio.SamplesToPCM16(buf)
			select {
			case queue <- chunk:
			default:
				// consumer is slow: drop the oldest chunk, never grow
				select {
				case <-queue:
				default:
				}
				select {
				case queue <- chunk:
				default:
				}
			}
		}
	}
}

// StreamWAV returns a lazy byte sequence for a consuming transport: the
// canonical open-ended WAV header first, then packed PCM chunks. If no
// chunk arrives within the underrun timeout a silence chunk of the nominal
// tick duration is synthesized instead of stalling.
func (s *Streamer) StreamWAV(ctx context.Context) <-chan []byte {
	out := make(chan []byte, 1)

	go func() {
		defer close(out)

		select {
		case out <- audio.StreamHeader():
		case <-ctx.Done():
			return
		}

		silence := audio.SamplesToPCM16(audio.Silence())
		timer := time.NewTimer(underrunTimeout)
		defer timer.Stop()

		for {
			// re-read per chunk: a listener connected while idle attaches
			// to the live queue once streaming starts
			s.mu.Lock()
			queue := s.queue
			s.mu.Unlock()

			var chunk []byte
			if queue == nil {
				chunk = silence
				select {
				case <-time.After(audio.TickDuration):
				case <-ctx.Done():
					return
				}
			} else {
				timer.Reset(underrunTimeout)
				select {
				case c, ok := <-queue:
					if !ok {
						return
					}
					chunk = c
				case <-timer.C:
					chunk = silence
				case <-ctx.Done():
					return
				}
			}

			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Info reports streaming state, format parameters and queue depth. Purely
// for observability.
type Info struct {
	Streaming  bool `json:"streaming"`
	SampleRate int  `json:"sample_rate"`
	Channels   int  `json:"channels"`
	BitDepth   int  `json:"bit_depth"`
	QueueDepth int  `json:"queue_depth"`
}

// Info returns the current stream state.
func (s *Streamer) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	depth := 0
	if s.queue != nil {
		depth = len(s.queue)
	}
	return Info{
		Streaming:  s.streaming,
		SampleRate: audio.SampleRate,
		Channels:   audio.Channels,
		BitDepth:   audio.BitDepth,
		QueueDepth: depth,
	}
}
