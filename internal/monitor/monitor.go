// Package monitor plays the cue/monitor bus through the local audio device
// so a DJ can pre-listen decks in headphones while the master streams out.
package monitor

import (
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/speaker"
	"github.com/rs/zerolog"

	"github.com/deckwave/deckwave/internal/audio"
)

// Output renders monitor-bus buffers through beep's speaker.
type Output struct {
	log zerolog.Logger

	mu      sync.Mutex
	started bool
	frames  <-chan []float32
	pending []float32
}

// NewOutput creates a monitor output over a channel of interleaved stereo
// buffers.
func NewOutput(frames <-chan []float32, logger zerolog.Logger) *Output {
	return &Output{
		frames: frames,
		log:    logger.With().Str("component", "monitor").Logger(),
	}
}

// Start initializes the speaker and begins playback. Safe to call once.
func (o *Output) Start() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.started {
		return nil
	}
	sr := beep.SampleRate(audio.SampleRate)
	if err := speaker.Init(sr, sr.N(100*time.Millisecond)); err != nil {
		return err
	}
	speaker.Play(o)
	o.started = true
	o.log.Info().Msg("monitor output started")
	return nil
}

// Stream implements beep.Streamer, pulling monitor buffers as the device
// demands samples. Underruns fill with silence so the device never stalls.
func (o *Output) Stream(samples [][2]float64) (int, bool) {
	for i := range samples {
		l, r, ok := o.next()
		if !ok {
			samples[i] = [2]float64{}
			continue
		}
		samples[i] = [2]float64{l, r}
	}
	return len(samples), true
}

// Err implements beep.Streamer.
func (o *Output) Err() error { return nil }

func (o *Output) next() (float64, float64, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.pending) < 2 {
		select {
		case buf, ok := <-o.frames:
			if !ok {
				return 0, 0, false
			}
			o.pending = buf
		default:
			return 0, 0, false
		}
	}
	l := float64(o.pending[0])
	r := float64(o.pending[1])
	o.pending = o.pending[2:]
	return l, r, true
}
