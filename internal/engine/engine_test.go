package engine

import (
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/deckwave/deckwave/internal/audio"
	"github.com/deckwave/deckwave/internal/deck"
	"github.com/deckwave/deckwave/internal/fx"
)

func newTestEngine() *Engine {
	return New(fx.NewManager(zerolog.Nop()), zerolog.Nop())
}

// constantStereo builds an interleaved buffer holding the same value in
// every sample.
func constantStereo(frames int, v float32) []float32 {
	out := make([]float32, frames*2)
	for i := range out {
		out[i] = v
	}
	return out
}

func fptr(v float64) *float64 { return &v }

func TestTransportValidation(t *testing.T) {
	e := newTestEngine()

	if err := e.PlayDeck(deck.ID(7)); err != deck.ErrInvalidDeck {
		t.Errorf("PlayDeck(invalid) = %v, want ErrInvalidDeck", err)
	}
	for _, fn := range []func(deck.ID) error{e.PlayDeck, e.PauseDeck, e.StopDeck, e.CueDeck} {
		if err := fn(deck.A); err != ErrDeckEmpty {
			t.Errorf("transport on empty deck = %v, want ErrDeckEmpty", err)
		}
	}
}

func TestLoadSeekPosition(t *testing.T) {
	e := newTestEngine()
	if err := e.LoadDeckBuffer(deck.A, "test.wav", constantStereo(audio.SampleRate, 0.1)); err != nil {
		t.Fatalf("LoadDeckBuffer: %v", err)
	}

	if err := e.SeekDeck(deck.A, 0.5); err != nil {
		t.Fatalf("SeekDeck: %v", err)
	}
	pos, err := e.DeckPosition(deck.A)
	if err != nil {
		t.Fatalf("DeckPosition: %v", err)
	}
	if math.Abs(pos-0.5) > 0.01 {
		t.Errorf("position after seek 0.5 = %v", pos)
	}

	// out-of-range input clamps rather than failing
	if err := e.SeekDeck(deck.A, 1.8); err != nil {
		t.Fatalf("SeekDeck(1.8): %v", err)
	}
	pos, _ = e.DeckPosition(deck.A)
	if pos != 1 {
		t.Errorf("position after seek 1.8 = %v, want 1", pos)
	}
}

func TestStartStopIdempotent(t *testing.T) {
	e := newTestEngine()
	e.Start()
	e.Start() // second start must not spawn a second loop
	if !e.Running() {
		t.Fatal("Running() = false after Start")
	}

	frames := e.Frames()
	select {
	case <-frames:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("no frame produced within 500ms")
	}

	e.Stop()
	if e.Running() {
		t.Error("Running() = true after Stop")
	}
	e.Stop() // no-op

	// the run's channels close when the loop exits
	for range frames {
	}
}

func TestLoopPanicDownsEngineThenRestart(t *testing.T) {
	e := newTestEngine()
	e.Start()
	frames := e.Frames()

	e.stage(func() { panic("tick failure") })

	deadline := time.Now().Add(2 * time.Second)
	for e.Running() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if e.Running() {
		t.Fatal("Running() = true after loop failure")
	}
	// the failed run closed its own channels
	for range frames {
	}

	e.Start()
	defer e.Stop()
	if !e.Running() {
		t.Fatal("restart after failure did not take")
	}
	select {
	case _, ok := <-e.Frames():
		if !ok {
			t.Fatal("fresh frames channel closed by the dead run")
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("no frame produced after restart")
	}
}

func TestTickMixesPlayingDeck(t *testing.T) {
	e := newTestEngine()
	e.LoadDeckBuffer(deck.A, "test.wav", constantStereo(audio.SampleRate, 0.5))
	e.PlayDeck(deck.A)
	e.SetCrossfaderGain(deck.A, 1)

	master, _ := e.tick(time.Now())
	if len(master) != audio.BufferSamples {
		t.Fatalf("master buffer = %d samples, want %d", len(master), audio.BufferSamples)
	}
	// unity EQ, gains and crossfader pass the signal through unchanged
	if got := float64(master[audio.BufferSamples-1]); math.Abs(got-0.5) > 1e-4 {
		t.Errorf("master sample = %v, want 0.5", got)
	}

	snap, _ := e.Snapshot(deck.A)
	if want := float64(audio.BufferFrames) / float64(audio.SampleRate); math.Abs(snap.Position-want) > 1e-6 {
		t.Errorf("position after one tick = %v, want %v", snap.Position, want)
	}
	if math.Abs(snap.PeakLevel-0.5) > 1e-4 {
		t.Errorf("deck peak = %v, want 0.5", snap.PeakLevel)
	}

	peak, rms := e.MasterLevels()
	if math.Abs(peak-0.5) > 1e-4 || math.Abs(rms-0.5) > 1e-4 {
		t.Errorf("master levels = %v/%v, want 0.5/0.5", peak, rms)
	}
}

func TestTickStoppedDecksSilent(t *testing.T) {
	e := newTestEngine()
	e.LoadDeckBuffer(deck.B, "test.wav", constantStereo(audio.SampleRate, 0.5))

	master, _ := e.tick(time.Now())
	for i, v := range master {
		if v != 0 {
			t.Fatalf("master[%d] = %v, want silence for non-playing deck", i, v)
		}
	}
}

func TestCueRoutesToMonitorOnly(t *testing.T) {
	e := newTestEngine()
	e.LoadDeckBuffer(deck.C, "test.wav", constantStereo(audio.SampleRate, 0.4))
	e.CueDeck(deck.C)

	master, monitor := e.tick(time.Now())
	for i, v := range master {
		if v != 0 {
			t.Fatalf("master[%d] = %v, cueing deck must not reach master", i, v)
		}
	}
	// monitor defaults: volume 1, cue mix 0 (cue bus only)
	if got := float64(monitor[audio.BufferSamples-1]); math.Abs(got-0.4) > 1e-4 {
		t.Errorf("monitor sample = %v, want 0.4", got)
	}
}

func TestTickEndOfTrackPauses(t *testing.T) {
	e := newTestEngine()
	// shorter than one tick window
	e.LoadDeckBuffer(deck.A, "short.wav", constantStereo(audio.BufferFrames/2, 0.2))
	e.PlayDeck(deck.A)
	e.SetCrossfaderGain(deck.A, 1)

	e.tick(time.Now())

	snap, _ := e.Snapshot(deck.A)
	if snap.Status != deck.Paused {
		t.Errorf("status after end of track = %v, want Paused", snap.Status)
	}
	if snap.Position != 1 {
		t.Errorf("position after end of track = %v, want 1", snap.Position)
	}
}

func TestMasterBusClamps(t *testing.T) {
	e := newTestEngine()
	e.LoadDeckBuffer(deck.A, "hot.wav", constantStereo(audio.SampleRate, 0.9))
	e.PlayDeck(deck.A)
	e.SetCrossfaderGain(deck.A, 1)
	e.SetMasterParams(MasterParams{Volume: 1, Gain: 4})

	master, _ := e.tick(time.Now())
	for i, v := range master {
		if v > audio.FullScale || v < -audio.FullScale {
			t.Fatalf("master[%d] = %v outside full scale", i, v)
		}
	}
}

func TestSetDeckParamsPartial(t *testing.T) {
	e := newTestEngine()
	e.LoadDeckBuffer(deck.D, "test.wav", constantStereo(audio.SampleRate, 0.1))

	if err := e.SetDeckParams(deck.D, fptr(0.5), nil, nil, nil, nil, nil); err != nil {
		t.Fatalf("SetDeckParams: %v", err)
	}
	snap, _ := e.Snapshot(deck.D)
	if snap.Params.Volume != 0.5 {
		t.Errorf("volume = %v, want 0.5", snap.Params.Volume)
	}
	if snap.Params.Gain != 1 {
		t.Errorf("gain = %v, nil field must stay at default 1", snap.Params.Gain)
	}

	// invalid tempo is ignored, not applied
	e.SetDeckParams(deck.D, nil, nil, nil, nil, nil, fptr(-2))
	snap, _ = e.Snapshot(deck.D)
	if snap.Params.TempoAdjust != 1 {
		t.Errorf("tempo = %v, want unchanged 1", snap.Params.TempoAdjust)
	}
}

func TestTempoAdjustAdvancesFaster(t *testing.T) {
	e := newTestEngine()
	e.LoadDeckBuffer(deck.A, "test.wav", constantStereo(audio.SampleRate, 0.1))
	e.PlayDeck(deck.A)
	e.SetDeckParams(deck.A, nil, nil, nil, nil, nil, fptr(2.0))

	e.tick(time.Now())

	snap, _ := e.Snapshot(deck.A)
	want := float64(audio.BufferFrames) * 2 / float64(audio.SampleRate)
	if math.Abs(snap.Position-want) > 1e-6 {
		t.Errorf("position with tempo 2.0 = %v, want %v", snap.Position, want)
	}
}

func TestToggleCue(t *testing.T) {
	e := newTestEngine()
	on, err := e.ToggleCue(deck.B)
	if err != nil || !on {
		t.Fatalf("ToggleCue = %v, %v, want true", on, err)
	}
	on, _ = e.ToggleCue(deck.B)
	if on {
		t.Error("second toggle should switch cue off")
	}
}

func TestActiveDeckCount(t *testing.T) {
	e := newTestEngine()
	e.LoadDeckBuffer(deck.A, "a.wav", constantStereo(1000, 0.1))
	e.LoadDeckBuffer(deck.B, "b.wav", constantStereo(1000, 0.1))
	e.PlayDeck(deck.A)
	e.CueDeck(deck.B)

	if n := e.ActiveDeckCount(); n != 2 {
		t.Errorf("ActiveDeckCount = %d, want 2", n)
	}
}
