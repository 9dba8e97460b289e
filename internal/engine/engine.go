package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/deckwave/deckwave/internal/audio"
	"github.com/deckwave/deckwave/internal/deck"
	"github.com/deckwave/deckwave/internal/fx"
)

var (
	// ErrDeckEmpty indicates a transport command on a deck with no track.
	ErrDeckEmpty = errors.New("deck has no track loaded")
)

// MasterParams are the output-bus settings owned by the mixer and staged
// onto the engine.
type MasterParams struct {
	Volume float64
	Gain   float64
}

// MonitorParams control the cue/headphone bus.
type MonitorParams struct {
	Volume float64 // [0,1]
	CueMix float64 // 0 = cue only, 1 = master only
}

// Engine owns the four decks and runs the continuous buffer-production
// loop. External commands are staged and applied at tick boundaries so the
// loop never observes a torn write.
type Engine struct {
	fx  *fx.Manager
	log zerolog.Logger

	mu      sync.RWMutex
	decks   [deck.Count]*deck.Deck
	eq      [deck.Count]audio.ThreeBandEQ
	master  MasterParams
	monitor MonitorParams
	pending []func()

	masterPeak float64
	masterRMS  float64

	running atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}

	frames chan []float32 // master bus, fresh channel per run
	monOut chan []float32 // cue/monitor bus, drop-on-full
}

// New creates a stopped engine with four empty decks.
func New(effects *fx.Manager, logger zerolog.Logger) *Engine {
	e := &Engine{
		fx:  effects,
		log: logger.With().Str("component", "engine").Logger(),
	}
	for i := range e.decks {
		e.decks[i] = deck.New(deck.ID(i))
	}
	e.master = MasterParams{Volume: 1, Gain: 1}
	e.monitor = MonitorParams{Volume: 1, CueMix: 0}
	return e
}

// Start spins up the production loop. Calling Start on a running engine is
// a no-op.
func (e *Engine) Start() {
	if !e.running.CompareAndSwap(false, true) {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	e.mu.Lock()
	e.cancel = cancel
	e.done = done
	e.frames = make(chan []float32, 16)
	e.monOut = make(chan []float32, 8)
	e.mu.Unlock()

	go e.run(ctx, done)
	e.log.Info().Msg("engine started")
}

// Stop cancels the production loop and leaves all decks in their last
// state. Stopping a stopped engine is a no-op.
func (e *Engine) Stop() {
	if !e.running.Load() {
		return
	}
	e.mu.RLock()
	cancel, done := e.cancel, e.done
	e.mu.RUnlock()
	cancel()
	<-done
	e.log.Info().Msg("engine stopped")
}

// Running reports whether the production loop is alive. An unrecoverable
// loop failure flips this to false.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// Frames returns the current run's master-bus channel. Each element is one
// freshly mixed tick buffer. The channel is closed when the loop exits; a
// new Start yields a fresh sequence.
func (e *Engine) Frames() <-chan []float32 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.frames
}

// MonitorFrames returns the cue/monitor bus channel for the current run.
func (e *Engine) MonitorFrames() <-chan []float32 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.monOut
}

func (e *Engine) run(ctx context.Context, done chan struct{}) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error().Interface("panic", r).Msg("production loop failed")
		}
		e.mu.Lock()
		close(e.frames)
		close(e.monOut)
		e.mu.Unlock()
		close(done)
		// running flips last: a new Start cannot install fresh channels
		// while this cleanup still holds the old ones
		e.running.Store(false)
	}()

	ticker := time.NewTicker(audio.TickDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		master, monitor := e.tick(time.Now())

		// Drop the oldest buffer when the consumer lags: the stream is
		// ephemeral and must never stall the loop.
		select {
		case e.frames <- master:
		default:
			select {
			case <-e.frames:
			default:
			}
			e.frames <- master
		}
		select {
		case e.monOut <- monitor:
		default:
		}
	}
}

// tick drains staged commands, consults the effect manager, and mixes all
// audible decks into fresh master and monitor buffers.
func (e *Engine) tick(now time.Time) (master, monitor []float32) {
	deltas := e.fx.ProcessTick(now)

	e.mu.Lock()
	defer e.mu.Unlock()

	pending := e.pending
	e.pending = nil
	for _, fn := range pending {
		fn()
	}

	master = audio.Silence()
	cueBus := audio.Silence()
	scratch := make([]float64, audio.BufferSamples)

	for i, d := range e.decks {
		if d.Status != deck.Playing && d.Status != deck.Cueing {
			continue
		}
		delta, ok := deltas[d.ID]
		if !ok {
			delta = fx.Delta{Level: 1, EQLow: 1, EQMid: 1, EQHigh: 1}
		}
		e.mixDeck(d, &e.eq[i], delta, master, cueBus, scratch)
	}

	mg := e.master.Gain * e.master.Volume
	var peak, sum float64
	for i := range master {
		v := float64(master[i]) * mg
		master[i] = audio.Clamp(float32(v))
		a := math.Abs(float64(master[i]))
		if a > peak {
			peak = a
		}
		sum += a * a
	}
	e.masterPeak = peak
	e.masterRMS = math.Sqrt(sum / float64(len(master)))

	monitor = audio.Silence()
	mv := e.monitor.Volume
	for i := range monitor {
		v := float64(cueBus[i])*(1-e.monitor.CueMix) + float64(master[i])*e.monitor.CueMix
		monitor[i] = audio.Clamp(float32(v * mv))
	}
	return master, monitor
}

// mixDeck renders one deck's tick window, applies EQ, gains and effect
// deltas, updates the deck meters, and accumulates into the buses.
func (e *Engine) mixDeck(d *deck.Deck, eq *audio.ThreeBandEQ, delta fx.Delta, master, cueBus []float32, scratch []float64) {
	frames := d.Frames()
	step := d.Params.TempoAdjust
	if step <= 0 {
		step = 1
	}

	var peak, sumSq float64
	n := 0
	for i := 0; i < audio.BufferFrames; i++ {
		src := int(d.Pos + float64(i)*step)
		if src >= frames {
			break
		}
		l := float64(d.Samples[src*2])
		r := float64(d.Samples[src*2+1])

		l, r = eq.Process(l, r,
			d.Params.EQLow*delta.EQLow,
			d.Params.EQMid*delta.EQMid,
			d.Params.EQHigh*delta.EQHigh)

		g := d.Params.Gain * d.Params.Volume * delta.Level
		l *= g
		r *= g

		// pre-fader meters: post-EQ, pre-crossfader
		if a := math.Abs(l); a > peak {
			peak = a
		}
		if a := math.Abs(r); a > peak {
			peak = a
		}
		sumSq += l*l + r*r

		scratch[i*2] = l
		scratch[i*2+1] = r
		n = i + 1
	}

	if n > 0 {
		d.PeakLevel = peak
		d.RMSLevel = math.Sqrt(sumSq / float64(n*2))
	}

	xf := d.Params.CrossfaderGain
	for i := 0; i < n*2; i++ {
		if d.Status == deck.Playing {
			master[i] += float32(scratch[i] * xf)
		}
		if d.CueActive || d.Status == deck.Cueing {
			cueBus[i] += float32(scratch[i])
		}
	}

	d.Pos += float64(n) * step
	if int(d.Pos) >= frames {
		d.Pos = float64(frames)
		d.Status = deck.Paused
		e.log.Info().Str("deck", d.ID.String()).Str("track", d.Track).Msg("deck reached end of track")
	}
}

// stage queues fn for the next tick boundary, or applies it immediately
// when no loop is running.
func (e *Engine) stage(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running.Load() {
		e.pending = append(e.pending, fn)
		return
	}
	fn()
}

// LoadDeck decodes a source file and installs it on a deck. Decoding is
// blocking I/O and happens here, never inside a tick.
func (e *Engine) LoadDeck(id deck.ID, path string) error {
	if !id.Valid() {
		return deck.ErrInvalidDeck
	}
	samples, err := audio.DecodeFile(path)
	if err != nil {
		return fmt.Errorf("load deck %s: %w", id, err)
	}
	return e.LoadDeckBuffer(id, path, samples)
}

// LoadDeckBuffer installs an already-decoded interleaved stereo buffer on a
// deck. The install is staged so a buffer mid-mix is never torn.
func (e *Engine) LoadDeckBuffer(id deck.ID, track string, samples []float32) error {
	if !id.Valid() {
		return deck.ErrInvalidDeck
	}
	e.stage(func() {
		e.decks[id].Load(track, samples)
		e.eq[id].Reset()
	})
	e.log.Info().Str("deck", id.String()).Str("track", track).
		Int("frames", len(samples)/2).Msg("deck loaded")
	return nil
}

// PlayDeck starts playback on a loaded deck.
func (e *Engine) PlayDeck(id deck.ID) error {
	return e.transport(id, func(d *deck.Deck) {
		d.Status = deck.Playing
		d.StartedPlayingAt = time.Now()
	})
}

// PauseDeck pauses playback, keeping position.
func (e *Engine) PauseDeck(id deck.ID) error {
	return e.transport(id, func(d *deck.Deck) {
		d.Status = deck.Paused
	})
}

// StopDeck stops playback and rewinds to the start.
func (e *Engine) StopDeck(id deck.ID) error {
	return e.transport(id, func(d *deck.Deck) {
		d.Status = deck.Loaded
		d.Pos = 0
	})
}

// CueDeck starts playback routed only to the monitor bus.
func (e *Engine) CueDeck(id deck.ID) error {
	return e.transport(id, func(d *deck.Deck) {
		d.Status = deck.Cueing
		d.StartedPlayingAt = time.Now()
	})
}

func (e *Engine) transport(id deck.ID, fn func(*deck.Deck)) error {
	if !id.Valid() {
		return deck.ErrInvalidDeck
	}
	e.mu.RLock()
	loaded := e.decks[id].Loaded()
	e.mu.RUnlock()
	if !loaded {
		return ErrDeckEmpty
	}
	e.stage(func() { fn(e.decks[id]) })
	return nil
}

// DeckPosition returns the normalized playback position in [0,1]; 0 for an
// empty deck.
func (e *Engine) DeckPosition(id deck.ID) (float64, error) {
	if !id.Valid() {
		return 0, deck.ErrInvalidDeck
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.decks[id].NormPos(), nil
}

// SeekDeck positions a deck proportionally to its buffer length.
// Out-of-range input is clamped, not rejected.
func (e *Engine) SeekDeck(id deck.ID, pos float64) error {
	if !id.Valid() {
		return deck.ErrInvalidDeck
	}
	e.stage(func() {
		e.decks[id].SeekNorm(pos)
		e.eq[id].Reset()
	})
	return nil
}

// SetDeckParams stages a partial parameter update on one deck. Nil fields
// leave the current value unchanged.
func (e *Engine) SetDeckParams(id deck.ID, volume, gain, eqLow, eqMid, eqHigh, tempo *float64) error {
	if !id.Valid() {
		return deck.ErrInvalidDeck
	}
	e.stage(func() {
		p := &e.decks[id].Params
		if volume != nil && *volume >= 0 {
			p.Volume = *volume
		}
		if gain != nil && *gain >= 0 {
			p.Gain = *gain
		}
		if eqLow != nil {
			p.EQLow = *eqLow
		}
		if eqMid != nil {
			p.EQMid = *eqMid
		}
		if eqHigh != nil {
			p.EQHigh = *eqHigh
		}
		if tempo != nil && *tempo > 0 {
			p.TempoAdjust = *tempo
		}
	})
	return nil
}

// SetCrossfaderGain stages the crossfader-derived gain onto one deck.
func (e *Engine) SetCrossfaderGain(id deck.ID, gain float64) error {
	if !id.Valid() {
		return deck.ErrInvalidDeck
	}
	e.stage(func() { e.decks[id].Params.CrossfaderGain = gain })
	return nil
}

// SetDeckGain stages a new trim gain on one deck.
func (e *Engine) SetDeckGain(id deck.ID, gain float64) error {
	if !id.Valid() {
		return deck.ErrInvalidDeck
	}
	e.stage(func() { e.decks[id].Params.Gain = gain })
	return nil
}

// ToggleCue flips a deck's cue flag and returns the new value.
func (e *Engine) ToggleCue(id deck.ID) (bool, error) {
	if !id.Valid() {
		return false, deck.ErrInvalidDeck
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	d := e.decks[id]
	d.CueActive = !d.CueActive
	return d.CueActive, nil
}

// SetMasterParams stages the master output settings.
func (e *Engine) SetMasterParams(p MasterParams) {
	e.stage(func() { e.master = p })
}

// SetMonitorParams stages the monitor bus settings.
func (e *Engine) SetMonitorParams(p MonitorParams) {
	e.stage(func() { e.monitor = p })
}

// Snapshot returns an atomic view of one deck.
func (e *Engine) Snapshot(id deck.ID) (deck.Snapshot, error) {
	if !id.Valid() {
		return deck.Snapshot{}, deck.ErrInvalidDeck
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.decks[id].Snapshot(), nil
}

// Snapshots returns atomic views of all four decks.
func (e *Engine) Snapshots() [deck.Count]deck.Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out [deck.Count]deck.Snapshot
	for i, d := range e.decks {
		out[i] = d.Snapshot()
	}
	return out
}

// ActiveDeckCount returns the number of decks currently playing or cueing.
func (e *Engine) ActiveDeckCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	n := 0
	for _, d := range e.decks {
		if d.Status == deck.Playing || d.Status == deck.Cueing {
			n++
		}
	}
	return n
}

// MasterParamsSnapshot returns the current master bus settings.
func (e *Engine) MasterParamsSnapshot() MasterParams {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.master
}

// DeckWindow copies up to maxFrames of interleaved samples starting at the
// deck's current position, for analysis off the tick path. Returns nil for
// an empty deck.
func (e *Engine) DeckWindow(id deck.ID, maxFrames int) []float32 {
	if !id.Valid() {
		return nil
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	d := e.decks[id]
	if !d.Loaded() {
		return nil
	}
	start := int(d.Pos)
	if start >= d.Frames() {
		start = 0
	}
	end := start + maxFrames
	if end > d.Frames() {
		end = d.Frames()
	}
	out := make([]float32, (end-start)*2)
	copy(out, d.Samples[start*2:end*2])
	return out
}

// MasterLevels returns the last tick's master-bus peak and RMS.
func (e *Engine) MasterLevels() (peak, rms float64) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.masterPeak, e.masterRMS
}
