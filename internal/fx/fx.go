package fx

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/deckwave/deckwave/internal/deck"
)

var (
	// ErrUnknownEffect indicates an effect id not in the active set.
	ErrUnknownEffect = errors.New("unknown effect id")

	// ErrInvalidType indicates an effect type outside the closed set.
	ErrInvalidType = errors.New("invalid effect type")

	// ErrInvalidIntensity indicates an intensity outside [0,1].
	ErrInvalidIntensity = errors.New("effect intensity must be in [0,1]")
)

// Type is the closed set of transition/manual effects.
type Type string

const (
	FilterSweep Type = "filter_sweep"
	Echo        Type = "echo"
	Reverb      Type = "reverb"
	Delay       Type = "delay"
	Gate        Type = "gate"
	Scratch     Type = "scratch"
	Flanger     Type = "flanger"
	EQSweep     Type = "eq_sweep"
)

// ValidType reports whether t names a known effect.
func ValidType(t Type) bool {
	switch t {
	case FilterSweep, Echo, Reverb, Delay, Gate, Scratch, Flanger, EQSweep:
		return true
	}
	return false
}

// ActiveEffect is one running effect instance. Owned exclusively by the
// Manager; decks never hold effect state.
type ActiveEffect struct {
	ID        string
	DeckID    deck.ID
	Type      Type
	Intensity float64

	Params       map[string]float64 // current parameter mapping
	TargetParams map[string]float64 // optional automation target
	Curve        Curve              // automation curve, linear by default

	StartTime time.Time
	Duration  time.Duration // zero = runs until stopped
	Bypassed  bool
}

func (e *ActiveEffect) clone() *ActiveEffect {
	c := *e
	c.Params = copyParams(e.Params)
	c.TargetParams = copyParams(e.TargetParams)
	return &c
}

func copyParams(m map[string]float64) map[string]float64 {
	if m == nil {
		return nil
	}
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Delta is the per-deck parameter adjustment resolved for one tick. Fields
// are multipliers against the deck's own settings, 1.0 = no change. This is
// the sole channel through which effects reach the mix.
type Delta struct {
	Level  float64
	EQLow  float64
	EQMid  float64
	EQHigh float64
}

func unityDelta() Delta {
	return Delta{Level: 1, EQLow: 1, EQMid: 1, EQHigh: 1}
}

func (d *Delta) combine(o Delta) {
	d.Level *= o.Level
	d.EQLow *= o.EQLow
	d.EQMid *= o.EQMid
	d.EQHigh *= o.EQHigh
}

// EffectSpec is the caller-supplied description for Apply.
type EffectSpec struct {
	Type      Type
	Intensity float64
	Duration  time.Duration
	Params    map[string]float64
}

// Manager owns the active effect set, evaluates automation per tick, and
// keeps a lifecycle event log for observability.
type Manager struct {
	mu      sync.Mutex
	active  map[string]*ActiveEffect
	events  *eventLog
	nowFunc func() time.Time
	log     zerolog.Logger
}

// NewManager creates an empty effect manager.
func NewManager(logger zerolog.Logger) *Manager {
	return &Manager{
		active:  make(map[string]*ActiveEffect),
		events:  newEventLog(256),
		nowFunc: time.Now,
		log:     logger.With().Str("component", "fx").Logger(),
	}
}

// Apply validates and registers a new effect on a deck, returning its id.
func (m *Manager) Apply(deckID deck.ID, spec EffectSpec) (string, error) {
	if !deckID.Valid() {
		return "", deck.ErrInvalidDeck
	}
	if !ValidType(spec.Type) {
		return "", ErrInvalidType
	}
	if spec.Intensity < 0 || spec.Intensity > 1 {
		return "", ErrInvalidIntensity
	}

	params := defaultParams(spec.Type, spec.Intensity)
	for k, v := range spec.Params {
		params[k] = v
	}

	e := &ActiveEffect{
		ID:        uuid.NewString(),
		DeckID:    deckID,
		Type:      spec.Type,
		Intensity: spec.Intensity,
		Params:    params,
		Curve:     CurveLinear,
		StartTime: m.now(),
		Duration:  spec.Duration,
	}

	m.mu.Lock()
	m.active[e.ID] = e
	m.events.add(Event{Time: e.StartTime, EffectID: e.ID, DeckID: deckID, Type: spec.Type, Action: ActionApplied})
	m.mu.Unlock()

	m.log.Info().Str("effect", string(spec.Type)).Str("deck", deckID.String()).
		Str("id", e.ID).Float64("intensity", spec.Intensity).Msg("effect applied")
	return e.ID, nil
}

// Update partially updates an effect's parameters, automation target and
// curve. Returns false if the id is unknown.
func (m *Manager) Update(id string, params, target map[string]float64, curve Curve) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.active[id]
	if !ok {
		return false
	}
	for k, v := range params {
		e.Params[k] = v
	}
	if target != nil {
		e.TargetParams = copyParams(target)
	}
	if curve != "" && ValidCurve(curve) {
		e.Curve = curve
	}
	m.events.add(Event{Time: m.now(), EffectID: id, DeckID: e.DeckID, Type: e.Type, Action: ActionUpdated})
	return true
}

// Bypass toggles an effect's bypass flag without removing it. Bypassed
// effects are skipped during tick processing but stay in the active set.
func (m *Manager) Bypass(id string, bypassed bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.active[id]
	if !ok {
		return false
	}
	e.Bypassed = bypassed
	m.events.add(Event{Time: m.now(), EffectID: id, DeckID: e.DeckID, Type: e.Type, Action: ActionBypassed})
	return true
}

// Stop removes an effect instance.
func (m *Manager) Stop(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.active[id]
	if !ok {
		return ErrUnknownEffect
	}
	delete(m.active, id)
	m.events.add(Event{Time: m.now(), EffectID: id, DeckID: e.DeckID, Type: e.Type, Action: ActionStopped})
	m.log.Info().Str("id", id).Str("deck", e.DeckID.String()).Msg("effect stopped")
	return nil
}

// DeckEffects returns copies of the active effects on one deck, oldest
// first.
func (m *Manager) DeckEffects(deckID deck.ID) []*ActiveEffect {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*ActiveEffect
	for _, e := range m.active {
		if e.DeckID == deckID {
			out = append(out, e.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out
}

// AllActiveEffects returns copies of every active effect, oldest first.
func (m *Manager) AllActiveEffects() []*ActiveEffect {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*ActiveEffect, 0, len(m.active))
	for _, e := range m.active {
		out = append(out, e.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out
}

// ClearDeckEffects removes every effect on a deck and returns the count.
func (m *Manager) ClearDeckEffects(deckID deck.ID) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for id, e := range m.active {
		if e.DeckID == deckID {
			delete(m.active, id)
			m.events.add(Event{Time: now, EffectID: id, DeckID: deckID, Type: e.Type, Action: ActionStopped})
			removed++
		}
	}
	return removed
}

// ProcessTick evaluates automation for every non-bypassed effect at now,
// expires effects whose duration has elapsed, and returns the resolved
// parameter deltas per deck.
func (m *Manager) ProcessTick(now time.Time) map[deck.ID]Delta {
	m.mu.Lock()
	defer m.mu.Unlock()

	deltas := make(map[deck.ID]Delta)
	for id, e := range m.active {
		elapsed := now.Sub(e.StartTime)

		if e.Duration > 0 && elapsed >= e.Duration {
			delete(m.active, id)
			m.events.add(Event{Time: now, EffectID: id, DeckID: e.DeckID, Type: e.Type, Action: ActionExpired})
			continue
		}
		if e.Bypassed {
			continue
		}

		progress := 0.0
		if e.Duration > 0 {
			progress = elapsed.Seconds() / e.Duration.Seconds()
		}
		params := e.resolvedParams(progress)

		d, ok := deltas[e.DeckID]
		if !ok {
			d = unityDelta()
		}
		d.combine(resolveDelta(e.Type, params, e.Intensity, progress))
		deltas[e.DeckID] = d
	}
	return deltas
}

// resolvedParams interpolates current params toward the automation target at
// the given progress through the effect's lifetime.
func (e *ActiveEffect) resolvedParams(progress float64) map[string]float64 {
	if e.TargetParams == nil {
		return e.Params
	}
	w := e.Curve.Weight(progress)
	out := make(map[string]float64, len(e.Params))
	for k, v := range e.Params {
		out[k] = v
	}
	for k, target := range e.TargetParams {
		cur, ok := out[k]
		if !ok {
			cur = 0
		}
		out[k] = cur + (target-cur)*w
	}
	return out
}

func (m *Manager) now() time.Time {
	return m.nowFunc()
}
