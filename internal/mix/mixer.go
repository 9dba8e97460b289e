package mix

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/deckwave/deckwave/internal/deck"
	"github.com/deckwave/deckwave/internal/engine"
	"github.com/deckwave/deckwave/internal/stream"
)

var (
	// ErrInvalidPosition indicates a crossfader position outside [-1,1].
	ErrInvalidPosition = errors.New("crossfader position must be in [-1,1]")

	// ErrInvalidCurve indicates an unknown crossfader curve name.
	ErrInvalidCurve = errors.New("unknown crossfader curve")

	// ErrInvalidLevel indicates a negative volume or gain.
	ErrInvalidLevel = errors.New("volume and gain must be >= 0")

	// ErrAlreadyRecording indicates a duplicate recording start.
	ErrAlreadyRecording = errors.New("recording already in progress")

	// ErrNoBroadcaster indicates recording was started before the
	// master-bus broadcaster was wired.
	ErrNoBroadcaster = errors.New("no master-bus broadcaster configured")
)

// State is the singleton mixing-console state.
type State struct {
	Crossfader         float64 // [-1,1]
	Curve              CrossfaderCurve
	MasterVolume       float64
	MasterGain         float64
	MonitorVolume      float64 // [0,1]
	CueMix             float64 // [0,1]
	RecordingStartedAt time.Time // zero when not recording
}

// Sides maps the crossfader's two logical sides onto decks.
type Sides struct {
	A deck.ID
	B deck.ID
}

// Manager computes and persists crossfader and level state, metering,
// auto-gain suggestions, and recording control. All mutations reach the
// decks through the engine's staged commands.
type Manager struct {
	eng *engine.Engine
	log zerolog.Logger

	mu          sync.RWMutex
	state       State
	sides       Sides
	broadcaster *stream.Broadcaster
	recorder    *recorder
}

// NewManager creates a mixer bound to an engine, with the crossfader
// centered and unity levels.
func NewManager(eng *engine.Engine, logger zerolog.Logger) *Manager {
	return &Manager{
		eng: eng,
		log: logger.With().Str("component", "mixer").Logger(),
		state: State{
			Curve:         CurveLinear,
			MasterVolume:  1,
			MasterGain:    1,
			MonitorVolume: 1,
		},
		sides: Sides{A: deck.A, B: deck.B},
	}
}

// StateSnapshot returns the current console state.
func (m *Manager) StateSnapshot() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// SetDeckSides reassigns the decks backing the crossfader's two sides.
func (m *Manager) SetDeckSides(a, b deck.ID) error {
	if !a.Valid() || !b.Valid() {
		return deck.ErrInvalidDeck
	}
	m.mu.Lock()
	m.sides = Sides{A: a, B: b}
	m.mu.Unlock()
	return nil
}

// UpdateCrossfader validates and stores a new crossfader position, and
// returns the side gains from the active curve. When applyToDecks is set
// the gains are written onto the decks assigned to the two sides.
func (m *Manager) UpdateCrossfader(position float64, applyToDecks bool) (gainA, gainB float64, err error) {
	if position < -1 || position > 1 {
		return 0, 0, ErrInvalidPosition
	}

	m.mu.Lock()
	m.state.Crossfader = position
	gainA, gainB = CrossfaderGains(position, m.state.Curve)
	sides := m.sides
	m.mu.Unlock()

	if applyToDecks {
		if err := m.eng.SetCrossfaderGain(sides.A, gainA); err != nil {
			return gainA, gainB, err
		}
		if err := m.eng.SetCrossfaderGain(sides.B, gainB); err != nil {
			return gainA, gainB, err
		}
	}
	return gainA, gainB, nil
}

// UpdateCrossfaderCurve switches the crossfader taper. Unknown curve names
// are rejected.
func (m *Manager) UpdateCrossfaderCurve(curve CrossfaderCurve) error {
	if !ValidCurve(curve) {
		return ErrInvalidCurve
	}
	m.mu.Lock()
	m.state.Curve = curve
	m.mu.Unlock()
	m.log.Info().Str("curve", string(curve)).Msg("crossfader curve changed")
	return nil
}

// UpdateMasterOutput partially updates the master bus levels. Nil fields
// are left unchanged.
func (m *Manager) UpdateMasterOutput(volume, gain *float64) error {
	if (volume != nil && *volume < 0) || (gain != nil && *gain < 0) {
		return ErrInvalidLevel
	}
	m.mu.Lock()
	if volume != nil {
		m.state.MasterVolume = *volume
	}
	if gain != nil {
		m.state.MasterGain = *gain
	}
	p := engine.MasterParams{Volume: m.state.MasterVolume, Gain: m.state.MasterGain}
	m.mu.Unlock()

	m.eng.SetMasterParams(p)
	return nil
}

// UpdateMonitorSettings partially updates the monitor bus. Nil fields are
// left unchanged.
func (m *Manager) UpdateMonitorSettings(volume, cueMix *float64) error {
	if (volume != nil && (*volume < 0 || *volume > 1)) ||
		(cueMix != nil && (*cueMix < 0 || *cueMix > 1)) {
		return ErrInvalidLevel
	}
	m.mu.Lock()
	if volume != nil {
		m.state.MonitorVolume = *volume
	}
	if cueMix != nil {
		m.state.CueMix = *cueMix
	}
	p := engine.MonitorParams{Volume: m.state.MonitorVolume, CueMix: m.state.CueMix}
	m.mu.Unlock()

	m.eng.SetMonitorParams(p)
	return nil
}

// ToggleDeckCue flips a deck's cue flag, routing its signal to the monitor
// bus independent of the crossfader. Returns the new flag.
func (m *Manager) ToggleDeckCue(id deck.ID) (bool, error) {
	return m.eng.ToggleCue(id)
}
