package deck

import (
	"errors"
	"time"
)

// ErrInvalidDeck indicates a deck identifier outside A-D.
var ErrInvalidDeck = errors.New("invalid deck identifier")

// ID identifies one of the four playback decks.
type ID int

const (
	A ID = iota
	B
	C
	D

	Count = 4
)

func (id ID) String() string {
	switch id {
	case A:
		return "A"
	case B:
		return "B"
	case C:
		return "C"
	case D:
		return "D"
	}
	return "?"
}

// Valid reports whether id names a real deck.
func (id ID) Valid() bool {
	return id >= A && id < Count
}

// ParseID maps "A".."D" (case-insensitive) to a deck ID.
func ParseID(s string) (ID, error) {
	switch s {
	case "A", "a":
		return A, nil
	case "B", "b":
		return B, nil
	case "C", "c":
		return C, nil
	case "D", "d":
		return D, nil
	}
	return 0, ErrInvalidDeck
}

// Status is the transport state of a deck.
type Status int

const (
	Empty Status = iota
	Loaded
	Playing
	Paused
	Cueing
)

func (s Status) String() string {
	switch s {
	case Empty:
		return "empty"
	case Loaded:
		return "loaded"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	case Cueing:
		return "cueing"
	}
	return "unknown"
}

// Params are the per-channel mix controls.
type Params struct {
	Volume         float64 // fader, >= 0
	Gain           float64 // trim, >= 0
	EQLow          float64 // band multipliers, 1.0 = flat
	EQMid          float64
	EQHigh         float64
	TempoAdjust    float64 // playback rate multiplier, 1.0 = native
	CrossfaderGain float64 // derived from mixer crossfader position
}

// DefaultParams returns unity settings for a freshly created deck.
func DefaultParams() Params {
	return Params{
		Volume:         1.0,
		Gain:           1.0,
		EQLow:          1.0,
		EQMid:          1.0,
		EQHigh:         1.0,
		TempoAdjust:    1.0,
		CrossfaderGain: 1.0,
	}
}

// Deck holds one loaded track's samples and transport state. Decks are
// created once at engine init and mutated only under the engine lock, either
// by staged commands or by the tick advance.
type Deck struct {
	ID      ID
	Status  Status
	Samples []float32 // interleaved stereo, nil when Empty
	Track   string    // source path, informational

	// Pos is a fractional frame index so tempo-adjusted playback can
	// advance by non-integer amounts. 0 <= Pos <= Frames().
	Pos float64

	Params    Params
	CueActive bool

	PeakLevel float64 // last-computed meters, updated each tick
	RMSLevel  float64

	StartedPlayingAt time.Time
}

// New creates an empty deck with unity parameters.
func New(id ID) *Deck {
	return &Deck{ID: id, Status: Empty, Params: DefaultParams()}
}

// Frames returns the buffer length in frames per channel.
func (d *Deck) Frames() int {
	return len(d.Samples) / 2
}

// Loaded reports whether the deck holds a track.
func (d *Deck) Loaded() bool {
	return d.Status != Empty && d.Samples != nil
}

// NormPos returns the playback position normalized to [0,1]; 0 when empty.
func (d *Deck) NormPos() float64 {
	n := d.Frames()
	if n == 0 {
		return 0
	}
	p := d.Pos / float64(n)
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// SeekNorm clamps pos to [0,1] and positions the deck proportionally.
func (d *Deck) SeekNorm(pos float64) {
	if pos < 0 {
		pos = 0
	}
	if pos > 1 {
		pos = 1
	}
	d.Pos = pos * float64(d.Frames())
}

// Load installs a decoded buffer and resets transport state.
func (d *Deck) Load(track string, samples []float32) {
	d.Track = track
	d.Samples = samples
	d.Status = Loaded
	d.Pos = 0
	d.PeakLevel = 0
	d.RMSLevel = 0
	d.StartedPlayingAt = time.Time{}
}

// Snapshot is an immutable view of deck state for concurrent readers.
type Snapshot struct {
	ID               ID
	Status           Status
	Track            string
	Frames           int
	Position         float64 // normalized [0,1]
	Params           Params
	CueActive        bool
	PeakLevel        float64
	RMSLevel         float64
	StartedPlayingAt time.Time
}

// Snapshot captures the deck's current state. Caller must hold the engine
// lock.
func (d *Deck) Snapshot() Snapshot {
	return Snapshot{
		ID:               d.ID,
		Status:           d.Status,
		Track:            d.Track,
		Frames:           d.Frames(),
		Position:         d.NormPos(),
		Params:           d.Params,
		CueActive:        d.CueActive,
		PeakLevel:        d.PeakLevel,
		RMSLevel:         d.RMSLevel,
		StartedPlayingAt: d.StartedPlayingAt,
	}
}
