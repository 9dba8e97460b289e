package prerender

import (
	"errors"
	"fmt"
	"time"

	"github.com/deckwave/deckwave/internal/deck"
	"github.com/deckwave/deckwave/internal/fx"
)

var (
	// ErrEmptyPlan indicates a plan with no tracks.
	ErrEmptyPlan = errors.New("set plan has no tracks")

	// ErrBadTransition indicates a transition referencing unknown tracks
	// or lying outside their timelines.
	ErrBadTransition = errors.New("transition is inconsistent with track timeline")
)

// PlannedTrack is one externally planned track placement. Times are seconds
// on the global set timeline.
type PlannedTrack struct {
	Order      int     `json:"order"`
	Path       string  `json:"path"`
	Deck       deck.ID `json:"deck"`
	StartTime  float64 `json:"start_time"`
	EndTime    float64 `json:"end_time"`
	FadeIn     float64 `json:"fade_in"`  // seconds from StartTime
	FadeOut    float64 `json:"fade_out"` // seconds before EndTime
	BPM        float64 `json:"bpm"`
	Key        string  `json:"key"`
	Energy     float64 `json:"energy"`
	Gain       float64 `json:"gain"` // 0 means unity
	EQLow      float64 `json:"eq_low"`
	EQMid      float64 `json:"eq_mid"`
	EQHigh     float64 `json:"eq_high"`
}

// TransitionEffect is one effect inside a transition window, offset
// relative to the transition start.
type TransitionEffect struct {
	Type      fx.Type `json:"type"`
	StartAt   float64 `json:"start_at"` // seconds into the transition
	Duration  float64 `json:"duration"`
	Intensity float64 `json:"intensity"`
}

// Transition blends two planned tracks over a timed window.
type Transition struct {
	FromOrder int                `json:"from_order"`
	ToOrder   int                `json:"to_order"`
	FromDeck  deck.ID            `json:"from_deck"`
	ToDeck    deck.ID            `json:"to_deck"`
	StartTime float64            `json:"start_time"`
	Duration  float64            `json:"duration"`
	Curve     string             `json:"curve"`
	Effects   []TransitionEffect `json:"effects"`
}

// SetPlan is the fully formed plan handed over by the external planner.
// TotalDuration is the canonical duration field; the rendered output always
// matches it.
type SetPlan struct {
	Name          string         `json:"name"`
	TotalDuration float64        `json:"total_duration"` // seconds
	Tracks        []PlannedTrack `json:"tracks"`
	Transitions   []Transition   `json:"transitions"`
}

// Validate checks structural consistency only: referenced track orders
// exist and transition windows lie within both tracks' timelines. Musical
// compatibility is the planner's problem.
func (p *SetPlan) Validate() error {
	if len(p.Tracks) == 0 {
		return ErrEmptyPlan
	}
	if p.TotalDuration <= 0 {
		return fmt.Errorf("total duration must be positive, got %v", p.TotalDuration)
	}

	byOrder := make(map[int]*PlannedTrack, len(p.Tracks))
	for i := range p.Tracks {
		t := &p.Tracks[i]
		if t.StartTime < 0 {
			return fmt.Errorf("track %d: negative start %.2f", t.Order, t.StartTime)
		}
		if t.EndTime <= t.StartTime {
			return fmt.Errorf("track %d: end %.2f not after start %.2f", t.Order, t.EndTime, t.StartTime)
		}
		byOrder[t.Order] = t
	}

	for i, tr := range p.Transitions {
		from, ok := byOrder[tr.FromOrder]
		if !ok {
			return fmt.Errorf("transition %d: %w: unknown track order %d", i, ErrBadTransition, tr.FromOrder)
		}
		to, ok := byOrder[tr.ToOrder]
		if !ok {
			return fmt.Errorf("transition %d: %w: unknown track order %d", i, ErrBadTransition, tr.ToOrder)
		}
		end := tr.StartTime + tr.Duration
		if tr.StartTime < from.StartTime || end > from.EndTime ||
			tr.StartTime < to.StartTime || end > to.EndTime {
			return fmt.Errorf("transition %d: %w: window [%.2f,%.2f] outside tracks %d/%d",
				i, ErrBadTransition, tr.StartTime, end, tr.FromOrder, tr.ToOrder)
		}
		for j, e := range tr.Effects {
			if e.StartAt < 0 || e.Duration < 0 {
				return fmt.Errorf("transition %d effect %d: %w: negative offset or duration",
					i, j, ErrBadTransition)
			}
		}
	}
	return nil
}

// Duration returns TotalDuration as a time.Duration.
func (p *SetPlan) Duration() time.Duration {
	return time.Duration(p.TotalDuration * float64(time.Second))
}
