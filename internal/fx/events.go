package fx

import (
	"time"

	"github.com/deckwave/deckwave/internal/deck"
)

// Action is an effect lifecycle transition.
type Action string

const (
	ActionApplied  Action = "applied"
	ActionUpdated  Action = "updated"
	ActionBypassed Action = "bypassed"
	ActionStopped  Action = "stopped"
	ActionExpired  Action = "expired"
)

// Event records one lifecycle transition. Purely for observability, never
// consumed by mixing logic.
type Event struct {
	Time     time.Time
	EffectID string
	DeckID   deck.ID
	Type     Type
	Action   Action
}

// eventLog is a fixed-capacity ring of lifecycle events.
type eventLog struct {
	buf  []Event
	next int
	full bool
}

func newEventLog(capacity int) *eventLog {
	return &eventLog{buf: make([]Event, capacity)}
}

func (l *eventLog) add(e Event) {
	l.buf[l.next] = e
	l.next++
	if l.next == len(l.buf) {
		l.next = 0
		l.full = true
	}
}

// recent returns up to limit events, newest first.
func (l *eventLog) recent(limit int) []Event {
	size := l.next
	if l.full {
		size = len(l.buf)
	}
	if limit <= 0 || limit > size {
		limit = size
	}
	out := make([]Event, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (l.next - i + len(l.buf)) % len(l.buf)
		out = append(out, l.buf[idx])
	}
	return out
}

// EventFilter narrows EventLog results. Zero values match everything.
type EventFilter struct {
	DeckID   *deck.ID
	EffectID string
}

// EventLog returns the most recent lifecycle events, newest first,
// optionally filtered by deck or effect id.
func (m *Manager) EventLog(filter EventFilter, limit int) []Event {
	m.mu.Lock()
	defer m.mu.Unlock()

	all := m.events.recent(0)
	out := make([]Event, 0, limit)
	for _, e := range all {
		if filter.DeckID != nil && e.DeckID != *filter.DeckID {
			continue
		}
		if filter.EffectID != "" && e.EffectID != filter.EffectID {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}
