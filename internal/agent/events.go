package agent

import (
	"fmt"
	"time"

	"github.com/seanhlewis/mcagentgym/internal/protocol"
)

// Normalized event kinds, same vocabulary as the wire.
const (
	KindChat        = protocol.EventChat
	KindProximity   = protocol.EventProximity
	KindDamage      = protocol.EventDamage
	KindGlobal      = protocol.EventGlobal
	KindDeath       = protocol.EventDeath
	KindAchievement = protocol.EventAchievement
)

// Event is one normalized game event. Immutable once built; orchestrators
// share events read-only.
type Event struct {
	Kind    string
	Source  string
	Text    string
	Channel string
	To      string
	Dist    int
	Data    map[string]any
	At      time.Time
}

// Normalize lifts a raw wire event into an Event, pulling the well-known
// fields out of the data bag. Unknown kinds and empty chat lines are
// rejected rather than guessed at.
func Normalize(w protocol.WireEvent) (Event, error) {
	switch w.Kind {
	case protocol.EventChat, protocol.EventProximity, protocol.EventDamage,
		protocol.EventGlobal, protocol.EventDeath, protocol.EventAchievement:
	default:
		return Event{}, fmt.Errorf("event: unknown kind %q", w.Kind)
	}

	ev := Event{
		Kind:   w.Kind,
		Source: w.Source,
		Data:   w.Data,
		At:     time.UnixMilli(w.TS),
	}
	if w.Data != nil {
		ev.Text, _ = w.Data["text"].(string)
		ev.Channel, _ = w.Data["channel"].(string)
		ev.To, _ = w.Data["to"].(string)
		if d, ok := w.Data["dist"].(float64); ok {
			ev.Dist = int(d)
		}
	}
	if w.Kind == protocol.EventChat && ev.Text == "" {
		return Event{}, fmt.Errorf("event: chat without text from %q", w.Source)
	}
	return ev, nil
}

// Conversational reports whether the event belongs in short-term chat memory.
func (e Event) Conversational() bool {
	return e.Kind == KindChat
}

// Entity is one nearby thing the avatar can currently see.
type Entity struct {
	ID   string
	Type string
	Name string
	Dist int
}

// Visual is the latest what-the-avatar-sees snapshot: nearby entities plus
// held items. Replaced wholesale when the surroundings change.
type Visual struct {
	Nearby []Entity
	Held   []string
	At     time.Time
}
