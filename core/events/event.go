package events

import "lendcore/core/types"

// Event represents a structured state change emitted by the ledger.
type Event interface {
	EventType() string
}

// Convertible is implemented by events that expose a flat attribute form for
// RPC consumers and logs.
type Convertible interface {
	Event() *types.Event
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Flatten returns the attribute form of ev, falling back to a bare type when
// the event does not implement Convertible.
func Flatten(ev Event) *types.Event {
	if ev == nil {
		return nil
	}
	if c, ok := ev.(Convertible); ok {
		return c.Event()
	}
	return &types.Event{Type: ev.EventType(), Attributes: map[string]string{}}
}
