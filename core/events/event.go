package events

import "sync"

// Event represents a structured state change emitted by the protocol.
type Event interface {
	EventType() string
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

// Buffer collects events emitted during a call so the host can publish them
// only after the state transition commits.
type Buffer struct {
	mu     sync.Mutex
	events []Event
}

// Emit implements the Emitter interface.
func (b *Buffer) Emit(ev Event) {
	if ev == nil {
		return
	}
	b.mu.Lock()
	b.events = append(b.events, ev)
	b.mu.Unlock()
}

// Drain returns the buffered events and empties the buffer.
func (b *Buffer) Drain() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.events
	b.events = nil
	return out
}

// Reset discards the buffered events.
func (b *Buffer) Reset() {
	b.mu.Lock()
	b.events = nil
	b.mu.Unlock()
}

// Len reports how many events are buffered.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

// Fanout forwards every event to each of its emitters in order.
type Fanout []Emitter

// Emit implements the Emitter interface.
func (f Fanout) Emit(ev Event) {
	for _, emitter := range f {
		if emitter != nil {
			emitter.Emit(ev)
		}
	}
}
