package events

import (
	"sync"

	"stakeledger/core/types"
)

// Event represents a structured state change emitted by the ledger.
type Event interface {
	EventType() string
}

// Convertible events can render themselves into the broadcastable form.
type Convertible interface {
	Event
	Event() *types.Event
}

// Emitter broadcasts events to downstream subscribers (e.g. the HTTP feed,
// indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Recorder buffers the most recent events in memory. The zero value keeps an
// unbounded history; NewRecorder caps it.
type Recorder struct {
	mu     sync.Mutex
	limit  int
	events []*types.Event
}

// NewRecorder returns a recorder retaining at most limit events. A
// non-positive limit disables the cap.
func NewRecorder(limit int) *Recorder {
	return &Recorder{limit: limit}
}

// Emit implements the Emitter interface. Events that cannot be converted are
// recorded with their type only.
func (r *Recorder) Emit(evt Event) {
	if r == nil || evt == nil {
		return
	}
	var rendered *types.Event
	if conv, ok := evt.(Convertible); ok {
		rendered = conv.Event()
	}
	if rendered == nil {
		rendered = &types.Event{Type: evt.EventType(), Attributes: map[string]string{}}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, rendered)
	if r.limit > 0 && len(r.events) > r.limit {
		r.events = append([]*types.Event(nil), r.events[len(r.events)-r.limit:]...)
	}
}

// Events returns a copy of the buffered events, oldest first.
func (r *Recorder) Events() []*types.Event {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*types.Event, len(r.events))
	copy(out, r.events)
	return out
}

// Filter returns the buffered events matching the supplied type.
func (r *Recorder) Filter(eventType string) []*types.Event {
	all := r.Events()
	out := make([]*types.Event, 0, len(all))
	for _, evt := range all {
		if evt.Type == eventType {
			out = append(out, evt)
		}
	}
	return out
}
