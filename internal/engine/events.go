package engine

import "github.com/louisbranch/narrative-engine/internal/state/history"

// EventType identifies the type of an engine event.
type EventType string

// State and navigation events.
const (
	// EventPassageChanged records a passage transition.
	EventPassageChanged EventType = "passage.changed"
	// EventStateChanged records a change to the materialized state.
	EventStateChanged EventType = "state.changed"
)

// Persistence events. Start/end pairs bracket each operation; the end
// payload carries the operation result.
const (
	EventSaveStarted      EventType = "save.started"
	EventSaveEnded        EventType = "save.ended"
	EventLoadStarted      EventType = "load.started"
	EventLoadEnded        EventType = "load.ended"
	EventDeleteStarted    EventType = "delete.started"
	EventDeleteEnded      EventType = "delete.ended"
	EventMigrationStarted EventType = "migration.started"
	EventMigrationEnded   EventType = "migration.ended"
)

// PassageChange is the payload for EventPassageChanged.
type PassageChange struct {
	OldPassage string
	NewPassage string
}

// StateChange is the payload for EventStateChanged. Both states are fully
// isolated copies; handlers may retain or mutate them freely.
type StateChange struct {
	OldState history.State
	NewState history.State
}

// ResultType marks an operation end-event as success or error.
type ResultType string

const (
	ResultSuccess ResultType = "success"
	ResultError   ResultType = "error"
)

// OperationResult is the payload for persistence end-events.
type OperationResult struct {
	Type ResultType
	Err  error
}

// Event is one emitted engine event.
type Event struct {
	Type    EventType
	Payload any
}

// Handler consumes engine events.
type Handler func(Event)

// Bus is a synchronous fire-and-forget event dispatcher. Handler return
// values and panics are the subscriber's concern; the engine never
// depends on handler behavior.
type Bus struct {
	handlers map[EventType][]Handler
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[EventType][]Handler)}
}

// Subscribe registers a handler for an event type.
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	if handler == nil {
		return
	}
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// Emit dispatches an event to every subscribed handler in order.
func (b *Bus) Emit(eventType EventType, payload any) {
	for _, handler := range b.handlers[eventType] {
		handler(Event{Type: eventType, Payload: payload})
	}
}

func (b *Bus) emitResult(eventType EventType, err error) {
	if err != nil {
		b.Emit(eventType, OperationResult{Type: ResultError, Err: err})
		return
	}
	b.Emit(eventType, OperationResult{Type: ResultSuccess})
}
