// Package events implements the supervisor's in-memory data-change event
// bus: a monotonic event counter, a replay ring buffer for Last-Event-Id
// reconnects, and a lossy fan-out to live SSE subscribers.
package events

import (
	"encoding/json"
	"sync"
)

// EventID is a monotonically increasing event identifier, unique within one
// process lifetime.
type EventID = uint64

// DataChangeEvent is a single data-change notification. Kind selects which
// of the remaining fields are populated; Raw carries the verbatim JSON
// payload of anything that didn't match a known kind so nothing from an
// upstream source is silently dropped.
type DataChangeEvent struct {
	Kind        string          `json:"event_type"`
	WorkspaceID string          `json:"workspace_id,omitempty"`
	PlanID      string          `json:"plan_id,omitempty"`
	StepIndex   *uint32         `json:"step_index,omitempty"`
	SessionID   string          `json:"session_id,omitempty"`
	Message     string          `json:"message,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

const (
	KindPlanCreated         = "plan_created"
	KindPlanUpdated         = "plan_updated"
	KindPlanArchived        = "plan_archived"
	KindPlanDeleted         = "plan_deleted"
	KindStepChanged         = "step_changed"
	KindAgentSessionChanged = "agent_session_changed"
	KindWorkspaceChanged    = "workspace_changed"
	KindMetricsInvalidated  = "metrics_invalidated"
	KindRaw                 = "raw"
	KindTest                = "test"
)

// TestEvent builds a synthetic "test"-kind event carrying message.
func TestEvent(message string) DataChangeEvent {
	return DataChangeEvent{Kind: KindTest, Message: message}
}

// RawEvent wraps an unrecognized payload so it still reaches subscribers.
func RawEvent(payload json.RawMessage) DataChangeEvent {
	return DataChangeEvent{Kind: KindRaw, Payload: payload}
}

// StampedEvent is a DataChangeEvent decorated with its monotonic id. The id
// doubles as the SSE "id:" field for Last-Event-Id replay.
type StampedEvent struct {
	ID   EventID         `json:"id"`
	Data DataChangeEvent `json:"data"`
}

// Config controls buffering and replay depth. The supervisor builds its bus
// from DefaultConfig.
type Config struct {
	Enabled           bool
	BufferSize        int
	HeartbeatInterval uint64 // seconds
	ReplayBufferSize  int
}

// DefaultConfig mirrors the supervisor's built-in defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:           true,
		BufferSize:        256,
		HeartbeatInterval: 30,
		ReplayBufferSize:  100,
	}
}

type subscriber struct {
	ch     chan StampedEvent
	lagged bool
}

// Handle is the shared event bus: the replay ring buffer, the live
// subscriber set, and the monotonic counter. It holds a mutex and is used
// through a pointer; every module that emits or subscribes to events holds
// the same *Handle.
type Handle struct {
	config Config

	mu      sync.Mutex
	counter uint64
	ring    []StampedEvent
	subs    map[int]*subscriber
	nextSub int

	onLag func(subscriberID int, skipped int)

	onEmit func(StampedEvent)
}

// SetEmitHook installs fn to be called, non-blocking and best-effort, after
// every successful Emit. Used to mirror the SSE stream onto the live
// dashboard WebSocket bridge without coupling the event bus to it.
func (h *Handle) SetEmitHook(fn func(StampedEvent)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onEmit = fn
}

// NewHandle builds an event bus with the given configuration. onLag, if
// non-nil, is called whenever a subscriber's buffer overflows and events
// are dropped for it (the Go analogue of a lagged broadcast::Receiver).
func NewHandle(config Config, onLag func(subscriberID int, skipped int)) *Handle {
	return &Handle{
		config: config,
		subs:   make(map[int]*subscriber),
		onLag:  onLag,
	}
}

// Config returns the handle's configuration.
func (h *Handle) Config() Config {
	return h.config
}

// Emit stamps event with the next monotonic id, appends it to the replay
// ring buffer (evicting the oldest entry once the buffer is full), and
// pushes it to every live subscriber. A subscriber whose channel is full is
// marked lagged and the event is dropped for it rather than blocking emit.
func (h *Handle) Emit(event DataChangeEvent) StampedEvent {
	h.mu.Lock()

	h.counter++
	stamped := StampedEvent{ID: h.counter, Data: event}

	h.ring = append(h.ring, stamped)
	if over := len(h.ring) - h.config.ReplayBufferSize; over > 0 {
		h.ring = h.ring[over:]
	}

	for id, sub := range h.subs {
		select {
		case sub.ch <- stamped:
		default:
			sub.lagged = true
			if h.onLag != nil {
				h.onLag(id, 1)
			}
		}
	}

	onEmit := h.onEmit
	h.mu.Unlock()

	if onEmit != nil {
		onEmit(stamped)
	}

	return stamped
}

// ReplaySince returns every buffered event with id > sinceID, oldest first.
func (h *Handle) ReplaySince(sinceID EventID) []StampedEvent {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]StampedEvent, 0, len(h.ring))
	for _, evt := range h.ring {
		if evt.ID > sinceID {
			out = append(out, evt)
		}
	}
	return out
}

// EventsEmitted returns the total number of events emitted since startup.
func (h *Handle) EventsEmitted() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.counter
}

// SubscriberCount returns the number of currently live subscribers.
func (h *Handle) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Subscribe registers a new live subscriber and returns its channel plus an
// unsubscribe function. The channel is buffered to BufferSize; a slow
// consumer that falls behind loses events rather than blocking Emit.
func (h *Handle) Subscribe() (<-chan StampedEvent, func()) {
	h.mu.Lock()
	id := h.nextSub
	h.nextSub++
	sub := &subscriber{ch: make(chan StampedEvent, h.config.BufferSize)}
	h.subs[id] = sub
	h.mu.Unlock()

	unsubscribe := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if s, ok := h.subs[id]; ok {
			close(s.ch)
			delete(h.subs, id)
		}
	}
	return sub.ch, unsubscribe
}
