// ABOUTME: Per-request event bus decoupling background tool work from the streaming consumer
// ABOUTME: Status events drop on overflow, never blocking producers; direct content drains FIFO at turn end

package bus

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultCapacity bounds each queue. Beyond it, status events are dropped
// and direct content is refused, so producers never block.
const DefaultCapacity = 100

// EventType categorizes a status event on the bus
type EventType string

const (
	EventStatus   EventType = "status"
	EventProgress EventType = "progress"
	EventTool     EventType = "tool"
	EventError    EventType = "error"
)

// Event is one ephemeral progress notification. Events exist only for the
// duration of one request and are never persisted.
type Event struct {
	Type    EventType      `json:"type"`
	Message string         `json:"message"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Bus carries two independent queues for one request: status/progress
// events streamed to the observer while the pipeline runs, and
// direct-to-user content that bypasses the coordinator's narration and is
// prepended to the final answer. Create one per request and Close it on
// every exit path.
type Bus struct {
	events  chan Event
	content chan string
	logger  *slog.Logger

	mu     sync.Mutex
	closed bool
}

// New creates a bus with the given queue capacity (DefaultCapacity if <= 0).
func New(capacity int, logger *slog.Logger) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		events:  make(chan Event, capacity),
		content: make(chan string, capacity),
		logger:  logger.With("component", "bus"),
	}
}

// Publish logs a status event and attempts a non-blocking enqueue. On a
// full queue the event is dropped with a warning; the producer is never
// blocked and never sees an error.
func (b *Bus) Publish(eventType EventType, message string) {
	b.PublishPayload(eventType, message, nil)
}

// PublishPayload is Publish with an optional structured payload.
func (b *Bus) PublishPayload(eventType EventType, message string, payload map[string]any) {
	b.logger.Info("event", "type", eventType, "message", message)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	select {
	case b.events <- Event{Type: eventType, Message: message, Payload: payload}:
	default:
		b.logger.Warn("event queue full, dropping event",
			"type", eventType,
			"message", message)
	}
}

// PublishContent enqueues direct-to-user content. Non-blocking like
// Publish; overflow is dropped with a warning.
func (b *Bus) PublishContent(content string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	select {
	case b.content <- content:
	default:
		b.logger.Warn("content queue full, dropping content",
			"bytes", len(content))
	}
}

// Next waits up to timeout for the next status event. The boolean is
// false when the timeout elapsed, the context was cancelled or the bus
// was closed with no buffered events left.
func (b *Bus) Next(ctx context.Context, timeout time.Duration) (Event, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ev, ok := <-b.events:
		return ev, ok
	case <-timer.C:
		return Event{}, false
	case <-ctx.Done():
		return Event{}, false
	}
}

// Events exposes the status queue for direct select loops, such as the
// SSE writer multiplexing events against keepalives and turn completion.
func (b *Bus) Events() <-chan Event {
	return b.events
}

// TryNext returns a buffered status event without waiting. Used to drain
// remaining events after the pipeline finishes.
func (b *Bus) TryNext() (Event, bool) {
	select {
	case ev, ok := <-b.events:
		return ev, ok
	default:
		return Event{}, false
	}
}

// DrainContent returns all queued direct content in FIFO order.
func (b *Bus) DrainContent() []string {
	var out []string
	for {
		select {
		case c, ok := <-b.content:
			if !ok {
				return out
			}
			out = append(out, c)
		default:
			return out
		}
	}
}

// Close tears the bus down. Idempotent; pending events remain readable
// via TryNext/DrainContent until the channels are empty.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	close(b.events)
	close(b.content)
}
