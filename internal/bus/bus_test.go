// ABOUTME: Tests for the per-request event bus
// ABOUTME: Validates non-blocking overflow, FIFO content drain, timeouts and close semantics

package bus

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublish_RoundTrip(t *testing.T) {
	b := New(10, nil)
	defer b.Close()

	b.Publish(EventTool, "ranking papers")
	b.Publish(EventProgress, "scored 5/20")

	ev, ok := b.TryNext()
	require.True(t, ok)
	assert.Equal(t, EventTool, ev.Type)
	assert.Equal(t, "ranking papers", ev.Message)

	ev, ok = b.TryNext()
	require.True(t, ok)
	assert.Equal(t, EventProgress, ev.Type)

	_, ok = b.TryNext()
	assert.False(t, ok)
}

func TestPublish_OverflowDropsWithoutBlocking(t *testing.T) {
	b := New(3, nil)
	defer b.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			b.Publish(EventStatus, fmt.Sprintf("event-%d", i))
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publisher blocked on a full queue")
	}

	// Only the first three survive; the overflow was dropped
	var got []string
	for {
		ev, ok := b.TryNext()
		if !ok {
			break
		}
		got = append(got, ev.Message)
	}
	assert.Equal(t, []string{"event-0", "event-1", "event-2"}, got)
}

func TestPublishPayload(t *testing.T) {
	b := New(10, nil)
	defer b.Close()

	b.PublishPayload(EventError, "scoring failed", map[string]any{"item": "2501.001"})

	ev, ok := b.TryNext()
	require.True(t, ok)
	assert.Equal(t, EventError, ev.Type)
	assert.Equal(t, "2501.001", ev.Payload["item"])
}

func TestNext_Timeout(t *testing.T) {
	b := New(10, nil)
	defer b.Close()

	start := time.Now()
	_, ok := b.Next(context.Background(), 20*time.Millisecond)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestNext_ContextCancel(t *testing.T) {
	b := New(10, nil)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, ok := b.Next(ctx, time.Minute)
	assert.False(t, ok)
}

func TestNext_DeliversInOrder(t *testing.T) {
	b := New(10, nil)
	defer b.Close()

	b.Publish(EventStatus, "one")
	b.Publish(EventStatus, "two")

	ev, ok := b.Next(context.Background(), time.Second)
	require.True(t, ok)
	assert.Equal(t, "one", ev.Message)

	ev, ok = b.Next(context.Background(), time.Second)
	require.True(t, ok)
	assert.Equal(t, "two", ev.Message)
}

func TestDrainContent_FIFO(t *testing.T) {
	b := New(10, nil)
	defer b.Close()

	b.PublishContent("A")
	b.PublishContent("B")
	b.PublishContent("C")

	assert.Equal(t, []string{"A", "B", "C"}, b.DrainContent())
	assert.Empty(t, b.DrainContent(), "second drain is empty")
}

func TestClose_Idempotent(t *testing.T) {
	b := New(10, nil)
	b.Close()
	b.Close()

	// Publishing after close is a silent no-op
	b.Publish(EventStatus, "late")
	b.PublishContent("late")
}

func TestClose_BufferedEventsRemainReadable(t *testing.T) {
	b := New(10, nil)
	b.Publish(EventStatus, "buffered")
	b.PublishContent("still here")
	b.Close()

	ev, ok := b.TryNext()
	require.True(t, ok)
	assert.Equal(t, "buffered", ev.Message)

	_, ok = b.TryNext()
	assert.False(t, ok)

	assert.Equal(t, []string{"still here"}, b.DrainContent())
}
