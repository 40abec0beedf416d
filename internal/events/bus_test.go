package events_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelvault/reelvault/internal/events"
)

func TestBus_PublishSubscribe(t *testing.T) {
	t.Run("subscriber receives published event", func(t *testing.T) {
		bus := events.New()
		defer bus.Close()

		sub := bus.Subscribe()

		bus.Publish(events.Event{
			Type: events.JobStarted,
			Data: map[string]any{"id": "job-1"},
		})

		select {
		case ev := <-sub:
			assert.Equal(t, events.JobStarted, ev.Type)
			assert.Equal(t, "job-1", ev.Data["id"])
			assert.False(t, ev.Timestamp.IsZero())
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	})

	t.Run("filtered subscription only receives matching types", func(t *testing.T) {
		bus := events.New()
		defer bus.Close()

		sub := bus.Subscribe(events.JobCompleted)

		bus.Publish(events.Event{Type: events.JobProgress})
		bus.Publish(events.Event{Type: events.JobCompleted})

		select {
		case ev := <-sub:
			assert.Equal(t, events.JobCompleted, ev.Type)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}

		select {
		case ev := <-sub:
			t.Fatalf("unexpected extra event: %s", ev.Type)
		default:
		}
	})

	t.Run("multiple subscribers each receive the event", func(t *testing.T) {
		bus := events.New()
		defer bus.Close()

		sub1 := bus.Subscribe()
		sub2 := bus.Subscribe()

		bus.Publish(events.Event{Type: events.DiskSnapshot})

		for _, sub := range []events.Subscription{sub1, sub2} {
			select {
			case ev := <-sub:
				assert.Equal(t, events.DiskSnapshot, ev.Type)
			case <-time.After(time.Second):
				t.Fatal("timed out waiting for event")
			}
		}
	})

	t.Run("full buffer drops events instead of blocking", func(t *testing.T) {
		bus := events.New(events.WithBufferSize(1))
		defer bus.Close()

		sub := bus.Subscribe()

		// Second publish must not block even though nobody drains.
		done := make(chan struct{})
		go func() {
			bus.Publish(events.Event{Type: events.JobProgress})
			bus.Publish(events.Event{Type: events.JobProgress})
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("publish blocked on full subscriber buffer")
		}

		require.Len(t, drain(sub), 1)
	})
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := events.New()
	defer bus.Close()

	sub := bus.Subscribe()
	require.Equal(t, 1, bus.SubscriberCount())

	bus.Unsubscribe(sub)
	assert.Equal(t, 0, bus.SubscriberCount())

	// Channel is closed after unsubscribe.
	_, ok := <-sub
	assert.False(t, ok)
}

func TestBus_Close(t *testing.T) {
	bus := events.New()

	sub := bus.Subscribe()
	bus.Close()

	_, ok := <-sub
	assert.False(t, ok)
	assert.Equal(t, 0, bus.SubscriberCount())

	// Publishing after close is a no-op.
	bus.Publish(events.Event{Type: events.JobStarted})
}

func drain(sub events.Subscription) []events.Event {
	var out []events.Event
	for {
		select {
		case ev, ok := <-sub:
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}
