package pubsub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTimeout = time.Second

func receive[T any](t *testing.T, ch <-chan Event[T]) Event[T] {
	t.Helper()
	select {
	case event, ok := <-ch:
		require.True(t, ok, "channel closed")
		return event
	case <-time.After(testTimeout):
		t.Fatal("timeout waiting for event")
	}
	return Event[T]{}
}

func TestBrokerPublish(t *testing.T) {
	t.Run("subscriber receives events", func(t *testing.T) {
		stamp := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
		broker := NewBroker[string]("test", WithClock(func() time.Time { return stamp }))
		defer broker.Shutdown()

		events := broker.Subscribe(context.Background(), nil)
		broker.Publish("created", "hello")

		event := receive(t, events)
		assert.Equal(t, EventType("created"), event.Type)
		assert.Equal(t, "hello", event.Payload)
		assert.Equal(t, stamp, event.Timestamp)
	})

	t.Run("filter selects payloads", func(t *testing.T) {
		broker := NewBroker[int]("test")
		defer broker.Shutdown()

		even := broker.Subscribe(context.Background(), func(n int) bool { return n%2 == 0 })
		all := broker.Subscribe(context.Background(), nil)

		broker.Publish("n", 1)
		broker.Publish("n", 2)

		assert.Equal(t, 2, receive(t, even).Payload)
		assert.Equal(t, 1, receive(t, all).Payload)
		assert.Equal(t, 2, receive(t, all).Payload)
	})

	t.Run("no subscribers", func(t *testing.T) {
		broker := NewBroker[int]("test")
		defer broker.Shutdown()
		broker.Publish("n", 1)
		assert.Equal(t, int64(1), broker.Metrics().Published)
		assert.Equal(t, int64(0), broker.Metrics().Delivered)
	})
}

func TestBrokerDropsWhenFull(t *testing.T) {
	broker := NewBroker[int]("test", WithBufferSize(1))
	defer broker.Shutdown()

	events := broker.Subscribe(context.Background(), nil)
	broker.Publish("n", 1)
	broker.Publish("n", 2)

	assert.Equal(t, 1, receive(t, events).Payload)
	metrics := broker.Metrics()
	assert.Equal(t, int64(1), metrics.Delivered)
	assert.Equal(t, int64(1), metrics.Dropped)
}

func TestBrokerUnsubscribe(t *testing.T) {
	broker := NewBroker[string]("test")
	defer broker.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	events := broker.Subscribe(ctx, nil)
	require.Equal(t, 1, broker.SubscriberCount())

	cancel()
	require.Eventually(t, func() bool { return broker.SubscriberCount() == 0 }, testTimeout, 5*time.Millisecond)

	_, ok := <-events
	assert.False(t, ok)
	assert.Equal(t, 1, broker.Metrics().SubscriberPeak)
}

func TestBrokerShutdown(t *testing.T) {
	broker := NewBroker[string]("test")
	events := broker.Subscribe(context.Background(), nil)

	broker.Shutdown()
	broker.Shutdown()

	_, ok := <-events
	assert.False(t, ok)

	late := broker.Subscribe(context.Background(), nil)
	_, ok = <-late
	assert.False(t, ok)

	broker.Publish("ignored", "x")
	assert.Equal(t, int64(0), broker.Metrics().Published)
	assert.Equal(t, "test", broker.Name())
}
