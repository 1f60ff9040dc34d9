// Package pubsub provides a typed in-process broker for realtime events.
package pubsub

import (
	"context"
	"time"
)

// EventType represents the type of event.
type EventType string

// Event is a typed event with its publish time.
type Event[T any] struct {
	Type      EventType `json:"type"`
	Payload   T         `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher is the interface for publishing events.
type Publisher[T any] interface {
	Publish(EventType, T)
}

// Subscriber is the interface for subscribing to events.
type Subscriber[T any] interface {
	Subscribe(ctx context.Context, filter func(T) bool) <-chan Event[T]
}
