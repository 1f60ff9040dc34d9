package pubsub

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultBufferSize is the default channel buffer for subscribers.
const DefaultBufferSize = 64

// BrokerOption configures a Broker.
type BrokerOption func(*brokerConfig)

type brokerConfig struct {
	bufferSize int
	now        func() time.Time
}

// WithBufferSize sets the subscriber channel buffer size.
func WithBufferSize(size int) BrokerOption {
	return func(c *brokerConfig) {
		if size > 0 {
			c.bufferSize = size
		}
	}
}

// WithClock overrides the event timestamp source.
func WithClock(now func() time.Time) BrokerOption {
	return func(c *brokerConfig) {
		c.now = now
	}
}

type subscription[T any] struct {
	ch     chan Event[T]
	filter func(T) bool
}

// Broker fans events out to subscribers. Publish never blocks: a subscriber
// whose buffer is full misses the event and the drop is counted.
type Broker[T any] struct {
	name string
	cfg  brokerConfig

	mu   sync.RWMutex
	subs map[*subscription[T]]struct{}
	done chan struct{}

	published atomic.Int64
	delivered atomic.Int64
	dropped   atomic.Int64
	peak      atomic.Int32
}

// NewBroker creates a new typed broker.
func NewBroker[T any](name string, opts ...BrokerOption) *Broker[T] {
	cfg := brokerConfig{bufferSize: DefaultBufferSize, now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Broker[T]{
		name: name,
		cfg:  cfg,
		subs: make(map[*subscription[T]]struct{}),
		done: make(chan struct{}),
	}
}

// Name returns the broker's name.
func (b *Broker[T]) Name() string {
	return b.name
}

// Subscribe registers a subscriber that receives events matching filter (all
// events when filter is nil) until ctx is done or the broker shuts down, at
// which point the channel is closed.
func (b *Broker[T]) Subscribe(ctx context.Context, filter func(T) bool) <-chan Event[T] {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.isClosed() {
		ch := make(chan Event[T])
		close(ch)
		return ch
	}

	sub := &subscription[T]{ch: make(chan Event[T], b.cfg.bufferSize), filter: filter}
	b.subs[sub] = struct{}{}
	if n := int32(len(b.subs)); n > b.peak.Load() {
		b.peak.Store(n)
	}

	go func() {
		select {
		case <-ctx.Done():
		case <-b.done:
		}
		b.remove(sub)
	}()

	return sub.ch
}

func (b *Broker[T]) remove(sub *subscription[T]) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub]; !ok {
		return
	}
	delete(b.subs, sub)
	close(sub.ch)
}

// Publish sends an event to every matching subscriber.
func (b *Broker[T]) Publish(eventType EventType, payload T) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.isClosed() {
		return
	}

	event := Event[T]{Type: eventType, Payload: payload, Timestamp: b.cfg.now()}
	b.published.Add(1)
	for sub := range b.subs {
		if sub.filter != nil && !sub.filter(payload) {
			continue
		}
		select {
		case sub.ch <- event:
			b.delivered.Add(1)
		default:
			b.dropped.Add(1)
		}
	}
}

// Shutdown closes every subscriber channel. Later publishes are ignored.
func (b *Broker[T]) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.isClosed() {
		return
	}
	close(b.done)
	for sub := range b.subs {
		delete(b.subs, sub)
		close(sub.ch)
	}
}

func (b *Broker[T]) isClosed() bool {
	select {
	case <-b.done:
		return true
	default:
		return false
	}
}

// SubscriberCount returns the current number of subscribers.
func (b *Broker[T]) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// BrokerMetrics contains broker statistics.
type BrokerMetrics struct {
	Name            string `json:"name"`
	Published       int64  `json:"published"`
	Delivered       int64  `json:"delivered"`
	Dropped         int64  `json:"dropped"`
	SubscriberCount int    `json:"subscriber_count"`
	SubscriberPeak  int    `json:"subscriber_peak"`
}

// Metrics returns a snapshot of the broker's counters.
func (b *Broker[T]) Metrics() BrokerMetrics {
	return BrokerMetrics{
		Name:            b.name,
		Published:       b.published.Load(),
		Delivered:       b.delivered.Load(),
		Dropped:         b.dropped.Load(),
		SubscriberCount: b.SubscriberCount(),
		SubscriberPeak:  int(b.peak.Load()),
	}
}
