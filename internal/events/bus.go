package events

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"slotbook/internal/metrics"

	"github.com/rs/zerolog"
)

// DefaultBufferSize is the per-subscriber buffer when none is configured.
const DefaultBufferSize = 64

// Bus is an in-process broadcast of events to filtered subscribers. Delivery
// into each subscriber buffer happens under one lock, so every subscriber sees
// events in the same order as Seq.
type Bus struct {
	mu         sync.Mutex
	subs       map[uint64]*Subscription
	nextID     uint64
	seq        uint64
	closed     bool
	bufferSize int
	logger     *zerolog.Logger
}

type BusOption func(*Bus)

// WithDefaultBuffer sets the buffer size for subscriptions that do not choose one.
func WithDefaultBuffer(n int) BusOption {
	return func(b *Bus) {
		if n > 0 {
			b.bufferSize = n
		}
	}
}

func WithLogger(logger *zerolog.Logger) BusOption {
	return func(b *Bus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewBus constructs an empty bus.
func NewBus(opts ...BusOption) *Bus {
	nop := zerolog.New(io.Discard)
	b := &Bus{
		subs:       make(map[uint64]*Subscription),
		bufferSize: DefaultBufferSize,
		logger:     &nop,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish assigns the next sequence number and hands the event to every
// matching subscriber. It never waits for consumers: a full buffer discards
// its oldest event.
func (b *Bus) Publish(_ context.Context, e Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBusClosed
	}

	b.seq++
	e.Seq = b.seq
	metrics.IncEventPublished(string(e.Kind), string(e.Operation))

	for _, s := range b.subs {
		if !b.matches(s, e) {
			continue
		}
		if s.offer(e) {
			metrics.IncEventDropped()
			b.logger.Debug().
				Uint64("subscription", s.id).
				Uint64("dropped_total", s.Dropped()).
				Msg("Subscriber buffer full, dropped oldest event")
		}
	}
	return nil
}

// matches runs the subscriber's filter. A panicking filter skips the event for
// that subscriber only.
func (b *Bus) matches(s *Subscription, e Event) (ok bool) {
	if s.filter == nil {
		return true
	}
	defer func() {
		if r := recover(); r != nil {
			ok = false
			b.logger.Error().
				Interface("panic", r).
				Uint64("subscription", s.id).
				Uint64("seq", e.Seq).
				Msg("Event filter panicked")
		}
	}()
	return s.filter(e)
}

type SubscribeOption func(*Subscription)

// WithBuffer overrides the buffer size of one subscription.
func WithBuffer(n int) SubscribeOption {
	return func(s *Subscription) {
		if n > 0 {
			s.size = n
		}
	}
}

// Subscribe registers a subscriber for events published from now on. A nil
// filter accepts everything. Subscribing to a closed bus returns a
// subscription whose channel is already closed.
func (b *Bus) Subscribe(filter Filter, opts ...SubscribeOption) *Subscription {
	s := &Subscription{bus: b, filter: filter, size: b.bufferSize}
	for _, opt := range opts {
		opt(s)
	}
	s.ch = make(chan Event, s.size)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(s.ch)
		s.closed = true
		return s
	}
	b.nextID++
	s.id = b.nextID
	b.subs[s.id] = s
	metrics.SetSubscribers(len(b.subs))
	return s
}

// Unsubscribe removes the subscription and closes its channel.
func (b *Bus) Unsubscribe(s *Subscription) {
	if s == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if s.closed {
		return
	}
	delete(b.subs, s.id)
	s.closed = true
	close(s.ch)
	metrics.SetSubscribers(len(b.subs))
}

// Subscribers returns the number of active subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close stops the bus and closes every subscription.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, s := range b.subs {
		s.closed = true
		close(s.ch)
		delete(b.subs, id)
	}
	metrics.SetSubscribers(0)
}

// Subscription is one consumer's bounded view of the bus.
type Subscription struct {
	id      uint64
	bus     *Bus
	filter  Filter
	size    int
	ch      chan Event
	closed  bool // guarded by bus.mu
	dropped atomic.Uint64
}

// C returns the channel events are delivered on. It is closed when the
// subscription ends.
func (s *Subscription) C() <-chan Event {
	return s.ch
}

// Close ends the subscription.
func (s *Subscription) Close() {
	s.bus.Unsubscribe(s)
}

// Dropped returns how many events were discarded because the buffer was full.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// offer enqueues e, evicting the oldest buffered event if needed. It reports
// whether an event was evicted. Callers hold bus.mu, so there is one producer.
func (s *Subscription) offer(e Event) bool {
	evicted := false
	for {
		select {
		case s.ch <- e:
			return evicted
		default:
		}
		select {
		case <-s.ch:
			s.dropped.Add(1)
			evicted = true
		default:
		}
	}
}
