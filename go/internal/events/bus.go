package events

import (
	"context"
	"sync"
)

// Bus is an in-process broadcaster. Every subscriber has its own unbounded
// FIFO so Publish never blocks and never drops.
type Bus struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	closed bool
}

// NewBus creates an empty Bus
func NewBus() *Bus {
	return &Bus{subs: make(map[*Subscription]struct{})}
}

// Subscription receives events in publish order on C
type Subscription struct {
	C <-chan Event

	bus    *Bus
	out    chan Event
	filter map[Type]bool

	mu     sync.Mutex
	queue  []Event
	signal chan struct{}
	done   chan struct{}
	once   sync.Once
}

// Subscribe registers a listener; with no types it receives everything
func (b *Bus) Subscribe(types ...Type) *Subscription {
	s := &Subscription{
		bus:    b,
		out:    make(chan Event),
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	s.C = s.out
	if len(types) > 0 {
		s.filter = make(map[Type]bool, len(types))
		for _, t := range types {
			s.filter[t] = true
		}
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(s.done)
		close(s.out)
		return s
	}
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	go s.pump()
	return s
}

// Publish implements Broadcaster
func (b *Bus) Publish(_ context.Context, evts ...Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subs {
		s.enqueue(evts)
	}
	return nil
}

// Close ends every subscription
func (b *Bus) Close() {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[*Subscription]struct{})
	b.closed = true
	b.mu.Unlock()
	for s := range subs {
		s.stop()
	}
}

// Close unsubscribes; C is closed once the pump exits
func (s *Subscription) Close() {
	s.bus.mu.Lock()
	delete(s.bus.subs, s)
	s.bus.mu.Unlock()
	s.stop()
}

// Pending is the number of queued, undelivered events
func (s *Subscription) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *Subscription) stop() {
	s.once.Do(func() { close(s.done) })
}

func (s *Subscription) enqueue(evts []Event) {
	s.mu.Lock()
	added := false
	for _, e := range evts {
		if s.filter != nil && !s.filter[e.Type] {
			continue
		}
		s.queue = append(s.queue, e)
		added = true
	}
	s.mu.Unlock()
	if !added {
		return
	}
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *Subscription) pump() {
	defer close(s.out)
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			select {
			case <-s.signal:
				continue
			case <-s.done:
				return
			}
		}
		next := s.queue[0]
		s.queue[0] = Event{}
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- next:
		case <-s.done:
			return
		}
	}
}
