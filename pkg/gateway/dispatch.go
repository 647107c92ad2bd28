package gateway

import (
	"sync"
)

// subscriber is a single signal consumer.
type subscriber struct {
	ch    chan Signal
	kinds map[SignalKind]struct{} // nil means all kinds
}

func (s *subscriber) wants(kind SignalKind) bool {
	if s.kinds == nil {
		return true
	}
	_, ok := s.kinds[kind]
	return ok
}

// Dispatcher fans engine signals out to subscribers. Publishing never
// blocks: a subscriber whose buffer is full misses the signal.
type Dispatcher struct {
	mu   sync.Mutex
	subs map[uint64]*subscriber
	next uint64
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{subs: make(map[uint64]*subscriber)}
}

// Subscribe registers a consumer for the given signal kinds (all kinds when
// none are named). buffer sizes the delivery channel; a buffer of zero is
// raised to one so delivery never blocks the engine. The returned cancel
// function closes the channel and must be called exactly once.
func (d *Dispatcher) Subscribe(buffer int, kinds ...SignalKind) (<-chan Signal, func()) {
	if buffer < 1 {
		buffer = 1
	}

	sub := &subscriber{ch: make(chan Signal, buffer)}
	if len(kinds) > 0 {
		sub.kinds = make(map[SignalKind]struct{}, len(kinds))
		for _, k := range kinds {
			sub.kinds[k] = struct{}{}
		}
	}

	d.mu.Lock()
	id := d.next
	d.next++
	d.subs[id] = sub
	d.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			d.mu.Lock()
			delete(d.subs, id)
			d.mu.Unlock()
			close(sub.ch)
		})
	}
	return sub.ch, cancel
}

// Publish delivers a signal to every interested subscriber without
// blocking.
func (d *Dispatcher) Publish(sig Signal) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, sub := range d.subs {
		if !sub.wants(sig.Kind) {
			continue
		}
		select {
		case sub.ch <- sig:
		default:
			// Subscriber is not keeping up; drop rather than stall
			// the engine.
		}
	}
}

// Len returns the number of active subscribers.
func (d *Dispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.subs)
}
