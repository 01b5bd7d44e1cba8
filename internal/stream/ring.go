package stream

import "sync"

// defaultRingCapacity bounds the live tail when no capacity is given.
const defaultRingCapacity = 128

// Ring keeps the most recent hub events in a fixed-size buffer so the
// panel can serve a live tail without a store round-trip. It plugs
// into the hub as a Consumer.
type Ring struct {
	mu     sync.Mutex
	buf    []Event
	next   int
	filled bool
}

// NewRing creates a ring holding up to capacity events.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = defaultRingCapacity
	}
	return &Ring{buf: make([]Event, capacity)}
}

// OnEvent implements Consumer. The oldest event is overwritten once
// the buffer is full.
func (r *Ring) OnEvent(ev Event) {
	r.mu.Lock()
	r.buf[r.next] = ev
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.filled = true
	}
	r.mu.Unlock()
}

// Kinds implements Consumer. The ring keeps every kind.
func (r *Ring) Kinds() []EventKind { return nil }

// Len reports how many events the ring currently holds.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.filled {
		return len(r.buf)
	}
	return r.next
}

// Recent returns up to n events, newest first. A non-positive n
// returns everything the ring holds.
func (r *Ring) Recent(n int) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	size := r.next
	if r.filled {
		size = len(r.buf)
	}
	if n <= 0 || n > size {
		n = size
	}

	out := make([]Event, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, r.buf[(r.next-i+len(r.buf))%len(r.buf)])
	}
	return out
}
