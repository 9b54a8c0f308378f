package observe

import (
	"sync"
	"time"
)

// Notification is one buffered observe event.
type Notification struct {
	Seq       uint64         `json:"seq"`
	EventType string         `json:"event_type"`
	Payload   map[string]any `json:"payload"`
	At        time.Time      `json:"at"`
}

// Ring keeps the most recent notifications in a fixed-capacity buffer.
// When full, the oldest entry is overwritten and counted as dropped.
type Ring struct {
	mu      sync.Mutex
	buf     []Notification
	start   int
	size    int
	seq     uint64
	dropped uint64
}

// NewRing creates a ring holding at most capacity notifications.
func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{buf: make([]Notification, capacity)}
}

// Push appends a notification, evicting the oldest when full.
func (r *Ring) Push(eventType string, payload map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	n := Notification{Seq: r.seq, EventType: eventType, Payload: payload, At: time.Now().UTC()}
	if r.size < len(r.buf) {
		r.buf[(r.start+r.size)%len(r.buf)] = n
		r.size++
		return
	}
	r.buf[r.start] = n
	r.start = (r.start + 1) % len(r.buf)
	r.dropped++
}

// Handler adapts the ring to a stream subscription.
func (r *Ring) Handler() Handler {
	return func(eventType string, payload map[string]any) error {
		r.Push(eventType, payload)
		return nil
	}
}

// Recent returns up to n most recent notifications, oldest first. n <= 0
// returns everything buffered.
func (r *Ring) Recent(n int) []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n <= 0 || n > r.size {
		n = r.size
	}
	out := make([]Notification, n)
	offset := r.size - n
	for i := 0; i < n; i++ {
		out[i] = r.buf[(r.start+offset+i)%len(r.buf)]
	}
	return out
}

// Dropped returns how many notifications were evicted.
func (r *Ring) Dropped() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Cap returns the ring capacity.
func (r *Ring) Cap() int {
	return len(r.buf)
}
