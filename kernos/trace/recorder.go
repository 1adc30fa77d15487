package trace

import (
	"sync"

	"hwkern/kernos/kernel"
)

// Recorder is a kernel.Tracer keeping the newest events in a ring. With a
// Writer attached, every event is also appended to it.
type Recorder struct {
	mu    sync.Mutex
	ring  []kernel.Event
	next  int
	full  bool
	total uint64
	kinds map[kernel.EventKind]uint64

	w   *Writer
	err error
}

// NewRecorder returns a recorder keeping capacity events.
func NewRecorder(capacity int) *Recorder {
	if capacity <= 0 {
		capacity = 1
	}
	return &Recorder{
		ring:  make([]kernel.Event, capacity),
		kinds: make(map[kernel.EventKind]uint64),
	}
}

// Attach streams subsequent events to w.
func (r *Recorder) Attach(w *Writer) {
	r.mu.Lock()
	r.w = w
	r.mu.Unlock()
}

// Record implements kernel.Tracer.
func (r *Recorder) Record(ev kernel.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ring[r.next] = ev
	r.next++
	if r.next == len(r.ring) {
		r.next = 0
		r.full = true
	}
	r.total++
	r.kinds[ev.Kind]++
	if r.w != nil && r.err == nil {
		r.err = r.w.Write(FromEvent(ev))
	}
}

// Events returns the kept events, oldest first.
func (r *Recorder) Events() []kernel.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.full {
		return append([]kernel.Event(nil), r.ring[:r.next]...)
	}
	out := make([]kernel.Event, 0, len(r.ring))
	out = append(out, r.ring[r.next:]...)
	return append(out, r.ring[:r.next]...)
}

// Total returns the number of events recorded, including overwritten ones.
func (r *Recorder) Total() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.total
}

// Count returns the number of events of kind recorded.
func (r *Recorder) Count(kind kernel.EventKind) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.kinds[kind]
}

// Err returns the first error of the attached writer.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}
