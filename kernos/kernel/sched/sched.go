// Package sched implements the per-CPU scheduler of the kernel.
//
// Entries are ordered by priority (higher first). Within one priority level
// entries run round-robin, each for a time quota of one lap; ties are broken
// by insertion order. The idle entry runs when no other entry is ready and
// never enters a queue.
package sched

import (
	"errors"
	"fmt"
)

// State is the run state of an entry.
type State uint8

const (
	Inactive State = iota
	Ready
	Running
	Blocked
)

func (s State) String() string {
	switch s {
	case Inactive:
		return "inactive"
	case Ready:
		return "ready"
	case Running:
		return "running"
	case Blocked:
		return "blocked"
	default:
		return "unknown"
	}
}

var (
	// ErrState is returned when an entry is inserted while ready or running,
	// or removed while not scheduled. The scheduler is left unchanged.
	ErrState = errors.New("sched: entry in wrong state")

	// ErrAffinity is returned when an entry is inserted into a CPU outside
	// its affinity mask.
	ErrAffinity = errors.New("sched: cpu not in affinity mask")
)

// AnyCPU is the affinity mask that admits every CPU.
const AnyCPU uint64 = 0

// Entry is the scheduling state of one job. Value is the job itself.
type Entry[T any] struct {
	Value T

	prio     uint8
	affinity uint64
	state    State
	quota    uint32

	next *Entry[T]
	prev *Entry[T]
	list *queue[T]
}

// Init prepares e for use. e must not be scheduled.
func (e *Entry[T]) Init(v T, prio uint8, affinity uint64) {
	*e = Entry[T]{Value: v, prio: prio, affinity: affinity}
}

func (e *Entry[T]) Priority() uint8  { return e.prio }
func (e *Entry[T]) Affinity() uint64 { return e.affinity }
func (e *Entry[T]) State() State     { return e.state }
func (e *Entry[T]) Quota() uint32    { return e.quota }

// Allows reports whether the affinity mask admits cpu.
func (e *Entry[T]) Allows(cpu int) bool {
	if e.affinity == AnyCPU {
		return true
	}
	return cpu >= 0 && cpu < 64 && e.affinity&(1<<uint(cpu)) != 0
}

func (e *Entry[T]) consume(t uint32) {
	if e.quota > t {
		e.quota -= t
		return
	}
	e.quota = 0
}

// Scheduler selects the entry to run on one CPU.
type Scheduler[T any] struct {
	cpu     int
	idle    *Entry[T]
	levels  []queue[T]
	current *Entry[T]
	lap     uint32
	yielded bool
}

// New returns a scheduler for cpu with priorities 0..maxPrio and a quota of
// lap time units per round.
func New[T any](cpu int, idle *Entry[T], maxPrio uint8, lap uint32) *Scheduler[T] {
	if idle == nil {
		panic("sched: nil idle entry")
	}
	if lap == 0 {
		lap = 1
	}
	return &Scheduler[T]{
		cpu:    cpu,
		idle:   idle,
		levels: make([]queue[T], int(maxPrio)+1),
		lap:    lap,
	}
}

// CPU returns the CPU this scheduler serves.
func (s *Scheduler[T]) CPU() int { return s.cpu }

// MaxPriority returns the highest priority level.
func (s *Scheduler[T]) MaxPriority() uint8 { return uint8(len(s.levels) - 1) }

// Idle returns the idle entry.
func (s *Scheduler[T]) Idle() *Entry[T] { return s.idle }

// Current returns the running entry, or the idle entry if none runs.
func (s *Scheduler[T]) Current() *Entry[T] {
	if s.current != nil {
		return s.current
	}
	return s.idle
}

// Ready returns the number of queued entries.
func (s *Scheduler[T]) Ready() int {
	n := 0
	for i := range s.levels {
		n += s.levels[i].n
	}
	return n
}

func (s *Scheduler[T]) clamp(p uint8) uint8 {
	if int(p) >= len(s.levels) {
		return uint8(len(s.levels) - 1)
	}
	return p
}

func (s *Scheduler[T]) highest() int {
	for p := len(s.levels) - 1; p >= 0; p-- {
		if !s.levels[p].empty() {
			return p
		}
	}
	return -1
}

// Insert makes e ready at the tail of its priority level.
func (s *Scheduler[T]) Insert(e *Entry[T]) error {
	if e == s.idle {
		return nil
	}
	if e.state == Ready || e.state == Running {
		return fmt.Errorf("insert %s entry: %w", e.state, ErrState)
	}
	if !e.Allows(s.cpu) {
		return fmt.Errorf("insert on cpu %d: %w", s.cpu, ErrAffinity)
	}
	e.prio = s.clamp(e.prio)
	e.quota = s.lap
	e.state = Ready
	s.levels[e.prio].pushTail(e)
	return nil
}

// Remove takes e out of scheduling. A removed entry becomes Blocked if
// blocked is set and Inactive otherwise.
func (s *Scheduler[T]) Remove(e *Entry[T], blocked bool) error {
	if e == s.idle {
		return nil
	}
	switch e.state {
	case Ready:
		s.levels[e.prio].remove(e)
	case Running:
		if s.current == e {
			s.current = nil
			s.yielded = false
		}
	default:
		return fmt.Errorf("remove %s entry: %w", e.state, ErrState)
	}
	if blocked {
		e.state = Blocked
	} else {
		e.state = Inactive
	}
	return nil
}

// Yield ends the quota of the running entry at the next call to Next.
func (s *Scheduler[T]) Yield() {
	if s.current != nil {
		s.yielded = true
	}
}

// Next charges consumed time units to the running entry and returns the
// entry that runs next together with its remaining quota.
func (s *Scheduler[T]) Next(consumed uint32) (*Entry[T], uint32) {
	if c := s.current; c != nil {
		c.consume(consumed)
		switch {
		case c.quota == 0 || s.yielded:
			c.quota = s.lap
			c.state = Ready
			s.levels[c.prio].pushTail(c)
		case s.highest() > int(c.prio):
			// Preempted: keep the rest of the lap and the head position.
			c.state = Ready
			s.levels[c.prio].pushHead(c)
		default:
			return c, c.quota
		}
		s.current = nil
	}
	s.yielded = false

	p := s.highest()
	if p < 0 {
		return s.idle, s.lap
	}
	e := s.levels[p].popHead()
	e.state = Running
	s.current = e
	return e, e.quota
}

// Each calls fn for every queued entry, highest priority first.
func (s *Scheduler[T]) Each(fn func(*Entry[T])) {
	for p := len(s.levels) - 1; p >= 0; p-- {
		for e := s.levels[p].head; e != nil; e = e.next {
			fn(e)
		}
	}
}
