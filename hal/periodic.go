package hal

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// PeriodicSource raises an interrupt line once per period of wall time,
// like a real-time clock. It fires when polled; missed periods are raised
// in one burst.
type PeriodicSource struct {
	mu   sync.Mutex
	name string
	line int
	irq  IRQController

	t0     time.Time
	now    func() time.Time
	period time.Duration
	fired  uint64
}

// NewPeriodicSource returns a source raising line on irq every period.
func NewPeriodicSource(name string, irq IRQController, line int, period time.Duration) (*PeriodicSource, error) {
	return newPeriodicSourceWithClock(name, irq, line, period, time.Now)
}

func newPeriodicSourceWithClock(name string, irq IRQController, line int, period time.Duration, now func() time.Time) (*PeriodicSource, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("periodic source: empty name")
	}
	if irq == nil || line < 0 || line >= irq.Lines() {
		return nil, fmt.Errorf("periodic source %s: line %d out of range", name, line)
	}
	if now == nil {
		now = time.Now
	}
	if period <= 0 {
		period = time.Second
	}
	return &PeriodicSource{
		name:   name,
		line:   line,
		irq:    irq,
		t0:     now(),
		now:    now,
		period: period,
	}, nil
}

func (s *PeriodicSource) Name() string { return s.name }
func (s *PeriodicSource) Line() int    { return s.line }

// Poll raises the line for every period completed since the last poll and
// returns how many it raised.
func (s *PeriodicSource) Poll() int {
	s.mu.Lock()
	elapsed := s.now().Sub(s.t0)
	if elapsed < 0 {
		elapsed = 0
	}
	due := uint64(elapsed / s.period)
	n := int(due - s.fired)
	if due < s.fired {
		n = 0
	}
	s.fired += uint64(n)
	s.mu.Unlock()

	for i := 0; i < n; i++ {
		s.irq.Raise(s.line)
	}
	return n
}

// Fired returns how many periods the source has raised.
func (s *PeriodicSource) Fired() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fired
}
