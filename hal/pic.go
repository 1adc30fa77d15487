package hal

import "sync"

// PIC is a software interrupt controller. Edge lines count raises; a level
// line holds at most one pending trigger. All lines start masked.
type PIC struct {
	mu      sync.Mutex
	pending []uint32
	masked  []bool
	modes   []TriggerMode
	raised  uint64

	onRaise func(line int)
}

// NewPIC returns a controller with lines interrupt lines.
func NewPIC(lines int) *PIC {
	if lines <= 0 {
		lines = 1
	}
	p := &PIC{
		pending: make([]uint32, lines),
		masked:  make([]bool, lines),
		modes:   make([]TriggerMode, lines),
	}
	for i := range p.masked {
		p.masked[i] = true
	}
	return p
}

// OnRaise installs a hook run after every accepted raise, without the
// controller lock held. Boards use it to wake the kernel.
func (p *PIC) OnRaise(fn func(line int)) {
	p.mu.Lock()
	p.onRaise = fn
	p.mu.Unlock()
}

func (p *PIC) valid(line int) bool { return line >= 0 && line < len(p.pending) }

func (p *PIC) Lines() int { return len(p.pending) }

// SetMode configures the trigger mode of line.
func (p *PIC) SetMode(line int, m TriggerMode) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.valid(line) {
		p.modes[line] = m
	}
}

func (p *PIC) Mode(line int) TriggerMode {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.valid(line) {
		return TriggerEdge
	}
	return p.modes[line]
}

func (p *PIC) LevelTriggered(line int) bool { return p.Mode(line) == TriggerLevel }

// Raise records one trigger of line. Masked lines keep their triggers
// pending until unmasked.
func (p *PIC) Raise(line int) {
	p.mu.Lock()
	if !p.valid(line) {
		p.mu.Unlock()
		return
	}
	switch {
	case p.modes[line] == TriggerLevel:
		p.pending[line] = 1
	case p.pending[line] < ^uint32(0):
		p.pending[line]++
	}
	p.raised++
	fn := p.onRaise
	p.mu.Unlock()
	if fn != nil {
		fn(line)
	}
}

// Take returns the lowest unmasked line with a pending trigger and consumes
// one trigger of it.
func (p *PIC) Take() (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for line, n := range p.pending {
		if n == 0 || p.masked[line] {
			continue
		}
		p.pending[line]--
		return line, true
	}
	return 0, false
}

func (p *PIC) Mask(line int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.valid(line) {
		p.masked[line] = true
	}
}

func (p *PIC) Unmask(line int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.valid(line) {
		p.masked[line] = false
	}
}

// Masked reports whether line is masked.
func (p *PIC) Masked(line int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.valid(line) || p.masked[line]
}

// Pending returns the number of untaken triggers of line.
func (p *PIC) Pending(line int) uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.valid(line) {
		return 0
	}
	return p.pending[line]
}

// Raised returns the total number of accepted raises.
func (p *PIC) Raised() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.raised
}
