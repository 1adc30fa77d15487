package kernel

import (
	"fmt"

	"hwkern/kernos/kernel/idalloc"
)

// InterruptController is the platform interrupt controller.
//
// Take returns the next pending trigger of an unmasked line. A level
// triggered line is masked by the kernel on every trigger until the owner
// acknowledges it.
type InterruptController interface {
	Lines() int
	Take() (line int, ok bool)
	Mask(line int)
	Unmask(line int)
	LevelTriggered(line int) bool
}

type noController struct{ lines int }

func (n noController) Lines() int            { return n.lines }
func (noController) Take() (int, bool)       { return 0, false }
func (noController) Mask(int)                {}
func (noController) Unmask(int)              {}
func (noController) LevelTriggered(int) bool { return false }

// Irq routes one interrupt line to a signal context.
type Irq struct {
	object

	line     int
	ctx      *SignalContext
	masked   bool
	triggers uint64
}

func (q *Irq) Line() int { return q.line }

// irqLines claims interrupt lines. Line n is id n+1.
type irqLines struct {
	ids    *idalloc.Allocator
	owners []*Irq
}

func newIrqLines(n int) irqLines {
	return irqLines{ids: idalloc.New(uint32(n)), owners: make([]*Irq, n)}
}

func (l *irqLines) valid(line int) bool { return line >= 0 && line < len(l.owners) }

func (l *irqLines) claim(line int) bool { return l.valid(line) && l.ids.Claim(uint32(line)+1) }

func (l *irqLines) release(line int) {
	if l.valid(line) && l.ids.Free(uint32(line)+1) {
		l.owners[line] = nil
	}
}

func (k *Kernel) newIrq(a IrqArgs) (*Irq, error) {
	if !k.lines.valid(a.Line) {
		return nil, fmt.Errorf("irq line %d of %d: %w", a.Line, len(k.lines.owners), ErrInvalidArgument)
	}
	sc, err := k.contextOf(a.Context)
	if err != nil {
		return nil, err
	}
	if !k.lines.claim(a.Line) {
		return nil, fmt.Errorf("irq line %d: %w", a.Line, ErrAlreadyAssociated)
	}
	h, q, err := k.irqs.Reserve()
	if err != nil {
		k.lines.release(a.Line)
		return nil, err
	}
	q.object = object{kind: KindIrq, handle: h, label: a.Label}
	q.line = a.Line
	q.ctx = sc
	if err := k.irqs.Publish(h); err != nil {
		k.irqs.Unreserve(h)
		k.lines.release(a.Line)
		return nil, err
	}
	k.lines.owners[a.Line] = q
	k.irq.Unmask(a.Line)
	return q, nil
}

// interrupt is the kernel interrupt entry for one trigger of line.
func (k *Kernel) interrupt(line int) {
	if !k.lines.valid(line) {
		k.log.Warn("interrupt on unknown line", "line", line)
		return
	}
	q := k.lines.owners[line]
	if q == nil {
		k.log.Debug("spurious interrupt", "line", line)
		return
	}
	q.triggers++
	k.emit(EvIRQ, &q.object, uint64(line), q.triggers)
	if k.irq.LevelTriggered(line) {
		k.irq.Mask(line)
		q.masked = true
	}
	if q.ctx == nil {
		k.log.Warn("interrupt without signal context", "line", line)
		return
	}
	if err := k.submit(q.ctx, 1); err != nil {
		k.log.Warn("interrupt signal not delivered", "line", line, "err", err)
	}
}

func (k *Kernel) takeInterrupts() {
	for {
		line, ok := k.irq.Take()
		if !ok {
			return
		}
		k.interrupt(line)
	}
}

// ackIrq unmasks the line of q for its next trigger.
func (k *Kernel) ackIrq(q *Irq) {
	if !q.masked {
		return
	}
	q.masked = false
	k.irq.Unmask(q.line)
}

func (k *Kernel) destroyIrq(q *Irq) {
	k.irq.Mask(q.line)
	k.lines.release(q.line)
	q.ctx = nil
}
