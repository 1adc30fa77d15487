package tasks

import (
	"sync/atomic"

	"hwkern/kernos/kernel"
)

// Ticker counts the triggers of a periodic interrupt line.
type Ticker struct {
	thread kernel.Capability
	irq    kernel.Capability
	recv   kernel.Capability
	line   int

	count atomic.Uint64
}

func startTicker(k *kernel.Kernel, line int) (*Ticker, error) {
	t := &Ticker{line: line}
	r, sc, err := signal(k, "rtc", uint64(line))
	if err != nil {
		return nil, err
	}
	t.recv = r
	if t.irq, err = k.IrqAssociate(line, sc); err != nil {
		return nil, err
	}
	if t.thread, err = spawn(k, "rtc", 3, 0, t.run); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Ticker) run(ctx *kernel.Context) {
	for {
		s, err := ctx.AwaitSignal(t.recv)
		if err != nil {
			return
		}
		t.count.Add(uint64(s.Count))
		_ = ctx.IrqAck(t.irq)
	}
}

// Count returns the number of triggers seen.
func (t *Ticker) Count() uint64 { return t.count.Load() }

// Thread returns the ticker thread.
func (t *Ticker) Thread() kernel.Capability { return t.thread }
