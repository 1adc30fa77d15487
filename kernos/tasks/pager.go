package tasks

import (
	"fmt"
	"sync"

	"hwkern/kernos/kernel"
)

// Pager reaps faulted threads. Every thread routed to it gets its own
// signal context on the pager's receiver; the imprint names the thread.
type Pager struct {
	thread kernel.Capability
	recv   kernel.Capability

	mu     sync.Mutex
	next   uint64
	routed map[uint64]routedThread
	reaped uint64
}

type routedThread struct {
	th kernel.Capability
	sc kernel.Capability
}

func startPager(k *kernel.Kernel) (*Pager, error) {
	p := &Pager{routed: make(map[uint64]routedThread)}
	var err error
	p.recv, err = k.CreateObject(kernel.KindSignalReceiver, kernel.ReceiverArgs{Label: "pager"})
	if err != nil {
		return nil, err
	}
	if p.thread, err = spawn(k, "pager", 4, 0, p.run); err != nil {
		return nil, err
	}
	return p, nil
}

// Route makes the pager handle faults of th.
func (p *Pager) Route(ctx *kernel.Context, th kernel.Capability) error {
	p.mu.Lock()
	p.next++
	imprint := p.next
	p.mu.Unlock()

	sc, err := ctx.CreateObject(kernel.KindSignalContext, kernel.ContextArgs{
		Label:    "fault",
		Receiver: p.recv,
		Imprint:  imprint,
	})
	if err != nil {
		return err
	}
	if err := ctx.RouteFault(th, sc); err != nil {
		_ = ctx.Destroy(sc)
		return err
	}
	p.mu.Lock()
	p.routed[imprint] = routedThread{th: th, sc: sc}
	p.mu.Unlock()
	return nil
}

func (p *Pager) run(ctx *kernel.Context) {
	for {
		s, err := ctx.AwaitSignal(p.recv)
		if err != nil {
			return
		}
		p.reap(ctx, s.Imprint)
	}
}

func (p *Pager) reap(ctx *kernel.Context, imprint uint64) {
	p.mu.Lock()
	rt, ok := p.routed[imprint]
	delete(p.routed, imprint)
	p.mu.Unlock()
	if !ok {
		return
	}

	regs, err := ctx.ReadRegs(rt.th)
	if err != nil {
		ctx.Print(fmt.Sprintf("pager: %s: %v\n", rt.th, err))
	}
	_ = ctx.Destroy(rt.th)
	_ = ctx.Destroy(rt.sc)
	ctx.Print(fmt.Sprintf("pager: reaped %s ip=%#x\n", rt.th, regs.IP))

	p.mu.Lock()
	p.reaped++
	p.mu.Unlock()
}

// Reaped returns the number of faulted threads destroyed.
func (p *Pager) Reaped() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reaped
}
