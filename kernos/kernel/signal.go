package kernel

import (
	"fmt"
	"math"
)

// Signal is one delivery: the imprint of the context and how many
// submissions it coalesces.
type Signal struct {
	Imprint uint64
	Count   uint32
}

// SignalReceiver queues contexts with pending signals and the threads that
// wait for them. Both queues are FIFO.
type SignalReceiver struct {
	object

	pending fifo[SignalContext]
	waiters fifo[Thread]
	members fifo[SignalContext]
}

// SignalContext is a counted notification slot bound to one receiver.
//
// enqueued is true iff the context is linked into receiver.pending. pending
// is reset to zero exactly when a delivery takes it.
type SignalContext struct {
	object

	imprint  uint64
	pending  uint32
	receiver *SignalReceiver
	enqueued bool

	queued link[SignalContext]
	member link[SignalContext]

	submits    uint64
	deliveries uint64
}

func (sc *SignalContext) Imprint() uint64 { return sc.imprint }
func (sc *SignalContext) Pending() uint32 { return sc.pending }

func (k *Kernel) newReceiver(a ReceiverArgs) (*SignalReceiver, error) {
	h, r, err := k.receivers.Reserve()
	if err != nil {
		return nil, err
	}
	r.object = object{kind: KindSignalReceiver, handle: h, label: a.Label}
	r.pending = newFifo(func(c *SignalContext) *link[SignalContext] { return &c.queued })
	r.members = newFifo(func(c *SignalContext) *link[SignalContext] { return &c.member })
	r.waiters = newFifo(func(t *Thread) *link[Thread] { return &t.wait })
	if err := k.receivers.Publish(h); err != nil {
		k.receivers.Unreserve(h)
		return nil, err
	}
	return r, nil
}

func (k *Kernel) newSignalContext(a ContextArgs) (*SignalContext, error) {
	r, err := k.receiverOf(a.Receiver)
	if err != nil {
		return nil, err
	}
	h, sc, err := k.contexts.Reserve()
	if err != nil {
		return nil, err
	}
	sc.object = object{kind: KindSignalContext, handle: h, label: a.Label}
	sc.imprint = a.Imprint
	sc.receiver = r
	if err := k.contexts.Publish(h); err != nil {
		k.contexts.Unreserve(h)
		return nil, err
	}
	r.members.push(sc)
	return sc, nil
}

// submit adds n to the pending count of sc. A context that was idle is
// queued at its receiver, which then serves a waiting thread if there is one.
func (k *Kernel) submit(sc *SignalContext, n uint32) error {
	if n == 0 {
		return fmt.Errorf("submit 0 to %s: %w", sc.name(), ErrInvalidArgument)
	}
	r := sc.receiver
	if r == nil {
		return fmt.Errorf("submit to dissolved %s: %w", sc.name(), ErrBadState)
	}
	if uint64(sc.pending)+uint64(n) > math.MaxUint32 {
		sc.pending = math.MaxUint32
	} else {
		sc.pending += n
	}
	sc.submits++
	k.emit(EvSubmit, &sc.object, uint64(n), sc.imprint)

	if !sc.enqueued {
		if !r.pending.push(sc) {
			k.violation("enqueue of queued signal context", "context", sc.name())
			return fmt.Errorf("enqueue %s: %w", sc.name(), ErrInvariantViolation)
		}
		sc.enqueued = true
	}
	k.deliver(r)
	return nil
}

// take dequeues the oldest pending context of r.
func (k *Kernel) take(r *SignalReceiver) (Signal, bool) {
	sc := r.pending.pop()
	if sc == nil {
		return Signal{}, false
	}
	sig := Signal{Imprint: sc.imprint, Count: sc.pending}
	sc.pending = 0
	sc.enqueued = false
	sc.deliveries++
	k.emit(EvDeliver, &sc.object, uint64(sig.Count), sig.Imprint)
	return sig, true
}

// deliver pairs pending contexts with waiting threads in FIFO order.
func (k *Kernel) deliver(r *SignalReceiver) {
	for !r.pending.empty() && !r.waiters.empty() {
		t := r.waiters.pop()
		sig, _ := k.take(r)
		t.receiver = nil
		k.complete(t, reply{signal: sig})
	}
}

// awaitSignal returns a pending signal of r, or parks t on r and reports
// blocked.
func (k *Kernel) awaitSignal(t *Thread, r *SignalReceiver) (Signal, bool) {
	if sig, ok := k.take(r); ok {
		return sig, false
	}
	r.waiters.push(t)
	t.receiver = r
	k.block(t, ThreadAwaitsSignal)
	return Signal{}, true
}

// cancelWait unparks t from its receiver with ErrCanceled. It reports false
// if t was not waiting.
func (k *Kernel) cancelWait(t *Thread) bool {
	r := t.receiver
	if t.state != ThreadAwaitsSignal || r == nil {
		return false
	}
	r.waiters.remove(t)
	t.receiver = nil
	k.emit(EvCancel, &t.object, 0, 0)
	k.complete(t, reply{err: fmt.Errorf("await %s: %w", r.name(), ErrCanceled)})
	return true
}

// dissolve unlinks sc from its receiver whether or not it is queued.
func (k *Kernel) dissolve(sc *SignalContext) {
	r := sc.receiver
	if r == nil {
		return
	}
	r.pending.remove(sc)
	r.members.remove(sc)
	sc.enqueued = false
	sc.receiver = nil
}

func (k *Kernel) destroyReceiver(r *SignalReceiver) {
	if n := r.members.len(); n > 0 {
		k.log.Warn("destroying signal receiver with attached contexts", "receiver", r.name(), "contexts", n)
		r.members.each(k.dissolve)
	}
	r.waiters.each(func(t *Thread) { k.cancelWait(t) })
}

func (k *Kernel) destroySignalContext(sc *SignalContext) {
	if sc.receiver != nil {
		k.log.Warn("destroying undissolved signal context", "context", sc.name(), "receiver", sc.receiver.name())
		k.dissolve(sc)
	}
	k.irqs.Each(func(q *Irq) {
		if q.ctx == sc {
			k.log.Warn("irq lost its signal context", "line", q.line, "context", sc.name())
			q.ctx = nil
		}
	})
	k.vms.Each(func(v *Vm) {
		if v.ctx == sc {
			v.ctx = nil
		}
	})
	k.threads.Each(func(t *Thread) {
		if t.fault == sc {
			t.fault = nil
		}
	})
}
