// Package kernel is the core of a hosted capability microkernel.
//
// Threads, virtual CPUs, protection domains, signal receivers, signal
// contexts and interrupt objects live in fixed-size pools and are named
// only by capabilities. Every CPU runs a priority scheduler; user code of a
// thread runs on its own goroutine and enters the kernel through its
// Context. All kernel state is serialized by one kernel lock.
package kernel

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"hwkern/kernos/kernel/sched"
)

// Limits bound the number of objects of each kind.
type Limits struct {
	Threads         int
	Vms             int
	Pds             int
	SignalReceivers int
	SignalContexts  int
	Irqs            int
	Capabilities    int
}

// DefaultLimits returns the limits used for zero fields of Options.Limits.
func DefaultLimits() Limits {
	return Limits{
		Threads:         64,
		Vms:             8,
		Pds:             16,
		SignalReceivers: 64,
		SignalContexts:  128,
		Irqs:            32,
		Capabilities:    512,
	}
}

func (l Limits) withDefaults() Limits {
	d := DefaultLimits()
	set := func(v *int, def int) {
		if *v <= 0 {
			*v = def
		}
	}
	set(&l.Threads, d.Threads)
	set(&l.Vms, d.Vms)
	set(&l.Pds, d.Pds)
	set(&l.SignalReceivers, d.SignalReceivers)
	set(&l.SignalContexts, d.SignalContexts)
	set(&l.Irqs, d.Irqs)
	set(&l.Capabilities, d.Capabilities)
	return l
}

// Options configure a kernel.
type Options struct {
	CPUs        int
	TimeSlice   uint32 // ticks per round-robin lap
	MaxPriority uint8
	Limits      Limits

	// IRQ is the interrupt controller. Without one the kernel accepts
	// interrupts only through HandleInterrupt, on IRQLines lines.
	IRQ      InterruptController
	IRQLines int

	Logger  *slog.Logger
	Console io.Writer
	Tracer  Tracer
}

const (
	defaultTimeSlice   = 10
	defaultMaxPriority = 7
	defaultIRQLines    = 32
	maxCPUs            = 64
)

// Kernel owns every kernel object and CPU.
type Kernel struct {
	mu sync.Mutex

	log     *slog.Logger
	console io.Writer
	tracer  Tracer
	irq     InterruptController

	caps      *CapTable
	threads   *Pool[Thread]
	vms       *Pool[Vm]
	pds       *Pool[Pd]
	receivers *Pool[SignalReceiver]
	contexts  *Pool[SignalContext]
	irqs      *Pool[Irq]
	lines     irqLines

	cpus    []*CPU
	core    *Pd
	cur     *CPU
	ticks   uint64
	seq     uint64
	orphans int
	closed  bool
}

// New boots a kernel: it reserves every pool and creates the core
// protection domain and one idle thread per CPU.
func New(opts Options) (*Kernel, error) {
	if opts.CPUs <= 0 {
		opts.CPUs = 1
	}
	if opts.CPUs > maxCPUs {
		return nil, fmt.Errorf("%d cpus, at most %d: %w", opts.CPUs, maxCPUs, ErrInvalidArgument)
	}
	if opts.TimeSlice == 0 {
		opts.TimeSlice = defaultTimeSlice
	}
	if opts.MaxPriority == 0 {
		opts.MaxPriority = defaultMaxPriority
	}
	lim := opts.Limits.withDefaults()

	k := &Kernel{
		log:     opts.Logger,
		console: opts.Console,
		tracer:  opts.Tracer,
		irq:     opts.IRQ,
	}
	if k.log == nil {
		k.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if k.console == nil {
		k.console = io.Discard
	}
	if k.irq == nil {
		n := opts.IRQLines
		if n <= 0 {
			n = defaultIRQLines
		}
		k.irq = noController{lines: n}
	}

	internal := 1 + opts.CPUs // core pd and idle threads
	k.caps = NewCapTable(lim.Capabilities + internal)
	k.threads = NewPool[Thread](KindThread, lim.Threads+opts.CPUs)
	k.vms = NewPool[Vm](KindVm, lim.Vms)
	k.pds = NewPool[Pd](KindPd, lim.Pds+1)
	k.receivers = NewPool[SignalReceiver](KindSignalReceiver, lim.SignalReceivers)
	k.contexts = NewPool[SignalContext](KindSignalContext, lim.SignalContexts)
	k.irqs = NewPool[Irq](KindIrq, lim.Irqs)
	k.lines = newIrqLines(k.irq.Lines())

	core, err := k.newPd(PdArgs{Label: "core"})
	if err != nil {
		return nil, err
	}
	core.core = true
	k.core = core
	if err := k.bind(&core.object, core); err != nil {
		return nil, err
	}

	for i := 0; i < opts.CPUs; i++ {
		c := &CPU{id: i, k: k, wake: make(chan struct{}, 1)}
		idle, err := k.newIdle(c)
		if err != nil {
			return nil, err
		}
		c.idle = idle
		c.sched = sched.New[Job](i, &idle.entry, opts.MaxPriority, opts.TimeSlice)
		k.cpus = append(k.cpus, c)
	}
	k.log.Info("kernel up", "cpus", opts.CPUs, "time_slice", opts.TimeSlice,
		"max_priority", opts.MaxPriority, "irq_lines", k.irq.Lines(), "caps", k.caps.Cap())
	return k, nil
}

func (k *Kernel) newIdle(c *CPU) (*Thread, error) {
	h, t, err := k.threads.Reserve()
	if err != nil {
		return nil, err
	}
	t.object = object{kind: KindThread, handle: h, label: fmt.Sprintf("idle%d", c.id)}
	t.idle = true
	t.pd = k.core
	t.cpu = c
	t.state = ThreadScheduled
	t.entry.Init(t, 0, uint64(1)<<uint(c.id))
	if err := k.threads.Publish(h); err != nil {
		return nil, err
	}
	k.core.threads++
	return t, k.bind(&t.object, k.core)
}

// bind gives a kernel-created object its capability.
func (k *Kernel) bind(o *object, owner *Pd) error {
	id, err := k.caps.Allocate()
	if err != nil {
		return err
	}
	c, err := k.caps.Insert(id, o.ref(), owner)
	if err != nil {
		k.caps.Discard(id)
		return err
	}
	o.cap = c
	o.owner = owner
	return nil
}

// CPUs returns the CPUs of the kernel.
func (k *Kernel) CPUs() []*CPU { return k.cpus }

// CorePd returns the capability of the core protection domain.
func (k *Kernel) CorePd() Capability { return k.core.cap }

// TickTo advances kernel time to seq and wakes every CPU. Time never goes
// backwards.
func (k *Kernel) TickTo(seq uint64) {
	k.mu.Lock()
	if seq > k.ticks {
		k.ticks = seq
	}
	k.mu.Unlock()
	k.Wake()
}

// Ticks returns the current kernel time.
func (k *Kernel) Ticks() uint64 {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.ticks
}

// Wake makes every idle CPU look for work, e.g. after an interrupt was
// raised at the controller.
func (k *Kernel) Wake() {
	for _, c := range k.cpus {
		c.wakeup()
	}
}

// Run runs every CPU on its own goroutine until ctx is done.
func (k *Kernel) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, c := range k.cpus {
		c := c
		g.Go(func() error { return c.Run(ctx) })
	}
	return g.Wait()
}

// RunUntilIdle steps all CPUs in turn on the calling goroutine until none
// has work left. It reports false if limit steps did not suffice.
func (k *Kernel) RunUntilIdle(limit int) bool {
	for steps := 0; steps < limit; {
		for _, c := range k.cpus {
			select {
			case <-c.wake:
			default:
			}
		}
		busy := false
		for _, c := range k.cpus {
			if !c.Step() {
				busy = true
			}
			steps++
		}
		if busy {
			continue
		}
		woken := false
		for _, c := range k.cpus {
			if len(c.wake) > 0 {
				woken = true
			}
		}
		if !woken {
			return true
		}
	}
	return false
}

// Close terminates the user code of every thread. The kernel must not run
// afterwards.
func (k *Kernel) Close() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return
	}
	k.closed = true
	k.threads.Each(func(t *Thread) {
		if t.u != nil && !t.running {
			t.u.terminate()
		}
	})
}

// HandleInterrupt is the interrupt entry for one trigger of line.
func (k *Kernel) HandleInterrupt(line int) {
	k.mu.Lock()
	k.interrupt(line)
	k.mu.Unlock()
}

// Reclaim destroys objects whose last capability was dropped. Idle CPUs
// reclaim on their own.
func (k *Kernel) Reclaim() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.reclaim()
}

func (k *Kernel) reclaim() int {
	if k.orphans == 0 {
		return 0
	}
	var refs []ObjectRef
	collect := func(o *object) {
		if o.orphaned {
			refs = append(refs, o.ref())
		}
	}
	k.threads.Each(func(t *Thread) { collect(&t.object) })
	k.vms.Each(func(v *Vm) { collect(&v.object) })
	k.irqs.Each(func(q *Irq) { collect(&q.object) })
	k.contexts.Each(func(sc *SignalContext) { collect(&sc.object) })
	k.receivers.Each(func(r *SignalReceiver) { collect(&r.object) })
	k.pds.Each(func(p *Pd) { collect(&p.object) })
	k.orphans = 0
	n := 0
	for _, ref := range refs {
		if err := k.destroyRef(ref); err != nil {
			k.log.Debug("reclaim", "object", ref.Kind, "err", err)
			continue
		}
		n++
	}
	if n > 0 {
		k.log.Debug("reclaimed orphaned objects", "count", n)
	}
	return n
}

func (k *Kernel) violation(msg string, args ...any) {
	k.log.Error("kernel invariant violation: "+msg, args...)
	k.emit(EvViolation, nil, 0, 0)
}

// create builds an object of args.Kind() accounted to owner or, if args
// name no owner, to caller. Nothing is left behind on failure.
func (k *Kernel) create(caller *Pd, args ObjectArgs) (Capability, error) {
	label, ownerCap := args.common()
	owner := caller
	if ownerCap.Valid() {
		p, err := k.pdOf(ownerCap)
		if err != nil {
			return Capability{}, fmt.Errorf("owner: %w", err)
		}
		owner = p
	}
	id, err := k.caps.Allocate()
	if err != nil {
		return Capability{}, err
	}

	var o *object
	switch a := args.(type) {
	case ThreadArgs:
		var t *Thread
		if t, err = k.newThread(a); err == nil {
			o = &t.object
		}
	case PdArgs:
		var p *Pd
		if p, err = k.newPd(a); err == nil {
			o = &p.object
		}
	case ReceiverArgs:
		var r *SignalReceiver
		if r, err = k.newReceiver(a); err == nil {
			o = &r.object
		}
	case ContextArgs:
		var sc *SignalContext
		if sc, err = k.newSignalContext(a); err == nil {
			o = &sc.object
		}
	case IrqArgs:
		var q *Irq
		if q, err = k.newIrq(a); err == nil {
			o = &q.object
		}
	case VmArgs:
		var v *Vm
		if v, err = k.newVm(a); err == nil {
			o = &v.object
		}
	default:
		err = fmt.Errorf("create %T: %w", args, ErrInvalidArgument)
	}
	if err != nil {
		k.caps.Discard(id)
		return Capability{}, fmt.Errorf("create %s %q: %w", args.Kind(), label, err)
	}

	c, err := k.caps.Insert(id, o.ref(), owner)
	if err != nil {
		k.caps.Discard(id)
		k.teardown(o.ref())
		return Capability{}, err
	}
	o.cap = c
	o.owner = owner
	k.emit(EvCreate, o, 0, 0)
	k.log.Debug("object created", "kind", o.kind, "label", label, "cap", c, "owner", owner.name())
	return c, nil
}

// destroyRef revokes the capability of ref's object and destroys it.
func (k *Kernel) destroyRef(ref ObjectRef) error {
	o := k.object(ref)
	if o == nil {
		return fmt.Errorf("destroy stale %s: %w", ref.Kind, ErrInvalidCapability)
	}
	switch ref.Kind {
	case KindThread:
		if t, _ := k.threads.Lookup(ref.Handle); t.idle {
			return fmt.Errorf("destroy idle thread %s: %w", t.name(), ErrDenied)
		}
	case KindPd:
		p, _ := k.pds.Lookup(ref.Handle)
		if err := k.destroyPd(p); err != nil {
			return err
		}
	}
	k.caps.Revoke(o.cap)
	k.emit(EvDestroy, o, 0, 0)
	k.log.Debug("object destroyed", "kind", o.kind, "label", o.name())
	k.teardown(ref)
	return nil
}

// teardown destroys the kind state of ref's object and retires its slot.
// Threads and VMs still holding a CPU are retired by that CPU.
func (k *Kernel) teardown(ref ObjectRef) {
	var err error
	switch ref.Kind {
	case KindThread:
		t, _ := k.threads.Lookup(ref.Handle)
		if k.destroyThread(t) {
			return
		}
		err = k.threads.Retire(ref.Handle)
	case KindVm:
		v, _ := k.vms.Lookup(ref.Handle)
		if k.destroyVm(v) {
			return
		}
		err = k.vms.Retire(ref.Handle)
	case KindPd:
		err = k.pds.Retire(ref.Handle)
	case KindSignalReceiver:
		r, _ := k.receivers.Lookup(ref.Handle)
		k.destroyReceiver(r)
		err = k.receivers.Retire(ref.Handle)
	case KindSignalContext:
		sc, _ := k.contexts.Lookup(ref.Handle)
		k.destroySignalContext(sc)
		err = k.contexts.Retire(ref.Handle)
	case KindIrq:
		q, _ := k.irqs.Lookup(ref.Handle)
		k.destroyIrq(q)
		err = k.irqs.Retire(ref.Handle)
	}
	if err != nil {
		k.violation("teardown", "kind", ref.Kind, "err", err)
	}
}

// object returns the common part of the live object at ref.
func (k *Kernel) object(ref ObjectRef) *object {
	switch ref.Kind {
	case KindThread:
		if t, ok := k.threads.Lookup(ref.Handle); ok && !t.zombie {
			return &t.object
		}
	case KindVm:
		if v, ok := k.vms.Lookup(ref.Handle); ok && !v.zombie {
			return &v.object
		}
	case KindPd:
		if p, ok := k.pds.Lookup(ref.Handle); ok {
			return &p.object
		}
	case KindSignalReceiver:
		if r, ok := k.receivers.Lookup(ref.Handle); ok {
			return &r.object
		}
	case KindSignalContext:
		if sc, ok := k.contexts.Lookup(ref.Handle); ok {
			return &sc.object
		}
	case KindIrq:
		if q, ok := k.irqs.Lookup(ref.Handle); ok {
			return &q.object
		}
	}
	return nil
}

func (k *Kernel) lookup(c Capability, kind Kind) (ObjectRef, error) {
	ref, err := k.caps.Lookup(c, kind)
	if err != nil {
		return ObjectRef{}, err
	}
	if k.object(ref) == nil {
		return ObjectRef{}, fmt.Errorf("%s names a destroyed %s: %w", c, kind, ErrInvalidCapability)
	}
	return ref, nil
}

func (k *Kernel) threadOf(c Capability) (*Thread, error) {
	ref, err := k.lookup(c, KindThread)
	if err != nil {
		return nil, err
	}
	t, _ := k.threads.Lookup(ref.Handle)
	if t.idle {
		return nil, fmt.Errorf("%s is an idle thread: %w", c, ErrDenied)
	}
	return t, nil
}

func (k *Kernel) vmOf(c Capability) (*Vm, error) {
	ref, err := k.lookup(c, KindVm)
	if err != nil {
		return nil, err
	}
	v, _ := k.vms.Lookup(ref.Handle)
	return v, nil
}

func (k *Kernel) pdOf(c Capability) (*Pd, error) {
	ref, err := k.lookup(c, KindPd)
	if err != nil {
		return nil, err
	}
	p, _ := k.pds.Lookup(ref.Handle)
	return p, nil
}

func (k *Kernel) receiverOf(c Capability) (*SignalReceiver, error) {
	ref, err := k.lookup(c, KindSignalReceiver)
	if err != nil {
		return nil, err
	}
	r, _ := k.receivers.Lookup(ref.Handle)
	return r, nil
}

func (k *Kernel) contextOf(c Capability) (*SignalContext, error) {
	ref, err := k.lookup(c, KindSignalContext)
	if err != nil {
		return nil, err
	}
	sc, _ := k.contexts.Lookup(ref.Handle)
	return sc, nil
}

func (k *Kernel) irqOf(c Capability) (*Irq, error) {
	ref, err := k.lookup(c, KindIrq)
	if err != nil {
		return nil, err
	}
	q, _ := k.irqs.Lookup(ref.Handle)
	return q, nil
}
