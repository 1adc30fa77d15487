package kernel

import (
	"fmt"

	"hwkern/kernos/kernel/sched"
)

// ThreadState is the life cycle state of a thread.
type ThreadState uint8

const (
	ThreadAwaitsStart ThreadState = iota
	ThreadScheduled
	ThreadAwaitsResume
	ThreadAwaitsSignal
	ThreadStopped
)

func (s ThreadState) String() string {
	switch s {
	case ThreadAwaitsStart:
		return "awaits-start"
	case ThreadScheduled:
		return "scheduled"
	case ThreadAwaitsResume:
		return "awaits-resume"
	case ThreadAwaitsSignal:
		return "awaits-signal"
	case ThreadStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Regs is the register file of a thread. R[0] holds the status of the last
// kernel call.
type Regs struct {
	IP uint64
	SP uint64
	R  [8]uint64
}

// Thread is a kernel-scheduled thread of user code.
type Thread struct {
	object

	entry sched.Entry[Job]
	state ThreadState
	pd    *Pd
	cpu   *CPU
	body  func(*Context)
	u     *uthread
	regs  Regs

	reply  reply // handed to user code on the next proceed
	trap   trap  // written by the proceeding CPU
	parked *call // trapped while paused, handled on resume

	wait     link[Thread]
	receiver *SignalReceiver
	fault    *SignalContext
	lastErr  string

	idle    bool
	running bool // user code holds its CPU
	zombie  bool // destroyed while running

	dispatches uint64
	calls      uint64
}

func (t *Thread) State() ThreadState { return t.state }
func (t *Thread) obj() *object       { return &t.object }

// Proceed lends c to the thread's user code. The idle thread has nothing to
// run.
func (t *Thread) Proceed(c *CPU) func() {
	if t.idle {
		return nil
	}
	t.running = true
	t.dispatches++
	u, rep := t.u, t.reply
	t.reply = reply{}
	return func() {
		t.trap = u.run(rep)
	}
}

// HandleException processes the trap that ended the last Proceed.
func (t *Thread) HandleException(c *CPU) {
	k := c.k
	if t.idle {
		k.reclaim()
		return
	}
	t.running = false
	tr := t.trap
	t.trap = trap{}
	if t.zombie {
		k.finishThread(t)
		return
	}
	switch tr.kind {
	case trapCall:
		k.handleCall(t, tr.call)
	case trapExit:
		k.stopThread(t, nil)
	case trapFault:
		k.stopThread(t, &tr)
	}
}

func (k *Kernel) newThread(a ThreadArgs) (*Thread, error) {
	if a.Body == nil {
		return nil, fmt.Errorf("thread %q without body: %w", a.Label, ErrInvalidArgument)
	}
	h, t, err := k.threads.Reserve()
	if err != nil {
		return nil, err
	}
	t.object = object{kind: KindThread, handle: h, label: a.Label}
	t.body = a.Body
	t.entry.Init(t, a.Priority, a.Affinity)
	if err := k.threads.Publish(h); err != nil {
		k.threads.Unreserve(h)
		return nil, err
	}
	return t, nil
}

func (k *Kernel) handleCall(t *Thread, cl *call) {
	if t.state != ThreadScheduled {
		// Paused by another CPU while its user code ran.
		t.parked = cl
		return
	}
	t.calls++
	h := t.handle
	rep, blocked := k.dispatch(t, cl)
	if blocked {
		return
	}
	if _, ok := k.threads.Lookup(h); !ok {
		return // destroyed itself
	}
	k.complete(t, rep)
}

// complete finishes the pending call of t with rep. A thread blocked in a
// signal wait becomes runnable again.
func (k *Kernel) complete(t *Thread, rep reply) {
	t.reply = rep
	t.regs.R[0] = status(rep.err)
	if rep.err != nil {
		t.lastErr = rep.err.Error()
	}
	if t.state == ThreadAwaitsSignal {
		k.schedule(t)
	}
}

// schedule makes t runnable on its CPU.
func (k *Kernel) schedule(t *Thread) {
	t.state = ThreadScheduled
	if err := t.cpu.sched.Insert(&t.entry); err != nil {
		k.violation("schedule thread", "thread", t.name(), "err", err)
	}
	t.cpu.wakeup()
	if cl := t.parked; cl != nil {
		t.parked = nil
		k.handleCall(t, cl)
	}
}

// block takes t out of scheduling and leaves it in state st.
func (k *Kernel) block(t *Thread, st ThreadState) {
	t.state = st
	k.dequeue(t.cpu, &t.entry, st == ThreadAwaitsSignal)
}

func (k *Kernel) dequeue(c *CPU, e *sched.Entry[Job], blocked bool) {
	if c == nil {
		return
	}
	if s := e.State(); s != sched.Ready && s != sched.Running {
		return
	}
	if err := c.sched.Remove(e, blocked); err != nil {
		k.violation("dequeue", "err", err)
	}
}

func (k *Kernel) startThread(t *Thread, pd *Pd, c *CPU) error {
	if t.idle || t.state != ThreadAwaitsStart {
		return fmt.Errorf("start %s in state %s: %w", t.name(), t.state, ErrBadState)
	}
	if !t.entry.Allows(c.id) {
		return fmt.Errorf("start %s on cpu %d: affinity: %w", t.name(), c.id, ErrInvalidArgument)
	}
	t.pd = pd
	pd.threads++
	t.cpu = c
	t.u = newUthread(t.body, &Context{self: t.cap})
	k.schedule(t)
	return nil
}

func (k *Kernel) pauseThread(t *Thread) error {
	switch t.state {
	case ThreadAwaitsResume:
		return nil
	case ThreadScheduled:
		k.block(t, ThreadAwaitsResume)
		return nil
	default:
		return fmt.Errorf("pause %s in state %s: %w", t.name(), t.state, ErrBadState)
	}
}

// resumeThread continues a paused thread. Resuming a thread that waits for
// a signal cancels the wait.
func (k *Kernel) resumeThread(t *Thread) error {
	switch t.state {
	case ThreadScheduled:
		return nil
	case ThreadAwaitsResume:
		k.schedule(t)
		return nil
	case ThreadAwaitsSignal:
		k.cancelWait(t)
		return nil
	default:
		return fmt.Errorf("resume %s in state %s: %w", t.name(), t.state, ErrBadState)
	}
}

func (k *Kernel) migrateThread(t *Thread, c *CPU) error {
	if t.running {
		return fmt.Errorf("migrate running %s: %w", t.name(), ErrBadState)
	}
	if !t.entry.Allows(c.id) {
		return fmt.Errorf("migrate %s to cpu %d: affinity: %w", t.name(), c.id, ErrInvalidArgument)
	}
	if t.cpu == nil || t.cpu == c {
		t.cpu = c
		return nil
	}
	if t.state != ThreadScheduled {
		t.cpu = c
		return nil
	}
	k.dequeue(t.cpu, &t.entry, false)
	t.cpu = c
	if err := c.sched.Insert(&t.entry); err != nil {
		k.violation("migrate thread", "thread", t.name(), "err", err)
	}
	c.wakeup()
	return nil
}

// stopThread ends a thread whose user code returned or panicked.
func (k *Kernel) stopThread(t *Thread, fault *trap) {
	k.block(t, ThreadStopped)
	if fault == nil {
		k.log.Debug("thread exited", "thread", t.name())
		k.emit(EvExit, &t.object, 0, 0)
		return
	}
	t.lastErr = fmt.Sprint(fault.value)
	k.log.Warn("thread fault", "thread", t.name(), "panic", fault.value)
	k.emit(EvFault, &t.object, 0, 0)
	if t.fault == nil {
		k.log.Error("unhandled thread fault", "thread", t.name(), "stack", string(fault.stack))
		return
	}
	if err := k.submit(t.fault, 1); err != nil {
		k.log.Warn("fault signal not delivered", "thread", t.name(), "err", err)
	}
}

// destroyThread tears t down. It reports true when t's user code still
// holds a CPU; that CPU retires the slot once the code traps.
func (k *Kernel) destroyThread(t *Thread) bool {
	if t.state == ThreadAwaitsSignal && t.receiver != nil {
		t.receiver.waiters.remove(t)
		t.receiver = nil
	}
	k.block(t, ThreadStopped)
	t.parked = nil
	if t.pd != nil {
		t.pd.threads--
		t.pd = nil
	}
	if t.running {
		t.zombie = true
		return true
	}
	if t.u != nil {
		t.u.terminate()
	}
	return false
}

func (k *Kernel) finishThread(t *Thread) {
	if t.u != nil {
		t.u.terminate()
	}
	if err := k.threads.Retire(t.handle); err != nil {
		k.violation("retire zombie thread", "err", err)
	}
}

func (k *Kernel) readRegs(t *Thread) (Regs, error) {
	if t.running {
		return Regs{}, fmt.Errorf("read registers of running %s: %w", t.name(), ErrBadState)
	}
	return t.regs, nil
}

func (k *Kernel) writeRegs(t *Thread, r Regs) error {
	if t.running {
		return fmt.Errorf("write registers of running %s: %w", t.name(), ErrBadState)
	}
	t.regs = r
	return nil
}
