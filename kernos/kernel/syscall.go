package kernel

import (
	"errors"
	"fmt"
	"io"
)

type op uint8

const (
	opYield op = iota + 1
	opAwaitSignal
	opSignalPending
	opSubmit
	opDissolve
	opCreate
	opDestroy
	opStart
	opPause
	opResume
	opCancelBlocking
	opMigrate
	opIrqAssociate
	opIrqAck
	opIrqRelease
	opVmRun
	opVmPause
	opVmState
	opReadRegs
	opWriteRegs
	opRouteFault
	opDupCap
	opDropCap
	opPrint
)

var opNames = [...]string{
	opYield:          "yield",
	opAwaitSignal:    "await_signal",
	opSignalPending:  "signal_pending",
	opSubmit:         "submit",
	opDissolve:       "dissolve",
	opCreate:         "create_object",
	opDestroy:        "destroy_object",
	opStart:          "start_thread",
	opPause:          "pause_thread",
	opResume:         "resume_thread",
	opCancelBlocking: "cancel_blocking",
	opMigrate:        "migrate_thread",
	opIrqAssociate:   "irq_associate",
	opIrqAck:         "irq_ack",
	opIrqRelease:     "irq_release",
	opVmRun:          "run_vm",
	opVmPause:        "pause_vm",
	opVmState:        "vm_state",
	opReadRegs:       "read_regs",
	opWriteRegs:      "write_regs",
	opRouteFault:     "route_fault",
	opDupCap:         "dup_cap",
	opDropCap:        "drop_cap",
	opPrint:          "print",
}

func (o op) String() string {
	if int(o) < len(opNames) && opNames[o] != "" {
		return opNames[o]
	}
	return fmt.Sprintf("op(%d)", uint8(o))
}

// coreOnly reports whether only threads of the core domain may invoke o.
func (o op) coreOnly() bool {
	switch o {
	case opCreate, opDestroy, opStart, opMigrate, opIrqAssociate, opIrqRelease,
		opVmRun, opVmPause, opVmState, opWriteRegs, opRouteFault:
		return true
	}
	return false
}

// call is one kernel call with its arguments.
type call struct {
	op   op
	cap  Capability
	arg  Capability
	args ObjectArgs
	n    uint32
	line int
	cpu  int
	regs Regs
	text string
}

// reply is the result of a kernel call.
type reply struct {
	err    error
	cap    Capability
	signal Signal
	ok     bool
	regs   Regs
	vm     VmState
}

// Status codes stored in Regs.R[0] after a kernel call.
const (
	StatusOK uint64 = iota
	StatusOutOfIds
	StatusInvalidCapability
	StatusAlreadyAssociated
	StatusCanceled
	StatusInvariantViolation
	StatusDenied
	StatusBadState
	StatusInvalidArgument
	StatusError
)

func status(err error) uint64 {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, ErrOutOfIds):
		return StatusOutOfIds
	case errors.Is(err, ErrInvalidCapability):
		return StatusInvalidCapability
	case errors.Is(err, ErrAlreadyAssociated):
		return StatusAlreadyAssociated
	case errors.Is(err, ErrCanceled):
		return StatusCanceled
	case errors.Is(err, ErrInvariantViolation):
		return StatusInvariantViolation
	case errors.Is(err, ErrDenied):
		return StatusDenied
	case errors.Is(err, ErrBadState):
		return StatusBadState
	case errors.Is(err, ErrInvalidArgument):
		return StatusInvalidArgument
	default:
		return StatusError
	}
}

// dispatch executes cl for thread t, or for the core domain if t is nil.
// It reports blocked when t was parked and gets its reply later.
func (k *Kernel) dispatch(t *Thread, cl *call) (rep reply, blocked bool) {
	pd := k.core
	if t != nil {
		pd = t.pd
	}
	if cl.op.coreOnly() && !pd.core {
		err := fmt.Errorf("%s from pd %s: %w", cl.op, pd.name(), ErrDenied)
		k.log.Warn("kernel call denied", "op", cl.op, "pd", pd.name(), "thread", threadName(t))
		return reply{err: err}, false
	}

	rep, blocked = k.execute(t, pd, cl)
	if rep.err != nil {
		switch {
		case errors.Is(rep.err, ErrInvariantViolation):
			k.violation(cl.op.String(), "err", rep.err)
		case errors.Is(rep.err, ErrDenied):
			k.log.Warn("kernel call denied", "op", cl.op, "err", rep.err)
		default:
			k.log.Debug("kernel call failed", "op", cl.op, "err", rep.err)
		}
	}
	return rep, blocked
}

func threadName(t *Thread) string {
	if t == nil {
		return "kernel"
	}
	return t.name()
}

func (k *Kernel) execute(t *Thread, pd *Pd, cl *call) (reply, bool) {
	switch cl.op {
	case opYield:
		if t == nil {
			return reply{err: fmt.Errorf("yield outside a thread: %w", ErrBadState)}, false
		}
		if t.cpu.sched.Current() == &t.entry {
			t.cpu.sched.Yield()
		}
		return reply{}, false

	case opAwaitSignal:
		if t == nil {
			return reply{err: fmt.Errorf("await outside a thread: %w", ErrBadState)}, false
		}
		r, err := k.receiverOf(cl.cap)
		if err != nil {
			return reply{err: err}, false
		}
		sig, blocked := k.awaitSignal(t, r)
		return reply{signal: sig}, blocked

	case opSignalPending:
		r, err := k.receiverOf(cl.cap)
		if err != nil {
			return reply{err: err}, false
		}
		return reply{ok: !r.pending.empty()}, false

	case opSubmit:
		sc, err := k.contextOf(cl.cap)
		if err != nil {
			return reply{err: err}, false
		}
		return reply{err: k.submit(sc, cl.n)}, false

	case opDissolve:
		sc, err := k.contextOf(cl.cap)
		if err != nil {
			return reply{err: err}, false
		}
		k.dissolve(sc)
		return reply{}, false

	case opCreate:
		if cl.args == nil {
			return reply{err: fmt.Errorf("create without arguments: %w", ErrInvalidArgument)}, false
		}
		c, err := k.create(pd, cl.args)
		return reply{cap: c, err: err}, false

	case opIrqAssociate:
		c, err := k.create(pd, IrqArgs{Line: cl.line, Context: cl.arg, Owner: cl.cap})
		return reply{cap: c, err: err}, false

	case opDestroy, opIrqRelease:
		kind := KindInvalid
		if cl.op == opIrqRelease {
			kind = KindIrq
		}
		ref, err := k.lookup(cl.cap, kind)
		if err != nil {
			return reply{err: err}, false
		}
		return reply{err: k.destroyRef(ref)}, false

	case opStart:
		th, err := k.threadOf(cl.cap)
		if err != nil {
			return reply{err: err}, false
		}
		home := pd
		if cl.arg.Valid() {
			if home, err = k.pdOf(cl.arg); err != nil {
				return reply{err: err}, false
			}
		}
		c, err := k.cpu(cl.cpu)
		if err != nil {
			return reply{err: err}, false
		}
		return reply{err: k.startThread(th, home, c)}, false

	case opPause, opResume, opCancelBlocking, opReadRegs:
		th, err := k.threadOf(cl.cap)
		if err != nil {
			return reply{err: err}, false
		}
		if !pd.core && th.pd != pd {
			return reply{err: fmt.Errorf("%s of %s: %w", cl.op, th.name(), ErrDenied)}, false
		}
		switch cl.op {
		case opPause:
			return reply{err: k.pauseThread(th)}, false
		case opResume:
			return reply{err: k.resumeThread(th)}, false
		case opCancelBlocking:
			k.cancelWait(th)
			return reply{}, false
		default:
			if !pd.core && th != t {
				return reply{err: fmt.Errorf("read registers of %s: %w", th.name(), ErrDenied)}, false
			}
			regs, err := k.readRegs(th)
			return reply{regs: regs, err: err}, false
		}

	case opWriteRegs:
		th, err := k.threadOf(cl.cap)
		if err != nil {
			return reply{err: err}, false
		}
		return reply{err: k.writeRegs(th, cl.regs)}, false

	case opMigrate:
		th, err := k.threadOf(cl.cap)
		if err != nil {
			return reply{err: err}, false
		}
		c, err := k.cpu(cl.cpu)
		if err != nil {
			return reply{err: err}, false
		}
		return reply{err: k.migrateThread(th, c)}, false

	case opRouteFault:
		th, err := k.threadOf(cl.cap)
		if err != nil {
			return reply{err: err}, false
		}
		if !cl.arg.Valid() {
			th.fault = nil
			return reply{}, false
		}
		sc, err := k.contextOf(cl.arg)
		if err != nil {
			return reply{err: err}, false
		}
		th.fault = sc
		return reply{}, false

	case opIrqAck:
		q, err := k.irqOf(cl.cap)
		if err != nil {
			return reply{err: err}, false
		}
		k.ackIrq(q)
		return reply{}, false

	case opVmRun, opVmPause, opVmState:
		v, err := k.vmOf(cl.cap)
		if err != nil {
			return reply{err: err}, false
		}
		switch cl.op {
		case opVmRun:
			k.runVm(v)
			return reply{}, false
		case opVmPause:
			k.pauseVm(v)
			return reply{}, false
		default:
			st, err := k.vmState(v)
			return reply{vm: st, err: err}, false
		}

	case opDupCap:
		if err := k.caps.IncRef(cl.cap); err != nil {
			return reply{err: err}, false
		}
		return reply{cap: cl.cap}, false

	case opDropCap:
		return reply{err: k.dropCap(cl.cap)}, false

	case opPrint:
		return reply{err: k.print(cl.text)}, false
	}
	return reply{err: fmt.Errorf("%s: %w", cl.op, ErrInvalidArgument)}, false
}

func (k *Kernel) dropCap(c Capability) error {
	ref, released, err := k.caps.DecRef(c)
	if err != nil || !released {
		return err
	}
	if o := k.object(ref); o != nil && !o.orphaned {
		o.orphaned = true
		k.orphans++
	}
	return nil
}

// print writes text to the kernel console. A single NUL byte prints the
// activity table instead.
func (k *Kernel) print(text string) error {
	if text == "\x00" {
		_, err := k.snapshot().WriteTo(k.console)
		return err
	}
	_, err := io.WriteString(k.console, text)
	return err
}

// invoke runs cl on behalf of the core domain.
func (k *Kernel) invoke(cl call) reply {
	k.mu.Lock()
	defer k.mu.Unlock()
	rep, _ := k.dispatch(nil, &cl)
	return rep
}

// CreateObject creates an object of kind. args must be the argument type of
// that kind.
func (k *Kernel) CreateObject(kind Kind, args ObjectArgs) (Capability, error) {
	if args == nil || args.Kind() != kind {
		return Capability{}, fmt.Errorf("create %s with %T: %w", kind, args, ErrInvalidArgument)
	}
	rep := k.invoke(call{op: opCreate, args: args})
	return rep.cap, rep.err
}

// DestroyObject destroys the object named by c and revokes c.
func (k *Kernel) DestroyObject(c Capability) error {
	return k.invoke(call{op: opDestroy, cap: c}).err
}

// StartThread starts th on cpu as a member of pd. The zero pd means the
// core domain.
func (k *Kernel) StartThread(th, pd Capability, cpu int) error {
	return k.invoke(call{op: opStart, cap: th, arg: pd, cpu: cpu}).err
}

func (k *Kernel) PauseThread(th Capability) error {
	return k.invoke(call{op: opPause, cap: th}).err
}

func (k *Kernel) ResumeThread(th Capability) error {
	return k.invoke(call{op: opResume, cap: th}).err
}

// CancelBlocking aborts a signal wait of th with ErrCanceled. It does
// nothing if th is not waiting.
func (k *Kernel) CancelBlocking(th Capability) error {
	return k.invoke(call{op: opCancelBlocking, cap: th}).err
}

func (k *Kernel) MigrateThread(th Capability, cpu int) error {
	return k.invoke(call{op: opMigrate, cap: th, cpu: cpu}).err
}

// Submit adds n to the pending count of a signal context.
func (k *Kernel) Submit(sc Capability, n uint32) error {
	return k.invoke(call{op: opSubmit, cap: sc, n: n}).err
}

func (k *Kernel) Dissolve(sc Capability) error {
	return k.invoke(call{op: opDissolve, cap: sc}).err
}

// SignalPending reports whether receiver r has a context queued.
func (k *Kernel) SignalPending(r Capability) (bool, error) {
	rep := k.invoke(call{op: opSignalPending, cap: r})
	return rep.ok, rep.err
}

// IrqAssociate claims line and routes it to signal context sc.
func (k *Kernel) IrqAssociate(line int, sc Capability) (Capability, error) {
	rep := k.invoke(call{op: opIrqAssociate, line: line, arg: sc})
	return rep.cap, rep.err
}

func (k *Kernel) IrqAck(irq Capability) error {
	return k.invoke(call{op: opIrqAck, cap: irq}).err
}

// IrqRelease masks and frees the line of irq and destroys irq.
func (k *Kernel) IrqRelease(irq Capability) error {
	return k.invoke(call{op: opIrqRelease, cap: irq}).err
}

func (k *Kernel) RunVm(vm Capability) error {
	return k.invoke(call{op: opVmRun, cap: vm}).err
}

func (k *Kernel) PauseVm(vm Capability) error {
	return k.invoke(call{op: opVmPause, cap: vm}).err
}

func (k *Kernel) VmState(vm Capability) (VmState, error) {
	rep := k.invoke(call{op: opVmState, cap: vm})
	return rep.vm, rep.err
}

func (k *Kernel) ReadRegs(th Capability) (Regs, error) {
	rep := k.invoke(call{op: opReadRegs, cap: th})
	return rep.regs, rep.err
}

func (k *Kernel) WriteRegs(th Capability, r Regs) error {
	return k.invoke(call{op: opWriteRegs, cap: th, regs: r}).err
}

// RouteFault makes faults of th submit sc. The zero sc removes the route.
func (k *Kernel) RouteFault(th, sc Capability) error {
	return k.invoke(call{op: opRouteFault, cap: th, arg: sc}).err
}

// DupCap adds a reference to c and returns the copy.
func (k *Kernel) DupCap(c Capability) (Capability, error) {
	rep := k.invoke(call{op: opDupCap, cap: c})
	return rep.cap, rep.err
}

// DropCap drops a reference to c. Dropping the last one orphans the object;
// Reclaim destroys it.
func (k *Kernel) DropCap(c Capability) error {
	return k.invoke(call{op: opDropCap, cap: c}).err
}

// PrintChar writes ch to the console. 0 prints the activity table.
func (k *Kernel) PrintChar(ch byte) error {
	return k.invoke(call{op: opPrint, text: string([]byte{ch})}).err
}
