package kernel

import (
	"fmt"

	"hwkern/kernos/kernel/sched"
)

// ExitReason tells why a guest gave back its CPU.
type ExitReason uint8

const (
	// ExitYield ends the time slice; the VM stays scheduled.
	ExitYield ExitReason = iota
	ExitHalt
	ExitIO
	ExitFault
)

func (r ExitReason) String() string {
	switch r {
	case ExitYield:
		return "yield"
	case ExitHalt:
		return "halt"
	case ExitIO:
		return "io"
	case ExitFault:
		return "fault"
	default:
		return "unknown"
	}
}

// VmExit describes one guest exit.
type VmExit struct {
	Reason ExitReason
	Code   uint64
}

// VmState is the virtual CPU state a guest runs on.
type VmState struct {
	Regs  Regs
	Exits uint64
	Last  VmExit
}

// Guest is the code of a virtual machine. Run executes until the next exit
// and is called without the kernel lock.
type Guest interface {
	Run(*VmState) VmExit
}

// GuestFunc adapts a function to Guest.
type GuestFunc func(*VmState) VmExit

func (f GuestFunc) Run(s *VmState) VmExit { return f(s) }

// Vm is a virtual CPU. It is scheduled like a thread, at priority 0 unless
// created otherwise.
type Vm struct {
	object

	entry sched.Entry[Job]
	cpu   *CPU
	guest Guest
	ctx   *SignalContext
	state VmState
	exit  VmExit

	active  bool // between run and pause
	running bool
	zombie  bool

	dispatches uint64
}

func (v *Vm) obj() *object { return &v.object }

func (v *Vm) Proceed(c *CPU) func() {
	v.running = true
	v.dispatches++
	return func() {
		v.exit = runGuest(v.guest, &v.state)
	}
}

func (v *Vm) HandleException(c *CPU) {
	k := c.k
	v.running = false
	if v.zombie {
		if err := k.vms.Retire(v.handle); err != nil {
			k.violation("retire zombie vm", "err", err)
		}
		return
	}
	v.state.Exits++
	v.state.Last = v.exit
	if v.exit.Reason == ExitYield {
		if c.sched.Current() == &v.entry {
			c.sched.Yield()
		}
		return
	}
	k.log.Debug("vm exit", "vm", v.name(), "reason", v.exit.Reason, "code", v.exit.Code)
	k.pauseVm(v)
	if v.ctx == nil {
		k.log.Warn("vm exit without signal context", "vm", v.name(), "reason", v.exit.Reason)
		return
	}
	if err := k.submit(v.ctx, 1); err != nil {
		k.log.Warn("vm exit signal not delivered", "vm", v.name(), "err", err)
	}
}

func runGuest(g Guest, s *VmState) (exit VmExit) {
	defer func() {
		if r := recover(); r != nil {
			exit = VmExit{Reason: ExitFault}
		}
	}()
	return g.Run(s)
}

func (k *Kernel) newVm(a VmArgs) (*Vm, error) {
	if a.Guest == nil {
		return nil, fmt.Errorf("vm %q without guest: %w", a.Label, ErrInvalidArgument)
	}
	c, err := k.cpu(a.CPU)
	if err != nil {
		return nil, err
	}
	var sc *SignalContext
	if a.Context.Valid() {
		if sc, err = k.contextOf(a.Context); err != nil {
			return nil, err
		}
	}
	h, v, err := k.vms.Reserve()
	if err != nil {
		return nil, err
	}
	v.object = object{kind: KindVm, handle: h, label: a.Label}
	v.entry.Init(v, a.Priority, sched.AnyCPU)
	v.cpu = c
	v.guest = a.Guest
	v.ctx = sc
	if err := k.vms.Publish(h); err != nil {
		k.vms.Unreserve(h)
		return nil, err
	}
	return v, nil
}

func (k *Kernel) runVm(v *Vm) {
	if v.active {
		return
	}
	v.active = true
	if err := v.cpu.sched.Insert(&v.entry); err != nil {
		k.violation("run vm", "vm", v.name(), "err", err)
	}
	v.cpu.wakeup()
}

func (k *Kernel) pauseVm(v *Vm) {
	if !v.active {
		return
	}
	v.active = false
	k.dequeue(v.cpu, &v.entry, false)
}

func (k *Kernel) vmState(v *Vm) (VmState, error) {
	if v.running {
		return VmState{}, fmt.Errorf("state of running %s: %w", v.name(), ErrBadState)
	}
	return v.state, nil
}

// destroyVm reports true when the guest still holds a CPU.
func (k *Kernel) destroyVm(v *Vm) bool {
	k.pauseVm(v)
	v.ctx = nil
	if v.running {
		v.zombie = true
		return true
	}
	return false
}
