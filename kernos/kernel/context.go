package kernel

import "fmt"

// Context is the kernel interface of one thread. Its methods trap into the
// kernel and must only be called by the thread's own code.
type Context struct {
	u    *uthread
	self Capability
}

// Self returns the capability of the calling thread.
func (c *Context) Self() Capability { return c.self }

func (c *Context) call(cl call) reply {
	return c.u.enter(trap{kind: trapCall, call: &cl})
}

// Yield ends the time slice of the calling thread.
func (c *Context) Yield() {
	c.call(call{op: opYield})
}

// AwaitSignal blocks until receiver r has a pending context and returns its
// imprint and coalesced count. A canceled wait returns ErrCanceled.
func (c *Context) AwaitSignal(r Capability) (Signal, error) {
	rep := c.call(call{op: opAwaitSignal, cap: r})
	return rep.signal, rep.err
}

// SignalPending reports whether receiver r has a context queued.
func (c *Context) SignalPending(r Capability) (bool, error) {
	rep := c.call(call{op: opSignalPending, cap: r})
	return rep.ok, rep.err
}

// Submit adds n to the pending count of signal context sc.
func (c *Context) Submit(sc Capability, n uint32) error {
	return c.call(call{op: opSubmit, cap: sc, n: n}).err
}

// Dissolve unlinks signal context sc from its receiver.
func (c *Context) Dissolve(sc Capability) error {
	return c.call(call{op: opDissolve, cap: sc}).err
}

// CreateObject creates an object; see Kernel.CreateObject.
func (c *Context) CreateObject(kind Kind, args ObjectArgs) (Capability, error) {
	if args == nil || args.Kind() != kind {
		return Capability{}, fmt.Errorf("create %s with %T: %w", kind, args, ErrInvalidArgument)
	}
	rep := c.call(call{op: opCreate, args: args})
	return rep.cap, rep.err
}

func (c *Context) Destroy(obj Capability) error {
	return c.call(call{op: opDestroy, cap: obj}).err
}

// StartThread starts th on cpu in pd. The zero pd means the caller's domain.
func (c *Context) StartThread(th, pd Capability, cpu int) error {
	return c.call(call{op: opStart, cap: th, arg: pd, cpu: cpu}).err
}

// Pause stops th until it is resumed. A thread may pause itself.
func (c *Context) Pause(th Capability) error {
	return c.call(call{op: opPause, cap: th}).err
}

func (c *Context) Resume(th Capability) error {
	return c.call(call{op: opResume, cap: th}).err
}

func (c *Context) CancelBlocking(th Capability) error {
	return c.call(call{op: opCancelBlocking, cap: th}).err
}

func (c *Context) MigrateThread(th Capability, cpu int) error {
	return c.call(call{op: opMigrate, cap: th, cpu: cpu}).err
}

func (c *Context) IrqAssociate(line int, sc Capability) (Capability, error) {
	rep := c.call(call{op: opIrqAssociate, line: line, arg: sc})
	return rep.cap, rep.err
}

// IrqAck unmasks the line of irq once the device has been serviced.
func (c *Context) IrqAck(irq Capability) error {
	return c.call(call{op: opIrqAck, cap: irq}).err
}

func (c *Context) IrqRelease(irq Capability) error {
	return c.call(call{op: opIrqRelease, cap: irq}).err
}

func (c *Context) RunVm(vm Capability) error {
	return c.call(call{op: opVmRun, cap: vm}).err
}

func (c *Context) PauseVm(vm Capability) error {
	return c.call(call{op: opVmPause, cap: vm}).err
}

func (c *Context) VmState(vm Capability) (VmState, error) {
	rep := c.call(call{op: opVmState, cap: vm})
	return rep.vm, rep.err
}

func (c *Context) ReadRegs(th Capability) (Regs, error) {
	rep := c.call(call{op: opReadRegs, cap: th})
	return rep.regs, rep.err
}

func (c *Context) WriteRegs(th Capability, r Regs) error {
	return c.call(call{op: opWriteRegs, cap: th, regs: r}).err
}

func (c *Context) RouteFault(th, sc Capability) error {
	return c.call(call{op: opRouteFault, cap: th, arg: sc}).err
}

func (c *Context) DupCap(cp Capability) (Capability, error) {
	rep := c.call(call{op: opDupCap, cap: cp})
	return rep.cap, rep.err
}

func (c *Context) DropCap(cp Capability) error {
	return c.call(call{op: opDropCap, cap: cp}).err
}

// PrintChar writes ch to the kernel console. 0 prints the activity table.
func (c *Context) PrintChar(ch byte) {
	c.call(call{op: opPrint, text: string([]byte{ch})})
}

// Print writes s to the kernel console in one kernel entry.
func (c *Context) Print(s string) {
	if s == "" {
		return
	}
	c.call(call{op: opPrint, text: s})
}
