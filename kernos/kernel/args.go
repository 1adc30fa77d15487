package kernel

// ObjectArgs are the creation arguments of one object kind.
//
// Label names the object in logs, traces and the activity table. Owner is
// the protection domain the capability is accounted to; the zero capability
// means the creating domain.
type ObjectArgs interface {
	Kind() Kind
	common() (label string, owner Capability)
}

// ThreadArgs create a thread. Body is the code the thread runs once started.
type ThreadArgs struct {
	Label    string
	Owner    Capability
	Priority uint8
	Affinity uint64 // CPU mask, 0 admits every CPU
	Body     func(*Context)
}

// PdArgs create a protection domain.
type PdArgs struct {
	Label string
	Owner Capability
}

// ReceiverArgs create a signal receiver.
type ReceiverArgs struct {
	Label string
	Owner Capability
}

// ContextArgs create a signal context bound to Receiver.
type ContextArgs struct {
	Label    string
	Owner    Capability
	Receiver Capability
	Imprint  uint64
}

// IrqArgs claim interrupt Line and route it to Context.
type IrqArgs struct {
	Label   string
	Owner   Capability
	Line    int
	Context Capability
}

// VmArgs create a virtual CPU running Guest. Every guest exit other than
// ExitYield pauses the VM and submits Context.
type VmArgs struct {
	Label    string
	Owner    Capability
	Guest    Guest
	Context  Capability
	Priority uint8
	CPU      int
}

func (ThreadArgs) Kind() Kind   { return KindThread }
func (PdArgs) Kind() Kind       { return KindPd }
func (ReceiverArgs) Kind() Kind { return KindSignalReceiver }
func (ContextArgs) Kind() Kind  { return KindSignalContext }
func (IrqArgs) Kind() Kind      { return KindIrq }
func (VmArgs) Kind() Kind       { return KindVm }

func (a ThreadArgs) common() (string, Capability)   { return a.Label, a.Owner }
func (a PdArgs) common() (string, Capability)       { return a.Label, a.Owner }
func (a ReceiverArgs) common() (string, Capability) { return a.Label, a.Owner }
func (a ContextArgs) common() (string, Capability)  { return a.Label, a.Owner }
func (a IrqArgs) common() (string, Capability)      { return a.Label, a.Owner }
func (a VmArgs) common() (string, Capability)       { return a.Label, a.Owner }
