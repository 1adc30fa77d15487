package kernel

import "fmt"

// Kind identifies the type of a kernel object.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindThread
	KindVm
	KindPd
	KindSignalReceiver
	KindSignalContext
	KindIrq
)

func (k Kind) String() string {
	switch k {
	case KindThread:
		return "thread"
	case KindVm:
		return "vm"
	case KindPd:
		return "pd"
	case KindSignalReceiver:
		return "signal-receiver"
	case KindSignalContext:
		return "signal-context"
	case KindIrq:
		return "irq"
	default:
		return "invalid"
	}
}

// CapID is the table index of a capability. InvalidCap never names an object.
type CapID uint32

// InvalidCap is the capability id that names nothing.
const InvalidCap CapID = 0

// Capability names exactly one kernel object.
//
// It is opaque by construction (no exported fields). The generation detects
// copies that outlived the table entry they were issued for.
type Capability struct {
	id  CapID
	gen uint32
}

func (c Capability) ID() CapID   { return c.id }
func (c Capability) Valid() bool { return c.id != InvalidCap }

func (c Capability) String() string {
	if !c.Valid() {
		return "cap:invalid"
	}
	return fmt.Sprintf("cap:%d.%d", c.id, c.gen)
}

// Handle locates an object in its pool. Gen changes every time the slot is
// reused, so stale handles fail lookup instead of aliasing a new object.
type Handle struct {
	Slot uint32
	Gen  uint32
}

// ObjectRef is what a capability table entry points at.
type ObjectRef struct {
	Kind   Kind
	Handle Handle
}

// object is the part every kernel object shares.
type object struct {
	kind   Kind
	handle Handle
	cap    Capability // back-link, invalid once revoked
	owner  *Pd
	label  string

	orphaned bool // capability released, waiting for Reclaim
}

func (o *object) Cap() Capability { return o.cap }
func (o *object) Label() string   { return o.label }

func (o *object) ref() ObjectRef { return ObjectRef{Kind: o.kind, Handle: o.handle} }

func (o *object) name() string {
	if o.label != "" {
		return o.label
	}
	return fmt.Sprintf("%s#%d", o.kind, o.handle.Slot)
}
