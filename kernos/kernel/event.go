package kernel

// EventKind classifies trace events.
type EventKind uint8

const (
	EvCreate EventKind = iota + 1
	EvDestroy
	EvDispatch
	EvSubmit
	EvDeliver
	EvCancel
	EvIRQ
	EvFault
	EvExit
	EvViolation
)

func (e EventKind) String() string {
	switch e {
	case EvCreate:
		return "create"
	case EvDestroy:
		return "destroy"
	case EvDispatch:
		return "dispatch"
	case EvSubmit:
		return "submit"
	case EvDeliver:
		return "deliver"
	case EvCancel:
		return "cancel"
	case EvIRQ:
		return "irq"
	case EvFault:
		return "fault"
	case EvExit:
		return "exit"
	case EvViolation:
		return "violation"
	default:
		return "unknown"
	}
}

// Event is one kernel trace record. Arg and Arg2 depend on Kind: the count
// and imprint for signal events, the line for IRQs.
type Event struct {
	Seq    uint64
	Tick   uint64
	CPU    int // -1 outside a CPU loop
	Kind   EventKind
	Object Kind
	Cap    CapID
	Label  string
	Arg    uint64
	Arg2   uint64
}

// Tracer receives kernel events. Record is called with the kernel lock held
// and must not call back into the kernel.
type Tracer interface {
	Record(Event)
}

func (k *Kernel) emit(kind EventKind, o *object, arg, arg2 uint64) {
	if k.tracer == nil {
		return
	}
	k.seq++
	ev := Event{
		Seq:  k.seq,
		Tick: k.ticks,
		CPU:  -1,
		Kind: kind,
		Arg:  arg,
		Arg2: arg2,
	}
	if k.cur != nil {
		ev.CPU = k.cur.id
	}
	if o != nil {
		ev.Object = o.kind
		ev.Cap = o.cap.id
		ev.Label = o.name()
	}
	k.tracer.Record(ev)
}
