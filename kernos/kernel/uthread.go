package kernel

import "runtime"

type trapKind uint8

const (
	trapNone trapKind = iota
	trapCall
	trapExit
	trapFault
)

// trap is what user code hands to the kernel when it stops running.
type trap struct {
	kind  trapKind
	call  *call
	value any    // panic value of a fault
	stack []byte // goroutine stack of a fault
}

// uthread runs the user code of one thread on its own goroutine.
//
// The goroutine only runs between a send on resume and its next send on
// trap. The CPU that proceeds the thread blocks in between, so user code
// executes exactly while its CPU is lent to it.
type uthread struct {
	resume chan reply
	trap   chan trap
	kill   chan struct{}

	killed bool // kernel side, under the kernel lock
	gone   bool // user side
}

func newUthread(body func(*Context), ctx *Context) *uthread {
	u := &uthread{
		resume: make(chan reply),
		trap:   make(chan trap),
		kill:   make(chan struct{}),
	}
	ctx.u = u
	go u.main(body, ctx)
	return u
}

func (u *uthread) main(body func(*Context), ctx *Context) {
	select {
	case <-u.resume:
	case <-u.kill:
		return
	}
	defer func() {
		if u.gone {
			return
		}
		if r := recover(); r != nil {
			u.trap <- trap{kind: trapFault, value: r, stack: captureStack()}
			return
		}
		u.trap <- trap{kind: trapExit}
	}()
	body(ctx)
}

// run lends the calling CPU to the user goroutine until its next trap.
func (u *uthread) run(rep reply) trap {
	u.resume <- rep
	return <-u.trap
}

// enter traps into the kernel and parks until the thread is proceeded
// again. A thread destroyed while parked never returns.
func (u *uthread) enter(tr trap) reply {
	u.trap <- tr
	select {
	case rep := <-u.resume:
		return rep
	case <-u.kill:
		u.gone = true
		runtime.Goexit()
		return reply{}
	}
}

func (u *uthread) terminate() {
	if u.killed {
		return
	}
	u.killed = true
	close(u.kill)
}
