package tasks

import (
	"fmt"
	"sync/atomic"

	"hwkern/kernos/kernel"
)

// CounterGuest is a guest that counts in R0. It leaves for I/O every
// IOEvery slices and halts at HaltAfter.
type CounterGuest struct {
	IOEvery   uint64
	HaltAfter uint64
}

func (g CounterGuest) Run(s *kernel.VmState) kernel.VmExit {
	s.Regs.IP += 4
	s.Regs.R[0]++
	n := s.Regs.R[0]
	switch {
	case g.HaltAfter > 0 && n >= g.HaltAfter:
		return kernel.VmExit{Reason: kernel.ExitHalt, Code: n}
	case g.IOEvery > 0 && n%g.IOEvery == 0:
		return kernel.VmExit{Reason: kernel.ExitIO, Code: n}
	}
	return kernel.VmExit{Reason: kernel.ExitYield}
}

// VMM is the monitor thread of one VM. It resumes the guest after I/O
// exits and reports when it stops.
type VMM struct {
	thread kernel.Capability
	vm     kernel.Capability
	recv   kernel.Capability

	ioExits atomic.Uint64
	halted  atomic.Bool
}

func startVMM(k *kernel.Kernel, g kernel.Guest) (*VMM, error) {
	m := &VMM{}
	r, sc, err := signal(k, "vmm", 0x7e)
	if err != nil {
		return nil, err
	}
	m.recv = r
	m.vm, err = k.CreateObject(kernel.KindVm, kernel.VmArgs{
		Label:   "guest",
		Guest:   g,
		Context: sc,
	})
	if err != nil {
		return nil, err
	}
	if m.thread, err = spawn(k, "vmm", 2, 0, m.run); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *VMM) run(ctx *kernel.Context) {
	if err := ctx.RunVm(m.vm); err != nil {
		ctx.Print(fmt.Sprintf("vmm: run: %v\n", err))
		return
	}
	for {
		if _, err := ctx.AwaitSignal(m.recv); err != nil {
			return
		}
		st, err := ctx.VmState(m.vm)
		if err != nil {
			return
		}
		switch st.Last.Reason {
		case kernel.ExitIO:
			m.ioExits.Add(1)
			if err := ctx.RunVm(m.vm); err != nil {
				ctx.Print(fmt.Sprintf("vmm: resume: %v\n", err))
			}
		default:
			m.halted.Store(true)
			ctx.Print(fmt.Sprintf("vmm: guest %s code=%d after %d exits\n",
				st.Last.Reason, st.Last.Code, st.Exits))
		}
	}
}

// IOExits returns the number of I/O exits served.
func (m *VMM) IOExits() uint64 { return m.ioExits.Load() }

// Halted reports whether the guest stopped for good.
func (m *VMM) Halted() bool { return m.halted.Load() }

// Vm returns the VM capability.
func (m *VMM) Vm() kernel.Capability { return m.vm }
