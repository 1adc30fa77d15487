package kernel

import (
	"fmt"
	"io"
	"strings"
)

// ThreadInfo is one row of the activity table.
type ThreadInfo struct {
	Cap        CapID
	Label      string
	Pd         string
	State      ThreadState
	Priority   uint8
	CPU        int
	Dispatches uint64
	Calls      uint64
	LastError  string
}

type VmInfo struct {
	Cap      CapID
	Label    string
	CPU      int
	Active   bool
	Exits    uint64
	LastExit VmExit
}

// PdInfo counts the threads of a protection domain, idle threads included.
type PdInfo struct {
	Cap     CapID
	Label   string
	Core    bool
	Threads int
}

type CPUInfo struct {
	ID         int
	Current    string
	Ready      int
	Steps      uint64
	IdleSteps  uint64
	Dispatches uint64
}

// Snapshot is a consistent view of kernel activity.
type Snapshot struct {
	Tick      uint64
	CPUs      []CPUInfo
	Threads   []ThreadInfo
	Vms       []VmInfo
	Domains   []PdInfo
	Pds       int
	Receivers int
	Contexts  int
	Irqs      int
	Caps      int
	CapsMax   int
}

// Snapshot captures the activity table.
func (k *Kernel) Snapshot() Snapshot {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.snapshot()
}

func (k *Kernel) snapshot() Snapshot {
	s := Snapshot{
		Tick:      k.ticks,
		Pds:       k.pds.Len(),
		Receivers: k.receivers.Len(),
		Contexts:  k.contexts.Len(),
		Irqs:      k.irqs.Len(),
		Caps:      k.caps.Len(),
		CapsMax:   k.caps.Cap(),
	}
	for _, c := range k.cpus {
		ci := CPUInfo{
			ID:         c.id,
			Current:    "idle",
			Ready:      c.sched.Ready(),
			Steps:      c.steps,
			IdleSteps:  c.idleSteps,
			Dispatches: c.dispatches,
		}
		if c.current != nil {
			ci.Current = c.current.obj().name()
		}
		s.CPUs = append(s.CPUs, ci)
	}
	k.pds.Each(func(p *Pd) {
		s.Domains = append(s.Domains, PdInfo{Cap: p.cap.id, Label: p.name(), Core: p.core, Threads: p.threads})
	})
	k.threads.Each(func(t *Thread) {
		if t.idle || t.zombie {
			return
		}
		ti := ThreadInfo{
			Cap:        t.cap.id,
			Label:      t.name(),
			State:      t.state,
			Priority:   t.entry.Priority(),
			CPU:        -1,
			Dispatches: t.dispatches,
			Calls:      t.calls,
			LastError:  t.lastErr,
		}
		if t.pd != nil {
			ti.Pd = t.pd.name()
		}
		if t.cpu != nil {
			ti.CPU = t.cpu.id
		}
		s.Threads = append(s.Threads, ti)
	})
	k.vms.Each(func(v *Vm) {
		if v.zombie {
			return
		}
		s.Vms = append(s.Vms, VmInfo{
			Cap:      v.cap.id,
			Label:    v.name(),
			CPU:      v.cpu.id,
			Active:   v.active,
			Exits:    v.state.Exits,
			LastExit: v.state.Last,
		})
	})
	return s
}

// WriteTo writes the activity table as text.
func (s Snapshot) WriteTo(w io.Writer) (int64, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "--- activity tick=%d caps=%d/%d pds=%d receivers=%d contexts=%d irqs=%d\n",
		s.Tick, s.Caps, s.CapsMax, s.Pds, s.Receivers, s.Contexts, s.Irqs)
	for _, c := range s.CPUs {
		fmt.Fprintf(&b, "cpu%d  current=%s ready=%d steps=%d idle=%d\n",
			c.ID, c.Current, c.Ready, c.Steps, c.IdleSteps)
	}
	for _, p := range s.Domains {
		kind := "pd"
		if p.Core {
			kind = "core"
		}
		fmt.Fprintf(&b, "pd    %-16s %-8s threads=%d\n", p.Label, kind, p.Threads)
	}
	for _, t := range s.Threads {
		fmt.Fprintf(&b, "  %-16s %-8s %-13s prio=%d cpu=%d runs=%d calls=%d",
			t.Label, t.Pd, t.State, t.Priority, t.CPU, t.Dispatches, t.Calls)
		if t.LastError != "" {
			fmt.Fprintf(&b, " err=%q", t.LastError)
		}
		b.WriteByte('\n')
	}
	for _, v := range s.Vms {
		state := "paused"
		if v.Active {
			state = "running"
		}
		fmt.Fprintf(&b, "  %-16s vm       %-13s cpu=%d exits=%d last=%s\n",
			v.Label, state, v.CPU, v.Exits, v.LastExit.Reason)
	}
	n, err := io.WriteString(w, b.String())
	return int64(n), err
}
