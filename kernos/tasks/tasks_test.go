package tasks

import (
	"bytes"
	"strings"
	"testing"

	"hwkern/hal"
	"hwkern/kernos/kernel"
)

type rig struct {
	k    *kernel.Kernel
	pic  *hal.PIC
	out  *bytes.Buffer
	keys chan hal.KeyEvent
	d    *Demo
}

func newRig(t *testing.T, opts Options) *rig {
	t.Helper()
	r := &rig{pic: hal.NewPIC(16), out: &bytes.Buffer{}, keys: make(chan hal.KeyEvent, 256)}
	k, err := kernel.New(kernel.Options{CPUs: 2, IRQ: r.pic, Console: r.out})
	if err != nil {
		t.Fatalf("kernel.New() = %v", err)
	}
	t.Cleanup(k.Close)
	r.k = k
	if opts.Keys == nil {
		opts.Keys = r.keys
	}
	if r.d, err = Start(k, opts); err != nil {
		t.Fatalf("Start() = %v", err)
	}
	r.settle(t)
	return r
}

func (r *rig) settle(t *testing.T) {
	t.Helper()
	if !r.k.RunUntilIdle(20000) {
		t.Fatal("RunUntilIdle() did not reach idle")
	}
}

// typeText queues s as key presses and raises the keyboard line once.
func (r *rig) typeText(t *testing.T, s string) {
	t.Helper()
	for _, c := range s {
		ev := hal.KeyEvent{Press: true, Rune: c}
		switch c {
		case '\n':
			ev = hal.KeyEvent{Press: true, Code: hal.KeyEnter}
		case '\t':
			ev = hal.KeyEvent{Press: true, Code: hal.KeyTab}
		}
		r.keys <- ev
		r.keys <- hal.KeyEvent{Press: false, Code: ev.Code, Rune: ev.Rune}
	}
	r.pic.Raise(hal.IRQKeyboard)
	r.settle(t)
}

// output returns the console output since the last call.
func (r *rig) output() string {
	s := r.out.String()
	r.out.Reset()
	return s
}

func TestShellBanner(t *testing.T) {
	r := newRig(t, Options{})
	if out := r.output(); !strings.Contains(out, "hwkern shell") {
		t.Fatalf("console = %q, want banner", out)
	}
}

func TestShellEchoQuoting(t *testing.T) {
	r := newRig(t, Options{})
	r.output()
	r.typeText(t, "echo 'a  b'   c\n")
	if out := r.output(); !strings.Contains(out, "a  b c\n") {
		t.Fatalf("console = %q, want quoted echo", out)
	}
}

func TestShellClear(t *testing.T) {
	r := newRig(t, Options{})
	r.output()
	r.typeText(t, "clear\n")
	if out := r.output(); !strings.Contains(out, "\f") {
		t.Fatalf("console = %q, want form feed", out)
	}
}

func TestShellErrors(t *testing.T) {
	r := newRig(t, Options{})
	r.output()
	r.typeText(t, "nosuch\n")
	if out := r.output(); !strings.Contains(out, "unknown command: nosuch") {
		t.Fatalf("console = %q", out)
	}
	r.typeText(t, "echo \"open\n")
	if out := r.output(); !strings.Contains(out, "shell: ") {
		t.Fatalf("console = %q, want parse error", out)
	}
	r.typeText(t, "uptime\n")
	if out := r.output(); !strings.Contains(out, "uptime: no rtc") {
		t.Fatalf("console = %q, want missing rtc", out)
	}
	r.typeText(t, "migrate\n")
	if out := r.output(); !strings.Contains(out, "migrate: usage") {
		t.Fatalf("console = %q, want usage", out)
	}
}

func TestShellBackspace(t *testing.T) {
	r := newRig(t, Options{})
	r.output()
	r.typeText(t, "echo abx")
	r.keys <- hal.KeyEvent{Press: true, Code: hal.KeyBackspace}
	r.typeText(t, "c\n")
	if out := r.output(); !strings.Contains(out, "abc\n") {
		t.Fatalf("console = %q, want abc", out)
	}
}

func TestShellCompletion(t *testing.T) {
	r := newRig(t, Options{})
	r.output()
	r.typeText(t, "he\t\n")
	if out := r.output(); !strings.Contains(out, "list commands") {
		t.Fatalf("console = %q, want help output", out)
	}
}

func TestShellPs(t *testing.T) {
	r := newRig(t, Options{})
	r.output()
	r.typeText(t, "ps\n")
	out := r.output()
	if !strings.Contains(out, "--- activity") || !strings.Contains(out, "shell") || !strings.Contains(out, "pager") {
		t.Fatalf("console = %q, want activity table", out)
	}
}

func TestCrashIsReaped(t *testing.T) {
	r := newRig(t, Options{})
	r.typeText(t, "crash boom\n")
	if got := r.d.Pager().Reaped(); got != 1 {
		t.Fatalf("Reaped() = %d, want 1", got)
	}
	if out := r.output(); !strings.Contains(out, "pager: reaped") {
		t.Fatalf("console = %q, want reap report", out)
	}
	for _, ti := range r.k.Snapshot().Threads {
		if ti.Label == "crasher" {
			t.Fatalf("crasher still present: %+v", ti)
		}
	}
}

func TestShellMigrate(t *testing.T) {
	r := newRig(t, Options{})
	r.output()
	r.typeText(t, "migrate 1\n")
	if out := r.output(); !strings.Contains(out, "shell on cpu1") {
		t.Fatalf("console = %q", out)
	}
	for _, ti := range r.k.Snapshot().Threads {
		if ti.Label == "shell" && ti.CPU != 1 {
			t.Fatalf("shell on cpu %d, want 1", ti.CPU)
		}
	}
	r.typeText(t, "echo moved\n")
	if out := r.output(); !strings.Contains(out, "moved\n") {
		t.Fatalf("console = %q, shell stopped after migrate", out)
	}
}

func TestTickerCountsRTC(t *testing.T) {
	r := newRig(t, Options{RTC: true})
	for i := 0; i < 3; i++ {
		r.pic.Raise(hal.IRQRTC)
	}
	r.settle(t)
	if got := r.d.Ticker().Count(); got != 3 {
		t.Fatalf("Count() = %d, want 3", got)
	}
	r.output()
	r.typeText(t, "uptime\n")
	if out := r.output(); !strings.Contains(out, "rtc 3\n") {
		t.Fatalf("console = %q, want rtc 3", out)
	}
}

func TestGuestRunsToHalt(t *testing.T) {
	r := newRig(t, Options{Guest: true})
	m := r.d.VMM()
	if !m.Halted() {
		t.Fatal("guest did not halt")
	}
	if m.IOExits() != 3 {
		t.Fatalf("IOExits() = %d, want 3", m.IOExits())
	}
	st, err := r.k.VmState(m.Vm())
	if err != nil {
		t.Fatalf("VmState() = %v", err)
	}
	if st.Exits != 200 || st.Last.Reason != kernel.ExitHalt || st.Regs.R[0] != 200 {
		t.Fatalf("VmState() = %+v, want halt after 200 exits", st)
	}
	if out := r.output(); !strings.Contains(out, "vmm: guest halt code=200 after 200 exits") {
		t.Fatalf("console = %q", out)
	}
}

func TestCounterGuest(t *testing.T) {
	g := CounterGuest{IOEvery: 2, HaltAfter: 5}
	var s kernel.VmState
	var got []kernel.ExitReason
	for i := 0; i < 5; i++ {
		got = append(got, g.Run(&s).Reason)
	}
	want := []kernel.ExitReason{kernel.ExitYield, kernel.ExitIO, kernel.ExitYield, kernel.ExitIO, kernel.ExitHalt}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("exits = %v, want %v", got, want)
		}
	}
	if s.Regs.IP != 20 {
		t.Fatalf("IP = %d, want 20", s.Regs.IP)
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := newRegistry()
	if err := registerCommands(r); err != nil {
		t.Fatalf("registerCommands() = %v", err)
	}
	if err := r.register(command{Name: "top", Run: cmdPs}); err == nil {
		t.Fatal("register() accepted a name used as alias")
	}
	if err := r.register(command{Name: "x"}); err == nil {
		t.Fatal("register() accepted a command without handler")
	}
	if cmd, ok := r.resolve("?"); !ok || cmd.Name != "help" {
		t.Fatalf("resolve(?) = %q/%v, want help", cmd.Name, ok)
	}
	if m := r.matches("e"); len(m) != 1 || m[0] != "echo" {
		t.Fatalf("matches(e) = %v, want [echo]", m)
	}
}
