package app

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"hwkern/hal"
	"hwkern/internal/config"
	"hwkern/kernos/trace"
)

type memLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *memLogger) WriteLineString(s string) {
	l.mu.Lock()
	l.lines = append(l.lines, s)
	l.mu.Unlock()
}

func (l *memLogger) WriteLineBytes(b []byte) { l.WriteLineString(string(b)) }

func (l *memLogger) contains(sub string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, line := range l.lines {
		if strings.Contains(line, sub) {
			return true
		}
	}
	return false
}

type memSerial struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *memSerial) Read(p []byte) (int, error) { return 0, nil }

func (s *memSerial) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *memSerial) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

type testBoard struct {
	log    *memLogger
	serial *memSerial
	pic    *hal.PIC
}

func newTestBoard() *testBoard {
	return &testBoard{log: &memLogger{}, serial: &memSerial{}, pic: hal.NewPIC(32)}
}

func (b *testBoard) CPUs() int              { return 2 }
func (b *testBoard) Logger() hal.Logger     { return b.log }
func (b *testBoard) Console() hal.Serial    { return b.serial }
func (b *testBoard) Display() hal.Display   { return nil }
func (b *testBoard) Input() hal.Input       { return nil }
func (b *testBoard) Time() hal.Time         { return nil }
func (b *testBoard) IRQ() hal.IRQController { return b.pic }
func (b *testBoard) PIC() *hal.PIC          { return b.pic }

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %s", what)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestSystemRunsDemo(t *testing.T) {
	b := newTestBoard()
	cfg := config.Default()
	cfg.Demo = true
	sys, err := New(b, cfg, Options{})
	if err != nil {
		t.Fatalf("New() = %v", err)
	}

	waitFor(t, "guest halt", func() bool { return sys.Demo().VMM().Halted() })
	b.pic.Raise(hal.IRQRTC)
	waitFor(t, "rtc tick", func() bool { return sys.Demo().Ticker().Count() == 1 })

	if err := sys.Step(); err != nil {
		t.Fatalf("Step() = %v", err)
	}
	if err := sys.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}
	if !strings.Contains(b.serial.String(), "vmm: guest halt") {
		t.Fatalf("console = %q, want guest report", b.serial.String())
	}
	if !b.log.contains("kernel up") || !b.log.contains("demo started") {
		t.Fatalf("log = %v", b.log.lines)
	}
	if sys.Demo().Shell() != nil {
		t.Fatal("shell started without a keyboard")
	}
}

func TestSystemWritesTrace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kernel.trace")
	b := newTestBoard()
	cfg := config.Default()
	cfg.Demo = true
	cfg.Trace.Path = path
	cfg.Trace.Compression = "lz4"
	sys, err := New(b, cfg, Options{})
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	waitFor(t, "guest halt", func() bool { return sys.Demo().VMM().Halted() })
	if err := sys.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	h, recs, err := trace.ReadAll(f)
	if err != nil {
		t.Fatalf("ReadAll() = %v", err)
	}
	if h.CPUs != 2 {
		t.Fatalf("header CPUs = %d, want 2", h.CPUs)
	}
	if uint64(len(recs)) != sys.Trace().Total() {
		t.Fatalf("file has %d records, recorder saw %d", len(recs), sys.Trace().Total())
	}
	if len(recs) == 0 {
		t.Fatal("empty trace")
	}
}

func TestSystemRejectsBadConfig(t *testing.T) {
	cfg := config.Default()
	cfg.CPUs = 0
	if _, err := New(newTestBoard(), cfg, Options{}); err == nil {
		t.Fatal("New() accepted cpus=0")
	}
}

func TestLineWriterSplitsLines(t *testing.T) {
	l := &memLogger{}
	w := &lineWriter{out: l}
	w.Write([]byte("one\ntw"))
	w.Write([]byte("o\n"))
	if len(l.lines) != 2 || l.lines[0] != "one" || l.lines[1] != "two" {
		t.Fatalf("lines = %q", l.lines)
	}
}

func TestNewLoggerLevel(t *testing.T) {
	l := &memLogger{}
	log, err := newLogger(l, "warn")
	if err != nil {
		t.Fatalf("newLogger() = %v", err)
	}
	log.Info("hidden")
	log.Warn("shown", "k", 1)
	if l.contains("hidden") || !l.contains("level=WARN msg=shown k=1") {
		t.Fatalf("lines = %q", l.lines)
	}
	if _, err := newLogger(l, "loud"); err == nil {
		t.Fatal("newLogger() accepted an unknown level")
	}
}

func TestTakeRunes(t *testing.T) {
	p, rest := takeRunes("héllo", 2)
	if p != "hé" || rest != "llo" {
		t.Fatalf("takeRunes() = %q, %q", p, rest)
	}
}
