package hal

import (
	"fmt"
	"os"
	"sync"
	"time"
)

// BoardConfig sizes the host board.
type BoardConfig struct {
	CPUs      int
	IRQLines  int
	Width     int
	Height    int
	RTCPeriod time.Duration

	// LevelLines are configured level triggered; all others are edge
	// triggered.
	LevelLines []int
}

type hostBoard struct {
	cpus   int
	logger *hostLogger
	serial *hostSerial
	fb     *hostFramebuffer
	kbd    *hostKeyboard
	t      *hostTime
	pic    *PIC
	rtc    *PeriodicSource
}

// New returns the host board.
func New(cfg BoardConfig) (Board, error) {
	return newHostBoard(cfg)
}

func newHostBoard(cfg BoardConfig) (*hostBoard, error) {
	if cfg.CPUs <= 0 {
		cfg.CPUs = 1
	}
	if cfg.IRQLines <= 0 {
		cfg.IRQLines = 32
	}
	if cfg.IRQLines <= IRQRTC {
		return nil, fmt.Errorf("board: %d irq lines, need more than %d", cfg.IRQLines, IRQRTC)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		cfg.Width, cfg.Height = 320, 320
	}

	pic := NewPIC(cfg.IRQLines)
	for _, line := range cfg.LevelLines {
		if line < 0 || line >= cfg.IRQLines {
			return nil, fmt.Errorf("board: level line %d out of range", line)
		}
		pic.SetMode(line, TriggerLevel)
	}
	rtc, err := NewPeriodicSource("rtc", pic, IRQRTC, cfg.RTCPeriod)
	if err != nil {
		return nil, err
	}

	logger := &hostLogger{w: os.Stdout}
	return &hostBoard{
		cpus:   cfg.CPUs,
		logger: logger,
		serial: &hostSerial{r: os.Stdin, w: os.Stdout},
		fb:     newHostFramebuffer(cfg.Width, cfg.Height),
		kbd:    newHostKeyboard(func() { pic.Raise(IRQKeyboard) }),
		t:      newHostTime(pic),
		pic:    pic,
		rtc:    rtc,
	}, nil
}

func (h *hostBoard) CPUs() int          { return h.cpus }
func (h *hostBoard) Logger() Logger     { return h.logger }
func (h *hostBoard) Console() Serial    { return h.serial }
func (h *hostBoard) Display() Display   { return hostDisplay{fb: h.fb} }
func (h *hostBoard) Input() Input       { return hostInput{kbd: h.kbd} }
func (h *hostBoard) Time() Time         { return h.t }
func (h *hostBoard) IRQ() IRQController { return h.pic }

// PIC returns the concrete interrupt controller, e.g. to install an
// OnRaise hook.
func (h *hostBoard) PIC() *PIC { return h.pic }

// advance moves board time forward by one host frame.
func (h *hostBoard) advance() {
	h.t.step(1)
	h.rtc.Poll()
}

type hostDisplay struct {
	fb *hostFramebuffer
}

func (d hostDisplay) Framebuffer() Framebuffer { return d.fb }

type hostInput struct {
	kbd *hostKeyboard
}

func (in hostInput) Keyboard() Keyboard { return in.kbd }

type hostLogger struct {
	mu sync.Mutex
	w  *os.File
}

func (l *hostLogger) WriteLineString(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.w, s)
}

func (l *hostLogger) WriteLineBytes(b []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.w.Write(b)
	l.w.Write([]byte{'\n'})
}
