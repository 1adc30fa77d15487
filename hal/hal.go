package hal

import "errors"

// Logger writes newline-delimited log lines.
type Logger interface {
	WriteLineString(s string)
	WriteLineBytes(b []byte)
}

var ErrNotImplemented = errors.New("not implemented")

// PixelFormat defines the framebuffer pixel encoding.
type PixelFormat uint8

const (
	// PixelFormatRGB565 is 16bpp: rrrrrggggggbbbbb.
	PixelFormatRGB565 PixelFormat = iota + 1
)

// Framebuffer is a simple pixel buffer plus a "present" hook.
type Framebuffer interface {
	Width() int
	Height() int
	Format() PixelFormat
	StrideBytes() int
	Buffer() []byte
	ClearRGB(r, g, b uint8)
	Present() error
}

// KeyCode is a minimal key identifier.
type KeyCode uint16

const (
	KeyUnknown KeyCode = iota
	KeyUp
	KeyDown
	KeyLeft
	KeyRight
	KeyEnter
	KeyEscape
	KeyBackspace
	KeyTab
	KeyDelete
	KeyHome
	KeyEnd
	KeyF1
	KeyF2
	KeyF3
)

// KeyEvent is a keyboard event.
type KeyEvent struct {
	Code  KeyCode
	Press bool
	Rune  rune
}

// Keyboard provides key events. Every queued event also raises
// IRQKeyboard on the board's interrupt controller.
type Keyboard interface {
	Events() <-chan KeyEvent
}

// Display provides access to the framebuffer (if available).
type Display interface {
	Framebuffer() Framebuffer
}

// Input provides access to input devices (if available).
type Input interface {
	Keyboard() Keyboard
}

// Time provides a base tick stream.
//
// The tick duration is platform-defined; every tick also raises IRQTimer.
type Time interface {
	Ticks() <-chan uint64
}

// Well-known interrupt lines of the host board.
const (
	IRQTimer    = 0
	IRQKeyboard = 1
	IRQRTC      = 8
)

// TriggerMode is how an interrupt line signals.
type TriggerMode uint8

const (
	// TriggerEdge counts every raise.
	TriggerEdge TriggerMode = iota
	// TriggerLevel stays asserted until taken; raises while asserted
	// coalesce.
	TriggerLevel
)

func (m TriggerMode) String() string {
	if m == TriggerLevel {
		return "level"
	}
	return "edge"
}

// IRQController is the board's interrupt controller. Devices Raise lines,
// the kernel Takes pending triggers of unmasked lines.
type IRQController interface {
	Lines() int
	Raise(line int)
	Take() (line int, ok bool)
	Mask(line int)
	Unmask(line int)
	Mode(line int) TriggerMode
	LevelTriggered(line int) bool
}

// Board provides the only contact point between the kernel and the outside
// world.
type Board interface {
	CPUs() int
	Logger() Logger
	Console() Serial
	Display() Display
	Input() Input
	Time() Time
	IRQ() IRQController
}

// Serial is the board's console port.
type Serial interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
}
