package tasks

import (
	"fmt"
	"strings"

	"github.com/google/shlex"

	"hwkern/hal"
	"hwkern/kernos/kernel"
)

const maxLine = 256

// Shell is a line-oriented command interpreter. It sleeps on the keyboard
// interrupt and drains the key queue each time it fires.
type Shell struct {
	d    *Demo
	keys <-chan hal.KeyEvent
	reg  *registry

	thread kernel.Capability
	irq    kernel.Capability
	recv   kernel.Capability

	line []rune
}

func startShell(k *kernel.Kernel, d *Demo, keys <-chan hal.KeyEvent) (*Shell, error) {
	s := &Shell{d: d, keys: keys}
	if err := s.initRegistry(); err != nil {
		return nil, err
	}
	r, sc, err := signal(k, "kbd", hal.IRQKeyboard)
	if err != nil {
		return nil, err
	}
	s.recv = r
	if s.irq, err = k.IrqAssociate(hal.IRQKeyboard, sc); err != nil {
		return nil, err
	}
	if s.thread, err = spawn(k, "shell", 5, 0, s.run); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Shell) initRegistry() error {
	r := newRegistry()
	if err := registerCommands(r); err != nil {
		return err
	}
	s.reg = r
	return nil
}

// Thread returns the shell thread.
func (s *Shell) Thread() kernel.Capability { return s.thread }

func (s *Shell) run(ctx *kernel.Context) {
	ctx.Print("hwkern shell\nType `help`.\n\n")
	s.prompt(ctx)
	for {
		if _, err := ctx.AwaitSignal(s.recv); err != nil {
			return
		}
		s.drain(ctx)
		_ = ctx.IrqAck(s.irq)
	}
}

func (s *Shell) drain(ctx *kernel.Context) {
	for {
		select {
		case ev, ok := <-s.keys:
			if !ok {
				s.keys = nil
				return
			}
			s.handleKey(ctx, ev)
		default:
			return
		}
	}
}

func (s *Shell) handleKey(ctx *kernel.Context, ev hal.KeyEvent) {
	if !ev.Press {
		return
	}
	switch {
	case ev.Code == hal.KeyEnter || ev.Rune == '\n' || ev.Rune == '\r':
		s.submit(ctx)
	case ev.Code == hal.KeyBackspace || ev.Rune == 0x7f || ev.Rune == 0x08:
		s.backspace(ctx)
	case ev.Code == hal.KeyTab || ev.Rune == '\t':
		s.complete(ctx)
	case ev.Rune >= 0x20:
		if len(s.line) >= maxLine {
			return
		}
		s.line = append(s.line, ev.Rune)
		ctx.Print(string(ev.Rune))
	}
}

func (s *Shell) backspace(ctx *kernel.Context) {
	if len(s.line) == 0 {
		return
	}
	s.line = s.line[:len(s.line)-1]
	// Move cursor left, overwrite, move left.
	ctx.Print("\x1b[D \x1b[D")
}

// complete extends a lone command word to its only match.
func (s *Shell) complete(ctx *kernel.Context) {
	word := string(s.line)
	if strings.ContainsAny(word, " \t") {
		return
	}
	m := s.reg.matches(word)
	switch len(m) {
	case 0:
	case 1:
		rest := m[0][len(word):] + " "
		s.line = append(s.line, []rune(rest)...)
		ctx.Print(rest)
	default:
		ctx.Print("\n" + strings.Join(m, " ") + "\n")
		s.prompt(ctx)
		ctx.Print(word)
	}
}

func (s *Shell) submit(ctx *kernel.Context) {
	ctx.Print("\n")

	line := strings.TrimSpace(string(s.line))
	s.line = s.line[:0]
	if line == "" {
		s.prompt(ctx)
		return
	}
	s.exec(ctx, line)
	s.prompt(ctx)
}

// exec runs one command line.
func (s *Shell) exec(ctx *kernel.Context, line string) {
	args, err := shlex.Split(line)
	if err != nil {
		ctx.Print(fmt.Sprintf("shell: %v\n", err))
		return
	}
	if len(args) == 0 {
		return
	}
	cmd, ok := s.reg.resolve(args[0])
	if !ok {
		ctx.Print("unknown command: " + args[0] + "\n")
		return
	}
	if err := cmd.Run(ctx, s, args[1:]); err != nil {
		ctx.Print(fmt.Sprintf("%s: %v\n", cmd.Name, err))
	}
}

func (s *Shell) prompt(ctx *kernel.Context) {
	ctx.Print("\x1b[32m>\x1b[0m ")
}
