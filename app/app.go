// Package app boots the kernel on a board: it wires configuration, logging,
// tracing, the console, the activity monitor and the demo userland, and
// returns the per-frame step the host runner calls.
package app

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"log/slog"

	"hwkern/hal"
	"hwkern/internal/buildinfo"
	"hwkern/internal/config"
	"hwkern/kernos/console"
	"hwkern/kernos/display"
	"hwkern/kernos/kernel"
	"hwkern/kernos/monitor"
	"hwkern/kernos/tasks"
	"hwkern/kernos/trace"
)

var errKernelStopped = errors.New("kernel stopped")

// System is one booted kernel with its host-side services.
type System struct {
	cfg   *config.Config
	board hal.Board
	log   *slog.Logger

	k       *kernel.Kernel
	rec     *trace.Recorder
	tw      *trace.Writer
	console *console.Console
	monitor *monitor.Monitor
	demo    *tasks.Demo
	fb      hal.Framebuffer

	cancel  context.CancelFunc
	done    chan error
	stopped bool
	err     error
	closed  bool
}

// BoardConfig derives the host board layout from cfg.
func BoardConfig(cfg *config.Config) hal.BoardConfig {
	return hal.BoardConfig{
		CPUs:       cfg.CPUs,
		IRQLines:   cfg.IRQ.Lines,
		RTCPeriod:  cfg.IRQ.RTCPeriod,
		LevelLines: cfg.LevelLines(),
	}
}

// Options tune how the system reacts to the host.
type Options struct {
	// HoldOnPanic keeps the panic screen up by parking the panicking CPU
	// instead of crashing the process.
	HoldOnPanic bool
}

// New boots a kernel on b and starts its CPUs.
func New(b hal.Board, cfg *config.Config, opts Options) (*System, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	log, err := newLogger(b.Logger(), cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	installPanicHandler(b, log, opts.HoldOnPanic)
	log.Info("booting", "version", buildinfo.Short(), "cpus", cfg.CPUs, "demo", cfg.Demo)

	s := &System{cfg: cfg, board: b, log: log, done: make(chan error, 1)}
	if err := s.setupTrace(); err != nil {
		return nil, err
	}
	s.setupScreen()

	k, err := kernel.New(kernel.Options{
		CPUs:        cfg.CPUs,
		TimeSlice:   cfg.TimeSliceTicks,
		MaxPriority: cfg.MaxPriority,
		Limits: kernel.Limits{
			Threads:         cfg.Limits.Threads,
			Vms:             cfg.Limits.Vms,
			Pds:             cfg.Limits.Pds,
			SignalReceivers: cfg.Limits.SignalReceivers,
			SignalContexts:  cfg.Limits.SignalContexts,
			Irqs:            cfg.Limits.Irqs,
			Capabilities:    cfg.Limits.Capabilities,
		},
		IRQ:     b.IRQ(),
		Logger:  log,
		Console: s.console,
		Tracer:  s.rec,
	})
	if err != nil {
		s.closeTrace()
		return nil, fmt.Errorf("kernel: %w", err)
	}
	s.k = k

	if p, ok := b.(interface{ PIC() *hal.PIC }); ok {
		p.PIC().OnRaise(func(int) { k.Wake() })
	}
	if t := b.Time(); t != nil {
		if ch := t.Ticks(); ch != nil {
			go func() {
				for seq := range ch {
					k.TickTo(seq)
				}
			}()
		}
	}

	if cfg.Demo {
		demo := tasks.Options{RTC: true, Guest: true, Logger: log}
		if in := b.Input(); in != nil {
			if kbd := in.Keyboard(); kbd != nil {
				demo.Keys = kbd.Events()
			}
		}
		if s.demo, err = tasks.Start(k, demo); err != nil {
			k.Close()
			s.closeTrace()
			return nil, err
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go func() { s.done <- k.Run(ctx) }()
	return s, nil
}

func (s *System) setupTrace() error {
	s.rec = trace.NewRecorder(s.cfg.Trace.Capacity)
	if s.cfg.Trace.Path == "" {
		return nil
	}
	c, err := trace.ParseCompression(s.cfg.Trace.Compression)
	if err != nil {
		return err
	}
	w, err := trace.Create(s.cfg.Trace.Path, c, trace.Header{CPUs: s.cfg.CPUs})
	if err != nil {
		return err
	}
	s.tw = w
	s.rec.Attach(w)
	s.log.Info("tracing", "path", s.cfg.Trace.Path, "compression", c)
	return nil
}

// setupScreen splits the framebuffer: monitor on top, console below.
func (s *System) setupScreen() {
	var mirror = s.board.Console()
	disp := s.board.Display()
	if disp == nil || disp.Framebuffer() == nil {
		s.console = console.New(nil, mirror)
		return
	}
	fb := disp.Framebuffer()
	s.fb = fb
	w, h := fb.Width(), fb.Height()
	split := h * 2 / 5

	fb.ClearRGB(0, 0, 0)
	s.monitor = monitor.New(display.NewRegion(fb, 0, 0, w, split))
	rule := display.NewRegion(fb, 0, split, w, 1)
	rule.Clear(color.RGBA{R: 0x40, G: 0x40, B: 0x40, A: 255})
	s.console = console.New(display.NewRegion(fb, 0, split+2, w, h-split-2), mirror)
}

// Kernel returns the booted kernel.
func (s *System) Kernel() *kernel.Kernel { return s.k }

// Trace returns the in-memory event recorder.
func (s *System) Trace() *trace.Recorder { return s.rec }

// Demo returns the demo userland, or nil.
func (s *System) Demo() *tasks.Demo { return s.demo }

// Step is called once per host frame. It draws console output and the
// activity table, and reports a kernel failure.
func (s *System) Step() error {
	if s.stopped {
		return errKernelStopped
	}
	select {
	case err := <-s.done:
		s.stopped = true
		s.err = err
		if err == nil {
			err = errKernelStopped
		}
		return err
	default:
	}
	if err := s.rec.Err(); err != nil {
		return fmt.Errorf("trace: %w", err)
	}

	dirty := s.console.Flush()
	if s.monitor != nil && !kernel.InPanicMode() {
		if s.monitor.Render(s.k.Snapshot()) {
			dirty = true
		}
	}
	if dirty && s.fb != nil {
		return s.fb.Present()
	}
	return nil
}

// Close stops every CPU and flushes the trace.
func (s *System) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.cancel()
	if kernel.InPanicMode() && !s.stopped {
		// A CPU may be parked in the panic handler.
		return s.closeTrace()
	}
	err := s.err
	if !s.stopped {
		err = <-s.done
		s.stopped = true
	}
	s.k.Close()
	s.log.Info("kernel stopped", "events", s.rec.Total())
	return errors.Join(err, s.closeTrace())
}

func (s *System) closeTrace() error {
	if s.tw == nil {
		return nil
	}
	s.rec.Attach(nil)
	err := s.tw.Close()
	s.log.Info("trace closed", "records", s.tw.Records())
	s.tw = nil
	return err
}
