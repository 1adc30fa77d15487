// Package tasks is the demo userland: a shell driven by the keyboard
// interrupt, an RTC ticker, a fault pager and a VM with its monitor thread.
// All of it runs as ordinary kernel threads in the core domain.
package tasks

import (
	"fmt"
	"log/slog"

	"hwkern/hal"
	"hwkern/kernos/kernel"
)

// Options select the demo threads.
type Options struct {
	// Keys feeds the shell. Without it no shell is started.
	Keys <-chan hal.KeyEvent
	// RTC starts the ticker on hal.IRQRTC.
	RTC bool
	// Guest starts the demo VM.
	Guest bool

	Logger *slog.Logger
}

// Demo holds the capabilities of the started demo threads.
type Demo struct {
	k   *kernel.Kernel
	log *slog.Logger

	shell *Shell
	rtc   *Ticker
	pager *Pager
	vmm   *VMM
	cpus  int
}

// Start creates and starts the demo threads on k.
func Start(k *kernel.Kernel, opts Options) (*Demo, error) {
	d := &Demo{k: k, log: opts.Logger, cpus: len(k.CPUs())}
	if d.log == nil {
		d.log = slog.Default()
	}

	pager, err := startPager(k)
	if err != nil {
		return nil, fmt.Errorf("demo pager: %w", err)
	}
	d.pager = pager

	if opts.RTC {
		if d.rtc, err = startTicker(k, hal.IRQRTC); err != nil {
			return nil, fmt.Errorf("demo rtc: %w", err)
		}
	}
	if opts.Guest {
		if d.vmm, err = startVMM(k, CounterGuest{IOEvery: 50, HaltAfter: 200}); err != nil {
			return nil, fmt.Errorf("demo vm: %w", err)
		}
	}
	if opts.Keys != nil {
		if d.shell, err = startShell(k, d, opts.Keys); err != nil {
			return nil, fmt.Errorf("demo shell: %w", err)
		}
	}
	d.log.Info("demo started", "shell", d.shell != nil, "rtc", d.rtc != nil, "vm", d.vmm != nil)
	return d, nil
}

// Shell returns the shell, or nil if none was started.
func (d *Demo) Shell() *Shell { return d.shell }

// Ticker returns the RTC ticker, or nil.
func (d *Demo) Ticker() *Ticker { return d.rtc }

// Pager returns the fault pager.
func (d *Demo) Pager() *Pager { return d.pager }

// VMM returns the VM monitor, or nil.
func (d *Demo) VMM() *VMM { return d.vmm }

// signal creates a receiver with one context bound to it.
func signal(k *kernel.Kernel, label string, imprint uint64) (r, sc kernel.Capability, err error) {
	r, err = k.CreateObject(kernel.KindSignalReceiver, kernel.ReceiverArgs{Label: label})
	if err != nil {
		return r, sc, err
	}
	sc, err = k.CreateObject(kernel.KindSignalContext, kernel.ContextArgs{
		Label:    label,
		Receiver: r,
		Imprint:  imprint,
	})
	if err != nil {
		_ = k.DestroyObject(r)
	}
	return r, sc, err
}

// spawn creates a thread running body and starts it in the core domain.
func spawn(k *kernel.Kernel, label string, prio uint8, cpu int, body func(*kernel.Context)) (kernel.Capability, error) {
	th, err := k.CreateObject(kernel.KindThread, kernel.ThreadArgs{
		Label:    label,
		Priority: prio,
		Body:     body,
	})
	if err != nil {
		return th, err
	}
	if err := k.StartThread(th, kernel.Capability{}, cpu); err != nil {
		_ = k.DestroyObject(th)
		return kernel.Capability{}, err
	}
	return th, nil
}
