package kernel

import (
	"context"
	"fmt"
	"math"

	"hwkern/kernos/kernel/sched"
)

// CPU runs the jobs of one scheduler.
type CPU struct {
	id    int
	k     *Kernel
	sched *sched.Scheduler[Job]
	idle  *Thread
	wake  chan struct{}

	lastTick uint64
	current  Job
	last     Job

	steps      uint64
	idleSteps  uint64
	dispatches uint64
}

func (c *CPU) ID() int { return c.id }

func (c *CPU) wakeup() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Step runs one kernel entry: it takes pending interrupts, charges the
// elapsed ticks, proceeds the chosen job and handles the job's next
// exception. It reports whether the CPU had nothing but the idle job to
// run.
func (c *CPU) Step() (idle bool) {
	k := c.k
	defer func() {
		if r := recover(); r != nil {
			info := PanicInfo{CPU: c.id, Value: r}
			if c.current != nil {
				info.Job = c.current.obj().name()
			}
			triggerPanic(info)
			panic(r)
		}
	}()

	var (
		job Job
		run func()
	)
	k.enter(c, func() {
		k.takeInterrupts()
		consumed := k.ticks - c.lastTick
		c.lastTick = k.ticks
		if consumed > math.MaxUint32 {
			consumed = math.MaxUint32
		}
		e, _ := c.sched.Next(uint32(consumed))
		job = e.Value
		c.current = job
		c.steps++
		if e == c.sched.Idle() {
			c.idleSteps++
		} else {
			c.dispatches++
			if job != c.last {
				k.emit(EvDispatch, job.obj(), uint64(e.Priority()), 0)
			}
		}
		c.last = job
		run = job.Proceed(c)
	})
	if run != nil {
		run()
	}
	k.enter(c, func() {
		job.HandleException(c)
		c.current = nil
	})
	return run == nil
}

// Run steps the CPU until ctx is done, sleeping while it is idle.
func (c *CPU) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		if !c.Step() {
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-c.wake:
		}
	}
}

func (k *Kernel) enter(c *CPU, fn func()) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.cur = c
	defer func() { k.cur = nil }()
	fn()
}

func (k *Kernel) cpu(id int) (*CPU, error) {
	if id < 0 || id >= len(k.cpus) {
		return nil, fmt.Errorf("cpu %d of %d: %w", id, len(k.cpus), ErrInvalidArgument)
	}
	return k.cpus[id], nil
}
