package kernel

// Job is an execution context the scheduler can run: a *Thread or a *Vm.
//
// Proceed is called with the kernel lock held and returns the code to run
// without it, or nil if there is nothing to run. HandleException is called
// with the lock held once that code gives the CPU back.
type Job interface {
	Proceed(c *CPU) func()
	HandleException(c *CPU)

	obj() *object
}

var (
	_ Job = (*Thread)(nil)
	_ Job = (*Vm)(nil)
)
