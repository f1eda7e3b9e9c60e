package kernel

import (
	"log/slog"

	"rtkern/internal/arch"
)

// Context provides task-local access to kernel operations. Its methods may
// only be called from the task's own body.
type Context struct {
	k    *Kernel
	self Handle
}

// Self returns the current task's handle.
func (c *Context) Self() Handle { return c.self }

// Name returns the current task's name.
func (c *Context) Name() string { return c.k.tasks[c.self].Name }

// Logger returns the kernel logger tagged with this task's name.
func (c *Context) Logger() *slog.Logger { return c.k.log.With("task", c.Name()) }

// Lookup finds another task by name.
func (c *Context) Lookup(name string) (Handle, bool) { return c.k.Lookup(name) }

// Yield hands the processor back to the scheduler.
func (c *Context) Yield() {
	c.k.port.Raise(arch.CauseSVC)
}

// Delay busy-waits for units. Every unit is a preemption point.
func (c *Context) Delay(units int) {
	for i := 0; i < units; i++ {
		c.k.delay.Delay(1)
		c.preemptionPoint()
	}
}

// Emit writes text to the diagnostic channel.
func (c *Context) Emit(text string) {
	c.k.diag.Emit(text)
	c.preemptionPoint()
}

// Suspend parks the current task until another task resumes it.
func (c *Context) Suspend() error {
	return c.k.suspend(c.self)
}

// Resume makes a suspended task Ready and yields.
func (c *Context) Resume(h Handle) error {
	return c.k.resume(h)
}

// SetPriority changes the priority of any task, this one included.
func (c *Context) SetPriority(h Handle, priority uint32) error {
	return c.k.ModifyPriority(h, priority)
}

// Reg reads general purpose register r0-r12.
func (c *Context) Reg(i int) uint32 { return c.k.port.Reg(i) }

// SetReg writes general purpose register r0-r12.
func (c *Context) SetReg(i int, v uint32) { c.k.port.SetReg(i, v) }

// preemptionPoint takes a pending SysTick, if any.
func (c *Context) preemptionPoint() {
	if c.k.tick.TakePending() {
		c.k.port.Raise(arch.CauseSysTick)
	}
}
