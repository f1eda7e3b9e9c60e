package job

import (
	"errors"
	"fmt"
	"sort"

	"rtkern/internal/kernel"
)

// Params are the per-task knobs a program reads from configuration.
type Params struct {
	Peer  string // task to resume, for resume-peer
	Units int    // busy-wait units per loop iteration
}

// Program builds a task body from its parameters.
type Program func(p Params) kernel.TaskFunc

var programs = map[string]Program{
	"resume-peer":  ResumePeer,
	"suspend-self": SuspendSelf,
	"spin":         Spin,
}

// Build returns the task body of the named program.
func Build(name string, p Params) (kernel.TaskFunc, error) {
	prog, ok := programs[name]
	if !ok {
		return nil, fmt.Errorf("unknown program %q (have %v)", name, Names())
	}
	if p.Units <= 0 {
		p.Units = 1
	}
	return prog(p), nil
}

// Names lists the known programs in sorted order.
func Names() []string {
	out := make([]string, 0, len(programs))
	for name := range programs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// created is the boot prologue every program shares: announce, then hand
// control back so creation can finish.
func created(c *kernel.Context) {
	c.Emit(c.Name() + ": Created!\n")
	c.Yield()
}

// ResumePeer works, then wakes its peer up. Every iteration ends with the
// processor handed back, also when the peer was not suspended.
func ResumePeer(p Params) kernel.TaskFunc {
	return func(c *kernel.Context) {
		created(c)
		peer, ok := c.Lookup(p.Peer)
		if !ok {
			c.Logger().Warn("peer not found, only yielding", "peer", p.Peer)
		}
		for {
			c.Emit("Running..." + c.Name() + "\n")
			c.Delay(p.Units)
			if !ok {
				c.Yield()
				continue
			}
			if err := c.Resume(peer); err != nil {
				if !errors.Is(err, kernel.ErrInvalidState) {
					c.Logger().Error("resume failed", "peer", p.Peer, "err", err)
				}
				c.Yield()
			}
		}
	}
}

// SuspendSelf works, then suspends itself until someone resumes it.
func SuspendSelf(p Params) kernel.TaskFunc {
	return func(c *kernel.Context) {
		created(c)
		for {
			c.Emit("Running..." + c.Name() + "\n")
			c.Delay(p.Units)
			if err := c.Suspend(); err != nil {
				c.Logger().Error("suspend failed", "err", err)
			}
		}
	}
}

// Spin works forever and only leaves the processor when preempted.
func Spin(p Params) kernel.TaskFunc {
	return func(c *kernel.Context) {
		created(c)
		for {
			c.Emit("Running..." + c.Name() + "\n")
			c.Delay(p.Units)
		}
	}
}
