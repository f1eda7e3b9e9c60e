package kernel

import (
	"fmt"

	"rtkern/internal/arch"
)

// Handle identifies a task by its index in the table. Handles are stable for
// the life of the kernel and never reused.
type Handle int

// NoTask is the handle of the scheduler context itself.
const NoTask Handle = -1

// State is a task's lifecycle state.
type State uint8

const (
	Created State = iota
	Ready
	Running
	Suspended
	Waiting // reserved, never entered
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Ready:
		return "ready"
	case Running:
		return "running"
	case Suspended:
		return "suspended"
	case Waiting:
		return "waiting"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Membership tracks whether a task already had its turn this round.
type Membership uint8

const (
	Unscheduled Membership = iota
	Scheduled
)

func (m Membership) String() string {
	if m == Scheduled {
		return "scheduled"
	}
	return "unscheduled"
}

// TCB is one slot of the task table.
type TCB struct {
	Name     string            // set at creation, read-only after
	Priority uint32            // higher value runs first
	SP       arch.StackPointer // saved register image on the task's stack
	State    State
	Round    Membership

	Dispatches  uint64 // times switched to
	Preemptions uint64 // times taken back by SysTick

	thread *arch.Thread
}

// TaskFunc is a task body. It loops forever; returning is a fault.
type TaskFunc func(c *Context)

// entryBase is where the first task's code is pretended to live.
const entryBase uint32 = 0x08000200

func entryAddress(h Handle) uint32 {
	return entryBase + uint32(h)*0x100
}
