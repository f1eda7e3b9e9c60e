// internal/kernel/event.go

package kernel

import (
	"fmt"
	"strings"
)

// EventKind represents the type of kernel event
type EventKind int

const (
	EventCreate EventKind = iota
	EventReady
	EventDispatch
	EventPreempt
	EventYield
	EventSuspend
	EventResume
	EventPriority
	EventRoundReset
	EventIdle
	EventFault
)

// Event is delivered to observers on every state change of interest.
type Event struct {
	Step     uint64 // scheduler iterations so far
	Tick     uint64 // SysTick count
	Kind     EventKind
	Task     Handle
	Name     string
	Priority uint32
	State    State
	Round    uint64 // round number, starting at 1
	Slot     int    // position in the round, -1 when not applicable
}

func (ek EventKind) String() string {
	switch ek {
	case EventCreate:
		return "Create"
	case EventReady:
		return "Ready"
	case EventDispatch:
		return "Dispatch"
	case EventPreempt:
		return "Preempt"
	case EventYield:
		return "Yield"
	case EventSuspend:
		return "Suspend"
	case EventResume:
		return "Resume"
	case EventPriority:
		return "Priority"
	case EventRoundReset:
		return "RoundReset"
	case EventIdle:
		return "Idle"
	case EventFault:
		return "Fault"
	default:
		return "Unknown"
	}
}

// ParseEventKind maps a kind name as printed by String back to its kind.
// Matching ignores case.
func ParseEventKind(s string) (EventKind, error) {
	for k := EventCreate; k <= EventFault; k++ {
		if strings.EqualFold(k.String(), s) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown event kind %q", s)
}
