package kernel

import (
	"fmt"

	"rtkern/internal/arch"
)

// suspend takes the running task h off the processor until resumed.
func (k *Kernel) suspend(h Handle) error {
	t, err := k.task(h)
	if err != nil {
		return err
	}
	if h != k.current || t.State != Running {
		return fmt.Errorf("suspend %q: %w: %s", t.Name, ErrInvalidState, t.State)
	}

	t.State = Suspended
	k.diag.Emit(t.Name + " is suspended!\n")
	k.tick.Reset()
	k.emit(EventSuspend, h, -1)
	k.port.Raise(arch.CauseSVC)
	return nil
}

// resume makes the suspended task h selectable again and gives the
// processor back to the scheduler.
func (k *Kernel) resume(h Handle) error {
	t, err := k.task(h)
	if err != nil {
		return err
	}
	if k.current == NoTask || h == k.current {
		return fmt.Errorf("resume %q: %w: caller must be another running task", t.Name, ErrInvalidState)
	}
	if t.State != Suspended {
		return fmt.Errorf("resume %q: %w: %s", t.Name, ErrInvalidState, t.State)
	}

	t.State = Ready
	k.diag.Emit(t.Name + " resume to ready state!\n")
	k.tick.Reset()
	k.emit(EventResume, h, -1)
	k.port.Raise(arch.CauseSVC)
	return nil
}

// ModifyPriority changes a task's priority and forces a round reset so the
// new value counts from the very next selection. It does not yield.
//
// Outside task context it may only be called while the scheduler is not
// running.
func (k *Kernel) ModifyPriority(h Handle, priority uint32) error {
	t, err := k.task(h)
	if err != nil {
		return err
	}

	old := t.Priority
	t.Priority = priority
	k.resetPending = true
	k.diag.Emit(fmt.Sprintf("%s priority changed to %d\n", t.Name, priority))
	k.emit(EventPriority, h, -1)
	k.log.Debug("priority changed", "task", t.Name, "from", old, "to", priority)
	return nil
}
