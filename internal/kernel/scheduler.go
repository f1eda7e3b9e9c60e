// internal/kernel/scheduler.go

package kernel

import (
	"context"
	"errors"
	"fmt"

	"rtkern/internal/arch"
)

// Run starts the scheduler if needed and loops until ctx is done, the step
// limit is reached, the kernel is halted or a task faults. Only a fault is
// reported as an error. The kernel is halted when Run returns.
func (k *Kernel) Run(ctx context.Context) error {
	if !k.started {
		if err := k.Start(); err != nil {
			return err
		}
	}
	defer k.Halt()

	for {
		// 1) check shutdown
		if ctx.Err() != nil {
			return nil
		}
		if k.maxSteps > 0 && k.steps >= k.maxSteps {
			return nil
		}

		// 2) one scheduling decision, and the slice that follows it
		if _, err := k.Step(); err != nil {
			if errors.Is(err, ErrHalted) {
				return nil
			}
			return err
		}
	}
}

// Step performs one scheduler iteration and returns the selected task. The
// selected task only runs if it was Ready; otherwise the iteration idles.
func (k *Kernel) Step() (Handle, error) {
	if !k.started {
		return NoTask, ErrNotStarted
	}
	if k.fault != nil {
		return NoTask, k.fault
	}
	if k.port.Halted() {
		return NoTask, ErrHalted
	}

	if k.resetPending || k.cursor >= k.count {
		k.resetRound()
	}

	h, ok := k.selectNext()
	if !ok && !k.anyReady() {
		return NoTask, ErrStarved
	}

	t := &k.tasks[h]
	t.Round = Scheduled
	slot := k.cursor
	k.round.Set(slot, h)
	k.cursor++
	k.steps++

	if t.State != Ready {
		k.emit(EventIdle, h, slot)
		k.log.Debug("idle iteration", "task", t.Name, "state", t.State.String(), "slot", slot)
		return h, nil
	}
	return h, k.dispatch(h, slot)
}

// Round returns the handles selected so far in the current round, in slot
// order.
func (k *Kernel) Round() []Handle {
	out := make([]Handle, 0, k.round.Size())
	for _, v := range k.round.Values() {
		out = append(out, v.(Handle))
	}
	return out
}

// Rounds returns the number of rounds begun.
func (k *Kernel) Rounds() uint64 { return k.rounds }

// Steps returns the number of scheduler iterations.
func (k *Kernel) Steps() uint64 { return k.steps }

// resetRound makes every task eligible again.
func (k *Kernel) resetRound() {
	for i := 0; i < k.count; i++ {
		k.tasks[i].Round = Unscheduled
	}
	k.round.Clear()
	k.cursor = 0
	k.resetPending = false
	k.rounds++

	k.emit(EventRoundReset, NoTask, -1)
	k.log.Debug("round reset", "round", k.rounds)
}

// selectNext picks the highest priority Ready task that has not had its turn
// this round. Equal priorities go to the lower index. With nothing eligible
// it falls back to the first task.
func (k *Kernel) selectNext() (Handle, bool) {
	best := NoTask
	var top uint32
	for i := 0; i < k.count; i++ {
		t := &k.tasks[i]
		if t.State != Ready || t.Round != Unscheduled {
			continue
		}
		if best == NoTask || t.Priority > top {
			best, top = Handle(i), t.Priority
		}
	}
	if best == NoTask {
		return 0, false
	}
	return best, true
}

// dispatch switches to a Ready task and accounts for how it came back.
func (k *Kernel) dispatch(h Handle, slot int) error {
	t := &k.tasks[h]
	if k.banner {
		k.diag.Emit("OS: Activate next task\n")
	}

	t.State = Running
	t.Dispatches++
	k.emit(EventDispatch, h, slot)

	k.current = h
	tr := k.port.Switch(t.thread, t.SP)
	if tr.Cause == arch.CauseHalt {
		// the task may still be running; leave its state alone
		return ErrHalted
	}
	k.current = NoTask
	t.SP = tr.SP

	if err := k.trapError(h, tr); err != nil {
		return err
	}

	// 3) still Running means preempted or yielded without suspending
	if t.State == Running {
		t.State = Ready
		if tr.Cause == arch.CauseSysTick {
			t.Preemptions++
			k.emit(EventPreempt, h, slot)
		} else {
			k.emit(EventYield, h, slot)
		}
	}

	if k.banner {
		k.diag.Emit("OS: Back to OS\n")
	}
	return nil
}

// trapError turns a fatal trap into the kernel's sticky fault.
func (k *Kernel) trapError(h Handle, tr arch.Trap) error {
	var err error
	name := k.tasks[h].Name
	switch tr.Cause {
	case arch.CauseReturn:
		err = fmt.Errorf("task %q: %w", name, ErrTaskReturned)
	case arch.CauseFault:
		if tr.Fault != nil && errors.Is(tr.Fault, arch.ErrStackOverflow) {
			err = fmt.Errorf("task %q: %w", name, ErrStackOverflow)
		} else {
			err = fmt.Errorf("task %q: %w: %v", name, ErrTaskFault, tr.Fault)
		}
	default:
		return nil
	}

	k.fault = err
	k.emit(EventFault, h, -1)
	k.log.Error("task fault, halting", "task", name, "cause", tr.Cause.String(), "err", err)
	k.Halt()
	return err
}
