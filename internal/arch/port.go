package arch

import (
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
)

var (
	// ErrStackOverflow is reported when a task clobbered its guard word.
	ErrStackOverflow = errors.New("stack overflow")
	// ErrInvalidState is reported on exception return into a frame without
	// the Thumb bit.
	ErrInvalidState = errors.New("invalid execution state")
)

// Cause says why a task handed the processor back.
type Cause uint8

const (
	CauseSVC     Cause = iota // voluntary trap
	CauseSysTick              // timer preemption
	CauseReturn               // the entry function returned
	CauseFault                // the task cannot continue
	CauseHalt                 // the port was halted, nothing was saved
)

func (c Cause) String() string {
	switch c {
	case CauseSVC:
		return "svc"
	case CauseSysTick:
		return "systick"
	case CauseReturn:
		return "return"
	case CauseFault:
		return "fault"
	case CauseHalt:
		return "halt"
	default:
		return "unknown"
	}
}

// Fault carries the details of a task that cannot continue.
type Fault struct {
	Value any
	Stack []byte
}

func (f *Fault) Error() string { return fmt.Sprint(f.Value) }

// Unwrap exposes a wrapped error value.
func (f *Fault) Unwrap() error {
	if err, ok := f.Value.(error); ok {
		return err
	}
	return nil
}

// Trap is what the scheduler sees when control comes back to it.
type Trap struct {
	SP    StackPointer // the task's saved frame
	Cause Cause
	Fault *Fault
}

// Thread binds a private stack to an entry function. On the host every
// thread executes on its own goroutine, started on first activation.
type Thread struct {
	stack *Stack
	entry func()
	addr  uint32
	wake  chan struct{}
}

// NewThread returns a thread whose code lives at addr.
func NewThread(addr uint32, entry func()) *Thread {
	return &Thread{
		stack: NewStack(),
		entry: entry,
		addr:  addr,
		wake:  make(chan struct{}),
	}
}

// Stack returns the thread's private stack.
func (th *Thread) Stack() *Stack { return th.stack }

// Entry returns the entry address written into the initial frame.
func (th *Thread) Entry() uint32 { return th.addr }

func (th *Thread) run(p *Port) {
	defer func() {
		r := recover()
		if p.Halted() {
			return
		}
		t := Trap{SP: p.psp, Cause: CauseReturn}
		if r != nil {
			t = Trap{SP: p.psp, Cause: CauseFault, Fault: &Fault{Value: r, Stack: debug.Stack()}}
		}
		select {
		case p.trap <- t:
		case <-p.halt:
		}
	}()
	th.entry()
}

// Port is the host model of the core: register file, main and process stack
// pointers, and the exception entry/return path between the scheduler and
// the tasks. Only one goroutine owns the Port at a time.
type Port struct {
	regs    Registers
	msp     *Stack
	mspSP   StackPointer
	psp     StackPointer
	current *Thread

	trap     chan Trap
	halt     chan struct{}
	haltOnce sync.Once
}

// NewPort returns a core in thread mode on the main stack.
func NewPort() *Port {
	p := &Port{
		msp:  NewStack(),
		trap: make(chan Trap),
		halt: make(chan struct{}),
	}
	p.mspSP = p.msp.Top()
	p.regs.PSR = PSRThumb
	return p
}

// Switch hands the core to th, whose frame is saved at sp, and blocks until
// th traps back or the port is halted. It must be called from the scheduler,
// never from a task.
//
// A CauseHalt trap leaves the port state untouched: a task that was running
// stops at its next trap.
func (p *Port) Switch(th *Thread, sp StackPointer) Trap {
	if p.Halted() {
		return Trap{SP: sp, Cause: CauseHalt}
	}
	if p.current != nil {
		panic("arch: switch called from task context")
	}
	p.mspSP = pushManual(p.msp, p.mspSP, &p.regs, ReturnThreadMSP)

	next, d := popManual(th.stack, sp, &p.regs)
	p.current = th
	switch d {
	case ReturnDirect:
		pc := th.stack.words[int(sp)+offPC]
		psr := th.stack.words[int(sp)+offPSR]
		p.regs.R[0], p.regs.R[1], p.regs.R[2], p.regs.R[3], p.regs.R[12] = 0, 0, 0, 0, 0
		p.regs.LR = 0
		p.regs.PC = pc
		p.regs.PSR = psr
		p.psp = next + hardwareWords
		go th.run(p)
	case ReturnThreadPSP:
		p.psp = unstackHardware(th.stack, next, &p.regs)
		if p.regs.PSR&PSRThumb == 0 {
			return p.leave(Trap{SP: sp, Cause: CauseFault, Fault: &Fault{Value: ErrInvalidState}})
		}
		select {
		case th.wake <- struct{}{}:
		case <-p.halt:
			return Trap{SP: sp, Cause: CauseHalt}
		}
	default:
		return p.leave(Trap{SP: sp, Cause: CauseFault, Fault: &Fault{Value: fmt.Errorf("bad frame designator %s", d)}})
	}

	select {
	case t := <-p.trap:
		return p.leave(t)
	case <-p.halt:
		return Trap{SP: sp, Cause: CauseHalt}
	}
}

func (p *Port) leave(t Trap) Trap {
	p.current = nil
	p.mspSP, _ = popManual(p.msp, p.mspSP, &p.regs)
	return t
}

// Raise is exception entry from the running task. It stacks the task's
// registers on its process stack, returns control to the scheduler and
// blocks until the scheduler switches back.
func (p *Port) Raise(cause Cause) {
	th := p.current
	if th == nil {
		panic("arch: trap raised outside a task")
	}
	sp := stackHardware(th.stack, p.psp, &p.regs)
	sp = pushManual(th.stack, sp, &p.regs, ReturnThreadPSP)

	t := Trap{SP: sp, Cause: cause}
	if !th.stack.Intact() {
		t.Cause = CauseFault
		t.Fault = &Fault{Value: ErrStackOverflow}
	}
	select {
	case p.trap <- t:
	case <-p.halt:
		runtime.Goexit()
	}

	select {
	case <-th.wake:
	case <-p.halt:
		runtime.Goexit()
	}
}

// Halt releases every parked task goroutine and unblocks a pending Switch.
// The port is unusable after.
func (p *Port) Halt() {
	p.haltOnce.Do(func() { close(p.halt) })
}

// Halted reports whether Halt was called.
func (p *Port) Halted() bool {
	select {
	case <-p.halt:
		return true
	default:
		return false
	}
}

// Current returns the running thread, or nil in scheduler context.
func (p *Port) Current() *Thread { return p.current }

// Reg returns general purpose register r0-r12.
func (p *Port) Reg(i int) uint32 { return p.regs.R[i] }

// SetReg writes general purpose register r0-r12.
func (p *Port) SetReg(i int, v uint32) { p.regs.R[i] = v }

// Registers returns a copy of the register file.
func (p *Port) Registers() Registers { return p.regs }
