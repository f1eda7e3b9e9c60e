package kernel

import (
	"fmt"
	"log/slog"

	"github.com/emirpasic/gods/lists/arraylist"

	"rtkern/internal/arch"
)

// DefaultReload is the SysTick reload used when none is configured.
const DefaultReload = 64

// Diagnostics is the blocking text output channel.
type Diagnostics interface {
	Emit(text string)
}

// Delayer busy-waits for approximately the given number of units.
type Delayer interface {
	Delay(units int)
}

type nopDiagnostics struct{}

func (nopDiagnostics) Emit(string) {}

// Kernel owns the task table and runs the scheduler.
type Kernel struct {
	tasks []TCB // fixed capacity, allocated once
	count int

	// round bookkeeping
	round        *arraylist.List // handles selected this round, by slot
	cursor       int
	resetPending bool
	rounds       uint64
	steps        uint64
	maxSteps     uint64

	started bool
	current Handle
	fault   error // sticky, the kernel is halted once set

	port      *arch.Port
	tick      *arch.SysTick
	diag      Diagnostics
	delay     Delayer
	banner    bool
	observers []func(Event)
	log       *slog.Logger
}

// Option configures a Kernel.
type Option func(*Kernel)

// WithDiagnostics sets the diagnostic output channel.
func WithDiagnostics(d Diagnostics) Option {
	return func(k *Kernel) { k.diag = d }
}

// WithDelay sets the busy-wait collaborator. By default the SysTick itself
// is stepped once per unit.
func WithDelay(d Delayer) Option {
	return func(k *Kernel) { k.delay = d }
}

// WithSysTick sets the preemption timer.
func WithSysTick(t *arch.SysTick) Option {
	return func(k *Kernel) { k.tick = t }
}

// WithObserver registers fn to receive every kernel event. Observers run on
// whichever context raised the event and must not block.
func WithObserver(fn func(Event)) Option {
	return func(k *Kernel) { k.observers = append(k.observers, fn) }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(k *Kernel) { k.log = l }
}

// WithDispatchBanner makes the scheduler announce every switch on the
// diagnostic channel.
func WithDispatchBanner(on bool) Option {
	return func(k *Kernel) { k.banner = on }
}

// WithStepLimit makes Run return after n scheduler iterations. Zero means
// no limit.
func WithStepLimit(n uint64) Option {
	return func(k *Kernel) { k.maxSteps = n }
}

// New creates a kernel whose task table holds capacity tasks.
func New(capacity int, opts ...Option) *Kernel {
	if capacity < 0 {
		capacity = 0
	}
	k := &Kernel{
		tasks:   make([]TCB, capacity),
		round:   arraylist.New(),
		current: NoTask,
		port:    arch.NewPort(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(k)
		}
	}
	if k.tick == nil {
		k.tick = arch.NewSysTick(DefaultReload)
	}
	if k.delay == nil {
		k.delay = k.tick
	}
	if k.diag == nil {
		k.diag = nopDiagnostics{}
	}
	if k.log == nil {
		k.log = slog.Default()
	}

	k.diag.Emit("OS: Starting...\n")
	return k
}

// Create adds a task to the table, builds its initial register image and
// runs it once until its first trap, after which it is Ready.
func (k *Kernel) Create(name string, priority uint32, fn TaskFunc) (Handle, error) {
	if k.started {
		return NoTask, ErrStarted
	}
	if k.fault != nil {
		return NoTask, k.fault
	}
	if k.port.Halted() {
		return NoTask, ErrHalted
	}
	if k.count >= len(k.tasks) {
		return NoTask, fmt.Errorf("create %q: %w (capacity %d)", name, ErrTableFull, len(k.tasks))
	}
	if fn == nil {
		return NoTask, fmt.Errorf("create %q: nil entry function", name)
	}

	h := Handle(k.count)
	c := &Context{k: k, self: h}
	t := &k.tasks[h]
	*t = TCB{
		Name:     name,
		Priority: priority,
		State:    Created,
		Round:    Unscheduled,
		thread:   arch.NewThread(entryAddress(h), func() { fn(c) }),
	}
	t.SP = arch.SynthesizeInitialImage(t.thread.Stack(), t.thread.Entry())
	k.count++
	k.emit(EventCreate, h, -1)
	k.log.Debug("task created", "task", name, "handle", int(h), "priority", priority,
		"entry", fmt.Sprintf("%#08x", t.thread.Entry()))

	if h == 0 {
		k.diag.Emit("OS: First create task 0\n")
	} else {
		k.diag.Emit(fmt.Sprintf("OS: Back to OS, create task %d\n", h))
	}
	k.current = h
	tr := k.port.Switch(t.thread, t.SP)
	if tr.Cause == arch.CauseHalt {
		return h, ErrHalted
	}
	k.current = NoTask
	t.SP = tr.SP
	if err := k.trapError(h, tr); err != nil {
		return h, err
	}

	t.State = Ready
	k.emit(EventReady, h, -1)
	return h, nil
}

// Start validates the table and arms the scheduler. Run calls it when
// needed.
func (k *Kernel) Start() error {
	if k.started {
		return ErrStarted
	}
	if k.fault != nil {
		return k.fault
	}
	if k.port.Halted() {
		return ErrHalted
	}
	if k.count == 0 {
		return ErrNoTasks
	}
	if !k.anyReady() {
		return ErrNoRunnable
	}
	k.started = true
	k.resetPending = true

	k.diag.Emit("Scheduler start!\n")
	k.log.Info("scheduler started", "tasks", k.count, "capacity", len(k.tasks))
	return nil
}

// Halt stops the kernel and releases every task goroutine. It may be called
// from any goroutine, also while Run is active; a task that is running stops
// at its next trap. It is safe to call more than once.
func (k *Kernel) Halt() {
	k.port.Halt()
}

// Len returns the number of tasks created.
func (k *Kernel) Len() int { return k.count }

// Capacity returns the size of the task table.
func (k *Kernel) Capacity() int { return len(k.tasks) }

// Task returns a snapshot of the task's control block.
func (k *Kernel) Task(h Handle) (TCB, bool) {
	if !k.valid(h) {
		return TCB{}, false
	}
	return k.tasks[h], true
}

// Lookup finds a task by name.
func (k *Kernel) Lookup(name string) (Handle, bool) {
	for i := 0; i < k.count; i++ {
		if k.tasks[i].Name == name {
			return Handle(i), true
		}
	}
	return NoTask, false
}

// Stack returns the task's private stack.
func (k *Kernel) Stack(h Handle) *arch.Stack {
	if !k.valid(h) {
		return nil
	}
	return k.tasks[h].thread.Stack()
}

// CheckStacks verifies every task's guard word.
func (k *Kernel) CheckStacks() error {
	for i := 0; i < k.count; i++ {
		if !k.tasks[i].thread.Stack().Intact() {
			return fmt.Errorf("task %q: %w", k.tasks[i].Name, ErrStackOverflow)
		}
	}
	return nil
}

// SysTick returns the preemption timer.
func (k *Kernel) SysTick() *arch.SysTick { return k.tick }

func (k *Kernel) valid(h Handle) bool {
	return h >= 0 && int(h) < k.count
}

func (k *Kernel) task(h Handle) (*TCB, error) {
	if !k.valid(h) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidHandle, h)
	}
	return &k.tasks[h], nil
}

func (k *Kernel) anyReady() bool {
	for i := 0; i < k.count; i++ {
		if k.tasks[i].State == Ready {
			return true
		}
	}
	return false
}

func (k *Kernel) emit(kind EventKind, h Handle, slot int) {
	if len(k.observers) == 0 {
		return
	}
	ev := Event{
		Step:  k.steps,
		Tick:  k.tick.Count(),
		Kind:  kind,
		Task:  h,
		Round: k.rounds,
		Slot:  slot,
	}
	if k.valid(h) {
		t := &k.tasks[h]
		ev.Name = t.Name
		ev.Priority = t.Priority
		ev.State = t.State
	}
	for _, fn := range k.observers {
		fn(ev)
	}
}
