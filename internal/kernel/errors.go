package kernel

import (
	"errors"

	"rtkern/internal/arch"
)

var (
	ErrTableFull     = errors.New("task table full")
	ErrNoTasks       = errors.New("no tasks created")
	ErrNoRunnable    = errors.New("no task is ready")
	ErrStarted       = errors.New("scheduler already started")
	ErrNotStarted    = errors.New("scheduler not started")
	ErrInvalidHandle = errors.New("invalid task handle")
	ErrInvalidState  = errors.New("invalid task state")
	ErrStarved       = errors.New("no task can make progress")
	ErrTaskReturned  = errors.New("task returned from its entry function")
	ErrTaskFault     = errors.New("task fault")
	ErrHalted        = errors.New("kernel halted")
	ErrStackOverflow = arch.ErrStackOverflow
)
