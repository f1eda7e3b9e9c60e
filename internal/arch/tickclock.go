// internal/arch/tickclock.go

package arch

import (
	"sync"
	"sync/atomic"
	"time"
)

// Stepper is anything advanced by a clock edge.
type Stepper interface {
	Step()
}

// TickClock drives a Stepper from wall-clock time and counts its edges.
type TickClock struct {
	target Stepper
	count  atomic.Int64
	stop   chan struct{}
	once   sync.Once
	done   chan struct{}
}

// NewTickClock creates a clock for target but does not start it.
func NewTickClock(target Stepper) *TickClock {
	return &TickClock{
		target: target,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start begins stepping the target at the given interval.
func (c *TickClock) Start(interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer close(c.done)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.count.Add(1)
				c.target.Step()
			case <-c.stop:
				return
			}
		}
	}()
}

// Stop signals the clock to stop and waits for its goroutine to exit.
// It must only be called after Start.
func (c *TickClock) Stop() {
	c.once.Do(func() { close(c.stop) })
	<-c.done
}

// Count returns the number of edges delivered so far.
func (c *TickClock) Count() int64 {
	return c.count.Load()
}
