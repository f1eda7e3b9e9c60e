package arch

import "sync"

// SysTick is the periodic preemption timer. Every reload ticks it pends a
// preemption that the running task takes at its next preemption point.
type SysTick struct {
	mu      sync.Mutex
	reload  uint32
	val     uint32
	pending bool
	count   uint64
}

// NewSysTick returns a timer counting down from reload. A zero reload is
// treated as one.
func NewSysTick(reload uint32) *SysTick {
	if reload == 0 {
		reload = 1
	}
	return &SysTick{reload: reload, val: reload}
}

// Step advances the timer by one tick.
func (s *SysTick) Step() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.count++
	s.val--
	if s.val == 0 {
		s.pending = true
		s.val = s.reload
	}
}

// Delay advances the timer by units ticks. It is the simulated-time busy-wait.
func (s *SysTick) Delay(units int) {
	for i := 0; i < units; i++ {
		s.Step()
	}
}

// Reset restarts the countdown and drops a pending preemption.
func (s *SysTick) Reset() {
	s.mu.Lock()
	s.val = s.reload
	s.pending = false
	s.mu.Unlock()
}

// TakePending clears and returns the pending flag.
func (s *SysTick) TakePending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.pending
	s.pending = false
	return p
}

// Count returns the number of ticks since boot.
func (s *SysTick) Count() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Remaining returns the ticks left before the next preemption.
func (s *SysTick) Remaining() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.val
}
