package arch

import "encoding/binary"

// StackWords is the size of every task stack in 32-bit words.
const StackWords = 256

// stackCanary sits in the lowest word of every stack. A task that grows its
// stack into it has overflowed.
const stackCanary uint32 = 0x670c1254

// StackPointer is a word index into a Stack. Stacks grow down, so pushing
// decrements it.
type StackPointer uint32

// Stack is a task's private stack region. It holds the task's saved register
// image while the task is not running.
type Stack struct {
	words [StackWords]uint32
}

// NewStack returns a zeroed stack with its guard word in place.
func NewStack() *Stack {
	s := &Stack{}
	s.words[0] = stackCanary
	return s
}

// Top returns the initial (empty) stack pointer.
func (s *Stack) Top() StackPointer { return StackWords }

// Intact reports whether the guard word is still in place.
func (s *Stack) Intact() bool { return s.words[0] == stackCanary }

// Word returns the word at index i.
func (s *Stack) Word(i int) uint32 { return s.words[i] }

// SetWord overwrites the word at index i.
func (s *Stack) SetWord(i int, v uint32) { s.words[i] = v }

// Bytes returns a little-endian copy of n words starting at sp.
func (s *Stack) Bytes(sp StackPointer, n int) []byte {
	out := make([]byte, 4*n)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint32(out[4*i:], s.words[int(sp)+i])
	}
	return out
}
