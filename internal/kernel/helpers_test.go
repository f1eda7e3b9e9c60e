package kernel

import (
	"io"
	"log/slog"
	"strings"
	"testing"

	"rtkern/internal/arch"
)

type diagLog struct {
	lines []string
}

func (d *diagLog) Emit(text string) { d.lines = append(d.lines, text) }

func (d *diagLog) contains(text string) bool {
	for _, l := range d.lines {
		if l == text {
			return true
		}
	}
	return false
}

func (d *diagLog) String() string { return strings.Join(d.lines, "") }

func newTick(reload uint32) *arch.SysTick { return arch.NewSysTick(reload) }

func newTestKernel(t *testing.T, capacity int, opts ...Option) (*Kernel, *diagLog) {
	t.Helper()
	d := &diagLog{}
	base := []Option{
		WithDiagnostics(d),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithSysTick(arch.NewSysTick(1000)),
	}
	k := New(capacity, append(base, opts...)...)
	t.Cleanup(k.Halt)
	return k, d
}

// turnRecorder returns a task body that appends its name to *turns every
// time it is given the processor, then yields.
func turnRecorder(turns *[]string) TaskFunc {
	return func(c *Context) {
		for {
			c.Yield()
			*turns = append(*turns, c.Name())
		}
	}
}

func mustCreate(t *testing.T, k *Kernel, name string, prio uint32, fn TaskFunc) Handle {
	t.Helper()
	h, err := k.Create(name, prio, fn)
	if err != nil {
		t.Fatalf("create %s: %v", name, err)
	}
	return h
}

func mustStart(t *testing.T, k *Kernel) {
	t.Helper()
	if err := k.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
}

func mustStep(t *testing.T, k *Kernel) Handle {
	t.Helper()
	h, err := k.Step()
	if err != nil {
		t.Fatalf("step %d: %v", k.Steps(), err)
	}
	return h
}

func names(k *Kernel, hs []Handle) []string {
	out := make([]string, len(hs))
	for i, h := range hs {
		tcb, _ := k.Task(h)
		out[i] = tcb.Name
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
