// Package board holds the peripheral glue the kernel consumes: the
// diagnostic text channel and the busy-wait delay.
package board

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Console is a blocking diagnostic channel over a writer.
type Console struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
	err    error
}

// NewConsole wraps w.
func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

// Emit writes text and returns once it has been handed to the writer. Write
// errors are kept, not returned; see Err.
func (c *Console) Emit(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := io.WriteString(c.w, text); err != nil && c.err == nil {
		c.err = err
	}
}

// Err returns the first write error.
func (c *Console) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close releases the underlying device, if any.
func (c *Console) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer.Close()
}

// Open returns the diagnostic channel for the named backend: "stdout",
// "serial" (a UART at device/baud) or "tty" (a terminal device).
func Open(backend, device string, baud int) (*Console, error) {
	switch backend {
	case "", "stdout":
		return NewConsole(os.Stdout), nil
	case "serial":
		return OpenSerial(SerialConfig{Device: device, Baud: baud, ReadTimeout: 100})
	case "tty":
		return OpenTTY(device)
	default:
		return nil, fmt.Errorf("unknown diagnostic backend %q", backend)
	}
}

// SpinDelay busy-waits Unit of wall-clock time per unit.
type SpinDelay struct {
	Unit time.Duration
}

// Delay spins until the time is up.
func (d SpinDelay) Delay(units int) {
	deadline := time.Now().Add(time.Duration(units) * d.Unit)
	for time.Now().Before(deadline) {
	}
}
