package board

import (
	"fmt"

	tty "github.com/mattn/go-tty"
)

// OpenTTY opens a terminal device as the diagnostic channel. An empty path
// uses the controlling terminal.
func OpenTTY(path string) (*Console, error) {
	var (
		t   *tty.TTY
		err error
	)
	if path == "" {
		t, err = tty.Open()
	} else {
		t, err = tty.OpenDevice(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open tty %q: %w", path, err)
	}

	return &Console{w: t.Output(), closer: t}, nil
}
