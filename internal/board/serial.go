package board

import (
	"fmt"
	"time"

	"github.com/tarm/serial"
)

// SerialConfig holds UART settings for the diagnostic channel.
type SerialConfig struct {
	// Device path (e.g., "/dev/ttyUSB0", "COM3")
	Device string

	// Baud rate
	Baud int

	// Read timeout in milliseconds (0 = blocking)
	ReadTimeout int
}

// OpenSerial opens a UART as the diagnostic channel.
func OpenSerial(cfg SerialConfig) (*Console, error) {
	if cfg.Device == "" {
		return nil, fmt.Errorf("serial diagnostics: no device given")
	}

	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: time.Duration(cfg.ReadTimeout) * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", cfg.Device, err)
	}

	return &Console{w: port, closer: port}, nil
}
