package device

import (
	"fmt"

	serial "go.bug.st/serial"
)

// SerialDevice implements Device using go.bug.st/serial.
type SerialDevice struct {
	*lineConn
	dev  string
	baud int
}

// NewSerialDevice creates and opens a serial device with the given path and baudrate.
func NewSerialDevice(dev string, baud int) (*SerialDevice, error) {
	p, err := serial.Open(dev, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial %s: %w", dev, err)
	}
	return &SerialDevice{lineConn: newLineConn(p), dev: dev, baud: baud}, nil
}

// Path returns the device path the port was opened on.
func (s *SerialDevice) Path() string { return s.dev }

// Baud returns the configured baud rate.
func (s *SerialDevice) Baud() int { return s.baud }
