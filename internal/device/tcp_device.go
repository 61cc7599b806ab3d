package device

import (
	"context"
	"fmt"
	"net"
	"time"
)

// DialTCP connects to a simulator bridge listening on addr.
func DialTCP(ctx context.Context, addr string, timeout time.Duration) (Device, error) {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial bridge %s: %w", addr, err)
	}
	return newLineConn(conn), nil
}

// Pipe returns two connected in-memory devices.
func Pipe() (Device, Device) {
	a, b := net.Pipe()
	return newLineConn(a), newLineConn(b)
}
