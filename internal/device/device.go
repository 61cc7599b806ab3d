// Package device defines a unified interface for line-oriented links to the
// simulator bridge, such as a serial port or a TCP connection.
package device

import (
	"bufio"
	"errors"
	"io"
	"strings"
	"sync"
	"time"
)

// ErrClosed is returned by ReadLine and WriteLine after Close.
var ErrClosed = errors.New("device closed")

// ErrTimeout is returned by ReadLine when no complete line arrives in time.
var ErrTimeout = errors.New("read timeout")

// Device defines an abstract interface for line-based links.
type Device interface {
	// ReadLine reads a single line terminated by '\n', without the terminator.
	// If timeout > 0, it must return after timeout even if no data available.
	ReadLine(timeout time.Duration) (string, error)

	// WriteLine writes s followed by '\n' to the device.
	WriteLine(s string) error

	// Close closes the device and releases underlying resources.
	Close() error
}

type readResult struct {
	line string
	err  error
}

// lineConn implements Device over any io.ReadWriteCloser.
//
// A read that times out keeps running in the background; the next ReadLine
// collects its result, so no line is lost.
type lineConn struct {
	rwc io.ReadWriteCloser
	r   *bufio.Reader

	readMu  sync.Mutex
	pending chan readResult

	writeMu sync.Mutex

	closeOnce sync.Once
	closed    chan struct{}
}

func newLineConn(rwc io.ReadWriteCloser) *lineConn {
	return &lineConn{
		rwc:    rwc,
		r:      bufio.NewReaderSize(rwc, 64*1024),
		closed: make(chan struct{}),
	}
}

// NewConn wraps an already open stream as a Device.
func NewConn(rwc io.ReadWriteCloser) Device {
	return newLineConn(rwc)
}

func (c *lineConn) ReadLine(timeout time.Duration) (string, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	select {
	case <-c.closed:
		return "", ErrClosed
	default:
	}

	if c.pending == nil {
		ch := make(chan readResult, 1)
		c.pending = ch
		go func() {
			line, err := c.r.ReadString('\n')
			ch <- readResult{strings.TrimRight(line, "\r\n"), err}
		}()
	}

	var res readResult
	if timeout <= 0 {
		select {
		case res = <-c.pending:
		case <-c.closed:
			return "", ErrClosed
		}
	} else {
		select {
		case res = <-c.pending:
		case <-c.closed:
			return "", ErrClosed
		case <-time.After(timeout):
			return "", ErrTimeout
		}
	}
	c.pending = nil
	if res.err != nil {
		select {
		case <-c.closed:
			return "", ErrClosed
		default:
		}
		if res.line != "" && errors.Is(res.err, io.EOF) {
			return res.line, nil
		}
		return "", res.err
	}
	return res.line, nil
}

func (c *lineConn) WriteLine(s string) error {
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err := c.rwc.Write(append([]byte(s), '\n'))
	return err
}

func (c *lineConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.rwc.Close()
	})
	return err
}
