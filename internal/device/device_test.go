package device

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipeRoundTrip(t *testing.T) {
	a, b := Pipe()
	defer a.Close()
	defer b.Close()

	go func() {
		_ = a.WriteLine("STATE,1,2,3,30")
		_ = a.WriteLine("CTRL,0.5,0")
	}()

	line, err := b.ReadLine(time.Second)
	require.NoError(t, err)
	assert.Equal(t, "STATE,1,2,3,30", line)

	line, err = b.ReadLine(time.Second)
	require.NoError(t, err)
	assert.Equal(t, "CTRL,0.5,0", line)
}

func TestReadTimeoutKeepsPendingLine(t *testing.T) {
	a, b := Pipe()
	defer a.Close()
	defer b.Close()

	_, err := b.ReadLine(20 * time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)

	go func() { _ = a.WriteLine("OFFSET,-40") }()

	line, err := b.ReadLine(time.Second)
	require.NoError(t, err)
	assert.Equal(t, "OFFSET,-40", line)
}

func TestClosedDevice(t *testing.T) {
	a, b := Pipe()
	defer b.Close()

	require.NoError(t, a.Close())
	assert.NoError(t, a.Close(), "second close is a no-op")
	assert.ErrorIs(t, a.WriteLine("x"), ErrClosed)
	_, err := a.ReadLine(0)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestCloseUnblocksReader(t *testing.T) {
	a, b := Pipe()
	defer b.Close()

	done := make(chan error, 1)
	go func() {
		_, err := a.ReadLine(0)
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, a.Close())

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("ReadLine did not return after Close")
	}
}
