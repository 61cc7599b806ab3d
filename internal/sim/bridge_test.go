package sim

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignCruise/internal/device"
	"SignCruise/internal/model"
	"SignCruise/internal/parser"
	"SignCruise/internal/relay"
)

// waitState polls b until the first state has arrived.
func waitState(t *testing.T, b *Bridge) model.VehicleState {
	t.Helper()
	var st model.VehicleState
	require.Eventually(t, func() bool {
		var err error
		st, err = b.State(context.Background())
		return err == nil
	}, 2*time.Second, 2*time.Millisecond)
	return st
}

func TestBridgeStateAndCommands(t *testing.T) {
	ours, theirs := device.Pipe()
	defer theirs.Close()
	b := NewBridge(ours, parser.NewCSVParser())
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	go func() { _ = theirs.WriteLine("STATE,10,0,0,50") }()
	st := waitState(t, b)
	assert.Equal(t, model.VehicleState{VX: 10, SpeedLimit: 50}, st)

	go func() { _ = b.Apply(ctx, model.OffsetCommand(-100)) }()
	line, err := theirs.ReadLine(time.Second)
	require.NoError(t, err)
	assert.Equal(t, "OFFSET,-100.000", line)
}

func TestBridgeStateNotReadyDoesNotBlock(t *testing.T) {
	ours, theirs := device.Pipe()
	defer theirs.Close()
	b := NewBridge(ours, parser.NewCSVParser())
	defer b.Close()

	start := time.Now()
	_, err := b.State(context.Background())
	assert.ErrorIs(t, err, ErrNotReady)
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = b.State(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBridgeForwardsFrames(t *testing.T) {
	ours, theirs := device.Pipe()
	defer theirs.Close()
	b := NewBridge(ours, parser.NewJSONParser())
	defer b.Close()

	got := make(chan relay.RawImage, 1)
	require.NoError(t, b.Listen(func(img relay.RawImage) { got <- img }))
	assert.Error(t, b.Listen(func(relay.RawImage) {}))

	line, err := parser.NewJSONParser().EncodeFrame(relay.RawImage{Height: 1, Width: 1, Channels: 4, Data: []byte{1, 2, 3, 4}})
	require.NoError(t, err)
	go func() {
		_ = theirs.WriteLine("garbage")
		_ = theirs.WriteLine(line)
	}()

	select {
	case img := <-got:
		assert.Equal(t, []byte{1, 2, 3, 4}, img.Data)
	case <-time.After(time.Second):
		t.Fatal("frame not forwarded")
	}
	require.NoError(t, b.Stop())
}

func TestBridgeClosedLink(t *testing.T) {
	ours, theirs := device.Pipe()
	b := NewBridge(ours, parser.NewCSVParser())

	require.NoError(t, theirs.Close())
	assert.Eventually(t, func() bool {
		_, err := b.State(context.Background())
		return errors.Is(err, ErrLinkClosed)
	}, time.Second, 2*time.Millisecond)

	require.NoError(t, b.Close())
	assert.ErrorIs(t, b.Apply(context.Background(), model.DirectCommand(0, 0.3)), ErrLinkClosed)
}

func TestPeerServesBridge(t *testing.T) {
	ctrl, simSide := device.Pipe()

	cfg := vehicleCfg()
	cfg.SpeedLimitKmh = 50
	local := NewLocal(cfg)
	cam := NewSyntheticCamera(model.CameraConfig{Width: 4, Height: 2, FPS: 50})
	peer := &Peer{Device: simSide, Parser: parser.NewCSVParser(), Vehicle: local, Camera: cam, StateInterval: 5 * time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- peer.Run(ctx) }()

	b := NewBridge(ctrl, parser.NewCSVParser())
	defer b.Close()
	var frames atomic.Int32
	require.NoError(t, b.Listen(func(img relay.RawImage) {
		if img.Width == 4 && img.Height == 2 && img.Channels == 4 {
			frames.Add(1)
		}
	}))

	st := waitState(t, b)
	assert.Equal(t, 50.0, st.SpeedLimit)

	require.NoError(t, b.Apply(ctx, model.DirectCommand(1, 0)))
	assert.Eventually(t, func() bool { return peer.Stats().Commands == 1 }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool {
		st, err := b.State(ctx)
		return err == nil && st.SpeedKmh() > 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return frames.Load() > 0 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("peer did not stop")
	}
}

func TestSyntheticCamera(t *testing.T) {
	cam := NewSyntheticCamera(model.CameraConfig{Width: 8, Height: 6, FPS: 100})
	r := relay.New()
	require.NoError(t, cam.Listen(r.OnFrame))
	assert.Error(t, cam.Listen(r.OnFrame))

	assert.Eventually(t, func() bool {
		f, ok := r.Latest()
		return ok && f.Width == 8 && f.Height == 6 && len(f.Pix) == 8*6*3
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, cam.Stop())
	require.NoError(t, cam.Stop())
	n := r.Stats().Received
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, n, r.Stats().Received, "no frames after Stop")
}

func TestPatternScrollsBar(t *testing.T) {
	img := Pattern(5, 2, 2)
	require.Len(t, img.Data, 5*2*4)
	px := img.Data[(0*5+2)*4:][:4]
	assert.Equal(t, []byte{255, 255, 255, 255}, px)
	assert.Equal(t, byte(255), img.Data[3], "alpha")
}

func TestBridgeSurvivesOversizedFrameHeader(t *testing.T) {
	ours, theirs := device.Pipe()
	defer theirs.Close()
	b := NewBridge(ours, parser.NewCSVParser())
	defer b.Close()

	r := relay.New()
	require.NoError(t, b.Listen(r.OnFrame))

	go func() {
		_ = theirs.WriteLine("FRAME,1,4611686018427387905,4,AQIDBA==")
		_ = theirs.WriteLine("STATE,1,0,0,30")
	}()

	// the reader is still alive and decodes the next line
	st := waitState(t, b)
	assert.Equal(t, 30.0, st.SpeedLimit)

	_, ok := r.Latest()
	assert.False(t, ok)
	assert.EqualValues(t, 1, r.Stats().Ignored)
}
