package core

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignCruise/internal/control"
	"SignCruise/internal/device"
	"SignCruise/internal/model"
	"SignCruise/internal/parser"
	"SignCruise/internal/sign"
	"SignCruise/internal/sim"
)

func localConfig() *model.Config {
	cfg := model.DefaultConfig()
	cfg.Global.LoopDelayMs = 1
	cfg.Vehicle.SpeedLimitKmh = 50
	cfg.Camera = model.CameraConfig{Width: 16, Height: 8, FPS: 200}
	return cfg
}

func TestSystemRunsLocalSimulator(t *testing.T) {
	cfg := localConfig()
	sys, err := NewSystem(context.Background(), cfg)
	require.NoError(t, err)
	assert.Nil(t, sys.App)
	assert.Nil(t, sys.Telemetry)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	require.NoError(t, sys.Run(ctx))

	st, ok := sys.Cruise.Status()
	require.True(t, ok)
	assert.Greater(t, st.Cycle, uint64(10))
	assert.Greater(t, st.SpeedKmh, 0.0, "throttle from standstill moves the car")
	assert.Equal(t, cfg.Global.RunID, st.RunID)
	assert.Positive(t, st.FramesSeen)

	assert.NoError(t, sys.Close())
}

func TestSystemQuitFromPreview(t *testing.T) {
	cfg := localConfig()
	cfg.Preview.Addr = "127.0.0.1:0"
	sys, err := NewSystem(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, sys.App)
	defer sys.Close()

	done := make(chan error, 1)
	go func() { done <- sys.Run(context.Background()) }()

	require.Eventually(t, func() bool {
		_, ok := sys.Cruise.Status()
		return ok
	}, time.Second, 5*time.Millisecond)
	sys.App.RequestQuit("test")

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("system did not stop on quit")
	}
}

func TestOpenVehicleTCPBridge(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		dev := device.NewConn(conn)
		defer dev.Close()
		_ = dev.WriteLine("STATE,5,0,0,70")
		_, _ = dev.ReadLine(2 * time.Second)
	}()

	cfg := localConfig()
	cfg.Vehicle.Link = model.LinkTCP
	cfg.Vehicle.Addr = ln.Addr().String()

	veh, cam, err := OpenVehicle(context.Background(), cfg)
	require.NoError(t, err)
	defer veh.Close()
	assert.IsType(t, &sim.Bridge{}, veh)
	assert.Same(t, veh.(*sim.Bridge), cam.(*sim.Bridge))

	var st model.VehicleState
	require.Eventually(t, func() bool {
		st, err = veh.State(context.Background())
		return err == nil
	}, 2*time.Second, 2*time.Millisecond)
	assert.Equal(t, 70.0, st.SpeedLimit)
	assert.InDelta(t, 18, st.SpeedKmh(), 1e-9)
}

func TestOpenVehicleErrors(t *testing.T) {
	cfg := localConfig()
	cfg.Vehicle.Link = "can"
	_, _, err := OpenVehicle(context.Background(), cfg)
	assert.ErrorIs(t, err, model.ErrInvalidConfig)

	cfg = localConfig()
	cfg.Vehicle.Link = model.LinkTCP
	cfg.Vehicle.Addr = "127.0.0.1:1"
	_, _, err = OpenVehicle(context.Background(), cfg)
	assert.Error(t, err)

	cfg = localConfig()
	cfg.Vehicle.Link = model.LinkSerial
	cfg.Vehicle.Device = "/dev/does-not-exist"
	_, _, err = OpenVehicle(context.Background(), cfg)
	assert.Error(t, err)
}

func TestBridgeEndToEndWithPeer(t *testing.T) {
	ctrlSide, simSide := device.Pipe()
	cfg := localConfig()

	peer := &sim.Peer{
		Device:        simSide,
		Parser:        parser.NewCSVParser(),
		Vehicle:       sim.NewLocal(cfg.Vehicle),
		Camera:        sim.NewSyntheticCamera(cfg.Camera),
		StateInterval: 2 * time.Millisecond,
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = peer.Run(ctx) }()

	b := sim.NewBridge(ctrlSide, parser.NewCSVParser())
	sys := &System{cfg: cfg}
	var err error
	sys.Cruise, err = NewCruise(CruiseOptions{
		RunID:      "bridge",
		Generator:  mustGenerator(t, cfg),
		Controller: mustController(t, cfg),
		Vehicle:    b,
		Camera:     b,
		LoopDelay:  time.Millisecond,
	})
	require.NoError(t, err)

	runCtx, stop := context.WithTimeout(ctx, 300*time.Millisecond)
	defer stop()
	require.NoError(t, sys.Run(runCtx))
	require.NoError(t, sys.Close())

	assert.Positive(t, peer.Stats().Commands)
	st, ok := sys.Cruise.Status()
	require.True(t, ok)
	assert.Positive(t, st.FramesSeen)
}

func mustGenerator(t *testing.T, cfg *model.Config) *sign.Generator {
	t.Helper()
	g, err := sign.New(cfg.Signal, time.Now())
	require.NoError(t, err)
	return g
}

func mustController(t *testing.T, cfg *model.Config) *control.Controller {
	t.Helper()
	c, err := control.New(cfg.Controller)
	require.NoError(t, err)
	return c
}
