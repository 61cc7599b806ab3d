// Simulator bridge: runs the local kinematic vehicle and synthetic camera
// behind a line device so the controller can drive it over serial or TCP.
// Use -virtual to create a socat PTY pair for local testing without hardware.
package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"SignCruise/internal/device"
	"SignCruise/internal/model"
	"SignCruise/internal/parser"
	"SignCruise/internal/sim"
	"SignCruise/internal/util"
)

func main() {
	dev := flag.String("dev", "", "serial device to serve on")
	baud := flag.Int("baud", 115200, "serial baud")
	listen := flag.String("listen", "", "tcp address to serve on, e.g. :7000")
	virtual := flag.Bool("virtual", false, "create a socat pty pair and serve on its first end")
	simLink := flag.String("sim-link", "/tmp/signcruise-sim", "virtual pair: simulator end")
	ctlLink := flag.String("ctl-link", "/tmp/signcruise-ctl", "virtual pair: controller end")
	wire := flag.String("wire", "csv", "wire format (csv|json)")
	limit := flag.Float64("limit", 50, "reported speed limit in km/h (0 = unknown)")
	width := flag.Int("width", 160, "camera width")
	height := flag.Int("height", 120, "camera height")
	fps := flag.Float64("fps", 10, "camera frames per second (0 disables the camera)")
	interval := flag.Duration("state-interval", 20*time.Millisecond, "state publish interval")
	logLevel := flag.String("log-level", "info", "log level")
	flag.Parse()

	util.SetupLogger(*logLevel, "text")

	p, err := parser.New(*wire)
	if err != nil {
		util.Fatal("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	vcfg := model.DefaultConfig().Vehicle
	vcfg.SpeedLimitKmh = *limit
	vehicle := sim.NewLocal(vcfg)
	defer vehicle.Close()

	newCamera := func() *sim.SyntheticCamera {
		if *fps <= 0 {
			return nil
		}
		return sim.NewSyntheticCamera(model.CameraConfig{Width: *width, Height: *height, FPS: *fps})
	}
	serve := func(d device.Device) error {
		peer := &sim.Peer{Device: d, Parser: p, Vehicle: vehicle, Camera: newCamera(), StateInterval: *interval}
		err := peer.Run(ctx)
		st := peer.Stats()
		util.Info("session ended: %d commands, %d frames", st.Commands, st.Frames)
		return err
	}

	switch {
	case *listen != "":
		err = serveTCP(ctx, *listen, serve)
	case *virtual:
		socat := util.NewSocatManager()
		defer socat.Cleanup()
		if err := socat.CreatePair(ctx, *simLink, *ctlLink, 3*time.Second); err != nil {
			socat.Cleanup()
			util.Fatal("virtual serial: %v", err)
		}
		util.Info("controller should use vehicle.link=serial, vehicle.device=%s", *ctlLink)
		err = serveSerial(*simLink, *baud, serve)
	case *dev != "":
		err = serveSerial(*dev, *baud, serve)
	default:
		util.Fatal("one of -dev, -listen or -virtual is required")
	}
	if err != nil {
		util.Error("bridge stopped: %v", err)
		os.Exit(1)
	}
	util.Info("bridge stopped")
}

func serveSerial(path string, baud int, serve func(device.Device) error) error {
	d, err := device.NewSerialDevice(path, baud)
	if err != nil {
		return err
	}
	util.Info("serving simulator on %s @ %d", d.Path(), d.Baud())
	return serve(d)
}

// serveTCP serves one controller connection at a time until ctx is done.
func serveTCP(ctx context.Context, addr string, serve func(device.Device) error) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()
	util.Info("serving simulator on tcp %s", ln.Addr())
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		util.Info("controller connected from %s", conn.RemoteAddr())
		if err := serve(device.NewConn(conn)); err != nil {
			util.Error("session: %v", err)
		}
	}
}
