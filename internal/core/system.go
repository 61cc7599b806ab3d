// Package core contains the control loop and the orchestration layer that
// builds it from configuration: the vehicle link, the camera, the preview
// app and telemetry.
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"SignCruise/internal/app"
	"SignCruise/internal/control"
	"SignCruise/internal/device"
	"SignCruise/internal/model"
	"SignCruise/internal/parser"
	"SignCruise/internal/sign"
	"SignCruise/internal/sim"
	"SignCruise/internal/telemetry"
)

const dialTimeout = 5 * time.Second

// System manages lifecycle of the cruise loop and its optional surfaces.
type System struct {
	cfg       *model.Config
	Cruise    *Cruise
	App       *app.App             // nil when preview is disabled
	Telemetry *telemetry.Publisher // nil when telemetry is disabled
}

// NewSystem constructs every component described by cfg. Failing to reach the
// vehicle is fatal; failing to reach the telemetry broker is not.
func NewSystem(ctx context.Context, cfg *model.Config) (*System, error) {
	gen, err := sign.New(cfg.Signal, time.Now())
	if err != nil {
		return nil, fmt.Errorf("sign generator: %w", err)
	}
	ctl, err := control.New(cfg.Controller)
	if err != nil {
		return nil, fmt.Errorf("controller: %w", err)
	}

	s := &System{cfg: cfg}
	opts := CruiseOptions{
		RunID:          cfg.Global.RunID,
		Generator:      gen,
		Controller:     ctl,
		LoopDelay:      cfg.LoopDelay(),
		StatusInterval: cfg.Telemetry.StatusInterval(),
	}

	if cfg.Preview.Addr != "" {
		s.App, err = app.NewApp(cfg.Preview)
		if err != nil {
			return nil, err
		}
		opts.Preview = s.App
	}

	if cfg.Telemetry.MQTTBroker != "" {
		pub := telemetry.NewPublisher(cfg.Telemetry, cfg.Global.RunID)
		if err := pub.Connect(ctx); err != nil {
			slog.Warn("telemetry disabled", "broker", cfg.Telemetry.MQTTBroker, "error", err)
			_ = pub.Close()
		} else {
			s.Telemetry = pub
			opts.Publisher = pub
		}
	}

	opts.Vehicle, opts.Camera, err = OpenVehicle(ctx, cfg)
	if err != nil {
		_ = s.Telemetry.Close()
		return nil, err
	}

	s.Cruise, err = NewCruise(opts)
	if err != nil {
		return nil, err
	}
	if s.App != nil {
		s.App.SetStatusSource(s.Cruise)
	}
	return s, nil
}

// OpenVehicle connects to the vehicle and camera selected by cfg.Vehicle.Link.
func OpenVehicle(ctx context.Context, cfg *model.Config) (Vehicle, Camera, error) {
	vc := cfg.Vehicle
	switch vc.Link {
	case model.LinkLocal:
		slog.Info("using local simulator", "speed_limit_kmh", vc.SpeedLimitKmh)
		return sim.NewLocal(vc), sim.NewSyntheticCamera(cfg.Camera), nil
	case model.LinkSerial, model.LinkTCP:
	default:
		return nil, nil, fmt.Errorf("%w: unknown vehicle link %q", model.ErrInvalidConfig, vc.Link)
	}

	p, err := parser.New(vc.WireFormat)
	if err != nil {
		return nil, nil, err
	}
	var dev device.Device
	if vc.Link == model.LinkSerial {
		dev, err = device.NewSerialDevice(vc.Device, vc.Baud)
	} else {
		dev, err = device.DialTCP(ctx, vc.Addr, dialTimeout)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("connect to simulator: %w", err)
	}
	slog.Info("connected to simulator bridge", "link", vc.Link, "wire", vc.WireFormat)
	b := sim.NewBridge(dev, p)
	return b, b, nil
}

// Run starts the loop and the preview server and blocks until the loop ends,
// either through ctx or a quit from the preview or telemetry.
func (s *System) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		return s.Cruise.Run(ctx)
	})
	if s.App != nil {
		g.Go(func() error { return s.App.Start(ctx) })
		g.Go(func() error { return watchQuit(ctx, cancel, s.App.Done(), "preview") })
	}
	if s.Telemetry != nil {
		g.Go(func() error { return watchQuit(ctx, cancel, s.Telemetry.Done(), "telemetry") })
	}
	return g.Wait()
}

// watchQuit cancels the run when done is closed.
func watchQuit(ctx context.Context, cancel context.CancelFunc, done <-chan struct{}, source string) error {
	select {
	case <-ctx.Done():
	case <-done:
		slog.Info("quit requested", "source", source)
		cancel()
	}
	return nil
}

// Close tears down the loop and telemetry, joining their errors.
func (s *System) Close() error {
	var errs []error
	if s.Cruise != nil {
		errs = append(errs, s.Cruise.Close())
	}
	if err := s.Telemetry.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close telemetry: %w", err))
	}
	return errors.Join(errs...)
}
