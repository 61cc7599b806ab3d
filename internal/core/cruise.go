package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"SignCruise/internal/control"
	"SignCruise/internal/model"
	"SignCruise/internal/relay"
	"SignCruise/internal/sign"
	"SignCruise/internal/sim"
)

// Vehicle is the controlled vehicle: a state query and a command sink.
type Vehicle interface {
	State(ctx context.Context) (model.VehicleState, error)
	Apply(ctx context.Context, cmd model.Command) error
	Close() error
}

// Camera pushes frames to a listener from its own goroutine.
type Camera interface {
	Listen(fn func(relay.RawImage)) error
	Stop() error
}

// Preview renders a frame and reports whether the user asked to quit.
type Preview interface {
	Show(f *relay.Frame) (quit bool)
	Close() error
}

// Publisher receives sign events and periodic status.
type Publisher interface {
	PublishSign(ev model.SignEvent)
	PublishStatus(st model.Status)
}

// Cruise runs the control loop: poll the sign generator, compute and apply a
// command, preview the newest frame, sleep.
type Cruise struct {
	RunID string

	gen       *sign.Generator
	ctl       *control.Controller
	relay     *relay.Relay
	vehicle   Vehicle
	camera    Camera
	preview   Preview   // optional
	publisher Publisher // optional

	delay       time.Duration
	statusEvery time.Duration
	now         func() time.Time

	cycle      uint64
	lastStatus time.Time
	status     atomic.Pointer[model.Status]

	closeOnce sync.Once
	closeErr  error
}

// CruiseOptions wires a Cruise. Vehicle, Camera, Generator and Controller are
// required.
type CruiseOptions struct {
	RunID          string
	Generator      *sign.Generator
	Controller     *control.Controller
	Vehicle        Vehicle
	Camera         Camera
	Preview        Preview
	Publisher      Publisher
	LoopDelay      time.Duration
	StatusInterval time.Duration
	Now            func() time.Time
}

// NewCruise builds a loop from opts.
func NewCruise(opts CruiseOptions) (*Cruise, error) {
	switch {
	case opts.Generator == nil:
		return nil, errors.New("cruise: nil sign generator")
	case opts.Controller == nil:
		return nil, errors.New("cruise: nil controller")
	case opts.Vehicle == nil:
		return nil, errors.New("cruise: nil vehicle")
	case opts.Camera == nil:
		return nil, errors.New("cruise: nil camera")
	}
	c := &Cruise{
		RunID:       opts.RunID,
		gen:         opts.Generator,
		ctl:         opts.Controller,
		relay:       relay.New(),
		vehicle:     opts.Vehicle,
		camera:      opts.Camera,
		preview:     opts.Preview,
		publisher:   opts.Publisher,
		delay:       opts.LoopDelay,
		statusEvery: opts.StatusInterval,
		now:         opts.Now,
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.statusEvery <= 0 {
		c.statusEvery = time.Second
	}
	return c, nil
}

// Relay exposes the frame slot the camera feeds.
func (c *Cruise) Relay() *relay.Relay { return c.relay }

// Run attaches the camera and cycles until ctx is done or the preview asks to
// quit. Both are normal terminations and return nil.
func (c *Cruise) Run(ctx context.Context) error {
	if err := c.camera.Listen(c.relay.OnFrame); err != nil {
		return fmt.Errorf("attach camera: %w", err)
	}
	slog.Info("cruise loop started",
		"run_id", c.RunID,
		"strategy", c.ctl.Strategy().Name(),
		"target_kmh", c.gen.Target(),
		"loop_delay", c.delay)

	timer := time.NewTimer(c.delay)
	defer timer.Stop()
	for {
		if ctx.Err() != nil {
			slog.Info("cruise loop interrupted", "cycles", c.cycle)
			return nil
		}
		if c.Step(ctx) {
			slog.Info("quit requested from preview", "cycles", c.cycle)
			return nil
		}
		timer.Reset(c.delay)
		select {
		case <-ctx.Done():
		case <-timer.C:
		}
	}
}

// Step runs one control cycle and reports whether the preview asked to quit.
// Vehicle errors are logged and the cycle continues; the next cycle retries.
func (c *Cruise) Step(ctx context.Context) (quit bool) {
	c.cycle++
	now := c.now()

	prev := c.gen.Target()
	if target, changed := c.gen.MaybeEmit(now); changed {
		slog.Info("speed limit sign detected", "from_kmh", prev, "to_kmh", target)
		if c.publisher != nil {
			c.publisher.PublishSign(model.SignEvent{RunID: c.RunID, From: prev, To: target, Detected: now})
		}
	}
	target := c.gen.Target()

	st := model.Status{
		RunID:     c.RunID,
		Cycle:     c.cycle,
		Time:      now,
		Strategy:  c.ctl.Strategy().Name(),
		TargetKmh: target,
	}

	state, err := c.vehicle.State(ctx)
	switch {
	case errors.Is(err, sim.ErrNotReady):
		slog.Debug("waiting for first vehicle state", "cycle", c.cycle)
	case err != nil && ctx.Err() == nil:
		slog.Warn("vehicle state unavailable", "cycle", c.cycle, "error", err)
	case err == nil:
		cmd := c.ctl.Compute(control.Input{
			SpeedKmh:  state.SpeedKmh(),
			TargetKmh: float64(target),
			LimitKmh:  state.SpeedLimit,
		})
		if err := c.vehicle.Apply(ctx, cmd); err != nil && ctx.Err() == nil {
			slog.Warn("apply command failed", "cycle", c.cycle, "command", cmd, "error", err)
		}
		st.SpeedKmh = state.SpeedKmh()
		st.LimitKmh = state.SpeedLimit
		st.Command = cmd.String()
		st.Throttle, st.Brake, st.Percent = cmd.Throttle, cmd.Brake, cmd.Percent
	}

	if f, ok := c.relay.Latest(); ok {
		st.FrameSeq = f.Seq
		if c.preview != nil {
			quit = c.preview.Show(f)
		}
	}
	st.FramesSeen = c.relay.Stats().Received
	st.Signs = c.gen.Stats().Announced
	c.status.Store(&st)

	if now.Sub(c.lastStatus) >= c.statusEvery {
		c.lastStatus = now
		slog.Info("cruise status",
			"speed_kmh", fmt.Sprintf("%.1f", st.SpeedKmh),
			"target_kmh", st.TargetKmh,
			"command", st.Command)
		if c.publisher != nil {
			c.publisher.PublishStatus(st)
		}
	}
	return quit
}

// Status returns the most recent cycle's snapshot.
func (c *Cruise) Status() (model.Status, bool) {
	st := c.status.Load()
	if st == nil {
		return model.Status{}, false
	}
	return *st, true
}

// Close stops the camera, releases the vehicle and closes the preview.
// All three are attempted; their errors are joined.
func (c *Cruise) Close() error {
	c.closeOnce.Do(func() {
		var errs []error
		if err := c.camera.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop camera: %w", err))
		}
		if err := c.vehicle.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close vehicle: %w", err))
		}
		if c.preview != nil {
			if err := c.preview.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close preview: %w", err))
			}
		}
		c.closeErr = errors.Join(errs...)
		rs := c.relay.Stats()
		slog.Info("cruise closed",
			"cycles", c.cycle,
			"frames_received", rs.Received,
			"frames_dropped", rs.Dropped,
			"signs", c.gen.Stats().Announced)
	})
	return c.closeErr
}
