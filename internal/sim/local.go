// Package sim provides the vehicles and cameras the cruise loop drives: an
// in-process kinematic simulator and a bridge to a remote simulator reached
// over a line device.
package sim

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"SignCruise/internal/model"
)

// ErrLinkClosed is returned by vehicles and cameras after Close.
var ErrLinkClosed = errors.New("vehicle link closed")

// ErrNotReady is returned by Bridge.State until the simulator reports a state.
var ErrNotReady = errors.New("vehicle state not received yet")

const (
	// paceLimitKmh is the limit the pace-keeper falls back to when the road
	// reports none.
	paceLimitKmh = 30.0
	// paceTau is the pace-keeper's speed tracking time constant.
	paceTau = time.Second
	// yawRate makes the autopilot wander so the velocity is not axis-aligned.
	yawRate = 0.05 // rad/s
	maxStep = 10 * time.Millisecond
)

// Local is an in-process longitudinal vehicle model with an autopilot that
// steers and, for offset commands, keeps pace with the reported limit.
//
// Direct commands integrate a = throttle*MaxAccel - brake*MaxDecel - Drag*v.
// Offset commands track limit*(1 - percent/100) within the same bounds.
type Local struct {
	mu      sync.Mutex
	cfg     model.VehicleConfig
	speed   float64 // m/s
	heading float64 // rad
	cmd     model.Command
	last    time.Time
	now     func() time.Time
	closed  bool
}

// LocalOption configures a Local vehicle.
type LocalOption func(*Local)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) LocalOption {
	return func(l *Local) { l.now = now }
}

// WithSpeed sets the initial speed in km/h.
func WithSpeed(kmh float64) LocalOption {
	return func(l *Local) { l.speed = kmh / 3.6 }
}

// NewLocal creates a stationary vehicle.
func NewLocal(cfg model.VehicleConfig, opts ...LocalOption) *Local {
	l := &Local{cfg: cfg, now: time.Now}
	for _, o := range opts {
		o(l)
	}
	l.last = l.now()
	return l
}

// State advances the model to now and returns its snapshot.
func (l *Local) State(ctx context.Context) (model.VehicleState, error) {
	if err := ctx.Err(); err != nil {
		return model.VehicleState{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return model.VehicleState{}, ErrLinkClosed
	}
	l.advance(l.now())
	return model.VehicleState{
		VX:         l.speed * math.Cos(l.heading),
		VY:         l.speed * math.Sin(l.heading),
		SpeedLimit: l.cfg.SpeedLimitKmh,
	}, nil
}

// Apply advances the model under the previous command, then latches cmd.
func (l *Local) Apply(ctx context.Context, cmd model.Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrLinkClosed
	}
	l.advance(l.now())
	l.cmd = cmd
	return nil
}

// SetSpeedLimit changes the limit reported in State; 0 means unknown.
func (l *Local) SetSpeedLimit(kmh float64) {
	l.mu.Lock()
	l.cfg.SpeedLimitKmh = kmh
	l.mu.Unlock()
}

// Close releases the vehicle.
func (l *Local) Close() error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	return nil
}

func (l *Local) advance(now time.Time) {
	dt := now.Sub(l.last)
	l.last = now
	for dt > 0 {
		step := min(dt, maxStep)
		l.step(step.Seconds())
		dt -= step
	}
}

func (l *Local) step(dt float64) {
	var a float64
	switch l.cmd.Kind {
	case model.CommandDirect:
		a = l.cmd.Throttle*l.cfg.MaxAccel - l.cmd.Brake*l.cfg.MaxDecel - l.cfg.Drag*l.speed
	case model.CommandOffset:
		limit := l.cfg.SpeedLimitKmh
		if limit <= 0 {
			limit = paceLimitKmh
		}
		desired := math.Max(0, limit*(1-l.cmd.Percent/100)) / 3.6
		a = (desired - l.speed) / paceTau.Seconds()
		a = math.Max(-l.cfg.MaxDecel, math.Min(l.cfg.MaxAccel, a))
	default:
		a = -l.cfg.Drag * l.speed
	}
	l.speed = math.Max(0, l.speed+a*dt)
	if l.speed > 0 {
		l.heading = math.Mod(l.heading+yawRate*dt, 2*math.Pi)
	}
}
