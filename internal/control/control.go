// Package control maps the vehicle's current speed and the sign target into
// an actuation command.
//
// Two strategies are available. Direct drives the pedals with a bang-bang
// policy around a deadband. Delegated leaves the pedals (and steering) to the
// simulator's pace-keeper and only tells it how far above or below the
// reported limit to drive.
package control

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"SignCruise/internal/model"
)

// ErrUnknownStrategy is returned by ParseStrategy.
var ErrUnknownStrategy = errors.New("unknown control strategy")

// Input is everything a strategy may look at in one cycle.
type Input struct {
	SpeedKmh  float64
	TargetKmh float64
	LimitKmh  float64 // reported by the simulator, 0 when unknown
}

// Strategy computes one command per cycle. Implementations hold no state
// between calls.
type Strategy interface {
	Name() string
	Compute(in Input) model.Command
}

// Direct is a bang-bang controller with a symmetric deadband.
type Direct struct {
	DeadbandKmh     float64
	Throttle        float64
	Brake           float64
	SustainThrottle float64
}

// Name implements Strategy.
func (d Direct) Name() string { return "direct" }

// Compute implements Strategy. Inside the deadband (inclusive) it holds
// SustainThrottle. Throttle and brake are never both non-zero.
func (d Direct) Compute(in Input) model.Command {
	switch {
	case in.SpeedKmh < in.TargetKmh-d.DeadbandKmh:
		return model.DirectCommand(d.Throttle, 0)
	case in.SpeedKmh > in.TargetKmh+d.DeadbandKmh:
		return model.DirectCommand(0, d.Brake)
	default:
		return model.DirectCommand(d.SustainThrottle, 0)
	}
}

// Delegated submits a percentage speed difference to the pace-keeper.
//
// The pace-keeper reads a positive percentage as "drive that much slower than
// the limit", the opposite of "percent faster than the limit", so the raw
// offset is negated before it is sent. The sign convention is an assumption
// about the pace-keeper and has not been checked against a live simulator.
type Delegated struct {
	DefaultLimitKmh float64
}

// Name implements Strategy.
func (d Delegated) Name() string { return "delegated" }

// Compute implements Strategy. SpeedKmh is not used.
func (d Delegated) Compute(in Input) model.Command {
	return model.OffsetCommand(-d.RawOffset(in.TargetKmh, in.LimitKmh))
}

// RawOffset returns how many percent faster than limit the target is.
// A zero, negative or NaN limit is replaced by DefaultLimitKmh.
func (d Delegated) RawOffset(target, limit float64) float64 {
	if limit <= 0 || math.IsNaN(limit) {
		limit = d.DefaultLimitKmh
	}
	return (target - limit) / limit * 100
}

// Controller applies the configured strategy.
type Controller struct {
	strategy Strategy
}

// New builds a Controller from configuration.
func New(cfg model.ControllerConfig) (*Controller, error) {
	s, err := ParseStrategy(cfg.Strategy, cfg)
	if err != nil {
		return nil, err
	}
	return &Controller{strategy: s}, nil
}

// NewWithStrategy wraps an explicit strategy.
func NewWithStrategy(s Strategy) *Controller {
	return &Controller{strategy: s}
}

// Compute returns the command for this cycle.
func (c *Controller) Compute(in Input) model.Command {
	return c.strategy.Compute(in)
}

// Strategy returns the active strategy.
func (c *Controller) Strategy() Strategy { return c.strategy }

// ParseStrategy converts a strategy name into a Strategy built from cfg.
func ParseStrategy(name string, cfg model.ControllerConfig) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "direct", "pedal":
		return Direct{
			DeadbandKmh:     cfg.DeadbandKmh,
			Throttle:        cfg.Throttle,
			Brake:           cfg.Brake,
			SustainThrottle: cfg.SustainThrottle,
		}, nil
	case "delegated", "tm", "pace":
		if cfg.DefaultLimitKmh <= 0 {
			return nil, fmt.Errorf("delegated strategy needs a positive default limit, got %g", cfg.DefaultLimitKmh)
		}
		return Delegated{DefaultLimitKmh: cfg.DefaultLimitKmh}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
}
