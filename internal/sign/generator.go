// Package sign simulates speed-limit sign detection.
//
// The Generator fires on an irregular wall-clock timer, independent of how
// often it is polled, and draws a new limit from a fixed legal set. Only a
// draw that differs from the current target is reported; a repeated draw
// still resets the timer so the generator cannot fire again immediately.
package sign

import (
	"errors"
	"fmt"
	"math/rand"
	"slices"
	"time"

	"SignCruise/internal/model"
)

// Picker is the randomness the Generator draws from. *rand.Rand satisfies it.
type Picker interface {
	Intn(n int) int
	Int63n(n int64) int64
}

// Option configures a Generator.
type Option func(*Generator)

// WithPicker replaces the random source, mainly for tests.
func WithPicker(p Picker) Option {
	return func(g *Generator) { g.pick = p }
}

// Stats counts generator activity.
type Stats struct {
	Fired      uint64 // timer expirations
	Announced  uint64 // firings that changed the target
	Suppressed uint64 // firings that drew the current target again
}

// Generator produces speed-limit change events. Not safe for concurrent use;
// it is owned by the control loop.
type Generator struct {
	limits      []int
	minInterval time.Duration
	maxInterval time.Duration
	pick        Picker

	target    int
	lastFired time.Time
	threshold time.Duration
	stats     Stats
}

// New builds a Generator whose timer starts at start.
func New(cfg model.SignalConfig, start time.Time, opts ...Option) (*Generator, error) {
	if len(cfg.Limits) == 0 {
		return nil, errors.New("sign: no legal limits")
	}
	for _, l := range cfg.Limits {
		if l <= 0 {
			return nil, fmt.Errorf("sign: limit %d is not positive", l)
		}
	}
	if !slices.Contains(cfg.Limits, cfg.InitialTarget) {
		return nil, fmt.Errorf("sign: initial target %d not in %v", cfg.InitialTarget, cfg.Limits)
	}
	minI, maxI := cfg.IntervalBounds()
	if minI < 0 || maxI < minI {
		return nil, fmt.Errorf("sign: bad interval [%s, %s]", minI, maxI)
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	g := &Generator{
		limits:      slices.Clone(cfg.Limits),
		minInterval: minI,
		maxInterval: maxI,
		pick:        rand.New(rand.NewSource(seed)),
		target:      cfg.InitialTarget,
		lastFired:   start,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.threshold = g.nextThreshold()
	return g, nil
}

// MaybeEmit fires the generator if more than the current threshold has
// elapsed since the last firing. It returns the current target and whether a
// new limit was announced by this call.
func (g *Generator) MaybeEmit(now time.Time) (int, bool) {
	if now.Sub(g.lastFired) <= g.threshold {
		return g.target, false
	}

	g.stats.Fired++
	g.lastFired = now
	g.threshold = g.nextThreshold()

	drawn := g.limits[g.pick.Intn(len(g.limits))]
	if drawn == g.target {
		g.stats.Suppressed++
		return g.target, false
	}
	g.target = drawn
	g.stats.Announced++
	return drawn, true
}

// Target returns the current speed target in km/h.
func (g *Generator) Target() int { return g.target }

// LastFired returns when the timer was last reset.
func (g *Generator) LastFired() time.Time { return g.lastFired }

// Threshold returns the interval that must elapse before the next firing.
func (g *Generator) Threshold() time.Duration { return g.threshold }

// Stats returns the generator counters.
func (g *Generator) Stats() Stats { return g.stats }

func (g *Generator) nextThreshold() time.Duration {
	span := g.maxInterval - g.minInterval
	if span <= 0 {
		return g.minInterval
	}
	return g.minInterval + time.Duration(g.pick.Int63n(int64(span)+1))
}
