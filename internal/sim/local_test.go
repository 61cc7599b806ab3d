package sim

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignCruise/internal/model"
)

type fakeClock struct{ t time.Time }

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time      { return c.t }
func (c *fakeClock) Add(d time.Duration) { c.t = c.t.Add(d) }

func vehicleCfg() model.VehicleConfig { return model.DefaultConfig().Vehicle }

func speedOf(t *testing.T, l *Local) float64 {
	t.Helper()
	st, err := l.State(context.Background())
	require.NoError(t, err)
	return st.SpeedKmh()
}

func TestLocalThrottleAccelerates(t *testing.T) {
	clk := newClock()
	l := NewLocal(vehicleCfg(), WithClock(clk.Now))
	ctx := context.Background()

	assert.Zero(t, speedOf(t, l))
	require.NoError(t, l.Apply(ctx, model.DirectCommand(0.5, 0)))
	clk.Add(time.Second)

	// 0.5 * 4 m/s^2 for 1s, minus a little drag
	v := speedOf(t, l)
	assert.InDelta(t, 7.2, v, 0.3)
	assert.Less(t, v, 7.2)
}

func TestLocalBrakeStopsAtZero(t *testing.T) {
	clk := newClock()
	l := NewLocal(vehicleCfg(), WithClock(clk.Now), WithSpeed(36))
	ctx := context.Background()

	require.NoError(t, l.Apply(ctx, model.DirectCommand(0, 1)))
	clk.Add(500 * time.Millisecond)
	v := speedOf(t, l)
	assert.Greater(t, v, 0.0)
	assert.Less(t, v, 36.0)

	clk.Add(10 * time.Second)
	assert.Zero(t, speedOf(t, l))
}

func TestLocalOffsetTracksPace(t *testing.T) {
	cfg := vehicleCfg()
	cfg.SpeedLimitKmh = 50
	clk := newClock()
	l := NewLocal(cfg, WithClock(clk.Now))
	ctx := context.Background()

	// +40% means 40% slower than the limit
	require.NoError(t, l.Apply(ctx, model.OffsetCommand(40)))
	clk.Add(30 * time.Second)
	assert.InDelta(t, 30, speedOf(t, l), 0.1)

	require.NoError(t, l.Apply(ctx, model.OffsetCommand(-40)))
	clk.Add(30 * time.Second)
	assert.InDelta(t, 70, speedOf(t, l), 0.1)
}

func TestLocalOffsetWithoutLimitUsesPaceDefault(t *testing.T) {
	clk := newClock()
	l := NewLocal(vehicleCfg(), WithClock(clk.Now))
	require.NoError(t, l.Apply(context.Background(), model.OffsetCommand(0)))
	clk.Add(30 * time.Second)
	assert.InDelta(t, paceLimitKmh, speedOf(t, l), 0.1)
}

func TestLocalReportsLimit(t *testing.T) {
	l := NewLocal(vehicleCfg())
	st, err := l.State(context.Background())
	require.NoError(t, err)
	assert.Zero(t, st.SpeedLimit)

	l.SetSpeedLimit(90)
	st, err = l.State(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 90.0, st.SpeedLimit)
}

func TestLocalClosed(t *testing.T) {
	l := NewLocal(vehicleCfg())
	require.NoError(t, l.Close())
	_, err := l.State(context.Background())
	assert.ErrorIs(t, err, ErrLinkClosed)
	assert.ErrorIs(t, l.Apply(context.Background(), model.DirectCommand(0, 0)), ErrLinkClosed)
}

func TestLocalCancelledContext(t *testing.T) {
	l := NewLocal(vehicleCfg())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := l.State(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
