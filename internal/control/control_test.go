package control

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignCruise/internal/model"
)

func defaultCfg() model.ControllerConfig {
	return model.DefaultConfig().Controller
}

func direct(t *testing.T) *Controller {
	t.Helper()
	c, err := New(defaultCfg())
	require.NoError(t, err)
	return c
}

func TestDirectDeadbandIsIdempotent(t *testing.T) {
	c := direct(t)
	want := model.DirectCommand(0.3, 0)
	for _, speed := range []float64{29.01, 29.5, 30, 30.5, 30.99} {
		for i := 0; i < 5; i++ {
			assert.Equal(t, want, c.Compute(Input{SpeedKmh: speed, TargetKmh: 30}), "speed %.2f call %d", speed, i)
		}
	}
}

func TestDirectMonotonicCorrection(t *testing.T) {
	c := direct(t)
	for _, target := range []float64{30, 50, 70, 90} {
		for speed := 0.0; speed <= 150; speed += 0.7 {
			cmd := c.Compute(Input{SpeedKmh: speed, TargetKmh: target})
			assert.Equal(t, model.CommandDirect, cmd.Kind)
			assert.False(t, cmd.Throttle > 0 && cmd.Brake > 0, "both pedals at speed=%.1f target=%.0f", speed, target)
			switch {
			case speed < target-1:
				assert.Positive(t, cmd.Throttle)
				assert.Zero(t, cmd.Brake)
			case speed > target+1:
				assert.Zero(t, cmd.Throttle)
				assert.Positive(t, cmd.Brake)
			}
		}
	}
}

func TestDirectScenario(t *testing.T) {
	c := direct(t)
	speeds := []float64{10, 29.2, 30.4, 50}
	want := []model.Command{
		model.DirectCommand(0.5, 0),
		model.DirectCommand(0.3, 0),
		model.DirectCommand(0.3, 0),
		model.DirectCommand(0, 0.3),
	}
	// 29.2 and 30.4 are inside 30±1, so both sustain.
	for i, s := range speeds {
		assert.Equal(t, want[i], c.Compute(Input{SpeedKmh: s, TargetKmh: 30}), "speed %.1f", s)
	}
}

func TestDirectCustomMagnitudes(t *testing.T) {
	c := NewWithStrategy(Direct{DeadbandKmh: 5, Throttle: 0.8, Brake: 0.6, SustainThrottle: 0.1})
	assert.Equal(t, model.DirectCommand(0.8, 0), c.Compute(Input{SpeedKmh: 44, TargetKmh: 50}))
	assert.Equal(t, model.DirectCommand(0.1, 0), c.Compute(Input{SpeedKmh: 46, TargetKmh: 50}))
	assert.Equal(t, model.DirectCommand(0, 0.6), c.Compute(Input{SpeedKmh: 56, TargetKmh: 50}))
}

func TestDelegatedOffset(t *testing.T) {
	d := Delegated{DefaultLimitKmh: 30}

	assert.InDelta(t, 100, d.RawOffset(50, 25), 1e-9)
	assert.InDelta(t, -100, d.Compute(Input{TargetKmh: 50, LimitKmh: 25}).Percent, 1e-9)

	assert.Zero(t, d.RawOffset(50, 50))
	assert.Zero(t, d.Compute(Input{TargetKmh: 50, LimitKmh: 50}).Percent)

	// slower than the limit -> positive percent for the pace-keeper
	assert.InDelta(t, 40, d.Compute(Input{TargetKmh: 30, LimitKmh: 50}).Percent, 1e-9)
}

func TestDelegatedZeroLimitUsesDefault(t *testing.T) {
	d := Delegated{DefaultLimitKmh: 30}
	for _, limit := range []float64{0, -10, math.NaN()} {
		cmd := d.Compute(Input{TargetKmh: 90, LimitKmh: limit})
		assert.Equal(t, model.CommandOffset, cmd.Kind)
		assert.False(t, math.IsInf(cmd.Percent, 0) || math.IsNaN(cmd.Percent))
		assert.InDelta(t, -200, cmd.Percent, 1e-9)
	}
}

func TestDelegatedIgnoresSpeedAndDoesNotAccumulate(t *testing.T) {
	c, err := New(model.ControllerConfig{Strategy: "delegated", DefaultLimitKmh: 30})
	require.NoError(t, err)

	first := c.Compute(Input{SpeedKmh: 10, TargetKmh: 70, LimitKmh: 50})
	for _, speed := range []float64{0, 40, 70, 120} {
		cmd := c.Compute(Input{SpeedKmh: speed, TargetKmh: 70, LimitKmh: 50})
		assert.Equal(t, first, cmd)
		assert.Zero(t, cmd.Throttle)
		assert.Zero(t, cmd.Brake)
	}
}

func TestParseStrategy(t *testing.T) {
	cfg := defaultCfg()
	tests := []struct {
		in   string
		want string
	}{
		{"direct", "direct"},
		{" DIRECT ", "direct"},
		{"delegated", "delegated"},
		{"tm", "delegated"},
	}
	for _, tt := range tests {
		s, err := ParseStrategy(tt.in, cfg)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, s.Name())
	}

	_, err := ParseStrategy("pid", cfg)
	assert.ErrorIs(t, err, ErrUnknownStrategy)

	_, err = ParseStrategy("delegated", model.ControllerConfig{})
	assert.Error(t, err)
}
