package model

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/floats"
)

// VehicleState is a per-cycle snapshot of the controlled vehicle.
type VehicleState struct {
	VX         float64 `json:"vx"` // m/s
	VY         float64 `json:"vy"`
	VZ         float64 `json:"vz"`
	SpeedLimit float64 `json:"speed_limit"` // km/h reported by the simulator, 0 when unknown
}

// SpeedKmh returns the scalar speed in km/h (3.6 × |v|).
func (s VehicleState) SpeedKmh() float64 {
	return 3.6 * floats.Norm([]float64{s.VX, s.VY, s.VZ}, 2)
}

// CommandKind distinguishes direct pedal commands from pace-keeper offsets.
type CommandKind int

const (
	// CommandDirect carries a throttle/brake pair.
	CommandDirect CommandKind = iota + 1
	// CommandOffset carries a percentage speed difference for the pace-keeper.
	CommandOffset
)

func (k CommandKind) String() string {
	switch k {
	case CommandDirect:
		return "direct"
	case CommandOffset:
		return "offset"
	default:
		return fmt.Sprintf("CommandKind(%d)", int(k))
	}
}

// Command is the actuation issued once per control cycle.
//
// For CommandDirect, Throttle and Brake are fractions in [0, 1] and are never
// both non-zero. For CommandOffset, Percent is the value submitted to the
// pace-keeper: positive means slower than the reported limit.
type Command struct {
	Kind     CommandKind `json:"-"`
	Throttle float64     `json:"throttle"`
	Brake    float64     `json:"brake"`
	Percent  float64     `json:"percent"`
}

// DirectCommand builds a throttle/brake command.
func DirectCommand(throttle, brake float64) Command {
	return Command{Kind: CommandDirect, Throttle: throttle, Brake: brake}
}

// OffsetCommand builds a pace-keeper percentage command.
func OffsetCommand(percent float64) Command {
	return Command{Kind: CommandOffset, Percent: percent}
}

func (c Command) String() string {
	if c.Kind == CommandOffset {
		return fmt.Sprintf("offset(%+.1f%%)", c.Percent)
	}
	return fmt.Sprintf("direct(throttle=%.2f brake=%.2f)", c.Throttle, c.Brake)
}

// SignEvent announces a newly detected speed limit.
type SignEvent struct {
	RunID    string    `json:"run_id"`
	From     int       `json:"from_kmh"`
	To       int       `json:"to_kmh"`
	Detected time.Time `json:"detected"`
}

// Status is the loop's most recent cycle, shared with the preview app and telemetry.
type Status struct {
	RunID      string    `json:"run_id"`
	Cycle      uint64    `json:"cycle"`
	Time       time.Time `json:"time"`
	Strategy   string    `json:"strategy"`
	SpeedKmh   float64   `json:"speed_kmh"`
	TargetKmh  int       `json:"target_kmh"`
	LimitKmh   float64   `json:"limit_kmh"`
	Command    string    `json:"command"`
	Throttle   float64   `json:"throttle"`
	Brake      float64   `json:"brake"`
	Percent    float64   `json:"percent"`
	FrameSeq   uint64    `json:"frame_seq"`
	FramesSeen uint64    `json:"frames_received"`
	Signs      uint64    `json:"signs_announced"`
}
