// Package model defines the configuration and message structures shared by the
// SignCruise components: the signal generator, the speed controller, the frame
// relay, the vehicle link and the preview app.
package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Link kinds accepted by VehicleConfig.Link.
const (
	LinkLocal  = "local"
	LinkSerial = "serial"
	LinkTCP    = "tcp"
)

// Config represents the root structure loaded from configs/cruise.yml.
type Config struct {
	Global     GlobalConfig     `yaml:"global"`
	Signal     SignalConfig     `yaml:"signal"`
	Controller ControllerConfig `yaml:"controller"`
	Vehicle    VehicleConfig    `yaml:"vehicle"`
	Camera     CameraConfig     `yaml:"camera"`
	Preview    PreviewConfig    `yaml:"preview"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
}

// GlobalConfig defines process-wide settings.
type GlobalConfig struct {
	LogLevel    string `yaml:"log_level"`  // debug, info, warn, error
	LogFormat   string `yaml:"log_format"` // text or json
	LoopDelayMs int    `yaml:"loop_delay_ms"`
	RunID       string `yaml:"run_id"` // generated when empty
}

// SignalConfig drives the synthetic speed-limit sign generator.
type SignalConfig struct {
	Limits        []int `yaml:"limits"` // legal speed limits in km/h
	InitialTarget int   `yaml:"initial_target"`
	IntervalMinMs int   `yaml:"interval_min_ms"`
	IntervalMaxMs int   `yaml:"interval_max_ms"` // equal to min for a fixed interval
	Seed          int64 `yaml:"seed"`            // 0 seeds from the clock
}

// ControllerConfig selects the speed control strategy and its magnitudes.
type ControllerConfig struct {
	Strategy        string  `yaml:"strategy"` // direct or delegated
	DeadbandKmh     float64 `yaml:"deadband_kmh"`
	Throttle        float64 `yaml:"throttle"`
	Brake           float64 `yaml:"brake"`
	SustainThrottle float64 `yaml:"sustain_throttle"`
	DefaultLimitKmh float64 `yaml:"default_limit_kmh"`
}

// VehicleConfig selects how the controlled vehicle is reached.
type VehicleConfig struct {
	Link          string  `yaml:"link"`   // local, serial or tcp
	Device        string  `yaml:"device"` // serial device path
	Baud          int     `yaml:"baud"`
	Addr          string  `yaml:"addr"`        // tcp address of the simulator bridge
	WireFormat    string  `yaml:"wire_format"` // csv or json
	SpeedLimitKmh float64 `yaml:"speed_limit_kmh"`
	MaxAccel      float64 `yaml:"max_accel"` // m/s^2 at full throttle
	MaxDecel      float64 `yaml:"max_decel"` // m/s^2 at full brake
	Drag          float64 `yaml:"drag"`      // 1/s linear drag
}

// CameraConfig describes the front camera attached to the vehicle.
type CameraConfig struct {
	Width  int     `yaml:"width"`
	Height int     `yaml:"height"`
	FPS    float64 `yaml:"fps"`
}

// PreviewConfig controls the HTTP preview surface. An empty Addr disables it.
type PreviewConfig struct {
	Addr    string `yaml:"addr"`
	QuitKey int    `yaml:"quit_key"`
}

// TelemetryConfig controls the MQTT publisher. An empty broker disables it.
type TelemetryConfig struct {
	MQTTBroker       string `yaml:"mqtt_broker"`
	TopicPrefix      string `yaml:"topic_prefix"`
	StatusIntervalMs int    `yaml:"status_interval_ms"`
}

// DefaultConfig returns a Config with every default applied.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// LoadConfig reads and validates the YAML configuration at path.
// Keys omitted from the file keep their defaults; keys present, zero
// included, are taken as written.
func LoadConfig(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	b, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", cleanPath, err)
	}
	cfg := DefaultConfig()
	cfg.Global.RunID = ""
	// derived from interval_min_ms unless set
	cfg.Signal.IntervalMaxMs = -1
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", cleanPath, err)
	}
	if cfg.Global.RunID == "" {
		cfg.Global.RunID = uuid.NewString()
	}
	if cfg.Signal.IntervalMaxMs == -1 {
		cfg.Signal.IntervalMaxMs = max(5000, cfg.Signal.IntervalMinMs)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.Global.LogLevel == "" {
		c.Global.LogLevel = "info"
	}
	if c.Global.LogFormat == "" {
		c.Global.LogFormat = "text"
	}
	if c.Global.LoopDelayMs == 0 {
		c.Global.LoopDelayMs = 50
	}
	if c.Global.RunID == "" {
		c.Global.RunID = uuid.NewString()
	}

	if len(c.Signal.Limits) == 0 {
		c.Signal.Limits = []int{30, 50, 70, 90}
	}
	if c.Signal.InitialTarget == 0 {
		c.Signal.InitialTarget = 30
	}
	if c.Signal.IntervalMinMs == 0 {
		c.Signal.IntervalMinMs = 3000
	}
	if c.Signal.IntervalMaxMs == 0 {
		c.Signal.IntervalMaxMs = max(5000, c.Signal.IntervalMinMs)
	}

	if c.Controller.Strategy == "" {
		c.Controller.Strategy = "direct"
	}
	if c.Controller.DeadbandKmh == 0 {
		c.Controller.DeadbandKmh = 1
	}
	if c.Controller.Throttle == 0 {
		c.Controller.Throttle = 0.5
	}
	if c.Controller.Brake == 0 {
		c.Controller.Brake = 0.3
	}
	if c.Controller.SustainThrottle == 0 {
		c.Controller.SustainThrottle = 0.3
	}
	if c.Controller.DefaultLimitKmh == 0 {
		c.Controller.DefaultLimitKmh = 30
	}

	if c.Vehicle.Link == "" {
		c.Vehicle.Link = LinkLocal
	}
	if c.Vehicle.Baud == 0 {
		c.Vehicle.Baud = 115200
	}
	if c.Vehicle.WireFormat == "" {
		c.Vehicle.WireFormat = "csv"
	}
	if c.Vehicle.MaxAccel == 0 {
		c.Vehicle.MaxAccel = 4.0
	}
	if c.Vehicle.MaxDecel == 0 {
		c.Vehicle.MaxDecel = 8.0
	}
	if c.Vehicle.Drag == 0 {
		c.Vehicle.Drag = 0.05
	}

	if c.Camera.Width == 0 {
		c.Camera.Width = 640
	}
	if c.Camera.Height == 0 {
		c.Camera.Height = 480
	}
	if c.Camera.FPS == 0 {
		c.Camera.FPS = 20
	}

	if c.Preview.QuitKey == 0 {
		c.Preview.QuitKey = 27
	}

	if c.Telemetry.TopicPrefix == "" {
		c.Telemetry.TopicPrefix = "signcruise"
	}
	if c.Telemetry.StatusIntervalMs == 0 {
		c.Telemetry.StatusIntervalMs = 1000
	}
}

// Validate checks invariants that defaults cannot repair.
func (c *Config) Validate() error {
	for _, l := range c.Signal.Limits {
		if l <= 0 {
			return fmt.Errorf("%w: signal.limits must be positive, got %d", ErrInvalidConfig, l)
		}
	}
	if !slices.Contains(c.Signal.Limits, c.Signal.InitialTarget) {
		return fmt.Errorf("%w: signal.initial_target %d not in limits %v", ErrInvalidConfig, c.Signal.InitialTarget, c.Signal.Limits)
	}
	if c.Signal.IntervalMinMs < 0 || c.Signal.IntervalMaxMs < c.Signal.IntervalMinMs {
		return fmt.Errorf("%w: signal interval [%d, %d] ms", ErrInvalidConfig, c.Signal.IntervalMinMs, c.Signal.IntervalMaxMs)
	}
	if c.Global.LoopDelayMs < 0 {
		return fmt.Errorf("%w: global.loop_delay_ms must not be negative", ErrInvalidConfig)
	}

	ctl := c.Controller
	if ctl.DeadbandKmh < 0 {
		return fmt.Errorf("%w: controller.deadband_kmh must not be negative", ErrInvalidConfig)
	}
	for name, v := range map[string]float64{
		"throttle":         ctl.Throttle,
		"brake":            ctl.Brake,
		"sustain_throttle": ctl.SustainThrottle,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%w: controller.%s must be in [0,1], got %g", ErrInvalidConfig, name, v)
		}
	}
	if ctl.DefaultLimitKmh <= 0 {
		return fmt.Errorf("%w: controller.default_limit_kmh must be positive", ErrInvalidConfig)
	}

	switch c.Vehicle.Link {
	case LinkLocal:
	case LinkSerial:
		if c.Vehicle.Device == "" {
			return fmt.Errorf("%w: vehicle.device required for serial link", ErrInvalidConfig)
		}
	case LinkTCP:
		if c.Vehicle.Addr == "" {
			return fmt.Errorf("%w: vehicle.addr required for tcp link", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown vehicle.link %q", ErrInvalidConfig, c.Vehicle.Link)
	}
	if c.Vehicle.WireFormat != "csv" && c.Vehicle.WireFormat != "json" {
		return fmt.Errorf("%w: unknown vehicle.wire_format %q", ErrInvalidConfig, c.Vehicle.WireFormat)
	}
	if c.Camera.Width <= 0 || c.Camera.Height <= 0 || c.Camera.FPS <= 0 {
		return fmt.Errorf("%w: camera dimensions and fps must be positive", ErrInvalidConfig)
	}
	return nil
}

// LoopDelay returns the fixed delay between control cycles.
func (c *Config) LoopDelay() time.Duration {
	return time.Duration(c.Global.LoopDelayMs) * time.Millisecond
}

// IntervalBounds returns the signal interval bounds.
func (s SignalConfig) IntervalBounds() (time.Duration, time.Duration) {
	return time.Duration(s.IntervalMinMs) * time.Millisecond, time.Duration(s.IntervalMaxMs) * time.Millisecond
}

// StatusInterval returns the telemetry status publish interval.
func (t TelemetryConfig) StatusInterval() time.Duration {
	return time.Duration(t.StatusIntervalMs) * time.Millisecond
}
