package parser

import (
	"encoding/json"
	"fmt"

	"SignCruise/internal/model"
	"SignCruise/internal/relay"
)

// JSONParser implements Parser using one JSON object per line.
type JSONParser struct{}

// NewJSONParser creates a new JSON parser.
func NewJSONParser() *JSONParser { return &JSONParser{} }

// envelope is the union of every message; Type selects the populated fields.
type envelope struct {
	Type string `json:"type"`

	VX    float64 `json:"vx,omitempty"`
	VY    float64 `json:"vy,omitempty"`
	VZ    float64 `json:"vz,omitempty"`
	Limit float64 `json:"limit,omitempty"`

	Throttle float64 `json:"throttle,omitempty"`
	Brake    float64 `json:"brake,omitempty"`
	Percent  float64 `json:"percent,omitempty"`

	Height   int    `json:"height,omitempty"`
	Width    int    `json:"width,omitempty"`
	Channels int    `json:"channels,omitempty"`
	Data     []byte `json:"data,omitempty"` // base64 via encoding/json
}

func marshal(e envelope) (string, error) {
	b, err := json.Marshal(e)
	return string(b), err
}

// EncodeState encodes VehicleState into JSON.
func (p *JSONParser) EncodeState(s model.VehicleState) (string, error) {
	return marshal(envelope{Type: "state", VX: s.VX, VY: s.VY, VZ: s.VZ, Limit: s.SpeedLimit})
}

// EncodeCommand encodes a Command into JSON.
func (p *JSONParser) EncodeCommand(c model.Command) (string, error) {
	switch c.Kind {
	case model.CommandDirect:
		return marshal(envelope{Type: "ctrl", Throttle: c.Throttle, Brake: c.Brake})
	case model.CommandOffset:
		return marshal(envelope{Type: "offset", Percent: c.Percent})
	default:
		return "", fmt.Errorf("cannot encode command kind %v", c.Kind)
	}
}

// EncodeFrame encodes a raw image into JSON.
func (p *JSONParser) EncodeFrame(img relay.RawImage) (string, error) {
	return marshal(envelope{Type: "frame", Height: img.Height, Width: img.Width, Channels: img.Channels, Data: img.Data})
}

// Decode decodes any JSON bridge line.
func (p *JSONParser) Decode(line string) (Message, error) {
	var e envelope
	if err := json.Unmarshal([]byte(line), &e); err != nil {
		return Message{}, err
	}
	switch e.Type {
	case "state":
		return Message{Kind: KindState, State: model.VehicleState{VX: e.VX, VY: e.VY, VZ: e.VZ, SpeedLimit: e.Limit}}, nil
	case "ctrl":
		return Message{Kind: KindCommand, Command: model.DirectCommand(e.Throttle, e.Brake)}, nil
	case "offset":
		return Message{Kind: KindCommand, Command: model.OffsetCommand(e.Percent)}, nil
	case "frame":
		return Message{Kind: KindFrame, Frame: relay.RawImage{Height: e.Height, Width: e.Width, Channels: e.Channels, Data: e.Data}}, nil
	default:
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownMessage, e.Type)
	}
}
