package parser

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"SignCruise/internal/model"
	"SignCruise/internal/relay"
)

// CSVParser implements Parser using comma-separated values.
type CSVParser struct{}

// NewCSVParser creates a new CSV parser instance.
func NewCSVParser() *CSVParser { return &CSVParser{} }

// EncodeState converts VehicleState into a STATE line.
func (p *CSVParser) EncodeState(s model.VehicleState) (string, error) {
	return fmt.Sprintf("STATE,%.4f,%.4f,%.4f,%.2f", s.VX, s.VY, s.VZ, s.SpeedLimit), nil
}

// EncodeCommand converts a Command into a CTRL or OFFSET line.
func (p *CSVParser) EncodeCommand(c model.Command) (string, error) {
	switch c.Kind {
	case model.CommandDirect:
		return fmt.Sprintf("CTRL,%.3f,%.3f", c.Throttle, c.Brake), nil
	case model.CommandOffset:
		return fmt.Sprintf("OFFSET,%.3f", c.Percent), nil
	default:
		return "", fmt.Errorf("cannot encode command kind %v", c.Kind)
	}
}

// EncodeFrame converts a raw image into a FRAME line.
func (p *CSVParser) EncodeFrame(img relay.RawImage) (string, error) {
	return fmt.Sprintf("FRAME,%d,%d,%d,%s", img.Height, img.Width, img.Channels,
		base64.StdEncoding.EncodeToString(img.Data)), nil
}

// Decode parses any bridge line.
func (p *CSVParser) Decode(line string) (Message, error) {
	fields := strings.Split(strings.TrimSpace(line), ",")
	switch fields[0] {
	case "STATE":
		v, err := parseFloats(fields, 4)
		if err != nil {
			return Message{}, fmt.Errorf("STATE: %w", err)
		}
		return Message{Kind: KindState, State: model.VehicleState{VX: v[0], VY: v[1], VZ: v[2], SpeedLimit: v[3]}}, nil
	case "CTRL":
		v, err := parseFloats(fields, 2)
		if err != nil {
			return Message{}, fmt.Errorf("CTRL: %w", err)
		}
		return Message{Kind: KindCommand, Command: model.DirectCommand(v[0], v[1])}, nil
	case "OFFSET":
		v, err := parseFloats(fields, 1)
		if err != nil {
			return Message{}, fmt.Errorf("OFFSET: %w", err)
		}
		return Message{Kind: KindCommand, Command: model.OffsetCommand(v[0])}, nil
	case "FRAME":
		return decodeCSVFrame(fields)
	default:
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownMessage, fields[0])
	}
}

func decodeCSVFrame(fields []string) (Message, error) {
	if len(fields) != 5 {
		return Message{}, fmt.Errorf("FRAME: expected 5 fields, got %d", len(fields))
	}
	dims := make([]int, 3)
	for i := range dims {
		n, err := strconv.Atoi(fields[i+1])
		if err != nil {
			return Message{}, fmt.Errorf("FRAME: invalid dimension %q", fields[i+1])
		}
		dims[i] = n
	}
	data, err := base64.StdEncoding.DecodeString(fields[4])
	if err != nil {
		return Message{}, fmt.Errorf("FRAME: invalid pixels: %w", err)
	}
	return Message{Kind: KindFrame, Frame: relay.RawImage{Height: dims[0], Width: dims[1], Channels: dims[2], Data: data}}, nil
}

// parseFloats parses fields[1:] and requires exactly n values.
func parseFloats(fields []string, n int) ([]float64, error) {
	if len(fields) != n+1 {
		return nil, fmt.Errorf("expected %d fields, got %d", n+1, len(fields))
	}
	out := make([]float64, n)
	for i := range out {
		v, err := strconv.ParseFloat(strings.TrimSpace(fields[i+1]), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid value %q", fields[i+1])
		}
		out[i] = v
	}
	return out, nil
}
