// Package parser converts simulator bridge wire lines to structured types and
// vice-versa.
//
// CSV wire format (bridge -> controller):
//
//	STATE,VX,VY,VZ,LIMIT
//	FRAME,HEIGHT,WIDTH,CHANNELS,BASE64_PIXELS
//
// CSV wire format (controller -> bridge):
//
//	CTRL,THROTTLE,BRAKE
//	OFFSET,PERCENT
//
// The JSON format carries the same fields in one object per line, tagged by
// "type".
package parser

import (
	"errors"
	"fmt"
	"strings"

	"SignCruise/internal/model"
	"SignCruise/internal/relay"
)

// ErrUnknownMessage is returned when a line carries no recognised tag.
var ErrUnknownMessage = errors.New("unknown message")

// Kind tags a decoded Message.
type Kind int

const (
	KindState Kind = iota + 1
	KindCommand
	KindFrame
)

// Message is one decoded wire line; only the field matching Kind is set.
type Message struct {
	Kind    Kind
	State   model.VehicleState
	Command model.Command
	Frame   relay.RawImage
}

// Parser encodes and decodes bridge messages in one wire format.
type Parser interface {
	EncodeState(s model.VehicleState) (string, error)
	EncodeCommand(c model.Command) (string, error)
	EncodeFrame(img relay.RawImage) (string, error)
	Decode(line string) (Message, error)
}

// New returns the parser for format ("csv" or "json").
func New(format string) (Parser, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "csv":
		return NewCSVParser(), nil
	case "json":
		return NewJSONParser(), nil
	default:
		return nil, fmt.Errorf("unknown wire format %q", format)
	}
}
