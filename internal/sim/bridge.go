package sim

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"SignCruise/internal/device"
	"SignCruise/internal/model"
	"SignCruise/internal/parser"
	"SignCruise/internal/relay"
)

// Bridge is a remote simulator reached over a line device. It is both the
// vehicle (STATE in, CTRL/OFFSET out) and the camera (FRAME in).
//
// A reader goroutine keeps the latest state and hands frames to the
// listener; State never blocks on the wire.
type Bridge struct {
	dev    device.Device
	parser parser.Parser

	mu       sync.Mutex
	state    model.VehicleState
	onFrame  func(relay.RawImage)
	gotState bool

	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// NewBridge starts reading from dev.
func NewBridge(dev device.Device, p parser.Parser) *Bridge {
	b := &Bridge{
		dev:    dev,
		parser: p,
		done:   make(chan struct{}),
	}
	go b.loop()
	return b
}

// loop continuously reads lines from the device and dispatches them.
func (b *Bridge) loop() {
	defer close(b.done)
	for {
		line, err := b.dev.ReadLine(0)
		if err != nil {
			if errors.Is(err, device.ErrClosed) || errors.Is(err, io.EOF) {
				slog.Info("bridge reader stopped", "reason", err)
				return
			}
			slog.Warn("bridge read failed", "error", err)
			time.Sleep(100 * time.Millisecond)
			continue
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		msg, err := b.parser.Decode(line)
		if err != nil {
			slog.Warn("bridge decode failed", "error", err)
			continue
		}
		switch msg.Kind {
		case parser.KindState:
			b.mu.Lock()
			b.state = msg.State
			b.gotState = true
			b.mu.Unlock()
		case parser.KindFrame:
			b.mu.Lock()
			fn := b.onFrame
			b.mu.Unlock()
			if fn != nil {
				fn(msg.Frame)
			}
		default:
			slog.Debug("bridge ignored message", "kind", msg.Kind)
		}
	}
}

// State returns the most recent state. Before the first STATE line arrives
// it returns ErrNotReady without waiting, so the loop keeps cycling.
func (b *Bridge) State(ctx context.Context) (model.VehicleState, error) {
	if err := ctx.Err(); err != nil {
		return model.VehicleState{}, err
	}
	select {
	case <-b.done:
		return model.VehicleState{}, ErrLinkClosed
	default:
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.gotState {
		return model.VehicleState{}, ErrNotReady
	}
	return b.state, nil
}

// Apply sends cmd to the simulator.
func (b *Bridge) Apply(ctx context.Context, cmd model.Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	line, err := b.parser.EncodeCommand(cmd)
	if err != nil {
		return fmt.Errorf("encode command: %w", err)
	}
	if err := b.dev.WriteLine(line); err != nil {
		if errors.Is(err, device.ErrClosed) {
			return ErrLinkClosed
		}
		return fmt.Errorf("write command: %w", err)
	}
	return nil
}

// Listen registers fn for frames arriving over the link.
func (b *Bridge) Listen(fn func(relay.RawImage)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.onFrame != nil {
		return errors.New("bridge camera already listening")
	}
	b.onFrame = fn
	return nil
}

// Stop detaches the frame listener.
func (b *Bridge) Stop() error {
	b.mu.Lock()
	b.onFrame = nil
	b.mu.Unlock()
	return nil
}

// Close closes the device and waits for the reader to exit.
func (b *Bridge) Close() error {
	b.closeOnce.Do(func() {
		b.closeErr = b.dev.Close()
		<-b.done
	})
	return b.closeErr
}
