package sim

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"SignCruise/internal/device"
	"SignCruise/internal/parser"
	"SignCruise/internal/relay"
)

// Peer serves a Local vehicle and a camera over a line device; it is the
// simulator side of a Bridge.
type Peer struct {
	Device        device.Device
	Parser        parser.Parser
	Vehicle       *Local
	Camera        *SyntheticCamera // optional
	StateInterval time.Duration

	commands atomic.Uint64
	frames   atomic.Uint64
}

// PeerStats counts traffic handled by a Peer.
type PeerStats struct {
	Commands uint64
	Frames   uint64
}

// Stats returns a snapshot of the counters.
func (p *Peer) Stats() PeerStats {
	return PeerStats{Commands: p.commands.Load(), Frames: p.frames.Load()}
}

// Run streams state and frames and applies incoming commands until ctx is
// cancelled or the link closes. The device is closed on return.
func (p *Peer) Run(ctx context.Context) error {
	if p.StateInterval <= 0 {
		return fmt.Errorf("peer state interval must be positive")
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	// any worker finishing ends the session
	g.Go(func() error {
		<-ctx.Done()
		return p.Device.Close()
	})

	g.Go(func() error {
		defer cancel()
		t := time.NewTicker(p.StateInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-t.C:
			}
			st, err := p.Vehicle.State(ctx)
			if err != nil {
				return nil
			}
			line, err := p.Parser.EncodeState(st)
			if err != nil {
				return fmt.Errorf("encode state: %w", err)
			}
			if err := p.Device.WriteLine(line); err != nil {
				return linkErr(ctx, err)
			}
		}
	})

	if p.Camera != nil {
		frameErr := make(chan error, 1)
		if err := p.Camera.Listen(func(img relay.RawImage) {
			line, err := p.Parser.EncodeFrame(img)
			if err == nil {
				err = p.Device.WriteLine(line)
			}
			if err != nil {
				select {
				case frameErr <- err:
				default:
				}
				return
			}
			p.frames.Add(1)
		}); err != nil {
			return err
		}
		g.Go(func() error {
			defer cancel()
			defer p.Camera.Stop()
			select {
			case <-ctx.Done():
				return nil
			case err := <-frameErr:
				return linkErr(ctx, err)
			}
		})
	}

	g.Go(func() error {
		defer cancel()
		for {
			line, err := p.Device.ReadLine(0)
			if err != nil {
				return linkErr(ctx, err)
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			msg, err := p.Parser.Decode(line)
			if err != nil {
				slog.Warn("peer decode failed", "error", err)
				continue
			}
			if msg.Kind != parser.KindCommand {
				continue
			}
			if err := p.Vehicle.Apply(ctx, msg.Command); err != nil {
				return nil
			}
			p.commands.Add(1)
			slog.Debug("peer applied command", "command", msg.Command)
		}
	})

	return g.Wait()
}

// linkErr maps errors caused by shutdown to nil.
func linkErr(ctx context.Context, err error) error {
	if ctx.Err() != nil || errors.Is(err, device.ErrClosed) || errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
