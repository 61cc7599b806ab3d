// Package relay holds the newest camera frame for the control loop.
//
// The sensor pushes raw buffers from its own goroutine through OnFrame; the
// loop polls Latest. Only the most recent frame is retained: a frame that is
// replaced before anyone reads it is dropped, which is expected under load.
//
// Published frames are immutable. OnFrame builds a fresh buffer and swaps a
// single pointer, so a reader sees either the previous frame or the new one
// in full, never a mix.
package relay

import (
	"log/slog"
	"sync/atomic"
	"time"
)

// RawImage is a sensor buffer as delivered by the simulator: Height rows of
// Width pixels with Channels interleaved 8-bit channels (BGRA for the
// simulator's RGB camera).
type RawImage struct {
	Height    int
	Width     int
	Channels  int
	Data      []byte
	Timestamp time.Time
}

// Frame is a Height × Width × 3 image. Pix holds the first three channels
// of every source pixel in source order; any alpha channel is discarded.
// MUST NOT be modified after it is published.
type Frame struct {
	Height    int
	Width     int
	Pix       []byte
	Seq       uint64
	Timestamp time.Time
}

// Stats is a snapshot of relay counters.
type Stats struct {
	Received uint64 // frames published
	Ignored  uint64 // empty or malformed buffers
	Dropped  uint64 // frames replaced before any read
	LastSeq  uint64
}

// Relay is a single-slot, single-producer/single-consumer frame mailbox.
// The zero value is ready to use.
type Relay struct {
	latest atomic.Pointer[Frame]
	seq    atomic.Uint64

	lastRead atomic.Uint64
	ignored  atomic.Uint64
	dropped  atomic.Uint64
}

// New returns an empty relay.
func New() *Relay {
	return &Relay{}
}

// OnFrame converts img into a Frame and replaces the stored frame.
// Empty or inconsistent buffers are ignored. Never blocks.
func (r *Relay) OnFrame(img RawImage) {
	if len(img.Data) == 0 {
		r.ignored.Add(1)
		return
	}
	if !sizeMatches(img) {
		r.ignored.Add(1)
		slog.Debug("ignoring malformed frame",
			"height", img.Height, "width", img.Width,
			"channels", img.Channels, "bytes", len(img.Data))
		return
	}

	pixels := img.Height * img.Width
	pix := make([]byte, pixels*3)
	if img.Channels == 3 {
		copy(pix, img.Data)
	} else {
		for i := 0; i < pixels; i++ {
			copy(pix[i*3:i*3+3], img.Data[i*img.Channels:i*img.Channels+3])
		}
	}

	ts := img.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	f := &Frame{
		Height:    img.Height,
		Width:     img.Width,
		Pix:       pix,
		Seq:       r.seq.Add(1),
		Timestamp: ts,
	}

	if old := r.latest.Swap(f); old != nil && r.lastRead.Load() < old.Seq {
		r.dropped.Add(1)
	}
}

// sizeMatches reports whether Data holds exactly Height×Width×Channels bytes
// (at least 3 channels). Dimensions are divided out of the length so headers
// from the wire cannot overflow the product.
func sizeMatches(img RawImage) bool {
	if img.Height <= 0 || img.Width <= 0 || img.Channels < 3 {
		return false
	}
	n := len(img.Data)
	if n%img.Channels != 0 {
		return false
	}
	pixels := n / img.Channels
	return pixels%img.Height == 0 && pixels/img.Height == img.Width
}

// Latest returns the newest frame, or false if none has arrived yet.
func (r *Relay) Latest() (*Frame, bool) {
	f := r.latest.Load()
	if f == nil {
		return nil, false
	}
	if r.lastRead.Load() < f.Seq {
		r.lastRead.Store(f.Seq)
	}
	return f, true
}

// Stats returns a snapshot of the relay counters.
func (r *Relay) Stats() Stats {
	return Stats{
		Received: r.seq.Load(),
		Ignored:  r.ignored.Load(),
		Dropped:  r.dropped.Load(),
		LastSeq:  r.lastRead.Load(),
	}
}
