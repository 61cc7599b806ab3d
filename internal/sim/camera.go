package sim

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"SignCruise/internal/model"
	"SignCruise/internal/relay"
)

// SyntheticCamera pushes generated BGRA frames to its listener at a fixed
// rate from its own goroutine, like a simulator RGB sensor.
type SyntheticCamera struct {
	width, height int
	interval      time.Duration

	mu      sync.Mutex
	stop    chan struct{}
	wg      sync.WaitGroup
	frameNo int
}

// NewSyntheticCamera creates a stopped camera.
func NewSyntheticCamera(cfg model.CameraConfig) *SyntheticCamera {
	return &SyntheticCamera{
		width:    cfg.Width,
		height:   cfg.Height,
		interval: time.Duration(float64(time.Second) / cfg.FPS),
	}
}

// Listen starts delivering frames to fn.
func (c *SyntheticCamera) Listen(fn func(relay.RawImage)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop != nil {
		return errors.New("camera already listening")
	}
	c.stop = make(chan struct{})
	c.wg.Add(1)
	go c.loop(c.stop, fn)
	slog.Debug("synthetic camera started", "width", c.width, "height", c.height, "interval", c.interval)
	return nil
}

func (c *SyntheticCamera) loop(stop <-chan struct{}, fn func(relay.RawImage)) {
	defer c.wg.Done()
	t := time.NewTicker(c.interval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			c.frameNo++
			fn(Pattern(c.width, c.height, c.frameNo))
		}
	}
}

// Stop halts delivery and waits for the in-flight callback to return.
// Stopping a stopped camera is a no-op.
func (c *SyntheticCamera) Stop() error {
	c.mu.Lock()
	stop := c.stop
	c.stop = nil
	c.mu.Unlock()
	if stop != nil {
		close(stop)
		c.wg.Wait()
	}
	return nil
}

// Pattern renders frame n as a BGRA gradient with a bar that scrolls one
// column per frame.
func Pattern(width, height, n int) relay.RawImage {
	const ch = 4
	data := make([]byte, width*height*ch)
	bar := 0
	if width > 0 {
		bar = n % width
	}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := (y*width + x) * ch
			data[i] = byte(x * 255 / max(width-1, 1))    // B
			data[i+1] = byte(y * 255 / max(height-1, 1)) // G
			data[i+2] = byte(n)                          // R
			data[i+3] = 255
			if x == bar {
				data[i], data[i+1], data[i+2] = 255, 255, 255
			}
		}
	}
	return relay.RawImage{Height: height, Width: width, Channels: ch, Data: data, Timestamp: time.Now()}
}
