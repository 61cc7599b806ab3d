package relay

import (
	"image"
	"image/color"
)

// ChannelOrder names the byte order of the three channels in Frame.Pix.
type ChannelOrder int

const (
	// OrderBGR is what the simulator's RGB camera delivers.
	OrderBGR ChannelOrder = iota
	OrderRGB
)

// Image converts the frame into an *image.RGBA for encoding.
func (f *Frame) Image(order ChannelOrder) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			i := (y*f.Width + x) * 3
			c0, c1, c2 := f.Pix[i], f.Pix[i+1], f.Pix[i+2]
			if order == OrderBGR {
				c0, c2 = c2, c0
			}
			img.SetRGBA(x, y, color.RGBA{R: c0, G: c1, B: c2, A: 0xff})
		}
	}
	return img
}
