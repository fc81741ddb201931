package capture

import (
	"math"
	"time"
)

// Clone returns a deep copy of the frame.
func (f *Frame) Clone() *Frame {
	c := *f
	c.Depth.Data = append([]uint16(nil), f.Depth.Data...)
	c.Color.Data = append([]uint8(nil), f.Color.Data...)
	return &c
}

// NewFrame allocates a zero-depth, black frame sized to the intrinsics.
func NewFrame(intr Intrinsics) *Frame {
	n := intr.Width * intr.Height
	return &Frame{
		Depth:      DepthFrame{Width: intr.Width, Height: intr.Height, Data: make([]uint16, n)},
		Color:      ColorFrame{Width: intr.Width, Height: intr.Height, Data: make([]uint8, 3*n)},
		Intrinsics: intr,
		Timestamp:  time.Now(),
	}
}

// ConstantDepthFrame returns a frame whose every pixel lies at the given
// distance in metres, colored mid grey.
func ConstantDepthFrame(intr Intrinsics, metres float64) *Frame {
	f := NewFrame(intr)
	raw := uint16(math.Round(metres * intr.DepthScale))
	for i := range f.Depth.Data {
		f.Depth.Data[i] = raw
	}
	for i := range f.Color.Data {
		f.Color.Data[i] = 128
	}
	return f
}

// SetDepth writes a depth in metres at pixel (u, v).
func (f *Frame) SetDepth(u, v int, metres float64) {
	f.Depth.Data[v*f.Depth.Width+u] = uint16(math.Round(metres * f.Intrinsics.DepthScale))
}

// SetColor writes an RGB color at pixel (u, v).
func (f *Frame) SetColor(u, v int, r, g, b uint8) {
	i := 3 * (v*f.Color.Width + u)
	f.Color.Data[i], f.Color.Data[i+1], f.Color.Data[i+2] = r, g, b
}
