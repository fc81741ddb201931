// Package capture provides RGB-D frame acquisition using GoCV (OpenCV).
package capture

import (
	"errors"
	"fmt"
	"time"
)

// ErrIO is returned when depth or color input is missing, unreadable or inconsistent.
var ErrIO = errors.New("frame input error")

// Intrinsics holds the pinhole camera model of the depth sensor.
type Intrinsics struct {
	Fx         float64 `json:"fx" yaml:"fx"`
	Fy         float64 `json:"fy" yaml:"fy"`
	Cx         float64 `json:"cx" yaml:"cx"`
	Cy         float64 `json:"cy" yaml:"cy"`
	Width      int     `json:"width" yaml:"width"`
	Height     int     `json:"height" yaml:"height"`
	DepthScale float64 `json:"depth_scale" yaml:"depth_scale"` // raw units per metre
}

// Validate checks that the intrinsics describe a usable camera.
func (in Intrinsics) Validate() error {
	if in.Fx <= 0 || in.Fy <= 0 {
		return fmt.Errorf("focal lengths must be positive, got fx=%v fy=%v", in.Fx, in.Fy)
	}
	if in.Width <= 0 || in.Height <= 0 {
		return fmt.Errorf("image size must be positive, got %dx%d", in.Width, in.Height)
	}
	if in.DepthScale <= 0 {
		return fmt.Errorf("depth_scale must be positive, got %v", in.DepthScale)
	}
	return nil
}

// DepthFrame is a row-major raster of raw depth samples.
type DepthFrame struct {
	Width  int
	Height int
	Data   []uint16
}

// At returns the raw depth sample at pixel (u, v).
func (d *DepthFrame) At(u, v int) uint16 {
	return d.Data[v*d.Width+u]
}

// ColorFrame is a row-major RGB raster, three bytes per pixel.
type ColorFrame struct {
	Width  int
	Height int
	Data   []uint8
}

// RGB returns the color of pixel index i (row-major).
func (c *ColorFrame) RGB(i int) (r, g, b uint8) {
	return c.Data[3*i], c.Data[3*i+1], c.Data[3*i+2]
}

// Frame is one aligned RGB-D capture together with the camera that produced it.
type Frame struct {
	Depth      DepthFrame
	Color      ColorFrame
	Intrinsics Intrinsics
	Timestamp  time.Time
}

// Validate checks raster sizes against each other and the intrinsics.
func (f *Frame) Validate() error {
	if f == nil {
		return fmt.Errorf("%w: nil frame", ErrIO)
	}
	d, c := f.Depth, f.Color
	if len(d.Data) == 0 {
		return fmt.Errorf("%w: depth raster is empty", ErrIO)
	}
	if len(d.Data) != d.Width*d.Height {
		return fmt.Errorf("%w: depth raster has %d samples for %dx%d", ErrIO, len(d.Data), d.Width, d.Height)
	}
	if len(c.Data) != 3*c.Width*c.Height {
		return fmt.Errorf("%w: color raster has %d bytes for %dx%d", ErrIO, len(c.Data), c.Width, c.Height)
	}
	if d.Width != c.Width || d.Height != c.Height {
		return fmt.Errorf("%w: depth %dx%d and color %dx%d differ", ErrIO, d.Width, d.Height, c.Width, c.Height)
	}
	if d.Width != f.Intrinsics.Width || d.Height != f.Intrinsics.Height {
		return fmt.Errorf("%w: raster %dx%d does not match intrinsics %dx%d",
			ErrIO, d.Width, d.Height, f.Intrinsics.Width, f.Intrinsics.Height)
	}
	return nil
}
