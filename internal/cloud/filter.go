package cloud

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/ayusman/hasta/internal/capture"
	"github.com/ayusman/hasta/internal/config"
)

// SceneFilter keeps points whose depth lies inside a trusted band, dropping
// the background beyond the working volume. The band is configuration: it
// depends on where the sensor is mounted.
type SceneFilter struct {
	band config.DepthBand
}

// NewSceneFilter validates the band.
func NewSceneFilter(band config.DepthBand) (*SceneFilter, error) {
	if err := band.Validate(); err != nil {
		return nil, err
	}
	return &SceneFilter{band: band}, nil
}

// Band returns the configured depth band.
func (f *SceneFilter) Band() config.DepthBand { return f.band }

// Filter keeps points with Min <= z <= Max, in order, paired with the color
// of the pixel they were projected from.
func (f *SceneFilter) Filter(c *Cloud, color *capture.ColorFrame) (*Filtered, error) {
	if color == nil || len(color.Data) != 3*len(c.Points) {
		n := 0
		if color != nil {
			n = len(color.Data) / 3
		}
		return nil, fmt.Errorf("%w: %d color pixels for %d points", capture.ErrIO, n, len(c.Points))
	}

	out := &Filtered{}
	for i, p := range c.Points {
		if p.Z < f.band.Min || p.Z > f.band.Max {
			continue
		}
		r, g, b := color.RGB(i)
		out.Points = append(out.Points, p)
		out.Colors = append(out.Colors, Color{float32(r) / 255, float32(g) / 255, float32(b) / 255})
	}

	if len(out.Points) == 0 {
		return nil, fmt.Errorf("%w: band [%v, %v] over %d points", ErrEmptyScene, f.band.Min, f.band.Max, len(c.Points))
	}
	return out, nil
}

// Bounds returns the axis-aligned extent of the filtered points.
func (f *Filtered) Bounds() (lo, hi r3.Vec) {
	if len(f.Points) == 0 {
		return r3.Vec{}, r3.Vec{}
	}
	lo, hi = f.Points[0], f.Points[0]
	for _, p := range f.Points[1:] {
		lo = r3.Vec{X: min(lo.X, p.X), Y: min(lo.Y, p.Y), Z: min(lo.Z, p.Z)}
		hi = r3.Vec{X: max(hi.X, p.X), Y: max(hi.Y, p.Y), Z: max(hi.Z, p.Z)}
	}
	return lo, hi
}
