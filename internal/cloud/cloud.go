// Package cloud turns depth rasters into fixed-size, quantized point sets.
//
// Stages, in order: Project (depth to points), SceneFilter (depth band),
// Sampler (exactly N points) and Voxelizer (integer coordinates for the
// scoring model). Every stage is pure apart from the Sampler's caller
// supplied random source.
package cloud

import (
	"errors"

	"gonum.org/v1/gonum/spatial/r3"
)

// ErrEmptyScene is returned when no point survives the depth band.
var ErrEmptyScene = errors.New("no points inside the depth band")

// Color is an RGB triple normalized to [0, 1].
type Color [3]float32

// Cloud is a projected depth raster. An organized cloud keeps one point per
// pixel (index v*Width+u), zero-depth pixels included.
type Cloud struct {
	Points    []r3.Vec
	Width     int
	Height    int
	Organized bool
}

// At returns the point projected from pixel (u, v) of an organized cloud.
func (c *Cloud) At(u, v int) r3.Vec {
	return c.Points[v*c.Width+u]
}

// Flatten returns the same points as an unorganized cloud.
func (c *Cloud) Flatten() *Cloud {
	return &Cloud{Points: c.Points, Width: len(c.Points), Height: 1}
}

// Filtered is the subset of a cloud inside the depth band, with the colors of
// the pixels the points came from.
type Filtered struct {
	Points []r3.Vec
	Colors []Color
}

// Len returns the number of retained points.
func (f *Filtered) Len() int { return len(f.Points) }

// Sampled holds exactly N points drawn from a Filtered cloud. Indices refers
// back into the Filtered cloud.
type Sampled struct {
	Points  []r3.Vec
	Colors  []Color
	Indices []int
}

// Len returns the number of sampled points.
func (s *Sampled) Len() int { return len(s.Points) }
