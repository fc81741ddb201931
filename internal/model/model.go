// Package model defines the boundary to the external grasp scoring network.
//
// The network is opaque: it consumes a voxelized batch and returns, for every
// row, a dense grid of cells over NumAngles in-plane rotations and NumDepths
// depth offsets. Shape violations and load failures are fatal and wrap
// ErrFatal; they are never retried.
package model

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/ayusman/hasta/internal/cloud"
)

// ErrFatal is returned when the model cannot be loaded or produced output
// that violates the tensor contract.
var ErrFatal = errors.New("score model failure")

const (
	// NumAngles is the number of in-plane rotation bins.
	NumAngles = 12
	// NumDepths is the number of depth offset bins.
	NumDepths = 4
)

// AngleOf returns the in-plane rotation of an angle bin in radians.
func AngleOf(bin int) float64 {
	return float64(bin) * math.Pi / NumAngles
}

// DepthOf returns the gripper depth of a depth bin in metres.
func DepthOf(bin int) float64 {
	return float64(bin+1) * 0.01
}

// ScoreModel scores every point of a voxelized batch.
type ScoreModel interface {
	// Load reads the weights once. Calling Infer before Load fails with ErrFatal.
	Load(checkpoint string) error

	// Infer runs one blocking forward pass. There are no partial results.
	Infer(ctx context.Context, batch *cloud.VoxelBatch) (*Output, error)

	// Close releases any resources held by the model.
	Close() error
}

// Cell is the prediction for one (point, angle bin, depth bin).
type Cell struct {
	Approach r3.Vec  `json:"approach"`
	Angle    float64 `json:"angle"`
	Depth    float64 `json:"depth"`
	Width    float64 `json:"width"`
	Score    float64 `json:"score"`
}

// Output is a dense (points, angles, depths) tensor of cells, row-major.
type Output struct {
	NumPoints int
	NumAngles int
	NumDepths int
	Cells     []Cell
}

// NewOutput allocates a zeroed tensor.
func NewOutput(points, angles, depths int) *Output {
	return &Output{
		NumPoints: points,
		NumAngles: angles,
		NumDepths: depths,
		Cells:     make([]Cell, points*angles*depths),
	}
}

func (o *Output) index(p, a, d int) int {
	return (p*o.NumAngles+a)*o.NumDepths + d
}

// At returns the cell for point p, angle bin a and depth bin d.
func (o *Output) At(p, a, d int) Cell {
	return o.Cells[o.index(p, a, d)]
}

// Set stores the cell for point p, angle bin a and depth bin d.
func (o *Output) Set(p, a, d int, c Cell) {
	o.Cells[o.index(p, a, d)] = c
}

// Point returns the angles*depths cells of point p.
func (o *Output) Point(p int) []Cell {
	n := o.NumAngles * o.NumDepths
	return o.Cells[p*n : (p+1)*n]
}

// Validate checks the tensor against the batch it was computed from.
func (o *Output) Validate(batch *cloud.VoxelBatch) error {
	if o == nil {
		return fmt.Errorf("%w: nil output", ErrFatal)
	}
	if o.NumPoints != batch.Len() {
		return fmt.Errorf("%w: output has %d points, batch has %d", ErrFatal, o.NumPoints, batch.Len())
	}
	if o.NumAngles <= 0 || o.NumDepths <= 0 {
		return fmt.Errorf("%w: output grid %dx%d is empty", ErrFatal, o.NumAngles, o.NumDepths)
	}
	if want := o.NumPoints * o.NumAngles * o.NumDepths; len(o.Cells) != want {
		return fmt.Errorf("%w: output has %d cells, shape needs %d", ErrFatal, len(o.Cells), want)
	}
	return nil
}
