package grasp

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"
)

// ArrayLen is the length of a flattened grasp:
// score, width, height, depth, rotation (9, row-major), translation (3).
const ArrayLen = 16

// Array is the flat numeric form used on the wire and in storage.
type Array [ArrayLen]float64

// Flatten returns the flat form of g. PointIndex is not carried.
func (g Grasp) Flatten() Array {
	var a Array
	a[0], a[1], a[2], a[3] = g.Score, g.Width, g.Height, g.Depth
	copy(a[4:13], g.Rotation[:])
	a[13], a[14], a[15] = g.Translation.X, g.Translation.Y, g.Translation.Z
	return a
}

// FromArray rebuilds a grasp from its flat form.
func FromArray(a Array) Grasp {
	g := Grasp{
		Score:       a[0],
		Width:       a[1],
		Height:      a[2],
		Depth:       a[3],
		Translation: r3.Vec{X: a[13], Y: a[14], Z: a[15]},
	}
	copy(g.Rotation[:], a[4:13])
	return g
}

// Arrays flattens every grasp of the set.
func (s Set) Arrays() []Array {
	out := make([]Array, len(s))
	for i, g := range s {
		out[i] = g.Flatten()
	}
	return out
}

// SetFromSlices parses rows of exactly ArrayLen numbers.
func SetFromSlices(rows [][]float64) (Set, error) {
	out := make(Set, len(rows))
	for i, row := range rows {
		if len(row) != ArrayLen {
			return nil, fmt.Errorf("grasp %d has %d fields, want %d", i, len(row), ArrayLen)
		}
		out[i] = FromArray(Array(row))
	}
	return out, nil
}
