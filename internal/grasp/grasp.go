// Package grasp holds 6-DoF parallel-jaw grasp hypotheses and the stages
// that produce and order them.
package grasp

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// InvalidWidth is the clamped width the decoder treats as "no grasp".
const InvalidWidth = 0.0

// Grasp is one decoded hypothesis in camera coordinates. The gripper frame
// has x along the approach direction, y across the jaws and z along the
// finger height. Rotation is row-major and maps gripper to camera frame.
type Grasp struct {
	Translation r3.Vec
	Rotation    [9]float64
	Width       float64
	Height      float64
	Depth       float64
	Score       float64
	// PointIndex is the sampled point the hypothesis was decoded from.
	PointIndex int
}

// RotationMatrix returns the rotation as a 3x3 dense matrix.
func (g Grasp) RotationMatrix() *mat.Dense {
	data := g.Rotation
	return mat.NewDense(3, 3, data[:])
}

// Axis returns column i of the rotation: 0 approach, 1 jaw, 2 height.
func (g Grasp) Axis(i int) r3.Vec {
	r := g.Rotation
	return r3.Vec{X: r[i], Y: r[3+i], Z: r[6+i]}
}

// Approach returns the unit approach direction.
func (g Grasp) Approach() r3.Vec { return g.Axis(0) }

// ToGripper expresses a camera-frame point in the gripper frame.
func (g Grasp) ToGripper(p r3.Vec) r3.Vec {
	d := r3.Sub(p, g.Translation)
	return r3.Vec{
		X: r3.Dot(g.Axis(0), d),
		Y: r3.Dot(g.Axis(1), d),
		Z: r3.Dot(g.Axis(2), d),
	}
}

// FromGripper maps a gripper-frame point to camera coordinates.
func (g Grasp) FromGripper(p r3.Vec) r3.Vec {
	r := g.Rotation
	return r3.Vec{
		X: r[0]*p.X + r[1]*p.Y + r[2]*p.Z + g.Translation.X,
		Y: r[3]*p.X + r[4]*p.Y + r[5]*p.Z + g.Translation.Y,
		Z: r[6]*p.X + r[7]*p.Y + r[8]*p.Z + g.Translation.Z,
	}
}

// Quaternion returns the rotation as a unit quaternion with non-negative real part.
func (g Grasp) Quaternion() quat.Number {
	r := g.Rotation
	m00, m01, m02 := r[0], r[1], r[2]
	m10, m11, m12 := r[3], r[4], r[5]
	m20, m21, m22 := r[6], r[7], r[8]

	var q quat.Number
	switch tr := m00 + m11 + m22; {
	case tr > 0:
		s := 2 * math.Sqrt(tr+1)
		q = quat.Number{Real: s / 4, Imag: (m21 - m12) / s, Jmag: (m02 - m20) / s, Kmag: (m10 - m01) / s}
	case m00 > m11 && m00 > m22:
		s := 2 * math.Sqrt(1+m00-m11-m22)
		q = quat.Number{Real: (m21 - m12) / s, Imag: s / 4, Jmag: (m01 + m10) / s, Kmag: (m02 + m20) / s}
	case m11 > m22:
		s := 2 * math.Sqrt(1+m11-m00-m22)
		q = quat.Number{Real: (m02 - m20) / s, Imag: (m01 + m10) / s, Jmag: s / 4, Kmag: (m12 + m21) / s}
	default:
		s := 2 * math.Sqrt(1+m22-m00-m11)
		q = quat.Number{Real: (m10 - m01) / s, Imag: (m02 + m20) / s, Jmag: (m12 + m21) / s, Kmag: s / 4}
	}

	q = quat.Scale(1/quat.Abs(q), q)
	if q.Real < 0 {
		q = quat.Scale(-1, q)
	}
	return q
}

// String implements fmt.Stringer.
func (g Grasp) String() string {
	return fmt.Sprintf("grasp{score=%.3f width=%.3f depth=%.3f t=(%.3f, %.3f, %.3f)}",
		g.Score, g.Width, g.Depth, g.Translation.X, g.Translation.Y, g.Translation.Z)
}

// Set is an ordered sequence of grasps. Order is meaningful only after Rank.
type Set []Grasp

// Filter returns the grasps whose mask entry is false.
func (s Set) Filter(remove []bool) (Set, error) {
	if len(remove) != len(s) {
		return nil, fmt.Errorf("mask has %d entries for %d grasps", len(remove), len(s))
	}
	out := make(Set, 0, len(s))
	for i, g := range s {
		if !remove[i] {
			out = append(out, g)
		}
	}
	return out, nil
}

// Top returns a copy of the first k grasps.
func (s Set) Top(k int) Set {
	if k > len(s) {
		k = len(s)
	}
	if k < 0 {
		k = 0
	}
	out := make(Set, k)
	copy(out, s[:k])
	return out
}

// Scores returns the score of every grasp in order.
func (s Set) Scores() []float64 {
	out := make([]float64, len(s))
	for i, g := range s {
		out[i] = g.Score
	}
	return out
}
