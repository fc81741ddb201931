package grasp

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// ViewAngleToRotation builds the gripper orientation from an approach
// direction and an in-plane rotation about it.
//
// The approach becomes the x axis. The y axis is the approach rotated a
// quarter turn about camera z, (-ax.y, ax.x, 0), or camera y when the
// approach is parallel to z. The result is [x y z]·Rx(angle), row-major.
func ViewAngleToRotation(approach r3.Vec, angle float64) ([9]float64, error) {
	n := r3.Norm(approach)
	if n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return [9]float64{}, fmt.Errorf("degenerate approach direction %v", approach)
	}
	if math.IsNaN(angle) || math.IsInf(angle, 0) {
		return [9]float64{}, fmt.Errorf("non-finite in-plane angle %v", angle)
	}

	ax := r3.Scale(1/n, approach)
	ay := r3.Vec{X: -ax.Y, Y: ax.X, Z: 0}
	if r3.Norm(ay) == 0 {
		ay = r3.Vec{X: 0, Y: 1, Z: 0}
	}
	ay = r3.Unit(ay)
	az := r3.Cross(ax, ay)

	frame := mat.NewDense(3, 3, []float64{
		ax.X, ay.X, az.X,
		ax.Y, ay.Y, az.Y,
		ax.Z, ay.Z, az.Z,
	})
	sin, cos := math.Sincos(angle)
	inPlane := mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, cos, -sin,
		0, sin, cos,
	})

	var r mat.Dense
	r.Mul(frame, inPlane)

	var out [9]float64
	copy(out[:], r.RawMatrix().Data)
	return out, nil
}
