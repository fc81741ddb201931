package grasp

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Gripper drawing dimensions in metres.
const (
	meshFingerWidth = 0.004
	meshTailLength  = 0.04
	meshDepthBase   = 0.02
)

// Mesh is a triangle mesh in camera coordinates.
type Mesh struct {
	Vertices  []r3.Vec   `json:"vertices"`
	Triangles [][3]int   `json:"triangles"`
	Color     [3]float64 `json:"color"`
}

// ToMesh draws the gripper as four boxes: two fingers, the palm and a tail
// pointing back along the approach. Color runs from blue (score 0) to red
// (score 1).
func (g Grasp) ToMesh() Mesh {
	fw, h := meshFingerWidth, g.Height
	w, depth := g.Width, g.Depth

	var m Mesh
	// left and right fingers
	m.addBox(g,
		r3.Vec{X: -(meshDepthBase + fw), Y: -(w/2 + fw), Z: -h / 2},
		r3.Vec{X: depth + meshDepthBase + fw, Y: fw, Z: h})
	m.addBox(g,
		r3.Vec{X: -(meshDepthBase + fw), Y: w / 2, Z: -h / 2},
		r3.Vec{X: depth + meshDepthBase + fw, Y: fw, Z: h})
	// palm
	m.addBox(g,
		r3.Vec{X: -(meshDepthBase + fw), Y: -w / 2, Z: -h / 2},
		r3.Vec{X: fw, Y: w, Z: h})
	// tail
	m.addBox(g,
		r3.Vec{X: -(meshTailLength + fw + meshDepthBase), Y: -fw / 2, Z: -h / 2},
		r3.Vec{X: meshTailLength, Y: fw, Z: h})

	s := math.Min(math.Max(g.Score, 0), 1)
	m.Color = [3]float64{s, 0, 1 - s}
	return m
}

var boxTriangles = [12][3]int{
	{4, 7, 5}, {4, 6, 7}, {0, 2, 4}, {2, 6, 4},
	{0, 1, 2}, {1, 3, 2}, {1, 5, 7}, {1, 7, 3},
	{2, 3, 7}, {2, 7, 6}, {0, 4, 1}, {1, 4, 5},
}

// addBox appends an axis-aligned box given in the gripper frame.
func (m *Mesh) addBox(g Grasp, lo, size r3.Vec) {
	base := len(m.Vertices)
	for i := 0; i < 8; i++ {
		p := lo
		if i&4 != 0 {
			p.X += size.X
		}
		if i&2 != 0 {
			p.Y += size.Y
		}
		if i&1 != 0 {
			p.Z += size.Z
		}
		m.Vertices = append(m.Vertices, g.FromGripper(p))
	}
	for _, t := range boxTriangles {
		m.Triangles = append(m.Triangles, [3]int{base + t[0], base + t[1], base + t[2]})
	}
}
