// Package present packages pipeline results for consumers: the top grasps,
// the scene cloud, and a renderer-ready scene of gripper meshes.
package present

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/ayusman/hasta/internal/cloud"
	"github.com/ayusman/hasta/internal/config"
	"github.com/ayusman/hasta/internal/grasp"
)

// Payload is what a renderer or executor receives. It owns its data.
type Payload struct {
	Grasps grasp.Set
	Points []r3.Vec
	Colors []cloud.Color
}

// Presenter bounds the output to the top K grasps.
type Presenter struct {
	topK int
}

// New returns a presenter keeping topK grasps.
func New(topK int) (*Presenter, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: top_k must be positive, got %d", config.ErrInvalid, topK)
	}
	return &Presenter{topK: topK}, nil
}

// Present copies the first K ranked grasps and the scene cloud. Neither
// input is modified or retained.
func (p *Presenter) Present(ranked grasp.Set, scene *cloud.Filtered) *Payload {
	out := &Payload{Grasps: ranked.Top(p.topK)}
	if scene != nil {
		out.Points = append([]r3.Vec(nil), scene.Points...)
		out.Colors = append([]cloud.Color(nil), scene.Colors...)
	}
	return out
}

// Scene is the renderer's input: a colored cloud and one mesh per grasp.
type Scene struct {
	Points   [][3]float32  `json:"points"`
	Colors   []cloud.Color `json:"colors"`
	Grippers []grasp.Mesh  `json:"grippers"`
	Scores   []float64     `json:"scores"`
}

// BuildScene converts a payload to meshes. It performs no I/O.
func BuildScene(p *Payload) *Scene {
	s := &Scene{
		Points:   make([][3]float32, len(p.Points)),
		Colors:   append([]cloud.Color(nil), p.Colors...),
		Grippers: make([]grasp.Mesh, len(p.Grasps)),
		Scores:   p.Grasps.Scores(),
	}
	for i, pt := range p.Points {
		s.Points[i] = [3]float32{float32(pt.X), float32(pt.Y), float32(pt.Z)}
	}
	for i, g := range p.Grasps {
		s.Grippers[i] = g.ToMesh()
	}
	return s
}
