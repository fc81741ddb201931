package cloud

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/ayusman/hasta/internal/config"
)

// VoxelBatch is the scoring model's input: one row per sampled point across
// every frame in the batch.
type VoxelBatch struct {
	Coords    [][3]int32
	Feats     [][3]float32
	BatchIdx  []int32
	Positions []r3.Vec
	// Offsets[b] is the first row belonging to frame b.
	Offsets   []int
	VoxelSize float64
}

// Len returns the number of rows.
func (vb *VoxelBatch) Len() int { return len(vb.Coords) }

// Frames returns the number of frames in the batch.
func (vb *VoxelBatch) Frames() int { return len(vb.Offsets) }

// FrameLen returns the number of rows belonging to frame b.
func (vb *VoxelBatch) FrameLen(b int) int {
	if b+1 < len(vb.Offsets) {
		return vb.Offsets[b+1] - vb.Offsets[b]
	}
	return len(vb.Coords) - vb.Offsets[b]
}

// Row maps (frame, slot) to a row index.
func (vb *VoxelBatch) Row(b, slot int) int {
	return vb.Offsets[b] + slot
}

// Position returns the original sampled point at (frame, slot).
func (vb *VoxelBatch) Position(b, slot int) r3.Vec {
	return vb.Positions[vb.Row(b, slot)]
}

// Voxelizer quantizes sampled points onto a grid of fixed cell size.
type Voxelizer struct {
	size float64
}

// NewVoxelizer validates the cell size.
func NewVoxelizer(size float64) (*Voxelizer, error) {
	if !(size > 0) || math.IsInf(size, 0) {
		return nil, fmt.Errorf("%w: voxel_size must be positive, got %v", config.ErrInvalid, size)
	}
	return &Voxelizer{size: size}, nil
}

// Voxelize quantizes one or more sampled frames into a single batch.
// Coordinates are floor(p / size); every feature is the unit vector (1, 1, 1).
func (v *Voxelizer) Voxelize(frames ...*Sampled) *VoxelBatch {
	total := 0
	for _, f := range frames {
		total += f.Len()
	}

	vb := &VoxelBatch{
		Coords:    make([][3]int32, 0, total),
		Feats:     make([][3]float32, 0, total),
		BatchIdx:  make([]int32, 0, total),
		Positions: make([]r3.Vec, 0, total),
		Offsets:   make([]int, len(frames)),
		VoxelSize: v.size,
	}
	for b, f := range frames {
		vb.Offsets[b] = len(vb.Coords)
		for _, p := range f.Points {
			vb.Coords = append(vb.Coords, v.Coord(p))
			vb.Feats = append(vb.Feats, [3]float32{1, 1, 1})
			vb.BatchIdx = append(vb.BatchIdx, int32(b))
			vb.Positions = append(vb.Positions, p)
		}
	}
	return vb
}

// Coord returns the grid cell containing p.
func (v *Voxelizer) Coord(p r3.Vec) [3]int32 {
	return [3]int32{
		int32(math.Floor(p.X / v.size)),
		int32(math.Floor(p.Y / v.size)),
		int32(math.Floor(p.Z / v.size)),
	}
}
