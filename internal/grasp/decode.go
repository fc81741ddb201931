package grasp

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/ayusman/hasta/internal/cloud"
	"github.com/ayusman/hasta/internal/config"
	"github.com/ayusman/hasta/internal/model"
)

// Decoder reduces the model's dense cells to one hypothesis per sampled point.
type Decoder struct {
	minWidth       float64
	maxWidth       float64
	height         float64
	approachOffset float64
}

// NewDecoder validates the gripper limits.
func NewDecoder(cfg config.Grasp) (*Decoder, error) {
	if cfg.MinWidth < 0 || cfg.MaxWidth < cfg.MinWidth || math.IsInf(cfg.MaxWidth, 0) || math.IsNaN(cfg.MaxWidth) {
		return nil, fmt.Errorf("%w: grasp width range [%v, %v] is invalid", config.ErrInvalid, cfg.MinWidth, cfg.MaxWidth)
	}
	if !(cfg.Height > 0) {
		return nil, fmt.Errorf("%w: grasp height must be positive, got %v", config.ErrInvalid, cfg.Height)
	}
	return &Decoder{
		minWidth:       cfg.MinWidth,
		maxWidth:       cfg.MaxWidth,
		height:         cfg.Height,
		approachOffset: cfg.ApproachOffset,
	}, nil
}

// Decode returns one unordered Set per frame of the batch. A point yields no
// grasp when its best cell has a non-finite score or width, a degenerate
// approach, or a width that clamps to InvalidWidth.
func (d *Decoder) Decode(out *model.Output, batch *cloud.VoxelBatch) ([]Set, error) {
	if err := out.Validate(batch); err != nil {
		return nil, err
	}

	sets := make([]Set, batch.Frames())
	for b := range sets {
		n := batch.FrameLen(b)
		set := make(Set, 0, n)
		for slot := 0; slot < n; slot++ {
			row := batch.Row(b, slot)
			g, ok := d.decodePoint(out.Point(row), batch.Positions[row])
			if !ok {
				continue
			}
			g.PointIndex = slot
			set = append(set, g)
		}
		sets[b] = set
	}
	return sets, nil
}

func (d *Decoder) decodePoint(cells []model.Cell, pos r3.Vec) (Grasp, bool) {
	best := argmax(cells)
	c := cells[best]

	if !finite(c.Score) || !finite(c.Width) || !finite(c.Angle) || !finite(c.Depth) {
		return Grasp{}, false
	}
	width := math.Min(math.Max(c.Width, d.minWidth), d.maxWidth)
	if width == InvalidWidth {
		return Grasp{}, false
	}
	rot, err := ViewAngleToRotation(c.Approach, c.Angle)
	if err != nil {
		return Grasp{}, false
	}

	t := pos
	if d.approachOffset != 0 {
		t = r3.Add(pos, r3.Scale(d.approachOffset, r3.Unit(c.Approach)))
	}
	return Grasp{
		Translation: t,
		Rotation:    rot,
		Width:       width,
		Height:      d.height,
		Depth:       c.Depth,
		Score:       c.Score,
	}, true
}

// argmax returns the index of the highest score. The first maximum wins and
// NaN never beats a number.
func argmax(cells []model.Cell) int {
	best := 0
	for i := 1; i < len(cells); i++ {
		s, b := cells[i].Score, cells[best].Score
		if s > b || (math.IsNaN(b) && !math.IsNaN(s)) {
			best = i
		}
	}
	return best
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
