package collision

import (
	"context"
	"fmt"
	"math"
	"runtime"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/ayusman/hasta/internal/cloud"
	"github.com/ayusman/hasta/internal/config"
	"github.com/ayusman/hasta/internal/grasp"
)

// Gripper dimensions used for collision volumes, in metres.
const (
	DefaultFingerWidth  = 0.01
	DefaultFingerLength = 0.06
)

// Mask has one entry per grasp; true means remove.
type Mask []bool

// Count returns the number of grasps marked for removal.
func (m Mask) Count() int {
	n := 0
	for _, v := range m {
		if v {
			n++
		}
	}
	return n
}

// Options tunes a Detector. Zero fields take defaults.
type Options struct {
	FingerWidth  float64
	FingerLength float64
	// ApproachDist is the standoff swept behind the palm. It is never
	// shorter than the finger width.
	ApproachDist float64
	// Workers bounds parallel checks; 0 means GOMAXPROCS.
	Workers int
}

// Detector tests grasps against a voxel occupancy set of the full scene.
//
// Each occupied voxel is represented by the centroid of the scene points that
// fell into it. Centroids are stored densely in key order, so the position of
// a key in the occupancy bitmap (its rank) indexes its centroid.
type Detector struct {
	voxelSize    float64
	occupied     *roaring64.Bitmap
	centroids    []r3.Vec
	fingerWidth  float64
	fingerLength float64
	approachDist float64
	workers      int
}

// NewDetector quantizes the scene at voxelSize.
func NewDetector(scene *cloud.Filtered, voxelSize float64, opts Options) (*Detector, error) {
	if !(voxelSize > 0) || math.IsInf(voxelSize, 0) {
		return nil, fmt.Errorf("%w: voxel_size_cd must be positive, got %v", config.ErrInvalid, voxelSize)
	}
	if opts.FingerWidth == 0 {
		opts.FingerWidth = DefaultFingerWidth
	}
	if opts.FingerLength == 0 {
		opts.FingerLength = DefaultFingerLength
	}
	if opts.FingerWidth < 0 || opts.FingerLength < 0 || opts.ApproachDist < 0 || opts.Workers < 0 {
		return nil, fmt.Errorf("%w: collision options must be non-negative: %+v", config.ErrInvalid, opts)
	}
	if opts.Workers == 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}

	d := &Detector{
		voxelSize:    voxelSize,
		occupied:     roaring64.NewBitmap(),
		fingerWidth:  opts.FingerWidth,
		fingerLength: opts.FingerLength,
		approachDist: math.Max(opts.ApproachDist, opts.FingerWidth),
		workers:      opts.Workers,
	}

	keys := make([]uint64, len(scene.Points))
	for i, p := range scene.Points {
		keys[i] = d.key(d.cell(p))
		d.occupied.Add(keys[i])
	}

	n := d.occupied.GetCardinality()
	sums := make([]r3.Vec, n)
	counts := make([]int, n)
	for i, p := range scene.Points {
		j := d.occupied.Rank(keys[i]) - 1
		sums[j] = r3.Add(sums[j], p)
		counts[j]++
	}
	d.centroids = make([]r3.Vec, n)
	for j := range sums {
		d.centroids[j] = r3.Scale(1/float64(counts[j]), sums[j])
	}
	return d, nil
}

// Occupied returns the number of occupied voxels.
func (d *Detector) Occupied() int { return len(d.centroids) }

// Detect marks every grasp whose gripper collides with the scene. A disabled
// policy returns an all-false mask without touching the scene.
func (d *Detector) Detect(ctx context.Context, set grasp.Set, policy Policy) (Mask, error) {
	mask := make(Mask, len(set))
	if !policy.IsEnabled() || len(set) == 0 {
		return mask, nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(d.workers)

	for i := range set {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			mask[i] = d.Score(set[i]) > policy.Threshold()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return mask, nil
}

// Filter runs Detect and keeps the grasps that do not collide.
func (d *Detector) Filter(ctx context.Context, set grasp.Set, policy Policy) (grasp.Set, error) {
	mask, err := d.Detect(ctx, set, policy)
	if err != nil {
		return nil, err
	}
	return set.Filter(mask)
}

// Score returns the number of occupied voxels inside the gripper volume,
// normalized by that volume measured in voxels.
func (d *Detector) Score(g grasp.Grasp) float64 {
	return float64(d.count(g)) / (d.volume(g) + 1e-6)
}

// gripper-frame extents of the four collision boxes
type regions struct {
	halfHeight  float64
	fingerMinX  float64 // fingers span (fingerMinX, depth)
	depth       float64
	innerY      float64
	outerY      float64
	palmMinX    float64 // palm spans (palmMinX, fingerMinX]
	standoffMin float64 // standoff spans (standoffMin, palmMinX]
}

func (d *Detector) regions(g grasp.Grasp) regions {
	r := regions{
		halfHeight: g.Height / 2,
		depth:      g.Depth,
		fingerMinX: g.Depth - d.fingerLength,
		innerY:     g.Width / 2,
		outerY:     g.Width/2 + d.fingerWidth,
	}
	r.palmMinX = r.fingerMinX - d.fingerWidth
	r.standoffMin = r.palmMinX - d.approachDist
	return r
}

func (r regions) contains(p r3.Vec) bool {
	if p.Z <= -r.halfHeight || p.Z >= r.halfHeight {
		return false
	}
	if p.Y <= -r.outerY || p.Y >= r.outerY {
		return false
	}
	switch {
	case p.X > r.fingerMinX && p.X < r.depth:
		// left or right finger
		return p.Y < -r.innerY || p.Y > r.innerY
	case p.X > r.palmMinX && p.X <= r.fingerMinX:
		return true
	case p.X > r.standoffMin && p.X <= r.palmMinX:
		return true
	}
	return false
}

func (d *Detector) count(g grasp.Grasp) int {
	r := d.regions(g)

	// Camera-frame bounding box of the gripper volume.
	lo := r3.Vec{X: math.Inf(1), Y: math.Inf(1), Z: math.Inf(1)}
	hi := r3.Vec{X: math.Inf(-1), Y: math.Inf(-1), Z: math.Inf(-1)}
	for _, cx := range [2]float64{r.standoffMin, r.depth} {
		for _, cy := range [2]float64{-r.outerY, r.outerY} {
			for _, cz := range [2]float64{-r.halfHeight, r.halfHeight} {
				p := g.FromGripper(r3.Vec{X: cx, Y: cy, Z: cz})
				lo = r3.Vec{X: math.Min(lo.X, p.X), Y: math.Min(lo.Y, p.Y), Z: math.Min(lo.Z, p.Z)}
				hi = r3.Vec{X: math.Max(hi.X, p.X), Y: math.Max(hi.Y, p.Y), Z: math.Max(hi.Z, p.Z)}
			}
		}
	}
	c0, c1 := d.cell(lo), d.cell(hi)

	n := 0
	for x := c0[0]; x <= c1[0]; x++ {
		for y := c0[1]; y <= c1[1]; y++ {
			for z := c0[2]; z <= c1[2]; z++ {
				k := d.key([3]int32{x, y, z})
				if !d.occupied.Contains(k) {
					continue
				}
				c := d.centroids[d.occupied.Rank(k)-1]
				if r.contains(g.ToGripper(c)) {
					n++
				}
			}
		}
	}
	return n
}

func (d *Detector) volume(g grasp.Grasp) float64 {
	v3 := d.voxelSize * d.voxelSize * d.voxelSize
	fingers := 2 * g.Height * d.fingerLength * d.fingerWidth
	palm := g.Height * (g.Width + 2*d.fingerWidth) * d.fingerWidth
	standoff := g.Height * (g.Width + 2*d.fingerWidth) * d.approachDist
	return (fingers + palm + standoff) / v3
}

func (d *Detector) cell(p r3.Vec) [3]int32 {
	return [3]int32{
		int32(math.Floor(p.X / d.voxelSize)),
		int32(math.Floor(p.Y / d.voxelSize)),
		int32(math.Floor(p.Z / d.voxelSize)),
	}
}

// key packs a voxel into 63 bits, 21 per axis, offset to keep it unsigned.
func (d *Detector) key(c [3]int32) uint64 {
	const bias = 1 << 20
	const bits = 1<<21 - 1
	return uint64(c[0]+bias)&bits<<42 | uint64(c[1]+bias)&bits<<21 | uint64(c[2]+bias)&bits
}
