package grasp

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/ayusman/hasta/internal/cloud"
	"github.com/ayusman/hasta/internal/config"
	"github.com/ayusman/hasta/internal/model"
)

const tol = 1e-9

func assertOrthonormal(t *testing.T, r [9]float64) {
	t.Helper()
	m := mat.NewDense(3, 3, r[:])
	var prod mat.Dense
	prod.Mul(m.T(), m)
	assert.True(t, mat.EqualApprox(&prod, eye(), 1e-9), "R^T R != I:\n%v", mat.Formatted(&prod))
	assert.InDelta(t, 1.0, mat.Det(m), 1e-9, "det(R)")
}

func eye() *mat.Dense {
	return mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
}

func TestViewAngleToRotation(t *testing.T) {
	tests := []struct {
		name     string
		approach r3.Vec
		angle    float64
	}{
		{name: "down camera axis", approach: r3.Vec{Z: 1}, angle: 0},
		{name: "down camera axis rotated", approach: r3.Vec{Z: 1}, angle: math.Pi / 4},
		{name: "oblique", approach: r3.Vec{X: 0.3, Y: -0.2, Z: 0.9}, angle: 1.1},
		{name: "unnormalized", approach: r3.Vec{X: 2, Y: 0, Z: 0}, angle: math.Pi / 12 * 5},
		{name: "negative z", approach: r3.Vec{X: 0, Y: 0.1, Z: -1}, angle: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := ViewAngleToRotation(tt.approach, tt.angle)
			require.NoError(t, err)
			assertOrthonormal(t, r)

			// First column is the unit approach direction.
			g := Grasp{Rotation: r}
			want := r3.Unit(tt.approach)
			got := g.Approach()
			assert.InDelta(t, want.X, got.X, tol)
			assert.InDelta(t, want.Y, got.Y, tol)
			assert.InDelta(t, want.Z, got.Z, tol)
		})
	}
}

func TestViewAngleToRotation_ParallelToZ(t *testing.T) {
	r, err := ViewAngleToRotation(r3.Vec{Z: 1}, 0)
	require.NoError(t, err)
	// Fallback jaw axis is camera y.
	g := Grasp{Rotation: r}
	assert.Equal(t, r3.Vec{X: 0, Y: 1, Z: 0}, g.Axis(1))
}

func TestViewAngleToRotation_Degenerate(t *testing.T) {
	_, err := ViewAngleToRotation(r3.Vec{}, 0)
	assert.Error(t, err)
	_, err = ViewAngleToRotation(r3.Vec{X: math.NaN()}, 0)
	assert.Error(t, err)
	_, err = ViewAngleToRotation(r3.Vec{Z: 1}, math.NaN())
	assert.Error(t, err)
	_, err = ViewAngleToRotation(r3.Vec{Z: 1}, math.Inf(-1))
	assert.Error(t, err)
}

func TestQuaternion(t *testing.T) {
	r, err := ViewAngleToRotation(r3.Vec{X: 0.3, Y: -0.2, Z: 0.9}, 0.7)
	require.NoError(t, err)
	g := Grasp{Rotation: r}
	q := g.Quaternion()

	assert.InDelta(t, 1.0, quat.Abs(q), tol)
	assert.GreaterOrEqual(t, q.Real, 0.0)

	// Rotating a vector with q must match the matrix.
	v := r3.Vec{X: 0.1, Y: 0.5, Z: -0.3}
	rotated := quat.Mul(quat.Mul(q, quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}), quat.Conj(q))
	want := g.FromGripper(v)
	assert.InDelta(t, want.X, rotated.Imag, tol)
	assert.InDelta(t, want.Y, rotated.Jmag, tol)
	assert.InDelta(t, want.Z, rotated.Kmag, tol)
}

func TestGripperFrameRoundTrip(t *testing.T) {
	r, err := ViewAngleToRotation(r3.Vec{X: -0.5, Y: 0.5, Z: 0.7}, 2.2)
	require.NoError(t, err)
	g := Grasp{Rotation: r, Translation: r3.Vec{X: 0.1, Y: -0.05, Z: 0.6}}

	p := r3.Vec{X: 0.12, Y: 0.03, Z: 0.55}
	back := g.FromGripper(g.ToGripper(p))
	assert.InDelta(t, p.X, back.X, tol)
	assert.InDelta(t, p.Y, back.Y, tol)
	assert.InDelta(t, p.Z, back.Z, tol)
}

func testDecoder(t *testing.T) *Decoder {
	t.Helper()
	d, err := NewDecoder(config.Grasp{MinWidth: 0, MaxWidth: 0.1, Height: 0.02})
	require.NoError(t, err)
	return d
}

func batchOf(n int) *cloud.VoxelBatch {
	s := &cloud.Sampled{Points: make([]r3.Vec, n)}
	for i := range s.Points {
		s.Points[i] = r3.Vec{X: float64(i%10) * 0.01, Y: float64(i/10) * 0.01, Z: 0.5}
	}
	v, _ := cloud.NewVoxelizer(0.005)
	return v.Voxelize(s)
}

// uniformOutput gives every cell of every point the same modest score.
func uniformOutput(n int) *model.Output {
	out := model.NewOutput(n, model.NumAngles, model.NumDepths)
	for p := 0; p < n; p++ {
		for a := 0; a < model.NumAngles; a++ {
			for d := 0; d < model.NumDepths; d++ {
				out.Set(p, a, d, model.Cell{
					Approach: r3.Vec{Z: 1},
					Angle:    model.AngleOf(a),
					Depth:    model.DepthOf(d),
					Width:    0.05,
					Score:    0.1 + 0.001*float64(p%7),
				})
			}
		}
	}
	return out
}

// Scenario B: a single global maximum at point 42, angle bin 3, depth bin 0.
func TestDecodeRank_GlobalMaximum(t *testing.T) {
	batch := batchOf(100)
	out := uniformOutput(100)
	out.Set(42, 3, 0, model.Cell{
		Approach: r3.Vec{X: 0.1, Y: 0, Z: 1},
		Angle:    model.AngleOf(3),
		Depth:    model.DepthOf(0),
		Width:    0.04,
		Score:    0.97,
	})

	sets, err := testDecoder(t).Decode(out, batch)
	require.NoError(t, err)
	require.Len(t, sets, 1)
	require.Len(t, sets[0], 100)

	ranked := Rank(sets[0])
	top := ranked[0]
	assert.Equal(t, 42, top.PointIndex)
	assert.Equal(t, 0.97, top.Score)
	assert.InDelta(t, model.DepthOf(0), top.Depth, tol)
	assert.InDelta(t, 0.04, top.Width, tol)

	pos := batch.Position(0, 42)
	assert.Less(t, r3.Norm(r3.Sub(top.Translation, pos)), 1e-6)
	for _, g := range ranked[1:] {
		assert.LessOrEqual(t, g.Score, top.Score)
	}
}

func TestDecode_WidthBounds(t *testing.T) {
	d, err := NewDecoder(config.Grasp{MinWidth: 0.01, MaxWidth: 0.08, Height: 0.02})
	require.NoError(t, err)

	widths := []float64{-1, 0, 0.005, 0.01, 0.05, 0.08, 0.2, 1e9}
	batch := batchOf(len(widths))
	out := uniformOutput(len(widths))
	for p, w := range widths {
		for i := range out.Point(p) {
			out.Point(p)[i].Width = w
		}
	}

	sets, err := d.Decode(out, batch)
	require.NoError(t, err)
	require.Len(t, sets[0], len(widths))
	for _, g := range sets[0] {
		assert.GreaterOrEqual(t, g.Width, 0.01)
		assert.LessOrEqual(t, g.Width, 0.08)
	}
}

func TestDecode_Discards(t *testing.T) {
	batch := batchOf(8)
	out := uniformOutput(8)
	for i := range out.Point(0) {
		out.Point(0)[i].Width = 0 // clamps to the invalid sentinel
	}
	for i := range out.Point(1) {
		out.Point(1)[i].Score = math.NaN()
	}
	for i := range out.Point(2) {
		out.Point(2)[i].Width = math.Inf(1)
	}
	for i := range out.Point(3) {
		out.Point(3)[i].Approach = r3.Vec{}
	}
	for i := range out.Point(5) {
		out.Point(5)[i].Angle = math.NaN()
	}
	for i := range out.Point(6) {
		out.Point(6)[i].Depth = math.Inf(1)
	}
	for i := range out.Point(7) {
		out.Point(7)[i].Depth = math.NaN()
	}

	sets, err := testDecoder(t).Decode(out, batch)
	require.NoError(t, err)
	require.Len(t, sets[0], 1)
	assert.Equal(t, 4, sets[0][0].PointIndex)
}

func TestDecode_NaNDoesNotWinArgmax(t *testing.T) {
	batch := batchOf(1)
	out := uniformOutput(1)
	out.Point(0)[0].Score = math.NaN()
	out.Point(0)[5].Score = 0.8

	sets, err := testDecoder(t).Decode(out, batch)
	require.NoError(t, err)
	require.Len(t, sets[0], 1)
	assert.Equal(t, 0.8, sets[0][0].Score)
}

func TestDecode_FirstMaximumWins(t *testing.T) {
	batch := batchOf(1)
	out := uniformOutput(1)
	cells := out.Point(0)
	cells[2].Score, cells[2].Depth = 0.9, 0.01
	cells[7].Score, cells[7].Depth = 0.9, 0.04

	sets, err := testDecoder(t).Decode(out, batch)
	require.NoError(t, err)
	assert.Equal(t, 0.01, sets[0][0].Depth)
}

func TestDecode_ApproachOffset(t *testing.T) {
	d, err := NewDecoder(config.Grasp{MaxWidth: 0.1, Height: 0.02, ApproachOffset: -0.01})
	require.NoError(t, err)
	batch := batchOf(1)
	sets, err := d.Decode(uniformOutput(1), batch)
	require.NoError(t, err)
	assert.InDelta(t, batch.Positions[0].Z-0.01, sets[0][0].Translation.Z, tol)
}

func TestDecode_ShapeMismatch(t *testing.T) {
	_, err := testDecoder(t).Decode(uniformOutput(3), batchOf(4))
	assert.True(t, errors.Is(err, model.ErrFatal), "error = %v", err)
}

func TestDecode_Deterministic(t *testing.T) {
	batch := batchOf(30)
	out := model.SyntheticOutput(batch)
	d := testDecoder(t)

	a, err := d.Decode(out, batch)
	require.NoError(t, err)
	b, err := d.Decode(out, batch)
	require.NoError(t, err)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("Decode not deterministic (-first +second):\n%s", diff)
	}
}

func TestNewDecoder_Invalid(t *testing.T) {
	tests := []config.Grasp{
		{MinWidth: -0.1, MaxWidth: 0.1, Height: 0.02},
		{MinWidth: 0.2, MaxWidth: 0.1, Height: 0.02},
		{MaxWidth: 0.1, Height: 0},
	}
	for _, cfg := range tests {
		_, err := NewDecoder(cfg)
		assert.True(t, errors.Is(err, config.ErrInvalid), "NewDecoder(%+v) error = %v", cfg, err)
	}
}

func TestRank(t *testing.T) {
	in := Set{
		{Score: 0.2, PointIndex: 0},
		{Score: 0.9, PointIndex: 1},
		{Score: 0.5, PointIndex: 2},
		{Score: 0.9, PointIndex: 3},
		{Score: -0.1, PointIndex: 4},
	}
	before := append(Set(nil), in...)

	out := Rank(in)
	require.Len(t, out, len(in))
	for i := 1; i < len(out); i++ {
		assert.GreaterOrEqual(t, out[i-1].Score, out[i].Score)
	}
	// stable on ties
	assert.Equal(t, 1, out[0].PointIndex)
	assert.Equal(t, 3, out[1].PointIndex)
	assert.Equal(t, before, in, "input must not be reordered")

	assert.Empty(t, Rank(nil))
}

func TestPostFilter(t *testing.T) {
	in := Set{
		{Score: 0.9, Translation: r3.Vec{X: 0, Y: 0, Z: 0.5}},
		{Score: 0.1, Translation: r3.Vec{X: 0, Y: 0, Z: 0.5}},
		{Score: 0.8, Translation: r3.Vec{X: 0.5, Y: 0, Z: 0.5}},
	}

	assert.Equal(t, in, PostFilter(in, config.PostFilter{}))

	got := PostFilter(in, config.PostFilter{MinScore: 0.15})
	assert.Equal(t, Set{in[0], in[2]}, got)

	ws := &config.Bounds{MinX: -0.2, MaxX: 0.35, MinY: -0.2, MaxY: 0.1, MinZ: 0, MaxZ: 1}
	got = PostFilter(in, config.PostFilter{MinScore: 0.15, Workspace: ws})
	assert.Equal(t, Set{in[0]}, got)
}

func TestSet_FilterAndTop(t *testing.T) {
	s := Set{{Score: 3}, {Score: 2}, {Score: 1}}

	kept, err := s.Filter([]bool{false, true, false})
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 1}, kept.Scores())

	_, err = s.Filter([]bool{true})
	assert.Error(t, err)

	assert.Len(t, s.Top(2), 2)
	assert.Len(t, s.Top(10), 3)
	assert.Empty(t, s.Top(-1))

	top := s.Top(1)
	top[0].Score = 99
	assert.Equal(t, 3.0, s[0].Score, "Top must copy")
}

func TestArrayCodec(t *testing.T) {
	r, err := ViewAngleToRotation(r3.Vec{X: 0.2, Y: 0.1, Z: 1}, 0.5)
	require.NoError(t, err)
	g := Grasp{
		Translation: r3.Vec{X: 0.01, Y: -0.02, Z: 0.45},
		Rotation:    r,
		Width:       0.06,
		Height:      0.02,
		Depth:       0.03,
		Score:       0.77,
		PointIndex:  12,
	}

	a := g.Flatten()
	assert.Equal(t, 0.77, a[0])
	assert.Equal(t, 0.06, a[1])
	assert.Equal(t, 0.45, a[15])

	back := FromArray(a)
	if diff := cmp.Diff(g, back, cmpopts.IgnoreFields(Grasp{}, "PointIndex")); diff != "" {
		t.Errorf("FromArray(Flatten()) mismatch (-want +got):\n%s", diff)
	}

	rows := [][]float64{a[:], make([]float64, ArrayLen)}
	set, err := SetFromSlices(rows)
	require.NoError(t, err)
	assert.Len(t, set, 2)

	_, err = SetFromSlices([][]float64{{1, 2, 3}})
	assert.Error(t, err)
}

func TestToMesh(t *testing.T) {
	r, err := ViewAngleToRotation(r3.Vec{Z: 1}, 0)
	require.NoError(t, err)
	g := Grasp{Rotation: r, Translation: r3.Vec{Z: 0.5}, Width: 0.06, Height: 0.02, Depth: 0.02, Score: 0.75}

	m := g.ToMesh()
	assert.Len(t, m.Vertices, 4*8)
	assert.Len(t, m.Triangles, 4*12)
	for _, tri := range m.Triangles {
		for _, idx := range tri {
			assert.True(t, idx >= 0 && idx < len(m.Vertices))
		}
	}
	assert.Equal(t, [3]float64{0.75, 0, 0.25}, m.Color)

	// Fingers straddle the jaw axis, here camera y.
	var minY, maxY float64
	for _, v := range m.Vertices {
		minY = math.Min(minY, v.Y)
		maxY = math.Max(maxY, v.Y)
	}
	assert.InDelta(t, -(0.03 + meshFingerWidth), minY, tol)
	assert.InDelta(t, 0.03+meshFingerWidth, maxY, tol)
}
