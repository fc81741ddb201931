package capture

import (
	"encoding/binary"
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// ChangeDetector reports whether the scene geometry changed between
// consecutive depth frames, using depth differencing with Gaussian blur
// for sensor noise reduction.
type ChangeDetector struct {
	threshold   float64
	prevDepth   gocv.Mat
	initialized bool
	closed      bool
	mu          sync.Mutex
}

// Change detection constants
const (
	// BlurSize is the kernel size for Gaussian blur (5x5)
	BlurSize = 5
	// DiffMetres is the per-pixel depth change that counts as a change
	DiffMetres = 0.01
)

// NewChangeDetector creates a new ChangeDetector with the given threshold.
// The threshold is the percentage of pixels whose depth must change.
// For example, a threshold of 1.0 means 1% of pixels must change.
func NewChangeDetector(threshold float64) *ChangeDetector {
	return &ChangeDetector{
		threshold: threshold,
		prevDepth: gocv.NewMat(),
	}
}

// Detect compares the frame's depth raster against the previous one.
// Returns whether the scene changed and the percentage of pixels that changed.
// The first frame always counts as changed.
func (c *ChangeDetector) Detect(frame *Frame) (bool, float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || frame == nil || len(frame.Depth.Data) == 0 {
		return false, 0
	}

	raw := make([]byte, 2*len(frame.Depth.Data))
	for i, d := range frame.Depth.Data {
		binary.NativeEndian.PutUint16(raw[2*i:], d)
	}
	depth, err := gocv.NewMatFromBytes(frame.Depth.Height, frame.Depth.Width, gocv.MatTypeCV16U, raw)
	if err != nil {
		return false, 0
	}
	defer depth.Close()

	metric := gocv.NewMat()
	defer metric.Close()
	depth.ConvertTo(&metric, gocv.MatTypeCV32F)

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(metric, &blurred, image.Point{X: BlurSize, Y: BlurSize}, 0, 0, gocv.BorderDefault)

	if !c.initialized || blurred.Rows() != c.prevDepth.Rows() || blurred.Cols() != c.prevDepth.Cols() {
		blurred.CopyTo(&c.prevDepth)
		c.initialized = true
		return true, 100
	}

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(blurred, c.prevDepth, &diff)

	thresh := gocv.NewMat()
	defer thresh.Close()
	gocv.Threshold(diff, &thresh, float32(DiffMetres*frame.Intrinsics.DepthScale), 255, gocv.ThresholdBinary)

	nonZero := gocv.CountNonZero(thresh)
	totalPixels := thresh.Rows() * thresh.Cols()
	changePercent := float64(nonZero) / float64(totalPixels) * 100.0

	blurred.CopyTo(&c.prevDepth)

	return changePercent > c.threshold, changePercent
}

// Reset forgets the baseline so the next frame counts as changed.
func (c *ChangeDetector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed && !c.prevDepth.Empty() {
		c.prevDepth.Close()
		c.prevDepth = gocv.NewMat()
	}
	c.initialized = false
}

// Close releases the baseline. A closed detector reports no change.
func (c *ChangeDetector) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.prevDepth.Close()
	c.closed = true
	c.initialized = false
}
