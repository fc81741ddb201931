// Package testdata builds synthetic RGB-D scenes for end-to-end tests.
package testdata

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ayusman/hasta/internal/capture"
)

// Scene geometry in metres.
const (
	TableDepth = 0.60
	BoxDepth   = 0.52
)

// Intrinsics is a small pinhole camera used by the fixtures.
func Intrinsics() capture.Intrinsics {
	return capture.Intrinsics{Fx: 120, Fy: 120, Cx: 40, Cy: 30, Width: 80, Height: 60, DepthScale: 1000}
}

// TableScene is a flat grey table filling the view.
func TableScene(intr capture.Intrinsics) *capture.Frame {
	f := capture.ConstantDepthFrame(intr, TableDepth)
	for v := 0; v < intr.Height; v++ {
		for u := 0; u < intr.Width; u++ {
			f.SetColor(u, v, 150, 140, 120)
		}
	}
	return f
}

// BoxOnTable adds a red box covering the centre quarter of the image.
func BoxOnTable(intr capture.Intrinsics) *capture.Frame {
	f := TableScene(intr)
	for v := intr.Height * 3 / 8; v < intr.Height*5/8; v++ {
		for u := intr.Width * 3 / 8; u < intr.Width*5/8; u++ {
			f.SetDepth(u, v, BoxDepth)
			f.SetColor(u, v, 200, 30, 30)
		}
	}
	return f
}

// WriteScene writes a frame as depth.png and color.png under dir.
func WriteScene(dir string, f *capture.Frame) (depthPath, colorPath string, err error) {
	depthPNG, colorPNG, err := capture.EncodePNG(f)
	if err != nil {
		return "", "", fmt.Errorf("encode scene: %w", err)
	}

	depthPath = filepath.Join(dir, "depth.png")
	colorPath = filepath.Join(dir, "color.png")
	if err := os.WriteFile(depthPath, depthPNG, 0644); err != nil {
		return "", "", err
	}
	if err := os.WriteFile(colorPath, colorPNG, 0644); err != nil {
		return "", "", err
	}
	return depthPath, colorPath, nil
}
