package cloud

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/ayusman/hasta/internal/capture"
)

// Project back-projects a depth raster through the pinhole model:
//
//	z = d / depth_scale
//	x = (u - cx) * z / fx
//	y = (v - cy) * z / fy
//
// Zero-depth pixels become points at the origin; removing them is the
// SceneFilter's job. With organized=false the result is flagged flat but the
// point order is identical.
func Project(depth *capture.DepthFrame, intr capture.Intrinsics, organized bool) (*Cloud, error) {
	if depth.Width != intr.Width || depth.Height != intr.Height {
		return nil, fmt.Errorf("%w: depth %dx%d does not match intrinsics %dx%d",
			capture.ErrIO, depth.Width, depth.Height, intr.Width, intr.Height)
	}
	if len(depth.Data) != depth.Width*depth.Height {
		return nil, fmt.Errorf("%w: depth raster has %d samples for %dx%d",
			capture.ErrIO, len(depth.Data), depth.Width, depth.Height)
	}

	points := make([]r3.Vec, len(depth.Data))
	for v := 0; v < depth.Height; v++ {
		row := v * depth.Width
		for u := 0; u < depth.Width; u++ {
			z := float64(depth.Data[row+u]) / intr.DepthScale
			points[row+u] = r3.Vec{
				X: (float64(u) - intr.Cx) * z / intr.Fx,
				Y: (float64(v) - intr.Cy) * z / intr.Fy,
				Z: z,
			}
		}
	}

	c := &Cloud{Points: points, Width: depth.Width, Height: depth.Height, Organized: true}
	if !organized {
		return c.Flatten(), nil
	}
	return c, nil
}

// Reproject applies the forward pinhole model to a camera-frame point and
// returns the pixel coordinates and the raw depth value. Points at z <= 0
// have no image and return ok=false.
func Reproject(p r3.Vec, intr capture.Intrinsics) (u, v, d float64, ok bool) {
	if p.Z <= 0 {
		return 0, 0, 0, false
	}
	u = p.X*intr.Fx/p.Z + intr.Cx
	v = p.Y*intr.Fy/p.Z + intr.Cy
	d = p.Z * intr.DepthScale
	return u, v, d, true
}
