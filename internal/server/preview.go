package server

import (
	"image"
	"image/color"
	"math"
	"net/http"

	"gocv.io/x/gocv"

	"github.com/ayusman/hasta/internal/app"
	"github.com/ayusman/hasta/internal/capture"
	"github.com/ayusman/hasta/internal/cloud"
	"github.com/ayusman/hasta/internal/grasp"
)

// Preview drawing constants.
const (
	previewRadius    = 6
	previewThickness = 2
)

// lastRun is what the preview needs from the App.
type lastRun interface {
	Last() *app.Outcome
	LastFrame() *capture.Frame
}

// PreviewHandler serves the color image of the latest run as a JPEG with
// the kept grasp centres drawn on it.
type PreviewHandler struct {
	runs lastRun
}

// NewPreviewHandler creates a new PreviewHandler.
func NewPreviewHandler(runs lastRun) *PreviewHandler {
	return &PreviewHandler{runs: runs}
}

// ServeHTTP renders the preview.
func (h *PreviewHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	frame, last := h.runs.LastFrame(), h.runs.Last()
	if frame == nil || last == nil {
		http.Error(w, "No run yet", http.StatusNotFound)
		return
	}

	buf, err := renderPreview(frame, last.Result.Payload.Grasps)
	if err != nil {
		http.Error(w, "Failed to render preview", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write(buf)
}

// renderPreview draws one circle per grasp centre, best grasp in green and
// the rest shaded from red to blue by score.
func renderPreview(frame *capture.Frame, grasps grasp.Set) ([]byte, error) {
	rgb, err := gocv.NewMatFromBytes(frame.Color.Height, frame.Color.Width, gocv.MatTypeCV8UC3, frame.Color.Data)
	if err != nil {
		return nil, err
	}
	defer rgb.Close()

	img := gocv.NewMat()
	defer img.Close()
	gocv.CvtColor(rgb, &img, gocv.ColorRGBToBGR)

	// Draw worst first so the best grasp ends on top.
	for i := len(grasps) - 1; i >= 0; i-- {
		g := grasps[i]
		u, v, _, ok := cloud.Reproject(g.Translation, frame.Intrinsics)
		if !ok {
			continue
		}
		score := math.Min(math.Max(g.Score, 0), 1)
		c := color.RGBA{R: uint8(255 * score), B: uint8(255 * (1 - score)), A: 255}
		if i == 0 {
			c = color.RGBA{G: 255, A: 255}
		}
		gocv.Circle(&img, image.Pt(int(u), int(v)), previewRadius, c, previewThickness)
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, img)
	if err != nil {
		return nil, err
	}
	defer buf.Close()

	return append([]byte(nil), buf.GetBytes()...), nil
}
