package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/ayusman/hasta/internal/app"
	"github.com/ayusman/hasta/internal/capture"
	"github.com/ayusman/hasta/internal/cloud"
	"github.com/ayusman/hasta/internal/model"
)

// maxUploadBytes bounds a multipart detect request.
const maxUploadBytes = 64 << 20

// Processor runs the pipeline on an uploaded frame.
type Processor interface {
	Process(ctx context.Context, frame *capture.Frame, source string) (*app.Outcome, error)
}

// DetectHandler accepts a depth and a color image and returns ranked grasps.
type DetectHandler struct {
	proc Processor
	intr capture.Intrinsics
}

// NewDetectHandler creates a DetectHandler. Uploaded images are interpreted
// with the given camera intrinsics.
func NewDetectHandler(proc Processor, intr capture.Intrinsics) *DetectHandler {
	return &DetectHandler{proc: proc, intr: intr}
}

type detectResponse struct {
	RunID       string          `json:"run_id"`
	NumFiltered int             `json:"num_filtered"`
	NumSampled  int             `json:"num_sampled"`
	NumDecoded  int             `json:"num_decoded"`
	NumCollided int             `json:"num_collided"`
	ElapsedMs   int64           `json:"elapsed_ms"`
	Grasps      []graspResponse `json:"grasps"`
}

// ServeHTTP handles POST /api/detect with multipart fields "depth" (16-bit
// PNG) and "color" (8-bit PNG).
func (h *DetectHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "Expected multipart form with depth and color images")
		return
	}

	depth, err := readPart(r, "depth")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	color, err := readPart(r, "color")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	frame, err := capture.DecodeFrame(depth, color, h.intr)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	out, err := h.proc.Process(r.Context(), frame, "upload")
	if err != nil {
		log.Printf("Detect failed: %v", err)
		writeError(w, statusFor(err), err.Error())
		return
	}

	res := out.Result
	writeJSON(w, http.StatusOK, detectResponse{
		RunID:       out.RunID,
		NumFiltered: res.NumFiltered,
		NumSampled:  res.NumSampled,
		NumDecoded:  res.NumDecoded,
		NumCollided: res.NumCollided,
		ElapsedMs:   res.Elapsed.Milliseconds(),
		Grasps:      toGraspResponses(res.Payload.Grasps),
	})
}

// statusFor maps pipeline errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, capture.ErrIO):
		return http.StatusBadRequest
	case errors.Is(err, cloud.ErrEmptyScene):
		return http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrFatal):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func readPart(r *http.Request, field string) ([]byte, error) {
	f, _, err := r.FormFile(field)
	if err != nil {
		return nil, fmt.Errorf("missing %q image", field)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read %q image: %w", field, err)
	}
	return data, nil
}
