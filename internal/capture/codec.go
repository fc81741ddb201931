package capture

import (
	"encoding/binary"
	"fmt"
	"os"
	"time"

	"gocv.io/x/gocv"
)

// DepthFromMat converts a single channel 16-bit Mat into a DepthFrame.
func DepthFromMat(mat gocv.Mat) (DepthFrame, error) {
	if mat.Empty() {
		return DepthFrame{}, fmt.Errorf("%w: depth image is empty", ErrIO)
	}
	if mat.Type() != gocv.MatTypeCV16U || mat.Channels() != 1 {
		return DepthFrame{}, fmt.Errorf("%w: depth image must be 16-bit single channel, got type %v", ErrIO, mat.Type())
	}

	raw := mat.ToBytes()
	w, h := mat.Cols(), mat.Rows()
	if len(raw) != 2*w*h {
		return DepthFrame{}, fmt.Errorf("%w: depth image has %d bytes for %dx%d", ErrIO, len(raw), w, h)
	}

	data := make([]uint16, w*h)
	for i := range data {
		data[i] = binary.NativeEndian.Uint16(raw[2*i:])
	}
	return DepthFrame{Width: w, Height: h, Data: data}, nil
}

// ColorFromMat converts a BGR (OpenCV order) Mat into an RGB ColorFrame.
func ColorFromMat(mat gocv.Mat) (ColorFrame, error) {
	if mat.Empty() {
		return ColorFrame{}, fmt.Errorf("%w: color image is empty", ErrIO)
	}
	if mat.Type() != gocv.MatTypeCV8UC3 {
		return ColorFrame{}, fmt.Errorf("%w: color image must be 8-bit 3 channel, got type %v", ErrIO, mat.Type())
	}

	rgb := gocv.NewMat()
	defer rgb.Close()
	gocv.CvtColor(mat, &rgb, gocv.ColorBGRToRGB)

	return ColorFrame{Width: rgb.Cols(), Height: rgb.Rows(), Data: rgb.ToBytes()}, nil
}

// DecodeFrame decodes lossless depth and color images (e.g. PNG) into a Frame.
func DecodeFrame(depthData, colorData []byte, intr Intrinsics) (*Frame, error) {
	depthMat, err := gocv.IMDecode(depthData, gocv.IMReadUnchanged)
	if err != nil {
		return nil, fmt.Errorf("%w: decode depth: %v", ErrIO, err)
	}
	defer depthMat.Close()

	colorMat, err := gocv.IMDecode(colorData, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("%w: decode color: %v", ErrIO, err)
	}
	defer colorMat.Close()

	return frameFromMats(depthMat, colorMat, intr)
}

// LoadFrame reads a depth and a color image from disk.
func LoadFrame(depthPath, colorPath string, intr Intrinsics) (*Frame, error) {
	for _, p := range []string{depthPath, colorPath} {
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrIO, err)
		}
	}

	depthMat := gocv.IMRead(depthPath, gocv.IMReadUnchanged)
	defer depthMat.Close()
	colorMat := gocv.IMRead(colorPath, gocv.IMReadColor)
	defer colorMat.Close()

	frame, err := frameFromMats(depthMat, colorMat, intr)
	if err != nil {
		return nil, fmt.Errorf("load %s, %s: %w", depthPath, colorPath, err)
	}
	return frame, nil
}

func frameFromMats(depthMat, colorMat gocv.Mat, intr Intrinsics) (*Frame, error) {
	depth, err := DepthFromMat(depthMat)
	if err != nil {
		return nil, err
	}
	color, err := ColorFromMat(colorMat)
	if err != nil {
		return nil, err
	}

	frame := &Frame{
		Depth:      depth,
		Color:      color,
		Intrinsics: intr,
		Timestamp:  time.Now(),
	}
	if err := frame.Validate(); err != nil {
		return nil, err
	}
	return frame, nil
}

// EncodePNG encodes a frame's rasters as a 16-bit depth PNG and an 8-bit color PNG.
func EncodePNG(f *Frame) (depthPNG, colorPNG []byte, err error) {
	raw := make([]byte, 2*len(f.Depth.Data))
	for i, d := range f.Depth.Data {
		binary.NativeEndian.PutUint16(raw[2*i:], d)
	}
	depthMat, err := gocv.NewMatFromBytes(f.Depth.Height, f.Depth.Width, gocv.MatTypeCV16U, raw)
	if err != nil {
		return nil, nil, fmt.Errorf("depth mat: %w", err)
	}
	defer depthMat.Close()

	rgbMat, err := gocv.NewMatFromBytes(f.Color.Height, f.Color.Width, gocv.MatTypeCV8UC3, f.Color.Data)
	if err != nil {
		return nil, nil, fmt.Errorf("color mat: %w", err)
	}
	defer rgbMat.Close()
	bgrMat := gocv.NewMat()
	defer bgrMat.Close()
	gocv.CvtColor(rgbMat, &bgrMat, gocv.ColorRGBToBGR)

	depthBuf, err := gocv.IMEncode(gocv.PNGFileExt, depthMat)
	if err != nil {
		return nil, nil, fmt.Errorf("encode depth: %w", err)
	}
	defer depthBuf.Close()
	colorBuf, err := gocv.IMEncode(gocv.PNGFileExt, bgrMat)
	if err != nil {
		return nil, nil, fmt.Errorf("encode color: %w", err)
	}
	defer colorBuf.Close()

	// GetBytes aliases native memory released by Close.
	depthPNG = append([]byte(nil), depthBuf.GetBytes()...)
	colorPNG = append([]byte(nil), colorBuf.GetBytes()...)
	return depthPNG, colorPNG, nil
}
