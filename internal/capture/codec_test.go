package capture

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestFrame_Validate(t *testing.T) {
	intr := testIntrinsics()

	tests := []struct {
		name    string
		mutate  func(f *Frame)
		wantErr bool
	}{
		{name: "valid", mutate: func(f *Frame) {}},
		{name: "empty depth", mutate: func(f *Frame) { f.Depth.Data = nil }, wantErr: true},
		{name: "short color", mutate: func(f *Frame) { f.Color.Data = f.Color.Data[:10] }, wantErr: true},
		{name: "size mismatch with intrinsics", mutate: func(f *Frame) { f.Intrinsics.Width = 10 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := ConstantDepthFrame(intr, 0.5)
			tt.mutate(f)
			err := f.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrIO) {
				t.Errorf("Validate() error = %v, want ErrIO", err)
			}
		})
	}
}

func TestIntrinsics_Validate(t *testing.T) {
	good := testIntrinsics()
	if err := good.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	bad := good
	bad.DepthScale = 0
	if err := bad.Validate(); err == nil {
		t.Error("expected error for zero depth scale")
	}

	bad = good
	bad.Fx = -1
	if err := bad.Validate(); err == nil {
		t.Error("expected error for negative focal length")
	}
}

func TestEncodeDecodeFrame(t *testing.T) {
	intr := testIntrinsics()
	f := ConstantDepthFrame(intr, 0.5)
	f.SetDepth(3, 4, 0.731)
	f.SetColor(3, 4, 200, 10, 30)

	depthPNG, colorPNG, err := EncodePNG(f)
	if err != nil {
		t.Fatalf("EncodePNG() error = %v", err)
	}

	got, err := DecodeFrame(depthPNG, colorPNG, intr)
	if err != nil {
		t.Fatalf("DecodeFrame() error = %v", err)
	}

	if d := got.Depth.At(3, 4); d != 731 {
		t.Errorf("depth at (3,4) = %d, want 731", d)
	}
	if d := got.Depth.At(0, 0); d != 500 {
		t.Errorf("depth at (0,0) = %d, want 500", d)
	}
	r, g, b := got.Color.RGB(4*intr.Width + 3)
	if r != 200 || g != 10 || b != 30 {
		t.Errorf("color at (3,4) = (%d,%d,%d), want (200,10,30)", r, g, b)
	}
}

func TestDecodeFrame_Garbage(t *testing.T) {
	_, err := DecodeFrame([]byte("not a png"), []byte("nor this"), testIntrinsics())
	if !errors.Is(err, ErrIO) {
		t.Errorf("DecodeFrame() error = %v, want ErrIO", err)
	}
}

func TestLoadFrame_Missing(t *testing.T) {
	_, err := LoadFrame("/nonexistent/depth.png", "/nonexistent/color.png", testIntrinsics())
	if !errors.Is(err, ErrIO) {
		t.Errorf("LoadFrame() error = %v, want ErrIO", err)
	}
}

func TestFileSource(t *testing.T) {
	intr := testIntrinsics()
	depthPNG, colorPNG, err := EncodePNG(ConstantDepthFrame(intr, 0.25))
	if err != nil {
		t.Fatalf("EncodePNG() error = %v", err)
	}

	dir := t.TempDir()
	depthPath := filepath.Join(dir, "depth.png")
	colorPath := filepath.Join(dir, "color.png")
	if err := os.WriteFile(depthPath, depthPNG, 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(colorPath, colorPNG, 0644); err != nil {
		t.Fatal(err)
	}

	src := NewFileSource(depthPath, colorPath, intr)
	if src.IsOpen() {
		t.Error("source should not be open initially")
	}
	if _, err := src.ReadFrame(); !errors.Is(err, ErrSourceNotOpen) {
		t.Errorf("ReadFrame() before Open error = %v, want ErrSourceNotOpen", err)
	}

	if err := src.Open(); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer src.Close()

	f, err := src.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame() error = %v", err)
	}
	if f.Depth.At(10, 10) != 250 {
		t.Errorf("depth = %d, want 250", f.Depth.At(10, 10))
	}
}
