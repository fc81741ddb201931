package model

import (
	"context"
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/ayusman/hasta/internal/cloud"
)

// MockModel is a test implementation of the ScoreModel interface.
// It allows tests to control the inference results.
type MockModel struct {
	mu         sync.Mutex
	output     *Output
	infer      func(batch *cloud.VoxelBatch) (*Output, error)
	err        error
	loadErr    error
	checkpoint string
	loaded     bool
	calls      int
}

// MockCommand as the model command selects MockModel instead of a scoring
// process. It exists for demos and tests; its grasps are synthetic.
const MockCommand = "mock"

// NewMockModel creates a new MockModel. Until SetOutput or SetInferFunc is
// called it answers with SyntheticOutput.
func NewMockModel() *MockModel {
	return &MockModel{}
}

// SetOutput fixes the output returned by Infer.
func (m *MockModel) SetOutput(out *Output) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.output = out
}

// SetInferFunc computes the output per call.
func (m *MockModel) SetInferFunc(fn func(batch *cloud.VoxelBatch) (*Output, error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infer = fn
}

// SetError sets the error that will be returned by Infer.
func (m *MockModel) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// SetLoadError sets the error that will be returned by Load.
func (m *MockModel) SetLoadError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadErr = err
}

// Load records the checkpoint name.
func (m *MockModel) Load(checkpoint string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return fmt.Errorf("%w: load %s: %v", ErrFatal, checkpoint, m.loadErr)
	}
	m.checkpoint = checkpoint
	m.loaded = true
	return nil
}

// Checkpoint returns the last loaded checkpoint.
func (m *MockModel) Checkpoint() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.checkpoint
}

// Calls returns how many times Infer ran.
func (m *MockModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Infer returns the pre-configured output or error.
func (m *MockModel) Infer(ctx context.Context, batch *cloud.VoxelBatch) (*Output, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !m.loaded {
		return nil, fmt.Errorf("%w: infer called before load", ErrFatal)
	}
	if m.err != nil {
		return nil, m.err
	}
	if m.infer != nil {
		return m.infer(batch)
	}
	if m.output != nil {
		return m.output, nil
	}
	return SyntheticOutput(batch), nil
}

// Close is a no-op for the mock model.
func (m *MockModel) Close() error {
	return nil
}

// SyntheticOutput returns a deterministic, well-formed output for any batch.
// Every point approaches straight down the camera axis; scores vary smoothly
// with position and bin so ranking has something to sort.
func SyntheticOutput(batch *cloud.VoxelBatch) *Output {
	out := NewOutput(batch.Len(), NumAngles, NumDepths)
	for p, pos := range batch.Positions {
		for a := 0; a < NumAngles; a++ {
			for d := 0; d < NumDepths; d++ {
				phase := pos.X*91 + pos.Y*57 + float64(a)*0.37 + float64(d)*0.11
				out.Set(p, a, d, Cell{
					Approach: r3.Vec{X: 0, Y: 0, Z: 1},
					Angle:    AngleOf(a),
					Depth:    DepthOf(d),
					Width:    0.02 + 0.06*(0.5+0.5*math.Cos(phase)),
					Score:    0.5 + 0.45*math.Sin(phase),
				})
			}
		}
	}
	return out
}
