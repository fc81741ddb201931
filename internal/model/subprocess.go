package model

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/ayusman/hasta/internal/cloud"
	"github.com/ayusman/hasta/internal/config"
)

// SubprocessModel implements ScoreModel using an external scoring process.
//
// Requests are written to the process's stdin as a 4-byte big-endian length
// followed by a JSON document. Each request gets exactly one JSON line back
// on stdout. The process is started by Load and keeps the weights resident
// until Close.
type SubprocessModel struct {
	command string
	args    []string
	timeout time.Duration

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stdout  *bufio.Reader
	started bool
	loaded  bool
}

// NewSubprocessModel resolves the scoring script and interpreter. The
// process itself is started by Load.
func NewSubprocessModel(cfg config.Model) (*SubprocessModel, error) {
	command := cfg.Command
	if command == "" || command == "python3" {
		if venv := findVenvPython(); venv != "" {
			command = venv
		} else if command == "" {
			command = "python3"
		}
	}

	var args []string
	if cfg.Script != "" {
		script := findScript(cfg.Script)
		if script == "" {
			return nil, fmt.Errorf("%w: scoring script %s not found", ErrFatal, cfg.Script)
		}
		args = append(args, script)
	}

	return newSubprocessModel(command, args, cfg.Timeout), nil
}

func newSubprocessModel(command string, args []string, timeout time.Duration) *SubprocessModel {
	return &SubprocessModel{
		command: command,
		args:    args,
		timeout: timeout,
	}
}

type request struct {
	Op         string       `json:"op"`
	Checkpoint string       `json:"checkpoint,omitempty"`
	Coords     [][3]int32   `json:"coords,omitempty"`
	Feats      [][3]float32 `json:"feats,omitempty"`
	BatchIdx   []int32      `json:"batch_idx,omitempty"`
	Positions  [][3]float64 `json:"positions,omitempty"`
	VoxelSize  float64      `json:"voxel_size,omitempty"`
}

// response carries one [ax, ay, az, angle, depth, width, score] row per cell.
type response struct {
	Error     string       `json:"error,omitempty"`
	NumPoints int          `json:"num_points"`
	NumAngles int          `json:"num_angles"`
	NumDepths int          `json:"num_depths"`
	Cells     [][7]float64 `json:"cells"`
}

// Load starts the process and asks it to read the checkpoint.
func (m *SubprocessModel) Load(checkpoint string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.loaded {
		return nil
	}
	if err := m.ensureStarted(); err != nil {
		return err
	}

	ctx := context.Background()
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	var resp response
	if err := m.roundTrip(ctx, request{Op: "load", Checkpoint: checkpoint}, &resp); err != nil {
		return fmt.Errorf("%w: load %s: %v", ErrFatal, checkpoint, err)
	}
	if resp.Error != "" {
		return fmt.Errorf("%w: load %s: %s", ErrFatal, checkpoint, resp.Error)
	}
	m.loaded = true
	return nil
}

// Infer sends the batch and decodes the dense output.
func (m *SubprocessModel) Infer(ctx context.Context, batch *cloud.VoxelBatch) (*Output, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.loaded {
		return nil, fmt.Errorf("%w: infer called before load", ErrFatal)
	}
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	req := request{
		Op:        "infer",
		Coords:    batch.Coords,
		Feats:     batch.Feats,
		BatchIdx:  batch.BatchIdx,
		Positions: make([][3]float64, len(batch.Positions)),
		VoxelSize: batch.VoxelSize,
	}
	for i, p := range batch.Positions {
		req.Positions[i] = [3]float64{p.X, p.Y, p.Z}
	}

	var resp response
	if err := m.roundTrip(ctx, req, &resp); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("inference aborted: %w", ctx.Err())
		}
		return nil, fmt.Errorf("%w: infer: %v", ErrFatal, err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("%w: infer: %s", ErrFatal, resp.Error)
	}

	out := &Output{
		NumPoints: resp.NumPoints,
		NumAngles: resp.NumAngles,
		NumDepths: resp.NumDepths,
		Cells:     make([]Cell, len(resp.Cells)),
	}
	for i, c := range resp.Cells {
		out.Cells[i] = Cell{
			Approach: r3.Vec{X: c[0], Y: c[1], Z: c[2]},
			Angle:    c[3],
			Depth:    c[4],
			Width:    c[5],
			Score:    c[6],
		}
	}
	if err := out.Validate(batch); err != nil {
		return nil, err
	}
	return out, nil
}

// Close shuts down the scoring process.
func (m *SubprocessModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shutdown()
}

// roundTrip must be called with mu held. A cancelled context kills the
// process, since the reply stream can no longer be trusted.
func (m *SubprocessModel) roundTrip(ctx context.Context, req request, resp *response) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	// Write length (4 bytes big-endian) + data
	length := make([]byte, 4)
	binary.BigEndian.PutUint32(length, uint32(len(data)))
	if _, err := m.stdin.Write(length); err != nil {
		return fmt.Errorf("write length: %w", err)
	}
	if _, err := m.stdin.Write(data); err != nil {
		return fmt.Errorf("write data: %w", err)
	}

	type result struct {
		line string
		err  error
	}
	done := make(chan result, 1)
	stdout := m.stdout
	go func() {
		line, err := stdout.ReadString('\n')
		done <- result{line: line, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return fmt.Errorf("read response: %w", r.err)
		}
		if err := json.Unmarshal([]byte(r.line), resp); err != nil {
			return fmt.Errorf("parse response: %w", err)
		}
		return nil
	case <-ctx.Done():
		m.kill()
		return ctx.Err()
	}
}

func (m *SubprocessModel) ensureStarted() error {
	if m.started {
		return nil
	}

	m.cmd = exec.Command(m.command, m.args...)

	stdin, err := m.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("%w: create stdin pipe: %v", ErrFatal, err)
	}
	stdout, err := m.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("%w: create stdout pipe: %v", ErrFatal, err)
	}

	// Capture stderr for debugging
	m.cmd.Stderr = os.Stderr

	if err := m.cmd.Start(); err != nil {
		return fmt.Errorf("%w: start scoring service: %v", ErrFatal, err)
	}

	m.stdin = stdin
	m.stdout = bufio.NewReader(stdout)
	m.started = true
	return nil
}

func (m *SubprocessModel) kill() {
	if !m.started {
		return
	}
	if m.cmd.Process != nil {
		m.cmd.Process.Kill()
	}
	m.cmd.Wait()
	m.reset()
}

func (m *SubprocessModel) shutdown() error {
	if !m.started {
		return nil
	}
	if m.stdin != nil {
		m.stdin.Close()
	}
	err := m.cmd.Wait()
	m.reset()
	return err
}

func (m *SubprocessModel) reset() {
	m.started = false
	m.loaded = false
	m.cmd = nil
	m.stdin = nil
	m.stdout = nil
}

func findScript(name string) string {
	if filepath.IsAbs(name) {
		if _, err := os.Stat(name); err == nil {
			return name
		}
		return ""
	}

	execPath, err := os.Executable()
	var execDir string
	if err == nil {
		execDir = filepath.Dir(execPath)
	}

	candidates := []string{
		name,
		filepath.Join("..", name),
		filepath.Join(execDir, name),
		filepath.Join(os.Getenv("HOME"), ".hasta", name),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			absPath, err := filepath.Abs(path)
			if err == nil {
				return absPath
			}
			return path
		}
	}
	return ""
}

// findVenvPython looks for a Python interpreter in a virtual environment.
func findVenvPython() string {
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}
	execDir := filepath.Dir(execPath)

	candidates := []string{
		"venv/bin/python",
		"../venv/bin/python",
		filepath.Join(execDir, "venv/bin/python"),
		filepath.Join(os.Getenv("HOME"), ".hasta/venv/bin/python"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			absPath, err := filepath.Abs(path)
			if err == nil {
				return absPath
			}
			return path
		}
	}
	return ""
}
