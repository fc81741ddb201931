package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/hasta/internal/capture"
	"github.com/ayusman/hasta/internal/config"
	"github.com/ayusman/hasta/internal/model"
	"github.com/ayusman/hasta/internal/store"
)

const testConfigYAML = `camera:
  fx: 100
  fy: 110
  cx: 32
  cy: 24
  width: 64
  height: 48
  depth_scale: 1000
num_point: 400
top_k: 3
collision_thresh: 0
model:
  command: mock
`

// writeScene writes a config and a constant-depth image pair into dir.
func writeScene(t *testing.T, dir string) (cfgPath, depthPath, colorPath string) {
	t.Helper()

	cfgPath = filepath.Join(dir, "hasta.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(testConfigYAML), 0644))

	intr := capture.Intrinsics{Fx: 100, Fy: 110, Cx: 32, Cy: 24, Width: 64, Height: 48, DepthScale: 1000}
	depthPNG, colorPNG, err := capture.EncodePNG(capture.ConstantDepthFrame(intr, 0.5))
	require.NoError(t, err)

	depthPath = filepath.Join(dir, "depth.png")
	colorPath = filepath.Join(dir, "color.png")
	require.NoError(t, os.WriteFile(depthPath, depthPNG, 0644))
	require.NoError(t, os.WriteFile(colorPath, colorPNG, 0644))
	return cfgPath, depthPath, colorPath
}

func TestLoadConfig_Overrides(t *testing.T) {
	dir := t.TempDir()
	cfgPath, _, _ := writeScene(t, dir)

	opts := &rootOptions{ConfigPath: cfgPath, Checkpoint: "other.tar", Seed: 99, seedSet: true}
	cfg, err := opts.loadConfig()
	require.NoError(t, err)

	assert.Equal(t, 64, cfg.Camera.Width)
	assert.Equal(t, 400, cfg.NumPoint)
	assert.Equal(t, "other.tar", cfg.Model.Checkpoint)
	assert.Equal(t, uint64(99), cfg.RandomSeed)
	// Keys missing from the file keep their defaults.
	assert.Equal(t, config.Default().VoxelSize, cfg.VoxelSize)
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := (&rootOptions{}).loadConfig()
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestLoadConfig_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("num_point: -5\n"), 0644))

	_, err := (&rootOptions{ConfigPath: path}).loadConfig()
	assert.True(t, errors.Is(err, config.ErrInvalid), "error = %v", err)
}

func TestDetectCommand_JSON(t *testing.T) {
	dir := t.TempDir()
	cfgPath, depthPath, colorPath := writeScene(t, dir)
	dbPath := filepath.Join(dir, "runs.db")

	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{
		"detect", "-c", cfgPath, "--depth", depthPath, "--color", colorPath,
		"--db", dbPath, "--json", "--plugins", filepath.Join(dir, "plugins"),
	})
	require.NoError(t, cmd.Execute())

	var result struct {
		RunID  string        `json:"run_id"`
		Grasps [][16]float64 `json:"grasps"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &result))
	assert.Len(t, result.Grasps, 3)
	for i := 1; i < len(result.Grasps); i++ {
		assert.GreaterOrEqual(t, result.Grasps[i-1][0], result.Grasps[i][0])
	}

	st, err := store.New(dbPath)
	require.NoError(t, err)
	defer st.Close()
	run, err := st.Runs().GetByID(result.RunID)
	require.NoError(t, err)
	assert.Equal(t, 3, run.NumGrasps)
}

func TestDetectCommand_MissingFlags(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"detect", "--depth", "only.png"})
	assert.Error(t, cmd.Execute())
}

func TestDetectCommand_MissingFiles(t *testing.T) {
	dir := t.TempDir()
	cfgPath, _, _ := writeScene(t, dir)

	cmd := newRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"detect", "-c", cfgPath, "--depth", filepath.Join(dir, "nope.png"), "--color", filepath.Join(dir, "nope2.png")})

	err := cmd.Execute()
	assert.True(t, errors.Is(err, capture.ErrIO), "error = %v", err)
}

func TestDetectCommand_MissingModelScript(t *testing.T) {
	dir := t.TempDir()
	_, depthPath, colorPath := writeScene(t, dir)

	cfgPath := filepath.Join(dir, "no-model.yaml")
	yaml := strings.Replace(testConfigYAML, "command: mock", "script: "+filepath.Join(dir, "missing_service.py"), 1)
	require.NoError(t, os.WriteFile(cfgPath, []byte(yaml), 0644))

	cmd := newRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{
		"detect", "-c", cfgPath, "--depth", depthPath, "--color", colorPath,
		"--db", filepath.Join(dir, "runs.db"), "--plugins", filepath.Join(dir, "plugins"),
	})

	err := cmd.Execute()
	assert.True(t, errors.Is(err, model.ErrFatal), "error = %v", err)
}
