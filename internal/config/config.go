// Package config holds the immutable configuration record handed to every
// pipeline stage constructor.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ayusman/hasta/internal/capture"
)

// ErrInvalid is returned when a configuration value cannot be used.
// Stage constructors wrap it so misconfiguration surfaces before any frame is processed.
var ErrInvalid = errors.New("invalid configuration")

// DepthBand is the trusted operational depth range in metres.
type DepthBand struct {
	Min float64 `yaml:"min" json:"min"`
	Max float64 `yaml:"max" json:"max"`
}

// Validate checks that the band is finite and ordered.
func (b DepthBand) Validate() error {
	if math.IsNaN(b.Min) || math.IsNaN(b.Max) || math.IsInf(b.Min, 0) || math.IsInf(b.Max, 0) {
		return fmt.Errorf("%w: depth_band must be finite, got [%v, %v]", ErrInvalid, b.Min, b.Max)
	}
	if b.Min > b.Max {
		return fmt.Errorf("%w: depth_band min %v exceeds max %v", ErrInvalid, b.Min, b.Max)
	}
	return nil
}

// Bounds is an axis-aligned box in camera coordinates.
type Bounds struct {
	MinX float64 `yaml:"min_x" json:"min_x"`
	MaxX float64 `yaml:"max_x" json:"max_x"`
	MinY float64 `yaml:"min_y" json:"min_y"`
	MaxY float64 `yaml:"max_y" json:"max_y"`
	MinZ float64 `yaml:"min_z" json:"min_z"`
	MaxZ float64 `yaml:"max_z" json:"max_z"`
}

// Contains reports whether (x, y, z) lies inside the box, borders included.
func (b Bounds) Contains(x, y, z float64) bool {
	return x >= b.MinX && x <= b.MaxX && y >= b.MinY && y <= b.MaxY && z >= b.MinZ && z <= b.MaxZ
}

// Grasp holds the decoder's physical gripper limits.
type Grasp struct {
	MinWidth       float64 `yaml:"min_width" json:"min_width"`
	MaxWidth       float64 `yaml:"max_width" json:"max_width"`
	Height         float64 `yaml:"height" json:"height"`
	ApproachOffset float64 `yaml:"approach_offset" json:"approach_offset"`
}

// PostFilter removes ranked grasps below a score or outside a workspace.
// The zero value keeps everything.
type PostFilter struct {
	MinScore  float64 `yaml:"min_score" json:"min_score"`
	Workspace *Bounds `yaml:"workspace" json:"workspace,omitempty"`
}

// Model configures the external scoring process.
type Model struct {
	Checkpoint string        `yaml:"checkpoint" json:"checkpoint"`
	Command    string        `yaml:"command" json:"command"`
	Script     string        `yaml:"script" json:"script"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout"`
}

// Config is the full pipeline configuration. It is passed by value and never mutated after Validate.
type Config struct {
	Camera          capture.Intrinsics `yaml:"camera" json:"camera"`
	NumPoint        int                `yaml:"num_point" json:"num_point"`
	VoxelSize       float64            `yaml:"voxel_size" json:"voxel_size"`
	VoxelSizeCD     float64            `yaml:"voxel_size_cd" json:"voxel_size_cd"`
	CollisionThresh float64            `yaml:"collision_thresh" json:"collision_thresh"` // <= 0 disables collision filtering
	ApproachDist    float64            `yaml:"approach_dist" json:"approach_dist"`
	TopK            int                `yaml:"top_k" json:"top_k"`
	DepthBand       DepthBand          `yaml:"depth_band" json:"depth_band"`
	RandomSeed      uint64             `yaml:"random_seed" json:"random_seed"`
	Grasp           Grasp              `yaml:"grasp" json:"grasp"`
	PostFilter      PostFilter         `yaml:"post_filter" json:"post_filter"`
	Model           Model              `yaml:"model" json:"model"`
	Workers         int                `yaml:"workers" json:"workers"` // 0 means GOMAXPROCS
}

// Default returns the configuration used by the reference Realsense setup.
func Default() Config {
	return Config{
		Camera: capture.Intrinsics{
			Fx:         927.17,
			Fy:         927.37,
			Cx:         651.32,
			Cy:         349.62,
			Width:      1280,
			Height:     720,
			DepthScale: 1000,
		},
		NumPoint:        15000,
		VoxelSize:       0.005,
		VoxelSizeCD:     0.01,
		CollisionThresh: 0.01,
		ApproachDist:    0.05,
		TopK:            100,
		DepthBand:       DepthBand{Min: 0, Max: 1},
		Grasp: Grasp{
			MinWidth: 0,
			MaxWidth: 0.1,
			Height:   0.02,
		},
		Model: Model{
			Checkpoint: "logs/1billion.tar",
			Command:    "python3",
			Script:     "scripts/grasp_service.py",
			Timeout:    30 * time.Second,
		},
	}
}

// Load reads a YAML configuration file. Keys omitted from the file keep
// their Default values, so partial configs are safe.
func Load(path string) (Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".yaml" && ext != ".yml" {
		return Config{}, fmt.Errorf("config file must have .yaml extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return Config{}, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if info.Size() > maxFileSize {
		return Config{}, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config YAML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every knob. All failures wrap ErrInvalid.
func (c Config) Validate() error {
	if err := c.Camera.Validate(); err != nil {
		return fmt.Errorf("%w: camera: %v", ErrInvalid, err)
	}
	if c.NumPoint <= 0 {
		return fmt.Errorf("%w: num_point must be positive, got %d", ErrInvalid, c.NumPoint)
	}
	if !(c.VoxelSize > 0) || math.IsInf(c.VoxelSize, 0) {
		return fmt.Errorf("%w: voxel_size must be positive, got %v", ErrInvalid, c.VoxelSize)
	}
	if c.CollisionThresh > 0 && (!(c.VoxelSizeCD > 0) || math.IsInf(c.VoxelSizeCD, 0)) {
		return fmt.Errorf("%w: voxel_size_cd must be positive when collision filtering is on, got %v", ErrInvalid, c.VoxelSizeCD)
	}
	if c.ApproachDist < 0 {
		return fmt.Errorf("%w: approach_dist must be non-negative, got %v", ErrInvalid, c.ApproachDist)
	}
	if c.TopK <= 0 {
		return fmt.Errorf("%w: top_k must be positive, got %d", ErrInvalid, c.TopK)
	}
	if err := c.DepthBand.Validate(); err != nil {
		return err
	}
	if c.Grasp.MinWidth < 0 || c.Grasp.MaxWidth < c.Grasp.MinWidth {
		return fmt.Errorf("%w: grasp width range [%v, %v] is invalid", ErrInvalid, c.Grasp.MinWidth, c.Grasp.MaxWidth)
	}
	if c.Grasp.Height <= 0 {
		return fmt.Errorf("%w: grasp height must be positive, got %v", ErrInvalid, c.Grasp.Height)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers must be non-negative, got %d", ErrInvalid, c.Workers)
	}
	if c.Model.Timeout < 0 {
		return fmt.Errorf("%w: model timeout must be non-negative, got %v", ErrInvalid, c.Model.Timeout)
	}
	return nil
}
