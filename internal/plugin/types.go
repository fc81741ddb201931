// Package plugin discovers and runs executor plugins: separate programs that
// receive the ranked grasps of a run on stdin and hand them to a robot stack.
package plugin

import (
	"encoding/json"
	"slices"

	"github.com/ayusman/hasta/internal/grasp"
)

// ActionExecuteGrasps asks a plugin to act on the grasps of a run.
const ActionExecuteGrasps = "execute_grasps"

// Manifest describes a plugin's metadata and capabilities.
type Manifest struct {
	Name         string          `json:"name"`
	Version      string          `json:"version"`
	Description  string          `json:"description"`
	Executable   string          `json:"executable"`
	Actions      []string        `json:"actions"`
	ConfigSchema json.RawMessage `json:"configSchema,omitempty"`
}

// Request is written to the plugin's stdin as a single JSON document.
// Each grasp is the flat 16-float layout of grasp.Array.
type Request struct {
	Action string          `json:"action"`
	RunID  string          `json:"run_id"`
	Grasps []grasp.Array   `json:"grasps"`
	Config json.RawMessage `json:"config,omitempty"`
}

// NewGraspRequest builds an execute_grasps request for a ranked set.
func NewGraspRequest(runID string, set grasp.Set) *Request {
	grasps := set.Arrays()
	if grasps == nil {
		grasps = []grasp.Array{}
	}
	return &Request{
		Action: ActionExecuteGrasps,
		RunID:  runID,
		Grasps: grasps,
	}
}

// Response represents the response from a plugin execution.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Plugin represents a discovered plugin with its manifest and location.
type Plugin struct {
	Manifest   Manifest
	Path       string
	Executable string
}

// Supports reports whether the manifest lists the action.
func (p *Plugin) Supports(action string) bool {
	return slices.Contains(p.Manifest.Actions, action)
}
