// Package main provides an executor plugin that appends received grasps to a
// CSV file, one row per grasp. It stands in for a robot execution stack.
package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Request represents the input from the plugin executor.
type Request struct {
	Action string          `json:"action"`
	RunID  string          `json:"run_id"`
	Grasps [][16]float64   `json:"grasps"`
	Config json.RawMessage `json:"config"`
}

// Response represents the output to the plugin executor.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// RecorderConfig overrides where rows are written.
type RecorderConfig struct {
	File string `json:"file"`
}

// header names the columns of the flat grasp layout.
var header = []string{
	"run_id", "rank", "score", "width", "height", "depth",
	"r00", "r01", "r02", "r10", "r11", "r12", "r20", "r21", "r22",
	"tx", "ty", "tz",
}

func main() {
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeErrorResponse(fmt.Sprintf("failed to decode request: %v", err))
		return
	}

	if req.Action != "execute_grasps" {
		writeErrorResponse(fmt.Sprintf("unknown action: %s", req.Action))
		return
	}

	path, err := outputPath(req.Config)
	if err != nil {
		writeErrorResponse(err.Error())
		return
	}

	if err := record(path, req.RunID, req.Grasps); err != nil {
		writeErrorResponse(fmt.Sprintf("record failed: %v", err))
		return
	}

	data, _ := json.Marshal(map[string]any{"recorded": len(req.Grasps), "file": path})
	json.NewEncoder(os.Stdout).Encode(Response{Success: true, Data: data})
}

// outputPath resolves the CSV file: config "file", then HASTA_RECORDER_FILE,
// then grasps.csv in the working directory.
func outputPath(raw json.RawMessage) (string, error) {
	if len(raw) > 0 && string(raw) != "null" {
		var cfg RecorderConfig
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return "", fmt.Errorf("failed to parse config: %w", err)
		}
		if cfg.File != "" {
			return filepath.Clean(cfg.File), nil
		}
	}
	if p := os.Getenv("HASTA_RECORDER_FILE"); p != "" {
		return filepath.Clean(p), nil
	}
	return "grasps.csv", nil
}

// record appends one row per grasp, writing the header when the file is new.
func record(path, runID string, grasps [][16]float64) error {
	info, statErr := os.Stat(path)
	fresh := os.IsNotExist(statErr) || (statErr == nil && info.Size() == 0)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if fresh {
		if err := w.Write(header); err != nil {
			return err
		}
	}

	row := make([]string, len(header))
	for rank, g := range grasps {
		row[0] = runID
		row[1] = strconv.Itoa(rank)
		for i, v := range g {
			row[2+i] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}

// writeErrorResponse writes an error response to stdout.
func writeErrorResponse(errMsg string) {
	json.NewEncoder(os.Stdout).Encode(Response{Success: false, Error: errMsg})
}
