// Package api provides HTTP API handlers for grasp detection runs.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/ayusman/hasta/internal/grasp"
)

type errorResponse struct {
	Error string `json:"error"`
}

// graspResponse is the JSON form of one ranked grasp.
type graspResponse struct {
	Rank        int        `json:"rank"`
	Score       float64    `json:"score"`
	Width       float64    `json:"width"`
	Height      float64    `json:"height"`
	Depth       float64    `json:"depth"`
	Rotation    [9]float64 `json:"rotation"`
	Translation [3]float64 `json:"translation"`
	Quaternion  [4]float64 `json:"quaternion"` // w, x, y, z
}

func toGraspResponse(rank int, g grasp.Grasp) graspResponse {
	q := g.Quaternion()
	return graspResponse{
		Rank:        rank,
		Score:       g.Score,
		Width:       g.Width,
		Height:      g.Height,
		Depth:       g.Depth,
		Rotation:    g.Rotation,
		Translation: [3]float64{g.Translation.X, g.Translation.Y, g.Translation.Z},
		Quaternion:  [4]float64{q.Real, q.Imag, q.Jmag, q.Kmag},
	}
}

func toGraspResponses(set grasp.Set) []graspResponse {
	out := make([]graspResponse, len(set))
	for i, g := range set {
		out[i] = toGraspResponse(i, g)
	}
	return out
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
