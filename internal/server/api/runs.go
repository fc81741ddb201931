package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ayusman/hasta/internal/grasp"
	"github.com/ayusman/hasta/internal/store"
)

// RunHandler serves stored runs and their grasps.
type RunHandler struct {
	store *store.Store
}

// NewRunHandler creates a new RunHandler with the given store.
func NewRunHandler(s *store.Store) *RunHandler {
	return &RunHandler{store: s}
}

// ServeHTTP routes /api/runs, /api/runs/{id} and /api/runs/{id}/grasps.
func (h *RunHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/runs")
	path = strings.Trim(path, "/")

	if path == "" {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.list(w, r)
		return
	}

	id, rest, _ := strings.Cut(path, "/")
	switch {
	case rest == "grasps":
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.grasps(w, id)
	case rest != "":
		writeError(w, http.StatusNotFound, "Not found")
	case r.Method == http.MethodGet:
		h.get(w, id)
	case r.Method == http.MethodDelete:
		h.delete(w, id)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

type runResponse struct {
	ID          string          `json:"id"`
	Source      string          `json:"source"`
	Seed        uint64          `json:"seed"`
	NumFiltered int             `json:"num_filtered"`
	NumSampled  int             `json:"num_sampled"`
	NumDecoded  int             `json:"num_decoded"`
	NumCollided int             `json:"num_collided"`
	NumGrasps   int             `json:"num_grasps"`
	ElapsedMs   int64           `json:"elapsed_ms"`
	Config      json.RawMessage `json:"config,omitempty"`
	CreatedAt   string          `json:"created_at"`
}

type listRunsResponse struct {
	Runs []runResponse `json:"runs"`
}

type runGraspsResponse struct {
	RunID  string          `json:"run_id"`
	Grasps []graspResponse `json:"grasps"`
	Arrays []grasp.Array   `json:"arrays"`
}

func toRunResponse(run *store.Run) runResponse {
	return runResponse{
		ID:          run.ID,
		Source:      run.Source,
		Seed:        run.Seed,
		NumFiltered: run.NumFiltered,
		NumSampled:  run.NumSampled,
		NumDecoded:  run.NumDecoded,
		NumCollided: run.NumCollided,
		NumGrasps:   run.NumGrasps,
		ElapsedMs:   run.ElapsedMs,
		Config:      run.Config,
		CreatedAt:   run.CreatedAt.Format(time.RFC3339),
	}
}

// list handles GET /api/runs?limit=N, newest first.
func (h *RunHandler) list(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	runs, err := h.store.Runs().List(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list runs")
		return
	}

	response := listRunsResponse{Runs: make([]runResponse, 0, len(runs))}
	for _, run := range runs {
		response.Runs = append(response.Runs, toRunResponse(run))
	}
	writeJSON(w, http.StatusOK, response)
}

// get handles GET /api/runs/{id}.
func (h *RunHandler) get(w http.ResponseWriter, id string) {
	run, err := h.store.Runs().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Run not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get run")
		return
	}
	writeJSON(w, http.StatusOK, toRunResponse(run))
}

// delete handles DELETE /api/runs/{id}.
func (h *RunHandler) delete(w http.ResponseWriter, id string) {
	if err := h.store.Runs().Delete(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Run not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete run")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// grasps handles GET /api/runs/{id}/grasps.
func (h *RunHandler) grasps(w http.ResponseWriter, id string) {
	if _, err := h.store.Runs().GetByID(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Run not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get run")
		return
	}

	arrays, err := h.store.Grasps().ListByRun(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list grasps")
		return
	}

	set := make(grasp.Set, len(arrays))
	for i, a := range arrays {
		set[i] = grasp.FromArray(a)
	}
	if arrays == nil {
		arrays = []grasp.Array{}
	}

	writeJSON(w, http.StatusOK, runGraspsResponse{
		RunID:  id,
		Grasps: toGraspResponses(set),
		Arrays: arrays,
	})
}
