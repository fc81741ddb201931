// Package server provides the HTTP server: the REST API, the scene
// websocket and the preview image.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ayusman/hasta/internal/app"
	"github.com/ayusman/hasta/internal/server/api"
	"github.com/ayusman/hasta/internal/store"
)

// Config holds the server configuration.
type Config struct {
	StaticDir string
	Store     *store.Store
	App       *app.App
}

// Server represents the HTTP server for the grasp detection application.
type Server struct {
	config Config
	mux    *http.ServeMux
	start  time.Time
	scenes *SceneHub
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	if s.config.Store != nil {
		runHandler := api.NewRunHandler(s.config.Store)
		s.mux.Handle("/api/runs", runHandler)
		s.mux.Handle("/api/runs/", runHandler)
	}

	if a := s.config.App; a != nil {
		s.mux.Handle("/api/detect", api.NewDetectHandler(a, a.Pipeline().Config().Camera))
		s.mux.Handle("/api/preview", NewPreviewHandler(a))

		s.scenes = NewSceneHub()
		a.OnScene(s.scenes.Broadcast)
		s.mux.Handle("/api/scene", s.scenes)
	}

	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.mux.Handle("/", fs)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Scenes returns the scene hub, or nil when no App is configured.
func (s *Server) Scenes() *SceneHub {
	return s.scenes
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]any{
		"status": "ok",
		"uptime": time.Since(s.start).String(),
	}
	if a := s.config.App; a != nil {
		response["watching"] = a.Running()
		if last := a.Last(); last != nil {
			response["last_run"] = last.RunID
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// ListenAndServe starts the HTTP server on the given address.
func (s *Server) ListenAndServe(addr string) error {
	return http.ListenAndServe(addr, s)
}
