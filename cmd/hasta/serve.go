package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ayusman/hasta/internal/app"
	"github.com/ayusman/hasta/internal/capture"
	"github.com/ayusman/hasta/internal/server"
	"github.com/ayusman/hasta/internal/store"
)

type serveOptions struct {
	*rootOptions
	Addr       string
	Database   string
	StaticDir  string
	WatchDepth string
	WatchColor string
}

func newServeCommand(rootOpts *rootOptions) *cobra.Command {
	opts := &serveOptions{rootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the grasp detection HTTP API",
		Long: `Start the HTTP API: POST /api/detect, stored runs under /api/runs,
the render scene websocket at /api/scene and a JPEG preview at /api/preview.

With --watch-depth and --watch-color the server also polls that image pair
and runs the pipeline whenever the depth changes.

Example:
  hasta serve --addr :8080
  hasta serve -c realsense.yaml --plugin grasp-recorder`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", ":8080", "listen address")
	cmd.Flags().StringVar(&opts.Database, "db", defaultDataPath("hasta.db"), "SQLite database path")
	cmd.Flags().StringVar(&opts.StaticDir, "static", "", "static files directory (searched when empty)")
	cmd.Flags().StringVar(&opts.WatchDepth, "watch-depth", "", "depth PNG to watch")
	cmd.Flags().StringVar(&opts.WatchColor, "watch-color", "", "color image to watch")

	return cmd
}

func runServe(opts *serveOptions) error {
	fmt.Println("hasta - grasp detection server")

	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(opts.Database), 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	st, err := store.New(opts.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer st.Close()

	var source capture.Source
	if opts.WatchDepth != "" || opts.WatchColor != "" {
		if opts.WatchDepth == "" || opts.WatchColor == "" {
			return fmt.Errorf("--watch-depth and --watch-color go together")
		}
		source = capture.NewFileSource(opts.WatchDepth, opts.WatchColor, cfg.Camera)
	}

	a, err := app.New(app.Config{
		Store:     st,
		PluginDir: opts.PluginDir,
		Plugin:    opts.Plugin,
		Pipeline:  cfg,
	}, source, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.DiscoverPlugins(); err != nil {
		log.Printf("Plugin discovery failed: %v", err)
	}
	if source != nil {
		if err := a.Start(); err != nil {
			return err
		}
	}

	webDir := opts.StaticDir
	if webDir == "" {
		webDir = findWebDir()
	}
	if webDir != "" {
		fmt.Printf("Serving static files from: %s\n", webDir)
	}

	srv := server.New(server.Config{
		StaticDir: webDir,
		Store:     st,
		App:       a,
	})

	fmt.Printf("Starting server on %s\n", opts.Addr)
	return srv.ListenAndServe(opts.Addr)
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and ~/.hasta/web.
// Returns the first existing directory or empty string if none found.
func findWebDir() string {
	for _, p := range []string{"web", "../web", "../../web"} {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			if absPath, err := filepath.Abs(p); err == nil {
				return absPath
			}
			return p
		}
	}

	homeWebDir := defaultDataPath("web")
	if info, err := os.Stat(homeWebDir); err == nil && info.IsDir() {
		return homeWebDir
	}

	return ""
}
