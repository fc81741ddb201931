// Package app wires a frame source, the grasp pipeline, persistence,
// executor plugins and scene subscribers into one application.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/hasta/internal/capture"
	"github.com/ayusman/hasta/internal/config"
	"github.com/ayusman/hasta/internal/model"
	"github.com/ayusman/hasta/internal/plugin"
	"github.com/ayusman/hasta/internal/present"
	"github.com/ayusman/hasta/internal/store"
)

// Watch loop defaults.
const (
	// DefaultInterval is how often Start polls the source.
	DefaultInterval = 500 * time.Millisecond
	// DefaultChangeThresh is the percentage of depth pixels that must change to trigger a run.
	DefaultChangeThresh = 1.0
	// PluginTimeoutMs bounds a single executor plugin call.
	PluginTimeoutMs = 5000
)

// ErrNoSource is returned by RunOnce and Start when no frame source is configured.
var ErrNoSource = errors.New("no frame source configured")

// Config holds configuration options for the application.
type Config struct {
	Store        *store.Store
	PluginDir    string
	Plugin       string // executor plugin to dispatch grasps to; empty disables dispatch
	Pipeline     config.Config
	Interval     time.Duration
	ChangeThresh float64
}

// Outcome is a pipeline result together with the run it was recorded as.
type Outcome struct {
	RunID  string
	Source string
	Result *Result
	Scene  *present.Scene
}

// SceneFunc receives the scene of every completed run.
type SceneFunc func(runID string, scene *present.Scene)

// App is the main application that turns frames into executed grasps.
type App struct {
	config     Config
	source     capture.Source
	change     *capture.ChangeDetector
	model      model.ScoreModel
	pipeline   *Pipeline
	pluginMgr  *plugin.Manager
	pluginExec *plugin.Executor

	runMu     sync.Mutex // serializes pipeline runs
	mu        sync.RWMutex
	stopCh    chan struct{}
	doneCh    chan struct{}
	last      *Outcome
	lastFrame *capture.Frame
	sceneFns  []SceneFunc
}

// New creates an App and loads the model once with the configured
// checkpoint. If m is nil the model is chosen by cfg.Pipeline.Model: the
// mock when its command is model.MockCommand, otherwise the scoring
// subprocess. A model that cannot be loaded is fatal. source may be nil for
// an App that only processes uploaded frames.
func New(cfg Config, source capture.Source, m model.ScoreModel) (*App, error) {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.ChangeThresh <= 0 {
		cfg.ChangeThresh = DefaultChangeThresh
	}
	if err := cfg.Pipeline.Validate(); err != nil {
		return nil, err
	}

	if m == nil {
		if cfg.Pipeline.Model.Command == model.MockCommand {
			log.Println("Using mock score model")
			m = model.NewMockModel()
		} else {
			sub, err := model.NewSubprocessModel(cfg.Pipeline.Model)
			if err != nil {
				return nil, err
			}
			log.Printf("Using subprocess score model (%s)", cfg.Pipeline.Model.Checkpoint)
			m = sub
		}
	}
	if err := m.Load(cfg.Pipeline.Model.Checkpoint); err != nil {
		m.Close()
		return nil, fmt.Errorf("load checkpoint %q: %w", cfg.Pipeline.Model.Checkpoint, err)
	}

	pipeline, err := NewPipeline(cfg.Pipeline, m)
	if err != nil {
		m.Close()
		return nil, err
	}

	return &App{
		config:     cfg,
		source:     source,
		change:     capture.NewChangeDetector(cfg.ChangeThresh),
		model:      m,
		pipeline:   pipeline,
		pluginMgr:  plugin.NewManager(cfg.PluginDir),
		pluginExec: plugin.NewExecutor(PluginTimeoutMs),
	}, nil
}

// DiscoverPlugins scans the plugin directory and loads available plugins.
func (a *App) DiscoverPlugins() error {
	if err := a.pluginMgr.Discover(); err != nil {
		return err
	}
	if a.config.Plugin != "" {
		if _, err := a.pluginMgr.Get(a.config.Plugin); err != nil {
			log.Printf("Executor plugin %q not found in %s", a.config.Plugin, a.pluginMgr.PluginDir())
		}
	}
	return nil
}

// OnScene registers fn to receive the scene of every run.
func (a *App) OnScene(fn SceneFunc) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sceneFns = append(a.sceneFns, fn)
}

// RunOnce reads one frame from the source and processes it.
func (a *App) RunOnce(ctx context.Context) (*Outcome, error) {
	if a.source == nil {
		return nil, ErrNoSource
	}
	if !a.source.IsOpen() {
		if err := a.source.Open(); err != nil {
			return nil, err
		}
	}

	frame, err := a.source.ReadFrame()
	if err != nil {
		return nil, err
	}
	return a.Process(ctx, frame, "source")
}

// Process runs the pipeline on a caller-supplied frame, persists the run,
// dispatches the grasps to the executor plugin and notifies scene
// subscribers. Runs are serialized.
func (a *App) Process(ctx context.Context, frame *capture.Frame, source string) (*Outcome, error) {
	a.runMu.Lock()
	defer a.runMu.Unlock()

	res, err := a.pipeline.Run(ctx, frame)
	if err != nil {
		return nil, err
	}

	out := &Outcome{
		RunID:  uuid.NewString(),
		Source: source,
		Result: res,
		Scene:  present.BuildScene(res.Payload),
	}

	if err := a.persist(out); err != nil {
		log.Printf("Failed to persist run %s: %v", out.RunID, err)
	}
	a.dispatch(ctx, out)

	a.mu.Lock()
	a.last = out
	a.lastFrame = frame
	fns := append([]SceneFunc(nil), a.sceneFns...)
	a.mu.Unlock()

	for _, fn := range fns {
		fn(out.RunID, out.Scene)
	}

	return out, nil
}

// persist records the run and its grasps when a store is configured.
func (a *App) persist(out *Outcome) error {
	if a.config.Store == nil {
		return nil
	}

	cfgJSON, err := json.Marshal(a.pipeline.Config())
	if err != nil {
		return err
	}

	res := out.Result
	run := &store.Run{
		ID:          out.RunID,
		Source:      out.Source,
		Seed:        res.Seed,
		NumFiltered: res.NumFiltered,
		NumSampled:  res.NumSampled,
		NumDecoded:  res.NumDecoded,
		NumCollided: res.NumCollided,
		NumGrasps:   len(res.Payload.Grasps),
		ElapsedMs:   res.Elapsed.Milliseconds(),
		Config:      cfgJSON,
	}
	if err := a.config.Store.Runs().Create(run); err != nil {
		return err
	}
	return a.config.Store.Grasps().CreateBatch(out.RunID, res.Payload.Grasps.Arrays())
}

// dispatch sends the grasps to the configured executor plugin.
func (a *App) dispatch(ctx context.Context, out *Outcome) {
	if a.config.Plugin == "" || len(out.Result.Payload.Grasps) == 0 {
		return
	}

	p, err := a.pluginMgr.Get(a.config.Plugin)
	if err != nil {
		log.Printf("Executor plugin %q: %v", a.config.Plugin, err)
		return
	}

	resp, err := a.pluginExec.Execute(ctx, p, plugin.NewGraspRequest(out.RunID, out.Result.Payload.Grasps))
	if err != nil {
		log.Printf("Executor plugin %s failed: %v", p.Manifest.Name, err)
		return
	}
	if !resp.Success {
		log.Printf("Executor plugin %s rejected run %s: %s", p.Manifest.Name, out.RunID, resp.Error)
		return
	}
	log.Printf("Dispatched %d grasps of run %s to %s", len(out.Result.Payload.Grasps), out.RunID, p.Manifest.Name)
}

// Start opens the source and begins the watch loop, which runs the pipeline
// whenever the scene depth changes.
func (a *App) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stopCh != nil {
		return nil
	}
	if a.source == nil {
		return ErrNoSource
	}
	if err := a.source.Open(); err != nil {
		return err
	}

	a.stopCh = make(chan struct{})
	a.doneCh = make(chan struct{})
	go a.watch(a.stopCh, a.doneCh)

	log.Println("Watch loop started")
	return nil
}

// Stop halts the watch loop and closes the source.
func (a *App) Stop() {
	a.mu.Lock()
	stopCh, doneCh := a.stopCh, a.doneCh
	a.stopCh, a.doneCh = nil, nil
	a.mu.Unlock()

	if stopCh == nil {
		return
	}
	close(stopCh)
	<-doneCh

	if err := a.source.Close(); err != nil {
		log.Printf("Error closing source: %v", err)
	}
	a.change.Reset()

	log.Println("Watch loop stopped")
}

// Close stops the watch loop and releases the model.
func (a *App) Close() error {
	a.Stop()
	a.change.Close()
	return a.model.Close()
}

// Running reports whether the watch loop is active.
func (a *App) Running() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.stopCh != nil
}

// Last returns the most recent outcome, or nil before the first run.
func (a *App) Last() *Outcome {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.last
}

// LastFrame returns the frame of the most recent run, or nil.
func (a *App) LastFrame() *capture.Frame {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.lastFrame
}

// Pipeline returns the grasp pipeline.
func (a *App) Pipeline() *Pipeline {
	return a.pipeline
}

// PluginManager returns the plugin manager.
func (a *App) PluginManager() *plugin.Manager {
	return a.pluginMgr
}

// Store returns the configured store, or nil.
func (a *App) Store() *store.Store {
	return a.config.Store
}
