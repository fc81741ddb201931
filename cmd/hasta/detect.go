package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ayusman/hasta/internal/app"
	"github.com/ayusman/hasta/internal/capture"
	"github.com/ayusman/hasta/internal/grasp"
	"github.com/ayusman/hasta/internal/store"
)

type detectOptions struct {
	*rootOptions
	Depth    string
	Color    string
	Database string
	JSON     bool
}

func newDetectCommand(rootOpts *rootOptions) *cobra.Command {
	opts := &detectOptions{rootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Detect grasps on one depth/color image pair",
		Long: `Run the grasp pipeline once on a 16-bit depth PNG and its aligned color image.

Example:
  hasta detect --depth scene/depth.png --color scene/color.png
  hasta detect -c realsense.yaml --depth d.png --color c.png --json --db runs.db`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDetect(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.Depth, "depth", "", "16-bit depth PNG (required)")
	cmd.Flags().StringVar(&opts.Color, "color", "", "color image aligned with the depth (required)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "record the run in this SQLite database")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "print grasps as JSON arrays")
	_ = cmd.MarkFlagRequired("depth")
	_ = cmd.MarkFlagRequired("color")

	return cmd
}

func runDetect(ctx context.Context, opts *detectOptions, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}

	var st *store.Store
	if opts.Database != "" {
		if st, err = store.New(opts.Database); err != nil {
			return fmt.Errorf("failed to initialize store: %w", err)
		}
		defer st.Close()
	}

	source := capture.NewFileSource(opts.Depth, opts.Color, cfg.Camera)
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

	if opts.Plugin != "" {
		if err := a.DiscoverPlugins(); err != nil {
			log.Printf("Plugin discovery failed: %v", err)
		}
	}

	outcome, err := a.RunOnce(ctx)
	if err != nil {
		return err
	}

	return printGrasps(out, outcome, opts.JSON)
}

func printGrasps(out io.Writer, o *app.Outcome, asJSON bool) error {
	grasps := o.Result.Payload.Grasps
	if asJSON {
		arrays := grasps.Arrays()
		if arrays == nil {
			arrays = []grasp.Array{}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{"run_id": o.RunID, "grasps": arrays})
	}

	res := o.Result
	fmt.Fprintf(out, "run %s: %d filtered, %d sampled, %d decoded, %d collided, %d kept (%v)\n",
		o.RunID, res.NumFiltered, res.NumSampled, res.NumDecoded, res.NumCollided, len(grasps), res.Elapsed)
	for i, g := range grasps {
		fmt.Fprintf(out, "%3d  %v\n", i, g)
	}
	return nil
}
