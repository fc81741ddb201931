package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ayusman/hasta/internal/config"
)

// rootOptions holds flags shared by every command.
type rootOptions struct {
	ConfigPath string
	Checkpoint string
	Seed       uint64
	seedSet    bool
	PluginDir  string
	Plugin     string
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "hasta",
		Short: "hasta - 6-DoF grasp detection from RGB-D frames",
		Long:  "Turn an aligned depth and color frame into a ranked set of parallel-jaw grasps.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			opts.seedSet = cmd.Flags().Changed("seed")
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to YAML config (defaults apply when omitted)")
	cmd.PersistentFlags().StringVar(&opts.Checkpoint, "checkpoint", "", "model checkpoint, overrides model.checkpoint")
	cmd.PersistentFlags().Uint64Var(&opts.Seed, "seed", 0, "sampling seed, overrides random_seed")
	cmd.PersistentFlags().StringVar(&opts.PluginDir, "plugins", defaultDataPath("plugins"), "executor plugin directory")
	cmd.PersistentFlags().StringVar(&opts.Plugin, "plugin", "", "executor plugin to send grasps to")

	cmd.AddCommand(newDetectCommand(opts))
	cmd.AddCommand(newServeCommand(opts))

	return cmd
}

// loadConfig reads the config file, if any, and applies flag overrides.
func (o *rootOptions) loadConfig() (config.Config, error) {
	cfg := config.Default()
	if o.ConfigPath != "" {
		loaded, err := config.Load(o.ConfigPath)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}

	if o.Checkpoint != "" {
		cfg.Model.Checkpoint = o.Checkpoint
	}
	if o.seedSet {
		cfg.RandomSeed = o.Seed
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// defaultDataPath returns a path under ~/.hasta, or name itself when the
// home directory is unknown.
func defaultDataPath(name string) string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return name
	}
	return filepath.Join(homeDir, ".hasta", name)
}
