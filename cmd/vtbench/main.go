// File: cmd/vtbench/main.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// vtbench drives the scheduler with a mixed CPU and blocking workload, or
// serves its stats and Prometheus metrics over HTTP.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/momentics/hioload-vt/api"
	"github.com/momentics/hioload-vt/control"
)

type rootOptions struct {
	configPath string
	envPrefix  string
	dev        bool
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "vtbench",
		Short:         "Exercise the hioload-vt work-stealing scheduler",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	fs := root.PersistentFlags()
	fs.StringVar(&opts.configPath, "config", "", "Path to a scheduler config file (yaml, json or toml)")
	fs.StringVar(&opts.envPrefix, "env-prefix", control.DefaultEnvPrefix, "Prefix of scheduler environment variables")
	fs.BoolVar(&opts.dev, "dev", false, "Use the development logger")
	control.RegisterFlags(fs)

	root.AddCommand(newRunCommand(opts), newServeCommand(opts))
	return root
}

// setup builds the logger and resolves the layered configuration for cmd.
func (o *rootOptions) setup(cmd *cobra.Command) (api.Config, *zap.Logger, error) {
	newLogger := zap.NewProduction
	if o.dev {
		newLogger = zap.NewDevelopment
	}
	logger, err := newLogger()
	if err != nil {
		return api.Config{}, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	zap.ReplaceGlobals(logger)

	loader := control.NewLoader(o.envPrefix)
	if err := loader.BindFlags(cmd.Flags()); err != nil {
		return api.Config{}, nil, err
	}
	cfg, err := loader.Load(o.configPath)
	if err != nil {
		return api.Config{}, nil, err
	}
	logger.Debug("configuration loaded", zap.Any("config", cfg), zap.String("file", o.configPath))
	return cfg, logger, nil
}
