// Package admin contains Cobra CLI commands for running, inspecting and draining a
// failover store.
package admin

import (
	"os"

	"github.com/spf13/cobra"

	cfgpkg "github.com/rfoltyns/esfailover/internal/config"
	"github.com/rfoltyns/esfailover/internal/runtime"
	logpkg "github.com/rfoltyns/esfailover/pkg/log"
)

type globalFlags struct {
	configPath string
	logLevel   string
	logFormat  string
	file       string
}

// NewRoot constructs the esfailover root command with the inspect, purge,
// replay and run subcommands.
func NewRoot() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:          "esfailover",
		Short:        "Run, inspect and drain failover stores",
		SilenceUsage: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&g.configPath, "config", os.Getenv("ESFAILOVER_CONFIG"), "Config file (json|yaml|toml)")
	pf.StringVar(&g.logLevel, "log-level", "", "Log level: debug|info|warn|error")
	pf.StringVar(&g.logFormat, "log-format", "", "Log format: text|json")
	pf.StringVar(&g.file, "file", "", "Store directory (overrides failover.fileName)")

	root.AddCommand(
		newInspectCommand(g),
		newPurgeCommand(g),
		newReplayCommand(g),
		newRunCommand(g),
	)
	return root
}

// load resolves configuration as defaults < file < env < flags.
func (g *globalFlags) load() (cfgpkg.Config, logpkg.Logger, error) {
	cfg, err := cfgpkg.Load(g.configPath)
	if err != nil {
		return cfgpkg.Config{}, nil, err
	}
	cfgpkg.FromEnv(&cfg)
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}
	if g.logFormat != "" {
		cfg.Log.Format = g.logFormat
	}
	if g.file != "" {
		cfg.Failover.FileName = g.file
	}
	logger, err := logpkg.ApplyConfig(&cfg.Log)
	if err != nil {
		return cfgpkg.Config{}, nil, err
	}
	return cfg, logger, nil
}

func openRuntime(cfg cfgpkg.Config, logger logpkg.Logger) (*runtime.Runtime, error) {
	return runtime.Open(runtime.Options{Config: cfg, Logger: logger})
}
