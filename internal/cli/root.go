// Package cli is the suma command line: the local API server, an interactive
// chat and the maintenance commands around them.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/PabloGalante/suma-triage/internal/config"
	"github.com/PabloGalante/suma-triage/internal/observability"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd(version string) *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "suma",
		Short: "Suma - clinical triage assistant",
		Long: `Suma helps healthcare workers turn a short intake into first-response
recommendations and keeps every case for later review and PDF export.

Configuration comes from an optional YAML file and TRIAGE_* environment variables.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to a YAML config file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log level (debug, info, warn, error)")

	root.AddCommand(
		newServeCmd(opts),
		newChatCmd(opts),
		newActivateCmd(opts),
		newRoleCmd(opts),
		newStatusCmd(opts),
		newCasesCmd(opts),
		newEmergencyCmd(opts),
		newMigrateCmd(opts),
	)
	return root
}

// Execute runs the root command.
func Execute(version string) error {
	if err := newRootCmd(version).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

// load reads the config and points the logger at stderr so it never mixes with command output.
func (o *rootOptions) load() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	lvl := cfg.LogLevel
	if o.logLevel != "" {
		lvl = o.logLevel
	}
	observability.Setup(os.Stderr, lvl)
	return cfg, nil
}

// open loads the config and wires the app. Callers must Close it.
func (o *rootOptions) open(ctx context.Context) (*app, error) {
	cfg, err := o.load()
	if err != nil {
		return nil, err
	}
	return newApp(ctx, cfg)
}
