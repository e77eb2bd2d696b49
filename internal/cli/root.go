package cli

import (
	"github.com/spf13/cobra"

	"github.com/zeusync/statesync/internal/core/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
}

// Load returns the config at ConfigPath, or the defaults when no path is set.
func (o *RootOptions) Load() (config.Config, error) {
	if o.ConfigPath == "" {
		return config.Default(), nil
	}
	return config.Load(o.ConfigPath)
}

// NewRootCommand creates the root command for the statesync CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "statesync",
		Short: "Entity-component state replication server",
		Long:  "Runs an authoritative simulation and replicates its entity-component state to connected clients.",
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to a YAML config file")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewConfigCommand(opts))

	return cmd
}
