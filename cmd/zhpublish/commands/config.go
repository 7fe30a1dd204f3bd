package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/entrhq/zhpublish/pkg/config"
)

const defaultConfigFile = "zhpublish.yaml"

func configCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}
	cmd.AddCommand(configInitCmd(opts))
	return cmd
}

// config init [path]: write the default configuration.
func configInitCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init [path]",
		Short: "Write the default configuration to path (default zhpublish.yaml or --config)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := defaultConfigFile
			switch {
			case len(args) == 1:
				path = args[0]
			case opts.configPath != "":
				path = opts.configPath
			}

			if err := config.WriteDefault(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
}
