package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"tenant-backup/internal/config"
)

func newConfigCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and generate configuration",
	}
	cmd.AddCommand(
		newConfigShowCommand(c),
		newConfigInitCommand(),
		newConfigEnvCommand(),
	)
	return cmd
}

func newConfigShowCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with credentials hidden",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := c.app.Config()
			data, err := config.Render(config.Redacted(cfg), false)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if source := cfg.Source(); source != "" {
				fmt.Fprintf(out, "# loaded from %s\n", source)
			}
			_, err = out.Write(data)
			return err
		},
	}
}

func newConfigInitCommand() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a sample configuration file",
		Long: `Write a sample configuration file with every option at its default.
The file is created with mode 0600 since it may hold credentials. An existing
file is only replaced with --force, and is then kept as <path>.bak.

Examples:
  tenant-backup config init
  tenant-backup config init /etc/tenant-backup.yaml --force`,
		Args:        cobra.MaximumNArgs(1),
		Annotations: map[string]string{skipAppAnnotation: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.DefaultFileName + ".yaml"
			if len(args) == 1 {
				path = args[0]
			}
			if err := config.WriteSample(path, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func newConfigEnvCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "env",
		Short:       "List configuration sources and environment variables",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipAppAnnotation: "true"},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprint(cmd.OutOrStdout(), config.Help())
		},
	}
}
