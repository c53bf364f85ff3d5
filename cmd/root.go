package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"tenant-backup/internal/application"
	"tenant-backup/internal/config"
	"tenant-backup/internal/display"
	"tenant-backup/internal/logging"
)

// skipAppAnnotation marks commands that run without a loaded configuration
const skipAppAnnotation = "tenant-backup/skip-app"

// cli holds the global flags and the application built for one invocation
type cli struct {
	cfgFile     string
	output      string
	theme       string
	metricsFile string
	noColor     bool
	noIcons     bool
	noProgress  bool
	assumeYes   bool
	verbose     bool
	quiet       bool

	app *application.Application
}

// NewRootCommand builds the complete command tree
func NewRootCommand() *cobra.Command {
	root, _ := newRoot()
	return root
}

func newRoot() (*cobra.Command, *cli) {
	c := &cli{}

	root := &cobra.Command{
		Use:   "tenant-backup",
		Short: "Back up, restore and reset the data of a single tenant",
		Long: `tenant-backup snapshots every record belonging to one tenant into a
portable artifact, restores artifacts into a tenant, and wipes a tenant's data
in dependency-safe order.

Artifacts are written as an xlsx workbook (restorable) or a zip of csv files
(export only). Exports can be archived in local, S3, Azure or GCS storage,
compressed and encrypted.

Examples:
  # Export a tenant and archive the artifact
  tenant-backup export --tenant tenant-a

  # Export to a file without archiving
  tenant-backup export --tenant tenant-a --no-archive --out ./backups/

  # Check an artifact before restoring it
  tenant-backup validate acme_2024-03-15.xlsx

  # Restore an archived artifact into another tenant
  tenant-backup import --artifact 7f9c... --tenant tenant-b

  # Reset the rental module of a tenant
  tenant-backup reset --tenant tenant-a --modules rentals`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.setup,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if c.app == nil {
				return nil
			}
			return c.app.Close()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.cfgFile, "config", "", "config file (default is ./"+config.DefaultFileName+".yaml)")

	// Database connection
	flags.String("driver", "", "record store driver (mysql, postgres, sqlite, memory)")
	flags.String("host", "", "database host")
	flags.Int("port", 0, "database port")
	flags.String("username", "", "database username")
	flags.String("password", "", "database password")
	flags.String("database", "", "database name")
	flags.String("db-path", "", "sqlite database file")

	// Storage and engine
	flags.String("storage", "", "artifact storage provider (local, s3, azure, gcs)")
	flags.String("storage-path", "", "base path of local artifact storage")
	flags.Int("chunk-size", 0, "records read per page during export")
	flags.Duration("tx-timeout", 0, "timeout of import and reset transactions")

	// Logging
	flags.String("log-level", "", "log level (quiet, normal, verbose, debug)")
	flags.String("log-format", "", "log format (text, json)")
	flags.String("log-file", "", "also write logs to this file")
	flags.BoolVarP(&c.verbose, "verbose", "v", false, "shorthand for --log-level=verbose")
	flags.BoolVarP(&c.quiet, "quiet", "q", false, "shorthand for --log-level=quiet")
	root.MarkFlagsMutuallyExclusive("verbose", "quiet")

	// Display
	flags.StringVarP(&c.output, "output", "o", string(display.FormatTable), "output format (table, json, yaml)")
	flags.StringVar(&c.theme, "theme", string(display.ThemeDark), "color theme (dark, light, high-contrast, plain)")
	flags.BoolVar(&c.noColor, "no-color", false, "disable color output")
	flags.BoolVar(&c.noIcons, "no-icons", false, "use ASCII status labels")
	flags.BoolVar(&c.noProgress, "no-progress", false, "disable progress bars")
	flags.BoolVarP(&c.assumeYes, "yes", "y", false, "skip confirmation prompts")
	flags.StringVar(&c.metricsFile, "metrics-file", "", "write Prometheus metrics to this file on exit")

	root.AddCommand(
		newExportCommand(c),
		newImportCommand(c),
		newResetCommand(c),
		newValidateCommand(c),
		newArtifactsCommand(c),
		newTablesCommand(c),
		newConfigCommand(c),
		newVersionCommand(),
	)
	return root, c
}

// setup loads the configuration and builds the application
func (c *cli) setup(cmd *cobra.Command, args []string) error {
	for p := cmd; p != nil; p = p.Parent() {
		if p.Annotations[skipAppAnnotation] == "true" {
			return nil
		}
	}

	flags := cmd.Flags()
	switch {
	case c.verbose:
		if err := flags.Set("log-level", "verbose"); err != nil {
			return err
		}
	case c.quiet:
		if err := flags.Set("log-level", "quiet"); err != nil {
			return err
		}
	}

	cfg, err := config.Load(c.cfgFile, flags)
	if err != nil {
		return err
	}

	displayConfig, err := c.displayConfig(cmd)
	if err != nil {
		return err
	}

	app, err := application.New(cfg, application.Options{
		Display:     displayConfig,
		Version:     version,
		MetricsFile: c.metricsFile,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	c.app = app

	ctx := logging.CreateContextWithRequestID(cmd.Context(), uuid.NewString())
	cmd.SetContext(ctx)
	app.Logger().WithContext(ctx).WithField("command", cmd.CommandPath()).Debug("Command started")
	return nil
}

func (c *cli) displayConfig(cmd *cobra.Command) (*display.DisplayConfig, error) {
	dc := display.DefaultDisplayConfig()
	dc.OutputFormat = c.output
	dc.Theme = c.theme
	dc.ColorEnabled = !c.noColor
	dc.UseIcons = !c.noIcons
	dc.ShowProgress = !c.noProgress
	dc.InteractiveMode = !c.assumeYes
	dc.Writer = cmd.OutOrStdout()
	dc.Reader = cmd.InOrStdin()
	dc.SetDefaults()
	if err := dc.Validate(); err != nil {
		return nil, err
	}
	return dc, nil
}

// confirm asks before a destructive operation. --yes skips the prompt; a
// non-interactive session without --yes is refused with
// display.ErrNotInteractive.
func (c *cli) confirm(dialog func(*display.Confirmation)) (bool, error) {
	if c.assumeYes {
		return true, nil
	}
	confirmation := c.app.Display().NewConfirmation()
	dialog(confirmation)
	return confirmation.Ask()
}

// Execute runs the command tree and exits non-zero on failure
func Execute() {
	ctx, stop := application.SignalContext(context.Background())
	root, c := newRoot()
	code := c.run(ctx, root, os.Args[1:], os.Stderr)
	stop()
	os.Exit(code)
}

// run executes root with args and reports errors. Failures before the
// application exists are printed plainly.
func (c *cli) run(ctx context.Context, root *cobra.Command, args []string, stderr io.Writer) int {
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		if c.app == nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		c.app.HandleError(err)
		_ = c.app.Close()
		return 1
	}
	return 0
}
