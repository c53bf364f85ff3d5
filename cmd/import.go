package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"tenant-backup/internal/application"
	"tenant-backup/internal/backup"
	"tenant-backup/internal/display"
)

type importFlags struct {
	tenant     string
	artifactID string
	mode       string
	format     string
}

func newImportCommand(c *cli) *cobra.Command {
	f := &importFlags{}
	cmd := &cobra.Command{
		Use:   "import [file]",
		Short: "Restore an artifact into a tenant",
		Long: `Restore the records of an artifact into a tenant.

The artifact is read from a file ("-" for standard input) or from the archive
with --artifact. Every record is rewritten to the target tenant and tables are
written in dependency order inside a single transaction: any failure rolls
the whole import back.

Modes:
  merge    update records whose id exists, insert the rest (default)
  replace  insert every record; an existing id fails the import

Imported users must reset their password before signing in.

Examples:
  # Restore a file into its original tenant
  tenant-backup import acme_2024-03-15.xlsx --tenant tenant-a

  # Clone an archived artifact into another tenant
  tenant-backup import --artifact 7f9c... --tenant tenant-b --mode replace`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, c, f, args)
		},
	}

	cmd.Flags().StringVarP(&f.tenant, "tenant", "t", "", "target tenant id")
	cmd.Flags().StringVar(&f.artifactID, "artifact", "", "archived artifact id to import")
	cmd.Flags().StringVar(&f.mode, "mode", string(backup.ImportModeMerge), "import mode (merge, replace)")
	cmd.Flags().StringVar(&f.format, "format", "", "artifact format; detected from the content when empty")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

func runImport(cmd *cobra.Command, c *cli, f *importFlags, args []string) error {
	app := c.app
	ctx := cmd.Context()

	src := application.Source{ArtifactID: f.artifactID}
	if len(args) == 1 {
		src.Path = args[0]
	}
	data, err := app.ReadArtifact(ctx, src)
	if err != nil {
		return err
	}

	importer, err := app.Importer(ctx)
	if err != nil {
		return err
	}

	progress, finish := app.Progress("Importing into " + f.tenant)
	result, err := importer.Import(ctx, data, backup.ImportOptions{
		TargetIsolationID: f.tenant,
		Mode:              backup.ImportMode(f.mode),
		Format:            backup.Format(f.format),
		Progress:          progress,
	})
	finish()
	if err != nil {
		return err
	}

	display.ImportSummary(app.Display(), result)
	if !result.Success {
		return errors.New("import failed, no records were written")
	}
	app.Display().Success(fmt.Sprintf("Imported %d records into %s", result.TotalRecords, f.tenant))
	return nil
}
