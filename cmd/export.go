package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"tenant-backup/internal/backup"
	"tenant-backup/internal/display"
)

type exportFlags struct {
	tenant         string
	format         string
	includeSecrets bool
	includeLogs    bool
	tables         []string
	out            string
	noArchive      bool
}

func newExportCommand(c *cli) *cobra.Command {
	f := &exportFlags{}
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the data of a tenant into an artifact",
		Long: `Export every record of one tenant into an artifact.

Tables are read in chunks and written in dependency order. A table that
cannot be read is skipped with a warning; the export itself still succeeds.
Credentials are masked unless --include-secrets is given. Log tables are
only exported with --include-logs.

The artifact is archived in the configured storage unless --no-archive is
set, and written to --out when given.

Examples:
  # Export and archive
  tenant-backup export --tenant tenant-a

  # Export selected tables as a csv bundle into a directory
  tenant-backup export --tenant tenant-a --format csv --tables Person,Rental --out ./exports/

  # Full copy including credentials, not archived
  tenant-backup export --tenant tenant-a --include-secrets --no-archive --out acme.xlsx`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, c, f)
		},
	}

	cmd.Flags().StringVarP(&f.tenant, "tenant", "t", "", "tenant id to export")
	cmd.Flags().StringVarP(&f.format, "format", "f", "", "artifact format (xlsx, csv); defaults to engine.default_format")
	cmd.Flags().BoolVar(&f.includeSecrets, "include-secrets", false, "export credentials and API keys unmasked")
	cmd.Flags().BoolVar(&f.includeLogs, "include-logs", false, "also export audit and access logs")
	cmd.Flags().StringSliceVar(&f.tables, "tables", nil, "export only these tables")
	cmd.Flags().StringVar(&f.out, "out", "", "write the artifact to this file or directory")
	cmd.Flags().BoolVar(&f.noArchive, "no-archive", false, "do not store the artifact in the archive")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

func runExport(cmd *cobra.Command, c *cli, f *exportFlags) error {
	app := c.app
	ctx := cmd.Context()
	cfg := app.Config()

	format := backup.Format(f.format)
	if format == "" {
		format = backup.Format(cfg.Engine.DefaultFormat)
	}
	if !format.Valid() {
		return backup.NewValidationError(fmt.Sprintf("unknown format %q, must be xlsx or csv", f.format), nil)
	}

	archive := cfg.Engine.Archive && !f.noArchive
	out := f.out
	if !archive && out == "" {
		// the artifact must land somewhere
		out = "."
	}

	if f.includeSecrets {
		app.Display().Warning("Credentials are exported unmasked; store this artifact securely")
	}

	exporter, err := app.Exporter(ctx, archive)
	if err != nil {
		return err
	}

	progress, finish := app.Progress("Exporting " + f.tenant)
	result, err := exporter.Export(ctx, f.tenant, format, backup.ExportOptions{
		IncludeSecrets: f.includeSecrets,
		IncludeLogs:    f.includeLogs,
		SelectedTables: f.tables,
		ChunkSize:      cfg.Engine.ChunkSize,
		Progress:       progress,
	})
	finish()
	if err != nil {
		return err
	}

	path, err := app.WriteArtifact(result, out)
	if err != nil {
		return err
	}

	ds := app.Display()
	display.ExportSummary(ds, result)
	if path != "" {
		ds.Success("Artifact written to " + path)
	}
	if result.ArtifactID != "" {
		ds.Success("Artifact archived as " + result.ArtifactID)
	}
	return nil
}
