package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"tenant-backup/internal/application"
	"tenant-backup/internal/display"
)

func newValidateCommand(c *cli) *cobra.Command {
	var artifactID string
	cmd := &cobra.Command{
		Use:   "validate [file]",
		Short: "Check an artifact without importing it",
		Long: `Decode an artifact and check it against the table catalog without
touching the database.

The report lists the record count per table, an estimated import duration,
and every problem found: unknown tables, missing ids, duplicate ids, missing
required fields and incompatible schema versions. The command fails when the
artifact cannot be imported.

Examples:
  tenant-backup validate acme_2024-03-15.xlsx
  tenant-backup validate --artifact 7f9c... --output json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := c.app
			src := application.Source{ArtifactID: artifactID}
			if len(args) == 1 {
				src.Path = args[0]
			}
			data, err := app.ReadArtifact(cmd.Context(), src)
			if err != nil {
				return err
			}

			report, err := app.Validator().Validate(cmd.Context(), data)
			if err != nil {
				return err
			}
			display.ValidationSummary(app.Display(), report)
			if !report.Compatible {
				return errors.New("artifact cannot be imported")
			}
			app.Display().Success("Artifact can be imported")
			return nil
		},
	}
	cmd.Flags().StringVar(&artifactID, "artifact", "", "archived artifact id to validate")
	return cmd
}
