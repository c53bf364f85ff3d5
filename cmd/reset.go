package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"tenant-backup/internal/backup"
	"tenant-backup/internal/display"
)

type resetFlags struct {
	tenant      string
	modules     []string
	excludeUser string
}

func newResetCommand(c *cli) *cobra.Command {
	f := &resetFlags{}
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete the data of a tenant",
		Long: `Delete every record of a tenant, or only the tables of some modules.

Tables are emptied in reverse dependency order inside a single transaction;
any failure rolls the whole reset back. The tenant record itself is kept.
The command asks you to type the tenant id unless --yes is given.

Examples:
  # Wipe a tenant but keep the administrator who runs the reset
  tenant-backup reset --tenant tenant-a --exclude-user user-42

  # Reset the rental and finance modules only
  tenant-backup reset --tenant tenant-a --modules rentals,financial --yes`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReset(cmd, c, f)
		},
	}

	cmd.Flags().StringVarP(&f.tenant, "tenant", "t", "", "tenant id to reset")
	cmd.Flags().StringSliceVar(&f.modules, "modules", nil, "reset only the tables of these modules")
	cmd.Flags().StringVar(&f.excludeUser, "exclude-user", "", "keep the user with this id")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

func runReset(cmd *cobra.Command, c *cli, f *resetFlags) error {
	app := c.app
	ctx := cmd.Context()
	registry := app.Registry()

	tables := registry.DeletableTables()
	if len(f.modules) > 0 {
		var err error
		if tables, err = registry.ModuleTables(f.modules...); err != nil {
			return backup.NewValidationError(fmt.Sprintf("%v; known modules: %s", err, strings.Join(registry.Modules(), ", ")), err)
		}
	}
	order, _ := registry.ResolveDeleteOrder(tables)

	ok, err := c.confirm(func(dialog *display.Confirmation) {
		dialog.Title(fmt.Sprintf("Reset tenant %s", f.tenant)).
			Details(fmt.Sprintf("%d tables will be emptied: %s", len(order), strings.Join(order, ", "))).
			Warning("This permanently deletes the tenant's records").
			RequirePhrase(f.tenant)
	})
	if err != nil {
		return err
	}
	if !ok {
		app.Display().Info("Reset cancelled")
		return nil
	}

	resetter, err := app.Resetter(ctx)
	if err != nil {
		return err
	}
	progress, finish := app.Progress("Resetting " + f.tenant)
	result, err := resetter.Reset(ctx, f.tenant, backup.ResetOptions{
		Modules:       f.modules,
		ExcludeUserID: f.excludeUser,
		Progress:      progress,
	})
	finish()
	if err != nil {
		return err
	}

	display.ResetSummary(app.Display(), result)
	if !result.Success {
		return errors.New("reset failed, no records were deleted")
	}
	app.Display().Success(fmt.Sprintf("Deleted %d records of %s", result.TotalDeleted, f.tenant))
	return nil
}
