package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"tenant-backup/internal/display"
)

func newArtifactsCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "artifacts",
		Aliases: []string{"artifact"},
		Short:   "Manage archived artifacts",
		Long: `List, inspect, delete and prune the artifacts kept in the configured
storage, and check the health of the storage backend.

Examples:
  # Newest artifacts of a tenant
  tenant-backup artifacts list --tenant tenant-a --limit 5

  # Show what the retention policy would delete
  tenant-backup artifacts prune --tenant tenant-a --dry-run

  # Probe the storage backend
  tenant-backup artifacts health`,
	}
	cmd.AddCommand(
		newArtifactsListCommand(c),
		newArtifactsInspectCommand(c),
		newArtifactsDeleteCommand(c),
		newArtifactsPruneCommand(c),
		newArtifactsUsageCommand(c),
		newArtifactsHealthCommand(c),
	)
	return cmd
}

func newArtifactsListCommand(c *cli) *cobra.Command {
	var (
		tenant string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List archived artifacts, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			archive, err := c.app.Archive(cmd.Context())
			if err != nil {
				return err
			}
			artifacts, err := archive.List(cmd.Context(), tenant, limit)
			if err != nil {
				return err
			}
			display.ArtifactTable(c.app.Display(), artifacts)
			return nil
		},
	}
	cmd.Flags().StringVarP(&tenant, "tenant", "t", "", "only artifacts of this tenant")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of artifacts, 0 for all")
	return cmd
}

func newArtifactsInspectCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <artifact-id>",
		Short: "Show the metadata and manifest of an artifact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			archive, err := c.app.Archive(cmd.Context())
			if err != nil {
				return err
			}
			inspection, err := archive.Inspect(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			display.InspectionSummary(c.app.Display(), inspection)
			return nil
		},
	}
}

func newArtifactsDeleteCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <artifact-id>",
		Short: "Delete an archived artifact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			ok, err := c.confirm(func(dialog *display.Confirmation) {
				dialog.Title("Delete artifact " + id).
					Warning("The artifact and its replicas are removed permanently")
			})
			if err != nil {
				return err
			}
			if !ok {
				c.app.Display().Info("Delete cancelled")
				return nil
			}

			archive, err := c.app.Archive(cmd.Context())
			if err != nil {
				return err
			}
			if err := archive.Delete(cmd.Context(), id); err != nil {
				return err
			}
			c.app.Display().Success("Deleted artifact " + id)
			return nil
		},
	}
}

func newArtifactsPruneCommand(c *cli) *cobra.Command {
	var (
		tenant string
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Apply the retention policy",
		Long: `Delete artifacts that fall outside the retention policy. An artifact is
kept while it is among the newest retention.max_artifacts of its tenant and
younger than retention.max_age; the newest artifact of a tenant is always
kept. Without --tenant every tenant in the archive is pruned.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			archive, err := c.app.Archive(ctx)
			if err != nil {
				return err
			}

			tenants := []string{tenant}
			if tenant == "" {
				usage, err := archive.Usage(ctx)
				if err != nil {
					return err
				}
				tenants = tenants[:0]
				for id := range usage.ByTenant {
					tenants = append(tenants, id)
				}
				sort.Strings(tenants)
			}
			if len(tenants) == 0 {
				c.app.Display().Info("No artifacts found")
				return nil
			}

			if !dryRun {
				ok, err := c.confirm(func(dialog *display.Confirmation) {
					dialog.Title(fmt.Sprintf("Prune artifacts of %d tenants", len(tenants))).
						Details(tenants...).
						Warning("Artifacts outside the retention policy are deleted permanently")
				})
				if err != nil {
					return err
				}
				if !ok {
					c.app.Display().Info("Prune cancelled")
					return nil
				}
			}

			failed := 0
			for _, id := range tenants {
				result, err := archive.ApplyRetention(ctx, id, dryRun)
				if err != nil {
					return err
				}
				display.RetentionSummary(c.app.Display(), result)
				failed += len(result.Errors)
			}
			if failed > 0 {
				return fmt.Errorf("%d artifacts could not be deleted", failed)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&tenant, "tenant", "t", "", "prune only this tenant")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what would be deleted")
	return cmd
}

func newArtifactsUsageCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "usage",
		Short: "Show archive size per tenant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			archive, err := c.app.Archive(cmd.Context())
			if err != nil {
				return err
			}
			report, err := archive.Usage(cmd.Context())
			if err != nil {
				return err
			}
			display.UsageSummary(c.app.Display(), report)
			return nil
		},
	}
}

func newArtifactsHealthCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Probe the storage backend with a write, read, list and delete",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			archive, err := c.app.Archive(cmd.Context())
			if err != nil {
				return err
			}
			report := archive.CheckHealth(cmd.Context())
			display.HealthSummary(c.app.Display(), report)
			if report.Status == "critical" {
				return fmt.Errorf("storage is %s", report.Status)
			}
			return nil
		},
	}
}
