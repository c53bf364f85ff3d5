package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"tenant-backup/internal/schema"
)

// tableInfo is one row of the tables listing
type tableInfo struct {
	Name         string   `json:"name" yaml:"name"`
	ImportOrder  int      `json:"import_order" yaml:"import_order"`
	DeleteOrder  int      `json:"delete_order,omitempty" yaml:"delete_order,omitempty"`
	Dependencies []string `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	Masked       []string `json:"masked,omitempty" yaml:"masked,omitempty"`
}

func newTablesCommand(c *cli) *cobra.Command {
	var (
		includeLogs bool
		modules     []string
	)
	cmd := &cobra.Command{
		Use:   "tables",
		Short: "Show the table catalog in import and delete order",
		Long: `Show the tables an export covers, the order an import writes them in and
the order a reset deletes them in. Masked fields are replaced in exports
unless --include-secrets is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			registry := c.app.Registry()
			names := registry.ExportSet(includeLogs)
			if len(modules) > 0 {
				var err error
				if names, err = registry.ModuleTables(modules...); err != nil {
					return fmt.Errorf("%w; known modules: %s", err, strings.Join(registry.Modules(), ", "))
				}
			}

			infos, unresolved := describeTables(registry, names)
			ds := c.app.Display()
			if ds.GetConfig().Format().IsStructured() {
				ds.PrintValue("Tables", infos)
				return nil
			}

			rows := make([][]string, 0, len(infos))
			for _, info := range infos {
				deleteOrder := "-"
				if info.DeleteOrder > 0 {
					deleteOrder = strconv.Itoa(info.DeleteOrder)
				}
				rows = append(rows, []string{
					strconv.Itoa(info.ImportOrder),
					info.Name,
					deleteOrder,
					strings.Join(info.Dependencies, ", "),
					strings.Join(info.Masked, ", "),
				})
			}
			ds.PrintTable([]string{"#", "Table", "Delete #", "Depends on", "Masked"}, rows)
			if len(unresolved) > 0 {
				ds.Warning(fmt.Sprintf("dependency cycle among %s", strings.Join(unresolved, ", ")))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&includeLogs, "include-logs", false, "include the log tables")
	cmd.Flags().StringSliceVar(&modules, "modules", nil, "only the tables of these modules")
	return cmd
}

// describeTables lists names in import order with their delete position.
// Tables that are not multi-tenant are never deleted and get no position.
func describeTables(registry *schema.Registry, names []string) ([]tableInfo, []string) {
	order, unresolved := registry.ResolveImportOrder(names)

	var deletable []string
	for _, name := range names {
		if d, ok := registry.Table(name); ok && d.MultiTenant {
			deletable = append(deletable, name)
		}
	}
	deleteOrder, _ := registry.ResolveDeleteOrder(deletable)
	deletePos := make(map[string]int, len(deleteOrder))
	for i, name := range deleteOrder {
		deletePos[name] = i + 1
	}

	infos := make([]tableInfo, 0, len(order))
	for i, name := range order {
		info := tableInfo{Name: name, ImportOrder: i + 1, DeleteOrder: deletePos[name]}
		if d, ok := registry.Table(name); ok {
			info.Dependencies = d.Dependencies
			info.Masked = d.MaskedFields()
		}
		infos = append(infos, info)
	}
	return infos, unresolved
}
