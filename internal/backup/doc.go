// Package backup snapshots, restores and resets the dataset of one isolation
// domain (tenant).
//
// Core Components:
//
//   - ManifestBuilder: describes an artifact and checks manifests for compatibility
//   - Codec: serializes manifests and row sets (xlsx workbooks and zipped CSV bundles)
//   - Exporter: reads every table of a domain page by page, masks secrets and encodes an artifact
//   - Importer: decodes an artifact and writes it into a domain inside one transaction
//   - Resetter: deletes a domain's records in dependency order inside one transaction
//   - Validator: dry-runs an artifact without touching the store
//   - Archive: keeps compressed and encrypted artifacts in a StorageProvider with per-domain retention
//
// Example usage:
//
//	exporter := backup.NewExporter(store, schema.DefaultRegistry(), logger)
//	result, err := exporter.Export(ctx, tenantID, backup.FormatXLSX, backup.ExportOptions{})
//	if err != nil {
//		return fmt.Errorf("export failed: %w", err)
//	}
//
//	importer := backup.NewImporter(store, schema.DefaultRegistry(), logger)
//	imported, err := importer.Import(ctx, result.Data, backup.ImportOptions{
//		TargetIsolationID: otherTenantID,
//		Mode:              backup.ImportModeMerge,
//	})
package backup
