package backup

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenant-backup/internal/database"
	"tenant-backup/internal/schema"
)

// countingStore counts Find calls per table
type countingStore struct {
	*database.MemoryStore
	finds map[string]int
}

func (s *countingStore) Accessor(table string) (database.Accessor, bool) {
	accessor, ok := s.MemoryStore.Accessor(table)
	if !ok {
		return nil, false
	}
	return &countingAccessor{Accessor: accessor, table: table, store: s}, true
}

type countingAccessor struct {
	database.Accessor
	table string
	store *countingStore
}

func (a *countingAccessor) Find(ctx context.Context, filter database.Filter, offset, limit int) ([]database.Record, error) {
	a.store.finds[a.table]++
	return a.Accessor.Find(ctx, filter, offset, limit)
}

func TestExporter_Export(t *testing.T) {
	store := newCatalogStore(t)
	seedDataset(store, tenantB)
	exporter := NewExporter(store, schema.DefaultRegistry(), nil, withClock(fixedClock), WithSystemVersion("2.4.0"))

	var progress []int
	result, err := exporter.Export(context.Background(), tenantA, FormatXLSX, ExportOptions{
		Progress: func(percent int, _ string) { progress = append(progress, percent) },
	})
	require.NoError(t, err)

	assert.Equal(t, "backup-acme-rentals-2024-03-15.xlsx", result.FileName)
	assert.Equal(t, int64(len(result.Data)), result.Size)
	assert.Equal(t, "2.4.0", result.Manifest.SystemVersion)
	assert.Equal(t, "Acme Rentals", result.Manifest.IsolationName)
	assert.Equal(t, map[string]int{
		schema.TableUser:        2,
		schema.TablePerson:      3,
		schema.TableAddress:     1,
		schema.TableRental:      1,
		schema.TableIntegration: 1,
	}, result.TableCounts)
	assert.Equal(t, 8, result.TotalRecords)
	assert.Empty(t, result.Warnings)
	assert.Empty(t, result.SkippedTables)
	assert.Equal(t, 0, progress[0])
	assert.Equal(t, 100, progress[len(progress)-1])

	_, rowsets, err := decodeArtifact(result.Data, "")
	require.NoError(t, err)
	for _, rs := range rowsets {
		for _, r := range rs.Records {
			assert.Equal(t, tenantA, r[schema.TenantField], "%s holds a record of another tenant", rs.Table)
		}
		switch rs.Table {
		case schema.TableUser:
			assert.NotContains(t, rs.Records[0], "password")
		case schema.TableIntegration:
			assert.Equal(t, MaskSentinel, rs.Records[0]["apiKey"])
		}
	}
}

func TestExporter_IncludeSecretsAndLogs(t *testing.T) {
	store := newCatalogStore(t)
	store.Seed(schema.TableAuditLog, database.Record{"id": "log-1", "tenantId": tenantA, "action": "login"})
	exporter := NewExporter(store, schema.DefaultRegistry(), nil, withClock(fixedClock))

	result, err := exporter.Export(context.Background(), tenantA, FormatXLSX, ExportOptions{IncludeSecrets: true, IncludeLogs: true})
	require.NoError(t, err)
	assert.True(t, result.Manifest.IncludeSecrets)
	assert.Contains(t, result.Manifest.IncludedTables, schema.TableAuditLog)
	assert.Equal(t, 1, result.TableCounts[schema.TableAuditLog])

	_, rowsets, err := decodeArtifact(result.Data, FormatXLSX)
	require.NoError(t, err)
	for _, rs := range rowsets {
		if rs.Table == schema.TableIntegration {
			assert.Equal(t, "secret-key", rs.Records[0]["apiKey"])
		}
	}
}

func TestExporter_Chunking(t *testing.T) {
	store := &countingStore{MemoryStore: newCatalogStore(t), finds: make(map[string]int)}
	exporter := NewExporter(store, schema.DefaultRegistry(), nil)

	result, err := exporter.Export(context.Background(), tenantA, FormatCSV, ExportOptions{
		SelectedTables: []string{schema.TablePerson, schema.TableAddress},
		ChunkSize:      2,
	})
	require.NoError(t, err)

	assert.Equal(t, 3, result.TableCounts[schema.TablePerson])
	assert.Equal(t, 2, store.finds[schema.TablePerson], "3 rows with chunk 2 need two pages")
	assert.Equal(t, 1, store.finds[schema.TableAddress])
	assert.True(t, len(result.FileName) > 4 && result.FileName[len(result.FileName)-4:] == ".zip")
}

func TestExporter_SkipsFailingTables(t *testing.T) {
	registry := schema.DefaultRegistry()
	// no Equipment accessor
	var tables []string
	for _, name := range registry.Names() {
		if name != schema.TableEquipment {
			tables = append(tables, name)
		}
	}
	store := database.NewMemoryStore(tables...)
	seedTenants(store)
	seedDataset(store, tenantA)

	result, err := NewExporter(store, registry, nil).Export(context.Background(), tenantA, FormatXLSX, ExportOptions{
		SelectedTables: []string{schema.TablePerson, schema.TableEquipment, "Ghost"},
	})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{schema.TableEquipment, "Ghost"}, result.SkippedTables)
	assert.Len(t, result.Warnings, 2)
	assert.Equal(t, 3, result.TotalRecords)
	assert.Equal(t, []string{schema.TablePerson, schema.TableEquipment, "Ghost"}, result.Manifest.IncludedTables)
}

func TestExporter_SkipsTablesThatCannotBeEncoded(t *testing.T) {
	tests := []struct {
		name    string
		format  Format
		record  database.Record
		skipped bool
		message string
	}{
		{
			name:    "value without a text form",
			format:  FormatXLSX,
			record:  database.Record{"id": "log-1", "tenantId": tenantA, "meta": map[string]any{"ratio": math.Inf(1)}},
			skipped: true,
			message: "AuditLog.meta",
		},
		{
			name:    "text longer than a workbook cell",
			format:  FormatXLSX,
			record:  database.Record{"id": "log-1", "tenantId": tenantA, "details": strings.Repeat("x", 40000)},
			skipped: true,
			message: "value of AuditLog.details exceeds 32767 characters",
		},
		{
			name:   "long text in a bundle",
			format: FormatCSV,
			record: database.Record{"id": "log-1", "tenantId": tenantA, "details": strings.Repeat("x", 40000)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newCatalogStore(t)
			store.Seed(schema.TableAuditLog, tt.record)

			result, err := NewExporter(store, schema.DefaultRegistry(), nil, withClock(fixedClock)).
				Export(context.Background(), tenantA, tt.format, ExportOptions{IncludeLogs: true})
			require.NoError(t, err)

			assert.Contains(t, result.Manifest.IncludedTables, schema.TableAuditLog)
			assert.Equal(t, 3, result.TableCounts[schema.TablePerson])
			if !tt.skipped {
				assert.Empty(t, result.SkippedTables)
				assert.Equal(t, 1, result.TableCounts[schema.TableAuditLog])
				return
			}

			assert.Equal(t, []string{schema.TableAuditLog}, result.SkippedTables)
			require.Len(t, result.Warnings, 1)
			assert.Contains(t, result.Warnings[0], "table AuditLog skipped")
			assert.Contains(t, result.Warnings[0], tt.message)
			assert.NotContains(t, result.TableCounts, schema.TableAuditLog)

			_, rowsets, err := decodeArtifact(result.Data, FormatXLSX)
			require.NoError(t, err)
			var tables []string
			for _, rs := range rowsets {
				tables = append(tables, rs.Table)
			}
			assert.NotContains(t, tables, schema.TableAuditLog)
			assert.Contains(t, tables, schema.TablePerson)
		})
	}
}

func TestExporter_UnknownTenant(t *testing.T) {
	store := newCatalogStore(t)
	_, err := NewExporter(store, schema.DefaultRegistry(), nil).Export(context.Background(), "nobody", FormatXLSX, ExportOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestExporter_UnknownFormat(t *testing.T) {
	store := newCatalogStore(t)
	_, err := NewExporter(store, schema.DefaultRegistry(), nil).Export(context.Background(), tenantA, Format("pdf"), ExportOptions{})
	assert.True(t, errors.Is(err, ErrFormatUnsupported))
}

func TestExporter_CancelledContext(t *testing.T) {
	store := newCatalogStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewExporter(store, schema.DefaultRegistry(), nil).Export(ctx, tenantA, FormatXLSX, ExportOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestArtifactFileName(t *testing.T) {
	day := time.Date(2024, 12, 31, 23, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		want string
	}{
		{"Acme Rentals", "backup-acme-rentals-2024-12-31.xlsx"},
		{"  Multi   Space  Co ", "backup-multi-space-co-2024-12-31.xlsx"},
		{"", "backup-tenant-2024-12-31.xlsx"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q", tt.name), func(t *testing.T) {
			assert.Equal(t, tt.want, ArtifactFileName(tt.name, day, "xlsx"))
		})
	}
}
