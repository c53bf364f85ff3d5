package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenant-backup/internal/backup"
	"tenant-backup/internal/database"
	"tenant-backup/internal/schema"
)

type result struct {
	code   int
	stdout string
	stderr string
}

func (r result) output() string { return r.stdout + r.stderr }

// execute runs the CLI against an empty memory store and a local archive
// in a temporary directory
func execute(t *testing.T, input string, args ...string) result {
	t.Helper()
	base := []string{
		"--driver=memory",
		"--storage-path=" + t.TempDir(),
		"--no-color",
		"--no-icons",
		"--no-progress",
	}
	root, c := newRoot()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetIn(strings.NewReader(input))

	code := c.run(context.Background(), root, append(base, args...), &stderr)
	return result{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

func writeArtifact(t *testing.T, manifest *backup.Manifest, rowsets ...backup.RowSet) string {
	t.Helper()
	codec, err := backup.CodecFor(backup.FormatXLSX)
	require.NoError(t, err)
	data, err := codec.Encode(manifest, rowsets)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "acme.xlsx")
	require.NoError(t, os.WriteFile(path, data, 0600))
	return path
}

func TestVersionCommand(t *testing.T) {
	res := execute(t, "", "version")
	assert.Equal(t, 0, res.code)
	assert.Contains(t, res.stdout, "tenant-backup version dev")
	assert.Contains(t, res.stdout, "Go version: go")
}

func TestConfigCommands(t *testing.T) {
	res := execute(t, "", "config", "env")
	assert.Equal(t, 0, res.code)
	assert.Contains(t, res.stdout, "TENANT_BACKUP_DATABASE_HOST")

	path := filepath.Join(t.TempDir(), "tenant-backup.yaml")
	res = execute(t, "", "config", "init", path)
	assert.Equal(t, 0, res.code, res.stderr)
	assert.FileExists(t, path)

	res = execute(t, "", "config", "init", path)
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "already exists")

	res = execute(t, "", "--password=hunter2", "config", "show")
	assert.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "driver: memory")
	assert.Contains(t, res.stdout, "********")
	assert.NotContains(t, res.stdout, "hunter2")
}

func TestConfigShow_InvalidFlag(t *testing.T) {
	res := execute(t, "", "--chunk-size=-1", "config", "show")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "engine.chunk_size")
}

func TestTablesCommand(t *testing.T) {
	res := execute(t, "", "--output=json", "tables")
	require.Equal(t, 0, res.code, res.stderr)

	var infos []tableInfo
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &infos))
	position := make(map[string]int, len(infos))
	for _, info := range infos {
		position[info.Name] = info.ImportOrder
	}
	assert.Less(t, position[schema.TablePerson], position[schema.TableRental])
	assert.NotContains(t, position, schema.TableAuditLog)

	res = execute(t, "", "tables", "--modules=rentals")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, schema.TableRental)
	assert.NotContains(t, res.stdout, schema.TableVehicle)

	res = execute(t, "", "tables", "--modules=unknown")
	assert.Equal(t, 1, res.code)
}

func TestDescribeTables(t *testing.T) {
	registry := schema.DefaultRegistry()
	infos, unresolved := describeTables(registry, []string{schema.TableRental, schema.TablePerson, schema.TableUser})
	assert.Empty(t, unresolved)
	require.Len(t, infos, 3)
	for _, info := range infos {
		assert.Positive(t, info.DeleteOrder)
	}
	byName := make(map[string]tableInfo)
	for _, info := range infos {
		byName[info.Name] = info
	}
	assert.Less(t, byName[schema.TablePerson].ImportOrder, byName[schema.TableRental].ImportOrder)
	assert.Greater(t, byName[schema.TablePerson].DeleteOrder, byName[schema.TableRental].DeleteOrder)
}

func TestValidateCommand(t *testing.T) {
	manifest := &backup.Manifest{
		SchemaVersion:  backup.SchemaVersion,
		CreatedAt:      time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC),
		IsolationID:    "tenant-a",
		IsolationName:  "Acme Rentals",
		Format:         backup.FormatXLSX,
		IncludedTables: []string{schema.TablePerson},
	}
	path := writeArtifact(t, manifest, backup.RowSet{
		Table:   schema.TablePerson,
		Records: []database.Record{{"id": "p1", "tenantId": "tenant-a", "name": "Ana Souza", "document": "123.456.789-00"}},
	})

	res := execute(t, "", "validate", path)
	assert.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Artifact can be imported")

	broken := *manifest
	broken.IsolationID = ""
	path = writeArtifact(t, &broken, backup.RowSet{
		Table:   schema.TablePerson,
		Records: []database.Record{{"id": "p1", "name": "Ana Souza", "document": "123.456.789-00"}},
	})
	res = execute(t, "", "validate", path)
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stdout, "manifest has no tenant id")
}

func TestValidateCommand_NoSource(t *testing.T) {
	res := execute(t, "", "validate")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stdout, "an artifact file or ID is required")
}

func TestExportCommand_UnknownTenant(t *testing.T) {
	res := execute(t, "", "export", "--tenant=missing", "--no-archive", "--out="+t.TempDir())
	assert.Equal(t, 1, res.code)
}

func TestExportCommand_RequiresTenant(t *testing.T) {
	res := execute(t, "", "export")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.output(), `required flag(s) "tenant" not set`)
}

func TestImportCommand_MissingFile(t *testing.T) {
	res := execute(t, "", "import", filepath.Join(t.TempDir(), "missing.xlsx"), "--tenant=tenant-a")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stdout, "File or directory not found")
}

func TestResetCommand(t *testing.T) {
	res := execute(t, "wrong\n", "reset", "--tenant=tenant-a")
	assert.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, `Type "tenant-a" to confirm`)
	assert.Contains(t, res.stdout, "Reset cancelled")

	res = execute(t, "tenant-a\n", "reset", "--tenant=tenant-a", "--modules=rentals")
	assert.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "2 tables will be emptied")
	assert.Contains(t, res.stdout, "Deleted 0 records of tenant-a")

	res = execute(t, "", "--yes", "reset", "--tenant=tenant-a")
	assert.Equal(t, 0, res.code, res.stderr)
	assert.NotContains(t, res.stdout, "to confirm")

	res = execute(t, "", "--yes", "reset", "--tenant=tenant-a", "--modules=unknown")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stdout, "known modules")
}

func TestArtifactsCommands(t *testing.T) {
	res := execute(t, "", "artifacts", "list")
	assert.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "No artifacts found")

	res = execute(t, "", "artifacts", "health")
	assert.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Storage is healthy")

	res = execute(t, "", "artifacts", "prune", "--dry-run")
	assert.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "No artifacts found")

	res = execute(t, "", "artifacts", "inspect", "missing")
	assert.Equal(t, 1, res.code)

	res = execute(t, "", "--output=json", "artifacts", "usage")
	assert.Equal(t, 0, res.code, res.stderr)
	var usage backup.UsageReport
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &usage))
	assert.Zero(t, usage.TotalArtifacts)
}

func TestRoot_MutuallyExclusiveFlags(t *testing.T) {
	res := execute(t, "", "-v", "-q", "tables")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.output(), "verbose")
}
