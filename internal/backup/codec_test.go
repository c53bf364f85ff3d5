package backup

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"tenant-backup/internal/database"
	"tenant-backup/internal/schema"
)

func sampleRowSets() []RowSet {
	return []RowSet{
		{Table: schema.TablePerson, Records: []database.Record{
			{"id": "p1", "tenantId": tenantA, "name": "Ana Souza", "document": "123.456.789-00", "createdAt": "2024-01-02T08:00:00.000Z"},
			{"id": "p2", "tenantId": tenantA, "name": "Bruno Lima", "document": "98765432100", "active": true},
		}},
		{Table: schema.TableVehicle},
		{Table: schema.TableRental, Records: []database.Record{
			{"id": "r1", "tenantId": tenantA, "total": 1250.5, "days": int64(3), "tags": []any{"vip", "weekend"}},
		}},
	}
}

func TestWorkbookCodec_RoundTrip(t *testing.T) {
	codec := NewWorkbookCodec()
	manifest := testManifest(schema.TablePerson, schema.TableVehicle, schema.TableRental)

	data, err := codec.Encode(manifest, sampleRowSets())
	require.NoError(t, err)

	decoded, rowsets, err := codec.Decode(data)
	require.NoError(t, err)

	assert.Equal(t, manifest.SchemaVersion, decoded.SchemaVersion)
	assert.Equal(t, manifest.SystemVersion, decoded.SystemVersion)
	assert.True(t, manifest.CreatedAt.Equal(decoded.CreatedAt))
	assert.Equal(t, manifest.IsolationID, decoded.IsolationID)
	assert.Equal(t, manifest.IsolationName, decoded.IsolationName)
	assert.Equal(t, manifest.Format, decoded.Format)
	assert.Equal(t, manifest.IncludedTables, decoded.IncludedTables)
	assert.False(t, decoded.IncludeSecrets)
	assert.False(t, decoded.IncludeLogs)

	require.Len(t, rowsets, 2)
	assert.Equal(t, schema.TablePerson, rowsets[0].Table)
	assert.Equal(t, schema.TableRental, rowsets[1].Table)

	persons := rowsets[0].Records
	require.Len(t, persons, 2)
	assert.Equal(t, "p1", persons[0]["id"])
	assert.Equal(t, "123.456.789-00", persons[0]["document"])
	assert.Equal(t, "2024-01-02T08:00:00.000Z", persons[0]["createdAt"])
	assert.NotContains(t, persons[0], "active", "empty cells are not materialized")
	assert.Equal(t, "98765432100", persons[1]["document"], "digit strings stay text")
	assert.Equal(t, true, persons[1]["active"])

	rental := rowsets[1].Records[0]
	assert.Equal(t, 1250.5, rental["total"])
	assert.Equal(t, int64(3), rental["days"])
	assert.Equal(t, []any{"vip", "weekend"}, rental["tags"])
}

func TestWorkbookCodec_KeepsEmptyStrings(t *testing.T) {
	codec := NewWorkbookCodec()
	rowsets := []RowSet{{Table: schema.TableIntegration, Records: []database.Record{
		{"id": "i1", "apiKey": "", "price": 2.0},
		{"id": "i2", "price": 3.5},
	}}}

	data, err := codec.Encode(testManifest(schema.TableIntegration), rowsets)
	require.NoError(t, err)
	_, decoded, err := codec.Decode(data)
	require.NoError(t, err)

	require.Len(t, decoded, 1)
	records := decoded[0].Records
	require.Len(t, records, 2)
	assert.Equal(t, database.Record{"id": "i1", "apiKey": "", "price": int64(2)}, records[0])
	assert.NotContains(t, records[1], "apiKey", "unset cells stay absent")
	assert.Equal(t, 3.5, records[1]["price"])
}

func TestWorkbookCodec_CheckTable(t *testing.T) {
	codec := NewWorkbookCodec()
	limit := excelize.TotalCellChars

	fits := RowSet{Table: schema.TableAuditLog, Records: []database.Record{
		{"id": "log-1", "details": strings.Repeat("é", limit)},
	}}
	assert.NoError(t, codec.CheckTable(fits))

	tooLong := RowSet{Table: schema.TableAuditLog, Records: []database.Record{
		{"id": "log-1", "details": "short"},
		{"id": "log-2", "details": strings.Repeat("x", limit+1)},
	}}
	err := codec.CheckTable(tooLong)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "value of AuditLog.details exceeds 32767 characters")
	var be *BackupError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, BackupErrorTypeFormat, be.Type)
	assert.Equal(t, 2, be.Context["row"])

	_, err = codec.Encode(testManifest(schema.TableAuditLog), []RowSet{tooLong})
	assert.Error(t, err, "encode never truncates")
}

func TestWorkbookCodec_OmitsEmptyTables(t *testing.T) {
	data, err := NewWorkbookCodec().Encode(testManifest(schema.TableVehicle, schema.TablePerson), sampleRowSets())
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	sheets := f.GetSheetList()
	assert.NotContains(t, sheets, schema.TableVehicle)
	assert.Contains(t, sheets, schema.TablePerson)
	assert.Contains(t, sheets, manifestSheet)

	visible, err := f.GetSheetVisible(manifestSheet)
	require.NoError(t, err)
	assert.False(t, visible)
}

func TestWorkbookCodec_ManifestOnly(t *testing.T) {
	codec := NewWorkbookCodec()
	manifest := testManifest(schema.TablePerson)
	manifest.IncludeSecrets = true

	data, err := codec.Encode(manifest, []RowSet{{Table: schema.TablePerson}})
	require.NoError(t, err)

	decoded, rowsets, err := codec.Decode(data)
	require.NoError(t, err)
	assert.Empty(t, rowsets)
	assert.True(t, decoded.IncludeSecrets)

	onlyManifest, err := codec.ReadManifest(data)
	require.NoError(t, err)
	assert.Equal(t, decoded, onlyManifest)
}

func TestWorkbookCodec_MissingManifest(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetCellValue("Sheet1", "A1", "id"))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, _, err = NewWorkbookCodec().Decode(buf.Bytes())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingManifest))
}

func TestWorkbookCodec_InvalidManifestFlag(t *testing.T) {
	data, err := NewWorkbookCodec().Encode(testManifest(schema.TablePerson), nil)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	rows, err := f.GetRows(manifestSheet)
	require.NoError(t, err)
	for i, row := range rows {
		if row[0] == keyIncludeLogs {
			cell, _ := excelize.CoordinatesToCellName(2, i+1)
			require.NoError(t, f.SetCellValue(manifestSheet, cell, "maybe"))
		}
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = NewWorkbookCodec().ReadManifest(buf.Bytes())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "includeLogs")
}

func TestBundleCodec(t *testing.T) {
	codec := NewBundleCodec()
	manifest := testManifest(schema.TablePerson, schema.TableVehicle, schema.TableRental)
	manifest.Format = FormatCSV

	data, err := codec.Encode(manifest, sampleRowSets())
	require.NoError(t, err)

	t.Run("manifest", func(t *testing.T) {
		decoded, err := codec.ReadManifest(data)
		require.NoError(t, err)
		assert.Equal(t, manifest.IncludedTables, decoded.IncludedTables)
		assert.True(t, manifest.CreatedAt.Equal(decoded.CreatedAt))
		assert.Equal(t, FormatCSV, decoded.Format)
	})

	t.Run("table files", func(t *testing.T) {
		tables, err := codec.TableFiles(data)
		require.NoError(t, err)
		assert.Equal(t, map[string]int{schema.TablePerson: 2, schema.TableRental: 1}, tables)
	})

	t.Run("check table", func(t *testing.T) {
		assert.NoError(t, codec.CheckTable(RowSet{Table: schema.TableAuditLog, Records: []database.Record{
			{"id": "log-1", "details": strings.Repeat("x", 40000)},
		}}))
		err := codec.CheckTable(RowSet{Table: schema.TableAuditLog, Records: []database.Record{
			{"id": "log-1", "meta": map[string]any{"bad": func() {}}},
		}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "AuditLog.meta")
	})

	t.Run("decode unsupported", func(t *testing.T) {
		_, _, err := codec.Decode(data)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrFormatUnsupported))
	})
}

func TestBundleCodec_Quoting(t *testing.T) {
	rowsets := []RowSet{{Table: schema.TablePerson, Records: []database.Record{
		{"id": "p1", "note": "He said \"hi\", then\nleft", "tenantId": tenantA},
		{"id": "p2", "note": "plain", "tenantId": tenantA},
	}}}
	data, err := NewBundleCodec().Encode(testManifest(schema.TablePerson), rowsets)
	require.NoError(t, err)

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	var content []byte
	for _, file := range zr.File {
		if file.Name != schema.TablePerson+".csv" {
			continue
		}
		rc, err := file.Open()
		require.NoError(t, err)
		content, err = io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
	}

	expected := "id,note,tenantId\n" +
		"p1,\"He said \"\"hi\"\", then\nleft\"," + tenantA + "\n" +
		"p2,plain," + tenantA + "\n"
	assert.Equal(t, expected, string(content))
}

func TestDetectFormat(t *testing.T) {
	workbook, err := NewWorkbookCodec().Encode(testManifest(schema.TablePerson), nil)
	require.NoError(t, err)
	bundle, err := NewBundleCodec().Encode(testManifest(schema.TablePerson), nil)
	require.NoError(t, err)

	format, err := DetectFormat(workbook)
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, format)

	format, err = DetectFormat(bundle)
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, format)

	_, err = DetectFormat([]byte("not a zip"))
	require.Error(t, err)
	var be *BackupError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, BackupErrorTypeCorruption, be.Type)
}

func TestCodecFor(t *testing.T) {
	codec, err := CodecFor(FormatXLSX)
	require.NoError(t, err)
	assert.Equal(t, "xlsx", codec.Extension())

	codec, err = CodecFor(FormatCSV)
	require.NoError(t, err)
	assert.Equal(t, "zip", codec.Extension())

	_, err = CodecFor(Format("pdf"))
	assert.True(t, errors.Is(err, ErrFormatUnsupported))
}

func TestDecodeArtifact_Empty(t *testing.T) {
	_, _, err := decodeArtifact(nil, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")
}
