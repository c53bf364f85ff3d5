package backup

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"tenant-backup/internal/database"
)

const (
	manifestSheet = "__manifest"
	defaultSheet  = "Sheet1"

	tablesDelimiter = ", "
	yesToken        = "Sim"
	noToken         = "Não"
)

// Manifest keys of the reserved sheet
const (
	keySchemaVersion  = "schemaVersion"
	keySystemVersion  = "systemVersion"
	keyCreatedAt      = "createdAt"
	keyTenantID       = "tenantId"
	keyTenantName     = "tenantName"
	keyFormat         = "format"
	keyIncludedTables = "includedTables"
	keyIncludeSecrets = "includeSecrets"
	keyIncludeLogs    = "includeLogs"
)

// WorkbookCodec reads and writes xlsx artifacts. The manifest lives on a
// hidden sheet; every other sheet is a table with field names in row 1.
type WorkbookCodec struct{}

// NewWorkbookCodec creates an xlsx codec
func NewWorkbookCodec() *WorkbookCodec {
	return &WorkbookCodec{}
}

func (c *WorkbookCodec) Format() Format    { return FormatXLSX }
func (c *WorkbookCodec) Extension() string { return "xlsx" }

// Encode writes the manifest and one sheet per row set
func (c *WorkbookCodec) Encode(manifest *Manifest, rowsets []RowSet) ([]byte, error) {
	if manifest == nil {
		return nil, NewValidationError("manifest is required", ErrMissingManifest)
	}

	f := excelize.NewFile()
	defer f.Close()

	var tables []RowSet
	for _, rs := range rowsets {
		if len(rs.Records) > 0 {
			tables = append(tables, rs)
		}
	}

	// Sheet1 is the selected tab and cannot be hidden, so it becomes the
	// first table sheet, or the manifest when there is nothing else.
	first := manifestSheet
	if len(tables) > 0 {
		first = tables[0].Table
	}
	if err := f.SetSheetName(defaultSheet, first); err != nil {
		return nil, NewFormatError("failed to name sheet "+first, err)
	}

	if len(tables) > 0 {
		if _, err := f.NewSheet(manifestSheet); err != nil {
			return nil, NewFormatError("failed to create manifest sheet", err)
		}
	}
	if err := writeManifestSheet(f, manifest); err != nil {
		return nil, err
	}
	if len(tables) > 0 {
		if err := f.SetSheetVisible(manifestSheet, false); err != nil {
			return nil, NewFormatError("failed to hide manifest sheet", err)
		}
	}

	for i, rs := range tables {
		if i > 0 {
			if _, err := f.NewSheet(rs.Table); err != nil {
				return nil, NewFormatError("failed to create sheet "+rs.Table, err).WithContext("table", rs.Table)
			}
		}
		if err := writeTableSheet(f, rs); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, NewFormatError("failed to write workbook", err)
	}
	return buf.Bytes(), nil
}

func writeManifestSheet(f *excelize.File, m *Manifest) error {
	rows := [][]interface{}{
		{"key", "value"},
		{keySchemaVersion, m.SchemaVersion},
		{keySystemVersion, m.SystemVersion},
		{keyCreatedAt, m.CreatedAt.UTC().Format(TimeLayout)},
		{keyTenantID, m.IsolationID},
		{keyTenantName, m.IsolationName},
		{keyFormat, string(m.Format)},
		{keyIncludedTables, strings.Join(m.IncludedTables, tablesDelimiter)},
		{keyIncludeSecrets, yesNo(m.IncludeSecrets)},
		{keyIncludeLogs, yesNo(m.IncludeLogs)},
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(manifestSheet, cell, &row); err != nil {
			return NewFormatError("failed to write manifest", err)
		}
	}
	return nil
}

func writeTableSheet(f *excelize.File, rs RowSet) error {
	sw, err := f.NewStreamWriter(rs.Table)
	if err != nil {
		return NewFormatError("failed to open sheet "+rs.Table, err).WithContext("table", rs.Table)
	}

	fields := rowSetFields(rs)
	header := make([]interface{}, len(fields))
	for i, field := range fields {
		header[i] = field
	}
	if err := sw.SetRow("A1", header); err != nil {
		return NewFormatError("failed to write header of "+rs.Table, err).WithContext("table", rs.Table)
	}

	for r, record := range rs.Records {
		values := make([]interface{}, len(fields))
		for i, field := range fields {
			v, err := workbookCell(rs.Table, field, r+1, record[field])
			if err != nil {
				return err
			}
			values[i] = v
		}
		cell, _ := excelize.CoordinatesToCellName(1, r+2)
		if err := sw.SetRow(cell, values); err != nil {
			return NewFormatError("failed to write row of "+rs.Table, err).
				WithContext("table", rs.Table).WithContext("row", r+1)
		}
	}

	if err := sw.Flush(); err != nil {
		return NewFormatError("failed to flush sheet "+rs.Table, err).WithContext("table", rs.Table)
	}
	return nil
}

// CheckTable fails on the first value of rs that cannot be written to a sheet
func (c *WorkbookCodec) CheckTable(rs RowSet) error {
	for r, record := range rs.Records {
		for _, field := range sortedFields(record) {
			if _, err := workbookCell(rs.Table, field, r+1, record[field]); err != nil {
				return err
			}
		}
	}
	return nil
}

// workbookCell converts one field of a table row to its cell value. Text
// longer than a cell holds is rejected, excelize would truncate it.
func workbookCell(table, field string, row int, v any) (any, error) {
	cell, err := cellValue(v)
	if err != nil {
		return nil, NewFormatError(fmt.Sprintf("failed to encode %s.%s", table, field), err).
			WithContext("table", table).WithContext("row", row)
	}
	if text, ok := cell.(string); ok && utf8.RuneCountInString(text) > excelize.TotalCellChars {
		return nil, NewBackupError(BackupErrorTypeFormat,
			fmt.Sprintf("value of %s.%s exceeds %d characters", table, field, excelize.TotalCellChars), nil).
			WithContext("table", table).WithContext("row", row)
	}
	return cell, nil
}

// Decode reads the manifest and every table sheet
func (c *WorkbookCodec) Decode(data []byte) (*Manifest, []RowSet, error) {
	f, err := openWorkbook(data)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	manifest, err := readManifestSheet(f)
	if err != nil {
		return nil, nil, err
	}

	var rowsets []RowSet
	for _, sheet := range f.GetSheetList() {
		if sheet == manifestSheet {
			continue
		}
		rs, err := readTableSheet(f, sheet)
		if err != nil {
			return nil, nil, err
		}
		if len(rs.Records) > 0 {
			rowsets = append(rowsets, rs)
		}
	}
	return manifest, rowsets, nil
}

// ReadManifest reads only the manifest sheet
func (c *WorkbookCodec) ReadManifest(data []byte) (*Manifest, error) {
	f, err := openWorkbook(data)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readManifestSheet(f)
}

func openWorkbook(data []byte) (*excelize.File, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, NewCorruptionError("failed to open workbook", err)
	}
	return f, nil
}

func readManifestSheet(f *excelize.File) (*Manifest, error) {
	if idx, _ := f.GetSheetIndex(manifestSheet); idx == -1 {
		return nil, NewFormatError("workbook has no manifest sheet", ErrMissingManifest)
	}
	rows, err := f.GetRows(manifestSheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, NewCorruptionError("failed to read manifest sheet", err)
	}

	values := make(map[string]string, len(rows))
	for i, row := range rows {
		if i == 0 || len(row) == 0 {
			continue
		}
		value := ""
		if len(row) > 1 {
			value = row[1]
		}
		values[row[0]] = value
	}
	if len(values) == 0 {
		return nil, NewFormatError("manifest sheet is empty", ErrMissingManifest)
	}

	m := &Manifest{
		SchemaVersion: values[keySchemaVersion],
		SystemVersion: values[keySystemVersion],
		IsolationID:   values[keyTenantID],
		IsolationName: values[keyTenantName],
		Format:        Format(values[keyFormat]),
	}
	if raw := values[keyCreatedAt]; raw != "" {
		created, ok := parseTime(raw)
		if !ok {
			return nil, NewCorruptionError(fmt.Sprintf("invalid manifest creation date %q", raw), nil)
		}
		m.CreatedAt = created
	}
	if raw := values[keyIncludedTables]; raw != "" {
		for _, name := range strings.Split(raw, tablesDelimiter) {
			if name = strings.TrimSpace(name); name != "" {
				m.IncludedTables = append(m.IncludedTables, name)
			}
		}
	}
	if m.IncludeSecrets, err = parseYesNo(keyIncludeSecrets, values[keyIncludeSecrets]); err != nil {
		return nil, err
	}
	if m.IncludeLogs, err = parseYesNo(keyIncludeLogs, values[keyIncludeLogs]); err != nil {
		return nil, err
	}
	return m, nil
}

func readTableSheet(f *excelize.File, sheet string) (RowSet, error) {
	rs := RowSet{Table: sheet}
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return rs, NewCorruptionError("failed to read sheet "+sheet, err).WithContext("table", sheet)
	}
	if len(rows) < 2 {
		return rs, nil
	}

	header := rows[0]
	for r, row := range rows[1:] {
		record := make(database.Record, len(header))
		for i, field := range header {
			if field == "" {
				continue
			}
			raw := ""
			if i < len(row) {
				raw = row[i]
			}
			if raw == "" {
				written, err := isTextCell(f, sheet, i+1, r+2)
				if err != nil {
					return rs, err
				}
				if written {
					record[field] = ""
				}
				continue
			}
			value, err := readCell(f, sheet, i+1, r+2, raw)
			if err != nil {
				return rs, err
			}
			record[field] = value
		}
		if len(record) > 0 {
			rs.Records = append(rs.Records, record)
		}
	}
	return rs, nil
}

// readCell interprets a raw cell value. Only numeric-looking text needs the
// cell type, to tell numbers and booleans from digit strings.
func readCell(f *excelize.File, sheet string, col, row int, raw string) (any, error) {
	number, numeric := parseNumber(raw)
	if !numeric {
		return parseText(raw), nil
	}

	ref, _ := excelize.CoordinatesToCellName(col, row)
	cellType, err := f.GetCellType(sheet, ref)
	if err != nil {
		return nil, NewCorruptionError("failed to read cell "+ref, err).WithContext("table", sheet)
	}
	switch cellType {
	case excelize.CellTypeBool:
		return raw == "1" || strings.EqualFold(raw, "true"), nil
	case excelize.CellTypeUnset, excelize.CellTypeNumber:
		return number, nil
	case excelize.CellTypeDate:
		if t, ok := parseTime(raw); ok {
			return t.Format(TimeLayout), nil
		}
	}
	return parseText(raw), nil
}

// isTextCell tells an empty string cell from a cell that was never written
func isTextCell(f *excelize.File, sheet string, col, row int) (bool, error) {
	ref, _ := excelize.CoordinatesToCellName(col, row)
	cellType, err := f.GetCellType(sheet, ref)
	if err != nil {
		return false, NewCorruptionError("failed to read cell "+ref, err).WithContext("table", sheet)
	}
	switch cellType {
	case excelize.CellTypeInlineString, excelize.CellTypeSharedString, excelize.CellTypeFormula:
		return true, nil
	}
	return false, nil
}

func yesNo(v bool) string {
	if v {
		return yesToken
	}
	return noToken
}

func parseYesNo(key, raw string) (bool, error) {
	switch raw {
	case yesToken:
		return true, nil
	case noToken:
		return false, nil
	}
	return false, NewCorruptionError(fmt.Sprintf("manifest %s must be %s or %s, got %q", key, yesToken, noToken, raw), nil)
}

var _ Codec = (*WorkbookCodec)(nil)
