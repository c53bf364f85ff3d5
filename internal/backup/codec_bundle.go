package backup

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/zip"
)

const bundleManifestName = "manifest.json"

// BundleCodec writes zip bundles holding manifest.json and one <table>.csv
// per non-empty table. Bundles can be inspected but not restored.
type BundleCodec struct{}

// NewBundleCodec creates a csv bundle codec
func NewBundleCodec() *BundleCodec {
	return &BundleCodec{}
}

func (c *BundleCodec) Format() Format    { return FormatCSV }
func (c *BundleCodec) Extension() string { return "zip" }

// Encode writes the bundle
func (c *BundleCodec) Encode(manifest *Manifest, rowsets []RowSet) ([]byte, error) {
	if manifest == nil {
		return nil, NewValidationError("manifest is required", ErrMissingManifest)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	encoded, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, NewFormatError("failed to encode manifest", err)
	}
	w, err := zw.Create(bundleManifestName)
	if err != nil {
		return nil, NewFormatError("failed to add manifest to bundle", err)
	}
	if _, err := w.Write(encoded); err != nil {
		return nil, NewFormatError("failed to write manifest", err)
	}

	for _, rs := range rowsets {
		if len(rs.Records) == 0 {
			continue
		}
		w, err := zw.Create(rs.Table + ".csv")
		if err != nil {
			return nil, NewFormatError("failed to add "+rs.Table+" to bundle", err).WithContext("table", rs.Table)
		}
		if err := writeCSV(w, rs); err != nil {
			return nil, err
		}
	}

	if err := zw.Close(); err != nil {
		return nil, NewFormatError("failed to finish bundle", err)
	}
	return buf.Bytes(), nil
}

func writeCSV(w io.Writer, rs RowSet) error {
	cw := csv.NewWriter(w)
	fields := rowSetFields(rs)
	if err := cw.Write(fields); err != nil {
		return NewFormatError("failed to write header of "+rs.Table, err).WithContext("table", rs.Table)
	}

	line := make([]string, len(fields))
	for r, record := range rs.Records {
		for i, field := range fields {
			text, err := bundleText(rs.Table, field, r+1, record[field])
			if err != nil {
				return err
			}
			line[i] = text
		}
		if err := cw.Write(line); err != nil {
			return NewFormatError("failed to write row of "+rs.Table, err).
				WithContext("table", rs.Table).WithContext("row", r+1)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return NewFormatError("failed to flush "+rs.Table, err).WithContext("table", rs.Table)
	}
	return nil
}

// CheckTable fails on the first value of rs that has no text form.
// Flat files have no cell size limit.
func (c *BundleCodec) CheckTable(rs RowSet) error {
	for r, record := range rs.Records {
		for _, field := range sortedFields(record) {
			if _, err := bundleText(rs.Table, field, r+1, record[field]); err != nil {
				return err
			}
		}
	}
	return nil
}

func bundleText(table, field string, row int, v any) (string, error) {
	text, err := textValue(v)
	if err != nil {
		return "", NewFormatError(fmt.Sprintf("failed to encode %s.%s", table, field), err).
			WithContext("table", table).WithContext("row", row)
	}
	return text, nil
}

// Decode is not supported for bundles
func (c *BundleCodec) Decode(data []byte) (*Manifest, []RowSet, error) {
	return nil, nil, NewFormatError("decoding csv bundles is not supported, use xlsx", nil)
}

// ReadManifest reads manifest.json from the bundle
func (c *BundleCodec) ReadManifest(data []byte) (*Manifest, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, NewCorruptionError("failed to open bundle", err)
	}

	for _, file := range zr.File {
		if file.Name != bundleManifestName {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return nil, NewCorruptionError("failed to open manifest", err)
		}
		defer rc.Close()

		var m Manifest
		if err := json.NewDecoder(rc).Decode(&m); err != nil {
			return nil, NewCorruptionError("failed to parse manifest", err)
		}
		return &m, nil
	}
	return nil, NewFormatError("bundle has no "+bundleManifestName, ErrMissingManifest)
}

// TableFiles lists the tables a bundle carries, with their data row counts
func (c *BundleCodec) TableFiles(data []byte) (map[string]int, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, NewCorruptionError("failed to open bundle", err)
	}

	counts := make(map[string]int)
	for _, file := range zr.File {
		if file.Name == bundleManifestName || len(file.Name) < 5 || file.Name[len(file.Name)-4:] != ".csv" {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return nil, NewCorruptionError("failed to open "+file.Name, err)
		}
		records, err := csv.NewReader(rc).ReadAll()
		rc.Close()
		if err != nil {
			return nil, NewCorruptionError("failed to parse "+file.Name, err)
		}
		rows := len(records) - 1
		if rows < 0 {
			rows = 0
		}
		counts[file.Name[:len(file.Name)-4]] = rows
	}
	return counts, nil
}

var _ Codec = (*BundleCodec)(nil)
