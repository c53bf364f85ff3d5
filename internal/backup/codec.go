package backup

import (
	"bytes"
	"fmt"

	"github.com/klauspost/compress/zip"
)

// Codec encodes and decodes artifacts of one format
type Codec interface {
	Format() Format
	Extension() string
	Encode(manifest *Manifest, rowsets []RowSet) ([]byte, error)
	Decode(data []byte) (*Manifest, []RowSet, error)
	// CheckTable reports the first value of rs the format cannot hold
	CheckTable(rs RowSet) error
	// ReadManifest extracts only the manifest
	ReadManifest(data []byte) (*Manifest, error)
}

// CodecFor returns the codec of a format
func CodecFor(format Format) (Codec, error) {
	switch format {
	case FormatXLSX:
		return NewWorkbookCodec(), nil
	case FormatCSV:
		return NewBundleCodec(), nil
	}
	return nil, NewFormatError(fmt.Sprintf("unknown format %q", format), nil)
}

// DetectFormat sniffs the format of an artifact from its zip directory
func DetectFormat(data []byte) (Format, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", NewCorruptionError("artifact is not a zip container", err)
	}

	for _, file := range reader.File {
		switch file.Name {
		case "[Content_Types].xml":
			return FormatXLSX, nil
		case bundleManifestName:
			return FormatCSV, nil
		}
	}
	return "", NewFormatError("cannot detect artifact format", nil)
}

// decodeArtifact decodes data with the codec of format, sniffing it when empty
func decodeArtifact(data []byte, format Format) (*Manifest, []RowSet, error) {
	if len(data) == 0 {
		return nil, nil, NewValidationError("artifact is empty", nil)
	}
	if format == "" {
		detected, err := DetectFormat(data)
		if err != nil {
			return nil, nil, err
		}
		format = detected
	}
	codec, err := CodecFor(format)
	if err != nil {
		return nil, nil, err
	}
	return codec.Decode(data)
}
