package display

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// OutputWriter writes values in a structured format
type OutputWriter struct {
	format OutputFormat
	writer io.Writer
}

// NewOutputWriter creates a writer for format; table output is written as
// indented JSON since structured values have no tabular shape
func NewOutputWriter(format OutputFormat, writer io.Writer) *OutputWriter {
	return &OutputWriter{format: format, writer: writer}
}

// Write encodes value
func (w *OutputWriter) Write(value interface{}) error {
	switch w.format {
	case FormatYAML:
		enc := yaml.NewEncoder(w.writer)
		enc.SetIndent(2)
		if err := enc.Encode(value); err != nil {
			return fmt.Errorf("failed to marshal YAML: %w", err)
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(w.writer)
		enc.SetIndent("", "  ")
		if err := enc.Encode(value); err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		return nil
	}
}

// WriteTable writes rows as a list of header-keyed objects
func (w *OutputWriter) WriteTable(headers []string, rows [][]string) error {
	data := make([]map[string]string, 0, len(rows))
	for _, row := range rows {
		entry := make(map[string]string, len(headers))
		for i, header := range headers {
			if i < len(row) {
				entry[header] = row[i]
			} else {
				entry[header] = ""
			}
		}
		data = append(data, entry)
	}
	return w.Write(data)
}

// WriteStatus writes a status message as a level/message object
func (w *OutputWriter) WriteStatus(level, message string) error {
	return w.Write(map[string]string{"level": level, "message": message})
}

// FormatBytes renders a byte count with a binary unit
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
