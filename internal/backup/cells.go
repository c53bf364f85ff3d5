package backup

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"tenant-backup/internal/database"
)

// MaskSentinel is the serialized form of a masked secret
const MaskSentinel = "********"

// TimeLayout is the text form of dates inside artifacts
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// Masked stands in for a secret that was withheld from an export
type Masked struct{}

// String returns the sentinel text
func (Masked) String() string { return MaskSentinel }

// MarshalJSON encodes the marker as the sentinel text
func (Masked) MarshalJSON() ([]byte, error) { return json.Marshal(MaskSentinel) }

// IsMasked reports whether v is the mask marker or its serialized sentinel
func IsMasked(v any) bool {
	switch val := v.(type) {
	case Masked, *Masked:
		return true
	case string:
		return val == MaskSentinel
	}
	return false
}

// cellValue converts a record value to what a workbook cell holds natively.
// Strings, numbers and booleans pass through; everything else becomes text.
func cellValue(v any) (any, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return val, nil
	}
	return textValue(v)
}

// textValue converts a record value to its artifact text form
func textValue(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "", nil
	case string:
		return val, nil
	case Masked, *Masked:
		return MaskSentinel, nil
	case bool:
		return strconv.FormatBool(val), nil
	case int:
		return strconv.Itoa(val), nil
	case int32:
		return strconv.FormatInt(int64(val), 10), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case uint64:
		return strconv.FormatUint(val, 10), nil
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32), nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	case []byte:
		return string(val), nil
	case time.Time:
		return val.UTC().Format(TimeLayout), nil
	case *time.Time:
		if val == nil {
			return "", nil
		}
		return val.UTC().Format(TimeLayout), nil
	case fmt.Stringer:
		return val.String(), nil
	}

	encoded, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("cannot encode %T: %w", v, err)
	}
	return string(encoded), nil
}

// parseText turns artifact text back into a value. Text that looks like a
// JSON object or array is decoded; anything else stays a string.
func parseText(s string) any {
	trimmed := strings.TrimSpace(s)
	if len(trimmed) >= 2 &&
		((trimmed[0] == '{' && trimmed[len(trimmed)-1] == '}') ||
			(trimmed[0] == '[' && trimmed[len(trimmed)-1] == ']')) {
		var decoded any
		if err := json.Unmarshal([]byte(trimmed), &decoded); err == nil {
			return decoded
		}
	}
	return s
}

// parseNumber returns an int64 for integral text, else a float64
func parseNumber(s string) (any, bool) {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f, true
	}
	return nil, false
}

// parseTime accepts the artifact layout and the common RFC 3339 and date-only forms
func parseTime(s string) (time.Time, bool) {
	for _, layout := range []string{TimeLayout, time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func sortedFields(r database.Record) []string {
	fields := make([]string, 0, len(r))
	for k := range r {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	return fields
}

// rowSetFields returns the column layout of a row set: the first record's
// fields, with fields first seen in later records appended in order.
func rowSetFields(rs RowSet) []string {
	fields := rs.Fields()
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		seen[f] = true
	}
	for _, record := range rs.Records[min(1, len(rs.Records)):] {
		for _, f := range sortedFields(record) {
			if !seen[f] {
				seen[f] = true
				fields = append(fields, f)
			}
		}
	}
	return fields
}
