package backup

import (
	"strings"

	"tenant-backup/internal/database"
	"tenant-backup/internal/schema"
)

// Import-side replacement values for credential holders
const (
	UnusablePassword      = "!reset-required!"
	PasswordResetRequired = "PASSWORD_RESET_REQUIRED"
)

// maskRecord returns a copy of r with the sensitive fields of desc handled:
// dropped fields are removed, masked fields replaced by the marker unless
// includeSecrets is set.
func maskRecord(desc schema.TableDescriptor, r database.Record, includeSecrets bool) database.Record {
	if len(desc.SensitiveFields) == 0 {
		return r
	}

	out := r.Clone()
	for _, field := range desc.SensitiveFields {
		if _, ok := out[field.Name]; !ok {
			continue
		}
		switch field.Policy {
		case schema.MaskDrop:
			delete(out, field.Name)
		case schema.MaskReplace:
			if !includeSecrets && out[field.Name] != nil {
				out[field.Name] = Masked{}
			}
		}
	}
	return out
}

// unmaskRecord clears masked values of desc's masked fields in place
func unmaskRecord(desc schema.TableDescriptor, r database.Record) {
	for _, name := range desc.MaskedFields() {
		if v, ok := r[name]; ok && IsMasked(v) {
			r[name] = ""
		}
	}
}

// isDateField reports whether a field name denotes a date: createdAt,
// dueDate, date and the like.
func isDateField(name string) bool {
	return name == "date" ||
		(len(name) > 2 && strings.HasSuffix(name, "At")) ||
		(len(name) > 4 && strings.HasSuffix(name, "Date"))
}

// parseDateFields converts ISO text in date fields back to time.Time in place
func parseDateFields(r database.Record) {
	for name, v := range r {
		text, ok := v.(string)
		if !ok || text == "" || !isDateField(name) {
			continue
		}
		if t, ok := parseTime(text); ok {
			r[name] = t
		}
	}
}
