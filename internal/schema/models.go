package schema

import (
	"fmt"
	"sort"
)

// MaskPolicy says what happens to a sensitive field when records leave the store
type MaskPolicy string

const (
	// MaskDrop removes the field from every exported record
	MaskDrop MaskPolicy = "drop"
	// MaskReplace replaces the value with the mask marker unless secrets are included
	MaskReplace MaskPolicy = "mask"
)

// SensitiveField names a field that needs masking and how
type SensitiveField struct {
	Name   string     `json:"name" yaml:"name"`
	Policy MaskPolicy `json:"policy" yaml:"policy"`
}

// TableDescriptor is the static description of one logical record collection
type TableDescriptor struct {
	Name            string           `json:"name" yaml:"name"`
	Dependencies    []string         `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	MultiTenant     bool             `json:"multi_tenant" yaml:"multi_tenant"`
	SensitiveFields []SensitiveField `json:"sensitive_fields,omitempty" yaml:"sensitive_fields,omitempty"`
}

// Validate validates the TableDescriptor structure
func (d TableDescriptor) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("table name cannot be empty")
	}

	for _, dep := range d.Dependencies {
		if dep == "" {
			return fmt.Errorf("table %s declares an empty dependency", d.Name)
		}
	}

	seen := make(map[string]bool, len(d.SensitiveFields))
	for _, field := range d.SensitiveFields {
		if field.Name == "" {
			return fmt.Errorf("table %s declares a sensitive field without a name", d.Name)
		}
		if seen[field.Name] {
			return fmt.Errorf("table %s declares sensitive field %s twice", d.Name, field.Name)
		}
		seen[field.Name] = true

		switch field.Policy {
		case MaskDrop, MaskReplace:
		default:
			return fmt.Errorf("table %s field %s has unknown mask policy %q", d.Name, field.Name, field.Policy)
		}
	}

	return nil
}

// SensitiveField looks up the masking rule for a field
func (d TableDescriptor) SensitiveField(name string) (SensitiveField, bool) {
	for _, field := range d.SensitiveFields {
		if field.Name == name {
			return field, true
		}
	}
	return SensitiveField{}, false
}

// MaskedFields returns the names of fields masked with MaskReplace
func (d TableDescriptor) MaskedFields() []string {
	var names []string
	for _, field := range d.SensitiveFields {
		if field.Policy == MaskReplace {
			names = append(names, field.Name)
		}
	}
	return names
}

// Registry holds every table the engine knows about, plus the named table groups
// used by export and reset.
type Registry struct {
	tables     map[string]TableDescriptor
	names      []string
	defaultSet []string
	logSet     []string
	modules    map[string][]string
}

// RegistryOption customizes a Registry
type RegistryOption func(*Registry)

// WithDefaultExportSet sets the tables exported when no selection is given
func WithDefaultExportSet(names ...string) RegistryOption {
	return func(r *Registry) {
		r.defaultSet = append([]string(nil), names...)
	}
}

// WithLogTables sets the tables added to an export when logs are requested
func WithLogTables(names ...string) RegistryOption {
	return func(r *Registry) {
		r.logSet = append([]string(nil), names...)
	}
}

// WithModule maps a logical module name to its tables
func WithModule(module string, names ...string) RegistryOption {
	return func(r *Registry) {
		r.modules[module] = append([]string(nil), names...)
	}
}

// NewRegistry builds a registry from descriptors. Table names must be unique,
// and every table named by an option must be registered.
func NewRegistry(tables []TableDescriptor, opts ...RegistryOption) (*Registry, error) {
	r := &Registry{
		tables:  make(map[string]TableDescriptor, len(tables)),
		modules: make(map[string][]string),
	}

	for _, table := range tables {
		if err := table.Validate(); err != nil {
			return nil, err
		}
		if _, exists := r.tables[table.Name]; exists {
			return nil, fmt.Errorf("table %s registered twice", table.Name)
		}
		r.tables[table.Name] = table
		r.names = append(r.names, table.Name)
	}

	for _, opt := range opts {
		opt(r)
	}

	check := func(group string, names []string) error {
		for _, name := range names {
			if _, ok := r.tables[name]; !ok {
				return fmt.Errorf("%s references unknown table %s", group, name)
			}
		}
		return nil
	}
	if err := check("default export set", r.defaultSet); err != nil {
		return nil, err
	}
	if err := check("log set", r.logSet); err != nil {
		return nil, err
	}
	for module, names := range r.modules {
		if err := check("module "+module, names); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// Table returns the descriptor for name
func (r *Registry) Table(name string) (TableDescriptor, bool) {
	d, ok := r.tables[name]
	return d, ok
}

// Has reports whether name is a registered table
func (r *Registry) Has(name string) bool {
	_, ok := r.tables[name]
	return ok
}

// Names returns all registered table names in registration order
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

// DependenciesOf returns the declared dependencies of a table. Unknown tables have none.
func (r *Registry) DependenciesOf(name string) []string {
	return r.tables[name].Dependencies
}

// DefaultExportSet returns the tables exported when no explicit selection is made
func (r *Registry) DefaultExportSet() []string {
	return append([]string(nil), r.defaultSet...)
}

// LogTables returns the tables that hold audit and access logs
func (r *Registry) LogTables() []string {
	return append([]string(nil), r.logSet...)
}

// ExportSet returns the default export set, extended with the log tables when includeLogs is set
func (r *Registry) ExportSet(includeLogs bool) []string {
	names := r.DefaultExportSet()
	if includeLogs {
		for _, name := range r.logSet {
			if !contains(names, name) {
				names = append(names, name)
			}
		}
	}
	return names
}

// DeletableTables returns every multi-tenant table, in registration order
func (r *Registry) DeletableTables() []string {
	var names []string
	for _, name := range r.names {
		if r.tables[name].MultiTenant {
			names = append(names, name)
		}
	}
	return names
}

// Modules returns the known module names, sorted
func (r *Registry) Modules() []string {
	modules := make([]string, 0, len(r.modules))
	for module := range r.modules {
		modules = append(modules, module)
	}
	sort.Strings(modules)
	return modules
}

// ModuleTables expands module names into their tables, keeping first-seen order
// and dropping duplicates.
func (r *Registry) ModuleTables(modules ...string) ([]string, error) {
	var names []string
	for _, module := range modules {
		tables, ok := r.modules[module]
		if !ok {
			return nil, fmt.Errorf("unknown module %q", module)
		}
		for _, name := range tables {
			if !contains(names, name) {
				names = append(names, name)
			}
		}
	}
	return names, nil
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
