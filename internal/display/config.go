package display

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// DisplayConfig is built from the global CLI flags. Writer and Reader
// default to the process streams; commands point them at cobra's.
type DisplayConfig struct {
	ColorEnabled bool   `mapstructure:"color_enabled" yaml:"color_enabled"`
	Theme        string `mapstructure:"theme" yaml:"theme"`
	OutputFormat string `mapstructure:"output_format" yaml:"output_format"`
	UseIcons     bool   `mapstructure:"use_icons" yaml:"use_icons"`
	ShowProgress bool   `mapstructure:"show_progress" yaml:"show_progress"`

	InteractiveMode bool `mapstructure:"interactive" yaml:"interactive"`
	QuietMode       bool `mapstructure:"quiet" yaml:"quiet"`

	Writer io.Writer `mapstructure:"-" yaml:"-"`
	Reader io.Reader `mapstructure:"-" yaml:"-"`
}

// ThemeName represents available color themes
type ThemeName string

const (
	ThemeDark         ThemeName = "dark"
	ThemeLight        ThemeName = "light"
	ThemeHighContrast ThemeName = "high-contrast"
	ThemePlain        ThemeName = "plain"
)

// DefaultDisplayConfig is colored, iconized table output with progress and
// prompts
func DefaultDisplayConfig() *DisplayConfig {
	return &DisplayConfig{
		ColorEnabled:    true,
		Theme:           string(ThemeDark),
		OutputFormat:    string(FormatTable),
		UseIcons:        true,
		ShowProgress:    true,
		InteractiveMode: true,
		Writer:          os.Stdout,
		Reader:          os.Stdin,
	}
}

// Validate rejects unknown themes and output formats
func (dc *DisplayConfig) Validate() error {
	var problems []string
	if _, ok := themes[ThemeName(dc.Theme)]; !ok {
		problems = append(problems, fmt.Sprintf("invalid theme '%s'", dc.Theme))
	}
	switch dc.Format() {
	case FormatTable, FormatJSON, FormatYAML:
	default:
		problems = append(problems, fmt.Sprintf("invalid output format '%s', must be one of: table, json, yaml", dc.OutputFormat))
	}
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("display configuration validation failed: %s", strings.Join(problems, "; "))
}

// SetDefaults fills the theme, format and streams left empty
func (dc *DisplayConfig) SetDefaults() {
	if dc.Theme == "" {
		dc.Theme = string(ThemeDark)
	}
	dc.OutputFormat = strings.ToLower(dc.OutputFormat)
	if dc.OutputFormat == "" {
		dc.OutputFormat = string(FormatTable)
	}
	if dc.Writer == nil {
		dc.Writer = os.Stdout
	}
	if dc.Reader == nil {
		dc.Reader = os.Stdin
	}
}

// Format returns the configured output format
func (dc *DisplayConfig) Format() OutputFormat {
	return OutputFormat(dc.OutputFormat)
}

func (dc *DisplayConfig) GetColorTheme() ColorTheme {
	return GetThemeByName(dc.Theme)
}

// IsColorEnabled is false in quiet mode regardless of the flag
func (dc *DisplayConfig) IsColorEnabled() bool {
	return dc.ColorEnabled && !dc.QuietMode
}

// IsProgressEnabled returns true if progress indicators should be shown.
// Structured output never carries progress noise.
func (dc *DisplayConfig) IsProgressEnabled() bool {
	return dc.ShowProgress && !dc.QuietMode && !dc.Format().IsStructured()
}

func (dc *DisplayConfig) IsInteractiveEnabled() bool {
	return dc.InteractiveMode && !dc.QuietMode
}
