package display

import (
	"io"
)

// DisplayService renders everything the CLI shows: status lines, sections,
// tables, structured reports, progress and confirmations.
type DisplayService interface {
	PrintHeader(title string)
	PrintSection(title string, content interface{})
	PrintTable(headers []string, rows [][]string)
	// PrintValue writes value as JSON or YAML in structured mode and as a
	// section otherwise
	PrintValue(title string, value interface{})

	StartSpinner(message string) SpinnerHandle
	UpdateSpinner(handle SpinnerHandle, message string)
	StopSpinner(handle SpinnerHandle, finalMessage string)
	NewProgressBar(total int, message string) *ProgressBar

	Success(message string)
	Warning(message string)
	Error(message string)
	Info(message string)

	RenderIcon(name string) string
	NewConfirmation() *Confirmation

	SetOutput(writer io.Writer)
	GetConfig() *DisplayConfig
}

// OutputFormat is the --output value
type OutputFormat string

const (
	FormatTable OutputFormat = "table"
	FormatJSON  OutputFormat = "json"
	FormatYAML  OutputFormat = "yaml"
)

// IsStructured reports whether the format is machine readable
func (f OutputFormat) IsStructured() bool {
	switch f {
	case FormatJSON, FormatYAML:
		return true
	}
	return false
}

// Color is a theme slot value, mapped to an ANSI attribute by ColorManager
type Color int

const (
	ColorReset Color = iota
	ColorRed
	ColorGreen
	ColorYellow
	ColorBlue
	ColorMagenta
	ColorCyan
	ColorWhite
	ColorBrightRed
	ColorBrightGreen
	ColorBrightYellow
	ColorBrightBlue
	ColorBrightCyan
	ColorBrightWhite
)

// ColorTheme assigns a color to each kind of message
type ColorTheme struct {
	Primary, Success, Warning, Error, Info, Muted, Highlight Color
}

// SpinnerHandle identifies a running spinner
type SpinnerHandle interface {
	ID() string
	IsActive() bool
}

// SpinnerStyle is a frame sequence and the delay between frames in ms
type SpinnerStyle struct {
	Frames []string
	Delay  int
}

var (
	dotsSpinner = SpinnerStyle{Frames: []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}, Delay: 80}
	lineSpinner = SpinnerStyle{Frames: []string{"-", "\\", "|", "/"}, Delay: 100}
)
