package display

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// displayService implements the DisplayService interface
type displayService struct {
	config   *DisplayConfig
	colors   ColorSystem
	icons    *IconSystem
	theme    ColorTheme
	writer   io.Writer
	spinners *spinnerManager
}

// NewDisplayService creates a new display service with the given configuration
func NewDisplayService(config *DisplayConfig) DisplayService {
	if config == nil {
		config = DefaultDisplayConfig()
	}
	config.SetDefaults()

	return &displayService{
		config:   config,
		colors:   NewColorSystem(config.IsColorEnabled() && !config.Format().IsStructured()),
		icons:    NewIconSystem(config.UseIcons),
		theme:    config.GetColorTheme(),
		writer:   config.Writer,
		spinners: newSpinnerManager(),
	}
}

// PrintHeader prints a formatted header
func (ds *displayService) PrintHeader(title string) {
	if ds.config.QuietMode || ds.config.Format().IsStructured() {
		return
	}
	separator := strings.Repeat("=", len(title)+4)
	header := fmt.Sprintf("\n%s\n  %s  \n%s\n", separator, title, separator)
	fmt.Fprint(ds.writer, ds.colors.Colorize(header, ds.theme.Primary))
}

// PrintSection prints a titled block of content
func (ds *displayService) PrintSection(title string, content interface{}) {
	if ds.config.Format().IsStructured() {
		ds.write(map[string]interface{}{"title": title, "content": content})
		return
	}
	if ds.config.QuietMode {
		return
	}
	fmt.Fprint(ds.writer, ds.colors.Colorize(fmt.Sprintf("\n--- %s ---\n", title), ds.theme.Highlight))
	switch v := content.(type) {
	case []string:
		for _, line := range v {
			fmt.Fprintf(ds.writer, "  %s\n", line)
		}
	case map[string]string:
		for _, key := range sortedKeys(v) {
			fmt.Fprintf(ds.writer, "  %-20s %s\n", key+":", v[key])
		}
	default:
		fmt.Fprintf(ds.writer, "%v\n", content)
	}
}

// PrintTable prints a table; structured formats get a list of objects
func (ds *displayService) PrintTable(headers []string, rows [][]string) {
	if ds.config.Format().IsStructured() {
		if err := NewOutputWriter(ds.config.Format(), ds.writer).WriteTable(headers, rows); err != nil {
			fmt.Fprintf(ds.writer, "Error formatting table: %v\n", err)
		}
		return
	}
	if ds.config.QuietMode {
		return
	}
	formatter := NewTableFormatter(ds.colors, ds.theme)
	formatter.SetHeaders(headers)
	for _, row := range rows {
		formatter.AddRow(row)
	}
	formatter.RenderTo(ds.writer)
}

// PrintValue writes value as JSON or YAML, or as a section in table mode
func (ds *displayService) PrintValue(title string, value interface{}) {
	if ds.config.Format().IsStructured() {
		ds.write(value)
		return
	}
	ds.PrintSection(title, value)
}

func (ds *displayService) write(value interface{}) {
	if err := NewOutputWriter(ds.config.Format(), ds.writer).Write(value); err != nil {
		fmt.Fprintf(ds.writer, "Error formatting output: %v\n", err)
	}
}

func (ds *displayService) Success(message string) {
	ds.printStatusMessage("success", message, ds.theme.Success)
}

func (ds *displayService) Warning(message string) {
	ds.printStatusMessage("warning", message, ds.theme.Warning)
}

// Error is printed even in quiet mode
func (ds *displayService) Error(message string) {
	ds.printStatusMessage("error", message, ds.theme.Error)
}

func (ds *displayService) Info(message string) {
	ds.printStatusMessage("info", message, ds.theme.Info)
}

func (ds *displayService) printStatusMessage(level, message string, color Color) {
	if ds.config.QuietMode && level != "error" {
		return
	}
	// keep structured stdout parseable
	if ds.config.Format().IsStructured() {
		fmt.Fprintf(os.Stderr, "[%s] %s\n", level, message)
		return
	}
	prefix := ds.icons.RenderIcon(level)
	if prefix == "" {
		prefix = "[" + level + "]"
	}
	fmt.Fprintf(ds.writer, "%s %s\n", ds.colors.Colorize(prefix, color), message)
}

func (ds *displayService) RenderIcon(name string) string {
	return ds.icons.RenderIconWithColor(name, ds.colors)
}

// StartSpinner starts a new spinner with the given message
func (ds *displayService) StartSpinner(message string) SpinnerHandle {
	if !ds.config.IsProgressEnabled() {
		return noOpSpinner{}
	}
	style := lineSpinner
	if ds.icons.IsUnicodeSupported() {
		style = dotsSpinner
	}
	s := ds.spinners.create(message, style, ds.writer, ds.colors, ds.theme)
	s.start()
	return s
}

func (ds *displayService) UpdateSpinner(handle SpinnerHandle, message string) {
	if s := ds.spinners.get(handle); s != nil {
		s.updateMessage(message)
	}
}

// StopSpinner stops a spinner and optionally displays a final message
func (ds *displayService) StopSpinner(handle SpinnerHandle, finalMessage string) {
	s := ds.spinners.get(handle)
	if s == nil {
		if finalMessage != "" && !ds.config.QuietMode && !ds.config.Format().IsStructured() {
			fmt.Fprintln(ds.writer, finalMessage)
		}
		return
	}
	s.stop(finalMessage)
	ds.spinners.remove(handle)
}

// NewProgressBar returns a bar that writes only when progress is enabled
func (ds *displayService) NewProgressBar(total int, message string) *ProgressBar {
	var writer io.Writer
	if ds.config.IsProgressEnabled() {
		writer = ds.writer
	}
	return NewProgressBar(total, message, writer, ds.colors, ds.theme)
}

// NewConfirmation creates a dialog reading from the configured input. It is
// interactive only when prompts are enabled and stdin is a terminal, or
// when a custom reader was configured.
func (ds *displayService) NewConfirmation() *Confirmation {
	interactive := ds.config.IsInteractiveEnabled() && (ds.config.Reader != os.Stdin || stdinIsTerminal())
	return newConfirmation(ds.colors, ds.icons, ds.theme, ds.writer, ds.config.Reader, interactive)
}

func (ds *displayService) SetOutput(writer io.Writer) {
	ds.writer = writer
	ds.config.Writer = writer
}

func (ds *displayService) GetConfig() *DisplayConfig {
	return ds.config
}
