package display

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// ErrNotInteractive is returned when a confirmation is needed but no
// terminal is attached
var ErrNotInteractive = errors.New("confirmation required but input is not interactive; pass --yes to proceed")

// Confirmation asks the user to approve an operation. Destructive
// confirmations require the user to type a phrase, usually the tenant ID.
type Confirmation struct {
	title       string
	details     []string
	warning     string
	phrase      string
	interactive bool

	colors ColorSystem
	icons  *IconSystem
	theme  ColorTheme
	writer io.Writer
	reader *bufio.Reader
}

func newConfirmation(colors ColorSystem, icons *IconSystem, theme ColorTheme, writer io.Writer, reader io.Reader, interactive bool) *Confirmation {
	return &Confirmation{
		colors:      colors,
		icons:       icons,
		theme:       theme,
		writer:      writer,
		reader:      bufio.NewReader(reader),
		interactive: interactive,
	}
}

// Title sets the question
func (c *Confirmation) Title(title string) *Confirmation {
	c.title = title
	return c
}

// Details adds lines shown before the prompt
func (c *Confirmation) Details(details ...string) *Confirmation {
	c.details = append(c.details, details...)
	return c
}

// Warning sets a highlighted warning line
func (c *Confirmation) Warning(message string) *Confirmation {
	c.warning = message
	return c
}

// RequirePhrase makes the user type phrase instead of answering y/n
func (c *Confirmation) RequirePhrase(phrase string) *Confirmation {
	c.phrase = phrase
	return c
}

// Ask shows the dialog and reads one answer. Anything other than an
// explicit yes, or the exact phrase, declines.
func (c *Confirmation) Ask() (bool, error) {
	if !c.interactive {
		return false, ErrNotInteractive
	}

	if c.title != "" {
		fmt.Fprintln(c.writer, c.colors.Colorize(c.title, c.theme.Highlight))
	}
	for _, detail := range c.details {
		fmt.Fprintf(c.writer, "  %s\n", detail)
	}
	if c.warning != "" {
		line := strings.TrimSpace(c.icons.RenderIcon("warning") + " " + c.warning)
		fmt.Fprintln(c.writer, c.colors.Colorize(line, c.theme.Warning))
	}

	var prompt string
	if c.phrase != "" {
		prompt = fmt.Sprintf("Type %q to confirm: ", c.phrase)
	} else {
		prompt = "Proceed? [y/N]: "
	}
	fmt.Fprint(c.writer, c.colors.Colorize(prompt, c.theme.Primary))

	input, err := c.reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("failed to read confirmation: %w", err)
	}
	input = strings.TrimSpace(input)

	if c.phrase != "" {
		return input == c.phrase, nil
	}
	switch strings.ToLower(input) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// stdinIsTerminal reports whether prompts can be answered
func stdinIsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}
