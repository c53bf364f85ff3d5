package display

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
)

// ColorSystem handles color application and terminal detection
type ColorSystem interface {
	Colorize(text string, color Color) string
	Sprintf(color Color, format string, args ...interface{}) string
	IsColorSupported() bool
}

type colorSystem struct {
	supported bool
	colorMap  map[Color]*color.Color
}

var colorAttributes = map[Color]color.Attribute{
	ColorReset:        color.Reset,
	ColorRed:          color.FgRed,
	ColorGreen:        color.FgGreen,
	ColorYellow:       color.FgYellow,
	ColorBlue:         color.FgBlue,
	ColorMagenta:      color.FgMagenta,
	ColorCyan:         color.FgCyan,
	ColorWhite:        color.FgWhite,
	ColorBrightRed:    color.FgHiRed,
	ColorBrightGreen:  color.FgHiGreen,
	ColorBrightYellow: color.FgHiYellow,
	ColorBrightBlue:   color.FgHiBlue,
	ColorBrightCyan:   color.FgHiCyan,
	ColorBrightWhite:  color.FgHiWhite,
}

// NewColorSystem creates a color system. Colors are used only when enabled
// and the terminal can show them.
func NewColorSystem(enabled bool) ColorSystem {
	cs := &colorSystem{
		supported: enabled && detectColorSupport(),
		colorMap:  make(map[Color]*color.Color, len(colorAttributes)),
	}
	for clr, attr := range colorAttributes {
		c := color.New(attr)
		if cs.supported {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
		cs.colorMap[clr] = c
	}
	return cs
}

func detectColorSupport() bool {
	if os.Getenv("FORCE_COLOR") != "" {
		return true
	}
	if termenv.EnvNoColor() || os.Getenv("TERM") == "dumb" {
		return false
	}
	if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		return false
	}
	return termenv.EnvColorProfile() != termenv.Ascii
}

// Colorize applies color to text if color is supported
func (cs *colorSystem) Colorize(text string, clr Color) string {
	if !cs.supported {
		return text
	}
	if c, ok := cs.colorMap[clr]; ok {
		return c.Sprint(text)
	}
	return text
}

func (cs *colorSystem) Sprintf(clr Color, format string, args ...interface{}) string {
	return cs.Colorize(fmt.Sprintf(format, args...), clr)
}

func (cs *colorSystem) IsColorSupported() bool {
	return cs.supported
}

// themes in ColorTheme field order: primary, success, warning, error, info,
// muted, highlight
var themes = map[ThemeName]ColorTheme{
	ThemeDark:         {ColorBrightBlue, ColorBrightGreen, ColorBrightYellow, ColorBrightRed, ColorCyan, ColorWhite, ColorBrightCyan},
	ThemeLight:        {ColorBlue, ColorGreen, ColorYellow, ColorRed, ColorCyan, ColorMagenta, ColorBlue},
	ThemeHighContrast: {ColorBrightBlue, ColorBrightGreen, ColorBrightYellow, ColorBrightRed, ColorBrightCyan, ColorWhite, ColorBrightWhite},
	ThemePlain:        {},
}

// DarkColorTheme is the default theme
func DarkColorTheme() ColorTheme { return themes[ThemeDark] }

func LightColorTheme() ColorTheme { return themes[ThemeLight] }

// GetThemeByName returns a color theme by name, dark when unknown
func GetThemeByName(name string) ColorTheme {
	if theme, ok := themes[ThemeName(name)]; ok {
		return theme
	}
	return DarkColorTheme()
}
