package display

import (
	"os"

	"github.com/mattn/go-isatty"
)

// Icon represents a visual icon with Unicode and ASCII fallbacks
type Icon struct {
	Unicode string
	ASCII   string
	Color   Color
}

var icons = map[string]Icon{
	"success":  {Unicode: "✓", ASCII: "[OK]", Color: ColorGreen},
	"error":    {Unicode: "✗", ASCII: "[ERROR]", Color: ColorRed},
	"warning":  {Unicode: "⚠", ASCII: "[WARN]", Color: ColorYellow},
	"info":     {Unicode: "ℹ", ASCII: "[INFO]", Color: ColorCyan},
	"tenant":   {Unicode: "◆", ASCII: "*", Color: ColorBlue},
	"table":    {Unicode: "▤", ASCII: "#", Color: ColorBlue},
	"artifact": {Unicode: "▣", ASCII: "@", Color: ColorMagenta},
	"export":   {Unicode: "↑", ASCII: ">", Color: ColorGreen},
	"import":   {Unicode: "↓", ASCII: "<", Color: ColorBlue},
	"reset":    {Unicode: "⟲", ASCII: "!", Color: ColorRed},
}

// IconSystem renders icons with ASCII fallbacks
type IconSystem struct {
	unicode bool
}

// NewIconSystem creates an icon system; enabled false always renders ASCII
func NewIconSystem(enabled bool) *IconSystem {
	return &IconSystem{unicode: enabled && detectUnicodeSupport()}
}

func detectUnicodeSupport() bool {
	if os.Getenv("FORCE_UNICODE") != "" {
		return true
	}
	if os.Getenv("NO_UNICODE") != "" {
		return false
	}
	if os.Getenv("LANG") == "C" || os.Getenv("LC_ALL") == "C" {
		return false
	}
	if term := os.Getenv("TERM"); term == "dumb" || term == "vt100" {
		return false
	}
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

// RenderIcon returns the icon text, or "" for an unknown name
func (is *IconSystem) RenderIcon(name string) string {
	icon, ok := icons[name]
	if !ok {
		return ""
	}
	if is.unicode {
		return icon.Unicode
	}
	return icon.ASCII
}

// RenderIconWithColor returns the icon in its own color
func (is *IconSystem) RenderIconWithColor(name string, cs ColorSystem) string {
	text := is.RenderIcon(name)
	if text == "" || cs == nil {
		return text
	}
	return cs.Colorize(text, icons[name].Color)
}

// IsUnicodeSupported reports whether Unicode icons are rendered
func (is *IconSystem) IsUnicodeSupported() bool {
	return is.unicode
}
