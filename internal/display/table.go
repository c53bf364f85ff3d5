package display

import (
	"bytes"
	"io"
	"os"

	"github.com/olekukonko/tablewriter"
	"golang.org/x/term"
)

// Alignment represents column alignment options
type Alignment int

const (
	AlignLeft Alignment = iota
	AlignCenter
	AlignRight
)

// TableStyle selects how much chrome a table gets
type TableStyle string

const (
	TableStyleBordered TableStyle = "bordered"
	TableStyleCompact  TableStyle = "compact"
)

// TableFormatter builds a table and renders it through tablewriter
type TableFormatter struct {
	headers    []string
	rows       [][]string
	footer     []string
	alignments map[int]Alignment
	style      TableStyle
	colors     ColorSystem
	theme      ColorTheme
}

// NewTableFormatter creates a bordered table formatter
func NewTableFormatter(colors ColorSystem, theme ColorTheme) *TableFormatter {
	return &TableFormatter{
		alignments: make(map[int]Alignment),
		style:      TableStyleBordered,
		colors:     colors,
		theme:      theme,
	}
}

func (tf *TableFormatter) SetHeaders(headers []string) { tf.headers = headers }

func (tf *TableFormatter) AddRow(row []string) { tf.rows = append(tf.rows, row) }

// SetFooter sets a summary line, typically totals
func (tf *TableFormatter) SetFooter(footer []string) { tf.footer = footer }

func (tf *TableFormatter) SetColumnAlignment(column int, alignment Alignment) {
	tf.alignments[column] = alignment
}

func (tf *TableFormatter) SetStyle(style TableStyle) { tf.style = style }

// Render returns the formatted table, or "" when it has no content
func (tf *TableFormatter) Render() string {
	if len(tf.headers) == 0 && len(tf.rows) == 0 {
		return ""
	}
	var buf bytes.Buffer
	tf.RenderTo(&buf)
	return buf.String()
}

// RenderTo renders the table to writer
func (tf *TableFormatter) RenderTo(writer io.Writer) {
	if len(tf.headers) == 0 && len(tf.rows) == 0 {
		return
	}

	table := tablewriter.NewWriter(writer)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	columns := tf.columnCount()
	if width := terminalWidth(); width > 0 && columns > 0 {
		table.SetColWidth(width / columns)
	}

	if tf.style == TableStyleCompact {
		table.SetBorder(false)
		table.SetHeaderLine(false)
		table.SetColumnSeparator("")
		table.SetCenterSeparator("")
		table.SetRowSeparator("")
		table.SetTablePadding("  ")
		table.SetNoWhiteSpace(true)
	}

	if len(tf.headers) > 0 {
		headers := tf.headers
		if tf.colors != nil && tf.colors.IsColorSupported() {
			headers = make([]string, len(tf.headers))
			for i, h := range tf.headers {
				headers[i] = tf.colors.Colorize(h, tf.theme.Primary)
			}
		}
		table.SetHeader(headers)
	}

	aligns := make([]int, columns)
	for i := range aligns {
		switch tf.alignments[i] {
		case AlignRight:
			aligns[i] = tablewriter.ALIGN_RIGHT
		case AlignCenter:
			aligns[i] = tablewriter.ALIGN_CENTER
		default:
			aligns[i] = tablewriter.ALIGN_LEFT
		}
	}
	table.SetColumnAlignment(aligns)

	table.AppendBulk(tf.rows)
	if len(tf.footer) > 0 {
		table.SetFooter(tf.footer)
		table.SetFooterAlignment(tablewriter.ALIGN_LEFT)
	}
	table.Render()
}

// columnCount returns the width of the widest row
func (tf *TableFormatter) columnCount() int {
	n := len(tf.headers)
	for _, row := range tf.rows {
		if len(row) > n {
			n = len(row)
		}
	}
	return n
}

// terminalWidth returns the stdout width, or 0 when it is not a terminal
func terminalWidth() int {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return 0
	}
	width, _, err := term.GetSize(fd)
	if err != nil {
		return 0
	}
	return width
}
