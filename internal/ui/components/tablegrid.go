package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Column defines one column of a Grid. Width is the content width without
// separators; the last column stretches to fill the grid.
type Column struct {
	Header string
	Width  int
	Align  lipgloss.Position
}

const gridIndent = 1

var (
	gridLineStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#273540"))

	gridActiveStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#d7d9da")).
			Background(lipgloss.Color("#1f2530")).
			Bold(true)

	gridMarkStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#d1606b")).
			Bold(true)
)

// Grid renders a header, a rule and rows, each exactly width columns
// wide. The row at active is highlighted; pass -1 for none. "[x]" cells
// are drawn as selection marks.
func Grid(columns []Column, rows [][]string, width, active int) string {
	if width <= 0 {
		return ""
	}
	if len(columns) == 0 {
		return padRight("", width)
	}
	sep := lipgloss.RoundedBorder().Left
	cols := fitColumns(columns, width)

	headers := make([]string, len(cols))
	for i, c := range cols {
		headers[i] = c.Header
	}

	out := make([]string, 0, len(rows)+2)
	out = append(out, gridRow(cols, headers, sep, width, boxLabelStyle, false))
	out = append(out, gridRule(cols, width))
	for i, row := range rows {
		style := lipgloss.NewStyle()
		if i == active {
			style = gridActiveStyle
		}
		out = append(out, gridRow(cols, row, sep, width, style, true))
	}
	return strings.Join(out, "\n")
}

func fitColumns(columns []Column, width int) []Column {
	cols := make([]Column, len(columns))
	copy(cols, columns)

	used := gridIndent + len(cols) - 1
	for i := range cols {
		cols[i].Width = max(cols[i].Width, 1)
		used += cols[i].Width
	}
	last := len(cols) - 1
	cols[last].Width = max(cols[last].Width+width-used, 1)
	return cols
}

func gridRow(cols []Column, cells []string, sep string, width int, style lipgloss.Style, marks bool) string {
	var b strings.Builder
	b.WriteString(strings.Repeat(" ", gridIndent))
	for i, col := range cols {
		if i > 0 {
			b.WriteString(gridLineStyle.Inline(true).Render(sep))
		}
		text := ""
		if i < len(cells) {
			text = cells[i]
		}
		cell := style.Inline(true).Render(gridCell(text, col.Width, col.Align))
		if marks {
			cell = strings.ReplaceAll(cell, "[x]", gridMarkStyle.Render("[x]"))
		}
		b.WriteString(cell)
	}
	return padRight(b.String(), width)
}

func gridRule(cols []Column, width int) string {
	border := lipgloss.RoundedBorder()
	parts := make([]string, len(cols))
	for i, col := range cols {
		parts[i] = strings.Repeat(border.Top, col.Width)
	}
	line := strings.Repeat(" ", gridIndent) + strings.Join(parts, border.Middle)
	return gridLineStyle.Inline(true).Render(padRight(line, width))
}

func gridCell(text string, width int, align lipgloss.Position) string {
	clamped := ClampTextWidth(text, width)
	pad := width - lipgloss.Width(clamped)
	if pad <= 0 {
		return clamped
	}
	switch align {
	case lipgloss.Right:
		return strings.Repeat(" ", pad) + clamped
	case lipgloss.Center:
		left := pad / 2
		return strings.Repeat(" ", left) + clamped + strings.Repeat(" ", pad-left)
	default:
		return clamped + strings.Repeat(" ", pad)
	}
}
