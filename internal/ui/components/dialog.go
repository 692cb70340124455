package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

const dialogWidth = 44

var (
	dialogStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#7f57b4")).
			Padding(1, 2).
			Width(dialogWidth)

	dialogFieldStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#436b77"))

	dialogPlaceholderStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#4b4f66")).
				Italic(true)
)

func dialog(title string, body []string, hint string) string {
	parts := []string{boxHeaderStyle.Render(SanitizeOneLine(title))}
	parts = append(parts, body...)
	parts = append(parts, boxMutedStyle.Render(hint))
	return dialogStyle.Render(strings.Join(parts, "\n\n"))
}

// ConfirmDialog renders a yes/no confirmation.
func ConfirmDialog(title, message string) string {
	return dialog(title, []string{boxMutedStyle.Render(SanitizeText(message))}, "y: confirm | n: cancel")
}

// InputDialog renders a single-line text prompt. The placeholder shows
// while the input is empty.
func InputDialog(title, input, placeholder string) string {
	field := dialogFieldStyle.Render("> " + SanitizeOneLine(input) + "█")
	if input == "" && placeholder != "" {
		field = dialogFieldStyle.Render("> █") + " " + dialogPlaceholderStyle.Render(SanitizeOneLine(placeholder))
	}
	return dialog(title, []string{field}, "enter: submit | esc: cancel")
}

// HelpDialog renders a two-column list of key bindings.
func HelpDialog(title string, bindings [][2]string) string {
	keyWidth := 0
	for _, b := range bindings {
		keyWidth = max(keyWidth, lipgloss.Width(b[0]))
	}
	lines := make([]string, 0, len(bindings))
	for _, b := range bindings {
		lines = append(lines, hintKeyStyle.Render(padRight(b[0], keyWidth))+"  "+hintDescStyle.Render(b[1]))
	}
	return dialog(title, []string{strings.Join(lines, "\n")}, "esc: close")
}
