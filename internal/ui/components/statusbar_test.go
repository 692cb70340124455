package components

import (
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
)

func TestHintIncludesKeyAndDesc(t *testing.T) {
	out := SanitizeText(Hint("space", "Select"))
	assert.Contains(t, out, "Select")
	assert.Contains(t, out, "space")
}

func TestStatusBarRendersHints(t *testing.T) {
	out := SanitizeText(StatusBar([]string{Hint("q", "Quit"), Hint("n", "New")}, 0))
	assert.Contains(t, out, "Quit")
	assert.Contains(t, out, "New")
	assert.Empty(t, StatusBar(nil, 80))
}

func TestWrapSegmentsWrapsWhenNarrow(t *testing.T) {
	rows := wrapSegments([]string{"123456", "abcdef", "ghijkl"}, 10)
	assert.Len(t, rows, 3)
	for _, row := range rows {
		assert.LessOrEqual(t, lipgloss.Width(row), 10)
	}
	assert.Len(t, wrapSegments([]string{"ab", "cd"}, 10), 1)
}
