package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

const bannerArt = `
████████ ██████   ██████  ███    ███ ███████
   ██    ██   ██ ██    ██ ████  ████ ██
   ██    ██   ██ ██    ██ ██ ████ ██ █████
   ██    ██   ██ ██    ██ ██  ██  ██ ██
   ██    ██████   ██████  ██      ██ ███████`

const bannerSubtitle = "Thunderdome Group Organizer"

// RenderBanner returns the styled banner with its subtitle centered under
// the art.
func RenderBanner() string {
	lines := strings.Split(strings.TrimPrefix(bannerArt, "\n"), "\n")

	blockWidth := lipgloss.Width(bannerSubtitle)
	for _, line := range lines {
		blockWidth = max(blockWidth, lipgloss.Width(line))
	}

	var b strings.Builder
	b.WriteString("\n")
	for _, line := range lines {
		b.WriteString(BannerStyle.Render(line))
		b.WriteString("\n")
	}
	center := lipgloss.NewStyle().Width(blockWidth).Align(lipgloss.Center)
	b.WriteString("\n")
	b.WriteString(center.Foreground(ColorMuted).Render(bannerSubtitle))
	b.WriteString("\n")
	b.WriteString(center.Foreground(ColorBorder).Render(strings.Repeat("─", lipgloss.Width(bannerSubtitle))))
	b.WriteString("\n")
	return b.String()
}

// renderCompactBanner is used when the terminal is too short for the art.
func renderCompactBanner() string {
	return BannerStyle.Render("TDOME") + MutedStyle.Render("  "+bannerSubtitle)
}
