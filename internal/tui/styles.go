package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/leonardotrapani/livescribe/internal/session"
)

var (
	StyleHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary).
			MarginBottom(1)

	StyleLabel = lipgloss.NewStyle().
			Foreground(ColorText).
			Bold(true)

	StyleSuccess = lipgloss.NewStyle().
			Foreground(ColorSuccess)

	StyleError = lipgloss.NewStyle().
			Foreground(ColorError).
			Bold(true)

	StyleWarning = lipgloss.NewStyle().
			Foreground(ColorWarning)

	StyleMuted = lipgloss.NewStyle().
			Foreground(ColorMuted)

	// hints and placeholders
	StyleSubtle = lipgloss.NewStyle().
			Foreground(ColorSubtle).
			Italic(true)

	// Transcript box
	StyleBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorSubtle).
			Padding(1, 2)

	StyleFocusedBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorListen).
			Padding(1, 2)

	styleBadge = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1).
			Foreground(ColorBg)
)

// statusColors backs the status badge.
var statusColors = map[session.Status]lipgloss.Color{
	session.Idle:      ColorMuted,
	session.Starting:  ColorWarning,
	session.Listening: ColorListen,
	session.Stopping:  ColorSecondary,
	session.Failed:    ColorError,
	session.Completed: ColorSuccess,
}

// StatusBadge renders st as a coloured upper-case label.
func StatusBadge(st session.Status) string {
	c, ok := statusColors[st]
	if !ok {
		c = ColorMuted
	}
	return styleBadge.Background(c).Render(strings.ToUpper(st.String()))
}

const logoASCII = `
 _ _                              _ _
| (_)_   _____  ___  ___ _ __ (_) |__   ___
| | \ \ / / _ \/ __|/ __| '__|| | '_ \ / _ \
| | |\ V /  __/\__ \ (__| |   | | |_) |  __/
|_|_| \_/ \___||___/\___|_|   |_|_.__/ \___|`

// Logo returns the livescribe ASCII art
func Logo() string {
	return StyleHeader.Render(strings.Trim(logoASCII, "\n"))
}
