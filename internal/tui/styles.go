package tui

import "github.com/charmbracelet/lipgloss"

var (
	colorRed     = lipgloss.Color("#FF0000")
	colorYellow  = lipgloss.Color("#FFFF00")
	colorCyan    = lipgloss.Color("#00FFFF")
	colorGray    = lipgloss.Color("#666666")
	colorDimGray = lipgloss.Color("#444444")
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorCyan)

	recordingStyle = lipgloss.NewStyle().
			Foreground(colorRed).
			Bold(true)

	idleStyle = lipgloss.NewStyle().
			Foreground(colorGray)

	pendingStyle = lipgloss.NewStyle().
			Foreground(colorYellow)

	timestampStyle = lipgloss.NewStyle().
			Foreground(colorGray)

	controlStyle = lipgloss.NewStyle().
			Foreground(colorGray).
			Italic(true)

	liveStyle = lipgloss.NewStyle().
			Foreground(colorYellow)

	errorStyle = lipgloss.NewStyle().
			Foreground(colorRed).
			Bold(true)

	noticeStyle = lipgloss.NewStyle().
			Foreground(colorCyan)

	footerKeyStyle = lipgloss.NewStyle().
			Foreground(colorYellow).
			Bold(true)

	footerDescStyle = lipgloss.NewStyle().
			Foreground(colorGray)

	dividerStyle = lipgloss.NewStyle().
			Foreground(colorDimGray)
)
