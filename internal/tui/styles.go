package tui

import "github.com/charmbracelet/lipgloss"

const (
	colorAccent  = lipgloss.Color("12")
	colorMuted   = lipgloss.Color("8")
	colorOK      = lipgloss.Color("10")
	colorFailure = lipgloss.Color("9")
	colorWarning = lipgloss.Color("11")
	colorCursor  = lipgloss.Color("14")
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(colorAccent).MarginBottom(1)
	totalsStyle = lipgloss.NewStyle().Foreground(colorMuted).MarginBottom(1)
	panelStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(colorAccent).Padding(0, 1)
	mutedStyle  = lipgloss.NewStyle().Foreground(colorMuted)
	keysStyle   = mutedStyle.MarginTop(1)

	// current row in the entry list and the field being edited
	cursorStyle = lipgloss.NewStyle().Foreground(colorCursor).Bold(true)

	acceptedStyle   = lipgloss.NewStyle().Foreground(colorOK).Bold(true)
	failedStyle     = lipgloss.NewStyle().Foreground(colorFailure).Bold(true)
	unresolvedStyle = lipgloss.NewStyle().Foreground(colorWarning)

	// parse diagnostics, ruled down the left edge
	diagnosticStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, false, false, true).
			BorderForeground(colorFailure).
			PaddingLeft(1)
)
