package tui

import "github.com/charmbracelet/lipgloss"

var (
	colorAccent = lipgloss.Color("33")
	colorMuted  = lipgloss.Color("245")
	colorError  = lipgloss.Color("196")

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("231")).
			Background(colorAccent).
			Padding(0, 1)

	userLabelStyle = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	botLabelStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("35"))
	typingStyle    = lipgloss.NewStyle().Italic(true).Foreground(colorMuted)
	hintStyle      = lipgloss.NewStyle().Foreground(colorMuted)
	noticeStyle    = lipgloss.NewStyle().Foreground(colorError)
	endedStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))

	inputBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorAccent).
			Padding(0, 1)

	pickerBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorAccent).
			Padding(0, 1)

	dayStyle      = lipgloss.NewStyle().Width(3).Align(lipgloss.Right)
	dayCursor     = dayStyle.Reverse(true).Bold(true)
	dayDisabled   = dayStyle.Foreground(lipgloss.Color("240"))
	weekdayHeader = lipgloss.NewStyle().Width(3).Align(lipgloss.Right).Foreground(colorMuted)
)
