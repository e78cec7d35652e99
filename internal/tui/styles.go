package tui

import "github.com/charmbracelet/lipgloss"

var (
	ColorPrimary = lipgloss.Color("62")
	ColorSuccess = lipgloss.Color("42")
	ColorDanger  = lipgloss.Color("196")
	ColorMuted   = lipgloss.Color("241")

	AppStyle = lipgloss.NewStyle().Padding(1, 2)

	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("230")).
			Background(ColorPrimary).
			Padding(0, 1)

	SubtitleStyle = lipgloss.NewStyle().Foreground(ColorMuted)

	LabelStyle = lipgloss.NewStyle().Bold(true)

	ResultStyle = lipgloss.NewStyle().Foreground(ColorSuccess).Bold(true)

	ErrorStyle = lipgloss.NewStyle().Foreground(ColorDanger)

	HelpStyle = lipgloss.NewStyle().Foreground(ColorMuted)

	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorPrimary).
			Padding(0, 1)
)
