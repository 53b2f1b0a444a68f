package tui

import "github.com/charmbracelet/lipgloss"

var (
	ColorGray   = lipgloss.Color("240")
	ColorWhite  = lipgloss.Color("255")
	ColorGreen  = lipgloss.Color("42")
	ColorYellow = lipgloss.Color("220")
	ColorRed    = lipgloss.Color("160")
	ColorCyan   = lipgloss.Color("39")
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorCyan)
	dimStyle   = lipgloss.NewStyle().Foreground(ColorGray)
	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorGray).
			Padding(0, 1)
	alertStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("226")).
			Background(ColorRed).
			Padding(0, 1)
	okStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorWhite).
		Background(lipgloss.Color("28")).
		Padding(0, 1)
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6666"))
)
