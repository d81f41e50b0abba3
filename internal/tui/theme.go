package tui

import "github.com/charmbracelet/lipgloss"

// Theme keeps the monitor styles in one place.
type Theme struct {
	StatusOK     lipgloss.Style
	StatusWarn   lipgloss.Style
	StatusFailed lipgloss.Style

	Doc    lipgloss.Style
	Border lipgloss.Style
	Title  lipgloss.Style
	Dim    lipgloss.Style
}

func NewDefaultTheme() Theme {
	return Theme{
		StatusOK:     lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00")),
		StatusWarn:   lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFF00")),
		StatusFailed: lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000")),

		Doc: lipgloss.NewStyle().Margin(1, 2),
		Border: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#874BFD")),
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Padding(0, 1),
		Dim: lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
	}
}
