package tui

import "github.com/charmbracelet/lipgloss"

const (
	colorAccent = "#7D56F4"
	colorDim    = "#767676"
	colorError  = "#FF5F87"
	colorMark   = "#FFD75F"
)

type styles struct {
	prompt    lipgloss.Style
	cursor    lipgloss.Style
	title     lipgloss.Style
	path      lipgloss.Style
	err       lipgloss.Style
	highlight lipgloss.Style
	status    lipgloss.Style
	border    lipgloss.Style
}

func defaultStyles() styles {
	return styles{
		prompt:    lipgloss.NewStyle().Foreground(lipgloss.Color(colorAccent)).Bold(true),
		cursor:    lipgloss.NewStyle().Foreground(lipgloss.Color(colorAccent)).Bold(true),
		title:     lipgloss.NewStyle(),
		path:      lipgloss.NewStyle().Foreground(lipgloss.Color(colorDim)),
		err:       lipgloss.NewStyle().Foreground(lipgloss.Color(colorError)),
		highlight: lipgloss.NewStyle().Foreground(lipgloss.Color(colorMark)).Bold(true),
		status:    lipgloss.NewStyle().Foreground(lipgloss.Color(colorDim)),
		border:    lipgloss.NewStyle().BorderStyle(lipgloss.NormalBorder()).BorderTop(true).BorderForeground(lipgloss.Color(colorDim)),
	}
}
