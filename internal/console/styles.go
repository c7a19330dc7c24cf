package console

import "github.com/charmbracelet/lipgloss"

type styles struct {
	title    lipgloss.Style
	step     lipgloss.Style
	label    lipgloss.Style
	value    lipgloss.Style
	warning  lipgloss.Style
	faint    lipgloss.Style
	link     lipgloss.Style
	barFill  lipgloss.Style
	barEmpty lipgloss.Style
	bracket  lipgloss.Style
}

func newStyles() styles {
	return styles{
		title:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		step:     lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		label:    lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		value:    lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		warning:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203")),
		faint:    lipgloss.NewStyle().Faint(true),
		link:     lipgloss.NewStyle().Underline(true).Foreground(lipgloss.Color("39")),
		barFill:  lipgloss.NewStyle().Foreground(lipgloss.Color("159")),
		barEmpty: lipgloss.NewStyle().Foreground(lipgloss.Color("238")),
		bracket:  lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
	}
}
