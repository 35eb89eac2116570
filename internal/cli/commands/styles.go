package commands

import "github.com/charmbracelet/lipgloss"

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#9B9B9B", Dark: "#5C5C5C"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	danger    = lipgloss.AdaptiveColor{Light: "#D7263D", Dark: "#FF5F6D"}

	promptStyle = lipgloss.NewStyle().
			Foreground(highlight).
			Bold(true)

	thinkingStyle = lipgloss.NewStyle().
			Foreground(subtle).
			Italic(true)

	toolStyle = lipgloss.NewStyle().
			Foreground(highlight)

	errorStyle = lipgloss.NewStyle().
			Foreground(danger).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(subtle)
)
