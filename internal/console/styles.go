package console

import (
	"charm.land/lipgloss/v2"
)

const accentBlue = "#4285F4"

// Styles groups the lipgloss styles used by the interactive console.
type Styles struct {
	Banner    lipgloss.Style
	Prompt    lipgloss.Style
	Assistant lipgloss.Style
	System    lipgloss.Style
	Error     lipgloss.Style
}

// DefaultStyles returns the standard console color scheme.
func DefaultStyles() Styles {
	return Styles{
		Banner:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(accentBlue)),
		Prompt:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86")),
		Assistant: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212")),
		System:    lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("240")),
		Error:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
	}
}
