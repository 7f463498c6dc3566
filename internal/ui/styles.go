package ui

import "github.com/charmbracelet/lipgloss"

// Color palette. A single cyan accent keeps result listings readable
// without turning the terminal into a fruit salad.
const (
	ColorCyan     = "45"  // Primary accent
	ColorCyanDim  = "37"  // Secondary accent
	ColorWhite    = "255" // Titles
	ColorGray     = "245" // Labels, metadata
	ColorDarkGray = "238" // Separators
	ColorRed      = "196" // Errors
	ColorYellow   = "220" // Degradation warnings
)

// Styles holds the lipgloss styles used for rendering.
type Styles struct {
	Header   lipgloss.Style
	Rank     lipgloss.Style
	Title    lipgloss.Style
	Score    lipgloss.Style
	Label    lipgloss.Style
	Citation lipgloss.Style
	Dim      lipgloss.Style
	Warning  lipgloss.Style
	Error    lipgloss.Style
}

// DefaultStyles returns the colored style set.
func DefaultStyles() Styles {
	return Styles{
		Header:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorCyan)),
		Rank:     lipgloss.NewStyle().Foreground(lipgloss.Color(ColorCyanDim)),
		Title:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorWhite)),
		Score:    lipgloss.NewStyle().Foreground(lipgloss.Color(ColorCyan)),
		Label:    lipgloss.NewStyle().Foreground(lipgloss.Color(ColorGray)),
		Citation: lipgloss.NewStyle().Foreground(lipgloss.Color(ColorGray)).Italic(true),
		Dim:      lipgloss.NewStyle().Foreground(lipgloss.Color(ColorDarkGray)),
		Warning:  lipgloss.NewStyle().Foreground(lipgloss.Color(ColorYellow)),
		Error:    lipgloss.NewStyle().Foreground(lipgloss.Color(ColorRed)),
	}
}

// NoColorStyles returns an unstyled set for pipes and NO_COLOR.
func NoColorStyles() Styles {
	return Styles{
		Header:   lipgloss.NewStyle(),
		Rank:     lipgloss.NewStyle(),
		Title:    lipgloss.NewStyle(),
		Score:    lipgloss.NewStyle(),
		Label:    lipgloss.NewStyle(),
		Citation: lipgloss.NewStyle(),
		Dim:      lipgloss.NewStyle(),
		Warning:  lipgloss.NewStyle(),
		Error:    lipgloss.NewStyle(),
	}
}

// GetStyles returns the style set for the color preference.
func GetStyles(noColor bool) Styles {
	if noColor {
		return NoColorStyles()
	}
	return DefaultStyles()
}
