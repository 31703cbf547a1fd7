package ui

import (
	"github.com/charmbracelet/lipgloss"
)

var styles = NewPalette(Colors{
	Heading:  "#7D56F4",
	Revision: "#04B575",
	Failure:  "#FF0000",
	Notice:   "#FFA500",
	Muted:    "#626262",
})

// Colors names the foreground used for each role in the watcher.
type Colors struct {
	Heading  string
	Revision string
	Failure  string
	Notice   string
	Muted    string
}

// Palette holds the rendered styles for each [Colors] role.
type Palette struct {
	heading  lipgloss.Style
	revision lipgloss.Style
	failure  lipgloss.Style
	notice   lipgloss.Style
	muted    lipgloss.Style
}

func NewPalette(c Colors) *Palette {
	return &Palette{
		heading:  bold(c.Heading).MarginBottom(1),
		revision: bold(c.Revision),
		failure:  bold(c.Failure),
		notice:   fg(c.Notice),
		muted:    fg(c.Muted).Italic(true),
	}
}

func fg(color string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(color))
}

func bold(color string) lipgloss.Style {
	return fg(color).Bold(true)
}
