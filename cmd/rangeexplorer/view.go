package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	helpStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

func (m model) View() string {
	header := titleStyle.Render(fmt.Sprintf("rangeexplorer — %s (%d ranges)", m.dataDir, len(m.ranges)))

	body := boxStyle.Render(m.tbl.View())

	var errLine string
	if m.err != nil {
		errLine = errStyle.Render("error: "+m.err.Error()) + "\n"
	}

	help := helpStyle.Render("r: refresh now   q: quit")

	return lipgloss.JoinVertical(lipgloss.Left, header, body, errLine+help)
}
