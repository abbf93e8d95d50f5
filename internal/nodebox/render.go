package nodebox

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	stateGood = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
	stateBad  = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	stateIdle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// renderState colours a worker or container state for the terminal.
// lipgloss drops the colour when stdout is not a TTY.
func renderState(state string) string {
	switch strings.ToLower(state) {
	case "running":
		return stateGood.Render(state)
	case "crashed", "exited", "dead", "missing":
		return stateBad.Render(state)
	default:
		return stateIdle.Render(state)
	}
}

func renderBool(ok bool) string {
	if ok {
		return stateGood.Render("yes")
	}
	return stateBad.Render("no")
}
