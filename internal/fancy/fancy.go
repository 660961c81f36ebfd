// Package fancy provides pretty printing utilities and styling for CLI
// output.
package fancy

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/tree"

	"github.com/tylooio/tyloo/tcc"
)

var (
	ColorBlue     = lipgloss.Color("39")
	ColorOrange   = lipgloss.Color("208")
	ColorGreen    = lipgloss.Color("82")
	ColorRed      = lipgloss.Color("196")
	ColorGray     = lipgloss.Color("250")
	ColorDarkGray = lipgloss.Color("240")
)

var (
	// RootStyle renders transaction identifiers.
	RootStyle = lipgloss.NewStyle().
			Foreground(ColorBlue).
			Bold(true)

	// InfoStyle renders secondary detail like timestamps and versions.
	InfoStyle = lipgloss.NewStyle().
			Foreground(ColorGray).
			Italic(true)

	// BranchStyle renders tree connectors.
	BranchStyle = lipgloss.NewStyle().
			Foreground(ColorDarkGray)

	tryingStyle     = lipgloss.NewStyle().Foreground(ColorOrange)
	confirmingStyle = lipgloss.NewStyle().Foreground(ColorGreen)
	cancellingStyle = lipgloss.NewStyle().Foreground(ColorRed)
)

// Tree returns a new tree with common styling applied.
func Tree() *tree.Tree {
	t := tree.New()
	t.EnumeratorStyle(BranchStyle)
	t.Enumerator(tree.RoundedEnumerator)
	return t
}

// StatusBadge renders a transaction status in its phase color.
func StatusBadge(status tcc.Status) string {
	switch status {
	case tcc.Trying:
		return tryingStyle.Render(status.String())
	case tcc.Confirming:
		return confirmingStyle.Render(status.String())
	case tcc.Cancelling:
		return cancellingStyle.Render(status.String())
	default:
		return InfoStyle.Render(status.String())
	}
}
