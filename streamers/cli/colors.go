package cli

import (
	"io"

	"github.com/charmbracelet/lipgloss"
)

// ANSI color codes
const (
	ColorReset      = "\033[0m"
	ColorLightBrown = "\033[38;5;180m" // Light brown/tan for user messages
	ColorOrange     = "\033[38;5;208m"
	ColorGray       = "\033[90m"
	ColorMagenta    = "\033[35m"
	ColorCyan       = "\033[36m"
	ColorGreen      = "\033[32m"
	ColorRed        = "\033[31m"
	ColorYellow     = "\033[33m"
	ColorBold       = "\033[1m"
	ColorItalic     = "\033[3m"
)

// styles holds the banner styles for one output stream
type styles struct {
	header  lipgloss.Style
	stage   lipgloss.Style
	success lipgloss.Style
	failure lipgloss.Style
	muted   lipgloss.Style
}

// newStyles binds the styles to out so color is dropped when out is not a terminal
func newStyles(out io.Writer) styles {
	r := lipgloss.NewRenderer(out)
	return styles{
		header:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("208")).Underline(true),
		stage:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("45")),
		success: r.NewStyle().Bold(true).Foreground(lipgloss.Color("42")),
		failure: r.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
		muted:   r.NewStyle().Foreground(lipgloss.Color("245")),
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
