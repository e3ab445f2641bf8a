package render

import "github.com/charmbracelet/lipgloss"

// Colors shared by the tree and comment renderers.
var (
	keyColor      = lipgloss.AdaptiveColor{Light: "#555555", Dark: "#BBBBBB"}
	mutedColor    = lipgloss.AdaptiveColor{Light: "#999999", Dark: "#696969"}
	epicColor     = lipgloss.AdaptiveColor{Light: "#8839EF", Dark: "#CBA6F7"}
	errorColor    = lipgloss.AdaptiveColor{Light: "#FF6B6B", Dark: "#FF8787"}
	warningColor  = lipgloss.AdaptiveColor{Light: "#DF8E1D", Dark: "#FECA57"}
	doneColor     = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}
	progressColor = lipgloss.AdaptiveColor{Light: "#1E66F5", Dark: "#89B4FA"}
	openColor     = lipgloss.AdaptiveColor{Light: "#666666", Dark: "#CCCCCC"}
)

type styles struct {
	key      lipgloss.Style
	muted    lipgloss.Style
	epic     lipgloss.Style
	err      lipgloss.Style
	warning  lipgloss.Style
	done     lipgloss.Style
	progress lipgloss.Style
	open     lipgloss.Style
	author   lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		key:      r.NewStyle().Foreground(keyColor),
		muted:    r.NewStyle().Foreground(mutedColor),
		epic:     r.NewStyle().Foreground(epicColor).Bold(true),
		err:      r.NewStyle().Foreground(errorColor),
		warning:  r.NewStyle().Foreground(warningColor),
		done:     r.NewStyle().Foreground(doneColor),
		progress: r.NewStyle().Foreground(progressColor),
		open:     r.NewStyle().Foreground(openColor),
		author:   r.NewStyle().Bold(true),
	}
}
