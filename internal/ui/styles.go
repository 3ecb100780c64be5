// Package ui renders status markers for CLI output.
package ui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var (
	colorPass   = lipgloss.AdaptiveColor{Light: "#1D7F4E", Dark: "#2CD7C7"}
	colorWarn   = lipgloss.AdaptiveColor{Light: "#9A6700", Dark: "#F4D03F"}
	colorFail   = lipgloss.AdaptiveColor{Light: "#B42318", Dark: "#E74C3C"}
	colorAccent = lipgloss.AdaptiveColor{Light: "#1D4ED8", Dark: "#20B9B4"}
	colorMuted  = lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#8B9DA5"}
)

var (
	passStyle   = lipgloss.NewStyle().Foreground(colorPass).Bold(true)
	warnStyle   = lipgloss.NewStyle().Foreground(colorWarn).Bold(true)
	failStyle   = lipgloss.NewStyle().Foreground(colorFail).Bold(true)
	accentStyle = lipgloss.NewStyle().Foreground(colorAccent)
	mutedStyle  = lipgloss.NewStyle().Foreground(colorMuted)
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
)

func RenderPass(s string) string   { return passStyle.Render(s) }
func RenderWarn(s string) string   { return warnStyle.Render(s) }
func RenderFail(s string) string   { return failStyle.Render(s) }
func RenderAccent(s string) string { return accentStyle.Render(s) }
func RenderMuted(s string) string  { return mutedStyle.Render(s) }
func RenderHeader(s string) string { return headerStyle.Render(s) }

// IsTerminal reports whether stdin is an interactive terminal.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}
