package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	hintStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	labelStyle = lipgloss.NewStyle().Width(16).Foreground(lipgloss.Color("245"))
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	urlStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("45")).Underline(true)

	pollTitleStyle = lipgloss.NewStyle().Bold(true)
	cursorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Bold(true)
	barStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	barEmptyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
	percentStyle   = lipgloss.NewStyle().Width(8).Align(lipgloss.Right)

	statsHeaderStyle = lipgloss.NewStyle().Width(8).Foreground(lipgloss.Color("245"))
	statsValueStyle  = lipgloss.NewStyle().Width(8)

	pathStyle     = lipgloss.NewStyle().Width(42)
	durationStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))

	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	noticeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
)

// StatusText renders the live status word.
func StatusText(status string) string {
	var color lipgloss.Color
	switch status {
	case "live":
		color = lipgloss.Color("42")
	case "polling", "connecting":
		color = lipgloss.Color("214")
	default:
		color = lipgloss.Color("196")
	}
	return lipgloss.NewStyle().Foreground(color).Render(status)
}

func MethodText(method string) string {
	return lipgloss.NewStyle().Width(7).Bold(true).Render(method)
}

func StatusCodeText(code int) string {
	var color lipgloss.Color
	switch {
	case code == 0:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Render("ERR")
	case code < 300:
		color = lipgloss.Color("42")
	case code < 400:
		color = lipgloss.Color("39")
	case code < 500:
		color = lipgloss.Color("214")
	default:
		color = lipgloss.Color("196")
	}
	return lipgloss.NewStyle().Foreground(color).Render(fmt.Sprintf("%d", code))
}
