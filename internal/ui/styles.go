package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	sync "remix-sync/internal/core/sync"
)

// --- UI Styles ---
var (
	titleStyle      = lipgloss.NewStyle().Bold(true).Underline(true).Foreground(lipgloss.Color("#76B900"))
	subtitleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#3AC4BA")).Italic(true)
	subtleStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	okStyle         = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#10B981"))
	warnStyle       = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#F59E0B"))
	errorStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#EF4444"))
	helpStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Italic(true)
	summaryBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#76B900")).
			Padding(0, 2).
			Margin(1, 0)
	listHeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#76B900")).
			Margin(0, 0, 1, 0)
	barStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#76B900"))
	focusStyle     = lipgloss.NewStyle().Bold(true)
	issueKindStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
)

func outcomeStyle(o sync.Outcome) lipgloss.Style {
	switch o {
	case sync.OutcomeSuccess:
		return okStyle
	case sync.OutcomePartial:
		return warnStyle
	default:
		return errorStyle
	}
}

// renderBar draws a fixed-width progress bar for percent (0..100).
func renderBar(percent, width int) string {
	if width <= 0 {
		width = 30
	}
	filled := width * percent / 100
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	var b strings.Builder
	b.WriteString("[")
	for i := 0; i < width; i++ {
		if i < filled {
			b.WriteString(barStyle.Render("█"))
		} else {
			b.WriteString(subtleStyle.Render("·"))
		}
	}
	b.WriteString("]")
	return b.String()
}

// renderFooter creates a consistent footer across all views
// statusLine: optional status information (shown in subtleStyle)
// helpLines: help text lines (shown in helpStyle)
func renderFooter(statusLine string, helpLines ...string) string {
	var b strings.Builder

	if statusLine != "" {
		b.WriteString(subtleStyle.Render(statusLine) + "\n")
	}

	for _, line := range helpLines {
		b.WriteString(helpStyle.Render(line) + "\n")
	}

	return strings.TrimSuffix(b.String(), "\n")
}
