package ui

import (
	"fmt"
	"strings"
)

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n\n")

	if !m.done {
		b.WriteString(m.renderProgress())
		b.WriteString("\n")
		b.WriteString(renderFooter(m.metricsLine(), "ctrl+c: quit (the task keeps running until the process exits)"))
		return b.String()
	}

	b.WriteString(m.renderSummary())
	b.WriteString("\n")
	if len(m.lines) > 0 {
		header := fmt.Sprintf("Issues (%d of %d)", len(m.visible), len(m.lines))
		b.WriteString(listHeaderStyle.Render(header))
		b.WriteString("\n")
		if m.filtering || m.filter.Value() != "" {
			b.WriteString(m.filter.View())
			b.WriteString("\n")
		}
		b.WriteString(m.issues.View())
		b.WriteString("\n")
	}
	help := "q: quit"
	if len(m.lines) > 0 {
		help = "/: filter  ↑/↓: scroll  q: quit"
	}
	if m.filtering {
		help = "enter: keep filter  esc: clear"
	}
	b.WriteString(renderFooter(m.metricsLine(), help))
	return b.String()
}

func (m Model) renderProgress() string {
	var b strings.Builder
	current := "Starting..."
	if n := len(m.status); n > 0 {
		current = m.status[n-1]
	}
	b.WriteString(m.spinner.View() + " " + focusStyle.Render(current) + "\n")
	b.WriteString(renderBar(m.percent, min(max(m.width-12, 10), 50)))
	b.WriteString(fmt.Sprintf(" %3d%%\n", m.percent))
	for _, s := range m.status[:max(len(m.status)-1, 0)] {
		b.WriteString(subtleStyle.Render("  "+s) + "\n")
	}
	return b.String()
}

func (m Model) renderSummary() string {
	if m.run == nil {
		msg := "task finished without a result"
		if m.err != nil {
			msg = m.err.Error()
		}
		return summaryBoxStyle.Render(errorStyle.Render("Failed") + "\n" + msg)
	}
	r := m.run
	var b strings.Builder
	b.WriteString(outcomeStyle(r.Outcome).Render(strings.ToUpper(string(r.Op)) + " " + string(r.Outcome)))
	b.WriteString("\n")
	b.WriteString(r.Summary())
	if r.Material != "" {
		b.WriteString("\n" + subtitleStyle.Render("Material: "+r.Material))
	}
	if r.LayerID != "" {
		b.WriteString("\n" + subtitleStyle.Render("Saved layer: "+r.LayerID))
	}
	if fatal, ok := r.Fatal(); ok {
		b.WriteString("\n" + errorStyle.Render(fatal.String()))
	}
	return summaryBoxStyle.Render(b.String())
}

func (m Model) renderIssues() string {
	if len(m.visible) == 0 {
		return subtleStyle.Render("  no matching issues")
	}
	var b strings.Builder
	for _, i := range m.visible {
		b.WriteString(issueKindStyle.Render("  ! "))
		b.WriteString(m.lines[i])
		b.WriteString("\n")
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func (m Model) metricsLine() string {
	if m.metrics == nil {
		return ""
	}
	return "HTTP " + m.metrics().String()
}
