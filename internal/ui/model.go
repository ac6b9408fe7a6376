// Package ui renders a running pipeline task in the terminal: live progress
// and status while it runs, then the run summary with a filterable issue
// list.
package ui

import (
	"errors"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	sync "remix-sync/internal/core/sync"
	"remix-sync/internal/remix"
	"remix-sync/internal/task"
)

const maxStatusLines = 5

// Model follows one task through its event stream.
type Model struct {
	title   string
	events  <-chan task.Event
	metrics func() remix.MetricsSnapshot

	spinner spinner.Model
	filter  textinput.Model
	issues  viewport.Model

	percent int
	status  []string

	done      bool
	run       *sync.Run
	err       error
	filtering bool
	lines     []string
	visible   []int

	width  int
	height int
}

type Option func(*Model)

// WithMetrics shows the HTTP counters under the progress bar.
func WithMetrics(fn func() remix.MetricsSnapshot) Option {
	return func(m *Model) { m.metrics = fn }
}

func New(title string, events <-chan task.Event, opts ...Option) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Line

	fi := textinput.New()
	fi.Placeholder = "filter issues"
	fi.CharLimit = 128
	fi.Width = 40

	m := Model{
		title:   title,
		events:  events,
		spinner: sp,
		filter:  fi,
		issues:  viewport.New(80, 10),
		width:   80,
	}
	for _, o := range opts {
		o(&m)
	}
	return m
}

// Result is the finished run, if the task produced one, and the task error.
func (m Model) Result() (*sync.Run, error) { return m.run, m.err }

// Done reports whether the task has finished.
func (m Model) Done() bool { return m.done }

// ---------- Messages / Cmds ----------
type eventMsg task.Event

type closedMsg struct{}

func waitForEvent(ch <-chan task.Event) tea.Cmd {
	return func() tea.Msg {
		e, ok := <-ch
		if !ok {
			return closedMsg{}
		}
		return eventMsg(e)
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForEvent(m.events))
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.issues.Width = msg.Width
		m.issues.Height = max(msg.Height-12, 3)
		return m, nil
	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case eventMsg:
		m = m.apply(task.Event(msg))
		if m.done {
			return m, nil
		}
		return m, waitForEvent(m.events)
	case closedMsg:
		m.done = true
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) apply(e task.Event) Model {
	switch e.Kind {
	case task.EventProgress:
		m.percent = e.Percent
	case task.EventStatus:
		m.status = append(m.status, e.Text)
		if len(m.status) > maxStatusLines {
			m.status = m.status[len(m.status)-maxStatusLines:]
		}
	case task.EventResult:
		if r, ok := e.Value.(*sync.Run); ok {
			m.setRun(r)
		}
	case task.EventError:
		m.err = e.Err
		var re *sync.RunError
		if errors.As(e.Err, &re) {
			m.setRun(re.Run)
		}
	case task.EventFinished:
		m.done = true
		m.percent = 100
	}
	return m
}

func (m *Model) setRun(r *sync.Run) {
	m.run = r
	m.lines = m.lines[:0]
	for _, is := range r.Issues() {
		m.lines = append(m.lines, is.String())
	}
	m.refilter()
}

func (m *Model) refilter() {
	m.visible = filterIssues(m.filter.Value(), m.lines, defaultFilter)
	m.issues.SetContent(m.renderIssues())
	m.issues.GotoTop()
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.filtering {
		switch msg.String() {
		case "esc":
			m.filtering = false
			m.filter.Blur()
			m.filter.SetValue("")
			m.refilter()
			return m, nil
		case "enter":
			m.filtering = false
			m.filter.Blur()
			return m, nil
		}
		var cmd tea.Cmd
		m.filter, cmd = m.filter.Update(msg)
		m.refilter()
		return m, cmd
	}

	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "q", "esc", "enter":
		if m.done {
			return m, tea.Quit
		}
	case "/":
		if m.done && len(m.lines) > 0 {
			m.filtering = true
			return m, m.filter.Focus()
		}
	default:
		if m.done {
			var cmd tea.Cmd
			m.issues, cmd = m.issues.Update(msg)
			return m, cmd
		}
	}
	return m, nil
}
