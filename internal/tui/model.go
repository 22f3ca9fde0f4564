// Package tui renders a live view of a discovery run with bubbletea.
package tui

import (
	"context"

	"github.com/Veraticus/billfinder/internal/model"
	"github.com/Veraticus/billfinder/internal/tui/themes"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

const (
	maxLogLines   = 6
	maxBarWidth   = 60
	defaultWidth  = 80
	barSideMargin = 4
)

// Model holds the state of the progress view.
type Model struct {
	theme      themes.Theme
	err        error
	events     <-chan model.ProgressEvent
	cancel     context.CancelFunc
	result     *model.DiscoveryResult
	keymap     KeyMap
	help       help.Model
	bar        progress.Model
	spinner    spinner.Model
	last       model.ProgressEvent
	log        []string
	width      int
	canceling  bool
	showErrors bool
	done       bool
}

func newModel(events <-chan model.ProgressEvent, cancel context.CancelFunc, theme themes.Theme) Model {
	s := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(theme.Bold.Foreground(theme.Primary)),
	)

	m := Model{
		theme:   theme,
		events:  events,
		cancel:  cancel,
		keymap:  DefaultKeyMap(),
		help:    help.New(),
		bar:     progress.New(progress.WithDefaultGradient()),
		spinner: s,
		last:    model.ProgressEvent{Step: model.StepStarting},
	}
	m.resize(defaultWidth)
	return m
}

// Init starts the spinner and the event pump.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForEvent(m.events))
}

func waitForEvent(events <-chan model.ProgressEvent) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-events
		if !ok {
			return progressClosedMsg{}
		}
		return progressMsg{event: event}
	}
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.resize(msg.Width)
		return m, nil

	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case progressMsg:
		m.last = msg.event
		if msg.event.Step == model.StepFetching && msg.event.Message != "" {
			m.log = append(m.log, msg.event.Message)
			if len(m.log) > maxLogLines {
				m.log = m.log[len(m.log)-maxLogLines:]
			}
		}
		return m, waitForEvent(m.events)

	case progressClosedMsg:
		return m, nil

	case resultMsg:
		m.result = msg.result
		m.err = msg.err
		m.done = true
		return m, tea.Quit
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keymap.ToggleErrors):
		m.showErrors = !m.showErrors
		return m, nil

	case key.Matches(msg, m.keymap.Cancel), key.Matches(msg, m.keymap.Quit):
		if m.done {
			return m, tea.Quit
		}
		if !m.canceling {
			m.canceling = true
			if m.cancel != nil {
				m.cancel()
			}
		}
		return m, nil
	}
	return m, nil
}

func (m *Model) resize(width int) {
	m.width = width
	m.bar.Width = min(width-barSideMargin, maxBarWidth)
	m.help.Width = width
}

// Result returns the finished run, if any.
func (m Model) Result() (*model.DiscoveryResult, error) {
	return m.result, m.err
}
