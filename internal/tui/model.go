// Package tui is the interactive preview shell: a screen list on the left and
// the selected screen's rendered tree on the right, updated live.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/vburojevic/hotswap/internal/domain"
	"github.com/vburojevic/hotswap/internal/evaluator"
	"github.com/vburojevic/hotswap/internal/livesync"
	"github.com/vburojevic/hotswap/internal/loader"
	"github.com/vburojevic/hotswap/internal/output"
)

// AppEntry is the list entry that renders the application root
const AppEntry = "(app)"

const listWidth = 28

// Source is the part of a loaded preview the shell reads
type Source interface {
	SessionID() string
	ScreenIDs() []string
	Resolve(id string) (domain.Component, loader.Origin, bool)
	App() domain.Component
}

// ChangeMsg carries a loader change into the program
type ChangeMsg loader.Change

// StatusMsg carries a live-sync status change
type StatusMsg struct {
	Status  domain.ConnectionStatus
	Attempt int
}

// EventMsg carries a handled live-sync message
type EventMsg livesync.Event

// LoadedMsg reports the end of a session load started by the shell
type LoadedMsg struct {
	Err     error
	Cleared int // cache entries dropped before loading
	Cache   bool
}

// Controls are the actions the shell can trigger. Nil fields disable their key.
type Controls struct {
	// Load (re)loads the session. It runs off the UI goroutine.
	Load       func() error
	ClearCache func() int
	Reconnect  func()
}

type keyMap struct {
	Up         key.Binding
	Down       key.Binding
	Refresh    key.Binding
	Reload     key.Binding
	ClearCache key.Binding
	Reconnect  key.Binding
	Quit       key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Up:         key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "prev")),
		Down:       key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "next")),
		Refresh:    key.NewBinding(key.WithKeys("enter", " "), key.WithHelp("enter", "re-render")),
		Reload:     key.NewBinding(key.WithKeys("l"), key.WithHelp("l", "reload")),
		ClearCache: key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "clear cache")),
		Reconnect:  key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reconnect")),
		Quit:       key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) help() string {
	var parts []string
	for _, b := range []key.Binding{k.Up, k.Down, k.Refresh, k.Reload, k.ClearCache, k.Reconnect, k.Quit} {
		parts = append(parts, b.Help().Key+" "+b.Help().Desc)
	}
	return strings.Join(parts, " • ")
}

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	stubStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	errorStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	listStyle     = lipgloss.NewStyle().Width(listWidth).PaddingRight(1).
			BorderStyle(lipgloss.NormalBorder()).BorderRight(true)
)

// Model is the bubbletea model for the preview shell
type Model struct {
	src      Source
	strategy string
	ctl      Controls
	keys     keyMap

	loading bool
	loadErr error

	viewport viewport.Model
	ready    bool
	width    int
	height   int

	entries  []string
	selected int

	version   int64
	status    domain.ConnectionStatus
	attempt   int
	lastEvent string
}

// New creates the shell for src. With ctl.Load set the shell loads the
// session itself on start, shows a failed load as an error panel and retries
// on the reload key.
func New(src Source, strategy string, ctl Controls) Model {
	m := Model{
		src:      src,
		strategy: strategy,
		ctl:      ctl,
		keys:     defaultKeys(),
		status:   domain.StatusDisconnected,
		loading:  ctl.Load != nil,
	}
	m.refreshEntries()
	return m
}

// Init implements tea.Model
func (m Model) Init() tea.Cmd {
	if m.ctl.Load == nil {
		return nil
	}
	return m.loadCmd(false)
}

// LoadErr returns the error of the last load, if it failed
func (m Model) LoadErr() error {
	return m.loadErr
}

func (m Model) loadCmd(clear bool) tea.Cmd {
	ctl := m.ctl
	return func() tea.Msg {
		msg := LoadedMsg{Cache: clear}
		if clear && ctl.ClearCache != nil {
			msg.Cleared = ctl.ClearCache()
		}
		msg.Err = ctl.Load()
		return msg
	}
}

// startLoad marks a load in flight and returns the command running it
func (m *Model) startLoad(clear bool) tea.Cmd {
	if m.ctl.Load == nil || m.loading {
		return nil
	}
	m.loading = true
	m.render()
	return m.loadCmd(clear)
}

// Selected returns the selected list entry
func (m Model) Selected() string {
	if m.selected < 0 || m.selected >= len(m.entries) {
		return ""
	}
	return m.entries[m.selected]
}

// Update implements tea.Model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		w, h := m.paneSize()
		if !m.ready {
			m.viewport = viewport.New(w, h)
			m.ready = true
		} else {
			m.viewport.Width, m.viewport.Height = w, h
		}
		m.render()
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Up):
			if m.selected > 0 {
				m.selected--
				m.render()
			}
			return m, nil
		case key.Matches(msg, m.keys.Down):
			if m.selected < len(m.entries)-1 {
				m.selected++
				m.render()
			}
			return m, nil
		case key.Matches(msg, m.keys.Refresh):
			m.render()
			return m, nil
		case key.Matches(msg, m.keys.Reload):
			return m, m.startLoad(false)
		case key.Matches(msg, m.keys.ClearCache):
			if m.ctl.ClearCache == nil {
				return m, nil
			}
			return m, m.startLoad(true)
		case key.Matches(msg, m.keys.Reconnect):
			if m.ctl.Reconnect != nil {
				m.ctl.Reconnect()
				m.lastEvent = "manual reconnect"
			}
			return m, nil
		}

	case LoadedMsg:
		m.loading = false
		m.loadErr = msg.Err
		switch {
		case msg.Err != nil:
			m.lastEvent = "load failed"
		case msg.Cache:
			m.lastEvent = fmt.Sprintf("cache cleared (%d), reloaded", msg.Cleared)
		default:
			m.lastEvent = "reloaded"
		}
		current := m.Selected()
		m.refreshEntries()
		m.reselect(current)
		m.render()
		return m, nil

	case ChangeMsg:
		m.version = msg.Version
		m.lastEvent = describeChange(loader.Change(msg))
		current := m.Selected()
		m.refreshEntries()
		m.reselect(current)
		m.render()
		return m, nil

	case StatusMsg:
		m.status, m.attempt = msg.Status, msg.Attempt
		return m, nil

	case EventMsg:
		if msg.Action == livesync.ActionFailed || msg.Action == livesync.ActionDropped {
			m.lastEvent = fmt.Sprintf("%s %s: %s", msg.Action, msg.Type, msg.Error)
		}
		return m, nil
	}

	if !m.ready {
		return m, nil
	}
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m Model) paneSize() (int, int) {
	w := m.width - listWidth - 2
	h := m.height - 3
	if w < 10 {
		w = 10
	}
	if h < 3 {
		h = 3
	}
	return w, h
}

func (m *Model) refreshEntries() {
	m.entries = append([]string{AppEntry}, m.src.ScreenIDs()...)
	if m.selected >= len(m.entries) {
		m.selected = len(m.entries) - 1
	}
}

// reselect keeps the cursor on id when it is still listed
func (m *Model) reselect(id string) {
	for i, e := range m.entries {
		if e == id {
			m.selected = i
			return
		}
	}
}

// render re-renders the selected entry into the viewport
func (m *Model) render() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.renderSelected())
	m.viewport.GotoTop()
}

func (m Model) renderSelected() string {
	if m.loadErr != nil && !m.loading {
		return errorStyle.Render("Load failed") + "\n\n" + m.loadErr.Error() + "\n\n" +
			dimStyle.Render("press "+m.keys.Reload.Help().Key+" to retry")
	}
	if m.loading {
		return dimStyle.Render("loading session " + m.src.SessionID() + "...")
	}
	id := m.Selected()
	var (
		c      domain.Component
		origin loader.Origin
		ok     bool
	)
	if id == AppEntry {
		c = m.src.App()
		ok = c != nil
	} else {
		c, origin, ok = m.src.Resolve(id)
	}
	if !ok {
		return dimStyle.Render("nothing to render for " + id)
	}
	head := dimStyle.Render(id)
	if origin != loader.OriginNone {
		head += dimStyle.Render(" (" + string(origin) + ")")
	}
	tree := output.FormatTree(evaluator.SafeRender(id, c, map[string]interface{}{}))
	return head + "\n\n" + tree
}

func describeChange(c loader.Change) string {
	s := fmt.Sprintf("%s %s v%d", c.Kind, c.ScreenID, c.Version)
	if c.Stub {
		s += " (stub)"
	}
	return strings.Join(strings.Fields(s), " ")
}

// View implements tea.Model
func (m Model) View() string {
	if !m.ready {
		return "loading..."
	}

	header := titleStyle.Render("hotswap "+m.src.SessionID()) +
		dimStyle.Render(fmt.Sprintf("  %s  v%d", m.strategy, m.version))

	var list strings.Builder
	for i, id := range m.entries {
		line := id
		if id != AppEntry {
			if c, _, ok := m.src.Resolve(id); ok && evaluator.IsStub(c) {
				line = stubStyle.Render(id + " !")
			}
		}
		if i == m.selected {
			line = selectedStyle.Render("> " + id)
		} else {
			line = "  " + line
		}
		list.WriteString(line + "\n")
	}
	_, h := m.paneSize()
	body := lipgloss.JoinHorizontal(lipgloss.Top,
		listStyle.Height(h).Render(strings.TrimRight(list.String(), "\n")),
		m.viewport.View(),
	)

	status := string(m.status)
	if m.attempt > 0 {
		status += fmt.Sprintf(" (attempt %d)", m.attempt)
	}
	footer := dimStyle.Render(status)
	if m.lastEvent != "" {
		footer += dimStyle.Render(" | " + m.lastEvent)
	}
	footer += "\n" + dimStyle.Render(m.keys.help())

	return header + "\n" + body + "\n" + footer
}
