package tui

import (
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vburojevic/hotswap/internal/domain"
	"github.com/vburojevic/hotswap/internal/evaluator"
	"github.com/vburojevic/hotswap/internal/livesync"
	"github.com/vburojevic/hotswap/internal/loader"
)

type textComponent string

func (c textComponent) Render(map[string]interface{}) (*domain.Node, error) {
	return &domain.Node{Type: "Text", Children: []*domain.Node{{Text: string(c)}}}, nil
}

type fakeSource struct {
	ids     []string
	screens map[string]domain.Component
}

func (f *fakeSource) SessionID() string     { return "s1" }
func (f *fakeSource) ScreenIDs() []string   { return f.ids }
func (f *fakeSource) App() domain.Component { return textComponent("app root") }
func (f *fakeSource) Resolve(id string) (domain.Component, loader.Origin, bool) {
	c, ok := f.screens[id]
	if !ok {
		return nil, loader.OriginNone, false
	}
	return c, loader.OriginSession, true
}

func newSource() *fakeSource {
	return &fakeSource{
		ids: []string{"Home", "Settings"},
		screens: map[string]domain.Component{
			"Home":     textComponent("hello home"),
			"Settings": textComponent("settings v1"),
		},
	}
}

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	nm, ok := next.(Model)
	require.True(t, ok)
	return nm
}

func sized(t *testing.T, src Source, ctl Controls) Model {
	t.Helper()
	return update(t, New(src, "bundle", ctl), tea.WindowSizeMsg{Width: 100, Height: 30})
}

func press(t *testing.T, m Model, k string) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)})
	nm, ok := next.(Model)
	require.True(t, ok)
	return nm, cmd
}

func TestModel_RendersAppThenNavigates(t *testing.T) {
	m := sized(t, newSource(), Controls{})
	assert.Equal(t, AppEntry, m.Selected())
	assert.Contains(t, m.View(), "app root")
	assert.Contains(t, m.View(), "hotswap s1")

	m = update(t, m, tea.KeyMsg{Type: tea.KeyDown})
	assert.Equal(t, "Home", m.Selected())
	assert.Contains(t, m.View(), "hello home")

	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("j")})
	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("j")})
	assert.Equal(t, "Settings", m.Selected(), "cursor stops at the last entry")

	m = update(t, m, tea.KeyMsg{Type: tea.KeyUp})
	assert.Equal(t, "Home", m.Selected())
}

func TestModel_ChangeReRendersAndKeepsSelection(t *testing.T) {
	src := newSource()
	m := sized(t, src, Controls{})
	m = update(t, m, tea.KeyMsg{Type: tea.KeyDown})
	m = update(t, m, tea.KeyMsg{Type: tea.KeyDown})
	require.Equal(t, "Settings", m.Selected())

	src.ids = []string{"About", "Home", "Settings"}
	src.screens["About"] = textComponent("about")
	src.screens["Settings"] = evaluator.Stub("Settings", errors.New("boom"))
	m = update(t, m, ChangeMsg(loader.Change{Kind: loader.ChangeScreenReloaded, ScreenID: "Settings", Version: 7, Stub: true}))

	assert.Equal(t, "Settings", m.Selected())
	view := m.View()
	assert.Contains(t, view, "v7")
	assert.Contains(t, view, "screen_reloaded Settings v7 (stub)")
	assert.Contains(t, view, domain.NodeTypeErrorStub)
	assert.Contains(t, view, "About")
}

func TestModel_StatusEventsAndReconnect(t *testing.T) {
	reconnects := 0
	m := sized(t, newSource(), Controls{Reconnect: func() { reconnects++ }})

	m = update(t, m, StatusMsg{Status: domain.StatusConnecting, Attempt: 2})
	assert.Contains(t, m.View(), "connecting (attempt 2)")

	m = update(t, m, EventMsg(livesync.Event{Type: domain.MessageFileChange, Action: livesync.ActionFailed, Error: "fetch 500"}))
	assert.Contains(t, m.View(), "failed file_change: fetch 500")

	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")})
	assert.Equal(t, 1, reconnects)
	assert.Contains(t, m.View(), "manual reconnect")
}

func TestModel_Quit(t *testing.T) {
	m := sized(t, newSource(), Controls{})
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestModel_NotReady(t *testing.T) {
	m := New(newSource(), "bundle", Controls{})
	assert.Equal(t, "loading...", m.View())
}

func TestModel_InitialLoadFailureShowsRetry(t *testing.T) {
	loads := 0
	fail := true
	ctl := Controls{Load: func() error {
		loads++
		if fail {
			return errors.New("bundle 503")
		}
		return nil
	}}
	m := sized(t, newSource(), ctl)
	assert.Contains(t, m.View(), "loading session s1")

	start := m.Init()
	require.NotNil(t, start)
	m = update(t, m, start())
	assert.Equal(t, 1, loads)
	require.Error(t, m.LoadErr())
	view := m.View()
	assert.Contains(t, view, "Load failed")
	assert.Contains(t, view, "bundle 503")
	assert.Contains(t, view, "press l to retry")

	fail = false
	m, cmd := press(t, m, "l")
	require.NotNil(t, cmd)
	assert.Contains(t, m.View(), "loading session s1")

	_, again := press(t, m, "l")
	assert.Nil(t, again, "no second load while one is running")

	m = update(t, m, cmd())
	assert.Equal(t, 2, loads)
	assert.NoError(t, m.LoadErr())
	assert.Contains(t, m.View(), "app root")
	assert.Contains(t, m.View(), "reloaded")
}

func TestModel_ClearCacheThenReload(t *testing.T) {
	var calls []string
	ctl := Controls{
		Load:       func() error { calls = append(calls, "load"); return nil },
		ClearCache: func() int { calls = append(calls, "clear"); return 3 },
	}
	m := sized(t, newSource(), ctl)
	m = update(t, m, m.Init()())
	calls = nil

	m, cmd := press(t, m, "c")
	require.NotNil(t, cmd)
	msg := cmd()
	assert.Equal(t, []string{"clear", "load"}, calls)
	loaded, ok := msg.(LoadedMsg)
	require.True(t, ok)
	assert.True(t, loaded.Cache)
	assert.Equal(t, 3, loaded.Cleared)

	m = update(t, m, msg)
	assert.Contains(t, m.View(), "cache cleared (3), reloaded")
}

func TestModel_ReloadKeysWithoutControls(t *testing.T) {
	m := sized(t, newSource(), Controls{})
	assert.Nil(t, m.Init())
	_, cmd := press(t, m, "l")
	assert.Nil(t, cmd)
	_, cmd = press(t, m, "c")
	assert.Nil(t, cmd)
}
