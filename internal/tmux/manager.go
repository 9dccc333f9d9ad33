package tmux

import (
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"sync"

	"github.com/GianlucaP106/gotmux/gotmux"
)

// ErrNoPaneAvailable is returned when writing before a session exists
var ErrNoPaneAvailable = errors.New("tmux pane not available")

// Config configures the mirror session
type Config struct {
	SessionName string
	// Title is shown in banners, usually the preview session id
	Title string
}

// Manager owns one detached tmux session that mirrors watch output
type Manager struct {
	mu     sync.Mutex
	tmux   *gotmux.Tmux
	config *Config
	pane   string // send-keys target, empty until a session exists
	owned  bool   // created by us, killed on Cleanup
}

// IsTmuxAvailable reports whether a tmux binary is on PATH
func IsTmuxAvailable() bool {
	_, err := exec.LookPath("tmux")
	return err == nil
}

var nonSessionChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// GenerateSessionName derives a tmux-safe session name from a preview session id
func GenerateSessionName(sessionID string) string {
	name := strings.Trim(nonSessionChars.ReplaceAllString(sessionID, "-"), "-")
	if name == "" {
		return "hotswap"
	}
	if len(name) > 32 {
		name = name[:32]
	}
	return "hotswap-" + name
}

// NewManager connects to the default tmux server
func NewManager(cfg *Config) (*Manager, error) {
	if cfg == nil || cfg.SessionName == "" {
		return nil, errors.New("tmux session name is required")
	}
	t, err := gotmux.DefaultTmux()
	if err != nil {
		return nil, fmt.Errorf("connect to tmux: %w", err)
	}
	return &Manager{tmux: t, config: cfg}, nil
}

// GetOrCreateSession reuses the named session or creates a detached one
func (m *Manager) GetOrCreateSession() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.tmux.HasSession(m.config.SessionName) {
		if _, err := m.tmux.NewSession(&gotmux.SessionOptions{Name: m.config.SessionName}); err != nil {
			return fmt.Errorf("create tmux session %s: %w", m.config.SessionName, err)
		}
		m.owned = true
	}
	m.pane = paneTarget(m.config.SessionName)
	return nil
}

// AttachCommand returns the shell command that attaches to the mirror
func (m *Manager) AttachCommand() string {
	return fmt.Sprintf("tmux attach -t %s", m.config.SessionName)
}

// Cleanup kills the session if this manager created it
func (m *Manager) Cleanup() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pane == "" || !m.owned {
		return nil
	}
	m.pane = ""
	_, err := m.tmux.Command("kill-session", "-t", m.config.SessionName)
	return err
}

func paneTarget(session string) string {
	return session + ":0.0"
}
