package tmux

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// ClearPane clears the pane content and scrollback history
func (m *Manager) ClearPane() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pane == "" {
		return ErrNoPaneAvailable
	}

	if _, err := m.tmux.Command("send-keys", "-t", m.pane, "-R"); err != nil {
		return fmt.Errorf("failed to reset terminal: %w", err)
	}
	if _, err := m.tmux.Command("clear-history", "-t", m.pane); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	if _, err := m.tmux.Command("send-keys", "-t", m.pane, "clear", "Enter"); err != nil {
		return fmt.Errorf("failed to clear screen: %w", err)
	}
	return nil
}

// ClearPaneWithBanner clears the pane and displays a header
func (m *Manager) ClearPaneWithBanner(message string) error {
	if err := m.ClearPane(); err != nil {
		return err
	}
	return m.WriteLines(banner(
		"hotswap - "+message,
		fmt.Sprintf("tmux: %s | Started: %s", m.config.SessionName, time.Now().Format("2006-01-02 15:04:05")),
	))
}

// WriteSessionBanner marks a switch to another preview session
func (m *Manager) WriteSessionBanner(sessionID, previousID, summary string) error {
	second := time.Now().Format("2006-01-02 15:04:05")
	if previousID != "" {
		second = fmt.Sprintf("Previous: %s | %s", previousID, second)
	}
	if summary != "" {
		second = summary + " | " + second
	}
	return m.WriteLines(append([]string{""}, banner("SESSION "+sessionID, second)...))
}

func banner(first, second string) []string {
	rule := strings.Repeat("═", 62)
	return []string{rule, "  " + first, "  " + second, rule}
}

// WriteLine writes a single line to the tmux pane using echo
func (m *Manager) WriteLine(line string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pane == "" {
		return ErrNoPaneAvailable
	}
	_, err := m.tmux.Command("send-keys", "-t", m.pane, fmt.Sprintf("echo '%s'", escapeTmuxString(line)), "Enter")
	return err
}

// WriteLines writes multiple lines
func (m *Manager) WriteLines(lines []string) error {
	for _, line := range lines {
		if err := m.WriteLine(line); err != nil {
			return err
		}
	}
	return nil
}

// escapeTmuxString escapes special characters for tmux send-keys
func escapeTmuxString(s string) string {
	// Escape single quotes for shell
	s = strings.ReplaceAll(s, "'", "'\"'\"'")
	// Escape backslashes
	s = strings.ReplaceAll(s, "\\", "\\\\")
	return s
}

type lineWriter interface {
	WriteLine(line string) error
}

// Writer implements io.Writer for streaming output to a tmux pane
type Writer struct {
	lines  lineWriter
	buffer strings.Builder
}

// NewWriter creates a new writer that streams to the manager's pane
func NewWriter(manager *Manager) *Writer {
	return &Writer{lines: manager}
}

// Write implements io.Writer. Complete lines are sent, a trailing partial
// line is held until the next write or Flush.
func (w *Writer) Write(p []byte) (n int, err error) {
	w.buffer.Write(p)

	content := w.buffer.String()
	lines := strings.Split(content, "\n")
	w.buffer.Reset()
	if !strings.HasSuffix(content, "\n") {
		w.buffer.WriteString(lines[len(lines)-1])
	}
	lines = lines[:len(lines)-1]

	for _, line := range lines {
		if line == "" {
			continue
		}
		if err := w.lines.WriteLine(line); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

// Flush writes any remaining buffered content
func (w *Writer) Flush() error {
	if w.buffer.Len() > 0 {
		err := w.lines.WriteLine(w.buffer.String())
		w.buffer.Reset()
		return err
	}
	return nil
}

var _ io.Writer = (*Writer)(nil)
