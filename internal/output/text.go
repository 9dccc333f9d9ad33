package output

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/vburojevic/hotswap/internal/domain"
)

// RecordWriter is implemented by both output formats
type RecordWriter interface {
	Write(v interface{}) error
}

var (
	_ RecordWriter = (*NDJSONWriter)(nil)
	_ RecordWriter = (*TextWriter)(nil)
)

var (
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	titleStyle = lipgloss.NewStyle().Bold(true)
)

// TextWriter renders records as human-readable lines
type TextWriter struct {
	mu    sync.Mutex
	w     io.Writer
	color bool
}

// NewTextWriter creates a plain text writer
func NewTextWriter(w io.Writer) *TextWriter {
	return &TextWriter{w: w}
}

// WithColor enables lipgloss styling
func (t *TextWriter) WithColor(on bool) *TextWriter {
	t.color = on
	return t
}

func (t *TextWriter) style(s lipgloss.Style, text string) string {
	if !t.color {
		return text
	}
	return s.Render(text)
}

// Write renders one record
func (t *TextWriter) Write(v interface{}) error {
	var line string
	switch r := v.(type) {
	case *Ready:
		line = fmt.Sprintf("%s session %s (%s)", t.style(titleStyle, "ready"), r.SessionID, r.Strategy)
		if r.SyncURL != "" {
			line += " " + t.style(dimStyle, r.SyncURL)
		}
	case *Loaded:
		line = fmt.Sprintf("%s %s v%d: %d screens, %d stubs in %dms",
			t.style(okStyle, "loaded"), r.SessionID, r.Version, r.Screens, r.Stubs, r.DurationMs)
	case *Screen:
		state := t.style(okStyle, "ok")
		if r.Stub {
			state = t.style(errStyle, "stub")
		}
		line = fmt.Sprintf("  %-24s %-9s %s", r.ScreenID, r.Origin, state)
		if r.Error != "" {
			line += " " + t.style(dimStyle, r.Error)
		}
	case *Change:
		label := t.style(okStyle, r.Kind)
		if r.Stub {
			label = t.style(warnStyle, r.Kind+" (stub)")
		}
		line = fmt.Sprintf("%s %s", label, strings.TrimSpace(r.ScreenID+" v"+fmt.Sprint(r.Version)))
		if r.Error != "" {
			line += " " + t.style(dimStyle, r.Error)
		}
	case *SyncEvent:
		label := r.Action
		switch r.Action {
		case "failed", "dropped":
			label = t.style(warnStyle, label)
		default:
			label = t.style(dimStyle, label)
		}
		line = fmt.Sprintf("%s %s %s", label, r.MessageType, strings.Join(r.ScreenIDs, ","))
		if r.FilePath != "" {
			line += " " + r.FilePath
		}
		if r.Error != "" {
			line += ": " + r.Error
		}
		line = strings.TrimRight(line, " ")
	case *Status:
		line = fmt.Sprintf("%s %s", t.style(dimStyle, "live-sync"), r.Status)
		if r.Attempt > 0 {
			line += fmt.Sprintf(" (attempt %d)", r.Attempt)
		}
	case *domain.SessionSwitch:
		line = fmt.Sprintf("%s %s (%s)", t.style(titleStyle, "session"), r.SessionID, r.Source)
		if r.PreviousID != "" {
			line += " was " + r.PreviousID
		}
	case *SessionEnd:
		line = fmt.Sprintf("%s %s: %d reloads, %d injections, %d stubs, %d failures in %ds",
			t.style(dimStyle, "session end"), r.SessionID, r.Reloads, r.Injections, r.Stubs, r.Failures, r.DurationSeconds)
	case *Render:
		line = strings.TrimRight(FormatTree(r.Tree), "\n")
	case *Trigger:
		line = fmt.Sprintf("[TRIGGER:%s] %s", r.Trigger, r.Command)
		if r.Error != "" {
			line = fmt.Sprintf("[TRIGGER ERROR] %s: %s", r.Command, r.Error)
		}
	case *Tmux:
		line = fmt.Sprintf("Tmux session: %s\nAttach with: %s", r.Session, r.Attach)
	case *ErrorRecord:
		line = fmt.Sprintf("%s [%s]: %s", t.style(errStyle, "Error"), r.Code, r.Message)
		if r.Hint != "" {
			line += fmt.Sprintf(" (hint: %s)", r.Hint)
		}
	default:
		line = fmt.Sprint(v)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	_, err := fmt.Fprintln(t.w, line)
	return err
}

// FormatTree renders a node tree as indented markup
func FormatTree(n *domain.Node) string {
	var b strings.Builder
	writeNode(&b, n, 0)
	return b.String()
}

func writeNode(b *strings.Builder, n *domain.Node, depth int) {
	if n == nil {
		return
	}
	indent := strings.Repeat("  ", depth)
	if n.IsText() {
		fmt.Fprintf(b, "%s%q\n", indent, n.Text)
		return
	}
	b.WriteString(indent + "<" + n.Type)
	keys := make([]string, 0, len(n.Props))
	for k := range n.Props {
		if k != "children" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(b, " %s=%v", k, n.Props[k])
	}
	if len(n.Children) == 0 {
		b.WriteString(" />\n")
		return
	}
	b.WriteString(">\n")
	for _, c := range n.Children {
		writeNode(b, c, depth+1)
	}
	b.WriteString(indent + "</" + n.Type + ">\n")
}
