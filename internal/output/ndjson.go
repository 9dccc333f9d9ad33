package output

import (
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/vburojevic/hotswap/internal/domain"
)

// SchemaVersion is stamped on every NDJSON record
const SchemaVersion = 1

// Ready is emitted once a command has resolved its session and strategy
type Ready struct {
	Type          string `json:"type"` // "ready"
	SchemaVersion int    `json:"schemaVersion"`
	Timestamp     string `json:"timestamp"`
	RunID         string `json:"run_id,omitempty"`
	SessionID     string `json:"session_id"`
	Strategy      string `json:"strategy"`
	ServerURL     string `json:"server_url,omitempty"`
	SyncURL       string `json:"sync_url,omitempty"`
}

// Loaded summarizes a completed session load
type Loaded struct {
	Type          string `json:"type"` // "session_loaded"
	SchemaVersion int    `json:"schemaVersion"`
	SessionID     string `json:"session_id"`
	Strategy      string `json:"strategy"`
	Version       int64  `json:"version"`
	Screens       int    `json:"screens"`
	Stubs         int    `json:"stubs"`
	DurationMs    int64  `json:"duration_ms"`
}

// Screen describes one resolvable screen
type Screen struct {
	Type          string `json:"type"` // "screen"
	SchemaVersion int    `json:"schemaVersion"`
	SessionID     string `json:"session_id"`
	ScreenID      string `json:"screen_id"`
	Name          string `json:"name,omitempty"`
	Path          string `json:"path,omitempty"`
	Origin        string `json:"origin"`
	Stub          bool   `json:"stub"`
	Error         string `json:"error,omitempty"`
	LastModified  string `json:"last_modified,omitempty"`
}

// Change reports a mutation applied by the loader
type Change struct {
	Type          string `json:"type"` // "change"
	SchemaVersion int    `json:"schemaVersion"`
	Timestamp     string `json:"timestamp"`
	Kind          string `json:"kind"`
	SessionID     string `json:"session_id"`
	ScreenID      string `json:"screen_id,omitempty"`
	Version       int64  `json:"version"`
	Stub          bool   `json:"stub,omitempty"`
	Error         string `json:"error,omitempty"`
}

// SyncEvent reports one handled live-sync message
type SyncEvent struct {
	Type          string   `json:"type"` // "sync"
	SchemaVersion int      `json:"schemaVersion"`
	Timestamp     string   `json:"timestamp"`
	MessageType   string   `json:"message_type,omitempty"`
	SessionID     string   `json:"session_id,omitempty"`
	Action        string   `json:"action"`
	ScreenIDs     []string `json:"screen_ids,omitempty"`
	FilePath      string   `json:"file_path,omitempty"`
	Error         string   `json:"error,omitempty"`
}

// Status reports a live-sync connection status change
type Status struct {
	Type          string `json:"type"` // "status"
	SchemaVersion int    `json:"schemaVersion"`
	Timestamp     string `json:"timestamp"`
	Status        string `json:"status"`
	Attempt       int    `json:"attempt"`
}

// SessionEnd summarizes activity for a session when watching stops or switches
type SessionEnd struct {
	Type            string `json:"type"` // "session_end"
	SchemaVersion   int    `json:"schemaVersion"`
	SessionID       string `json:"session_id"`
	Reloads         int    `json:"reloads"`
	Injections      int    `json:"injections"`
	Navigation      int    `json:"navigation"`
	Removals        int    `json:"removals"`
	Stubs           int    `json:"stubs"`
	Failures        int    `json:"failures"`
	DurationSeconds int    `json:"duration_seconds"`
}

// Render carries a rendered tree
type Render struct {
	Type          string       `json:"type"` // "render"
	SchemaVersion int          `json:"schemaVersion"`
	SessionID     string       `json:"session_id"`
	ScreenID      string       `json:"screen_id,omitempty"`
	Origin        string       `json:"origin,omitempty"`
	Tree          *domain.Node `json:"tree"`
}

// Trigger reports a hook command run by watch
type Trigger struct {
	Type          string `json:"type"` // "trigger" or "trigger_error"
	SchemaVersion int    `json:"schemaVersion"`
	Trigger       string `json:"trigger"`
	Command       string `json:"command"`
	ScreenID      string `json:"screen_id,omitempty"`
	Error         string `json:"error,omitempty"`
}

// Tmux tells where watch output is mirrored
type Tmux struct {
	Type          string `json:"type"` // "tmux"
	SchemaVersion int    `json:"schemaVersion"`
	Session       string `json:"session"`
	Attach        string `json:"attach"`
}

// ErrorRecord is a machine-readable failure
type ErrorRecord struct {
	Type          string `json:"type"` // "error"
	SchemaVersion int    `json:"schemaVersion"`
	Code          string `json:"code"`
	Message       string `json:"message"`
	Hint          string `json:"hint,omitempty"`
}

// Now formats the current time the way records carry it
func Now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// NDJSONWriter writes one JSON object per line. Safe for concurrent use.
type NDJSONWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewNDJSONWriter creates a writer on w
func NewNDJSONWriter(w io.Writer) *NDJSONWriter {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &NDJSONWriter{enc: enc}
}

// Write encodes v as one line
func (w *NDJSONWriter) Write(v interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.enc.Encode(v)
}

// WriteError writes an error record
func (w *NDJSONWriter) WriteError(code, message string, hint ...string) error {
	rec := &ErrorRecord{Type: "error", SchemaVersion: SchemaVersion, Code: code, Message: message}
	if len(hint) > 0 {
		rec.Hint = hint[0]
	}
	return w.Write(rec)
}

// WriteSessionSwitch writes a session switch event
func (w *NDJSONWriter) WriteSessionSwitch(ev *domain.SessionSwitch) error {
	return w.Write(ev)
}
