package domain

import "time"

// Session identifies one editing workspace on the authoring server.
// The engine only ever reads it; switching replaces it wholesale.
type Session struct {
	ID            string    `json:"id"`                      // Stable session identifier
	WorkspacePath string    `json:"workspacePath,omitempty"` // Workspace root on the authoring side
	StoragePath   string    `json:"storagePath,omitempty"`   // Session storage path on the authoring side
	CreatedAt     time.Time `json:"createdAt,omitempty"`     // Creation time
	LastModified  time.Time `json:"lastModified,omitempty"`  // Last modification time
}

// IDOnly reports whether only the identifier is known (no metadata resolved yet)
func (s *Session) IDOnly() bool {
	return s != nil && s.WorkspacePath == "" && s.StoragePath == "" && s.CreatedAt.IsZero()
}

// SessionSwitch is emitted when the active session changes
type SessionSwitch struct {
	Type          string `json:"type"`                  // "session_switch"
	SchemaVersion int    `json:"schemaVersion"`         // 1
	SessionID     string `json:"session_id"`            // New active session
	PreviousID    string `json:"previous_id,omitempty"` // Previous session (if any)
	Source        string `json:"source"`                // host, slot, switch
	Timestamp     string `json:"timestamp"`             // ISO8601 timestamp
}

// NewSessionSwitch creates a new SessionSwitch event
func NewSessionSwitch(sessionID, previousID, source string) *SessionSwitch {
	return &SessionSwitch{
		Type:          "session_switch",
		SchemaVersion: 1,
		SessionID:     sessionID,
		PreviousID:    previousID,
		Source:        source,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
	}
}
