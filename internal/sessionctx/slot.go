package sessionctx

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const slotType = "active_session"

// slotState is the on-disk form of the durable active-session slot
type slotState struct {
	Type          string `json:"type"` // "active_session"
	SchemaVersion int    `json:"schemaVersion"`
	SessionID     string `json:"session_id"`
	UpdatedAt     string `json:"updated_at,omitempty"`
}

// Slot persists the active session id across restarts
type Slot struct {
	Path string
}

// DefaultSlotPath returns ~/.hotswap/active-session.json, creating the directory
func DefaultSlotPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".hotswap")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return filepath.Join(dir, "active-session.json"), nil
}

// Load returns the stored session id, or "" when nothing is stored
func (s *Slot) Load() (string, error) {
	path := strings.TrimSpace(s.Path)
	if path == "" {
		return "", errors.New("slot path is required")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	var st slotState
	if err := json.Unmarshal(b, &st); err != nil {
		return "", err
	}
	if st.Type != "" && st.Type != slotType {
		return "", errors.New("slot file is not an active_session record")
	}
	return strings.TrimSpace(st.SessionID), nil
}

// Save stores id
func (s *Slot) Save(id string, now time.Time) error {
	path := strings.TrimSpace(s.Path)
	if path == "" {
		return errors.New("slot path is required")
	}
	if strings.TrimSpace(id) == "" {
		return errors.New("session id is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(&slotState{
		Type:          slotType,
		SchemaVersion: 1,
		SessionID:     id,
		UpdatedAt:     now.UTC().Format(time.RFC3339Nano),
	}, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	return os.WriteFile(path, b, 0o644)
}

// Clear removes the slot file. A missing file is not an error.
func (s *Slot) Clear() error {
	if err := os.Remove(s.Path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
