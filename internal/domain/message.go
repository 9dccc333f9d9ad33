package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// MessageType is the kind of a live-sync message
type MessageType string

const (
	MessageScreenUpdate     MessageType = "screen_update"
	MessageScreenInjection  MessageType = "screen_injection"
	MessageNavigationUpdate MessageType = "navigation_update"
	MessageFileChange       MessageType = "file_change"
)

// Valid reports whether t is one of the four known kinds
func (t MessageType) Valid() bool {
	switch t {
	case MessageScreenUpdate, MessageScreenInjection, MessageNavigationUpdate, MessageFileChange:
		return true
	}
	return false
}

// ChangeType describes what happened to a screen or file
type ChangeType string

const (
	ChangeModified ChangeType = "modified"
	ChangeCreated  ChangeType = "created"
	ChangeDeleted  ChangeType = "deleted"
)

// Message is the live-sync envelope. Payload is decoded per Type.
type Message struct {
	Type      MessageType     `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	SessionID string          `json:"sessionId"`
	Timestamp int64           `json:"timestamp"` // ms since epoch
}

// Time returns the envelope timestamp
func (m *Message) Time() time.Time {
	return MillisToTime(m.Timestamp)
}

// ScreenUpdatePayload is the payload of screen_update
type ScreenUpdatePayload struct {
	ScreenID   string        `json:"screenId"`
	ChangeType ChangeType    `json:"changeType"`
	ScreenData *ScreenSource `json:"screenData,omitempty"`
}

// ScreenInjectionPayload is the payload of screen_injection
type ScreenInjectionPayload struct {
	ScreenID   string        `json:"screenId"`
	ScreenData *ScreenSource `json:"screenData,omitempty"`
}

// NavigationUpdatePayload is the payload of navigation_update
type NavigationUpdatePayload struct {
	ChangeType       ChangeType       `json:"changeType"`
	NavigationConfig *NavigationPatch `json:"navigationConfig,omitempty"`
	AffectedRoutes   []string         `json:"affectedRoutes,omitempty"`
}

// FileChangePayload is the payload of file_change
type FileChangePayload struct {
	FilePath        string     `json:"filePath"`
	ChangeType      ChangeType `json:"changeType"`
	AffectedScreens []string   `json:"affectedScreens,omitempty"`
}

// ErrMalformedMessage is returned for envelopes that cannot be dispatched
var ErrMalformedMessage = errors.New("malformed message")

// DecodeMessage parses an envelope and validates its kind
func DecodeMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if !msg.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown type %q", ErrMalformedMessage, msg.Type)
	}
	return &msg, nil
}

// DecodePayload decodes the envelope payload into v
func (m *Message) DecodePayload(v interface{}) error {
	if len(m.Payload) == 0 || string(m.Payload) == "null" {
		return fmt.Errorf("%w: %s without payload", ErrMalformedMessage, m.Type)
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("%w: %s payload: %v", ErrMalformedMessage, m.Type, err)
	}
	return nil
}
