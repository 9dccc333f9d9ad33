package sessionctx

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/vburojevic/hotswap/internal/domain"
)

// DefaultHostVar is the environment variable the host publishes the session in
const DefaultHostVar = "HOTSWAP_SESSION"

// HostGlobal is the session published by the hosting process. Read returns
// nil when the host has not published one (yet).
type HostGlobal interface {
	Read() (*domain.Session, error)
	Write(s *domain.Session) error
}

// EnvHost reads and mirrors the session through an environment variable
// holding either a bare id or a Session JSON object.
type EnvHost struct {
	Var string
}

func (h EnvHost) name() string {
	if h.Var == "" {
		return DefaultHostVar
	}
	return h.Var
}

// Read implements HostGlobal
func (h EnvHost) Read() (*domain.Session, error) {
	return ParseSession(os.Getenv(h.name()))
}

// Write implements HostGlobal
func (h EnvHost) Write(s *domain.Session) error {
	if s == nil {
		return os.Unsetenv(h.name())
	}
	if s.IDOnly() {
		return os.Setenv(h.name(), s.ID)
	}
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return os.Setenv(h.name(), string(b))
}

// ParseSession accepts a bare id or a Session JSON object. Blank input is nil.
func ParseSession(raw string) (*domain.Session, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if !strings.HasPrefix(raw, "{") {
		return &domain.Session{ID: raw}, nil
	}
	var s domain.Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, fmt.Errorf("parse host session: %w", err)
	}
	if strings.TrimSpace(s.ID) == "" {
		return nil, fmt.Errorf("parse host session: id is required")
	}
	return &s, nil
}
