package cli

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/vburojevic/hotswap/internal/domain"
	"github.com/vburojevic/hotswap/internal/output"
)

// SessionCmd groups active-session commands
type SessionCmd struct {
	Show   SessionShowCmd   `cmd:"" default:"1" help:"Show the active session"`
	Switch SessionSwitchCmd `cmd:"" help:"Make a session the active one"`
	Clear  SessionClearCmd  `cmd:"" help:"Forget the active session"`
}

// sessionOutput is the NDJSON form of a session
type sessionOutput struct {
	Type          string `json:"type"` // "session"
	SchemaVersion int    `json:"schemaVersion"`
	Active        bool   `json:"active"`
	SessionID     string `json:"session_id,omitempty"`
	WorkspacePath string `json:"workspace_path,omitempty"`
	StoragePath   string `json:"storage_path,omitempty"`
	CreatedAt     string `json:"created_at,omitempty"`
	LastModified  string `json:"last_modified,omitempty"`
	Warning       string `json:"warning,omitempty"`
}

func newSessionOutput(s *domain.Session, lastErr error) *sessionOutput {
	out := &sessionOutput{Type: "session", SchemaVersion: output.SchemaVersion}
	if s != nil {
		out.Active = true
		out.SessionID = s.ID
		out.WorkspacePath = s.WorkspacePath
		out.StoragePath = s.StoragePath
		out.CreatedAt = formatTime(s.CreatedAt)
		out.LastModified = formatTime(s.LastModified)
	}
	if lastErr != nil {
		out.Warning = lastErr.Error()
	}
	return out
}

func writeSession(globals *Globals, out *sessionOutput) error {
	if globals.Format == "ndjson" {
		return output.NewNDJSONWriter(globals.Stdout).Write(out)
	}
	if !out.Active {
		fmt.Fprintln(globals.Stdout, "No active session")
		return nil
	}
	fmt.Fprintf(globals.Stdout, "Session: %s\n", out.SessionID)
	if out.WorkspacePath != "" {
		fmt.Fprintf(globals.Stdout, "  workspace: %s\n", out.WorkspacePath)
	}
	if out.StoragePath != "" {
		fmt.Fprintf(globals.Stdout, "  storage:   %s\n", out.StoragePath)
	}
	if out.CreatedAt != "" {
		fmt.Fprintf(globals.Stdout, "  created:   %s\n", out.CreatedAt)
	}
	if out.Warning != "" {
		fmt.Fprintf(globals.Stderr, "Warning: %s\n", out.Warning)
	}
	return nil
}

// SessionShowCmd resolves and prints the active session
type SessionShowCmd struct {
	Server string `help:"Authoring server URL used to look up session metadata"`
}

// Run executes the session show command
func (c *SessionShowCmd) Run(globals *Globals) error {
	ctx, cancel := signalContext()
	defer cancel()

	client, err := newAPIClient(globals, (&previewFlags{Server: c.Server}).serverURL(globals))
	if err != nil {
		return outputErrorCommon(globals, "INVALID_SERVER", err.Error())
	}
	sc, err := newSessionContext(globals, client, nil)
	if err != nil {
		return outputErrorCommon(globals, "SESSION_STATE", err.Error())
	}
	s, err := sc.Init(ctx)
	if err != nil {
		return outputErrorCommon(globals, "SESSION_STATE", err.Error())
	}
	return writeSession(globals, newSessionOutput(s, sc.LastError()))
}

// SessionSwitchCmd persists a new active session
type SessionSwitchCmd struct {
	ID       string `arg:"" help:"Session id"`
	Server   string `help:"Authoring server URL used to look up session metadata"`
	NoLookup bool   `help:"Do not look up session metadata"`
}

// Run executes the session switch command
func (c *SessionSwitchCmd) Run(globals *Globals) error {
	ctx, cancel := signalContext()
	defer cancel()

	client, err := newAPIClient(globals, (&previewFlags{Server: c.Server}).serverURL(globals))
	if err != nil {
		return outputErrorCommon(globals, "INVALID_SERVER", err.Error())
	}
	sc, err := newSessionContext(globals, client, nil)
	if err != nil {
		return outputErrorCommon(globals, "SESSION_STATE", err.Error())
	}

	s := &domain.Session{ID: c.ID}
	var lookupErr error
	if !c.NoLookup {
		lctx, lcancel := context.WithTimeout(ctx, 5*time.Second)
		full, err := client.Session(lctx, c.ID)
		lcancel()
		if err != nil {
			lookupErr = fmt.Errorf("session metadata unavailable: %w", err)
			globals.Logger().Warn("session lookup failed", zap.String("session_id", c.ID), zap.Error(err))
		} else if full != nil {
			full.ID = c.ID
			s = full
		}
	}

	if globals.Format == "ndjson" && !globals.Quiet {
		w := output.NewNDJSONWriter(globals.Stdout)
		sc.OnSwitch(func(ev *domain.SessionSwitch) { _ = w.WriteSessionSwitch(ev) })
	}
	if err := sc.Switch(ctx, s); err != nil {
		return outputErrorCommon(globals, "SWITCH_FAILED", err.Error())
	}
	if globals.Format != "ndjson" {
		fmt.Fprintf(globals.Stdout, "Active session: %s\n", s.ID)
		if lookupErr != nil {
			fmt.Fprintf(globals.Stderr, "Warning: %s\n", lookupErr)
		}
		return nil
	}
	return writeSession(globals, newSessionOutput(sc.Current(), lookupErr))
}

// SessionClearCmd removes the active session
type SessionClearCmd struct{}

// Run executes the session clear command
func (c *SessionClearCmd) Run(globals *Globals) error {
	sc, err := newSessionContext(globals, nil, nil)
	if err != nil {
		return outputErrorCommon(globals, "SESSION_STATE", err.Error())
	}
	if err := sc.Clear(); err != nil {
		return outputErrorCommon(globals, "SESSION_STATE", err.Error())
	}
	if globals.Format == "ndjson" {
		return output.NewNDJSONWriter(globals.Stdout).Write(map[string]interface{}{
			"type":          "session_cleared",
			"schemaVersion": output.SchemaVersion,
		})
	}
	fmt.Fprintln(globals.Stdout, "Active session cleared")
	return nil
}
