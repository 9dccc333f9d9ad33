package session

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/vburojevic/hotswap/internal/livesync"
	"github.com/vburojevic/hotswap/internal/loader"
	"github.com/vburojevic/hotswap/internal/output"
)

// Tracker counts what happened to the active session while watching so a
// summary can be emitted when the session switches or the watch ends
type Tracker struct {
	mu           sync.Mutex
	clock        clock.Clock
	sessionID    string
	sessionStart time.Time
	reloads      int
	injections   int
	navigation   int
	removals     int
	stubs        int
	failures     int
	initialized  bool
}

// NewTracker creates a new session tracker
func NewTracker(clk clock.Clock) *Tracker {
	if clk == nil {
		clk = clock.New()
	}
	return &Tracker{clock: clk}
}

// Start begins tracking sessionID. When a different session was being
// tracked its summary is returned.
func (t *Tracker) Start(sessionID string) *output.SessionEnd {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.initialized && t.sessionID == sessionID {
		return nil
	}
	var end *output.SessionEnd
	if t.initialized {
		end = t.summaryLocked()
	}

	t.initialized = true
	t.sessionID = sessionID
	t.sessionStart = t.clock.Now()
	t.reloads, t.injections, t.navigation, t.removals, t.stubs, t.failures = 0, 0, 0, 0, 0, 0
	return end
}

// RecordChange counts a loader change. Changes for other sessions are ignored.
func (t *Tracker) RecordChange(c loader.Change) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.initialized || (c.SessionID != "" && c.SessionID != t.sessionID) {
		return
	}
	switch c.Kind {
	case loader.ChangeScreenReloaded:
		t.reloads++
	case loader.ChangeScreenInjected:
		t.injections++
	case loader.ChangeNavigation:
		t.navigation++
	case loader.ChangeOverrideRemoved:
		t.removals++
	}
	if c.Stub {
		t.stubs++
	}
}

// RecordEvent counts a live-sync message the channel could not apply
func (t *Tracker) RecordEvent(ev livesync.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.initialized {
		return
	}
	switch ev.Action {
	case livesync.ActionFailed, livesync.ActionDropped:
		t.failures++
	}
}

// CurrentSession returns the tracked session id
func (t *Tracker) CurrentSession() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessionID
}

// GetFinalSummary returns a summary for the current session (for watch end)
func (t *Tracker) GetFinalSummary() *output.SessionEnd {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.initialized {
		return nil
	}
	return t.summaryLocked()
}

func (t *Tracker) summaryLocked() *output.SessionEnd {
	return &output.SessionEnd{
		Type:            "session_end",
		SchemaVersion:   output.SchemaVersion,
		SessionID:       t.sessionID,
		Reloads:         t.reloads,
		Injections:      t.injections,
		Navigation:      t.navigation,
		Removals:        t.removals,
		Stubs:           t.stubs,
		Failures:        t.failures,
		DurationSeconds: int(t.clock.Since(t.sessionStart).Seconds()),
	}
}

// Stats returns current session statistics
func (t *Tracker) Stats() (reloads, stubs, failures int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reloads, t.stubs, t.failures
}
