package filter

import (
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/vburojevic/hotswap/internal/output"
)

// DedupeFilter collapses repeated identical records. Editors often save a
// file several times in a burst, which the server reports as separate
// file_change messages; every message is still dispatched, only the
// reporting is collapsed.
type DedupeFilter struct {
	mu      sync.Mutex
	clock   clock.Clock
	window  time.Duration // 0 = consecutive only
	seen    map[string]*dedupeEntry
	lastKey string
	dropped int
}

type dedupeEntry struct {
	count     int
	firstSeen time.Time
	lastSeen  time.Time
}

// NewDedupeFilter creates a new deduplication filter.
// window=0 collapses only consecutive identical records; window>0 collapses
// identical records seen within the window.
func NewDedupeFilter(window time.Duration, clk clock.Clock) *DedupeFilter {
	if clk == nil {
		clk = clock.New()
	}
	return &DedupeFilter{
		clock:  clk,
		window: window,
		seen:   make(map[string]*dedupeEntry),
	}
}

// DedupeResult holds the result of a dedupe check
type DedupeResult struct {
	ShouldEmit bool
	Count      int // 1 = first occurrence
	FirstSeen  time.Time
	LastSeen   time.Time
}

// Key identifies a record for deduplication. Versions and timestamps are
// left out so a burst of reloads of one screen shares a key. Records
// without a key are never collapsed.
func Key(rec interface{}) string {
	switch r := rec.(type) {
	case *output.SyncEvent:
		return strings.Join([]string{"sync", r.MessageType, r.Action, strings.Join(r.ScreenIDs, ","), r.FilePath, r.Error}, "|")
	case *output.Change:
		return strings.Join([]string{"change", r.Kind, r.ScreenID, r.Error}, "|")
	}
	return ""
}

// Check determines if a record should be emitted or suppressed
func (f *DedupeFilter) Check(rec interface{}) DedupeResult {
	now := f.clock.Now()
	key := Key(rec)
	if key == "" {
		return DedupeResult{ShouldEmit: true, Count: 1, FirstSeen: now, LastSeen: now}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.window > 0 {
		f.cleanOldEntries(now)
	}

	if existing, ok := f.seen[key]; ok && (f.window > 0 || f.lastKey == key) {
		existing.count++
		existing.lastSeen = now
		f.dropped++
		return DedupeResult{
			ShouldEmit: false,
			Count:      existing.count,
			FirstSeen:  existing.firstSeen,
			LastSeen:   existing.lastSeen,
		}
	}

	if f.window == 0 {
		// Consecutive mode only needs the previous record
		f.seen = make(map[string]*dedupeEntry, 1)
	}
	f.seen[key] = &dedupeEntry{count: 1, firstSeen: now, lastSeen: now}
	f.lastKey = key

	return DedupeResult{ShouldEmit: true, Count: 1, FirstSeen: now, LastSeen: now}
}

// Suppressed returns how many records were collapsed in total
func (f *DedupeFilter) Suppressed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dropped
}

// Reset clears the deduplication state, e.g. on session switch
func (f *DedupeFilter) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = make(map[string]*dedupeEntry)
	f.lastKey = ""
	f.dropped = 0
}

// cleanOldEntries removes entries outside the time window
func (f *DedupeFilter) cleanOldEntries(now time.Time) {
	cutoff := now.Add(-f.window)
	for key, entry := range f.seen {
		if entry.lastSeen.Before(cutoff) {
			delete(f.seen, key)
		}
	}
}
