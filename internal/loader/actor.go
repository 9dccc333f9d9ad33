package loader

import (
	"sort"
	"sync"
	"time"

	"github.com/vburojevic/hotswap/internal/domain"
)

// actor owns a session aggregate. Every read and write of the aggregate runs
// on its goroutine, so initial-load commits and event-driven commits are
// serialized and the last commit per screen id wins.
type actor struct {
	ops  chan func()
	done chan struct{}
	once sync.Once
}

func newActor() *actor {
	a := &actor{
		ops:  make(chan func()),
		done: make(chan struct{}),
	}
	go a.loop()
	return a
}

func (a *actor) loop() {
	for {
		select {
		case op := <-a.ops:
			op()
		case <-a.done:
			return
		}
	}
}

// do runs fn on the owning goroutine and waits for it to finish
func (a *actor) do(fn func()) error {
	finished := make(chan struct{})
	select {
	case a.ops <- func() { defer close(finished); fn() }:
	case <-a.done:
		return ErrClosed
	}
	<-finished
	return nil
}

func (a *actor) stop() {
	a.once.Do(func() { close(a.done) })
}

// loadWindow tracks a load in progress. It is owned by the actor.
//
// An update that arrives before the load has installed its screen list is
// held here. The load then fetches that id without consulting the cache, and
// any held id the listing did not name is replayed once the load returns.
type loadWindow struct {
	active bool
	listed bool
	held   map[string]bool
	nav    []*domain.NavigationPatch
}

func (w *loadWindow) begin() {
	w.active = true
	w.listed = false
	w.held = make(map[string]bool)
	w.nav = nil
}

// hold records id if a load is running and has not installed its list yet
func (w *loadWindow) hold(id string) bool {
	if !w.active || w.listed {
		return false
	}
	w.held[id] = true
	return true
}

// holdNavigation queues p if a load is running and has not listed yet
func (w *loadWindow) holdNavigation(p *domain.NavigationPatch) bool {
	if !w.active || w.listed {
		return false
	}
	w.nav = append(w.nav, p)
	return true
}

// list marks the load's screen list as installed and returns the queued
// navigation patches, oldest first
func (w *loadWindow) list() []*domain.NavigationPatch {
	w.listed = true
	nav := w.nav
	w.nav = nil
	return nav
}

// take reports and forgets a held id
func (w *loadWindow) take(id string) bool {
	if !w.held[id] {
		return false
	}
	delete(w.held, id)
	return true
}

// end closes the window and returns the ids nobody took, sorted
func (w *loadWindow) end() []string {
	ids := make([]string, 0, len(w.held))
	for id := range w.held {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	w.active = false
	w.listed = false
	w.held = nil
	w.nav = nil
	return ids
}

// commitMode tells commit who is writing
type commitMode int

const (
	// commitEvent always replaces, subject to strict ordering
	commitEvent commitMode = iota
	// commitInitial fills an entry the running load listed. It never replaces
	// an entry an event committed during the load unless it is strictly newer.
	commitInitial
)

// supersedes reports whether an initial-load commit may replace current
func supersedes(strict bool, incoming, current time.Time) bool {
	return strict && !incoming.IsZero() && !current.IsZero() && incoming.After(current)
}
