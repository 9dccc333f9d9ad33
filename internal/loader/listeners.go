package loader

import (
	"slices"
	"sync"

	"github.com/vburojevic/hotswap/internal/domain"
)

// ChangeKind names a change reported to shells
type ChangeKind string

const (
	ChangeLoaded          ChangeKind = "session_loaded"
	ChangeScreenReloaded  ChangeKind = "screen_reloaded"
	ChangeScreenInjected  ChangeKind = "screen_injected"
	ChangeNavigation      ChangeKind = "navigation_updated"
	ChangeOverrideRemoved ChangeKind = "override_removed"
)

// Change is a summary of one applied mutation
type Change struct {
	Kind      ChangeKind
	SessionID string
	ScreenID  string
	Version   int64
	Stub      bool
	Err       string
}

// listeners holds per-screen listeners (one per id, re-registering replaces)
// and unbounded lists for navigation, injection and change events.
// Callbacks run on the goroutine that applied the mutation, after the
// aggregate has been updated; they must not block for long.
type listeners[T any] struct {
	mu         sync.Mutex
	screens    map[string]func(T)
	navigation []func(*domain.NavigationConfig)
	injection  []func(T)
	changes    []func(Change)
}

func newListeners[T any]() *listeners[T] {
	return &listeners[T]{screens: make(map[string]func(T))}
}

func (l *listeners[T]) onScreen(id string, fn func(T)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if fn == nil {
		delete(l.screens, id)
		return
	}
	l.screens[id] = fn
}

func (l *listeners[T]) onNavigation(fn func(*domain.NavigationConfig)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.navigation = append(l.navigation, fn)
}

func (l *listeners[T]) onInjection(fn func(T)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.injection = append(l.injection, fn)
}

func (l *listeners[T]) onChange(fn func(Change)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.changes = append(l.changes, fn)
}

func (l *listeners[T]) emitScreen(id string, v T) {
	l.mu.Lock()
	fn := l.screens[id]
	l.mu.Unlock()
	if fn != nil {
		fn(v)
	}
}

func (l *listeners[T]) emitNavigation(nav *domain.NavigationConfig) {
	l.mu.Lock()
	fns := slices.Clone(l.navigation)
	l.mu.Unlock()
	for _, fn := range fns {
		fn(nav.Clone())
	}
}

func (l *listeners[T]) emitInjection(v T) {
	l.mu.Lock()
	fns := slices.Clone(l.injection)
	l.mu.Unlock()
	for _, fn := range fns {
		fn(v)
	}
}

func (l *listeners[T]) emitChange(c Change) {
	l.mu.Lock()
	fns := slices.Clone(l.changes)
	l.mu.Unlock()
	for _, fn := range fns {
		fn(c)
	}
}
