package loader

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/vburojevic/hotswap/internal/cache"
	"github.com/vburojevic/hotswap/internal/domain"
	"github.com/vburojevic/hotswap/internal/evaluator"
)

// appBundleID names the bundle in evaluation errors and logs
const appBundleID = "app-bundle"

// BundleLoader loads the whole application as one evaluated bundle plus a
// separately fetched navigation config and screen registry.
type BundleLoader struct {
	opts      Options
	src       BundleSource
	log       *zap.Logger
	actor     *actor
	listeners *listeners[*domain.ScreenDefinition]

	// owned by actor
	state   *domain.LoadedSession
	routes  map[string]domain.ScreenRoute // nil: every loaded screen is routed
	version int64
	window  loadWindow
}

var _ Preview = (*BundleLoader)(nil)

// NewBundleLoader creates a loader for opts.SessionID
func NewBundleLoader(src BundleSource, opts Options) *BundleLoader {
	opts.defaults()
	return &BundleLoader{
		opts:      opts,
		src:       src,
		log:       opts.Logger.With(zap.String("session_id", opts.SessionID), zap.String("strategy", "bundle")),
		actor:     newActor(),
		listeners: newListeners[*domain.ScreenDefinition](),
	}
}

// SessionID returns the session this loader serves
func (l *BundleLoader) SessionID() string { return l.opts.SessionID }

// Load implements Preview
func (l *BundleLoader) Load(ctx context.Context) error {
	_, err := l.LoadSession(ctx)
	return err
}

// LoadSession fetches and evaluates the bundle (fatal on failure), the
// navigation config and screen list (logged on failure), then every listed
// screen one at a time in list order. A screen that fails becomes a stub
// definition; the load continues. The previous aggregate is discarded.
//
// Hot reloads may run while the load is in flight. A reload of a listed
// screen commits over (or ahead of) the load's own fetch, and the load's
// older copy does not replace it.
func (l *BundleLoader) LoadSession(ctx context.Context) (*domain.LoadedSession, error) {
	if err := l.actor.do(l.window.begin); err != nil {
		return nil, err
	}
	snap, err := l.loadSession(ctx)
	var held []string
	_ = l.actor.do(func() { held = l.window.end() })
	if err == nil {
		for _, id := range held {
			if rerr := l.HotReloadScreen(ctx, id); rerr != nil {
				l.log.Warn("held reload failed", zap.String("screen_id", id), zap.Error(rerr))
			}
		}
	}
	return snap, err
}

func (l *BundleLoader) loadSession(ctx context.Context) (*domain.LoadedSession, error) {
	id := l.opts.SessionID

	code, err := l.src.AppBundle(ctx, id)
	if err != nil {
		return nil, &SessionLoadError{SessionID: id, Stage: "fetch bundle", Err: err}
	}
	mod, err := l.opts.Evaluator.EvaluateModule(appBundleID, code)
	if err == nil && mod.Default == nil {
		err = &evaluator.EvaluationError{ScreenID: appBundleID, Message: evaluator.ErrNoComponent.Error(), Err: evaluator.ErrNoComponent}
	}
	if err != nil {
		return nil, &SessionLoadError{SessionID: id, Stage: "evaluate bundle", Err: err}
	}

	nav := domain.NewNavigationConfig()
	var routes map[string]domain.ScreenRoute
	if wire, err := l.src.Navigation(ctx, id); err != nil {
		l.log.Warn("navigation fetch failed", zap.Error(err))
	} else {
		nav.InitialRoute = wire.InitialRoute
		nav.TabBar = wire.TabBar
		routes = wire.Screens
	}

	infos, err := l.src.Screens(ctx, id)
	if err != nil {
		l.log.Warn("screen list fetch failed", zap.Error(err))
	}
	order := make([]string, 0, len(infos))
	for _, info := range infos {
		order = append(order, info.ID)
	}

	if err := l.actor.do(func() {
		l.version++
		l.routes = routes
		l.state = &domain.LoadedSession{
			SessionID:  id,
			App:        mod.Default,
			Navigation: nav,
			Screens:    make(map[string]*domain.ScreenDefinition, len(infos)),
			Order:      order,
			Version:    l.version,
			LastUpdate: l.opts.Now(),
		}
		for _, p := range l.window.list() {
			l.mergeNavigationLocked(p)
		}
	}); err != nil {
		return nil, err
	}

	stubs := 0
	for _, info := range infos {
		var fresh bool
		if err := l.actor.do(func() { fresh = l.window.take(info.ID) }); err != nil {
			return nil, err
		}
		def := l.loadListed(ctx, info, fresh)
		if def.Stub {
			stubs++
		}
		if _, err := l.commit(def, commitInitial); err != nil && !errors.Is(err, ErrStaleUpdate) {
			return nil, err
		}
	}

	snap := l.Snapshot()
	l.log.Info("session loaded", zap.Int("screens", len(infos)), zap.Int("stubs", stubs), zap.Int64("version", snap.Version))
	l.listeners.emitChange(Change{Kind: ChangeLoaded, SessionID: id, Version: snap.Version})
	return snap, nil
}

// loadListed returns the cached definition when it is at least as new as the
// listed entry, and fetches + evaluates otherwise. fresh skips the cache.
func (l *BundleLoader) loadListed(ctx context.Context, info domain.ScreenInfo, fresh bool) *domain.ScreenDefinition {
	listed := domain.MillisToTime(info.LastModified)
	if e, ok := l.opts.Cache.Get(l.opts.SessionID, info.ID); ok && !fresh && !e.Metadata.Stub && !listed.IsZero() && !e.Metadata.LastModified.Before(listed) {
		l.log.Debug("screen cache hit", zap.String("screen_id", info.ID))
		return &domain.ScreenDefinition{
			ID:           info.ID,
			Name:         firstNonEmpty(e.Metadata.Name, info.Name, info.ID),
			Path:         firstNonEmpty(e.Metadata.Path, info.Path),
			Component:    e.Component,
			LastModified: e.Metadata.LastModified,
		}
	}
	def, err := l.fetchScreen(ctx, info.ID)
	if err != nil {
		l.log.Warn("screen fetch failed", zap.String("screen_id", info.ID), zap.Error(err))
		return &domain.ScreenDefinition{
			ID:        info.ID,
			Name:      firstNonEmpty(info.Name, info.ID),
			Path:      info.Path,
			Component: evaluator.Stub(info.ID, err),
			Stub:      true,
			Err:       err.Error(),
		}
	}
	def.Name = firstNonEmpty(def.Name, info.Name, info.ID)
	def.Path = firstNonEmpty(def.Path, info.Path)
	return def
}

// fetchScreen fetches one screen and evaluates it. Evaluation failures give a
// stub definition; fetch failures are returned.
func (l *BundleLoader) fetchScreen(ctx context.Context, id string) (*domain.ScreenDefinition, error) {
	src, err := l.src.Screen(ctx, l.opts.SessionID, id)
	if err != nil {
		return nil, err
	}
	return l.definitionFromSource(id, src), nil
}

func (l *BundleLoader) definitionFromSource(id string, src *domain.ScreenSource) *domain.ScreenDefinition {
	comp, err := l.opts.Evaluator.Evaluate(id, src.Code)
	def := &domain.ScreenDefinition{
		ID:           id,
		Name:         src.Name,
		Path:         src.Path,
		Component:    comp,
		Options:      src.Options,
		LastModified: domain.MillisToTime(src.LastModified),
	}
	if err != nil {
		l.log.Warn("screen evaluation failed", zap.String("screen_id", id), zap.Error(err))
		def.Stub = true
		def.Err = err.Error()
	}
	return def
}

// commit replaces the definition for def.ID on the owning goroutine
func (l *BundleLoader) commit(def *domain.ScreenDefinition, mode commitMode) (int64, error) {
	var (
		version int64
		err     error
	)
	if aerr := l.actor.do(func() {
		if l.state == nil {
			err = ErrNotLoaded
			return
		}
		if cur, ok := l.state.Screens[def.ID]; ok {
			if mode == commitInitial && !supersedes(l.opts.StrictOrdering, def.LastModified, cur.LastModified) {
				err = fmt.Errorf("%w: screen %s already reloaded during load", ErrStaleUpdate, def.ID)
				return
			}
			if isStale(l.opts.StrictOrdering, def.LastModified, cur.LastModified) {
				err = fmt.Errorf("%w: screen %s at %s, have %s", ErrStaleUpdate, def.ID, def.LastModified, cur.LastModified)
				return
			}
		}
		l.state.Screens[def.ID] = def
		if route, ok := l.routes[def.ID]; ok {
			l.state.Navigation.Screens[def.ID] = def.WithRoute(route)
		} else if l.routes == nil {
			l.state.Navigation.Screens[def.ID] = def
		}
		l.version++
		l.state.Version = l.version
		l.state.LastUpdate = l.opts.Now()
		version = l.version

		l.opts.Cache.Put(l.opts.SessionID, def.ID, def.Component, cache.Metadata{
			Name:         def.Name,
			Path:         def.Path,
			LastModified: def.LastModified,
			Stub:         def.Stub,
			Err:          def.Err,
		})
	}); aerr != nil {
		return 0, aerr
	}
	return version, err
}

// HotReloadScreen re-fetches and re-evaluates exactly one screen, replaces its
// definition and cache entry, and notifies only that screen's listener.
// A failed fetch leaves the previous definition in place. A listed screen
// whose first fetch is still in flight counts as known. Before the running
// load has listed anything the id is held for it instead.
func (l *BundleLoader) HotReloadScreen(ctx context.Context, id string) error {
	var known, held bool
	if err := l.actor.do(func() {
		if held = l.window.hold(id); held || l.state == nil {
			return
		}
		known = l.knownLocked(id)
	}); err != nil {
		return err
	}
	if held {
		l.log.Debug("reload held for running load", zap.String("screen_id", id))
		return nil
	}
	if !known {
		return fmt.Errorf("%w: %s", ErrUnknownScreen, id)
	}
	def, err := l.fetchScreen(ctx, id)
	if err != nil {
		return fmt.Errorf("hot reload %s: %w", id, err)
	}
	if prev, ok := l.Screen(id); ok {
		def.Name = firstNonEmpty(def.Name, prev.Name)
		def.Path = firstNonEmpty(def.Path, prev.Path)
	}
	version, err := l.commit(def, commitEvent)
	if err != nil {
		return err
	}
	l.log.Debug("screen reloaded", zap.String("screen_id", id), zap.Int64("version", version), zap.Bool("stub", def.Stub))
	l.listeners.emitScreen(id, def)
	l.listeners.emitChange(Change{Kind: ChangeScreenReloaded, SessionID: l.opts.SessionID, ScreenID: id, Version: version, Stub: def.Stub, Err: def.Err})
	return nil
}

// InjectNewScreen adds a screen to the screen map and the navigation map and
// notifies injection listeners. Injecting a known id replaces it.
func (l *BundleLoader) InjectNewScreen(def *domain.ScreenDefinition) error {
	if def == nil || def.ID == "" {
		return errors.New("inject: screen id is required")
	}
	var (
		version int64
		err     error
	)
	if aerr := l.actor.do(func() {
		if l.state == nil {
			err = ErrNotLoaded
			return
		}
		if _, known := l.state.Screens[def.ID]; !known {
			l.state.Order = append(l.state.Order, def.ID)
		}
		l.state.Screens[def.ID] = def
		l.state.Navigation.Screens[def.ID] = def.WithRoute(l.routes[def.ID])
		l.version++
		l.state.Version = l.version
		l.state.LastUpdate = l.opts.Now()
		version = l.version
		l.opts.Cache.Put(l.opts.SessionID, def.ID, def.Component, cache.Metadata{
			Name:         def.Name,
			Path:         def.Path,
			LastModified: def.LastModified,
			Stub:         def.Stub,
			Err:          def.Err,
		})
	}); aerr != nil {
		return aerr
	}
	if err != nil {
		return err
	}
	l.log.Debug("screen injected", zap.String("screen_id", def.ID), zap.Int64("version", version))
	l.listeners.emitInjection(def)
	l.listeners.emitChange(Change{Kind: ChangeScreenInjected, SessionID: l.opts.SessionID, ScreenID: def.ID, Version: version, Stub: def.Stub, Err: def.Err})
	return nil
}

// InjectScreen builds a definition from an injection payload, evaluating the
// inline source when present and fetching the screen otherwise.
func (l *BundleLoader) InjectScreen(ctx context.Context, p *domain.ScreenInjectionPayload) error {
	id := p.ScreenID
	if id == "" && p.ScreenData != nil {
		id = p.ScreenData.ID
	}
	if id == "" {
		return errors.New("inject: payload carries no screen id")
	}
	var def *domain.ScreenDefinition
	if p.ScreenData != nil && p.ScreenData.Code != "" {
		def = l.definitionFromSource(id, p.ScreenData)
	} else {
		fetched, err := l.fetchScreen(ctx, id)
		if err != nil {
			return fmt.Errorf("inject %s: %w", id, err)
		}
		def = fetched
	}
	def.Name = firstNonEmpty(def.Name, id)
	return l.InjectNewScreen(def)
}

// UpdateNavigation shallow-merges the patch into the current navigation config
// and notifies navigation listeners with the merged result.
func (l *BundleLoader) UpdateNavigation(p *domain.NavigationPatch) error {
	var (
		merged *domain.NavigationConfig
		err    error
	)
	var held bool
	if aerr := l.actor.do(func() {
		if held = l.window.holdNavigation(p); held {
			return
		}
		if l.state == nil {
			err = ErrNotLoaded
			return
		}
		merged = l.mergeNavigationLocked(p)
		l.version++
		l.state.Version = l.version
		l.state.LastUpdate = l.opts.Now()
	}); aerr != nil {
		return aerr
	}
	if err != nil {
		return err
	}
	if held {
		l.log.Debug("navigation update held for running load")
		return nil
	}
	l.listeners.emitNavigation(merged)
	l.listeners.emitChange(Change{Kind: ChangeNavigation, SessionID: l.opts.SessionID, Version: l.Version()})
	return nil
}

func (l *BundleLoader) mergeNavigationLocked(p *domain.NavigationPatch) *domain.NavigationConfig {
	merged := l.state.Navigation.Merge(p, l.state.Screens)
	if p != nil && p.Screens != nil {
		l.routes = p.Screens
	}
	l.state.Navigation = merged
	return merged
}

// OnScreenReload registers the listener for one screen id, replacing any
// previous one. A nil fn unregisters.
func (l *BundleLoader) OnScreenReload(id string, fn func(*domain.ScreenDefinition)) {
	l.listeners.onScreen(id, fn)
}

// OnNavigationUpdate adds a navigation listener
func (l *BundleLoader) OnNavigationUpdate(fn func(*domain.NavigationConfig)) {
	l.listeners.onNavigation(fn)
}

// OnScreenInjected adds an injection listener
func (l *BundleLoader) OnScreenInjected(fn func(*domain.ScreenDefinition)) {
	l.listeners.onInjection(fn)
}

// OnChange adds a listener for every applied mutation
func (l *BundleLoader) OnChange(fn func(Change)) {
	l.listeners.onChange(fn)
}

// Snapshot returns a read-only copy of the aggregate, or nil before a load
func (l *BundleLoader) Snapshot() *domain.LoadedSession {
	var snap *domain.LoadedSession
	_ = l.actor.do(func() { snap = l.state.Clone() })
	return snap
}

// Version returns the aggregate version stamp
func (l *BundleLoader) Version() int64 {
	var v int64
	_ = l.actor.do(func() { v = l.version })
	return v
}

// Screen returns the current definition for id
func (l *BundleLoader) Screen(id string) (*domain.ScreenDefinition, bool) {
	var (
		def *domain.ScreenDefinition
		ok  bool
	)
	_ = l.actor.do(func() {
		if l.state != nil {
			def, ok = l.state.Screens[id]
		}
	})
	return def, ok
}

// HasScreen reports whether id is loaded or listed by the current load
func (l *BundleLoader) HasScreen(id string) bool {
	var ok bool
	_ = l.actor.do(func() { ok = l.state != nil && l.knownLocked(id) })
	return ok
}

func (l *BundleLoader) knownLocked(id string) bool {
	if _, ok := l.state.Screens[id]; ok {
		return true
	}
	return slices.Contains(l.state.Order, id)
}

// App returns the evaluated application component
func (l *BundleLoader) App() domain.Component {
	var app domain.Component
	_ = l.actor.do(func() {
		if l.state != nil {
			app = l.state.App
		}
	})
	return app
}

// ScreenIDs returns screen ids in list order, injected screens last
func (l *BundleLoader) ScreenIDs() []string {
	var ids []string
	_ = l.actor.do(func() {
		if l.state != nil {
			ids = append(ids, l.state.Order...)
		}
	})
	return ids
}

// Resolve implements Preview
func (l *BundleLoader) Resolve(id string) (domain.Component, Origin, bool) {
	def, ok := l.Screen(id)
	if !ok {
		return nil, OriginNone, false
	}
	return def.Component, OriginSession, true
}

// ClearCache drops every cached screen of this session. The next load
// fetches everything again.
func (l *BundleLoader) ClearCache() int {
	n := l.opts.Cache.InvalidateSession(l.opts.SessionID)
	l.log.Debug("cache cleared", zap.Int("entries", n))
	return n
}

// Close stops the owning goroutine. Further mutations return ErrClosed.
func (l *BundleLoader) Close() {
	l.actor.stop()
}
