package loader

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/vburojevic/hotswap/internal/cache"
	"github.com/vburojevic/hotswap/internal/domain"
	"github.com/vburojevic/hotswap/internal/evaluator"
)

// OverrideLoader keeps the baseline application and layers session screen
// overrides on top of it. Resolution order is override, then baseline.
type OverrideLoader struct {
	opts      Options
	src       OverrideSource
	base      BaselineSource
	log       *zap.Logger
	actor     *actor
	listeners *listeners[*domain.ScreenOverride]

	// owned by actor
	state   *domain.OverrideSession
	listed  map[string]bool // overrides the last load listed
	version int64
	window  loadWindow
}

var _ Preview = (*OverrideLoader)(nil)

// NewOverrideLoader creates a loader for opts.SessionID
func NewOverrideLoader(src OverrideSource, base BaselineSource, opts Options) *OverrideLoader {
	opts.defaults()
	return &OverrideLoader{
		opts:      opts,
		src:       src,
		base:      base,
		log:       opts.Logger.With(zap.String("session_id", opts.SessionID), zap.String("strategy", "override")),
		actor:     newActor(),
		listeners: newListeners[*domain.ScreenOverride](),
	}
}

// SessionID returns the session this loader serves
func (l *OverrideLoader) SessionID() string { return l.opts.SessionID }

// Load implements Preview
func (l *OverrideLoader) Load(ctx context.Context) error {
	_, err := l.LoadMobileAppWithOverrides(ctx)
	return err
}

// LoadMobileAppWithOverrides loads the baseline (fatal on failure), lists the
// session's overrides and fetches + evaluates each. Failing overrides become
// stubs; a failed listing leaves the baseline untouched. Swaps that land
// while the load runs are kept over the load's older copy.
func (l *OverrideLoader) LoadMobileAppWithOverrides(ctx context.Context) (*domain.OverrideSession, error) {
	if err := l.actor.do(l.window.begin); err != nil {
		return nil, err
	}
	snap, err := l.load(ctx)
	var held []string
	_ = l.actor.do(func() { held = l.window.end() })
	if err == nil {
		for _, id := range held {
			if serr := l.HotSwapScreen(ctx, id); serr != nil {
				l.log.Warn("held swap failed", zap.String("screen_id", id), zap.Error(serr))
			}
		}
	}
	return snap, err
}

func (l *OverrideLoader) load(ctx context.Context) (*domain.OverrideSession, error) {
	id := l.opts.SessionID

	baseline, err := l.base.Load(ctx)
	if err != nil {
		return nil, &SessionLoadError{SessionID: id, Stage: "load baseline", Err: err}
	}
	if baseline == nil || baseline.App == nil {
		return nil, &SessionLoadError{SessionID: id, Stage: "load baseline", Err: evaluator.ErrNoComponent}
	}

	infos, err := l.src.Overrides(ctx, id)
	if err != nil {
		l.log.Warn("override list fetch failed", zap.Error(err))
	}

	if err := l.actor.do(func() {
		l.listed = make(map[string]bool, len(infos))
		for _, info := range infos {
			l.listed[info.ScreenID] = true
		}
		l.version++
		l.state = &domain.OverrideSession{
			SessionID:  id,
			Baseline:   baseline,
			Overrides:  make(map[string]*domain.ScreenOverride, len(infos)),
			Navigation: baselineNavigation(baseline),
			Version:    l.version,
			LastUpdate: l.opts.Now(),
		}
		for _, p := range l.window.list() {
			l.state.Navigation = l.state.Navigation.Merge(p, l.resolvableLocked())
		}
	}); err != nil {
		return nil, err
	}

	stubs := 0
	for _, info := range infos {
		if err := l.actor.do(func() { l.window.take(info.ScreenID) }); err != nil {
			return nil, err
		}
		o, err := l.fetchOverride(ctx, info.ScreenID)
		if err != nil {
			l.log.Warn("override fetch failed", zap.String("screen_id", info.ScreenID), zap.Error(err))
			o = &domain.ScreenOverride{
				ScreenID:     info.ScreenID,
				Component:    evaluator.Stub(info.ScreenID, err),
				SourcePath:   info.SourcePath,
				LastModified: domain.MillisToTime(info.LastModified),
				Stub:         true,
				Err:          err.Error(),
			}
		}
		if o.Stub {
			stubs++
		}
		if _, err := l.commit(o, commitInitial); err != nil && !errors.Is(err, ErrStaleUpdate) {
			return nil, err
		}
	}

	snap := l.Snapshot()
	l.log.Info("session loaded",
		zap.String("baseline", baseline.BundleID),
		zap.Int("baseline_screens", len(baseline.Screens)),
		zap.Int("overrides", len(infos)),
		zap.Int("stubs", stubs),
		zap.Int64("version", snap.Version))
	l.listeners.emitChange(Change{Kind: ChangeLoaded, SessionID: id, Version: snap.Version})
	return snap, nil
}

// baselineNavigation routes every baseline screen, in id order. The initial
// route is the baseline's own, else the first id.
func baselineNavigation(b *domain.BaselineApp) *domain.NavigationConfig {
	nav := domain.NewNavigationConfig()
	ids := lo.Keys(b.Screens)
	sort.Strings(ids)
	for _, id := range ids {
		nav.Screens[id] = &domain.ScreenDefinition{ID: id, Name: id, Component: b.Screens[id]}
	}
	switch {
	case b.InitialRoute != "":
		nav.InitialRoute = b.InitialRoute
	case len(ids) > 0:
		nav.InitialRoute = ids[0]
	}
	return nav
}

func (l *OverrideLoader) fetchOverride(ctx context.Context, id string) (*domain.ScreenOverride, error) {
	src, err := l.src.Override(ctx, l.opts.SessionID, id)
	if err != nil {
		return nil, err
	}
	return l.overrideFromSource(id, src), nil
}

func (l *OverrideLoader) overrideFromSource(id string, src *domain.OverrideSource) *domain.ScreenOverride {
	comp, err := l.opts.Evaluator.Evaluate(id, src.Code)
	o := &domain.ScreenOverride{
		ScreenID:     id,
		Component:    comp,
		SourcePath:   src.SourcePath,
		LastModified: domain.MillisToTime(src.LastModified),
	}
	if err != nil {
		l.log.Warn("override evaluation failed", zap.String("screen_id", id), zap.Error(err))
		o.Stub = true
		o.Err = err.Error()
	}
	return o
}

// commit sets the override for o.ScreenID on the owning goroutine
func (l *OverrideLoader) commit(o *domain.ScreenOverride, mode commitMode) (int64, error) {
	var (
		version int64
		err     error
	)
	if aerr := l.actor.do(func() {
		if l.state == nil {
			err = ErrNotLoaded
			return
		}
		if cur, ok := l.state.Overrides[o.ScreenID]; ok {
			if mode == commitInitial && !supersedes(l.opts.StrictOrdering, o.LastModified, cur.LastModified) {
				err = fmt.Errorf("%w: override %s already swapped during load", ErrStaleUpdate, o.ScreenID)
				return
			}
			if isStale(l.opts.StrictOrdering, o.LastModified, cur.LastModified) {
				err = fmt.Errorf("%w: override %s at %s, have %s", ErrStaleUpdate, o.ScreenID, o.LastModified, cur.LastModified)
				return
			}
		}
		l.state.Overrides[o.ScreenID] = o
		l.routeLocked(o.ScreenID, o.Component, o.Stub, o.Err)
		version = l.bumpLocked()
		l.opts.Cache.Put(l.opts.SessionID, o.ScreenID, o.Component, cache.Metadata{
			SourcePath:   o.SourcePath,
			LastModified: o.LastModified,
			Stub:         o.Stub,
			Err:          o.Err,
		})
	}); aerr != nil {
		return 0, aerr
	}
	return version, err
}

// routeLocked points the navigation entry for id at c, keeping route metadata
func (l *OverrideLoader) routeLocked(id string, c domain.Component, stub bool, errText string) {
	def := &domain.ScreenDefinition{ID: id, Name: id}
	if cur, ok := l.state.Navigation.Screens[id]; ok {
		cp := *cur
		def = &cp
	}
	def.Component = c
	def.Stub = stub
	def.Err = errText
	l.state.Navigation.Screens[id] = def
}

func (l *OverrideLoader) bumpLocked() int64 {
	l.version++
	l.state.Version = l.version
	l.state.LastUpdate = l.opts.Now()
	return l.version
}

// HotSwapScreen re-fetches one override and replaces it. The screen does not
// need to be overridden already; any id may become one. Before a running load
// has listed its overrides the id is held for that load.
func (l *OverrideLoader) HotSwapScreen(ctx context.Context, id string) error {
	var held bool
	if err := l.actor.do(func() { held = l.window.hold(id) }); err != nil {
		return err
	}
	if held {
		l.log.Debug("swap held for running load", zap.String("screen_id", id))
		return nil
	}
	o, err := l.fetchOverride(ctx, id)
	if err != nil {
		return fmt.Errorf("hot swap %s: %w", id, err)
	}
	version, err := l.commit(o, commitEvent)
	if err != nil {
		return err
	}
	l.log.Debug("override swapped", zap.String("screen_id", id), zap.Int64("version", version), zap.Bool("stub", o.Stub))
	l.listeners.emitScreen(id, o)
	l.listeners.emitChange(Change{Kind: ChangeScreenReloaded, SessionID: l.opts.SessionID, ScreenID: id, Version: version, Stub: o.Stub, Err: o.Err})
	return nil
}

// HotReloadScreen is HotSwapScreen for ids this session can resolve or has
// listed as overrides
func (l *OverrideLoader) HotReloadScreen(ctx context.Context, id string) error {
	var held bool
	_ = l.actor.do(func() { held = l.window.active && !l.window.listed })
	if !held && !l.HasScreen(id) {
		return fmt.Errorf("%w: %s", ErrUnknownScreen, id)
	}
	return l.HotSwapScreen(ctx, id)
}

// AddScreenOverride installs o and notifies injection listeners
func (l *OverrideLoader) AddScreenOverride(o *domain.ScreenOverride) error {
	if o == nil || o.ScreenID == "" {
		return errors.New("add override: screen id is required")
	}
	version, err := l.commit(o, commitEvent)
	if err != nil {
		return err
	}
	l.log.Debug("override added", zap.String("screen_id", o.ScreenID), zap.Int64("version", version))
	l.listeners.emitInjection(o)
	l.listeners.emitChange(Change{Kind: ChangeScreenInjected, SessionID: l.opts.SessionID, ScreenID: o.ScreenID, Version: version, Stub: o.Stub, Err: o.Err})
	return nil
}

// RemoveScreenOverride drops the override for id so the baseline screen is
// resolved again. The id's screen listener receives nil. Removing an id
// without an override is a no-op returning false.
func (l *OverrideLoader) RemoveScreenOverride(id string) (bool, error) {
	var (
		removed bool
		version int64
		err     error
	)
	if aerr := l.actor.do(func() {
		if l.state == nil {
			err = ErrNotLoaded
			return
		}
		if _, ok := l.state.Overrides[id]; !ok {
			return
		}
		delete(l.state.Overrides, id)
		removed = true
		if c, ok := l.state.Baseline.Screen(id); ok {
			l.routeLocked(id, c, false, "")
		} else {
			delete(l.state.Navigation.Screens, id)
		}
		version = l.bumpLocked()
		l.opts.Cache.Invalidate(l.opts.SessionID, id)
	}); aerr != nil {
		return false, aerr
	}
	if err != nil || !removed {
		return false, err
	}
	l.log.Debug("override removed", zap.String("screen_id", id), zap.Int64("version", version))
	l.listeners.emitScreen(id, nil)
	l.listeners.emitChange(Change{Kind: ChangeOverrideRemoved, SessionID: l.opts.SessionID, ScreenID: id, Version: version})
	return true, nil
}

// InjectScreen adds an override from an injection payload, evaluating inline
// code when present and fetching the override otherwise.
func (l *OverrideLoader) InjectScreen(ctx context.Context, p *domain.ScreenInjectionPayload) error {
	id := p.ScreenID
	if id == "" && p.ScreenData != nil {
		id = p.ScreenData.ID
	}
	if id == "" {
		return errors.New("inject: payload carries no screen id")
	}
	var o *domain.ScreenOverride
	if p.ScreenData != nil && p.ScreenData.Code != "" {
		o = l.overrideFromSource(id, &domain.OverrideSource{
			ScreenID:     id,
			Code:         p.ScreenData.Code,
			SourcePath:   p.ScreenData.Path,
			LastModified: p.ScreenData.LastModified,
		})
	} else {
		fetched, err := l.fetchOverride(ctx, id)
		if err != nil {
			return fmt.Errorf("inject %s: %w", id, err)
		}
		o = fetched
	}
	return l.AddScreenOverride(o)
}

// UpdateNavigation shallow-merges the patch. Listed screens resolve through
// the override map first, then the baseline.
func (l *OverrideLoader) UpdateNavigation(p *domain.NavigationPatch) error {
	var (
		merged  *domain.NavigationConfig
		version int64
		err     error
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
		merged = l.state.Navigation.Merge(p, l.resolvableLocked())
		l.state.Navigation = merged
		version = l.bumpLocked()
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
	l.listeners.emitChange(Change{Kind: ChangeNavigation, SessionID: l.opts.SessionID, Version: version})
	return nil
}

// resolvableLocked returns a definition for every id that resolves
func (l *OverrideLoader) resolvableLocked() map[string]*domain.ScreenDefinition {
	known := make(map[string]*domain.ScreenDefinition, len(l.state.Baseline.Screens)+len(l.state.Overrides))
	for id, c := range l.state.Baseline.Screens {
		known[id] = &domain.ScreenDefinition{ID: id, Name: id, Component: c}
	}
	for id, o := range l.state.Overrides {
		known[id] = &domain.ScreenDefinition{ID: id, Name: id, Component: o.Component, LastModified: o.LastModified, Stub: o.Stub, Err: o.Err}
	}
	return known
}

// OnScreenReload registers the listener for one screen id, replacing any
// previous one. Removal of the override delivers nil.
func (l *OverrideLoader) OnScreenReload(id string, fn func(*domain.ScreenOverride)) {
	l.listeners.onScreen(id, fn)
}

// OnNavigationUpdate adds a navigation listener
func (l *OverrideLoader) OnNavigationUpdate(fn func(*domain.NavigationConfig)) {
	l.listeners.onNavigation(fn)
}

// OnScreenInjected adds a listener for added overrides
func (l *OverrideLoader) OnScreenInjected(fn func(*domain.ScreenOverride)) {
	l.listeners.onInjection(fn)
}

// OnChange adds a listener for every applied mutation
func (l *OverrideLoader) OnChange(fn func(Change)) {
	l.listeners.onChange(fn)
}

// Snapshot returns a read-only copy of the aggregate, or nil before a load
func (l *OverrideLoader) Snapshot() *domain.OverrideSession {
	var snap *domain.OverrideSession
	_ = l.actor.do(func() { snap = l.state.Clone() })
	return snap
}

// Resolve returns the override for id if one is present, else the baseline
// screen, else nothing.
func (l *OverrideLoader) Resolve(id string) (domain.Component, Origin, bool) {
	var (
		c      domain.Component
		origin = OriginNone
	)
	_ = l.actor.do(func() {
		if l.state == nil {
			return
		}
		if o, ok := l.state.Overrides[id]; ok {
			c, origin = o.Component, OriginOverride
			return
		}
		if bc, ok := l.state.Baseline.Screen(id); ok {
			c, origin = bc, OriginBaseline
		}
	})
	return c, origin, origin != OriginNone
}

// HasScreen reports whether id resolves or is a listed override whose first
// fetch has not landed yet
func (l *OverrideLoader) HasScreen(id string) bool {
	if _, _, ok := l.Resolve(id); ok {
		return true
	}
	var listed bool
	_ = l.actor.do(func() { listed = l.state != nil && l.listed[id] })
	return listed
}

// App returns the baseline application component
func (l *OverrideLoader) App() domain.Component {
	var app domain.Component
	_ = l.actor.do(func() {
		if l.state != nil {
			app = l.state.Baseline.App
		}
	})
	return app
}

// ScreenIDs returns every resolvable id in lexical order
func (l *OverrideLoader) ScreenIDs() []string {
	var ids []string
	_ = l.actor.do(func() {
		if l.state == nil {
			return
		}
		ids = lo.Union(lo.Keys(l.state.Baseline.Screens), lo.Keys(l.state.Overrides))
	})
	sort.Strings(ids)
	return ids
}

// ClearCache drops every cached override of this session
func (l *OverrideLoader) ClearCache() int {
	n := l.opts.Cache.InvalidateSession(l.opts.SessionID)
	l.log.Debug("cache cleared", zap.Int("entries", n))
	return n
}

// Close stops the owning goroutine. Further mutations return ErrClosed.
func (l *OverrideLoader) Close() {
	l.actor.stop()
}
