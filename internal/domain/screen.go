package domain

import (
	"time"

	"github.com/samber/lo"
)

// ScreenDefinition is one screen's identity plus its live component.
// Definitions are replaced on every hot-reload, never mutated in place.
type ScreenDefinition struct {
	ID           string
	Name         string
	Path         string
	Component    Component
	Options      map[string]interface{}
	LastModified time.Time
	Stub         bool   // Component is an error stub
	Err          string // Evaluation or fetch error behind the stub
}

// WithRoute returns a copy carrying new route metadata and the same component
func (d *ScreenDefinition) WithRoute(route ScreenRoute) *ScreenDefinition {
	cp := *d
	if route.Name != "" {
		cp.Name = route.Name
	}
	if route.Path != "" {
		cp.Path = route.Path
	}
	if route.Options != nil {
		cp.Options = route.Options
	}
	return &cp
}

// ScreenOverride is a session-supplied replacement for one baseline screen
type ScreenOverride struct {
	ScreenID     string
	Component    Component
	SourcePath   string
	LastModified time.Time
	Stub         bool
	Err          string
}

// ScreenRoute is route metadata for a screen without its component
type ScreenRoute struct {
	Name    string                 `json:"name,omitempty"`
	Path    string                 `json:"path,omitempty"`
	Options map[string]interface{} `json:"options,omitempty"`
}

// TabBarConfig configures the optional bottom tab bar
type TabBarConfig struct {
	Tabs    []string               `json:"tabs,omitempty"`
	Options map[string]interface{} `json:"options,omitempty"`
}

// NavigationConfig maps screen ids to definitions plus routing options
type NavigationConfig struct {
	Screens      map[string]*ScreenDefinition
	InitialRoute string
	TabBar       *TabBarConfig
}

// NewNavigationConfig creates an empty navigation config
func NewNavigationConfig() *NavigationConfig {
	return &NavigationConfig{Screens: make(map[string]*ScreenDefinition)}
}

// Clone returns a copy whose screen map can be changed independently.
// Definitions are shared; they are immutable.
func (n *NavigationConfig) Clone() *NavigationConfig {
	if n == nil {
		return NewNavigationConfig()
	}
	cp := *n
	cp.Screens = lo.Assign(map[string]*ScreenDefinition{}, n.Screens)
	if n.TabBar != nil {
		tb := *n.TabBar
		cp.TabBar = &tb
	}
	return &cp
}

// NavigationPatch is a partial navigation config. Nil fields are left alone.
type NavigationPatch struct {
	InitialRoute *string                `json:"initialRouteName,omitempty"`
	TabBar       *TabBarConfig          `json:"tabBar,omitempty"`
	Screens      map[string]ScreenRoute `json:"screens,omitempty"`
}

// IsEmpty reports whether the patch carries no fields
func (p *NavigationPatch) IsEmpty() bool {
	return p == nil || (p.InitialRoute == nil && p.TabBar == nil && p.Screens == nil)
}

// Merge shallow-merges the patch into a copy of n and returns it.
// A patch carrying screens replaces the screen map: each listed id keeps the
// component known from known (by id) and takes the patch's route metadata.
// Listed ids without a known definition are skipped; they arrive by injection.
func (n *NavigationConfig) Merge(p *NavigationPatch, known map[string]*ScreenDefinition) *NavigationConfig {
	merged := n.Clone()
	if p == nil {
		return merged
	}
	if p.InitialRoute != nil {
		merged.InitialRoute = *p.InitialRoute
	}
	if p.TabBar != nil {
		tb := *p.TabBar
		merged.TabBar = &tb
	}
	if p.Screens != nil {
		screens := make(map[string]*ScreenDefinition, len(p.Screens))
		for id, route := range p.Screens {
			def, ok := known[id]
			if !ok {
				continue
			}
			screens[id] = def.WithRoute(route)
		}
		merged.Screens = screens
	}
	return merged
}

// LoadedSession is the aggregate returned by the bundle strategy
type LoadedSession struct {
	SessionID  string
	App        Component
	Navigation *NavigationConfig
	Screens    map[string]*ScreenDefinition
	Order      []string // Screen ids in the order they were listed
	Version    int64
	LastUpdate time.Time
}

// Clone returns a read-only view decoupled from further loader mutations
func (s *LoadedSession) Clone() *LoadedSession {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Navigation = s.Navigation.Clone()
	cp.Screens = lo.Assign(map[string]*ScreenDefinition{}, s.Screens)
	cp.Order = append([]string(nil), s.Order...)
	return &cp
}

// BaselineApp is the real, already-built application used as the default
type BaselineApp struct {
	BundleID string
	Name     string
	Version  string
	Dir      string
	App      Component
	Screens  map[string]Component
	// InitialRoute is the screen the app opens on, when it names one
	InitialRoute string
}

// Screen returns the baseline's own component for id
func (b *BaselineApp) Screen(id string) (Component, bool) {
	if b == nil {
		return nil, false
	}
	c, ok := b.Screens[id]
	return c, ok
}

// OverrideSession is the aggregate returned by the baseline-override strategy
type OverrideSession struct {
	SessionID  string
	Baseline   *BaselineApp
	Overrides  map[string]*ScreenOverride
	Navigation *NavigationConfig
	Version    int64
	LastUpdate time.Time
}

// Clone returns a read-only view decoupled from further loader mutations
func (s *OverrideSession) Clone() *OverrideSession {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Overrides = lo.Assign(map[string]*ScreenOverride{}, s.Overrides)
	cp.Navigation = s.Navigation.Clone()
	return &cp
}
