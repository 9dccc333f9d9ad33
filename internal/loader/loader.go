// Package loader loads an editing session into live components and keeps it
// current as the live-sync channel reports changes.
//
// Two strategies share one contract. BundleLoader evaluates the whole
// application bundle plus every listed screen. OverrideLoader keeps a real,
// already-built baseline application and layers only the edited screens on
// top of it as overrides.
package loader

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/vburojevic/hotswap/internal/cache"
	"github.com/vburojevic/hotswap/internal/domain"
	"github.com/vburojevic/hotswap/internal/evaluator"
)

// Origin tells where a resolved component came from
type Origin string

const (
	OriginNone     Origin = ""
	OriginSession  Origin = "session"
	OriginOverride Origin = "override"
	OriginBaseline Origin = "baseline"
)

// Preview is what shells and the live-sync channel need from either strategy
type Preview interface {
	Load(ctx context.Context) error
	SessionID() string
	App() domain.Component
	ScreenIDs() []string
	Resolve(id string) (domain.Component, Origin, bool)
	HasScreen(id string) bool
	HotReloadScreen(ctx context.Context, id string) error
	InjectScreen(ctx context.Context, p *domain.ScreenInjectionPayload) error
	UpdateNavigation(p *domain.NavigationPatch) error
	OnChange(fn func(Change))
	ClearCache() int
	Close()
}

// BundleSource is the part of the authoring API the bundle strategy reads
type BundleSource interface {
	AppBundle(ctx context.Context, sessionID string) (string, error)
	Navigation(ctx context.Context, sessionID string) (*domain.NavigationWire, error)
	Screens(ctx context.Context, sessionID string) ([]domain.ScreenInfo, error)
	Screen(ctx context.Context, sessionID, screenID string) (*domain.ScreenSource, error)
}

// OverrideSource is the part of the authoring API the override strategy reads
type OverrideSource interface {
	Overrides(ctx context.Context, sessionID string) ([]domain.OverrideInfo, error)
	Override(ctx context.Context, sessionID, screenID string) (*domain.OverrideSource, error)
}

// BaselineSource loads the unmodified application
type BaselineSource interface {
	Load(ctx context.Context) (*domain.BaselineApp, error)
}

// Options configures either strategy
type Options struct {
	SessionID string
	Evaluator *evaluator.Evaluator
	Cache     *cache.Cache
	Logger    *zap.Logger
	// StrictOrdering drops updates whose data is older than the current entry
	StrictOrdering bool
	Now            func() time.Time
}

func (o *Options) defaults() {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Evaluator == nil {
		o.Evaluator = evaluator.New(evaluator.Options{Logger: o.Logger})
	}
	if o.Cache == nil {
		o.Cache = cache.New()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// isStale reports whether incoming data is older than what is held.
// Zero timestamps never count as stale.
func isStale(strict bool, incoming, current time.Time) bool {
	return strict && !incoming.IsZero() && !current.IsZero() && incoming.Before(current)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
