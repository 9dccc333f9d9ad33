package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/vburojevic/hotswap/internal/api"
	"github.com/vburojevic/hotswap/internal/baseline"
	"github.com/vburojevic/hotswap/internal/cache"
	"github.com/vburojevic/hotswap/internal/domain"
	"github.com/vburojevic/hotswap/internal/evaluator"
	"github.com/vburojevic/hotswap/internal/livesync"
	"github.com/vburojevic/hotswap/internal/loader"
	"github.com/vburojevic/hotswap/internal/output"
	"github.com/vburojevic/hotswap/internal/sessionctx"
)

// Strategy names
const (
	strategyBundle   = "bundle"
	strategyOverride = "override"
)

// errNoSession is returned when no session id could be resolved
var errNoSession = errors.New("no active session")

// previewFlags are shared by commands that load a session
type previewFlags struct {
	SessionID string `name:"session" short:"S" help:"Session id (default: host session, then the saved active session)"`
	Strategy  string `help:"Loading strategy: bundle or override (default from config)"`
	Server    string `help:"Authoring server URL (default from config)"`
	Baseline  string `type:"path" help:"Baseline application directory for the override strategy"`
}

func (f *previewFlags) serverURL(g *Globals) string {
	return lo.CoalesceOrEmpty(f.Server, g.Config.Server.URL)
}

func (f *previewFlags) strategy(g *Globals) string {
	return lo.CoalesceOrEmpty(f.Strategy, g.Config.Defaults.Strategy, strategyBundle)
}

func (f *previewFlags) baselineDir(g *Globals) string {
	return lo.CoalesceOrEmpty(f.Baseline, g.Config.Defaults.BaselineDir)
}

// syncURL returns the live-sync URL for sessionID
func (f *previewFlags) syncURL(g *Globals, sessionID string) (string, error) {
	if g.Config.Sync.URL != "" {
		return livesync.WithSession(g.Config.Sync.URL, sessionID)
	}
	return livesync.URLFor(f.serverURL(g), sessionID)
}

func newAPIClient(g *Globals, serverURL string) (*api.Client, error) {
	return api.New(serverURL, api.WithLogger(g.Logger().Named("api")))
}

// activeSlot returns the durable active-session slot
func activeSlot(g *Globals) (*sessionctx.Slot, error) {
	if g.Config.Session.SlotPath != "" {
		return &sessionctx.Slot{Path: g.Config.Session.SlotPath}, nil
	}
	p, err := sessionctx.DefaultSlotPath()
	if err != nil {
		return nil, err
	}
	return &sessionctx.Slot{Path: p}, nil
}

// newSessionContext wires the host mirror, the durable slot and metadata lookup
func newSessionContext(g *Globals, lookup sessionctx.Lookup, reloader sessionctx.Reloader) (*sessionctx.Context, error) {
	slot, err := activeSlot(g)
	if err != nil {
		return nil, err
	}
	return sessionctx.New(sessionctx.Options{
		Host:         sessionctx.EnvHost{},
		Slot:         slot,
		Lookup:       lookup,
		Reloader:     reloader,
		Logger:       g.Logger().Named("session"),
		HostRetries:  g.Config.Session.HostRetries,
		HostInterval: g.Config.Session.HostInterval,
	}), nil
}

// resolveSession returns the explicit --session or resolves the active one
func (f *previewFlags) resolveSession(ctx context.Context, g *Globals, sc *sessionctx.Context) (*domain.Session, error) {
	if f.SessionID != "" {
		return &domain.Session{ID: f.SessionID}, nil
	}
	s, err := sc.Init(ctx)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, errNoSession
	}
	g.Debug("resolved session %s", s.ID)
	return s, nil
}

// newPreview builds the loader for the selected strategy. Nothing is fetched
// until Load.
func (f *previewFlags) newPreview(g *Globals, client *api.Client, sessionID string, c *cache.Cache) (loader.Preview, error) {
	log := g.Logger().With(zap.String("session_id", sessionID))
	ev := evaluator.New(evaluator.Options{
		Timeout: g.Config.Evaluator.Timeout,
		Logger:  log.Named("eval"),
	})
	opts := loader.Options{
		SessionID:      sessionID,
		Evaluator:      ev,
		Cache:          c,
		Logger:         log.Named("loader"),
		StrictOrdering: g.Config.Sync.StrictOrdering,
	}

	switch s := f.strategy(g); s {
	case strategyBundle:
		return loader.NewBundleLoader(client, opts), nil
	case strategyOverride:
		dir := f.baselineDir(g)
		if dir == "" {
			return nil, errors.New("override strategy needs a baseline directory")
		}
		base := &baseline.Dir{Path: dir, Evaluator: ev, Logger: log.Named("baseline")}
		return loader.NewOverrideLoader(client, base, opts), nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", s)
	}
}

// loadedRecord summarizes p after a successful load
func loadedRecord(p loader.Preview, strategy string, took time.Duration) *output.Loaded {
	screens := screenRecords(p)
	return &output.Loaded{
		Type:          "session_loaded",
		SchemaVersion: output.SchemaVersion,
		SessionID:     p.SessionID(),
		Strategy:      strategy,
		Version:       previewVersion(p),
		Screens:       len(screens),
		Stubs:         len(lo.Filter(screens, func(s *output.Screen, _ int) bool { return s.Stub })),
		DurationMs:    took.Milliseconds(),
	}
}

func previewVersion(p loader.Preview) int64 {
	switch l := p.(type) {
	case *loader.BundleLoader:
		return l.Version()
	case *loader.OverrideLoader:
		if snap := l.Snapshot(); snap != nil {
			return snap.Version
		}
	}
	return 0
}

// screenRecords lists every resolvable screen of p in ScreenIDs order
func screenRecords(p loader.Preview) []*output.Screen {
	var overrides map[string]*domain.ScreenOverride
	if l, ok := p.(*loader.OverrideLoader); ok {
		if snap := l.Snapshot(); snap != nil {
			overrides = snap.Overrides
		}
	}

	var out []*output.Screen
	for _, id := range p.ScreenIDs() {
		rec := &output.Screen{
			Type:          "screen",
			SchemaVersion: output.SchemaVersion,
			SessionID:     p.SessionID(),
			ScreenID:      id,
		}
		c, origin, ok := p.Resolve(id)
		if !ok {
			continue
		}
		rec.Origin = string(origin)
		rec.Stub = evaluator.IsStub(c)

		switch l := p.(type) {
		case *loader.BundleLoader:
			if def, ok := l.Screen(id); ok {
				rec.Name, rec.Path, rec.Stub, rec.Error = def.Name, def.Path, def.Stub, def.Err
				rec.LastModified = formatTime(def.LastModified)
			}
		case *loader.OverrideLoader:
			if o, ok := overrides[id]; ok {
				rec.Path, rec.Stub, rec.Error = o.SourcePath, o.Stub, o.Err
				rec.LastModified = formatTime(o.LastModified)
			}
		}
		out = append(out, rec)
	}
	return out
}

func changeRecord(c loader.Change) *output.Change {
	return &output.Change{
		Type:          "change",
		SchemaVersion: output.SchemaVersion,
		Timestamp:     output.Now(),
		Kind:          string(c.Kind),
		SessionID:     c.SessionID,
		ScreenID:      c.ScreenID,
		Version:       c.Version,
		Stub:          c.Stub,
		Error:         c.Err,
	}
}

func syncRecord(ev livesync.Event) *output.SyncEvent {
	return &output.SyncEvent{
		Type:          "sync",
		SchemaVersion: output.SchemaVersion,
		Timestamp:     output.Now(),
		MessageType:   string(ev.Type),
		SessionID:     ev.SessionID,
		Action:        string(ev.Action),
		ScreenIDs:     ev.ScreenIDs,
		FilePath:      ev.FilePath,
		Error:         ev.Error,
	}
}

func statusRecord(s domain.ConnectionStatus, attempt int) *output.Status {
	return &output.Status{
		Type:          "status",
		SchemaVersion: output.SchemaVersion,
		Timestamp:     output.Now(),
		Status:        string(s),
		Attempt:       attempt,
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
