// Package sessionctx resolves and switches the active editing session.
//
// Resolution order on start: the session published by the host (retried a
// few times at a short interval), then the durable slot, then idle.
package sessionctx

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/vburojevic/hotswap/internal/domain"
)

// Defaults for Options
const (
	DefaultHostRetries  = 5
	DefaultHostInterval = 200 * time.Millisecond
)

// Source values reported on switch events
const (
	SourceHost   = "host"
	SourceSlot   = "slot"
	SourceSwitch = "switch"
)

// Lookup resolves session metadata by id
type Lookup interface {
	Session(ctx context.Context, sessionID string) (*domain.Session, error)
}

// Reloader reloads the world for a session
type Reloader interface {
	Reload(ctx context.Context, s *domain.Session) error
}

// ReloaderFunc adapts a function to Reloader
type ReloaderFunc func(ctx context.Context, s *domain.Session) error

// Reload implements Reloader
func (f ReloaderFunc) Reload(ctx context.Context, s *domain.Session) error { return f(ctx, s) }

// Options configures a Context
type Options struct {
	Host         HostGlobal
	Slot         *Slot
	Lookup       Lookup
	Reloader     Reloader
	Clock        clock.Clock
	Logger       *zap.Logger
	HostRetries  int
	HostInterval time.Duration
}

// Context holds the active session
type Context struct {
	opts  Options
	log   *zap.Logger
	clock clock.Clock

	mu       sync.Mutex
	current  *domain.Session
	loading  bool
	lastErr  error
	switches []func(*domain.SessionSwitch)
}

// New creates an idle Context
func New(opts Options) *Context {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.HostRetries < 0 {
		opts.HostRetries = 0
	}
	if opts.HostInterval <= 0 {
		opts.HostInterval = DefaultHostInterval
	}
	return &Context{opts: opts, log: opts.Logger, clock: opts.Clock}
}

// Current returns the active session, or nil when idle
func (c *Context) Current() *domain.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil
	}
	cp := *c.current
	return &cp
}

// IsLoading reports whether Init or Switch is in progress
func (c *Context) IsLoading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading
}

// LastError returns the most recent resolution, enrichment or reload error
func (c *Context) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// OnSwitch adds a listener for session changes
func (c *Context) OnSwitch(fn func(*domain.SessionSwitch)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.switches = append(c.switches, fn)
}

func (c *Context) setLoading(v bool) {
	c.mu.Lock()
	c.loading = v
	c.mu.Unlock()
}

func (c *Context) recordErr(err error) {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
}

// set installs s and notifies switch listeners
func (c *Context) set(s *domain.Session, source string) {
	c.mu.Lock()
	prev := ""
	if c.current != nil {
		prev = c.current.ID
	}
	c.current = s
	fns := slices.Clone(c.switches)
	c.mu.Unlock()

	ev := domain.NewSessionSwitch(s.ID, prev, source)
	c.log.Info("active session", zap.String("session_id", s.ID), zap.String("previous_id", prev), zap.String("source", source))
	for _, fn := range fns {
		fn(ev)
	}
}

// Init resolves the session to start with. It returns nil and no error when
// nothing is available.
func (c *Context) Init(ctx context.Context) (*domain.Session, error) {
	c.setLoading(true)
	defer c.setLoading(false)

	s, err := c.fromHost(ctx)
	if err != nil {
		return nil, err
	}
	source := SourceHost
	if s == nil && c.opts.Slot != nil {
		id, err := c.opts.Slot.Load()
		if err != nil {
			c.log.Warn("slot unreadable", zap.String("path", c.opts.Slot.Path), zap.Error(err))
			c.recordErr(fmt.Errorf("read slot: %w", err))
		} else if id != "" {
			s, source = &domain.Session{ID: id}, SourceSlot
		}
	}
	if s == nil {
		c.log.Debug("no active session")
		return nil, nil
	}

	s = c.enrich(ctx, s)
	c.set(s, source)
	return c.Current(), nil
}

// fromHost polls the host global up to HostRetries extra times
func (c *Context) fromHost(ctx context.Context) (*domain.Session, error) {
	if c.opts.Host == nil {
		return nil, nil
	}
	for i := 0; ; i++ {
		s, err := c.opts.Host.Read()
		if err != nil {
			c.log.Warn("host session unreadable", zap.Error(err))
			c.recordErr(err)
			return nil, nil
		}
		if s != nil {
			return s, nil
		}
		if i >= c.opts.HostRetries {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.clock.After(c.opts.HostInterval):
		}
	}
}

// enrich fills in metadata for an id-only session. On failure the id-only
// session is kept and the error recorded.
func (c *Context) enrich(ctx context.Context, s *domain.Session) *domain.Session {
	if !s.IDOnly() || c.opts.Lookup == nil {
		return s
	}
	full, err := c.opts.Lookup.Session(ctx, s.ID)
	if err != nil {
		c.log.Warn("session lookup failed", zap.String("session_id", s.ID), zap.Error(err))
		c.recordErr(fmt.Errorf("lookup session %s: %w", s.ID, err))
		return s
	}
	if full == nil {
		return s
	}
	if full.ID == "" {
		full.ID = s.ID
	}
	return full
}

// Switch makes s the active session: the id is persisted to the slot, the
// host mirror is updated and the reloader runs exactly once.
func (c *Context) Switch(ctx context.Context, s *domain.Session) error {
	if s == nil || strings.TrimSpace(s.ID) == "" {
		return errors.New("switch: session id is required")
	}
	c.setLoading(true)
	defer c.setLoading(false)

	if c.opts.Slot != nil {
		if err := c.opts.Slot.Save(s.ID, c.clock.Now()); err != nil {
			c.recordErr(err)
			return fmt.Errorf("persist session: %w", err)
		}
	}
	if c.opts.Host != nil {
		if err := c.opts.Host.Write(s); err != nil {
			c.log.Warn("host mirror update failed", zap.Error(err))
		}
	}
	cp := *s
	c.set(&cp, SourceSwitch)

	if c.opts.Reloader == nil {
		return nil
	}
	if err := c.opts.Reloader.Reload(ctx, &cp); err != nil {
		c.recordErr(err)
		return fmt.Errorf("reload session %s: %w", s.ID, err)
	}
	c.recordErr(nil)
	return nil
}

// Clear forgets the active session and removes the slot
func (c *Context) Clear() error {
	c.mu.Lock()
	c.current = nil
	c.mu.Unlock()
	if c.opts.Host != nil {
		if err := c.opts.Host.Write(nil); err != nil {
			c.log.Warn("host mirror update failed", zap.Error(err))
		}
	}
	if c.opts.Slot != nil {
		return c.opts.Slot.Clear()
	}
	return nil
}
