// Package livesync keeps a persistent connection to the authoring
// environment and turns its change notifications into loader operations.
package livesync

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vburojevic/hotswap/internal/domain"
)

// Defaults for Options
const (
	DefaultMaxRetries     = 5
	DefaultBackoffBase    = time.Second
	DefaultConnectTimeout = 10 * time.Second
)

// ClientIDHeader carries the channel's client id on the handshake
const ClientIDHeader = "X-Hotswap-Client"

// Target receives dispatched changes. Both loader strategies satisfy it.
type Target interface {
	HotReloadScreen(ctx context.Context, id string) error
	InjectScreen(ctx context.Context, p *domain.ScreenInjectionPayload) error
	UpdateNavigation(p *domain.NavigationPatch) error
	HasScreen(id string) bool
}

// Options configures a Channel
type Options struct {
	URL            string
	SessionID      string
	Target         Target
	Dialer         Dialer
	Clock          clock.Clock
	Logger         *zap.Logger
	MaxRetries     int
	BackoffBase    time.Duration
	ConnectTimeout time.Duration
	ClientID       string
}

// Stats counts channel traffic
type Stats struct {
	Connects   int
	Received   int
	Dispatched int
	Dropped    int
	Failed     int
}

// Channel is one live-sync connection with bounded linear-backoff reconnect.
//
// Status moves disconnected -> connecting -> connected. A failed dial or an
// unexpected close goes back to connecting and schedules attempt n after
// BackoffBase*n while n <= MaxRetries; after that the channel stays
// disconnected until Reconnect. A successful connect resets the attempt count.
type Channel struct {
	opts  Options
	log   *zap.Logger
	clock clock.Clock

	mu        sync.Mutex
	status    domain.ConnectionStatus
	attempt   int
	conn      Conn
	gen       int
	timer     *clock.Timer
	closed    bool
	ctx       context.Context
	cancel    context.CancelFunc
	stats     Stats
	statusFns []func(domain.ConnectionStatus, int)
	eventFns  []func(Event)
}

// New creates a disconnected channel
func New(opts Options) *Channel {
	if opts.Dialer == nil {
		opts.Dialer = WebsocketDialer{HandshakeTimeout: opts.ConnectTimeout}
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = DefaultBackoffBase
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.ClientID == "" {
		opts.ClientID = uuid.NewString()
	}
	return &Channel{
		opts:   opts,
		log:    opts.Logger.With(zap.String("session_id", opts.SessionID), zap.String("client_id", opts.ClientID)),
		clock:  opts.Clock,
		status: domain.StatusDisconnected,
	}
}

// Start begins connecting in the background. Dispatched operations run with
// ctx; cancelling it closes the channel.
func (c *Channel) Start(ctx context.Context) {
	c.mu.Lock()
	if c.ctx != nil {
		c.mu.Unlock()
		return
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.closed = false
	c.attempt = 0
	runCtx := c.ctx
	c.setStatusLocked(domain.StatusConnecting)
	c.mu.Unlock()

	go func() {
		<-runCtx.Done()
		c.Close()
	}()
	go c.dial()
}

// Reconnect drops any current connection and starts again from attempt zero
func (c *Channel) Reconnect() {
	c.mu.Lock()
	if c.closed || c.ctx == nil {
		c.mu.Unlock()
		return
	}
	c.stopTimerLocked()
	c.dropConnLocked()
	c.attempt = 0
	c.setStatusLocked(domain.StatusConnecting)
	c.mu.Unlock()
	c.log.Info("manual reconnect")
	go c.dial()
}

// Close stops the channel without reconnecting
func (c *Channel) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.stopTimerLocked()
	c.dropConnLocked()
	cancel := c.cancel
	c.setStatusLocked(domain.StatusDisconnected)
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Status returns the current connection status
func (c *Channel) Status() domain.ConnectionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Attempt returns the number of the retry currently scheduled or in flight
func (c *Channel) Attempt() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempt
}

// Stats returns a copy of the traffic counters
func (c *Channel) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// OnStatus adds a status listener, called with the new status and the
// current attempt. Listeners run with the channel lock held and must not call
// back into the channel.
func (c *Channel) OnStatus(fn func(domain.ConnectionStatus, int)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statusFns = append(c.statusFns, fn)
}

// OnEvent adds a listener for every handled message
func (c *Channel) OnEvent(fn func(Event)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.eventFns = append(c.eventFns, fn)
}

func (c *Channel) setStatusLocked(s domain.ConnectionStatus) {
	if c.status == s {
		return
	}
	c.status = s
	for _, fn := range c.statusFns {
		fn(s, c.attempt)
	}
}

func (c *Channel) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// dropConnLocked closes the current connection; its read loop sees a new
// generation and exits without scheduling a retry.
func (c *Channel) dropConnLocked() {
	c.gen++
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

func (c *Channel) dial() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	ctx := c.ctx
	attempt := c.attempt
	c.mu.Unlock()

	header := http.Header{}
	header.Set(ClientIDHeader, c.opts.ClientID)
	dctx, cancel := context.WithTimeout(ctx, c.opts.ConnectTimeout)
	conn, err := c.opts.Dialer.Dial(dctx, c.opts.URL, header)
	cancel()
	if err != nil {
		c.log.Warn("live-sync dial failed", zap.Int("attempt", attempt), zap.Error(err))
		c.retry(attempt)
		return
	}

	c.mu.Lock()
	if c.closed || c.attempt != attempt {
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.stopTimerLocked()
	c.dropConnLocked()
	c.conn = conn
	gen := c.gen
	c.attempt = 0
	c.stats.Connects++
	c.setStatusLocked(domain.StatusConnected)
	c.mu.Unlock()

	c.log.Info("live-sync connected", zap.String("url", c.opts.URL))
	go c.readLoop(ctx, conn, gen)
}

// retry schedules the next attempt after a failure of attempt, or gives up
func (c *Channel) retry(failed int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.attempt != failed {
		return
	}
	if c.attempt >= c.opts.MaxRetries {
		c.stopTimerLocked()
		c.setStatusLocked(domain.StatusDisconnected)
		c.log.Warn("live-sync gave up", zap.Int("attempts", c.attempt))
		return
	}
	c.attempt++
	delay := c.opts.BackoffBase * time.Duration(c.attempt)
	c.setStatusLocked(domain.StatusConnecting)
	c.timer = c.clock.AfterFunc(delay, c.dial)
	c.log.Debug("live-sync retry scheduled", zap.Int("attempt", c.attempt), zap.Duration("delay", delay))
}

func (c *Channel) readLoop(ctx context.Context, conn Conn, gen int) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			current := !c.closed && c.gen == gen
			if current {
				c.conn = nil
			}
			c.mu.Unlock()
			if !current {
				return
			}
			c.log.Warn("live-sync connection lost", zap.Error(err))
			c.retry(0)
			return
		}
		c.handle(ctx, data)
	}
}

// errOtherSession marks messages addressed to another session
var errOtherSession = errors.New("message for another session")
