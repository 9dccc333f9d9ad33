package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/vburojevic/hotswap/internal/api"
	"github.com/vburojevic/hotswap/internal/cache"
	"github.com/vburojevic/hotswap/internal/domain"
	"github.com/vburojevic/hotswap/internal/filter"
	"github.com/vburojevic/hotswap/internal/livesync"
	"github.com/vburojevic/hotswap/internal/loader"
	"github.com/vburojevic/hotswap/internal/output"
	"github.com/vburojevic/hotswap/internal/session"
	"github.com/vburojevic/hotswap/internal/sessionctx"
	"github.com/vburojevic/hotswap/internal/tmux"
)

// Trigger kinds
const (
	triggerReload     = "reload"
	triggerStub       = "stub"
	triggerDisconnect = "disconnect"
)

// WatchCmd loads a session, applies live-sync changes and runs hooks
type WatchCmd struct {
	previewFlags `embed:""`

	Where        []string `short:"w" help:"Only emit records matching field=value, field~regex, version>=N (repeatable, AND)"`
	Dedupe       bool     `help:"Collapse repeated identical sync and change records"`
	DedupeWindow string   `default:"0s" help:"Collapse duplicates within this window (0 = consecutive only)"`

	OnReload            string `help:"Command to run after a screen hot-reloads"`
	OnStub              string `help:"Command to run when a screen falls back to an error stub"`
	OnDisconnect        string `help:"Command to run when live-sync gives up reconnecting"`
	Cooldown            string `default:"5s" help:"Minimum time between runs of the same trigger"`
	TriggerTimeout      string `default:"30s" help:"Kill trigger commands running longer than this"`
	TriggerOutput       string `enum:"discard,inherit" default:"discard" help:"Trigger command output: discard or inherit (stderr)"`
	MaxParallelTriggers int    `default:"4" help:"Maximum trigger commands running at once"`

	RecordDir      string `type:"path" help:"Also append NDJSON records to <dir>/<session>.ndjson, one file per session"`
	Follow         bool   `help:"Restart on the new session when the active session changes"`
	FollowInterval string `default:"2s" help:"How often --follow checks the active session"`

	Tmux        bool   `help:"Mirror output to a tmux session"`
	TmuxSession string `help:"Custom tmux session name (default: hotswap-<session>)"`
	DryRunJSON  bool   `help:"Print the resolved watch plan as JSON and exit"`
}

// watchPlan is printed by --dry-run-json
type watchPlan struct {
	Type                string            `json:"type"` // "watch_plan"
	SchemaVersion       int               `json:"schemaVersion"`
	SessionID           string            `json:"session_id"`
	Strategy            string            `json:"strategy"`
	ServerURL           string            `json:"server_url"`
	SyncURL             string            `json:"sync_url"`
	BaselineDir         string            `json:"baseline_dir,omitempty"`
	Where               []string          `json:"where,omitempty"`
	Dedupe              bool              `json:"dedupe"`
	DedupeWindow        string            `json:"dedupe_window"`
	Triggers            map[string]string `json:"triggers,omitempty"`
	Cooldown            string            `json:"cooldown"`
	TriggerTimeout      string            `json:"trigger_timeout"`
	TriggerOutput       string            `json:"trigger_output"`
	MaxParallelTriggers int               `json:"max_parallel_triggers"`
	RecordDir           string            `json:"record_dir,omitempty"`
	Follow              bool              `json:"follow"`
	MaxRetries          int               `json:"max_retries"`
	BackoffBase         string            `json:"backoff_base"`
}

type watchDurations struct {
	cooldown, triggerTimeout, dedupeWindow, followInterval time.Duration
}

func (c *WatchCmd) parseDurations(globals *Globals) (watchDurations, error) {
	var d watchDurations
	for _, f := range []struct {
		flag  string
		value string
		into  *time.Duration
	}{
		{"--cooldown", c.Cooldown, &d.cooldown},
		{"--trigger-timeout", c.TriggerTimeout, &d.triggerTimeout},
		{"--dedupe-window", c.DedupeWindow, &d.dedupeWindow},
		{"--follow-interval", c.FollowInterval, &d.followInterval},
	} {
		v, err := time.ParseDuration(f.value)
		if err != nil || v < 0 {
			return d, outputErrorCommon(globals, "INVALID_DURATION", fmt.Sprintf("invalid %s: %q", f.flag, f.value), "use a Go duration such as 500ms, 5s or 1m")
		}
		*f.into = v
	}
	if d.followInterval == 0 {
		d.followInterval = 2 * time.Second
	}
	return d, nil
}

func (c *WatchCmd) triggers() map[string]string {
	return lo.PickBy(map[string]string{
		triggerReload:     c.OnReload,
		triggerStub:       c.OnStub,
		triggerDisconnect: c.OnDisconnect,
	}, func(_ string, cmd string) bool { return cmd != "" })
}

// Run executes the watch command
func (c *WatchCmd) Run(globals *Globals) error {
	ctx, cancel := signalContext()
	defer cancel()

	durations, err := c.parseDurations(globals)
	if err != nil {
		return err
	}
	if err := validateFlags(globals, c.DryRunJSON, c.Tmux); err != nil {
		return err
	}
	if c.MaxParallelTriggers < 1 {
		return outputErrorCommon(globals, "INVALID_FLAGS", "--max-parallel-triggers must be at least 1")
	}
	where, err := filter.NewWhereFilter(c.Where)
	if err != nil {
		return outputErrorCommon(globals, "INVALID_WHERE", err.Error(), "use field=value, field!=value, field~regex, field^prefix, field$suffix or version>=N")
	}
	if err := validateStrategy(globals, c.strategy(globals), c.baselineDir(globals)); err != nil {
		return err
	}

	client, err := newAPIClient(globals, c.serverURL(globals))
	if err != nil {
		return outputErrorCommon(globals, "INVALID_SERVER", err.Error(), "set --server or server.url to an http(s) URL")
	}

	w := c.newWatcher(globals, client, durations, where)

	sc, err := newSessionContext(globals, client, sessionctx.ReloaderFunc(w.restart))
	if err != nil {
		return outputErrorCommon(globals, "SESSION_STATE", err.Error())
	}
	s, err := c.resolveSession(ctx, globals, sc)
	if err != nil {
		if errors.Is(err, errNoSession) {
			return outputErrorCommon(globals, "NO_SESSION", err.Error(), "pass --session or run 'hotswap session switch <id>'")
		}
		return outputErrorCommon(globals, "SESSION_STATE", err.Error())
	}
	syncURL, err := c.syncURL(globals, s.ID)
	if err != nil {
		return outputErrorCommon(globals, "INVALID_SERVER", err.Error())
	}

	if c.DryRunJSON {
		return c.outputPlan(globals, s.ID, syncURL)
	}

	out := globals.Stdout
	if c.Tmux {
		if mirror := c.openTmux(globals, s.ID); mirror != nil {
			w.tmux = mirror
			out = tmux.NewWriter(mirror)
			defer mirror.Cleanup()
		}
	}
	w.out = globals.recordWriter(out)
	defer func() {
		if tw, ok := out.(*tmux.Writer); ok {
			_ = tw.Flush()
		}
	}()
	defer w.rotation.Close()

	if !globals.Quiet {
		w.emit(&output.Ready{
			Type:          "ready",
			SchemaVersion: output.SchemaVersion,
			Timestamp:     output.Now(),
			RunID:         w.runID,
			SessionID:     s.ID,
			Strategy:      c.strategy(globals),
			ServerURL:     c.serverURL(globals),
			SyncURL:       syncURL,
		})
		if globals.Format == "text" && w.tmux == nil {
			fmt.Fprintln(globals.Stderr, "Press Ctrl+C to stop")
		}
	}
	sc.OnSwitch(func(ev *domain.SessionSwitch) { w.emit(ev) })

	if err := w.start(ctx, s.ID); err != nil {
		return loadError(globals, err)
	}
	defer w.stop()

	if !c.Follow {
		<-ctx.Done()
		return nil
	}

	slot, err := activeSlot(globals)
	if err != nil {
		return outputErrorCommon(globals, "SESSION_STATE", err.Error())
	}
	ticker := time.NewTicker(durations.followInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			id, err := slot.Load()
			if err != nil {
				w.log.Warn("active session unreadable", zap.Error(err))
				continue
			}
			if id == "" || id == w.tracker.CurrentSession() {
				continue
			}
			if err := sc.Switch(ctx, &domain.Session{ID: id}); err != nil {
				w.emitError("SWITCH_FAILED", err.Error(), "the previous session was stopped; fix the new session or switch back")
			}
		}
	}
}

func (c *WatchCmd) outputPlan(globals *Globals, sessionID, syncURL string) error {
	plan := watchPlan{
		Type:                "watch_plan",
		SchemaVersion:       output.SchemaVersion,
		SessionID:           sessionID,
		Strategy:            c.strategy(globals),
		ServerURL:           c.serverURL(globals),
		SyncURL:             syncURL,
		BaselineDir:         c.baselineDir(globals),
		Where:               c.Where,
		Dedupe:              c.Dedupe,
		DedupeWindow:        c.DedupeWindow,
		Triggers:            c.triggers(),
		Cooldown:            c.Cooldown,
		TriggerTimeout:      c.TriggerTimeout,
		TriggerOutput:       c.TriggerOutput,
		MaxParallelTriggers: c.MaxParallelTriggers,
		RecordDir:           c.RecordDir,
		Follow:              c.Follow,
		MaxRetries:          globals.Config.Sync.MaxRetries,
		BackoffBase:         globals.Config.Sync.BackoffBase.String(),
	}
	return json.NewEncoder(globals.Stdout).Encode(plan)
}

// openTmux creates the mirror session, or returns nil when tmux is unusable
func (c *WatchCmd) openTmux(globals *Globals, sessionID string) *tmux.Manager {
	if !tmux.IsTmuxAvailable() {
		globals.Debug("tmux not found, writing to stdout")
		return nil
	}
	name := lo.CoalesceOrEmpty(c.TmuxSession, tmux.GenerateSessionName(sessionID))
	mgr, err := tmux.NewManager(&tmux.Config{SessionName: name, Title: sessionID})
	if err != nil {
		globals.Debug("tmux unavailable: %v", err)
		return nil
	}
	if err := mgr.GetOrCreateSession(); err != nil {
		globals.Debug("tmux session failed: %v", err)
		return nil
	}
	_ = mgr.ClearPaneWithBanner(fmt.Sprintf("Watching session %s (%s)", sessionID, c.strategy(globals)))
	_ = globals.recordWriter(globals.Stdout).Write(&output.Tmux{
		Type:          "tmux",
		SchemaVersion: output.SchemaVersion,
		Session:       name,
		Attach:        mgr.AttachCommand(),
	})
	return mgr
}

// world is everything that lives for one session: the loader and its channel
type world struct {
	sessionID string
	preview   loader.Preview
	channel   *livesync.Channel
	cancel    context.CancelFunc
	stopping  atomic.Bool
}

type watcher struct {
	cmd       *WatchCmd
	globals   *Globals
	log       *zap.Logger
	client    *api.Client
	cache     *cache.Cache
	runID     string
	durations watchDurations
	where     *filter.WhereFilter
	dedupe    *filter.DedupeFilter
	tracker   *session.Tracker
	rotation  *rotation
	tmux      *tmux.Manager
	out       output.RecordWriter

	emitMu sync.Mutex

	mu      sync.Mutex
	current *world

	triggerMu sync.Mutex
	commands  map[string]string
	lastRun   map[string]time.Time
	sem       chan struct{}
}

func (c *WatchCmd) newWatcher(globals *Globals, client *api.Client, d watchDurations, where *filter.WhereFilter) *watcher {
	w := &watcher{
		cmd:       c,
		globals:   globals,
		log:       globals.Logger().Named("watch"),
		client:    client,
		cache:     cache.New(),
		runID:     uuid.NewString(),
		durations: d,
		where:     where,
		tracker:   session.NewTracker(nil),
		rotation:  newRotation(c.RecordDir),
		commands:  c.triggers(),
		lastRun:   make(map[string]time.Time),
		sem:       make(chan struct{}, c.MaxParallelTriggers),
	}
	if c.Dedupe {
		w.dedupe = filter.NewDedupeFilter(d.dedupeWindow, nil)
	}
	return w
}

// start loads sessionID and connects its live-sync channel
func (w *watcher) start(ctx context.Context, sessionID string) error {
	if end := w.tracker.Start(sessionID); end != nil {
		w.emit(end)
	}
	if path, err := w.rotation.Open(sessionID); err != nil {
		w.log.Warn("record file unavailable", zap.Error(err))
	} else if path != "" {
		w.globals.Debug("recording to %s", path)
	}

	runCtx, cancel := context.WithCancel(ctx)
	p, err := w.cmd.newPreview(w.globals, w.client, sessionID, w.cache)
	if err != nil {
		cancel()
		return err
	}
	wd := &world{sessionID: sessionID, preview: p, cancel: cancel}
	p.OnChange(w.onChange)

	syncURL, err := w.cmd.syncURL(w.globals, sessionID)
	if err != nil {
		p.Close()
		cancel()
		return err
	}
	cfg := w.globals.Config.Sync
	wd.channel = livesync.New(livesync.Options{
		URL:            syncURL,
		SessionID:      sessionID,
		Target:         p,
		Logger:         w.log.Named("sync"),
		MaxRetries:     cfg.MaxRetries,
		BackoffBase:    cfg.BackoffBase,
		ConnectTimeout: cfg.ConnectTimeout,
		ClientID:       w.runID,
	})
	wd.channel.OnStatus(func(s domain.ConnectionStatus, attempt int) {
		w.emitEvent(statusRecord(s, attempt))
		if s == domain.StatusDisconnected && !wd.stopping.Load() {
			w.trigger(triggerDisconnect, "", map[string]string{"HOTSWAP_ATTEMPTS": fmt.Sprint(attempt)})
		}
	})
	wd.channel.OnEvent(func(ev livesync.Event) {
		w.tracker.RecordEvent(ev)
		w.emitEvent(syncRecord(ev))
	})

	// Connect while loading; the loader merges updates that race the load
	began := time.Now()
	wd.channel.Start(runCtx)
	if err := p.Load(runCtx); err != nil {
		wd.stopping.Store(true)
		wd.channel.Close()
		p.Close()
		cancel()
		return err
	}
	w.emit(loadedRecord(p, w.cmd.strategy(w.globals), time.Since(began)))

	w.mu.Lock()
	w.current = wd
	w.mu.Unlock()
	return nil
}

// stop tears down the current world without emitting its summary twice
func (w *watcher) stop() {
	w.mu.Lock()
	wd := w.current
	w.current = nil
	w.mu.Unlock()
	if wd != nil {
		wd.stopping.Store(true)
		if wd.channel != nil {
			wd.channel.Close()
		}
		wd.cancel()
		wd.preview.Close()
	}
	if end := w.tracker.GetFinalSummary(); end != nil {
		w.emit(end)
	}
}

// restart is the session context's reloader: the old world is cancelled and
// a new one started for s
func (w *watcher) restart(ctx context.Context, s *domain.Session) error {
	w.mu.Lock()
	wd := w.current
	w.current = nil
	w.mu.Unlock()
	prev := ""
	if wd != nil {
		prev = wd.sessionID
		wd.stopping.Store(true)
		if wd.channel != nil {
			wd.channel.Close()
		}
		wd.cancel()
		wd.preview.Close()
		if prev != s.ID {
			w.globals.Debug("dropped %d cached screens of %s", wd.preview.ClearCache(), prev)
		}
	}
	if w.dedupe != nil {
		w.dedupe.Reset()
	}
	if w.tmux != nil {
		_ = w.tmux.WriteSessionBanner(s.ID, prev, "")
	}
	return w.start(ctx, s.ID)
}

func (w *watcher) onChange(ch loader.Change) {
	w.tracker.RecordChange(ch)
	if ch.Kind == loader.ChangeLoaded {
		return
	}
	w.emitEvent(changeRecord(ch))

	env := map[string]string{
		"HOTSWAP_CHANGE":  string(ch.Kind),
		"HOTSWAP_VERSION": fmt.Sprint(ch.Version),
	}
	switch {
	case ch.Stub:
		env["HOTSWAP_ERROR"] = ch.Err
		w.trigger(triggerStub, ch.ScreenID, env)
	case ch.Kind == loader.ChangeScreenReloaded:
		w.trigger(triggerReload, ch.ScreenID, env)
	}
}

// emit writes a record that is never filtered
func (w *watcher) emit(rec interface{}) {
	w.emitMu.Lock()
	defer w.emitMu.Unlock()
	w.write(rec)
}

// emitEvent writes a stream record subject to --where and --dedupe
func (w *watcher) emitEvent(rec interface{}) {
	if !w.where.Match(rec) {
		return
	}
	w.emitMu.Lock()
	defer w.emitMu.Unlock()
	if w.dedupe != nil && !w.dedupe.Check(rec).ShouldEmit {
		return
	}
	w.write(rec)
}

func (w *watcher) write(rec interface{}) {
	if err := w.out.Write(rec); err != nil {
		w.log.Warn("write record", zap.Error(err))
	}
	if err := w.rotation.Write(rec); err != nil {
		w.log.Warn("write record file", zap.Error(err))
	}
}

func (w *watcher) emitError(code, message, hint string) {
	w.emit(&output.ErrorRecord{Type: "error", SchemaVersion: output.SchemaVersion, Code: code, Message: message, Hint: hint})
}

// trigger runs the command configured for kind unless it ran within the
// cooldown or too many commands are already running
func (w *watcher) trigger(kind, screenID string, env map[string]string) {
	command, ok := w.commands[kind]
	if !ok {
		return
	}
	now := time.Now()
	w.triggerMu.Lock()
	if now.Sub(w.lastRun[kind]) < w.durations.cooldown {
		w.triggerMu.Unlock()
		return
	}
	w.lastRun[kind] = now
	w.triggerMu.Unlock()

	select {
	case w.sem <- struct{}{}:
	default:
		w.emitEvent(&output.Trigger{Type: "trigger_error", SchemaVersion: output.SchemaVersion, Trigger: kind, Command: command, ScreenID: screenID, Error: "too many triggers running"})
		return
	}

	w.emitEvent(&output.Trigger{Type: "trigger", SchemaVersion: output.SchemaVersion, Trigger: kind, Command: command, ScreenID: screenID})

	vars := lo.Assign(map[string]string{
		"HOTSWAP_TRIGGER":    kind,
		"HOTSWAP_SESSION_ID": w.tracker.CurrentSession(),
		"HOTSWAP_SCREEN_ID":  screenID,
		"HOTSWAP_RUN_ID":     w.runID,
		"HOTSWAP_TIMESTAMP":  now.UTC().Format(time.RFC3339),
	}, env)

	// Run in the background so dispatch never waits on a hook
	go func() {
		defer func() { <-w.sem }()
		ctx := context.Background()
		if w.durations.triggerTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, w.durations.triggerTimeout)
			defer cancel()
		}
		if err := w.runCommand(ctx, command, vars); err != nil {
			w.emitEvent(&output.Trigger{Type: "trigger_error", SchemaVersion: output.SchemaVersion, Trigger: kind, Command: command, ScreenID: screenID, Error: err.Error()})
		}
	}()
}

func (w *watcher) runCommand(ctx context.Context, command string, vars map[string]string) error {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Env = os.Environ()
	for k, v := range vars {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	var sink io.Writer = io.Discard
	if w.cmd.TriggerOutput == "inherit" {
		sink = w.globals.Stderr
	}
	cmd.Stdout, cmd.Stderr = sink, sink
	return cmd.Run()
}
