package cli

import (
	"context"
	"fmt"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/vburojevic/hotswap/internal/domain"
	"github.com/vburojevic/hotswap/internal/livesync"
	"github.com/vburojevic/hotswap/internal/loader"
	"github.com/vburojevic/hotswap/internal/tui"
)

// UICmd launches an interactive preview of a live session
type UICmd struct {
	previewFlags `embed:""`
}

// Run executes the UI command
func (c *UICmd) Run(globals *Globals) error {
	ctx, cancel := signalContext()
	defer cancel()

	// Logs would corrupt the alt screen; keep them only when asked for
	if !globals.Verbose {
		globals.Quiet = true
	}

	p, strategy, err := (&LoadCmd{previewFlags: c.previewFlags}).open(ctx, globals)
	if err != nil {
		return err
	}
	defer p.Close()

	syncURL, err := c.syncURL(globals, p.SessionID())
	if err != nil {
		return outputErrorCommon(globals, "INVALID_SERVER", err.Error())
	}
	cfg := globals.Config.Sync
	ch := livesync.New(livesync.Options{
		URL:            syncURL,
		SessionID:      p.SessionID(),
		Target:         p,
		Logger:         globals.Logger().Named("sync"),
		MaxRetries:     cfg.MaxRetries,
		BackoffBase:    cfg.BackoffBase,
		ConnectTimeout: cfg.ConnectTimeout,
	})
	defer ch.Close()

	log := globals.Logger().Named("ui")
	model := tui.New(p, strategy, tui.Controls{
		Load: func() error {
			globals.Debug("loading session %s", p.SessionID())
			err := p.Load(ctx)
			if err != nil {
				log.Warn("load failed", zap.Error(err))
			}
			return err
		},
		ClearCache: p.ClearCache,
		Reconnect:  ch.Reconnect,
	})
	prog := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	pumpCtx, stopPump := context.WithCancel(ctx)
	defer stopPump()
	pump := newMsgPump()
	go pump.run(pumpCtx, prog.Send)

	p.OnChange(func(change loader.Change) { pump.push(tui.ChangeMsg(change)) })
	ch.OnStatus(func(s domain.ConnectionStatus, attempt int) {
		pump.push(tui.StatusMsg{Status: s, Attempt: attempt})
	})
	ch.OnEvent(func(ev livesync.Event) { pump.push(tui.EventMsg(ev)) })

	// The model loads on start; connect alongside it
	ch.Start(ctx)

	if _, err := prog.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

// msgPump forwards messages to the program in the order they were pushed.
// push never blocks, so loader and channel listeners can call it while
// holding their locks.
type msgPump struct {
	mu    sync.Mutex
	queue []tea.Msg
	wake  chan struct{}
}

func newMsgPump() *msgPump {
	return &msgPump{wake: make(chan struct{}, 1)}
}

func (p *msgPump) push(msg tea.Msg) {
	p.mu.Lock()
	p.queue = append(p.queue, msg)
	p.mu.Unlock()
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// run delivers queued messages through send, one at a time, until ctx ends
func (p *msgPump) run(ctx context.Context, send func(tea.Msg)) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.wake:
		}
		p.mu.Lock()
		batch := p.queue
		p.queue = nil
		p.mu.Unlock()
		for _, msg := range batch {
			send(msg)
		}
	}
}
