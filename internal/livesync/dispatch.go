package livesync

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/vburojevic/hotswap/internal/domain"
)

// Action says what the channel did with a message
type Action string

const (
	ActionReloaded     Action = "reloaded"
	ActionInjected     Action = "injected"
	ActionNavigation   Action = "navigation"
	ActionSkipped      Action = "skipped"
	ActionAcknowledged Action = "acknowledged"
	ActionDropped      Action = "dropped"
	ActionFailed       Action = "failed"
)

// Event describes one handled message
type Event struct {
	Type      domain.MessageType `json:"message_type,omitempty"`
	SessionID string             `json:"session_id,omitempty"`
	Action    Action             `json:"action"`
	ScreenIDs []string           `json:"screen_ids,omitempty"`
	FilePath  string             `json:"file_path,omitempty"`
	Error     string             `json:"error,omitempty"`
	Timestamp int64              `json:"timestamp,omitempty"`
}

// handle decodes and dispatches one frame. Frames are handled one at a time
// in arrival order.
func (c *Channel) handle(ctx context.Context, data []byte) {
	c.mu.Lock()
	c.stats.Received++
	c.mu.Unlock()

	msg, err := domain.DecodeMessage(data)
	if err == nil && msg.SessionID != "" && msg.SessionID != c.opts.SessionID {
		err = fmt.Errorf("%w: %s", errOtherSession, msg.SessionID)
	}
	if err != nil {
		ev := Event{Action: ActionDropped, Error: err.Error()}
		if msg != nil {
			ev.Type, ev.SessionID, ev.Timestamp = msg.Type, msg.SessionID, msg.Timestamp
		}
		c.log.Warn("live-sync message dropped", zap.Error(err))
		c.finish(ev)
		return
	}

	ev := c.Dispatch(ctx, msg)
	c.finish(ev)
}

func (c *Channel) finish(ev Event) {
	c.mu.Lock()
	switch ev.Action {
	case ActionDropped:
		c.stats.Dropped++
	case ActionFailed:
		c.stats.Failed++
	default:
		c.stats.Dispatched++
	}
	fns := slices.Clone(c.eventFns)
	c.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

// Dispatch applies one decoded message to the target and reports what happened
func (c *Channel) Dispatch(ctx context.Context, msg *domain.Message) Event {
	ev := Event{Type: msg.Type, SessionID: msg.SessionID, Timestamp: msg.Timestamp}
	log := c.log.With(zap.String("message_type", string(msg.Type)))
	t := c.opts.Target

	fail := func(err error) Event {
		ev.Error = err.Error()
		if errors.Is(err, domain.ErrMalformedMessage) {
			ev.Action = ActionDropped
			log.Warn("live-sync payload dropped", zap.Error(err))
		} else {
			ev.Action = ActionFailed
			log.Warn("live-sync dispatch failed", zap.Strings("screen_ids", ev.ScreenIDs), zap.Error(err))
		}
		return ev
	}

	switch msg.Type {
	case domain.MessageScreenUpdate:
		var p domain.ScreenUpdatePayload
		if err := msg.DecodePayload(&p); err != nil {
			return fail(err)
		}
		ev.ScreenIDs = []string{p.ScreenID}
		switch p.ChangeType {
		case domain.ChangeDeleted:
			log.Info("screen deleted upstream", zap.String("screen_id", p.ScreenID))
			ev.Action = ActionAcknowledged
			return ev
		case domain.ChangeCreated:
			if !t.HasScreen(p.ScreenID) {
				log.Debug("created screen not in session", zap.String("screen_id", p.ScreenID))
				ev.Action = ActionSkipped
				return ev
			}
		}
		if err := t.HotReloadScreen(ctx, p.ScreenID); err != nil {
			return fail(err)
		}
		ev.Action = ActionReloaded

	case domain.MessageScreenInjection:
		var p domain.ScreenInjectionPayload
		if err := msg.DecodePayload(&p); err != nil {
			return fail(err)
		}
		ev.ScreenIDs = []string{p.ScreenID}
		if err := t.InjectScreen(ctx, &p); err != nil {
			return fail(err)
		}
		ev.Action = ActionInjected

	case domain.MessageNavigationUpdate:
		var p domain.NavigationUpdatePayload
		if err := msg.DecodePayload(&p); err != nil {
			return fail(err)
		}
		ev.ScreenIDs = p.AffectedRoutes
		if p.NavigationConfig.IsEmpty() {
			ev.Action = ActionSkipped
			return ev
		}
		if err := t.UpdateNavigation(p.NavigationConfig); err != nil {
			return fail(err)
		}
		ev.Action = ActionNavigation

	case domain.MessageFileChange:
		var p domain.FileChangePayload
		if err := msg.DecodePayload(&p); err != nil {
			return fail(err)
		}
		ev.FilePath = p.FilePath
		ev.ScreenIDs = p.AffectedScreens
		if len(p.AffectedScreens) == 0 {
			ev.Action = ActionSkipped
			return ev
		}
		var errs []error
		for _, id := range p.AffectedScreens {
			if err := t.HotReloadScreen(ctx, id); err != nil {
				errs = append(errs, err)
			}
		}
		if err := errors.Join(errs...); err != nil {
			return fail(err)
		}
		ev.Action = ActionReloaded

	default:
		return fail(fmt.Errorf("%w: unknown type %q", domain.ErrMalformedMessage, msg.Type))
	}
	return ev
}
