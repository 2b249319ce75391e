package gateway

import (
	"context"
	"log/slog"
	"time"
)

// abandonTimeout bounds ending a session whose clients all disconnected.
const abandonTimeout = 30 * time.Second

type turn struct {
	squadID   string
	utterance string
	end       bool
	ctx       context.Context
	reply     chan Frame
}

// actor owns the turns of one call session.
type actor struct {
	orchestrator Orchestrator
	sessionID    string
	logger       *slog.Logger
	inbox        chan turn
	refs         int

	// after is closed once the previous actor of the session stopped.
	after <-chan struct{}
	done  chan struct{}

	// open is set while the squad session has turns that no end closed.
	// Only the run goroutine touches it.
	open bool
}

func newActor(orchestrator Orchestrator, sessionID string, logger *slog.Logger) *actor {
	return &actor{
		orchestrator: orchestrator,
		sessionID:    sessionID,
		logger:       logger.With("call_session_id", sessionID),
		inbox:        make(chan turn),
		done:         make(chan struct{}),
	}
}

// run handles turns until the inbox is closed or ctx ends. A closed inbox
// means every client left; a session they did not end is ended here.
func (a *actor) run(ctx context.Context) {
	defer close(a.done)
	if a.after != nil {
		select {
		case <-a.after:
		case <-ctx.Done():
			return
		}
	}
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-a.inbox:
			if !ok {
				a.abandon()
				return
			}
			t.reply <- a.handle(t)
		}
	}
}

func (a *actor) abandon() {
	if !a.open {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), abandonTimeout)
	defer cancel()
	if _, err := a.orchestrator.EndSession(ctx, a.sessionID); err != nil {
		a.logger.Warn("failed to end abandoned session", "error", err)
		return
	}
	a.open = false
	a.logger.Info("abandoned session ended")
}

func (a *actor) handle(t turn) Frame {
	if t.end {
		summary, err := a.orchestrator.EndSession(t.ctx, a.sessionID)
		if err != nil {
			return Frame{Type: TypeError, Error: err.Error()}
		}
		a.open = false
		return Frame{Type: TypeEnded, Text: summary}
	}
	// a failed turn may still have opened the session
	a.open = true
	reply, err := a.orchestrator.ProcessMessage(t.ctx, t.squadID, t.utterance, a.sessionID)
	if err != nil {
		a.logger.Warn("turn failed", "error", err)
		return Frame{Type: TypeError, Error: err.Error()}
	}
	return Frame{Type: TypeReply, Text: reply}
}

// do submits a turn and waits for its outcome.
func (a *actor) do(ctx context.Context, t turn) Frame {
	t.ctx = ctx
	t.reply = make(chan Frame, 1)
	select {
	case a.inbox <- t:
	case <-ctx.Done():
		return Frame{Type: TypeError, Error: ctx.Err().Error()}
	}
	select {
	case out := <-t.reply:
		return out
	case <-ctx.Done():
		return Frame{Type: TypeError, Error: ctx.Err().Error()}
	}
}
