// Package gateway exposes squad sessions over WebSocket. Each call session is
// served by one actor goroutine, so turns of a session never overlap even
// when several connections share it.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/deepnoodle-ai/callflow"
	"go.jetify.com/typeid"
)

// Message types exchanged with clients.
const (
	TypeMessage = "message"
	TypeEnd     = "end"
	TypeReply   = "reply"
	TypeEnded   = "ended"
	TypeError   = "error"
)

// Frame is the JSON document carried by every WebSocket message.
type Frame struct {
	Type      string `json:"type"`
	Text      string `json:"text,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Orchestrator is the squad capability the gateway drives.
type Orchestrator interface {
	ProcessMessage(ctx context.Context, squadID, utterance, callSessionID string) (string, error)
	EndSession(ctx context.Context, callSessionID string) (string, error)
}

// Options configures a Server.
type Options struct {
	Orchestrator Orchestrator

	// DefaultSquadID is used when a connection does not name a squad.
	DefaultSquadID string

	// OriginPatterns lists the cross-origin hosts allowed to connect.
	OriginPatterns []string

	Logger *slog.Logger
}

// Server accepts WebSocket connections at any path. The query parameters
// "squad" and "session" select the squad and the call session; a session
// id is generated when absent.
type Server struct {
	orchestrator   Orchestrator
	defaultSquadID string
	originPatterns []string
	logger         *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	mutex  sync.Mutex
	actors map[string]*actor
	wg     sync.WaitGroup

	// retiring holds released actors that may still be ending their session.
	retiring map[string]*actor
}

// New returns a Server.
func New(opts Options) (*Server, error) {
	if opts.Orchestrator == nil {
		return nil, fmt.Errorf("orchestrator is required")
	}
	if opts.Logger == nil {
		opts.Logger = callflow.NewDiscardLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		orchestrator:   opts.Orchestrator,
		defaultSquadID: opts.DefaultSquadID,
		originPatterns: opts.OriginPatterns,
		logger:         opts.Logger.With("component", "gateway"),
		ctx:            ctx,
		cancel:         cancel,
		actors:         map[string]*actor{},
		retiring:       map[string]*actor{},
	}, nil
}

// NewCallSessionID returns a new typeid for call sessions opened by the
// gateway.
func NewCallSessionID() string {
	id, err := typeid.WithPrefix("call")
	if err != nil {
		panic(err)
	}
	return id.String()
}

// ServeHTTP upgrades the request and serves the connection until the client
// disconnects, ends the session or the server closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	squadID := r.URL.Query().Get("squad")
	if squadID == "" {
		squadID = s.defaultSquadID
	}
	if squadID == "" {
		http.Error(w, "squad is required", http.StatusBadRequest)
		return
	}
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		sessionID = NewCallSessionID()
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.originPatterns})
	if err != nil {
		s.logger.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	a, release := s.acquire(sessionID)
	if a == nil {
		conn.Close(websocket.StatusGoingAway, "server closing")
		return
	}
	defer release()

	logger := s.logger.With("call_session_id", sessionID, "squad_id", squadID)
	logger.Info("connection opened")
	err = s.serve(r.Context(), conn, a, squadID, sessionID)
	switch {
	case err == nil:
		conn.Close(websocket.StatusNormalClosure, "session ended")
	case websocket.CloseStatus(err) == websocket.StatusNormalClosure,
		websocket.CloseStatus(err) == websocket.StatusGoingAway:
		logger.Info("connection closed by client")
	case errors.Is(err, context.Canceled):
		conn.Close(websocket.StatusGoingAway, "server closing")
	default:
		logger.Warn("connection failed", "error", err)
	}
}

func (s *Server) serve(ctx context.Context, conn *websocket.Conn, a *actor, squadID, sessionID string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	for {
		var in Frame
		if err := wsjson.Read(ctx, conn, &in); err != nil {
			return err
		}
		var out Frame
		switch in.Type {
		case TypeMessage:
			out = a.do(ctx, turn{squadID: squadID, utterance: in.Text})
		case TypeEnd:
			out = a.do(ctx, turn{end: true})
		default:
			out = Frame{Type: TypeError, Error: fmt.Sprintf("unknown frame type %q", in.Type)}
		}
		out.SessionID = sessionID
		if err := wsjson.Write(ctx, conn, out); err != nil {
			return err
		}
		if out.Type == TypeEnded {
			return nil
		}
	}
}

// acquire returns the actor of a call session, starting it on first use.
// The actor stops once every holder released it, ending the squad session
// if no client did. A replacement actor waits for its predecessor, so a
// reconnecting client never races that end. It returns nil once the server
// is closed.
func (s *Server) acquire(sessionID string) (*actor, func()) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.ctx.Err() != nil {
		return nil, nil
	}
	a, ok := s.actors[sessionID]
	if !ok {
		a = newActor(s.orchestrator, sessionID, s.logger)
		if prev, ok := s.retiring[sessionID]; ok {
			a.after = prev.done
		}
		s.actors[sessionID] = a
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			a.run(s.ctx)
			s.mutex.Lock()
			defer s.mutex.Unlock()
			if s.retiring[sessionID] == a {
				delete(s.retiring, sessionID)
			}
		}()
	}
	a.refs++
	return a, func() {
		s.mutex.Lock()
		defer s.mutex.Unlock()
		a.refs--
		if a.refs == 0 {
			delete(s.actors, sessionID)
			s.retiring[sessionID] = a
			close(a.inbox)
		}
	}
}

// ActiveSessions returns the number of call sessions with an actor.
func (s *Server) ActiveSessions() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.actors)
}

// Close stops accepting turns and waits for the actors to finish.
func (s *Server) Close() error {
	s.mutex.Lock()
	s.cancel()
	s.mutex.Unlock()
	s.wg.Wait()
	return nil
}
