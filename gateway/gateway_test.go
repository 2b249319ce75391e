package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/require"
)

// fakeOrchestrator echoes utterances and tracks overlapping turns per
// session.
type fakeOrchestrator struct {
	mutex       sync.Mutex
	inFlight    map[string]int
	maxInFlight int
	turns       int
	delay       time.Duration
	ended       []string
}

func (f *fakeOrchestrator) enter(sessionID string) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if f.inFlight == nil {
		f.inFlight = map[string]int{}
	}
	f.inFlight[sessionID]++
	f.turns++
	f.maxInFlight = max(f.maxInFlight, f.inFlight[sessionID])
}

func (f *fakeOrchestrator) leave(sessionID string) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.inFlight[sessionID]--
}

func (f *fakeOrchestrator) ProcessMessage(ctx context.Context, squadID, utterance, callSessionID string) (string, error) {
	f.enter(callSessionID)
	defer f.leave(callSessionID)
	time.Sleep(f.delay)
	if utterance == "fail" {
		return "", errors.New("provider unavailable")
	}
	return fmt.Sprintf("%s: %s", squadID, utterance), nil
}

func (f *fakeOrchestrator) EndSession(ctx context.Context, callSessionID string) (string, error) {
	if callSessionID == "unknown" {
		return "", errors.New("squad session not found")
	}
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.ended = append(f.ended, callSessionID)
	return "summary of " + callSessionID, nil
}

func (f *fakeOrchestrator) endedSessions() []string {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return append([]string(nil), f.ended...)
}

func newTestServer(t *testing.T, orchestrator Orchestrator) (*Server, *httptest.Server) {
	t.Helper()
	server, err := New(Options{Orchestrator: orchestrator, DefaultSquadID: "support"})
	require.NoError(t, err)
	srv := httptest.NewServer(server)
	t.Cleanup(func() {
		srv.Close()
		server.Close()
	})
	return server, srv
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws?"+query, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

func exchange(t *testing.T, conn *websocket.Conn, in Frame) Frame {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, wsjson.Write(ctx, conn, in))
	var out Frame
	require.NoError(t, wsjson.Read(ctx, conn, &out))
	return out
}

func TestNewRequiresOrchestrator(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
}

func TestConversation(t *testing.T) {
	orchestrator := &fakeOrchestrator{}
	server, srv := newTestServer(t, orchestrator)
	conn := dial(t, srv, "squad=sales&session=call-1")

	out := exchange(t, conn, Frame{Type: TypeMessage, Text: "hello"})
	require.Equal(t, Frame{Type: TypeReply, Text: "sales: hello", SessionID: "call-1"}, out)
	require.Equal(t, 1, server.ActiveSessions())

	out = exchange(t, conn, Frame{Type: TypeMessage, Text: "fail"})
	require.Equal(t, TypeError, out.Type)
	require.Equal(t, "provider unavailable", out.Error)

	out = exchange(t, conn, Frame{Type: "shout"})
	require.Equal(t, TypeError, out.Type)
	require.Contains(t, out.Error, "unknown frame type")

	out = exchange(t, conn, Frame{Type: TypeEnd})
	require.Equal(t, Frame{Type: TypeEnded, Text: "summary of call-1", SessionID: "call-1"}, out)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _, err := conn.Read(ctx)
	require.Equal(t, websocket.StatusNormalClosure, websocket.CloseStatus(err))
	require.Eventually(t, func() bool { return server.ActiveSessions() == 0 }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, server.Close())
	require.Equal(t, []string{"call-1"}, orchestrator.endedSessions())
}

func TestDisconnectEndsOpenSession(t *testing.T) {
	orchestrator := &fakeOrchestrator{}
	server, srv := newTestServer(t, orchestrator)

	conn := dial(t, srv, "session=call-7")
	out := exchange(t, conn, Frame{Type: TypeMessage, Text: "hello"})
	require.Equal(t, TypeReply, out.Type)
	require.NoError(t, conn.Close(websocket.StatusNormalClosure, ""))

	require.Eventually(t, func() bool {
		return len(orchestrator.endedSessions()) == 1
	}, 5*time.Second, 10*time.Millisecond)
	require.Equal(t, []string{"call-7"}, orchestrator.endedSessions())
	require.Equal(t, 0, server.ActiveSessions())

	// a client that never spoke leaves nothing to end
	idle := dial(t, srv, "session=call-8")
	require.NoError(t, idle.Close(websocket.StatusNormalClosure, ""))
	require.Eventually(t, func() bool { return server.ActiveSessions() == 0 }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, server.Close())
	require.Equal(t, []string{"call-7"}, orchestrator.endedSessions())
}

func TestGeneratedSessionID(t *testing.T) {
	_, srv := newTestServer(t, &fakeOrchestrator{})
	conn := dial(t, srv, "")
	out := exchange(t, conn, Frame{Type: TypeMessage, Text: "hi"})
	require.Equal(t, "support: hi", out.Text)
	require.True(t, strings.HasPrefix(out.SessionID, "call_"))
}

func TestMissingSquad(t *testing.T) {
	server, err := New(Options{Orchestrator: &fakeOrchestrator{}})
	require.NoError(t, err)
	srv := httptest.NewServer(server)
	defer srv.Close()
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, resp, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.Error(t, err)
	require.Equal(t, 400, resp.StatusCode)
}

func TestTurnsOfASessionAreSerialized(t *testing.T) {
	orchestrator := &fakeOrchestrator{delay: 20 * time.Millisecond}
	_, srv := newTestServer(t, orchestrator)

	var conns []*websocket.Conn
	for i := 0; i < 3; i++ {
		conns = append(conns, dial(t, srv, "session=shared"))
	}
	other := dial(t, srv, "session=other")

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i, conn := range append(conns, other) {
		wg.Add(1)
		go func(i int, conn *websocket.Conn) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			for j := 0; j < 4; j++ {
				if err := wsjson.Write(ctx, conn, Frame{Type: TypeMessage, Text: fmt.Sprintf("%d-%d", i, j)}); err != nil {
					errs <- err
					return
				}
				var out Frame
				if err := wsjson.Read(ctx, conn, &out); err != nil {
					errs <- err
					return
				}
				if out.Type != TypeReply {
					errs <- fmt.Errorf("unexpected frame %+v", out)
				}
			}
		}(i, conn)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	orchestrator.mutex.Lock()
	defer orchestrator.mutex.Unlock()
	require.Equal(t, 16, orchestrator.turns)
	require.Equal(t, 1, orchestrator.maxInFlight)
}

func TestCloseDisconnectsClients(t *testing.T) {
	server, srv := newTestServer(t, &fakeOrchestrator{})
	conn := dial(t, srv, "session=call-1")
	exchange(t, conn, Frame{Type: TypeMessage, Text: "hello"})

	require.NoError(t, server.Close())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _, err := conn.Read(ctx)
	require.Error(t, err)
	require.Eventually(t, func() bool { return server.ActiveSessions() == 0 }, 5*time.Second, 10*time.Millisecond)
}
