package squad

import (
	"sync"
	"time"

	"github.com/deepnoodle-ai/callflow/conversation"
	"github.com/deepnoodle-ai/callflow/llm"
	"go.jetify.com/typeid"
)

// NewSessionID returns a new typeid for squad session identification
func NewSessionID() string {
	id, err := typeid.WithPrefix("sqs")
	if err != nil {
		panic(err)
	}
	return id.String()
}

// TransferRecord records one change of the active agent.
type TransferRecord struct {
	FromAgentID      string    `json:"from_agent_id"`
	ToAgentID        string    `json:"to_agent_id"`
	Timestamp        time.Time `json:"timestamp"`
	Reason           string    `json:"reason,omitempty"`
	ContextPreserved bool      `json:"context_preserved"`
}

// Session is an ongoing multi-agent conversation.
type Session struct {
	id            string
	squad         *Definition
	callSessionID string
	startTime     time.Time
	agents        map[string]*llm.AgentConfig
	rules         []*RoutingRule
	context       *conversation.Context

	mutex       sync.RWMutex
	activeAgent string
	transfers   []TransferRecord
}

// ID returns the squad session id
func (s *Session) ID() string {
	return s.id
}

// SquadID returns the id of the squad
func (s *Session) SquadID() string {
	return s.squad.ID
}

// CallSessionID returns the id of the underlying call session
func (s *Session) CallSessionID() string {
	return s.callSessionID
}

// Context returns the conversation context of the session.
func (s *Session) Context() *conversation.Context {
	return s.context
}

// ActiveAgentID returns the id of the agent currently answering.
func (s *Session) ActiveAgentID() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.activeAgent
}

// Transfers returns the transfer history, oldest first.
func (s *Session) Transfers() []TransferRecord {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return append([]TransferRecord(nil), s.transfers...)
}

func (s *Session) transfer(record TransferRecord) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.transfers = append(s.transfers, record)
	s.activeAgent = record.ToAgentID
}

// Status returns a read-only snapshot of the session.
func (s *Session) Status() *SessionStatus {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return &SessionStatus{
		SessionID:     s.id,
		SquadID:       s.squad.ID,
		CallSessionID: s.callSessionID,
		ActiveAgentID: s.activeAgent,
		TransferCount: len(s.transfers),
		MessageCount:  s.context.MessageCount(),
		StartTime:     s.startTime,
		Elapsed:       time.Since(s.startTime),
	}
}

// SessionStatus is a read-only view of a squad session.
type SessionStatus struct {
	SessionID     string        `json:"session_id"`
	SquadID       string        `json:"squad_id"`
	CallSessionID string        `json:"call_session_id"`
	ActiveAgentID string        `json:"active_agent_id"`
	TransferCount int           `json:"transfer_count"`
	MessageCount  int           `json:"message_count"`
	StartTime     time.Time     `json:"start_time"`
	Elapsed       time.Duration `json:"elapsed"`
}
