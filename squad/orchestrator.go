// Package squad routes the turns of a conversation between the agents of a
// squad, transferring context when the active agent changes.
package squad

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/deepnoodle-ai/callflow"
	"github.com/deepnoodle-ai/callflow/condition"
	"github.com/deepnoodle-ai/callflow/conversation"
	"github.com/deepnoodle-ai/callflow/llm"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Defaults of the orchestrator windows.
const (
	DefaultReplyWindow    = 10
	DefaultSummaryWindow  = 20
	DefaultTransferWindow = 10
)

// ErrSessionNotFound is returned for unknown session ids.
var ErrSessionNotFound = errors.New("squad session not found")

// Options configures an Orchestrator.
type Options struct {
	Definitions DefinitionStore
	Provider    llm.Provider

	// Conditions evaluates routing rules. Built from Provider when nil.
	Conditions *condition.Evaluator

	// Contexts holds conversation contexts. A private store is used when nil.
	Contexts *conversation.Store

	Callbacks Callbacks
	Logger    *slog.Logger

	// ReplyWindow is the number of recent messages replies are generated from.
	ReplyWindow int

	// SummaryWindow is the number of recent messages summaries are built from.
	SummaryWindow int

	// TransferWindow is the number of recent messages handed to a new agent.
	TransferWindow int

	// StrictRouting rejects sessions whose routing rules target agents that
	// are not members of the squad. By default such rules never match.
	StrictRouting bool
}

// Orchestrator processes the turns of squad sessions. Turns of one session
// must not be processed concurrently; see SessionLocks.
type Orchestrator struct {
	definitions    DefinitionStore
	provider       llm.Provider
	conditions     *condition.Evaluator
	contexts       *conversation.Store
	callbacks      Callbacks
	logger         *slog.Logger
	replyWindow    int
	summaryWindow  int
	transferWindow int
	strictRouting  bool

	sessions sync.Map // call session id -> *Session
	creating singleflight.Group
}

// New returns a new Orchestrator.
func New(opts Options) (*Orchestrator, error) {
	if opts.Definitions == nil {
		return nil, fmt.Errorf("definition store is required")
	}
	if opts.Provider == nil {
		return nil, fmt.Errorf("provider is required")
	}
	if opts.Logger == nil {
		opts.Logger = callflow.NewDiscardLogger()
	}
	if opts.Conditions == nil {
		opts.Conditions = condition.New(condition.Options{Provider: opts.Provider, Logger: opts.Logger})
	}
	if opts.Contexts == nil {
		opts.Contexts = conversation.NewStore(conversation.DefaultHistoryLimit)
	}
	if opts.Callbacks == nil {
		opts.Callbacks = &BaseCallbacks{}
	}
	if opts.ReplyWindow <= 0 {
		opts.ReplyWindow = DefaultReplyWindow
	}
	if opts.SummaryWindow <= 0 {
		opts.SummaryWindow = DefaultSummaryWindow
	}
	if opts.TransferWindow <= 0 {
		opts.TransferWindow = DefaultTransferWindow
	}
	return &Orchestrator{
		definitions:    opts.Definitions,
		provider:       opts.Provider,
		conditions:     opts.Conditions,
		contexts:       opts.Contexts,
		callbacks:      opts.Callbacks,
		logger:         opts.Logger,
		replyWindow:    opts.ReplyWindow,
		summaryWindow:  opts.SummaryWindow,
		transferWindow: opts.TransferWindow,
		strictRouting:  opts.StrictRouting,
	}, nil
}

// ProcessMessage handles one user utterance of a call session and returns
// the reply of the agent selected to answer it.
func (o *Orchestrator) ProcessMessage(ctx context.Context, squadID, utterance, callSessionID string) (string, error) {
	sess, err := o.session(ctx, squadID, callSessionID)
	if err != nil {
		return "", err
	}
	logger := o.logger.With("squad_session_id", sess.id, "squad_id", sess.squad.ID)
	convo := sess.context

	convo.AddMessage(llm.Message{Role: llm.RoleUser, Content: utterance})
	for name, value := range conversation.ExtractEntities(utterance) {
		convo.SetVariable(name, value)
		convo.Share(name, value)
	}

	active := sess.ActiveAgentID()
	target, rule := o.route(ctx, logger, sess, utterance)
	if target != active {
		o.transfer(ctx, logger, sess, active, target, rule)
	}

	agent := *sess.agents[sess.ActiveAgentID()]
	state, _ := convo.AgentState(agent.ID)
	agent.SystemPrompt = Instructions(agent.SystemPrompt, state.Summary, convo.Shared())

	reply, err := o.provider.Generate(ctx, agent, llm.Request{
		Messages:  convo.LastMessages(o.replyWindow),
		Variables: convo.Variables(),
	})
	if err != nil {
		logger.Error("reply generation failed", "agent_id", agent.ID, "error", err)
		wErr := callflow.WrapError(callflow.ErrorTypeProviderFailure, err)
		wErr.Details = map[string]string{"agent_id": agent.ID, "squad_session_id": sess.id}
		return "", wErr
	}
	reply = strings.TrimSpace(reply)
	convo.AddMessage(llm.Message{Role: llm.RoleAssistant, Content: reply, Name: agent.ID})
	logger.Debug("turn processed", "agent_id", agent.ID, "messages", convo.MessageCount())
	return reply, nil
}

// session returns the session of a call, creating it on first use.
// Concurrent first turns of one call share a single creation, which runs
// detached from the caller's cancellation so one caller giving up does not
// fail the others.
func (o *Orchestrator) session(ctx context.Context, squadID, callSessionID string) (*Session, error) {
	if value, ok := o.sessions.Load(callSessionID); ok {
		return checkSquad(value.(*Session), squadID)
	}
	createCtx := context.WithoutCancel(ctx)
	ch := o.creating.DoChan(callSessionID, func() (any, error) {
		if value, ok := o.sessions.Load(callSessionID); ok {
			return value, nil
		}
		sess, err := o.newSession(createCtx, squadID, callSessionID)
		if err != nil {
			return nil, err
		}
		o.sessions.Store(callSessionID, sess)
		o.logger.Info("squad session started",
			"squad_session_id", sess.id,
			"squad_id", squadID,
			"call_session_id", callSessionID,
			"agent_id", sess.activeAgent)
		o.callbacks.OnSessionStarted(createCtx, &SessionEvent{
			SessionID:     sess.id,
			SquadID:       squadID,
			CallSessionID: callSessionID,
			ActiveAgentID: sess.activeAgent,
			StartTime:     sess.startTime,
		})
		return sess, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return checkSquad(res.Val.(*Session), squadID)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func checkSquad(sess *Session, squadID string) (*Session, error) {
	if sess.squad.ID != squadID {
		return nil, callflow.NewWorkflowError(callflow.ErrorTypeInvalidConfiguration,
			fmt.Sprintf("session %q belongs to squad %q", sess.callSessionID, sess.squad.ID))
	}
	return sess, nil
}

func (o *Orchestrator) newSession(ctx context.Context, squadID, callSessionID string) (*Session, error) {
	def, err := o.definitions.LoadSquad(ctx, squadID)
	if err != nil {
		return nil, err
	}
	if err := def.Validate(); err != nil {
		return nil, callflow.NewWorkflowError(callflow.ErrorTypeInvalidConfiguration, err.Error())
	}
	members := def.OrderedMembers()

	agents := make([]*llm.AgentConfig, len(members))
	g, gctx := errgroup.WithContext(ctx)
	for i, member := range members {
		g.Go(func() error {
			agent, err := o.definitions.LoadAgent(gctx, member.AgentID)
			if err != nil {
				return err
			}
			copied := *agent
			if copied.ID == "" {
				copied.ID = member.AgentID
			}
			agents[i] = &copied
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	byID := make(map[string]*llm.AgentConfig, len(agents))
	for i, agent := range agents {
		byID[members[i].AgentID] = agent
	}

	rules := def.OrderedRules()
	if o.strictRouting {
		for _, rule := range rules {
			if _, ok := byID[rule.TargetAgentID]; !ok {
				return nil, callflow.NewWorkflowError(callflow.ErrorTypeInvalidConfiguration,
					fmt.Sprintf("squad %q routes to unknown agent %q", def.ID, rule.TargetAgentID))
			}
		}
	}
	return &Session{
		id:            NewSessionID(),
		squad:         def,
		callSessionID: callSessionID,
		startTime:     time.Now(),
		agents:        byID,
		rules:         rules,
		context:       o.contexts.GetOrCreate(callSessionID),
		activeAgent:   members[0].AgentID,
	}, nil
}

// route returns the agent that should answer the utterance and the rule
// that selected it. Without a matching rule the active agent stays.
func (o *Orchestrator) route(ctx context.Context, logger *slog.Logger, sess *Session, utterance string) (string, *RoutingRule) {
	in := condition.Input{Utterance: utterance, Variables: sess.context.Variables()}
	for _, rule := range sess.rules {
		if _, ok := sess.agents[rule.TargetAgentID]; !ok {
			logger.Warn("routing rule targets unknown agent", "agent_id", rule.TargetAgentID)
			continue
		}
		if o.conditions.Evaluate(ctx, rule.Condition, in) {
			return rule.TargetAgentID, rule
		}
	}
	return sess.ActiveAgentID(), nil
}

func (o *Orchestrator) transfer(ctx context.Context, logger *slog.Logger, sess *Session, from, to string, rule *RoutingRule) {
	record := TransferRecord{
		FromAgentID:      from,
		ToAgentID:        to,
		Timestamp:        time.Now(),
		Reason:           transferReason(rule),
		ContextPreserved: sess.squad.Transfer.PreserveContext,
	}
	if record.ContextPreserved {
		convo := sess.context
		summary := o.summarize(ctx, logger, sess.agents[to].Model, convo.LastMessages(o.summaryWindow))
		convo.SetAgentState(to, conversation.AgentState{
			Summary:       summary,
			Messages:      convo.LastMessages(o.transferWindow),
			TransferredAt: record.Timestamp,
		})
	}
	sess.transfer(record)
	logger.Info("assistant transferred", "from_agent_id", from, "to_agent_id", to, "reason", record.Reason)
	o.callbacks.OnAssistantTransferred(ctx, &TransferEvent{
		SessionID:     sess.id,
		SquadID:       sess.squad.ID,
		CallSessionID: sess.callSessionID,
		Transfer:      record,
	})
}

func transferReason(rule *RoutingRule) string {
	if rule == nil {
		return ""
	}
	if rule.Condition.Description != "" {
		return rule.Condition.Description
	}
	if rule.Condition.ID != "" {
		return rule.Condition.ID
	}
	return "routing rule matched"
}

// EndSession summarizes and discards a session. Summary failures yield
// SummaryUnavailable instead of an error.
func (o *Orchestrator) EndSession(ctx context.Context, callSessionID string) (string, error) {
	value, ok := o.sessions.LoadAndDelete(callSessionID)
	if !ok {
		return "", ErrSessionNotFound
	}
	sess := value.(*Session)
	logger := o.logger.With("squad_session_id", sess.id, "squad_id", sess.squad.ID)

	agent := sess.agents[sess.ActiveAgentID()]
	summary := o.summarize(ctx, logger, agent.Model, sess.context.LastMessages(o.summaryWindow))
	status := sess.Status()
	o.contexts.Delete(callSessionID)

	logger.Info("squad session ended", "transfers", status.TransferCount, "elapsed", status.Elapsed)
	o.callbacks.OnSessionEnded(ctx, &SessionEvent{
		SessionID:     sess.id,
		SquadID:       sess.squad.ID,
		CallSessionID: callSessionID,
		ActiveAgentID: status.ActiveAgentID,
		StartTime:     status.StartTime,
		Duration:      status.Elapsed,
		Transfers:     status.TransferCount,
		Summary:       summary,
	})
	return summary, nil
}

// SessionStatus returns a snapshot of the session of a call.
func (o *Orchestrator) SessionStatus(callSessionID string) (*SessionStatus, bool) {
	value, ok := o.sessions.Load(callSessionID)
	if !ok {
		return nil, false
	}
	return value.(*Session).Status(), true
}

// Session returns the live session of a call.
func (o *Orchestrator) Session(callSessionID string) (*Session, bool) {
	value, ok := o.sessions.Load(callSessionID)
	if !ok {
		return nil, false
	}
	return value.(*Session), true
}

// Sessions returns snapshots of all live sessions, oldest first.
func (o *Orchestrator) Sessions() []*SessionStatus {
	var statuses []*SessionStatus
	o.sessions.Range(func(_, value any) bool {
		statuses = append(statuses, value.(*Session).Status())
		return true
	})
	sortStatuses(statuses)
	return statuses
}
