package nodes_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/deepnoodle-ai/callflow"
	"github.com/deepnoodle-ai/callflow/llm"
	"github.com/deepnoodle-ai/callflow/llm/llmtest"
	"github.com/deepnoodle-ai/callflow/nodes"
	"github.com/deepnoodle-ai/callflow/tools"
	"github.com/stretchr/testify/require"
)

func newEngine(t *testing.T, opts nodes.Options) *callflow.Engine {
	t.Helper()
	engine, err := callflow.NewEngine(callflow.EngineOptions{
		Executors: nodes.NewRegistry(opts),
	})
	require.NoError(t, err)
	return engine
}

func newWorkflow(t *testing.T, opts callflow.Options) *callflow.Workflow {
	t.Helper()
	if opts.ID == "" {
		opts.ID = "test"
	}
	wf, err := callflow.New(opts)
	require.NoError(t, err)
	return wf
}

func chain(ids ...string) []*callflow.Edge {
	var edges []*callflow.Edge
	for i := 1; i < len(ids); i++ {
		edges = append(edges, &callflow.Edge{From: ids[i-1], To: ids[i]})
	}
	return edges
}

func TestGreetingConversationEnd(t *testing.T) {
	provider := llmtest.New("Hi there, how can I help?")
	engine := newEngine(t, nodes.Options{Provider: provider})
	wf := newWorkflow(t, callflow.Options{
		Nodes: []*callflow.Node{
			{ID: "start", Kind: callflow.NodeKindStart, Start: &callflow.StartConfig{Greeting: "Hello {{name}}"}},
			{ID: "talk", Kind: callflow.NodeKindConversation, Conversation: &callflow.ConversationConfig{Prompt: "Greet {{name}}"}},
			{ID: "end", Kind: callflow.NodeKindEnd, End: &callflow.EndConfig{Message: "Bye {{name}}", Reason: "done"}},
		},
		Edges:     chain("start", "talk", "end"),
		Variables: []*callflow.Variable{{Name: "name", Default: "caller"}},
	})

	result, err := engine.ExecuteWorkflow(context.Background(), wf, &callflow.Session{ID: "s1"}, callflow.ExecuteOptions{
		Variables: map[string]any{"name": "Ada"},
	})
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, []string{"start", "talk", "end"}, result.Visited)
	require.Equal(t, callflow.ResultEnd, result.Result.Kind)
	require.Equal(t, "Bye Ada", result.Result.Response)
	require.Equal(t, "done", result.Result.Metadata["reason"])
	require.Equal(t, "Ada", result.Variables["name"])
	require.Equal(t, "Hi there, how can I help?", result.Variables[nodes.LastResponseVariable])

	calls := provider.Calls()
	require.Len(t, calls, 1)
	require.Contains(t, calls[0].Agent.SystemPrompt, "Greet Ada")
	require.Equal(t, "Ada", calls[0].Request.Variables["name"])
}

func TestStartSeedsDefaults(t *testing.T) {
	engine := newEngine(t, nodes.Options{})
	wf := newWorkflow(t, callflow.Options{
		Nodes: []*callflow.Node{
			{ID: "start", Kind: callflow.NodeKindStart, Start: &callflow.StartConfig{Greeting: "Welcome to {{company}}"}},
		},
		Variables: []*callflow.Variable{
			{Name: "company", Default: "Acme"},
			{Name: "tier", Default: "basic"},
		},
	})
	result, err := engine.ExecuteWorkflow(context.Background(), wf, nil, callflow.ExecuteOptions{
		Variables: map[string]any{"tier": "gold"},
	})
	require.NoError(t, err)
	require.Equal(t, "Welcome to Acme", result.Result.Response)
	require.Equal(t, "Acme", result.Variables["company"])
	require.Equal(t, "gold", result.Variables["tier"])
}

func TestBareStartAndEnd(t *testing.T) {
	wf, err := callflow.LoadString(`
id: bare
nodes:
  - id: start
    kind: start
  - id: end
    kind: end
edges:
  - from: start
    to: end
`)
	require.NoError(t, err)

	engine := newEngine(t, nodes.Options{})
	result, err := engine.ExecuteWorkflow(context.Background(), wf, nil, callflow.ExecuteOptions{})
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, []string{"start", "end"}, result.Visited)
	require.Equal(t, callflow.ResultEnd, result.Result.Kind)
	require.Equal(t, nodes.DefaultFarewell, result.Result.Response)
	require.Nil(t, result.Result.Metadata)
}

func TestMissingConfigurationBlock(t *testing.T) {
	kinds := []callflow.NodeKind{
		callflow.NodeKindConversation,
		callflow.NodeKindExternalRequest,
		callflow.NodeKindTool,
		callflow.NodeKindTransfer,
		callflow.NodeKindCondition,
	}
	engine := newEngine(t, nodes.Options{
		Provider: llmtest.New(),
		Tools:    tools.NewMemoryRegistry(),
	})
	for _, kind := range kinds {
		t.Run(string(kind), func(t *testing.T) {
			wf := newWorkflow(t, callflow.Options{
				Nodes: []*callflow.Node{{ID: "n", Kind: kind}},
			})
			result, err := engine.ExecuteWorkflow(context.Background(), wf, nil, callflow.ExecuteOptions{StartNodeID: "n"})
			require.Error(t, err)
			require.ErrorIs(t, err, callflow.ErrInvalidConfiguration)
			require.False(t, result.Success)
			require.Equal(t, "n", result.Result.Error.NodeID)
		})
	}
}

func TestConversationWithoutProvider(t *testing.T) {
	engine := newEngine(t, nodes.Options{})
	wf := newWorkflow(t, callflow.Options{
		Nodes: []*callflow.Node{
			{ID: "talk", Kind: callflow.NodeKindConversation, Conversation: &callflow.ConversationConfig{Prompt: "hi"}},
		},
	})
	_, err := engine.ExecuteWorkflow(context.Background(), wf, nil, callflow.ExecuteOptions{StartNodeID: "talk"})
	require.ErrorIs(t, err, callflow.ErrInvalidConfiguration)
}

func TestConversationProviderFailure(t *testing.T) {
	provider := llmtest.Func(func(call llmtest.Call) (string, error) {
		return "", errors.New("model unavailable")
	})
	engine := newEngine(t, nodes.Options{Provider: provider})
	wf := newWorkflow(t, callflow.Options{
		Nodes: []*callflow.Node{
			{ID: "talk", Kind: callflow.NodeKindConversation, Conversation: &callflow.ConversationConfig{Prompt: "hi"}},
		},
	})
	result, err := engine.ExecuteWorkflow(context.Background(), wf, nil, callflow.ExecuteOptions{StartNodeID: "talk"})
	require.ErrorIs(t, err, callflow.ErrProviderFailure)
	require.Contains(t, result.Result.Error.Cause, "model unavailable")
}

func TestConversationExtraction(t *testing.T) {
	provider := llmtest.Func(func(call llmtest.Call) (string, error) {
		if call.Request.Deterministic {
			return "Here you go: {\"city\": \"Lyon\", \"zip\": null}", nil
		}
		return "Your order number is ORD-4821. Anything else?", nil
	})
	engine := newEngine(t, nodes.Options{Provider: provider})
	wf := newWorkflow(t, callflow.Options{
		Nodes: []*callflow.Node{
			{ID: "talk", Kind: callflow.NodeKindConversation, Conversation: &callflow.ConversationConfig{
				Prompt: "Tell the order number",
				Extract: []*callflow.ExtractRule{
					{Variable: "order_id", Pattern: `ORD-(\d+)`, Group: 1},
					{Variable: "order_ref", Pattern: `ORD-\d+`},
					{Variable: "missing", Pattern: `INV-\d+`},
					{Variable: "broken", Pattern: `(`},
				},
				ExtractAI: []*callflow.ExtractVariable{
					{Name: "city", Description: "the caller's city"},
					{Name: "zip"},
				},
			}},
		},
	})
	session := &callflow.Session{Messages: []llm.Message{{Role: llm.RoleUser, Content: "I'm in Lyon"}}}
	result, err := engine.ExecuteWorkflow(context.Background(), wf, session, callflow.ExecuteOptions{StartNodeID: "talk"})
	require.NoError(t, err)
	require.Equal(t, 4821, result.Variables["order_id"])
	require.Equal(t, "ORD-4821", result.Variables["order_ref"])
	require.Equal(t, "Lyon", result.Variables["city"])
	require.NotContains(t, result.Variables, "missing")
	require.NotContains(t, result.Variables, "broken")
	require.NotContains(t, result.Variables, "zip")
	require.Equal(t, 2, provider.CallCount())
}

func TestExtractedNumbersDriveConditions(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  string
		age   any
	}{
		{name: "adult", reply: "Thanks, I have you down as 21 years old.", want: "adult", age: 21},
		{name: "minor", reply: "Thanks, I have you down as 16 years old.", want: "minor", age: 16},
		{name: "fractional", reply: "Thanks, I have you down as 17.5 years old.", want: "minor", age: 17.5},
		{name: "zero padded stays text", reply: "Thanks, I have you down as 021 years old.", want: "unknown", age: "021"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := newEngine(t, nodes.Options{Provider: llmtest.New(tt.reply)})
			wf := newWorkflow(t, callflow.Options{
				Nodes: []*callflow.Node{
					{ID: "ask", Kind: callflow.NodeKindConversation, Conversation: &callflow.ConversationConfig{
						Prompt:  "Ask for the caller's age",
						Extract: []*callflow.ExtractRule{{Variable: "age", Pattern: `as ([\d.]+) years`, Group: 1}},
					}},
					{ID: "age_check", Kind: callflow.NodeKindCondition, Condition: &callflow.ConditionConfig{
						Conditions: []*callflow.NodeCondition{
							{ID: "adult", Kind: callflow.ConditionLogical, Expression: "{{age}} >= 18"},
							{ID: "minor", Kind: callflow.ConditionLogical, Expression: "{{age}} < 18"},
						},
					}},
					{ID: "adult", Kind: callflow.NodeKindEnd, End: &callflow.EndConfig{Message: "adult"}},
					{ID: "minor", Kind: callflow.NodeKindEnd, End: &callflow.EndConfig{Message: "minor"}},
					{ID: "unknown", Kind: callflow.NodeKindEnd, End: &callflow.EndConfig{Message: "unknown"}},
				},
				Edges: []*callflow.Edge{
					{From: "ask", To: "age_check"},
					{From: "age_check", To: "adult", Condition: &callflow.EdgeCondition{Type: callflow.EdgeConditional, Expression: "condition_id == 'adult'"}},
					{From: "age_check", To: "minor", Condition: &callflow.EdgeCondition{Type: callflow.EdgeConditional, Expression: "condition_id == 'minor'"}},
					{From: "age_check", To: "unknown"},
				},
			})
			result, err := engine.ExecuteWorkflow(context.Background(), wf, nil, callflow.ExecuteOptions{})
			require.NoError(t, err)
			require.True(t, result.Success)
			require.Equal(t, tt.age, result.Variables["age"])
			require.Equal(t, tt.want, result.Result.Response)
		})
	}
}

func TestExternalRequestMapsResponse(t *testing.T) {
	var gotAuth, gotBody, gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		data, _ := io.ReadAll(r.Body)
		gotBody = string(data)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"account": map[string]any{"balance": 42.5, "status": "active"},
		})
	}))
	defer server.Close()

	engine := newEngine(t, nodes.Options{})
	wf := newWorkflow(t, callflow.Options{
		Nodes: []*callflow.Node{
			{ID: "lookup", Kind: callflow.NodeKindExternalRequest, ExternalRequest: &callflow.ExternalRequestConfig{
				Method:  "post",
				URL:     server.URL + "/accounts/{{account_id}}",
				Headers: map[string]string{"Authorization": "Bearer {{token}}"},
				Body:    `{"id": "{{account_id}}"}`,
				ResponseMapping: map[string]string{
					"balance": "account.balance",
					"status":  "account.status",
					"absent":  "account.nothing",
				},
			}},
		},
	})
	result, err := engine.ExecuteWorkflow(context.Background(), wf, nil, callflow.ExecuteOptions{
		StartNodeID: "lookup",
		Variables:   map[string]any{"account_id": "a-17", "token": "secret"},
	})
	require.NoError(t, err)
	require.Equal(t, "/accounts/a-17", gotPath)
	require.Equal(t, "Bearer secret", gotAuth)
	require.JSONEq(t, `{"id": "a-17"}`, gotBody)
	require.Equal(t, 42.5, result.Variables["balance"])
	require.Equal(t, "active", result.Variables["status"])
	require.NotContains(t, result.Variables, "absent")
	require.Equal(t, http.StatusOK, result.Result.Metadata["status_code"])
}

func TestExternalRequestFailure(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer failing.Close()

	unreachable := httptest.NewServer(http.NotFoundHandler())
	unreachableURL := unreachable.URL
	unreachable.Close()

	tests := []struct {
		name     string
		url      string
		handling callflow.RequestErrorHandling
		degraded string
		wantErr  bool
		wantText string
	}{
		{name: "non-2xx fails", url: failing.URL, handling: callflow.RequestErrorFail, wantErr: true},
		{name: "unreachable fails by default", url: unreachableURL, wantErr: true},
		{name: "unreachable ignored", url: unreachableURL, handling: callflow.RequestErrorIgnore,
			wantText: nodes.DefaultDegradedMessage},
		{name: "non-2xx ignored with message", url: failing.URL, handling: callflow.RequestErrorIgnore,
			degraded: "Our records are offline.", wantText: "Our records are offline."},
	}
	engine := newEngine(t, nodes.Options{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wf := newWorkflow(t, callflow.Options{
				Nodes: []*callflow.Node{
					{ID: "lookup", Kind: callflow.NodeKindExternalRequest, ExternalRequest: &callflow.ExternalRequestConfig{
						URL:             tt.url,
						ErrorHandling:   tt.handling,
						DegradedMessage: tt.degraded,
						Timeout:         2,
					}},
					{ID: "end", Kind: callflow.NodeKindEnd, End: &callflow.EndConfig{}},
				},
				Edges: chain("lookup", "end"),
			})
			rec := &recorder{}
			result, err := engine.ExecuteWorkflow(context.Background(), wf, nil, callflow.ExecuteOptions{
				StartNodeID: "lookup",
				Callbacks:   rec,
			})
			if tt.wantErr {
				require.Error(t, err)
				var wErr *callflow.WorkflowError
				require.ErrorAs(t, err, &wErr)
				require.Equal(t, callflow.ErrorTypeExternalRequestFailed, wErr.Type)
				require.Equal(t, []string{"lookup"}, result.Visited)
				return
			}
			require.NoError(t, err)
			require.Equal(t, []string{"lookup", "end"}, result.Visited)
			require.Equal(t, nodes.DefaultFarewell, result.Result.Response)
			lookup := rec.result("lookup")
			require.Equal(t, callflow.ResultContinue, lookup.Kind)
			require.Equal(t, tt.wantText, lookup.Response)
			require.Equal(t, true, lookup.Metadata["degraded"])
		})
	}
}

type recorder struct {
	callflow.BaseExecutionCallbacks
	mutex   sync.Mutex
	results map[string]*callflow.NodeResult
}

func (r *recorder) AfterNodeExecution(ctx context.Context, event *callflow.NodeExecutionEvent) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if r.results == nil {
		r.results = map[string]*callflow.NodeResult{}
	}
	r.results[event.NodeID] = event.Result
}

func (r *recorder) result(nodeID string) *callflow.NodeResult {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.results[nodeID]
}

func TestToolParameters(t *testing.T) {
	type lookupParams struct {
		AccountID string `mapstructure:"account_id"`
		Limit     int    `mapstructure:"limit"`
	}
	type lookupResult struct {
		Orders []string `mapstructure:"orders"`
	}
	var gotParams map[string]any
	registry := tools.NewMemoryRegistry(
		tools.NewFunc("echo", func(ctx context.Context, params map[string]any, vars map[string]any) (*tools.Result, error) {
			gotParams = params
			return &tools.Result{Variables: map[string]any{"echoed": true}, Metadata: map[string]any{"tool": "echo"}}, nil
		}),
		tools.Typed("orders", func(ctx context.Context, p lookupParams) (lookupResult, error) {
			require.Equal(t, "a-1", p.AccountID)
			require.Equal(t, 3, p.Limit)
			return lookupResult{Orders: []string{"o1", "o2"}}, nil
		}),
	)
	engine := newEngine(t, nodes.Options{Tools: registry})
	wf := newWorkflow(t, callflow.Options{
		Nodes: []*callflow.Node{
			{ID: "echo", Kind: callflow.NodeKindTool, Tool: &callflow.ToolConfig{
				ToolID: "echo",
				Parameters: map[string]any{
					"count":   "{{count}}",
					"profile": "{{ profile }}",
					"label":   "n={{count}}",
					"nested":  map[string]any{"items": []any{"{{count}}", 7}},
				},
			}},
			{ID: "orders", Kind: callflow.NodeKindTool, Tool: &callflow.ToolConfig{
				ToolID:     "orders",
				Parameters: map[string]any{"account_id": "{{account}}", "limit": "3"},
				Store:      "lookup",
			}},
		},
		Edges: chain("echo", "orders"),
	})
	profile := map[string]any{"tier": "gold"}
	result, err := engine.ExecuteWorkflow(context.Background(), wf, nil, callflow.ExecuteOptions{
		StartNodeID: "echo",
		Variables:   map[string]any{"count": 5, "profile": profile, "account": "a-1"},
	})
	require.NoError(t, err)
	require.Equal(t, 5, gotParams["count"])
	require.Equal(t, profile, gotParams["profile"])
	require.Equal(t, "n=5", gotParams["label"])
	require.Equal(t, map[string]any{"items": []any{5, 7}}, gotParams["nested"])
	require.Equal(t, true, result.Variables["echoed"])
	require.Equal(t, map[string]any{"orders": []string{"o1", "o2"}}, result.Variables["lookup"])
}

func TestToolFailures(t *testing.T) {
	registry := tools.NewMemoryRegistry(
		tools.NewFunc("broken", func(ctx context.Context, params map[string]any, vars map[string]any) (*tools.Result, error) {
			return nil, errors.New("backend down")
		}),
	)
	engine := newEngine(t, nodes.Options{Tools: registry})
	tests := []struct {
		toolID string
		want   error
	}{
		{toolID: "broken", want: callflow.ErrProviderFailure},
		{toolID: "unknown", want: callflow.ErrDefinitionNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.toolID, func(t *testing.T) {
			wf := newWorkflow(t, callflow.Options{
				Nodes: []*callflow.Node{
					{ID: "call", Kind: callflow.NodeKindTool, Tool: &callflow.ToolConfig{ToolID: tt.toolID}},
				},
			})
			_, err := engine.ExecuteWorkflow(context.Background(), wf, nil, callflow.ExecuteOptions{StartNodeID: "call"})
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestTransfer(t *testing.T) {
	engine := newEngine(t, nodes.Options{})
	wf := newWorkflow(t, callflow.Options{
		Nodes: []*callflow.Node{
			{ID: "handoff", Kind: callflow.NodeKindTransfer, Transfer: &callflow.TransferConfig{
				Destination: "{{queue}}",
				Timeout:     30,
				Fallback:    "voicemail",
			}},
			{ID: "never", Kind: callflow.NodeKindEnd, End: &callflow.EndConfig{}},
		},
		Edges: chain("handoff", "never"),
	})
	result, err := engine.ExecuteWorkflow(context.Background(), wf, nil, callflow.ExecuteOptions{
		StartNodeID: "handoff",
		Variables:   map[string]any{"queue": "+15550100"},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"handoff"}, result.Visited)
	require.Equal(t, callflow.ResultTransfer, result.Result.Kind)
	require.Equal(t, nodes.DefaultTransferMessage, result.Result.Response)
	require.Equal(t, &callflow.TransferInfo{Destination: "+15550100", Timeout: 30, Fallback: "voicemail"}, result.Result.Transfer)
}

func TestConditionRouting(t *testing.T) {
	provider := llmtest.Func(func(call llmtest.Call) (string, error) {
		if strings.Contains(call.Request.Messages[0].Content, `"let me speak to a human"`) {
			return "TRUE", nil
		}
		return "false", nil
	})
	engine := newEngine(t, nodes.Options{Provider: provider})
	wf := newWorkflow(t, callflow.Options{
		Nodes: []*callflow.Node{
			{ID: "route", Kind: callflow.NodeKindCondition, Condition: &callflow.ConditionConfig{
				Conditions: []*callflow.NodeCondition{
					{ID: "vip", Kind: callflow.ConditionLogical, Expression: "{{tier}} == 'gold'"},
					{ID: "human", Kind: callflow.ConditionAI, Expression: "the caller wants to speak to a human"},
				},
			}},
			{ID: "vip", Kind: callflow.NodeKindEnd, End: &callflow.EndConfig{Message: "vip"}},
			{ID: "human", Kind: callflow.NodeKindEnd, End: &callflow.EndConfig{Message: "human"}},
			{ID: "other", Kind: callflow.NodeKindEnd, End: &callflow.EndConfig{Message: "other"}},
		},
		Edges: []*callflow.Edge{
			{From: "route", To: "vip", Condition: &callflow.EdgeCondition{Type: callflow.EdgeConditional, Expression: "condition_id == 'vip'"}},
			{From: "route", To: "human", Condition: &callflow.EdgeCondition{Type: callflow.EdgeConditional, Expression: "condition_id == 'human'"}},
			{From: "route", To: "other"},
		},
	})
	tests := []struct {
		name      string
		tier      string
		utterance string
		want      string
	}{
		{name: "logical match", tier: "gold", utterance: "let me speak to a human", want: "vip"},
		{name: "ai match", tier: "basic", utterance: "let me speak to a human", want: "human"},
		{name: "no match", tier: "basic", utterance: "what are your hours", want: "other"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session := &callflow.Session{Messages: []llm.Message{{Role: llm.RoleUser, Content: tt.utterance}}}
			result, err := engine.ExecuteWorkflow(context.Background(), wf, session, callflow.ExecuteOptions{
				StartNodeID: "route",
				Variables:   map[string]any{"tier": tt.tier},
			})
			require.NoError(t, err)
			require.Equal(t, tt.want, result.Result.Response)
		})
	}
}

func TestConditionUtteranceVariable(t *testing.T) {
	provider := llmtest.Func(func(call llmtest.Call) (string, error) {
		require.Contains(t, call.Request.Messages[0].Content, "cancel my plan")
		return "true", nil
	})
	engine := newEngine(t, nodes.Options{Provider: provider})
	wf := newWorkflow(t, callflow.Options{
		Nodes: []*callflow.Node{
			{ID: "route", Kind: callflow.NodeKindCondition, Condition: &callflow.ConditionConfig{
				Conditions: []*callflow.NodeCondition{
					{ID: "cancel", Kind: callflow.ConditionAI, Expression: "the caller wants to cancel"},
				},
			}},
		},
	})
	result, err := engine.ExecuteWorkflow(context.Background(), wf, nil, callflow.ExecuteOptions{
		StartNodeID: "route",
		Variables:   map[string]any{"utterance": "please cancel my plan"},
	})
	require.NoError(t, err)
	require.Equal(t, callflow.ResultCondition, result.Result.Kind)
	require.Equal(t, "cancel", result.Result.Condition.ID)
	require.Equal(t, true, result.Variables["condition_matched"])
}

func TestConditionAlwaysTrueFallback(t *testing.T) {
	engine := newEngine(t, nodes.Options{})
	wf := newWorkflow(t, callflow.Options{
		Nodes: []*callflow.Node{
			{ID: "age_check", Kind: callflow.NodeKindCondition, Condition: &callflow.ConditionConfig{
				Conditions: []*callflow.NodeCondition{
					{ID: "adult", Kind: callflow.ConditionLogical, Expression: "{{age}} >= 18"},
					{ID: "otherwise", Kind: callflow.ConditionLogical, Expression: "true"},
				},
			}},
		},
	})
	result, err := engine.ExecuteWorkflow(context.Background(), wf, nil, callflow.ExecuteOptions{
		StartNodeID: "age_check",
		Variables:   map[string]any{"age": 16},
	})
	require.NoError(t, err)
	require.Equal(t, &callflow.ConditionMatch{Matched: true, Index: 1, ID: "otherwise"}, result.Result.Condition)
}
