package condition

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/deepnoodle-ai/callflow"
	"github.com/deepnoodle-ai/callflow/llm"
	"github.com/deepnoodle-ai/callflow/llm/llmtest"
	"github.com/stretchr/testify/require"
)

func TestEvaluateLogical(t *testing.T) {
	ev := New(Options{})
	ctx := context.Background()

	conds := []*callflow.NodeCondition{
		{ID: "adult", Kind: callflow.ConditionLogical, Expression: "{{age}} >= 18"},
		{ID: "fallback", Kind: callflow.ConditionLogical, Expression: "true"},
	}
	require.Equal(t, 1, ev.First(ctx, conds, Input{Variables: map[string]any{"age": 16}}))
	require.Equal(t, 0, ev.First(ctx, conds, Input{Variables: map[string]any{"age": 30}}))
}

func TestEvaluateLogicalErrorIsNoMatch(t *testing.T) {
	ev := New(Options{})
	cond := &callflow.NodeCondition{Kind: callflow.ConditionLogical, Expression: "{{age}} >="}
	require.False(t, ev.Evaluate(context.Background(), cond, Input{}))

	_, err := ev.EvaluateLogical(context.Background(), "{{age}} >=", nil)
	require.Error(t, err)
}

func TestEvaluateAI(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		err   error
		want  bool
	}{
		{name: "exact true", reply: "true", want: true},
		{name: "case and whitespace", reply: "  TRUE\n", want: true},
		{name: "false", reply: "false", want: false},
		{name: "chatty reply", reply: "true, the user wants billing", want: false},
		{name: "yes is not true", reply: "yes", want: false},
		{name: "provider failure", err: errors.New("provider down"), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := llmtest.Func(func(call llmtest.Call) (string, error) {
				return tt.reply, tt.err
			})
			ev := New(Options{Provider: provider})
			cond := &callflow.NodeCondition{Kind: callflow.ConditionAI, Expression: "user wants billing help"}
			got := ev.Evaluate(context.Background(), cond, Input{Utterance: "my invoice is wrong"})
			require.Equal(t, tt.want, got)

			calls := provider.Calls()
			require.Len(t, calls, 1)
			require.True(t, calls[0].Request.Deterministic)
			require.Equal(t, 0.0, *calls[0].Request.Temperature(calls[0].Agent))
			prompt := calls[0].Request.Messages[0].Content
			require.True(t, strings.Contains(prompt, "user wants billing help"))
			require.True(t, strings.Contains(prompt, "my invoice is wrong"))
		})
	}
}

func TestEvaluateAIWithoutProvider(t *testing.T) {
	ev := New(Options{})
	cond := &callflow.NodeCondition{Kind: callflow.ConditionAI, Expression: "anything"}
	require.False(t, ev.Evaluate(context.Background(), cond, Input{Utterance: "hi"}))
}

func TestEvaluateCombined(t *testing.T) {
	tests := []struct {
		name      string
		reply     string
		vip       bool
		want      bool
		wantCalls int
	}{
		{name: "both hold", reply: "true", vip: true, want: true, wantCalls: 1},
		{name: "ai fails", reply: "false", vip: true, want: false, wantCalls: 1},
		{name: "logical fails", reply: "true", vip: false, want: false, wantCalls: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &llmtest.Provider{Default: tt.reply}
			ev := New(Options{Provider: provider})
			cond := &callflow.NodeCondition{
				Kind:        callflow.ConditionCombined,
				Description: "user is upset",
				Expression:  "{{vip}} == true",
			}
			got := ev.Evaluate(context.Background(), cond, Input{
				Utterance: "this is unacceptable",
				Variables: map[string]any{"vip": tt.vip},
			})
			require.Equal(t, tt.want, got)
			require.Equal(t, tt.wantCalls, provider.CallCount())
			if tt.wantCalls > 0 {
				require.Contains(t, provider.Calls()[0].Request.Messages[0].Content, "user is upset")
			}
		})
	}
}

func TestEvaluateUsesConfiguredModel(t *testing.T) {
	provider := llmtest.New("true")
	ev := New(Options{Provider: provider, Agent: llm.AgentConfig{Model: "small-model"}})
	cond := &callflow.NodeCondition{Kind: callflow.ConditionAI, Expression: "greeting"}
	require.True(t, ev.Evaluate(context.Background(), cond, Input{Utterance: "hello"}))
	require.Equal(t, "small-model", provider.Calls()[0].Agent.Model)
}
