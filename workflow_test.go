package callflow

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWorkflowAccessors(t *testing.T) {
	wf, err := New(Options{
		ID:   "support",
		Name: "Support line",
		Nodes: []*Node{
			{ID: "start", Kind: NodeKindStart},
			{ID: "end", Kind: NodeKindEnd},
		},
		Edges:     []*Edge{{From: "start", To: "end"}},
		Variables: []*Variable{{Name: "company", Default: "Acme"}},
	})
	require.NoError(t, err)
	require.Equal(t, "support", wf.ID())
	require.Equal(t, "Support line", wf.Name())
	require.Equal(t, "start", wf.Start().ID)
	require.Equal(t, []string{"end", "start"}, wf.NodeIDs())
	require.Len(t, wf.Outgoing("start"), 1)
	require.Empty(t, wf.Outgoing("end"))
	require.Equal(t, map[string]any{"company": "Acme"}, wf.Defaults())
	require.Equal(t, ErrorPolicyHalt, wf.Settings().ErrorHandling)

	node, ok := wf.GetNode("end")
	require.True(t, ok)
	require.Equal(t, NodeKindEnd, node.Kind)
	_, ok = wf.GetNode("missing")
	require.False(t, ok)
}

func TestInvalidWorkflows(t *testing.T) {
	start := &Node{ID: "start", Kind: NodeKindStart}
	tests := []struct {
		name    string
		opts    Options
		wantErr string
	}{
		{name: "missing id", opts: Options{Nodes: []*Node{start}}, wantErr: "workflow id required"},
		{name: "no nodes", opts: Options{ID: "wf"}, wantErr: "nodes required"},
		{
			name:    "duplicate node",
			opts:    Options{ID: "wf", Nodes: []*Node{start, {ID: "start", Kind: NodeKindEnd}}},
			wantErr: `duplicate node id "start"`,
		},
		{
			name:    "unknown kind",
			opts:    Options{ID: "wf", Nodes: []*Node{{ID: "x", Kind: "dance"}}},
			wantErr: `unknown kind "dance"`,
		},
		{
			name:    "two start nodes",
			opts:    Options{ID: "wf", Nodes: []*Node{start, {ID: "again", Kind: NodeKindStart}}},
			wantErr: "multiple start nodes",
		},
		{
			name:    "dangling edge",
			opts:    Options{ID: "wf", Nodes: []*Node{start}, Edges: []*Edge{{From: "start", To: "nowhere"}}},
			wantErr: `edge to node "nowhere" not found`,
		},
		{
			name:    "unknown policy",
			opts:    Options{ID: "wf", Nodes: []*Node{start}, Settings: Settings{ErrorHandling: "retry"}},
			wantErr: "unknown error handling policy",
		},
		{
			name:    "unknown fallback",
			opts:    Options{ID: "wf", Nodes: []*Node{start}, Settings: Settings{ErrorHandling: ErrorPolicyFallback, FallbackNode: "sorry"}},
			wantErr: `fallback node "sorry" not found`,
		},
		{
			name:    "unnamed variable",
			opts:    Options{ID: "wf", Nodes: []*Node{start}, Variables: []*Variable{{Default: 1}}},
			wantErr: "variable name required",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.opts)
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadString(t *testing.T) {
	wf, err := LoadString(`
id: billing
name: Billing line
variables:
  - name: company
    default: Acme
settings:
  error_handling: fallback
  fallback_node: sorry
nodes:
  - id: start
    kind: start
    start:
      greeting: "Welcome to {{company}}"
  - id: lookup
    kind: external_request
    external_request:
      url: "https://api.example.com/accounts/{{account_id}}"
      timeout: 2.5
      error_handling: ignore
      response_mapping:
        balance: account.balance
  - id: route
    kind: condition
    condition:
      conditions:
        - id: overdue
          kind: logical
          expression: "{{balance}} < 0"
        - id: upset
          kind: combined
          expression: "{{tier}} == 'gold'"
          prompt: the caller is upset
  - id: sorry
    kind: end
    end:
      message: Sorry, goodbye.
edges:
  - from: start
    to: lookup
  - from: lookup
    to: route
  - from: route
    to: sorry
    condition:
      type: conditional
      expression: condition_id == 'overdue'
`)
	require.NoError(t, err)
	require.Equal(t, "billing", wf.ID())
	require.Equal(t, ErrorPolicyFallback, wf.Settings().ErrorHandling)
	require.Equal(t, "Welcome to {{company}}", wf.Start().Start.Greeting)

	lookup, _ := wf.GetNode("lookup")
	require.Equal(t, 2.5, lookup.ExternalRequest.Timeout)
	require.Equal(t, RequestErrorIgnore, lookup.ExternalRequest.ErrorHandling)
	require.Equal(t, "account.balance", lookup.ExternalRequest.ResponseMapping["balance"])

	route, _ := wf.GetNode("route")
	require.Len(t, route.Condition.Conditions, 2)
	require.Equal(t, ConditionCombined, route.Condition.Conditions[1].Kind)
	require.Equal(t, "the caller is upset", route.Condition.Conditions[1].Prompt)

	edges := wf.Outgoing("route")
	require.Len(t, edges, 1)
	require.False(t, edges[0].IsDefault())
	require.True(t, wf.Outgoing("start")[0].IsDefault())
}

func TestLoadStringInvalid(t *testing.T) {
	_, err := LoadString("id: [unterminated")
	require.Error(t, err)
	_, err = LoadString("id: empty\nnodes: []\n")
	require.ErrorContains(t, err, "nodes required")
}
