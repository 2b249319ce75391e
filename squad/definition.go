package squad

import (
	"context"
	"fmt"
	"sort"

	"github.com/deepnoodle-ai/callflow"
	"github.com/deepnoodle-ai/callflow/llm"
)

// Member is an agent participating in a squad. Members with a lower
// Priority value are preferred; the first member is the initial agent of
// every session.
type Member struct {
	AgentID  string `json:"agent_id" yaml:"agent_id"`
	Priority int    `json:"priority,omitempty" yaml:"priority,omitempty"`
}

// TransferSettings controls what is carried over when the active agent
// changes.
type TransferSettings struct {
	// PreserveContext summarizes the conversation for the new agent and
	// hands it the most recent messages.
	PreserveContext bool `json:"preserve_context,omitempty" yaml:"preserve_context,omitempty"`
}

// RoutingRule selects TargetAgentID when Condition holds. Rules are
// evaluated by ascending Priority, in declaration order among equals.
type RoutingRule struct {
	TargetAgentID string                  `json:"target_agent_id" yaml:"target_agent_id"`
	Condition     *callflow.NodeCondition `json:"condition" yaml:"condition"`
	Priority      int                     `json:"priority,omitempty" yaml:"priority,omitempty"`
}

// Definition describes a squad.
type Definition struct {
	ID          string           `json:"id" yaml:"id"`
	Name        string           `json:"name,omitempty" yaml:"name,omitempty"`
	Description string           `json:"description,omitempty" yaml:"description,omitempty"`
	Members     []*Member        `json:"members" yaml:"members"`
	Rules       []*RoutingRule   `json:"routing_rules,omitempty" yaml:"routing_rules,omitempty"`
	Transfer    TransferSettings `json:"transfer,omitempty" yaml:"transfer,omitempty"`
}

// Validate checks the structure of the definition. Rule targets are not
// resolved here.
func (d *Definition) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("squad id required")
	}
	if len(d.Members) == 0 {
		return fmt.Errorf("squad %q has no members", d.ID)
	}
	seen := map[string]bool{}
	for _, m := range d.Members {
		if m == nil || m.AgentID == "" {
			return fmt.Errorf("squad %q has a member without an agent id", d.ID)
		}
		if seen[m.AgentID] {
			return fmt.Errorf("squad %q lists agent %q twice", d.ID, m.AgentID)
		}
		seen[m.AgentID] = true
	}
	for i, rule := range d.Rules {
		if rule == nil || rule.TargetAgentID == "" || rule.Condition == nil {
			return fmt.Errorf("squad %q routing rule %d needs a target agent and a condition", d.ID, i)
		}
	}
	return nil
}

// OrderedMembers returns the members sorted by priority.
func (d *Definition) OrderedMembers() []*Member {
	members := append([]*Member(nil), d.Members...)
	sort.SliceStable(members, func(i, j int) bool {
		return members[i].Priority < members[j].Priority
	})
	return members
}

// OrderedRules returns the routing rules in evaluation order.
func (d *Definition) OrderedRules() []*RoutingRule {
	rules := append([]*RoutingRule(nil), d.Rules...)
	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].Priority < rules[j].Priority
	})
	return rules
}

// DefinitionStore loads squad and agent definitions. Unknown ids fail with
// an error matching callflow.ErrDefinitionNotFound.
type DefinitionStore interface {
	LoadSquad(ctx context.Context, id string) (*Definition, error)
	LoadAgent(ctx context.Context, id string) (*llm.AgentConfig, error)
}
