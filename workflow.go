package callflow

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// ErrorPolicy determines how the engine reacts to an error result.
type ErrorPolicy string

const (
	// ErrorPolicyHalt stops the run and returns the error as the terminal result.
	ErrorPolicyHalt ErrorPolicy = "halt"

	// ErrorPolicyContinue follows ordinary edge resolution past the failed node.
	ErrorPolicyContinue ErrorPolicy = "continue"

	// ErrorPolicyFallback jumps to Settings.FallbackNode. Without a fallback
	// node it behaves like ErrorPolicyHalt.
	ErrorPolicyFallback ErrorPolicy = "fallback"
)

// Variable declares a workflow variable and its default value.
type Variable struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Default     any    `json:"default,omitempty" yaml:"default,omitempty"`
}

// Settings holds workflow-wide execution settings.
type Settings struct {
	ErrorHandling ErrorPolicy `json:"error_handling,omitempty" yaml:"error_handling,omitempty"`
	FallbackNode  string      `json:"fallback_node,omitempty" yaml:"fallback_node,omitempty"`
}

// Options are used to configure a workflow.
type Options struct {
	ID          string      `json:"id" yaml:"id"`
	Name        string      `json:"name,omitempty" yaml:"name,omitempty"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty"`
	Nodes       []*Node     `json:"nodes" yaml:"nodes"`
	Edges       []*Edge     `json:"edges,omitempty" yaml:"edges,omitempty"`
	Variables   []*Variable `json:"variables,omitempty" yaml:"variables,omitempty"`
	Settings    Settings    `json:"settings,omitempty" yaml:"settings,omitempty"`
}

// Workflow describes a conversational process as a directed graph of typed
// nodes. A Workflow is immutable once built and may be shared by concurrent
// executions.
type Workflow struct {
	id          string
	name        string
	description string
	nodes       []*Node
	edges       []*Edge
	nodesByID   map[string]*Node
	outgoing    map[string][]*Edge
	variables   []*Variable
	settings    Settings
	start       *Node
}

// New returns a new Workflow configured with the given options.
func New(opts Options) (*Workflow, error) {
	if opts.ID == "" {
		return nil, fmt.Errorf("workflow id required")
	}
	if len(opts.Nodes) == 0 {
		return nil, fmt.Errorf("nodes required")
	}

	nodesByID := make(map[string]*Node, len(opts.Nodes))
	var start *Node
	for _, node := range opts.Nodes {
		if node == nil || node.ID == "" {
			return nil, fmt.Errorf("node id required")
		}
		if _, exists := nodesByID[node.ID]; exists {
			return nil, fmt.Errorf("duplicate node id %q", node.ID)
		}
		if !node.Kind.Valid() {
			return nil, fmt.Errorf("node %q has unknown kind %q", node.ID, node.Kind)
		}
		if node.Kind == NodeKindStart {
			if start != nil {
				return nil, fmt.Errorf("multiple start nodes: %q and %q", start.ID, node.ID)
			}
			start = node
		}
		nodesByID[node.ID] = node
	}

	outgoing := make(map[string][]*Edge, len(opts.Nodes))
	for _, edge := range opts.Edges {
		if edge == nil {
			continue
		}
		if _, ok := nodesByID[edge.From]; !ok {
			return nil, fmt.Errorf("edge from node %q not found", edge.From)
		}
		if _, ok := nodesByID[edge.To]; !ok {
			return nil, fmt.Errorf("edge to node %q not found", edge.To)
		}
		outgoing[edge.From] = append(outgoing[edge.From], edge)
	}

	settings := opts.Settings
	if settings.ErrorHandling == "" {
		settings.ErrorHandling = ErrorPolicyHalt
	}
	switch settings.ErrorHandling {
	case ErrorPolicyHalt, ErrorPolicyContinue, ErrorPolicyFallback:
	default:
		return nil, fmt.Errorf("unknown error handling policy %q", settings.ErrorHandling)
	}
	if settings.FallbackNode != "" {
		if _, ok := nodesByID[settings.FallbackNode]; !ok {
			return nil, fmt.Errorf("fallback node %q not found", settings.FallbackNode)
		}
	}

	for _, v := range opts.Variables {
		if v == nil || v.Name == "" {
			return nil, fmt.Errorf("variable name required")
		}
	}

	return &Workflow{
		id:          opts.ID,
		name:        opts.Name,
		description: opts.Description,
		nodes:       opts.Nodes,
		edges:       opts.Edges,
		nodesByID:   nodesByID,
		outgoing:    outgoing,
		variables:   opts.Variables,
		settings:    settings,
		start:       start,
	}, nil
}

// ID returns the workflow id
func (w *Workflow) ID() string {
	return w.id
}

// Name returns the workflow name, falling back to the id
func (w *Workflow) Name() string {
	if w.name == "" {
		return w.id
	}
	return w.name
}

// Description returns the workflow description
func (w *Workflow) Description() string {
	return w.description
}

// Nodes returns the workflow nodes in declaration order
func (w *Workflow) Nodes() []*Node {
	return w.nodes
}

// Edges returns the workflow edges in declaration order
func (w *Workflow) Edges() []*Edge {
	return w.edges
}

// Variables returns the declared workflow variables
func (w *Workflow) Variables() []*Variable {
	return w.variables
}

// Settings returns the workflow settings
func (w *Workflow) Settings() Settings {
	return w.settings
}

// Start returns the node of kind start, or nil if the workflow has none.
func (w *Workflow) Start() *Node {
	return w.start
}

// GetNode returns a node by id
func (w *Workflow) GetNode(id string) (*Node, bool) {
	node, ok := w.nodesByID[id]
	return node, ok
}

// Outgoing returns the edges leaving the given node, in declaration order.
func (w *Workflow) Outgoing(nodeID string) []*Edge {
	return w.outgoing[nodeID]
}

// NodeIDs returns the sorted ids of all nodes in the workflow
func (w *Workflow) NodeIDs() []string {
	ids := make([]string, 0, len(w.nodesByID))
	for id := range w.nodesByID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Defaults returns the declared variable defaults as a new map.
func (w *Workflow) Defaults() map[string]any {
	defaults := make(map[string]any, len(w.variables))
	for _, v := range w.variables {
		defaults[v.Name] = v.Default
	}
	return defaults
}

// Options returns the options the workflow was built from. Used when a
// workflow definition is serialized back into a store.
func (w *Workflow) Options() Options {
	return Options{
		ID:          w.id,
		Name:        w.name,
		Description: w.description,
		Nodes:       w.nodes,
		Edges:       w.edges,
		Variables:   w.variables,
		Settings:    w.settings,
	}
}

// LoadFile loads a workflow from a YAML file
func LoadFile(path string) (*Workflow, error) {
	yamlData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow file: %w", err)
	}
	return LoadString(string(yamlData))
}

// LoadString loads a workflow from a YAML string
func LoadString(data string) (*Workflow, error) {
	var opts Options
	if err := yaml.Unmarshal([]byte(data), &opts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal workflow: %w", err)
	}
	return New(opts)
}
