// Package store provides definition stores for workflows, squads and agents.
package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/deepnoodle-ai/callflow"
	"github.com/deepnoodle-ai/callflow/llm"
	"github.com/deepnoodle-ai/callflow/squad"
	"gopkg.in/yaml.v3"
)

// Store loads workflow, squad and agent definitions by id.
type Store interface {
	squad.DefinitionStore
	LoadWorkflow(ctx context.Context, id string) (*callflow.Workflow, error)
}

// Memory is a Store holding definitions in memory. It is safe for
// concurrent use.
type Memory struct {
	mutex     sync.RWMutex
	workflows map[string]*callflow.Workflow
	squads    map[string]*squad.Definition
	agents    map[string]*llm.AgentConfig
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		workflows: map[string]*callflow.Workflow{},
		squads:    map[string]*squad.Definition{},
		agents:    map[string]*llm.AgentConfig{},
	}
}

// AddWorkflow adds or replaces a workflow.
func (m *Memory) AddWorkflow(wf *callflow.Workflow) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.workflows[wf.ID()] = wf
}

// AddSquad validates and adds or replaces a squad.
func (m *Memory) AddSquad(def *squad.Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.squads[def.ID] = def
	return nil
}

// AddAgent adds or replaces an agent.
func (m *Memory) AddAgent(agent *llm.AgentConfig) error {
	if agent.ID == "" {
		return fmt.Errorf("agent id required")
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.agents[agent.ID] = agent
	return nil
}

func (m *Memory) LoadWorkflow(ctx context.Context, id string) (*callflow.Workflow, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	wf, ok := m.workflows[id]
	if !ok {
		return nil, callflow.NewDefinitionNotFound("workflow", id)
	}
	return wf, nil
}

func (m *Memory) LoadSquad(ctx context.Context, id string) (*squad.Definition, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	def, ok := m.squads[id]
	if !ok {
		return nil, callflow.NewDefinitionNotFound("squad", id)
	}
	return def, nil
}

func (m *Memory) LoadAgent(ctx context.Context, id string) (*llm.AgentConfig, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	agent, ok := m.agents[id]
	if !ok {
		return nil, callflow.NewDefinitionNotFound("agent", id)
	}
	copied := *agent
	return &copied, nil
}

// WorkflowIDs returns the ids of the stored workflows, sorted.
func (m *Memory) WorkflowIDs() []string {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return sortedKeys(m.workflows)
}

// SquadIDs returns the ids of the stored squads, sorted.
func (m *Memory) SquadIDs() []string {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return sortedKeys(m.squads)
}

// AgentIDs returns the ids of the stored agents, sorted.
func (m *Memory) AgentIDs() []string {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return sortedKeys(m.agents)
}

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// LoadDir loads the YAML definitions below dir into a new Memory store.
// Workflows are read from dir/workflows, squads from dir/squads and agents
// from dir/agents. Missing subdirectories are skipped.
func LoadDir(dir string) (*Memory, error) {
	m := NewMemory()
	err := eachYAML(filepath.Join(dir, "workflows"), func(path string, data []byte) error {
		wf, err := callflow.LoadString(string(data))
		if err != nil {
			return err
		}
		m.AddWorkflow(wf)
		return nil
	})
	if err != nil {
		return nil, err
	}
	err = eachYAML(filepath.Join(dir, "agents"), func(path string, data []byte) error {
		var agent llm.AgentConfig
		if err := yaml.Unmarshal(data, &agent); err != nil {
			return err
		}
		return m.AddAgent(&agent)
	})
	if err != nil {
		return nil, err
	}
	err = eachYAML(filepath.Join(dir, "squads"), func(path string, data []byte) error {
		var def squad.Definition
		if err := yaml.Unmarshal(data, &def); err != nil {
			return err
		}
		return m.AddSquad(&def)
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func eachYAML(dir string, fn func(path string, data []byte) error) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read %s: %w", dir, err)
	}
	for _, entry := range entries {
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if entry.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		if err := fn(path, data); err != nil {
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
	}
	return nil
}
