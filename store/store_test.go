package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/deepnoodle-ai/callflow"
	"github.com/deepnoodle-ai/callflow/llm"
	"github.com/deepnoodle-ai/callflow/squad"
	"github.com/stretchr/testify/require"
)

func TestLoadDir(t *testing.T) {
	ctx := context.Background()
	m, err := LoadDir("testdata/defs")
	require.NoError(t, err)

	require.Equal(t, []string{"greeting"}, m.WorkflowIDs())
	require.Equal(t, []string{"billing", "general"}, m.AgentIDs())
	require.Equal(t, []string{"support"}, m.SquadIDs())

	wf, err := m.LoadWorkflow(ctx, "greeting")
	require.NoError(t, err)
	require.Equal(t, "start", wf.Start().ID)

	agent, err := m.LoadAgent(ctx, "billing")
	require.NoError(t, err)
	require.Equal(t, "Billing", agent.Name)
	require.NotNil(t, agent.Temperature)
	require.Equal(t, 0.2, *agent.Temperature)

	def, err := m.LoadSquad(ctx, "support")
	require.NoError(t, err)
	require.True(t, def.Transfer.PreserveContext)
	require.Equal(t, "general", def.OrderedMembers()[0].AgentID)
	require.Equal(t, callflow.ConditionAI, def.Rules[0].Condition.Kind)
}

func TestLoadDirMissing(t *testing.T) {
	m, err := LoadDir(t.TempDir())
	require.NoError(t, err)
	require.Empty(t, m.WorkflowIDs())
}

func TestLoadDirInvalid(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "squads"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "squads", "empty.yaml"), []byte("id: empty\n"), 0644))
	_, err := LoadDir(dir)
	require.ErrorContains(t, err, "has no members")
}

func TestNotFound(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	_, err := m.LoadWorkflow(ctx, "nope")
	require.ErrorIs(t, err, callflow.ErrDefinitionNotFound)
	_, err = m.LoadSquad(ctx, "nope")
	require.ErrorIs(t, err, callflow.ErrDefinitionNotFound)
	_, err = m.LoadAgent(ctx, "nope")
	require.ErrorIs(t, err, callflow.ErrDefinitionNotFound)
}

func TestMemoryValidation(t *testing.T) {
	m := NewMemory()
	require.Error(t, m.AddAgent(&llm.AgentConfig{}))
	require.Error(t, m.AddSquad(&squad.Definition{ID: "s"}))
	require.NoError(t, m.AddAgent(&llm.AgentConfig{ID: "a", SystemPrompt: "hi"}))

	agent, err := m.LoadAgent(context.Background(), "a")
	require.NoError(t, err)
	agent.SystemPrompt = "changed"
	again, _ := m.LoadAgent(context.Background(), "a")
	require.Equal(t, "hi", again.SystemPrompt)
}
