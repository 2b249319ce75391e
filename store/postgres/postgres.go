// Package postgres stores workflow, squad and agent definitions as JSONB
// documents in PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/deepnoodle-ai/callflow"
	"github.com/deepnoodle-ai/callflow/llm"
	"github.com/deepnoodle-ai/callflow/squad"
	"github.com/deepnoodle-ai/callflow/store"
	"github.com/lib/pq"
)

// Definition kinds, as stored in the kind column.
const (
	KindWorkflow = "workflow"
	KindSquad    = "squad"
	KindAgent    = "agent"
)

const schema = `
CREATE TABLE IF NOT EXISTS callflow_definitions (
	kind       TEXT        NOT NULL,
	id         TEXT        NOT NULL,
	document   JSONB       NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (kind, id)
)`

// undefinedTable is the PostgreSQL error code of a missing relation.
const undefinedTable = "42P01"

// Store is a store.Store backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// New returns a Store using db. Call Migrate before first use.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open connects to the database at dsn and creates the schema.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	s := New(db)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates the definitions table when missing.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (s *Store) save(ctx context.Context, kind, id string, doc any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal %s %q: %w", kind, id, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO callflow_definitions (kind, id, document, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (kind, id) DO UPDATE SET document = EXCLUDED.document, updated_at = now()`,
		kind, id, data)
	if err != nil {
		return queryError(fmt.Sprintf("save %s %q", kind, id), err)
	}
	return nil
}

func (s *Store) load(ctx context.Context, kind, id string, doc any) error {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT document FROM callflow_definitions WHERE kind = $1 AND id = $2`, kind, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return callflow.NewDefinitionNotFound(kind, id)
	}
	if err != nil {
		return queryError(fmt.Sprintf("load %s %q", kind, id), err)
	}
	if err := json.Unmarshal(data, doc); err != nil {
		return fmt.Errorf("failed to unmarshal %s %q: %w", kind, id, err)
	}
	return nil
}

// SaveWorkflow inserts or replaces a workflow.
func (s *Store) SaveWorkflow(ctx context.Context, wf *callflow.Workflow) error {
	return s.save(ctx, KindWorkflow, wf.ID(), wf.Options())
}

// SaveSquad validates and inserts or replaces a squad.
func (s *Store) SaveSquad(ctx context.Context, def *squad.Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	return s.save(ctx, KindSquad, def.ID, def)
}

// SaveAgent inserts or replaces an agent.
func (s *Store) SaveAgent(ctx context.Context, agent *llm.AgentConfig) error {
	if agent.ID == "" {
		return fmt.Errorf("agent id required")
	}
	return s.save(ctx, KindAgent, agent.ID, agent)
}

// LoadWorkflow implements store.Store.
func (s *Store) LoadWorkflow(ctx context.Context, id string) (*callflow.Workflow, error) {
	var opts callflow.Options
	if err := s.load(ctx, KindWorkflow, id, &opts); err != nil {
		return nil, err
	}
	return callflow.New(opts)
}

// LoadSquad implements squad.DefinitionStore.
func (s *Store) LoadSquad(ctx context.Context, id string) (*squad.Definition, error) {
	var def squad.Definition
	if err := s.load(ctx, KindSquad, id, &def); err != nil {
		return nil, err
	}
	return &def, nil
}

// LoadAgent implements squad.DefinitionStore.
func (s *Store) LoadAgent(ctx context.Context, id string) (*llm.AgentConfig, error) {
	var agent llm.AgentConfig
	if err := s.load(ctx, KindAgent, id, &agent); err != nil {
		return nil, err
	}
	return &agent, nil
}

// LoadAgents returns the agents with the given ids in one query. Unknown
// ids fail with a definition_not_found error naming the first missing id.
func (s *Store) LoadAgents(ctx context.Context, ids []string) ([]*llm.AgentConfig, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document FROM callflow_definitions WHERE kind = $1 AND id = ANY($2)`,
		KindAgent, pq.Array(ids))
	if err != nil {
		return nil, queryError("load agents", err)
	}
	defer rows.Close()

	found := map[string]*llm.AgentConfig{}
	for rows.Next() {
		var id string
		var data []byte
		if err := rows.Scan(&id, &data); err != nil {
			return nil, queryError("load agents", err)
		}
		var agent llm.AgentConfig
		if err := json.Unmarshal(data, &agent); err != nil {
			return nil, fmt.Errorf("failed to unmarshal agent %q: %w", id, err)
		}
		found[id] = &agent
	}
	if err := rows.Err(); err != nil {
		return nil, queryError("load agents", err)
	}
	agents := make([]*llm.AgentConfig, len(ids))
	for i, id := range ids {
		agent, ok := found[id]
		if !ok {
			return nil, callflow.NewDefinitionNotFound(KindAgent, id)
		}
		agents[i] = agent
	}
	return agents, nil
}

// Delete removes a definition. Deleting an unknown definition is not an
// error.
func (s *Store) Delete(ctx context.Context, kind, id string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM callflow_definitions WHERE kind = $1 AND id = $2`, kind, id); err != nil {
		return queryError(fmt.Sprintf("delete %s %q", kind, id), err)
	}
	return nil
}

// IDs returns the sorted ids of all definitions of a kind.
func (s *Store) IDs(ctx context.Context, kind string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM callflow_definitions WHERE kind = $1 ORDER BY id`, kind)
	if err != nil {
		return nil, queryError("list "+kind+" ids", err)
	}
	defer rows.Close()
	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, queryError("list "+kind+" ids", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Import copies every definition of a memory store into the database.
func (s *Store) Import(ctx context.Context, m *store.Memory) error {
	for _, id := range m.AgentIDs() {
		agent, err := m.LoadAgent(ctx, id)
		if err != nil {
			return err
		}
		if err := s.SaveAgent(ctx, agent); err != nil {
			return err
		}
	}
	for _, id := range m.SquadIDs() {
		def, err := m.LoadSquad(ctx, id)
		if err != nil {
			return err
		}
		if err := s.SaveSquad(ctx, def); err != nil {
			return err
		}
	}
	for _, id := range m.WorkflowIDs() {
		wf, err := m.LoadWorkflow(ctx, id)
		if err != nil {
			return err
		}
		if err := s.SaveWorkflow(ctx, wf); err != nil {
			return err
		}
	}
	return nil
}

func queryError(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == undefinedTable {
		return fmt.Errorf("failed to %s: definitions table missing, run Migrate: %w", op, err)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}
