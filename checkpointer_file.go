package callflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileCheckpointer keeps the latest checkpoint of each execution as a JSON
// file named after the execution id. Files are replaced atomically, so a
// reader never observes a partially written checkpoint.
type FileCheckpointer struct {
	dir string
}

// NewFileCheckpointer returns a checkpointer writing to dir, which is created
// if needed. An empty dir selects ~/.callflow/executions.
func NewFileCheckpointer(dir string) (*FileCheckpointer, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		dir = filepath.Join(home, ".callflow", "executions")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory %s: %w", dir, err)
	}
	return &FileCheckpointer{dir: dir}, nil
}

func (c *FileCheckpointer) path(executionID string) string {
	return filepath.Join(c.dir, executionID+".json")
}

// SaveCheckpoint replaces the stored checkpoint of the execution.
func (c *FileCheckpointer) SaveCheckpoint(ctx context.Context, checkpoint *Checkpoint) error {
	if checkpoint.ExecutionID == "" || strings.ContainsAny(checkpoint.ExecutionID, `/\`) {
		return fmt.Errorf("invalid execution id %q", checkpoint.ExecutionID)
	}
	data, err := json.MarshalIndent(checkpoint, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}
	tmp, err := os.CreateTemp(c.dir, checkpoint.ExecutionID+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create checkpoint file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write checkpoint file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write checkpoint file: %w", err)
	}
	return os.Rename(tmp.Name(), c.path(checkpoint.ExecutionID))
}

// LoadCheckpoint returns the stored checkpoint, or nil if there is none.
func (c *FileCheckpointer) LoadCheckpoint(ctx context.Context, executionID string) (*Checkpoint, error) {
	data, err := os.ReadFile(c.path(executionID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint file: %w", err)
	}
	var checkpoint Checkpoint
	if err := json.Unmarshal(data, &checkpoint); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint %s: %w", executionID, err)
	}
	return &checkpoint, nil
}

func (c *FileCheckpointer) DeleteCheckpoint(ctx context.Context, executionID string) error {
	err := os.Remove(c.path(executionID))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

// ListExecutions summarizes every stored execution, newest first. Files that
// cannot be read are skipped.
func (c *FileCheckpointer) ListExecutions(ctx context.Context) ([]*ExecutionSummary, error) {
	paths, err := filepath.Glob(filepath.Join(c.dir, "*.json"))
	if err != nil {
		return nil, err
	}
	summaries := make([]*ExecutionSummary, 0, len(paths))
	for _, path := range paths {
		id := strings.TrimSuffix(filepath.Base(path), ".json")
		checkpoint, err := c.LoadCheckpoint(ctx, id)
		if err != nil || checkpoint == nil {
			continue
		}
		summaries = append(summaries, SummarizeCheckpoint(checkpoint))
	}
	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].StartTime.After(summaries[j].StartTime)
	})
	return summaries, nil
}
