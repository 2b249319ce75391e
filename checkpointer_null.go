package callflow

import "context"

// NullCheckpointer discards checkpoints. Executions using it cannot be
// restored.
type NullCheckpointer struct{}

func NewNullCheckpointer() *NullCheckpointer {
	return &NullCheckpointer{}
}

func (NullCheckpointer) SaveCheckpoint(context.Context, *Checkpoint) error {
	return nil
}

func (NullCheckpointer) LoadCheckpoint(context.Context, string) (*Checkpoint, error) {
	return nil, nil
}

func (NullCheckpointer) DeleteCheckpoint(context.Context, string) error {
	return nil
}
