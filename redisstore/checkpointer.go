// Package redisstore persists execution checkpoints in Redis.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/deepnoodle-ai/callflow"
	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix is used when Options.KeyPrefix is empty.
const DefaultKeyPrefix = "callflow:"

// Options configures a Checkpointer.
type Options struct {
	Client    redis.UniversalClient
	KeyPrefix string

	// TTL expires checkpoints of executions that stop saving. Zero keeps
	// them until deleted.
	TTL time.Duration
}

// Checkpointer keeps the latest checkpoint of each execution in a Redis
// string and indexes executions by start time in a sorted set.
type Checkpointer struct {
	client    redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
}

var (
	_ callflow.Checkpointer    = (*Checkpointer)(nil)
	_ callflow.ExecutionLister = (*Checkpointer)(nil)
)

// New returns a Checkpointer using the given client.
func New(opts Options) (*Checkpointer, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = DefaultKeyPrefix
	}
	return &Checkpointer{client: opts.Client, keyPrefix: opts.KeyPrefix, ttl: opts.TTL}, nil
}

// Dial connects to the Redis server at addr and verifies the connection.
func Dial(ctx context.Context, addr, password string, db int, opts Options) (*Checkpointer, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	opts.Client = client
	return New(opts)
}

// Close closes the underlying client.
func (c *Checkpointer) Close() error {
	return c.client.Close()
}

func (c *Checkpointer) checkpointKey(executionID string) string {
	return c.keyPrefix + "checkpoint:" + executionID
}

func (c *Checkpointer) indexKey() string {
	return c.keyPrefix + "executions"
}

// SaveCheckpoint replaces the latest checkpoint of the execution.
func (c *Checkpointer) SaveCheckpoint(ctx context.Context, checkpoint *callflow.Checkpoint) error {
	data, err := json.Marshal(checkpoint)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}
	started := checkpoint.StartTime
	if started.IsZero() {
		started = checkpoint.CheckpointAt
	}
	pipe := c.client.TxPipeline()
	pipe.Set(ctx, c.checkpointKey(checkpoint.ExecutionID), data, c.ttl)
	pipe.ZAdd(ctx, c.indexKey(), redis.Z{Score: float64(started.UnixNano()), Member: checkpoint.ExecutionID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// LoadCheckpoint returns the latest checkpoint of an execution, or nil.
func (c *Checkpointer) LoadCheckpoint(ctx context.Context, executionID string) (*callflow.Checkpoint, error) {
	data, err := c.client.Get(ctx, c.checkpointKey(executionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	var checkpoint callflow.Checkpoint
	if err := json.Unmarshal(data, &checkpoint); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	return &checkpoint, nil
}

// DeleteCheckpoint removes the checkpoint of an execution.
func (c *Checkpointer) DeleteCheckpoint(ctx context.Context, executionID string) error {
	pipe := c.client.TxPipeline()
	pipe.Del(ctx, c.checkpointKey(executionID))
	pipe.ZRem(ctx, c.indexKey(), executionID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

// ListExecutions summarizes the indexed executions, newest first. Index
// entries whose checkpoint expired are pruned.
func (c *Checkpointer) ListExecutions(ctx context.Context) ([]*callflow.ExecutionSummary, error) {
	ids, err := c.client.ZRevRange(ctx, c.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}
	summaries := []*callflow.ExecutionSummary{}
	if len(ids) == 0 {
		return summaries, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = c.checkpointKey(id)
	}
	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoints: %w", err)
	}
	var expired []any
	for i, value := range values {
		data, ok := value.(string)
		if !ok {
			expired = append(expired, ids[i])
			continue
		}
		var checkpoint callflow.Checkpoint
		if err := json.Unmarshal([]byte(data), &checkpoint); err != nil {
			continue
		}
		summaries = append(summaries, callflow.SummarizeCheckpoint(&checkpoint))
	}
	if len(expired) > 0 {
		if err := c.client.ZRem(ctx, c.indexKey(), expired...).Err(); err != nil {
			return nil, fmt.Errorf("failed to prune executions: %w", err)
		}
	}
	return summaries, nil
}
