package store

import (
	"context"
	"encoding/json"
	"errors"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/conductor-ai/conductor/checkpoint"
	"github.com/conductor-ai/conductor/types"
)

const (
	checkpointKeyPrefix  = "conductor:checkpoint:"
	checkpointListPrefix = "conductor:execution:"
	checkpointListSuffix = ":checkpoints"
)

// RedisCheckpointStore keeps checkpoints in Redis so a decision recorded in
// one process is visible to the driver in another. Each checkpoint is a JSON
// value; a per-execution set indexes its checkpoint ids.
type RedisCheckpointStore struct {
	client *redis.Client
}

var _ checkpoint.Store = (*RedisCheckpointStore)(nil)

// NewRedisCheckpointStore wraps an existing client.
func NewRedisCheckpointStore(client *redis.Client) *RedisCheckpointStore {
	return &RedisCheckpointStore{client: client}
}

func checkpointKey(id string) string { return checkpointKeyPrefix + id }

func executionSetKey(executionID string) string {
	return checkpointListPrefix + executionID + checkpointListSuffix
}

func (s *RedisCheckpointStore) write(ctx context.Context, cp *checkpoint.Checkpoint) error {
	raw, err := json.Marshal(cp)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, checkpointKey(cp.ID), raw, 0).Err()
}

func (s *RedisCheckpointStore) Save(ctx context.Context, cp *checkpoint.Checkpoint) error {
	if err := s.write(ctx, cp); err != nil {
		return err
	}
	return s.client.SAdd(ctx, executionSetKey(cp.ExecutionID), cp.ID).Err()
}

func (s *RedisCheckpointStore) Get(ctx context.Context, id string) (*checkpoint.Checkpoint, error) {
	raw, err := s.client.Get(ctx, checkpointKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, types.NotFound("checkpoint", id)
	}
	if err != nil {
		return nil, err
	}
	var cp checkpoint.Checkpoint
	if err := json.Unmarshal(raw, &cp); err != nil {
		return nil, err
	}
	return &cp, nil
}

func (s *RedisCheckpointStore) Update(ctx context.Context, cp *checkpoint.Checkpoint) error {
	exists, err := s.client.Exists(ctx, checkpointKey(cp.ID)).Result()
	if err != nil {
		return err
	}
	if exists == 0 {
		return types.NotFound("checkpoint", cp.ID)
	}
	return s.write(ctx, cp)
}

// ListByExecution returns an execution's checkpoints newest first.
func (s *RedisCheckpointStore) ListByExecution(ctx context.Context, executionID string) ([]*checkpoint.Checkpoint, error) {
	ids, err := s.client.SMembers(ctx, executionSetKey(executionID)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*checkpoint.Checkpoint, 0, len(ids))
	for _, id := range ids {
		cp, err := s.Get(ctx, id)
		if err != nil {
			if types.IsCode(err, types.ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *RedisCheckpointStore) DeleteByExecution(ctx context.Context, executionID string) error {
	setKey := executionSetKey(executionID)
	ids, err := s.client.SMembers(ctx, setKey).Result()
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, checkpointKey(id))
	}
	keys = append(keys, setKey)
	return s.client.Del(ctx, keys...).Err()
}
