package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"settlement-reconciler/internal/core/domain"

	goredis "github.com/redis/go-redis/v9"
)

// DefaultProgressTTL bounds how long partial results of an abandoned batch are kept.
const DefaultProgressTTL = 14 * 24 * time.Hour

// ProgressStore implements ports.ProgressStore as one hash per batch keyed
// by instruction id.
type ProgressStore struct {
	client *goredis.Client
	prefix string
	ttl    time.Duration
}

// NewProgressStore creates a new Redis-backed progress store.
func NewProgressStore(client *goredis.Client, ttl time.Duration) *ProgressStore {
	if ttl <= 0 {
		ttl = DefaultProgressTTL
	}
	return &ProgressStore{
		client: client,
		prefix: "recon:progress:",
		ttl:    ttl,
	}
}

func (s *ProgressStore) key(batchID int64) string {
	return s.prefix + strconv.FormatInt(batchID, 10)
}

// Merge overwrites the stored outcome of every instruction in outcomes and
// refreshes the TTL.
func (s *ProgressStore) Merge(ctx context.Context, batchID int64, outcomes []domain.Outcome) error {
	if len(outcomes) == 0 {
		return nil
	}

	values := make([]any, 0, len(outcomes)*2)
	for _, o := range outcomes {
		raw, err := json.Marshal(o)
		if err != nil {
			return fmt.Errorf("marshal outcome %d: %w", o.InstructionID, err)
		}
		values = append(values, strconv.FormatInt(o.InstructionID, 10), raw)
	}

	key := s.key(batchID)
	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HSet(ctx, key, values...)
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis progress merge: %w", err)
	}
	return nil
}

// Load returns all outcomes accumulated for a batch.
func (s *ProgressStore) Load(ctx context.Context, batchID int64) (map[int64]domain.Outcome, error) {
	fields, err := s.client.HGetAll(ctx, s.key(batchID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis progress load: %w", err)
	}

	out := make(map[int64]domain.Outcome, len(fields))
	for field, raw := range fields {
		id, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("progress field %q: %w", field, err)
		}
		var o domain.Outcome
		if err := json.Unmarshal([]byte(raw), &o); err != nil {
			return nil, fmt.Errorf("unmarshal outcome %d: %w", id, err)
		}
		out[id] = o
	}
	return out, nil
}

// Clear drops the accumulated outcomes of a finalized batch.
func (s *ProgressStore) Clear(ctx context.Context, batchID int64) error {
	if err := s.client.Del(ctx, s.key(batchID)).Err(); err != nil {
		return fmt.Errorf("redis progress clear: %w", err)
	}
	return nil
}
