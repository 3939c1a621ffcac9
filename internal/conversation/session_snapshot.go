package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const defaultSnapshotTTL = 24 * time.Hour

// RedisSnapshotStore persists in-progress booking states in Redis so a
// conversation survives a process restart.
type RedisSnapshotStore struct {
	redis  *redis.Client
	tracer trace.Tracer
	ttl    time.Duration
}

// NewRedisSnapshotStore creates a snapshot store. A zero ttl uses the
// default of 24 hours.
func NewRedisSnapshotStore(client *redis.Client, tracer trace.Tracer, ttl time.Duration) *RedisSnapshotStore {
	if client == nil {
		panic("conversation: redis client cannot be nil")
	}
	if tracer == nil {
		tracer = otel.Tracer("registro.internal.conversation.snapshot")
	}
	if ttl <= 0 {
		ttl = defaultSnapshotTTL
	}
	return &RedisSnapshotStore{
		redis:  client,
		tracer: tracer,
		ttl:    ttl,
	}
}

func snapshotKey(conversationID string) string {
	return fmt.Sprintf("session_snapshot:%s", conversationID)
}

// Save persists the state under its conversation key with the store TTL.
func (s *RedisSnapshotStore) Save(ctx context.Context, st *RecordState) error {
	ctx, span := s.tracer.Start(ctx, "conversation.save_snapshot")
	defer span.End()

	data, err := json.Marshal(st)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to marshal snapshot: %w", err)
	}
	if err := s.redis.Set(ctx, snapshotKey(st.ConversationID), data, s.ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to persist snapshot: %w", err)
	}
	return nil
}

// Load retrieves a snapshot. Returns nil when none is stored.
func (s *RedisSnapshotStore) Load(ctx context.Context, conversationID string) (*RecordState, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.load_snapshot")
	defer span.End()

	data, err := s.redis.Get(ctx, snapshotKey(conversationID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: failed to load snapshot: %w", err)
	}

	var st RecordState
	if err := json.Unmarshal(data, &st); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: failed to decode snapshot: %w", err)
	}
	return &st, nil
}

// Delete removes a conversation's snapshot.
func (s *RedisSnapshotStore) Delete(ctx context.Context, conversationID string) error {
	ctx, span := s.tracer.Start(ctx, "conversation.delete_snapshot")
	defer span.End()

	if err := s.redis.Del(ctx, snapshotKey(conversationID)).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to delete snapshot: %w", err)
	}
	return nil
}
