package conversation

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/apichafoko/RegistroCirugias-sub001/internal/observability/metrics"
	"github.com/apichafoko/RegistroCirugias-sub001/pkg/logging"
)

const sessionShardCount = 16

// sessionEntry wraps one conversation's state with its own lock so turns
// for the same conversation never interleave.
type sessionEntry struct {
	mu    sync.Mutex
	state *RecordState
}

type sessionShard struct {
	mu      sync.Mutex
	entries map[string]*sessionEntry
}

// SessionStore keeps in-progress booking states keyed by conversation
// identity. Access is sharded; mutation of one conversation is serialized
// through its entry lock.
type SessionStore struct {
	shards  [sessionShardCount]*sessionShard
	idleTTL time.Duration
	clock   func() time.Time
	logger  *logging.Logger
	metrics *metrics.ConversationMetrics
}

// SessionStoreOption customizes the store.
type SessionStoreOption func(*SessionStore)

// WithSessionClock overrides the time source, for tests.
func WithSessionClock(clock func() time.Time) SessionStoreOption {
	return func(s *SessionStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithSessionMetrics wires eviction metrics.
func WithSessionMetrics(m *metrics.ConversationMetrics) SessionStoreOption {
	return func(s *SessionStore) {
		s.metrics = m
	}
}

// NewSessionStore creates a store that evicts sessions idle for idleTTL.
func NewSessionStore(idleTTL time.Duration, logger *logging.Logger, opts ...SessionStoreOption) *SessionStore {
	if idleTTL <= 0 {
		idleTTL = 45 * time.Minute
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &SessionStore{
		idleTTL: idleTTL,
		clock:   time.Now,
		logger:  logger,
	}
	for i := range s.shards {
		s.shards[i] = &sessionShard{entries: make(map[string]*sessionEntry)}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SessionStore) shard(conversationID string) *sessionShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(conversationID))
	return s.shards[h.Sum32()%sessionShardCount]
}

// Do runs fn with the conversation's state under its entry lock, creating
// the state on first use. fresh is true when the state was just created.
// Events for one conversation are applied one at a time, in lock order.
func (s *SessionStore) Do(conversationID, orgID string, fn func(st *RecordState, fresh bool) error) error {
	shard := s.shard(conversationID)

	for {
		entry := s.lockEntry(shard, conversationID)
		if entry == nil {
			continue
		}
		fresh := entry.state == nil
		if fresh {
			entry.state = NewRecordState(conversationID, orgID, s.clock())
		}
		err := fn(entry.state, fresh)
		entry.mu.Unlock()
		return err
	}
}

// lockEntry returns the conversation's entry with its lock held, or nil
// when the sweeper evicted the entry between the map lookup and the lock.
// Mutating an evicted entry would land on state nobody can reach.
func (s *SessionStore) lockEntry(shard *sessionShard, conversationID string) *sessionEntry {
	shard.mu.Lock()
	entry, ok := shard.entries[conversationID]
	if !ok {
		entry = &sessionEntry{}
		shard.entries[conversationID] = entry
	}
	shard.mu.Unlock()

	entry.mu.Lock()
	shard.mu.Lock()
	live := shard.entries[conversationID] == entry
	shard.mu.Unlock()
	if !live {
		entry.mu.Unlock()
		return nil
	}
	return entry
}

// Replace swaps in a previously snapshotted state. Used on recovery; no-op
// when the conversation already has live state.
func (s *SessionStore) Replace(conversationID string, st *RecordState) {
	if st == nil {
		return
	}
	shard := s.shard(conversationID)
	for {
		entry := s.lockEntry(shard, conversationID)
		if entry == nil {
			continue
		}
		if entry.state == nil {
			entry.state = st
		}
		entry.mu.Unlock()
		return
	}
}

// Delete removes a conversation's state.
func (s *SessionStore) Delete(conversationID string) {
	shard := s.shard(conversationID)
	shard.mu.Lock()
	entry, ok := shard.entries[conversationID]
	if ok {
		delete(shard.entries, conversationID)
	}
	shard.mu.Unlock()

	if ok {
		// Wait out any in-flight turn so its mutations don't land on a
		// state nobody can reach.
		entry.mu.Lock()
		entry.state = nil
		entry.mu.Unlock()
	}
}

// Len returns the number of tracked conversations.
func (s *SessionStore) Len() int {
	total := 0
	for _, shard := range s.shards {
		shard.mu.Lock()
		total += len(shard.entries)
		shard.mu.Unlock()
	}
	return total
}

// Sweep removes sessions whose last input is older than the idle TTL and
// returns how many were evicted. Each entry is checked under its own lock
// so a sweep never races an in-flight update.
func (s *SessionStore) Sweep() int {
	cutoff := s.clock().Add(-s.idleTTL)
	evicted := 0

	for _, shard := range s.shards {
		shard.mu.Lock()
		ids := make([]string, 0, len(shard.entries))
		for id := range shard.entries {
			ids = append(ids, id)
		}
		shard.mu.Unlock()

		for _, id := range ids {
			shard.mu.Lock()
			entry, ok := shard.entries[id]
			shard.mu.Unlock()
			if !ok {
				continue
			}

			entry.mu.Lock()
			idle := entry.state == nil || entry.state.UpdatedAt.Before(cutoff)
			if idle {
				shard.mu.Lock()
				// Re-check: Do may have installed a fresh entry.
				if shard.entries[id] == entry {
					delete(shard.entries, id)
					evicted++
				}
				shard.mu.Unlock()
				entry.state = nil
			}
			entry.mu.Unlock()
		}
	}

	if evicted > 0 {
		s.logger.Debug("idle sessions evicted", "count", evicted)
		s.metrics.ObserveEviction(evicted)
	}
	return evicted
}

// RunSweeper sweeps periodically until ctx is cancelled.
func (s *SessionStore) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}
