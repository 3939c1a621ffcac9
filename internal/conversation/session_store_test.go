package conversation

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apichafoko/RegistroCirugias-sub001/pkg/logging"
)

func TestSessionStoreCreatesStateOnFirstUse(t *testing.T) {
	store := NewSessionStore(time.Hour, logging.Default())

	var sawFresh bool
	err := store.Do("conv-1", "org-1", func(st *RecordState, fresh bool) error {
		sawFresh = fresh
		st.Location = "Italiano"
		return nil
	})
	require.NoError(t, err)
	assert.True(t, sawFresh)

	err = store.Do("conv-1", "org-1", func(st *RecordState, fresh bool) error {
		assert.False(t, fresh)
		assert.Equal(t, "Italiano", st.Location)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, store.Len())
}

func TestSessionStoreSerializesSameConversation(t *testing.T) {
	store := NewSessionStore(time.Hour, logging.Default())

	const turns = 50
	var wg sync.WaitGroup
	for i := 0; i < turns; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.Do("conv-1", "org-1", func(st *RecordState, _ bool) error {
				st.Quantity++
				return nil
			})
		}()
	}
	wg.Wait()

	_ = store.Do("conv-1", "org-1", func(st *RecordState, _ bool) error {
		assert.Equal(t, turns, st.Quantity)
		return nil
	})
}

func TestSessionStoreSweepEvictsIdleSessions(t *testing.T) {
	now := refDate
	clock := func() time.Time { return now }
	store := NewSessionStore(45*time.Minute, logging.Default(), WithSessionClock(clock))

	require.NoError(t, store.Do("stale", "org-1", func(st *RecordState, _ bool) error {
		st.RecordInput("hola", now)
		return nil
	}))

	now = now.Add(30 * time.Minute)
	require.NoError(t, store.Do("active", "org-1", func(st *RecordState, _ bool) error {
		st.RecordInput("hola", now)
		return nil
	}))

	now = now.Add(20 * time.Minute)
	evicted := store.Sweep()

	assert.Equal(t, 1, evicted)
	assert.Equal(t, 1, store.Len())

	// The stale conversation starts over.
	require.NoError(t, store.Do("stale", "org-1", func(st *RecordState, fresh bool) error {
		assert.True(t, fresh)
		return nil
	}))
}

func TestSessionStoreSweepDoesNotStrandTurns(t *testing.T) {
	// A 1ns TTL makes every sweep evict whatever it finds, hammering the
	// window between the map lookup and the entry lock in Do.
	store := NewSessionStore(time.Nanosecond, logging.Default())

	done := make(chan struct{})
	var sweeper sync.WaitGroup
	sweeper.Add(1)
	go func() {
		defer sweeper.Done()
		for {
			select {
			case <-done:
				return
			default:
				store.Sweep()
			}
		}
	}()

	// The counter is a plain int: it only comes out right if Do really
	// serializes turns for the conversation, evictions included.
	const turns = 200
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < turns; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.Do("conv-1", "org-1", func(_ *RecordState, _ bool) error {
				counter++
				return nil
			})
		}()
	}
	wg.Wait()
	close(done)
	sweeper.Wait()

	assert.Equal(t, turns, counter)
}

func TestSessionStoreDelete(t *testing.T) {
	store := NewSessionStore(time.Hour, logging.Default())

	require.NoError(t, store.Do("conv-1", "org-1", func(st *RecordState, _ bool) error {
		st.Surgeon = "García"
		return nil
	}))
	store.Delete("conv-1")
	assert.Equal(t, 0, store.Len())

	require.NoError(t, store.Do("conv-1", "org-1", func(st *RecordState, fresh bool) error {
		assert.True(t, fresh)
		assert.Empty(t, st.Surgeon)
		return nil
	}))
}

func TestSessionStoreReplaceOnlyFillsEmpty(t *testing.T) {
	store := NewSessionStore(time.Hour, logging.Default())

	snapshot := NewRecordState("conv-1", "org-1", refDate)
	snapshot.Location = "Italiano"
	store.Replace("conv-1", snapshot)

	require.NoError(t, store.Do("conv-1", "org-1", func(st *RecordState, fresh bool) error {
		assert.False(t, fresh)
		assert.Equal(t, "Italiano", st.Location)
		st.Surgeon = "García"
		return nil
	}))

	// A second replace must not clobber live state.
	store.Replace("conv-1", NewRecordState("conv-1", "org-1", refDate))
	require.NoError(t, store.Do("conv-1", "org-1", func(st *RecordState, _ bool) error {
		assert.Equal(t, "García", st.Surgeon)
		return nil
	}))
}
