package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubDurable implements DurableStore for testing. Saves arrive from the
// store's async write goroutines, so access is guarded.
type stubDurable struct {
	mu      sync.Mutex
	records map[string]*Record
	saves   int
	deletes int
}

func newStubDurable() *stubDurable {
	return &stubDurable{records: make(map[string]*Record)}
}

func (s *stubDurable) Load(ctx context.Context, id Identity) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id.Key()]
	if !ok {
		return nil, nil
	}
	out := *rec
	return &out, nil
}

func (s *stubDurable) Save(ctx context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	stored := *rec
	s.records[Identity{UserID: rec.UserID, Scope: rec.Scope}.Key()] = &stored
	return nil
}

func (s *stubDurable) Delete(ctx context.Context, id Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes++
	delete(s.records, id.Key())
	return nil
}

func (s *stubDurable) record(key string) *Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[key]
}

func (s *stubDurable) setRecord(key string, rec *Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key] = rec
}

var _ DurableStore = (*stubDurable)(nil)

func newTestStore(durable DurableStore, opts StoreOptions) *Store {
	return NewStore(durable, opts, zerolog.Nop())
}

func TestStore_AppendThenHistory(t *testing.T) {
	store := newTestStore(newStubDurable(), DefaultStoreOptions())
	defer store.Close()

	id := DirectIdentity("user-1")
	store.Append(context.Background(), id, Message{Role: RoleUser, Content: "hello"})

	history := store.History(context.Background(), id)
	require.Len(t, history, 1)
	assert.Equal(t, "hello", history[len(history)-1].Content)
}

func TestStore_TrimsToMaxHistoryLength(t *testing.T) {
	opts := DefaultStoreOptions()
	opts.MaxHistoryLength = 20
	store := newTestStore(newStubDurable(), opts)
	defer store.Close()

	id := DirectIdentity("user-1")
	// 25 alternating user/assistant messages
	for i := 0; i < 25; i++ {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAssistant
		}
		store.Append(context.Background(), id, Message{Role: role, Content: fmt.Sprintf("msg-%d", i)})
	}

	history := store.History(context.Background(), id)
	require.Len(t, history, 20)
	// Oldest 5 dropped, order preserved
	assert.Equal(t, "msg-5", history[0].Content)
	assert.Equal(t, "msg-24", history[19].Content)
}

func TestStore_TrimKeepsSystemMessage(t *testing.T) {
	opts := DefaultStoreOptions()
	opts.MaxHistoryLength = 3
	store := newTestStore(newStubDurable(), opts)
	defer store.Close()

	id := DirectIdentity("user-1")
	store.Append(context.Background(), id, Message{Role: RoleSystem, Content: "system"})
	for i := 0; i < 5; i++ {
		store.Append(context.Background(), id, Message{Role: RoleUser, Content: fmt.Sprintf("msg-%d", i)})
	}

	history := store.History(context.Background(), id)
	require.Len(t, history, 4)
	assert.Equal(t, RoleSystem, history[0].Role)
	assert.Equal(t, "msg-2", history[1].Content)
}

func TestStore_SystemMessagesNeverPersisted(t *testing.T) {
	durable := newStubDurable()
	store := newTestStore(durable, DefaultStoreOptions())

	id := DirectIdentity("user-1")
	store.Append(context.Background(), id, Message{Role: RoleSystem, Content: "system context"})
	store.Append(context.Background(), id, Message{Role: RoleUser, Content: "hi"})
	store.writes.Wait() // sequence the async writes for a deterministic record
	store.Append(context.Background(), id, Message{Role: RoleSystem, Content: "refreshed context"})
	store.Append(context.Background(), id, Message{Role: RoleAssistant, Content: "hello"})
	store.Close() // waits for the async writes

	rec := durable.record(id.Key())
	require.NotNil(t, rec)
	for _, m := range rec.Messages {
		assert.NotEqual(t, RoleSystem, m.Role)
	}
	assert.Len(t, rec.Messages, 2)
}

func TestStore_SystemMessageUpsertsInPlace(t *testing.T) {
	store := newTestStore(newStubDurable(), DefaultStoreOptions())
	defer store.Close()

	id := DirectIdentity("user-1")
	store.Append(context.Background(), id, Message{Role: RoleUser, Content: "hi"})
	store.Append(context.Background(), id, Message{Role: RoleSystem, Content: "v1"})
	store.Append(context.Background(), id, Message{Role: RoleSystem, Content: "v2"})

	history := store.History(context.Background(), id)
	require.Len(t, history, 2)
	assert.Equal(t, RoleSystem, history[0].Role)
	assert.Equal(t, "v2", history[0].Content)
}

func TestStore_CapacityEvictsLeastRecentlyActive(t *testing.T) {
	opts := DefaultStoreOptions()
	opts.Capacity = 3
	store := newTestStore(newStubDurable(), opts)
	defer store.Close()

	for i := 0; i < 3; i++ {
		id := DirectIdentity(fmt.Sprintf("user-%d", i))
		store.Append(context.Background(), id, Message{Role: RoleUser, Content: "hi"})
	}

	// Backdate user-1 so it is the least recently active
	store.mu.Lock()
	store.conversations[DirectIdentity("user-1").Key()].lastActivity = time.Now().Add(-time.Hour)
	store.mu.Unlock()

	store.Append(context.Background(), DirectIdentity("user-3"), Message{Role: RoleUser, Content: "hi"})

	assert.Equal(t, 3, store.Len())
	store.mu.Lock()
	_, evicted := store.conversations[DirectIdentity("user-1").Key()]
	_, kept := store.conversations[DirectIdentity("user-0").Key()]
	store.mu.Unlock()
	assert.False(t, evicted, "least recently active identity should be evicted")
	assert.True(t, kept)
}

func TestStore_TTLExpiryEvictsBothTiers(t *testing.T) {
	durable := newStubDurable()
	opts := DefaultStoreOptions()
	opts.Timeout = 10 * time.Millisecond
	store := newTestStore(durable, opts)

	id := DirectIdentity("user-1")
	store.Append(context.Background(), id, Message{Role: RoleUser, Content: "hi"})
	store.Close() // flush the durable write
	require.NotNil(t, durable.record(id.Key()))

	store.mu.Lock()
	store.conversations[id.Key()].lastActivity = time.Now().Add(-time.Minute)
	store.mu.Unlock()

	history := store.History(context.Background(), id)
	assert.Empty(t, history)
	assert.Nil(t, durable.record(id.Key()))
	assert.Equal(t, 0, store.Len())
}

func TestStore_LongTermMemoryLoad(t *testing.T) {
	durable := newStubDurable()
	id := DirectIdentity("user-1")
	durable.setRecord(id.Key(), &Record{
		UserID:    id.UserID,
		Scope:     id.Scope,
		Messages:  []Message{{Role: RoleUser, Content: "old"}, {Role: RoleAssistant, Content: "reply"}},
		UpdatedAt: time.Now(),
	})

	store := newTestStore(durable, DefaultStoreOptions())
	defer store.Close()

	history := store.History(context.Background(), id)
	require.Len(t, history, 2)
	assert.Equal(t, "old", history[0].Content)
	assert.Equal(t, 1, store.Len(), "loaded conversation should populate the memory tier")
}

func TestStore_LongTermMemoryDisabled(t *testing.T) {
	durable := newStubDurable()
	id := DirectIdentity("user-1")
	durable.setRecord(id.Key(), &Record{
		UserID: id.UserID, Scope: id.Scope,
		Messages:  []Message{{Role: RoleUser, Content: "old"}},
		UpdatedAt: time.Now(),
	})

	opts := DefaultStoreOptions()
	opts.LongTermMemory = false
	store := newTestStore(durable, opts)
	defer store.Close()

	assert.Empty(t, store.History(context.Background(), id))
}

func TestStore_StaleDurableRecordDiscarded(t *testing.T) {
	durable := newStubDurable()
	id := DirectIdentity("user-1")
	durable.setRecord(id.Key(), &Record{
		UserID: id.UserID, Scope: id.Scope,
		Messages:  []Message{{Role: RoleUser, Content: "old"}},
		UpdatedAt: time.Now().Add(-time.Hour),
	})

	opts := DefaultStoreOptions()
	opts.Timeout = time.Minute
	store := newTestStore(durable, opts)
	defer store.Close()

	assert.Empty(t, store.History(context.Background(), id))
	assert.Nil(t, durable.record(id.Key()), "stale durable record should be deleted")
}

func TestStore_Clear(t *testing.T) {
	durable := newStubDurable()
	store := newTestStore(durable, DefaultStoreOptions())
	defer store.Close()

	id := DirectIdentity("user-1")
	store.Append(context.Background(), id, Message{Role: RoleUser, Content: "hi"})

	require.NoError(t, store.Clear(context.Background(), id))
	assert.Empty(t, store.History(context.Background(), id))

	// Clearing an absent conversation is not an error
	require.NoError(t, store.Clear(context.Background(), DirectIdentity("nobody")))
}

func TestStore_SweepEvictsExpired(t *testing.T) {
	durable := newStubDurable()
	opts := DefaultStoreOptions()
	opts.Timeout = time.Minute
	store := newTestStore(durable, opts)

	fresh := DirectIdentity("fresh")
	stale := DirectIdentity("stale")
	store.Append(context.Background(), fresh, Message{Role: RoleUser, Content: "hi"})
	store.Append(context.Background(), stale, Message{Role: RoleUser, Content: "hi"})
	store.Close()

	store.mu.Lock()
	store.conversations[stale.Key()].lastActivity = time.Now().Add(-time.Hour)
	store.mu.Unlock()

	store.Sweep(context.Background())

	assert.Equal(t, 1, store.Len())
	assert.Nil(t, durable.record(stale.Key()))
	assert.NotNil(t, durable.record(fresh.Key()))
}

func TestIdentity_Key(t *testing.T) {
	assert.Equal(t, "u1:direct", DirectIdentity("u1").Key())
	assert.Equal(t, "u1:guild-9", Identity{UserID: "u1", Scope: "guild-9"}.Key())
	assert.Equal(t, "u1:direct", Identity{UserID: "u1"}.Key())
	assert.True(t, Identity{UserID: "u1"}.Direct())
	assert.False(t, Identity{UserID: "u1", Scope: "guild-9"}.Direct())
}
