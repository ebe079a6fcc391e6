package adapters

import (
	"context"
	"sync"

	"github.com/ZanzyTHEbar/chatmind/chatmind/memory"
)

// MemoryDurableStore keeps records in a process-local map. It backs the
// "memory" backend and tests.
type MemoryDurableStore struct {
	mu      sync.RWMutex
	records map[string]*memory.Record
}

// NewMemoryDurableStore creates an empty in-memory durable store.
func NewMemoryDurableStore() *MemoryDurableStore {
	return &MemoryDurableStore{records: make(map[string]*memory.Record)}
}

// Load returns the record for the identity, or nil when absent.
func (s *MemoryDurableStore) Load(ctx context.Context, id memory.Identity) (*memory.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id.Key()]
	if !ok {
		return nil, nil
	}
	out := *rec
	out.Messages = make([]memory.Message, len(rec.Messages))
	copy(out.Messages, rec.Messages)
	return &out, nil
}

// Save stores a copy of the record.
func (s *MemoryDurableStore) Save(ctx context.Context, rec *memory.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *rec
	stored.Messages = make([]memory.Message, len(rec.Messages))
	copy(stored.Messages, rec.Messages)
	s.records[memory.Identity{UserID: rec.UserID, Scope: rec.Scope}.Key()] = &stored
	return nil
}

// Delete removes the record. Absence is not an error.
func (s *MemoryDurableStore) Delete(ctx context.Context, id memory.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id.Key())
	return nil
}

// Ensure MemoryDurableStore implements the DurableStore interface.
var _ memory.DurableStore = (*MemoryDurableStore)(nil)
