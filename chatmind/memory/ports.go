package memory

import (
	"context"
	"time"
)

// Record is the durable-tier document for one conversation. It never
// contains system-role messages; the store's write path filters them.
type Record struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Scope     string    `json:"scope"`
	Messages  []Message `json:"messages"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DurableStore persists conversation records. Implementations: an
// in-memory map, a file-backed ledger, or a libsql document store.
// Selected once at startup; not switchable at runtime.
type DurableStore interface {
	Load(ctx context.Context, id Identity) (*Record, error) // nil, nil when absent
	Save(ctx context.Context, rec *Record) error
	Delete(ctx context.Context, id Identity) error // no error when absent
}
