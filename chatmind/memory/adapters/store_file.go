package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ZanzyTHEbar/chatmind/chatmind/memory"
)

// FileDurableStore is a file-backed ledger: one JSON document per
// conversation under a data directory.
type FileDurableStore struct {
	dir string
}

// NewFileDurableStore creates the ledger directory if needed.
func NewFileDurableStore(dir string) (*FileDurableStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("could not create ledger directory %s: %w", dir, err)
	}
	return &FileDurableStore{dir: dir}, nil
}

// Load reads the record for the identity, or nil when absent.
func (s *FileDurableStore) Load(ctx context.Context, id memory.Identity) (*memory.Record, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read ledger entry: %w", err)
	}

	var rec memory.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ledger entry: %w", err)
	}
	return &rec, nil
}

// Save writes the record via a temp file and rename so readers never see
// a torn document.
func (s *FileDurableStore) Save(ctx context.Context, rec *memory.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal ledger entry: %w", err)
	}

	path := s.path(memory.Identity{UserID: rec.UserID, Scope: rec.Scope})
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write ledger entry: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to commit ledger entry: %w", err)
	}
	return nil
}

// Delete removes the record. Absence is not an error.
func (s *FileDurableStore) Delete(ctx context.Context, id memory.Identity) error {
	if err := os.Remove(s.path(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete ledger entry: %w", err)
	}
	return nil
}

func (s *FileDurableStore) path(id memory.Identity) string {
	name := strings.ReplaceAll(id.Key(), ":", "_") + ".json"
	return filepath.Join(s.dir, name)
}

// Ensure FileDurableStore implements the DurableStore interface.
var _ memory.DurableStore = (*FileDurableStore)(nil)
