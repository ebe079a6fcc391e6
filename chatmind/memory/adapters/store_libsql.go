package adapters

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"

	"github.com/ZanzyTHEbar/chatmind/chatmind/memory"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// LibSQLDurableStore implements the document-store durable backend over
// an embedded libsql database.
type LibSQLDurableStore struct {
	db *sql.DB
}

// NewLibSQLDurableStore migrates the schema and returns the store.
func NewLibSQLDurableStore(db *sql.DB) (*LibSQLDurableStore, error) {
	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return nil, fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return nil, fmt.Errorf("failed to run goose migrations: %w", err)
	}
	return &LibSQLDurableStore{db: db}, nil
}

// Load returns the record for the identity, or nil when absent.
func (s *LibSQLDurableStore) Load(ctx context.Context, id memory.Identity) (*memory.Record, error) {
	query := `
		SELECT id, user_id, scope, messages_json, updated_at
		FROM conversations
		WHERE conversation_key = ?
	`

	var rec memory.Record
	var messagesJSON string
	err := s.db.QueryRowContext(ctx, query, id.Key()).Scan(
		&rec.ID,
		&rec.UserID,
		&rec.Scope,
		&messagesJSON,
		&rec.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query conversation: %w", err)
	}

	if err := json.Unmarshal([]byte(messagesJSON), &rec.Messages); err != nil {
		return nil, fmt.Errorf("failed to unmarshal messages: %w", err)
	}
	return &rec, nil
}

// Save upserts the record by conversation key. Concurrent saves for one
// identity are last-write-wins.
func (s *LibSQLDurableStore) Save(ctx context.Context, rec *memory.Record) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}

	messagesJSON, err := json.Marshal(rec.Messages)
	if err != nil {
		return fmt.Errorf("failed to marshal messages: %w", err)
	}

	query := `
		INSERT INTO conversations (id, conversation_key, user_id, scope, messages_json, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(conversation_key) DO UPDATE SET
			messages_json = excluded.messages_json,
			updated_at = excluded.updated_at
	`

	key := memory.Identity{UserID: rec.UserID, Scope: rec.Scope}.Key()
	_, err = s.db.ExecContext(ctx, query,
		rec.ID,
		key,
		rec.UserID,
		rec.Scope,
		string(messagesJSON),
		rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save conversation: %w", err)
	}
	return nil
}

// Delete removes the record. Absence is not an error.
func (s *LibSQLDurableStore) Delete(ctx context.Context, id memory.Identity) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM conversations WHERE conversation_key = ?", id.Key())
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	return nil
}

// Ensure LibSQLDurableStore implements the DurableStore interface.
var _ memory.DurableStore = (*LibSQLDurableStore)(nil)
