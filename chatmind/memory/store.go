package memory

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
)

// StoreOptions bound the in-memory tier.
type StoreOptions struct {
	MaxHistoryLength int           // non-system messages kept per conversation
	Timeout          time.Duration // idle TTL before eviction from both tiers
	Capacity         int           // max distinct identities held in memory
	SweepInterval    time.Duration // period of the TTL sweeper
	LongTermMemory   bool          // load missing conversations from the durable tier
}

// DefaultStoreOptions returns sensible defaults.
func DefaultStoreOptions() StoreOptions {
	return StoreOptions{
		MaxHistoryLength: 20,
		Timeout:          30 * time.Minute,
		Capacity:         1000,
		SweepInterval:    5 * time.Minute,
		LongTermMemory:   true,
	}
}

// Store is the two-tier conversation store: an authoritative in-memory
// map in front of a durable backend. Durable writes are asynchronous and
// last-write-wins; the memory tier is authoritative for active sessions.
//
// The mutex guards map and slice integrity only. Two concurrent turns
// for the same identity are not serialized; callers should avoid issuing
// them (accepted, documented race).
type Store struct {
	mu            sync.Mutex
	conversations map[string]*conversation

	durable DurableStore
	opts    StoreOptions
	logger  zerolog.Logger

	writes  conc.WaitGroup
	stopped chan struct{}
	once    sync.Once
}

// NewStore creates a conversation store over the given durable backend.
func NewStore(durable DurableStore, opts StoreOptions, logger zerolog.Logger) *Store {
	if opts.MaxHistoryLength <= 0 {
		opts.MaxHistoryLength = DefaultStoreOptions().MaxHistoryLength
	}
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultStoreOptions().Capacity
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultStoreOptions().Timeout
	}
	return &Store{
		conversations: make(map[string]*conversation),
		durable:       durable,
		opts:          opts,
		logger:        logger,
		stopped:       make(chan struct{}),
	}
}

// History returns a copy of the conversation for the identity. A
// conversation idle past the timeout is evicted from both tiers and an
// empty history is returned. When the memory tier misses and long-term
// memory is enabled, the durable record is loaded, freshness-checked,
// and promoted into memory.
func (s *Store) History(ctx context.Context, id Identity) []Message {
	key := id.Key()
	now := time.Now()

	s.mu.Lock()
	if c, ok := s.conversations[key]; ok {
		if now.Sub(c.lastActivity) > s.opts.Timeout {
			delete(s.conversations, key)
			s.mu.Unlock()
			s.deleteDurable(ctx, id)
			return nil
		}
		out := c.snapshot()
		s.mu.Unlock()
		return out
	}
	s.mu.Unlock()

	if !s.opts.LongTermMemory {
		return nil
	}

	rec, err := s.durable.Load(ctx, id)
	if err != nil {
		s.logger.Warn().Err(err).Str("conversation", key).Msg("durable load failed")
		return nil
	}
	if rec == nil {
		return nil
	}
	if now.Sub(rec.UpdatedAt) > s.opts.Timeout {
		s.deleteDurable(ctx, id)
		return nil
	}

	msgs := make([]Message, len(rec.Messages))
	copy(msgs, rec.Messages)

	s.mu.Lock()
	s.evictForCapacityLocked(key)
	s.conversations[key] = &conversation{messages: msgs, lastActivity: now}
	out := s.conversations[key].snapshot()
	s.mu.Unlock()
	return out
}

// Append adds a message to the conversation.
//
// System messages are upserted in place at index 0, in memory only, and
// are never queued for a durable write. Non-system messages are pushed,
// the history is trimmed to the optional system message plus the last
// MaxHistoryLength entries, and the non-system slice is persisted
// asynchronously; persistence failures are logged, never surfaced.
func (s *Store) Append(ctx context.Context, id Identity, msg Message) {
	key := id.Key()
	now := time.Now()

	s.mu.Lock()
	c, ok := s.conversations[key]
	if !ok {
		s.evictForCapacityLocked(key)
		c = &conversation{}
		s.conversations[key] = c
	}
	c.lastActivity = now

	if msg.Role == RoleSystem {
		if len(c.messages) > 0 && c.messages[0].Role == RoleSystem {
			c.messages[0] = msg
		} else {
			c.messages = append([]Message{msg}, c.messages...)
		}
		s.mu.Unlock()
		return
	}

	c.messages = append(c.messages, msg)
	c.trim(s.opts.MaxHistoryLength)
	persisted := nonSystem(c.messages)
	s.mu.Unlock()

	s.writes.Go(func() {
		// Not awaited by the turn's critical path; last-write-wins races
		// between rapid turns for one identity are accepted.
		if err := s.durable.Save(context.Background(), &Record{
			UserID:    id.UserID,
			Scope:     id.Scope,
			Messages:  persisted,
			UpdatedAt: now,
		}); err != nil {
			s.logger.Warn().Err(err).Str("conversation", key).Msg("durable write failed")
		}
	})
}

// UpsertSystem refreshes the in-memory system message without touching
// the durable tier.
func (s *Store) UpsertSystem(id Identity, content string) {
	s.Append(context.Background(), id, Message{Role: RoleSystem, Content: content})
}

// Clear removes the conversation from both tiers. Absence is not an
// error.
func (s *Store) Clear(ctx context.Context, id Identity) error {
	s.mu.Lock()
	delete(s.conversations, id.Key())
	s.mu.Unlock()
	return s.durable.Delete(ctx, id)
}

// Len reports the number of identities resident in the memory tier.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conversations)
}

// StartSweeper launches the periodic TTL sweep. It stops when Close is
// called.
func (s *Store) StartSweeper() {
	interval := s.opts.SweepInterval
	if interval <= 0 {
		interval = DefaultStoreOptions().SweepInterval
	}
	s.writes.Go(func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stopped:
				return
			case <-ticker.C:
				s.Sweep(context.Background())
			}
		}
	})
}

// Sweep evicts every memory entry idle past the timeout, from both
// tiers.
func (s *Store) Sweep(ctx context.Context) {
	now := time.Now()
	var expired []Identity

	s.mu.Lock()
	for key, c := range s.conversations {
		if now.Sub(c.lastActivity) > s.opts.Timeout {
			delete(s.conversations, key)
			expired = append(expired, identityFromKey(key))
		}
	}
	s.mu.Unlock()

	for _, id := range expired {
		s.deleteDurable(ctx, id)
	}
	if len(expired) > 0 {
		s.logger.Debug().Int("evicted", len(expired)).Msg("swept expired conversations")
	}
}

// Close stops the sweeper and waits for in-flight durable writes.
func (s *Store) Close() {
	s.once.Do(func() { close(s.stopped) })
	s.writes.Wait()
}

// evictForCapacityLocked makes room for a new identity by evicting the
// one with the smallest lastActivity. Capacity eviction touches the
// memory tier only; the durable record stays.
func (s *Store) evictForCapacityLocked(incoming string) {
	if _, exists := s.conversations[incoming]; exists {
		return
	}
	for len(s.conversations) >= s.opts.Capacity {
		oldestKey := ""
		var oldest time.Time
		for key, c := range s.conversations {
			if oldestKey == "" || c.lastActivity.Before(oldest) {
				oldestKey = key
				oldest = c.lastActivity
			}
		}
		if oldestKey == "" {
			return
		}
		delete(s.conversations, oldestKey)
		s.logger.Debug().Str("conversation", oldestKey).Msg("evicted for capacity")
	}
}

func (s *Store) deleteDurable(ctx context.Context, id Identity) {
	if err := s.durable.Delete(ctx, id); err != nil {
		s.logger.Warn().Err(err).Str("conversation", id.Key()).Msg("durable delete failed")
	}
}

// trim keeps the optional leading system message plus the last n
// non-system entries.
func (c *conversation) trim(n int) {
	var system *Message
	rest := c.messages
	if len(rest) > 0 && rest[0].Role == RoleSystem {
		system = &rest[0]
		rest = rest[1:]
	}
	if len(rest) > n {
		rest = rest[len(rest)-n:]
	}
	out := make([]Message, 0, len(rest)+1)
	if system != nil {
		out = append(out, *system)
	}
	out = append(out, rest...)
	c.messages = out
}

// nonSystem copies the durable slice of a history. Persistence of
// system-role messages is excluded here, in the single write path.
func nonSystem(msgs []Message) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role != RoleSystem {
			out = append(out, m)
		}
	}
	return out
}

func identityFromKey(key string) Identity {
	for i := len(key) - 1; i >= 0; i-- {
		if key[i] == ':' {
			return Identity{UserID: key[:i], Scope: key[i+1:]}
		}
	}
	return Identity{UserID: key}
}
