package harness

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ZanzyTHEbar/chatmind/chatmind/config"
	"github.com/ZanzyTHEbar/chatmind/chatmind/harness/adapters"
	ports "github.com/ZanzyTHEbar/chatmind/chatmind/harness/ports"
	"github.com/ZanzyTHEbar/chatmind/chatmind/memory"
	memadapters "github.com/ZanzyTHEbar/chatmind/chatmind/memory/adapters"
)

// Collaborators are the external systems the harness consumes. Provider
// is required; the rest degrade to no-ops or explanatory results.
type Collaborators struct {
	Provider ports.Provider
	Renderer ports.ContextRenderer
	Fetcher  ports.Fetcher
	Bulk     ports.BulkFetcher
	Commands ports.CommandExecutor
	Deductor ports.UsageDeductor
}

// Factory creates and wires harness components from configuration.
type Factory struct {
	cfg    *config.Config
	db     *sql.DB // required for the libsql backend only
	logger zerolog.Logger
}

// NewFactory creates a new harness factory.
func NewFactory(cfg *config.Config, db *sql.DB, logger zerolog.Logger) *Factory {
	return &Factory{cfg: cfg, db: db, logger: logger}
}

// CreateOrchestrator creates a fully wired Orchestrator from config.
// The caller owns the returned store's lifecycle (Close on shutdown).
func (f *Factory) CreateOrchestrator(collab Collaborators) (*Orchestrator, *memory.Store, error) {
	if collab.Provider == nil {
		return nil, nil, fmt.Errorf("a model provider is required")
	}

	durable, err := f.createDurable()
	if err != nil {
		return nil, nil, err
	}

	tracer := f.createTracer()
	store := memory.NewStore(durable, memory.StoreOptions{
		MaxHistoryLength: f.cfg.Store.MaxHistoryLength,
		Timeout:          f.cfg.Store.Timeout,
		Capacity:         f.cfg.Store.Capacity,
		SweepInterval:    f.cfg.Store.SweepInterval,
		LongTermMemory:   f.cfg.Store.LongTermMemory,
	}, f.logger)
	store.StartSweeper()

	registry, err := NewRegistry()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build action registry: %w", err)
	}

	llmOpts := ports.Options{
		Temperature:  f.cfg.LLM.Temperature,
		MaxNewTokens: f.cfg.LLM.MaxNewTokens,
	}

	builder := NewPromptBuilder(store)
	parser := NewOutputParser()
	executor := NewExecutor(registry, collab.Fetcher, collab.Bulk, collab.Commands, tracer)
	requery := NewReQueryController(registry, collab.Provider, collab.Renderer, parser,
		collab.Deductor, tracer, f.requeryTimeout(), llmOpts)

	orchestrator := NewOrchestrator(store, registry, builder, parser, executor, requery,
		collab.Provider, collab.Renderer, collab.Deductor, tracer, llmOpts)

	return orchestrator, store, nil
}

// createDurable selects the durable backend once at startup.
func (f *Factory) createDurable() (memory.DurableStore, error) {
	switch f.cfg.Store.Backend {
	case "", "memory":
		return memadapters.NewMemoryDurableStore(), nil
	case "file":
		return memadapters.NewFileDurableStore(f.cfg.Store.DataDir)
	case "libsql":
		if f.db == nil {
			return nil, fmt.Errorf("libsql backend requires a database connection")
		}
		return memadapters.NewLibSQLDurableStore(f.db)
	default:
		return nil, fmt.Errorf("unknown store backend: %s", f.cfg.Store.Backend)
	}
}

func (f *Factory) createTracer() ports.Tracer {
	if !f.cfg.Harness.EnableTracing {
		return &noOpTracer{}
	}
	return adapters.NewZerologTracer(f.logger)
}

// requeryTimeout clamps the configured follow-up bound to a sane range.
func (f *Factory) requeryTimeout() time.Duration {
	timeout := f.cfg.Harness.RequeryTimeout
	if timeout < time.Second {
		f.logger.Warn().Dur("requery_timeout", timeout).Msg("RequeryTimeout clamped to minimum of 1s")
		timeout = time.Second
	}
	if timeout > 30*time.Second {
		f.logger.Warn().Dur("requery_timeout", timeout).Msg("RequeryTimeout clamped to maximum of 30s")
		timeout = 30 * time.Second
	}
	return timeout
}

// noOpTracer implements Tracer interface with no-op behavior.
type noOpTracer struct{}

func (t *noOpTracer) StartSpan(ctx context.Context, name string, attrs map[string]any) (context.Context, func(err error)) {
	return ctx, func(err error) {}
}

func (t *noOpTracer) Event(ctx context.Context, name string, attrs map[string]any) {}

// Ensure noOpTracer implements its interface.
var _ ports.Tracer = (*noOpTracer)(nil)
