package harness

import (
	"context"
	"sync"

	ports "github.com/ZanzyTHEbar/chatmind/chatmind/harness/ports"
	"github.com/ZanzyTHEbar/chatmind/chatmind/memory"
)

// StubProvider implements Provider for testing.
type StubProvider struct {
	mu           sync.Mutex
	generateFunc func(ctx context.Context, prompt []memory.Message, opts ports.Options) (ports.Completion, error)
	calls        int
	prompts      [][]memory.Message
}

func (p *StubProvider) Generate(ctx context.Context, prompt []memory.Message, opts ports.Options) (ports.Completion, error) {
	p.mu.Lock()
	p.calls++
	p.prompts = append(p.prompts, prompt)
	p.mu.Unlock()
	if p.generateFunc != nil {
		return p.generateFunc(ctx, prompt, opts)
	}
	return ports.Completion{
		Text:  "stub completion",
		Usage: &ports.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}, nil
}

func (p *StubProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// stubFetcher implements Fetcher for testing.
type stubFetcher struct {
	fetchFunc func(ctx context.Context, scope, kind string, options map[string]any) (ports.FetchResult, error)
}

func (f *stubFetcher) Fetch(ctx context.Context, scope, kind string, options map[string]any) (ports.FetchResult, error) {
	if f.fetchFunc != nil {
		return f.fetchFunc(ctx, scope, kind, options)
	}
	return ports.FetchResult{}, nil
}

// stubBulkFetcher implements BulkFetcher for testing.
type stubBulkFetcher struct {
	calls int
	err   error
}

func (b *stubBulkFetcher) Prefetch(ctx context.Context, scope, kind string) error {
	b.calls++
	return b.err
}

// stubCommandExecutor implements CommandExecutor for testing.
type stubCommandExecutor struct {
	result   ports.CommandResult
	err      error
	requests []ports.CommandRequest
}

func (c *stubCommandExecutor) ExecuteCommand(ctx context.Context, req ports.CommandRequest) (ports.CommandResult, error) {
	c.requests = append(c.requests, req)
	return c.result, c.err
}

// stubRenderer implements ContextRenderer for testing.
type stubRenderer struct {
	content    string
	forceCalls int
}

func (r *stubRenderer) Render(ctx context.Context, id memory.Identity, forceFreshData bool) (string, error) {
	if forceFreshData {
		r.forceCalls++
	}
	return r.content, nil
}

// stubDeductor implements UsageDeductor for testing.
type stubDeductor struct {
	mu    sync.Mutex
	calls []string // reasons
}

func (d *stubDeductor) Deduct(ctx context.Context, userID string, usage ports.Usage, reason string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, reason)
	return nil
}

func (d *stubDeductor) reasons() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.calls))
	copy(out, d.calls)
	return out
}

// Ensure all stubs implement their interfaces.
var (
	_ ports.Provider        = (*StubProvider)(nil)
	_ ports.Fetcher         = (*stubFetcher)(nil)
	_ ports.BulkFetcher     = (*stubBulkFetcher)(nil)
	_ ports.CommandExecutor = (*stubCommandExecutor)(nil)
	_ ports.ContextRenderer = (*stubRenderer)(nil)
	_ ports.UsageDeductor   = (*stubDeductor)(nil)
)

func mustRegistry() *Registry {
	r, err := NewRegistry()
	if err != nil {
		panic(err)
	}
	return r
}
