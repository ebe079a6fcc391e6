package harnessports

import "context"

// FetchResult is the outcome of a read-only lookup.
type FetchResult struct {
	Text  string
	Found bool
}

// Fetcher resolves informational fetch actions (server info, role info,
// member search, and forward-compatible dynamic fetch kinds).
type Fetcher interface {
	Fetch(ctx context.Context, scope, kind string, options map[string]any) (FetchResult, error)
}

// BulkFetcher triggers background population of larger data sets (for
// example a member cache) and returns immediately.
type BulkFetcher interface {
	Prefetch(ctx context.Context, scope, kind string) error
}
