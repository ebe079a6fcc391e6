package harnessports

import (
	"context"

	"github.com/ZanzyTHEbar/chatmind/chatmind/memory"
)

// Options controls sampling, limits, and the response format of a model
// call.
type Options struct {
	MaxNewTokens int
	Temperature  float32
	// StructuredActions requests the structured (action-bearing) response
	// format instead of free text.
	StructuredActions bool
}

// Usage captures token accounting for cost/telemetry.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Completion is the provider's response.
type Completion struct {
	Text  string
	Usage *Usage // optional usage information
}

// Provider is the abstraction for the language model backend.
type Provider interface {
	Generate(ctx context.Context, prompt []memory.Message, opts Options) (Completion, error)
}
