package harnessports

import (
	"context"

	"github.com/ZanzyTHEbar/chatmind/chatmind/memory"
)

// ContextRenderer produces the system-context string for a conversation.
// forceFreshData requests inclusion of freshly fetched data after a
// triggering action ran.
type ContextRenderer interface {
	Render(ctx context.Context, id memory.Identity, forceFreshData bool) (string, error)
}
