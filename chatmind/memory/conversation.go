package memory

import (
	"strings"
	"time"

	internal "github.com/ZanzyTHEbar/chatmind/chatmind"
)

// Message roles understood by the prompt pipeline.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// SummaryMarker prefixes an assistant message that holds a cached
// conversation summary. Summaries sit ahead of the system message and
// survive system-context refreshes.
const SummaryMarker = "[Conversation summary] "

// Message is a single entry of a conversation history.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// IsSummary reports whether the message holds a cached summary.
func (m Message) IsSummary() bool {
	return m.Role == RoleAssistant && strings.HasPrefix(m.Content, SummaryMarker)
}

// Identity is the composite key of one conversation: user plus scope
// (a guild identity, or the direct sentinel for DMs).
type Identity struct {
	UserID string
	Scope  string
}

// DirectIdentity returns the identity of a user's DM conversation.
func DirectIdentity(userID string) Identity {
	return Identity{UserID: userID, Scope: internal.DirectScope}
}

// Direct reports whether the conversation is held outside any guild.
func (id Identity) Direct() bool {
	return id.Scope == "" || id.Scope == internal.DirectScope
}

// Key returns the map/storage key for the identity.
func (id Identity) Key() string {
	scope := id.Scope
	if scope == "" {
		scope = internal.DirectScope
	}
	return id.UserID + ":" + scope
}

// conversation is the in-memory tier entry for one identity.
type conversation struct {
	messages     []Message
	lastActivity time.Time
}

// snapshot returns a defensive copy of the message slice.
func (c *conversation) snapshot() []Message {
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}
