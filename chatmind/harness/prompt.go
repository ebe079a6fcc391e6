package harness

import (
	"fmt"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/chatmind/chatmind/memory"
)

// Reminders appended to the current user turn. The action reminder is
// machine-readable guidance toward the structured response format.
const (
	actionFormatReminder = `Reminder: you must respond with the structured action format, a JSON object with "message" and "actions".`
	plainTextReminder    = `Reminder: reply in plain text unless you genuinely have actions to perform; only then use the structured action format.`
)

// PromptBuilder assembles the ordered prompt consumed by the model:
// system context, trimmed history, the current turn, and reminders.
type PromptBuilder struct {
	store *memory.Store
}

// NewPromptBuilder creates a builder over the conversation store.
func NewPromptBuilder(store *memory.Store) *PromptBuilder {
	return &PromptBuilder{store: store}
}

// BuildPrompt returns the message list for one model call.
//
// System message handling covers three cases: a cached summary followed
// by a system message (both kept, system refreshed in place), a leading
// system message (refreshed in place), or no system message yet
// (prepended). The refreshed copy is pushed to the in-memory tier only;
// the store's write path never persists system messages.
func (b *PromptBuilder) BuildPrompt(id memory.Identity, history []memory.Message, userText, systemContext, locale string, needsActionHint bool, now time.Time) []memory.Message {
	prompt := make([]memory.Message, len(history))
	copy(prompt, history)

	system := memory.Message{Role: memory.RoleSystem, Content: strings.TrimSpace(systemContext)}
	switch {
	case len(prompt) > 1 && prompt[0].IsSummary() && prompt[1].Role == memory.RoleSystem:
		prompt[1] = system
	case len(prompt) > 0 && prompt[0].Role == memory.RoleSystem:
		prompt[0] = system
	default:
		prompt = append([]memory.Message{system}, prompt...)
	}
	if b.store != nil {
		b.store.UpsertSystem(id, system.Content)
	}

	reminder := plainTextReminder
	if needsActionHint {
		reminder = actionFormatReminder
	}
	content := fmt.Sprintf("%s\n\n%s\n\n%s", timePreamble(now, locale), userText, reminder)
	return append(prompt, memory.Message{Role: memory.RoleUser, Content: content})
}

// timePreamble renders the localized date/time line ahead of the user
// text.
func timePreamble(now time.Time, locale string) string {
	if locale == "" {
		locale = "en-US"
	}
	return fmt.Sprintf("[Current date and time: %s | locale: %s]", now.Format("Monday, 2 January 2006 15:04 MST"), locale)
}
