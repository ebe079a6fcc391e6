package harness

import (
	"context"
	"fmt"
	"strings"
	"time"

	ports "github.com/ZanzyTHEbar/chatmind/chatmind/harness/ports"
	"github.com/ZanzyTHEbar/chatmind/chatmind/memory"
)

// actionIntentKeywords marks user turns that likely need side effects,
// so the prompt carries the structured-format reminder up front.
var actionIntentKeywords = []string{
	"create", "make", "set up", "assign", "remove", "delete", "kick",
	"ban", "mute", "rename", "generate", "poll", "role", "schedule",
}

// Orchestrator is the exposed surface of the memory-and-orchestration
// layer: one bounded turn per GenerateResponse call, at most two model
// calls regardless of what the model asks for.
type Orchestrator struct {
	store    *memory.Store
	registry *Registry
	builder  *PromptBuilder
	parser   *OutputParser
	executor *Executor
	requery  *ReQueryController
	provider ports.Provider
	renderer ports.ContextRenderer
	deductor ports.UsageDeductor
	tracer   ports.Tracer
	llmOpts  ports.Options
}

// NewOrchestrator creates an orchestrator with dependencies.
func NewOrchestrator(
	store *memory.Store,
	registry *Registry,
	builder *PromptBuilder,
	parser *OutputParser,
	executor *Executor,
	requery *ReQueryController,
	provider ports.Provider,
	renderer ports.ContextRenderer,
	deductor ports.UsageDeductor,
	tracer ports.Tracer,
	llmOpts ports.Options,
) *Orchestrator {
	return &Orchestrator{
		store:    store,
		registry: registry,
		builder:  builder,
		parser:   parser,
		executor: executor,
		requery:  requery,
		provider: provider,
		renderer: renderer,
		deductor: deductor,
		tracer:   tracer,
		llmOpts:  llmOpts,
	}
}

// GenerateResponse runs one user turn to completion: prompt assembly,
// the first model call, action validation/execution, the optional
// bounded follow-up, and history recording. The only error that
// propagates is a failure of the first-pass model call; everything else
// is recovered into the returned text or logged.
func (o *Orchestrator) GenerateResponse(ctx context.Context, userID, scopeID, userText, locale string) (string, error) {
	id := memory.Identity{UserID: userID, Scope: scopeID}
	if scopeID == "" {
		id = memory.DirectIdentity(userID)
	}

	ctx, finish := o.tracer.StartSpan(ctx, "generate_response", map[string]any{
		"conversation": id.Key(),
	})

	history := o.store.History(ctx, id)

	systemContext := ""
	if o.renderer != nil {
		rendered, err := o.renderer.Render(ctx, id, false)
		if err != nil {
			o.tracer.Event(ctx, "context_render_failed", map[string]any{"error": err.Error()})
		} else {
			systemContext = rendered
		}
	}

	turn := TurnContext{
		UserID:        userID,
		Scope:         guildScope(id),
		UserText:      userText,
		Locale:        locale,
		WantsDetail:   wantsDetail(userText),
		SystemContext: systemContext,
	}

	opts := o.llmOpts
	opts.StructuredActions = true
	prompt := o.builder.BuildPrompt(id, history, userText, systemContext, locale, detectActionIntent(userText), time.Now())

	completion, err := o.provider.Generate(ctx, prompt, opts)
	if err != nil {
		finish(err)
		return "", fmt.Errorf("model call failed: %w", err)
	}
	o.deductUsage(ctx, userID, completion.Usage, "chat")

	parsed := o.parser.Parse(completion.Text)

	// The raw user turn goes into history; the preamble-wrapped copy is
	// prompt-only.
	o.store.Append(ctx, id, memory.Message{Role: memory.RoleUser, Content: userText})

	if len(parsed.Actions) == 0 {
		o.store.Append(ctx, id, memory.Message{Role: memory.RoleAssistant, Content: parsed.Message})
		finish(nil)
		return parsed.Message, nil
	}

	results := o.executor.Execute(ctx, parsed.Actions, turn)
	outcome := o.requery.Resolve(ctx, id, turn, history, parsed, parsed.Actions, results)

	o.store.Append(ctx, id, memory.Message{Role: memory.RoleAssistant, Content: outcome.HistoryText})
	finish(nil)
	return outcome.Text, nil
}

// ClearHistory destroys the conversation in both tiers.
func (o *Orchestrator) ClearHistory(ctx context.Context, userID, scopeID string) error {
	id := memory.Identity{UserID: userID, Scope: scopeID}
	if scopeID == "" {
		id = memory.DirectIdentity(userID)
	}
	return o.store.Clear(ctx, id)
}

func (o *Orchestrator) deductUsage(ctx context.Context, userID string, usage *ports.Usage, reason string) {
	if o.deductor == nil {
		return
	}
	u := ports.Usage{}
	if usage != nil {
		u = *usage
	}
	if err := o.deductor.Deduct(ctx, userID, u, reason); err != nil {
		o.tracer.Event(ctx, "deduct_failed", map[string]any{"error": err.Error(), "reason": reason})
	}
}

// guildScope returns the guild id for the executor, empty for DMs.
func guildScope(id memory.Identity) string {
	if id.Direct() {
		return ""
	}
	return id.Scope
}

func detectActionIntent(userText string) bool {
	lower := strings.ToLower(userText)
	for _, kw := range actionIntentKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func wantsDetail(userText string) bool {
	lower := strings.ToLower(userText)
	return strings.Contains(lower, "detail") || strings.Contains(lower, "verbose")
}
