package harness

import (
	"context"
	"strings"
	"time"

	ports "github.com/ZanzyTHEbar/chatmind/chatmind/harness/ports"
	"github.com/ZanzyTHEbar/chatmind/chatmind/memory"
)

// Compact history markers. They replace the assistant text in history
// after actions ran so the model does not retry a completed action on
// the next turn.
const (
	completedMarker           = "[Action completed successfully. Do not retry it.]"
	completedWithErrorsMarker = "[Actions completed with errors. Do not retry them.]"
)

// failureVocabulary drives the text-suppression heuristic: a delegated
// command that succeeded suppresses the model's own text unless the text
// admits a failure. Textual, not structural; kept for behavioral parity.
var failureVocabulary = []string{
	"fail", "error", "unable", "could not", "couldn't", "cannot",
	"sorry", "unfortunately", "problem", "issue",
}

// TurnOutcome is the resolved end state of one user turn after action
// execution and the optional follow-up call.
type TurnOutcome struct {
	Text           string // final text returned to the caller
	HistoryText    string // assistant entry recorded in history
	FollowUpIssued bool
}

// ReQueryController decides whether executed actions warrant the single,
// time-bounded follow-up model call, and folds results either way. It
// enforces the two-call bound: triggering actions emitted by the
// follow-up itself are logged and deliberately ignored.
type ReQueryController struct {
	registry *Registry
	provider ports.Provider
	renderer ports.ContextRenderer
	parser   *OutputParser
	deductor ports.UsageDeductor
	tracer   ports.Tracer
	timeout  time.Duration
	llmOpts  ports.Options
}

// NewReQueryController wires the controller.
func NewReQueryController(
	registry *Registry,
	provider ports.Provider,
	renderer ports.ContextRenderer,
	parser *OutputParser,
	deductor ports.UsageDeductor,
	tracer ports.Tracer,
	timeout time.Duration,
	llmOpts ports.Options,
) *ReQueryController {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &ReQueryController{
		registry: registry,
		provider: provider,
		renderer: renderer,
		parser:   parser,
		deductor: deductor,
		tracer:   tracer,
		timeout:  timeout,
		llmOpts:  llmOpts,
	}
}

// Resolve folds executed action results into the final response,
// issuing at most one follow-up model call when a triggering action ran.
func (c *ReQueryController) Resolve(ctx context.Context, id memory.Identity, turn TurnContext, history []memory.Message, firstPass ParsedResponse, actions []Action, results []string) TurnOutcome {
	if c.hasTriggering(actions) {
		return c.requery(ctx, id, turn, history, firstPass, results)
	}
	return c.fold(firstPass, results)
}

func (c *ReQueryController) hasTriggering(actions []Action) bool {
	for _, a := range actions {
		if c.registry.Triggering(a.Type) {
			return true
		}
	}
	return false
}

// fold resolves a turn without a follow-up call.
func (c *ReQueryController) fold(firstPass ParsedResponse, results []string) TurnOutcome {
	data, cmdOK, failures, status := classifyResults(results)

	text := firstPass.Message
	historyText := text

	if len(cmdOK) > 0 && len(failures) == 0 && !containsFailureVocabulary(text) {
		// The command handler already produced the user-visible effect;
		// the model's own narration tends to promise work it cannot
		// verify, so it is suppressed.
		text = strings.Join(cmdOK, "\n")
		historyText = completedMarker
	}

	if len(data) > 0 || len(status) > 0 {
		text = appendBlock(text, append(data, status...))
		if historyText != completedMarker {
			historyText = text
		}
	}

	if len(failures) > 0 {
		text = appendBlock(text, failures)
		historyText = completedWithErrorsMarker
	}

	return TurnOutcome{Text: text, HistoryText: historyText}
}

// requery issues the single follow-up model call, raced against the
// configured timeout. Any failure falls back to the unmodified
// first-pass text; there is no retry.
func (c *ReQueryController) requery(ctx context.Context, id memory.Identity, turn TurnContext, history []memory.Message, firstPass ParsedResponse, results []string) TurnOutcome {
	fallback := TurnOutcome{Text: firstPass.Message, HistoryText: firstPass.Message, FollowUpIssued: true}

	systemContext := turn.SystemContext
	if c.renderer != nil {
		if fresh, err := c.renderer.Render(ctx, id, true); err == nil {
			systemContext = fresh
		} else {
			c.tracer.Event(ctx, "context_render_failed", map[string]any{"error": err.Error()})
		}
	}

	prompt := c.buildFollowUpPrompt(history, turn, firstPass.Message, systemContext, results)

	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	type genOut struct {
		comp ports.Completion
		err  error
	}
	ch := make(chan genOut, 1)
	go func() {
		comp, err := c.provider.Generate(cctx, prompt, c.llmOpts)
		ch <- genOut{comp: comp, err: err}
	}()

	var comp ports.Completion
	select {
	case out := <-ch:
		if out.err != nil {
			c.tracer.Event(ctx, "requery_failed", map[string]any{"error": out.err.Error()})
			return fallback
		}
		comp = out.comp
	case <-cctx.Done():
		// The in-flight call is abandoned best-effort; the first-pass
		// response stands.
		c.tracer.Event(ctx, "requery_timeout", map[string]any{"timeout": c.timeout.String()})
		return fallback
	}

	parsed := c.parser.Parse(comp.Text)
	if c.hasTriggering(parsed.Actions) {
		// At most two model calls per user turn, regardless of what the
		// model asks for.
		c.tracer.Event(ctx, "requery_actions_ignored", map[string]any{"count": len(parsed.Actions)})
	}
	if parsed.Message == "" {
		return fallback
	}

	if parsed.Message != firstPass.Message && c.deductor != nil {
		usage := ports.Usage{}
		if comp.Usage != nil {
			usage = *comp.Usage
		}
		if err := c.deductor.Deduct(ctx, turn.UserID, usage, "requery"); err != nil {
			c.tracer.Event(ctx, "deduct_failed", map[string]any{"error": err.Error()})
		}
	}

	return TurnOutcome{Text: parsed.Message, HistoryText: parsed.Message, FollowUpIssued: true}
}

// buildFollowUpPrompt reassembles the conversation for the follow-up
// call: refreshed system context, history, the original user turn, the
// first-pass text, and the synthesized follow-up instruction.
func (c *ReQueryController) buildFollowUpPrompt(history []memory.Message, turn TurnContext, firstPassText, systemContext string, results []string) []memory.Message {
	prompt := make([]memory.Message, 0, len(history)+4)
	prompt = append(prompt, memory.Message{Role: memory.RoleSystem, Content: systemContext})
	for _, m := range history {
		if m.Role != memory.RoleSystem {
			prompt = append(prompt, m)
		}
	}
	prompt = append(prompt,
		memory.Message{Role: memory.RoleUser, Content: turn.UserText},
		memory.Message{Role: memory.RoleAssistant, Content: firstPassText},
		memory.Message{Role: memory.RoleUser, Content: followUpInstruction(results)},
	)
	return prompt
}

// followUpInstruction frames the executed results as success or failure
// for the second call.
func followUpInstruction(results []string) string {
	_, _, failures, _ := classifyResults(results)
	block := "- " + strings.Join(results, "\n- ")
	if len(failures) > 0 {
		return "Some of the requested actions failed:\n" + block +
			"\nAcknowledge the failure, explain what went wrong, and suggest what the user can do next. Do not request these actions again."
	}
	return "The requested actions completed with these results:\n" + block +
		"\nUse this fresh information to give the user a complete, final answer. Do not request these actions again."
}

// classifyResults partitions result strings by their literal prefix into
// data results, successful command results, failures, and neutral status
// strings (bulk confirmations, not-found notices).
func classifyResults(results []string) (data, cmdOK, failures, status []string) {
	for _, r := range results {
		switch {
		case strings.HasPrefix(r, PrefixData) || strings.HasPrefix(r, PrefixFound):
			data = append(data, r)
		case strings.HasPrefix(r, PrefixCommandResult):
			cmdOK = append(cmdOK, r)
		case strings.HasPrefix(r, PrefixCommandError) || strings.HasPrefix(r, PrefixError),
			strings.HasPrefix(r, "Unknown action type:"),
			strings.Contains(r, "requires a server context"):
			failures = append(failures, r)
		default:
			status = append(status, r)
		}
	}
	return data, cmdOK, failures, status
}

func containsFailureVocabulary(text string) bool {
	lower := strings.ToLower(text)
	for _, word := range failureVocabulary {
		if strings.Contains(lower, word) {
			return true
		}
	}
	return false
}

func appendBlock(text string, lines []string) string {
	block := strings.Join(lines, "\n")
	if strings.TrimSpace(text) == "" {
		return block
	}
	return text + "\n\n" + block
}
