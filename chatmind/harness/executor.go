package harness

import (
	"context"
	"fmt"
	"strings"

	ports "github.com/ZanzyTHEbar/chatmind/chatmind/harness/ports"
)

// Result string prefixes. This is a hard contract: the re-query
// controller and the history-writing logic classify results by these
// literal prefixes.
const (
	PrefixData          = "Data: "
	PrefixFound         = "Found: "
	PrefixCommandResult = "Command Result: "
	PrefixCommandError  = "Command Error: "
	PrefixError         = "Error: "
)

// TurnContext carries one user turn through action execution.
type TurnContext struct {
	UserID        string
	Scope         string // guild id, empty for DMs
	UserText      string
	Locale        string
	WantsDetail   bool
	SystemContext string
}

// Executor dispatches validated actions to their handlers. A failing
// action never aborts the batch; every failure is converted to a result
// string carrying the literal action type.
type Executor struct {
	registry *Registry
	fetcher  ports.Fetcher
	bulk     ports.BulkFetcher
	commands ports.CommandExecutor
	tracer   ports.Tracer
}

// NewExecutor creates an executor over the given collaborator ports.
// Nil ports degrade to explanatory result strings.
func NewExecutor(registry *Registry, fetcher ports.Fetcher, bulk ports.BulkFetcher, commands ports.CommandExecutor, tracer ports.Tracer) *Executor {
	return &Executor{
		registry: registry,
		fetcher:  fetcher,
		bulk:     bulk,
		commands: commands,
		tracer:   tracer,
	}
}

// Execute runs every action in order and returns one result string per
// action.
func (e *Executor) Execute(ctx context.Context, actions []Action, turn TurnContext) []string {
	results := make([]string, 0, len(actions))
	for _, action := range actions {
		results = append(results, e.executeOne(ctx, action, turn))
	}
	return results
}

// executeOne handles a single action, converting every failure mode
// (validation, missing scope, dispatch error, panic) into a result
// string.
func (e *Executor) executeOne(ctx context.Context, action Action, turn TurnContext) (result string) {
	defer func() {
		if r := recover(); r != nil {
			result = fmt.Sprintf("%saction %s failed: %v", PrefixError, action.Type, r)
			if e.tracer != nil {
				e.tracer.Event(ctx, "action_panic", map[string]any{"type": action.Type, "panic": fmt.Sprint(r)})
			}
		}
	}()

	if err := e.registry.Validate(action); err != nil {
		return fmt.Sprintf("%s%v", PrefixError, err)
	}

	if turn.Scope == "" && e.registry.RequiresScope(action.Type) {
		return fmt.Sprintf("%s requires a server context (cannot be used in DMs)", action.Type)
	}

	spec, registered := e.registry.Spec(action.Type)
	if !registered {
		return e.dynamicFallback(ctx, action, turn)
	}

	switch spec.Kind {
	case KindFetch:
		return e.fetch(ctx, action, turn, PrefixData)
	case KindSearch:
		return e.fetch(ctx, action, turn, PrefixFound)
	case KindBulk:
		return e.bulkFetch(ctx, action, turn)
	case KindCommand:
		return e.command(ctx, action, turn)
	default:
		return fmt.Sprintf("Unknown action type: %s", action.Type)
	}
}

func (e *Executor) fetch(ctx context.Context, action Action, turn TurnContext, prefix string) string {
	if e.fetcher == nil {
		return fmt.Sprintf("%sno data source is available for %s", PrefixError, action.Type)
	}
	res, err := e.fetcher.Fetch(ctx, turn.Scope, action.Type, action.Options)
	if err != nil {
		return fmt.Sprintf("%s%s failed: %v", PrefixError, action.Type, err)
	}
	if !res.Found {
		return fmt.Sprintf("%s found no matching data", action.Type)
	}
	return prefix + res.Text
}

func (e *Executor) bulkFetch(ctx context.Context, action Action, turn TurnContext) string {
	if e.bulk == nil {
		return fmt.Sprintf("%sno bulk data source is available for %s", PrefixError, action.Type)
	}
	if err := e.bulk.Prefetch(ctx, turn.Scope, action.Type); err != nil {
		return fmt.Sprintf("%s%s failed: %v", PrefixError, action.Type, err)
	}
	return fmt.Sprintf("%s started in the background; fresh data will be available shortly", action.Type)
}

func (e *Executor) command(ctx context.Context, action Action, turn TurnContext) string {
	if e.commands == nil {
		return fmt.Sprintf("%sno command executor is available", PrefixCommandError)
	}
	name, subcommand := action.CommandParts()
	if name == "" {
		return fmt.Sprintf("%s%s is missing the command descriptor", PrefixError, action.Type)
	}

	res, err := e.commands.ExecuteCommand(ctx, ports.CommandRequest{
		Name:       name,
		Subcommand: subcommand,
		Options:    action.Options,
		Actor:      turn.UserID,
		Scope:      turn.Scope,
	})
	if err != nil {
		return fmt.Sprintf("%s%s: %v. %s", PrefixCommandError, action.Command, err, commandGuidance(err.Error()))
	}
	if !res.Success {
		return fmt.Sprintf("%s%s: %s. %s", PrefixCommandError, action.Command, res.Error, commandGuidance(res.Error))
	}
	return fmt.Sprintf("%s%s executed successfully", PrefixCommandResult, action.Command)
}

// dynamicFallback tries the generic fetch handler for unregistered tags
// before giving up on the type.
func (e *Executor) dynamicFallback(ctx context.Context, action Action, turn TurnContext) string {
	if e.fetcher != nil {
		res, err := e.fetcher.Fetch(ctx, turn.Scope, action.Type, action.Options)
		if err == nil && res.Found {
			return PrefixData + res.Text
		}
		if err == nil && e.registry.IsDynamicFetch(action.Type) {
			return fmt.Sprintf("%s found no matching data", action.Type)
		}
	}
	return fmt.Sprintf("Unknown action type: %s", action.Type)
}

// commandGuidance maps known failure categories to remediation text the
// user can act on.
func commandGuidance(errText string) string {
	lower := strings.ToLower(errText)
	switch {
	case strings.Contains(lower, "permission") || strings.Contains(lower, "not allowed") || strings.Contains(lower, "forbidden"):
		return "The bot lacks the required permissions; ask a server administrator to review the bot's role."
	case strings.Contains(lower, "subcommand"):
		return "That subcommand was not recognized; check the command's available subcommands."
	case strings.Contains(lower, "invalid user") || strings.Contains(lower, "user not found") || strings.Contains(lower, "unknown member"):
		return "The referenced user could not be resolved; use an exact mention or user ID."
	case strings.Contains(lower, "required option") || strings.Contains(lower, "missing option") || strings.Contains(lower, "missing required"):
		return "A required option was missing; include every required option for this command."
	default:
		return "The command could not be completed; verify the inputs and try again."
	}
}
