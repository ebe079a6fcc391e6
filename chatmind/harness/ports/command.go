package harnessports

import "context"

// CommandRequest describes a delegated command invocation. Any
// user-visible side effect is produced by the command handler itself.
type CommandRequest struct {
	Name       string
	Subcommand string
	Options    map[string]any
	Actor      string // user id of the requester
	Scope      string // guild id, empty for DMs
}

// CommandResult is the handler's verdict.
type CommandResult struct {
	Success bool
	Error   string
}

// CommandExecutor runs delegated commands on behalf of the assistant.
type CommandExecutor interface {
	ExecuteCommand(ctx context.Context, req CommandRequest) (CommandResult, error)
}
