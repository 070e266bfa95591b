package hooks

import (
	"os"

	"github.com/cowwoc/cat/internal/session"
)

// Options carries the environment the production handler chains need.
type Options struct {
	// ConfigRoot is the host config directory holding session scratch
	// dirs.
	ConfigRoot string
}

// NewDispatcher returns the static handler chain for one lifecycle
// event. Order within each chain is load-bearing:
//   - Bash PreToolUse runs the removal guard first so nothing else
//     observes a command that is about to be blocked.
//   - SessionStart restores the worktree before injecting rules so the
//     rules see the restored working directory in context.
func NewDispatcher(event Event, opts Options) *Dispatcher {
	switch event {
	case EventSessionStart:
		return &Dispatcher{Event: event, Policy: ConcatenateContext, Handlers: []Handler{
			&SkillMarkerReset{ConfigRoot: opts.ConfigRoot},
			&WorktreeRestorer{Exists: dirExists},
			&RulesInjector{},
		}}
	case EventSubagentStart:
		return &Dispatcher{Event: event, Policy: ConcatenateContext, Handlers: []Handler{
			&RulesInjector{Subagent: subagentType},
		}}
	case EventPreBash:
		return &Dispatcher{Event: event, Policy: FirstBlockWins, Handlers: []Handler{
			NewRemovalGuard(),
		}}
	case EventPreWrite:
		return &Dispatcher{Event: event, Policy: FirstBlockWins, Handlers: []Handler{
			NewWriteIsolationGuard(),
		}}
	case EventPreToolUse, EventPreRead:
		return &Dispatcher{Event: event, Policy: FirstBlockWins}
	case EventPreAsk:
		return &Dispatcher{Event: event, Policy: SingleContext}
	case EventPostBash:
		return &Dispatcher{Event: event, Policy: WarnOnly, Handlers: []Handler{
			CommitScopeChecker{},
			RebaseTargetChecker{},
		}}
	case EventPostToolUse, EventPostToolUseFailure, EventUserPromptSubmit:
		return &Dispatcher{Event: event, Policy: WarnOnly}
	case EventStop:
		return &Dispatcher{Event: event, Policy: FirstBlockWins, Handlers: []Handler{
			NewStatusOutputEnforcer(opts.ConfigRoot),
		}}
	default:
		return &Dispatcher{Event: event, Policy: WarnOnly}
	}
}

// EventFor maps a hook input to its dispatcher event, refining the
// generic tool events by tool name.
func EventFor(in *Input) Event {
	switch in.HookEventName {
	case "SessionStart":
		return EventSessionStart
	case "SubagentStart":
		return EventSubagentStart
	case "UserPromptSubmit":
		return EventUserPromptSubmit
	case "PreToolUse":
		switch in.ToolName {
		case "Bash":
			return EventPreBash
		case "AskUserQuestion":
			return EventPreAsk
		case "Write", "Edit":
			return EventPreWrite
		case "Read":
			return EventPreRead
		default:
			return EventPreToolUse
		}
	case "PostToolUse":
		if in.ToolName == "Bash" {
			return EventPostBash
		}
		return EventPostToolUse
	case "PostToolUseFailure":
		return EventPostToolUseFailure
	case "Stop":
		return EventStop
	default:
		return Event(in.HookEventName)
	}
}

// subagentType extracts the subagent component of the event's agent id.
func subagentType(in *Input) string {
	id, err := session.ParseAgentID(in.AgentID)
	if err != nil {
		return ""
	}
	return id.Subagent
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
