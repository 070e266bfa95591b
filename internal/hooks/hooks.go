// Package hooks implements the host hook protocol: envelope, per-event
// dispatchers, and the safety handlers that run inside them.
package hooks

import "encoding/json"

// Event names one host lifecycle event.
type Event string

const (
	EventSessionStart       Event = "SessionStart"
	EventSubagentStart      Event = "SubagentStart"
	EventUserPromptSubmit   Event = "UserPromptSubmit"
	EventPreToolUse         Event = "PreToolUse"
	EventPreBash            Event = "PreToolUse:Bash"
	EventPreAsk             Event = "PreToolUse:AskUserQuestion"
	EventPreWrite           Event = "PreToolUse:Write"
	EventPreRead            Event = "PreToolUse:Read"
	EventPostToolUse        Event = "PostToolUse"
	EventPostBash           Event = "PostToolUse:Bash"
	EventPostToolUseFailure Event = "PostToolUseFailure"
	EventStop               Event = "Stop"
)

// Input is the JSON object the host writes to a hook's stdin.
type Input struct {
	SessionID      string          `json:"session_id"`
	TranscriptPath string          `json:"transcript_path,omitempty"`
	CWD            string          `json:"cwd,omitempty"`
	HookEventName  string          `json:"hook_event_name,omitempty"`
	ToolName       string          `json:"tool_name,omitempty"`
	ToolInput      json.RawMessage `json:"tool_input,omitempty"`
	ToolResult     json.RawMessage `json:"tool_result,omitempty"`
	AgentID        string          `json:"agent_id,omitempty"`
	Source         string          `json:"source,omitempty"`
	StopHookActive bool            `json:"stop_hook_active,omitempty"`
	Error          string          `json:"error,omitempty"`
}

// BashToolInput is the tool_input payload for Bash invocations.
type BashToolInput struct {
	Command string `json:"command"`
}

// FileToolInput is the tool_input payload for Write, Edit, and Read.
type FileToolInput struct {
	FilePath string `json:"file_path"`
	Content  string `json:"content,omitempty"`
}

// BashCommand extracts the command string from a Bash tool_input.
func (in *Input) BashCommand() string {
	var bash BashToolInput
	if err := json.Unmarshal(in.ToolInput, &bash); err != nil {
		return ""
	}
	return bash.Command
}

// FilePath extracts the file path from a file-tool tool_input.
func (in *Input) FilePath() string {
	var file FileToolInput
	if err := json.Unmarshal(in.ToolInput, &file); err != nil {
		return ""
	}
	return file.FilePath
}

// HookSpecificOutput carries the context injection for session events.
type HookSpecificOutput struct {
	HookEventName     string `json:"hookEventName,omitempty"`
	AdditionalContext string `json:"additionalContext,omitempty"`
}

// Response is the JSON object a hook writes to stdout.
type Response struct {
	Decision           string              `json:"decision,omitempty"` // "allow" or "block"
	Reason             string              `json:"reason,omitempty"`
	HookSpecificOutput *HookSpecificOutput `json:"hookSpecificOutput,omitempty"`
	SystemMessage      string              `json:"systemMessage,omitempty"`
}

// Outcome is what one handler reports back to its dispatcher.
type Outcome struct {
	Block         bool
	Reason        string
	Context       string
	Warnings      []string
	SystemMessage string
}

// Handler is one link in a dispatcher chain.
type Handler interface {
	Name() string
	Handle(in *Input) (*Outcome, error)
}
