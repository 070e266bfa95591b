// Package session provides agent identity and per-session scratch state.
package session

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// AgentID identifies the tenant of a worktree: the main agent of a host
// session, or one of its subagents.
type AgentID struct {
	SessionID string
	Subagent  string // empty for the main agent
}

// ParseAgentID parses "{sessionId}" or "{sessionId}/subagents/{agentId}".
func ParseAgentID(raw string) (*AgentID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("empty agent id")
	}
	parts := strings.Split(raw, "/")
	switch len(parts) {
	case 1:
		return &AgentID{SessionID: parts[0]}, nil
	case 3:
		if parts[1] != "subagents" || parts[2] == "" {
			return nil, fmt.Errorf("invalid agent id %q", raw)
		}
		return &AgentID{SessionID: parts[0], Subagent: parts[2]}, nil
	default:
		return nil, fmt.Errorf("invalid agent id %q", raw)
	}
}

// String renders the canonical agent-id form.
func (a *AgentID) String() string {
	if a.Subagent == "" {
		return a.SessionID
	}
	return fmt.Sprintf("%s/subagents/%s", a.SessionID, a.Subagent)
}

// IsMain reports whether this is the session's main agent.
func (a *AgentID) IsMain() bool {
	return a.Subagent == ""
}

// SameSession reports whether two agent ids belong to the same host
// session.
func (a *AgentID) SameSession(other *AgentID) bool {
	return other != nil && a.SessionID == other.SessionID
}

// NormalizeSessionID validates a session id, returning it unchanged when
// it is a well-formed UUID and generating a fresh one when the caller
// supplied nothing. A malformed non-empty id is an error so lock files
// never carry garbage owners.
func NormalizeSessionID(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return uuid.NewString(), nil
	}
	if _, err := uuid.Parse(raw); err != nil {
		return "", fmt.Errorf("invalid session id %q: %w", raw, err)
	}
	return raw, nil
}
