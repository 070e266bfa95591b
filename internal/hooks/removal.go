package hooks

import (
	"fmt"
	"strings"

	"github.com/cowwoc/cat/internal/lock"
	"github.com/cowwoc/cat/internal/paths"
	"github.com/cowwoc/cat/internal/session"
	"github.com/cowwoc/cat/internal/shell"
)

// Protection reasons, in checking order. The current working directory is
// checked first: deleting it corrupts the shell even for its rightful
// owner.
const (
	reasonCWD          = "CURRENT_WORKING_DIRECTORY"
	reasonMainWorktree = "MAIN_WORKTREE"
	reasonOtherAgent   = "LOCKED_BY_OTHER_AGENT"
	reasonUnknownAgent = "UNKNOWN_AGENT"
)

// protectedPath is one path the guard refuses to let a removal touch.
type protectedPath struct {
	path   string
	reason string
	owner  string // agent id, for the lock-derived reasons
}

// RemovalGuard blocks Bash commands that would recursively remove the
// working directory, the main worktree, or a worktree another agent is
// editing. Registered on every Bash PreToolUse.
type RemovalGuard struct {
	// LockStoreFor returns the lock store for the repository enclosing
	// dir, or nil when there is none. Swapped out by tests.
	LockStoreFor func(dir string) *lock.Store
}

// NewRemovalGuard builds the production guard, locating the lock store
// from the main worktree of the hook's working directory.
func NewRemovalGuard() *RemovalGuard {
	return &RemovalGuard{
		LockStoreFor: func(dir string) *lock.Store {
			root, err := paths.FindMainWorktree(dir)
			if err != nil {
				return nil
			}
			return lock.NewStore(lock.DirFor(root))
		},
	}
}

func (g *RemovalGuard) Name() string { return "unsafe-removal-guard" }

// removal is one detected destructive command.
type removal struct {
	targets []string
	agentID string // CAT_AGENT_ID= prefix value, "" when absent
}

func (g *RemovalGuard) Handle(in *Input) (*Outcome, error) {
	command := in.BashCommand()
	if command == "" {
		return nil, nil
	}
	removals := detectRemovals(command)
	if len(removals) == 0 {
		return nil, nil
	}

	protected := g.protectedPaths(in)
	for _, rm := range removals {
		for _, raw := range rm.targets {
			target := paths.Resolve(raw, in.CWD)
			for _, p := range protected {
				if !paths.IsInsideOrEqual(p.path, target) {
					continue
				}
				reason, blocked := classifyHit(p, rm.agentID, in.SessionID)
				if !blocked {
					continue
				}
				hit := p
				hit.reason = reason
				return &Outcome{Block: true, Reason: blockMessage(raw, target, hit)}, nil
			}
		}
	}
	return nil, nil
}

// classifyHit decides whether a protected-path hit blocks and under which
// reason. Lock-derived paths may be removed by their owning agent; a
// command carrying no agent identity against a subagent-held worktree is
// blocked fail-safe as UNKNOWN_AGENT.
func classifyHit(p protectedPath, commandAgentID, sessionID string) (string, bool) {
	if p.reason != reasonOtherAgent {
		return p.reason, true
	}
	if commandAgentID != "" {
		if commandAgentID == p.owner {
			return "", false
		}
		return reasonOtherAgent, true
	}
	owner, err := session.ParseAgentID(p.owner)
	if err != nil || sessionID == "" {
		return reasonOtherAgent, true
	}
	caller := &session.AgentID{SessionID: sessionID}
	if !caller.SameSession(owner) {
		return reasonOtherAgent, true
	}
	if !owner.IsMain() {
		return reasonUnknownAgent, true
	}
	return "", false
}

// protectedPaths assembles the protection set for this invocation.
func (g *RemovalGuard) protectedPaths(in *Input) []protectedPath {
	var protected []protectedPath
	if in.CWD != "" {
		protected = append(protected, protectedPath{
			path:   paths.Resolve(in.CWD, in.CWD),
			reason: reasonCWD,
		})
	}
	if main, err := paths.FindMainWorktree(in.CWD); err == nil {
		protected = append(protected, protectedPath{
			path:   paths.Resolve(main, in.CWD),
			reason: reasonMainWorktree,
		})
	}
	if g.LockStoreFor == nil {
		return protected
	}
	store := g.LockStoreFor(in.CWD)
	if store == nil {
		return protected
	}
	entries, err := store.List()
	if err != nil {
		return protected
	}
	for _, entry := range entries {
		if entry.Stale {
			continue
		}
		for wtPath, agentID := range entry.Worktrees {
			protected = append(protected, protectedPath{
				path:   paths.Resolve(wtPath, in.CWD),
				reason: reasonOtherAgent,
				owner:  agentID,
			})
		}
	}
	return protected
}

// detectRemovals scans every simple command in the input for a recursive
// rm or a git worktree remove, collecting the positional targets.
func detectRemovals(command string) []removal {
	var removals []removal
	for _, tokens := range shell.SplitCommands(shell.Tokenize(command)) {
		rest, agentID, _ := shell.StripEnvPrefix(tokens, "CAT_AGENT_ID")
		if len(rest) == 0 {
			continue
		}
		if targets := rmTargets(rest); len(targets) > 0 {
			removals = append(removals, removal{targets: targets, agentID: agentID})
		}
		if targets := worktreeRemoveTargets(rest); len(targets) > 0 {
			removals = append(removals, removal{targets: targets, agentID: agentID})
		}
	}
	return removals
}

// rmTargets returns the positional arguments of an `rm` with a recursive
// flag, honoring `--` end-of-options.
func rmTargets(tokens []shell.Token) []string {
	if tokens[0].Value != "rm" || tokens[0].Quoted {
		return nil
	}
	recursive := false
	var targets []string
	endOfOptions := false
	for _, tok := range tokens[1:] {
		v := tok.Value
		if !endOfOptions && !tok.Quoted && strings.HasPrefix(v, "-") {
			if v == "--" {
				endOfOptions = true
				continue
			}
			if v == "--recursive" || (strings.HasPrefix(v, "-") && !strings.HasPrefix(v, "--") &&
				strings.ContainsAny(v, "rR")) {
				recursive = true
			}
			continue
		}
		targets = append(targets, v)
	}
	if !recursive {
		return nil
	}
	return targets
}

// worktreeRemoveTargets returns the target of `git worktree remove`.
func worktreeRemoveTargets(tokens []shell.Token) []string {
	if len(tokens) < 4 || tokens[0].Value != "git" {
		return nil
	}
	if tokens[1].Value != "worktree" || tokens[2].Value != "remove" {
		return nil
	}
	var targets []string
	for _, tok := range tokens[3:] {
		if !tok.Quoted && strings.HasPrefix(tok.Value, "-") {
			continue
		}
		targets = append(targets, tok.Value)
	}
	return targets
}

func blockMessage(raw, target string, p protectedPath) string {
	var b strings.Builder
	b.WriteString("UNSAFE DIRECTORY REMOVAL BLOCKED\n\n")
	fmt.Fprintf(&b, "Command targets: %s (resolves to %s)\n", raw, target)
	switch p.reason {
	case reasonCWD:
		fmt.Fprintf(&b, "Protected: %s is your current working directory.\n", p.path)
		b.WriteString("Removing it would leave this shell in a deleted directory.\n")
		b.WriteString("Recovery: cd out of the directory first, then retry.")
	case reasonMainWorktree:
		fmt.Fprintf(&b, "Protected: %s is the main worktree of this repository.\n", p.path)
		b.WriteString("Recovery: if you meant to remove an issue worktree, target the path under .claude/cat/worktrees instead.")
	case reasonOtherAgent:
		fmt.Fprintf(&b, "Protected: %s. Worktree is locked by another agent.\n", p.path)
		fmt.Fprintf(&b, "Lock owner: %s\n", p.owner)
		b.WriteString("Recovery: only the owning agent may remove it. If you are that agent,\n")
		fmt.Fprintf(&b, "re-run with your identity: CAT_AGENT_ID=<your-agent-id> rm -rf %s", raw)
	case reasonUnknownAgent:
		fmt.Fprintf(&b, "Protected: %s is a locked worktree and this command carries no agent identity.\n", p.path)
		fmt.Fprintf(&b, "Lock owner: %s\n", p.owner)
		fmt.Fprintf(&b, "Recovery: re-run as the owning agent, e.g. CAT_AGENT_ID=<your-agent-id> rm -rf %s", raw)
	}
	return b.String()
}
