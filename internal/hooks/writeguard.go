package hooks

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/cowwoc/cat/internal/lock"
	"github.com/cowwoc/cat/internal/paths"
)

// WriteIsolationGuard blocks Write/Edit calls that target files outside
// the session's active worktree. The block message carries the corrected
// path inside the worktree so the assistant can retry immediately.
type WriteIsolationGuard struct {
	// ActiveWorktree returns the worktree this session holds, or "".
	ActiveWorktree func(in *Input) string
}

// NewWriteIsolationGuard builds the production guard, reading the active
// worktree from the session's lock entries.
func NewWriteIsolationGuard() *WriteIsolationGuard {
	return &WriteIsolationGuard{ActiveWorktree: lockedWorktreeFor}
}

// lockedWorktreeFor finds the worktree registered under this session's
// agent id in any non-stale lock.
func lockedWorktreeFor(in *Input) string {
	root, err := paths.FindMainWorktree(in.CWD)
	if err != nil {
		return ""
	}
	store := lock.NewStore(lock.DirFor(root))
	entries, err := store.List()
	if err != nil {
		return ""
	}
	for _, entry := range entries {
		if entry.Stale || entry.SessionID != in.SessionID {
			continue
		}
		for wtPath, agentID := range entry.Worktrees {
			if in.AgentID == "" || agentID == in.AgentID {
				return wtPath
			}
		}
	}
	return ""
}

func (g *WriteIsolationGuard) Name() string { return "enforce-worktree-path-isolation" }

func (g *WriteIsolationGuard) Handle(in *Input) (*Outcome, error) {
	filePath := in.FilePath()
	if filePath == "" {
		return nil, nil
	}
	active := g.ActiveWorktree(in)
	if active == "" {
		return nil, nil
	}
	active = paths.Resolve(active, in.CWD)
	resolved := paths.Resolve(filePath, in.CWD)
	if paths.IsInsideOrEqual(resolved, active) {
		return nil, nil
	}

	// Writes to files outside any repository (temp files etc.) are not
	// this guard's business; only redirect paths that look like they
	// belong in the project tree.
	main, err := paths.FindMainWorktree(in.CWD)
	if err != nil {
		return nil, nil
	}
	main = paths.Resolve(main, in.CWD)
	if !paths.IsInsideOrEqual(resolved, main) {
		return nil, nil
	}

	corrected := filepath.Join(active, strings.TrimPrefix(resolved, main))
	return &Outcome{
		Block: true,
		Reason: fmt.Sprintf(
			"WORKTREE ISOLATION: %s is outside your active worktree %s.\nWrite to %s instead.",
			resolved, active, corrected),
	}, nil
}
