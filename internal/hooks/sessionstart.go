package hooks

import (
	"fmt"

	"github.com/cowwoc/cat/internal/lock"
	"github.com/cowwoc/cat/internal/paths"
	"github.com/cowwoc/cat/internal/rules"
	"github.com/cowwoc/cat/internal/session"
)

// WorktreeRestorer re-enters the session's worktree on resume. If a lock
// held by this session names a worktree that still exists and passes the
// path safety check, the assistant is told to cd back into it.
type WorktreeRestorer struct {
	// Exists reports whether a directory exists. Swapped out by tests.
	Exists func(path string) bool
}

func (r *WorktreeRestorer) Name() string { return "restore-worktree-on-resume" }

func (r *WorktreeRestorer) Handle(in *Input) (*Outcome, error) {
	if in.Source != "resume" {
		return nil, nil
	}
	root, err := paths.FindMainWorktree(in.CWD)
	if err != nil {
		return nil, nil
	}
	store := lock.NewStore(lock.DirFor(root))
	entries, err := store.List()
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if entry.Stale || entry.SessionID != in.SessionID {
			continue
		}
		for wtPath := range entry.Worktrees {
			if !paths.IsSafeWorktreePath(wtPath, root) {
				continue
			}
			if r.Exists != nil && !r.Exists(wtPath) {
				continue
			}
			return &Outcome{Context: fmt.Sprintf(
				"You hold the lock for issue %s with an active worktree.\nRun: cd %s",
				entry.IssueID, wtPath)}, nil
		}
	}
	return nil, nil
}

// RulesInjector loads the repository's rule files, filters them for this
// agent, and injects them as additional context.
type RulesInjector struct {
	// Subagent names the subagent type for SubagentStart events; "" for
	// the main agent.
	Subagent func(in *Input) string
}

func (r *RulesInjector) Name() string { return "inject-rules" }

func (r *RulesInjector) Handle(in *Input) (*Outcome, error) {
	root, err := paths.FindMainWorktree(in.CWD)
	if err != nil {
		return nil, nil
	}
	loaded, err := rules.Load(rules.DirFor(root))
	if err != nil {
		return nil, err
	}
	subagent := ""
	if r.Subagent != nil {
		subagent = r.Subagent(in)
	}
	blob := rules.ContextBlob(loaded, subagent, in.CWD)
	if blob == "" {
		return nil, nil
	}
	return &Outcome{Context: blob}, nil
}

// SkillMarkerReset clears the skills-loaded marker at session start so a
// resumed session reloads its skills.
type SkillMarkerReset struct {
	ConfigRoot string
}

func (s *SkillMarkerReset) Name() string { return "reset-skill-markers" }

func (s *SkillMarkerReset) Handle(in *Input) (*Outcome, error) {
	if in.Source == "resume" {
		// A resumed session keeps its loaded-skill state.
		return nil, nil
	}
	d := session.OpenDir(s.ConfigRoot, in.SessionID)
	agentID := in.AgentID
	if agentID == "" {
		agentID = in.SessionID
	}
	if err := d.ClearMarker(session.SkillsLoadedMarker(agentID)); err != nil {
		return nil, err
	}
	return nil, nil
}
