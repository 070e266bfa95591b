// Package schedule selects the next executable issue and takes its lock.
package schedule

import (
	"fmt"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/cowwoc/cat/internal/deps"
	"github.com/cowwoc/cat/internal/issue"
	"github.com/cowwoc/cat/internal/lock"
)

// Scope selects how the target argument is interpreted.
type Scope int

const (
	ScopeAll Scope = iota
	ScopeIssue
	ScopeBareName
)

// Kind tags the scheduling outcome.
type Kind string

const (
	KindFound            Kind = "FOUND"
	KindNoIssues         Kind = "NO_ISSUES"
	KindLocked           Kind = "LOCKED"
	KindBlocked          Kind = "BLOCKED"
	KindDecomposed       Kind = "DECOMPOSED"
	KindExistingWorktree Kind = "EXISTING_WORKTREE"
	KindAlreadyComplete  Kind = "ALREADY_COMPLETE"
	KindNotExecutable    Kind = "NOT_EXECUTABLE"
	KindError            Kind = "ERROR"
)

// Diagnostics explains a NoIssues result under scope ALL. Its fields
// serialize at the top level of the result document.
type Diagnostics struct {
	BlockedIssues        map[string][]deps.Blocker `json:"blocked_issues,omitempty"`
	LockedIssues         []string                  `json:"locked_issues,omitempty"`
	CircularDependencies []string                  `json:"circular_dependencies,omitempty"`
	ClosedCount          int                       `json:"closed_count"`
	TotalCount           int                       `json:"total_count"`
}

// Result is the single tagged outcome of a scheduling request.
type Result struct {
	Kind Kind `json:"status"`

	IssueID   string `json:"issue_id,omitempty"`
	Major     int    `json:"major,omitempty"`
	Minor     int    `json:"minor,omitempty"`
	Patch     int    `json:"patch,omitempty"`
	Slug      string `json:"slug,omitempty"`
	IssuePath string `json:"issue_path,omitempty"`

	Holder         string         `json:"holder,omitempty"`
	BlockingIssues []deps.Blocker `json:"blocking_issues,omitempty"`
	WorktreePath   string         `json:"worktree_path,omitempty"`
	Reason         string         `json:"reason,omitempty"`
	Message        string         `json:"message,omitempty"`

	*Diagnostics
}

// WorktreeChecker reports the existing worktree path for an issue branch,
// or "" when none exists.
type WorktreeChecker func(branch string) (string, error)

// Scheduler binds the issue store, the dependency graph, and the lock
// store into one selection state machine.
type Scheduler struct {
	Store    *issue.Store
	Locks    *lock.Store
	Worktree WorktreeChecker
}

// Request is one scheduling call.
type Request struct {
	Scope       Scope
	Target      string
	SessionID   string
	ExcludeGlob string
}

// Next runs the selection. On Found the issue's lock is held by the
// request's session; every other outcome leaves no lock behind.
func (s *Scheduler) Next(req Request) *Result {
	g := deps.Build(s.Store)
	cycles, err := g.Cycles()
	if err != nil {
		return &Result{Kind: KindError, Message: err.Error()}
	}
	switch req.Scope {
	case ScopeAll:
		return s.nextAny(req, g, cycles)
	case ScopeIssue:
		return s.nextTarget(req, g, req.Target)
	case ScopeBareName:
		candidates := s.Store.ResolveBare(req.Target)
		switch len(candidates) {
		case 0:
			return &Result{Kind: KindNotExecutable, IssueID: req.Target, Reason: "no issue with that name"}
		case 1:
			return s.nextTarget(req, g, candidates[0])
		default:
			return &Result{Kind: KindNotExecutable, IssueID: req.Target,
				Reason: fmt.Sprintf("ambiguous: %v", candidates)}
		}
	default:
		return &Result{Kind: KindError, Message: fmt.Sprintf("unknown scope %d", req.Scope)}
	}
}

// nextAny scans all issues in priority order and locks the first
// executable one. Lock contention between enumeration and acquisition
// falls through to the next candidate.
func (s *Scheduler) nextAny(req Request, g *deps.Graph, cycles []string) *Result {
	all := s.Store.All()
	diag := &Diagnostics{
		BlockedIssues:        g.BlockedIssues(),
		CircularDependencies: cycles,
		TotalCount:           len(all),
	}
	for _, iss := range all {
		if req.ExcludeGlob != "" {
			if ok, err := doublestar.Match(req.ExcludeGlob, iss.Name.Slug); err == nil && ok {
				continue
			}
		}
		skip, res := s.screen(req, g, iss)
		if res != nil && res.Kind == KindError {
			return res
		}
		if skip {
			if res != nil {
				switch res.Kind {
				case KindLocked:
					diag.LockedIssues = append(diag.LockedIssues, iss.Qualified)
				case KindAlreadyComplete:
					diag.ClosedCount++
				}
			}
			continue
		}
		acq, err := s.Locks.Acquire(iss.Qualified, req.SessionID)
		if err != nil {
			return &Result{Kind: KindError, Message: err.Error()}
		}
		if !acq.Acquired {
			diag.LockedIssues = append(diag.LockedIssues, iss.Qualified)
			continue
		}
		return found(iss)
	}
	return &Result{Kind: KindNoIssues, Diagnostics: diag}
}

// nextTarget handles the single-issue scopes, where a non-executable
// target is reported rather than skipped.
func (s *Scheduler) nextTarget(req Request, g *deps.Graph, qualified string) *Result {
	iss, ok := s.Store.Get(qualified)
	if !ok {
		return &Result{Kind: KindNotExecutable, IssueID: qualified, Reason: "issue not found"}
	}
	skip, res := s.screen(req, g, iss)
	if res != nil {
		return res
	}
	if skip {
		return &Result{Kind: KindNotExecutable, IssueID: qualified, Reason: "not executable"}
	}
	acq, err := s.Locks.Acquire(qualified, req.SessionID)
	if err != nil {
		return &Result{Kind: KindError, Message: err.Error()}
	}
	if !acq.Acquired {
		return &Result{Kind: KindLocked, IssueID: qualified, Holder: acq.HolderSessionID}
	}
	return found(iss)
}

// screen applies the shared executability checks. It returns skip=true
// when the issue cannot be selected, with an optional Result describing
// why (used verbatim by the single-issue scopes).
func (s *Scheduler) screen(req Request, g *deps.Graph, iss *issue.Issue) (bool, *Result) {
	if iss.State == nil {
		return true, &Result{Kind: KindNotExecutable, IssueID: iss.Qualified,
			Reason: fmt.Sprintf("malformed STATE.md: %v", iss.StateErr)}
	}
	switch iss.State.Status {
	case issue.StatusClosed:
		return true, &Result{Kind: KindAlreadyComplete, IssueID: iss.Qualified}
	case issue.StatusDecomposed:
		if s.hasOpenSubIssues(iss) {
			return true, &Result{Kind: KindDecomposed, IssueID: iss.Qualified}
		}
		return true, &Result{Kind: KindAlreadyComplete, IssueID: iss.Qualified}
	case issue.StatusOpen, issue.StatusInProgress:
	default:
		return true, &Result{Kind: KindNotExecutable, IssueID: iss.Qualified,
			Reason: fmt.Sprintf("status %q is not schedulable", iss.State.Status)}
	}
	if blockers := g.Blockers(iss.Qualified); len(blockers) > 0 {
		return true, &Result{Kind: KindBlocked, IssueID: iss.Qualified, BlockingIssues: blockers}
	}
	holder, err := s.Locks.Holder(iss.Qualified)
	if err != nil {
		return true, &Result{Kind: KindError, Message: err.Error()}
	}
	if holder != "" && holder != req.SessionID {
		return true, &Result{Kind: KindLocked, IssueID: iss.Qualified, Holder: holder}
	}
	if s.Worktree != nil {
		path, err := s.Worktree(iss.Qualified)
		if err != nil {
			return true, &Result{Kind: KindError, Message: err.Error()}
		}
		if path != "" {
			return true, &Result{Kind: KindExistingWorktree, IssueID: iss.Qualified, WorktreePath: path}
		}
	}
	return false, nil
}

func (s *Scheduler) hasOpenSubIssues(iss *issue.Issue) bool {
	for _, sub := range iss.State.DecomposedInto {
		child, ok := s.Store.Get(sub)
		if !ok || child.State == nil {
			return true
		}
		if child.State.Status != issue.StatusClosed {
			return true
		}
	}
	return false
}

func found(iss *issue.Issue) *Result {
	return &Result{
		Kind:      KindFound,
		IssueID:   iss.Qualified,
		Major:     iss.Name.Major,
		Minor:     iss.Name.Minor,
		Patch:     iss.Name.Patch,
		Slug:      iss.Name.Slug,
		IssuePath: iss.Path,
	}
}
