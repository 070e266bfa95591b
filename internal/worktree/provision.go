// Package worktree provisions an isolated git worktree for a selected
// issue and assembles the READY payload handed back to the caller.
package worktree

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cowwoc/cat/internal/git"
	"github.com/cowwoc/cat/internal/issue"
	"github.com/cowwoc/cat/internal/lock"
	"github.com/cowwoc/cat/internal/schedule"
)

// BranchPointFile is the sidecar inside the worktree's git metadata dir
// recording the commit the issue branch forked from.
const BranchPointFile = "cat-branch-point"

// existingWorkLimit caps how many oneline summaries the READY payload
// carries for work already on the branch.
const existingWorkLimit = 5

// suspiciousScanDepth is how many recent base commits the name-only scan
// inspects.
const suspiciousScanDepth = 20

// Status tags the provisioning outcome.
type Status string

const (
	StatusReady     Status = "READY"
	StatusOversized Status = "OVERSIZED"
	StatusError     Status = "ERROR"
)

// Result is the JSON payload returned to the caller.
type Result struct {
	Status Status `json:"status"`

	IssueID       string   `json:"issue_id,omitempty"`
	LockAcquired  bool     `json:"lock_acquired,omitempty"`
	WorktreePath  string   `json:"worktree_path,omitempty"`
	Branch        string   `json:"branch,omitempty"`
	BaseBranch    string   `json:"base_branch,omitempty"`
	TokenEstimate int      `json:"token_estimate,omitempty"`
	TokenBudget   int      `json:"token_budget,omitempty"`
	Goal          string   `json:"goal,omitempty"`
	Preconditions []string `json:"preconditions,omitempty"`

	ExistingCommits   int      `json:"existing_commits,omitempty"`
	ExistingWork      []string `json:"existing_work,omitempty"`
	SuspiciousCommits []string `json:"suspicious_commits,omitempty"`

	Message string `json:"message,omitempty"`
}

// Provisioner runs the post-selection sequence.
type Provisioner struct {
	RepoRoot     string
	WorktreeRoot string // defaults to {repo}/.claude/cat/worktrees
	Locks        *lock.Store
	TokenBudget  int // defaults to issue.DefaultTokenBudget
	Logger       *slog.Logger

	now func() time.Time
}

func (p *Provisioner) tokenBudget() int {
	if p.TokenBudget > 0 {
		return p.TokenBudget
	}
	return issue.DefaultTokenBudget
}

func (p *Provisioner) worktreeRoot() string {
	if p.WorktreeRoot != "" {
		return p.WorktreeRoot
	}
	return filepath.Join(p.RepoRoot, ".claude", "cat", "worktrees")
}

func (p *Provisioner) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

func (p *Provisioner) clock() time.Time {
	if p.now != nil {
		return p.now()
	}
	return time.Now()
}

// Provision executes the provisioning steps for a Found scheduling
// result. Any step's failure rolls back the worktree, releases the lock,
// and returns ERROR. The suspicious-commit scan is advisory and never
// fails the provision.
func (p *Provisioner) Provision(found *schedule.Result, sessionID, agentID string) *Result {
	branch := found.IssueID
	path := filepath.Join(p.worktreeRoot(), branch)
	mainGit := git.New(p.RepoRoot)

	baseBranch, err := mainGit.CurrentBranch()
	if err != nil {
		return p.fail(found, sessionID, "", "reading base branch", err)
	}

	// A branch left over from an earlier session blocks worktree add.
	if exists, err := mainGit.BranchExists(branch); err != nil {
		return p.fail(found, sessionID, "", "checking branch", err)
	} else if exists {
		if err := mainGit.DeleteBranch(branch, true); err != nil {
			return p.fail(found, sessionID, "", "deleting stale branch", err)
		}
	}
	if err := mainGit.WorktreeAdd(path, branch); err != nil {
		return p.fail(found, sessionID, "", "creating worktree", err)
	}

	wtGit := git.New(path)
	if err := p.recordBranchPoint(wtGit, branch); err != nil {
		return p.fail(found, sessionID, path, "recording fork point", err)
	}

	current, err := wtGit.CurrentBranch()
	if err != nil {
		return p.fail(found, sessionID, path, "verifying checkout", err)
	}
	if current != branch {
		return p.fail(found, sessionID, path, "verifying checkout",
			fmt.Errorf("worktree is on %q, expected %q", current, branch))
	}

	if err := p.Locks.Update(found.IssueID, sessionID, path, agentID); err != nil {
		return p.fail(found, sessionID, path, "updating lock", err)
	}

	ahead, err := wtGit.CommitsAhead(baseBranch, branch)
	if err != nil {
		return p.fail(found, sessionID, path, "counting existing work", err)
	}
	var existing []string
	if ahead > 0 {
		existing, err = wtGit.LogOneline(baseBranch, branch, existingWorkLimit)
		if err != nil {
			return p.fail(found, sessionID, path, "summarizing existing work", err)
		}
	}

	plan, err := issue.ReadPlan(found.IssuePath)
	if err != nil {
		return p.fail(found, sessionID, path, "reading plan", err)
	}

	suspicious := p.scanSuspicious(wtGit, baseBranch, found.Slug, plan)

	// STATE.md is updated in the worktree's copy so the status change
	// rides the issue branch.
	stateDir := found.IssuePath
	if rel, relErr := filepath.Rel(p.RepoRoot, found.IssuePath); relErr == nil && !strings.HasPrefix(rel, "..") {
		stateDir = filepath.Join(path, rel)
	}
	today := p.clock().Format("2006-01-02")
	if err := issue.UpdateStateFile(stateDir, issue.StatusInProgress, 0, today); err != nil {
		return p.fail(found, sessionID, path, "updating STATE.md", err)
	}

	estimate := plan.EstimateTokens()
	if estimate > p.tokenBudget() {
		p.cleanup(found, sessionID, path)
		return &Result{
			Status:        StatusOversized,
			IssueID:       found.IssueID,
			TokenEstimate: estimate,
			TokenBudget:   p.tokenBudget(),
			Message: fmt.Sprintf("plan estimates %d tokens against a budget of %d; decompose the issue first",
				estimate, p.tokenBudget()),
		}
	}

	var preconditions []string
	for _, pc := range plan.Preconditions {
		preconditions = append(preconditions, pc.Text)
	}
	return &Result{
		Status:            StatusReady,
		IssueID:           found.IssueID,
		LockAcquired:      true,
		WorktreePath:      path,
		Branch:            branch,
		BaseBranch:        baseBranch,
		TokenEstimate:     estimate,
		TokenBudget:       p.tokenBudget(),
		Goal:              plan.Goal,
		Preconditions:     preconditions,
		ExistingCommits:   ahead,
		ExistingWork:      existing,
		SuspiciousCommits: suspicious,
	}
}

// recordBranchPoint writes HEAD into the worktree's private git dir.
func (p *Provisioner) recordBranchPoint(wtGit *git.Git, branch string) error {
	head, err := wtGit.Head()
	if err != nil {
		return err
	}
	gitDir, err := wtGit.GitDir()
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(gitDir, BranchPointFile), []byte(head+"\n"), 0o644)
}

// ReadBranchPoint returns the recorded fork commit for a worktree.
func ReadBranchPoint(wtGit *git.Git) (string, error) {
	gitDir, err := wtGit.GitDir()
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(filepath.Join(gitDir, BranchPointFile)) //nolint:gosec // G304: path from git rev-parse
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", BranchPointFile, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// scanSuspicious looks for base-branch commits that may already contain
// this issue's work: commits mentioning the slug, and recent commits
// touching files the plan declares. Failures are logged, not returned.
func (p *Provisioner) scanSuspicious(wtGit *git.Git, baseBranch, slug string, plan *issue.Plan) []string {
	var suspicious []string
	seen := map[string]bool{}
	add := func(summary string) {
		if !seen[summary] {
			seen[summary] = true
			suspicious = append(suspicious, summary)
		}
	}

	byMessage, err := wtGit.LogGrep(baseBranch, slug, suspiciousScanDepth)
	if err != nil {
		p.logger().Warn("suspicious-commit grep failed", "error", err)
	}
	for _, line := range byMessage {
		if isPlanningCommit(line) {
			continue
		}
		add(line)
	}

	declared := append(append([]string{}, plan.FilesToCreate...), plan.FilesToModify...)
	if len(declared) > 0 {
		commits, err := wtGit.LogNameOnly(baseBranch, suspiciousScanDepth)
		if err != nil {
			p.logger().Warn("suspicious-commit file scan failed", "error", err)
		}
		for _, c := range commits {
			for _, file := range c.Files {
				if matchesAnyDeclared(file, declared) {
					add(c.Summary)
					break
				}
			}
		}
	}
	return suspicious
}

// isPlanningCommit filters commits that merely set up issue metadata.
func isPlanningCommit(oneline string) bool {
	_, subject, ok := strings.Cut(oneline, " ")
	if !ok {
		return false
	}
	for _, prefix := range []string{"plan:", "plan(", "docs(cat)", "chore(cat)"} {
		if strings.HasPrefix(subject, prefix) {
			return true
		}
	}
	return false
}

// matchesAnyDeclared suffix-matches a committed file against the plan's
// declared paths, treating `*` as a single path segment.
func matchesAnyDeclared(file string, declared []string) bool {
	for _, pattern := range declared {
		if suffixMatch(file, pattern) {
			return true
		}
	}
	return false
}

func suffixMatch(file, pattern string) bool {
	fileSegs := strings.Split(file, "/")
	patSegs := strings.Split(pattern, "/")
	if len(patSegs) > len(fileSegs) {
		return false
	}
	tail := fileSegs[len(fileSegs)-len(patSegs):]
	for i, pat := range patSegs {
		if pat == "*" {
			continue
		}
		ok, err := filepath.Match(pat, tail[i])
		if err != nil || !ok {
			return false
		}
	}
	return true
}

// fail rolls back and reports. The worktree path is empty when failure
// happened before the worktree existed.
func (p *Provisioner) fail(found *schedule.Result, sessionID, path, step string, err error) *Result {
	p.logger().Error("provisioning failed", "issue", found.IssueID, "step", step, "error", err)
	p.cleanup(found, sessionID, path)
	return &Result{
		Status:  StatusError,
		IssueID: found.IssueID,
		Message: fmt.Sprintf("%s: %v", step, err),
	}
}

func (p *Provisioner) cleanup(found *schedule.Result, sessionID, path string) {
	mainGit := git.New(p.RepoRoot)
	if path != "" {
		if err := mainGit.WorktreeRemove(path, true); err != nil {
			p.logger().Warn("worktree cleanup failed", "path", path, "error", err)
			// The directory may already be gone; clear the registration.
			if err := mainGit.WorktreePrune(); err != nil {
				p.logger().Warn("worktree prune failed", "error", err)
			}
		}
		if err := mainGit.DeleteBranch(found.IssueID, true); err != nil {
			p.logger().Warn("branch cleanup failed", "branch", found.IssueID, "error", err)
		}
	}
	if err := p.Locks.Release(found.IssueID, sessionID); err != nil {
		p.logger().Warn("lock release failed", "issue", found.IssueID, "error", err)
	}
}

// FindWorktree returns the path of an existing worktree checked out on
// the given branch, or "".
func FindWorktree(repoRoot, branch string) (string, error) {
	worktrees, err := git.New(repoRoot).WorktreeList()
	if err != nil {
		return "", err
	}
	for _, wt := range worktrees {
		if wt.Branch == branch {
			return wt.Path, nil
		}
	}
	return "", nil
}
