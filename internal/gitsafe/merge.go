package gitsafe

import (
	"fmt"
	"time"

	"github.com/cowwoc/cat/internal/git"
	"github.com/cowwoc/cat/internal/lock"
	"github.com/cowwoc/cat/internal/worktree"
)

// MergeStatus tags the merge-and-cleanup outcome.
type MergeStatus string

const (
	MergeOK       MergeStatus = "OK"
	MergeDirty    MergeStatus = "DIRTY"
	MergeConflict MergeStatus = "CONFLICT"
	MergeError    MergeStatus = "ERROR"
)

// MergeResult is the structured outcome of MergeAndCleanup.
type MergeResult struct {
	Status          MergeStatus `json:"status"`
	IssueID         string      `json:"issue_id,omitempty"`
	TargetBranch    string      `json:"target_branch,omitempty"`
	MergedCommit    string      `json:"merged_commit,omitempty"`
	LockReleased    bool        `json:"lock_released"`
	DurationSeconds float64     `json:"duration_seconds"`
	Files           []string    `json:"files,omitempty"`
	Message         string      `json:"message,omitempty"`
}

// MergeRequest names the branch to merge and where.
type MergeRequest struct {
	IssueID      string
	BaseBranch   string
	Remote       string // "" disables the origin sync
	WorktreePath string // "" locates it from the issue branch
	SessionID    string
}

// MergeAndCleanup fast-forwards the issue branch into the base branch,
// then removes the worktree, deletes the branch, and releases the lock.
// The base is synced with origin first, and a diverged issue branch is
// rebased onto the updated base before the fast-forward.
func MergeAndCleanup(repoRoot string, locks *lock.Store, req MergeRequest) *MergeResult {
	start := time.Now()
	branch := req.IssueID
	mainGit := git.New(repoRoot)

	wtPath := req.WorktreePath
	if wtPath == "" {
		path, err := worktree.FindWorktree(repoRoot, branch)
		if err != nil {
			return &MergeResult{Status: MergeError, IssueID: req.IssueID, Message: fmt.Sprintf("locating worktree: %v", err)}
		}
		if path == "" {
			return &MergeResult{Status: MergeError, IssueID: req.IssueID, Message: "no worktree found for issue branch"}
		}
		wtPath = path
	}

	wtGit := git.New(wtPath)
	clean, err := wtGit.IsClean()
	if err != nil {
		return &MergeResult{Status: MergeError, IssueID: req.IssueID, Message: fmt.Sprintf("checking worktree: %v", err)}
	}
	if !clean {
		return &MergeResult{
			Status: MergeDirty, IssueID: req.IssueID,
			Message: "worktree has uncommitted changes; commit or stash before merging",
		}
	}

	if req.Remote != "" {
		if err := mainGit.FetchWithRetry(req.Remote, req.BaseBranch); err != nil {
			return &MergeResult{Status: MergeError, IssueID: req.IssueID, Message: fmt.Sprintf("fetching %s: %v", req.BaseBranch, err)}
		}
		if err := mainGit.MergeFFOnly(req.Remote + "/" + req.BaseBranch); err != nil {
			return &MergeResult{Status: MergeError, IssueID: req.IssueID, Message: fmt.Sprintf("syncing base: %v", err)}
		}
	}

	// If the base moved since the branch forked, replay only the branch's
	// own commits onto the new base.
	baseOnBranch, err := mainGit.IsAncestor(req.BaseBranch, branch)
	if err != nil {
		return &MergeResult{Status: MergeError, IssueID: req.IssueID, Message: fmt.Sprintf("checking divergence: %v", err)}
	}
	if !baseOnBranch {
		mergeBase, err := mainGit.MergeBase(req.BaseBranch, branch)
		if err != nil {
			return &MergeResult{Status: MergeError, IssueID: req.IssueID, Message: fmt.Sprintf("finding merge base: %v", err)}
		}
		if err := wtGit.RebaseOnto(req.BaseBranch, mergeBase, branch); err != nil {
			files, _ := wtGit.ConflictingFiles()
			if abortErr := wtGit.AbortRebase(); abortErr != nil {
				return &MergeResult{
					Status: MergeError, IssueID: req.IssueID,
					Message: fmt.Sprintf("rebase failed (%v) and abort failed (%v)", err, abortErr),
				}
			}
			return &MergeResult{Status: MergeConflict, IssueID: req.IssueID, Files: files,
				Message: "issue branch conflicts with the updated base"}
		}
		baseOnBranch, err = mainGit.IsAncestor(req.BaseBranch, branch)
		if err != nil || !baseOnBranch {
			return &MergeResult{Status: MergeError, IssueID: req.IssueID,
				Message: fmt.Sprintf("base is still not an ancestor after rebase: %v", err)}
		}
	}

	if err := mainGit.MergeFFOnly(branch); err != nil {
		return &MergeResult{Status: MergeError, IssueID: req.IssueID, Message: fmt.Sprintf("fast-forward merge: %v", err)}
	}
	merged, err := mainGit.Head()
	if err != nil {
		return &MergeResult{Status: MergeError, IssueID: req.IssueID, Message: fmt.Sprintf("reading merged head: %v", err)}
	}

	if err := mainGit.WorktreeRemove(wtPath, true); err != nil {
		return &MergeResult{Status: MergeError, IssueID: req.IssueID, MergedCommit: merged,
			Message: fmt.Sprintf("removing worktree: %v", err)}
	}
	if err := mainGit.DeleteBranch(branch, true); err != nil {
		return &MergeResult{Status: MergeError, IssueID: req.IssueID, MergedCommit: merged,
			Message: fmt.Sprintf("deleting branch: %v", err)}
	}
	lockReleased := true
	if err := locks.Release(req.IssueID, req.SessionID); err != nil {
		lockReleased = false
	}

	return &MergeResult{
		Status:          MergeOK,
		IssueID:         req.IssueID,
		TargetBranch:    req.BaseBranch,
		MergedCommit:    merged,
		LockReleased:    lockReleased,
		DurationSeconds: time.Since(start).Seconds(),
	}
}
