package gitsafe

import (
	"fmt"
	"time"

	"github.com/cowwoc/cat/internal/git"
	"github.com/cowwoc/cat/internal/worktree"
)

// RebaseStatus tags the rebase-safe outcome.
type RebaseStatus string

const (
	RebaseOK       RebaseStatus = "OK"
	RebaseConflict RebaseStatus = "CONFLICT"
	RebaseError    RebaseStatus = "ERROR"
)

// RebaseResult is the structured outcome of RebaseSafe.
type RebaseResult struct {
	Status         RebaseStatus `json:"status"`
	Target         string       `json:"target,omitempty"`
	BackupBranch   string       `json:"backup_branch,omitempty"`
	Files          []string     `json:"files,omitempty"`
	CommitsRebased int          `json:"commits_rebased,omitempty"`
	BackupCleaned  bool         `json:"backup_cleaned"`
	DiffStat       string       `json:"diff_stat,omitempty"`
	Message        string       `json:"message,omitempty"`
}

// backupBranchName stamps backups to the second so reruns never collide
// with a preserved backup from an earlier failure.
func backupBranchName(now time.Time) string {
	return "backup-before-rebase-" + now.Format("20060102-150405")
}

// RebaseSafe rebases the current branch onto target behind a backup
// branch. With target empty, the worktree's recorded fork point is used.
// On conflict the rebase is aborted and the conflicted files reported;
// on any content drift versus the backup the backup is preserved for
// investigation.
func RebaseSafe(g *git.Git, target string) *RebaseResult {
	return rebaseSafeAt(g, target, time.Now())
}

func rebaseSafeAt(g *git.Git, target string, now time.Time) *RebaseResult {
	if target == "" {
		point, err := worktree.ReadBranchPoint(g)
		if err != nil {
			return &RebaseResult{Status: RebaseError, Message: fmt.Sprintf("no target and no recorded fork point: %v", err)}
		}
		target = point
	}

	backup := backupBranchName(now)
	if err := g.CreateBranch(backup); err != nil {
		return &RebaseResult{Status: RebaseError, Target: target, Message: fmt.Sprintf("creating backup branch: %v", err)}
	}
	if exists, err := g.BranchExists(backup); err != nil || !exists {
		return &RebaseResult{Status: RebaseError, Target: target, Message: fmt.Sprintf("backup branch not created: %v", err)}
	}

	if err := g.Rebase(target); err != nil {
		files, filesErr := g.ConflictingFiles()
		if abortErr := g.AbortRebase(); abortErr != nil {
			return &RebaseResult{
				Status: RebaseError, Target: target, BackupBranch: backup,
				Message: fmt.Sprintf("rebase failed (%v) and abort failed (%v)", err, abortErr),
			}
		}
		if filesErr == nil && len(files) > 0 {
			return &RebaseResult{Status: RebaseConflict, Target: target, BackupBranch: backup, Files: files}
		}
		return &RebaseResult{
			Status: RebaseError, Target: target, BackupBranch: backup,
			Message: fmt.Sprintf("rebase failed without conflicts: %v", err),
		}
	}

	same, err := g.DiffQuiet(backup, "HEAD")
	if err != nil {
		return &RebaseResult{Status: RebaseError, Target: target, BackupBranch: backup, Message: fmt.Sprintf("verifying content: %v", err)}
	}
	if !same {
		stat, _ := g.DiffStat(backup, "HEAD")
		return &RebaseResult{
			Status: RebaseError, Target: target, BackupBranch: backup, DiffStat: stat,
			Message: "rebase changed content; backup branch preserved",
		}
	}

	rebased, err := g.CommitsAhead(target, "HEAD")
	if err != nil {
		return &RebaseResult{Status: RebaseError, Target: target, BackupBranch: backup, Message: fmt.Sprintf("counting commits: %v", err)}
	}
	if err := g.DeleteBranch(backup, true); err != nil {
		return &RebaseResult{Status: RebaseError, Target: target, BackupBranch: backup, Message: fmt.Sprintf("deleting backup: %v", err)}
	}
	return &RebaseResult{Status: RebaseOK, Target: target, CommitsRebased: rebased, BackupCleaned: true}
}
