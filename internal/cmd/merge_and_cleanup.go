package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cowwoc/cat/internal/git"
	"github.com/cowwoc/cat/internal/gitsafe"
)

var (
	mergeCleanupRepo     string
	mergeCleanupIssue    string
	mergeCleanupBase     string
	mergeCleanupRemote   string
	mergeCleanupWorktree string
	mergeCleanupSession  string
)

var mergeAndCleanupCmd = &cobra.Command{
	Use:   "merge-and-cleanup",
	Short: "Merge the issue branch and remove its worktree",
	Long: `Fast-forward the completed issue branch into the base branch, then
remove the worktree, delete the branch, and release the lock.

The base is synced with the remote first; a diverged issue branch is
rebased onto the updated base before the fast-forward. A dirty worktree
refuses with DIRTY, a rebase conflict aborts cleanly with CONFLICT.`,
	Args: cobra.NoArgs,
	RunE: runMergeAndCleanup,
}

func init() {
	rootCmd.AddCommand(mergeAndCleanupCmd)
	mergeAndCleanupCmd.Flags().StringVar(&mergeCleanupRepo, "repo", "", "Repository root (default: auto-detect)")
	mergeAndCleanupCmd.Flags().StringVar(&mergeCleanupIssue, "issue", "", "Qualified issue id (required)")
	mergeAndCleanupCmd.Flags().StringVar(&mergeCleanupBase, "base", "", "Base branch (default: current branch of the main worktree)")
	mergeAndCleanupCmd.Flags().StringVar(&mergeCleanupRemote, "remote", "origin", "Remote to sync the base with (\"\" disables the sync)")
	mergeAndCleanupCmd.Flags().StringVar(&mergeCleanupWorktree, "worktree", "", "Worktree path (default: located from the issue branch)")
	mergeAndCleanupCmd.Flags().StringVar(&mergeCleanupSession, "session", "", "Session id (default: CLAUDE_SESSION_ID)")
}

func runMergeAndCleanup(cmd *cobra.Command, args []string) error {
	if mergeCleanupIssue == "" {
		return fmt.Errorf("--issue is required")
	}
	root, err := projectRoot(mergeCleanupRepo)
	if err != nil {
		return err
	}
	base := mergeCleanupBase
	if base == "" {
		if base, err = git.New(root).CurrentBranch(); err != nil {
			return err
		}
	}
	locks := repoLockStore(root)
	result := gitsafe.MergeAndCleanup(root, locks, gitsafe.MergeRequest{
		IssueID:      mergeCleanupIssue,
		BaseBranch:   base,
		Remote:       mergeCleanupRemote,
		WorktreePath: mergeCleanupWorktree,
		SessionID:    sessionID(mergeCleanupSession),
	})
	if result.Status == gitsafe.MergeError {
		return failJSON(result)
	}
	return emitJSON(result)
}
